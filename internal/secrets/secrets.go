// Package secrets resolves secret-bearing configuration through an
// inline > local file > object store precedence, materializing object
// store secrets into a canonical local directory.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/environ"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/objectstore"
)

const (
	// DefaultDir is the canonical directory for materialized secrets.
	DefaultDir = "/opt/concourse/conf"

	suffixLocalPath  = "_FILE_PATH"
	suffixObjectPath = "_FILE_OBJECT_PATH"
)

// ErrNameCollision is returned when two secrets would be materialized
// under the same file name.
var ErrNameCollision = errors.New("secret file name collision")

// Source is the tier a secret was resolved from.
type Source int

const (
	SourceAbsent Source = iota
	SourceInline
	SourceLocalPath
	SourceObject
)

func (s Source) String() string {
	switch s {
	case SourceInline:
		return "inline"
	case SourceLocalPath:
		return "local-path"
	case SourceObject:
		return "object-path"
	default:
		return "absent"
	}
}

// Spec lists the configured tiers of one secret. Empty fields are
// unset.
type Spec struct {
	Inline     string
	LocalPath  string
	ObjectPath string
}

// SpecFromEnvironment reads the three tiers of a secret from env: the
// variable itself, <variable>_FILE_PATH and <variable>_FILE_OBJECT_PATH.
func SpecFromEnvironment(env environ.Environment, variable string) Spec {
	inline, _ := env.Value(variable)
	local, _ := env.Value(variable + suffixLocalPath)
	object, _ := env.Value(variable + suffixObjectPath)

	return Spec{
		Inline:     inline,
		LocalPath:  local,
		ObjectPath: object,
	}
}

// Resolution is the outcome of resolving a Spec. Value is the literal
// for the inline tier and a file path for the other tiers.
type Resolution struct {
	Source Source
	Value  string
}

// Present reports whether any tier was configured.
func (r Resolution) Present() bool {
	return r.Source != SourceAbsent
}

// StoreFunc returns the object store to fetch from. It is only called
// when a secret uses the object tier.
type StoreFunc func(context.Context) (objectstore.Store, error)

// Resolver resolves secrets and owns the canonical directory for the
// lifetime of one entrypoint run.
type Resolver struct {
	dir   string
	store StoreFunc

	mu       sync.Mutex
	resolved map[string]Resolution
	files    map[string]string
	cleared  bool

	log *zap.Logger
}

func NewResolver(dir string, store StoreFunc, log *zap.Logger) *Resolver {
	if dir == "" {
		dir = DefaultDir
	}

	return &Resolver{
		dir:      dir,
		store:    store,
		resolved: map[string]Resolution{},
		files:    map[string]string{},
		log:      log.Named("secrets").With(zap.String("dir", dir)),
	}
}

// Dir returns the canonical directory.
func (r *Resolver) Dir() string {
	return r.dir
}

// Resolve resolves the named secret. Once a secret has been resolved,
// later calls return the first resolution.
func (r *Resolver) Resolve(ctx context.Context, name string, spec Spec) (Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.resolved[name]; ok {
		return res, nil
	}

	res, err := r.resolve(ctx, name, spec)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve secret %s: %w", name, err)
	}

	log := r.log.With(zap.String("secret", name), zap.Stringer("source", res.Source))
	if res.Source == SourceInline {
		log.Info("secret resolved")
	} else {
		log.Info("secret resolved", zap.String("path", res.Value))
	}

	r.resolved[name] = res

	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, name string, spec Spec) (Resolution, error) {
	switch {
	case spec.Inline != "":
		return Resolution{Source: SourceInline, Value: spec.Inline}, nil
	case spec.LocalPath != "":
		return Resolution{Source: SourceLocalPath, Value: spec.LocalPath}, nil
	case spec.ObjectPath != "":
		path, err := r.materialize(ctx, name, spec.ObjectPath)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{Source: SourceObject, Value: path}, nil
	default:
		return Resolution{Source: SourceAbsent}, nil
	}
}

func (r *Resolver) materialize(ctx context.Context, name, objectPath string) (string, error) {
	loc, err := objectstore.ParseLocation(objectPath)
	if err != nil {
		return "", err
	}

	fileName := loc.Name()
	if fileName == "." || fileName == ".." {
		return "", fmt.Errorf("invalid secret file name %q in %s", fileName, loc)
	}
	if owner, ok := r.files[fileName]; ok {
		return "", fmt.Errorf("%w: %s and %s both map to %s", ErrNameCollision, owner, name, fileName)
	}

	if r.store == nil {
		return "", errors.New("no object store configured")
	}

	store, err := r.store(ctx)
	if err != nil {
		return "", err
	}

	data, err := store.Get(ctx, loc)
	if err != nil {
		return "", err
	}

	if !r.cleared {
		if err := r.clearDir(); err != nil {
			return "", err
		}
		r.cleared = true
	}

	path, err := writeFile(r.dir, fileName, data)
	if err != nil {
		return "", err
	}

	r.files[fileName] = name

	return path, nil
}

// clearDir removes whatever an earlier run left in the canonical
// directory, so it only ever lists secrets materialized by this run.
func (r *Resolver) clearDir() error {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading secrets directory: %w", err)
	}

	for _, entry := range entries {
		path := filepath.Join(r.dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("removing stale secret %s: %w", path, err)
		}
		r.log.Info("stale secret removed", zap.String("path", path))
	}

	return nil
}

// writeFile writes data unmodified to dir/name through a temporary
// file in the same directory, so the final name only ever holds
// complete content.
func writeFile(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("creating secrets directory: %w", err)
	}

	finalPath := filepath.Join(dir, name)

	tmpFile, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp secret file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if err := tmpFile.Chmod(0o600); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("setting secret file mode: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("writing secret: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("closing temp secret file: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming secret to %s: %w", finalPath, err)
	}

	success = true
	return finalPath, nil
}
