// Package envfile loads a remotely hosted KEY="VALUE" environment file
// and merges it over an existing environment.
package envfile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/environ"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/objectstore"
)

var (
	// ErrFetch is returned when the env file cannot be retrieved.
	ErrFetch = errors.New("env file fetch failed")

	// ErrParse is returned when the env file is malformed.
	ErrParse = errors.New("env file parse failed")
)

// ParseError reports a malformed env file. Line is 1-based, and
// zero when the failure cannot be attributed to a single line.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%v: line %d: %v", ErrParse, e.Line, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrParse, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// Parse parses KEY="VALUE" lines. Leading whitespace before a key and
// blank lines are ignored. Values are taken literally: one pair of
// surrounding double or single quotes is removed, and nothing inside
// them is expanded or unescaped. A non-blank line without '=' is an
// error.
func Parse(data []byte) (map[string]string, error) {
	entries := make(map[string]string)

	for i, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		key, value, ok := strings.Cut(trimmed, "=")
		if !ok {
			return nil, &ParseError{Line: i + 1, Err: errors.New("missing '=' separator")}
		}

		key = strings.TrimSpace(key)
		if key == "" {
			return nil, &ParseError{Line: i + 1, Err: errors.New("missing key")}
		}
		if strings.ContainsAny(key, " \t\"'") {
			return nil, &ParseError{Line: i + 1, Err: fmt.Errorf("invalid key %q", key)}
		}

		value, err := unquote(strings.TrimSpace(value))
		if err != nil {
			return nil, &ParseError{Line: i + 1, Err: err}
		}

		entries[key] = value
	}

	return entries, nil
}

func unquote(value string) (string, error) {
	if value == "" {
		return value, nil
	}

	quote := value[0]
	if quote != '"' && quote != '\'' {
		return value, nil
	}

	if len(value) < 2 || value[len(value)-1] != quote {
		return "", fmt.Errorf("unterminated quoted value %s", value)
	}

	return value[1 : len(value)-1], nil
}

// Loader fetches env files from an object store.
type Loader struct {
	store objectstore.Store
	log   *zap.Logger
}

func NewLoader(store objectstore.Store, log *zap.Logger) *Loader {
	return &Loader{
		store: store,
		log:   log.Named("envfile"),
	}
}

// Load fetches the env file at objectPath and returns base with every
// entry of the file applied over it. An empty objectPath returns a
// copy of base.
func (l *Loader) Load(ctx context.Context, base environ.Environment, objectPath string) (environ.Environment, error) {
	if objectPath == "" {
		l.log.Debug("no env file configured")
		return base.Clone(), nil
	}

	loc, err := objectstore.ParseLocation(objectPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	log := l.log.With(zap.Stringer("object", loc))

	data, err := l.store.Get(ctx, loc)
	if err != nil {
		log.Error("failed to fetch env file", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	entries, err := Parse(data)
	if err != nil {
		log.Error("failed to parse env file", zap.Error(err))
		return nil, err
	}

	overridden := 0
	for key := range entries {
		if _, ok := base[key]; ok {
			overridden++
		}
	}

	log.Info("env file loaded",
		zap.Int("entries", len(entries)),
		zap.Int("overridden", overridden),
	)

	return base.Merge(entries), nil
}
