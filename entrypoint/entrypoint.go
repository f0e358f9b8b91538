// Package entrypoint resolves the configuration of a concourse web or
// worker node and runs the concourse binary until it is ready.
package entrypoint

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/envfile"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/environ"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/launch"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/metadata"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/objectstore"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/secrets"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/supervisor"
)

// StoreFactory creates an object store client.
type StoreFactory func(ctx context.Context, cfg objectstore.Config, log *zap.Logger) (objectstore.Store, error)

// DefaultsFactory creates the source of instance defaults.
type DefaultsFactory func(cfg metadata.Config, log *zap.Logger) launch.Defaults

func newMetadataDefaults(cfg metadata.Config, log *zap.Logger) launch.Defaults {
	return metadata.New(cfg, log)
}

// Entrypoint prepares and runs a single concourse process.
type Entrypoint struct {
	role   launch.Role
	config Config
	env    environ.Environment

	newStore    StoreFactory
	newDefaults DefaultsFactory
	output      io.Writer

	mu      sync.Mutex
	process *supervisor.Process

	log *zap.Logger
}

type Option func(*Entrypoint)

// WithEnvironment replaces the process environment as the base
// environment.
func WithEnvironment(env environ.Environment) Option {
	return func(e *Entrypoint) {
		e.env = env
	}
}

func WithStoreFactory(f StoreFactory) Option {
	return func(e *Entrypoint) {
		e.newStore = f
	}
}

func WithDefaultsFactory(f DefaultsFactory) Option {
	return func(e *Entrypoint) {
		e.newDefaults = f
	}
}

// WithOutput mirrors the output of the child to w.
func WithOutput(w io.Writer) Option {
	return func(e *Entrypoint) {
		e.output = w
	}
}

func New(role launch.Role, config Config, log *zap.Logger, opts ...Option) *Entrypoint {
	e := &Entrypoint{
		role:        role,
		config:      config,
		newStore:    objectstore.New,
		newDefaults: newMetadataDefaults,
		log:         log.Named("entrypoint").With(zap.String("role", string(role))),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.env == nil {
		e.env = environ.FromOS()
	}

	return e
}

// Plan is a fully resolved invocation.
type Plan struct {
	// Spec is the assembled command.
	Spec *launch.Spec

	// Environment is the resolved environment, env file included.
	Environment environ.Environment

	// Secrets holds the resolution of every secret key.
	Secrets map[string]secrets.Resolution
}

// Prepare loads the env file, resolves secrets and assembles the
// command. It does not start anything.
func (e *Entrypoint) Prepare(ctx context.Context) (*Plan, error) {
	if _, err := launch.ParseRole(string(e.role)); err != nil {
		return nil, err
	}

	bootstrap, err := ParseCloudConfig(e.env)
	if err != nil {
		return nil, fmt.Errorf("parse cloud config: %w", err)
	}

	resolved, err := e.loadEnvFile(ctx, bootstrap)
	if err != nil {
		return nil, err
	}

	// the env file may override the cloud configuration itself
	cloud, err := ParseCloudConfig(resolved)
	if err != nil {
		return nil, fmt.Errorf("parse cloud config: %w", err)
	}

	resolver := secrets.NewResolver(e.config.SecretsDir, e.lazyStore(cloud), e.log)

	resolutions := make(map[string]secrets.Resolution)
	for _, key := range launch.SecretKeysFor(e.role) {
		spec := secrets.SpecFromEnvironment(resolved, key.Variable)

		res, err := resolver.Resolve(ctx, key.Name, spec)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", key.Name, err)
		}
		resolutions[key.Name] = res
	}

	spec, err := launch.Assemble(ctx, launch.Params{
		Role:        e.role,
		Binary:      e.config.Binary,
		Environment: resolved,
		Secrets:     resolutions,
		Defaults:    e.newDefaults(cloud.MetadataConfig(), e.log),
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("command assembled", zap.Strings("args", spec.Args()))

	return &Plan{
		Spec:        spec,
		Environment: resolved,
		Secrets:     resolutions,
	}, nil
}

// Run prepares the command, starts it and waits for readiness. When
// the process was started it is returned even if readiness failed.
func (e *Entrypoint) Run(ctx context.Context) (*supervisor.Process, error) {
	plan, err := e.Prepare(ctx)
	if err != nil {
		return nil, err
	}

	config := e.config.Supervisor
	if config.ReadyToken == "" {
		config.ReadyText = e.role.ReadyToken()
	}
	if e.output != nil {
		config.Output = e.output
	}

	p, err := supervisor.LaunchAndWait(ctx, plan.Spec, config, e.log)
	if p != nil {
		e.mu.Lock()
		e.process = p
		e.mu.Unlock()
	}

	return p, err
}

// Serve runs the process and supervises it until it exits or ctx is
// cancelled. It returns the exit code for the entrypoint: 1 when
// resolution or readiness failed, the child's code otherwise.
func (e *Entrypoint) Serve(ctx context.Context) int {
	stopTimeout := e.config.Supervisor.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = supervisor.DefaultStopTimeout
	}

	p, err := e.Run(ctx)
	if err != nil {
		e.log.Error("startup failed", zap.Error(err))

		// a cancelled wait still owns the child
		if p != nil && ctx.Err() != nil {
			p.Stop(stopTimeout)
		}
		return 1
	}

	return p.Supervise(ctx, stopTimeout).ExitCode()
}

// Process returns the supervised process, if one was started.
func (e *Entrypoint) Process() *supervisor.Process {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.process
}

// Status is a snapshot of the supervised process.
type Status struct {
	Role  string `json:"role"`
	State string `json:"state"`
	Pid   int    `json:"pid,omitempty"`
}

func (e *Entrypoint) Status() Status {
	status := Status{
		Role:  string(e.role),
		State: supervisor.StateNotStarted.String(),
	}

	if p := e.Process(); p != nil {
		status.State = p.State().String()
		status.Pid = p.Pid()
	}

	return status
}

func (e *Entrypoint) loadEnvFile(ctx context.Context, cloud CloudConfig) (environ.Environment, error) {
	if cloud.S3EnvFileObjectPath == "" {
		e.log.Debug("no env file configured")
		return e.env.Clone(), nil
	}

	store, err := e.newStore(ctx, cloud.StoreConfig(e.config.ObjectStore), e.log)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", envfile.ErrFetch, err)
	}

	return envfile.NewLoader(store, e.log).Load(ctx, e.env, cloud.S3EnvFileObjectPath)
}

// lazyStore defers creating the store until a secret is fetched.
func (e *Entrypoint) lazyStore(cloud CloudConfig) secrets.StoreFunc {
	var (
		once  sync.Once
		store objectstore.Store
		err   error
	)

	return func(ctx context.Context) (objectstore.Store, error) {
		once.Do(func() {
			store, err = e.newStore(ctx, cloud.StoreConfig(e.config.ObjectStore), e.log)
		})
		return store, err
	}
}
