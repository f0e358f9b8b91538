package entrypoint

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/launch"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/server"
	"github.com/infrablocks/concourse-aws-entrypoint/util/logging"
)

// Module runs the entrypoint for role as part of the app lifecycle.
// The app shuts down with the exit code of the child. A health
// endpoint is served when config.Health is enabled.
func Module(role launch.Role, config Config, opts ...Option) fx.Option {
	options := []fx.Option{
		// provide entrypoint
		fx.Provide(func(log *zap.Logger) *Entrypoint {
			return New(role, config, log, opts...)
		}),

		// run entrypoint
		fx.Invoke(registerLifecycle),
	}

	if config.Health.Enabled() {
		options = append(options, fx.Module(
			"health",
			// rename logger for module
			logging.DecorateLogger("health"),
			// provide handler
			fx.Provide(NewHealthHandler),
			// provide route
			fx.Provide(NewHealthRoute),
			// provide server
			server.Module(config.Health),
		))
	}

	return fx.Module("entrypoint", options...)
}

type LifecycleParams struct {
	fx.In

	// Context is the app context
	Context context.Context

	Entrypoint *Entrypoint
	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Log        *zap.Logger
}

func registerLifecycle(params LifecycleParams) {
	ctx, cancel := context.WithCancel(params.Context)
	done := make(chan struct{})

	params.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// readiness may take longer than the start timeout
			go func() {
				defer close(done)

				code := params.Entrypoint.Serve(ctx)

				if err := params.Shutdowner.Shutdown(fx.ExitCode(code)); err != nil {
					params.Log.Debug("shutdown failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()

			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
