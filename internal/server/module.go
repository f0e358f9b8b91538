package server

import (
	"context"

	"go.uber.org/fx"
)

// Module serves every route of the "routes" group on the configured
// address while the app is running.
func Module(config HttpConfig) fx.Option {
	return fx.Module("server",
		fx.Supply(config),
		fx.Provide(New),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(server *Server, lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// bind before returning so that start fails on a taken port
			listener, err := server.Listen(ctx)
			if err != nil {
				return err
			}
			go server.Serve(listener)
			return nil
		},
		OnStop: server.Shutdown,
	})
}
