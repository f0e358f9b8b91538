package shell

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Shell runs an fx application until it is shut down, either by an
// OS signal or by a module calling fx.Shutdowner, and reports the
// shutdown exit code as an *ExitError.
type Shell struct {
	log     *zap.Logger
	options []fx.Option
}

func New(log *zap.Logger, options ...fx.Option) *Shell {
	return &Shell{
		log:     log,
		options: options,
	}
}

// Run blocks until the application has stopped. The returned error is
// always an *ExitError; start and stop failures exit with 1.
func (s *Shell) Run(ctx context.Context, options ...fx.Option) error {
	defer s.log.Sync()

	// modules observe cancellation of appCtx once Run returns
	appCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	app := s.newApp(appCtx, options...)
	if err := app.Err(); err != nil {
		s.log.Error("invalid application graph", zap.Error(err))
		return NewExitError(1)
	}

	if err := s.start(ctx, app); err != nil {
		return NewExitError(1)
	}

	sig := <-app.Wait()

	s.log.Debug("shutting down",
		zap.Any("signal", sig.Signal),
		zap.Int("exit_code", sig.ExitCode),
	)

	if err := s.stop(ctx, app); err != nil {
		return NewExitError(1)
	}

	return NewExitError(sig.ExitCode)
}

func (s *Shell) start(ctx context.Context, app *fx.App) error {
	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()

	err := app.Start(startCtx)
	if err != nil {
		s.log.Error("start failed", zap.Error(err))
	}

	return err
}

func (s *Shell) stop(ctx context.Context, app *fx.App) error {
	// stop even if ctx is already done, the child must be reaped
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.StopTimeout())
	defer cancel()

	err := app.Stop(stopCtx)
	if err != nil {
		s.log.Error("stop failed", zap.Error(err))
	}

	return err
}

func (s *Shell) newApp(ctx context.Context, options ...fx.Option) *fx.App {
	return fx.New(
		fx.Supply(fx.Annotate(ctx, fx.As(new(context.Context)))),
		fx.Supply(s.log),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: s.log.Named("fx")}
		}),
		fx.Options(s.options...),
		fx.Options(options...),
	)
}
