package logging

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NamedLogger returns a decorator that names the logger after the
// component it is handed to.
func NamedLogger(name string) func(log *zap.Logger) *zap.Logger {
	return func(log *zap.Logger) *zap.Logger {
		return log.Named(name)
	}
}

// DecorateLogger names the logger for every constructor within the
// enclosing fx.Module.
func DecorateLogger(name string) fx.Option {
	return fx.Decorate(NamedLogger(name))
}
