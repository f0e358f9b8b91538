package conf

import (
	"context"
	"errors"
	"fmt"
)

var ErrConfigNotFound = errors.New("config not found in context")

// configKey is keyed by the config type, so a context can carry one
// config of each type.
type configKey[C any] struct{}

func ContextWithConfig[C any](ctx context.Context, config C) context.Context {
	return context.WithValue(ctx, configKey[C]{}, config)
}

func GetConfigFromContext[C any](ctx context.Context) (C, error) {
	if config, ok := ctx.Value(configKey[C]{}).(C); ok {
		return config, nil
	}

	var zero C
	return zero, fmt.Errorf("%w: %T", ErrConfigNotFound, zero)
}
