package app

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/infrablocks/concourse-aws-entrypoint/config"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/shell"
	"github.com/infrablocks/concourse-aws-entrypoint/util/conf"
	"github.com/infrablocks/concourse-aws-entrypoint/util/logging"
)

// New builds the shell that hosts a node command. The logger and the
// parsed config are taken from ctx.
func New(ctx *cli.Context) (*shell.Shell, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, err
	}

	config, err := conf.GetConfigFromContext[config.Config](ctx.Context)
	if err != nil {
		return nil, err
	}

	sharedModule := fx.Module(
		"shared",
		// modules depend on their own section only
		fx.Supply(config.Entrypoint),
	)

	return shell.New(log, sharedModule), nil
}
