package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/infrablocks/concourse-aws-entrypoint/app"
	"github.com/infrablocks/concourse-aws-entrypoint/config"
	"github.com/infrablocks/concourse-aws-entrypoint/entrypoint"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/launch"
	"github.com/infrablocks/concourse-aws-entrypoint/util/conf"
	"github.com/infrablocks/concourse-aws-entrypoint/util/logging"
)

const configEnvPrefix = "ENTRYPOINT_"

var (
	nodeCmdDescription = `The %s command resolves the configuration of a concourse
%s node and launches it.

Configuration is read from the environment, extended by the env
file at AWS_S3_ENV_FILE_OBJECT_PATH. Secrets configured through a
*_FILE_OBJECT_PATH variable are fetched into the secrets directory.
Defaults that depend on the instance are read from the instance
metadata service.

The command blocks until concourse exits and exits with its code.
It fails if concourse does not log its readiness token in time.`

	nodeCliMap = map[string]string{
		"health-host": "health.host",
		"health-port": "health.port",
	}
)

// newNodeFlags returns the flags of the web and worker commands.
// Flags record whether they have been set, so each command gets its
// own instances.
func newNodeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "a JSON file with entrypoint configuration.",
			EnvVars: []string{"ENTRYPOINT_CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:     "binary",
			Usage:    "the path of the concourse binary.",
			Category: "concourse",
			EnvVars:  []string{"CONCOURSE_BINARY"},
		},
		&cli.StringFlag{
			Name:     "secrets-dir",
			Usage:    "the directory fetched secrets are written to.",
			Category: "concourse",
			EnvVars:  []string{"CONCOURSE_SECRETS_DIR"},
		},
		&cli.StringFlag{
			Name:     "object-store",
			Usage:    "the object store client. Options: s3, minio.",
			Category: "concourse",
			EnvVars:  []string{"ENTRYPOINT_OBJECT_STORE"},
		},
		&cli.StringFlag{
			Name:     "log-file",
			Usage:    "the file the output of concourse is written to.",
			Category: "supervisor",
			EnvVars:  []string{"ENTRYPOINT_LOG_FILE"},
		},
		&cli.StringFlag{
			Name:     "ready-token",
			Usage:    "the pattern that marks concourse as ready. Defaults to the token of the role.",
			Category: "supervisor",
			EnvVars:  []string{"ENTRYPOINT_READY_TOKEN"},
		},
		&cli.DurationFlag{
			Name:     "ready-timeout",
			Usage:    "the maximum time to wait for the ready token.",
			Category: "supervisor",
			EnvVars:  []string{"ENTRYPOINT_READY_TIMEOUT"},
		},
		&cli.DurationFlag{
			Name:     "poll-interval",
			Usage:    "the interval at which the log file is checked.",
			Category: "supervisor",
			EnvVars:  []string{"ENTRYPOINT_POLL_INTERVAL"},
		},
		&cli.DurationFlag{
			Name:     "stop-timeout",
			Usage:    "the grace period between SIGTERM and SIGKILL on shutdown.",
			Category: "supervisor",
			EnvVars:  []string{"ENTRYPOINT_STOP_TIMEOUT"},
		},
		&cli.StringFlag{
			Name:     "health-host",
			Usage:    "the host the health endpoint listens on.",
			Category: "health",
			EnvVars:  []string{"HEALTH_HOST"},
		},
		&cli.IntFlag{
			Name:     "health-port",
			Usage:    "the port the health endpoint listens on. 0 disables it.",
			Category: "health",
			EnvVars:  []string{"HEALTH_PORT"},
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "print the resolved command instead of running it.",
		},
	}
}

func newNodeCommand(role launch.Role, usage string) *cli.Command {
	return &cli.Command{
		Name:        string(role),
		Usage:       usage,
		Description: fmt.Sprintf(nodeCmdDescription, role, role),
		Action:      nodeAction(role),
		Flags:       newNodeFlags(),
	}
}

func nodeAction(role launch.Role) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		log, err := logging.LoggerFromContext(ctx.Context)
		if err != nil {
			return err
		}

		cfg, err := parseConfig(ctx)
		if err != nil {
			return err
		}

		if cfg.Entrypoint.DryRun {
			plan, err := entrypoint.New(role, cfg.Entrypoint, log).Prepare(ctx.Context)
			if err != nil {
				return err
			}
			return plan.Print(ctx.App.Writer)
		}

		// inject the config into the cli context
		ctx.Context = conf.ContextWithConfig(ctx.Context, cfg)

		app, err := app.New(ctx)
		if err != nil {
			return err
		}

		return app.Run(ctx.Context, entrypoint.Module(
			role,
			cfg.Entrypoint,
			entrypoint.WithOutput(ctx.App.Writer),
		))
	}
}

func parseConfig(ctx *cli.Context) (config.Config, error) {
	log := logging.LoggerOrNop(ctx.Context)

	file := ctx.String("config")
	if file != "" {
		if err := config.ValidateFile(file); err != nil {
			return config.Config{}, err
		}
	}

	return conf.Parse[config.Config](conf.ParseOptions{
		Cli:       ctx,
		CliMap:    nodeCliMap,
		Defaults:  config.DefaultConfig(),
		EnvPrefix: configEnvPrefix,
		FileName:  file,
		Log:       log,
	})
}

func init() {
	rootApp.Commands = append(rootApp.Commands,
		newNodeCommand(launch.RoleWeb, "Launch a concourse web node."),
		newNodeCommand(launch.RoleWorker, "Launch a concourse worker node."),
	)
}
