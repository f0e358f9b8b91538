package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/shell"
	"github.com/infrablocks/concourse-aws-entrypoint/util/logging"
)

var (
	appName  = "concourse-entrypoint"
	appUsage = `A container entrypoint for concourse web and worker nodes on
AWS, resolving configuration from S3 and the instance metadata
service before launching concourse.`
	rootApp = &cli.App{
		Name:            appName,
		Usage:           appUsage,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			// general flags
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "set the log level. Options: debug, info, warn, error, panic, fatal.",
				EnvVars: []string{"LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "set the log format. Options: production, development.",
				Value:   logFormatProduction,
				EnvVars: []string{"LOG_FORMAT"},
			},
		},
		Before: func(ctx *cli.Context) error {
			log, err := newLogger(ctx.String("log-level"), ctx.String("log-format"))
			if err != nil {
				return err
			}

			ctx.Context = logging.ContextWithLogger(ctx.Context, log)

			return nil
		},
		After: func(ctx *cli.Context) error {
			// Sync fails on unsyncable outputs like a terminal
			_ = logging.LoggerOrNop(ctx.Context).Sync()
			return nil
		},
	}
)

func init() {
	cli.VersionFlag = &cli.BoolFlag{
		Name:               "version",
		Usage:              "print the version",
		DisableDefaultText: true,
	}
}

type ExecuteParams struct {
	Version  string
	Compiled time.Time
}

// Execute runs the command line and returns the exit code of the
// process.
func Execute(params ExecuteParams) int {
	rootApp.Version = params.Version
	rootApp.Compiled = params.Compiled

	return run(context.Background(), os.Args)
}

func run(ctx context.Context, args []string) int {
	err := rootApp.RunContext(ctx, args)

	code := shell.ExitCode(err)

	// the shell reports every exit as an error, including success
	if err != nil && !shell.IsExitError(err) {
		fmt.Fprintf(os.Stderr, "exit error: %s\n", err.Error())
	}

	return code
}
