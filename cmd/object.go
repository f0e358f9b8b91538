package cmd

import (
	"errors"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/infrablocks/concourse-aws-entrypoint/entrypoint"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/environ"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/objectstore"
	"github.com/infrablocks/concourse-aws-entrypoint/util/logging"
)

var (
	objectCmdDescription = `The object commands read and write objects in the object store
configured by the AWS_S3_* variables, e.g. to seed env files and
secrets for a node.`
	objectCmd = &cli.Command{
		Name:        "object",
		Usage:       "Read and write objects in the object store.",
		Description: objectCmdDescription,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "object-store",
				Usage:   "the object store client. Options: s3, minio.",
				Value:   string(objectstore.DriverS3),
				EnvVars: []string{"ENTRYPOINT_OBJECT_STORE"},
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "Write the content of an object to stdout or a file.",
				ArgsUsage: "s3://bucket/key",
				Action:    objectGetAction,
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "write the object to this file, with mode 0600.",
					},
				},
			},
			{
				Name:      "put",
				Usage:     "Upload a file, creating the bucket if needed.",
				ArgsUsage: "s3://bucket/key FILE",
				Action:    objectPutAction,
			},
		},
	}
)

func objectGetAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return errors.New("expected exactly one object path")
	}

	loc, err := objectstore.ParseLocation(ctx.Args().First())
	if err != nil {
		return err
	}

	store, log, err := newObjectStore(ctx)
	if err != nil {
		return err
	}

	data, err := store.Get(ctx.Context, loc)
	if err != nil {
		return err
	}

	output := ctx.Path("output")
	if output == "" {
		_, err := ctx.App.Writer.Write(data)
		return err
	}

	if err := os.WriteFile(output, data, 0o600); err != nil {
		return err
	}

	log.Info("object downloaded", zap.Stringer("object", loc), zap.String("file", output))

	return nil
}

func objectPutAction(ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return errors.New("expected an object path and a file")
	}

	loc, err := objectstore.ParseLocation(ctx.Args().Get(0))
	if err != nil {
		return err
	}

	data, err := readInput(ctx, ctx.Args().Get(1))
	if err != nil {
		return err
	}

	store, log, err := newObjectStore(ctx)
	if err != nil {
		return err
	}

	if err := store.Put(ctx.Context, loc, data); err != nil {
		return err
	}

	log.Info("object uploaded", zap.Stringer("object", loc), zap.Int("bytes", len(data)))

	return nil
}

// readInput reads name, or stdin when name is "-".
func readInput(ctx *cli.Context, name string) ([]byte, error) {
	if name == "-" {
		if ctx.App.Reader == nil {
			return nil, errors.New("no stdin available")
		}
		return io.ReadAll(ctx.App.Reader)
	}
	return os.ReadFile(name)
}

func newObjectStore(ctx *cli.Context) (objectstore.Store, *zap.Logger, error) {
	log, err := logging.LoggerFromContext(ctx.Context)
	if err != nil {
		return nil, nil, err
	}

	cloud, err := entrypoint.ParseCloudConfig(environ.FromOS())
	if err != nil {
		return nil, nil, err
	}

	driver := objectstore.Driver(ctx.String("object-store"))

	store, err := objectstore.New(ctx.Context, cloud.StoreConfig(driver), log)
	if err != nil {
		return nil, nil, err
	}

	return store, log.Named("object"), nil
}

func init() {
	rootApp.Commands = append(rootApp.Commands, objectCmd)
}
