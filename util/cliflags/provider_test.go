package cliflags_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/infrablocks/concourse-aws-entrypoint/util/cliflags"
)

func provide(t *testing.T, env map[string]string, args ...string) map[string]any {
	for key, value := range env {
		t.Setenv(key, value)
	}

	var mp map[string]any

	app := &cli.App{
		Name: "test",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level"},
		},
		Commands: []*cli.Command{{
			Name: "run",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "binary"},
				&cli.DurationFlag{Name: "ready-timeout", EnvVars: []string{"TEST_READY_TIMEOUT"}},
				&cli.IntFlag{Name: "health-port"},
				&cli.BoolFlag{Name: "dry-run"},
			},
			Action: func(ctx *cli.Context) error {
				var err error
				mp, err = cliflags.Provider(ctx, ".", func(s string) string {
					if s == "health-port" {
						return "health.port"
					}
					return strings.ReplaceAll(s, "-", "_")
				}).Read()
				return err
			},
		}},
	}

	require.NoError(t, app.Run(append([]string{"test"}, args...)))

	return mp
}

func TestProvider_OnlySetFlags(t *testing.T) {
	mp := provide(t, nil, "run", "--binary", "/bin/concourse")

	assert.Equal(t, map[string]any{"binary": "/bin/concourse"}, mp)
}

func TestProvider_TypesAndNesting(t *testing.T) {
	mp := provide(t, nil, "--log-level", "debug", "run", "--health-port", "8080", "--dry-run")

	assert.Equal(t, "debug", mp["log_level"])
	assert.Equal(t, true, mp["dry_run"])
	assert.Equal(t, map[string]any{"port": 8080}, mp["health"])
}

func TestProvider_EnvVars(t *testing.T) {
	mp := provide(t, map[string]string{"TEST_READY_TIMEOUT": "45s"}, "run")

	assert.Equal(t, 45*time.Second, mp["ready_timeout"])
}

func TestProvider_ReadBytes(t *testing.T) {
	_, err := (&cliflags.CLIFlags{}).ReadBytes()
	assert.Error(t, err)
}
