// Package cliflags implements a koanf.Provider over the flags of a
// cli.Context. Only flags that were set, on the command line or
// through their env vars, are provided, so unset flags never shadow
// lower config layers.
package cliflags

import (
	"errors"

	"github.com/knadh/koanf/maps"
	"github.com/urfave/cli/v2"
)

// CLIFlags provides the set flags of a cli.Context as a config map.
type CLIFlags struct {
	mp map[string]any
}

// Provider collects the set flags of ctx and its parent contexts. cb
// maps a flag name to its config key. If delim is set, keys are
// unflattened on it.
func Provider(ctx *cli.Context, delim string, cb func(string) string) *CLIFlags {
	mp := make(map[string]any)

	// walk from the root so command flags override app flags
	lineage := ctx.Lineage()
	for i := len(lineage) - 1; i >= 0; i-- {
		c := lineage[i]

		for _, flag := range visibleFlags(c) {
			name := flag.Names()[0]
			if !c.IsSet(name) {
				continue
			}

			value, ok := flagValue(c, flag)
			if !ok {
				continue
			}

			key := name
			if cb != nil {
				key = cb(name)
			}
			mp[key] = value
		}
	}

	if delim != "" {
		mp = maps.Unflatten(mp, delim)
	}

	return &CLIFlags{mp: mp}
}

// ReadBytes is not supported by the cli provider.
func (e *CLIFlags) ReadBytes() ([]byte, error) {
	return nil, errors.New("cli provider does not support this method")
}

// Read returns the collected flag values.
func (e *CLIFlags) Read() (map[string]any, error) {
	return e.mp, nil
}

func visibleFlags(ctx *cli.Context) []cli.Flag {
	if ctx.Command != nil && ctx.Command.Name != "" {
		return ctx.Command.VisibleFlags()
	}
	if ctx.App != nil {
		return ctx.App.VisibleFlags()
	}
	return nil
}

func flagValue(ctx *cli.Context, flag cli.Flag) (any, bool) {
	name := flag.Names()[0]

	switch flag.(type) {
	case *cli.StringFlag:
		return ctx.String(name), true
	case *cli.PathFlag:
		return ctx.Path(name), true
	case *cli.StringSliceFlag:
		return ctx.StringSlice(name), true
	case *cli.BoolFlag:
		return ctx.Bool(name), true
	case *cli.IntFlag:
		return ctx.Int(name), true
	case *cli.IntSliceFlag:
		return ctx.IntSlice(name), true
	case *cli.Int64Flag:
		return ctx.Int64(name), true
	case *cli.Int64SliceFlag:
		return ctx.Int64Slice(name), true
	case *cli.Float64Flag:
		return ctx.Float64(name), true
	case *cli.Float64SliceFlag:
		return ctx.Float64Slice(name), true
	case *cli.DurationFlag:
		return ctx.Duration(name), true
	default:
		return nil, false
	}
}
