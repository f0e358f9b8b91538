package conf

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/infrablocks/concourse-aws-entrypoint/util/cliflags"
)

const delim = "."

// DefaultConfig is a flat map of default values, keyed by the
// dot-delimited config path.
type DefaultConfig map[string]any

type ParseOptions struct {
	// Cli is the cli.Context from urfave/cli
	Cli *cli.Context

	// CliMap maps cli flag names to config keys. Unmapped flags use
	// their name with - replaced by _.
	CliMap map[string]string

	// Defaults is a map of default values
	Defaults DefaultConfig

	// EnvPrefix selects the env vars to load. It is removed from the
	// key, and __ separates nested keys.
	EnvPrefix string

	// Environ replaces the process environment as the env var
	// source. It is used to parse config out of an environment
	// that has been assembled in memory.
	Environ map[string]string

	// FileName is the name of a JSON configuration file to load
	FileName string

	// Log is the logger to use
	Log *zap.Logger
}

// layer is one config source. Later layers override earlier ones.
type layer struct {
	name     string
	provider koanf.Provider
	parser   koanf.Parser
}

// Parse loads defaults, the config file, the environment and the cli
// flags, in that order, and decodes the result into C using the conf
// struct tag.
func Parse[C any](opt ParseOptions) (C, error) {
	var config C

	log := opt.Log
	if log == nil {
		log = zap.NewNop()
	}

	k := koanf.New(delim)

	for _, l := range opt.layers() {
		if err := k.Load(l.provider, l.parser); err != nil {
			log.Error("error loading config", zap.String("layer", l.name), zap.Error(err))
			return config, fmt.Errorf("load %s: %w", l.name, err)
		}
	}

	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{Tag: "conf"}); err != nil {
		log.Error("error unmarshalling config", zap.Error(err))
		return config, err
	}

	return config, nil
}

func (opt ParseOptions) layers() []layer {
	var layers []layer

	if opt.Defaults != nil {
		layers = append(layers, layer{name: "defaults", provider: confmap.Provider(opt.Defaults, delim)})
	}

	if opt.FileName != "" {
		layers = append(layers, layer{name: "file " + opt.FileName, provider: file.Provider(opt.FileName), parser: json.Parser()})
	}

	envKey := func(s string) string {
		return envToKey(s, opt.EnvPrefix)
	}

	if opt.Environ != nil {
		layers = append(layers, layer{name: "environment", provider: confmap.Provider(filterEnviron(opt.Environ, opt.EnvPrefix, envKey), delim)})
	} else {
		layers = append(layers, layer{name: "env vars", provider: env.Provider(opt.EnvPrefix, delim, envKey)})
	}

	if opt.Cli != nil {
		layers = append(layers, layer{name: "cli flags", provider: cliflags.Provider(opt.Cli, delim, opt.flagToKey)})
	}

	return layers
}

func (opt ParseOptions) flagToKey(s string) string {
	if name, ok := opt.CliMap[s]; ok {
		return name
	}

	return strings.ReplaceAll(strings.ToLower(s), "-", "_")
}

// filterEnviron selects and renames the variables of environ the same
// way the env provider does for the process environment.
func filterEnviron(environ map[string]string, prefix string, key func(string) string) map[string]any {
	mp := make(map[string]any, len(environ))
	for name, value := range environ {
		if strings.HasPrefix(name, prefix) {
			mp[key(name)] = value
		}
	}
	return mp
}

func envToKey(s, prefix string) string {
	s = strings.TrimPrefix(s, prefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", delim)
}
