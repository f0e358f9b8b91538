// Package launch assembles the command line of the target binary from
// the resolved environment, resolved secrets and instance defaults.
package launch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/infrablocks/concourse-aws-entrypoint/internal/environ"
	"github.com/infrablocks/concourse-aws-entrypoint/internal/secrets"
)

// ErrMissingRequiredConfiguration is returned when a required key
// resolves to neither an override nor a default.
var ErrMissingRequiredConfiguration = errors.New("missing required configuration")

// MissingConfigurationError names the key that could not be resolved.
type MissingConfigurationError struct {
	Key      string
	Variable string
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s (set %s)", ErrMissingRequiredConfiguration, e.Key, e.Variable)
}

func (e *MissingConfigurationError) Is(target error) bool {
	return target == ErrMissingRequiredConfiguration
}

// Params are the inputs to Assemble.
type Params struct {
	// Role selects the subcommand.
	Role Role

	// Binary is the path of the target binary.
	Binary string

	// Environment is the resolved environment. It also seeds the
	// child environment.
	Environment environ.Environment

	// Secrets maps Key.Name to the resolution of each secret key.
	// Missing entries are treated as absent.
	Secrets map[string]secrets.Resolution

	// Defaults derives instance-specific defaults. It is only
	// consulted when a default that needs it is used.
	Defaults Defaults
}

// Spec is an assembled, immutable invocation of the target binary.
type Spec struct {
	role   Role
	binary string
	flags  []string
	values map[string]string
	env    environ.Environment
}

// Assemble builds the invocation for p.Role. For every key the value
// is the explicit override, then the resolved secret, then the
// derived default. Optional keys without a value are omitted.
func Assemble(ctx context.Context, p Params) (*Spec, error) {
	if _, err := ParseRole(string(p.Role)); err != nil {
		return nil, err
	}
	if p.Binary == "" {
		return nil, errors.New("no binary configured")
	}

	env := p.Environment.Clone()

	spec := &Spec{
		role:   p.Role,
		binary: p.Binary,
		values: map[string]string{},
	}

	for _, key := range KeysFor(p.Role) {
		if key.SkipToggle != "" && env.Truthy(key.SkipToggle) {
			if key.Delivery == DeliverEnv {
				delete(env, key.Variable)
			}
			continue
		}

		value, ok, err := resolveKey(ctx, key, p)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		if _, dup := spec.values[key.Flag]; dup {
			return nil, fmt.Errorf("duplicate flag --%s", key.Flag)
		}
		spec.values[key.Flag] = value

		switch key.Delivery {
		case DeliverEnv:
			env[key.Variable] = value
		default:
			spec.flags = append(spec.flags, "--"+key.Flag+"="+value)
		}
	}

	spec.env = env

	return spec, nil
}

func resolveKey(ctx context.Context, key Key, p Params) (string, bool, error) {
	if key.Secret {
		if res, ok := p.Secrets[key.Name]; ok && res.Present() {
			return res.Value, true, nil
		}
	} else if value, ok := p.Environment.Value(key.Variable); ok {
		return value, true, nil
	}

	if key.Default != nil {
		value, err := key.Default(ctx, p.Defaults)
		if err != nil {
			return "", false, fmt.Errorf("derive default for %s: %w", key.Name, err)
		}
		return value, true, nil
	}

	if key.Required {
		return "", false, &MissingConfigurationError{Key: key.Name, Variable: key.Variable}
	}

	return "", false, nil
}

// Role returns the selected role.
func (s *Spec) Role() Role {
	return s.role
}

// Binary returns the path of the target binary.
func (s *Spec) Binary() string {
	return s.binary
}

// Args returns the subcommand followed by the flags.
func (s *Spec) Args() []string {
	args := make([]string, 0, len(s.flags)+1)
	args = append(args, string(s.role))
	return append(args, s.flags...)
}

// Env returns the child environment.
func (s *Spec) Env() environ.Environment {
	return s.env.Clone()
}

// Value returns the value resolved for the given flag name, whether
// it is delivered as a flag or through the environment.
func (s *Spec) Value(flag string) (string, bool) {
	value, ok := s.values[flag]
	return value, ok
}

func (s *Spec) String() string {
	return strings.Join(append([]string{s.binary}, s.Args()...), " ")
}
