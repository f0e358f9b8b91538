// Package environ holds the resolved process environment as an
// explicit value, so configuration can be layered without mutating
// the entrypoint's own environment.
package environ

import (
	"os"
	"sort"
	"strings"

	"github.com/infrablocks/concourse-aws-entrypoint/util"
)

// Environment maps variable names to values.
type Environment map[string]string

// FromOS returns the current process environment.
func FromOS() Environment {
	return FromList(os.Environ())
}

// FromList parses a list of KEY=VALUE entries, as returned by
// os.Environ. Entries without a separator are skipped. Later
// entries win.
func FromList(list []string) Environment {
	env := make(Environment, len(list))
	for _, entry := range list {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}

// Lookup returns the value of key and whether it is present.
func (e Environment) Lookup(key string) (string, bool) {
	value, ok := e[key]
	return value, ok
}

// Get returns the value of key, or the empty string.
func (e Environment) Get(key string) string {
	return e[key]
}

// Value returns the value of key if it is present and not empty.
func (e Environment) Value(key string) (string, bool) {
	value, ok := e[key]
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// Truthy reports whether key holds a truthy value.
func (e Environment) Truthy(key string) bool {
	return util.Truthy(e[key])
}

// Clone returns a copy of the environment.
func (e Environment) Clone() Environment {
	clone := make(Environment, len(e))
	for key, value := range e {
		clone[key] = value
	}
	return clone
}

// Merge returns a copy of the environment with every entry of
// overrides applied on top. The receiver is not modified.
func (e Environment) Merge(overrides map[string]string) Environment {
	merged := e.Clone()
	for key, value := range overrides {
		merged[key] = value
	}
	return merged
}

// Keys returns the sorted variable names.
func (e Environment) Keys() []string {
	keys := make([]string, 0, len(e))
	for key := range e {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// List returns the environment as sorted KEY=VALUE entries,
// suitable for exec.Cmd.Env.
func (e Environment) List() []string {
	list := make([]string, 0, len(e))
	for _, key := range e.Keys() {
		list = append(list, key+"="+e[key])
	}
	return list
}
