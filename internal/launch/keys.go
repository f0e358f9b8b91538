package launch

import (
	"context"
	"errors"
	"fmt"
)

// Role selects the subcommand of the target binary.
type Role string

const (
	RoleWeb    Role = "web"
	RoleWorker Role = "worker"
)

// ParseRole parses web or worker.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleWeb, RoleWorker:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role %q: expected %s or %s", s, RoleWeb, RoleWorker)
	}
}

// ReadyToken returns the log token the binary prints once the role
// is operational.
func (r Role) ReadyToken() string {
	switch r {
	case RoleWeb:
		return "atc.listening"
	case RoleWorker:
		return "baggageclaim.listening"
	default:
		return ""
	}
}

// Delivery is how a resolved value reaches the target binary.
type Delivery int

const (
	// DeliverFlag renders the value as --flag=value.
	DeliverFlag Delivery = iota

	// DeliverEnv sets the value in the child environment.
	DeliverEnv
)

// Defaults supplies values derived from the running instance.
type Defaults interface {
	InstanceID(ctx context.Context) (string, error)
	LocalIPv4(ctx context.Context) (string, error)
}

// DefaultFunc derives a default value for a key.
type DefaultFunc func(ctx context.Context, defaults Defaults) (string, error)

// Key describes one tunable of the target binary.
type Key struct {
	// Name identifies the key, and names its materialized secret file.
	Name string

	// Variable is the explicit override. For secrets it is the
	// inline tier, and the prefix of the _FILE_PATH and
	// _FILE_OBJECT_PATH tiers.
	Variable string

	// Flag is the command line flag name, without dashes.
	Flag string

	// Roles lists the roles the key applies to.
	Roles []Role

	// Secret marks keys resolved through the secret tiers.
	Secret bool

	// Required fails assembly when no value resolves.
	Required bool

	// Default derives a value when no override is set.
	Default DefaultFunc

	// Delivery is how the value is passed on.
	Delivery Delivery

	// SkipToggle names a variable that, when truthy, suppresses
	// the key entirely.
	SkipToggle string
}

// AppliesTo reports whether the key is used by role.
func (k Key) AppliesTo(role Role) bool {
	for _, r := range k.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func literal(value string) DefaultFunc {
	return func(context.Context, Defaults) (string, error) {
		return value, nil
	}
}

var errNoDefaults = errors.New("no instance defaults available")

func instanceID(ctx context.Context, defaults Defaults) (string, error) {
	if defaults == nil {
		return "", errNoDefaults
	}
	return defaults.InstanceID(ctx)
}

func localIPv4(ctx context.Context, defaults Defaults) (string, error) {
	if defaults == nil {
		return "", errNoDefaults
	}
	return defaults.LocalIPv4(ctx)
}

var web = []Role{RoleWeb}
var worker = []Role{RoleWorker}

// Keys is the complete set of keys the entrypoint manages.
var Keys = []Key{
	{
		Name:     "postgres-host",
		Variable: "CONCOURSE_POSTGRES_HOST",
		Flag:     "postgres-host",
		Roles:    web,
		Required: true,
	},
	{
		Name:     "peer-address",
		Variable: "CONCOURSE_PEER_ADDRESS",
		Flag:     "peer-address",
		Roles:    web,
		Default:  localIPv4,
	},
	{
		Name:     "tsa-host-key",
		Variable: "CONCOURSE_TSA_HOST_KEY",
		Flag:     "tsa-host-key",
		Roles:    web,
		Secret:   true,
	},
	{
		Name:     "tsa-authorized-keys",
		Variable: "CONCOURSE_TSA_AUTHORIZED_KEYS",
		Flag:     "tsa-authorized-keys",
		Roles:    web,
		Secret:   true,
	},
	{
		Name:     "session-signing-key",
		Variable: "CONCOURSE_SESSION_SIGNING_KEY",
		Flag:     "session-signing-key",
		Roles:    web,
		Secret:   true,
	},
	{
		Name:     "name",
		Variable: "CONCOURSE_NAME",
		Flag:     "name",
		Roles:    worker,
		Default:  instanceID,
	},
	{
		Name:     "work-dir",
		Variable: "CONCOURSE_WORK_DIR",
		Flag:     "work-dir",
		Roles:    worker,
		Default:  literal("/var/opt/concourse"),
	},
	{
		Name:     "bind-ip",
		Variable: "CONCOURSE_BIND_IP",
		Flag:     "bind-ip",
		Roles:    worker,
		Default:  literal("0.0.0.0"),
	},
	{
		Name:     "baggageclaim-bind-ip",
		Variable: "CONCOURSE_BAGGAGECLAIM_BIND_IP",
		Flag:     "baggageclaim-bind-ip",
		Roles:    worker,
		Default:  literal("0.0.0.0"),
	},
	{
		Name:     "tsa-host",
		Variable: "CONCOURSE_TSA_HOST",
		Flag:     "tsa-host",
		Roles:    worker,
	},
	{
		Name:     "tsa-public-key",
		Variable: "CONCOURSE_TSA_PUBLIC_KEY",
		Flag:     "tsa-public-key",
		Roles:    worker,
		Secret:   true,
	},
	{
		Name:     "tsa-worker-private-key",
		Variable: "CONCOURSE_TSA_WORKER_PRIVATE_KEY",
		Flag:     "tsa-worker-private-key",
		Roles:    worker,
		Secret:   true,
	},
	{
		Name:       "garden-dns-server",
		Variable:   "CONCOURSE_GARDEN_DNS_SERVER",
		Flag:       "garden-dns-server",
		Roles:      worker,
		Default:    literal("169.254.169.253"),
		Delivery:   DeliverEnv,
		SkipToggle: "CONCOURSE_SKIP_GARDEN_DNS_SERVER",
	},
}

// KeysFor returns the keys that apply to role, in table order.
func KeysFor(role Role) []Key {
	keys := make([]Key, 0, len(Keys))
	for _, key := range Keys {
		if key.AppliesTo(role) {
			keys = append(keys, key)
		}
	}
	return keys
}

// SecretKeysFor returns the secret-bearing keys that apply to role.
func SecretKeysFor(role Role) []Key {
	keys := make([]Key, 0, len(Keys))
	for _, key := range KeysFor(role) {
		if key.Secret {
			keys = append(keys, key)
		}
	}
	return keys
}
