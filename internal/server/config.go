package server

import (
	"net"
	"strconv"
)

type HttpConfig struct {
	// Host is the interface to listen on
	Host string `conf:"host"`

	// Port is the port to listen on. Zero disables the server.
	Port int `conf:"port"`

	// H2c enables HTTP/2 cleartext upgrades
	H2c bool `conf:"h2c"`
}

// Enabled reports whether a port is configured.
func (c HttpConfig) Enabled() bool {
	return c.Port > 0
}

func (c HttpConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
