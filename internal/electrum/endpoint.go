// Package electrum is a client for the Electrum JSON-RPC protocol spoken by
// the chain backend: newline-delimited JSON-RPC 2.0 over TCP or TLS.
package electrum

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is one Electrum server.
type Endpoint struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	TLS  bool   `json:"tls"`
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the endpoint in "ssl://host:port" or "tcp://host:port" form.
func (e Endpoint) String() string {
	scheme := "tcp"
	if e.TLS {
		scheme = "ssl"
	}
	return scheme + "://" + e.Addr()
}

// ParseEndpoint parses "ssl://host:port", "tls://host:port",
// "tcp://host:port" or a bare "host:port" (plain TCP).
func ParseEndpoint(s string) (Endpoint, error) {
	var ep Endpoint
	rest := strings.TrimSpace(s)
	if scheme, addr, ok := strings.Cut(rest, "://"); ok {
		switch strings.ToLower(scheme) {
		case "ssl", "tls":
			ep.TLS = true
		case "tcp":
		default:
			return Endpoint{}, fmt.Errorf("endpoint %q: unknown scheme %q", s, scheme)
		}
		rest = addr
	}
	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("endpoint %q: invalid port", s)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("endpoint %q: empty host", s)
	}
	ep.Host = host
	ep.Port = port
	return ep, nil
}

// ParseEndpoints parses a ranked list, keeping its order.
func ParseEndpoints(list []string) ([]Endpoint, error) {
	eps := make([]Endpoint, 0, len(list))
	for _, s := range list {
		ep, err := ParseEndpoint(s)
		if err != nil {
			return nil, err
		}
		eps = append(eps, ep)
	}
	return eps, nil
}
