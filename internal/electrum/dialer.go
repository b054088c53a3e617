package electrum

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// Dialer opens connections to Electrum servers.
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint) (net.Conn, error)
}

// NetDialer dials plain TCP or TLS depending on the endpoint.
type NetDialer struct {
	Timeout     time.Duration
	InsecureTLS bool
}

// Dial implements Dialer.
func (d *NetDialer) Dial(ctx context.Context, ep Endpoint) (net.Conn, error) {
	nd := &net.Dialer{Timeout: d.Timeout}
	if !ep.TLS {
		return nd.DialContext(ctx, "tcp", ep.Addr())
	}
	td := &tls.Dialer{
		NetDialer: nd,
		Config: &tls.Config{
			ServerName:         ep.Host,
			InsecureSkipVerify: d.InsecureTLS, //nolint:gosec // public Electrum servers are mostly self-signed
			MinVersion:         tls.VersionTLS12,
		},
	}
	return td.DialContext(ctx, "tcp", ep.Addr())
}
