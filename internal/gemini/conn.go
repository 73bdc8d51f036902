package gemini

import (
	"crypto/x509"
	"net"
)

// ServerInfo is the minimal read-only view of the server a Connection
// holds a back-reference to. It is a plain, non-owning pointer — Go has
// no reference-cycle concerns here, unlike the reference implementation's
// garbage-collected back-reference from Connection to Server.
type ServerInfo interface {
	Port() int
}

// Connection represents one accepted, TLS-terminated client connection.
// It lives for exactly one request.
type Connection struct {
	// ID is a per-connection correlation identifier (uuid v4), attached to
	// every log line this connection produces. Never sent on the wire.
	ID string

	Server   ServerInfo
	PeerAddr net.Addr

	// PeerCert is the certificate presented by the client, if any. The
	// core protocol only surfaces it; verifying it against any policy is
	// a resource's concern, not the transport's.
	PeerCert *x509.Certificate
}

// PeerHost returns the host portion of PeerAddr, or "" if PeerAddr is nil.
// An address that can't be split (e.g. a non-TCP address) is returned
// whole.
func (c *Connection) PeerHost() string {
	if c.PeerAddr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(c.PeerAddr.String())
	if err != nil {
		return c.PeerAddr.String()
	}
	return host
}
