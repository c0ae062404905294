package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/nverra/recurdns/internal/helpers"
)

// streamConn wraps a TCP or TLS-over-TCP connection with the 2-byte
// length-prefixed DNS framing shared by both (RFC 1035 section 4.2.2).
type streamConn struct {
	conn  net.Conn
	isTLS bool
}

func dialStream(ctx context.Context, peer PeerKey, tlsCfg *tls.Config) (*streamConn, error) {
	d := net.Dialer{}
	c, err := d.DialContext(ctx, "tcp", peer.NetAddr())
	if err != nil {
		return nil, err
	}
	if tlsCfg == nil {
		return &streamConn{conn: c}, nil
	}

	tc := tls.Client(c, tlsCfg)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return &streamConn{conn: tc, isTLS: true}, nil
}

func (c *streamConn) proto() Protocol {
	if c.isTLS {
		return ProtocolTLS
	}
	return ProtocolTCP
}

func (c *streamConn) sendFramed(msg []byte) error {
	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], helpers.ClampIntToUint16(len(msg)))
	if _, err := c.conn.Write(prefix[:]); err != nil {
		return err
	}
	_, err := c.conn.Write(msg)
	return err
}

func (c *streamConn) receiveFramed() ([]byte, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(c.conn, prefix[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(prefix[:]))
	if n == 0 {
		return nil, fmt.Errorf("transport: zero-length frame")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (c *streamConn) close() {
	_ = c.conn.Close()
}
