package transport

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"io"
	"time"

	"github.com/nverra/recurdns/internal/helpers"
	"github.com/quic-go/quic-go"
)

// doqALPN is the ALPN token for DNS-over-QUIC (RFC 9250 section 4.1.1).
var doqALPN = []string{"doq"}

// quicConn wraps a single QUIC connection to a peer. Every query opens its
// own bidirectional stream (RFC 9250 section 4.2), so there is no shared
// response map or reader goroutine the way UDP/TCP/TLS need one.
type quicConn struct {
	conn *quic.Conn
}

func dialQUIC(ctx context.Context, peer PeerKey, tlsCfg *tls.Config) (*quicConn, error) {
	cfg := tlsCfg.Clone()
	if len(cfg.NextProtos) == 0 {
		cfg.NextProtos = doqALPN
	}
	conn, err := quic.DialAddr(ctx, peer.NetAddr(), cfg, nil)
	if err != nil {
		return nil, err
	}
	return &quicConn{conn: conn}, nil
}

// queryStream opens a new stream, writes the length-prefixed query, signals
// FIN, reads the length-prefixed response, and hands it to deliver. Runs
// synchronously in the caller's goroutine: the caller (MixedSocket.send) is
// itself invoked from Query, so the blocking read here is what Query's
// select is waiting to unblock via the channel deliver writes to.
func (c *quicConn) queryStream(msg []byte, deliver func([]byte)) error {
	stream, err := c.conn.OpenStreamSync(context.Background())
	if err != nil {
		return err
	}
	defer stream.Close()

	_ = stream.SetDeadline(time.Now().Add(5 * time.Second))

	var prefix [2]byte
	binary.BigEndian.PutUint16(prefix[:], helpers.ClampIntToUint16(len(msg)))
	if _, err := stream.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := stream.Write(msg); err != nil {
		return err
	}
	// RFC 9250 4.2: the client indicates query completion via stream FIN.
	if err := stream.Close(); err != nil {
		return err
	}

	if _, err := io.ReadFull(stream, prefix[:]); err != nil {
		return err
	}
	n := int(binary.BigEndian.Uint16(prefix[:]))
	buf := make([]byte, n)
	if _, err := io.ReadFull(stream, buf); err != nil {
		return err
	}
	deliver(buf)
	return nil
}

func (c *quicConn) close() {
	_ = c.conn.CloseWithError(0, "")
}
