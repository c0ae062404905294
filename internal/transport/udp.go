package transport

import (
	"context"
	"net"
)

// udpConn wraps a connected UDP socket to one peer.
type udpConn struct {
	conn *net.UDPConn
}

func dialUDP(ctx context.Context, peer PeerKey) (*udpConn, error) {
	d := net.Dialer{}
	c, err := d.DialContext(ctx, "udp", peer.NetAddr())
	if err != nil {
		return nil, err
	}
	uc, ok := c.(*net.UDPConn)
	if !ok {
		_ = c.Close()
		return nil, net.UnknownNetworkError("udp")
	}
	return &udpConn{conn: uc}, nil
}

func (c *udpConn) send(msg []byte) error {
	_, err := c.conn.Write(msg)
	return err
}

func (c *udpConn) receive() ([]byte, error) {
	buf := make([]byte, DefaultUDPMaxDatagram)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n:n], nil
}

func (c *udpConn) close() {
	_ = c.conn.Close()
}
