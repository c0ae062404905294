package transport

import (
	"fmt"
	"net/netip"
)

// Protocol identifies one of the wire transports a MixedSocket can use to
// reach a peer.
type Protocol int

const (
	ProtocolUDP Protocol = iota
	ProtocolTCP
	ProtocolTLS
	ProtocolQUIC
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUDP:
		return "udp"
	case ProtocolTCP:
		return "tcp"
	case ProtocolTLS:
		return "tls"
	case ProtocolQUIC:
		return "quic"
	default:
		return "unknown"
	}
}

// PeerKey identifies one upstream nameserver in the socket registry. TLS and
// QUIC peers are additionally distinguished by the server name used for
// certificate verification, since the same IP can serve different
// certificates depending on SNI.
type PeerKey struct {
	Addr       netip.Addr
	Port       uint16
	ServerName string // only set for TLS/QUIC peers
}

func (k PeerKey) String() string {
	if k.ServerName != "" {
		return fmt.Sprintf("%s:%d@%s", k.Addr, k.Port, k.ServerName)
	}
	return fmt.Sprintf("%s:%d", k.Addr, k.Port)
}

// NetAddr formats the peer as a host:port string suitable for net.Dial.
func (k PeerKey) NetAddr() string {
	return fmt.Sprintf("%s:%d", k.Addr, k.Port)
}
