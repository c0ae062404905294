// Package transport manages the per-peer sockets used to exchange DNS
// messages with upstream servers over UDP, TCP, TLS, and QUIC.
//
// A MixedSocket multiplexes concurrent queries to one peer over whichever
// transports are enabled for it, keyed by wire-format transaction ID. A
// Manager owns the registry of MixedSockets and garbage-collects idle ones.
package transport

import "errors"

// Sentinel errors returned by socket operations. Callers use errors.Is to
// classify failures into retry-locally, try-another-peer, or give-up.
var (
	// ErrSocket is a general-purpose sentinel for callers outside this
	// package (e.g. internal/recursion) that need to wrap a socket-acquisition
	// failure without depending on which of the sentinels below caused it;
	// wrap it with fmt.Errorf("%w: ...", ErrSocket). Errors returned directly
	// from this package's own API use the more specific sentinels instead.
	ErrSocket = errors.New("transport: socket error")

	// ErrSend indicates the query could not be written to the transport.
	ErrSend = errors.New("transport: send failed")

	// ErrReceive indicates the transport closed or errored while waiting for
	// a response.
	ErrReceive = errors.New("transport: receive failed")

	// ErrTimeout indicates no response arrived before the query's deadline.
	ErrTimeout = errors.New("transport: query timed out")

	// ErrDisabled indicates the protocol was disabled for this peer, either
	// by configuration or after repeated failures.
	ErrDisabled = errors.New("transport: protocol disabled for peer")

	// ErrShutdown indicates the socket (or the manager) is shutting down and
	// will not accept new queries.
	ErrShutdown = errors.New("transport: socket shut down")

	// ErrInit indicates the underlying connection could not be established.
	ErrInit = errors.New("transport: connection initialization failed")

	// ErrUnsupportedFamily indicates a peer address family was disabled via
	// configuration (DisableIPv4 / DisableIPv6).
	ErrUnsupportedFamily = errors.New("transport: address family disabled")
)
