package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nverra/recurdns/internal/awaketoken"
)

// connState is a single protocol's lifecycle on a MixedSocket.
type connState int

const (
	stateNone connState = iota
	stateEstablishing
	stateConnected
	stateBlocked
)

// connHandle is the live connection object produced by dialing one
// protocol. Exactly one of the fields is populated, matching proto.
type connHandle struct {
	udp    *udpConn
	stream *streamConn // TCP/TLS
	quic   *quicConn
}

func (h *connHandle) close() {
	switch {
	case h.udp != nil:
		h.udp.close()
	case h.stream != nil:
		h.stream.close()
	case h.quic != nil:
		h.quic.close()
	}
}

// establishResult is the payload handed through a SharedAwakeToken to every
// caller racing to dial the same protocol.
type establishResult struct {
	handle *connHandle
	err    error
}

// protoState is the per-protocol state machine slot on a MixedSocket: one
// RWMutex-guarded struct per UDP/TCP/TLS/QUIC so that establishing TLS, say,
// never blocks a concurrent UDP query on the same peer.
type protoState struct {
	mu           sync.RWMutex
	state        connState
	handle       *connHandle
	cancel       *awaketoken.AwakeToken
	establishing *awaketoken.SharedAwakeToken[*establishResult]

	sendMu sync.Mutex // serializes writes on stream-oriented transports

	respMu  sync.Mutex
	respMap map[uint16]chan []byte
}

func newProtoState() *protoState {
	return &protoState{respMap: make(map[uint16]chan []byte)}
}

// Config bundles the per-peer behavior knobs sourced from
// config.RecursiveConfig.
type Config struct {
	QueryTimeout   time.Duration
	UDPMaxDatagram int
	TLSServerName  string
	TLSConfig      *tls.Config
}

// MixedSocket multiplexes DNS queries to a single peer over whichever of
// UDP/TCP/TLS/QUIC is requested, demultiplexing responses by transaction ID.
type MixedSocket struct {
	peer PeerKey
	cfg  Config
	log  *slog.Logger

	states [4]*protoState

	recentSent     atomic.Bool
	recentReceived atomic.Bool
}

func newMixedSocket(peer PeerKey, cfg Config, log *slog.Logger) *MixedSocket {
	s := &MixedSocket{peer: peer, cfg: cfg, log: log}
	for i := range s.states {
		s.states[i] = newProtoState()
	}
	return s
}

func (s *MixedSocket) state(p Protocol) *protoState {
	return s.states[p]
}

// Query sends payload (a marshaled dns.Packet) to the peer over proto and
// returns the matching response, demultiplexed by transaction ID.
func (s *MixedSocket) Query(ctx context.Context, proto Protocol, payload []byte) ([]byte, error) {
	if proto == ProtocolUDP && len(payload) > s.udpMaxDatagram() {
		return nil, fmt.Errorf("%w: encoded query %d bytes exceeds udp_max_datagram", ErrSend, len(payload))
	}

	ps := s.state(proto)
	handle, cancel, err := s.ensureConnected(ctx, proto, ps)
	if err != nil {
		return nil, err
	}

	txid, respCh, release := s.registerResponse(ps)
	defer release()

	msg := patchTxID(payload, txid)

	if err := s.send(proto, handle, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSend, err)
	}
	s.recentSent.Store(true)

	select {
	case resp, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("%w: socket torn down while waiting for response", ErrShutdown)
		}
		s.recentReceived.Store(true)
		return resp, nil
	case <-cancel.Awoken().Done():
		return nil, fmt.Errorf("%w: connection reset while waiting for response", ErrReceive)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

func (s *MixedSocket) udpMaxDatagram() int {
	if s.cfg.UDPMaxDatagram <= 0 {
		return DefaultUDPMaxDatagram
	}
	return s.cfg.UDPMaxDatagram
}

// DefaultUDPMaxDatagram is the ceiling on an outgoing UDP query when the
// caller leaves Config.UDPMaxDatagram unset.
const DefaultUDPMaxDatagram = 4096

// registerResponse reserves a fresh transaction ID by randomized probing of
// the response map and installs a one-shot channel for it.
func (s *MixedSocket) registerResponse(ps *protoState) (uint16, chan []byte, func()) {
	ps.respMu.Lock()
	var id uint16
	for {
		id = uint16(rand.IntN(65536)) //nolint:gosec // transaction ID, not a secret
		if _, taken := ps.respMap[id]; !taken {
			break
		}
	}
	ch := make(chan []byte, 1)
	ps.respMap[id] = ch
	ps.respMu.Unlock()

	release := func() {
		ps.respMu.Lock()
		delete(ps.respMap, id)
		ps.respMu.Unlock()
	}
	return id, ch, release
}

// dispatch delivers resp to the registered waiter for its transaction ID, if
// any. Called from reader goroutines; never blocks.
func (ps *protoState) dispatch(id uint16, resp []byte) {
	ps.respMu.Lock()
	ch, ok := ps.respMap[id]
	if ok {
		delete(ps.respMap, id)
	}
	ps.respMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func patchTxID(payload []byte, id uint16) []byte {
	if len(payload) < 2 {
		return payload
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	out[0] = byte(id >> 8)
	out[1] = byte(id)
	return out
}

// ensureConnected returns a live handle and cancel token for proto,
// dialing if necessary. Implements check-under-read, transition-under-write,
// re-check-under-write.
func (s *MixedSocket) ensureConnected(ctx context.Context, proto Protocol, ps *protoState) (*connHandle, *awaketoken.AwakeToken, error) {
	ps.mu.RLock()
	switch ps.state {
	case stateConnected:
		h, c := ps.handle, ps.cancel
		ps.mu.RUnlock()
		return h, c, nil
	case stateBlocked:
		ps.mu.RUnlock()
		return nil, nil, ErrDisabled
	case stateEstablishing:
		shared := ps.establishing
		ps.mu.RUnlock()
		return s.awaitEstablish(ctx, shared)
	}
	ps.mu.RUnlock()

	ps.mu.Lock()
	switch ps.state {
	case stateConnected:
		h, c := ps.handle, ps.cancel
		ps.mu.Unlock()
		return h, c, nil
	case stateBlocked:
		ps.mu.Unlock()
		return nil, nil, ErrDisabled
	case stateEstablishing:
		shared := ps.establishing
		ps.mu.Unlock()
		return s.awaitEstablish(ctx, shared)
	}

	result := &establishResult{}
	shared := awaketoken.NewSharedAwakeToken(result)
	ps.state = stateEstablishing
	ps.establishing = shared
	ps.mu.Unlock()

	handle, err := s.dial(ctx, proto)
	result.handle, result.err = handle, err

	var cancelTok *awaketoken.AwakeToken
	ps.mu.Lock()
	if err != nil {
		ps.state = stateNone
		ps.establishing = nil
	} else {
		ps.state = stateConnected
		ps.handle = handle
		ps.cancel = awaketoken.New()
		cancelTok = ps.cancel
		s.startReader(proto, ps, handle, cancelTok)
	}
	ps.mu.Unlock()
	shared.Awake()

	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInit, err)
	}
	return handle, cancelTok, nil
}

func (s *MixedSocket) awaitEstablish(ctx context.Context, shared *awaketoken.SharedAwakeToken[*establishResult]) (*connHandle, *awaketoken.AwakeToken, error) {
	if err := shared.Token().Awoken().Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInit, err)
	}
	result := shared.Payload()
	if result.err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInit, result.err)
	}
	ps := s.state(s.protoOf(shared))
	ps.mu.RLock()
	cancel := ps.cancel
	ps.mu.RUnlock()
	return result.handle, cancel, nil
}

// protoOf recovers which protocol a shared establish token belongs to. Since
// each protoState owns exactly one live establishing token at a time, this
// is a small linear scan rather than threading proto through every caller.
func (s *MixedSocket) protoOf(shared *awaketoken.SharedAwakeToken[*establishResult]) Protocol {
	for i, ps := range s.states {
		ps.mu.RLock()
		match := ps.establishing == shared
		ps.mu.RUnlock()
		if match {
			return Protocol(i)
		}
	}
	return ProtocolUDP
}

func (s *MixedSocket) dial(ctx context.Context, proto Protocol) (*connHandle, error) {
	timeout := s.cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch proto {
	case ProtocolUDP:
		c, err := dialUDP(dialCtx, s.peer)
		if err != nil {
			return nil, err
		}
		return &connHandle{udp: c}, nil
	case ProtocolTCP:
		c, err := dialStream(dialCtx, s.peer, nil)
		if err != nil {
			return nil, err
		}
		return &connHandle{stream: c}, nil
	case ProtocolTLS:
		tlsCfg := s.tlsConfig()
		c, err := dialStream(dialCtx, s.peer, tlsCfg)
		if err != nil {
			return nil, err
		}
		return &connHandle{stream: c}, nil
	case ProtocolQUIC:
		c, err := dialQUIC(dialCtx, s.peer, s.tlsConfig())
		if err != nil {
			return nil, err
		}
		return &connHandle{quic: c}, nil
	default:
		return nil, fmt.Errorf("unknown protocol %v", proto)
	}
}

func (s *MixedSocket) tlsConfig() *tls.Config {
	if s.cfg.TLSConfig != nil {
		return s.cfg.TLSConfig.Clone()
	}
	name := s.cfg.TLSServerName
	if name == "" {
		name = s.peer.ServerName
	}
	return &tls.Config{ServerName: name, MinVersion: tls.VersionTLS12}
}

func (s *MixedSocket) send(proto Protocol, h *connHandle, msg []byte) error {
	ps := s.state(proto)
	switch proto {
	case ProtocolUDP:
		return h.udp.send(msg)
	case ProtocolTCP, ProtocolTLS:
		ps.sendMu.Lock()
		defer ps.sendMu.Unlock()
		return h.stream.sendFramed(msg)
	case ProtocolQUIC:
		// Each QUIC query owns its stream; run it in the background so the
		// caller's select in Query can still race it against cancellation
		// and the context deadline instead of blocking here.
		go func() {
			if err := h.quic.queryStream(msg, func(resp []byte) {
				id := uint16(resp[0])<<8 | uint16(resp[1])
				ps.dispatch(id, resp)
			}); err != nil {
				s.log.Warn("transport: quic stream query failed", "peer", s.peer, "err", err)
			}
		}()
		return nil
	default:
		return fmt.Errorf("unknown protocol %v", proto)
	}
}

// startReader launches the background goroutine that demultiplexes incoming
// frames by transaction ID. QUIC has no shared reader: each query owns its
// stream and reads its own response inline (see send/queryStream).
func (s *MixedSocket) startReader(proto Protocol, ps *protoState, h *connHandle, cancel *awaketoken.AwakeToken) {
	switch proto {
	case ProtocolUDP:
		go s.readUDP(ps, h.udp, cancel)
	case ProtocolTCP, ProtocolTLS:
		go s.readStream(ps, h.stream, cancel)
	case ProtocolQUIC:
		// no-op: per-stream reads happen synchronously in queryStream.
	}
}

func (s *MixedSocket) readUDP(ps *protoState, c *udpConn, cancel *awaketoken.AwakeToken) {
	for {
		buf, err := c.receive()
		if err != nil {
			if isFatal(err) {
				s.teardown(ProtocolUDP, ps, cancel)
				return
			}
			s.log.Warn("transport: non-fatal udp read error", "peer", s.peer, "err", err)
			continue
		}
		if len(buf) < 2 {
			continue
		}
		id := uint16(buf[0])<<8 | uint16(buf[1])
		ps.dispatch(id, buf)
	}
}

func (s *MixedSocket) readStream(ps *protoState, c *streamConn, cancel *awaketoken.AwakeToken) {
	for {
		buf, err := c.receiveFramed()
		if err != nil {
			if isFatal(err) {
				s.teardown(c.proto(), ps, cancel)
				return
			}
			s.log.Warn("transport: non-fatal stream read error", "peer", s.peer, "err", err)
			continue
		}
		if len(buf) < 2 {
			continue
		}
		id := uint16(buf[0])<<8 | uint16(buf[1])
		ps.dispatch(id, buf)
	}
}

func (s *MixedSocket) teardown(proto Protocol, ps *protoState, cancel *awaketoken.AwakeToken) {
	ps.mu.Lock()
	if ps.cancel == cancel && ps.state == stateConnected {
		h := ps.handle
		ps.state = stateNone
		ps.handle = nil
		ps.establishing = nil
		ps.mu.Unlock()
		if h != nil {
			h.close()
		}
		cancel.Awake()
		return
	}
	ps.mu.Unlock()
}

// Shutdown tears down every connected protocol, returning each to None. A
// subsequent query re-establishes the connection.
func (s *MixedSocket) Shutdown() {
	for proto, ps := range s.states {
		ps.mu.RLock()
		state, cancel := ps.state, ps.cancel
		ps.mu.RUnlock()
		if state == stateConnected {
			s.teardown(Protocol(proto), ps, cancel)
		}
	}
}

// Disable transitions every protocol to Blocked, cancelling any connected
// ones so in-flight queries fail promptly with ErrDisabled.
func (s *MixedSocket) Disable() {
	for _, ps := range s.states {
		ps.mu.Lock()
		h, cancel := ps.handle, ps.cancel
		ps.state = stateBlocked
		ps.handle = nil
		ps.establishing = nil
		ps.mu.Unlock()
		if h != nil {
			h.close()
		}
		if cancel != nil {
			cancel.Awake()
		}
	}
}

// Enable demotes every Blocked protocol back to None.
func (s *MixedSocket) Enable() {
	for _, ps := range s.states {
		ps.mu.Lock()
		if ps.state == stateBlocked {
			ps.state = stateNone
		}
		ps.mu.Unlock()
	}
}

// Peer returns the peer this socket communicates with.
func (s *MixedSocket) Peer() PeerKey { return s.peer }

// consumeActivity reads and clears the activity counters, returning whether
// either fired since the last call. Used by the manager's GC loop.
func (s *MixedSocket) consumeActivity() bool {
	sent := s.recentSent.CompareAndSwap(true, false)
	recv := s.recentReceived.CompareAndSwap(true, false)
	return sent || recv
}
