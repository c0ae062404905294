package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultKeepAliveInterval is the manager's GC cadence when
	// Config.KeepAliveInterval is unset.
	DefaultKeepAliveInterval = 30 * time.Second
	// DefaultShutdownIdleCycles is the number of consecutive idle GC
	// cycles before a socket's live connections are shut down.
	DefaultShutdownIdleCycles = 3
	// DefaultDisableIdleCycles is the number of consecutive idle GC cycles
	// before a socket is disabled and evicted from the registry.
	DefaultDisableIdleCycles = 10
)

// ManagerConfig bundles the knobs a Manager needs beyond per-socket Config.
type ManagerConfig struct {
	Socket             Config
	KeepAliveInterval  time.Duration
	ShutdownIdleCycles int
	DisableIdleCycles  int
}

// entry pairs a managed socket with its GC bookkeeping.
type entry struct {
	socket     *MixedSocket
	idleCycles int
}

// Manager is the registry of per-peer MixedSockets and owns the
// garbage-collection loop that shuts down and eventually evicts idle peers.
type Manager struct {
	cfg ManagerConfig
	log *slog.Logger

	mu       sync.RWMutex
	sockets  map[PeerKey]*entry
	gcCancel context.CancelFunc
	gcDone   chan struct{}

	gcMu       sync.Mutex
	gcInterval time.Duration
}

// NewManager constructs a Manager and starts its GC loop. Call Close to stop
// the loop and release every managed socket.
func NewManager(cfg ManagerConfig, log *slog.Logger) *Manager {
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if cfg.ShutdownIdleCycles <= 0 {
		cfg.ShutdownIdleCycles = DefaultShutdownIdleCycles
	}
	if cfg.DisableIdleCycles <= 0 {
		cfg.DisableIdleCycles = DefaultDisableIdleCycles
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:        cfg,
		log:        log,
		sockets:    make(map[PeerKey]*entry),
		gcCancel:   cancel,
		gcDone:     make(chan struct{}),
		gcInterval: cfg.KeepAliveInterval,
	}
	go m.runGC(ctx)
	return m
}

// Get returns the existing socket for peer or inserts a new one.
func (m *Manager) Get(_ context.Context, peer PeerKey) (*MixedSocket, error) {
	m.mu.RLock()
	if e, ok := m.sockets[peer]; ok {
		m.mu.RUnlock()
		return e.socket, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sockets[peer]; ok {
		return e.socket, nil
	}
	sock := newMixedSocket(peer, m.cfg.Socket, m.log)
	m.sockets[peer] = &entry{socket: sock}
	return sock, nil
}

// GetAll resolves a socket per peer, in order, stopping on the first error.
func (m *Manager) GetAll(ctx context.Context, peers []PeerKey) ([]*MixedSocket, error) {
	out := make([]*MixedSocket, 0, len(peers))
	for _, p := range peers {
		s, err := m.Get(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// TryGet looks up a socket without creating one.
func (m *Manager) TryGet(peer PeerKey) (*MixedSocket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sockets[peer]
	if !ok {
		return nil, false
	}
	return e.socket, true
}

// ForEach synchronously visits every managed socket. Used by introspection
// endpoints; f must not call back into the Manager.
func (m *Manager) ForEach(f func(PeerKey, *MixedSocket)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, e := range m.sockets {
		f(k, e.socket)
	}
}

// Len reports how many peers currently have a registered socket, used by
// introspection endpoints to expose socket-manager counters.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sockets)
}

// SetKeepAlive reconfigures the GC cadence. The running timer is re-armed
// with the new duration rather than restarting the GC goroutine.
func (m *Manager) SetKeepAlive(d time.Duration) {
	if d <= 0 {
		return
	}
	m.gcMu.Lock()
	m.gcInterval = d
	m.gcMu.Unlock()
}

func (m *Manager) keepAliveInterval() time.Duration {
	m.gcMu.Lock()
	defer m.gcMu.Unlock()
	return m.gcInterval
}

// DropAll disables every managed socket concurrently and empties the
// registry.
func (m *Manager) DropAll() error {
	m.mu.Lock()
	sockets := make([]*MixedSocket, 0, len(m.sockets))
	for _, e := range m.sockets {
		sockets = append(sockets, e.socket)
	}
	m.sockets = make(map[PeerKey]*entry)
	m.mu.Unlock()

	var g errgroup.Group
	for _, s := range sockets {
		g.Go(func() error {
			s.Disable()
			return nil
		})
	}
	return g.Wait()
}

// Close stops the GC loop and drops every managed socket.
func (m *Manager) Close() error {
	m.gcCancel()
	<-m.gcDone
	return m.DropAll()
}

func (m *Manager) runGC(ctx context.Context) {
	defer close(m.gcDone)

	timer := time.NewTimer(m.keepAliveInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.sweep()
			timer.Reset(m.keepAliveInterval())
		}
	}
}

// sweep runs one GC pass: sockets with no activity since the last sweep get
// their idle counter incremented; past the shutdown threshold their
// transports are torn down, and past the disable threshold they're disabled
// and evicted entirely.
func (m *Manager) sweep() {
	m.mu.Lock()
	toEvict := make([]PeerKey, 0)
	toDisable := make([]*MixedSocket, 0)
	for peer, e := range m.sockets {
		if e.socket.consumeActivity() {
			e.idleCycles = 0
			continue
		}
		e.idleCycles++
		switch {
		case e.idleCycles >= m.cfg.DisableIdleCycles:
			toEvict = append(toEvict, peer)
			toDisable = append(toDisable, e.socket)
		case e.idleCycles >= m.cfg.ShutdownIdleCycles:
			e.socket.Shutdown()
		}
	}
	for _, peer := range toEvict {
		delete(m.sockets, peer)
	}
	m.mu.Unlock()

	for _, s := range toDisable {
		s.Disable()
		m.log.Info("transport: evicted idle peer", "peer", s.Peer())
	}
}
