package recursion

import (
	"context"
	"sync"

	"github.com/nverra/recurdns/internal/dns"
)

// coalesceKey identifies one network-backed step worth deduplicating: a
// question sent to whatever nameserver set currently governs it.
type coalesceKey struct {
	name  string
	qtype uint16
	class uint16
}

// call is a single in-flight network step with N waiting subscribers. Like
// ForwardingResolver's inflightCall, closing done wakes every goroutine
// blocked on it — a channel close is already a broadcast to all receivers,
// so no separate subscriber list is needed to fan out to N waiters.
type call struct {
	done chan struct{}
	resp dns.Packet
	err  error
}

// coalescer deduplicates concurrent identical NS-query steps so only one
// network round-trip happens per question per instant, generalizing
// ForwardingResolver's singleflight pattern from the whole-resolution case to
// every step of the delegation walk.
type coalescer struct {
	mu       sync.Mutex
	inflight map[coalesceKey]*call
}

func newCoalescer() *coalescer {
	return &coalescer{inflight: map[coalesceKey]*call{}}
}

// do runs fn at most once per concurrently-outstanding key; all callers
// racing on the same key observe the same result. fn errors are treated as
// part of the shared result (the caller decides whether they're recoverable);
// coalescing itself never retries.
func (c *coalescer) do(ctx context.Context, key coalesceKey, fn func() (dns.Packet, error)) (dns.Packet, error) {
	c.mu.Lock()
	if existing := c.inflight[key]; existing != nil {
		c.mu.Unlock()
		select {
		case <-existing.done:
			return existing.resp, existing.err
		case <-ctx.Done():
			return dns.Packet{}, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	cl.resp, cl.err = fn()
	close(cl.done)

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()

	return cl.resp, cl.err
}

// inFlight reports how many distinct steps currently have a network
// round-trip outstanding. Used by Resolver.Stats for introspection.
func (c *coalescer) inFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}
