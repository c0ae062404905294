package recursion

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nverra/recurdns/internal/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoalescer_DedupsConcurrentCallers(t *testing.T) {
	c := newCoalescer()
	key := coalesceKey{name: "example.com", qtype: uint16(dns.TypeA), class: 1}

	var calls atomic.Int32
	release := make(chan struct{})
	fn := func() (dns.Packet, error) {
		calls.Add(1)
		<-release
		return dns.Packet{Header: dns.Header{ID: 7}}, nil
	}

	const subscribers = 100
	var wg sync.WaitGroup
	results := make([]dns.Packet, subscribers)
	wg.Add(subscribers)
	for i := 0; i < subscribers; i++ {
		go func(i int) {
			defer wg.Done()
			pkt, err := c.do(context.Background(), key, fn)
			assert.NoError(t, err)
			results[i] = pkt
		}(i)
	}

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "only one in-flight call should execute fn")
	for _, pkt := range results {
		assert.Equal(t, uint16(7), pkt.Header.ID)
	}
}

func TestCoalescer_SequentialCallsRunIndependently(t *testing.T) {
	c := newCoalescer()
	key := coalesceKey{name: "example.com", qtype: uint16(dns.TypeA), class: 1}

	var calls atomic.Int32
	fn := func() (dns.Packet, error) {
		calls.Add(1)
		return dns.Packet{}, nil
	}

	_, err := c.do(context.Background(), key, fn)
	require.NoError(t, err)
	_, err = c.do(context.Background(), key, fn)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestCoalescer_ContextCancelWhileWaiting(t *testing.T) {
	c := newCoalescer()
	key := coalesceKey{name: "example.com", qtype: uint16(dns.TypeA), class: 1}

	release := make(chan struct{})
	fn := func() (dns.Packet, error) {
		<-release
		return dns.Packet{}, nil
	}

	go func() { _, _ = c.do(context.Background(), key, fn) }()
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.do(ctx, key, fn)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}
