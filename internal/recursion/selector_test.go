package recursion

import (
	"net/netip"
	"testing"

	"github.com/nverra/recurdns/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNSAddresses_OrderedAddressesInterleavesByDomain(t *testing.T) {
	n := newNSAddresses()
	n.addCached("a.example.com", netip.MustParseAddr("192.0.2.1"))
	n.addCached("a.example.com", netip.MustParseAddr("192.0.2.2"))
	n.addCached("a.example.com", netip.MustParseAddr("192.0.2.3"))
	n.addCached("b.example.com", netip.MustParseAddr("192.0.2.10"))

	got := n.orderedAddresses()
	want := []netip.Addr{
		netip.MustParseAddr("192.0.2.1"),
		netip.MustParseAddr("192.0.2.10"),
		netip.MustParseAddr("192.0.2.2"),
		netip.MustParseAddr("192.0.2.3"),
	}
	assert.Equal(t, want, got)
}

func TestNSAddresses_AddUncachedTracksDomainOnce(t *testing.T) {
	n := newNSAddresses()
	n.addUncached("ns1.example.com")
	n.addUncached("ns1.example.com")
	n.addUncached("ns2.example.com")

	assert.Equal(t, []string{"ns1.example.com", "ns2.example.com"}, n.order)
	assert.Equal(t, []string{"ns1.example.com", "ns2.example.com"}, n.uncached)
}

func TestFilterFamily(t *testing.T) {
	v4 := netip.MustParseAddr("192.0.2.1")
	v6 := netip.MustParseAddr("2001:db8::1")

	out, err := filterFamily([]netip.Addr{v4, v6}, false, false)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{v4, v6}, out)

	out, err = filterFamily([]netip.Addr{v4, v6}, true, false)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{v6}, out)

	out, err = filterFamily([]netip.Addr{v4, v6}, false, true)
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{v4}, out)

	_, err = filterFamily([]netip.Addr{v4}, true, true)
	assert.ErrorIs(t, err, transport.ErrUnsupportedFamily)
}
