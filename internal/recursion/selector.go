package recursion

import (
	"net/netip"

	"github.com/nverra/recurdns/internal/transport"
)

// nsAddresses groups the addresses discovered for one delegation level by
// the NS domain they belong to, preserving the order NS records were seen
// so round-robin rotation is deterministic across identical inputs.
type nsAddresses struct {
	order    []string // NS domain names, in discovery order
	cached   map[string][]netip.Addr
	uncached []string // NS domains with no cached A/AAAA yet
}

func newNSAddresses() *nsAddresses {
	return &nsAddresses{cached: map[string][]netip.Addr{}}
}

func (n *nsAddresses) addCached(domain string, addr netip.Addr) {
	if _, seen := n.cached[domain]; !seen {
		if _, known := indexOf(n.order, domain); !known {
			n.order = append(n.order, domain)
		}
	}
	n.cached[domain] = append(n.cached[domain], addr)
}

func (n *nsAddresses) addUncached(domain string) {
	if _, known := indexOf(n.order, domain); !known {
		n.order = append(n.order, domain)
	}
	if _, known := indexOf(n.uncached, domain); !known {
		n.uncached = append(n.uncached, domain)
	}
}

func indexOf(s []string, v string) (int, bool) {
	for i, x := range s {
		if x == v {
			return i, true
		}
	}
	return 0, false
}

// orderedAddresses returns cached addresses first (fair round-robin by NS
// domain, not by address count), then nothing for uncached domains — callers
// resolve those via a sub-lookup before retrying.
func (n *nsAddresses) orderedAddresses() []netip.Addr {
	out := make([]netip.Addr, 0, len(n.cached)*2)
	idx := map[string]int{}
	for {
		progressed := false
		for _, domain := range n.order {
			addrs := n.cached[domain]
			i := idx[domain]
			if i >= len(addrs) {
				continue
			}
			out = append(out, addrs[i])
			idx[domain] = i + 1
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return out
}

// filterFamily drops addresses of a family disabled by configuration,
// returning transport.ErrUnsupportedFamily if nothing enabled remains.
func filterFamily(addrs []netip.Addr, disableIPv4, disableIPv6 bool) ([]netip.Addr, error) {
	if !disableIPv4 && !disableIPv6 {
		return addrs, nil
	}
	out := make([]netip.Addr, 0, len(addrs))
	for _, a := range addrs {
		if a.Is4() || a.Is4In6() {
			if disableIPv4 {
				continue
			}
		} else if disableIPv6 {
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, transport.ErrUnsupportedFamily
	}
	return out, nil
}
