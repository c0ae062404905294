package recursion

import (
	"math"
	"time"

	"github.com/nverra/recurdns/internal/dns"
	"github.com/nverra/recurdns/internal/resolvers"
)

// cacheAdapter wraps the same generic resolvers.TTLCache ForwardingResolver
// uses, trafficking in parsed dns.Packet values instead of raw upstream bytes
// so the engine and a sibling ForwardingResolver can share one cache instance
// in a Chained resolver. The engine never reaches into TTLCache internals.
type cacheAdapter struct {
	cache *resolvers.TTLCache[resolvers.QuestionKey, []byte]
}

func newCacheAdapter(maxEntries int) *cacheAdapter {
	if maxEntries <= 0 {
		maxEntries = resolvers.DefaultCacheMaxEntries
	}
	return &cacheAdapter{cache: resolvers.NewTTLCache[resolvers.QuestionKey, []byte](maxEntries)}
}

func sharedCacheAdapter(cache *resolvers.TTLCache[resolvers.QuestionKey, []byte]) *cacheAdapter {
	return &cacheAdapter{cache: cache}
}

func questionKey(q dns.Question) resolvers.QuestionKey {
	return resolvers.QuestionKey{QName: dns.NormalizeName(q.Name), QType: q.Type, QClass: q.Class}
}

// get probes the cache for q, returning a synthesized response packet (the
// answer as it was stored, TTLs aged by time spent cached) and whether it was
// found at all.
func (c *cacheAdapter) get(q dns.Question) (dns.Packet, bool) {
	raw, age, ok, _ := c.cache.GetWithAge(questionKey(q))
	if !ok {
		return dns.Packet{}, false
	}
	pkt, err := dns.ParsePacket(ageTTLs(raw, age))
	if err != nil {
		return dns.Packet{}, false
	}
	return pkt, true
}

// insert classifies resp the same way forwarding_resolver.go's
// analyzeCacheDecision does (positive/NXDOMAIN/NODATA/SERVFAIL, RFC 2308
// negative-cache TTLs) and stores its wire form under q's key.
func (c *cacheAdapter) insert(q dns.Question, resp dns.Packet) {
	decision := classifyForCache(resp)
	if decision.ttlSeconds <= 0 {
		return
	}
	b, err := resp.Marshal()
	if err != nil {
		return
	}
	c.cache.Set(questionKey(q), b, time.Duration(decision.ttlSeconds)*time.Second, decision.entryType)
}

// clean evicts every expired entry proactively; the periodic GC loop calls
// this instead of waiting on lazy per-key expiration.
func (c *cacheAdapter) clean() int {
	return c.cache.Clean()
}

// stats snapshots the underlying cache's size and hit/miss counters for
// exposure through Resolver.Stats.
func (c *cacheAdapter) stats() resolvers.CacheStats {
	return c.cache.Stats()
}

type cacheDecision struct {
	ttlSeconds int
	entryType  resolvers.CacheEntryType
}

func classifyForCache(resp dns.Packet) cacheDecision {
	rcode := dns.RCodeFromFlags(resp.Header.Flags)

	if rcode == dns.RCodeServFail {
		return cacheDecision{ttlSeconds: 30, entryType: resolvers.CacheSERVFAIL}
	}
	if rcode == dns.RCodeNXDomain {
		ttl := soaMinimum(resp)
		if ttl <= 0 {
			ttl = 300
		}
		return cacheDecision{ttlSeconds: ttl, entryType: resolvers.CacheNXDOMAIN}
	}
	if rcode != dns.RCodeNoError {
		return cacheDecision{ttlSeconds: 0, entryType: resolvers.CachePositive}
	}
	if len(resp.Answers) == 0 {
		ttl := soaMinimum(resp)
		if ttl <= 0 {
			ttl = 300
		}
		return cacheDecision{ttlSeconds: ttl, entryType: resolvers.CacheNODATA}
	}

	minTTL := math.MaxInt
	found := false
	for _, a := range resp.Answers {
		if a.TTL == 0 {
			continue
		}
		if int(a.TTL) < minTTL {
			minTTL = int(a.TTL)
			found = true
		}
	}
	if !found {
		return cacheDecision{ttlSeconds: 0, entryType: resolvers.CachePositive}
	}
	return cacheDecision{ttlSeconds: minTTL, entryType: resolvers.CachePositive}
}

// soaMinimum extracts the SOA MINIMUM field from the authority section for
// negative-cache TTL purposes (RFC 2308). Mirrors
// forwarding_resolver.go's extractSOAMinimum.
func soaMinimum(resp dns.Packet) int {
	for _, r := range resp.Authorities {
		if dns.RecordType(r.Type) != dns.TypeSOA {
			continue
		}
		b, ok := r.Data.([]byte)
		if !ok {
			continue
		}

		off := 0
		if _, err := dns.DecodeName(b, &off); err != nil {
			continue
		}
		if _, err := dns.DecodeName(b, &off); err != nil {
			continue
		}

		if off+20 <= len(b) {
			return int(uint32(b[off+16])<<24 | uint32(b[off+17])<<16 | uint32(b[off+18])<<8 | uint32(b[off+19]))
		}
		if len(b) >= 4 {
			n := len(b)
			return int(uint32(b[n-4])<<24 | uint32(b[n-3])<<16 | uint32(b[n-2])<<8 | uint32(b[n-1]))
		}
	}
	return 0
}

// ageTTLs decrements every record TTL in raw by age, matching
// forwarding_resolver.go's adjustTTLs: TTLs never drop below 1 so an
// about-to-expire entry still reads as momentarily valid to the caller, who
// will simply miss on the next lookup once Clean or Get's lazy check reaps it.
func ageTTLs(raw []byte, age time.Duration) []byte {
	if age <= 0 {
		return raw
	}
	pkt, err := dns.ParsePacket(raw)
	if err != nil {
		return raw
	}
	ageSeconds := uint32(age.Seconds())
	if ageSeconds == 0 {
		return raw
	}
	decay := func(rrs []dns.Record) {
		for i := range rrs {
			if dns.RecordType(rrs[i].Type) == dns.TypeOPT {
				continue
			}
			rrs[i].TTL = max(uint32(1), rrs[i].TTL-ageSeconds)
		}
	}
	decay(pkt.Answers)
	decay(pkt.Authorities)
	decay(pkt.Additionals)
	b, err := pkt.Marshal()
	if err != nil {
		return raw
	}
	return b
}
