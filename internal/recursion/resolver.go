package recursion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync/atomic"

	"github.com/nverra/recurdns/internal/dns"
	"github.com/nverra/recurdns/internal/resolvers"
	"github.com/nverra/recurdns/internal/transport"
)

// Resolver implements resolvers.Resolver by iteratively walking the DNS
// delegation hierarchy from the configured root hints down to an
// authoritative answer, rather than forwarding to a single fixed upstream.
type Resolver struct {
	cfg      Config
	manager  *transport.Manager
	cache    *cacheAdapter
	coalesce *coalescer
	log      *slog.Logger

	queryID atomic.Uint32
}

// New builds a Resolver with its own transport.Manager and cache.
func New(cfg Config, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	cfg.applyDefaults()

	tcfg := transport.Config{
		QueryTimeout:   cfg.QueryTimeout,
		UDPMaxDatagram: cfg.UDPMaxDatagram,
		TLSServerName:  cfg.TLSServerName,
		TLSConfig:      cfg.tlsConfig(),
	}
	mgr := transport.NewManager(transport.ManagerConfig{
		Socket:             tcfg,
		KeepAliveInterval:  cfg.KeepAliveInterval,
		ShutdownIdleCycles: cfg.ShutdownIdleCycles,
		DisableIdleCycles:  cfg.DisableIdleCycles,
	}, log)

	return &Resolver{
		cfg:      cfg,
		manager:  mgr,
		cache:    newCacheAdapter(cfg.CacheMaxEntries),
		coalesce: newCoalescer(),
		log:      log,
	}
}

// NewShared is like New but shares an existing cache (e.g. with a sibling
// ForwardingResolver in the same Chained chain) instead of owning its own.
func NewShared(cfg Config, log *slog.Logger, shared *resolvers.TTLCache[resolvers.QuestionKey, []byte]) *Resolver {
	r := New(cfg, log)
	r.cache = sharedCacheAdapter(shared)
	return r
}

// Close shuts down every per-peer socket the engine opened.
func (r *Resolver) Close() error {
	return r.manager.Close()
}

// Stats is a point-in-time snapshot of the engine's runtime counters,
// exposed through the management API's recursive-stats route.
type Stats struct {
	QueriesIssued  uint32
	ManagedSockets int
	CacheEntries   int
	CacheHits      int
	CacheMisses    int
	InFlightSteps  int
}

// Stats snapshots the query counter, cache occupancy, in-flight coalesced
// steps, and the socket manager's peer count.
func (r *Resolver) Stats() Stats {
	cs := r.cache.stats()
	return Stats{
		QueriesIssued:  r.queryID.Load(),
		ManagedSockets: r.manager.Len(),
		CacheEntries:   cs.Entries,
		CacheHits:      cs.Hits,
		CacheMisses:    cs.Misses,
		InFlightSteps:  r.coalesce.inFlight(),
	}
}

// Resolve answers req by recursively walking the delegation chain for its
// first question. Only genuine resolution failures (no reachable NS, a
// malformed referral, a hop-limit trip) are returned as errors; NXDomain and
// NODATA are definitive DNS facts and come back as an ordinary Result so a
// Chained resolver does not mistakenly fall through to another strategy.
func (r *Resolver) Resolve(ctx context.Context, req dns.Packet, _ []byte) (resolvers.Result, error) {
	if len(req.Questions) == 0 {
		return resolvers.Result{}, errors.New("recursion: request has no question")
	}
	q := req.Questions[0]

	pkt, err := r.lookup(ctx, q, 0)
	switch {
	case err == nil:
	case errors.Is(err, ErrNXDomain), errors.Is(err, ErrNoRecords):
		// Authoritative fact, not a resolution failure: fall through and
		// return pkt as a normal Result below.
	default:
		return resolvers.Result{}, err
	}

	resp := dns.Packet{
		Header:      dns.Header{ID: req.Header.ID, Flags: pkt.Header.Flags},
		Questions:   []dns.Question{q},
		Answers:     pkt.Answers,
		Authorities: pkt.Authorities,
		Additionals: pkt.Additionals,
	}
	b, merr := resp.Marshal()
	if merr != nil {
		return resolvers.Result{}, merr
	}
	return resolvers.Result{ResponseBytes: b, Source: "recursive"}, nil
}

// lookup is the core algorithm (SPEC_FULL.md §4.5): cache probe, closest
// nameserver discovery, delegation walk, final query, CNAME/DNAME chase.
// depth bounds CNAME/DNAME/recursive re-entry so a referral or alias loop
// cannot spin forever.
func (r *Resolver) lookup(ctx context.Context, q dns.Question, depth int) (dns.Packet, error) {
	if depth > DefaultMaxChaseDepth {
		return dns.Packet{}, fmt.Errorf("%w: exceeded CNAME/DNAME/referral chase depth", ErrServFail)
	}

	// 1. Cache probe.
	if pkt, ok := r.cache.get(q); ok {
		rcode := dns.RCodeFromFlags(pkt.Header.Flags)
		if rcode == dns.RCodeNoError && len(pkt.Answers) >= 1 {
			return pkt, nil
		}
		if rcode == dns.RCodeNXDomain {
			return pkt, ErrNXDomain
		}
		// NoError+0 answers, or any other rcode: fall through to a full walk.
	}

	// 2. Closest nameserver discovery.
	chain := suffixChain(q.Name)
	frontierIdx := len(chain) - 1
	var frontierNames []string
	for i, suffix := range chain {
		nsQ := dns.Question{Name: suffix, Type: uint16(dns.TypeNS), Class: q.Class}
		pkt, ok := r.cache.get(nsQ)
		if !ok || dns.RCodeFromFlags(pkt.Header.Flags) != dns.RCodeNoError || len(pkt.Answers) == 0 {
			continue
		}
		frontierIdx = i
		frontierNames = nsDomainsFromAnswers(pkt.Answers)
		break
	}

	current := r.rootNSSet()
	if len(frontierNames) > 0 {
		current = r.resolveNSDomains(ctx, frontierNames, q.Class)
	}

	// 3. Delegation walk: from the frontier down to (but excluding) qname.
	for idx := frontierIdx - 1; idx >= 1; idx-- {
		hopQ := dns.Question{Name: chain[idx], Type: uint16(dns.TypeA), Class: q.Class}
		pkt, err := r.queryCurrentNS(ctx, hopQ, current)
		if err != nil {
			return dns.Packet{}, err
		}

		outcome, next, rewritten := r.classifyHop(ctx, hopQ, pkt)
		switch outcome {
		case hopReferral:
			current = next
		case hopAlias:
			return r.lookup(ctx, withQName(q, rewritten), depth+1)
		case hopAnswered:
			// A record answered the intermediate A-substituted query directly;
			// nothing more to learn about delegation from it, keep descending
			// with the same NS set.
		default:
			return dns.Packet{}, fmt.Errorf("%w: no usable referral at %q", ErrServFail, chain[idx])
		}
	}

	// 4. Final query at qname: re-check cache (CNAME/DNAME may have been
	// inserted as a side effect of the walk), then query.
	if pkt, ok := r.cache.get(q); ok {
		rcode := dns.RCodeFromFlags(pkt.Header.Flags)
		if rcode == dns.RCodeNoError && len(pkt.Answers) >= 1 {
			return pkt, nil
		}
		if rcode == dns.RCodeNXDomain {
			return pkt, ErrNXDomain
		}
	}

	pkt, err := r.queryCurrentNS(ctx, q, current)
	if err != nil {
		return dns.Packet{}, err
	}
	r.cache.insert(q, pkt)

	outcome, _, rewritten := r.classifyHop(ctx, q, pkt)
	if outcome == hopAlias {
		return r.lookup(ctx, withQName(q, rewritten), depth+1)
	}

	// 5. Final classification.
	rcode := dns.RCodeFromFlags(pkt.Header.Flags)
	switch {
	case rcode == dns.RCodeNoError && len(pkt.Answers)+len(pkt.Authorities) >= 1:
		return pkt, nil
	case rcode == dns.RCodeNoError:
		return pkt, ErrNoRecords
	case rcode == dns.RCodeNXDomain:
		return pkt, ErrNXDomain
	case rcode == dns.RCodeFormErr:
		return dns.Packet{}, fmt.Errorf("%w: authoritative server rejected query for %q", ErrFormErr, q.Name)
	default:
		return dns.Packet{}, fmt.Errorf("%w: rcode %d for %q", ErrServFail, rcode, q.Name)
	}
}

type hopOutcome int

const (
	hopFailed hopOutcome = iota
	hopAnswered
	hopReferral
	hopAlias
)

// classifyHop inspects one delegation-walk or final-query response per
// SPEC_FULL.md's table: an answer at index 0 wins, a CNAME/DNAME triggers a
// re-entry with a rewritten qname, NS records descend the delegation, and
// anything else is a dead end for this NS.
func (r *Resolver) classifyHop(ctx context.Context, q dns.Question, pkt dns.Packet) (hopOutcome, *nsAddresses, string) {
	if len(pkt.Answers) > 0 {
		first := pkt.Answers[0]
		switch dns.RecordType(first.Type) {
		case dns.TypeCNAME:
			if target, ok := first.Data.(string); ok {
				return hopAlias, nil, dns.NormalizeName(target)
			}
		case dns.TypeDNAME:
			if target, ok := first.Data.(string); ok {
				if rewritten, ok := dnameTarget(dns.NormalizeName(first.Name), dns.NormalizeName(target), q.Name); ok {
					return hopAlias, nil, rewritten
				}
			}
		}
		if first.Type == q.Type {
			return hopAnswered, nil, ""
		}
	}

	if nsNames := nsDomainsFromAnswers(pkt.Authorities); len(nsNames) > 0 {
		return hopReferral, r.resolveNSDomains(ctx, nsNames, q.Class), ""
	}

	return hopFailed, nil, ""
}

func nsDomainsFromAnswers(rrs []dns.Record) []string {
	out := make([]string, 0, len(rrs))
	seen := map[string]bool{}
	for _, rr := range rrs {
		if dns.RecordType(rr.Type) != dns.TypeNS {
			continue
		}
		name, ok := rr.Data.(string)
		if !ok {
			continue
		}
		name = dns.NormalizeName(name)
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// rootNSSet builds the pseudo-NS-domain set for the configured root hints,
// one synthetic domain per hint address so round-robin fairness still
// applies across them.
func (r *Resolver) rootNSSet() *nsAddresses {
	n := newNSAddresses()
	for i, addr := range r.cfg.RootHints {
		n.addCached(fmt.Sprintf("root-hint-%d.", i), addr)
	}
	return n
}

// resolveNSDomains classifies each NS domain as cached (has A/AAAA in cache)
// or uncached, resolving uncached ones with a bounded sub-lookup.
func (r *Resolver) resolveNSDomains(ctx context.Context, domains []string, class uint16) *nsAddresses {
	n := newNSAddresses()
	for _, domain := range domains {
		found := false
		for _, t := range []dns.RecordType{dns.TypeA, dns.TypeAAAA} {
			pkt, ok := r.cache.get(dns.Question{Name: domain, Type: uint16(t), Class: class})
			if !ok || dns.RCodeFromFlags(pkt.Header.Flags) != dns.RCodeNoError {
				continue
			}
			for _, a := range pkt.Answers {
				if ip, ok := addrFromRecord(a); ok {
					n.addCached(domain, ip)
					found = true
				}
			}
		}
		if !found {
			n.addUncached(domain)
		}
	}

	for _, domain := range n.uncached {
		sub, err := r.lookup(ctx, dns.Question{Name: domain, Type: uint16(dns.TypeA), Class: class}, 0)
		if err != nil {
			continue
		}
		for _, a := range sub.Answers {
			if ip, ok := addrFromRecord(a); ok {
				n.addCached(domain, ip)
			}
		}
	}
	return n
}

func addrFromRecord(rr dns.Record) (netip.Addr, bool) {
	switch dns.RecordType(rr.Type) {
	case dns.TypeA:
		if s, ok := rr.IPv4(); ok {
			if addr, err := netip.ParseAddr(s); err == nil {
				return addr, true
			}
		}
	case dns.TypeAAAA:
		if s, ok := rr.IPv6(); ok {
			if addr, err := netip.ParseAddr(s); err == nil {
				return addr, true
			}
		}
	}
	return netip.Addr{}, false
}

// queryCurrentNS runs q against the NS address set, coalescing concurrent
// identical steps and round-robining over addresses per SPEC_FULL.md §4.5.
func (r *Resolver) queryCurrentNS(ctx context.Context, q dns.Question, ns *nsAddresses) (dns.Packet, error) {
	key := coalesceKey{name: q.Name, qtype: q.Type, class: q.Class}
	return r.coalesce.do(ctx, key, func() (dns.Packet, error) {
		return r.sendToNSSet(ctx, q, ns)
	})
}

// sendToNSSet tries cached addresses first in fair per-domain round-robin
// order, falling back to resolving any still-uncached NS domains. Non-fatal
// errors and rcodes move on to the next address; the last one is surfaced if
// the whole set is exhausted.
func (r *Resolver) sendToNSSet(ctx context.Context, q dns.Question, ns *nsAddresses) (dns.Packet, error) {
	if ns == nil || len(ns.order) == 0 {
		return dns.Packet{}, fmt.Errorf("%w: no nameserver candidates for %q", ErrServFail, q.Name)
	}

	addrs := ns.orderedAddresses()
	addrs, err := filterFamily(addrs, r.cfg.DisableIPv4, r.cfg.DisableIPv6)
	if err != nil {
		return dns.Packet{}, err
	}

	var lastErr error
	for _, addr := range addrs {
		if ctx.Err() != nil {
			return dns.Packet{}, ctx.Err()
		}
		pkt, err := r.queryOne(ctx, addr, q)
		if err != nil {
			lastErr = err
			continue
		}
		return pkt, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: all nameservers exhausted for %q", ErrServFail, q.Name)
	}
	return dns.Packet{}, lastErr
}

// queryOne sends q to one NS address, preferring the encrypted transports
// when enabled and retrying over TCP when a UDP response is truncated.
func (r *Resolver) queryOne(ctx context.Context, addr netip.Addr, q dns.Question) (dns.Packet, error) {
	qid := uint16(r.queryID.Add(1))
	req := dns.Packet{
		Header:    dns.Header{ID: qid, Flags: 0},
		Questions: []dns.Question{q},
	}
	reqBytes, err := req.Marshal()
	if err != nil {
		return dns.Packet{}, fmt.Errorf("%w: %v", ErrServFail, err)
	}

	peer := transport.PeerKey{Addr: addr, Port: r.cfg.NSPort}
	proto := transport.ProtocolUDP
	switch {
	case r.cfg.EnableQUIC:
		proto = transport.ProtocolQUIC
		peer.ServerName = r.cfg.TLSServerName
	case r.cfg.EnableTLS:
		proto = transport.ProtocolTLS
		peer.ServerName = r.cfg.TLSServerName
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	sock, err := r.manager.Get(ctx, peer)
	if err != nil {
		return dns.Packet{}, fmt.Errorf("%w: %v", transport.ErrSocket, err)
	}

	resp, err := sock.Query(ctx, proto, reqBytes)
	if err != nil {
		return dns.Packet{}, err
	}

	if proto == transport.ProtocolUDP && dns.IsTruncated(resp) {
		tcpSock, tcpErr := r.manager.Get(ctx, transport.PeerKey{Addr: addr, Port: r.cfg.NSPort})
		if tcpErr == nil {
			if tcpResp, tcpErr := tcpSock.Query(ctx, transport.ProtocolTCP, reqBytes); tcpErr == nil {
				resp = tcpResp
			}
		}
	}

	return dns.ParsePacket(resp)
}
