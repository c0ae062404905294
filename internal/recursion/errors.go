// Package recursion implements an iterative DNS resolution engine: given a
// question, it walks the delegation hierarchy from the configured root hints
// down to an authoritative answer, following referrals and CNAME/DNAME
// chains along the way. It is exposed as a resolvers.Resolver so it can sit
// in a Chained resolver alongside the forwarding and zone resolvers.
package recursion

import "errors"

// Sentinel errors describing why resolution did not produce records.
var (
	// ErrNXDomain indicates an authoritative server reported the name does
	// not exist.
	ErrNXDomain = errors.New("recursion: name does not exist")

	// ErrServFail indicates a malformed or uninterpretable response was
	// received along the delegation walk (no usable answer, CNAME/DNAME,
	// or referral).
	ErrServFail = errors.New("recursion: server failure resolving name")

	// ErrFormErr indicates an authoritative server rejected the query as
	// malformed.
	ErrFormErr = errors.New("recursion: malformed query rejected by server")

	// ErrNoRecords indicates the name exists but has no data of the
	// requested type (NODATA).
	ErrNoRecords = errors.New("recursion: name exists but has no records of the requested type")
)
