package recursion

import (
	"strings"

	"github.com/nverra/recurdns/internal/dns"
)

// root is the frontier name representing the DNS root. dns.NormalizeName
// strips trailing dots, so the root is the empty string rather than ".".
const root = ""

// suffixChain returns the progressively shorter suffixes of name, from name
// itself down to and including root. For "www.example.com" this yields
// ["www.example.com", "example.com", "com", ""].
func suffixChain(name string) []string {
	if name == root {
		return []string{root}
	}
	labels := strings.Split(name, ".")
	chain := make([]string, 0, len(labels)+1)
	for i := range labels {
		chain = append(chain, strings.Join(labels[i:], "."))
	}
	chain = append(chain, root)
	return chain
}

// withQName returns q with its Name replaced by name, leaving Type and Class
// intact. This stands in for the conceptual "question.WithNewQName" used when
// recursing into a CNAME/DNAME target or descending the delegation chain.
func withQName(q dns.Question, name string) dns.Question {
	q.Name = name
	return q
}

// dnameTarget rewrites qname per RFC 6672 §2.2: a DNAME at owner redirects
// the whole subtree rooted at owner to target, so the portion of qname below
// owner is preserved and grafted onto target. owner, target, and qname are
// expected already normalized (no trailing dot, lowercase).
//
// e.g. owner="example.org", target="example.com", qname="www.example.org"
// yields "www.example.com".
func dnameTarget(owner, target, qname string) (string, bool) {
	if qname == owner {
		return target, true
	}
	suffix := "." + owner
	if !strings.HasSuffix(qname, suffix) {
		return "", false
	}
	prefix := strings.TrimSuffix(qname, suffix)
	return prefix + "." + target, true
}
