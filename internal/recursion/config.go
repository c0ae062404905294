package recursion

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/nverra/recurdns/internal/config"
)

// Default knobs applied when a Config field is left at its zero value.
// Mirrors the internal/config defaults so a Config built by hand (e.g. in
// tests) behaves the same as one sourced from YAML.
const (
	DefaultQueryTimeout       = 5 * time.Second
	DefaultKeepAliveInterval  = 30 * time.Second
	DefaultShutdownIdleCycles = 3
	DefaultDisableIdleCycles  = 10
	DefaultUDPMaxDatagram     = 4096
	DefaultMaxChaseDepth      = 16 // CNAME/DNAME/delegation recursion ceiling
	DefaultNSPort             = 53
)

// Config bundles everything the recursive engine needs to run: where to
// start (root hints), how its transports behave, and which address families
// and encrypted transports are in play.
type Config struct {
	RootHints          []netip.Addr
	NSPort             uint16 // nameserver port, overridable in tests; 53 in production
	QueryTimeout       time.Duration
	UDPMaxDatagram     int
	KeepAliveInterval  time.Duration
	ShutdownIdleCycles int
	DisableIdleCycles  int
	DisableIPv4        bool
	DisableIPv6        bool
	EnableTLS          bool
	EnableQUIC         bool
	TLSServerName      string
	CacheMaxEntries    int
}

func (c *Config) applyDefaults() {
	if c.NSPort == 0 {
		c.NSPort = DefaultNSPort
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.UDPMaxDatagram <= 0 {
		c.UDPMaxDatagram = DefaultUDPMaxDatagram
	}
	if c.KeepAliveInterval <= 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.ShutdownIdleCycles <= 0 {
		c.ShutdownIdleCycles = DefaultShutdownIdleCycles
	}
	if c.DisableIdleCycles <= 0 {
		c.DisableIdleCycles = DefaultDisableIdleCycles
	}
}

// tlsConfig builds the *tls.Config used for TLS/QUIC peers, or nil if
// neither is enabled. Root trust is whatever crypto/x509.SystemCertPool
// resolves to; a caller-supplied override is out of scope here.
func (c *Config) tlsConfig() *tls.Config {
	if !c.EnableTLS && !c.EnableQUIC {
		return nil
	}
	return &tls.Config{ServerName: c.TLSServerName, MinVersion: tls.VersionTLS12}
}

// ParseRootHints converts the string IPs from config.RecursiveConfig into
// netip.Addr values, skipping and reporting the first unparseable entry.
func ParseRootHints(hints []string) ([]netip.Addr, error) {
	out := make([]netip.Addr, 0, len(hints))
	for _, h := range hints {
		addr, err := netip.ParseAddr(h)
		if err != nil {
			return nil, fmt.Errorf("recursion: invalid root hint %q: %w", h, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// FromRecursiveConfig translates the YAML-sourced config.RecursiveConfig
// into the engine's own Config, parsing durations and root hints.
func FromRecursiveConfig(rc config.RecursiveConfig) (Config, error) {
	if rc.Enabled && len(rc.RootHints) == 0 {
		return Config{}, errors.New("recursion: enabled with no root_hints configured")
	}

	hints, err := ParseRootHints(rc.RootHints)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		RootHints:          hints,
		UDPMaxDatagram:     rc.UDPMaxDatagram,
		ShutdownIdleCycles: rc.ShutdownIdleCycles,
		DisableIdleCycles:  rc.DisableIdleCycles,
		DisableIPv4:        rc.DisableIPv4,
		DisableIPv6:        rc.DisableIPv6,
		EnableTLS:          rc.EnableTLS,
		EnableQUIC:         rc.EnableQUIC,
		TLSServerName:      rc.TLSServerName,
		CacheMaxEntries:    rc.CacheMaxEntries,
	}

	if rc.QueryTimeout != "" {
		d, err := time.ParseDuration(rc.QueryTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("recursion: invalid query_timeout %q: %w", rc.QueryTimeout, err)
		}
		cfg.QueryTimeout = d
	}
	if rc.KeepAliveInterval != "" {
		d, err := time.ParseDuration(rc.KeepAliveInterval)
		if err != nil {
			return Config{}, fmt.Errorf("recursion: invalid keep_alive_interval %q: %w", rc.KeepAliveInterval, err)
		}
		cfg.KeepAliveInterval = d
	}

	cfg.applyDefaults()
	return cfg, nil
}
