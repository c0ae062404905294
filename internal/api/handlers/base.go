// Package handlers implements the REST API endpoint handlers for HydraDNS.
//
// @title HydraDNS Management API
// @version 1.0
// @description REST API for managing HydraDNS server configuration, zones, and filtering.
//
// @contact.name HydraDNS Support
// @contact.url https://github.com/nverra/recurdns
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /api/v1
//
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package handlers

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nverra/recurdns/internal/config"
	"github.com/nverra/recurdns/internal/filtering"
	"github.com/nverra/recurdns/internal/recursion"
	"github.com/nverra/recurdns/internal/zone"
)

// Handler contains dependencies for API handlers.
type Handler struct {
	cfg       *config.Config
	logger    *slog.Logger
	startTime time.Time

	// Runtime components (set after server starts)
	policyEngine       *filtering.PolicyEngine
	zones              []*zone.Zone
	recursionStatsFunc func() recursion.Stats
	mu                 sync.RWMutex
}

// New creates a new Handler with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		logger:    logger,
		startTime: time.Now(),
	}
}

// SetPolicyEngine sets the filtering policy engine for runtime access.
func (h *Handler) SetPolicyEngine(pe *filtering.PolicyEngine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.policyEngine = pe
}

// SetZones sets the loaded zones for runtime access.
func (h *Handler) SetZones(zones []*zone.Zone) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.zones = zones
}

// SetRecursionStatsFunc registers the callback used to snapshot the
// recursive resolver's runtime counters for the stats endpoints. A nil fn
// (the default) means the recursive resolver is disabled.
func (h *Handler) SetRecursionStatsFunc(fn func() recursion.Stats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recursionStatsFunc = fn
}

// GetRecursionStatsFunc returns the registered recursive-stats callback, or
// nil if none was set.
func (h *Handler) GetRecursionStatsFunc() func() recursion.Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.recursionStatsFunc
}

// formatRData converts zone record RData to a display string.
func formatRData(rdata any) string {
	if rdata == nil {
		return ""
	}
	return fmt.Sprintf("%v", rdata)
}

// formatRecordType converts a DNS record type to its name.
func formatRecordType(t uint16) string {
	switch t {
	case 1:
		return "A"
	case 2:
		return "NS"
	case 5:
		return "CNAME"
	case 6:
		return "SOA"
	case 12:
		return "PTR"
	case 15:
		return "MX"
	case 16:
		return "TXT"
	case 28:
		return "AAAA"
	default:
		return fmt.Sprintf("TYPE%d", t)
	}
}
