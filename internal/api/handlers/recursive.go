package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nverra/recurdns/internal/api/models"
)

// RecursiveStats godoc
// @Summary Recursive resolver statistics
// @Description Returns socket-manager and recursive-resolver counters. Enabled is false (and every other field zero) when the recursive resolver is not running.
// @Tags system
// @Produce json
// @Success 200 {object} models.RecursiveStatsResponse
// @Security ApiKeyAuth
// @Router /recursive/stats [get]
func (h *Handler) RecursiveStats(c *gin.Context) {
	resp := models.RecursiveStatsResponse{}
	if snap := h.recursiveStatsResponse(); snap != nil {
		resp = *snap
	}
	c.JSON(http.StatusOK, resp)
}

// recursiveStatsResponse builds the recursive-stats payload shared by the
// dedicated route and the /stats fold-in. Returns nil when the recursive
// resolver isn't wired up, so FilteringStats-style omitempty behavior on
// ServerStatsResponse just works.
func (h *Handler) recursiveStatsResponse() *models.RecursiveStatsResponse {
	fn := h.GetRecursionStatsFunc()
	if fn == nil {
		return nil
	}
	stats := fn()
	return &models.RecursiveStatsResponse{
		Enabled:        true,
		QueriesIssued:  stats.QueriesIssued,
		ManagedSockets: stats.ManagedSockets,
		CacheEntries:   stats.CacheEntries,
		CacheHits:      stats.CacheHits,
		CacheMisses:    stats.CacheMisses,
		InFlightSteps:  stats.InFlightSteps,
	}
}
