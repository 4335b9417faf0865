package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/timetable-engine/internal/service"
	"github.com/noah-isme/timetable-engine/pkg/response"
)

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics *service.MetricsService
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// EngineSnapshot godoc
// @Summary Aggregated engine counters
// @Description Returns run, conflict and cache totals as a JSON snapshot
// @Tags metrics
// @Produce json
// @Success 200 {object} service.EngineMetricsSnapshot
// @Router /metrics/engine [get]
func (h *MetricsHandler) EngineSnapshot(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	response.JSON(c, http.StatusOK, h.metrics.Snapshot(), nil)
}

// Health responds with a generic OK payload for readiness/liveness usage.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
