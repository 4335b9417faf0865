package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-engine/internal/models"
	"github.com/noah-isme/timetable-engine/internal/service"
)

func newMetricsTestRouter(metrics *service.MetricsService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(metrics)
	router := gin.New()
	router.GET("/metrics", h.Prometheus)
	router.GET("/metrics/engine", h.EngineSnapshot)
	router.GET("/health", h.Health)
	return router
}

func TestMetricsHandlerEngineSnapshot(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveRun("success", 200*time.Millisecond, models.GenerationStatistics{
		TotalSessions:     8,
		ConflictsDetected: 3,
		ConflictsResolved: 2,
		OptimizationScore: 81.5,
	})
	metrics.RecordCacheOperation(true)
	metrics.RecordCacheOperation(true)
	metrics.RecordCacheOperation(false)

	router := newMetricsTestRouter(metrics)
	req, _ := http.NewRequest(http.MethodGet, "/metrics/engine", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	var envelope struct {
		Data service.EngineMetricsSnapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))

	snap := envelope.Data
	require.Equal(t, uint64(1), snap.RunsTotal)
	require.InDelta(t, 200, snap.AverageRunDurationMS, 1)
	require.Equal(t, uint64(3), snap.ConflictsDetected)
	require.Equal(t, uint64(2), snap.ConflictsResolved)
	require.InDelta(t, 81.5, snap.LastScore, 0.001)
	require.Equal(t, uint64(2), snap.CacheHits)
	require.Equal(t, uint64(1), snap.CacheMisses)
	require.False(t, snap.GeneratedAt.IsZero())
}

func TestMetricsHandlerEngineSnapshotUnconfigured(t *testing.T) {
	router := newMetricsTestRouter(nil)
	req, _ := http.NewRequest(http.MethodGet, "/metrics/engine", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
}

func TestMetricsHandlerPrometheusExposition(t *testing.T) {
	metrics := service.NewMetricsService()
	metrics.ObserveHTTPRequest(http.MethodGet, "/health", http.StatusOK, 5*time.Millisecond)

	router := newMetricsTestRouter(metrics)
	req, _ := http.NewRequest(http.MethodGet, "/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	require.Contains(t, resp.Body.String(), "http_requests_total")
}
