package api

import (
	"net/http"
)

// handleHealth handles GET /health, pinging the gateway so a load
// balancer can tell a starved connection pool from a live one.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.gw.HealthCheck(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})

		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// handleMetrics handles GET /api/metrics: rolling ingestion counters
// plus the gateway's pool stats.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Metrics()
	poolStats := s.gw.Stats()

	writeJSON(w, http.StatusOK, MetricsResponse{
		TotalIngestions:         snap.TotalIngestions,
		TotalRecordsProcessed:   snap.TotalRecordsProcessed,
		TotalErrors:             snap.TotalErrors,
		AverageProcessingTimeMs: snap.AverageProcessingTime.Milliseconds(),
		OpenConnections:         poolStats.OpenConnections,
		InUseConnections:        poolStats.InUse,
		IdleConnections:         poolStats.Idle,
	})
}
