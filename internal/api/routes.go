package api

import (
	"net/http"
)

// setupRoutes registers every HTTP endpoint on mux. Route patterns use
// the method-prefixed, wildcard-capable syntax from net/http added in
// Go 1.22.
func (s *Server) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingest/bulk", s.handleIngestBulk)
	mux.HandleFunc("POST /api/ingest/recent", s.handleIngestRecent)

	mux.HandleFunc("POST /api/alerts", s.handleCreateAlertRule)
	mux.HandleFunc("DELETE /api/alerts/{id}", s.handleDeleteAlertRule)
	mux.HandleFunc("GET /api/alerts/user/{userId}/stats", s.handleUserAlertStats)
	mux.HandleFunc("GET /api/alerts/user/{userId}", s.handleListUserAlertRules)
	mux.HandleFunc("GET /api/alerts/logs", s.handleListAlertLogs)

	mux.HandleFunc("GET /api/ingestion/history", s.handleListIngestionHistory)
	mux.HandleFunc("GET /api/records", s.handleListRecords)
	mux.HandleFunc("GET /api/export/csv", s.handleExportCSV)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
}
