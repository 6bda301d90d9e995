// Package api wires the HTTP surface onto the ingestion, alerting, and
// history domain packages: request/response shapes, routing, and the
// middleware chain.
package api

import (
	"time"
)

// IngestRequest is the payload for POST /api/ingest/bulk and
// POST /api/ingest/recent. Rows are the raw, connector-shaped JSON
// records; the handler maps them onto canon.Record before calling the
// ingestion engine.
type IngestRequest struct {
	Rows []IngestRow `json:"rows"`
}

// IngestRow mirrors the connector's on-disk row shape (see
// internal/connectors/file), so a caller can push the same JSON a file
// connector would have read.
type IngestRow struct {
	SourceKey      string `json:"source_key"`
	PublishedAt    string `json:"published_at"`
	Title          string `json:"title"`
	EntityNameRaw  string `json:"entity_name_raw"`
	EntityNameNorm string `json:"entity_name_norm"`
	Region         string `json:"region"`
	RecordID       string `json:"record_id"`
	Status         string `json:"status"`
	DocumentURL    string `json:"document_url"`
}

// IngestResponse reports the outcome of a single ingestion run.
type IngestResponse struct {
	RunID            string `json:"run_id"`
	SourceType       string `json:"source_type"`
	ConnectorName    string `json:"connector_name"`
	RecordsFetched   int    `json:"records_fetched"`
	RecordsInserted  int    `json:"records_inserted"`
	RecordsUpdated   int    `json:"records_updated"`
	RecordsSkipped   int    `json:"records_skipped"`
	RecordsFailed    int    `json:"records_failed"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// CreateAlertRuleRequest is the payload for POST /api/alerts.
type CreateAlertRuleRequest struct {
	UserID         string  `json:"user_id"`
	EntityNameNorm *string `json:"entity_name_norm,omitempty"`
	Region         *string `json:"region,omitempty"`
}

// AlertRuleResponse represents a single alert rule.
type AlertRuleResponse struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	EntityNameNorm *string   `json:"entity_name_norm,omitempty"`
	Region         *string   `json:"region,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// AlertRuleListResponse wraps a user's alert rules.
type AlertRuleListResponse struct {
	Rules []AlertRuleResponse `json:"rules"`
}

// AlertStatsResponse summarizes how many alert_logs rows a user's rules
// have produced, split by action type.
type AlertStatsResponse struct {
	UserID        string `json:"user_id"`
	RuleCount     int    `json:"rule_count"`
	InsertCount   int    `json:"insert_count"`
	UpdateCount   int    `json:"update_count"`
	TotalTriggers int    `json:"total_triggers"`
}

// PageResponse is the generic JSON envelope for every paginated read
// endpoint: {rows, pagination: {limit, offset, total}}.
type PageResponse struct {
	Rows       interface{}      `json:"rows"`
	Pagination PaginationFields `json:"pagination"`
}

// PaginationFields is the pagination block nested in PageResponse.
type PaginationFields struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// HealthResponse is the payload for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// MetricsResponse is the payload for GET /api/metrics: rolling ingestion
// counters plus pool stats from the gateway.
type MetricsResponse struct {
	TotalIngestions         int64 `json:"total_ingestions"`
	TotalRecordsProcessed   int64 `json:"total_records_processed"`
	TotalErrors             int64 `json:"total_errors"`
	AverageProcessingTimeMs int64 `json:"average_processing_time_ms"`
	OpenConnections         int   `json:"open_connections"`
	InUseConnections        int   `json:"in_use_connections"`
	IdleConnections         int   `json:"idle_connections"`
}
