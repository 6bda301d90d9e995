// Package history provides paginated read access to ingestion runs and
// alert logs for operational endpoints. It is read-only: nothing here
// ever writes to the tables it queries.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/regfeed/ingestcore/internal/errs"
)

const slowQueryThreshold = 500 * time.Millisecond

const maxLimit = 100

// Pagination bounds a read: Limit is clamped to [1, maxLimit] and Offset
// to [0, +inf) by Normalize.
type Pagination struct {
	Limit  int
	Offset int
}

// Normalize clamps Limit into (0, maxLimit] and Offset to a non-negative
// value, defaulting Limit to maxLimit when unset.
func (p Pagination) Normalize() Pagination {
	if p.Limit <= 0 || p.Limit > maxLimit {
		p.Limit = maxLimit
	}

	if p.Offset < 0 {
		p.Offset = 0
	}

	return p
}

// Page wraps a slice of rows with the pagination envelope the HTTP layer
// renders verbatim: {rows, pagination: {limit, offset, total}}.
type Page[T any] struct {
	Rows   []T
	Limit  int
	Offset int
	Total  int
}

// IngestionRun is one row of the ingestion_runs table.
type IngestionRun struct {
	ID              uuid.UUID
	SourceType      string
	ConnectorName   string
	StartedAt       time.Time
	FinishedAt      *time.Time
	RecordsFetched  int
	RecordsInserted int
	RecordsUpdated  int
	Error           *string
}

// StoredRecord is one row of the records table, as read back for the
// record listing and CSV export endpoints.
type StoredRecord struct {
	ID             uuid.UUID
	SourceKey      string
	PublishedAt    string
	Title          string
	EntityNameRaw  string
	EntityNameNorm string
	Region         string
	RecordID       string
	Status         string
	DocumentURL    *string
	LastSourceType string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AlertLogFilter narrows a ListAlertLogs read. A nil field means
// unfiltered on that dimension.
type AlertLogFilter struct {
	AlertRuleID *uuid.UUID
	UserID      *uuid.UUID
	ActionType  *string
}

// AlertLogEntry is one joined row from alert_logs, alert_rules, and
// records, shaped for direct display.
type AlertLogEntry struct {
	ID             uuid.UUID
	AlertRuleID    uuid.UUID
	RecordID       uuid.UUID
	UserID         uuid.UUID
	TriggeredAt    time.Time
	ActionType     string
	EntityNameNorm string
	Region         string
	Title          string
}

// Reader answers the run-history and alert-log queries behind
// GET /api/ingestion/history and GET /api/alerts/logs. It follows
// storage.LineageStore.QueryIncidents: a single query carrying a
// COUNT(*) OVER() window alongside every row, so the total and the page
// come back in one round trip.
type Reader struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewReader constructs a Reader over db. A nil logger defaults to
// slog.Default().
func NewReader(db *sql.DB, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reader{db: db, logger: logger}
}

// ListRuns returns ingestion_runs rows ordered started_at DESC.
func (r *Reader) ListRuns(ctx context.Context, p Pagination) (Page[IngestionRun], error) {
	p = p.Normalize()
	start := time.Now()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_type, connector_name, started_at, finished_at,
		       records_fetched, records_inserted, records_updated, error,
		       COUNT(*) OVER() AS total
		FROM ingestion_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2`,
		p.Limit, p.Offset,
	)
	if err != nil {
		return Page[IngestionRun]{}, errs.Wrap(errs.Storage, "query ingestion runs", err)
	}

	defer func() { _ = rows.Close() }()

	var (
		out   []IngestionRun
		total int
	)

	for rows.Next() {
		var run IngestionRun

		if err := rows.Scan(
			&run.ID, &run.SourceType, &run.ConnectorName, &run.StartedAt, &run.FinishedAt,
			&run.RecordsFetched, &run.RecordsInserted, &run.RecordsUpdated, &run.Error,
			&total,
		); err != nil {
			return Page[IngestionRun]{}, errs.Wrap(errs.Storage, "scan ingestion run row", err)
		}

		out = append(out, run)
	}

	if err := rows.Err(); err != nil {
		return Page[IngestionRun]{}, errs.Wrap(errs.Storage, "iterate ingestion run rows", err)
	}

	r.logSlowQuery(start, "list_ingestion_runs", len(out))

	return Page[IngestionRun]{Rows: out, Limit: p.Limit, Offset: p.Offset, Total: total}, nil
}

// ListRecords returns records rows ordered updated_at DESC, used by both
// GET /api/records and the CSV export endpoint.
func (r *Reader) ListRecords(ctx context.Context, p Pagination) (Page[StoredRecord], error) {
	p = p.Normalize()
	start := time.Now()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_key, published_at, title, entity_name_raw, entity_name_norm,
		       region, record_id, status, document_url, last_source_type, created_at, updated_at,
		       COUNT(*) OVER() AS total
		FROM records
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2`,
		p.Limit, p.Offset,
	)
	if err != nil {
		return Page[StoredRecord]{}, errs.Wrap(errs.Storage, "query records", err)
	}

	defer func() { _ = rows.Close() }()

	var (
		out   []StoredRecord
		total int
	)

	for rows.Next() {
		var rec StoredRecord

		if err := rows.Scan(
			&rec.ID, &rec.SourceKey, &rec.PublishedAt, &rec.Title, &rec.EntityNameRaw, &rec.EntityNameNorm,
			&rec.Region, &rec.RecordID, &rec.Status, &rec.DocumentURL, &rec.LastSourceType, &rec.CreatedAt, &rec.UpdatedAt,
			&total,
		); err != nil {
			return Page[StoredRecord]{}, errs.Wrap(errs.Storage, "scan record row", err)
		}

		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return Page[StoredRecord]{}, errs.Wrap(errs.Storage, "iterate record rows", err)
	}

	r.logSlowQuery(start, "list_records", len(out))

	return Page[StoredRecord]{Rows: out, Limit: p.Limit, Offset: p.Offset, Total: total}, nil
}

// ListAlertLogs returns alert_logs rows joined to alert_rules (for
// user_id filtering) and records (for display fields), ordered
// triggered_at DESC, narrowed by the optional filter fields.
func (r *Reader) ListAlertLogs(ctx context.Context, filter AlertLogFilter, p Pagination) (Page[AlertLogEntry], error) {
	p = p.Normalize()
	start := time.Now()

	query, args := buildAlertLogQuery(filter, p)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page[AlertLogEntry]{}, errs.Wrap(errs.Storage, "query alert logs", err)
	}

	defer func() { _ = rows.Close() }()

	var (
		out   []AlertLogEntry
		total int
	)

	for rows.Next() {
		var e AlertLogEntry

		if err := rows.Scan(
			&e.ID, &e.AlertRuleID, &e.RecordID, &e.UserID, &e.TriggeredAt, &e.ActionType,
			&e.EntityNameNorm, &e.Region, &e.Title,
			&total,
		); err != nil {
			return Page[AlertLogEntry]{}, errs.Wrap(errs.Storage, "scan alert log row", err)
		}

		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return Page[AlertLogEntry]{}, errs.Wrap(errs.Storage, "iterate alert log rows", err)
	}

	r.logSlowQuery(start, "list_alert_logs", len(out))

	return Page[AlertLogEntry]{Rows: out, Limit: p.Limit, Offset: p.Offset, Total: total}, nil
}

func buildAlertLogQuery(filter AlertLogFilter, p Pagination) (string, []interface{}) {
	base := `
		SELECT al.id, al.alert_rule_id, al.record_id, ar.user_id, al.triggered_at, al.action_type,
		       r.entity_name_norm, r.region, r.title,
		       COUNT(*) OVER() AS total
		FROM alert_logs al
		JOIN alert_rules ar ON ar.id = al.alert_rule_id
		JOIN records r ON r.id = al.record_id
	`

	var (
		conditions []string
		args       []interface{}
	)

	paramIndex := 1

	if filter.AlertRuleID != nil {
		conditions = append(conditions, fmt.Sprintf("al.alert_rule_id = $%d", paramIndex))
		args = append(args, *filter.AlertRuleID)
		paramIndex++
	}

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("ar.user_id = $%d", paramIndex))
		args = append(args, *filter.UserID)
		paramIndex++
	}

	if filter.ActionType != nil {
		conditions = append(conditions, fmt.Sprintf("al.action_type = $%d", paramIndex))
		args = append(args, *filter.ActionType)
		paramIndex++
	}

	if len(conditions) > 0 {
		base += " WHERE " + strings.Join(conditions, " AND ")
	}

	base += fmt.Sprintf(" ORDER BY al.triggered_at DESC LIMIT $%d OFFSET $%d", paramIndex, paramIndex+1)
	args = append(args, p.Limit, p.Offset)

	return base, args
}

func (r *Reader) logSlowQuery(started time.Time, label string, rowCount int) {
	duration := time.Since(started)

	if duration > slowQueryThreshold {
		r.logger.Warn("slow history query",
			slog.String("query", label),
			slog.Duration("duration", duration),
			slog.Int("row_count", rowCount))
	}
}
