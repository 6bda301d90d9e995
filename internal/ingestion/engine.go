package ingestion

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/regfeed/ingestcore/internal/alerting"
	"github.com/regfeed/ingestcore/internal/canon"
	"github.com/regfeed/ingestcore/internal/errs"
	"github.com/regfeed/ingestcore/internal/gateway"
)

const recentWindow = 72 * time.Hour

const recordSavepoint = "ingest_record"

// Engine runs ingestion passes: time-filter, validate, then a single
// transaction that walks records in order, upserting each with source
// precedence and triggering alert fan-out for inserts and content
// changes.
type Engine struct {
	gw        *gateway.Gateway
	alerts    *alerting.Store
	validator *Validator
	logger    *slog.Logger
	metrics   Metrics
}

// NewEngine constructs an Engine wired to the given gateway and alert
// store.
func NewEngine(gw *gateway.Gateway, alerts *alerting.Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		gw:        gw,
		alerts:    alerts,
		validator: NewValidator(),
		logger:    logger,
	}
}

// Metrics returns a snapshot of the process-wide rolling metrics.
func (e *Engine) Metrics() Snapshot {
	return e.metrics.Snapshot()
}

// IngestRecords time-filters (for sourceType=recent), validates the
// records that remain, and ingests them inside one transaction, upserting each with source
// precedence and fanning out alert matches. A partial-success run (some
// records failed but the transaction committed) is reported via
// Result.RecordsFailed, not as an error; only a transaction-fatal
// failure returns a non-nil error.
func (e *Engine) IngestRecords(ctx context.Context, records []canon.Record, sourceType canon.SourceType, opts Options) (Result, error) {
	started := time.Now()
	opts = opts.withDefaults()

	if len(records) == 0 {
		return Result{}, errs.New(errs.Validation, ErrEmptyRecordSet.Error())
	}

	if !sourceType.IsValid() {
		return Result{}, errs.New(errs.Validation, ErrInvalidSourceType.Error())
	}

	filtered := e.timeFilter(records, sourceType)

	if opts.Validate {
		if err := e.validator.validateBatch(filtered); err != nil {
			return Result{}, errs.Wrap(errs.Validation, "record validation failed", err)
		}
	}

	runID := uuid.New()
	result := Result{
		RunID:          runID,
		SourceType:     sourceType,
		ConnectorName:  opts.ConnectorName,
		RecordsFetched: len(filtered),
	}

	txErr := e.gw.Transaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := insertRunRow(ctx, tx, runID, sourceType, opts.ConnectorName, len(filtered)); err != nil {
			return err
		}

		for i, record := range filtered {
			out, err := e.upsertRecord(ctx, tx, record, sourceType)
			if err != nil {
				if gateway.IsConnectionFatal(err) {
					return errs.Wrap(errs.Storage, "connection lost during upsert", err)
				}

				result.RecordsFailed++
				e.logger.Warn("record upsert failed, continuing run",
					"run_id", runID, "index", i, "source_key", record.SourceKey, "error", err)

				continue
			}

			switch out {
			case outcomeInserted:
				result.RecordsInserted++
			case outcomeUpdated:
				result.RecordsUpdated++
			case outcomeSkipped:
				result.RecordsSkipped++
			}

			if (i+1)%opts.BatchSize == 0 {
				e.logger.Info("ingestion progress", "run_id", runID, "processed", i+1, "total", len(filtered))
			}
		}

		return finalizeRunRow(ctx, tx, runID, result)
	})

	result.ProcessingTime = time.Since(started)

	if txErr != nil {
		e.followUpFailure(ctx, runID, sourceType, opts.ConnectorName, result, txErr)
		e.metrics.record(result.RecordsFetched, result.RecordsFetched, result.ProcessingTime)

		return Result{}, txErr
	}

	e.metrics.record(result.RecordsFetched, result.RecordsFailed, result.ProcessingTime)

	return result, nil
}

// timeFilter drops records whose published_at is unparseable or older
// than now-72h, but only for the recent source type; bulk records are
// never time-filtered.
func (e *Engine) timeFilter(records []canon.Record, sourceType canon.SourceType) []canon.Record {
	if sourceType != canon.SourceRecent {
		return records
	}

	cutoff := time.Now().Add(-recentWindow)
	kept := make([]canon.Record, 0, len(records))

	for _, r := range records {
		t, ok := parsePublishedAt(r.PublishedAt)
		if !ok || t.Before(cutoff) {
			continue
		}

		kept = append(kept, r)
	}

	return kept
}

// upsertRecord runs the per-record upsert routine inside a savepoint, so
// a row-level failure (e.g. a constraint violation when validation was
// skipped) can be rolled back without aborting the whole run.
func (e *Engine) upsertRecord(ctx context.Context, tx *sql.Tx, record canon.Record, sourceType canon.SourceType) (outcome, error) {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+recordSavepoint); err != nil {
		return 0, errs.Wrap(errs.Storage, "create savepoint", err)
	}

	out, recordID, action, err := doUpsert(ctx, tx, record, sourceType)
	if err != nil {
		if gateway.IsConnectionFatal(err) {
			return 0, err
		}

		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+recordSavepoint); rbErr != nil {
			return 0, errs.Wrap(errs.Storage, "rollback to savepoint", rbErr)
		}

		return 0, err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+recordSavepoint); err != nil {
		return 0, errs.Wrap(errs.Storage, "release savepoint", err)
	}

	if action != "" {
		if _, err := e.alerts.FanOut(ctx, tx, recordID, record, action); err != nil {
			return 0, err
		}
	}

	return out, nil
}

// doUpsert performs the SELECT-then-branch upsert described in §4.4:
// insert if absent, skip under source precedence, update on content
// change, or no-op skip when content is unchanged.
func doUpsert(ctx context.Context, tx *sql.Tx, record canon.Record, sourceType canon.SourceType) (outcome, uuid.UUID, alerting.ActionType, error) {
	hash := record.Fingerprint()

	var (
		existingID         uuid.UUID
		existingHash       string
		existingSourceType string
	)

	err := tx.QueryRowContext(ctx,
		"SELECT id, content_hash, last_source_type FROM records WHERE source_key = $1",
		record.SourceKey,
	).Scan(&existingID, &existingHash, &existingSourceType)

	switch {
	case err == sql.ErrNoRows:
		id := uuid.New()

		_, insertErr := tx.ExecContext(ctx,
			`INSERT INTO records
				(id, source_key, published_at, title, entity_name_raw, entity_name_norm,
				 region, record_id, status, document_url, raw_json, content_hash,
				 last_source_type, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())`,
			id, record.SourceKey, record.PublishedAt, record.Title, record.EntityNameRaw,
			record.EntityNameNorm, record.Region, record.RecordID, record.Status,
			nullableString(record.DocumentURL), record.RawJSON, hash, string(sourceType),
		)
		if insertErr != nil {
			return 0, uuid.Nil, "", errs.Wrap(errs.Storage, "insert record", insertErr)
		}

		return outcomeInserted, id, alerting.ActionInsert, nil

	case err != nil:
		return 0, uuid.Nil, "", errs.Wrap(errs.Storage, "select existing record", err)
	}

	if sourceType == canon.SourceRecent && existingSourceType == string(canon.SourceBulk) {
		return outcomeSkipped, existingID, "", nil
	}

	if existingHash == hash {
		return outcomeSkipped, existingID, "", nil
	}

	_, updateErr := tx.ExecContext(ctx,
		`UPDATE records SET
			published_at = $1, title = $2, entity_name_raw = $3, entity_name_norm = $4,
			region = $5, record_id = $6, status = $7, document_url = $8, raw_json = $9,
			content_hash = $10, last_source_type = $11, updated_at = now()
		 WHERE id = $12`,
		record.PublishedAt, record.Title, record.EntityNameRaw, record.EntityNameNorm,
		record.Region, record.RecordID, record.Status, nullableString(record.DocumentURL),
		record.RawJSON, hash, string(sourceType), existingID,
	)
	if updateErr != nil {
		return 0, uuid.Nil, "", errs.Wrap(errs.Storage, "update record", updateErr)
	}

	return outcomeUpdated, existingID, alerting.ActionUpdate, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}

	return s
}

func insertRunRow(ctx context.Context, tx *sql.Tx, runID uuid.UUID, sourceType canon.SourceType, connectorName string, fetched int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ingestion_runs (id, source_type, connector_name, started_at, records_fetched, records_inserted, records_updated)
		 VALUES ($1, $2, $3, now(), $4, 0, 0)`,
		runID, string(sourceType), connectorName, fetched,
	)
	if err != nil {
		return errs.Wrap(errs.Storage, "insert ingestion run", err)
	}

	return nil
}

func finalizeRunRow(ctx context.Context, tx *sql.Tx, runID uuid.UUID, result Result) error {
	var errSummary interface{}
	if result.RecordsFailed > 0 {
		errSummary = fmt.Sprintf("%d of %d records failed", result.RecordsFailed, result.RecordsFetched)
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE ingestion_runs SET finished_at = now(), records_inserted = $1, records_updated = $2, error = $3
		 WHERE id = $4`,
		result.RecordsInserted, result.RecordsUpdated, errSummary, runID,
	)
	if err != nil {
		return errs.Wrap(errs.Storage, "finalize ingestion run", err)
	}

	return nil
}

// followUpFailure performs the best-effort, out-of-transaction write
// described in §4.4: since the aborting transaction rolled back its own
// insert of the run row, this issues a standalone upsert of the run row
// with the error recorded, so the failure is still auditable. If this
// itself fails, only the in-memory error counter (via Metrics) moves.
func (e *Engine) followUpFailure(ctx context.Context, runID uuid.UUID, sourceType canon.SourceType, connectorName string, result Result, cause error) {
	err := e.gw.Query(ctx, "ingestion run failure follow-up", func(ctx context.Context, db *sql.DB) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO ingestion_runs (id, source_type, connector_name, started_at, finished_at, records_fetched, records_inserted, records_updated, error)
			 VALUES ($1, $2, $3, now(), now(), $4, 0, 0, $5)
			 ON CONFLICT (id) DO UPDATE SET finished_at = now(), error = EXCLUDED.error`,
			runID, string(sourceType), connectorName, result.RecordsFetched, cause.Error(),
		)

		return err
	})
	if err != nil {
		e.logger.Error("best-effort run failure follow-up also failed", "run_id", runID, "error", err)
	}
}
