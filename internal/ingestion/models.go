// Package ingestion runs the transactional ingest-and-fan-out pipeline:
// time-filter the rolling "recent" feed, validate the remaining records,
// upsert each record with source precedence, and fan out matches to
// alert rules — all inside one transaction per run.
package ingestion

import (
	"time"

	"github.com/google/uuid"

	"github.com/regfeed/ingestcore/internal/canon"
)

// Options tunes a single IngestRecords call.
type Options struct {
	// BatchSize controls how often progress is logged while walking
	// records; it does not change the transaction boundary, which is
	// always the whole run.
	BatchSize int

	// Validate gates the pre-write validation pass. When false, no field
	// checks run before the write: only a row the database rejects (a
	// constraint violation) fails, as a per-record failure during the
	// upsert, isolated by a savepoint. Values no DB constraint covers
	// (e.g. a lowercase region under the shipped migrations) are written.
	Validate bool

	// ConnectorName identifies which connector produced this run's
	// records (e.g. "file", "http-api"), recorded on the ingestion_runs
	// row for provenance. Purely descriptive; defaults to "unknown".
	ConnectorName string
}

// DefaultOptions returns the spec default: batches of 100, validation on.
func DefaultOptions() Options {
	return Options{BatchSize: 100, Validate: true, ConnectorName: "unknown"}
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultOptions().BatchSize
	}

	if o.ConnectorName == "" {
		o.ConnectorName = "unknown"
	}

	return o
}

// Result is the counters struct returned by a completed run, successful
// or partially failed. A transaction-fatal abort returns an error
// instead of a Result.
type Result struct {
	RunID           uuid.UUID
	SourceType      canon.SourceType
	ConnectorName   string
	RecordsFetched  int
	RecordsInserted int
	RecordsUpdated  int
	RecordsSkipped  int
	RecordsFailed   int
	ProcessingTime  time.Duration
}

// outcome is the per-record result of the upsert routine.
type outcome int

const (
	outcomeInserted outcome = iota
	outcomeUpdated
	outcomeSkipped
)
