package ingestion

import (
	"sync"
	"time"
)

// Metrics accumulates process-wide, rolling statistics across every run
// this Engine has completed, regardless of source type. Record is called
// exactly once per run, from the run's finalizer, so the mutex only ever
// serializes completion events rather than per-record work.
type Metrics struct {
	mu sync.Mutex

	totalIngestions       int64
	totalRecordsProcessed int64
	totalErrors           int64
	averageProcessingTime time.Duration
}

// record folds one completed run's outcome into the rolling averages.
func (m *Metrics) record(recordsProcessed int, failed int, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalIngestions++
	m.totalRecordsProcessed += int64(recordsProcessed)
	m.totalErrors += int64(failed)

	// Incremental arithmetic mean: avoids needing to retain every past
	// elapsed duration to recompute the average from scratch.
	n := m.totalIngestions
	m.averageProcessingTime += (elapsed - m.averageProcessingTime) / time.Duration(n)
}

// Snapshot is a point-in-time, safe-to-read copy of Metrics.
type Snapshot struct {
	TotalIngestions       int64
	TotalRecordsProcessed int64
	TotalErrors           int64
	AverageProcessingTime time.Duration
}

// Snapshot returns the current metrics values.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		TotalIngestions:       m.totalIngestions,
		TotalRecordsProcessed: m.totalRecordsProcessed,
		TotalErrors:           m.totalErrors,
		AverageProcessingTime: m.averageProcessingTime,
	}
}
