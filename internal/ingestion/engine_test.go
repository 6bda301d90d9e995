package ingestion

import (
	"testing"
	"time"

	"github.com/regfeed/ingestcore/internal/canon"
)

func TestEngine_TimeFilter_DropsStaleAndUnparseableRecent(t *testing.T) {
	e := &Engine{}

	fresh := canon.Record{SourceKey: "fresh", PublishedAt: time.Now().Add(-10 * time.Hour).Format(time.RFC3339)}
	stale := canon.Record{SourceKey: "stale", PublishedAt: time.Now().Add(-100 * time.Hour).Format(time.RFC3339)}
	unparseable := canon.Record{SourceKey: "bad", PublishedAt: "not-a-time"}

	kept := e.timeFilter([]canon.Record{fresh, stale, unparseable}, canon.SourceRecent)

	if len(kept) != 1 || kept[0].SourceKey != "fresh" {
		t.Fatalf("expected only the fresh record to survive the recent-feed time filter, got %+v", kept)
	}
}

func TestEngine_TimeFilter_BulkIsNeverFiltered(t *testing.T) {
	e := &Engine{}

	stale := canon.Record{SourceKey: "stale", PublishedAt: time.Now().Add(-1000 * time.Hour).Format(time.RFC3339)}

	kept := e.timeFilter([]canon.Record{stale}, canon.SourceBulk)

	if len(kept) != 1 {
		t.Fatalf("expected bulk records to bypass the time filter entirely, got %d", len(kept))
	}
}

func TestOptions_WithDefaults_FillsBatchSize(t *testing.T) {
	o := Options{}.withDefaults()

	if o.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", o.BatchSize)
	}
}

func TestMetrics_RecordComputesRollingAverage(t *testing.T) {
	var m Metrics

	m.record(10, 0, 100*time.Millisecond)
	m.record(20, 2, 300*time.Millisecond)

	snap := m.Snapshot()

	if snap.TotalIngestions != 2 {
		t.Errorf("TotalIngestions = %d, want 2", snap.TotalIngestions)
	}

	if snap.TotalRecordsProcessed != 30 {
		t.Errorf("TotalRecordsProcessed = %d, want 30", snap.TotalRecordsProcessed)
	}

	if snap.TotalErrors != 2 {
		t.Errorf("TotalErrors = %d, want 2", snap.TotalErrors)
	}

	want := 200 * time.Millisecond
	if snap.AverageProcessingTime != want {
		t.Errorf("AverageProcessingTime = %v, want %v", snap.AverageProcessingTime, want)
	}
}
