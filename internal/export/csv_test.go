package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/regfeed/ingestcore/internal/history"
)

func TestWriteRecordsCSV_WritesHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer

	rows := []history.StoredRecord{
		{ID: uuid.New(), SourceKey: "sec:1", Title: "A, with comma", Region: "TX"},
	}

	if err := WriteRecordsCSV(&buf, rows); err != nil {
		t.Fatalf("WriteRecordsCSV() error = %v", err)
	}

	out := buf.String()

	if !strings.HasPrefix(out, "id,source_key,published_at") {
		t.Fatalf("expected header first, got %q", out)
	}

	if !strings.Contains(out, `"A, with comma"`) {
		t.Errorf("expected comma-containing field to be quoted, got %q", out)
	}
}

func TestWriteRecordsCSV_EmptyRowsStillWritesHeader(t *testing.T) {
	var buf bytes.Buffer

	if err := WriteRecordsCSV(&buf, nil); err != nil {
		t.Fatalf("WriteRecordsCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected only the header line, got %d lines", len(lines))
	}
}

func TestWriteAlertLogsCSV_WritesHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer

	rows := []history.AlertLogEntry{
		{
			ID: uuid.New(), AlertRuleID: uuid.New(), RecordID: uuid.New(), UserID: uuid.New(),
			TriggeredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
			ActionType:  "insert", EntityNameNorm: "acme energy llc", Region: "TX", Title: "A",
		},
	}

	if err := WriteAlertLogsCSV(&buf, rows); err != nil {
		t.Fatalf("WriteAlertLogsCSV() error = %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "id,alert_rule_id,record_id") {
		t.Fatalf("expected header first, got %q", out)
	}

	if !strings.Contains(out, "2026-01-02T03:04:05Z") {
		t.Errorf("expected RFC3339 timestamp, got %q", out)
	}
}
