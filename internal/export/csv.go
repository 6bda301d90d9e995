// Package export serializes records for the CSV download endpoint. It
// carries no business logic: it only flattens already-canonical rows
// into text.
package export

import (
	"encoding/csv"
	"io"

	"github.com/regfeed/ingestcore/internal/history"
)

var recordHeader = []string{
	"id", "source_key", "published_at", "title", "entity_name_raw",
	"entity_name_norm", "region", "record_id", "status", "document_url",
	"last_source_type", "created_at", "updated_at",
}

// WriteRecordsCSV writes rows as CSV to w, header first. raw_json and
// content_hash are omitted: opaque/internal fields with no place in a
// spreadsheet export.
func WriteRecordsCSV(w io.Writer, rows []history.StoredRecord) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(recordHeader); err != nil {
		return err
	}

	for _, r := range rows {
		var documentURL string
		if r.DocumentURL != nil {
			documentURL = *r.DocumentURL
		}

		err := cw.Write([]string{
			r.ID.String(), r.SourceKey, r.PublishedAt, r.Title, r.EntityNameRaw,
			r.EntityNameNorm, r.Region, r.RecordID, r.Status, documentURL,
			r.LastSourceType, r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), r.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
		if err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}

var alertLogHeader = []string{
	"id", "alert_rule_id", "record_id", "user_id", "triggered_at",
	"action_type", "entity_name_norm", "region", "title",
}

// WriteAlertLogsCSV writes alert-log rows as CSV to w, header first.
func WriteAlertLogsCSV(w io.Writer, rows []history.AlertLogEntry) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(alertLogHeader); err != nil {
		return err
	}

	for _, r := range rows {
		err := cw.Write([]string{
			r.ID.String(), r.AlertRuleID.String(), r.RecordID.String(), r.UserID.String(),
			r.TriggeredAt.Format("2006-01-02T15:04:05Z07:00"), r.ActionType,
			r.EntityNameNorm, r.Region, r.Title,
		})
		if err != nil {
			return err
		}
	}

	cw.Flush()

	return cw.Error()
}
