package api

import (
	"net/http"

	"github.com/regfeed/ingestcore/internal/export"
	"github.com/regfeed/ingestcore/internal/history"
)

const exportPageSize = 100

// handleExportCSV handles GET /api/export/csv?type=records|alert-logs,
// streaming every row in the table (bounded by exportPageSize per
// underlying page fetch) as a single CSV download.
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("type") {
	case "alert-logs":
		s.exportAlertLogsCSV(w, r)
	default:
		s.exportRecordsCSV(w, r)
	}
}

func (s *Server) exportRecordsCSV(w http.ResponseWriter, r *http.Request) {
	var all []history.StoredRecord

	offset := 0
	for {
		page, err := s.history.ListRecords(r.Context(), history.Pagination{Limit: exportPageSize, Offset: offset})
		if err != nil {
			WriteErrorResponse(w, r, s.logger, ProblemFromError(err, s.devMode))

			return
		}

		all = append(all, page.Rows...)
		offset += len(page.Rows)

		if len(page.Rows) == 0 || offset >= page.Total {
			break
		}
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="records.csv"`)

	if err := export.WriteRecordsCSV(w, all); err != nil {
		s.logger.Error("failed to write records CSV", "error", err.Error())
	}
}

func (s *Server) exportAlertLogsCSV(w http.ResponseWriter, r *http.Request) {
	var all []history.AlertLogEntry

	offset := 0
	for {
		page, err := s.history.ListAlertLogs(r.Context(), history.AlertLogFilter{}, history.Pagination{
			Limit: exportPageSize, Offset: offset,
		})
		if err != nil {
			WriteErrorResponse(w, r, s.logger, ProblemFromError(err, s.devMode))

			return
		}

		all = append(all, page.Rows...)
		offset += len(page.Rows)

		if len(page.Rows) == 0 || offset >= page.Total {
			break
		}
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="alert_logs.csv"`)

	if err := export.WriteAlertLogsCSV(w, all); err != nil {
		s.logger.Error("failed to write alert logs CSV", "error", err.Error())
	}
}
