package api

import (
	"encoding/json"
	"net/http"

	"github.com/regfeed/ingestcore/internal/canon"
	"github.com/regfeed/ingestcore/internal/ingestion"
)

// handleIngestBulk handles POST /api/ingest/bulk.
func (s *Server) handleIngestBulk(w http.ResponseWriter, r *http.Request) {
	s.handleIngest(w, r, canon.SourceBulk)
}

// handleIngestRecent handles POST /api/ingest/recent.
func (s *Server) handleIngestRecent(w http.ResponseWriter, r *http.Request) {
	s.handleIngest(w, r, canon.SourceRecent)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request, sourceType canon.SourceType) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("malformed JSON body"))

		return
	}

	records := make([]canon.Record, 0, len(req.Rows))
	for _, row := range req.Rows {
		records = append(records, canon.Record{
			SourceKey:      row.SourceKey,
			PublishedAt:    row.PublishedAt,
			Title:          row.Title,
			EntityNameRaw:  row.EntityNameRaw,
			EntityNameNorm: row.EntityNameNorm,
			Region:         row.Region,
			RecordID:       row.RecordID,
			Status:         row.Status,
			DocumentURL:    row.DocumentURL,
		}.Normalize())
	}

	opts := ingestion.DefaultOptions()
	opts.ConnectorName = "http-api"

	result, err := s.engine.IngestRecords(r.Context(), records, sourceType, opts)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, ProblemFromError(err, s.devMode))

		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{
		RunID:            result.RunID.String(),
		SourceType:       string(result.SourceType),
		ConnectorName:    result.ConnectorName,
		RecordsFetched:   result.RecordsFetched,
		RecordsInserted:  result.RecordsInserted,
		RecordsUpdated:   result.RecordsUpdated,
		RecordsSkipped:   result.RecordsSkipped,
		RecordsFailed:    result.RecordsFailed,
		ProcessingTimeMs: result.ProcessingTime.Milliseconds(),
	})
}
