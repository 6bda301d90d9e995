package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/regfeed/ingestcore/internal/history"
)

// handleListIngestionHistory handles GET /api/ingestion/history.
func (s *Server) handleListIngestionHistory(w http.ResponseWriter, r *http.Request) {
	page, err := s.history.ListRuns(r.Context(), paginationFromQuery(r))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, ProblemFromError(err, s.devMode))

		return
	}

	writeJSON(w, http.StatusOK, PageResponse{
		Rows:       page.Rows,
		Pagination: PaginationFields{Limit: page.Limit, Offset: page.Offset, Total: page.Total},
	})
}

// handleListRecords handles GET /api/records.
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	page, err := s.history.ListRecords(r.Context(), paginationFromQuery(r))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, ProblemFromError(err, s.devMode))

		return
	}

	writeJSON(w, http.StatusOK, PageResponse{
		Rows:       page.Rows,
		Pagination: PaginationFields{Limit: page.Limit, Offset: page.Offset, Total: page.Total},
	})
}

// handleListAlertLogs handles GET /api/alerts/logs.
func (s *Server) handleListAlertLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := alertLogFilterFromQuery(r)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest(err.Error()))

		return
	}

	page, err := s.history.ListAlertLogs(r.Context(), filter, paginationFromQuery(r))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, ProblemFromError(err, s.devMode))

		return
	}

	writeJSON(w, http.StatusOK, PageResponse{
		Rows:       page.Rows,
		Pagination: PaginationFields{Limit: page.Limit, Offset: page.Offset, Total: page.Total},
	})
}

func paginationFromQuery(r *http.Request) history.Pagination {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	return history.Pagination{Limit: limit, Offset: offset}
}

func alertLogFilterFromQuery(r *http.Request) (history.AlertLogFilter, error) {
	var filter history.AlertLogFilter

	if raw := r.URL.Query().Get("alertRuleId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, errInvalidQueryParam("alertRuleId")
		}

		filter.AlertRuleID = &id
	}

	if raw := r.URL.Query().Get("userId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filter, errInvalidQueryParam("userId")
		}

		filter.UserID = &id
	}

	if raw := r.URL.Query().Get("actionType"); raw != "" {
		if raw != "insert" && raw != "update" {
			return filter, errInvalidQueryParam("actionType")
		}

		filter.ActionType = &raw
	}

	return filter, nil
}
