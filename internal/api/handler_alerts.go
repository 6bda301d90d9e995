package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/regfeed/ingestcore/internal/alerting"
	"github.com/regfeed/ingestcore/internal/history"
)

// handleCreateAlertRule handles POST /api/alerts.
func (s *Server) handleCreateAlertRule(w http.ResponseWriter, r *http.Request) {
	var req CreateAlertRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("malformed JSON body"))

		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("user_id must be a UUID"))

		return
	}

	var rule alerting.Rule

	txErr := s.gw.Transaction(r.Context(), func(ctx context.Context, tx *sql.Tx) error {
		var err error
		rule, err = s.alerts.CreateRule(ctx, tx, userID, req.EntityNameNorm, req.Region)

		return err
	})
	if txErr != nil {
		WriteErrorResponse(w, r, s.logger, ProblemFromError(txErr, s.devMode))

		return
	}

	writeJSON(w, http.StatusCreated, toAlertRuleResponse(rule))
}

// handleDeleteAlertRule handles DELETE /api/alerts/{id}.
func (s *Server) handleDeleteAlertRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("alert rule id must be a UUID"))

		return
	}

	userID, err := uuid.Parse(r.URL.Query().Get("userId"))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("userId query parameter must be a UUID"))

		return
	}

	txErr := s.gw.Transaction(r.Context(), func(ctx context.Context, tx *sql.Tx) error {
		return s.alerts.DeleteRule(ctx, tx, ruleID, userID)
	})
	if txErr != nil {
		WriteErrorResponse(w, r, s.logger, ProblemFromError(txErr, s.devMode))

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListUserAlertRules handles GET /api/alerts/user/{userId}.
func (s *Server) handleListUserAlertRules(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("userId must be a UUID"))

		return
	}

	rules, err := s.alerts.ListForUser(r.Context(), s.gw.GetClient(), userID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, ProblemFromError(err, s.devMode))

		return
	}

	out := make([]AlertRuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toAlertRuleResponse(rule))
	}

	writeJSON(w, http.StatusOK, AlertRuleListResponse{Rules: out})
}

// handleUserAlertStats handles GET /api/alerts/user/{userId}/stats.
func (s *Server) handleUserAlertStats(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("userId"))
	if err != nil {
		WriteErrorResponse(w, r, s.logger, BadRequest("userId must be a UUID"))

		return
	}

	rules, err := s.alerts.ListForUser(r.Context(), s.gw.GetClient(), userID)
	if err != nil {
		WriteErrorResponse(w, r, s.logger, ProblemFromError(err, s.devMode))

		return
	}

	stats := AlertStatsResponse{UserID: userID.String(), RuleCount: len(rules)}
	filter := history.AlertLogFilter{UserID: &userID}

	offset := 0
	for {
		page, err := s.history.ListAlertLogs(r.Context(), filter, history.Pagination{Limit: 100, Offset: offset})
		if err != nil {
			WriteErrorResponse(w, r, s.logger, ProblemFromError(err, s.devMode))

			return
		}

		for _, entry := range page.Rows {
			stats.TotalTriggers++

			switch entry.ActionType {
			case string(alerting.ActionInsert):
				stats.InsertCount++
			case string(alerting.ActionUpdate):
				stats.UpdateCount++
			}
		}

		offset += len(page.Rows)
		if len(page.Rows) == 0 || offset >= page.Total {
			break
		}
	}

	writeJSON(w, http.StatusOK, stats)
}

func toAlertRuleResponse(rule alerting.Rule) AlertRuleResponse {
	return AlertRuleResponse{
		ID:             rule.ID.String(),
		UserID:         rule.UserID.String(),
		EntityNameNorm: rule.EntityNameNorm,
		Region:         rule.Region,
		CreatedAt:      rule.CreatedAt,
	}
}
