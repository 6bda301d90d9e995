// Package alerting implements per-user alert rule storage, plan quotas,
// and the fan-out that turns an inserted or content-changed record into
// one alert_logs row per matching rule.
package alerting

import (
	"context"
	"database/sql"
	"log/slog"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/regfeed/ingestcore/internal/canon"
	"github.com/regfeed/ingestcore/internal/errs"
)

// maxEntityNameNormLength is the 255-char bound on a rule's
// entity_name_norm filter (spec §4.3). The ingestion validator applies
// a 255-char bound to source_key only, not to entity_name_raw/norm.
const maxEntityNameNormLength = 255

// regionPattern is the canonical 2-letter-uppercase region code, per
// spec §4.3 — the same shape the ingestion validator enforces on
// incoming records.
var regionPattern = regexp.MustCompile(`^[A-Z]{2}$`)

// Plan identifies a user's subscription tier, which gates how many alert
// rules they may create.
type Plan string

const (
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
	PlanTeam    Plan = "team"
)

// planLimits maps a plan to its alert-rule quota. A limit of -1 means
// unlimited (the team plan).
var planLimits = map[Plan]int{
	PlanStarter: 1,
	PlanPro:     5,
	PlanTeam:    -1,
}

const cacheTTL = 5 * time.Minute

// ActionType records why an alert_logs row was written: the triggering
// record was newly inserted, or its content changed on a later upsert.
type ActionType string

const (
	ActionInsert ActionType = "insert"
	ActionUpdate ActionType = "update"
)

// Rule is one user-defined alert rule. A nil EntityNameNorm or Region
// means "match any" for that field; at least one of the two must be set.
type Rule struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	EntityNameNorm *string
	Region         *string
	CreatedAt      time.Time
}

// cacheEntry holds a user's rule list plus the time it was fetched, for
// the advisory TTL cache used by list endpoints only.
type cacheEntry struct {
	rules     []Rule
	fetchedAt time.Time
}

// Store owns the alert_rules / alert_logs persistence and the in-memory
// read-side cache. All authoritative checks (quota, fan-out matching)
// bypass the cache and hit the database inside the caller's transaction;
// the cache exists only to serve GET /api/alerts/user/{userId} cheaply.
type Store struct {
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[uuid.UUID]cacheEntry
}

// NewStore constructs an empty Store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		logger: logger,
		cache:  make(map[uuid.UUID]cacheEntry),
	}
}

// CreateRule validates the filter invariant and field formats, locks the
// user's row, checks quota, and inserts the rule — all within the
// caller's transaction.
//
// Locking SELECT plan FROM users ... FOR UPDATE before the quota count
// is what actually closes the TOCTOU window (spec §4.3, Testable
// Property 7): being in the same transaction as the insert is not
// sufficient under Postgres's default READ COMMITTED isolation, since
// two concurrent transactions can both read count=0 before either
// commits. Locking the user row serializes concurrent CreateRule calls
// for the same user — the second call blocks on the row lock until the
// first commits or rolls back, then reads the post-commit count.
func (s *Store) CreateRule(ctx context.Context, tx *sql.Tx, userID uuid.UUID, entityNameNorm, region *string) (Rule, error) {
	if entityNameNorm == nil && region == nil {
		return Rule{}, errs.New(errs.Validation, "alert rule must set at least one filter")
	}

	if entityNameNorm != nil && len(*entityNameNorm) > maxEntityNameNormLength {
		return Rule{}, errs.New(errs.Validation, "entity_name_norm exceeds 255 characters")
	}

	if region != nil && !regionPattern.MatchString(*region) {
		return Rule{}, errs.New(errs.Validation, "region must match ^[A-Z]{2}$")
	}

	var plan string
	if err := tx.QueryRowContext(ctx, "SELECT plan FROM users WHERE id = $1 FOR UPDATE", userID).Scan(&plan); err != nil {
		if err == sql.ErrNoRows {
			return Rule{}, errs.New(errs.NotFound, "user not found")
		}

		return Rule{}, errs.Wrap(errs.Storage, "load user plan", err)
	}

	limit, ok := planLimits[Plan(plan)]
	if !ok {
		return Rule{}, errs.New(errs.Storage, "unknown plan: "+plan)
	}

	if limit >= 0 {
		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT count(*) FROM alert_rules WHERE user_id = $1", userID,
		).Scan(&count); err != nil {
			return Rule{}, errs.Wrap(errs.Storage, "count existing alert rules", err)
		}

		if count >= limit {
			return Rule{}, errs.New(errs.BusinessLogic, "alert rule quota exceeded for plan "+plan)
		}
	}

	rule := Rule{
		ID:             uuid.New(),
		UserID:         userID,
		EntityNameNorm: entityNameNorm,
		Region:         region,
		CreatedAt:      time.Now().UTC(),
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO alert_rules (id, user_id, entity_name_norm, region, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rule.ID, rule.UserID, rule.EntityNameNorm, rule.Region, rule.CreatedAt,
	)
	if err != nil {
		return Rule{}, errs.Wrap(errs.Storage, "insert alert rule", err)
	}

	s.invalidate(userID)

	return rule, nil
}

// DeleteRule removes a rule owned by userID. It loads and locks the
// rule's owner first so it can distinguish "doesn't exist" (NotFound,
// 404) from "exists but owned by someone else" (Authorization, 403) per
// spec §6/§7 — a single combined
// "DELETE ... WHERE id = $1 AND user_id = $2" can't tell those two
// cases apart, since both leave RowsAffected at zero.
func (s *Store) DeleteRule(ctx context.Context, tx *sql.Tx, ruleID, userID uuid.UUID) error {
	var ownerID uuid.UUID

	err := tx.QueryRowContext(ctx,
		"SELECT user_id FROM alert_rules WHERE id = $1 FOR UPDATE", ruleID,
	).Scan(&ownerID)

	switch {
	case err == sql.ErrNoRows:
		return errs.New(errs.NotFound, "alert rule not found")
	case err != nil:
		return errs.Wrap(errs.Storage, "load alert rule owner", err)
	}

	if ownerID != userID {
		return errs.New(errs.Authorization, "alert rule owned by another user")
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM alert_rules WHERE id = $1", ruleID); err != nil {
		return errs.Wrap(errs.Storage, "delete alert rule", err)
	}

	s.invalidate(userID)

	return nil
}

// FanOut matches the committed record against every alert rule whose
// filters are satisfied and inserts one alert_logs row per match, in a
// single multi-row INSERT within the caller's transaction. Returns the
// number of rules matched.
func (s *Store) FanOut(ctx context.Context, tx *sql.Tx, recordID uuid.UUID, record canon.Record, action ActionType) (int, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM alert_rules
		 WHERE (entity_name_norm IS NULL OR entity_name_norm = $1)
		   AND (region IS NULL OR region = $2)`,
		record.EntityNameNorm, record.Region,
	)
	if err != nil {
		return 0, errs.Wrap(errs.Storage, "select matching alert rules", err)
	}
	defer rows.Close()

	var ruleIDs []uuid.UUID

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return 0, errs.Wrap(errs.Storage, "scan alert rule id", err)
		}

		ruleIDs = append(ruleIDs, id)
	}

	if err := rows.Err(); err != nil {
		return 0, errs.Wrap(errs.Storage, "iterate matching alert rules", err)
	}

	if len(ruleIDs) == 0 {
		return 0, nil
	}

	if err := insertAlertLogs(ctx, tx, ruleIDs, recordID, action); err != nil {
		return 0, err
	}

	return len(ruleIDs), nil
}

// insertAlertLogs performs one multi-row INSERT for all matched rules,
// reducing round-trips for records that fan out to many rules.
func insertAlertLogs(ctx context.Context, tx *sql.Tx, ruleIDs []uuid.UUID, recordID uuid.UUID, action ActionType) error {
	query := `INSERT INTO alert_logs (id, alert_rule_id, record_id, triggered_at, action_type) VALUES `

	args := make([]interface{}, 0, len(ruleIDs)*5)
	triggeredAt := time.Now().UTC()

	for i, ruleID := range ruleIDs {
		if i > 0 {
			query += ", "
		}

		base := i * 5
		query += placeholderGroup(base)

		args = append(args, uuid.New(), ruleID, recordID, triggeredAt, string(action))
	}

	_, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.Storage, "insert alert logs", err)
	}

	return nil
}

func placeholderGroup(base int) string {
	return "(" +
		placeholder(base+1) + ", " +
		placeholder(base+2) + ", " +
		placeholder(base+3) + ", " +
		placeholder(base+4) + ", " +
		placeholder(base+5) +
		")"
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

// ListForUser returns the user's alert rules, preferring the cache if it
// is fresh. This is advisory-only: never used for quota or fan-out
// matching, both of which always hit the database in-transaction.
func (s *Store) ListForUser(ctx context.Context, db *sql.DB, userID uuid.UUID) ([]Rule, error) {
	s.mu.RLock()
	entry, ok := s.cache[userID]
	s.mu.RUnlock()

	if ok && time.Since(entry.fetchedAt) < cacheTTL {
		return entry.rules, nil
	}

	rows, err := db.QueryContext(ctx,
		"SELECT id, user_id, entity_name_norm, region, created_at FROM alert_rules WHERE user_id = $1",
		userID,
	)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "list alert rules", err)
	}
	defer rows.Close()

	var rules []Rule

	for rows.Next() {
		var r Rule
		if err := rows.Scan(&r.ID, &r.UserID, &r.EntityNameNorm, &r.Region, &r.CreatedAt); err != nil {
			return nil, errs.Wrap(errs.Storage, "scan alert rule", err)
		}

		rules = append(rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Storage, "iterate alert rules", err)
	}

	s.mu.Lock()
	s.cache[userID] = cacheEntry{rules: rules, fetchedAt: time.Now()}
	s.mu.Unlock()

	return rules, nil
}

func (s *Store) invalidate(userID uuid.UUID) {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()
}
