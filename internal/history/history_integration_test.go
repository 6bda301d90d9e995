package history

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	testcontainers "github.com/testcontainers/testcontainers-go"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	schema := `
	CREATE TABLE users (
		id UUID PRIMARY KEY, email TEXT NOT NULL UNIQUE,
		plan TEXT NOT NULL CHECK (plan IN ('starter','pro','team')),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE records (
		id UUID PRIMARY KEY,
		source_key TEXT NOT NULL UNIQUE,
		published_at TEXT NOT NULL,
		title TEXT NOT NULL,
		entity_name_raw TEXT NOT NULL,
		entity_name_norm TEXT NOT NULL,
		region TEXT NOT NULL,
		record_id TEXT NOT NULL,
		status TEXT NOT NULL,
		document_url TEXT,
		raw_json JSONB NOT NULL,
		content_hash CHAR(64) NOT NULL,
		last_source_type TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE ingestion_runs (
		id UUID PRIMARY KEY,
		source_type TEXT NOT NULL,
		connector_name TEXT NOT NULL DEFAULT 'unknown',
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		records_fetched INTEGER NOT NULL,
		records_inserted INTEGER NOT NULL,
		records_updated INTEGER NOT NULL,
		error TEXT
	);
	CREATE TABLE alert_rules (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		entity_name_norm TEXT,
		region TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE TABLE alert_logs (
		id UUID PRIMARY KEY,
		alert_rule_id UUID NOT NULL REFERENCES alert_rules(id) ON DELETE CASCADE,
		record_id UUID NOT NULL REFERENCES records(id) ON DELETE CASCADE,
		triggered_at TIMESTAMPTZ NOT NULL,
		action_type TEXT NOT NULL
	);`

	_, err = db.Exec(schema)
	require.NoError(t, err)

	return db
}

func insertRun(t *testing.T, db *sql.DB, sourceType string, startedAt time.Time) {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO ingestion_runs (id, source_type, connector_name, started_at, finished_at, records_fetched, records_inserted, records_updated)
		 VALUES ($1, $2, 'test-connector', $3, $3, 1, 1, 0)`,
		uuid.New(), sourceType, startedAt,
	)
	require.NoError(t, err)
}

func TestListRuns_ReturnsPageOrderedNewestFirstWithTotal(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	insertRun(t, db, "bulk", time.Now().Add(-3*time.Hour))
	insertRun(t, db, "recent", time.Now().Add(-2*time.Hour))
	insertRun(t, db, "recent", time.Now().Add(-1*time.Hour))

	reader := NewReader(db, nil)

	page, err := reader.ListRuns(ctx, Pagination{Limit: 2, Offset: 0})
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Rows, 2)
	require.True(t, page.Rows[0].StartedAt.After(page.Rows[1].StartedAt))
}

func TestListAlertLogs_FiltersByUserAndActionType(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	userA := uuid.New()
	userB := uuid.New()

	_, err := db.Exec("INSERT INTO users (id, email, plan) VALUES ($1, $2, 'pro'), ($3, $4, 'pro')",
		userA, "a@example.com", userB, "b@example.com")
	require.NoError(t, err)

	ruleA := uuid.New()
	ruleB := uuid.New()

	_, err = db.Exec("INSERT INTO alert_rules (id, user_id, region) VALUES ($1, $2, 'TX'), ($3, $4, 'CA')",
		ruleA, userA, ruleB, userB)
	require.NoError(t, err)

	recordID := uuid.New()
	_, err = db.Exec(
		`INSERT INTO records (id, source_key, published_at, title, entity_name_raw, entity_name_norm, region,
			record_id, status, raw_json, content_hash, last_source_type)
		 VALUES ($1, 'k1', '2024-01-01T00:00:00Z', 'T', 'Acme', 'acme', 'TX', 'R1', 'open', '{}', repeat('a', 64), 'bulk')`,
		recordID,
	)
	require.NoError(t, err)

	_, err = db.Exec(
		`INSERT INTO alert_logs (id, alert_rule_id, record_id, triggered_at, action_type) VALUES
			($1, $2, $3, now(), 'insert'), ($4, $5, $3, now(), 'update')`,
		uuid.New(), ruleA, recordID, uuid.New(), ruleB,
	)
	require.NoError(t, err)

	reader := NewReader(db, nil)

	page, err := reader.ListAlertLogs(ctx, AlertLogFilter{UserID: &userA}, Pagination{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, "insert", page.Rows[0].ActionType)

	action := "update"

	page2, err := reader.ListAlertLogs(ctx, AlertLogFilter{ActionType: &action}, Pagination{Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, page2.Total)
	require.Equal(t, userB, page2.Rows[0].UserID)
}
