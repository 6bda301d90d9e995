// Package gateway owns the single *sql.DB pool shared by the ingestion
// engine, the alert store, and the history readers, and is the only
// package in this module that imports database/sql directly.
package gateway

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/regfeed/ingestcore/internal/errs"
)

const (
	postgresDriver = "postgres"

	healthCheckTimeout = 5 * time.Second
	shutdownTimeout    = 10 * time.Second
	slowQueryThreshold = time.Second
	slowQueryPreview   = 100

	retryMaxAttempts  = 3
	retryInitialDelay = 1 * time.Second
	retryMaxDelay     = 5 * time.Second

	reconnectMaxAttempts = 5
	monitorInterval      = 30 * time.Second
)

// Config carries pool-tuning and connection parameters, mirroring the
// teacher's storage.Config shape.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Scope is the callback a caller passes to Transaction; it receives a
// *sql.Tx scoped to one database transaction and must not retain it
// beyond the call.
type Scope func(ctx context.Context, tx *sql.Tx) error

// Gateway owns the pooled *sql.DB connection and exposes the three
// operations every other internal package needs: standalone queries
// (with retry for transient connection failures), access to the raw
// client for drivers that need it directly, and transaction scoping.
type Gateway struct {
	db     *sql.DB
	logger *slog.Logger

	mu        sync.Mutex
	reconnect chan struct{}
	closed    bool
	stopMon   chan struct{}
	monDone   chan struct{}
}

// New opens the pool, tunes it per Config, and performs an initial
// health check before returning.
func New(cfg Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(postgresDriver, cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.Storage, "open database pool", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.Storage, "initial database health check", err)
	}

	g := &Gateway{
		db:        db,
		logger:    logger,
		reconnect: make(chan struct{}, 1),
		stopMon:   make(chan struct{}),
		monDone:   make(chan struct{}),
	}

	go g.monitorHealth()

	return g, nil
}

// monitorHealth is the background reconnect loop required by the pool's
// resilience contract: it periodically pings the pool and, on failure,
// engages Reconnect's bounded retry before resuming its normal interval.
// It runs for the lifetime of the Gateway and exits when End is called.
func (g *Gateway) monitorHealth() {
	defer close(g.monDone)

	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.stopMon:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
			err := g.HealthCheck(ctx)
			cancel()

			if err == nil {
				continue
			}

			g.logger.Warn("background health check failed, engaging reconnect loop", "error", err)

			reconnCtx, reconnCancel := context.WithTimeout(context.Background(), monitorInterval)
			if err := g.Reconnect(reconnCtx); err != nil {
				g.logger.Error("background reconnect loop exhausted", "error", err)
			}
			reconnCancel()
		}
	}
}

// HealthCheck pings the database with a bounded timeout.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	if ctx == nil {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()
	}

	if err := g.db.PingContext(ctx); err != nil {
		return errs.Wrap(errs.Storage, "health check", err)
	}

	return nil
}

// Stats exposes pool statistics for the /api/metrics surface.
func (g *Gateway) Stats() sql.DBStats {
	return g.db.Stats()
}

// GetClient returns the underlying *sql.DB for callers (e.g. the
// migrator, or ad hoc admin tooling) that need direct access. Most
// business-logic code should prefer Query or Transaction.
func (g *Gateway) GetClient() *sql.DB {
	return g.db
}

// Query runs a standalone, non-transactional query with retry-with-backoff
// for transient connection failures. fn receives the pooled *sql.DB and
// should not start a transaction itself — use Transaction for that.
// queryLabel identifies the query for slow-query logging; only its first
// 100 characters are logged.
func (g *Gateway) Query(ctx context.Context, queryLabel string, fn func(ctx context.Context, db *sql.DB) error) error {
	policy := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(retryInitialDelay),
			backoff.WithMaxInterval(retryMaxDelay),
		),
		retryMaxAttempts-1,
	)

	started := time.Now()

	operation := func() error {
		err := fn(ctx, g.db)
		if err == nil {
			return nil
		}

		if isRetryableConnectionError(err) {
			g.logger.Warn("retrying standalone query after connection error", "error", err)
			return err
		}

		return backoff.Permanent(err)
	}

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))

	g.logSlowQuery(started, truncate(queryLabel, slowQueryPreview))

	if err != nil {
		return errs.Wrap(errs.Storage, "standalone query", err).WithRetryable(isRetryableConnectionError(err))
	}

	return nil
}

// Transaction runs scope inside a single *sql.Tx, committing on success
// and rolling back on any error (including a panic, which is
// re-panicked after rollback). Transactions are never retried: once a
// caller is inside one, the retry boundary has already been crossed.
func (g *Gateway) Transaction(ctx context.Context, scope Scope) error {
	started := time.Now()

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Storage, "begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := scope(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			g.logger.Error("rollback failed after scope error", "scope_error", err, "rollback_error", rbErr)
		}

		g.logSlowQuery(started, "transaction (rolled back)")

		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.Storage, "commit transaction", err)
	}

	g.logSlowQuery(started, "transaction")

	return nil
}

func (g *Gateway) logSlowQuery(started time.Time, label string) {
	elapsed := time.Since(started)
	if elapsed < slowQueryThreshold {
		return
	}

	g.logger.Warn("slow database operation", "label", label, "elapsed", elapsed)
}

// End shuts the pool down gracefully, bounded by shutdownTimeout.
func (g *Gateway) End(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return nil
	}

	g.closed = true
	close(g.stopMon)
	<-g.monDone

	done := make(chan error, 1)

	go func() {
		done <- g.db.Close()
	}()

	select {
	case err := <-done:
		if err != nil {
			return errs.Wrap(errs.Storage, "close database pool", err)
		}

		return nil
	case <-time.After(shutdownTimeout):
		return errs.New(errs.Storage, "timed out closing database pool")
	}
}

// Reconnect runs a bounded background retry loop attempting to restore
// connectivity after HealthCheck starts failing, mirroring the teacher's
// reconnect-on-failure idiom for long-lived server processes.
func (g *Gateway) Reconnect(ctx context.Context) error {
	policy := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(retryInitialDelay),
			backoff.WithMaxInterval(retryMaxDelay),
		),
		reconnectMaxAttempts-1,
	)

	attempt := 0

	operation := func() error {
		attempt++

		err := g.HealthCheck(ctx)
		if err != nil {
			g.logger.Warn("reconnect attempt failed", "attempt", attempt, "error", err)
		}

		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return errs.Wrap(errs.Storage, "reconnect loop exhausted", err)
	}

	return nil
}

// IsConnectionFatal reports whether err indicates the underlying
// connection is broken, meaning a transaction that hit this error cannot
// be continued even with a savepoint — the whole transaction must abort.
// Callers running per-record work inside a larger transaction (see
// internal/ingestion) use this to distinguish a row-level failure (safe
// to savepoint-rollback and continue) from a connection-level one.
func IsConnectionFatal(err error) bool {
	return isRetryableConnectionError(err)
}

// retryablePostgresCodes names the specific non-class-08 error codes that
// are also transient: 57P01 (admin_shutdown, e.g. a failover) and 40001
// (serialization_failure under higher isolation levels).
var retryablePostgresCodes = map[string]bool{
	"57P01": true,
	"40001": true,
}

// isRetryableConnectionError classifies failures using the teacher's
// lineage_store.go idiom: PostgreSQL class-08 (connection exception)
// codes, admin_shutdown and serialization_failure, plus the standard
// database/sql sentinel connection errors.
func isRetryableConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.HasPrefix(string(pqErr.Code), "08") || retryablePostgresCodes[string(pqErr.Code)]
	}

	return errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n]
}
