/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists guides, creator profiles, purchases, payouts, notifications and
  the outbox. In production the same patterns apply to PostgreSQL; only the
  error codes and minor SQL dialect differences change.

INVARIANTS ENFORCED HERE:
  - idx_purchases_one_completed: partial UNIQUE index on (user_id, guide_id)
    WHERE status = 'completed'. A second completed purchase fails with
    ledger.ErrDuplicatePurchase no matter how the caller raced.
  - CHECK (platform + stripe + creator == amount) on purchases.
  - Guide stats and creator earnings change only through single
    "SET x = x + ?" statements.

KEY TABLES:
  guides:        Guides and their sale counters
  creators:      Creator profiles and earnings totals
  purchases:     Purchase records (completed -> refunded is the only update)
  payouts:       Payout records and status
  notifications: In-app creator notifications
  outbox:        Purchase events and reconcile.* entries
  applied_fixes: reconcile.* entries already applied (at most once)

MIGRATION:
  Versioned SQL files in migrations/ are embedded and applied with
  golang-migrate on New().

CONCURRENCY:
  Uses sync.RWMutex around the connection and a single open connection, so
  ":memory:" databases are shared by every caller. Busy or locked errors map
  to ledger.ErrConcurrentModification.

TIMESTAMPS:
  Stored as fixed-width UTC text (nanosecond precision) so that string
  comparison orders them correctly.

USAGE:
  store, err := sqlite.New("./data/guides.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlite3 "github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"github.com/sacavia/guide-ledger/ledger"
)

//go:embed migrations/*.sql
var migrations embed.FS

// timeLayout is RFC 3339 with fixed nanoseconds, always UTC.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.Store = (*Store)(nil)

// New opens the database at dbPath and applies migrations.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// migrateUp applies the embedded migrations. The migrate instance is not
// closed: closing it would close db.
func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, dirty, _ := m.Version()
	log.WithFields(log.Fields{"version": version, "dirty": dirty}).Debug("Database schema migrated")
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn inside a transaction. fn's error rolls it back.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit())
}

// Reset deletes all data. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		tables := []string{"applied_fixes", "outbox", "notifications", "payouts", "purchases", "creators", "guides"}
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// GUIDES
// =============================================================================

func (s *Store) SaveGuide(ctx context.Context, g ledger.Guide) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guides (id, author_id, title, description, pricing_type, price_cents, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			author_id = excluded.author_id,
			title = excluded.title,
			description = excluded.description,
			pricing_type = excluded.pricing_type,
			price_cents = excluded.price_cents,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		g.ID, g.AuthorID, g.Title, g.Description, g.Pricing.Type, g.Pricing.Price, g.Status,
		formatTime(createdAt), formatTime(now),
	)
	return mapError(err)
}

const guideColumns = `id, author_id, title, description, pricing_type, price_cents, status, purchases, revenue_cents, created_at, updated_at`

func (s *Store) GetGuide(ctx context.Context, id ledger.GuideID) (*ledger.Guide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+guideColumns+` FROM guides WHERE id = ?`, id)
	g, err := scanGuide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrGuideNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &g, nil
}

func (s *Store) ListGuides(ctx context.Context, authorID ledger.UserID) ([]ledger.Guide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + guideColumns + ` FROM guides`
	var args []any
	if authorID != "" {
		query += ` WHERE author_id = ?`
		args = append(args, authorID)
	}
	query += ` ORDER BY title`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var guides []ledger.Guide
	for rows.Next() {
		g, err := scanGuide(rows)
		if err != nil {
			return nil, err
		}
		guides = append(guides, g)
	}
	return guides, rows.Err()
}

func (s *Store) IncrementGuideStats(ctx context.Context, id ledger.GuideID, purchases int64, revenue ledger.Cents) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE guides
		SET purchases = purchases + ?, revenue_cents = revenue_cents + ?, updated_at = ?
		WHERE id = ?`,
		purchases, revenue, formatTime(time.Now()), id,
	)
	return requireRow(res, err, ledger.ErrGuideNotFound)
}

func scanGuide(row scanner) (ledger.Guide, error) {
	var g ledger.Guide
	var createdAt, updatedAt string
	err := row.Scan(&g.ID, &g.AuthorID, &g.Title, &g.Description, &g.Pricing.Type, &g.Pricing.Price,
		&g.Status, &g.Stats.Purchases, &g.Stats.Revenue, &createdAt, &updatedAt)
	if err != nil {
		return g, err
	}
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return g, nil
}

// =============================================================================
// CREATORS
// =============================================================================

func (s *Store) SaveCreator(ctx context.Context, c ledger.CreatorProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := c.StripeAccountStatus
	if status == "" {
		status = ledger.StripeAccountNone
	}
	now := time.Now()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO creators (user_id, name, email, is_creator, stripe_account_id, stripe_account_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			is_creator = excluded.is_creator,
			stripe_account_id = excluded.stripe_account_id,
			stripe_account_status = excluded.stripe_account_status,
			updated_at = excluded.updated_at`,
		c.UserID, c.Name, c.Email, c.IsCreator, c.StripeAccountID, status,
		formatTime(createdAt), formatTime(now),
	)
	return mapError(err)
}

func (s *Store) GetCreator(ctx context.Context, id ledger.UserID) (*ledger.CreatorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c ledger.CreatorProfile
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, name, email, is_creator, total_earnings_cents, available_balance_cents, total_sales,
			stripe_account_id, stripe_account_status, created_at, updated_at
		FROM creators WHERE user_id = ?`, id,
	).Scan(&c.UserID, &c.Name, &c.Email, &c.IsCreator, &c.Earnings.TotalEarnings, &c.Earnings.AvailableBalance,
		&c.Stats.TotalSales, &c.StripeAccountID, &c.StripeAccountStatus, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrCreatorNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

func (s *Store) IncrementEarnings(ctx context.Context, id ledger.UserID, d ledger.EarningsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE creators
		SET total_earnings_cents = total_earnings_cents + ?,
			available_balance_cents = available_balance_cents + ?,
			total_sales = total_sales + ?,
			updated_at = ?
		WHERE user_id = ?`,
		d.TotalEarnings, d.AvailableBalance, d.TotalSales, formatTime(time.Now()), id,
	)
	return requireRow(res, err, ledger.ErrCreatorNotFound)
}

// =============================================================================
// HELPERS
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

// requireRow turns "no row updated" into notFound.
func requireRow(res sql.Result, err error, notFound error) error {
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// mapError translates SQLite busy/locked conditions into
// ledger.ErrConcurrentModification so callers can retry.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", ledger.ErrConcurrentModification, err)
	}
	return err
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
