package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sacavia/guide-ledger/ledger"
)

// =============================================================================
// PAYOUTS
// =============================================================================

const payoutColumns = `id, creator_id, amount_cents, status, created_at, updated_at, completed_at`

func (s *Store) CreatePayout(ctx context.Context, p ledger.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO payouts (`+payoutColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.CreatorID, p.Amount, p.Status, formatTime(p.CreatedAt), formatTime(p.UpdatedAt), formatTimePtr(p.CompletedAt))
	return mapError(err)
}

// errNoRoom marks a payout that did not fit the available balance.
var errNoRoom = errors.New("payout exceeds available balance")

// CreatePayoutWithinBalance inserts the payout with a single conditional
// INSERT ... SELECT, so the balance check and the insert cannot interleave
// with another request, even from another process.
func (s *Store) CreatePayoutWithinBalance(ctx context.Context, p ledger.Payout) error {
	err := s.insertPayoutWithinBalance(ctx, p)
	if !errors.Is(err, errNoRoom) {
		return err
	}

	creator, err := s.GetCreator(ctx, p.CreatorID)
	if err != nil {
		return err
	}
	payouts, err := s.ListPayouts(ctx, p.CreatorID)
	if err != nil {
		return err
	}
	balance := ledger.ReconcileBalance(creator.Earnings.TotalEarnings, payouts)
	return &ledger.InsufficientBalanceError{
		CreatorID: p.CreatorID,
		Available: balance.AvailableBalance,
		Requested: p.Amount,
	}
}

func (s *Store) insertPayoutWithinBalance(ctx context.Context, p ledger.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payouts (`+payoutColumns+`)
		SELECT ?, ?, ?, ?, ?, ?, ?
		FROM creators c
		WHERE c.user_id = ?
		AND c.total_earnings_cents - (
			SELECT COALESCE(SUM(amount_cents), 0) FROM payouts
			WHERE creator_id = ? AND status IN ('pending', 'processing', 'completed')
		) >= ?`,
		p.ID, p.CreatorID, p.Amount, p.Status, formatTime(p.CreatedAt), formatTime(p.UpdatedAt), formatTimePtr(p.CompletedAt),
		p.CreatorID, p.CreatorID, p.Amount)
	return requireRow(res, err, errNoRoom)
}

func (s *Store) GetPayout(ctx context.Context, id ledger.PayoutID) (*ledger.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getPayout(ctx, id)
}

func (s *Store) getPayout(ctx context.Context, id ledger.PayoutID) (*ledger.Payout, error) {
	p, err := scanPayout(s.db.QueryRowContext(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrPayoutNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (s *Store) ListPayouts(ctx context.Context, creatorID ledger.UserID) ([]ledger.Payout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+payoutColumns+` FROM payouts
		WHERE creator_id = ?
		ORDER BY created_at DESC`, creatorID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var payouts []ledger.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

// UpdatePayoutStatus is a compare-and-set on the status column.
func (s *Store) UpdatePayoutStatus(ctx context.Context, id ledger.PayoutID, from, to ledger.PayoutStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var completedAt sql.NullString
	if to == ledger.PayoutCompleted {
		completedAt = formatTimePtr(&at)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE payouts SET status = ?, updated_at = ?, completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status = ?`,
		to, formatTime(at), completedAt, id, from)
	if err := requireRow(res, err, ledger.ErrInvalidPayoutTransition); !errors.Is(err, ledger.ErrInvalidPayoutTransition) {
		return err
	}

	if _, err := s.getPayout(ctx, id); err != nil {
		return err
	}
	return ledger.ErrInvalidPayoutTransition
}

func scanPayout(row scanner) (ledger.Payout, error) {
	var p ledger.Payout
	var createdAt, updatedAt string
	var completedAt sql.NullString
	if err := row.Scan(&p.ID, &p.CreatorID, &p.Amount, &p.Status, &createdAt, &updatedAt, &completedAt); err != nil {
		return p, err
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.CompletedAt = parseTimePtr(completedAt)
	return p, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (s *Store) CreateNotification(ctx context.Context, n ledger.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Redelivered notifications keep their id; a second insert is a no-op.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, type, title, message, guide_id, purchase_id, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		n.ID, n.RecipientID, n.Type, n.Title, n.Message, n.GuideID, n.PurchaseID, n.Read, formatTime(n.CreatedAt))
	return mapError(err)
}

func (s *Store) ListNotifications(ctx context.Context, recipientID ledger.UserID, limit int) ([]ledger.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipient_id, type, title, message, guide_id, purchase_id, read, created_at
		FROM notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, recipientID, sqlLimit(limit))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var notes []ledger.Notification
	for rows.Next() {
		var n ledger.Notification
		var createdAt string
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message, &n.GuideID, &n.PurchaseID, &n.Read, &createdAt); err != nil {
			return nil, err
		}
		n.CreatedAt = parseTime(createdAt)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// =============================================================================
// OUTBOX
// =============================================================================

func (s *Store) EnqueueOutbox(ctx context.Context, e ledger.OutboxEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := e.Status
	if status == "" {
		status = ledger.OutboxPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO outbox (id, topic, key, payload, status, attempts, last_error, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Topic, e.Key, string(e.Payload), status, e.Attempts, e.LastError,
		formatTime(e.CreatedAt), formatTimePtr(e.ProcessedAt))
	return mapError(err)
}

// ListOutbox returns entries oldest first. An empty status lists all.
func (s *Store) ListOutbox(ctx context.Context, status ledger.OutboxStatus, limit int) ([]ledger.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, topic, key, payload, status, attempts, last_error, created_at, processed_at
		FROM outbox
		WHERE (? = '' OR status = ?)
		ORDER BY created_at, id
		LIMIT ?`, status, status, sqlLimit(limit))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var entries []ledger.OutboxEntry
	for rows.Next() {
		var e ledger.OutboxEntry
		var payload, createdAt string
		var processedAt sql.NullString
		if err := rows.Scan(&e.ID, &e.Topic, &e.Key, &payload, &e.Status, &e.Attempts, &e.LastError, &createdAt, &processedAt); err != nil {
			return nil, err
		}
		e.Payload = []byte(payload)
		e.CreatedAt = parseTime(createdAt)
		e.ProcessedAt = parseTimePtr(processedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) MarkOutboxDone(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox SET status = 'done', attempts = attempts + 1, processed_at = ?
		WHERE id = ?`, formatTime(at), id)
	return mapError(err)
}

func (s *Store) MarkOutboxFailed(ctx context.Context, id string, errMsg string, dead bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE outbox
		SET attempts = attempts + 1,
			last_error = ?,
			status = CASE WHEN ? THEN 'dead' ELSE status END
		WHERE id = ?`, errMsg, dead, id)
	return mapError(err)
}

// ApplyGuideStatsFix claims entryID in applied_fixes and applies the
// increment in the same transaction. An already claimed entry is skipped.
func (s *Store) ApplyGuideStatsFix(ctx context.Context, entryID string, fix ledger.GuideStatsFix) error {
	return s.applyOnce(ctx, entryID, func(tx *sql.Tx, at string) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE guides
			SET purchases = purchases + ?, revenue_cents = revenue_cents + ?, updated_at = ?
			WHERE id = ?`,
			fix.Purchases, fix.Revenue, at, fix.GuideID)
		return requireRow(res, err, ledger.ErrGuideNotFound)
	})
}

// ApplyEarningsFix is ApplyGuideStatsFix for creator earnings.
func (s *Store) ApplyEarningsFix(ctx context.Context, entryID string, fix ledger.EarningsFix) error {
	return s.applyOnce(ctx, entryID, func(tx *sql.Tx, at string) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE creators
			SET total_earnings_cents = total_earnings_cents + ?,
				available_balance_cents = available_balance_cents + ?,
				total_sales = total_sales + ?,
				updated_at = ?
			WHERE user_id = ?`,
			fix.Delta.TotalEarnings, fix.Delta.AvailableBalance, fix.Delta.TotalSales, at, fix.CreatorID)
		return requireRow(res, err, ledger.ErrCreatorNotFound)
	})
}

func (s *Store) applyOnce(ctx context.Context, entryID string, apply func(tx *sql.Tx, at string) error) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		at := formatTime(time.Now())
		res, err := tx.ExecContext(ctx, `
			INSERT INTO applied_fixes (entry_id, applied_at) VALUES (?, ?)
			ON CONFLICT(entry_id) DO NOTHING`, entryID, at)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil || n == 0 {
			return err
		}
		return apply(tx, at)
	})
}

// sqlLimit maps "no limit" (<= 0) to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
