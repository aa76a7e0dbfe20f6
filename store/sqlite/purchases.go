package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sacavia/guide-ledger/ledger"
)

// =============================================================================
// PURCHASES
// =============================================================================

const purchaseColumns = `id, user_id, guide_id, creator_id, amount_cents, currency, payment_method, transaction_id,
	status, platform_fee_cents, stripe_fee_cents, creator_earnings_cents, created_at, refunded_at`

// CreatePurchase inserts p. The partial unique index turns a second
// completed purchase of the same guide by the same user into
// ledger.ErrDuplicatePurchase.
func (s *Store) CreatePurchase(ctx context.Context, p ledger.Purchase) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txID := sql.NullString{String: p.TransactionID, Valid: p.TransactionID != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO purchases (`+purchaseColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.GuideID, p.CreatorID, p.Amount, p.Currency, p.PaymentMethod, txID,
		p.Status, p.Fees.PlatformFee, p.Fees.StripeFee, p.Fees.CreatorEarnings,
		formatTime(p.CreatedAt), formatTimePtr(p.RefundedAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: user %s, guide %s", ledger.ErrDuplicatePurchase, p.UserID, p.GuideID)
	}
	return mapError(err)
}

func (s *Store) GetPurchase(ctx context.Context, id ledger.PurchaseID) (*ledger.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.getPurchase(ctx, id)
}

func (s *Store) getPurchase(ctx context.Context, id ledger.PurchaseID) (*ledger.Purchase, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE id = ?`, id)
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ledger.ErrPurchaseNotFound
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (s *Store) FindCompletedPurchase(ctx context.Context, userID ledger.UserID, guideID ledger.GuideID) (*ledger.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+purchaseColumns+` FROM purchases
		WHERE user_id = ? AND guide_id = ? AND status = 'completed'
		LIMIT 1`, userID, guideID)
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (s *Store) ListPurchasesByCreator(ctx context.Context, creatorID ledger.UserID, from, to time.Time) ([]ledger.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+purchaseColumns+` FROM purchases
		WHERE creator_id = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at DESC`,
		creatorID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var purchases []ledger.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

func (s *Store) MarkRefunded(ctx context.Context, id ledger.PurchaseID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE purchases SET status = 'refunded', refunded_at = ?
		WHERE id = ? AND status = 'completed'`,
		formatTime(at), id)
	if err := requireRow(res, err, ledger.ErrPurchaseNotRefundable); !errors.Is(err, ledger.ErrPurchaseNotRefundable) {
		return err
	}

	if _, err := s.getPurchase(ctx, id); err != nil {
		return err
	}
	return ledger.ErrPurchaseNotRefundable
}

func scanPurchase(row scanner) (ledger.Purchase, error) {
	var p ledger.Purchase
	var txID, refundedAt sql.NullString
	var createdAt string
	err := row.Scan(&p.ID, &p.UserID, &p.GuideID, &p.CreatorID, &p.Amount, &p.Currency, &p.PaymentMethod, &txID,
		&p.Status, &p.Fees.PlatformFee, &p.Fees.StripeFee, &p.Fees.CreatorEarnings, &createdAt, &refundedAt)
	if err != nil {
		return p, err
	}
	p.TransactionID = txID.String
	p.CreatedAt = parseTime(createdAt)
	p.RefundedAt = parseTimePtr(refundedAt)
	return p, nil
}
