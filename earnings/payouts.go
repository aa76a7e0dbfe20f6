package earnings

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sacavia/guide-ledger/ledger"
)

// =============================================================================
// PAYOUTS
// =============================================================================

// RequestPayout creates a pending payout. The amount must be positive and no
// larger than the reconciled available balance, which already excludes
// pending and processing payouts. The store checks and inserts atomically.
func (s *Service) RequestPayout(ctx context.Context, creatorID ledger.UserID, amount ledger.Cents) (*ledger.Payout, error) {
	if amount <= 0 {
		return nil, &ledger.InvalidAmountError{Amount: amount.String(), Reason: "payout amount must be positive"}
	}

	now := s.now().UTC()
	p := ledger.Payout{
		ID:        ledger.PayoutID(uuid.NewString()),
		CreatorID: creatorID,
		Amount:    amount,
		Status:    ledger.PayoutPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := ledger.Retry(ctx, ledger.DefaultRetryPolicy, func(ctx context.Context) error {
		return s.store.CreatePayoutWithinBalance(ctx, p)
	})
	if err != nil {
		if ledger.IsClientError(err) || ledger.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("create payout: %w", err)
	}

	log.WithFields(log.Fields{
		"payout_id":  p.ID,
		"creator_id": creatorID,
		"amount":     amount.String(),
	}).Info("Payout requested")
	return &p, nil
}

// UpdatePayoutStatus moves a payout along pending -> processing -> completed,
// or to failed from either open state. Completing a payout deducts it from
// the creator's stored available balance.
func (s *Service) UpdatePayoutStatus(ctx context.Context, id ledger.PayoutID, to ledger.PayoutStatus) (*ledger.Payout, error) {
	p, err := s.store.GetPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ledger.ErrInvalidPayoutTransition, p.Status, to)
	}

	now := s.now().UTC()
	if err := s.store.UpdatePayoutStatus(ctx, id, p.Status, to, now); err != nil {
		return nil, err
	}

	if to == ledger.PayoutCompleted {
		delta := ledger.EarningsDelta{AvailableBalance: -p.Amount}
		err := ledger.Retry(ctx, ledger.DefaultRetryPolicy, func(ctx context.Context) error {
			return s.store.IncrementEarnings(ctx, p.CreatorID, delta)
		})
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"payout_id":  p.ID,
				"creator_id": p.CreatorID,
			}).Error("Payout completed but available balance was not deducted")
			s.reconcileLater(ctx, p, delta)
		}
	}

	log.WithFields(log.Fields{
		"payout_id": p.ID,
		"from":      p.Status,
		"to":        to,
	}).Info("Payout status updated")

	p.Status = to
	p.UpdatedAt = now
	if to == ledger.PayoutCompleted {
		p.CompletedAt = &now
	}
	return p, nil
}

func (s *Service) reconcileLater(ctx context.Context, p *ledger.Payout, delta ledger.EarningsDelta) {
	entry, err := ledger.NewOutboxEntry(ledger.TopicReconcileEarnings, string(p.CreatorID), ledger.EarningsFix{
		CreatorID: p.CreatorID,
		Delta:     delta,
	}, s.now().UTC())
	if err == nil {
		err = s.store.EnqueueOutbox(context.WithoutCancel(ctx), entry)
	}
	if err != nil {
		log.WithError(err).WithField("payout_id", p.ID).Error("Failed to record reconciliation entry")
	}
}

// ListPayouts returns the creator's payouts, newest first.
func (s *Service) ListPayouts(ctx context.Context, creatorID ledger.UserID) ([]ledger.Payout, error) {
	if _, err := s.store.GetCreator(ctx, creatorID); err != nil {
		return nil, err
	}
	return s.store.ListPayouts(ctx, creatorID)
}
