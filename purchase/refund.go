package purchase

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/sacavia/guide-ledger/ledger"
)

// Refund reverses a completed purchase. Paid purchases are refunded through
// the payment gateway before the record changes; the guide stats and creator
// earnings are then decremented with the same best-effort policy as a sale.
// After a refund the buyer may purchase the guide again.
func (s *Service) Refund(ctx context.Context, id ledger.PurchaseID, reason string) (*ledger.Purchase, error) {
	p, err := s.store.GetPurchase(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != ledger.PurchaseCompleted {
		return nil, fmt.Errorf("%w: purchase %s is %s", ledger.ErrPurchaseNotRefundable, p.ID, p.Status)
	}

	if p.IsPaid() && p.TransactionID != "" {
		if s.gateway == nil {
			return nil, ledger.ErrPaymentUnavailable
		}
		if err := s.gateway.Refund(ctx, p.TransactionID); err != nil {
			return nil, fmt.Errorf("refund charge %s: %w", p.TransactionID, err)
		}
	}

	now := s.opts.Now().UTC()
	if err := s.store.MarkRefunded(ctx, p.ID, now); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"purchase_id":    p.ID,
			"transaction_id": p.TransactionID,
		}).Error("Charge refunded but purchase could not be marked refunded")
		return nil, err
	}
	p.Status = ledger.PurchaseRefunded
	p.RefundedAt = &now

	log.WithFields(log.Fields{
		"purchase_id": p.ID,
		"guide_id":    p.GuideID,
		"amount":      p.Amount.String(),
		"reason":      reason,
	}).Info("Guide purchase refunded")

	guide, err := s.store.GetGuide(ctx, p.GuideID)
	if err != nil {
		guide = &ledger.Guide{ID: p.GuideID, Title: string(p.GuideID)}
	}
	s.applyRefundEffects(ctx, *guide, *p)

	return p, nil
}
