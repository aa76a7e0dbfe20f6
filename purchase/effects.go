package purchase

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sacavia/guide-ledger/ledger"
	"github.com/sacavia/guide-ledger/notify"
)

// =============================================================================
// SIDE EFFECTS - Best-effort, after the purchase record is committed
// =============================================================================
//
// None of these may fail the purchase. Each store write is an atomic
// increment retried with ledger.Retry; when retries are exhausted the change
// is written to the outbox as a reconcile.* entry so the outbox worker can
// re-apply it.

func (s *Service) applyPurchaseEffects(ctx context.Context, guide ledger.Guide, p ledger.Purchase) {
	ctx = context.WithoutCancel(ctx)
	now := s.opts.Now().UTC()

	s.bumpGuideStats(ctx, p, 1, p.Amount)

	if p.IsPaid() {
		s.accrueEarnings(ctx, p, ledger.EarningsDelta{
			TotalEarnings:    p.Fees.CreatorEarnings,
			AvailableBalance: p.Fees.CreatorEarnings,
			TotalSales:       1,
		})
		if p.CreatorID != p.UserID {
			s.notifyCreator(ctx, notify.SaleNotification(guide, p, now))
		}
	}

	s.publish(ctx, ledger.TopicPurchaseCompleted, p, now)
}

func (s *Service) applyRefundEffects(ctx context.Context, guide ledger.Guide, p ledger.Purchase) {
	ctx = context.WithoutCancel(ctx)
	now := s.opts.Now().UTC()

	s.bumpGuideStats(ctx, p, -1, -p.Amount)

	if p.IsPaid() {
		s.accrueEarnings(ctx, p, ledger.EarningsDelta{
			TotalEarnings:    p.Fees.CreatorEarnings,
			AvailableBalance: p.Fees.CreatorEarnings,
			TotalSales:       1,
		}.Neg())
		if p.CreatorID != p.UserID {
			s.notifyCreator(ctx, notify.RefundNotification(guide, p, now))
		}
	}

	s.publish(ctx, ledger.TopicPurchaseRefunded, p, now)
}

func (s *Service) bumpGuideStats(ctx context.Context, p ledger.Purchase, purchases int64, revenue ledger.Cents) {
	err := ledger.Retry(ctx, s.opts.Retry, func(ctx context.Context) error {
		return s.store.IncrementGuideStats(ctx, p.GuideID, purchases, revenue)
	})
	if err == nil {
		return
	}

	sideEffectFailures.WithLabelValues("guide_stats").Inc()
	s.deadLetter(ctx, ledger.TopicReconcileGuideStats, string(p.GuideID), ledger.GuideStatsFix{
		PurchaseID: p.ID,
		GuideID:    p.GuideID,
		Purchases:  purchases,
		Revenue:    revenue,
	}, err, p)
}

// accrueEarnings is the earnings accumulator: total earnings, available
// balance and sales count move together in one atomic increment.
func (s *Service) accrueEarnings(ctx context.Context, p ledger.Purchase, delta ledger.EarningsDelta) {
	err := ledger.Retry(ctx, s.opts.Retry, func(ctx context.Context) error {
		return s.store.IncrementEarnings(ctx, p.CreatorID, delta)
	})
	if err == nil {
		return
	}

	sideEffectFailures.WithLabelValues("creator_earnings").Inc()
	s.deadLetter(ctx, ledger.TopicReconcileEarnings, string(p.CreatorID), ledger.EarningsFix{
		PurchaseID: p.ID,
		CreatorID:  p.CreatorID,
		Delta:      delta,
	}, err, p)
}

func (s *Service) notifyCreator(ctx context.Context, n ledger.Notification) {
	if s.emitter == nil {
		return
	}

	creator, err := s.store.GetCreator(ctx, n.RecipientID)
	if err != nil {
		log.WithError(err).WithField("creator_id", n.RecipientID).Warn("Creator profile unavailable, skipping email")
		creator = nil
	}

	if err := s.emitter.Emit(ctx, n, creator); err != nil {
		sideEffectFailures.WithLabelValues("notification").Inc()
		s.deadLetter(ctx, ledger.TopicReconcileNotification, string(n.RecipientID),
			ledger.NotificationFix{Notification: n}, err, ledger.Purchase{ID: n.PurchaseID, GuideID: n.GuideID, CreatorID: n.RecipientID})
	}
}

func (s *Service) publish(ctx context.Context, topic string, p ledger.Purchase, now time.Time) {
	entry, err := ledger.NewOutboxEntry(topic, string(p.ID), ledger.NewPurchaseEvent(p, now), now)
	if err == nil {
		err = s.store.EnqueueOutbox(ctx, entry)
	}
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"purchase_id": p.ID,
			"topic":       topic,
		}).Error("Failed to enqueue purchase event")
	}
}

// deadLetter records a failed side effect for the outbox worker.
func (s *Service) deadLetter(ctx context.Context, topic, key string, payload any, cause error, p ledger.Purchase) {
	fields := log.Fields{
		"purchase_id": p.ID,
		"guide_id":    p.GuideID,
		"creator_id":  p.CreatorID,
		"topic":       topic,
	}
	log.WithError(cause).WithFields(fields).Error("Purchase side effect failed, scheduling reconciliation")

	entry, err := ledger.NewOutboxEntry(topic, key, payload, s.opts.Now().UTC())
	if err == nil {
		err = s.store.EnqueueOutbox(ctx, entry)
	}
	if err != nil {
		log.WithError(err).WithFields(fields).Error("Failed to record reconciliation entry; totals need a manual audit")
	}
}
