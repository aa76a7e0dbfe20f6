/*
Package notify tells creators about sales and refunds of their guides.

PURPOSE:
  Creates an in-app notification document for the creator and, when a
  mailer is configured, sends the same message by email.

FAILURE POLICY:
  Notifications are a side effect of a committed purchase. The Emitter
  returns the notification-store error so the caller can dead-letter it, but
  the caller must never fail the purchase because of it. Email failures are
  only logged: the in-app document is the record of truth.

SEE ALSO:
  - mailer.go: SMTP mailer
  - purchase/effects.go: Caller and dead-letter handling
*/
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sacavia/guide-ledger/ledger"
)

// Mailer delivers a plain-text email.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// Emitter writes notifications for creators.
type Emitter struct {
	store  ledger.NotificationStore
	mailer Mailer
	now    func() time.Time
}

// NewEmitter creates an emitter. mailer may be nil.
func NewEmitter(store ledger.NotificationStore, mailer Mailer) *Emitter {
	return &Emitter{store: store, mailer: mailer, now: time.Now}
}

// SaleNotification builds the notification for a completed paid purchase.
func SaleNotification(guide ledger.Guide, p ledger.Purchase, now time.Time) ledger.Notification {
	return ledger.Notification{
		ID:          uuid.NewString(),
		RecipientID: p.CreatorID,
		Type:        ledger.NotificationGuideSale,
		Title:       "New guide sale",
		Message: fmt.Sprintf("Your guide %q sold for %s. You earned %s.",
			guide.Title, p.Amount.Dollars(), p.Fees.CreatorEarnings.Dollars()),
		GuideID:    p.GuideID,
		PurchaseID: p.ID,
		CreatedAt:  now,
	}
}

// RefundNotification builds the notification for a refunded purchase.
func RefundNotification(guide ledger.Guide, p ledger.Purchase, now time.Time) ledger.Notification {
	return ledger.Notification{
		ID:          uuid.NewString(),
		RecipientID: p.CreatorID,
		Type:        ledger.NotificationGuideRefund,
		Title:       "Guide purchase refunded",
		Message: fmt.Sprintf("A purchase of your guide %q for %s was refunded. %s was deducted from your earnings.",
			guide.Title, p.Amount.Dollars(), p.Fees.CreatorEarnings.Dollars()),
		GuideID:    p.GuideID,
		PurchaseID: p.ID,
		CreatedAt:  now,
	}
}

// Emit stores n and emails the creator when possible.
func (e *Emitter) Emit(ctx context.Context, n ledger.Notification, creator *ledger.CreatorProfile) error {
	if err := e.store.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}

	if e.mailer == nil || creator == nil || creator.Email == "" {
		return nil
	}
	if err := e.mailer.SendEmail(ctx, creator.Email, n.Title, n.Message); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"creator_id":  creator.UserID,
			"purchase_id": n.PurchaseID,
		}).Error("Failed to email creator notification")
	}
	return nil
}

// Redeliver stores a notification that previously failed to be written.
func (e *Emitter) Redeliver(ctx context.Context, n ledger.Notification) error {
	return e.store.CreateNotification(ctx, n)
}
