package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// OUTBOX - Durable record of events and failed side effects
// =============================================================================

// Topics. "purchase.*" entries are published to the event bus; "reconcile.*"
// entries are side effects that failed after a purchase was committed and
// must be re-applied.
const (
	TopicPurchaseCompleted = "purchase.completed"
	TopicPurchaseRefunded  = "purchase.refunded"

	TopicReconcileGuideStats   = "reconcile.guide_stats"
	TopicReconcileEarnings     = "reconcile.creator_earnings"
	TopicReconcileNotification = "reconcile.notification"
)

type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxDone    OutboxStatus = "done"
	OutboxDead    OutboxStatus = "dead"
)

type OutboxEntry struct {
	ID          string
	Topic       string
	Key         string
	Payload     json.RawMessage
	Status      OutboxStatus
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// IsReconcile reports whether the entry is a failed side effect rather than
// an event to publish.
func (e OutboxEntry) IsReconcile() bool {
	switch e.Topic {
	case TopicReconcileGuideStats, TopicReconcileEarnings, TopicReconcileNotification:
		return true
	}
	return false
}

// NewOutboxEntry marshals payload into a pending entry.
func NewOutboxEntry(topic, key string, payload any, now time.Time) (OutboxEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	return OutboxEntry{
		ID:        uuid.NewString(),
		Topic:     topic,
		Key:       key,
		Payload:   data,
		Status:    OutboxPending,
		CreatedAt: now,
	}, nil
}

// =============================================================================
// PAYLOADS
// =============================================================================

// PurchaseEvent is published for completed and refunded purchases.
type PurchaseEvent struct {
	PurchaseID      PurchaseID     `json:"purchase_id"`
	UserID          UserID         `json:"user_id"`
	GuideID         GuideID        `json:"guide_id"`
	CreatorID       UserID         `json:"creator_id"`
	AmountCents     Cents          `json:"amount_cents"`
	Currency        string         `json:"currency"`
	PaymentMethod   PaymentMethod  `json:"payment_method"`
	TransactionID   string         `json:"transaction_id,omitempty"`
	Status          PurchaseStatus `json:"status"`
	PlatformFee     Cents          `json:"platform_fee_cents"`
	StripeFee       Cents          `json:"stripe_fee_cents"`
	CreatorEarnings Cents          `json:"creator_earnings_cents"`
	OccurredAt      time.Time      `json:"occurred_at"`
}

func NewPurchaseEvent(p Purchase, at time.Time) PurchaseEvent {
	return PurchaseEvent{
		PurchaseID:      p.ID,
		UserID:          p.UserID,
		GuideID:         p.GuideID,
		CreatorID:       p.CreatorID,
		AmountCents:     p.Amount,
		Currency:        p.Currency,
		PaymentMethod:   p.PaymentMethod,
		TransactionID:   p.TransactionID,
		Status:          p.Status,
		PlatformFee:     p.Fees.PlatformFee,
		StripeFee:       p.Fees.StripeFee,
		CreatorEarnings: p.Fees.CreatorEarnings,
		OccurredAt:      at,
	}
}

// GuideStatsFix re-applies a guide stats increment.
type GuideStatsFix struct {
	PurchaseID PurchaseID `json:"purchase_id"`
	GuideID    GuideID    `json:"guide_id"`
	Purchases  int64      `json:"purchases"`
	Revenue    Cents      `json:"revenue_cents"`
}

// EarningsFix re-applies a creator earnings increment.
type EarningsFix struct {
	PurchaseID PurchaseID    `json:"purchase_id"`
	CreatorID  UserID        `json:"creator_id"`
	Delta      EarningsDelta `json:"delta"`
}

// NotificationFix re-creates a notification that could not be written.
type NotificationFix struct {
	Notification Notification `json:"notification"`
}
