/*
store.go - Persistence interfaces for guides, purchases, creators and payouts

PURPOSE:
  Defines the interface between the purchase/earnings logic and the database.
  Implementations: store/sqlite (production) and ledger/store (in-memory, tests).

CONCURRENCY CONTRACT:
  Concurrent requests share the store and nothing else, so the store carries
  the invariants that a read-then-write in the caller cannot:
  - CreatePurchase rejects a second completed purchase for the same
    (user, guide) with ErrDuplicatePurchase (unique index, not a pre-read).
  - IncrementGuideStats and IncrementEarnings are single atomic increments
    (SET x = x + ?), never read-modify-write. Negative deltas reverse them.
  - CreatePayoutWithinBalance checks the reconciled available balance and
    inserts the payout in one step, so concurrent payout requests cannot
    overdraw it together.
  - Busy/locked conditions surface as ErrConcurrentModification so callers
    can retry with ledger.Retry.

NOT FOUND:
  Get* methods return the matching Err*NotFound sentinel, never (nil, nil).
  FindCompletedPurchase is the exception: (nil, nil) means "not purchased".

SEE ALSO:
  - store/sqlite/sqlite.go: SQLite implementation
  - ledger/store/memory.go: In-memory implementation
*/
package ledger

import (
	"context"
	"time"
)

// GuideStore persists guides.
type GuideStore interface {
	SaveGuide(ctx context.Context, g Guide) error
	GetGuide(ctx context.Context, id GuideID) (*Guide, error)
	ListGuides(ctx context.Context, authorID UserID) ([]Guide, error)

	// IncrementGuideStats atomically adds to the guide's sale counters.
	IncrementGuideStats(ctx context.Context, id GuideID, purchases int64, revenue Cents) error
}

// CreatorStore persists creator profiles.
type CreatorStore interface {
	// SaveCreator upserts profile fields. Earnings and stats of an existing
	// profile are left untouched.
	SaveCreator(ctx context.Context, c CreatorProfile) error
	GetCreator(ctx context.Context, id UserID) (*CreatorProfile, error)

	// IncrementEarnings atomically applies delta to the creator's totals.
	IncrementEarnings(ctx context.Context, id UserID, delta EarningsDelta) error
}

// PurchaseStore persists purchases. There is no general update: the only
// mutation is MarkRefunded.
type PurchaseStore interface {
	// CreatePurchase returns ErrDuplicatePurchase if a completed purchase of
	// the same guide by the same user already exists.
	CreatePurchase(ctx context.Context, p Purchase) error
	GetPurchase(ctx context.Context, id PurchaseID) (*Purchase, error)
	FindCompletedPurchase(ctx context.Context, userID UserID, guideID GuideID) (*Purchase, error)

	// ListPurchasesByCreator returns purchases of the creator's guides created
	// in [from, to), newest first, all statuses.
	ListPurchasesByCreator(ctx context.Context, creatorID UserID, from, to time.Time) ([]Purchase, error)

	// MarkRefunded moves a completed purchase to refunded. Returns
	// ErrPurchaseNotRefundable if it is not completed.
	MarkRefunded(ctx context.Context, id PurchaseID, at time.Time) error
}

// PayoutStore persists payouts.
type PayoutStore interface {
	CreatePayout(ctx context.Context, p Payout) error

	// CreatePayoutWithinBalance inserts p only if p.Amount fits in the
	// creator's reconciled available balance (see ReconcileBalance). The
	// check and the insert are atomic. Returns *InsufficientBalanceError when
	// it does not fit and ErrCreatorNotFound for an unknown creator.
	CreatePayoutWithinBalance(ctx context.Context, p Payout) error

	GetPayout(ctx context.Context, id PayoutID) (*Payout, error)
	ListPayouts(ctx context.Context, creatorID UserID) ([]Payout, error)

	// UpdatePayoutStatus sets the status only if the payout is still in
	// status from; otherwise ErrInvalidPayoutTransition.
	UpdatePayoutStatus(ctx context.Context, id PayoutID, from, to PayoutStatus, at time.Time) error
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, recipientID UserID, limit int) ([]Notification, error)
}

// OutboxStore persists outbox entries.
type OutboxStore interface {
	EnqueueOutbox(ctx context.Context, e OutboxEntry) error
	ListOutbox(ctx context.Context, status OutboxStatus, limit int) ([]OutboxEntry, error)
	MarkOutboxDone(ctx context.Context, id string, at time.Time) error

	// MarkOutboxFailed records a failed attempt; dead moves it out of the
	// pending queue for good.
	MarkOutboxFailed(ctx context.Context, id string, errMsg string, dead bool) error

	// ApplyGuideStatsFix and ApplyEarningsFix apply the increment of a
	// reconcile.* entry at most once per entry id. The increment and the
	// applied marker are written together; a repeat is a no-op.
	ApplyGuideStatsFix(ctx context.Context, entryID string, fix GuideStatsFix) error
	ApplyEarningsFix(ctx context.Context, entryID string, fix EarningsFix) error
}

// Store is everything the purchase and earnings services need.
type Store interface {
	GuideStore
	CreatorStore
	PurchaseStore
	PayoutStore
	NotificationStore
	OutboxStore
}
