package purchase

import (
	"context"

	"github.com/sacavia/guide-ledger/ledger"
)

// HasPurchased is the idempotency guard: it reports whether userID already
// holds a completed purchase of guideID.
//
// The check is advisory. Two concurrent requests can both pass it; the
// store's unique index on completed (user, guide) pairs rejects the loser.
func (s *Service) HasPurchased(ctx context.Context, userID ledger.UserID, guideID ledger.GuideID) (*ledger.Purchase, bool, error) {
	if userID == "" {
		return nil, false, ledger.ErrAuthenticationRequired
	}
	p, err := s.store.FindCompletedPurchase(ctx, userID, guideID)
	if err != nil {
		return nil, false, err
	}
	return p, p != nil, nil
}
