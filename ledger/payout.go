package ledger

// =============================================================================
// PAYOUT RECONCILER
// =============================================================================

// Balance is the payout-aware view of a creator's earnings.
type Balance struct {
	TotalEarnings    Cents
	TotalPayouts     Cents // completed
	PendingBalance   Cents // pending + processing
	AvailableBalance Cents // never negative

	// Overdrawn is the amount by which payouts exceed earnings. Zero unless
	// AvailableBalance was clamped.
	Overdrawn Cents
}

// ReconcileBalance derives the available and pending balances from lifetime
// earnings and the creator's payout records:
//
//	availableBalance = max(0, totalEarnings - completed - (pending + processing))
//
// Failed payouts are ignored.
func ReconcileBalance(totalEarnings Cents, payouts []Payout) Balance {
	var completed, pending Cents
	for _, p := range payouts {
		switch p.Status {
		case PayoutCompleted:
			completed += p.Amount
		case PayoutPending, PayoutProcessing:
			pending += p.Amount
		}
	}

	raw := totalEarnings - completed - pending
	b := Balance{
		TotalEarnings:    totalEarnings,
		TotalPayouts:     completed,
		PendingBalance:   pending,
		AvailableBalance: raw.Max(0),
	}
	if raw < 0 {
		b.Overdrawn = -raw
	}
	return b
}

// CanTransition reports whether a payout may move from one status to another.
func (s PayoutStatus) CanTransition(to PayoutStatus) bool {
	switch s {
	case PayoutPending:
		return to == PayoutProcessing || to == PayoutFailed
	case PayoutProcessing:
		return to == PayoutCompleted || to == PayoutFailed
	}
	return false
}
