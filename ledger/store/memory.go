// Package store provides an in-memory ledger.Store.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sacavia/guide-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	guides        map[ledger.GuideID]ledger.Guide
	creators      map[ledger.UserID]ledger.CreatorProfile
	purchases     map[ledger.PurchaseID]ledger.Purchase
	completed     map[pairKey]ledger.PurchaseID
	payouts       map[ledger.PayoutID]ledger.Payout
	notifications []ledger.Notification
	outbox        []ledger.OutboxEntry
	appliedFixes  map[string]bool
}

// pairKey backs the one-completed-purchase-per-(user, guide) invariant.
type pairKey struct {
	UserID  ledger.UserID
	GuideID ledger.GuideID
}

func NewMemory() *Memory {
	return &Memory{
		guides:       make(map[ledger.GuideID]ledger.Guide),
		creators:     make(map[ledger.UserID]ledger.CreatorProfile),
		purchases:    make(map[ledger.PurchaseID]ledger.Purchase),
		completed:    make(map[pairKey]ledger.PurchaseID),
		payouts:      make(map[ledger.PayoutID]ledger.Payout),
		appliedFixes: make(map[string]bool),
	}
}

var _ ledger.Store = (*Memory)(nil)

// =============================================================================
// GUIDES
// =============================================================================

func (m *Memory) SaveGuide(_ context.Context, g ledger.Guide) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.guides[g.ID]; ok {
		g.Stats = existing.Stats
		g.CreatedAt = existing.CreatedAt
	}
	m.guides[g.ID] = g
	return nil
}

func (m *Memory) GetGuide(_ context.Context, id ledger.GuideID) (*ledger.Guide, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.guides[id]
	if !ok {
		return nil, ledger.ErrGuideNotFound
	}
	return &g, nil
}

func (m *Memory) ListGuides(_ context.Context, authorID ledger.UserID) ([]ledger.Guide, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Guide
	for _, g := range m.guides {
		if authorID == "" || g.AuthorID == authorID {
			result = append(result, g)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Title < result[j].Title })
	return result, nil
}

func (m *Memory) IncrementGuideStats(_ context.Context, id ledger.GuideID, purchases int64, revenue ledger.Cents) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g, ok := m.guides[id]
	if !ok {
		return ledger.ErrGuideNotFound
	}
	g.Stats.Purchases += purchases
	g.Stats.Revenue += revenue
	m.guides[id] = g
	return nil
}

// =============================================================================
// CREATORS
// =============================================================================

func (m *Memory) SaveCreator(_ context.Context, c ledger.CreatorProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.creators[c.UserID]; ok {
		c.Earnings = existing.Earnings
		c.Stats = existing.Stats
		c.CreatedAt = existing.CreatedAt
	}
	m.creators[c.UserID] = c
	return nil
}

func (m *Memory) GetCreator(_ context.Context, id ledger.UserID) (*ledger.CreatorProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.creators[id]
	if !ok {
		return nil, ledger.ErrCreatorNotFound
	}
	return &c, nil
}

func (m *Memory) IncrementEarnings(_ context.Context, id ledger.UserID, d ledger.EarningsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.creators[id]
	if !ok {
		return ledger.ErrCreatorNotFound
	}
	c.Earnings.TotalEarnings += d.TotalEarnings
	c.Earnings.AvailableBalance += d.AvailableBalance
	c.Stats.TotalSales += d.TotalSales
	m.creators[id] = c
	return nil
}

// =============================================================================
// PURCHASES
// =============================================================================

func (m *Memory) CreatePurchase(_ context.Context, p ledger.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := pairKey{UserID: p.UserID, GuideID: p.GuideID}
	if p.Status == ledger.PurchaseCompleted {
		if _, taken := m.completed[k]; taken {
			return ledger.ErrDuplicatePurchase
		}
		m.completed[k] = p.ID
	}
	m.purchases[p.ID] = p
	return nil
}

func (m *Memory) GetPurchase(_ context.Context, id ledger.PurchaseID) (*ledger.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.purchases[id]
	if !ok {
		return nil, ledger.ErrPurchaseNotFound
	}
	return &p, nil
}

func (m *Memory) FindCompletedPurchase(_ context.Context, userID ledger.UserID, guideID ledger.GuideID) (*ledger.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.completed[pairKey{UserID: userID, GuideID: guideID}]
	if !ok {
		return nil, nil
	}
	p := m.purchases[id]
	return &p, nil
}

func (m *Memory) ListPurchasesByCreator(_ context.Context, creatorID ledger.UserID, from, to time.Time) ([]ledger.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Purchase
	for _, p := range m.purchases {
		if p.CreatorID != creatorID {
			continue
		}
		if p.CreatedAt.Before(from) || !p.CreatedAt.Before(to) {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) MarkRefunded(_ context.Context, id ledger.PurchaseID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.purchases[id]
	if !ok {
		return ledger.ErrPurchaseNotFound
	}
	if p.Status != ledger.PurchaseCompleted {
		return ledger.ErrPurchaseNotRefundable
	}
	p.Status = ledger.PurchaseRefunded
	p.RefundedAt = &at
	m.purchases[id] = p
	delete(m.completed, pairKey{UserID: p.UserID, GuideID: p.GuideID})
	return nil
}

// =============================================================================
// PAYOUTS
// =============================================================================

func (m *Memory) CreatePayout(_ context.Context, p ledger.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payouts[p.ID] = p
	return nil
}

func (m *Memory) CreatePayoutWithinBalance(_ context.Context, p ledger.Payout) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.creators[p.CreatorID]
	if !ok {
		return ledger.ErrCreatorNotFound
	}
	var payouts []ledger.Payout
	for _, existing := range m.payouts {
		if existing.CreatorID == p.CreatorID {
			payouts = append(payouts, existing)
		}
	}
	balance := ledger.ReconcileBalance(c.Earnings.TotalEarnings, payouts)
	if p.Amount > balance.AvailableBalance {
		return &ledger.InsufficientBalanceError{
			CreatorID: p.CreatorID,
			Available: balance.AvailableBalance,
			Requested: p.Amount,
		}
	}
	m.payouts[p.ID] = p
	return nil
}

func (m *Memory) GetPayout(_ context.Context, id ledger.PayoutID) (*ledger.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payouts[id]
	if !ok {
		return nil, ledger.ErrPayoutNotFound
	}
	return &p, nil
}

func (m *Memory) ListPayouts(_ context.Context, creatorID ledger.UserID) ([]ledger.Payout, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Payout
	for _, p := range m.payouts {
		if p.CreatorID == creatorID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (m *Memory) UpdatePayoutStatus(_ context.Context, id ledger.PayoutID, from, to ledger.PayoutStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payouts[id]
	if !ok {
		return ledger.ErrPayoutNotFound
	}
	if p.Status != from {
		return ledger.ErrInvalidPayoutTransition
	}
	p.Status = to
	p.UpdatedAt = at
	if to == ledger.PayoutCompleted {
		p.CompletedAt = &at
	}
	m.payouts[id] = p
	return nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (m *Memory) CreateNotification(_ context.Context, n ledger.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.notifications {
		if existing.ID == n.ID {
			return nil
		}
	}
	m.notifications = append(m.notifications, n)
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, recipientID ledger.UserID, limit int) ([]ledger.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].RecipientID != recipientID {
			continue
		}
		result = append(result, m.notifications[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// =============================================================================
// OUTBOX
// =============================================================================

func (m *Memory) EnqueueOutbox(_ context.Context, e ledger.OutboxEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outbox = append(m.outbox, e)
	return nil
}

func (m *Memory) ListOutbox(_ context.Context, status ledger.OutboxStatus, limit int) ([]ledger.OutboxEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.OutboxEntry
	for _, e := range m.outbox {
		if status != "" && e.Status != status {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (m *Memory) MarkOutboxDone(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.outbox {
		if m.outbox[i].ID == id {
			m.outbox[i].Status = ledger.OutboxDone
			m.outbox[i].Attempts++
			m.outbox[i].ProcessedAt = &at
			return nil
		}
	}
	return nil
}

func (m *Memory) MarkOutboxFailed(_ context.Context, id string, errMsg string, dead bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.outbox {
		if m.outbox[i].ID == id {
			m.outbox[i].Attempts++
			m.outbox[i].LastError = errMsg
			if dead {
				m.outbox[i].Status = ledger.OutboxDead
			}
			return nil
		}
	}
	return nil
}

func (m *Memory) ApplyGuideStatsFix(_ context.Context, entryID string, fix ledger.GuideStatsFix) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appliedFixes[entryID] {
		return nil
	}
	g, ok := m.guides[fix.GuideID]
	if !ok {
		return ledger.ErrGuideNotFound
	}
	g.Stats.Purchases += fix.Purchases
	g.Stats.Revenue += fix.Revenue
	m.guides[fix.GuideID] = g
	m.appliedFixes[entryID] = true
	return nil
}

func (m *Memory) ApplyEarningsFix(_ context.Context, entryID string, fix ledger.EarningsFix) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.appliedFixes[entryID] {
		return nil
	}
	c, ok := m.creators[fix.CreatorID]
	if !ok {
		return ledger.ErrCreatorNotFound
	}
	c.Earnings.TotalEarnings += fix.Delta.TotalEarnings
	c.Earnings.AvailableBalance += fix.Delta.AvailableBalance
	c.Stats.TotalSales += fix.Delta.TotalSales
	m.creators[fix.CreatorID] = c
	m.appliedFixes[entryID] = true
	return nil
}
