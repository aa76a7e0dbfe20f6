/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates a creator, guides, historical
	sales and payouts that demonstrate a specific part of the ledger.

AVAILABLE SCENARIOS:

	new-creator:       Published guides of every pricing type, no sales yet
	established-creator: A year of sales, completed and pending payouts
	overdrawn-creator: Payouts exceed earnings (available balance clamps at 0)
	drifted-creator:   One earnings increment lost, fix waiting in the outbox

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create creator and guides via the factory
 3. Record historical sales with the same fee split and increments as
    the live purchase flow (no payment processor involved)
 4. Optionally add payouts and outbox entries

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "established-creator"}

NOTE:

	Scenarios reset the database. Only mounted outside production.

SEE ALSO:
  - handlers.go: Handler wiring
  - factory/guide.go: Guide JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sacavia/guide-ledger/factory"
	"github.com/sacavia/guide-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

const demoCreator ledger.UserID = "creator-maya"

var scenarios = []ScenarioDTO{
	{
		ID:          "new-creator",
		Name:        "New Creator",
		Description: "Free, paid and pay-what-you-want guides, no sales yet",
	},
	{
		ID:          "established-creator",
		Name:        "Established Creator",
		Description: "Twelve months of sales with completed and pending payouts",
	},
	{
		ID:          "overdrawn-creator",
		Name:        "Overdrawn Creator",
		Description: "Payouts exceed earnings; available balance is clamped at zero",
	},
	{
		ID:          "drifted-creator",
		Name:        "Drifted Creator",
		Description: "A lost earnings increment shows in the audit until the outbox runs",
	},
}

var demoGuides = []string{
	`{"id": "lisbon-rooftops", "author_id": "creator-maya", "title": "Lisbon Rooftops",
	  "description": "Twelve bars with a view", "pricing": {"type": "paid", "price": "10.00"}, "status": "published"}`,
	`{"id": "porto-cafes", "author_id": "creator-maya", "title": "Porto Cafés",
	  "pricing": {"type": "free"}, "status": "published"}`,
	`{"id": "sintra-trails", "author_id": "creator-maya", "title": "Sintra Trails",
	  "pricing": {"type": "pay-what-you-want", "price": "5.00"}, "status": "published"}`,
	`{"id": "algarve-coves", "author_id": "creator-maya", "title": "Algarve Coves",
	  "pricing": {"type": "paid", "price": "20.00"}, "status": "draft"}`,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(ctx context.Context) error
	switch req.ScenarioID {
	case "new-creator":
		load = h.loadNewCreatorScenario
	case "established-creator":
		load = h.loadEstablishedCreatorScenario
	case "overdrawn-creator":
		load = h.loadOverdrawnCreatorScenario
	case "drifted-creator":
		load = h.loadDriftedCreatorScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewCreatorScenario(ctx context.Context) error {
	return h.createCreatorWithGuides(ctx, ledger.StripeAccountPending)
}

func (h *Handler) loadEstablishedCreatorScenario(ctx context.Context) error {
	if err := h.createCreatorWithGuides(ctx, ledger.StripeAccountActive); err != nil {
		return err
	}

	// Two to four sales a month for a year, most recent month included
	now := time.Now().UTC()
	buyer := 0
	for month := 11; month >= 0; month-- {
		day := now.AddDate(0, -month, 0)
		if month == 0 {
			day = now.Add(-2 * time.Hour)
		}
		for i := 0; i < 2+month%3; i++ {
			buyer++
			guide, amount := ledger.GuideID("lisbon-rooftops"), ledger.Cents(1000)
			if i%2 == 1 {
				guide, amount = "sintra-trails", ledger.Cents(500+100*int64(i))
			}
			at := day.Add(-time.Duration(i) * time.Hour)
			if err := h.recordSale(ctx, guide, ledger.UserID(fmt.Sprintf("buyer-%03d", buyer)), amount, at); err != nil {
				return err
			}
		}
	}

	if err := h.recordPayout(ctx, 5000, ledger.PayoutCompleted, now.AddDate(0, -6, 0)); err != nil {
		return err
	}
	if err := h.recordPayout(ctx, 3000, ledger.PayoutCompleted, now.AddDate(0, -2, 0)); err != nil {
		return err
	}
	return h.recordPayout(ctx, 2000, ledger.PayoutPending, now.AddDate(0, 0, -1))
}

func (h *Handler) loadOverdrawnCreatorScenario(ctx context.Context) error {
	if err := h.createCreatorWithGuides(ctx, ledger.StripeAccountActive); err != nil {
		return err
	}

	now := time.Now().UTC()
	for i := 1; i <= 3; i++ {
		at := now.AddDate(0, 0, -i)
		if err := h.recordSale(ctx, "lisbon-rooftops", ledger.UserID(fmt.Sprintf("buyer-%03d", i)), 1000, at); err != nil {
			return err
		}
	}

	// 3 x 7.91 = 23.73 earned; 20.00 paid out and 10.00 pending
	if err := h.recordPayout(ctx, 2000, ledger.PayoutCompleted, now.AddDate(0, 0, -1)); err != nil {
		return err
	}
	return h.recordPayout(ctx, 1000, ledger.PayoutPending, now.Add(-time.Hour))
}

func (h *Handler) loadDriftedCreatorScenario(ctx context.Context) error {
	if err := h.createCreatorWithGuides(ctx, ledger.StripeAccountActive); err != nil {
		return err
	}

	now := time.Now().UTC()
	if err := h.recordSale(ctx, "lisbon-rooftops", "buyer-001", 1000, now.Add(-3*time.Hour)); err != nil {
		return err
	}

	// Second sale: purchase and guide stats land, earnings increment does not
	p := demoPurchase("lisbon-rooftops", "buyer-002", 1000, now.Add(-time.Hour))
	if err := h.Store.CreatePurchase(ctx, p); err != nil {
		return err
	}
	if err := h.Store.IncrementGuideStats(ctx, p.GuideID, 1, p.Amount); err != nil {
		return err
	}

	e := p.Fees.CreatorEarnings
	entry, err := ledger.NewOutboxEntry(ledger.TopicReconcileEarnings, string(demoCreator), ledger.EarningsFix{
		PurchaseID: p.ID,
		CreatorID:  demoCreator,
		Delta:      ledger.EarningsDelta{TotalEarnings: e, AvailableBalance: e, TotalSales: 1},
	}, now)
	if err != nil {
		return err
	}
	return h.Store.EnqueueOutbox(ctx, entry)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) createCreatorWithGuides(ctx context.Context, stripeStatus ledger.StripeAccountStatus) error {
	cj := factory.CreatorJSON{
		UserID:              string(demoCreator),
		Name:                "Maya Ribeiro",
		Email:               "maya@example.com",
		StripeAccountStatus: string(stripeStatus),
	}
	if stripeStatus != ledger.StripeAccountNone {
		cj.StripeAccountID = "acct_demo_maya"
	}
	creator, err := h.GuideFactory.CreatorFromJSON(cj)
	if err != nil {
		return err
	}
	if err := h.Store.SaveCreator(ctx, *creator); err != nil {
		return err
	}

	for _, js := range demoGuides {
		guide, err := h.GuideFactory.ParseGuide(js)
		if err != nil {
			return err
		}
		if err := h.Store.SaveGuide(ctx, *guide); err != nil {
			return err
		}
	}
	return nil
}

// recordSale writes a historical sale the way the purchase flow would have.
func (h *Handler) recordSale(ctx context.Context, guideID ledger.GuideID, buyer ledger.UserID, amount ledger.Cents, at time.Time) error {
	p := demoPurchase(guideID, buyer, amount, at)
	if err := h.Store.CreatePurchase(ctx, p); err != nil {
		return err
	}
	if err := h.Store.IncrementGuideStats(ctx, guideID, 1, amount); err != nil {
		return err
	}
	e := p.Fees.CreatorEarnings
	return h.Store.IncrementEarnings(ctx, demoCreator, ledger.EarningsDelta{
		TotalEarnings: e, AvailableBalance: e, TotalSales: 1,
	})
}

func (h *Handler) recordPayout(ctx context.Context, amount ledger.Cents, status ledger.PayoutStatus, at time.Time) error {
	p := ledger.Payout{
		ID:        ledger.PayoutID(uuid.NewString()),
		CreatorID: demoCreator,
		Amount:    amount,
		Status:    status,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if status == ledger.PayoutCompleted {
		p.CompletedAt = &at
	}
	if err := h.Store.CreatePayout(ctx, p); err != nil {
		return err
	}
	if status == ledger.PayoutCompleted {
		return h.Store.IncrementEarnings(ctx, demoCreator, ledger.EarningsDelta{AvailableBalance: -amount})
	}
	return nil
}

func demoPurchase(guideID ledger.GuideID, buyer ledger.UserID, amount ledger.Cents, at time.Time) ledger.Purchase {
	method := ledger.PaymentStripe
	if guideID == "sintra-trails" {
		method = ledger.PaymentPWYW
	}
	id := uuid.NewString()
	return ledger.Purchase{
		ID:            ledger.PurchaseID(id),
		UserID:        buyer,
		GuideID:       guideID,
		CreatorID:     demoCreator,
		Amount:        amount,
		Currency:      "usd",
		PaymentMethod: method,
		TransactionID: "pi_demo_" + id[:8],
		Status:        ledger.PurchaseCompleted,
		Fees:          ledger.CalculateFees(amount),
		CreatedAt:     at.UTC(),
	}
}
