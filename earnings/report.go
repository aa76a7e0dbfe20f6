/*
Package earnings answers "how much has this creator earned, and how much can
they withdraw?"

PURPOSE:
  Builds the creator earnings report, audits the stored running totals
  against the purchase records and manages payout requests.

KEY INSIGHT:
  The creator profile carries running totals (lifetime earnings, available
  balance, sales count) that are updated by increments after each purchase.
  Everything period-based (last 30 days, this month, the 12-month trend) is
  computed from the purchase records themselves, so it cannot drift.
  Audit compares the two views.

REPORT COMPONENTS:
  Lifetime:   totalEarnings, totalSales           (profile running totals)
  Balance:    available, pending, totalPayouts    (ledger.ReconcileBalance)
  Period:     earnings, sales, revenue, average   (purchases in the window)
  Monthly:    earnings, sales                     (current calendar month, UTC)
  Trend:      12 calendar months, oldest first
  PayoutInfo: Stripe account state and recent payouts

  Only completed paid purchases count. Refunded purchases and free claims
  are excluded everywhere.

EXAMPLE:
  Two sales this month, $20.00 and $5.00:
    creatorEarnings = 16.12 + 3.80
    monthlyEarnings = 19.92, monthlySales = 2

SEE ALSO:
  - payouts.go: Payout requests and status transitions
  - ledger/payout.go: Balance reconciliation
*/
package earnings

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sacavia/guide-ledger/ledger"
)

const (
	recentSalesLimit   = 10
	recentPayoutsLimit = 5
	trendMonths        = 12
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store ledger.Store
	now   func() time.Time
}

// NewService creates an earnings service. now defaults to time.Now.
func NewService(store ledger.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// =============================================================================
// REPORT
// =============================================================================

type Report struct {
	CreatorID ledger.UserID
	Period    ledger.Period
	Window    ledger.Window

	TotalEarnings ledger.Cents
	TotalSales    int64
	Balance       ledger.Balance

	PeriodEarnings ledger.Cents
	PeriodSales    int64
	PeriodRevenue  ledger.Cents
	AverageSale    ledger.Cents

	MonthlyEarnings ledger.Cents
	MonthlySales    int64

	RecentSales []Sale
	Trend       []MonthPoint
	PayoutInfo  PayoutInfo
}

// Sale is one completed purchase as seen by the creator.
type Sale struct {
	PurchaseID ledger.PurchaseID
	GuideID    ledger.GuideID
	GuideTitle string
	BuyerID    ledger.UserID
	Amount     ledger.Cents
	Earnings   ledger.Cents
	CreatedAt  time.Time
}

type MonthPoint struct {
	Month    string // YYYY-MM
	Earnings ledger.Cents
	Sales    int64
}

type PayoutInfo struct {
	StripeAccountID     string
	StripeAccountStatus ledger.StripeAccountStatus
	CanReceivePayouts   bool
	RecentPayouts       []ledger.Payout
}

// tally accumulates completed sales.
type tally struct {
	earnings ledger.Cents
	revenue  ledger.Cents
	sales    int64
}

func (t *tally) add(p ledger.Purchase) {
	t.earnings += p.Fees.CreatorEarnings
	t.revenue += p.Amount
	t.sales++
}

// Report builds the earnings report for period ("7d", "30d", "90d", "1y";
// empty means 30d).
func (s *Service) Report(ctx context.Context, creatorID ledger.UserID, period string) (*Report, error) {
	p, err := ledger.ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	creator, err := s.store.GetCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	payouts, err := s.store.ListPayouts(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	window := p.WindowAt(now)
	month := ledger.MonthWindow(now)
	trend := ledger.TrailingMonths(now, trendMonths)

	// One scan covers the period, the current month and the trend.
	from := window.Start
	if trend[0].Start.Before(from) {
		from = trend[0].Start
	}
	to := window.End
	if month.End.After(to) {
		to = month.End
	}
	purchases, err := s.store.ListPurchasesByCreator(ctx, creatorID, from, to)
	if err != nil {
		return nil, err
	}

	r := &Report{
		CreatorID:     creatorID,
		Period:        p,
		Window:        window,
		TotalEarnings: creator.Earnings.TotalEarnings,
		TotalSales:    creator.Stats.TotalSales,
		Balance:       ledger.ReconcileBalance(creator.Earnings.TotalEarnings, payouts),
		PayoutInfo: PayoutInfo{
			StripeAccountID:     creator.StripeAccountID,
			StripeAccountStatus: creator.StripeAccountStatus,
			CanReceivePayouts:   creator.StripeAccountID != "" && creator.StripeAccountStatus == ledger.StripeAccountActive,
			RecentPayouts:       firstN(payouts, recentPayoutsLimit),
		},
	}

	var inPeriod, inMonth tally
	monthly := make([]tally, len(trend))
	titles := map[ledger.GuideID]string{}

	// purchases are newest first
	for _, pur := range purchases {
		if pur.Status != ledger.PurchaseCompleted || !pur.IsPaid() {
			continue
		}
		if window.Contains(pur.CreatedAt) {
			inPeriod.add(pur)
			if len(r.RecentSales) < recentSalesLimit {
				r.RecentSales = append(r.RecentSales, s.sale(ctx, pur, titles))
			}
		}
		if month.Contains(pur.CreatedAt) {
			inMonth.add(pur)
		}
		for i, w := range trend {
			if w.Contains(pur.CreatedAt) {
				monthly[i].add(pur)
				break
			}
		}
	}

	r.PeriodEarnings = inPeriod.earnings
	r.PeriodRevenue = inPeriod.revenue
	r.PeriodSales = inPeriod.sales
	r.AverageSale = average(inPeriod.revenue, inPeriod.sales)
	r.MonthlyEarnings = inMonth.earnings
	r.MonthlySales = inMonth.sales

	r.Trend = make([]MonthPoint, len(trend))
	for i, w := range trend {
		r.Trend[i] = MonthPoint{
			Month:    w.Start.Format("2006-01"),
			Earnings: monthly[i].earnings,
			Sales:    monthly[i].sales,
		}
	}
	return r, nil
}

func (s *Service) sale(ctx context.Context, p ledger.Purchase, titles map[ledger.GuideID]string) Sale {
	title, ok := titles[p.GuideID]
	if !ok {
		if g, err := s.store.GetGuide(ctx, p.GuideID); err == nil {
			title = g.Title
		}
		titles[p.GuideID] = title
	}
	return Sale{
		PurchaseID: p.ID,
		GuideID:    p.GuideID,
		GuideTitle: title,
		BuyerID:    p.UserID,
		Amount:     p.Amount,
		Earnings:   p.Fees.CreatorEarnings,
		CreatedAt:  p.CreatedAt,
	}
}

// average rounds half-up to the cent.
func average(total ledger.Cents, n int64) ledger.Cents {
	if n == 0 {
		return 0
	}
	avg := decimal.NewFromInt(int64(total)).Div(decimal.NewFromInt(n)).Round(0)
	return ledger.Cents(avg.IntPart())
}

func firstN[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}

// =============================================================================
// AUDIT
// =============================================================================

// Audit compares a creator's running totals with the totals recomputed from
// the purchase and payout records.
type Audit struct {
	CreatorID ledger.UserID

	StoredEarnings    ledger.Cents
	ExpectedEarnings  ledger.Cents
	StoredSales       int64
	ExpectedSales     int64
	StoredAvailable   ledger.Cents
	ExpectedAvailable ledger.Cents

	// Overdrawn is non-zero when payouts exceed lifetime earnings.
	Overdrawn ledger.Cents
}

// Consistent reports whether the stored totals match the records.
func (a Audit) Consistent() bool {
	return a.StoredEarnings == a.ExpectedEarnings &&
		a.StoredSales == a.ExpectedSales &&
		a.StoredAvailable == a.ExpectedAvailable &&
		a.Overdrawn == 0
}

func (a Audit) EarningsDrift() ledger.Cents { return a.StoredEarnings - a.ExpectedEarnings }
func (a Audit) SalesDrift() int64           { return a.StoredSales - a.ExpectedSales }

// Audit recomputes lifetime earnings and sales from completed paid purchases.
// The stored available balance is expected to equal lifetime earnings minus
// completed payouts (pending payouts are not deducted until they complete).
func (s *Service) Audit(ctx context.Context, creatorID ledger.UserID) (*Audit, error) {
	creator, err := s.store.GetCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	purchases, err := s.store.ListPurchasesByCreator(ctx, creatorID, time.Time{}, s.now().UTC().Add(time.Nanosecond))
	if err != nil {
		return nil, err
	}
	payouts, err := s.store.ListPayouts(ctx, creatorID)
	if err != nil {
		return nil, err
	}

	var all tally
	for _, p := range purchases {
		if p.Status == ledger.PurchaseCompleted && p.IsPaid() {
			all.add(p)
		}
	}
	balance := ledger.ReconcileBalance(all.earnings, payouts)

	return &Audit{
		CreatorID:         creatorID,
		StoredEarnings:    creator.Earnings.TotalEarnings,
		ExpectedEarnings:  all.earnings,
		StoredSales:       creator.Stats.TotalSales,
		ExpectedSales:     all.sales,
		StoredAvailable:   creator.Earnings.AvailableBalance,
		ExpectedAvailable: all.earnings - balance.TotalPayouts,
		Overdrawn:         balance.Overdrawn,
	}, nil
}
