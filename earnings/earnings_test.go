package earnings_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacavia/guide-ledger/earnings"
	"github.com/sacavia/guide-ledger/ledger"
	"github.com/sacavia/guide-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store *store.Memory
	svc   *earnings.Service
	seq   int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, st.SaveCreator(ctx, ledger.CreatorProfile{
		UserID:              "creator-1",
		Name:                "Maya",
		IsCreator:           true,
		StripeAccountID:     "acct_123",
		StripeAccountStatus: ledger.StripeAccountActive,
	}))
	require.NoError(t, st.SaveGuide(ctx, ledger.Guide{
		ID: "lisbon", AuthorID: "creator-1", Title: "Lisbon Rooftops", Status: ledger.GuidePublished,
		Pricing: ledger.Pricing{Type: ledger.PricingPaid, Price: ledger.MustCents("20.00")},
	}))
	return &fixture{store: st, svc: earnings.NewService(st, func() time.Time { return now })}
}

// sell records a completed sale and applies it to the running totals, the
// way the purchase service does.
func (f *fixture) sell(t *testing.T, amount string, at time.Time) ledger.Purchase {
	t.Helper()
	f.seq++
	cents := ledger.MustCents(amount)
	p := ledger.Purchase{
		ID:            ledger.PurchaseID(fmt.Sprintf("p-%d", f.seq)),
		UserID:        ledger.UserID(fmt.Sprintf("buyer-%d", f.seq)),
		GuideID:       "lisbon",
		CreatorID:     "creator-1",
		Amount:        cents,
		Currency:      "usd",
		PaymentMethod: ledger.PaymentStripe,
		TransactionID: fmt.Sprintf("pi_%d", f.seq),
		Status:        ledger.PurchaseCompleted,
		Fees:          ledger.CalculateFees(cents),
		CreatedAt:     at,
	}
	ctx := context.Background()
	require.NoError(t, f.store.CreatePurchase(ctx, p))
	require.NoError(t, f.store.IncrementEarnings(ctx, "creator-1", ledger.EarningsDelta{
		TotalEarnings:    p.Fees.CreatorEarnings,
		AvailableBalance: p.Fees.CreatorEarnings,
		TotalSales:       1,
	}))
	return p
}

func (f *fixture) payout(t *testing.T, amount string, status ledger.PayoutStatus, at time.Time) {
	t.Helper()
	f.seq++
	require.NoError(t, f.store.CreatePayout(context.Background(), ledger.Payout{
		ID:        ledger.PayoutID(fmt.Sprintf("po-%d", f.seq)),
		CreatorID: "creator-1",
		Amount:    ledger.MustCents(amount),
		Status:    status,
		CreatedAt: at,
		UpdatedAt: at,
	}))
}

// =============================================================================
// REPORT
// =============================================================================

func TestReport_MonthlyEarningsSumOfSales(t *testing.T) {
	// GIVEN: Two sales this month, $20 and $5
	// WHEN: The earnings report is built
	// THEN: monthlyEarnings = 16.12 + 3.80 = 19.92 and monthlySales = 2

	f := newFixture(t)
	f.sell(t, "20.00", now.Add(-48*time.Hour))
	f.sell(t, "5.00", now.Add(-time.Hour))

	r, err := f.svc.Report(context.Background(), "creator-1", "")
	require.NoError(t, err)

	assert.Equal(t, ledger.Period30Days, r.Period)
	assert.Equal(t, ledger.MustCents("19.92"), r.MonthlyEarnings)
	assert.Equal(t, int64(2), r.MonthlySales)
	assert.Equal(t, ledger.MustCents("19.92"), r.PeriodEarnings)
	assert.Equal(t, ledger.MustCents("25.00"), r.PeriodRevenue)
	assert.Equal(t, ledger.MustCents("12.50"), r.AverageSale)
	assert.Equal(t, ledger.MustCents("19.92"), r.TotalEarnings)
	assert.Equal(t, int64(2), r.TotalSales)
}

func TestReport_PeriodExcludesOlderSales(t *testing.T) {
	// GIVEN: One sale 3 days ago and one 20 days ago
	// WHEN: The 7d report is built
	// THEN: Only the recent sale is in the period; both are lifetime

	f := newFixture(t)
	recent := f.sell(t, "10.00", now.AddDate(0, 0, -3))
	f.sell(t, "20.00", now.AddDate(0, 0, -20))

	r, err := f.svc.Report(context.Background(), "creator-1", "7d")
	require.NoError(t, err)

	assert.Equal(t, int64(1), r.PeriodSales)
	assert.Equal(t, recent.Fees.CreatorEarnings, r.PeriodEarnings)
	require.Len(t, r.RecentSales, 1)
	assert.Equal(t, recent.ID, r.RecentSales[0].PurchaseID)
	assert.Equal(t, "Lisbon Rooftops", r.RecentSales[0].GuideTitle)
	assert.Equal(t, int64(2), r.TotalSales)
}

func TestReport_RefundedSalesExcluded(t *testing.T) {
	f := newFixture(t)
	p := f.sell(t, "20.00", now.Add(-time.Hour))
	f.sell(t, "5.00", now.Add(-2*time.Hour))
	require.NoError(t, f.store.MarkRefunded(context.Background(), p.ID, now))

	r, err := f.svc.Report(context.Background(), "creator-1", "30d")
	require.NoError(t, err)

	assert.Equal(t, int64(1), r.MonthlySales)
	assert.Equal(t, ledger.MustCents("3.80"), r.MonthlyEarnings)
}

func TestReport_RecentSalesCappedNewestFirst(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 12; i++ {
		f.sell(t, "5.00", now.Add(-time.Duration(i+1)*time.Hour))
	}

	r, err := f.svc.Report(context.Background(), "creator-1", "7d")
	require.NoError(t, err)

	require.Len(t, r.RecentSales, 10)
	for i := 1; i < len(r.RecentSales); i++ {
		assert.True(t, r.RecentSales[i-1].CreatedAt.After(r.RecentSales[i].CreatedAt))
	}
	assert.Equal(t, int64(12), r.PeriodSales)
}

func TestReport_TwelveMonthTrend(t *testing.T) {
	// GIVEN: Sales in January 2025, March 2025 and May 2024
	// WHEN: The report is built in March 2025
	// THEN: Trend runs 2024-04 .. 2025-03; May 2024 is out of range

	f := newFixture(t)
	jan := f.sell(t, "20.00", time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC))
	mar := f.sell(t, "5.00", now.Add(-time.Hour))
	f.sell(t, "10.00", time.Date(2024, time.March, 20, 9, 0, 0, 0, time.UTC))

	r, err := f.svc.Report(context.Background(), "creator-1", "1y")
	require.NoError(t, err)

	require.Len(t, r.Trend, 12)
	assert.Equal(t, "2024-04", r.Trend[0].Month)
	assert.Equal(t, "2025-03", r.Trend[11].Month)
	assert.Equal(t, "2025-01", r.Trend[9].Month)
	assert.Equal(t, jan.Fees.CreatorEarnings, r.Trend[9].Earnings)
	assert.Equal(t, int64(1), r.Trend[9].Sales)
	assert.Equal(t, mar.Fees.CreatorEarnings, r.Trend[11].Earnings)

	var trendSales int64
	for _, m := range r.Trend {
		trendSales += m.Sales
	}
	assert.Equal(t, int64(2), trendSales)
}

func TestReport_BalanceAndPayoutInfo(t *testing.T) {
	// GIVEN: $100 lifetime earnings, $60 paid out, $30 pending
	// WHEN: The report is built
	// THEN: available 10, pending 30

	f := newFixture(t)
	require.NoError(t, f.store.IncrementEarnings(context.Background(), "creator-1", ledger.EarningsDelta{
		TotalEarnings:    ledger.MustCents("100"),
		AvailableBalance: ledger.MustCents("40"),
	}))
	f.payout(t, "60", ledger.PayoutCompleted, now.AddDate(0, -1, 0))
	f.payout(t, "30", ledger.PayoutPending, now.Add(-time.Hour))

	r, err := f.svc.Report(context.Background(), "creator-1", "90d")
	require.NoError(t, err)

	assert.Equal(t, ledger.MustCents("10"), r.Balance.AvailableBalance)
	assert.Equal(t, ledger.MustCents("30"), r.Balance.PendingBalance)
	assert.Equal(t, ledger.MustCents("60"), r.Balance.TotalPayouts)
	assert.True(t, r.PayoutInfo.CanReceivePayouts)
	assert.Equal(t, "acct_123", r.PayoutInfo.StripeAccountID)
	assert.Len(t, r.PayoutInfo.RecentPayouts, 2)
}

func TestReport_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Report(context.Background(), "creator-1", "2w")
	assert.ErrorIs(t, err, ledger.ErrInvalidPeriod)

	_, err = f.svc.Report(context.Background(), "nobody", "7d")
	assert.ErrorIs(t, err, ledger.ErrCreatorNotFound)
}

// =============================================================================
// AUDIT
// =============================================================================

func TestAudit_ConsistentTotals(t *testing.T) {
	f := newFixture(t)
	f.sell(t, "20.00", now.Add(-time.Hour))
	f.sell(t, "5.00", now.AddDate(-2, 0, 0))

	a, err := f.svc.Audit(context.Background(), "creator-1")
	require.NoError(t, err)

	assert.True(t, a.Consistent())
	assert.Equal(t, int64(2), a.ExpectedSales)
	assert.Zero(t, a.EarningsDrift())
}

func TestAudit_DetectsLostIncrement(t *testing.T) {
	// GIVEN: A sale whose earnings increment never landed
	// WHEN: The creator is audited
	// THEN: The drift equals the missing earnings and one sale

	f := newFixture(t)
	f.sell(t, "20.00", now.Add(-time.Hour))
	lost := ledger.Purchase{
		ID: "lost", UserID: "buyer-x", GuideID: "lisbon", CreatorID: "creator-1",
		Amount: ledger.MustCents("10.00"), PaymentMethod: ledger.PaymentStripe,
		Status: ledger.PurchaseCompleted, Fees: ledger.CalculateFees(1000), CreatedAt: now.Add(-time.Minute),
	}
	require.NoError(t, f.store.CreatePurchase(context.Background(), lost))

	a, err := f.svc.Audit(context.Background(), "creator-1")
	require.NoError(t, err)

	assert.False(t, a.Consistent())
	assert.Equal(t, -ledger.Cents(791), a.EarningsDrift())
	assert.Equal(t, int64(-1), a.SalesDrift())
}

// =============================================================================
// PAYOUTS
// =============================================================================

func TestRequestPayout_LimitedToAvailableBalance(t *testing.T) {
	// GIVEN: $16.12 earned and a $10 payout already pending
	// WHEN: Payouts are requested
	// THEN: $6.12 is accepted, anything more is InsufficientBalance

	f := newFixture(t)
	f.sell(t, "20.00", now.Add(-time.Hour))
	ctx := context.Background()

	_, err := f.svc.RequestPayout(ctx, "creator-1", ledger.MustCents("10.00"))
	require.NoError(t, err)

	_, err = f.svc.RequestPayout(ctx, "creator-1", ledger.MustCents("6.13"))
	var insufficient *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, ledger.MustCents("6.12"), insufficient.Available)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	p, err := f.svc.RequestPayout(ctx, "creator-1", ledger.MustCents("6.12"))
	require.NoError(t, err)
	assert.Equal(t, ledger.PayoutPending, p.Status)

	_, err = f.svc.RequestPayout(ctx, "creator-1", 0)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestRequestPayout_ConcurrentRequestsCannotOverdraw(t *testing.T) {
	// GIVEN: $16.12 of earnings
	// WHEN: Ten requests for the full $16.12 race each other
	// THEN: Exactly one payout is created; the rest are InsufficientBalance

	f := newFixture(t)
	f.sell(t, "20.00", now.Add(-time.Hour))
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.RequestPayout(ctx, "creator-1", ledger.MustCents("16.12"))
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	}
	assert.Equal(t, 1, succeeded)

	payouts, err := f.svc.ListPayouts(ctx, "creator-1")
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, ledger.MustCents("16.12"), payouts[0].Amount)
}

func TestRequestPayout_UnknownCreator(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RequestPayout(context.Background(), "ghost", ledger.MustCents("1.00"))
	assert.ErrorIs(t, err, ledger.ErrCreatorNotFound)
}

func TestUpdatePayoutStatus_Lifecycle(t *testing.T) {
	// GIVEN: A pending $10 payout against $16.12 earnings
	// WHEN: It moves to processing and then completed
	// THEN: The stored available balance drops by $10 on completion only

	f := newFixture(t)
	f.sell(t, "20.00", now.Add(-time.Hour))
	ctx := context.Background()

	p, err := f.svc.RequestPayout(ctx, "creator-1", ledger.MustCents("10.00"))
	require.NoError(t, err)

	_, err = f.svc.UpdatePayoutStatus(ctx, p.ID, ledger.PayoutCompleted)
	assert.ErrorIs(t, err, ledger.ErrInvalidPayoutTransition, "pending cannot jump to completed")

	p, err = f.svc.UpdatePayoutStatus(ctx, p.ID, ledger.PayoutProcessing)
	require.NoError(t, err)
	creator, _ := f.store.GetCreator(ctx, "creator-1")
	assert.Equal(t, ledger.MustCents("16.12"), creator.Earnings.AvailableBalance)

	p, err = f.svc.UpdatePayoutStatus(ctx, p.ID, ledger.PayoutCompleted)
	require.NoError(t, err)
	require.NotNil(t, p.CompletedAt)
	creator, _ = f.store.GetCreator(ctx, "creator-1")
	assert.Equal(t, ledger.MustCents("6.12"), creator.Earnings.AvailableBalance)
	assert.Equal(t, ledger.MustCents("16.12"), creator.Earnings.TotalEarnings)

	_, err = f.svc.UpdatePayoutStatus(ctx, p.ID, ledger.PayoutFailed)
	assert.ErrorIs(t, err, ledger.ErrInvalidPayoutTransition)

	a, err := f.svc.Audit(ctx, "creator-1")
	require.NoError(t, err)
	assert.True(t, a.Consistent())
}

func TestUpdatePayoutStatus_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdatePayoutStatus(context.Background(), "missing", ledger.PayoutProcessing)
	assert.ErrorIs(t, err, ledger.ErrPayoutNotFound)
}
