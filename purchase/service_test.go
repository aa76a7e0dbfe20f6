package purchase_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sacavia/guide-ledger/ledger"
	"github.com/sacavia/guide-ledger/ledger/store"
	"github.com/sacavia/guide-ledger/notify"
	"github.com/sacavia/guide-ledger/payment"
	"github.com/sacavia/guide-ledger/purchase"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu       sync.Mutex
	charges  []payment.Charge
	refunds  []string
	chargeFn func(ctx context.Context, c payment.Charge) (*payment.Receipt, error)
	seq      atomic.Int64
}

func (g *fakeGateway) Charge(ctx context.Context, c payment.Charge) (*payment.Receipt, error) {
	g.mu.Lock()
	g.charges = append(g.charges, c)
	g.mu.Unlock()

	if g.chargeFn != nil {
		return g.chargeFn(ctx, c)
	}
	return &payment.Receipt{TransactionID: fmt.Sprintf("pi_%d", g.seq.Add(1)), Status: "succeeded"}, nil
}

func (g *fakeGateway) Refund(_ context.Context, transactionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, transactionID)
	return nil
}

func (g *fakeGateway) counts() (charges, refunds int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges), len(g.refunds)
}

// flakyStore fails earnings increments with a retryable error.
type flakyStore struct {
	*store.Memory
	earningsCalls atomic.Int64
	failEarnings  bool
}

func (s *flakyStore) IncrementEarnings(ctx context.Context, id ledger.UserID, d ledger.EarningsDelta) error {
	s.earningsCalls.Add(1)
	if s.failEarnings {
		return ledger.ErrConcurrentModification
	}
	return s.Memory.IncrementEarnings(ctx, id, d)
}

type fixture struct {
	store   *flakyStore
	gateway *fakeGateway
	svc     *purchase.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := &flakyStore{Memory: store.NewMemory()}
	gw := &fakeGateway{}
	svc := purchase.NewService(st, gw, notify.NewEmitter(st, nil), purchase.Options{
		Retry: ledger.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond},
		Now:   func() time.Time { return now },
	})

	ctx := context.Background()
	require.NoError(t, st.SaveCreator(ctx, ledger.CreatorProfile{UserID: "creator-1", Name: "Maya", IsCreator: true}))
	return &fixture{store: st, gateway: gw, svc: svc}
}

func (f *fixture) addGuide(t *testing.T, id string, pricing ledger.Pricing) {
	t.Helper()
	require.NoError(t, f.store.SaveGuide(context.Background(), ledger.Guide{
		ID:       ledger.GuideID(id),
		AuthorID: "creator-1",
		Title:    "Hidden Cafes of " + id,
		Pricing:  pricing,
		Status:   ledger.GuidePublished,
	}))
}

func paid(price string) ledger.Pricing {
	return ledger.Pricing{Type: ledger.PricingPaid, Price: ledger.MustCents(price)}
}

func buy(userID, guideID, amount string) purchase.Request {
	return purchase.Request{
		UserID:          ledger.UserID(userID),
		GuideID:         ledger.GuideID(guideID),
		Amount:          decimal.RequireFromString(amount),
		PaymentMethodID: "pm_card_visa",
	}
}

// =============================================================================
// PAID PURCHASES
// =============================================================================

func TestPurchase_PaidGuide_RecordsFeesStatsAndEarnings(t *testing.T) {
	// GIVEN: A published $10.00 guide
	// WHEN: A buyer purchases it
	// THEN: Fees are 1.50 / 0.59 / 7.91, stats and earnings move, creator is notified

	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))
	ctx := context.Background()

	res, err := f.svc.Purchase(ctx, buy("buyer-1", "lisbon", "10.00"))
	require.NoError(t, err)

	assert.Equal(t, ledger.Cents(1000), res.Breakdown.TotalAmount)
	assert.Equal(t, ledger.Cents(150), res.Breakdown.PlatformFee)
	assert.Equal(t, ledger.Cents(59), res.Breakdown.StripeFee)
	assert.Equal(t, ledger.Cents(791), res.Breakdown.CreatorEarnings)
	assert.Equal(t, ledger.PaymentStripe, res.Purchase.PaymentMethod)
	assert.Equal(t, "pi_1", res.Purchase.TransactionID)
	assert.Equal(t, "usd", res.Purchase.Currency)

	guide, err := f.store.GetGuide(ctx, "lisbon")
	require.NoError(t, err)
	assert.Equal(t, int64(1), guide.Stats.Purchases)
	assert.Equal(t, ledger.Cents(1000), guide.Stats.Revenue)

	creator, err := f.store.GetCreator(ctx, "creator-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.Cents(791), creator.Earnings.TotalEarnings)
	assert.Equal(t, ledger.Cents(791), creator.Earnings.AvailableBalance)
	assert.Equal(t, int64(1), creator.Stats.TotalSales)

	notes, err := f.store.ListNotifications(ctx, "creator-1", 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, ledger.NotificationGuideSale, notes[0].Type)
	assert.Contains(t, notes[0].Message, "$10.00")
	assert.Contains(t, notes[0].Message, "$7.91")

	events, err := f.store.ListOutbox(ctx, ledger.OutboxPending, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ledger.TopicPurchaseCompleted, events[0].Topic)
}

func TestPurchase_PaidGuide_ChargeCarriesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))

	req := buy("buyer-1", "lisbon", "10.00")
	req.IdempotencyKey = "client-key-1"
	_, err := f.svc.Purchase(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, f.gateway.charges, 1)
	assert.Equal(t, "client-key-1", f.gateway.charges[0].IdempotencyKey)
	assert.Equal(t, ledger.Cents(1000), f.gateway.charges[0].Amount)
	assert.Equal(t, "lisbon", f.gateway.charges[0].Metadata["guide_id"])
}

func TestPurchase_DefaultIdempotencyKeyIsPerAttempt(t *testing.T) {
	// GIVEN: A purchase of a $10.00 guide that was refunded
	// WHEN: The buyer buys it again with the same card and no client key
	// THEN: The second charge carries a new idempotency key and a new transaction

	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))
	ctx := context.Background()

	first, err := f.svc.Purchase(ctx, buy("buyer-1", "lisbon", "10.00"))
	require.NoError(t, err)
	_, err = f.svc.Refund(ctx, first.Purchase.ID, "requested_by_customer")
	require.NoError(t, err)

	second, err := f.svc.Purchase(ctx, buy("buyer-1", "lisbon", "10.00"))
	require.NoError(t, err)

	require.Len(t, f.gateway.charges, 2)
	k1, k2 := f.gateway.charges[0].IdempotencyKey, f.gateway.charges[1].IdempotencyKey
	assert.NotEmpty(t, k1)
	assert.NotEqual(t, k1, k2)
	assert.Contains(t, k1, string(first.Purchase.ID))
	assert.Contains(t, k2, string(second.Purchase.ID))
	assert.NotEqual(t, first.Purchase.TransactionID, second.Purchase.TransactionID)
}

func TestPurchase_PaidGuide_WrongAmountRejected(t *testing.T) {
	// GIVEN: A $10.00 guide
	// WHEN: The buyer sends $5.00
	// THEN: InvalidAmount, no charge, no record

	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))

	_, err := f.svc.Purchase(context.Background(), buy("buyer-1", "lisbon", "5.00"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	charges, _ := f.gateway.counts()
	assert.Zero(t, charges)
	_, purchased, err := f.svc.HasPurchased(context.Background(), "buyer-1", "lisbon")
	require.NoError(t, err)
	assert.False(t, purchased)
}

func TestPurchase_PaidGuide_SubCentAmountRejected(t *testing.T) {
	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))

	_, err := f.svc.Purchase(context.Background(), buy("buyer-1", "lisbon", "9.999"))

	var amountErr *ledger.InvalidAmountError
	assert.ErrorAs(t, err, &amountErr)
}

func TestPurchase_OverflowingAmountRejected(t *testing.T) {
	// GIVEN: A $10.00 guide
	// WHEN: The buyer sends an amount whose cents wrap around int64 to 1000
	// THEN: InvalidAmount and no charge

	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))

	_, err := f.svc.Purchase(context.Background(), buy("buyer-1", "lisbon", "184467440737095526.16"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	charges, _ := f.gateway.counts()
	assert.Zero(t, charges)
}

func TestPurchase_PaymentMethodRequired(t *testing.T) {
	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))

	req := buy("buyer-1", "lisbon", "10.00")
	req.PaymentMethodID = ""
	_, err := f.svc.Purchase(context.Background(), req)

	assert.ErrorIs(t, err, ledger.ErrPaymentMethodRequired)
}

func TestPurchase_NoGateway_PaidGuideUnavailable(t *testing.T) {
	// GIVEN: No payment gateway configured
	// WHEN: A paid guide is purchased
	// THEN: PaymentUnavailable; free guides still work

	st := store.NewMemory()
	svc := purchase.NewService(st, nil, nil, purchase.Options{})
	ctx := context.Background()
	require.NoError(t, st.SaveGuide(ctx, ledger.Guide{ID: "paid", AuthorID: "c", Title: "P", Pricing: paid("10.00"), Status: ledger.GuidePublished}))
	require.NoError(t, st.SaveGuide(ctx, ledger.Guide{ID: "free", AuthorID: "c", Title: "F", Pricing: ledger.Pricing{Type: ledger.PricingFree}, Status: ledger.GuidePublished}))

	assert.False(t, svc.PaymentsEnabled())

	_, err := svc.Purchase(ctx, buy("buyer-1", "paid", "10.00"))
	assert.ErrorIs(t, err, ledger.ErrPaymentUnavailable)

	_, err = svc.Purchase(ctx, buy("buyer-1", "free", "0"))
	assert.NoError(t, err)
}

func TestPurchase_PaymentDeclined_NoRecord(t *testing.T) {
	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))
	f.gateway.chargeFn = func(context.Context, payment.Charge) (*payment.Receipt, error) {
		return nil, fmt.Errorf("%w: card_declined", ledger.ErrPaymentFailed)
	}

	_, err := f.svc.Purchase(context.Background(), buy("buyer-1", "lisbon", "10.00"))
	assert.ErrorIs(t, err, ledger.ErrPaymentFailed)

	guide, err := f.store.GetGuide(context.Background(), "lisbon")
	require.NoError(t, err)
	assert.Zero(t, guide.Stats.Purchases)
}

func TestPurchase_PaymentTimeout_IsRetryableFailure(t *testing.T) {
	// GIVEN: A gateway that never answers, wrapped with a 20ms timeout
	// WHEN: A paid guide is purchased
	// THEN: ErrPaymentTimeout (retryable), never a recorded purchase

	st := store.NewMemory()
	hanging := &fakeGateway{chargeFn: func(ctx context.Context, _ payment.Charge) (*payment.Receipt, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	svc := purchase.NewService(st, payment.WithTimeout(hanging, 20*time.Millisecond), nil, purchase.Options{})
	ctx := context.Background()
	require.NoError(t, st.SaveGuide(ctx, ledger.Guide{ID: "g", AuthorID: "c", Title: "G", Pricing: paid("10.00"), Status: ledger.GuidePublished}))

	_, err := svc.Purchase(ctx, buy("buyer-1", "g", "10.00"))

	assert.ErrorIs(t, err, ledger.ErrPaymentTimeout)
	assert.True(t, ledger.IsRetryable(err))
	p, err := st.FindCompletedPurchase(ctx, "buyer-1", "g")
	require.NoError(t, err)
	assert.Nil(t, p)
}

// =============================================================================
// PAY WHAT YOU WANT
// =============================================================================

func TestPurchase_PayWhatYouWant_MinimumEnforced(t *testing.T) {
	f := newFixture(t)
	f.addGuide(t, "porto", ledger.Pricing{Type: ledger.PricingPayWhatYouWant, Price: ledger.MustCents("5.00")})
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, buy("buyer-1", "porto", "0.49"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = f.svc.Purchase(ctx, buy("buyer-1", "porto", "0"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	res, err := f.svc.Purchase(ctx, buy("buyer-1", "porto", "0.50"))
	require.NoError(t, err)
	assert.Equal(t, ledger.PaymentPWYW, res.Purchase.PaymentMethod)
	assert.Equal(t, res.Purchase.Amount, res.Purchase.Fees.Total())
	assert.GreaterOrEqual(t, int64(res.Breakdown.CreatorEarnings), int64(0))
}

func TestPurchase_PayWhatYouWant_AboveSuggestedPrice(t *testing.T) {
	f := newFixture(t)
	f.addGuide(t, "porto", ledger.Pricing{Type: ledger.PricingPayWhatYouWant, Price: ledger.MustCents("5.00")})

	res, err := f.svc.Purchase(context.Background(), buy("buyer-1", "porto", "25.00"))
	require.NoError(t, err)

	assert.Equal(t, ledger.Cents(2500), res.Purchase.Amount)
	assert.Equal(t, ledger.Cents(375), res.Breakdown.PlatformFee)
	assert.Equal(t, ledger.Cents(103), res.Breakdown.StripeFee)
	assert.Equal(t, ledger.Cents(2022), res.Breakdown.CreatorEarnings)
}

// =============================================================================
// FREE PURCHASES
// =============================================================================

func TestPurchase_FreeGuide_AllZero(t *testing.T) {
	// GIVEN: A free guide
	// WHEN: A user claims it (sending a stray amount)
	// THEN: amount and fees are zero, no charge, no earnings, purchases +1

	f := newFixture(t)
	f.addGuide(t, "berlin", ledger.Pricing{Type: ledger.PricingFree})
	ctx := context.Background()

	res, err := f.svc.Purchase(ctx, buy("buyer-1", "berlin", "3.00"))
	require.NoError(t, err)

	assert.Equal(t, ledger.PaymentFree, res.Purchase.PaymentMethod)
	assert.Zero(t, res.Purchase.Amount)
	assert.Equal(t, ledger.FeeBreakdown{}, res.Purchase.Fees)
	assert.Empty(t, res.Purchase.TransactionID)

	charges, _ := f.gateway.counts()
	assert.Zero(t, charges)

	guide, err := f.store.GetGuide(ctx, "berlin")
	require.NoError(t, err)
	assert.Equal(t, int64(1), guide.Stats.Purchases)
	assert.Zero(t, guide.Stats.Revenue)

	creator, err := f.store.GetCreator(ctx, "creator-1")
	require.NoError(t, err)
	assert.Zero(t, creator.Earnings.TotalEarnings)
	assert.Zero(t, creator.Stats.TotalSales)
	assert.Zero(t, f.store.earningsCalls.Load())
}

// =============================================================================
// PRECONDITIONS
// =============================================================================

func TestPurchase_Preconditions(t *testing.T) {
	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))
	ctx := context.Background()
	require.NoError(t, f.store.SaveGuide(ctx, ledger.Guide{
		ID: "draft", AuthorID: "creator-1", Title: "WIP", Pricing: paid("10.00"), Status: ledger.GuideDraft,
	}))

	tests := []struct {
		name string
		req  purchase.Request
		want error
	}{
		{"anonymous", buy("", "lisbon", "10.00"), ledger.ErrAuthenticationRequired},
		{"unknown guide", buy("buyer-1", "nope", "10.00"), ledger.ErrGuideNotFound},
		{"draft guide", buy("buyer-1", "draft", "10.00"), ledger.ErrGuideNotPublished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Purchase(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	charges, _ := f.gateway.counts()
	assert.Zero(t, charges)
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestPurchase_Duplicate_LeavesTotalsUntouched(t *testing.T) {
	// GIVEN: The buyer already owns the guide
	// WHEN: They try to buy it again
	// THEN: DuplicatePurchase, no second charge, stats and earnings unchanged

	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, buy("buyer-1", "lisbon", "10.00"))
	require.NoError(t, err)

	_, err = f.svc.Purchase(ctx, buy("buyer-1", "lisbon", "10.00"))
	assert.ErrorIs(t, err, ledger.ErrDuplicatePurchase)

	charges, _ := f.gateway.counts()
	assert.Equal(t, 1, charges)

	guide, _ := f.store.GetGuide(ctx, "lisbon")
	assert.Equal(t, int64(1), guide.Stats.Purchases)
	creator, _ := f.store.GetCreator(ctx, "creator-1")
	assert.Equal(t, ledger.Cents(791), creator.Earnings.TotalEarnings)
	assert.Equal(t, int64(1), creator.Stats.TotalSales)
}

func TestPurchase_ConcurrentAttempts_SingleCompletedPurchase(t *testing.T) {
	// GIVEN: Many concurrent purchase attempts for the same (user, guide)
	// WHEN: They race past the guard
	// THEN: Exactly one succeeds, every losing charge is refunded

	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))
	ctx := context.Background()

	const attempts = 16
	var (
		wg        sync.WaitGroup
		successes atomic.Int64
		errs      = make(chan error, attempts)
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Purchase(ctx, buy("buyer-1", "lisbon", "10.00")); err != nil {
				errs <- err
				return
			}
			successes.Add(1)
		}()
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, int64(1), successes.Load())
	for err := range errs {
		assert.ErrorIs(t, err, ledger.ErrDuplicatePurchase)
	}

	charges, refunds := f.gateway.counts()
	assert.Equal(t, charges-1, refunds, "every charge except the winner's is refunded")

	guide, _ := f.store.GetGuide(ctx, "lisbon")
	assert.Equal(t, int64(1), guide.Stats.Purchases)
	creator, _ := f.store.GetCreator(ctx, "creator-1")
	assert.Equal(t, ledger.Cents(791), creator.Earnings.AvailableBalance)
}

func TestHasPurchased(t *testing.T) {
	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))
	ctx := context.Background()

	_, _, err := f.svc.HasPurchased(ctx, "", "lisbon")
	assert.ErrorIs(t, err, ledger.ErrAuthenticationRequired)

	p, ok, err := f.svc.HasPurchased(ctx, "buyer-1", "lisbon")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, p)

	res, err := f.svc.Purchase(ctx, buy("buyer-1", "lisbon", "10.00"))
	require.NoError(t, err)

	p, ok, err = f.svc.HasPurchased(ctx, "buyer-1", "lisbon")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, res.Purchase.ID, p.ID)
}

// =============================================================================
// SIDE EFFECT FAILURES
// =============================================================================

func TestPurchase_EarningsFailure_DeadLetteredNotReported(t *testing.T) {
	// GIVEN: The earnings increment keeps failing with a retryable error
	// WHEN: A paid purchase completes
	// THEN: The buyer sees success, the increment was tried 3 times,
	//       and a reconcile entry carries the missing delta

	f := newFixture(t)
	f.store.failEarnings = true
	f.addGuide(t, "lisbon", paid("10.00"))
	ctx := context.Background()

	res, err := f.svc.Purchase(ctx, buy("buyer-1", "lisbon", "10.00"))
	require.NoError(t, err)
	assert.Equal(t, ledger.PurchaseCompleted, res.Purchase.Status)
	assert.Equal(t, int64(3), f.store.earningsCalls.Load())

	entries, err := f.store.ListOutbox(ctx, ledger.OutboxPending, 0)
	require.NoError(t, err)

	var fixes []ledger.OutboxEntry
	for _, e := range entries {
		if e.Topic == ledger.TopicReconcileEarnings {
			fixes = append(fixes, e)
		}
	}
	require.Len(t, fixes, 1)
	assert.Equal(t, "creator-1", fixes[0].Key)
	assert.Contains(t, string(fixes[0].Payload), `"purchase_id":"`+string(res.Purchase.ID)+`"`)

	// Guide stats are independent of the earnings failure
	guide, _ := f.store.GetGuide(ctx, "lisbon")
	assert.Equal(t, int64(1), guide.Stats.Purchases)
}

func TestPurchase_SelfPurchase_NoNotification(t *testing.T) {
	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))
	ctx := context.Background()

	_, err := f.svc.Purchase(ctx, buy("creator-1", "lisbon", "10.00"))
	require.NoError(t, err)

	notes, err := f.store.ListNotifications(ctx, "creator-1", 10)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

// =============================================================================
// REFUNDS
// =============================================================================

func TestRefund_ReversesTotalsAndAllowsRepurchase(t *testing.T) {
	// GIVEN: A completed $10.00 purchase
	// WHEN: It is refunded
	// THEN: Charge refunded, totals back to zero, status refunded, buyer can buy again

	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))
	ctx := context.Background()

	res, err := f.svc.Purchase(ctx, buy("buyer-1", "lisbon", "10.00"))
	require.NoError(t, err)

	refunded, err := f.svc.Refund(ctx, res.Purchase.ID, "requested_by_customer")
	require.NoError(t, err)
	assert.Equal(t, ledger.PurchaseRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundedAt)

	_, refunds := f.gateway.counts()
	assert.Equal(t, 1, refunds)
	assert.Equal(t, res.Purchase.TransactionID, f.gateway.refunds[0])

	guide, _ := f.store.GetGuide(ctx, "lisbon")
	assert.Zero(t, guide.Stats.Purchases)
	assert.Zero(t, guide.Stats.Revenue)
	creator, _ := f.store.GetCreator(ctx, "creator-1")
	assert.Zero(t, creator.Earnings.TotalEarnings)
	assert.Zero(t, creator.Earnings.AvailableBalance)
	assert.Zero(t, creator.Stats.TotalSales)

	notes, _ := f.store.ListNotifications(ctx, "creator-1", 1)
	require.Len(t, notes, 1)
	assert.Equal(t, ledger.NotificationGuideRefund, notes[0].Type)

	_, err = f.svc.Purchase(ctx, buy("buyer-1", "lisbon", "10.00"))
	assert.NoError(t, err)
}

func TestRefund_OnlyCompletedPurchases(t *testing.T) {
	f := newFixture(t)
	f.addGuide(t, "lisbon", paid("10.00"))
	ctx := context.Background()

	res, err := f.svc.Purchase(ctx, buy("buyer-1", "lisbon", "10.00"))
	require.NoError(t, err)
	_, err = f.svc.Refund(ctx, res.Purchase.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Refund(ctx, res.Purchase.ID, "")
	assert.ErrorIs(t, err, ledger.ErrPurchaseNotRefundable)

	_, err = f.svc.Refund(ctx, "missing", "")
	assert.True(t, errors.Is(err, ledger.ErrPurchaseNotFound))

	_, refunds := f.gateway.counts()
	assert.Equal(t, 1, refunds)
}
