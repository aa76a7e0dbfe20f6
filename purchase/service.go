/*
Package purchase implements the guide purchase flow.

PURPOSE:
  Records guide purchases, charges buyers for paid guides and keeps guide
  stats and creator earnings in step with the purchase records.

FLOW:
  1. Validate buyer and guide (authenticated, exists, published)
  2. Idempotency guard: one completed purchase per (user, guide)
  3. Free guide: record a zero-amount purchase, no payment
     Paid / pay-what-you-want: validate amount, charge, compute fees
  4. Create the purchase record (unique index closes the guard's race)
  5. Side effects: guide stats, creator earnings, creator notification,
     purchase event. These are best-effort (see effects.go).

NO PARTIAL STATE BEFORE STEP 4:
  Every validation and the payment call happen before anything is written.
  A payment failure leaves no record; a record failure after a successful
  charge triggers a refund of the charge.

SEE ALSO:
  - guard.go: HasPurchased
  - effects.go: Side effects, retry and dead-lettering
  - refund.go: Refunds
*/
package purchase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/sacavia/guide-ledger/ledger"
	"github.com/sacavia/guide-ledger/notify"
	"github.com/sacavia/guide-ledger/payment"
)

// =============================================================================
// SERVICE
// =============================================================================

// Options tune the service. Zero values fall back to defaults.
type Options struct {
	Currency string
	Retry    ledger.RetryPolicy
	Now      func() time.Time
}

// Service runs purchases and refunds.
type Service struct {
	store   ledger.Store
	gateway payment.Gateway
	emitter *notify.Emitter
	opts    Options
}

// NewService wires a purchase service. gateway nil means only free guides can
// be purchased; emitter nil disables creator notifications.
func NewService(store ledger.Store, gateway payment.Gateway, emitter *notify.Emitter, opts Options) *Service {
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.Retry.Attempts == 0 {
		opts.Retry = ledger.DefaultRetryPolicy
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, gateway: gateway, emitter: emitter, opts: opts}
}

// PaymentsEnabled reports whether paid guides can be purchased.
func (s *Service) PaymentsEnabled() bool {
	return s.gateway != nil
}

// Request is a purchase attempt. Amount is in major units (dollars).
type Request struct {
	UserID          ledger.UserID
	GuideID         ledger.GuideID
	Amount          decimal.Decimal
	Currency        string
	PaymentMethodID string
	PaymentType     string
	IdempotencyKey  string
}

// Breakdown is the fee split reported to the buyer.
type Breakdown struct {
	TotalAmount     ledger.Cents
	PlatformFee     ledger.Cents
	StripeFee       ledger.Cents
	CreatorEarnings ledger.Cents
}

type Result struct {
	Purchase  ledger.Purchase
	Breakdown Breakdown
}

// =============================================================================
// PURCHASE
// =============================================================================

// Purchase records a purchase of req.GuideID by req.UserID.
func (s *Service) Purchase(ctx context.Context, req Request) (*Result, error) {
	if req.UserID == "" {
		return nil, ledger.ErrAuthenticationRequired
	}

	guide, err := s.store.GetGuide(ctx, req.GuideID)
	if err != nil {
		return nil, err
	}
	if guide.Status != ledger.GuidePublished {
		return nil, fmt.Errorf("%w: guide %s is %s", ledger.ErrGuideNotPublished, guide.ID, guide.Status)
	}

	if _, purchased, err := s.HasPurchased(ctx, req.UserID, req.GuideID); err != nil {
		return nil, err
	} else if purchased {
		recordOutcome(guide.Pricing.Type, "duplicate")
		return nil, ledger.ErrDuplicatePurchase
	}

	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = s.opts.Currency
	}

	p := ledger.Purchase{
		ID:        ledger.PurchaseID(uuid.NewString()),
		UserID:    req.UserID,
		GuideID:   guide.ID,
		CreatorID: guide.AuthorID,
		Currency:  currency,
		Status:    ledger.PurchaseCompleted,
	}

	switch guide.Pricing.Type {
	case ledger.PricingFree:
		p.PaymentMethod = ledger.PaymentFree

	case ledger.PricingPaid, ledger.PricingPayWhatYouWant:
		amount, err := validateAmount(*guide, req.Amount)
		if err != nil {
			recordOutcome(guide.Pricing.Type, "invalid_amount")
			return nil, err
		}
		receipt, err := s.charge(ctx, *guide, req, p.ID, amount, currency)
		if err != nil {
			recordOutcome(guide.Pricing.Type, "payment_failed")
			return nil, err
		}

		p.Amount = amount
		p.TransactionID = receipt.TransactionID
		p.Fees = ledger.CalculateFees(amount)
		p.PaymentMethod = ledger.PaymentStripe
		if guide.Pricing.Type == ledger.PricingPayWhatYouWant {
			p.PaymentMethod = ledger.PaymentPWYW
		}

	default:
		return nil, fmt.Errorf("%w: unknown pricing type %q", ledger.ErrInvalidGuide, guide.Pricing.Type)
	}

	p.CreatedAt = s.opts.Now().UTC()
	if err := s.store.CreatePurchase(ctx, p); err != nil {
		if p.TransactionID != "" {
			s.refundOrphanedCharge(ctx, p, err)
		}
		if errors.Is(err, ledger.ErrDuplicatePurchase) {
			recordOutcome(guide.Pricing.Type, "duplicate")
			return nil, err
		}
		return nil, fmt.Errorf("record purchase: %w", err)
	}

	recordOutcome(guide.Pricing.Type, "completed")
	log.WithFields(log.Fields{
		"purchase_id":    p.ID,
		"guide_id":       p.GuideID,
		"user_id":        p.UserID,
		"amount":         p.Amount.String(),
		"payment_method": p.PaymentMethod,
	}).Info("Guide purchase completed")

	s.applyPurchaseEffects(ctx, *guide, p)

	return &Result{
		Purchase: p,
		Breakdown: Breakdown{
			TotalAmount:     p.Amount,
			PlatformFee:     p.Fees.PlatformFee,
			StripeFee:       p.Fees.StripeFee,
			CreatorEarnings: p.Fees.CreatorEarnings,
		},
	}, nil
}

// validateAmount checks the buyer-supplied amount against the guide's pricing.
// Paid guides require the exact price; pay-what-you-want requires at least
// the minimum price.
func validateAmount(guide ledger.Guide, amount decimal.Decimal) (ledger.Cents, error) {
	cents, err := ledger.CentsFromDecimal(amount)
	if err != nil {
		return 0, err
	}

	switch guide.Pricing.Type {
	case ledger.PricingPaid:
		if cents != guide.Pricing.Price {
			return 0, &ledger.InvalidAmountError{
				Amount: cents.String(),
				Reason: fmt.Sprintf("price of this guide is %s", guide.Pricing.Price.Dollars()),
			}
		}
	case ledger.PricingPayWhatYouWant:
		if cents < ledger.MinimumPriceCents {
			return 0, &ledger.InvalidAmountError{
				Amount: cents.String(),
				Reason: fmt.Sprintf("minimum amount is %s", ledger.MinimumPriceCents.Dollars()),
			}
		}
	}
	return cents, nil
}

// charge takes the payment. Without a client key the idempotency key is the
// purchase id, so it is unique per attempt.
func (s *Service) charge(ctx context.Context, guide ledger.Guide, req Request, id ledger.PurchaseID, amount ledger.Cents, currency string) (*payment.Receipt, error) {
	if s.gateway == nil {
		return nil, ledger.ErrPaymentUnavailable
	}
	if req.PaymentMethodID == "" {
		return nil, ledger.ErrPaymentMethodRequired
	}

	key := req.IdempotencyKey
	if key == "" {
		key = "guide-purchase:" + string(id)
	}

	receipt, err := s.gateway.Charge(ctx, payment.Charge{
		Amount:          amount,
		Currency:        currency,
		PaymentMethodID: req.PaymentMethodID,
		Description:     "Guide: " + guide.Title,
		IdempotencyKey:  key,
		Metadata: map[string]string{
			"guide_id":   string(guide.ID),
			"user_id":    string(req.UserID),
			"creator_id": string(guide.AuthorID),
		},
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"guide_id": guide.ID,
			"user_id":  req.UserID,
			"amount":   amount.String(),
		}).Warn("Guide payment failed")
		return nil, err
	}
	return receipt, nil
}

// refundOrphanedCharge gives the money back when a charge succeeded but the
// purchase could not be recorded (typically a concurrent duplicate).
func (s *Service) refundOrphanedCharge(ctx context.Context, p ledger.Purchase, cause error) {
	ctx = context.WithoutCancel(ctx)
	fields := log.Fields{
		"transaction_id": p.TransactionID,
		"guide_id":       p.GuideID,
		"user_id":        p.UserID,
		"cause":          cause,
	}
	if err := s.gateway.Refund(ctx, p.TransactionID); err != nil {
		log.WithError(err).WithFields(fields).Error("Failed to refund charge for unrecorded purchase")
		return
	}
	log.WithFields(fields).Warn("Refunded charge for unrecorded purchase")
}
