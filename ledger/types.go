/*
Package ledger provides the core purchase and earnings accounting types.

PURPOSE:
  This package contains the money, guide, purchase, creator and payout types
  shared by the purchase flow, the earnings reports and the storage layers.
  It has no knowledge of HTTP, SQL or the payment processor.

KEY CONCEPTS IN THIS FILE (types.go):
  - Cents: money in integer minor units (no floating point drift)
  - Guide: a purchasable content unit with a pricing model
  - Purchase: an immutable record of one transaction with its fee breakdown
  - CreatorProfile: running earnings totals for a creator
  - Payout: a disbursement of earnings (owned by the payout collaborator)

DESIGN PRINCIPLES:
  1. Precision: all arithmetic happens in Cents; decimal.Decimal only at the edges
  2. Type Safety: distinct ID types prevent mixing user, guide and purchase IDs
  3. Explicit enums: pricing type, statuses and payment methods are closed sets
     validated at the boundary before anything is persisted

USAGE:
  price, err := ledger.CentsFromDecimal(decimal.RequireFromString("10.00"))
  fees := ledger.CalculateFees(price)

SEE ALSO:
  - fees.go: Fee calculator
  - payout.go: Payout reconciler
  - store.go: Persistence interfaces
*/
package ledger

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Integer minor units
// =============================================================================

// Cents is an amount of money in minor currency units.
type Cents int64

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// CentsFromDecimal converts a major-unit amount (e.g. 10.99 dollars) to Cents.
// Amounts with more than two fractional digits are rejected rather than
// rounded, and so are amounts that do not fit in Cents.
func CentsFromDecimal(d decimal.Decimal) (Cents, error) {
	shifted := d.Shift(2)
	if !shifted.IsInteger() {
		return 0, &InvalidAmountError{Amount: d.String(), Reason: "more than two decimal places"}
	}
	if shifted.GreaterThan(maxCents) || shifted.LessThan(minCents) {
		return 0, &InvalidAmountError{Amount: d.String(), Reason: "amount out of range"}
	}
	return Cents(shifted.IntPart()), nil
}

// MustCents is CentsFromDecimal for literals in tests and scenarios.
func MustCents(s string) Cents {
	c, err := CentsFromDecimal(decimal.RequireFromString(s))
	if err != nil {
		panic(err)
	}
	return c
}

func (c Cents) Decimal() decimal.Decimal { return decimal.New(int64(c), -2) }
func (c Cents) Float64() float64         { return float64(c) / 100 }
func (c Cents) String() string           { return c.Decimal().StringFixed(2) }

// Dollars formats the amount for human-readable messages, e.g. "$7.91".
func (c Cents) Dollars() string {
	if c < 0 {
		return fmt.Sprintf("-$%s", (-c).String())
	}
	return "$" + c.String()
}

func (c Cents) Max(o Cents) Cents {
	if c > o {
		return c
	}
	return o
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type GuideID string
type PurchaseID string
type PayoutID string

// =============================================================================
// GUIDE
// =============================================================================

type PricingType string

const (
	PricingFree           PricingType = "free"
	PricingPaid           PricingType = "paid"
	PricingPayWhatYouWant PricingType = "pay-what-you-want"
)

func (p PricingType) Valid() bool {
	switch p {
	case PricingFree, PricingPaid, PricingPayWhatYouWant:
		return true
	}
	return false
}

// Pricing is the price model of a guide. For pay-what-you-want guides Price is
// only a suggestion shown to the buyer.
type Pricing struct {
	Type  PricingType
	Price Cents
}

type GuideStatus string

const (
	GuideDraft     GuideStatus = "draft"
	GuidePublished GuideStatus = "published"
	GuideArchived  GuideStatus = "archived"
)

func (s GuideStatus) Valid() bool {
	switch s {
	case GuideDraft, GuidePublished, GuideArchived:
		return true
	}
	return false
}

// GuideStats are cumulative sale counters, maintained by atomic increments.
type GuideStats struct {
	Purchases int64
	Revenue   Cents
}

type Guide struct {
	ID          GuideID
	AuthorID    UserID
	Title       string
	Description string
	Pricing     Pricing
	Status      GuideStatus
	Stats       GuideStats
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// =============================================================================
// PURCHASE
// =============================================================================

type PaymentMethod string

const (
	PaymentFree   PaymentMethod = "free"
	PaymentStripe PaymentMethod = "stripe"
	PaymentPWYW   PaymentMethod = "pwyw"
)

type PurchaseStatus string

const (
	PurchaseCompleted PurchaseStatus = "completed"
	PurchaseFailed    PurchaseStatus = "failed"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

// FeeBreakdown splits a gross amount. For completed paid purchases
// PlatformFee + StripeFee + CreatorEarnings == Amount.
type FeeBreakdown struct {
	PlatformFee     Cents
	StripeFee       Cents
	CreatorEarnings Cents
}

func (f FeeBreakdown) Total() Cents {
	return f.PlatformFee + f.StripeFee + f.CreatorEarnings
}

// Purchase is immutable once written, except for completed -> refunded.
type Purchase struct {
	ID            PurchaseID
	UserID        UserID
	GuideID       GuideID
	CreatorID     UserID
	Amount        Cents
	Currency      string
	PaymentMethod PaymentMethod
	TransactionID string // empty for free purchases
	Status        PurchaseStatus
	Fees          FeeBreakdown
	CreatedAt     time.Time
	RefundedAt    *time.Time
}

// IsPaid reports whether money changed hands.
func (p Purchase) IsPaid() bool {
	return p.PaymentMethod != PaymentFree && p.Amount > 0
}

// =============================================================================
// CREATOR
// =============================================================================

type StripeAccountStatus string

const (
	StripeAccountNone       StripeAccountStatus = "none"
	StripeAccountPending    StripeAccountStatus = "pending"
	StripeAccountActive     StripeAccountStatus = "active"
	StripeAccountRestricted StripeAccountStatus = "restricted"
)

type Earnings struct {
	TotalEarnings    Cents
	AvailableBalance Cents
}

type CreatorStats struct {
	TotalSales int64
}

// CreatorProfile is the creator part of a user. Earnings and Stats are only
// ever changed through EarningsDelta increments.
type CreatorProfile struct {
	UserID              UserID
	Name                string
	Email               string
	IsCreator           bool
	Earnings            Earnings
	Stats               CreatorStats
	StripeAccountID     string
	StripeAccountStatus StripeAccountStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// EarningsDelta is applied atomically to a creator profile.
type EarningsDelta struct {
	TotalEarnings    Cents
	AvailableBalance Cents
	TotalSales       int64
}

func (d EarningsDelta) Neg() EarningsDelta {
	return EarningsDelta{
		TotalEarnings:    -d.TotalEarnings,
		AvailableBalance: -d.AvailableBalance,
		TotalSales:       -d.TotalSales,
	}
}

// =============================================================================
// PAYOUT
// =============================================================================

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutCompleted  PayoutStatus = "completed"
	PayoutFailed     PayoutStatus = "failed"
)

type Payout struct {
	ID          PayoutID
	CreatorID   UserID
	Amount      Cents
	Status      PayoutStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// =============================================================================
// NOTIFICATION
// =============================================================================

type NotificationType string

const (
	NotificationGuideSale   NotificationType = "guide_sale"
	NotificationGuideRefund NotificationType = "guide_refund"
)

type Notification struct {
	ID          string
	RecipientID UserID
	Type        NotificationType
	Title       string
	Message     string
	GuideID     GuideID
	PurchaseID  PurchaseID
	Read        bool
	CreatedAt   time.Time
}
