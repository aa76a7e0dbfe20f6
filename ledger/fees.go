package ledger

import "github.com/shopspring/decimal"

// =============================================================================
// FEE CALCULATOR
// =============================================================================

const (
	// StripeFixedFee is the processor's fixed per-charge fee.
	StripeFixedFee Cents = 30

	// MinimumPriceCents is the smallest amount accepted for paid and
	// pay-what-you-want purchases. Below roughly 37 cents the fixed processor
	// fee plus commission exceed the sale; 50 cents is the processor minimum.
	MinimumPriceCents Cents = 50
)

var (
	stripeRate   = decimal.RequireFromString("0.029")
	platformRate = decimal.RequireFromString("0.15")
)

// CalculateFees splits a gross amount into processor fee, platform commission
// and creator earnings:
//
//	stripeFee       = round(amount * 2.9%) + 30
//	platformFee     = round(amount * 15%)
//	creatorEarnings = amount - stripeFee - platformFee
//
// The three parts always sum to amount. When creatorEarnings would be negative
// it is floored at zero and the deficit is taken from the platform fee first,
// then from the processor fee.
func CalculateFees(amount Cents) FeeBreakdown {
	if amount <= 0 {
		return FeeBreakdown{}
	}

	stripeFee := percentOf(amount, stripeRate) + StripeFixedFee
	platformFee := percentOf(amount, platformRate)
	earnings := amount - stripeFee - platformFee

	if earnings < 0 {
		deficit := -earnings
		earnings = 0

		take := min(deficit, platformFee)
		platformFee -= take
		deficit -= take

		stripeFee -= deficit
	}

	return FeeBreakdown{
		PlatformFee:     platformFee,
		StripeFee:       stripeFee,
		CreatorEarnings: earnings,
	}
}

// percentOf rounds half away from zero, which for the non-negative amounts
// used here is half-up.
func percentOf(amount Cents, rate decimal.Decimal) Cents {
	return Cents(decimal.NewFromInt(int64(amount)).Mul(rate).Round(0).IntPart())
}
