/*
Package payment is the boundary to the external payment processor.

PURPOSE:
  The purchase flow charges buyers through the Gateway interface and never
  talks to the processor directly. A nil Gateway means payments are not
  configured: free guides still work, paid ones fail with
  ledger.ErrPaymentUnavailable.

TIMEOUTS:
  WithTimeout bounds every call. A processor that does not answer in time
  yields ledger.ErrPaymentTimeout, which is retryable and is never treated
  as a successful charge.

SEE ALSO:
  - stripe.go: PaymentIntents client
  - purchase/service.go: Caller
*/
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sacavia/guide-ledger/ledger"
)

// Charge describes one payment attempt.
type Charge struct {
	Amount          ledger.Cents
	Currency        string
	PaymentMethodID string
	Description     string
	IdempotencyKey  string
	Metadata        map[string]string
}

// Receipt is a confirmed charge.
type Receipt struct {
	TransactionID string
	Status        string
}

// Gateway charges and refunds buyers.
type Gateway interface {
	// Charge returns a receipt only for a confirmed payment. Declines wrap
	// ledger.ErrPaymentFailed.
	Charge(ctx context.Context, c Charge) (*Receipt, error)

	// Refund returns the full amount of a previous charge.
	Refund(ctx context.Context, transactionID string) error
}

// =============================================================================
// TIMEOUT WRAPPER
// =============================================================================

type timeoutGateway struct {
	next    Gateway
	timeout time.Duration
}

// WithTimeout wraps g so that every call is cut off after d.
func WithTimeout(g Gateway, d time.Duration) Gateway {
	if g == nil || d <= 0 {
		return g
	}
	return &timeoutGateway{next: g, timeout: d}
}

func (t *timeoutGateway) Charge(ctx context.Context, c Charge) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	receipt, err := t.next.Charge(ctx, c)
	if err != nil {
		return nil, asTimeout(ctx, err)
	}
	return receipt, nil
}

func (t *timeoutGateway) Refund(ctx context.Context, transactionID string) error {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	return asTimeout(ctx, t.next.Refund(ctx, transactionID))
}

func asTimeout(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ledger.ErrPaymentTimeout, err)
	}
	return err
}
