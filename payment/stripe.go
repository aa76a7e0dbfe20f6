package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/sacavia/guide-ledger/ledger"
)

// StripeConfig configures the Stripe gateway. BaseURL and HTTPClient are
// only set in tests.
type StripeConfig struct {
	SecretKey         string
	BaseURL           string
	HTTPClient        *http.Client
	MaxNetworkRetries int64
}

// Stripe confirms PaymentIntents synchronously with a saved payment method.
type Stripe struct {
	api *client.API
}

// NewStripe returns nil when no secret key is configured, so callers get the
// "payments not configured" behavior.
func NewStripe(cfg StripeConfig) *Stripe {
	if cfg.SecretKey == "" {
		return nil
	}

	backendCfg := &stripe.BackendConfig{
		LeveledLogger:     log.StandardLogger(),
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(strings.TrimRight(cfg.BaseURL, "/"))
	}
	if cfg.HTTPClient != nil {
		backendCfg.HTTPClient = cfg.HTTPClient
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := client.New(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Stripe{api: api}
}

func (s *Stripe) Charge(ctx context.Context, c Charge) (*Receipt, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(int64(c.Amount)),
		Currency:      stripe.String(strings.ToLower(c.Currency)),
		PaymentMethod: stripe.String(c.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	if c.Description != "" {
		params.Description = stripe.String(c.Description)
	}
	for k, v := range c.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if c.IdempotencyKey != "" {
		params.SetIdempotencyKey(c.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, classify("payment_intents", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return nil, fmt.Errorf("%w: payment intent %s is %s", ledger.ErrPaymentFailed, pi.ID, pi.Status)
	}
	return &Receipt{TransactionID: pi.ID, Status: string(pi.Status)}, nil
}

func (s *Stripe) Refund(ctx context.Context, transactionID string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(transactionID)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + transactionID)

	if _, err := s.api.Refunds.New(params); err != nil {
		return classify("refunds", err)
	}
	return nil
}

// classify maps stripe-go errors onto the ledger's payment errors: processor
// or transport trouble is ErrPaymentUnavailable, a rejected request is
// ErrPaymentFailed.
func classify(op string, err error) error {
	var serr *stripe.Error
	if !errors.As(err, &serr) {
		return fmt.Errorf("%w: stripe %s: %w", ledger.ErrPaymentUnavailable, op, err)
	}

	if serr.HTTPStatusCode >= 500 || serr.HTTPStatusCode == http.StatusTooManyRequests || serr.Type == stripe.ErrorTypeAPI {
		return fmt.Errorf("%w: stripe %s returned %d", ledger.ErrPaymentUnavailable, op, serr.HTTPStatusCode)
	}

	log.WithFields(log.Fields{
		"op":           op,
		"status":       serr.HTTPStatusCode,
		"type":         serr.Type,
		"code":         serr.Code,
		"decline_code": serr.DeclineCode,
	}).Warn("Stripe rejected request")
	return fmt.Errorf("%w: %s", ledger.ErrPaymentFailed, serr.Msg)
}
