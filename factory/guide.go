/*
Package factory converts JSON guide and creator definitions into ledger types.

PURPOSE:
  Guides and creator profiles arrive as JSON (admin UI, demo scenarios,
  seed files). The factory validates them and fills in defaults so the
  rest of the system only ever sees well-formed ledger.Guide and
  ledger.CreatorProfile values.

JSON SCHEMA (guide):
  {
    "id": "lisbon-rooftops",
    "author_id": "creator-1",
    "title": "Lisbon Rooftops",
    "description": "Twelve bars with a view",
    "pricing": {"type": "paid", "price": "9.99"},
    "status": "published"
  }

  Prices are in major units (dollars) and accept JSON numbers or strings.

PRICING RULES:
  - free: price is forced to 0
  - paid: price must be at least ledger.MinimumPriceCents
  - pay-what-you-want: price is a suggestion; 0 means no suggestion

DEFAULTS:
  - id: a new UUID
  - status: draft
  - stripe_account_status (creator): none

SEE ALSO:
  - ledger/types.go: Guide and CreatorProfile
  - api/scenarios.go: Demo data built from these types
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sacavia/guide-ledger/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type GuideJSON struct {
	ID          string      `json:"id,omitempty"`
	AuthorID    string      `json:"author_id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Pricing     PricingJSON `json:"pricing"`
	Status      string      `json:"status,omitempty"`
}

type PricingJSON struct {
	Type  string           `json:"type"`
	Price *decimal.Decimal `json:"price,omitempty"`
}

type CreatorJSON struct {
	UserID              string `json:"user_id"`
	Name                string `json:"name"`
	Email               string `json:"email,omitempty"`
	StripeAccountID     string `json:"stripe_account_id,omitempty"`
	StripeAccountStatus string `json:"stripe_account_status,omitempty"`
}

// =============================================================================
// GUIDE FACTORY
// =============================================================================

type GuideFactory struct {
	now func() time.Time
}

func NewGuideFactory() *GuideFactory {
	return &GuideFactory{now: time.Now}
}

// ParseGuide parses and validates a guide definition.
func (f *GuideFactory) ParseGuide(jsonStr string) (*ledger.Guide, error) {
	var gj GuideJSON
	if err := json.Unmarshal([]byte(jsonStr), &gj); err != nil {
		return nil, fmt.Errorf("%w: failed to parse guide JSON: %v", ledger.ErrInvalidGuide, err)
	}
	return f.FromJSON(gj)
}

// FromJSON converts GuideJSON to a ledger.Guide.
func (f *GuideFactory) FromJSON(gj GuideJSON) (*ledger.Guide, error) {
	title := strings.TrimSpace(gj.Title)
	if title == "" {
		return nil, invalidGuide("title is required")
	}
	if gj.AuthorID == "" {
		return nil, invalidGuide("author_id is required")
	}

	pricing, err := parsePricing(gj.Pricing)
	if err != nil {
		return nil, err
	}

	status := ledger.GuideDraft
	if gj.Status != "" {
		status = ledger.GuideStatus(gj.Status)
		if !status.Valid() {
			return nil, invalidGuide("unknown status %q", gj.Status)
		}
	}

	id := gj.ID
	if id == "" {
		id = uuid.NewString()
	}

	now := f.now().UTC()
	return &ledger.Guide{
		ID:          ledger.GuideID(id),
		AuthorID:    ledger.UserID(gj.AuthorID),
		Title:       title,
		Description: gj.Description,
		Pricing:     pricing,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func parsePricing(pj PricingJSON) (ledger.Pricing, error) {
	typ := ledger.PricingType(pj.Type)
	if !typ.Valid() {
		return ledger.Pricing{}, invalidGuide("unknown pricing type %q", pj.Type)
	}

	var price ledger.Cents
	if pj.Price != nil {
		if pj.Price.IsNegative() {
			return ledger.Pricing{}, invalidGuide("price must not be negative")
		}
		c, err := ledger.CentsFromDecimal(*pj.Price)
		if err != nil {
			return ledger.Pricing{}, fmt.Errorf("%w: %v", ledger.ErrInvalidGuide, err)
		}
		price = c
	}

	switch typ {
	case ledger.PricingFree:
		price = 0
	case ledger.PricingPaid:
		if price < ledger.MinimumPriceCents {
			return ledger.Pricing{}, invalidGuide("paid guides cost at least %s", ledger.MinimumPriceCents.Dollars())
		}
	}
	return ledger.Pricing{Type: typ, Price: price}, nil
}

// ToJSON converts a guide back to its JSON definition.
func (f *GuideFactory) ToJSON(g ledger.Guide) GuideJSON {
	gj := GuideJSON{
		ID:          string(g.ID),
		AuthorID:    string(g.AuthorID),
		Title:       g.Title,
		Description: g.Description,
		Pricing:     PricingJSON{Type: string(g.Pricing.Type)},
		Status:      string(g.Status),
	}
	if g.Pricing.Type != ledger.PricingFree {
		price := g.Pricing.Price.Decimal()
		gj.Pricing.Price = &price
	}
	return gj
}

// =============================================================================
// CREATORS
// =============================================================================

// CreatorFromJSON converts CreatorJSON to a creator profile. Earnings and
// stats are left zero; the store keeps existing totals on upsert.
func (f *GuideFactory) CreatorFromJSON(cj CreatorJSON) (*ledger.CreatorProfile, error) {
	if cj.UserID == "" {
		return nil, invalidGuide("user_id is required")
	}

	status := ledger.StripeAccountNone
	if cj.StripeAccountStatus != "" {
		status = ledger.StripeAccountStatus(cj.StripeAccountStatus)
		switch status {
		case ledger.StripeAccountNone, ledger.StripeAccountPending, ledger.StripeAccountActive, ledger.StripeAccountRestricted:
		default:
			return nil, invalidGuide("unknown stripe_account_status %q", cj.StripeAccountStatus)
		}
	}

	now := f.now().UTC()
	return &ledger.CreatorProfile{
		UserID:              ledger.UserID(cj.UserID),
		Name:                cj.Name,
		Email:               cj.Email,
		IsCreator:           true,
		StripeAccountID:     cj.StripeAccountID,
		StripeAccountStatus: status,
		CreatedAt:           now,
		UpdatedAt:           now,
	}, nil
}

func invalidGuide(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ledger.ErrInvalidGuide, fmt.Sprintf(format, args...))
}
