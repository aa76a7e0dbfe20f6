/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger types from the external API contract.

MONEY:
  Amounts leave the API as JSON numbers in major units (7.91), converted
  from Cents at the last moment. Amounts coming in are parsed with
  decimal.Decimal, so both 7.91 and "7.91" are accepted and sub-cent
  values are rejected instead of rounded.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Response wrappers

TYPES:
  Purchase:  PurchaseRequest, PurchaseDTO, BreakdownDTO, PurchaseResponse,
             PurchaseStatusResponse, RefundRequest
  Guide:     GuideDTO (create uses factory.GuideJSON), UpdateGuideStatusRequest
  Creator:   CreatorDTO (upsert uses factory.CreatorJSON)
  Earnings:  EarningsReportDTO, AuditDTO
  Payouts:   PayoutDTO, PayoutRequest, UpdatePayoutStatusRequest
  Outbox:    OutboxEntryDTO, OutboxSummaryDTO
  Scenarios: ScenarioDTO, LoadScenarioRequest

SEE ALSO:
  - handlers.go: Uses these types
  - factory/guide.go: GuideJSON and CreatorJSON
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sacavia/guide-ledger/earnings"
	"github.com/sacavia/guide-ledger/ledger"
	"github.com/sacavia/guide-ledger/outbox"
	"github.com/sacavia/guide-ledger/purchase"
)

// =============================================================================
// PURCHASES
// =============================================================================

// PurchaseRequest is the body of POST /api/guides/{id}/purchase.
type PurchaseRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethodID string          `json:"paymentMethodId,omitempty"`
	UserID          string          `json:"userId"`
	PaymentType     string          `json:"paymentType"`
	Currency        string          `json:"currency,omitempty"`
}

type PurchaseDTO struct {
	ID              string  `json:"id"`
	UserID          string  `json:"userId"`
	GuideID         string  `json:"guideId"`
	CreatorID       string  `json:"creatorId"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	PaymentMethod   string  `json:"paymentMethod"`
	TransactionID   *string `json:"transactionId"`
	Status          string  `json:"status"`
	PlatformFee     float64 `json:"platformFee"`
	StripeFee       float64 `json:"stripeFee"`
	CreatorEarnings float64 `json:"creatorEarnings"`
	CreatedAt       string  `json:"createdAt"`
	RefundedAt      *string `json:"refundedAt,omitempty"`
}

type BreakdownDTO struct {
	TotalAmount     float64 `json:"totalAmount"`
	PlatformFee     float64 `json:"platformFee"`
	StripeFee       float64 `json:"stripeFee"`
	CreatorEarnings float64 `json:"creatorEarnings"`
}

type PurchaseResponse struct {
	Success   bool         `json:"success"`
	Purchase  PurchaseDTO  `json:"purchase"`
	Breakdown BreakdownDTO `json:"breakdown"`
}

type PurchaseStatusResponse struct {
	HasPurchased bool         `json:"hasPurchased"`
	Purchase     *PurchaseDTO `json:"purchase"`
}

type RefundRequest struct {
	Reason string `json:"reason,omitempty"`
}

func toPurchaseDTO(p ledger.Purchase) PurchaseDTO {
	dto := PurchaseDTO{
		ID:              string(p.ID),
		UserID:          string(p.UserID),
		GuideID:         string(p.GuideID),
		CreatorID:       string(p.CreatorID),
		Amount:          p.Amount.Float64(),
		Currency:        p.Currency,
		PaymentMethod:   string(p.PaymentMethod),
		Status:          string(p.Status),
		PlatformFee:     p.Fees.PlatformFee.Float64(),
		StripeFee:       p.Fees.StripeFee.Float64(),
		CreatorEarnings: p.Fees.CreatorEarnings.Float64(),
		CreatedAt:       formatTime(p.CreatedAt),
		RefundedAt:      formatTimePtr(p.RefundedAt),
	}
	if p.TransactionID != "" {
		dto.TransactionID = &p.TransactionID
	}
	return dto
}

func toBreakdownDTO(b purchase.Breakdown) BreakdownDTO {
	return BreakdownDTO{
		TotalAmount:     b.TotalAmount.Float64(),
		PlatformFee:     b.PlatformFee.Float64(),
		StripeFee:       b.StripeFee.Float64(),
		CreatorEarnings: b.CreatorEarnings.Float64(),
	}
}

// =============================================================================
// GUIDES
// =============================================================================

type GuideDTO struct {
	ID          string     `json:"id"`
	AuthorID    string     `json:"authorId"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Pricing     PricingDTO `json:"pricing"`
	Status      string     `json:"status"`
	Stats       struct {
		Purchases int64   `json:"purchases"`
		Revenue   float64 `json:"revenue"`
	} `json:"stats"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type PricingDTO struct {
	Type  string  `json:"type"`
	Price float64 `json:"price"`
}

type UpdateGuideStatusRequest struct {
	Status string `json:"status"`
}

func toGuideDTO(g ledger.Guide) GuideDTO {
	dto := GuideDTO{
		ID:          string(g.ID),
		AuthorID:    string(g.AuthorID),
		Title:       g.Title,
		Description: g.Description,
		Pricing:     PricingDTO{Type: string(g.Pricing.Type), Price: g.Pricing.Price.Float64()},
		Status:      string(g.Status),
		CreatedAt:   formatTime(g.CreatedAt),
		UpdatedAt:   formatTime(g.UpdatedAt),
	}
	dto.Stats.Purchases = g.Stats.Purchases
	dto.Stats.Revenue = g.Stats.Revenue.Float64()
	return dto
}

// =============================================================================
// CREATORS AND EARNINGS
// =============================================================================

type CreatorDTO struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	IsCreator bool   `json:"isCreator"`
	Earnings  struct {
		TotalEarnings    float64 `json:"totalEarnings"`
		AvailableBalance float64 `json:"availableBalance"`
	} `json:"earnings"`
	Stats struct {
		TotalSales int64 `json:"totalSales"`
	} `json:"stats"`
	StripeAccountID     string `json:"stripeAccountId,omitempty"`
	StripeAccountStatus string `json:"stripeAccountStatus"`
}

func toCreatorDTO(c ledger.CreatorProfile) CreatorDTO {
	dto := CreatorDTO{
		UserID:              string(c.UserID),
		Name:                c.Name,
		Email:               c.Email,
		IsCreator:           c.IsCreator,
		StripeAccountID:     c.StripeAccountID,
		StripeAccountStatus: string(c.StripeAccountStatus),
	}
	dto.Earnings.TotalEarnings = c.Earnings.TotalEarnings.Float64()
	dto.Earnings.AvailableBalance = c.Earnings.AvailableBalance.Float64()
	dto.Stats.TotalSales = c.Stats.TotalSales
	return dto
}

// EarningsReportDTO is the body of GET /api/creators/{id}/earnings.
type EarningsReportDTO struct {
	CreatorID string `json:"creatorId"`
	Period    string `json:"period"`
	From      string `json:"from"`
	To        string `json:"to"`

	TotalEarnings    float64 `json:"totalEarnings"`
	TotalSales       int64   `json:"totalSales"`
	AvailableBalance float64 `json:"availableBalance"`
	PendingBalance   float64 `json:"pendingBalance"`
	TotalPayouts     float64 `json:"totalPayouts"`
	Overdrawn        float64 `json:"overdrawn,omitempty"`

	PeriodEarnings float64 `json:"periodEarnings"`
	PeriodSales    int64   `json:"periodSales"`
	PeriodRevenue  float64 `json:"periodRevenue"`
	AverageSale    float64 `json:"averageSale"`

	MonthlyEarnings float64 `json:"monthlyEarnings"`
	MonthlySales    int64   `json:"monthlySales"`

	RecentSales []SaleDTO       `json:"recentSales"`
	Trend       []MonthPointDTO `json:"trend"`
	PayoutInfo  PayoutInfoDTO   `json:"payoutInfo"`
}

type SaleDTO struct {
	PurchaseID string  `json:"purchaseId"`
	GuideID    string  `json:"guideId"`
	GuideTitle string  `json:"guideTitle"`
	BuyerID    string  `json:"buyerId"`
	Amount     float64 `json:"amount"`
	Earnings   float64 `json:"earnings"`
	CreatedAt  string  `json:"createdAt"`
}

type MonthPointDTO struct {
	Month    string  `json:"month"`
	Earnings float64 `json:"earnings"`
	Sales    int64   `json:"sales"`
}

type PayoutInfoDTO struct {
	StripeAccountID     string      `json:"stripeAccountId"`
	StripeAccountStatus string      `json:"stripeAccountStatus"`
	CanReceivePayouts   bool        `json:"canReceivePayouts"`
	RecentPayouts       []PayoutDTO `json:"recentPayouts"`
}

func toEarningsReportDTO(r *earnings.Report) EarningsReportDTO {
	dto := EarningsReportDTO{
		CreatorID:        string(r.CreatorID),
		Period:           string(r.Period),
		From:             formatTime(r.Window.Start),
		To:               formatTime(r.Window.End),
		TotalEarnings:    r.TotalEarnings.Float64(),
		TotalSales:       r.TotalSales,
		AvailableBalance: r.Balance.AvailableBalance.Float64(),
		PendingBalance:   r.Balance.PendingBalance.Float64(),
		TotalPayouts:     r.Balance.TotalPayouts.Float64(),
		Overdrawn:        r.Balance.Overdrawn.Float64(),
		PeriodEarnings:   r.PeriodEarnings.Float64(),
		PeriodSales:      r.PeriodSales,
		PeriodRevenue:    r.PeriodRevenue.Float64(),
		AverageSale:      r.AverageSale.Float64(),
		MonthlyEarnings:  r.MonthlyEarnings.Float64(),
		MonthlySales:     r.MonthlySales,
		RecentSales:      make([]SaleDTO, len(r.RecentSales)),
		Trend:            make([]MonthPointDTO, len(r.Trend)),
		PayoutInfo: PayoutInfoDTO{
			StripeAccountID:     r.PayoutInfo.StripeAccountID,
			StripeAccountStatus: string(r.PayoutInfo.StripeAccountStatus),
			CanReceivePayouts:   r.PayoutInfo.CanReceivePayouts,
			RecentPayouts:       toPayoutDTOs(r.PayoutInfo.RecentPayouts),
		},
	}
	for i, s := range r.RecentSales {
		dto.RecentSales[i] = SaleDTO{
			PurchaseID: string(s.PurchaseID),
			GuideID:    string(s.GuideID),
			GuideTitle: s.GuideTitle,
			BuyerID:    string(s.BuyerID),
			Amount:     s.Amount.Float64(),
			Earnings:   s.Earnings.Float64(),
			CreatedAt:  formatTime(s.CreatedAt),
		}
	}
	for i, m := range r.Trend {
		dto.Trend[i] = MonthPointDTO{Month: m.Month, Earnings: m.Earnings.Float64(), Sales: m.Sales}
	}
	return dto
}

type AuditDTO struct {
	CreatorID         string  `json:"creatorId"`
	Consistent        bool    `json:"consistent"`
	StoredEarnings    float64 `json:"storedEarnings"`
	ExpectedEarnings  float64 `json:"expectedEarnings"`
	EarningsDrift     float64 `json:"earningsDrift"`
	StoredSales       int64   `json:"storedSales"`
	ExpectedSales     int64   `json:"expectedSales"`
	SalesDrift        int64   `json:"salesDrift"`
	StoredAvailable   float64 `json:"storedAvailable"`
	ExpectedAvailable float64 `json:"expectedAvailable"`
	Overdrawn         float64 `json:"overdrawn"`
}

func toAuditDTO(a *earnings.Audit) AuditDTO {
	return AuditDTO{
		CreatorID:         string(a.CreatorID),
		Consistent:        a.Consistent(),
		StoredEarnings:    a.StoredEarnings.Float64(),
		ExpectedEarnings:  a.ExpectedEarnings.Float64(),
		EarningsDrift:     a.EarningsDrift().Float64(),
		StoredSales:       a.StoredSales,
		ExpectedSales:     a.ExpectedSales,
		SalesDrift:        a.SalesDrift(),
		StoredAvailable:   a.StoredAvailable.Float64(),
		ExpectedAvailable: a.ExpectedAvailable.Float64(),
		Overdrawn:         a.Overdrawn.Float64(),
	}
}

// =============================================================================
// PAYOUTS
// =============================================================================

type PayoutDTO struct {
	ID          string  `json:"id"`
	CreatorID   string  `json:"creatorId"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
	CompletedAt *string `json:"completedAt,omitempty"`
}

type PayoutRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type UpdatePayoutStatusRequest struct {
	Status string `json:"status"`
}

func toPayoutDTO(p ledger.Payout) PayoutDTO {
	return PayoutDTO{
		ID:          string(p.ID),
		CreatorID:   string(p.CreatorID),
		Amount:      p.Amount.Float64(),
		Status:      string(p.Status),
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
		CompletedAt: formatTimePtr(p.CompletedAt),
	}
}

func toPayoutDTOs(payouts []ledger.Payout) []PayoutDTO {
	dtos := make([]PayoutDTO, len(payouts))
	for i, p := range payouts {
		dtos[i] = toPayoutDTO(p)
	}
	return dtos
}

// =============================================================================
// NOTIFICATIONS AND OUTBOX
// =============================================================================

type NotificationDTO struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Message    string `json:"message"`
	GuideID    string `json:"guideId,omitempty"`
	PurchaseID string `json:"purchaseId,omitempty"`
	Read       bool   `json:"read"`
	CreatedAt  string `json:"createdAt"`
}

type OutboxEntryDTO struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"lastError,omitempty"`
	CreatedAt   string          `json:"createdAt"`
	ProcessedAt *string         `json:"processedAt,omitempty"`
}

type OutboxSummaryDTO struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Dead      int `json:"dead"`
}

func toOutboxSummaryDTO(s outbox.Summary) OutboxSummaryDTO {
	return OutboxSummaryDTO{Processed: s.Processed, Failed: s.Failed, Dead: s.Dead}
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
