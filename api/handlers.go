/*
handlers.go - HTTP API handlers for guide purchases and creator earnings

PURPOSE:
  Exposes the purchase flow, earnings reports and payouts via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  purchase, earnings and outbox packages.

ENDPOINTS:
  Guides:
    GET    /api/guides                     List guides (?author=)
    POST   /api/guides                     Create guide from JSON
    GET    /api/guides/{id}                Get guide
    PUT    /api/guides/{id}/status         Publish / archive
    POST   /api/guides/{id}/purchase       Purchase a guide
    GET    /api/guides/{id}/purchase       Has the user purchased it?

  Purchases:
    POST   /api/purchases/{id}/refund      Refund a completed purchase

  Creators:
    POST   /api/creators                   Upsert creator profile
    GET    /api/creators/{id}              Profile with running totals
    GET    /api/creators/{id}/earnings     Earnings report (?period=)
    GET    /api/creators/{id}/audit        Running totals vs. records
    GET    /api/creators/{id}/payouts      List payouts
    POST   /api/creators/{id}/payouts      Request payout

  Payouts:
    PUT    /api/payouts/{id}/status        Payout transition

  Admin:
    GET    /api/admin/outbox               Outbox entries (?status=)
    POST   /api/admin/outbox/process       Run the outbox once

BUYER IDENTITY:
  The X-User-ID header (set by the auth proxy) wins over userId in the body
  or query. Neither present means 401.

ERROR HANDLING:
  Errors are returned as {success: false, error, details?}. statusFor maps
  ledger errors to HTTP statuses in one place. Internal errors are logged
  and reported without details.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/sacavia/guide-ledger/earnings"
	"github.com/sacavia/guide-ledger/factory"
	"github.com/sacavia/guide-ledger/ledger"
	"github.com/sacavia/guide-ledger/outbox"
	"github.com/sacavia/guide-ledger/purchase"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs: the ledger store plus the
// maintenance operations used by /health and the demo scenarios.
type Store interface {
	ledger.Store
	Ping(ctx context.Context) error
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        Store
	Purchases    *purchase.Service
	Earnings     *earnings.Service
	Outbox       *outbox.Worker
	GuideFactory *factory.GuideFactory

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

func NewHandler(store Store, purchases *purchase.Service, earn *earnings.Service, worker *outbox.Worker) *Handler {
	return &Handler{
		Store:        store,
		Purchases:    purchases,
		Earnings:     earn,
		Outbox:       worker,
		GuideFactory: factory.NewGuideFactory(),
	}
}

// =============================================================================
// GUIDE HANDLERS
// =============================================================================

// ListGuides returns the guides of ?author=.
func (h *Handler) ListGuides(w http.ResponseWriter, r *http.Request) {
	author := r.URL.Query().Get("author")
	if author == "" {
		writeError(w, http.StatusBadRequest, "author query parameter is required", nil)
		return
	}

	guides, err := h.Store.ListGuides(r.Context(), ledger.UserID(author))
	if err != nil {
		respondError(w, r, err)
		return
	}

	dtos := make([]GuideDTO, len(guides))
	for i, g := range guides {
		dtos[i] = toGuideDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateGuide creates a guide from a factory.GuideJSON body.
func (h *Handler) CreateGuide(w http.ResponseWriter, r *http.Request) {
	var gj factory.GuideJSON
	if err := json.NewDecoder(r.Body).Decode(&gj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	guide, err := h.GuideFactory.FromJSON(gj)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if _, err := h.Store.GetCreator(r.Context(), guide.AuthorID); err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.Store.SaveGuide(r.Context(), *guide); err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toGuideDTO(*guide))
}

func (h *Handler) GetGuide(w http.ResponseWriter, r *http.Request) {
	guide, err := h.Store.GetGuide(r.Context(), ledger.GuideID(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGuideDTO(*guide))
}

// UpdateGuideStatus publishes, archives or unpublishes a guide.
func (h *Handler) UpdateGuideStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateGuideStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	status := ledger.GuideStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid guide status", errors.New(req.Status))
		return
	}

	guide, err := h.Store.GetGuide(r.Context(), ledger.GuideID(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	guide.Status = status
	guide.UpdatedAt = time.Now().UTC()
	if err := h.Store.SaveGuide(r.Context(), *guide); err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toGuideDTO(*guide))
}

// =============================================================================
// PURCHASE HANDLERS
// =============================================================================

// PurchaseGuide runs the purchase flow for the buyer.
func (h *Handler) PurchaseGuide(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Purchases.Purchase(r.Context(), purchase.Request{
		UserID:          buyerID(r, req.UserID),
		GuideID:         ledger.GuideID(chi.URLParam(r, "id")),
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaymentMethodID: req.PaymentMethodID,
		PaymentType:     req.PaymentType,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, PurchaseResponse{
		Success:   true,
		Purchase:  toPurchaseDTO(result.Purchase),
		Breakdown: toBreakdownDTO(result.Breakdown),
	})
}

// GetPurchaseStatus reports whether ?userId= holds a completed purchase.
func (h *Handler) GetPurchaseStatus(w http.ResponseWriter, r *http.Request) {
	userID := buyerID(r, r.URL.Query().Get("userId"))
	if userID == "" {
		respondError(w, r, ledger.ErrAuthenticationRequired)
		return
	}

	p, purchased, err := h.Purchases.HasPurchased(r.Context(), userID, ledger.GuideID(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := PurchaseStatusResponse{HasPurchased: purchased}
	if p != nil {
		dto := toPurchaseDTO(*p)
		resp.Purchase = &dto
	}
	writeJSON(w, http.StatusOK, resp)
}

// RefundPurchase refunds a completed purchase.
func (h *Handler) RefundPurchase(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	p, err := h.Purchases.Refund(r.Context(), ledger.PurchaseID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "purchase": toPurchaseDTO(*p)})
}

// =============================================================================
// CREATOR HANDLERS
// =============================================================================

// UpsertCreator creates or updates a creator profile. Running totals of an
// existing profile are kept.
func (h *Handler) UpsertCreator(w http.ResponseWriter, r *http.Request) {
	var cj factory.CreatorJSON
	if err := json.NewDecoder(r.Body).Decode(&cj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	profile, err := h.GuideFactory.CreatorFromJSON(cj)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := h.Store.SaveCreator(r.Context(), *profile); err != nil {
		respondError(w, r, err)
		return
	}

	saved, err := h.Store.GetCreator(r.Context(), profile.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCreatorDTO(*saved))
}

func (h *Handler) GetCreator(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetCreator(r.Context(), ledger.UserID(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCreatorDTO(*c))
}

// GetEarnings returns the earnings report for ?period=.
func (h *Handler) GetEarnings(w http.ResponseWriter, r *http.Request) {
	report, err := h.Earnings.Report(r.Context(), ledger.UserID(chi.URLParam(r, "id")), r.URL.Query().Get("period"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEarningsReportDTO(report))
}

func (h *Handler) GetAudit(w http.ResponseWriter, r *http.Request) {
	audit, err := h.Earnings.Audit(r.Context(), ledger.UserID(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditDTO(audit))
}

// =============================================================================
// PAYOUT HANDLERS
// =============================================================================

func (h *Handler) ListPayouts(w http.ResponseWriter, r *http.Request) {
	payouts, err := h.Earnings.ListPayouts(r.Context(), ledger.UserID(chi.URLParam(r, "id")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTOs(payouts))
}

func (h *Handler) RequestPayout(w http.ResponseWriter, r *http.Request) {
	var req PayoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := ledger.CentsFromDecimal(req.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}

	p, err := h.Earnings.RequestPayout(r.Context(), ledger.UserID(chi.URLParam(r, "id")), amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPayoutDTO(*p))
}

func (h *Handler) UpdatePayoutStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdatePayoutStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	p, err := h.Earnings.UpdatePayoutStatus(r.Context(), ledger.PayoutID(chi.URLParam(r, "id")), ledger.PayoutStatus(req.Status))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayoutDTO(*p))
}

// =============================================================================
// NOTIFICATION AND ADMIN HANDLERS
// =============================================================================

// ListNotifications returns the newest notifications (?limit=, default 50).
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	notes, err := h.Store.ListNotifications(r.Context(), ledger.UserID(chi.URLParam(r, "id")), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}

	dtos := make([]NotificationDTO, len(notes))
	for i, n := range notes {
		dtos[i] = NotificationDTO{
			ID:         n.ID,
			Type:       string(n.Type),
			Title:      n.Title,
			Message:    n.Message,
			GuideID:    string(n.GuideID),
			PurchaseID: string(n.PurchaseID),
			Read:       n.Read,
			CreatedAt:  formatTime(n.CreatedAt),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListOutbox returns outbox entries, oldest first (?status=pending|done|dead).
func (h *Handler) ListOutbox(w http.ResponseWriter, r *http.Request) {
	status := ledger.OutboxStatus(r.URL.Query().Get("status"))
	switch status {
	case "", ledger.OutboxPending, ledger.OutboxDone, ledger.OutboxDead:
	default:
		writeError(w, http.StatusBadRequest, "Invalid outbox status", errors.New(string(status)))
		return
	}

	entries, err := h.Store.ListOutbox(r.Context(), status, 500)
	if err != nil {
		respondError(w, r, err)
		return
	}

	dtos := make([]OutboxEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = OutboxEntryDTO{
			ID:          e.ID,
			Topic:       e.Topic,
			Key:         e.Key,
			Payload:     e.Payload,
			Status:      string(e.Status),
			Attempts:    e.Attempts,
			LastError:   e.LastError,
			CreatedAt:   formatTime(e.CreatedAt),
			ProcessedAt: formatTimePtr(e.ProcessedAt),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ProcessOutbox runs the outbox worker once, outside its schedule.
func (h *Handler) ProcessOutbox(w http.ResponseWriter, r *http.Request) {
	if h.Outbox == nil {
		writeError(w, http.StatusServiceUnavailable, "Outbox worker not configured", nil)
		return
	}

	summary, err := h.Outbox.ProcessPending(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOutboxSummaryDTO(summary))
}

// Health reports liveness and whether payments are configured.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "Database unavailable", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"paymentsEnabled": h.Purchases.PaymentsEnabled(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func buyerID(r *http.Request, fallback string) ledger.UserID {
	if id := r.Header.Get("X-User-ID"); id != "" {
		return ledger.UserID(id)
	}
	return ledger.UserID(fallback)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// respondError writes err with the status statusFor assigns it.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).Error("Request failed")
		writeError(w, status, "Internal server error", nil)
		return
	}
	writeError(w, status, err.Error(), nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrAuthenticationRequired):
		return http.StatusUnauthorized
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrPaymentFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrPurchaseNotRefundable),
		errors.Is(err, ledger.ErrInvalidPayoutTransition),
		errors.Is(err, ledger.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrPaymentUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrPaymentTimeout):
		return http.StatusGatewayTimeout
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
