package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Logger  *slog.Logger
}

func NewHandler(service ServiceAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger),
		Service:     service,
		Logger:      logger,
	}
}

// SubmitPayment handles POST /api/v1/payments
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req SubmitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("SubmitPayment: failed to parse request body", "error", err)
		h.HandleServiceError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = NewIdempotencyKey()
	}
	// echo the key so clients that timed out can replay the submission
	w.Header().Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := h.Service.SubmitPayment(r.Context(), &req)
	if err != nil {
		h.Logger.Error("SubmitPayment: service error",
			"error", err,
			"booking_id", req.BookingID,
			"method_id", req.MethodID)
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if resp.ThreeDS != nil {
		status = http.StatusAccepted
	}
	h.WriteJSON(w, status, resp)
}

// ResumeThreeDS handles POST /api/v1/payments/3ds/resume
func (h *Handler) ResumeThreeDS(w http.ResponseWriter, r *http.Request) {
	var req ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("ResumeThreeDS: failed to parse request body", "error", err)
		h.HandleServiceError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.ResumeThreeDS(r.Context(), &req)
	if err != nil {
		h.Logger.Error("ResumeThreeDS: service error", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	status := http.StatusOK
	if resp.ThreeDS != nil {
		status = http.StatusAccepted
	}
	h.WriteJSON(w, status, resp)
}

// ValidateDetails handles POST /api/v1/payments/validate
func (h *Handler) ValidateDetails(w http.ResponseWriter, r *http.Request) {
	var req ValidateDetailsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("ValidateDetails: failed to parse request body", "error", err)
		h.HandleServiceError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.ValidateDetails(&req)
	if err != nil {
		h.Logger.Error("ValidateDetails: service error", "error", err, "method_id", req.MethodID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// GetTransaction handles GET /api/v1/payments/{id}
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.HandleServiceError(w, internal.NewValidationError("transaction id is required", internal.ErrCodeValidationFailed))
		return
	}

	view, err := h.Service.GetTransaction(id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, view)
}
