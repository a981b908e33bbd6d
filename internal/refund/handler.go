package refund

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

// RequestRefund handles POST /api/v1/refunds
func (h *Handler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("RequestRefund: failed to parse request body", "error", err)
		h.HandleServiceError(w, internal.NewValidationError("invalid request body", internal.ErrCodeValidationFailed))
		return
	}

	resp, err := h.Service.Refund(r.Context(), &req)
	if err != nil {
		h.Logger.Error("RequestRefund: service error",
			"error", err,
			"payment_id", req.PaymentID)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, resp)
}

// GetRefund handles GET /api/v1/refunds/{id}
func (h *Handler) GetRefund(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.HandleServiceError(w, internal.NewValidationError("refund id is required", internal.ErrCodeValidationFailed))
		return
	}

	row, err := h.Service.GetRefund(id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, row)
}
