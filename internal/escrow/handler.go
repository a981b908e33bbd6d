package escrow

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/escrow"
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

// GetEscrow handles GET /api/v1/escrows/{id}
func (h *Handler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.HandleServiceError(w, internal.NewValidationError("escrow id is required", internal.ErrCodeValidationFailed))
		return
	}

	acct, err := h.Service.GetByID(r.Context(), id)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewStatusResponse(acct, time.Now().UTC()))
}

// RaiseDispute handles POST /api/v1/escrows/{id}/dispute
func (h *Handler) RaiseDispute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.HandleServiceError(w, internal.NewValidationError("escrow id is required", internal.ErrCodeValidationFailed))
		return
	}

	acct, err := h.Service.RaiseDispute(r.Context(), id)
	if err != nil {
		h.Logger.Error("RaiseDispute: service error", "error", err, "escrow_id", id)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, &ActionResponse{
		Escrow:  acct,
		Message: "dispute recorded; funds are frozen until resolution",
	})
}

// Release handles POST /api/v1/escrows/{id}/release
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.HandleServiceError(w, internal.NewValidationError("escrow id is required", internal.ErrCodeValidationFailed))
		return
	}

	acct, err := h.Service.AutoRelease(r.Context(), id)
	if err != nil {
		h.Logger.Error("Release: service error", "error", err, "escrow_id", id)
		h.HandleServiceError(w, err)
		return
	}

	message := "escrow released"
	if acct.Status != escrow.StatusReleased {
		message = "escrow not due for release; no change applied"
	}
	h.WriteJSON(w, http.StatusOK, &ActionResponse{
		Escrow:  acct,
		Message: message,
	})
}
