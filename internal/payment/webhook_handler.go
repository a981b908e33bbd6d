package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"golang.org/x/crypto/bcrypt"

	"github.com/tnyamukapa/rentpay/internal/transport"
)

// CredentialStore resolves the shared-secret hash registered for a
// gateway. Callbacks carrying no secret, or the wrong one, never reach
// the settlement path.
type CredentialStore interface {
	SecretHash(provider string) (string, error)
}

type WebhookHandler struct {
	*transport.BaseHandler
	payments    ServiceAPI
	credentials CredentialStore
	logger      *slog.Logger
}

func NewWebhookHandler(baseHandler *transport.BaseHandler, payments ServiceAPI, credentials CredentialStore, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler: baseHandler,
		payments:    payments,
		credentials: credentials,
		logger:      logger,
	}
}

type PaymentCallbackRequest struct {
	TransactionID     string `json:"transaction_id"`
	ProviderReference string `json:"provider_reference"`
	Status            string `json:"status"`
	FailureCode       string `json:"failure_code,omitempty"`
	FailureReason     string `json:"failure_reason,omitempty"`
}

type PaymentCallbackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandlePaymentCallback handles POST /webhook/provider/{provider}
func (h *WebhookHandler) HandlePaymentCallback(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "provider")
	if gateway == "" {
		h.WriteErrorResponse(w, http.StatusBadRequest, "provider is required")
		return
	}

	if !h.authenticate(r, gateway) {
		h.logger.Warn("rejected webhook with bad credentials", "provider", gateway)
		h.WriteErrorResponse(w, http.StatusUnauthorized, "invalid webhook credentials")
		return
	}

	var req PaymentCallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("invalid payment callback request", "error", err, "provider", gateway)
		h.WriteErrorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.logger.Info("received payment callback",
		"provider", gateway,
		"transaction_id", req.TransactionID,
		"provider_reference", req.ProviderReference,
		"status", req.Status)

	if req.TransactionID == "" && req.ProviderReference == "" {
		h.WriteErrorResponse(w, http.StatusBadRequest, "transaction_id or provider_reference is required")
		return
	}

	switch req.Status {
	case "succeeded", "failed":
	default:
		h.WriteErrorResponse(w, http.StatusBadRequest, "status must be succeeded or failed")
		return
	}

	err := h.payments.SettleFromProvider(r.Context(),
		req.TransactionID, req.ProviderReference,
		req.Status == "succeeded", req.FailureCode, req.FailureReason)
	if err != nil {
		h.logger.Error("failed to process payment callback",
			"error", err,
			"provider", gateway,
			"transaction_id", req.TransactionID,
			"status", req.Status)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, PaymentCallbackResponse{
		Status:  "success",
		Message: "callback processed successfully",
	})
}

// authenticate compares the callback's shared secret against the bcrypt
// hash registered for the gateway.
func (h *WebhookHandler) authenticate(r *http.Request, gateway string) bool {
	secret := r.Header.Get("X-Webhook-Secret")
	if secret == "" {
		return false
	}

	hash, err := h.credentials.SecretHash(gateway)
	if err != nil {
		h.logger.Error("webhook credential lookup failed", "error", err, "provider", gateway)
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

func (h *WebhookHandler) WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]string{
		"error": message,
	}
	h.WriteJSON(w, statusCode, response)
}
