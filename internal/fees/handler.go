package fees

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
	"github.com/tnyamukapa/rentpay/internal/transport"
	"github.com/tnyamukapa/rentpay/pkg/logger"
)

// MethodSource resolves catalog entries for fee previews. Previews do not
// gate on availability; that check belongs to submission.
type MethodSource interface {
	GetByID(id string) (payment.PaymentMethod, error)
}

type Handler struct {
	*transport.BaseHandler
	Calculator *Calculator
	Methods    MethodSource
}

func NewHandler(calculator *Calculator, methods MethodSource) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Calculator:  calculator,
		Methods:     methods,
	}
}

type ComputeFeesRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	PaymentMethodID string          `json:"payment_method_id"`
	Country         string          `json:"country"`
}

func (r *ComputeFeesRequest) Validate() *internal.AppError {
	var errs []internal.ValidationError
	if !r.Amount.IsPositive() {
		errs = append(errs, internal.ValidationError{
			Field: "amount", Message: "amount must be positive", Code: string(internal.ErrCodeInvalidAmount)})
	}
	if strings.TrimSpace(r.Currency) == "" {
		errs = append(errs, internal.ValidationError{
			Field: "currency", Message: "currency is required", Code: string(internal.ErrCodeInvalidCurrency)})
	}
	if strings.TrimSpace(r.PaymentMethodID) == "" {
		errs = append(errs, internal.ValidationError{
			Field: "payment_method_id", Message: "payment_method_id is required", Code: string(internal.ErrCodeValidationFailed)})
	}
	if !payment.IsSADCCountry(r.Country) {
		errs = append(errs, internal.ValidationError{
			Field: "country", Message: "country must be a SADC ISO code", Code: string(internal.ErrCodeInvalidCountry)})
	}
	if len(errs) > 0 {
		return internal.NewValidationFieldErrors(errs)
	}
	return nil
}

// ComputeFees handles POST /payments/fees.
func (h *Handler) ComputeFees(w http.ResponseWriter, r *http.Request) {
	var req ComputeFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("ComputeFees: invalid request body", "error", err)
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		h.HandleServiceError(w, err)
		return
	}

	method, err := h.Methods.GetByID(req.PaymentMethodID)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	breakdown, err := h.Calculator.ComputeFees(req.Amount, req.Currency, method, strings.ToUpper(req.Country))
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, breakdown)
}
