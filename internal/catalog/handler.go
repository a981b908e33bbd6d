package catalog

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
	"github.com/tnyamukapa/rentpay/internal/transport"
	"github.com/tnyamukapa/rentpay/pkg/logger"
)

type ServiceAPI interface {
	ListMethods(country string, amount decimal.Decimal, currency string) []payment.PaymentMethod
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

type MethodsResponse struct {
	Methods []payment.PaymentMethod `json:"methods"`
}

// ListMethods handles GET /payment-methods?country=ZW&amount=320&currency=USD
func (h *Handler) ListMethods(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	country := strings.ToUpper(strings.TrimSpace(query.Get("country")))
	if !payment.IsSADCCountry(country) {
		h.HandleServiceError(w, internal.NewValidationFieldError(
			"country", "country must be a SADC ISO code", internal.ErrCodeInvalidCountry))
		return
	}

	amountStr := query.Get("amount")
	amount, err := decimal.NewFromString(amountStr)
	if err != nil || !amount.IsPositive() {
		h.HandleServiceError(w, internal.NewValidationFieldError(
			"amount", "amount must be a positive decimal", internal.ErrCodeInvalidAmount))
		return
	}

	currency := strings.ToUpper(strings.TrimSpace(query.Get("currency")))
	if currency == "" {
		h.HandleServiceError(w, internal.NewValidationFieldError(
			"currency", "currency is required", internal.ErrCodeInvalidCurrency))
		return
	}

	methods := h.Service.ListMethods(country, amount, currency)

	h.Logger.Info("ListMethods: catalog lookup",
		"country", country,
		"amount", amount.String(),
		"currency", currency,
		"matches", len(methods))

	h.WriteJSON(w, http.StatusOK, MethodsResponse{Methods: methods})
}
