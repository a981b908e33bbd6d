package refund

import (
	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/common/validation"
)

// RefundRequest asks for a refund against a completed transaction. A nil
// Amount refunds exactly the remaining balance.
type RefundRequest struct {
	PaymentID string           `json:"payment_id"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Reason    string           `json:"reason"`
}

func (r *RefundRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("payment_id", r.PaymentID).Required()
	validator.Field("reason", r.Reason).Required().MaxLength(500)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	if r.Amount != nil {
		if !r.Amount.IsPositive() {
			return internal.NewValidationFieldError("amount", "amount must be greater than zero", internal.ErrCodeInvalidAmount)
		}
		if r.Amount.Exponent() < -2 {
			return internal.NewValidationFieldError("amount", "amount cannot have more than two decimal places", internal.ErrCodeInvalidAmount)
		}
	}
	return nil
}

type RefundResponse struct {
	Success          bool            `json:"success"`
	RefundID         string          `json:"refund_id"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}
