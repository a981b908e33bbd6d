package payment

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/common/validation"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/escrow"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
)

var currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

// SubmitPaymentRequest drives one orchestration attempt end to end.
// IdempotencyKey comes from the Idempotency-Key header, not the body.
type SubmitPaymentRequest struct {
	BookingID      string                 `json:"booking_id"`
	MethodID       string                 `json:"payment_method_id"`
	Amount         decimal.Decimal        `json:"amount"`
	Currency       string                 `json:"currency"`
	Country        string                 `json:"country"`
	Details        payment.PaymentDetails `json:"payment_details"`
	BillingAddress payment.BillingAddress `json:"billing_address"`
	IdempotencyKey string                 `json:"-"`
}

// Validate covers request shape only; instrument checks belong to the
// structural validator behind the payment_form guard.
func (r *SubmitPaymentRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("booking_id", r.BookingID).Required()
	validator.Field("payment_method_id", r.MethodID).Required()
	validator.Field("currency", strings.TrimSpace(r.Currency)).
		Required().
		Matches(currencyPattern, "currency must be a 3-letter ISO code", internal.ErrCodeInvalidCurrency)
	validator.Field("country", r.Country).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	if !r.Amount.IsPositive() {
		return internal.NewValidationFieldError("amount", "amount must be greater than zero", internal.ErrCodeInvalidAmount)
	}
	if !payment.IsSADCCountry(r.Country) {
		return internal.NewValidationFieldError("country", "country must be a SADC member code", internal.ErrCodeInvalidCountry)
	}
	return nil
}

// ValidateDetailsRequest is the standalone validation operation: the same
// structural checks the orchestrator runs, exposed so clients can validate
// a form before submitting.
type ValidateDetailsRequest struct {
	MethodID       string                 `json:"payment_method_id"`
	Details        payment.PaymentDetails `json:"payment_details"`
	BillingAddress payment.BillingAddress `json:"billing_address"`
}

func (r *ValidateDetailsRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("payment_method_id", r.MethodID).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type ValidateDetailsResponse struct {
	IsValid bool                       `json:"is_valid"`
	Errors  []internal.ValidationError `json:"errors,omitempty"`
}

type ResumeRequest struct {
	ResumeToken string `json:"resume_token"`
}

func (r *ResumeRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("resume_token", r.ResumeToken).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// ThreeDSInstruction tells the client where to send the payer and how to
// come back. The resume token is the attempt's only cross-challenge state.
type ThreeDSInstruction struct {
	RedirectURL string `json:"redirect_url"`
	ResumeToken string `json:"resume_token"`
}

// TransactionView is the sanitized wire shape of a transaction. Instrument
// data appears only in masked form.
type TransactionView struct {
	ID              string                `json:"id"`
	BookingID       string                `json:"booking_id"`
	PaymentMethodID string                `json:"payment_method_id"`
	Amount          decimal.Decimal       `json:"amount"`
	Currency        string                `json:"currency"`
	ProcessingFee   decimal.Decimal       `json:"processing_fee"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	Status          string                `json:"status"`
	PaymentDetails  payment.MaskedDetails `json:"payment_details"`
	FailureCode     *string               `json:"failure_code,omitempty"`
	FailureReason   *string               `json:"failure_reason,omitempty"`
	RefundAmount    decimal.Decimal       `json:"refund_amount"`
	CreatedAt       time.Time             `json:"created_at"`
	ProcessedAt     *time.Time            `json:"processed_at,omitempty"`
}

func ToView(t *payment.PaymentTransaction) *TransactionView {
	if t == nil {
		return nil
	}
	return &TransactionView{
		ID:              t.ID,
		BookingID:       t.BookingID,
		PaymentMethodID: t.PaymentMethodID,
		Amount:          t.Amount,
		Currency:        t.Currency,
		ProcessingFee:   t.ProcessingFee,
		TotalAmount:     t.TotalAmount,
		Status:          string(t.Status),
		PaymentDetails:  t.PaymentDetails,
		FailureCode:     t.FailureCode,
		FailureReason:   t.FailureReason,
		RefundAmount:    t.RefundAmount,
		CreatedAt:       t.CreatedAt,
		ProcessedAt:     t.ProcessedAt,
	}
}

// SubmitPaymentResponse reports where the attempt landed. Exactly one of
// Escrow or ThreeDS accompanies a confirmation or a suspension; failures
// travel as AppError payloads instead of this shape.
type SubmitPaymentResponse struct {
	FlowState   Stage                 `json:"flow_state"`
	Transaction *TransactionView      `json:"transaction,omitempty"`
	Escrow      *escrow.EscrowAccount `json:"escrow,omitempty"`
	ThreeDS     *ThreeDSInstruction   `json:"three_ds,omitempty"`
	Fees        *payment.FeeBreakdown `json:"fees,omitempty"`
}
