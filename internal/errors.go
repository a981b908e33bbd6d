package internal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "VALIDATION_ERROR"
	ErrorTypeNotFound     ErrorType = "NOT_FOUND"
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"
	ErrorTypeForbidden    ErrorType = "FORBIDDEN"
	ErrorTypeConflict     ErrorType = "CONFLICT"
	ErrorTypeProvider     ErrorType = "PROVIDER_ERROR"
	ErrorTypeTransient    ErrorType = "TRANSIENT_ERROR"
	ErrorTypeState        ErrorType = "STATE_ERROR"
	ErrorTypeInternal     ErrorType = "INTERNAL_ERROR"
)

// ErrorCode values are the machine-readable codes callers branch on.
// Lowercase snake case is the wire contract shared with consumers.
type ErrorCode string

const (
	ErrCodeValidationFailed     ErrorCode = "validation_failed"
	ErrCodeInvalidAmount        ErrorCode = "invalid_amount"
	ErrCodeInvalidCurrency      ErrorCode = "invalid_currency"
	ErrCodeInvalidCountry       ErrorCode = "invalid_country"
	ErrCodeInvalidCardNumber    ErrorCode = "invalid_card_number"
	ErrCodeCardExpired          ErrorCode = "card_expired"
	ErrCodeInvalidCVV           ErrorCode = "invalid_cvv"
	ErrCodeInvalidPhoneNumber   ErrorCode = "invalid_phone_number"
	ErrCodeCarrierMismatch      ErrorCode = "carrier_mismatch"
	ErrCodeInvalidBankAccount   ErrorCode = "invalid_bank_account"
	ErrCodeInvalidWalletID      ErrorCode = "invalid_wallet_id"
	ErrCodeInvalidBillingField  ErrorCode = "invalid_billing_field"
	ErrCodeUnsupportedMethod    ErrorCode = "unsupported_method"

	ErrCodeInsufficientFunds   ErrorCode = "insufficient_funds"
	ErrCodeCardDeclined        ErrorCode = "card_declined"
	ErrCodeProviderUnavailable ErrorCode = "provider_unavailable"
	ErrCodeRateLimited         ErrorCode = "rate_limited"
	ErrCodeBookingConflict     ErrorCode = "booking_conflict"

	ErrCodeMethodNotAvailable    ErrorCode = "method_not_available"
	ErrCodeMethodDisabled        ErrorCode = "method_disabled"
	ErrCodeVerificationRequired  ErrorCode = "verification_required"
	ErrCodeDuplicateSubmission   ErrorCode = "duplicate_submission"
	ErrCodeIdempotencyConflict   ErrorCode = "idempotency_conflict"
	ErrCodeTransactionNotFound   ErrorCode = "transaction_not_found"
	ErrCodeEscrowNotFound        ErrorCode = "escrow_not_found"
	ErrCodeRefundNotAllowed      ErrorCode = "refund_not_allowed"
	ErrCodeRefundExceedsBalance  ErrorCode = "refund_exceeds_balance"
	ErrCodeRefundNotFound        ErrorCode = "refund_not_found"
	ErrCodeEscrowNotFunded       ErrorCode = "escrow_not_funded"
	ErrCodeEscrowDisputed        ErrorCode = "escrow_disputed"
	ErrCodeDisputeWindowClosed   ErrorCode = "dispute_window_closed"
	ErrCodeInvalidTransition     ErrorCode = "invalid_status_transition"
	ErrCodeResumeTokenInvalid    ErrorCode = "resume_token_invalid"
	ErrCodeWebhookUnauthorized   ErrorCode = "webhook_unauthorized"
	ErrCodeInternal              ErrorCode = "internal_error"
)

type AppError struct {
	Type       ErrorType   `json:"type"`
	Code       ErrorCode   `json:"code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	RetryAfter int         `json:"retry_after,omitempty"`
	StatusCode int         `json:"-"`
	Cause      error       `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok && len(validationErrors.Errors) > 0 {

			return validationErrors.Errors[0].Message
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) GetDetailedMessage() string {
	if e.Details != nil {
		if validationErrors, ok := e.Details.(ValidationErrors); ok {
			if len(validationErrors.Errors) == 1 {
				return validationErrors.Errors[0].Message
			} else if len(validationErrors.Errors) > 1 {
				messages := make([]string, len(validationErrors.Errors))
				for i, err := range validationErrors.Errors {
					messages[i] = err.Message
				}
				return strings.Join(messages, "; ")
			}
		}
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the caller may retry the same request as-is.
// Only transient failures qualify; conflicts need re-selection upstream and
// provider declines need different payment details.
func (e *AppError) IsRetryable() bool {
	return e.Type == ErrorTypeTransient
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

func (e *AppError) WithDetails(details interface{}) *AppError {
	e.Details = details
	return e
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func NewValidationError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

func NewValidationFieldError(field, message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details: ValidationErrors{
			Errors: []ValidationError{
				{Field: field, Message: message, Code: string(code)},
			},
		},
	}
}

// NewValidationFieldErrors wraps a collected set of field errors into one
// field-addressable validation failure.
func NewValidationFieldErrors(errs []ValidationError) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       ErrCodeValidationFailed,
		Message:    "validation failed",
		StatusCode: http.StatusBadRequest,
		Details:    ValidationErrors{Errors: errs},
	}
}

func NewNotFoundError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

func NewUnauthorizedError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeUnauthorized,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

func NewForbiddenError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

func NewConflictError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeConflict,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// NewProviderError marks a terminal provider decline for this attempt:
// the user must retry with different details or another method.
func NewProviderError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeProvider,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusPaymentRequired,
	}
}

// NewTransientError marks a retryable failure (timeout, provider down).
func NewTransientError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTransient,
		Code:       ErrCodeProviderUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Cause:      cause,
	}
}

// NewRateLimitedError carries the retry_after hint callers must honor.
func NewRateLimitedError(message string, retryAfterSeconds int) *AppError {
	return &AppError{
		Type:       ErrorTypeTransient,
		Code:       ErrCodeRateLimited,
		Message:    message,
		RetryAfter: retryAfterSeconds,
		StatusCode: http.StatusTooManyRequests,
	}
}

// NewStateError marks a business-rule violation: always rejected, never
// silently clamped, and never sent to the provider.
func NewStateError(message string, code ErrorCode) *AppError {
	return &AppError{
		Type:       ErrorTypeState,
		Code:       code,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// Availability sentinels: GetAvailable callers branch on identity, so these
// stay shared values rather than per-call constructions.
var (
	ErrMethodNotAvailable = NewValidationError("payment method not available for this country and amount", ErrCodeMethodNotAvailable)
	ErrMethodDisabled     = NewValidationError("payment method is disabled", ErrCodeMethodDisabled)
)

func IsAppError(err error) (*AppError, bool) {
	if appErr, ok := err.(*AppError); ok {
		return appErr, true
	}
	return nil, false
}

type Response struct {
	Error *AppError `json:"error"`
}

func (e *AppError) ToHTTPResponse() (int, interface{}) {
	return e.StatusCode, Response{Error: e}
}

func (e *AppError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type       ErrorType   `json:"type"`
		Code       ErrorCode   `json:"code"`
		Message    string      `json:"message"`
		Details    interface{} `json:"details,omitempty"`
		RetryAfter int         `json:"retry_after,omitempty"`
	}{
		Type:       e.Type,
		Code:       e.Code,
		Message:    e.Message,
		Details:    e.Details,
		RetryAfter: e.RetryAfter,
	})
}
