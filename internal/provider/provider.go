package provider

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
)

// ChargeOutcome is what the provider said about a charge. Declines and
// rate limits are structured outcomes, not errors; adapters return a Go
// error only when there is no provider answer at all (timeout, transport
// failure), which the orchestrator treats as retryable.
type ChargeOutcome string

const (
	OutcomeSucceeded      ChargeOutcome = "succeeded"
	OutcomeRequiresAction ChargeOutcome = "requires_action"
	OutcomeDeclined       ChargeOutcome = "declined"
	OutcomeRateLimited    ChargeOutcome = "rate_limited"
)

// Decline codes adapters normalize provider responses into.
const (
	DeclineInsufficientFunds = "insufficient_funds"
	DeclineCardDeclined      = "card_declined"
	DeclineValidationFailed  = "validation_failed"
)

type ChargeRequest struct {
	IdempotencyKey string
	TransactionID  string
	BookingID      string
	Method         payment.PaymentMethod
	Details        payment.PaymentDetails
	Amount         decimal.Decimal
	Currency       string
	ReturnURL      string
}

type ChargeResponse struct {
	Outcome           ChargeOutcome
	ProviderReference string
	NextActionURL     string
	DeclineCode       string
	DeclineReason     string
	RetryAfter        int
}

type RefundRequest struct {
	IdempotencyKey    string
	TransactionID     string
	ProviderReference string
	Amount            decimal.Decimal
	Currency          string
	Reason            string
}

type RefundResponse struct {
	ProviderRefundID string
	Succeeded        bool
	FailureReason    string
}

type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusSucceeded ChargeStatus = "succeeded"
	ChargeStatusFailed    ChargeStatus = "failed"
)

type StatusResponse struct {
	ProviderReference string
	Status            ChargeStatus
}

// Adapter is the capability boundary to one provider family. Adapters own
// idempotency-key deduplication within the configured window: a retried
// Charge bearing a known key must return the original answer without a
// second provider call.
type Adapter interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error)
	Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error)
	QueryStatus(ctx context.Context, providerReference string) (*StatusResponse, error)
}
