package payment

import (
	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/catalog"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/escrow"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
)

// Stage labels the phases a payment attempt moves through. The names are
// part of the wire contract: responses carry flow_state so clients know
// where the attempt stands.
type Stage string

const (
	StageMethodSelection Stage = "method_selection"
	StagePaymentForm     Stage = "payment_form"
	StageProcessing      Stage = "processing"
	StageConfirmation    Stage = "confirmation"
	StageError           Stage = "error"
)

// AttemptContext carries the booking facts that stay constant across one
// orchestration attempt. A retry after error is a new attempt with a new
// context and a fresh idempotency key.
type AttemptContext struct {
	BookingID      string
	Country        string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// State is the tagged union of attempt states. Each stage is its own type
// carrying exactly the data legal in that stage, and transitions exist only
// as Orchestrator methods with typed from-states, so an illegal transition
// does not compile.
type State interface {
	Stage() Stage
}

type MethodSelectionState struct {
	Attempt AttemptContext
}

func (*MethodSelectionState) Stage() Stage { return StageMethodSelection }

type PaymentFormState struct {
	Attempt AttemptContext
	Method  payment.PaymentMethod
}

func (*PaymentFormState) Stage() Stage { return StagePaymentForm }

// ProcessingState covers the provider round trip, including the 3-D-Secure
// suspension: Suspended marks an attempt parked on an external challenge,
// and resumption re-enters this state rather than starting over.
type ProcessingState struct {
	Attempt     AttemptContext
	Method      payment.PaymentMethod
	Transaction *payment.PaymentTransaction
	Suspended   bool
	RedirectURL string
}

func (*ProcessingState) Stage() Stage { return StageProcessing }

type ConfirmationState struct {
	Attempt     AttemptContext
	Transaction *payment.PaymentTransaction
	Escrow      *escrow.EscrowAccount
}

func (*ConfirmationState) Stage() Stage { return StageConfirmation }

type FailedState struct {
	Attempt     AttemptContext
	Transaction *payment.PaymentTransaction
	Failure     *internal.AppError
}

func (*FailedState) Stage() Stage { return StageError }

var (
	_ State = (*MethodSelectionState)(nil)
	_ State = (*PaymentFormState)(nil)
	_ State = (*ProcessingState)(nil)
	_ State = (*ConfirmationState)(nil)
	_ State = (*FailedState)(nil)
)

// Orchestrator owns the transition guards. It is pure: catalog lookups and
// structural validation only, never network or storage. Effects between
// transitions belong to the Service.
type Orchestrator struct {
	catalog   *catalog.Catalog
	validator *Validator
}

func NewOrchestrator(cat *catalog.Catalog, validator *Validator) *Orchestrator {
	return &Orchestrator{catalog: cat, validator: validator}
}

// StartAttempt opens a fresh attempt in method_selection.
func (o *Orchestrator) StartAttempt(attempt AttemptContext) *MethodSelectionState {
	return &MethodSelectionState{Attempt: attempt}
}

// ChooseMethod is the method_selection to payment_form transition. The
// guard is availability: the method must exist, be enabled, and admit the
// attempt's country, amount and currency.
func (o *Orchestrator) ChooseMethod(from *MethodSelectionState, methodID string) (*PaymentFormState, error) {
	method, err := o.catalog.GetAvailable(methodID, from.Attempt.Country, from.Attempt.Amount, from.Attempt.Currency)
	if err != nil {
		return nil, err
	}
	return &PaymentFormState{Attempt: from.Attempt, Method: method}, nil
}

// SubmitForm is the payment_form to processing transition, guarded by the
// structural validator. On invalid input it returns the field errors and no
// next state: the attempt stays in payment_form and nothing downstream of
// this guard ever sees the bad details.
func (o *Orchestrator) SubmitForm(from *PaymentFormState, details payment.PaymentDetails, billing payment.BillingAddress) (*ProcessingState, error) {
	if verr := o.validator.ValidateDetails(from.Method, details, billing); verr != nil {
		return nil, verr
	}
	return &ProcessingState{Attempt: from.Attempt, Method: from.Method}, nil
}

// AttachTransaction records the transaction row backing this processing
// state once the service has persisted it.
func (o *Orchestrator) AttachTransaction(from *ProcessingState, txn *payment.PaymentTransaction) *ProcessingState {
	next := *from
	next.Transaction = txn
	return &next
}

// Suspend parks a processing attempt on an external challenge. The state
// remains processing; only the suspension flag and redirect change.
func (o *Orchestrator) Suspend(from *ProcessingState, redirectURL string) *ProcessingState {
	next := *from
	next.Suspended = true
	next.RedirectURL = redirectURL
	return &next
}

// Resume re-enters processing after an external challenge completes. It is
// only legal from a suspended processing state, not a fresh attempt.
func (o *Orchestrator) Resume(from *ProcessingState) (*ProcessingState, error) {
	if !from.Suspended {
		return nil, internal.NewStateError("attempt is not suspended", internal.ErrCodeInvalidTransition)
	}
	next := *from
	next.Suspended = false
	next.RedirectURL = ""
	return &next, nil
}

// Complete is the processing to confirmation transition, fired on provider
// success with the completed transaction and its opened escrow.
func (o *Orchestrator) Complete(from *ProcessingState, txn *payment.PaymentTransaction, esc *escrow.EscrowAccount) *ConfirmationState {
	return &ConfirmationState{Attempt: from.Attempt, Transaction: txn, Escrow: esc}
}

// Fail is the processing to error transition. The failure carries the
// machine-readable code callers branch on; the transaction may be nil when
// the row was never created.
func (o *Orchestrator) Fail(from *ProcessingState, txn *payment.PaymentTransaction, failure *internal.AppError) *FailedState {
	return &FailedState{Attempt: from.Attempt, Transaction: txn, Failure: failure}
}

// Restart is the error to method_selection transition for a user-driven
// retry. The new attempt must carry a fresh idempotency key: a provider
// that actually charged despite a client-observed timeout must not be
// charged again under a reused key.
func (o *Orchestrator) Restart(from *FailedState, freshIdempotencyKey string) *MethodSelectionState {
	attempt := from.Attempt
	attempt.IdempotencyKey = freshIdempotencyKey
	return &MethodSelectionState{Attempt: attempt}
}
