package payment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/escrow"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
	"github.com/tnyamukapa/rentpay/internal/core/events"
	"github.com/tnyamukapa/rentpay/internal/fees"
	"github.com/tnyamukapa/rentpay/internal/idempotency"
	"github.com/tnyamukapa/rentpay/internal/provider"
)

// Sentinel errors the repository surfaces for constraint hits, so the
// service can map them onto the conflict taxonomy instead of parsing
// driver messages.
var (
	ErrBookingActive       = errors.New("an active transaction already exists for this booking")
	ErrKeyReused           = errors.New("idempotency key already bound to a transaction")
	ErrStaleTransition     = errors.New("transaction status changed concurrently")
	ErrTransactionNotFound = errors.New("transaction not found")
)

// StatusUpdate carries the columns a status transition may set alongside
// the compare-and-set on status itself.
type StatusUpdate struct {
	ProviderReference *string
	NextActionURL     *string
	FailureCode       *string
	FailureReason     *string
	ProcessedAt       *time.Time
}

// Repository is the transaction persistence the orchestration needs. All
// mutations after creation go through TransitionStatus so concurrent
// writers (submit path, webhook, refunds) cannot overwrite each other.
type Repository interface {
	Create(txn *payment.PaymentTransaction) error
	GetByID(id string) (*payment.PaymentTransaction, error)
	GetByIdempotencyKey(key string) (*payment.PaymentTransaction, error)
	GetByProviderReference(ref string) (*payment.PaymentTransaction, error)
	GetByBookingID(bookingID string) ([]*payment.PaymentTransaction, error)
	HasCompletedForBooking(bookingID string) (bool, error)
	// TransitionStatus compare-and-sets status from one value to the next
	// and applies the update in the same statement. ErrStaleTransition
	// reports that the row no longer holds the expected status.
	TransitionStatus(id string, from, to payment.TransactionStatus, update StatusUpdate) error
	// AttachProviderAction records the provider reference and challenge URL
	// on a row that stays in processing through a 3-D-Secure suspension.
	AttachProviderAction(id, providerReference, nextActionURL string) error
}

// EscrowService is the slice of the escrow manager the payment flow
// drives: open on completion, fund on settlement confirmation.
type EscrowService interface {
	Open(ctx context.Context, txn *payment.PaymentTransaction, breakdown payment.FeeBreakdown) (*escrow.EscrowAccount, error)
	Fund(ctx context.Context, escrowID string) (*escrow.EscrowAccount, error)
	GetByTransactionID(ctx context.Context, transactionID string) (*escrow.EscrowAccount, error)
}

// ServiceAPI is the surface the HTTP handlers consume.
type ServiceAPI interface {
	SubmitPayment(ctx context.Context, req *SubmitPaymentRequest) (*SubmitPaymentResponse, error)
	ResumeThreeDS(ctx context.Context, req *ResumeRequest) (*SubmitPaymentResponse, error)
	ValidateDetails(req *ValidateDetailsRequest) (*ValidateDetailsResponse, error)
	GetTransaction(id string) (*TransactionView, error)
	SettleFromProvider(ctx context.Context, reference, providerReference string, succeeded bool, failureCode, failureReason string) error
}

type Service struct {
	repo         Repository
	orchestrator *Orchestrator
	feeCalc      *fees.Calculator
	registry     *provider.Registry
	idempotency  idempotency.Store
	locks        idempotency.LockStore
	escrows      EscrowService
	resumeTokens *ResumeTokenIssuer
	eventBus     *events.EventBus
	cfg          internal.PaymentConfig
	logger       *slog.Logger
}

func NewService(
	repo Repository,
	orchestrator *Orchestrator,
	feeCalc *fees.Calculator,
	registry *provider.Registry,
	idemStore idempotency.Store,
	locks idempotency.LockStore,
	escrows EscrowService,
	resumeTokens *ResumeTokenIssuer,
	eventBus *events.EventBus,
	cfg internal.PaymentConfig,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		orchestrator: orchestrator,
		feeCalc:      feeCalc,
		registry:     registry,
		idempotency:  idemStore,
		locks:        locks,
		escrows:      escrows,
		resumeTokens: resumeTokens,
		eventBus:     eventBus,
		cfg:          cfg,
		logger:       logger,
	}
}

// NewTransactionID mints a prefixed, lexically sortable transaction id.
func NewTransactionID() string {
	return "txn_" + ulid.Make().String()
}

// NewIdempotencyKey backs submissions arriving without an Idempotency-Key
// header. The key still travels back to the caller in the response headers
// so a timed-out client can replay.
func NewIdempotencyKey() string {
	return "idk_" + ulid.Make().String()
}

func (s *Service) dedupeWindow() time.Duration {
	if s.cfg.DedupeWindow > 0 {
		return s.cfg.DedupeWindow
	}
	return 24 * time.Hour
}

func (s *Service) lockTTL() time.Duration {
	timeout := s.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	// cover the provider round trip plus the bookkeeping around it
	return 2 * timeout
}

// SubmitPayment drives one orchestration attempt end to end: claim the
// idempotency key, walk the state machine, charge the provider, settle the
// transaction and escrow, and record the outcome for replay.
func (s *Service) SubmitPayment(ctx context.Context, req *SubmitPaymentRequest) (*SubmitPaymentResponse, error) {
	if err := req.Validate(); err != nil {
		s.logger.Error("submit payment validation failed", "error", err, "booking_id", req.BookingID)
		return nil, err
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = NewIdempotencyKey()
	}

	fingerprint := idempotency.Fingerprint([]byte(strings.Join([]string{
		req.BookingID,
		req.MethodID,
		req.Amount.String(),
		strings.ToUpper(req.Currency),
	}, "|")))

	rec, created, err := s.idempotency.Begin(ctx, req.IdempotencyKey, fingerprint, s.dedupeWindow())
	if err != nil {
		s.logger.Error("idempotency claim failed", "error", err, "booking_id", req.BookingID)
		return nil, internal.NewTransientError("payment processing is temporarily unavailable", err)
	}
	if !created {
		if rec.RequestFingerprint != fingerprint {
			return nil, internal.NewConflictError("idempotency key was already used with a different request", internal.ErrCodeIdempotencyConflict)
		}
		return s.replay(ctx, req.IdempotencyKey)
	}

	return s.processAttempt(ctx, req)
}

// replay answers a repeated submission bearing a known key. The database
// row is the source of truth; the store record only guards the race.
func (s *Service) replay(ctx context.Context, key string) (*SubmitPaymentResponse, error) {
	txn, err := s.repo.GetByIdempotencyKey(key)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			// claimed but no row yet: the original submission is mid-flight
			return nil, internal.NewConflictError("a submission with this idempotency key is in progress", internal.ErrCodeDuplicateSubmission)
		}
		s.logger.Error("replay lookup failed", "error", err, "idempotency_key", key)
		return nil, internal.NewInternalError("failed to load prior submission", err)
	}

	s.logger.Info("replaying submission",
		"idempotency_key", key,
		"transaction_id", txn.ID,
		"status", txn.Status)

	switch txn.Status {
	case payment.StatusCompleted:
		return s.confirmationResponse(ctx, txn, nil)
	case payment.StatusFailed:
		return nil, s.failureFromRecord(txn)
	case payment.StatusProcessing:
		if txn.NextActionURL != nil && *txn.NextActionURL != "" {
			return s.suspendedResponse(txn, *txn.NextActionURL)
		}
		return nil, internal.NewConflictError("a submission with this idempotency key is in progress", internal.ErrCodeDuplicateSubmission)
	default:
		return nil, internal.NewConflictError("a submission with this idempotency key is in progress", internal.ErrCodeDuplicateSubmission)
	}
}

func (s *Service) processAttempt(ctx context.Context, req *SubmitPaymentRequest) (*SubmitPaymentResponse, error) {
	attempt := AttemptContext{
		BookingID:      req.BookingID,
		Country:        strings.ToUpper(req.Country),
		Amount:         req.Amount,
		Currency:       strings.ToUpper(req.Currency),
		IdempotencyKey: req.IdempotencyKey,
	}

	selection := s.orchestrator.StartAttempt(attempt)

	form, err := s.orchestrator.ChooseMethod(selection, req.MethodID)
	if err != nil {
		s.abandon(ctx, attempt.IdempotencyKey)
		return nil, err
	}

	if form.Method.RequiresVerification && internal.VerificationFromContext(ctx) != internal.VerificationVerified {
		s.abandon(ctx, attempt.IdempotencyKey)
		return nil, internal.NewForbiddenError("identity verification is required before paying with this method", internal.ErrCodeVerificationRequired)
	}

	processing, err := s.orchestrator.SubmitForm(form, req.Details, req.BillingAddress)
	if err != nil {
		// invalid input: the attempt stays in payment_form, nothing was charged
		s.abandon(ctx, attempt.IdempotencyKey)
		return nil, err
	}

	locked, err := s.locks.AcquireBookingLock(ctx, attempt.BookingID, s.lockTTL())
	if err != nil {
		s.abandon(ctx, attempt.IdempotencyKey)
		s.logger.Error("booking lock unavailable", "error", err, "booking_id", attempt.BookingID)
		return nil, internal.NewTransientError("payment processing is temporarily unavailable", err)
	}
	if !locked {
		s.abandon(ctx, attempt.IdempotencyKey)
		return nil, internal.NewConflictError("another payment for this booking is in progress", internal.ErrCodeDuplicateSubmission)
	}
	defer func() {
		if err := s.locks.ReleaseBookingLock(ctx, attempt.BookingID); err != nil {
			s.logger.Error("failed to release booking lock", "error", err, "booking_id", attempt.BookingID)
		}
	}()

	paid, err := s.repo.HasCompletedForBooking(attempt.BookingID)
	if err != nil {
		s.abandon(ctx, attempt.IdempotencyKey)
		return nil, internal.NewInternalError("failed to check booking payment state", err)
	}
	if paid {
		s.abandon(ctx, attempt.IdempotencyKey)
		return nil, internal.NewConflictError("booking is already paid", internal.ErrCodeBookingConflict)
	}

	breakdown, err := s.feeCalc.ComputeFees(attempt.Amount, attempt.Currency, processing.Method, attempt.Country)
	if err != nil {
		s.abandon(ctx, attempt.IdempotencyKey)
		return nil, err
	}

	txn := &payment.PaymentTransaction{
		ID:              NewTransactionID(),
		BookingID:       attempt.BookingID,
		PaymentMethodID: processing.Method.ID,
		Amount:          attempt.Amount,
		Currency:        attempt.Currency,
		ProcessingFee:   breakdown.PaymentProcessingFee.TotalAmount,
		TotalAmount:     attempt.Amount.Add(breakdown.PaymentProcessingFee.TotalAmount),
		Status:          payment.StatusPending,
		PaymentDetails:  req.Details.Mask(),
		BillingAddress:  req.BillingAddress,
		IdempotencyKey:  attempt.IdempotencyKey,
		RefundAmount:    decimal.Zero,
	}
	if err := s.repo.Create(txn); err != nil {
		s.abandon(ctx, attempt.IdempotencyKey)
		if errors.Is(err, ErrBookingActive) {
			return nil, internal.NewConflictError("another payment for this booking is in progress", internal.ErrCodeDuplicateSubmission)
		}
		if errors.Is(err, ErrKeyReused) {
			// the claim expired but the original row survived it
			return s.replay(ctx, attempt.IdempotencyKey)
		}
		s.logger.Error("failed to create transaction", "error", err, "booking_id", attempt.BookingID)
		return nil, internal.NewInternalError("failed to create transaction", err)
	}

	processing = s.orchestrator.AttachTransaction(processing, txn)

	if err := s.repo.TransitionStatus(txn.ID, payment.StatusPending, payment.StatusProcessing, StatusUpdate{}); err != nil {
		s.abandon(ctx, attempt.IdempotencyKey)
		s.logger.Error("failed to move transaction to processing", "error", err, "transaction_id", txn.ID)
		return nil, internal.NewInternalError("failed to start processing", err)
	}
	txn.Status = payment.StatusProcessing

	s.logger.Info("charging provider",
		"request_id", internal.RequestIDFromContext(ctx),
		"transaction_id", txn.ID,
		"booking_id", attempt.BookingID,
		"method_id", processing.Method.ID,
		"provider", processing.Method.Provider,
		"total_amount", txn.TotalAmount.String(),
		"currency", attempt.Currency)

	adapter, err := s.registry.ForMethod(processing.Method)
	if err != nil {
		return s.finalizeFailure(ctx, processing, internal.NewTransientError("payment provider unavailable", err),
			string(internal.ErrCodeProviderUnavailable), "no adapter for method family")
	}

	chargeResp, err := adapter.Charge(ctx, provider.ChargeRequest{
		IdempotencyKey: attempt.IdempotencyKey,
		TransactionID:  txn.ID,
		BookingID:      attempt.BookingID,
		Method:         processing.Method,
		Details:        req.Details,
		Amount:         txn.TotalAmount,
		Currency:       attempt.Currency,
		ReturnURL:      s.cfg.ThreeDSReturnURL,
	})
	if err != nil {
		appErr, ok := internal.IsAppError(err)
		if !ok {
			appErr = internal.NewTransientError("payment provider did not respond", err)
		}
		return s.finalizeFailure(ctx, processing, appErr, string(internal.ErrCodeProviderUnavailable), appErr.Message)
	}

	switch chargeResp.Outcome {
	case provider.OutcomeSucceeded:
		return s.finalizeSuccess(ctx, processing, breakdown, chargeResp.ProviderReference)

	case provider.OutcomeRequiresAction:
		return s.suspendForChallenge(ctx, processing, chargeResp)

	case provider.OutcomeRateLimited:
		appErr := internal.NewRateLimitedError("payment provider is rate limiting requests", chargeResp.RetryAfter)
		return s.finalizeFailure(ctx, processing, appErr, string(internal.ErrCodeRateLimited), "provider rate limited the request")

	default:
		appErr := declineToError(chargeResp.DeclineCode, chargeResp.DeclineReason)
		return s.finalizeFailure(ctx, processing, appErr, string(appErr.Code), chargeResp.DeclineReason)
	}
}

// finalizeSuccess settles a charged attempt: completes the row, opens and
// funds the escrow, records the idempotency outcome, and emits the event.
func (s *Service) finalizeSuccess(ctx context.Context, state *ProcessingState, breakdown payment.FeeBreakdown, providerRef string) (*SubmitPaymentResponse, error) {
	txn := state.Transaction
	processedAt := time.Now().UTC()

	err := s.repo.TransitionStatus(txn.ID, payment.StatusProcessing, payment.StatusCompleted, StatusUpdate{
		ProviderReference: &providerRef,
		ProcessedAt:       &processedAt,
	})
	if err != nil {
		if errors.Is(err, ErrStaleTransition) {
			// the webhook settled this attempt while we waited; read the result
			current, getErr := s.repo.GetByID(txn.ID)
			if getErr == nil && current.Status == payment.StatusCompleted {
				return s.confirmationResponse(ctx, current, &breakdown)
			}
		}
		s.logger.Error("charge succeeded but completion write failed",
			"error", err, "transaction_id", txn.ID, "provider_reference", providerRef)
		return nil, internal.NewTransientError("payment is being finalized, retry with the same idempotency key", err)
	}
	txn.Status = payment.StatusCompleted
	txn.TransactionID = &providerRef
	txn.ProcessedAt = &processedAt

	esc := s.openAndFundEscrow(ctx, txn, breakdown)

	if err := s.idempotency.Complete(ctx, txn.IdempotencyKey, txn.ID, idempotency.StatusCompleted); err != nil {
		s.logger.Error("failed to record idempotency outcome", "error", err, "transaction_id", txn.ID)
	}

	s.eventBus.Publish(ctx, events.NewPaymentCompletedEvent(
		txn.ID, txn.BookingID, txn.PaymentMethodID, txn.TotalAmount, txn.Currency, providerRef))

	confirmation := s.orchestrator.Complete(state, txn, esc)

	s.logger.Info("payment confirmed",
		"transaction_id", txn.ID,
		"booking_id", txn.BookingID,
		"provider_reference", providerRef,
		"escrow_id", escrowID(esc))

	return &SubmitPaymentResponse{
		FlowState:   confirmation.Stage(),
		Transaction: ToView(txn),
		Escrow:      esc,
		Fees:        &breakdown,
	}, nil
}

// finalizeFailure lands an attempt in the error state with its taxonomy
// code. The failed row is always written: a declined charge is an auditable
// outcome, not an absence of one.
func (s *Service) finalizeFailure(ctx context.Context, state *ProcessingState, appErr *internal.AppError, failureCode, failureReason string) (*SubmitPaymentResponse, error) {
	txn := state.Transaction
	processedAt := time.Now().UTC()

	err := s.repo.TransitionStatus(txn.ID, payment.StatusProcessing, payment.StatusFailed, StatusUpdate{
		FailureCode:   &failureCode,
		FailureReason: &failureReason,
		ProcessedAt:   &processedAt,
	})
	if err != nil {
		s.logger.Error("failed to record failed transaction", "error", err, "transaction_id", txn.ID)
	} else {
		txn.Status = payment.StatusFailed
		txn.FailureCode = &failureCode
		txn.FailureReason = &failureReason
	}

	if err := s.idempotency.Complete(ctx, txn.IdempotencyKey, txn.ID, idempotency.StatusFailed); err != nil {
		s.logger.Error("failed to record idempotency outcome", "error", err, "transaction_id", txn.ID)
	}

	s.eventBus.Publish(ctx, events.NewPaymentFailedEvent(
		txn.ID, txn.BookingID, txn.TotalAmount, failureCode, failureReason))

	failed := s.orchestrator.Fail(state, txn, appErr)

	s.logger.Warn("payment attempt failed",
		"transaction_id", txn.ID,
		"booking_id", txn.BookingID,
		"failure_code", failureCode,
		"failure_reason", failureReason,
		"flow_state", failed.Stage())

	return nil, appErr.WithDetails(map[string]interface{}{
		"transaction_id": txn.ID,
		"flow_state":     string(StageError),
	})
}

// suspendForChallenge parks the attempt on an external 3-D-Secure (or
// instruction) round trip. The idempotency record deliberately stays
// in-flight: a replay returns the same redirect until the challenge lands.
func (s *Service) suspendForChallenge(ctx context.Context, state *ProcessingState, chargeResp *provider.ChargeResponse) (*SubmitPaymentResponse, error) {
	txn := state.Transaction

	if err := s.repo.AttachProviderAction(txn.ID, chargeResp.ProviderReference, chargeResp.NextActionURL); err != nil {
		s.logger.Error("failed to record challenge state", "error", err, "transaction_id", txn.ID)
		return nil, internal.NewTransientError("payment is being finalized, retry with the same idempotency key", err)
	}
	txn.TransactionID = &chargeResp.ProviderReference
	txn.NextActionURL = &chargeResp.NextActionURL

	suspended := s.orchestrator.Suspend(state, chargeResp.NextActionURL)

	s.logger.Info("payment suspended for external challenge",
		"transaction_id", txn.ID,
		"booking_id", txn.BookingID,
		"provider_reference", chargeResp.ProviderReference)

	return s.suspendedResponseFromState(suspended)
}

func (s *Service) suspendedResponse(txn *payment.PaymentTransaction, redirectURL string) (*SubmitPaymentResponse, error) {
	token, err := s.resumeTokens.Issue(txn.ID, txn.IdempotencyKey)
	if err != nil {
		return nil, internal.NewInternalError("failed to issue resume token", err)
	}
	return &SubmitPaymentResponse{
		FlowState:   StageProcessing,
		Transaction: ToView(txn),
		ThreeDS: &ThreeDSInstruction{
			RedirectURL: redirectURL,
			ResumeToken: token,
		},
	}, nil
}

func (s *Service) suspendedResponseFromState(state *ProcessingState) (*SubmitPaymentResponse, error) {
	return s.suspendedResponse(state.Transaction, state.RedirectURL)
}

// ResumeThreeDS re-enters processing after the external challenge. The
// token authenticates the attempt; the provider is always re-queried for
// the outcome, never the client.
func (s *Service) ResumeThreeDS(ctx context.Context, req *ResumeRequest) (*SubmitPaymentResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	claims, err := s.resumeTokens.Parse(req.ResumeToken)
	if err != nil {
		return nil, err
	}

	txn, err := s.repo.GetByID(claims.TransactionID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, internal.NewNotFoundError("transaction not found", internal.ErrCodeTransactionNotFound)
		}
		return nil, internal.NewInternalError("failed to load transaction", err)
	}

	switch txn.Status {
	case payment.StatusCompleted:
		// the webhook beat the client back; resumption is idempotent
		return s.confirmationResponse(ctx, txn, nil)
	case payment.StatusFailed:
		return nil, s.failureFromRecord(txn)
	case payment.StatusProcessing:
		// fall through to the provider query below
	default:
		return nil, internal.NewStateError("transaction is not awaiting a challenge", internal.ErrCodeInvalidTransition)
	}

	method, err := s.orchestrator.catalog.GetByID(txn.PaymentMethodID)
	if err != nil {
		return nil, internal.NewInternalError("transaction references an unknown method", err)
	}

	state := &ProcessingState{
		Attempt: AttemptContext{
			BookingID:      txn.BookingID,
			Country:        txn.BillingAddress.Country,
			Amount:         txn.Amount,
			Currency:       txn.Currency,
			IdempotencyKey: txn.IdempotencyKey,
		},
		Method:      method,
		Transaction: txn,
		Suspended:   true,
	}
	resumed, err := s.orchestrator.Resume(state)
	if err != nil {
		return nil, err
	}

	if txn.TransactionID == nil || *txn.TransactionID == "" {
		// no provider reference to query yet; stay suspended
		if txn.NextActionURL != nil {
			return s.suspendedResponse(txn, *txn.NextActionURL)
		}
		return nil, internal.NewStateError("transaction is not awaiting a challenge", internal.ErrCodeInvalidTransition)
	}

	adapter, err := s.registry.ForMethod(method)
	if err != nil {
		return nil, internal.NewTransientError("payment provider unavailable", err)
	}

	status, err := adapter.QueryStatus(ctx, *txn.TransactionID)
	if err != nil {
		s.logger.Error("challenge outcome query failed", "error", err, "transaction_id", txn.ID)
		return nil, internal.NewTransientError("challenge outcome is not available yet", err)
	}

	switch status.Status {
	case provider.ChargeStatusSucceeded:
		breakdown, ferr := s.feeCalc.ComputeFees(txn.Amount, txn.Currency, method, txn.BillingAddress.Country)
		if ferr != nil {
			return nil, ferr
		}
		return s.finalizeSuccess(ctx, resumed, breakdown, *txn.TransactionID)
	case provider.ChargeStatusFailed:
		appErr := internal.NewProviderError("payment authentication failed", internal.ErrCodeCardDeclined)
		return s.finalizeFailure(ctx, resumed, appErr, string(internal.ErrCodeCardDeclined), "authentication challenge failed")
	default:
		// still pending at the provider; keep the suspension
		if txn.NextActionURL != nil {
			return s.suspendedResponse(txn, *txn.NextActionURL)
		}
		return s.suspendedResponse(txn, "")
	}
}

// SettleFromProvider applies an asynchronous settlement callback. The
// reference may be our transaction id or the provider's own; terminal rows
// make the callback an idempotent no-op.
func (s *Service) SettleFromProvider(ctx context.Context, reference, providerReference string, succeeded bool, failureCode, failureReason string) error {
	txn, err := s.repo.GetByID(reference)
	if err != nil {
		if !errors.Is(err, ErrTransactionNotFound) {
			return internal.NewInternalError("failed to load transaction", err)
		}
		txn, err = s.repo.GetByProviderReference(providerReference)
		if err != nil {
			if errors.Is(err, ErrTransactionNotFound) {
				return internal.NewNotFoundError("transaction not found for callback", internal.ErrCodeTransactionNotFound)
			}
			return internal.NewInternalError("failed to load transaction", err)
		}
	}

	if txn.Status.IsTerminal() {
		s.logger.Info("settlement callback for terminal transaction ignored",
			"transaction_id", txn.ID, "status", txn.Status)
		return nil
	}
	if txn.Status != payment.StatusProcessing {
		return internal.NewStateError("transaction is not processing", internal.ErrCodeInvalidTransition)
	}

	method, err := s.orchestrator.catalog.GetByID(txn.PaymentMethodID)
	if err != nil {
		return internal.NewInternalError("transaction references an unknown method", err)
	}

	state := &ProcessingState{
		Attempt: AttemptContext{
			BookingID:      txn.BookingID,
			Country:        txn.BillingAddress.Country,
			Amount:         txn.Amount,
			Currency:       txn.Currency,
			IdempotencyKey: txn.IdempotencyKey,
		},
		Method:      method,
		Transaction: txn,
	}

	if succeeded {
		ref := providerReference
		if ref == "" && txn.TransactionID != nil {
			ref = *txn.TransactionID
		}
		breakdown, ferr := s.feeCalc.ComputeFees(txn.Amount, txn.Currency, method, txn.BillingAddress.Country)
		if ferr != nil {
			return ferr
		}
		_, err = s.finalizeSuccess(ctx, state, breakdown, ref)
		return err
	}

	if failureCode == "" {
		failureCode = string(internal.ErrCodeCardDeclined)
	}
	appErr := declineToError(failureCode, failureReason)
	// finalizeFailure returns the taxonomy error for the paying client; for
	// the callback, recording the failure is the success case
	_, _ = s.finalizeFailure(ctx, state, appErr, failureCode, failureReason)
	return nil
}

// GetTransaction returns the masked view of one transaction.
func (s *Service) GetTransaction(id string) (*TransactionView, error) {
	txn, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, internal.NewNotFoundError("transaction not found", internal.ErrCodeTransactionNotFound)
		}
		return nil, internal.NewInternalError("failed to load transaction", err)
	}
	return ToView(txn), nil
}

// ValidateDetails runs the structural validator standalone so clients can
// check a form before submitting. It never contacts a provider.
func (s *Service) ValidateDetails(req *ValidateDetailsRequest) (*ValidateDetailsResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	method, err := s.orchestrator.catalog.GetByID(req.MethodID)
	if err != nil {
		return nil, err
	}

	verr := s.orchestrator.validator.ValidateDetails(method, req.Details, req.BillingAddress)
	if verr == nil {
		return &ValidateDetailsResponse{IsValid: true}, nil
	}

	resp := &ValidateDetailsResponse{IsValid: false}
	if details, ok := verr.Details.(internal.ValidationErrors); ok {
		resp.Errors = details.Errors
	}
	return resp, nil
}

// confirmationResponse rebuilds the success response for a completed row,
// healing a missing escrow if the original open was interrupted.
func (s *Service) confirmationResponse(ctx context.Context, txn *payment.PaymentTransaction, breakdown *payment.FeeBreakdown) (*SubmitPaymentResponse, error) {
	esc, err := s.escrows.GetByTransactionID(ctx, txn.ID)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); !ok || appErr.Code != internal.ErrCodeEscrowNotFound {
			s.logger.Error("escrow lookup failed", "error", err, "transaction_id", txn.ID)
		}
		bd := breakdown
		if bd == nil {
			if method, merr := s.orchestrator.catalog.GetByID(txn.PaymentMethodID); merr == nil {
				if computed, ferr := s.feeCalc.ComputeFees(txn.Amount, txn.Currency, method, txn.BillingAddress.Country); ferr == nil {
					bd = &computed
				}
			}
		}
		if bd != nil {
			esc = s.openAndFundEscrow(ctx, txn, *bd)
		}
	}

	return &SubmitPaymentResponse{
		FlowState:   StageConfirmation,
		Transaction: ToView(txn),
		Escrow:      esc,
		Fees:        breakdown,
	}, nil
}

// openAndFundEscrow opens the account and immediately funds it: reaching
// here means the provider confirmed settlement. Failures leave the escrow
// recoverable (created, or absent and re-opened on replay) and never undo
// the completed charge.
func (s *Service) openAndFundEscrow(ctx context.Context, txn *payment.PaymentTransaction, breakdown payment.FeeBreakdown) *escrow.EscrowAccount {
	esc, err := s.escrows.Open(ctx, txn, breakdown)
	if err != nil {
		s.logger.Error("failed to open escrow for completed payment",
			"error", err, "transaction_id", txn.ID)
		return nil
	}

	funded, err := s.escrows.Fund(ctx, esc.ID)
	if err != nil {
		s.logger.Error("failed to fund escrow, releasing on settlement retry",
			"error", err, "escrow_id", esc.ID, "transaction_id", txn.ID)
		return esc
	}
	return funded
}

func (s *Service) abandon(ctx context.Context, key string) {
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.Error("failed to release idempotency claim", "error", err, "idempotency_key", key)
	}
}

// failureFromRecord rebuilds the taxonomy error a failed row originally
// carried so replays answer identically.
func (s *Service) failureFromRecord(txn *payment.PaymentTransaction) *internal.AppError {
	code := ""
	if txn.FailureCode != nil {
		code = *txn.FailureCode
	}
	reason := "payment failed"
	if txn.FailureReason != nil && *txn.FailureReason != "" {
		reason = *txn.FailureReason
	}

	var appErr *internal.AppError
	switch internal.ErrorCode(code) {
	case internal.ErrCodeRateLimited:
		appErr = internal.NewRateLimitedError(reason, 0)
	case internal.ErrCodeProviderUnavailable:
		appErr = internal.NewTransientError(reason, nil)
	case "":
		appErr = internal.NewProviderError(reason, internal.ErrCodeCardDeclined)
	default:
		appErr = internal.NewProviderError(reason, internal.ErrorCode(code))
	}

	return appErr.WithDetails(map[string]interface{}{
		"transaction_id": txn.ID,
		"flow_state":     string(StageError),
	})
}

// declineToError maps normalized provider decline codes onto the failure
// taxonomy callers branch on.
func declineToError(declineCode, declineReason string) *internal.AppError {
	message := declineReason
	switch declineCode {
	case provider.DeclineInsufficientFunds:
		if message == "" {
			message = "insufficient funds on the selected payment method"
		}
		return internal.NewProviderError(message, internal.ErrCodeInsufficientFunds)
	case provider.DeclineValidationFailed:
		if message == "" {
			message = "the provider rejected the payment details"
		}
		return internal.NewProviderError(message, internal.ErrCodeValidationFailed)
	default:
		if message == "" {
			message = "the payment was declined"
		}
		return internal.NewProviderError(message, internal.ErrCodeCardDeclined)
	}
}

func escrowID(esc *escrow.EscrowAccount) string {
	if esc == nil {
		return ""
	}
	return esc.ID
}

var _ ServiceAPI = (*Service)(nil)
