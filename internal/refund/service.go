package refund

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/escrow"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/refund"
	"github.com/tnyamukapa/rentpay/internal/core/events"
	"github.com/tnyamukapa/rentpay/internal/provider"
)

var (
	ErrRefundNotFound = errors.New("refund not found")
	// ErrReservationDenied is the repository's answer when the guarded
	// increment finds the balance already consumed or the transaction no
	// longer refundable.
	ErrReservationDenied = errors.New("refund reservation denied")
)

// Repository persists refund rows and owns the guarded ledger writes on
// the owning transaction. Reserve and Release are the two halves of the
// reserve-then-execute protocol: the balance is claimed before the
// provider is asked to move money, and handed back if the provider
// refuses.
type Repository interface {
	Create(ref *refund.Refund) error
	GetByID(id string) (*refund.Refund, error)
	ListByTransactionID(transactionID string) ([]*refund.Refund, error)
	Reserve(transactionID string, amount decimal.Decimal) error
	Release(transactionID string, amount decimal.Decimal) error
	MarkCompleted(refundID, providerRefundID string, processedAt time.Time) error
	MarkFailed(refundID, failureReason string) error
}

// TransactionStore is the slice of the payment repository the processor
// reads from.
type TransactionStore interface {
	GetByID(id string) (*payment.PaymentTransaction, error)
}

// MethodSource resolves a stored method id back to its provider family.
type MethodSource interface {
	GetByID(id string) (payment.PaymentMethod, error)
}

// EscrowMarker flips the escrow account once a refund consumes the full
// balance.
type EscrowMarker interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*escrow.EscrowAccount, error)
	MarkRefunded(ctx context.Context, escrowID string) (*escrow.EscrowAccount, error)
}

// ServiceAPI is the surface the HTTP handlers consume.
type ServiceAPI interface {
	Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error)
	GetRefund(id string) (*refund.Refund, error)
	ListForTransaction(transactionID string) ([]*refund.Refund, error)
}

type Service struct {
	repo         Repository
	transactions TransactionStore
	methods      MethodSource
	registry     *provider.Registry
	escrows      EscrowMarker
	eventBus     *events.EventBus
	logger       *slog.Logger
}

func NewService(
	repo Repository,
	transactions TransactionStore,
	methods MethodSource,
	registry *provider.Registry,
	escrows EscrowMarker,
	eventBus *events.EventBus,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:         repo,
		transactions: transactions,
		methods:      methods,
		registry:     registry,
		escrows:      escrows,
		eventBus:     eventBus,
		logger:       logger,
	}
}

// NewRefundID mints a prefixed refund id. It doubles as the idempotency
// key for the provider call, so a retried provider request cannot refund
// twice.
func NewRefundID() string {
	return "ref_" + uuid.New().String()
}

// Refund executes a full or partial refund. The remaining balance is
// reserved on the transaction before the provider is called and handed
// back if the provider refuses, so the ledger either records the refund
// completely or not at all, and concurrent refunds can never push the
// cumulative total past total_amount.
func (s *Service) Refund(ctx context.Context, req *RefundRequest) (*RefundResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	txn, err := s.transactions.GetByID(req.PaymentID)
	if err != nil {
		return nil, internal.NewNotFoundError("transaction not found", internal.ErrCodeTransactionNotFound)
	}

	if txn.Status != payment.StatusCompleted {
		return nil, internal.NewStateError("only completed transactions can be refunded", internal.ErrCodeRefundNotAllowed)
	}

	remaining := txn.RemainingBalance()
	if !remaining.IsPositive() {
		return nil, internal.NewStateError("transaction is already fully refunded", internal.ErrCodeRefundNotAllowed)
	}

	amount := remaining
	if req.Amount != nil {
		amount = *req.Amount
		if amount.GreaterThan(remaining) {
			return nil, internal.NewStateError("refund amount exceeds the remaining balance", internal.ErrCodeRefundExceedsBalance).
				WithDetails(map[string]interface{}{
					"remaining_balance": remaining.StringFixed(2),
				})
		}
	}

	method, err := s.methods.GetByID(txn.PaymentMethodID)
	if err != nil {
		s.logger.Error("refund requested for unconfigured payment method",
			"transaction_id", txn.ID,
			"payment_method_id", txn.PaymentMethodID)
		return nil, internal.NewStateError("payment method is no longer configured", internal.ErrCodeRefundNotAllowed)
	}

	adapter, err := s.registry.ForMethod(method)
	if err != nil {
		return nil, internal.NewInternalError("no provider adapter for payment method", err)
	}

	row := &refund.Refund{
		ID:            NewRefundID(),
		TransactionID: txn.ID,
		Amount:        amount,
		Reason:        req.Reason,
		Status:        refund.StatusPending,
	}
	if err := s.repo.Create(row); err != nil {
		return nil, internal.NewInternalError("failed to record refund", err)
	}

	if err := s.repo.Reserve(txn.ID, amount); err != nil {
		if markErr := s.repo.MarkFailed(row.ID, "remaining balance consumed by a concurrent refund"); markErr != nil {
			s.logger.Error("failed to mark refund failed", "refund_id", row.ID, "error", markErr)
		}
		if errors.Is(err, ErrReservationDenied) {
			return nil, internal.NewStateError("refund amount exceeds the remaining balance", internal.ErrCodeRefundExceedsBalance)
		}
		return nil, internal.NewInternalError("failed to reserve refund amount", err)
	}

	providerRef := ""
	if txn.TransactionID != nil {
		providerRef = *txn.TransactionID
	}

	resp, err := adapter.Refund(ctx, provider.RefundRequest{
		IdempotencyKey:    row.ID,
		TransactionID:     txn.ID,
		ProviderReference: providerRef,
		Amount:            amount,
		Currency:          txn.Currency,
		Reason:            req.Reason,
	})
	if err != nil {
		s.rollbackReservation(txn.ID, row.ID, amount, err.Error())
		return nil, internal.NewTransientError("refund could not be submitted to the provider", err)
	}
	if !resp.Succeeded {
		s.rollbackReservation(txn.ID, row.ID, amount, resp.FailureReason)
		return nil, internal.NewStateError("provider rejected the refund: "+resp.FailureReason, internal.ErrCodeRefundNotAllowed)
	}

	processedAt := time.Now().UTC()
	if err := s.repo.MarkCompleted(row.ID, resp.ProviderRefundID, processedAt); err != nil {
		// The reservation already counts; the row status is repairable.
		s.logger.Error("failed to mark refund completed",
			"refund_id", row.ID,
			"provider_refund_id", resp.ProviderRefundID,
			"error", err)
	}

	newRemaining := remaining.Sub(amount)
	fullRefund := newRemaining.IsZero()

	if fullRefund {
		s.flipEscrow(ctx, txn.ID)
	}

	s.logger.Info("refund completed",
		"refund_id", row.ID,
		"transaction_id", txn.ID,
		"amount", amount.String(),
		"remaining_balance", newRemaining.String(),
		"full_refund", fullRefund)

	s.eventBus.Publish(ctx, events.NewRefundCompletedEvent(row.ID, txn.ID, amount, fullRefund))

	return &RefundResponse{
		Success:          true,
		RefundID:         row.ID,
		Amount:           amount,
		Status:           string(refund.StatusCompleted),
		RemainingBalance: newRemaining,
	}, nil
}

func (s *Service) GetRefund(id string) (*refund.Refund, error) {
	row, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, ErrRefundNotFound) {
			return nil, internal.NewNotFoundError("refund not found", internal.ErrCodeRefundNotFound)
		}
		return nil, internal.NewInternalError("failed to load refund", err)
	}
	return row, nil
}

func (s *Service) ListForTransaction(transactionID string) ([]*refund.Refund, error) {
	rows, err := s.repo.ListByTransactionID(transactionID)
	if err != nil {
		return nil, internal.NewInternalError("failed to list refunds", err)
	}
	return rows, nil
}

// rollbackReservation hands the reserved amount back after a provider
// refusal. A failed rollback leaves the ledger over-reserved; that is
// logged loudly for reconciliation rather than silently retried.
func (s *Service) rollbackReservation(transactionID, refundID string, amount decimal.Decimal, reason string) {
	if err := s.repo.Release(transactionID, amount); err != nil {
		s.logger.Error("refund reservation rollback failed; ledger needs reconciliation",
			"transaction_id", transactionID,
			"refund_id", refundID,
			"amount", amount.String(),
			"error", err)
	}
	if err := s.repo.MarkFailed(refundID, reason); err != nil {
		s.logger.Error("failed to mark refund failed", "refund_id", refundID, "error", err)
	}
}

// flipEscrow marks the escrow refunded after a full refund. The refund
// itself already succeeded; escrow trouble here is logged, not returned.
func (s *Service) flipEscrow(ctx context.Context, transactionID string) {
	acct, err := s.escrows.GetByTransactionID(ctx, transactionID)
	if err != nil {
		s.logger.Error("full refund could not locate escrow account",
			"transaction_id", transactionID,
			"error", err)
		return
	}
	if _, err := s.escrows.MarkRefunded(ctx, acct.ID); err != nil {
		s.logger.Error("full refund could not flip escrow account",
			"escrow_id", acct.ID,
			"transaction_id", transactionID,
			"error", err)
	}
}

var _ ServiceAPI = (*Service)(nil)
