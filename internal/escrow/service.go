package escrow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/escrow"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
	"github.com/tnyamukapa/rentpay/internal/core/events"
	paymentPkg "github.com/tnyamukapa/rentpay/internal/payment"
)

var (
	ErrEscrowNotFound  = errors.New("escrow account not found")
	ErrDuplicateEscrow = errors.New("escrow account already exists for transaction")
	ErrStaleTransition = errors.New("escrow account was updated concurrently")
)

// StatusUpdate carries the timestamp columns written alongside a status
// transition. Nil fields stay untouched.
type StatusUpdate struct {
	FundedAt           *time.Time
	ReleaseScheduledAt *time.Time
	ReleasedAt         *time.Time
	DisputedAt         *time.Time
	RefundedAt         *time.Time
}

type Repository interface {
	Create(acct *escrow.EscrowAccount) error
	GetByID(id string) (*escrow.EscrowAccount, error)
	GetByTransactionID(transactionID string) (*escrow.EscrowAccount, error)
	TransitionStatus(id string, from, to escrow.Status, update StatusUpdate) error
	ListDueForRelease(now time.Time, limit int) ([]*escrow.EscrowAccount, error)
}

// ServiceAPI is the surface the HTTP handlers and the release worker
// consume.
type ServiceAPI interface {
	GetByID(ctx context.Context, id string) (*escrow.EscrowAccount, error)
	RaiseDispute(ctx context.Context, id string) (*escrow.EscrowAccount, error)
	AutoRelease(ctx context.Context, id string) (*escrow.EscrowAccount, error)
}

type Service struct {
	repo     Repository
	eventBus *events.EventBus
	cfg      internal.EscrowConfig
	logger   *slog.Logger
}

func NewService(repo Repository, eventBus *events.EventBus, cfg internal.EscrowConfig, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		eventBus: eventBus,
		cfg:      cfg,
		logger:   logger,
	}
}

// NewEscrowID mints a prefixed, lexically sortable escrow account id.
func NewEscrowID() string {
	return "esc_" + ulid.Make().String()
}

// Open creates the holding record for a completed transaction. The amount
// held is the operator's net; the fee snapshot records what was withheld.
// Release conditions are captured here and never re-read from config, so a
// later policy change cannot retroactively move an account's schedule.
func (s *Service) Open(ctx context.Context, txn *payment.PaymentTransaction, breakdown payment.FeeBreakdown) (*escrow.EscrowAccount, error) {
	acct := &escrow.EscrowAccount{
		ID:            NewEscrowID(),
		TransactionID: txn.ID,
		Amount:        breakdown.NetAmount,
		Status:        escrow.StatusCreated,
		ReleaseConditions: escrow.ReleaseConditions{
			AutoReleaseHours:   s.cfg.AutoReleaseHours,
			DisputePeriodHours: s.cfg.DisputePeriodHours,
		},
		Fees: escrow.Fees{
			PlatformFee:   breakdown.PlatformFee.Amount,
			ProcessingFee: breakdown.PaymentProcessingFee.TotalAmount,
			TotalFees:     breakdown.TotalFees,
		},
	}

	if err := s.repo.Create(acct); err != nil {
		if errors.Is(err, ErrDuplicateEscrow) {
			existing, getErr := s.repo.GetByTransactionID(txn.ID)
			if getErr != nil {
				return nil, internal.NewInternalError("failed to load existing escrow account", getErr)
			}
			s.logger.Info("escrow already open for transaction",
				"escrow_id", existing.ID,
				"transaction_id", txn.ID)
			return existing, nil
		}
		s.logger.Error("failed to create escrow account",
			"transaction_id", txn.ID,
			"error", err)
		return nil, internal.NewInternalError("failed to create escrow account", err)
	}

	s.logger.Info("escrow account opened",
		"escrow_id", acct.ID,
		"transaction_id", txn.ID,
		"amount", acct.Amount.String(),
		"auto_release_hours", acct.ReleaseConditions.AutoReleaseHours)

	return acct, nil
}

// Fund marks settlement confirmation. The release schedule is computed
// exactly once here, from the funding instant and the conditions captured
// at open. Funding an already funded account is a no-op.
func (s *Service) Fund(ctx context.Context, escrowID string) (*escrow.EscrowAccount, error) {
	acct, err := s.getByID(escrowID)
	if err != nil {
		return nil, err
	}

	switch acct.Status {
	case escrow.StatusFunded:
		return acct, nil
	case escrow.StatusCreated:
	default:
		return nil, internal.NewStateError("escrow cannot be funded from status "+string(acct.Status), internal.ErrCodeInvalidTransition)
	}

	now := time.Now().UTC()
	scheduled := now.Add(time.Duration(acct.ReleaseConditions.AutoReleaseHours) * time.Hour)

	err = s.repo.TransitionStatus(escrowID, escrow.StatusCreated, escrow.StatusFunded, StatusUpdate{
		FundedAt:           &now,
		ReleaseScheduledAt: &scheduled,
	})
	if err != nil {
		if errors.Is(err, ErrStaleTransition) {
			reloaded, getErr := s.getByID(escrowID)
			if getErr != nil {
				return nil, getErr
			}
			if reloaded.Status == escrow.StatusFunded {
				return reloaded, nil
			}
			return nil, internal.NewStateError("escrow cannot be funded from status "+string(reloaded.Status), internal.ErrCodeInvalidTransition)
		}
		s.logger.Error("failed to fund escrow account", "escrow_id", escrowID, "error", err)
		return nil, internal.NewInternalError("failed to fund escrow account", err)
	}

	acct.Status = escrow.StatusFunded
	acct.FundedAt = &now
	acct.ReleaseScheduledAt = &scheduled

	s.logger.Info("escrow account funded",
		"escrow_id", acct.ID,
		"transaction_id", acct.TransactionID,
		"amount", acct.Amount.String(),
		"release_scheduled_at", scheduled)

	s.eventBus.Publish(ctx, events.NewEscrowFundedEvent(acct.ID, acct.TransactionID, acct.Amount))

	return acct, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*escrow.EscrowAccount, error) {
	return s.getByID(id)
}

func (s *Service) GetByTransactionID(ctx context.Context, transactionID string) (*escrow.EscrowAccount, error) {
	acct, err := s.repo.GetByTransactionID(transactionID)
	if err != nil {
		if errors.Is(err, ErrEscrowNotFound) {
			return nil, internal.NewNotFoundError("no escrow account for transaction", internal.ErrCodeEscrowNotFound)
		}
		return nil, internal.NewInternalError("failed to load escrow account", err)
	}
	return acct, nil
}

// RaiseDispute freezes a funded account while the window is open. The
// window is measured against the schedule fixed at funding, so a late
// sweeper run cannot shrink it.
func (s *Service) RaiseDispute(ctx context.Context, id string) (*escrow.EscrowAccount, error) {
	acct, err := s.getByID(id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if !acct.DisputeWindowOpen(now) {
		return nil, internal.NewStateError("dispute window is closed for this escrow", internal.ErrCodeDisputeWindowClosed)
	}

	err = s.repo.TransitionStatus(id, escrow.StatusFunded, escrow.StatusDisputed, StatusUpdate{
		DisputedAt: &now,
	})
	if err != nil {
		if errors.Is(err, ErrStaleTransition) {
			reloaded, getErr := s.getByID(id)
			if getErr != nil {
				return nil, getErr
			}
			if reloaded.Status == escrow.StatusDisputed {
				return reloaded, nil
			}
			return nil, internal.NewStateError("dispute window is closed for this escrow", internal.ErrCodeDisputeWindowClosed)
		}
		s.logger.Error("failed to dispute escrow account", "escrow_id", id, "error", err)
		return nil, internal.NewInternalError("failed to dispute escrow account", err)
	}

	acct.Status = escrow.StatusDisputed
	acct.DisputedAt = &now

	s.logger.Warn("escrow account disputed",
		"escrow_id", acct.ID,
		"transaction_id", acct.TransactionID,
		"amount", acct.Amount.String())

	s.eventBus.Publish(ctx, events.NewEscrowDisputedEvent(acct.ID, acct.TransactionID, acct.Amount))

	return acct, nil
}

// AutoRelease pays out a funded account once its schedule has passed.
// Released and refunded accounts absorb the call unchanged; a disputed
// account rejects it until the dispute resolves. Invoking it early or
// repeatedly never moves release_scheduled_at.
func (s *Service) AutoRelease(ctx context.Context, id string) (*escrow.EscrowAccount, error) {
	acct, err := s.getByID(id)
	if err != nil {
		return nil, err
	}

	switch acct.Status {
	case escrow.StatusReleased, escrow.StatusRefunded:
		return acct, nil
	case escrow.StatusDisputed:
		return nil, internal.NewStateError("escrow is under dispute and cannot be released", internal.ErrCodeEscrowDisputed)
	case escrow.StatusCreated:
		return nil, internal.NewStateError("escrow has not been funded", internal.ErrCodeEscrowNotFunded)
	}

	now := time.Now().UTC()
	if !acct.DueForRelease(now) {
		s.logger.Info("escrow not yet due for release",
			"escrow_id", acct.ID,
			"release_scheduled_at", acct.ReleaseScheduledAt)
		return acct, nil
	}

	err = s.repo.TransitionStatus(id, escrow.StatusFunded, escrow.StatusReleased, StatusUpdate{
		ReleasedAt: &now,
	})
	if err != nil {
		if errors.Is(err, ErrStaleTransition) {
			reloaded, getErr := s.getByID(id)
			if getErr != nil {
				return nil, getErr
			}
			switch reloaded.Status {
			case escrow.StatusReleased, escrow.StatusRefunded:
				return reloaded, nil
			case escrow.StatusDisputed:
				return nil, internal.NewStateError("escrow is under dispute and cannot be released", internal.ErrCodeEscrowDisputed)
			}
			return reloaded, nil
		}
		s.logger.Error("failed to release escrow account", "escrow_id", id, "error", err)
		return nil, internal.NewInternalError("failed to release escrow account", err)
	}

	acct.Status = escrow.StatusReleased
	acct.ReleasedAt = &now

	s.logger.Info("escrow account released",
		"escrow_id", acct.ID,
		"transaction_id", acct.TransactionID,
		"amount", acct.Amount.String())

	s.eventBus.Publish(ctx, events.NewEscrowReleasedEvent(acct.ID, acct.TransactionID, acct.Amount))

	return acct, nil
}

// MarkRefunded flips the account once a refund consumes the full balance,
// superseding any pending auto-release. A refund recorded after release
// leaves the account released; the refund ledger still carries the row.
func (s *Service) MarkRefunded(ctx context.Context, escrowID string) (*escrow.EscrowAccount, error) {
	acct, err := s.getByID(escrowID)
	if err != nil {
		return nil, err
	}

	switch acct.Status {
	case escrow.StatusRefunded:
		return acct, nil
	case escrow.StatusReleased:
		s.logger.Warn("full refund recorded after escrow release",
			"escrow_id", acct.ID,
			"transaction_id", acct.TransactionID)
		return acct, nil
	case escrow.StatusCreated:
		return nil, internal.NewStateError("escrow has not been funded", internal.ErrCodeEscrowNotFunded)
	}

	now := time.Now().UTC()
	from := acct.Status

	err = s.repo.TransitionStatus(escrowID, from, escrow.StatusRefunded, StatusUpdate{
		RefundedAt: &now,
	})
	if err != nil {
		if errors.Is(err, ErrStaleTransition) {
			reloaded, getErr := s.getByID(escrowID)
			if getErr != nil {
				return nil, getErr
			}
			if reloaded.Status == escrow.StatusRefunded {
				return reloaded, nil
			}
			return nil, internal.NewStateError("escrow cannot be refunded from status "+string(reloaded.Status), internal.ErrCodeInvalidTransition)
		}
		s.logger.Error("failed to mark escrow refunded", "escrow_id", escrowID, "error", err)
		return nil, internal.NewInternalError("failed to mark escrow refunded", err)
	}

	acct.Status = escrow.StatusRefunded
	acct.RefundedAt = &now

	s.logger.Info("escrow account refunded",
		"escrow_id", acct.ID,
		"transaction_id", acct.TransactionID,
		"amount", acct.Amount.String())

	s.eventBus.Publish(ctx, events.NewEscrowRefundedEvent(acct.ID, acct.TransactionID, acct.Amount))

	return acct, nil
}

// ReleaseDue sweeps accounts whose schedule has passed. Per-account
// failures are logged and skipped so one stuck account cannot stall the
// sweep.
func (s *Service) ReleaseDue(ctx context.Context, limit int) (int, error) {
	due, err := s.repo.ListDueForRelease(time.Now().UTC(), limit)
	if err != nil {
		return 0, internal.NewInternalError("failed to list due escrow accounts", err)
	}

	released := 0
	for _, acct := range due {
		if ctx.Err() != nil {
			return released, ctx.Err()
		}
		result, err := s.AutoRelease(ctx, acct.ID)
		if err != nil {
			s.logger.Error("sweep failed to release escrow",
				"escrow_id", acct.ID,
				"error", err)
			continue
		}
		if result.Status == escrow.StatusReleased {
			released++
		}
	}

	if len(due) > 0 {
		s.logger.Info("escrow release sweep finished",
			"candidates", len(due),
			"released", released)
	}

	return released, nil
}

func (s *Service) getByID(id string) (*escrow.EscrowAccount, error) {
	acct, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, ErrEscrowNotFound) {
			return nil, internal.NewNotFoundError("escrow account not found", internal.ErrCodeEscrowNotFound)
		}
		return nil, internal.NewInternalError("failed to load escrow account", err)
	}
	return acct, nil
}

var (
	_ ServiceAPI               = (*Service)(nil)
	_ paymentPkg.EscrowService = (*Service)(nil)
)
