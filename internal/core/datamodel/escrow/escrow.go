package escrow

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusCreated  Status = "created"
	StatusFunded   Status = "funded"
	StatusDisputed Status = "disputed"
	StatusReleased Status = "released"
	StatusRefunded Status = "refunded"
)

var transitions = map[Status][]Status{
	StatusCreated:  {StatusFunded},
	StatusFunded:   {StatusDisputed, StatusReleased, StatusRefunded},
	StatusDisputed: {StatusReleased, StatusRefunded},
	StatusReleased: {},
	StatusRefunded: {},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

type ReleaseConditions struct {
	AutoReleaseHours   int `json:"auto_release_hours"`
	DisputePeriodHours int `json:"dispute_period_hours"`
}

type Fees struct {
	PlatformFee   decimal.Decimal `json:"platform_fee"`
	ProcessingFee decimal.Decimal `json:"processing_fee"`
	TotalFees     decimal.Decimal `json:"total_fees"`
}

// EscrowAccount holds collected funds until release. release_scheduled_at
// is computed once at funding time from the conditions captured at open;
// it never drifts afterwards, however late AutoRelease runs.
type EscrowAccount struct {
	ID                string            `json:"id" gorm:"primaryKey"`
	TransactionID     string            `json:"transaction_id" gorm:"column:transaction_id;not null;uniqueIndex"`
	Amount            decimal.Decimal   `json:"amount" gorm:"column:amount;type:numeric(14,2);not null"`
	Status            Status            `json:"status" gorm:"column:status;default:created"`
	FundedAt          *time.Time        `json:"funded_at,omitempty" gorm:"column:funded_at"`
	ReleaseScheduledAt *time.Time       `json:"release_scheduled_at,omitempty" gorm:"column:release_scheduled_at"`
	ReleasedAt        *time.Time        `json:"released_at,omitempty" gorm:"column:released_at"`
	DisputedAt        *time.Time        `json:"disputed_at,omitempty" gorm:"column:disputed_at"`
	RefundedAt        *time.Time        `json:"refunded_at,omitempty" gorm:"column:refunded_at"`
	ReleaseConditions ReleaseConditions `json:"release_conditions" gorm:"column:release_conditions;serializer:json;type:jsonb"`
	Fees              Fees              `json:"fees" gorm:"column:fees;serializer:json;type:jsonb"`
	CreatedAt         time.Time         `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `json:"-" gorm:"column:updated_at;autoUpdateTime"`
}

func (EscrowAccount) TableName() string { return "escrow_accounts" }

// DueForRelease reports whether auto-release may fire: funded, past the
// fixed schedule, and with no open dispute (a dispute moves status off
// funded, so the status check covers it).
func (e *EscrowAccount) DueForRelease(now time.Time) bool {
	return e.Status == StatusFunded &&
		e.ReleaseScheduledAt != nil &&
		!now.Before(*e.ReleaseScheduledAt)
}

// DisputeWindowOpen reports whether a dispute may still be raised. The
// window runs from funding until release_scheduled_at plus the dispute
// period, measured against the schedule fixed at funding.
func (e *EscrowAccount) DisputeWindowOpen(now time.Time) bool {
	if e.Status != StatusFunded || e.ReleaseScheduledAt == nil {
		return false
	}
	deadline := e.ReleaseScheduledAt.Add(time.Duration(e.ReleaseConditions.DisputePeriodHours) * time.Hour)
	return now.Before(deadline)
}
