package escrow

import (
	"time"

	"github.com/tnyamukapa/rentpay/internal/core/datamodel/escrow"
)

// StatusResponse pairs the account with the two clock-dependent answers
// clients otherwise recompute wrong: whether a dispute can still be raised
// and whether the sweep would release it now.
type StatusResponse struct {
	Escrow            *escrow.EscrowAccount `json:"escrow"`
	DisputeWindowOpen bool                  `json:"dispute_window_open"`
	DueForRelease     bool                  `json:"due_for_release"`
}

func NewStatusResponse(acct *escrow.EscrowAccount, now time.Time) *StatusResponse {
	return &StatusResponse{
		Escrow:            acct,
		DisputeWindowOpen: acct.DisputeWindowOpen(now),
		DueForRelease:     acct.DueForRelease(now),
	}
}

type ActionResponse struct {
	Escrow  *escrow.EscrowAccount `json:"escrow"`
	Message string                `json:"message"`
}
