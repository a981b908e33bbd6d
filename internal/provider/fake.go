package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Magic card numbers the fake gateway recognizes, mirroring the sandbox
// conventions of the real card networks.
const (
	FakeCardDeclined          = "4000000000000002"
	FakeCardInsufficientFunds = "4000000000009995"
	FakeCardRequires3DS       = "4000000000003220"
	FakeCardGatewayError      = "4000000000000119"
)

// FakeAdapter is a deterministic in-process Adapter. It honors the
// idempotency contract (a retried key replays the recorded answer), decides
// outcomes from magic instrument values, and records every call so tests
// can assert how many times the provider was actually hit.
type FakeAdapter struct {
	mu      sync.Mutex
	name    string
	seq     int
	charges map[string]*ChargeResponse
	refunds map[string]*RefundResponse
	status  map[string]ChargeStatus

	Calls       []ChargeRequest
	RefundCalls []RefundRequest

	// FailCharges and FailRefunds, when set, make the corresponding call
	// return that error with nothing recorded, as if the provider never
	// answered.
	FailCharges error
	FailRefunds error
}

func NewFakeAdapter(name string) *FakeAdapter {
	return &FakeAdapter{
		name:    name,
		charges: make(map[string]*ChargeResponse),
		refunds: make(map[string]*RefundResponse),
		status:  make(map[string]ChargeStatus),
	}
}

func (a *FakeAdapter) Name() string { return a.name }

func (a *FakeAdapter) Charge(_ context.Context, req ChargeRequest) (*ChargeResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cached, ok := a.charges[req.IdempotencyKey]; ok {
		return cached, nil
	}
	if a.FailCharges != nil {
		return nil, a.FailCharges
	}

	a.Calls = append(a.Calls, req)

	resp, err := a.decide(req)
	if err != nil {
		return nil, err
	}
	a.charges[req.IdempotencyKey] = resp
	return resp, nil
}

func (a *FakeAdapter) decide(req ChargeRequest) (*ChargeResponse, error) {
	a.seq++
	ref := fmt.Sprintf("fake_ch_%s_%d", a.name, a.seq)

	if req.Details.Card != nil {
		switch req.Details.Card.Number {
		case FakeCardDeclined:
			return &ChargeResponse{Outcome: OutcomeDeclined, ProviderReference: ref, DeclineCode: DeclineCardDeclined, DeclineReason: "issuer declined the card"}, nil
		case FakeCardInsufficientFunds:
			return &ChargeResponse{Outcome: OutcomeDeclined, ProviderReference: ref, DeclineCode: DeclineInsufficientFunds, DeclineReason: "insufficient funds on the card"}, nil
		case FakeCardRequires3DS:
			a.status[ref] = ChargeStatusPending
			return &ChargeResponse{
				Outcome:           OutcomeRequiresAction,
				ProviderReference: ref,
				NextActionURL:     "https://3ds.fake.gateway/challenge/" + ref,
			}, nil
		case FakeCardGatewayError:
			a.seq--
			return nil, fmt.Errorf("fake gateway: connection reset")
		}
	}
	if req.Details.MobileMoney != nil && strings.HasSuffix(req.Details.MobileMoney.PhoneNumber, "0000") {
		return &ChargeResponse{Outcome: OutcomeDeclined, ProviderReference: ref, DeclineCode: DeclineInsufficientFunds, DeclineReason: "wallet balance too low"}, nil
	}
	if req.Details.DigitalWallet != nil && strings.Contains(req.Details.DigitalWallet.WalletID, "declined") {
		return &ChargeResponse{Outcome: OutcomeDeclined, ProviderReference: ref, DeclineCode: DeclineCardDeclined, DeclineReason: "wallet provider declined the debit"}, nil
	}

	a.status[ref] = ChargeStatusSucceeded
	return &ChargeResponse{Outcome: OutcomeSucceeded, ProviderReference: ref}, nil
}

func (a *FakeAdapter) Refund(_ context.Context, req RefundRequest) (*RefundResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cached, ok := a.refunds[req.IdempotencyKey]; ok {
		return cached, nil
	}
	if a.FailRefunds != nil {
		return nil, a.FailRefunds
	}

	a.RefundCalls = append(a.RefundCalls, req)

	a.seq++
	resp := &RefundResponse{
		ProviderRefundID: fmt.Sprintf("fake_re_%s_%d", a.name, a.seq),
		Succeeded:        true,
	}
	a.refunds[req.IdempotencyKey] = resp
	return resp, nil
}

func (a *FakeAdapter) QueryStatus(_ context.Context, providerReference string) (*StatusResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	status, ok := a.status[providerReference]
	if !ok {
		return nil, fmt.Errorf("fake gateway: unknown charge %s", providerReference)
	}
	return &StatusResponse{ProviderReference: providerReference, Status: status}, nil
}

// SetStatus scripts the answer QueryStatus gives for a charge, used to
// settle a pending 3DS challenge from a test.
func (a *FakeAdapter) SetStatus(providerReference string, status ChargeStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status[providerReference] = status
}

// ChargeCount reports how many charges actually reached the fake provider,
// dedupe replays excluded.
func (a *FakeAdapter) ChargeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Calls)
}

var _ Adapter = (*FakeAdapter)(nil)
