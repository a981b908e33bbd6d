package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// MobileMoneyAdapter speaks to the mobile money aggregator covering
// EcoCash, OneMoney, Telecash, M-Pesa and the other regional wallets.
// A charge is a USSD push the subscriber confirms on their handset, so
// the adapter initiates and then polls until the aggregator reports a
// terminal state or the attempt times out.
type MobileMoneyAdapter struct {
	gateway      *gatewayClient
	dedupe       *dedupeCache
	logger       *slog.Logger
	pollInterval time.Duration
	maxPolls     int
}

type MobileMoneyAdapterConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	DedupeWindow   time.Duration
	PollInterval   time.Duration
	MaxPolls       int
}

func NewMobileMoneyAdapter(config MobileMoneyAdapterConfig, logger *slog.Logger) *MobileMoneyAdapter {
	pollInterval := config.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxPolls := config.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 15
	}
	return &MobileMoneyAdapter{
		gateway:      newGatewayClient(config.BaseURL, config.APIKey, config.RequestTimeout, logger),
		dedupe:       newDedupeCache(config.DedupeWindow),
		logger:       logger,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

func (a *MobileMoneyAdapter) Name() string { return "mobile_money_aggregator" }

func (a *MobileMoneyAdapter) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	if cached, ok := a.dedupe.get(req.IdempotencyKey); ok {
		a.logger.Info("mobile money charge deduplicated",
			"idempotency_key", req.IdempotencyKey,
			"transaction_id", req.TransactionID)
		return cached, nil
	}

	payload := map[string]interface{}{
		"reference":  req.TransactionID,
		"booking_id": req.BookingID,
		"amount":     req.Amount.StringFixed(2),
		"currency":   req.Currency,
		"provider":   req.Method.Provider,
	}
	if req.Details.MobileMoney != nil {
		payload["instrument"] = map[string]interface{}{
			"phone_number": req.Details.MobileMoney.PhoneNumber,
			"account_name": req.Details.MobileMoney.AccountName,
		}
	}

	resp, err := a.gateway.postJSON(ctx, "/push", req.IdempotencyKey, payload)
	if err != nil {
		return nil, fmt.Errorf("mobile money push: %w", err)
	}

	decoded, err := a.decodePushResponse(ctx, resp)
	if err != nil {
		return nil, err
	}

	a.logger.Info("mobile money charge executed",
		"transaction_id", req.TransactionID,
		"provider", req.Method.Provider,
		"outcome", decoded.Outcome)

	a.dedupe.put(req.IdempotencyKey, decoded)
	return decoded, nil
}

// decodePushResponse handles the pending-then-poll shape: the aggregator
// answers "pending" while the subscriber decides, and the adapter polls
// the push reference until it settles.
func (a *MobileMoneyAdapter) decodePushResponse(ctx context.Context, resp *http.Response) (*ChargeResponse, error) {
	// peek at pending before the generic decode, which treats it as unknown
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		var envelope chargeEnvelope
		if err := decodeInto(resp, &envelope); err != nil {
			return nil, fmt.Errorf("mobile money push: %w", err)
		}
		if envelope.Data.Status == "pending" {
			return a.pollUntilTerminal(ctx, envelope.Data.ID)
		}
		return chargeResponseFromData(envelope.Data)
	}

	decoded, err := decodeChargeResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("mobile money push: %w", err)
	}
	return decoded, nil
}

func (a *MobileMoneyAdapter) pollUntilTerminal(ctx context.Context, pushReference string) (*ChargeResponse, error) {
	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for polls := 0; polls < a.maxPolls; polls++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("mobile money poll cancelled: %w", ctx.Err())
		case <-ticker.C:
		}

		var envelope chargeEnvelope
		if err := a.gateway.getJSON(ctx, "/push/"+pushReference, &envelope); err != nil {
			return nil, fmt.Errorf("mobile money poll: %w", err)
		}

		if envelope.Data.Status == "pending" {
			continue
		}
		return chargeResponseFromData(envelope.Data)
	}

	return nil, fmt.Errorf("mobile money push %s did not settle within %d polls", pushReference, a.maxPolls)
}

func (a *MobileMoneyAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	payload := map[string]interface{}{
		"reference": req.TransactionID,
		"push_id":   req.ProviderReference,
		"amount":    req.Amount.StringFixed(2),
		"currency":  req.Currency,
		"reason":    req.Reason,
	}

	resp, err := a.gateway.postJSON(ctx, "/refunds", req.IdempotencyKey, payload)
	if err != nil {
		return nil, fmt.Errorf("mobile money refund: %w", err)
	}
	return decodeRefundResponse(resp)
}

func (a *MobileMoneyAdapter) QueryStatus(ctx context.Context, providerReference string) (*StatusResponse, error) {
	var envelope chargeEnvelope
	if err := a.gateway.getJSON(ctx, "/push/"+providerReference, &envelope); err != nil {
		return nil, fmt.Errorf("mobile money status: %w", err)
	}
	return mapStatus(envelope.Data)
}

var _ Adapter = (*MobileMoneyAdapter)(nil)
