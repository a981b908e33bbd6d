package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type WalletAdapterConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	DedupeWindow   time.Duration
}

// WalletAdapter charges digital wallets (PayPal, Skrill) through the
// wallet aggregator. Wallet debits are synchronous: the aggregator answers
// with a terminal outcome on the initial call.
type WalletAdapter struct {
	gateway *gatewayClient
	dedupe  *dedupeCache
	logger  *slog.Logger
}

func NewWalletAdapter(config WalletAdapterConfig, logger *slog.Logger) *WalletAdapter {
	return &WalletAdapter{
		gateway: newGatewayClient(config.BaseURL, config.APIKey, config.RequestTimeout, logger),
		dedupe:  newDedupeCache(config.DedupeWindow),
		logger:  logger,
	}
}

func (a *WalletAdapter) Name() string { return "wallet_aggregator" }

func (a *WalletAdapter) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	if cached, ok := a.dedupe.get(req.IdempotencyKey); ok {
		a.logger.Info("wallet charge deduplicated",
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
		"return_url": req.ReturnURL,
	}
	if req.Details.DigitalWallet != nil {
		payload["wallet"] = map[string]interface{}{
			"wallet_id": req.Details.DigitalWallet.WalletID,
			"provider":  req.Details.DigitalWallet.Provider,
		}
	}

	resp, err := a.gateway.postJSON(ctx, "/debits", req.IdempotencyKey, payload)
	if err != nil {
		return nil, fmt.Errorf("wallet charge: %w", err)
	}

	decoded, err := decodeChargeResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("wallet charge: %w", err)
	}

	a.logger.Info("wallet charge executed",
		"transaction_id", req.TransactionID,
		"outcome", decoded.Outcome,
		"provider_reference", decoded.ProviderReference)

	a.dedupe.put(req.IdempotencyKey, decoded)
	return decoded, nil
}

func (a *WalletAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	payload := map[string]interface{}{
		"reference": req.TransactionID,
		"debit_id":  req.ProviderReference,
		"amount":    req.Amount.StringFixed(2),
		"currency":  req.Currency,
		"reason":    req.Reason,
	}

	resp, err := a.gateway.postJSON(ctx, "/debits/refunds", req.IdempotencyKey, payload)
	if err != nil {
		return nil, fmt.Errorf("wallet refund: %w", err)
	}
	return decodeRefundResponse(resp)
}

func (a *WalletAdapter) QueryStatus(ctx context.Context, providerReference string) (*StatusResponse, error) {
	var envelope chargeEnvelope
	if err := a.gateway.getJSON(ctx, "/debits/"+providerReference, &envelope); err != nil {
		return nil, fmt.Errorf("wallet status: %w", err)
	}
	return mapStatus(envelope.Data)
}

var _ Adapter = (*WalletAdapter)(nil)
