package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
)

type BankAdapterConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	DedupeWindow   time.Duration
}

// BankAdapter initiates EFT transfers and agent cash deposits through the
// bank gateway. Both settle over the same rails: a cash deposit is a
// transfer executed at an agent counter against a generated reference, so
// the registry routes both method types here.
type BankAdapter struct {
	gateway *gatewayClient
	dedupe  *dedupeCache
	logger  *slog.Logger
}

func NewBankAdapter(config BankAdapterConfig, logger *slog.Logger) *BankAdapter {
	return &BankAdapter{
		gateway: newGatewayClient(config.BaseURL, config.APIKey, config.RequestTimeout, logger),
		dedupe:  newDedupeCache(config.DedupeWindow),
		logger:  logger,
	}
}

func (a *BankAdapter) Name() string { return "bank_transfer_gateway" }

func (a *BankAdapter) Charge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	if cached, ok := a.dedupe.get(req.IdempotencyKey); ok {
		a.logger.Info("bank charge deduplicated",
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
		"channel":    bankChannel(req.Method.Type),
	}
	if req.Details.BankTransfer != nil {
		payload["account"] = map[string]interface{}{
			"account_number":      req.Details.BankTransfer.AccountNumber,
			"routing_number":      req.Details.BankTransfer.RoutingNumber,
			"bank_name":           req.Details.BankTransfer.BankName,
			"account_holder_name": req.Details.BankTransfer.AccountHolderName,
		}
	}

	resp, err := a.gateway.postJSON(ctx, "/transfers", req.IdempotencyKey, payload)
	if err != nil {
		return nil, fmt.Errorf("bank charge: %w", err)
	}

	decoded, err := decodeChargeResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("bank charge: %w", err)
	}

	a.logger.Info("bank charge executed",
		"transaction_id", req.TransactionID,
		"channel", bankChannel(req.Method.Type),
		"outcome", decoded.Outcome,
		"provider_reference", decoded.ProviderReference)

	a.dedupe.put(req.IdempotencyKey, decoded)
	return decoded, nil
}

func (a *BankAdapter) Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	payload := map[string]interface{}{
		"reference":   req.TransactionID,
		"transfer_id": req.ProviderReference,
		"amount":      req.Amount.StringFixed(2),
		"currency":    req.Currency,
		"reason":      req.Reason,
	}

	resp, err := a.gateway.postJSON(ctx, "/transfers/reversals", req.IdempotencyKey, payload)
	if err != nil {
		return nil, fmt.Errorf("bank refund: %w", err)
	}
	return decodeRefundResponse(resp)
}

func (a *BankAdapter) QueryStatus(ctx context.Context, providerReference string) (*StatusResponse, error) {
	var envelope chargeEnvelope
	if err := a.gateway.getJSON(ctx, "/transfers/"+providerReference, &envelope); err != nil {
		return nil, fmt.Errorf("bank status: %w", err)
	}
	return mapStatus(envelope.Data)
}

func bankChannel(methodType payment.MethodType) string {
	if methodType == payment.MethodTypeCashDeposit {
		return "agent_deposit"
	}
	return "eft"
}

var _ Adapter = (*BankAdapter)(nil)
