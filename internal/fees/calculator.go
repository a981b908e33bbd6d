package fees

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
)

var oneHundred = decimal.NewFromInt(100)

// Policy holds the fee constants: platform percentage, flat escrow charge
// and the per-country VAT table. Countries absent from the table are taxed
// at zero, never rejected.
type Policy struct {
	PlatformFeePercent decimal.Decimal
	EscrowFlatFee      decimal.Decimal
	VATRates           map[string]decimal.Decimal
}

func PolicyFromConfig(cfg internal.FeesConfig) (Policy, error) {
	platform, err := decimal.NewFromString(cfg.PlatformFeePercent)
	if err != nil {
		return Policy{}, fmt.Errorf("platform_fee_percent: %w", err)
	}
	escrowFlat, err := decimal.NewFromString(cfg.EscrowFlatFee)
	if err != nil {
		return Policy{}, fmt.Errorf("escrow_flat_fee: %w", err)
	}
	rates := make(map[string]decimal.Decimal, len(cfg.VATRates))
	for country, rate := range cfg.VATRates {
		d, err := decimal.NewFromString(rate)
		if err != nil {
			return Policy{}, fmt.Errorf("vat rate for %s: %w", country, err)
		}
		rates[strings.ToUpper(country)] = d
	}
	return Policy{
		PlatformFeePercent: platform,
		EscrowFlatFee:      escrowFlat,
		VATRates:           rates,
	}, nil
}

// Calculator computes fee breakdowns. It is stateless beyond the policy
// constants and safe for concurrent use; identical inputs always produce
// identical output, so callers may cache results keyed on the inputs.
type Calculator struct {
	policy Policy
}

func NewCalculator(policy Policy) *Calculator {
	return &Calculator{policy: policy}
}

// round2 is bankers' rounding to cents. Every monetary figure in a
// breakdown passes through here exactly once before being summed, which
// keeps the net/total identity exact instead of approximately true.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// ComputeFees builds the full breakdown for one (amount, method, country)
// input. No side effects; the breakdown must be recomputed whenever the
// method or amount changes.
func (c *Calculator) ComputeFees(amount decimal.Decimal, currency string, method payment.PaymentMethod, country string) (payment.FeeBreakdown, error) {
	if !amount.IsPositive() {
		return payment.FeeBreakdown{}, internal.NewValidationFieldError(
			"amount", "amount must be positive", internal.ErrCodeInvalidAmount)
	}

	processingTotal := round2(amount.Mul(method.ProcessingFeePercent).Div(oneHundred).Add(method.FixedFee))
	platformAmount := round2(amount.Mul(c.policy.PlatformFeePercent).Div(oneHundred))

	vatRate, ok := c.policy.VATRates[strings.ToUpper(country)]
	var vatAmount decimal.Decimal
	if ok && vatRate.IsPositive() {
		vatAmount = round2(platformAmount.Mul(vatRate).Div(oneHundred))
	} else {
		vatRate = decimal.Zero
		vatAmount = decimal.Zero
	}

	escrowAmount := round2(c.policy.EscrowFlatFee)

	taxes := payment.Taxes{
		VATAmount:     vatAmount,
		VATPercentage: vatRate,
		OtherTaxes:    []payment.TaxLine{},
	}

	totalFees := platformAmount.Add(processingTotal).Add(taxes.TaxTotal()).Add(escrowAmount)
	netAmount := amount.Sub(totalFees)

	return payment.FeeBreakdown{
		BaseAmount: round2(amount),
		Currency:   strings.ToUpper(currency),
		PlatformFee: payment.PlatformFee{
			Amount:      platformAmount,
			Percentage:  c.policy.PlatformFeePercent,
			Description: fmt.Sprintf("Platform fee (%s%%)", c.policy.PlatformFeePercent.String()),
		},
		PaymentProcessingFee: payment.ProcessingFee{
			Percentage:  method.ProcessingFeePercent,
			FixedAmount: method.FixedFee,
			TotalAmount: processingTotal,
			Description: fmt.Sprintf("%s processing fee", method.Name),
		},
		Taxes: taxes,
		EscrowFee: payment.EscrowFee{
			Amount:      escrowAmount,
			Description: "Escrow protection fee",
		},
		TotalFees: totalFees,
		NetAmount: netAmount,
	}, nil
}
