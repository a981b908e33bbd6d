package payment

import "github.com/shopspring/decimal"

// FeeBreakdown is the transparent fee statement shown before submission.
// Invariants, both exact after 2dp bankers' rounding:
//
//	total_fees = platform_fee + payment_processing_fee.total + taxes + escrow_fee
//	net_amount = base_amount - total_fees
type FeeBreakdown struct {
	BaseAmount           decimal.Decimal `json:"base_amount"`
	Currency             string          `json:"currency"`
	PlatformFee          PlatformFee     `json:"platform_fee"`
	PaymentProcessingFee ProcessingFee   `json:"payment_processing_fee"`
	Taxes                Taxes           `json:"taxes"`
	EscrowFee            EscrowFee       `json:"escrow_fee"`
	TotalFees            decimal.Decimal `json:"total_fees"`
	NetAmount            decimal.Decimal `json:"net_amount"`
}

type PlatformFee struct {
	Amount      decimal.Decimal `json:"amount"`
	Percentage  decimal.Decimal `json:"percentage"`
	Description string          `json:"description"`
}

type ProcessingFee struct {
	Percentage  decimal.Decimal `json:"percentage"`
	FixedAmount decimal.Decimal `json:"fixed_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Description string          `json:"description"`
}

type Taxes struct {
	VATAmount     decimal.Decimal `json:"vat_amount"`
	VATPercentage decimal.Decimal `json:"vat_percentage"`
	OtherTaxes    []TaxLine       `json:"other_taxes"`
}

type TaxLine struct {
	Name       string          `json:"name"`
	Percentage decimal.Decimal `json:"percentage"`
	Amount     decimal.Decimal `json:"amount"`
}

type EscrowFee struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// TaxTotal sums VAT and any other tax lines.
func (t Taxes) TaxTotal() decimal.Decimal {
	total := t.VATAmount
	for _, line := range t.OtherTaxes {
		total = total.Add(line.Amount)
	}
	return total
}
