package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

type MethodType string

const (
	MethodTypeCard          MethodType = "card"
	MethodTypeBankTransfer  MethodType = "bank_transfer"
	MethodTypeMobileMoney   MethodType = "mobile_money"
	MethodTypeDigitalWallet MethodType = "digital_wallet"
	MethodTypeCashDeposit   MethodType = "cash_deposit"
)

func (t MethodType) Valid() bool {
	switch t {
	case MethodTypeCard, MethodTypeBankTransfer, MethodTypeMobileMoney, MethodTypeDigitalWallet, MethodTypeCashDeposit:
		return true
	}
	return false
}

// Provider identifiers as they appear in catalog configuration and on the
// wire. Zimbabwean rails first, then the regional and international ones.
const (
	ProviderEcoCash     = "ecocash"
	ProviderOneMoney    = "onemoney"
	ProviderTelecash    = "telecash"
	ProviderZipit       = "zipit"
	ProviderPaynow      = "paynow_zimbabwe"
	ProviderMPesa       = "mpesa"
	ProviderMTNMoMo     = "mtn_momo"
	ProviderAirtelMoney = "airtel_money"
	ProviderStripe      = "stripe"
	ProviderFlutterwave = "flutterwave"
	ProviderFNB         = "fnb"
	ProviderStanbic     = "stanbic"
)

// sadcCountries is the full member set; billing addresses and catalog
// filters only accept these ISO codes.
var sadcCountries = map[string]bool{
	"AO": true, "BW": true, "KM": true, "CD": true,
	"SZ": true, "LS": true, "MG": true, "MW": true,
	"MU": true, "MZ": true, "NA": true, "SC": true,
	"ZA": true, "TZ": true, "ZM": true, "ZW": true,
}

func IsSADCCountry(code string) bool {
	return sadcCountries[strings.ToUpper(code)]
}

// PaymentMethod is immutable reference data declared in configuration. The
// gorm tags exist only for the seeded payment_methods reporting table;
// runtime lookups always go through the in-memory catalog.
type PaymentMethod struct {
	ID                   string          `json:"id" gorm:"primaryKey"`
	Type                 MethodType      `json:"type" gorm:"column:type;not null"`
	Provider             string          `json:"provider" gorm:"column:provider;not null"`
	Name                 string          `json:"name" gorm:"column:name;not null"`
	Description          string          `json:"description" gorm:"column:description"`
	ProcessingFeePercent decimal.Decimal `json:"processing_fee_percent" gorm:"column:processing_fee_percent;type:numeric(7,4)"`
	FixedFee             decimal.Decimal `json:"fixed_fee" gorm:"column:fixed_fee;type:numeric(14,2)"`
	Currency             string          `json:"currency" gorm:"column:currency;not null"`
	ConvertibleWith      []string        `json:"convertible_with,omitempty" gorm:"column:convertible_with;serializer:json;type:jsonb"`
	SupportedCountries   []string        `json:"supported_countries" gorm:"column:supported_countries;serializer:json;type:jsonb"`
	MinAmount            decimal.Decimal `json:"min_amount" gorm:"column:min_amount;type:numeric(14,2)"`
	MaxAmount            decimal.Decimal `json:"max_amount" gorm:"column:max_amount;type:numeric(14,2)"`
	ProcessingTimeHours  int             `json:"processing_time_hours" gorm:"column:processing_time_hours"`
	RequiresVerification bool            `json:"requires_verification" gorm:"column:requires_verification"`
	Enabled              bool            `json:"enabled" gorm:"column:enabled"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

func (m *PaymentMethod) SupportsCountry(code string) bool {
	code = strings.ToUpper(code)
	for _, c := range m.SupportedCountries {
		if strings.ToUpper(c) == code {
			return true
		}
	}
	return false
}

// WithinAmountBand checks min_amount <= amount <= max_amount. A zero
// max_amount means unbounded.
func (m *PaymentMethod) WithinAmountBand(amount decimal.Decimal) bool {
	if amount.LessThan(m.MinAmount) {
		return false
	}
	if m.MaxAmount.IsPositive() && amount.GreaterThan(m.MaxAmount) {
		return false
	}
	return true
}

// AcceptsCurrency matches the method currency case-insensitively, or any
// currency the catalog declares convertible for this method.
func (m *PaymentMethod) AcceptsCurrency(currency string) bool {
	if strings.EqualFold(m.Currency, currency) {
		return true
	}
	for _, c := range m.ConvertibleWith {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}

// BillingAddress is required on every payment attempt. Country must be one
// of the SADC member codes.
type BillingAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}
