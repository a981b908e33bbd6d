package payment

import (
	"errors"
	"strings"
)

// PaymentDetails is a tagged union keyed by method type: exactly one
// variant is populated per attempt. Raw details live only for the duration
// of the orchestration call; persistence and logging see Mask() output.
type PaymentDetails struct {
	Card          *CardDetails          `json:"card,omitempty"`
	MobileMoney   *MobileMoneyDetails   `json:"mobile_money,omitempty"`
	BankTransfer  *BankTransferDetails  `json:"bank_transfer,omitempty"`
	DigitalWallet *DigitalWalletDetails `json:"digital_wallet,omitempty"`
}

type CardDetails struct {
	Number         string `json:"number"`
	ExpiryMonth    int    `json:"expiry_month"`
	ExpiryYear     int    `json:"expiry_year"`
	CVV            string `json:"cvv"`
	CardholderName string `json:"cardholder_name"`
}

type MobileMoneyDetails struct {
	PhoneNumber string `json:"phone_number"`
	Provider    string `json:"provider"`
	AccountName string `json:"account_name"`
}

type BankTransferDetails struct {
	AccountNumber     string `json:"account_number"`
	RoutingNumber     string `json:"routing_number"`
	BankName          string `json:"bank_name"`
	AccountHolderName string `json:"account_holder_name"`
}

type DigitalWalletDetails struct {
	WalletID string `json:"wallet_id"`
	Provider string `json:"provider"`
}

// Variant returns the method type of the populated variant. Zero or
// multiple populated variants are rejected so a malformed request can
// never smuggle two instruments into one attempt.
func (d *PaymentDetails) Variant() (MethodType, error) {
	var (
		t     MethodType
		count int
	)
	if d.Card != nil {
		t, count = MethodTypeCard, count+1
	}
	if d.MobileMoney != nil {
		t, count = MethodTypeMobileMoney, count+1
	}
	if d.BankTransfer != nil {
		t, count = MethodTypeBankTransfer, count+1
	}
	if d.DigitalWallet != nil {
		t, count = MethodTypeDigitalWallet, count+1
	}
	switch count {
	case 0:
		return "", errors.New("payment details are empty")
	case 1:
		return t, nil
	default:
		return "", errors.New("payment details must contain exactly one variant")
	}
}

// MaskedDetails is the only derivative of PaymentDetails that may be
// persisted or logged.
type MaskedDetails struct {
	Type           MethodType `json:"type"`
	LastFour       string     `json:"last_four,omitempty"`
	CardholderName string     `json:"cardholder_name,omitempty"`
	MaskedPhone    string     `json:"masked_phone,omitempty"`
	MaskedAccount  string     `json:"masked_account,omitempty"`
	BankName       string     `json:"bank_name,omitempty"`
	WalletProvider string     `json:"wallet_provider,omitempty"`
}

func (d *PaymentDetails) Mask() MaskedDetails {
	switch {
	case d.Card != nil:
		return MaskedDetails{
			Type:           MethodTypeCard,
			LastFour:       lastFour(digitsOnly(d.Card.Number)),
			CardholderName: d.Card.CardholderName,
		}
	case d.MobileMoney != nil:
		return MaskedDetails{
			Type:        MethodTypeMobileMoney,
			MaskedPhone: maskPhone(d.MobileMoney.PhoneNumber),
		}
	case d.BankTransfer != nil:
		return MaskedDetails{
			Type:          MethodTypeBankTransfer,
			MaskedAccount: lastFour(digitsOnly(d.BankTransfer.AccountNumber)),
			BankName:      d.BankTransfer.BankName,
		}
	case d.DigitalWallet != nil:
		return MaskedDetails{
			Type:           MethodTypeDigitalWallet,
			WalletProvider: d.DigitalWallet.Provider,
		}
	}
	return MaskedDetails{}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func lastFour(digits string) string {
	if len(digits) < 4 {
		return ""
	}
	return digits[len(digits)-4:]
}

func maskPhone(phone string) string {
	digits := digitsOnly(phone)
	if len(digits) < 4 {
		return ""
	}
	return "+" + strings.Repeat("*", len(digits)-3) + digits[len(digits)-3:]
}
