package payment

import (
	"fmt"
	"strings"
	"time"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/common/validation"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
)

// carrierRule ties a mobile money provider to the numbering ranges its
// carrier owns. Prefixes are matched after the calling code; a rule with no
// prefixes accepts any subscriber under the calling code, which is how
// aggregators that take all local networks are declared.
type carrierRule struct {
	callingCode string
	prefixes    []string
}

// carrierTable is provider business data, not generic phone validation:
// Econet owns 77/78, NetOne 71 and Telecel 73 under +263. Providers absent
// from the table skip classification and rely on E.164 alone.
var carrierTable = map[string][]carrierRule{
	payment.ProviderEcoCash:     {{callingCode: "263", prefixes: []string{"77", "78"}}},
	payment.ProviderOneMoney:    {{callingCode: "263", prefixes: []string{"71"}}},
	payment.ProviderTelecash:    {{callingCode: "263", prefixes: []string{"73"}}},
	payment.ProviderPaynow:      {{callingCode: "263"}},
	payment.ProviderMPesa:       {{callingCode: "255", prefixes: []string{"74", "75", "76"}}, {callingCode: "258", prefixes: []string{"84", "85"}}},
	payment.ProviderMTNMoMo:     {{callingCode: "260", prefixes: []string{"76", "96"}}},
	payment.ProviderAirtelMoney: {{callingCode: "260", prefixes: []string{"77", "97"}}},
}

// classificationOrder fixes the carrier lookup order for mismatch messages.
// Aggregators are excluded: they match whole calling codes and would shadow
// the concrete carriers.
var classificationOrder = []string{
	payment.ProviderEcoCash,
	payment.ProviderOneMoney,
	payment.ProviderTelecash,
	payment.ProviderMPesa,
	payment.ProviderMTNMoMo,
	payment.ProviderAirtelMoney,
}

func matchesCarrier(provider, phone string) bool {
	rules, ok := carrierTable[provider]
	if !ok {
		return true
	}
	subscriber := strings.TrimPrefix(phone, "+")
	for _, rule := range rules {
		if !strings.HasPrefix(subscriber, rule.callingCode) {
			continue
		}
		if len(rule.prefixes) == 0 {
			return true
		}
		national := subscriber[len(rule.callingCode):]
		for _, p := range rule.prefixes {
			if strings.HasPrefix(national, p) {
				return true
			}
		}
	}
	return false
}

// classifyCarrier names the provider whose numbering range holds the phone,
// so a mismatch error can say which network the number actually belongs to.
func classifyCarrier(phone string) (string, bool) {
	for _, provider := range classificationOrder {
		if matchesCarrier(provider, phone) {
			return provider, true
		}
	}
	return "", false
}

// Validator performs the structural checks that run before any provider is
// contacted. It is purely local: no network, no repository access.
type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// ValidateDetails checks the submitted instrument against the selected
// method. Errors are field-addressable so the caller can highlight the
// exact inputs to fix; a nil return means the details may be submitted.
func (v *Validator) ValidateDetails(method payment.PaymentMethod, details payment.PaymentDetails, billing payment.BillingAddress) *internal.AppError {
	var errs []internal.ValidationError

	variant, err := details.Variant()
	if err != nil {
		errs = append(errs, internal.ValidationError{
			Field:   "payment_details",
			Message: err.Error(),
			Code:    string(internal.ErrCodeValidationFailed),
		})
		return internal.NewValidationFieldErrors(errs)
	}

	expected := method.Type
	if expected == payment.MethodTypeCashDeposit {
		expected = payment.MethodTypeBankTransfer
	}
	if variant != expected {
		errs = append(errs, internal.ValidationError{
			Field:   "payment_details",
			Message: fmt.Sprintf("details are for %s but the selected method takes %s", variant, expected),
			Code:    string(internal.ErrCodeUnsupportedMethod),
		})
		return internal.NewValidationFieldErrors(errs)
	}

	switch variant {
	case payment.MethodTypeCard:
		errs = append(errs, v.validateCard(details.Card)...)
	case payment.MethodTypeMobileMoney:
		errs = append(errs, v.validateMobileMoney(method, details.MobileMoney)...)
	case payment.MethodTypeBankTransfer:
		errs = append(errs, v.validateBankTransfer(details.BankTransfer)...)
	case payment.MethodTypeDigitalWallet:
		errs = append(errs, v.validateWallet(details.DigitalWallet)...)
	}

	errs = append(errs, v.validateBilling(billing)...)

	if len(errs) > 0 {
		return internal.NewValidationFieldErrors(errs)
	}
	return nil
}

func (v *Validator) validateCard(card *payment.CardDetails) []internal.ValidationError {
	var errs []internal.ValidationError

	number := validation.NormalizeCardNumber(card.Number)
	if !validation.CardNumberFormatOK(number) {
		errs = append(errs, internal.ValidationError{
			Field:   "card.number",
			Message: "card number must be 13 to 19 digits",
			Code:    string(internal.ErrCodeInvalidCardNumber),
		})
	} else if !validation.PassesLuhn(number) {
		errs = append(errs, internal.ValidationError{
			Field:   "card.number",
			Message: "card number failed checksum",
			Code:    string(internal.ErrCodeInvalidCardNumber),
		})
	}

	if !validation.ExpiryInFuture(card.ExpiryMonth, card.ExpiryYear, v.now()) {
		errs = append(errs, internal.ValidationError{
			Field:   "card.expiry",
			Message: "card is expired or expiry is invalid",
			Code:    string(internal.ErrCodeCardExpired),
		})
	}

	if !validation.CVVFormatOK(card.CVV) {
		errs = append(errs, internal.ValidationError{
			Field:   "card.cvv",
			Message: "cvv must be 3 or 4 digits",
			Code:    string(internal.ErrCodeInvalidCVV),
		})
	}

	if strings.TrimSpace(card.CardholderName) == "" {
		errs = append(errs, internal.ValidationError{
			Field:   "card.cardholder_name",
			Message: "cardholder name is required",
			Code:    string(internal.ErrCodeValidationFailed),
		})
	}

	return errs
}

func (v *Validator) validateMobileMoney(method payment.PaymentMethod, mm *payment.MobileMoneyDetails) []internal.ValidationError {
	var errs []internal.ValidationError

	if !validation.E164OK(mm.PhoneNumber) {
		errs = append(errs, internal.ValidationError{
			Field:   "mobile_money.phone_number",
			Message: "phone number must be E.164, like +263771234567",
			Code:    string(internal.ErrCodeInvalidPhoneNumber),
		})
		return errs
	}

	if !matchesCarrier(method.Provider, mm.PhoneNumber) {
		message := fmt.Sprintf("phone number is not in the %s numbering range", method.Provider)
		if actual, ok := classifyCarrier(mm.PhoneNumber); ok {
			message = fmt.Sprintf("phone number belongs to %s, not %s", actual, method.Provider)
		}
		errs = append(errs, internal.ValidationError{
			Field:   "mobile_money.phone_number",
			Message: message,
			Code:    string(internal.ErrCodeCarrierMismatch),
		})
	}

	return errs
}

func (v *Validator) validateBankTransfer(bt *payment.BankTransferDetails) []internal.ValidationError {
	var errs []internal.ValidationError

	if !validation.AllDigits(bt.AccountNumber, 8) {
		errs = append(errs, internal.ValidationError{
			Field:   "bank_transfer.account_number",
			Message: "account number must be at least 8 digits",
			Code:    string(internal.ErrCodeInvalidBankAccount),
		})
	}
	if strings.TrimSpace(bt.RoutingNumber) == "" {
		errs = append(errs, internal.ValidationError{
			Field:   "bank_transfer.routing_number",
			Message: "routing or branch code is required",
			Code:    string(internal.ErrCodeInvalidBankAccount),
		})
	}
	if strings.TrimSpace(bt.BankName) == "" {
		errs = append(errs, internal.ValidationError{
			Field:   "bank_transfer.bank_name",
			Message: "bank name is required",
			Code:    string(internal.ErrCodeValidationFailed),
		})
	}
	if strings.TrimSpace(bt.AccountHolderName) == "" {
		errs = append(errs, internal.ValidationError{
			Field:   "bank_transfer.account_holder_name",
			Message: "account holder name is required",
			Code:    string(internal.ErrCodeValidationFailed),
		})
	}

	return errs
}

func (v *Validator) validateWallet(w *payment.DigitalWalletDetails) []internal.ValidationError {
	var errs []internal.ValidationError

	if strings.TrimSpace(w.WalletID) == "" {
		errs = append(errs, internal.ValidationError{
			Field:   "digital_wallet.wallet_id",
			Message: "wallet id is required",
			Code:    string(internal.ErrCodeInvalidWalletID),
		})
	}

	return errs
}

func (v *Validator) validateBilling(billing payment.BillingAddress) []internal.ValidationError {
	var errs []internal.ValidationError

	if strings.TrimSpace(billing.Street) == "" {
		errs = append(errs, internal.ValidationError{
			Field:   "billing_address.street",
			Message: "street is required",
			Code:    string(internal.ErrCodeInvalidBillingField),
		})
	}
	if strings.TrimSpace(billing.City) == "" {
		errs = append(errs, internal.ValidationError{
			Field:   "billing_address.city",
			Message: "city is required",
			Code:    string(internal.ErrCodeInvalidBillingField),
		})
	}
	if strings.TrimSpace(billing.PostalCode) == "" {
		errs = append(errs, internal.ValidationError{
			Field:   "billing_address.postal_code",
			Message: "postal code is required",
			Code:    string(internal.ErrCodeInvalidBillingField),
		})
	}
	if !payment.IsSADCCountry(billing.Country) {
		errs = append(errs, internal.ValidationError{
			Field:   "billing_address.country",
			Message: "country must be a SADC member code",
			Code:    string(internal.ErrCodeInvalidCountry),
		})
	}

	return errs
}
