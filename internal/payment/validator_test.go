package payment_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
	paymentPkg "github.com/tnyamukapa/rentpay/internal/payment"
)

func methodOf(typ payment.MethodType, provider string) payment.PaymentMethod {
	return payment.PaymentMethod{
		ID:       "m_" + string(typ),
		Type:     typ,
		Provider: provider,
		Name:     "fixture",
		Currency: "USD",
		Enabled:  true,
	}
}

func mobileDetails(phone, provider string) payment.PaymentDetails {
	return payment.PaymentDetails{MobileMoney: &payment.MobileMoneyDetails{
		PhoneNumber: phone,
		Provider:    provider,
	}}
}

// fieldErrors flattens the AppError details into field -> code for
// assertions that do not care about ordering.
func fieldErrors(appErr *internal.AppError) map[string]string {
	out := map[string]string{}
	if appErr == nil {
		return out
	}
	details, ok := appErr.Details.(internal.ValidationErrors)
	if !ok {
		return out
	}
	for _, e := range details.Errors {
		out[e.Field] = e.Code
	}
	return out
}

var _ = Describe("Validator", func() {
	var v *paymentPkg.Validator

	BeforeEach(func() {
		v = paymentPkg.NewValidator()
	})

	Describe("instrument and method agreement", func() {
		It("accepts details matching the method family", func() {
			err := v.ValidateDetails(methodOf(payment.MethodTypeCard, payment.ProviderPaynow), validCard(), zimBilling())
			Expect(err).To(BeNil())
		})

		It("rejects details from a different family", func() {
			err := v.ValidateDetails(methodOf(payment.MethodTypeMobileMoney, payment.ProviderEcoCash), validCard(), zimBilling())
			Expect(err).NotTo(BeNil())
			Expect(err.Code).To(Equal(internal.ErrCodeValidationFailed))
			Expect(fieldErrors(err)).To(HaveKeyWithValue("payment_details", string(internal.ErrCodeUnsupportedMethod)))
		})

		It("lets cash deposit methods take bank transfer details", func() {
			details := payment.PaymentDetails{BankTransfer: &payment.BankTransferDetails{
				AccountNumber:     "12345678901",
				RoutingNumber:     "06-123",
				BankName:          "Stanbic",
				AccountHolderName: "T Nyamukapa",
			}}
			err := v.ValidateDetails(methodOf(payment.MethodTypeCashDeposit, payment.ProviderStanbic), details, zimBilling())
			Expect(err).To(BeNil())
		})

		It("rejects empty details", func() {
			err := v.ValidateDetails(methodOf(payment.MethodTypeCard, payment.ProviderPaynow), payment.PaymentDetails{}, zimBilling())
			Expect(err).NotTo(BeNil())
			Expect(fieldErrors(err)).To(HaveKey("payment_details"))
		})

		It("rejects two populated instrument blocks", func() {
			details := validCard()
			details.MobileMoney = &payment.MobileMoneyDetails{PhoneNumber: "+263771234567", Provider: payment.ProviderEcoCash}
			err := v.ValidateDetails(methodOf(payment.MethodTypeCard, payment.ProviderPaynow), details, zimBilling())
			Expect(err).NotTo(BeNil())
			Expect(fieldErrors(err)).To(HaveKey("payment_details"))
		})
	})

	Describe("card details", func() {
		It("normalizes spaces and hyphens before checking", func() {
			err := v.ValidateDetails(methodOf(payment.MethodTypeCard, payment.ProviderPaynow), cardNumbered("4242 4242-4242 4242"), zimBilling())
			Expect(err).To(BeNil())
		})

		It("flags a short number as a format problem", func() {
			err := v.ValidateDetails(methodOf(payment.MethodTypeCard, payment.ProviderPaynow), cardNumbered("424242424242"), zimBilling())
			Expect(fieldErrors(err)).To(HaveKeyWithValue("card.number", string(internal.ErrCodeInvalidCardNumber)))
		})

		It("flags a checksum failure on a well formed number", func() {
			err := v.ValidateDetails(methodOf(payment.MethodTypeCard, payment.ProviderPaynow), cardNumbered("4242424242424241"), zimBilling())
			Expect(fieldErrors(err)).To(HaveKeyWithValue("card.number", string(internal.ErrCodeInvalidCardNumber)))
		})

		It("flags an expired card", func() {
			details := validCard()
			details.Card.ExpiryYear = time.Now().Year() - 1
			err := v.ValidateDetails(methodOf(payment.MethodTypeCard, payment.ProviderPaynow), details, zimBilling())
			Expect(fieldErrors(err)).To(HaveKeyWithValue("card.expiry", string(internal.ErrCodeCardExpired)))
		})

		It("collects every broken field in one pass", func() {
			details := payment.PaymentDetails{Card: &payment.CardDetails{
				Number:      "4242424242424241",
				ExpiryMonth: 1,
				ExpiryYear:  time.Now().Year() - 2,
				CVV:         "12",
			}}
			err := v.ValidateDetails(methodOf(payment.MethodTypeCard, payment.ProviderPaynow), details, zimBilling())
			fields := fieldErrors(err)
			Expect(fields).To(HaveKeyWithValue("card.number", string(internal.ErrCodeInvalidCardNumber)))
			Expect(fields).To(HaveKeyWithValue("card.expiry", string(internal.ErrCodeCardExpired)))
			Expect(fields).To(HaveKeyWithValue("card.cvv", string(internal.ErrCodeInvalidCVV)))
			Expect(fields).To(HaveKey("card.cardholder_name"))
		})
	})

	Describe("mobile money carrier ranges", func() {
		accepts := func(provider string, phones ...string) {
			for _, phone := range phones {
				err := v.ValidateDetails(methodOf(payment.MethodTypeMobileMoney, provider), mobileDetails(phone, provider), zimBilling())
				Expect(err).To(BeNil(), "expected %s to accept %s", provider, phone)
			}
		}
		rejects := func(provider string, phones ...string) {
			for _, phone := range phones {
				err := v.ValidateDetails(methodOf(payment.MethodTypeMobileMoney, provider), mobileDetails(phone, provider), zimBilling())
				Expect(fieldErrors(err)).To(
					HaveKeyWithValue("mobile_money.phone_number", string(internal.ErrCodeCarrierMismatch)),
					"expected %s to reject %s", provider, phone)
			}
		}

		It("maps Econet prefixes to ecocash", func() {
			accepts(payment.ProviderEcoCash, "+263771234567", "+263781234567")
			rejects(payment.ProviderEcoCash, "+263712345678", "+263731234567")
		})

		It("maps NetOne's 71 range to onemoney", func() {
			accepts(payment.ProviderOneMoney, "+263712345678")
			rejects(payment.ProviderOneMoney, "+263771234567")
		})

		It("maps Telecel's 73 range to telecash", func() {
			accepts(payment.ProviderTelecash, "+263731234567")
			rejects(payment.ProviderTelecash, "+263781234567")
		})

		It("covers both M-Pesa markets", func() {
			accepts(payment.ProviderMPesa,
				"+255741234567", "+255751234567", "+255761234567",
				"+258841234567", "+258851234567")
			rejects(payment.ProviderMPesa, "+255771234567", "+258711234567")
		})

		It("separates the Zambian networks", func() {
			accepts(payment.ProviderMTNMoMo, "+260761234567", "+260961234567")
			accepts(payment.ProviderAirtelMoney, "+260771234567", "+260971234567")
			rejects(payment.ProviderMTNMoMo, "+260771234567")
			rejects(payment.ProviderAirtelMoney, "+260761234567")
		})

		It("lets an aggregator take any local subscriber", func() {
			accepts(payment.ProviderPaynow, "+263771234567", "+263712345678", "+263731234567")
			rejects(payment.ProviderPaynow, "+255741234567")
		})

		It("skips classification for providers without a range table", func() {
			accepts(payment.ProviderFlutterwave, "+27821234567", "+263771234567")
		})

		It("names the owning network in the mismatch message", func() {
			err := v.ValidateDetails(
				methodOf(payment.MethodTypeMobileMoney, payment.ProviderOneMoney),
				mobileDetails("+263771234567", payment.ProviderOneMoney),
				zimBilling())
			details, ok := err.Details.(internal.ValidationErrors)
			Expect(ok).To(BeTrue())
			Expect(details.Errors[0].Message).To(ContainSubstring("belongs to ecocash"))
		})

		It("rejects phone numbers that are not E.164 before classifying", func() {
			err := v.ValidateDetails(
				methodOf(payment.MethodTypeMobileMoney, payment.ProviderEcoCash),
				mobileDetails("0771234567", payment.ProviderEcoCash),
				zimBilling())
			Expect(fieldErrors(err)).To(HaveKeyWithValue("mobile_money.phone_number", string(internal.ErrCodeInvalidPhoneNumber)))
		})
	})

	Describe("bank transfer details", func() {
		It("requires a numeric account number of at least 8 digits", func() {
			details := payment.PaymentDetails{BankTransfer: &payment.BankTransferDetails{
				AccountNumber:     "1234567",
				RoutingNumber:     "250655",
				BankName:          "FNB",
				AccountHolderName: "Lerato Dube",
			}}
			err := v.ValidateDetails(methodOf(payment.MethodTypeBankTransfer, payment.ProviderFNB), details, zimBilling())
			Expect(fieldErrors(err)).To(HaveKeyWithValue("bank_transfer.account_number", string(internal.ErrCodeInvalidBankAccount)))
		})

		It("requires routing code, bank name and account holder", func() {
			details := payment.PaymentDetails{BankTransfer: &payment.BankTransferDetails{
				AccountNumber: "12345678901",
			}}
			err := v.ValidateDetails(methodOf(payment.MethodTypeBankTransfer, payment.ProviderFNB), details, zimBilling())
			fields := fieldErrors(err)
			Expect(fields).To(HaveKey("bank_transfer.routing_number"))
			Expect(fields).To(HaveKey("bank_transfer.bank_name"))
			Expect(fields).To(HaveKey("bank_transfer.account_holder_name"))
		})
	})

	Describe("digital wallet details", func() {
		It("requires a wallet id", func() {
			details := payment.PaymentDetails{DigitalWallet: &payment.DigitalWalletDetails{Provider: payment.ProviderFlutterwave}}
			err := v.ValidateDetails(methodOf(payment.MethodTypeDigitalWallet, payment.ProviderFlutterwave), details, zimBilling())
			Expect(fieldErrors(err)).To(HaveKeyWithValue("digital_wallet.wallet_id", string(internal.ErrCodeInvalidWalletID)))
		})
	})

	Describe("billing address", func() {
		It("requires street, city and postal code", func() {
			err := v.ValidateDetails(methodOf(payment.MethodTypeCard, payment.ProviderPaynow), validCard(), payment.BillingAddress{Country: "ZW"})
			fields := fieldErrors(err)
			Expect(fields).To(HaveKeyWithValue("billing_address.street", string(internal.ErrCodeInvalidBillingField)))
			Expect(fields).To(HaveKeyWithValue("billing_address.city", string(internal.ErrCodeInvalidBillingField)))
			Expect(fields).To(HaveKeyWithValue("billing_address.postal_code", string(internal.ErrCodeInvalidBillingField)))
		})

		It("rejects countries outside the region", func() {
			billing := zimBilling()
			billing.Country = "US"
			err := v.ValidateDetails(methodOf(payment.MethodTypeCard, payment.ProviderPaynow), validCard(), billing)
			Expect(fieldErrors(err)).To(HaveKeyWithValue("billing_address.country", string(internal.ErrCodeInvalidCountry)))
		})

		It("treats state as optional", func() {
			billing := zimBilling()
			billing.State = ""
			err := v.ValidateDetails(methodOf(payment.MethodTypeCard, payment.ProviderPaynow), validCard(), billing)
			Expect(err).To(BeNil())
		})
	})
})
