package catalog_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/catalog"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
)

func TestCatalog(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Catalog Suite")
}

func method(id, methodType, provider, currency string, countries []string, min, max string, enabled bool) internal.PaymentMethodConfig {
	return internal.PaymentMethodConfig{
		ID:                 id,
		Type:               methodType,
		Provider:           provider,
		Name:               id,
		Currency:           currency,
		SupportedCountries: countries,
		MinAmount:          min,
		MaxAmount:          max,
		Enabled:            enabled,
	}
}

func ids(methods []payment.PaymentMethod) []string {
	out := make([]string, 0, len(methods))
	for _, m := range methods {
		out = append(out, m.ID)
	}
	return out
}

var _ = Describe("Catalog", func() {
	var cat *catalog.Catalog

	BeforeEach(func() {
		var err error
		cat, err = catalog.NewCatalog(internal.CatalogConfig{
			Methods: []internal.PaymentMethodConfig{
				method("ecocash_zw", "mobile_money", payment.ProviderEcoCash, "USD", []string{"ZW"}, "1", "5000", true),
				method("visa_zw", "card", payment.ProviderPaynow, "usd", []string{"zw", "ZA"}, "1", "50000", true),
				method("telecash_zw", "mobile_money", payment.ProviderTelecash, "USD", []string{"ZW"}, "1", "5000", false),
				method("eft_za", "bank_transfer", payment.ProviderFNB, "ZAR", []string{"ZA"}, "50", "0", true),
				method("mpesa_tz", "mobile_money", payment.ProviderMPesa, "TZS", []string{"TZ"}, "1000", "10000000", true),
			},
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("ListMethods", func() {
		It("returns matching methods in declaration order", func() {
			methods := cat.ListMethods("ZW", decimal.RequireFromString("320.00"), "USD")
			Expect(ids(methods)).To(Equal([]string{"ecocash_zw", "visa_zw"}))
		})

		It("excludes disabled methods even when every filter matches", func() {
			methods := cat.ListMethods("ZW", decimal.RequireFromString("100.00"), "USD")
			Expect(ids(methods)).NotTo(ContainElement("telecash_zw"))
		})

		It("filters by the amount band", func() {
			over := cat.ListMethods("ZW", decimal.RequireFromString("10000.00"), "USD")
			Expect(ids(over)).To(Equal([]string{"visa_zw"}))

			atCap := cat.ListMethods("ZW", decimal.RequireFromString("5000.00"), "USD")
			Expect(ids(atCap)).To(Equal([]string{"ecocash_zw", "visa_zw"}))
		})

		It("treats a zero max amount as unbounded", func() {
			methods := cat.ListMethods("ZA", decimal.RequireFromString("9999999.00"), "ZAR")
			Expect(ids(methods)).To(Equal([]string{"eft_za"}))
		})

		It("matches country and currency case-insensitively", func() {
			methods := cat.ListMethods("zw", decimal.RequireFromString("320.00"), "usd")
			Expect(ids(methods)).To(Equal([]string{"ecocash_zw", "visa_zw"}))
		})

		It("returns an empty slice when nothing matches", func() {
			methods := cat.ListMethods("MU", decimal.RequireFromString("320.00"), "USD")
			Expect(methods).To(BeEmpty())
		})
	})

	Describe("GetByID", func() {
		It("returns declared methods regardless of enablement", func() {
			m, err := cat.GetByID("telecash_zw")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Enabled).To(BeFalse())
		})

		It("reports unknown ids as not available", func() {
			_, err := cat.GetByID("ghost")
			appErr, ok := err.(*internal.AppError)
			Expect(ok).To(BeTrue())
			Expect(appErr.Code).To(Equal(internal.ErrCodeMethodNotAvailable))
		})
	})

	Describe("GetAvailable", func() {
		It("resolves an enabled method inside its band", func() {
			m, err := cat.GetAvailable("visa_zw", "ZW", decimal.RequireFromString("320.00"), "USD")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.ID).To(Equal("visa_zw"))
		})

		It("rejects a disabled method", func() {
			_, err := cat.GetAvailable("telecash_zw", "ZW", decimal.RequireFromString("100.00"), "USD")
			Expect(err).To(Equal(internal.ErrMethodDisabled))
		})

		It("rejects an unsupported country", func() {
			_, err := cat.GetAvailable("ecocash_zw", "ZA", decimal.RequireFromString("100.00"), "USD")
			Expect(err).To(Equal(internal.ErrMethodNotAvailable))
		})

		It("rejects an amount outside the band", func() {
			_, err := cat.GetAvailable("ecocash_zw", "ZW", decimal.RequireFromString("5000.01"), "USD")
			Expect(err).To(Equal(internal.ErrMethodNotAvailable))
		})
	})

	Describe("NewCatalog", func() {
		It("rejects an empty catalog", func() {
			_, err := catalog.NewCatalog(internal.CatalogConfig{})
			Expect(err).To(HaveOccurred())
		})

		It("rejects duplicate method ids", func() {
			_, err := catalog.NewCatalog(internal.CatalogConfig{
				Methods: []internal.PaymentMethodConfig{
					method("visa_zw", "card", payment.ProviderPaynow, "USD", []string{"ZW"}, "1", "0", true),
					method("visa_zw", "card", payment.ProviderStripe, "USD", []string{"ZW"}, "1", "0", true),
				},
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("declared twice"))
		})

		It("rejects unknown method types", func() {
			_, err := catalog.NewCatalog(internal.CatalogConfig{
				Methods: []internal.PaymentMethodConfig{
					method("crypto_zw", "crypto", "chain", "USD", []string{"ZW"}, "1", "0", true),
				},
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown method type"))
		})

		It("rejects countries outside the region", func() {
			_, err := catalog.NewCatalog(internal.CatalogConfig{
				Methods: []internal.PaymentMethodConfig{
					method("visa_us", "card", payment.ProviderStripe, "USD", []string{"US"}, "1", "0", true),
				},
			})
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("not a SADC member"))
		})

		It("rejects malformed amount bounds", func() {
			_, err := catalog.NewCatalog(internal.CatalogConfig{
				Methods: []internal.PaymentMethodConfig{
					method("visa_zw", "card", payment.ProviderPaynow, "USD", []string{"ZW"}, "lots", "0", true),
				},
			})
			Expect(err).To(HaveOccurred())
		})

		It("normalizes currency and country codes to upper case", func() {
			m, err := cat.GetByID("visa_zw")
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Currency).To(Equal("USD"))
			Expect(m.SupportedCountries).To(Equal([]string{"ZW", "ZA"}))
		})
	})

	Describe("All", func() {
		It("returns every declaration including disabled ones, in order", func() {
			Expect(ids(cat.All())).To(Equal([]string{
				"ecocash_zw", "visa_zw", "telecash_zw", "eft_za", "mpesa_tz",
			}))
		})
	})
})
