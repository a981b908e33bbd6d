package catalog

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	internal "github.com/tnyamukapa/rentpay/internal"
	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
)

// Catalog is the immutable payment-method registry. It is built once from
// configuration at startup and shared read-only across requests; lookups
// never touch the network or the database.
type Catalog struct {
	methods []payment.PaymentMethod
	byID    map[string]int
}

func NewCatalog(cfg internal.CatalogConfig) (*Catalog, error) {
	c := &Catalog{
		methods: make([]payment.PaymentMethod, 0, len(cfg.Methods)),
		byID:    make(map[string]int, len(cfg.Methods)),
	}

	for _, mc := range cfg.Methods {
		method, err := buildMethod(mc)
		if err != nil {
			return nil, fmt.Errorf("catalog method %s: %w", mc.ID, err)
		}
		if _, exists := c.byID[method.ID]; exists {
			return nil, fmt.Errorf("catalog method %s declared twice", method.ID)
		}
		c.byID[method.ID] = len(c.methods)
		c.methods = append(c.methods, method)
	}

	if len(c.methods) == 0 {
		return nil, fmt.Errorf("catalog is empty")
	}
	return c, nil
}

func buildMethod(mc internal.PaymentMethodConfig) (payment.PaymentMethod, error) {
	methodType := payment.MethodType(mc.Type)
	if !methodType.Valid() {
		return payment.PaymentMethod{}, fmt.Errorf("unknown method type %q", mc.Type)
	}

	parse := func(name, val string) (decimal.Decimal, error) {
		if val == "" {
			return decimal.Zero, nil
		}
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid %s %q: %w", name, val, err)
		}
		return d, nil
	}

	feePercent, err := parse("processing_fee_percent", mc.ProcessingFeePercent)
	if err != nil {
		return payment.PaymentMethod{}, err
	}
	fixedFee, err := parse("fixed_fee", mc.FixedFee)
	if err != nil {
		return payment.PaymentMethod{}, err
	}
	minAmount, err := parse("min_amount", mc.MinAmount)
	if err != nil {
		return payment.PaymentMethod{}, err
	}
	maxAmount, err := parse("max_amount", mc.MaxAmount)
	if err != nil {
		return payment.PaymentMethod{}, err
	}

	countries := make([]string, 0, len(mc.SupportedCountries))
	for _, country := range mc.SupportedCountries {
		code := strings.ToUpper(strings.TrimSpace(country))
		if !payment.IsSADCCountry(code) {
			return payment.PaymentMethod{}, fmt.Errorf("country %q is not a SADC member", country)
		}
		countries = append(countries, code)
	}

	return payment.PaymentMethod{
		ID:                   mc.ID,
		Type:                 methodType,
		Provider:             mc.Provider,
		Name:                 mc.Name,
		Description:          mc.Description,
		ProcessingFeePercent: feePercent,
		FixedFee:             fixedFee,
		Currency:             strings.ToUpper(mc.Currency),
		ConvertibleWith:      mc.ConvertibleWith,
		SupportedCountries:   countries,
		MinAmount:            minAmount,
		MaxAmount:            maxAmount,
		ProcessingTimeHours:  mc.ProcessingTimeHours,
		RequiresVerification: mc.RequiresVerification,
		Enabled:              mc.Enabled,
	}, nil
}

// ListMethods returns the enabled methods available for the given country,
// amount and currency, in catalog declaration order. Declaration order is
// the contract: consumers group by type and snapshot-test against it.
func (c *Catalog) ListMethods(country string, amount decimal.Decimal, currency string) []payment.PaymentMethod {
	out := make([]payment.PaymentMethod, 0, len(c.methods))
	for _, m := range c.methods {
		if !m.Enabled {
			continue
		}
		if !m.SupportsCountry(country) {
			continue
		}
		if !m.WithinAmountBand(amount) {
			continue
		}
		if !m.AcceptsCurrency(currency) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// GetByID returns a copy of the method regardless of filters; callers that
// need availability gating use GetAvailable.
func (c *Catalog) GetByID(id string) (payment.PaymentMethod, error) {
	idx, ok := c.byID[id]
	if !ok {
		return payment.PaymentMethod{}, internal.NewNotFoundError(
			fmt.Sprintf("payment method %s not found", id), internal.ErrCodeMethodNotAvailable)
	}
	return c.methods[idx], nil
}

// GetAvailable resolves a method and enforces enablement, country support
// and the amount band for one submission.
func (c *Catalog) GetAvailable(id, country string, amount decimal.Decimal, currency string) (payment.PaymentMethod, error) {
	method, err := c.GetByID(id)
	if err != nil {
		return payment.PaymentMethod{}, err
	}
	if !method.Enabled {
		return payment.PaymentMethod{}, internal.ErrMethodDisabled
	}
	if !method.SupportsCountry(country) || !method.WithinAmountBand(amount) || !method.AcceptsCurrency(currency) {
		return payment.PaymentMethod{}, internal.ErrMethodNotAvailable
	}
	return method, nil
}

// All returns every declared method in declaration order, enabled or not.
// Used by the seeder to materialize the reporting table.
func (c *Catalog) All() []payment.PaymentMethod {
	out := make([]payment.PaymentMethod, len(c.methods))
	copy(out, c.methods)
	return out
}
