package provider

import (
	"fmt"
	"sync"

	"github.com/tnyamukapa/rentpay/internal/core/datamodel/payment"
)

// Registry routes a payment method to the adapter for its family. Card
// traffic goes to the card gateway, mobile money to the aggregator, bank
// transfer and cash deposit to the bank rails, wallets to the wallet
// gateway. Registration happens once at startup; lookups are concurrent.
type Registry struct {
	mu       sync.RWMutex
	families map[payment.MethodType]Adapter
}

func NewRegistry() *Registry {
	return &Registry{families: make(map[payment.MethodType]Adapter)}
}

func (r *Registry) Register(family payment.MethodType, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[family] = adapter
}

func (r *Registry) ForMethod(method payment.PaymentMethod) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	family := method.Type
	if family == payment.MethodTypeCashDeposit {
		// cash deposits ride the bank rails: the provider issues a
		// deposit reference and confirms on teller settlement
		family = payment.MethodTypeBankTransfer
	}

	adapter, ok := r.families[family]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for method family %s", family)
	}
	return adapter, nil
}
