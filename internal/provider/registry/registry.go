// Package registry wires the gateway adapters into a provider.Factory.
package registry

import (
	"fmt"

	"payment-service/internal/model"
	"payment-service/internal/provider"
	"payment-service/internal/provider/midtrans"
	"payment-service/internal/provider/sandbox"
	"payment-service/internal/provider/stripe"
)

func New(name model.Provider) (provider.Provider, error) {
	switch name {
	case model.ProviderStripe:
		return stripe.New(), nil
	case model.ProviderMidtrans:
		return midtrans.New(), nil
	case model.ProviderSandbox:
		return sandbox.New(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

var _ provider.Factory = New
