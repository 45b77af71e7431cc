package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

// RateRequest is the input handed to every carrier for one shipment.
type RateRequest struct {
	Origin      domain.ShippingAddress
	Destination domain.ShippingAddress
	Packages    []domain.Package
}

// CarrierRateProvider quotes shipping rates for one carrier. Implementations
// return errors wrapping domain.ErrCarrierUnavailable or domain.ErrInvalidAddress.
type CarrierRateProvider interface {
	Name() string
	GetRates(ctx context.Context, req RateRequest) ([]domain.Rate, error)
}

// ShippingModule pairs a provider with its feature flag.
type ShippingModule struct {
	Provider CarrierRateProvider
	Enabled  bool
}

// ShippingRegistry holds the carrier modules configured at startup.
type ShippingRegistry struct {
	modules []ShippingModule
}

// NewShippingRegistry validates the module list. Provider names must be unique.
func NewShippingRegistry(modules ...ShippingModule) (*ShippingRegistry, error) {
	seen := make(map[string]struct{}, len(modules))
	kept := make([]ShippingModule, 0, len(modules))
	for _, m := range modules {
		if m.Provider == nil {
			return nil, errors.New("shipping registry: provider is required")
		}
		name := strings.ToLower(strings.TrimSpace(m.Provider.Name()))
		if name == "" {
			return nil, errors.New("shipping registry: provider name is required")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("shipping registry: duplicate provider %q", name)
		}
		seen[name] = struct{}{}
		kept = append(kept, m)
	}
	return &ShippingRegistry{modules: kept}, nil
}

// EnabledModules returns the providers whose flag is on, in registration order.
func (r *ShippingRegistry) EnabledModules() []CarrierRateProvider {
	if r == nil {
		return nil
	}
	out := make([]CarrierRateProvider, 0, len(r.modules))
	for _, m := range r.modules {
		if m.Enabled {
			out = append(out, m.Provider)
		}
	}
	return out
}

// Names lists every registered provider with its flag.
func (r *ShippingRegistry) Names() map[string]bool {
	out := make(map[string]bool, len(r.modules))
	for _, m := range r.modules {
		out[m.Provider.Name()] = m.Enabled
	}
	return out
}
