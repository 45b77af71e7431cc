package services

import (
	"context"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

// PricingService computes price breakdowns against the active catalog.
type PricingService interface {
	Quote(ctx context.Context, config domain.ProductConfiguration, selections []domain.AddOnSelection) (domain.PriceBreakdown, error)
	PaperStock(id string) (domain.PaperStock, error)
	PaperStocks() []domain.PaperStock
	AddOns() []domain.AddOn
}

// ShippingQuoteService rates a shipment across carriers.
type ShippingQuoteService interface {
	QuoteShipping(ctx context.Context, req ShippingQuoteRequest) (ShippingQuote, error)
}

// QuotationService is the façade consumed by checkout and the HTTP layer.
type QuotationService interface {
	Quote(ctx context.Context, cmd QuoteCommand) (QuoteResult, error)
	PriceQuote(ctx context.Context, config domain.ProductConfiguration, addOns []domain.AddOnSelection) (QuoteResult, error)
	ShippingQuote(ctx context.Context, destination domain.ShippingAddress, items []ShipmentItem, carrierHint string) (QuoteResult, error)
}

var (
	_ PricingService       = (*PricingCalculator)(nil)
	_ ShippingQuoteService = (*ShippingAggregator)(nil)
	_ QuotationService     = (*QuotationEngine)(nil)
)
