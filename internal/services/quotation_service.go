package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/platform/requestctx"
)

// ShipmentItem is one line of a shipment expressed as count and unit weight.
type ShipmentItem struct {
	Quantity      int
	WeightPerItem float64
}

// QuoteCommand is a combined pricing and shipping request. Either half may be omitted.
type QuoteCommand struct {
	Configuration *domain.ProductConfiguration
	AddOns        []domain.AddOnSelection
	Destination   *domain.ShippingAddress
	Items         []ShipmentItem
	CarrierHint   string
}

// QuoteResult is the façade response. Price and Shipping are nil when not requested.
type QuoteResult struct {
	ID       string
	IssuedAt time.Time
	Price    *domain.PriceBreakdown
	Shipping *ShippingQuote
}

// QuotationEngine combines pricing and shipping into one request/response cycle.
type QuotationEngine struct {
	pricing  PricingService
	shipping ShippingQuoteService
	now      func() time.Time
	entropy  io.Reader
	logger   func(context.Context, string, map[string]any)
}

// QuotationEngineDeps wires the façade.
type QuotationEngineDeps struct {
	Pricing  PricingService
	Shipping ShippingQuoteService
	Now      func() time.Time
	Entropy  io.Reader
	Logger   func(context.Context, string, map[string]any)
}

// NewQuotationEngine validates dependencies.
func NewQuotationEngine(deps QuotationEngineDeps) (*QuotationEngine, error) {
	if deps.Pricing == nil {
		return nil, errors.New("quotation engine: pricing service is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("quotation engine: shipping service is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	entropy := deps.Entropy
	if entropy == nil {
		entropy = ulid.DefaultEntropy()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &QuotationEngine{
		pricing:  deps.Pricing,
		shipping: deps.Shipping,
		now:      func() time.Time { return now().UTC() },
		entropy:  entropy,
		logger:   logger,
	}, nil
}

// Quote prices the configuration first and fails on any pricing error. Shipping
// runs afterwards and only fails on invalid shipment input.
func (e *QuotationEngine) Quote(ctx context.Context, cmd QuoteCommand) (QuoteResult, error) {
	if cmd.Configuration == nil && cmd.Destination == nil {
		return QuoteResult{}, fmt.Errorf("%w: a product configuration or destination is required", ErrPricingInvalidInput)
	}
	result := e.newResult()
	ctx = requestctx.WithQuoteID(ctx, result.ID)

	if cmd.Configuration != nil {
		price, err := e.pricing.Quote(ctx, *cmd.Configuration, cmd.AddOns)
		if err != nil {
			return QuoteResult{}, err
		}
		result.Price = &price
	}

	if cmd.Destination != nil {
		weight, err := e.shipmentWeight(cmd)
		if err != nil {
			return QuoteResult{}, err
		}
		quote, err := e.shipping.QuoteShipping(ctx, ShippingQuoteRequest{
			Destination:    *cmd.Destination,
			TotalWeightLbs: weight,
			CarrierHint:    cmd.CarrierHint,
		})
		if err != nil {
			return QuoteResult{}, err
		}
		result.Shipping = &quote
	}

	e.logger(ctx, "quote.issued", quoteLogFields(result))
	return result, nil
}

// PriceQuote prices a configuration without shipping.
func (e *QuotationEngine) PriceQuote(ctx context.Context, config domain.ProductConfiguration, addOns []domain.AddOnSelection) (QuoteResult, error) {
	return e.Quote(ctx, QuoteCommand{Configuration: &config, AddOns: addOns})
}

// ShippingQuote rates a list of items to a destination without pricing.
func (e *QuotationEngine) ShippingQuote(ctx context.Context, destination domain.ShippingAddress, items []ShipmentItem, carrierHint string) (QuoteResult, error) {
	if len(items) == 0 {
		return QuoteResult{}, fmt.Errorf("%w: at least one item is required", ErrShippingInvalidInput)
	}
	return e.Quote(ctx, QuoteCommand{Destination: &destination, Items: items, CarrierHint: carrierHint})
}

// shipmentWeight sums item weights, or derives the weight from the configured
// paper stock when no items are given.
func (e *QuotationEngine) shipmentWeight(cmd QuoteCommand) (float64, error) {
	if len(cmd.Items) > 0 {
		total := 0.0
		for i, item := range cmd.Items {
			if item.Quantity <= 0 || item.WeightPerItem <= 0 {
				return 0, fmt.Errorf("%w: item %d needs positive quantity and weight", ErrShippingInvalidInput, i)
			}
			total += float64(item.Quantity) * item.WeightPerItem
		}
		return total, nil
	}
	if cmd.Configuration == nil {
		return 0, fmt.Errorf("%w: items or a product configuration are required to weigh the shipment", ErrShippingInvalidInput)
	}
	stock, err := e.pricing.PaperStock(cmd.Configuration.PaperStockID)
	if err != nil {
		return 0, err
	}
	if !stock.WeightPerSqInLb.IsPositive() {
		return 0, fmt.Errorf("%w: paper stock %q has no weight", ErrShippingInvalidInput, stock.ID)
	}
	weight := stock.WeightPerSqInLb.
		Mul(cmd.Configuration.Area()).
		Mul(decimal.NewFromInt(int64(cmd.Configuration.Quantity))).
		InexactFloat64()
	return weight, nil
}

func (e *QuotationEngine) newResult() QuoteResult {
	issued := e.now()
	id := ulid.MustNew(ulid.Timestamp(issued), e.entropy)
	return QuoteResult{ID: id.String(), IssuedAt: issued}
}

func quoteLogFields(r QuoteResult) map[string]any {
	fields := map[string]any{"quoteId": r.ID}
	if r.Price != nil {
		fields["totalPrice"] = r.Price.TotalPrice.StringFixed(2)
	}
	if r.Shipping != nil {
		fields["rates"] = len(r.Shipping.Rates)
		fields["packages"] = r.Shipping.PackageCount
		fields["shippingTimedOut"] = r.Shipping.TimedOut
	}
	return fields
}
