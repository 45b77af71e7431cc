package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/repositories"
)

var (
	// ErrPricingInvalidInput signals a malformed product configuration.
	ErrPricingInvalidInput = errors.New("pricing: invalid input")
	// ErrPricingNotFound is returned for unknown paper stocks, add-ons or turnaround rows.
	ErrPricingNotFound = errors.New("pricing: not found")
	// ErrInvalidSubOption reports a missing or out-of-domain add-on sub-option.
	ErrInvalidSubOption = errors.New("pricing: invalid sub-option")
	// ErrUnknownPricingFamily marks an add-on whose rule the evaluator cannot price.
	// It indicates broken catalog data rather than bad customer input.
	ErrUnknownPricingFamily = errors.New("pricing: unknown pricing family")
	// ErrPricingCatalogUnavailable is returned when no catalog snapshot has been loaded.
	ErrPricingCatalogUnavailable = errors.New("pricing: catalog unavailable")
)

// PricingCalculator turns a product configuration and add-on selections into a PriceBreakdown.
type PricingCalculator struct {
	source    repositories.CatalogRepository
	evaluator *AddOnRuleEvaluator
	snapshot  atomic.Pointer[pricingSnapshot]
	loadedAt  atomic.Pointer[time.Time]
	now       func() time.Time
	logger    func(context.Context, string, map[string]any)
}

// PricingCalculatorDeps wires the calculator's collaborators.
type PricingCalculatorDeps struct {
	Catalog   repositories.CatalogRepository
	Evaluator *AddOnRuleEvaluator
	Now       func() time.Time
	Logger    func(context.Context, string, map[string]any)
}

// NewPricingCalculator validates dependencies and loads the initial catalog snapshot.
func NewPricingCalculator(ctx context.Context, deps PricingCalculatorDeps) (*PricingCalculator, error) {
	if deps.Catalog == nil {
		return nil, errors.New("pricing calculator: catalog repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	evaluator := deps.Evaluator
	if evaluator == nil {
		evaluator = NewAddOnRuleEvaluator(logger)
	}

	calc := &PricingCalculator{
		source:    deps.Catalog,
		evaluator: evaluator,
		now:       func() time.Time { return now().UTC() },
		logger:    logger,
	}
	if err := calc.Refresh(ctx); err != nil {
		return nil, err
	}
	return calc, nil
}

// Refresh reloads the catalog and atomically swaps the active snapshot. On failure
// the previous snapshot stays in place.
func (c *PricingCalculator) Refresh(ctx context.Context) error {
	catalog, err := c.source.LoadPricingCatalog(ctx)
	if err != nil {
		return fmt.Errorf("pricing calculator: load catalog: %w", err)
	}
	snap, err := compilePricingCatalog(catalog)
	if err != nil {
		return fmt.Errorf("pricing calculator: compile catalog: %w", err)
	}
	c.snapshot.Store(snap)
	loaded := c.now()
	c.loadedAt.Store(&loaded)
	c.logger(ctx, "pricing.catalog.loaded", map[string]any{
		"paperStocks": len(snap.stocks),
		"addOns":      len(snap.addOns),
	})
	return nil
}

// StartRefresh reloads the catalog every interval until ctx is cancelled.
func (c *PricingCalculator) StartRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := c.Refresh(ctx); err != nil {
					c.logger(ctx, "pricing.catalog.refresh_failed", map[string]any{"error": err.Error()})
				}
			}
		}
	}()
}

// LoadedAt reports when the active snapshot was installed.
func (c *PricingCalculator) LoadedAt() time.Time {
	if t := c.loadedAt.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// Quote prices the configuration. Markup is applied to the base cost before the
// turnaround multiplier; each add-on line is rounded to cents before summing.
func (c *PricingCalculator) Quote(ctx context.Context, config domain.ProductConfiguration, selections []domain.AddOnSelection) (domain.PriceBreakdown, error) {
	snap := c.snapshot.Load()
	if snap == nil {
		return domain.PriceBreakdown{}, ErrPricingCatalogUnavailable
	}
	if err := validateConfiguration(config); err != nil {
		return domain.PriceBreakdown{}, err
	}

	stock, err := snap.paperStock(config.PaperStockID)
	if err != nil {
		return domain.PriceBreakdown{}, err
	}
	multiplier, err := snap.turnaround.Lookup(stock.ID, config.Quantity, config.Speed)
	if err != nil {
		return domain.PriceBreakdown{}, err
	}

	qty := decimal.NewFromInt(int64(config.Quantity))
	baseCost := stock.PricePerSqIn.
		Mul(stock.SidesMultiplier(config.Sides)).
		Mul(config.Area()).
		Mul(qty)
	markedUp := baseCost.Mul(stock.Markup)
	subtotal := roundCents(markedUp.Mul(multiplier))

	input := PricingInput{
		Quantity:     config.Quantity,
		Sides:        config.Sides,
		EligibleBase: markedUp,
	}

	seen := make(map[string]struct{}, len(selections))
	lines := make([]domain.AddOnLineItem, 0, len(selections))
	addOnsCost := decimal.Zero
	for _, sel := range selections {
		id := strings.TrimSpace(sel.AddOnID)
		if id == "" {
			return domain.PriceBreakdown{}, fmt.Errorf("%w: add-on id is required", ErrInvalidSubOption)
		}
		if _, dup := seen[id]; dup {
			return domain.PriceBreakdown{}, fmt.Errorf("%w: add-on %q selected more than once", ErrInvalidSubOption, id)
		}
		seen[id] = struct{}{}

		addOn, err := snap.addOn(id)
		if err != nil {
			return domain.PriceBreakdown{}, err
		}
		cost, err := c.evaluator.Cost(ctx, addOn, sel.SubOptions, input)
		if err != nil {
			return domain.PriceBreakdown{}, err
		}
		cost = roundCents(cost)
		lines = append(lines, domain.AddOnLineItem{AddOnID: addOn.ID, Name: addOn.Name, Cost: cost})
		addOnsCost = addOnsCost.Add(cost)
	}

	return domain.PriceBreakdown{
		BaseCost:             roundCents(baseCost),
		MarkedUpCost:         roundCents(markedUp),
		TurnaroundMultiplier: multiplier,
		Subtotal:             subtotal,
		AddOnsCost:           addOnsCost,
		AddOnLineItems:       lines,
		TotalPrice:           subtotal.Add(addOnsCost),
	}, nil
}

// PaperStock returns an active paper stock from the current snapshot.
func (c *PricingCalculator) PaperStock(id string) (domain.PaperStock, error) {
	snap := c.snapshot.Load()
	if snap == nil {
		return domain.PaperStock{}, ErrPricingCatalogUnavailable
	}
	return snap.paperStock(id)
}

// PaperStocks lists active paper stocks ordered by name.
func (c *PricingCalculator) PaperStocks() []domain.PaperStock {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil
	}
	return append([]domain.PaperStock(nil), snap.stockList...)
}

// AddOns lists active add-ons in display order.
func (c *PricingCalculator) AddOns() []domain.AddOn {
	snap := c.snapshot.Load()
	if snap == nil {
		return nil
	}
	return append([]domain.AddOn(nil), snap.addOnList...)
}

func validateConfiguration(config domain.ProductConfiguration) error {
	switch {
	case strings.TrimSpace(config.PaperStockID) == "":
		return fmt.Errorf("%w: paper stock id is required", ErrPricingInvalidInput)
	case config.Quantity <= 0:
		return fmt.Errorf("%w: quantity must be positive", ErrPricingInvalidInput)
	case !config.WidthIn.IsPositive() || !config.HeightIn.IsPositive():
		return fmt.Errorf("%w: width and height must be positive", ErrPricingInvalidInput)
	case !config.Sides.Valid():
		return fmt.Errorf("%w: unsupported sides %q", ErrPricingInvalidInput, config.Sides)
	}
	for _, speed := range domain.SpeedCategories {
		if config.Speed == speed {
			return nil
		}
	}
	return fmt.Errorf("%w: unsupported speed %q", ErrPricingInvalidInput, config.Speed)
}

func roundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
