package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Sides identifies whether a print job is printed on one or both faces.
type Sides string

const (
	// SidesSingle prints the front face only.
	SidesSingle Sides = "single"
	// SidesDouble prints front and back.
	SidesDouble Sides = "double"
)

// Valid reports whether the value is one of the supported side options.
func (s Sides) Valid() bool {
	return s == SidesSingle || s == SidesDouble
}

// SpeedCategory selects the turnaround column used for the multiplier lookup.
type SpeedCategory string

const (
	SpeedEconomy   SpeedCategory = "economy"
	SpeedFast      SpeedCategory = "fast"
	SpeedFaster    SpeedCategory = "faster"
	SpeedCrazyFast SpeedCategory = "crazy_fast"
)

// SpeedCategories lists every turnaround column in slowest-first order.
var SpeedCategories = []SpeedCategory{SpeedEconomy, SpeedFast, SpeedFaster, SpeedCrazyFast}

// ParseSpeedCategory normalises user input such as "crazyFast" or "Crazy-Fast".
func ParseSpeedCategory(raw string) (SpeedCategory, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	for _, c := range SpeedCategories {
		if strings.ReplaceAll(string(c), "_", "") == key {
			return c, true
		}
	}
	return "", false
}

// ProductConfiguration is the customer's print job as submitted for pricing.
type ProductConfiguration struct {
	PaperStockID string
	WidthIn      decimal.Decimal
	HeightIn     decimal.Decimal
	Quantity     int
	Sides        Sides
	Speed        SpeedCategory
}

// Area returns the printable area in square inches.
func (c ProductConfiguration) Area() decimal.Decimal {
	return c.WidthIn.Mul(c.HeightIn)
}

// PaperStock describes the base material costing inputs for a stock.
type PaperStock struct {
	ID              string
	Name            string
	PricePerSqIn    decimal.Decimal
	Markup          decimal.Decimal
	SingleSided     decimal.Decimal
	DoubleSided     decimal.Decimal
	WeightPerSqInLb decimal.Decimal
	Active          bool
}

// SidesMultiplier returns the configured multiplier for the requested sides.
func (p PaperStock) SidesMultiplier(s Sides) decimal.Decimal {
	if s == SidesDouble {
		return p.DoubleSided
	}
	return p.SingleSided
}

// TurnaroundTier holds the per-speed multipliers for one quantity breakpoint.
type TurnaroundTier struct {
	Quantity    int
	Multipliers map[SpeedCategory]decimal.Decimal
}

// TurnaroundTable is the multiplier grid for a single paper stock.
type TurnaroundTable struct {
	PaperStockID string
	Tiers        []TurnaroundTier
}

// AddOnSelection is one add-on chosen by the customer with its raw sub-option values.
type AddOnSelection struct {
	AddOnID    string
	SubOptions map[string]string
}

// AddOnLineItem is the rounded cost contributed by one selected add-on.
type AddOnLineItem struct {
	AddOnID string
	Name    string
	Cost    decimal.Decimal
}

// PriceBreakdown is the itemised result of pricing a product configuration.
//
// Subtotal is MarkedUpCost multiplied by TurnaroundMultiplier, rounded to cents.
// TotalPrice is always Subtotal plus AddOnsCost.
type PriceBreakdown struct {
	BaseCost             decimal.Decimal
	MarkedUpCost         decimal.Decimal
	TurnaroundMultiplier decimal.Decimal
	Subtotal             decimal.Decimal
	AddOnsCost           decimal.Decimal
	AddOnLineItems       []AddOnLineItem
	TotalPrice           decimal.Decimal
}

// PricingCatalog is a complete snapshot of the data pricing depends on.
type PricingCatalog struct {
	PaperStocks      []PaperStock
	AddOns           []AddOn
	TurnaroundTables []TurnaroundTable
}
