package repositories

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

// ErrInvalidCatalogRecord reports stored catalog data that cannot be decoded.
var ErrInvalidCatalogRecord = errors.New("catalog: invalid record")

// Catalog records are the storage shape shared by the YAML seed and Firestore.
// Money and multipliers are stored as decimal strings.

// CatalogRecords is a full catalog document set.
type CatalogRecords struct {
	PaperStocks      []PaperStockRecord      `yaml:"paperStocks"`
	AddOns           []AddOnRecord           `yaml:"addOns"`
	TurnaroundTables []TurnaroundTableRecord `yaml:"turnaroundTables"`
}

type PaperStockRecord struct {
	ID               string `yaml:"id" firestore:"id"`
	Name             string `yaml:"name" firestore:"name"`
	PricePerSqIn     string `yaml:"pricePerSqIn" firestore:"pricePerSqIn"`
	Markup           string `yaml:"markup" firestore:"markup"`
	SingleSided      string `yaml:"singleSidedMultiplier" firestore:"singleSidedMultiplier"`
	DoubleSided      string `yaml:"doubleSidedMultiplier" firestore:"doubleSidedMultiplier"`
	WeightPerSqInLbs string `yaml:"weightPerSqInLbs" firestore:"weightPerSqInLbs"`
	Active           *bool  `yaml:"active" firestore:"active"`
}

type AddOnRecord struct {
	ID           string             `yaml:"id" firestore:"id"`
	Name         string             `yaml:"name" firestore:"name"`
	Description  string             `yaml:"description" firestore:"description"`
	Family       string             `yaml:"family" firestore:"family"`
	DisplayOrder int                `yaml:"displayOrder" firestore:"displayOrder"`
	Active       *bool              `yaml:"active" firestore:"active"`
	Pricing      AddOnPricingRecord `yaml:"pricing" firestore:"pricing"`
	SubOptions   []SubOptionRecord  `yaml:"subOptions" firestore:"subOptions"`
}

type AddOnPricingRecord struct {
	Price          string                `yaml:"price" firestore:"price"`
	UnitPrice      string                `yaml:"unitPrice" firestore:"unitPrice"`
	VariantOptions []string              `yaml:"variantOptions" firestore:"variantOptions"`
	Variants       map[string]string     `yaml:"variants" firestore:"variants"`
	Percent        string                `yaml:"percent" firestore:"percent"`
	OneSided       string                `yaml:"oneSided" firestore:"oneSided"`
	TwoSided       string                `yaml:"twoSided" firestore:"twoSided"`
	SidesOption    string                `yaml:"sidesOption" firestore:"sidesOption"`
	BundleSize     int                   `yaml:"bundleSize" firestore:"bundleSize"`
	PerBundlePrice string                `yaml:"perBundlePrice" firestore:"perBundlePrice"`
	SetupFee       string                `yaml:"setupFee" firestore:"setupFee"`
	PerUnitRate    string                `yaml:"perUnitRate" firestore:"perUnitRate"`
	CountOptions   []string              `yaml:"countOptions" firestore:"countOptions"`
	Selector       string                `yaml:"selector" firestore:"selector"`
	Standard       string                `yaml:"standard" firestore:"standard"`
	Standards      []NamedStandardRecord `yaml:"standards" firestore:"standards"`
}

type NamedStandardRecord struct {
	Standard    string `yaml:"standard" firestore:"standard"`
	SetupFee    string `yaml:"setupFee" firestore:"setupFee"`
	PerUnitRate string `yaml:"perUnitRate" firestore:"perUnitRate"`
}

type SubOptionRecord struct {
	Key      string   `yaml:"key" firestore:"key"`
	Label    string   `yaml:"label" firestore:"label"`
	Kind     string   `yaml:"kind" firestore:"kind"`
	Required bool     `yaml:"required" firestore:"required"`
	Choices  []string `yaml:"choices" firestore:"choices"`
	Min      int      `yaml:"min" firestore:"min"`
	Max      int      `yaml:"max" firestore:"max"`
	Default  string   `yaml:"default" firestore:"default"`
}

type TurnaroundTableRecord struct {
	PaperStockID string                 `yaml:"paperStockId" firestore:"paperStockId"`
	Tiers        []TurnaroundTierRecord `yaml:"tiers" firestore:"tiers"`
}

type TurnaroundTierRecord struct {
	Quantity  int    `yaml:"quantity" firestore:"quantity"`
	Economy   string `yaml:"economy" firestore:"economy"`
	Fast      string `yaml:"fast" firestore:"fast"`
	Faster    string `yaml:"faster" firestore:"faster"`
	CrazyFast string `yaml:"crazyFast" firestore:"crazyFast"`
}

// ToDomain decodes every record, failing on the first malformed entry.
func (c CatalogRecords) ToDomain() (domain.PricingCatalog, error) {
	var out domain.PricingCatalog
	for _, rec := range c.PaperStocks {
		stock, err := rec.ToDomain()
		if err != nil {
			return domain.PricingCatalog{}, err
		}
		out.PaperStocks = append(out.PaperStocks, stock)
	}
	for _, rec := range c.AddOns {
		addOn, err := rec.ToDomain()
		if err != nil {
			return domain.PricingCatalog{}, err
		}
		out.AddOns = append(out.AddOns, addOn)
	}
	for _, rec := range c.TurnaroundTables {
		table, err := rec.ToDomain()
		if err != nil {
			return domain.PricingCatalog{}, err
		}
		out.TurnaroundTables = append(out.TurnaroundTables, table)
	}
	return out, nil
}

func (r PaperStockRecord) ToDomain() (domain.PaperStock, error) {
	p := decimalParser{owner: "paper stock " + r.ID}
	stock := domain.PaperStock{
		ID:              strings.TrimSpace(r.ID),
		Name:            strings.TrimSpace(r.Name),
		PricePerSqIn:    p.required("pricePerSqIn", r.PricePerSqIn),
		Markup:          p.required("markup", r.Markup),
		SingleSided:     p.withDefault("singleSidedMultiplier", r.SingleSided, decimal.NewFromInt(1)),
		DoubleSided:     p.required("doubleSidedMultiplier", r.DoubleSided),
		WeightPerSqInLb: p.optional("weightPerSqInLbs", r.WeightPerSqInLbs),
		Active:          r.Active == nil || *r.Active,
	}
	return stock, p.err
}

func (r AddOnRecord) ToDomain() (domain.AddOn, error) {
	addOn := domain.AddOn{
		ID:           strings.TrimSpace(r.ID),
		Name:         strings.TrimSpace(r.Name),
		Description:  strings.TrimSpace(r.Description),
		DisplayOrder: r.DisplayOrder,
		Active:       r.Active == nil || *r.Active,
	}
	for _, so := range r.SubOptions {
		kind := domain.SubOptionKind(strings.TrimSpace(so.Kind))
		switch kind {
		case domain.SubOptionEnum, domain.SubOptionCount, domain.SubOptionCountOrStandard:
		default:
			return domain.AddOn{}, fmt.Errorf("%w: add-on %s option %s has kind %q", ErrInvalidCatalogRecord, r.ID, so.Key, so.Kind)
		}
		addOn.SubOptions = append(addOn.SubOptions, domain.SubOptionSpec{
			Key:      strings.TrimSpace(so.Key),
			Label:    so.Label,
			Kind:     kind,
			Required: so.Required,
			Choices:  so.Choices,
			Min:      so.Min,
			Max:      so.Max,
			Default:  so.Default,
		})
	}

	rule, err := r.Pricing.rule(r.ID, domain.PricingFamily(strings.TrimSpace(r.Family)))
	if err != nil {
		return domain.AddOn{}, err
	}
	addOn.Rule = rule
	return addOn, nil
}

// rule decodes the family-specific pricing fields. An unrecognised family yields a nil rule.
func (r AddOnPricingRecord) rule(id string, family domain.PricingFamily) (domain.PricingRule, error) {
	p := decimalParser{owner: "add-on " + id}
	var rule domain.PricingRule

	switch family {
	case domain.FamilyFlat:
		rule = domain.FlatRule{Price: p.required("price", r.Price)}
	case domain.FamilyPerUnit:
		variants := make(map[string]decimal.Decimal, len(r.Variants))
		for key, raw := range r.Variants {
			variants[key] = p.required("variants."+key, raw)
		}
		unit := p.optional("unitPrice", r.UnitPrice)
		if len(r.VariantOptions) == 0 {
			unit = p.required("unitPrice", r.UnitPrice)
		}
		rule = domain.PerUnitRule{UnitPrice: unit, VariantOptions: r.VariantOptions, Variants: variants}
	case domain.FamilyPercentage:
		rule = domain.PercentageRule{Percent: p.required("percent", r.Percent)}
	case domain.FamilySidesDependent:
		rule = domain.SidesDependentRule{
			OneSided:    p.required("oneSided", r.OneSided),
			TwoSided:    p.required("twoSided", r.TwoSided),
			SidesOption: r.SidesOption,
		}
	case domain.FamilyTieredBundle:
		if r.BundleSize <= 0 {
			return nil, fmt.Errorf("%w: add-on %s bundleSize must be positive", ErrInvalidCatalogRecord, id)
		}
		rule = domain.TieredBundleRule{BundleSize: r.BundleSize, PerBundlePrice: p.required("perBundlePrice", r.PerBundlePrice)}
	case domain.FamilyCompoundPerFeature:
		standards := make(map[string]domain.NamedStandardRule, len(r.Standards))
		for _, s := range r.Standards {
			standards[s.Standard] = domain.NamedStandardRule{
				Standard:    s.Standard,
				SetupFee:    p.optional("standards.setupFee", s.SetupFee),
				PerUnitRate: p.required("standards.perUnitRate", s.PerUnitRate),
			}
		}
		rule = domain.CompoundPerFeatureRule{
			SetupFee:     p.optional("setupFee", r.SetupFee),
			PerUnitRate:  p.required("perUnitRate", r.PerUnitRate),
			CountOptions: r.CountOptions,
			Selector:     r.Selector,
			Standards:    standards,
		}
	case domain.FamilyNamedStandard:
		rule = domain.NamedStandardRule{
			Standard:    r.Standard,
			SetupFee:    p.optional("setupFee", r.SetupFee),
			PerUnitRate: p.required("perUnitRate", r.PerUnitRate),
		}
	default:
		return nil, nil
	}
	if p.err != nil {
		return nil, p.err
	}
	return rule, nil
}

func (r TurnaroundTableRecord) ToDomain() (domain.TurnaroundTable, error) {
	p := decimalParser{owner: "turnaround table " + r.PaperStockID}
	table := domain.TurnaroundTable{PaperStockID: strings.TrimSpace(r.PaperStockID)}
	for _, tier := range r.Tiers {
		cols := map[domain.SpeedCategory]string{
			domain.SpeedEconomy:   tier.Economy,
			domain.SpeedFast:      tier.Fast,
			domain.SpeedFaster:    tier.Faster,
			domain.SpeedCrazyFast: tier.CrazyFast,
		}
		multipliers := make(map[domain.SpeedCategory]decimal.Decimal, len(cols))
		for speed, raw := range cols {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			multipliers[speed] = p.required(fmt.Sprintf("tier %d %s", tier.Quantity, speed), raw)
		}
		table.Tiers = append(table.Tiers, domain.TurnaroundTier{Quantity: tier.Quantity, Multipliers: multipliers})
	}
	return table, p.err
}

// decimalParser keeps the first parse failure so record decoding reads linearly.
type decimalParser struct {
	owner string
	err   error
}

func (p *decimalParser) required(field, raw string) decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		p.fail(fmt.Errorf("%w: %s %s is required", ErrInvalidCatalogRecord, p.owner, field))
		return decimal.Zero
	}
	return p.optional(field, raw)
}

func (p *decimalParser) optional(field, raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		p.fail(fmt.Errorf("%w: %s %s: %v", ErrInvalidCatalogRecord, p.owner, field, err))
		return decimal.Zero
	}
	return d
}

func (p *decimalParser) withDefault(field, raw string, def decimal.Decimal) decimal.Decimal {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	return p.optional(field, raw)
}

func (p *decimalParser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}
