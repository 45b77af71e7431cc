package domain

import "github.com/shopspring/decimal"

// PricingFamily names the cost formula an add-on is priced with.
type PricingFamily string

const (
	FamilyFlat               PricingFamily = "flat"
	FamilyPerUnit            PricingFamily = "per_unit"
	FamilyPercentage         PricingFamily = "percentage"
	FamilySidesDependent     PricingFamily = "sides_dependent"
	FamilyTieredBundle       PricingFamily = "tiered_bundle"
	FamilyCompoundPerFeature PricingFamily = "compound_per_feature_count"
	FamilyNamedStandard      PricingFamily = "named_standard"
)

// AddOn is a catalog add-on with its pricing rule and accepted sub-options.
type AddOn struct {
	ID           string
	Name         string
	Description  string
	Rule         PricingRule
	SubOptions   []SubOptionSpec
	DisplayOrder int
	Active       bool
}

// PricingRule is the closed set of add-on cost formulas. Only the rule types
// declared in this package satisfy it.
type PricingRule interface {
	Family() PricingFamily
	isPricingRule()
}

// FlatRule charges a constant regardless of quantity.
type FlatRule struct {
	Price decimal.Decimal
}

// PerUnitRule charges UnitPrice per printed piece. When VariantOptions is set the
// unit price is looked up in Variants by the selected values of those options,
// joined with VariantKeySeparator in VariantOptions order.
type PerUnitRule struct {
	UnitPrice      decimal.Decimal
	VariantOptions []string
	Variants       map[string]decimal.Decimal
}

// VariantKeySeparator joins sub-option values into a PerUnitRule variant key.
const VariantKeySeparator = "|"

// PercentageRule charges Percent of a caller supplied eligible amount.
type PercentageRule struct {
	Percent decimal.Decimal
}

// SidesDependentRule charges an independently configured price per side count.
// SidesOption names the sub-option carrying "one" or "two"; when empty or unset
// the printed sides of the configuration are used.
type SidesDependentRule struct {
	OneSided    decimal.Decimal
	TwoSided    decimal.Decimal
	SidesOption string
}

// TieredBundleRule bills every started bundle of BundleSize units as a full bundle.
type TieredBundleRule struct {
	BundleSize     int
	PerBundlePrice decimal.Decimal
}

// CompoundPerFeatureRule charges SetupFee plus PerUnitRate for every feature on
// every piece. The feature count is the sum of the integer sub-options listed in
// CountOptions. When the Selector sub-option holds a key of Standards, that named
// standard is priced instead.
type CompoundPerFeatureRule struct {
	SetupFee     decimal.Decimal
	PerUnitRate  decimal.Decimal
	CountOptions []string
	Selector     string
	Standards    map[string]NamedStandardRule
}

// NamedStandardRule is a fixed configuration with its own setup fee and per-unit rate.
type NamedStandardRule struct {
	Standard    string
	SetupFee    decimal.Decimal
	PerUnitRate decimal.Decimal
}

func (FlatRule) Family() PricingFamily               { return FamilyFlat }
func (PerUnitRule) Family() PricingFamily            { return FamilyPerUnit }
func (PercentageRule) Family() PricingFamily         { return FamilyPercentage }
func (SidesDependentRule) Family() PricingFamily     { return FamilySidesDependent }
func (TieredBundleRule) Family() PricingFamily       { return FamilyTieredBundle }
func (CompoundPerFeatureRule) Family() PricingFamily { return FamilyCompoundPerFeature }
func (NamedStandardRule) Family() PricingFamily      { return FamilyNamedStandard }

func (FlatRule) isPricingRule()               {}
func (PerUnitRule) isPricingRule()            {}
func (PercentageRule) isPricingRule()         {}
func (SidesDependentRule) isPricingRule()     {}
func (TieredBundleRule) isPricingRule()       {}
func (CompoundPerFeatureRule) isPricingRule() {}
func (NamedStandardRule) isPricingRule()      {}

// SubOptionKind describes how a raw sub-option string is interpreted.
type SubOptionKind string

const (
	// SubOptionEnum accepts one of Choices.
	SubOptionEnum SubOptionKind = "enum"
	// SubOptionCount accepts an integer between Min and Max inclusive.
	SubOptionCount SubOptionKind = "count"
	// SubOptionCountOrStandard accepts either a count or one of Choices.
	SubOptionCountOrStandard SubOptionKind = "count_or_standard"
)

// SubOptionSpec declares one accepted sub-option of an add-on.
type SubOptionSpec struct {
	Key      string
	Label    string
	Kind     SubOptionKind
	Required bool
	Choices  []string
	Min      int
	Max      int
	Default  string
}

// ResolvedSubOptions holds sub-option values after schema validation.
type ResolvedSubOptions struct {
	Counts  map[string]int
	Choices map[string]string
}

// Count returns the validated integer for key, or zero when absent.
func (r ResolvedSubOptions) Count(key string) int {
	return r.Counts[key]
}

// Choice returns the validated enum value for key.
func (r ResolvedSubOptions) Choice(key string) (string, bool) {
	v, ok := r.Choices[key]
	return v, ok
}
