package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

// PricingInput carries the configuration values an add-on formula may depend on.
type PricingInput struct {
	Quantity int
	Sides    domain.Sides
	// EligibleBase is the amount percentage add-ons are computed against.
	EligibleBase decimal.Decimal
}

// AddOnRuleEvaluator prices a single add-on selection by dispatching on its rule.
type AddOnRuleEvaluator struct {
	logger func(context.Context, string, map[string]any)
}

// NewAddOnRuleEvaluator constructs an evaluator. A nil logger discards events.
func NewAddOnRuleEvaluator(logger func(context.Context, string, map[string]any)) *AddOnRuleEvaluator {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &AddOnRuleEvaluator{logger: logger}
}

// Cost validates the raw sub-options against the add-on schema and applies its rule.
func (e *AddOnRuleEvaluator) Cost(ctx context.Context, addOn domain.AddOn, subOptions map[string]string, in PricingInput) (decimal.Decimal, error) {
	resolved, err := ResolveSubOptions(addOn, subOptions)
	if err != nil {
		return decimal.Zero, err
	}
	cost, err := e.apply(addOn, addOn.Rule, resolved, in)
	if err != nil {
		if errors.Is(err, ErrUnknownPricingFamily) {
			e.logger(ctx, "pricing.addon.unknown_family", map[string]any{
				"addOnId": addOn.ID,
				"rule":    fmt.Sprintf("%T", addOn.Rule),
			})
		}
		return decimal.Zero, err
	}
	return cost, nil
}

func (e *AddOnRuleEvaluator) apply(addOn domain.AddOn, rule domain.PricingRule, opts domain.ResolvedSubOptions, in PricingInput) (decimal.Decimal, error) {
	qty := decimal.NewFromInt(int64(in.Quantity))

	switch r := rule.(type) {
	case domain.FlatRule:
		return r.Price, nil

	case domain.PerUnitRule:
		unit := r.UnitPrice
		if len(r.VariantOptions) > 0 {
			parts := make([]string, len(r.VariantOptions))
			for i, key := range r.VariantOptions {
				v, ok := opts.Choice(key)
				if !ok {
					return decimal.Zero, fmt.Errorf("%w: add-on %q requires %q", ErrInvalidSubOption, addOn.ID, key)
				}
				parts[i] = v
			}
			variant, ok := r.Variants[strings.Join(parts, domain.VariantKeySeparator)]
			if !ok {
				return decimal.Zero, fmt.Errorf("%w: add-on %q has no price for %s", ErrInvalidSubOption, addOn.ID, strings.Join(parts, "/"))
			}
			unit = variant
		}
		return unit.Mul(qty), nil

	case domain.PercentageRule:
		return r.Percent.Div(decimal.NewFromInt(100)).Mul(in.EligibleBase), nil

	case domain.SidesDependentRule:
		sides := "one"
		if in.Sides == domain.SidesDouble {
			sides = "two"
		}
		if r.SidesOption != "" {
			if v, ok := opts.Choice(r.SidesOption); ok {
				sides = v
			}
		}
		switch sides {
		case "one":
			return r.OneSided, nil
		case "two":
			return r.TwoSided, nil
		default:
			return decimal.Zero, fmt.Errorf("%w: add-on %q side count %q", ErrInvalidSubOption, addOn.ID, sides)
		}

	case domain.TieredBundleRule:
		if r.BundleSize <= 0 {
			return decimal.Zero, fmt.Errorf("%w: add-on %q bundle size must be positive", ErrPricingInvalidInput, addOn.ID)
		}
		bundles := (in.Quantity + r.BundleSize - 1) / r.BundleSize
		return r.PerBundlePrice.Mul(decimal.NewFromInt(int64(bundles))), nil

	case domain.CompoundPerFeatureRule:
		if r.Selector != "" {
			if v, ok := opts.Choice(r.Selector); ok {
				standard, ok := r.Standards[v]
				if !ok {
					return decimal.Zero, fmt.Errorf("%w: add-on %q has no standard %q", ErrInvalidSubOption, addOn.ID, v)
				}
				return e.apply(addOn, standard, opts, in)
			}
		}
		features := 0
		for _, key := range r.CountOptions {
			features += opts.Count(key)
		}
		if features <= 0 {
			return decimal.Zero, fmt.Errorf("%w: add-on %q requires at least one feature", ErrInvalidSubOption, addOn.ID)
		}
		perUnit := r.PerUnitRate.Mul(decimal.NewFromInt(int64(features)))
		return r.SetupFee.Add(perUnit.Mul(qty)), nil

	case domain.NamedStandardRule:
		return r.SetupFee.Add(r.PerUnitRate.Mul(qty)), nil

	default:
		return decimal.Zero, fmt.Errorf("%w: add-on %q has rule %T", ErrUnknownPricingFamily, addOn.ID, rule)
	}
}

// ResolveSubOptions validates raw sub-option strings against the add-on's declared
// schema. Unknown keys, missing required keys and out-of-domain values are rejected.
func ResolveSubOptions(addOn domain.AddOn, raw map[string]string) (domain.ResolvedSubOptions, error) {
	resolved := domain.ResolvedSubOptions{
		Counts:  make(map[string]int),
		Choices: make(map[string]string),
	}
	known := make(map[string]struct{}, len(addOn.SubOptions))
	for _, spec := range addOn.SubOptions {
		known[spec.Key] = struct{}{}
	}
	for key := range raw {
		if _, ok := known[key]; !ok {
			return resolved, fmt.Errorf("%w: add-on %q does not accept %q", ErrInvalidSubOption, addOn.ID, key)
		}
	}

	for _, spec := range addOn.SubOptions {
		value := strings.TrimSpace(raw[spec.Key])
		if value == "" {
			value = spec.Default
		}
		if value == "" {
			if spec.Required {
				return resolved, fmt.Errorf("%w: add-on %q requires %q", ErrInvalidSubOption, addOn.ID, spec.Key)
			}
			continue
		}

		switch spec.Kind {
		case domain.SubOptionEnum:
			if !slices.Contains(spec.Choices, value) {
				return resolved, fmt.Errorf("%w: %q is not a valid %q for add-on %q", ErrInvalidSubOption, value, spec.Key, addOn.ID)
			}
			resolved.Choices[spec.Key] = value
		case domain.SubOptionCount:
			n, err := parseCount(spec, value)
			if err != nil {
				return resolved, fmt.Errorf("%w: add-on %q: %v", ErrInvalidSubOption, addOn.ID, err)
			}
			resolved.Counts[spec.Key] = n
		case domain.SubOptionCountOrStandard:
			if slices.Contains(spec.Choices, value) {
				resolved.Choices[spec.Key] = value
				continue
			}
			n, err := parseCount(spec, value)
			if err != nil {
				return resolved, fmt.Errorf("%w: add-on %q: %v", ErrInvalidSubOption, addOn.ID, err)
			}
			resolved.Counts[spec.Key] = n
		default:
			return resolved, fmt.Errorf("%w: add-on %q option %q has kind %q", ErrPricingInvalidInput, addOn.ID, spec.Key, spec.Kind)
		}
	}
	return resolved, nil
}

func parseCount(spec domain.SubOptionSpec, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%q must be a whole number, got %q", spec.Key, value)
	}
	if n < spec.Min || (spec.Max > 0 && n > spec.Max) {
		return 0, fmt.Errorf("%q must be between %d and %d, got %d", spec.Key, spec.Min, spec.Max, n)
	}
	return n, nil
}
