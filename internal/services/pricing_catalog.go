package services

import (
	"fmt"
	"sort"
	"strings"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

// pricingSnapshot is an immutable, indexed view of a PricingCatalog.
type pricingSnapshot struct {
	stocks     map[string]domain.PaperStock
	addOns     map[string]domain.AddOn
	stockList  []domain.PaperStock
	addOnList  []domain.AddOn
	turnaround *TurnaroundMultiplierTable
}

func compilePricingCatalog(catalog domain.PricingCatalog) (*pricingSnapshot, error) {
	snap := &pricingSnapshot{
		stocks: make(map[string]domain.PaperStock, len(catalog.PaperStocks)),
		addOns: make(map[string]domain.AddOn, len(catalog.AddOns)),
	}

	for _, stock := range catalog.PaperStocks {
		id := strings.TrimSpace(stock.ID)
		if id == "" {
			return nil, fmt.Errorf("pricing catalog: paper stock without id")
		}
		if _, dup := snap.stocks[id]; dup {
			return nil, fmt.Errorf("pricing catalog: duplicate paper stock %q", id)
		}
		if !stock.PricePerSqIn.IsPositive() || !stock.Markup.IsPositive() {
			return nil, fmt.Errorf("pricing catalog: paper stock %q needs positive price and markup", id)
		}
		if !stock.SingleSided.IsPositive() || !stock.DoubleSided.IsPositive() {
			return nil, fmt.Errorf("pricing catalog: paper stock %q needs positive sides multipliers", id)
		}
		snap.stocks[id] = stock
		if stock.Active {
			snap.stockList = append(snap.stockList, stock)
		}
	}

	for _, addOn := range catalog.AddOns {
		id := strings.TrimSpace(addOn.ID)
		if id == "" {
			return nil, fmt.Errorf("pricing catalog: add-on without id")
		}
		if _, dup := snap.addOns[id]; dup {
			return nil, fmt.Errorf("pricing catalog: duplicate add-on %q", id)
		}
		if addOn.Rule == nil {
			return nil, fmt.Errorf("%w: add-on %q has no pricing rule", ErrUnknownPricingFamily, id)
		}
		if err := checkRuleReferences(addOn); err != nil {
			return nil, fmt.Errorf("pricing catalog: add-on %q: %w", id, err)
		}
		snap.addOns[id] = addOn
		if addOn.Active {
			snap.addOnList = append(snap.addOnList, addOn)
		}
	}

	table, err := NewTurnaroundMultiplierTable(catalog.TurnaroundTables)
	if err != nil {
		return nil, err
	}
	snap.turnaround = table

	sort.SliceStable(snap.stockList, func(i, j int) bool { return snap.stockList[i].Name < snap.stockList[j].Name })
	sort.SliceStable(snap.addOnList, func(i, j int) bool {
		if snap.addOnList[i].DisplayOrder != snap.addOnList[j].DisplayOrder {
			return snap.addOnList[i].DisplayOrder < snap.addOnList[j].DisplayOrder
		}
		return snap.addOnList[i].Name < snap.addOnList[j].Name
	})
	return snap, nil
}

// checkRuleReferences rejects rules that name sub-options the add-on does not declare.
func checkRuleReferences(addOn domain.AddOn) error {
	declared := make(map[string]domain.SubOptionKind, len(addOn.SubOptions))
	for _, spec := range addOn.SubOptions {
		declared[spec.Key] = spec.Kind
	}
	requireDeclared := func(role string, keys ...string) error {
		for _, key := range keys {
			if _, ok := declared[key]; !ok {
				return fmt.Errorf("%s %q is not a declared sub-option", role, key)
			}
		}
		return nil
	}

	switch rule := addOn.Rule.(type) {
	case domain.PerUnitRule:
		return requireDeclared("variant option", rule.VariantOptions...)
	case domain.SidesDependentRule:
		if rule.SidesOption == "" {
			return nil
		}
		return requireDeclared("sides option", rule.SidesOption)
	case domain.CompoundPerFeatureRule:
		if len(rule.CountOptions) == 0 {
			return fmt.Errorf("compound rule needs at least one count option")
		}
		if err := requireDeclared("count option", rule.CountOptions...); err != nil {
			return err
		}
		if rule.Selector != "" {
			if err := requireDeclared("selector", rule.Selector); err != nil {
				return err
			}
		} else if len(rule.Standards) > 0 {
			return fmt.Errorf("named standards need a selector sub-option")
		}
		for _, key := range rule.CountOptions {
			if declared[key] == domain.SubOptionEnum {
				return fmt.Errorf("count option %q is declared as an enum", key)
			}
		}
	}
	return nil
}

func (s *pricingSnapshot) paperStock(id string) (domain.PaperStock, error) {
	stock, ok := s.stocks[strings.TrimSpace(id)]
	if !ok || !stock.Active {
		return domain.PaperStock{}, fmt.Errorf("%w: paper stock %q", ErrPricingNotFound, id)
	}
	return stock, nil
}

func (s *pricingSnapshot) addOn(id string) (domain.AddOn, error) {
	addOn, ok := s.addOns[strings.TrimSpace(id)]
	if !ok || !addOn.Active {
		return domain.AddOn{}, fmt.Errorf("%w: add-on %q", ErrPricingNotFound, id)
	}
	return addOn, nil
}
