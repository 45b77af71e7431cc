package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

// QuantityTiers are the fixed breakpoints every turnaround table is defined at.
var QuantityTiers = []int{25, 50, 100, 250, 500, 1000, 2500, 5000}

// TurnaroundMultiplierTable resolves the rush multiplier for a stock, quantity and speed.
type TurnaroundMultiplierTable struct {
	stocks map[string]turnaroundRows
}

type turnaroundRows struct {
	tiers []int
	rows  map[int]map[domain.SpeedCategory]decimal.Decimal
}

// NewTurnaroundMultiplierTable indexes the given tables by paper stock. Every
// multiplier must be positive and every tier must be one of QuantityTiers.
func NewTurnaroundMultiplierTable(tables []domain.TurnaroundTable) (*TurnaroundMultiplierTable, error) {
	allowed := make(map[int]struct{}, len(QuantityTiers))
	for _, q := range QuantityTiers {
		allowed[q] = struct{}{}
	}

	stocks := make(map[string]turnaroundRows, len(tables))
	for _, table := range tables {
		id := strings.TrimSpace(table.PaperStockID)
		if id == "" {
			return nil, fmt.Errorf("turnaround table: paper stock id is required")
		}
		if _, dup := stocks[id]; dup {
			return nil, fmt.Errorf("turnaround table: duplicate table for %q", id)
		}
		if len(table.Tiers) == 0 {
			return nil, fmt.Errorf("turnaround table: %q has no tiers", id)
		}
		rows := turnaroundRows{rows: make(map[int]map[domain.SpeedCategory]decimal.Decimal, len(table.Tiers))}
		for _, tier := range table.Tiers {
			if _, ok := allowed[tier.Quantity]; !ok {
				return nil, fmt.Errorf("turnaround table: %q has unsupported tier %d", id, tier.Quantity)
			}
			if _, dup := rows.rows[tier.Quantity]; dup {
				return nil, fmt.Errorf("turnaround table: %q repeats tier %d", id, tier.Quantity)
			}
			cols := make(map[domain.SpeedCategory]decimal.Decimal, len(tier.Multipliers))
			for speed, m := range tier.Multipliers {
				if !m.IsPositive() {
					return nil, fmt.Errorf("turnaround table: %q tier %d %s multiplier must be positive", id, tier.Quantity, speed)
				}
				cols[speed] = m
			}
			rows.rows[tier.Quantity] = cols
			rows.tiers = append(rows.tiers, tier.Quantity)
		}
		sort.Ints(rows.tiers)
		stocks[id] = rows
	}
	return &TurnaroundMultiplierTable{stocks: stocks}, nil
}

// Lookup returns the multiplier for the tier nearest to quantity. Ties snap to the
// lower tier and quantities beyond the largest tier reuse that tier's row.
func (t *TurnaroundMultiplierTable) Lookup(paperStockID string, quantity int, speed domain.SpeedCategory) (decimal.Decimal, error) {
	rows, ok := t.stocks[strings.TrimSpace(paperStockID)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: no turnaround table for paper stock %q", ErrPricingNotFound, paperStockID)
	}
	if quantity <= 0 {
		return decimal.Zero, fmt.Errorf("%w: quantity must be positive", ErrPricingInvalidInput)
	}
	tier := NearestTier(rows.tiers, quantity)
	m, ok := rows.rows[tier][speed]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: paper stock %q has no %s multiplier at tier %d", ErrPricingNotFound, paperStockID, speed, tier)
	}
	return m, nil
}

// NearestTier snaps quantity to the closest entry of the ascending tiers slice.
// Equal distances resolve to the lower tier.
func NearestTier(tiers []int, quantity int) int {
	if len(tiers) == 0 {
		return 0
	}
	if quantity >= tiers[len(tiers)-1] {
		return tiers[len(tiers)-1]
	}
	best := tiers[0]
	bestDist := absInt(quantity - best)
	for _, tier := range tiers[1:] {
		d := absInt(quantity - tier)
		if d < bestDist {
			best, bestDist = tier, d
		}
	}
	return best
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
