package services

import (
	"errors"
	"slices"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

func testTurnaroundTable(t *testing.T) *TurnaroundMultiplierTable {
	t.Helper()
	tiers := make([]domain.TurnaroundTier, 0, len(QuantityTiers))
	for i, q := range QuantityTiers {
		// Multipliers shrink as the tier grows so each tier is distinguishable.
		base := decimal.NewFromInt(int64(300 - i*10)).Shift(-2)
		tiers = append(tiers, domain.TurnaroundTier{
			Quantity: q,
			Multipliers: map[domain.SpeedCategory]decimal.Decimal{
				domain.SpeedEconomy:   base,
				domain.SpeedFast:      base.Add(decimal.RequireFromString("0.4")),
				domain.SpeedFaster:    base.Add(decimal.RequireFromString("0.8")),
				domain.SpeedCrazyFast: base.Add(decimal.RequireFromString("1.3")),
			},
		})
	}
	tiers[5].Multipliers[domain.SpeedFast] = decimal.RequireFromString("1.92")

	table, err := NewTurnaroundMultiplierTable([]domain.TurnaroundTable{{PaperStockID: "9pt-c2s", Tiers: tiers}})
	if err != nil {
		t.Fatalf("NewTurnaroundMultiplierTable: %v", err)
	}
	return table
}

func TestTurnaroundLookupExactTier(t *testing.T) {
	table := testTurnaroundTable(t)
	got, err := table.Lookup("9pt-c2s", 1000, domain.SpeedFast)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("1.92")) {
		t.Fatalf("expected 1.92, got %s", got)
	}
}

func TestTurnaroundLookupSnapsToNearestTier(t *testing.T) {
	table := testTurnaroundTable(t)
	cases := []struct {
		quantity int
		want     int
	}{
		{quantity: 1, want: 25},
		{quantity: 37, want: 25},
		{quantity: 38, want: 50},
		{quantity: 75, want: 50},
		{quantity: 76, want: 100},
		{quantity: 1700, want: 1000},
		{quantity: 1800, want: 2500},
		{quantity: 5000, want: 5000},
		{quantity: 250000, want: 5000},
	}
	for _, tc := range cases {
		got, err := table.Lookup("9pt-c2s", tc.quantity, domain.SpeedEconomy)
		if err != nil {
			t.Fatalf("Lookup(%d): %v", tc.quantity, err)
		}
		want, _ := table.Lookup("9pt-c2s", tc.want, domain.SpeedEconomy)
		if !got.Equal(want) {
			t.Errorf("quantity %d: expected tier %d multiplier %s, got %s", tc.quantity, tc.want, want, got)
		}
	}
}

func TestTurnaroundLookupErrors(t *testing.T) {
	table := testTurnaroundTable(t)

	if _, err := table.Lookup("unknown", 100, domain.SpeedFast); !errors.Is(err, ErrPricingNotFound) {
		t.Fatalf("expected ErrPricingNotFound for unknown stock, got %v", err)
	}
	if _, err := table.Lookup("9pt-c2s", 0, domain.SpeedFast); !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput for zero quantity, got %v", err)
	}
	if _, err := table.Lookup("9pt-c2s", 100, domain.SpeedCategory("warp")); !errors.Is(err, ErrPricingNotFound) {
		t.Fatalf("expected ErrPricingNotFound for missing column, got %v", err)
	}
}

func TestNewTurnaroundMultiplierTableValidation(t *testing.T) {
	one := map[domain.SpeedCategory]decimal.Decimal{domain.SpeedEconomy: decimal.NewFromInt(1)}
	cases := map[string][]domain.TurnaroundTable{
		"missing id":  {{Tiers: []domain.TurnaroundTier{{Quantity: 25, Multipliers: one}}}},
		"no tiers":    {{PaperStockID: "a"}},
		"odd tier":    {{PaperStockID: "a", Tiers: []domain.TurnaroundTier{{Quantity: 30, Multipliers: one}}}},
		"repeat tier": {{PaperStockID: "a", Tiers: []domain.TurnaroundTier{{Quantity: 25, Multipliers: one}, {Quantity: 25, Multipliers: one}}}},
		"duplicate":   {{PaperStockID: "a", Tiers: []domain.TurnaroundTier{{Quantity: 25, Multipliers: one}}}, {PaperStockID: "a", Tiers: []domain.TurnaroundTier{{Quantity: 25, Multipliers: one}}}},
		"zero multiplier": {{PaperStockID: "a", Tiers: []domain.TurnaroundTier{{
			Quantity:    25,
			Multipliers: map[domain.SpeedCategory]decimal.Decimal{domain.SpeedEconomy: decimal.Zero},
		}}}},
	}
	for name, tables := range cases {
		if _, err := NewTurnaroundMultiplierTable(tables); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestNearestTierProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		quantity := rapid.IntRange(1, 20000).Draw(t, "quantity")
		tier := NearestTier(QuantityTiers, quantity)

		if !slices.Contains(QuantityTiers, tier) {
			t.Fatalf("tier %d is not a breakpoint", tier)
		}
		max := QuantityTiers[len(QuantityTiers)-1]
		if quantity >= max {
			if tier != max {
				t.Fatalf("quantity %d beyond the table should use %d, got %d", quantity, max, tier)
			}
			return
		}
		dist := absInt(quantity - tier)
		for _, other := range QuantityTiers {
			d := absInt(quantity - other)
			if d < dist {
				t.Fatalf("quantity %d: tier %d is closer than %d", quantity, other, tier)
			}
			if d == dist && other < tier {
				t.Fatalf("quantity %d: tie should resolve to lower tier %d, got %d", quantity, other, tier)
			}
		}
	})
}
