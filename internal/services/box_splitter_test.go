package services

import (
	"errors"
	"math"
	"testing"

	"pgregory.net/rapid"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

func TestBoxSplitterSplitsEvenly(t *testing.T) {
	splitter, err := NewBoxSplitter(0, BoxDimensions{})
	if err != nil {
		t.Fatalf("NewBoxSplitter: %v", err)
	}
	if splitter.MaxWeightLbs() != DefaultMaxBoxWeightLbs {
		t.Fatalf("expected default max weight, got %v", splitter.MaxWeightLbs())
	}

	cases := []struct {
		total   float64
		weights []float64
		summary string
	}{
		{total: 7.2, weights: []float64{7.2}, summary: "1 box @ 7.20 lbs"},
		{total: 36, weights: []float64{36}, summary: "1 box @ 36.00 lbs"},
		{total: 40, weights: []float64{20, 20}, summary: "2 boxes @ 20.00 lbs"},
		{total: 100, weights: []float64{33.34, 33.33, 33.33}, summary: "3 boxes @ 33.33-33.34 lbs"},
		{total: 0.001, weights: []float64{0.01}, summary: "1 box @ 0.01 lbs"},
	}
	for _, tc := range cases {
		packages, err := splitter.Split(tc.total)
		if err != nil {
			t.Fatalf("Split(%v): %v", tc.total, err)
		}
		if len(packages) != len(tc.weights) {
			t.Fatalf("Split(%v): expected %d boxes, got %d", tc.total, len(tc.weights), len(packages))
		}
		for i, p := range packages {
			if p.WeightLbs != tc.weights[i] {
				t.Errorf("Split(%v): box %d expected %v lbs, got %v", tc.total, i, tc.weights[i], p.WeightLbs)
			}
			if p.LengthIn != 12 || p.WidthIn != 12 || p.HeightIn != 12 {
				t.Errorf("Split(%v): unexpected dimensions %+v", tc.total, p)
			}
			if p.Metadata == nil {
				t.Errorf("Split(%v): expected metadata map", tc.total)
			}
		}
		if got := BoxSummary(packages); got != tc.summary {
			t.Errorf("Split(%v): expected summary %q, got %q", tc.total, tc.summary, got)
		}
	}
}

func TestBoxSplitterRejectsInvalidWeight(t *testing.T) {
	splitter, err := NewBoxSplitter(36, DefaultBoxDimensions)
	if err != nil {
		t.Fatalf("NewBoxSplitter: %v", err)
	}
	for _, w := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := splitter.Split(w); !errors.Is(err, ErrShippingInvalidInput) {
			t.Errorf("Split(%v): expected ErrShippingInvalidInput, got %v", w, err)
		}
	}
}

func TestNewBoxSplitterValidation(t *testing.T) {
	if _, err := NewBoxSplitter(-5, BoxDimensions{}); err == nil {
		t.Fatal("expected error for negative max weight")
	}
	if _, err := NewBoxSplitter(36, BoxDimensions{LengthIn: 12, WidthIn: 12}); err == nil {
		t.Fatal("expected error for zero height box")
	}
	if _, err := NewBoxSplitter(1e300, BoxDimensions{}); err == nil {
		t.Fatal("expected error for absurd max weight")
	}
}

func TestBoxSplitterRejectsOversizedShipment(t *testing.T) {
	splitter, err := NewBoxSplitter(36, DefaultBoxDimensions)
	if err != nil {
		t.Fatalf("NewBoxSplitter: %v", err)
	}
	if got := splitter.MaxShipmentLbs(); got != 3600 {
		t.Fatalf("expected 3600 lbs shipment limit, got %v", got)
	}

	packages, err := splitter.Split(3600)
	if err != nil {
		t.Fatalf("Split(3600): %v", err)
	}
	if len(packages) != DefaultMaxPackages {
		t.Fatalf("expected %d boxes at the limit, got %d", DefaultMaxPackages, len(packages))
	}

	for _, w := range []float64{3600.01, 1e7, 1e300, math.MaxFloat64} {
		if _, err := splitter.Split(w); !errors.Is(err, ErrShippingInvalidInput) {
			t.Errorf("Split(%v): expected ErrShippingInvalidInput, got %v", w, err)
		}
	}
}

func TestBoxSplitterWithMaxPackages(t *testing.T) {
	splitter, err := NewBoxSplitter(10, DefaultBoxDimensions, WithMaxPackages(3))
	if err != nil {
		t.Fatalf("NewBoxSplitter: %v", err)
	}
	if packages, err := splitter.Split(30); err != nil || len(packages) != 3 {
		t.Fatalf("Split(30): %d boxes, err %v", len(packages), err)
	}
	if _, err := splitter.Split(30.01); !errors.Is(err, ErrShippingInvalidInput) {
		t.Fatalf("expected ErrShippingInvalidInput above 3 boxes, got %v", err)
	}

	capped, err := NewBoxSplitter(1, DefaultBoxDimensions, WithMaxPackages(math.MaxInt))
	if err != nil {
		t.Fatalf("NewBoxSplitter: %v", err)
	}
	if got := capped.MaxShipmentLbs(); got != maxPackagesCeiling {
		t.Fatalf("expected package count to be capped, limit %v", got)
	}
}

func TestBoxSummaryEmpty(t *testing.T) {
	if got := BoxSummary(nil); got != "no boxes" {
		t.Fatalf("unexpected summary %q", got)
	}
	if got := BoxSummary([]domain.Package{}); got != "no boxes" {
		t.Fatalf("unexpected summary %q", got)
	}
}

func TestBoxSplitterProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxLbs := float64(rapid.IntRange(100, 7000).Draw(t, "maxHundredths")) / 100
		total := float64(rapid.IntRange(1, 1_000_000).Draw(t, "totalHundredths")) / 100

		splitter, err := NewBoxSplitter(maxLbs, DefaultBoxDimensions, WithMaxPackages(maxPackagesCeiling))
		if err != nil {
			t.Fatalf("NewBoxSplitter: %v", err)
		}
		packages, err := splitter.Split(total)
		if err != nil {
			t.Fatalf("Split: %v", err)
		}

		want := int(math.Ceil(math.Round(total*100) / math.Round(maxLbs*100)))
		if len(packages) != want {
			t.Fatalf("expected %d boxes for %v/%v, got %d", want, total, maxLbs, len(packages))
		}

		var sum int64
		var heaviest, lightest int64 = 0, math.MaxInt64
		for _, p := range packages {
			w := toHundredths(p.WeightLbs)
			if w > toHundredths(maxLbs) {
				t.Fatalf("box of %v exceeds max %v", p.WeightLbs, maxLbs)
			}
			sum += w
			heaviest = max(heaviest, w)
			lightest = min(lightest, w)
		}
		if sum != toHundredths(total) {
			t.Fatalf("box weights sum to %d hundredths, want %d", sum, toHundredths(total))
		}
		if heaviest-lightest > 1 {
			t.Fatalf("boxes differ by more than 0.01 lb: %d vs %d", heaviest, lightest)
		}
	})
}
