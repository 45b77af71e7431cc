package services

import (
	"errors"
	"fmt"
	"math"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

const (
	// DefaultMaxBoxWeightLbs is the per-box ceiling used when none is configured.
	DefaultMaxBoxWeightLbs = 36.0
	// DefaultMaxPackages caps how many boxes one shipment may be split into.
	DefaultMaxPackages = 100

	maxBoxWeightLbs    = 10000.0
	maxPackagesCeiling = 10000
)

// BoxDimensions is the single standard box footprint every package uses.
type BoxDimensions struct {
	LengthIn float64
	WidthIn  float64
	HeightIn float64
}

// DefaultBoxDimensions is a 12in cube.
var DefaultBoxDimensions = BoxDimensions{LengthIn: 12, WidthIn: 12, HeightIn: 12}

// BoxSplitter divides a shipment weight into packages no heavier than MaxWeightLbs.
type BoxSplitter struct {
	maxHundredths int64
	maxPackages   int64
	box           BoxDimensions
}

// BoxSplitterOption customises a BoxSplitter.
type BoxSplitterOption func(*BoxSplitter)

// WithMaxPackages overrides DefaultMaxPackages. Non-positive values keep the default.
func WithMaxPackages(n int) BoxSplitterOption {
	return func(s *BoxSplitter) {
		if n > 0 {
			s.maxPackages = int64(min(n, maxPackagesCeiling))
		}
	}
}

// NewBoxSplitter builds a splitter. Zero values fall back to the defaults.
func NewBoxSplitter(maxWeightLbs float64, box BoxDimensions, opts ...BoxSplitterOption) (*BoxSplitter, error) {
	if maxWeightLbs == 0 {
		maxWeightLbs = DefaultMaxBoxWeightLbs
	}
	if maxWeightLbs < 0.01 || math.IsNaN(maxWeightLbs) || math.IsInf(maxWeightLbs, 0) {
		return nil, errors.New("box splitter: max weight must be positive")
	}
	if maxWeightLbs > maxBoxWeightLbs {
		return nil, fmt.Errorf("box splitter: max weight must not exceed %.0f lbs", maxBoxWeightLbs)
	}
	if box == (BoxDimensions{}) {
		box = DefaultBoxDimensions
	}
	if box.LengthIn <= 0 || box.WidthIn <= 0 || box.HeightIn <= 0 {
		return nil, errors.New("box splitter: box dimensions must be positive")
	}
	s := &BoxSplitter{maxHundredths: toHundredths(maxWeightLbs), maxPackages: DefaultMaxPackages, box: box}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// MaxShipmentLbs is the heaviest shipment Split accepts.
func (s *BoxSplitter) MaxShipmentLbs() float64 {
	return float64(s.maxHundredths*s.maxPackages) / 100
}

// MaxWeightLbs returns the per-box ceiling.
func (s *BoxSplitter) MaxWeightLbs() float64 {
	return float64(s.maxHundredths) / 100
}

// Split distributes the weight evenly across ceil(total/max) boxes. Weights are
// handled in hundredths of a pound; leftover hundredths go to the first boxes, so
// packages are ordered heaviest first and differ by at most 0.01 lb.
func (s *BoxSplitter) Split(totalWeightLbs float64) ([]domain.Package, error) {
	if math.IsNaN(totalWeightLbs) || math.IsInf(totalWeightLbs, 0) || totalWeightLbs <= 0 {
		return nil, fmt.Errorf("%w: total weight must be positive", ErrShippingInvalidInput)
	}
	if limit := s.MaxShipmentLbs(); totalWeightLbs > limit {
		return nil, fmt.Errorf("%w: total weight %.2f lbs exceeds the %.2f lbs shipment limit", ErrShippingInvalidInput, totalWeightLbs, limit)
	}
	total := toHundredths(totalWeightLbs)
	if total == 0 {
		total = 1
	}

	count := (total + s.maxHundredths - 1) / s.maxHundredths
	base := total / count
	extra := total % count

	packages := make([]domain.Package, 0, count)
	for i := int64(0); i < count; i++ {
		w := base
		if i < extra {
			w++
		}
		packages = append(packages, domain.Package{
			LengthIn:  s.box.LengthIn,
			WidthIn:   s.box.WidthIn,
			HeightIn:  s.box.HeightIn,
			WeightLbs: float64(w) / 100,
			Metadata:  map[string]string{},
		})
	}
	return packages, nil
}

// BoxSummary renders a short human readable description such as "2 boxes @ 20.00 lbs".
func BoxSummary(packages []domain.Package) string {
	switch len(packages) {
	case 0:
		return "no boxes"
	case 1:
		return fmt.Sprintf("1 box @ %.2f lbs", packages[0].WeightLbs)
	}
	first, last := packages[0].WeightLbs, packages[len(packages)-1].WeightLbs
	if first == last {
		return fmt.Sprintf("%d boxes @ %.2f lbs", len(packages), first)
	}
	return fmt.Sprintf("%d boxes @ %.2f-%.2f lbs", len(packages), last, first)
}

func toHundredths(lbs float64) int64 {
	return int64(math.Round(lbs * 100))
}
