package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

type stubProvider struct {
	name  string
	rates []domain.Rate
	err   error
	// delay holds the response back; with ignoreCtx the provider keeps waiting past cancellation.
	delay     time.Duration
	ignoreCtx bool
	panicMsg  string

	mu    sync.Mutex
	calls int
	last  RateRequest
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) GetRates(ctx context.Context, req RateRequest) ([]domain.Rate, error) {
	s.mu.Lock()
	s.calls++
	s.last = req
	s.mu.Unlock()

	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.delay > 0 {
		if s.ignoreCtx {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", domain.ErrCarrierUnavailable, ctx.Err())
			}
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Rate(nil), s.rates...), nil
}

func (s *stubProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *stubProvider) lastRequest() RateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

var (
	testOrigin = domain.ShippingAddress{
		Street:  "1 Print Way",
		City:    "Chicago",
		State:   "IL",
		ZipCode: "60601",
		Country: "US",
	}
	testDestination = domain.ShippingAddress{
		Street:        "500 Peachtree St",
		City:          "Atlanta",
		State:         "GA",
		ZipCode:       "30308",
		Country:       "US",
		IsResidential: true,
	}
)

type recordedEvent struct {
	name   string
	fields map[string]any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) log(_ context.Context, event string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{name: event, fields: fields})
}

func (r *eventRecorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.name)
	}
	return out
}

func newTestAggregator(t *testing.T, deps ShippingAggregatorDeps, modules ...ShippingModule) *ShippingAggregator {
	t.Helper()
	registry, err := NewShippingRegistry(modules...)
	require.NoError(t, err)
	splitter, err := NewBoxSplitter(36, DefaultBoxDimensions)
	require.NoError(t, err)

	deps.Registry = registry
	deps.Splitter = splitter
	if deps.Origin == (domain.ShippingAddress{}) {
		deps.Origin = testOrigin
	}
	agg, err := NewShippingAggregator(deps)
	require.NoError(t, err)
	return agg
}

func TestShippingAggregatorMergesAndSortsRates(t *testing.T) {
	ground := &stubProvider{name: "ground_parcel", rates: []domain.Rate{
		{ServiceCode: "ground", ServiceName: "Ground", CostCents: 1846},
		{ServiceCode: "TWO_DAY", CostCents: 3120},
	}}
	air := &stubProvider{name: "air_cargo", rates: []domain.Rate{
		{Carrier: "air_cargo", ServiceCode: "NFO", ServiceName: "Next Flight Out", CostCents: 1500},
		{ServiceCode: "", CostCents: 10},
	}}
	agg := newTestAggregator(t, ShippingAggregatorDeps{},
		ShippingModule{Provider: ground, Enabled: true},
		ShippingModule{Provider: air, Enabled: true},
	)

	quote, err := agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Destination: testDestination, TotalWeightLbs: 40})
	require.NoError(t, err)

	require.Len(t, quote.Rates, 3)
	assert.Equal(t, []int64{1500, 1846, 3120}, []int64{quote.Rates[0].CostCents, quote.Rates[1].CostCents, quote.Rates[2].CostCents})
	assert.Equal(t, "GROUND", quote.Rates[1].ServiceCode)
	assert.Equal(t, "ground_parcel", quote.Rates[1].Carrier)
	assert.Equal(t, "TWO_DAY", quote.Rates[2].ServiceName)
	assert.Equal(t, 2, quote.PackageCount)
	assert.Equal(t, "2 boxes @ 20.00 lbs", quote.BoxSummary)
	assert.InDelta(t, 40.0, quote.TotalWeightLbs, 1e-9)
	assert.False(t, quote.TimedOut)

	req := ground.lastRequest()
	assert.Equal(t, testOrigin, req.Origin)
	assert.Equal(t, testDestination, req.Destination)
	assert.Len(t, req.Packages, 2)
}

func TestShippingAggregatorAppliesAllowList(t *testing.T) {
	ground := &stubProvider{name: "ground_parcel", rates: []domain.Rate{
		{ServiceCode: "GROUND", CostCents: 1200},
		{ServiceCode: "PRIORITY_OVERNIGHT", CostCents: 900},
	}}
	air := &stubProvider{name: "air_cargo", rates: []domain.Rate{
		{ServiceCode: "NFO", CostCents: 5000},
		{ServiceCode: "STANDARD", CostCents: 3000},
		{ServiceCode: "GROUND", CostCents: 2500},
	}}
	agg := newTestAggregator(t, ShippingAggregatorDeps{AllowedServices: []string{"ground", " air_cargo:nfo "}},
		ShippingModule{Provider: ground, Enabled: true},
		ShippingModule{Provider: air, Enabled: true},
	)

	quote, err := agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Destination: testDestination, TotalWeightLbs: 5})
	require.NoError(t, err)

	var got []string
	for _, r := range quote.Rates {
		got = append(got, r.Carrier+":"+r.ServiceCode)
	}
	assert.Equal(t, []string{"ground_parcel:GROUND", "air_cargo:GROUND", "air_cargo:NFO"}, got)
}

func TestShippingAggregatorAllProvidersFail(t *testing.T) {
	events := &eventRecorder{}
	ground := &stubProvider{name: "ground_parcel", err: fmt.Errorf("%w: status 503", domain.ErrCarrierUnavailable)}
	air := &stubProvider{name: "air_cargo", err: fmt.Errorf("%w: NO_SERVICE_AREA", domain.ErrInvalidAddress)}
	agg := newTestAggregator(t, ShippingAggregatorDeps{Logger: events.log},
		ShippingModule{Provider: ground, Enabled: true},
		ShippingModule{Provider: air, Enabled: true},
	)

	quote, err := agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Destination: testDestination, TotalWeightLbs: 12})
	require.NoError(t, err)
	assert.Empty(t, quote.Rates)
	assert.Equal(t, 1, quote.PackageCount)
	require.Len(t, quote.Providers, 2)
	for _, outcome := range quote.Providers {
		assert.Equal(t, ProviderStatusFailed, outcome.Status, outcome.Provider)
		assert.NotEmpty(t, outcome.Error)
	}
	assert.Equal(t, []string{"shipping.provider.failed", "shipping.provider.failed"}, events.names())
}

func TestShippingAggregatorNoEnabledProviders(t *testing.T) {
	disabled := &stubProvider{name: "air_cargo", rates: []domain.Rate{{ServiceCode: "NFO", CostCents: 100}}}
	agg := newTestAggregator(t, ShippingAggregatorDeps{}, ShippingModule{Provider: disabled})

	quote, err := agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Destination: testDestination, TotalWeightLbs: 3})
	require.NoError(t, err)
	assert.Empty(t, quote.Rates)
	assert.Zero(t, disabled.callCount())
}

func TestShippingAggregatorTimeoutDropsLateProviders(t *testing.T) {
	events := &eventRecorder{}
	fast := &stubProvider{name: "ground_parcel", rates: []domain.Rate{{ServiceCode: "GROUND", CostCents: 1846}}}
	slow := &stubProvider{
		name:      "air_cargo",
		rates:     []domain.Rate{{ServiceCode: "NFO", CostCents: 100}},
		delay:     300 * time.Millisecond,
		ignoreCtx: true,
	}
	agg := newTestAggregator(t, ShippingAggregatorDeps{Timeout: 50 * time.Millisecond, Logger: events.log},
		ShippingModule{Provider: fast, Enabled: true},
		ShippingModule{Provider: slow, Enabled: true},
	)

	start := time.Now()
	quote, err := agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Destination: testDestination, TotalWeightLbs: 10})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 250*time.Millisecond)

	require.Len(t, quote.Rates, 1)
	assert.Equal(t, "ground_parcel", quote.Rates[0].Carrier)
	assert.True(t, quote.TimedOut)
	assert.Equal(t, ProviderStatusOK, quote.Providers[0].Status)
	assert.Equal(t, ProviderStatusTimeout, quote.Providers[1].Status)
	assert.Contains(t, events.names(), "shipping.aggregate.timeout")

	// The slow provider finishing later must not mutate the returned quote.
	time.Sleep(350 * time.Millisecond)
	assert.Len(t, quote.Rates, 1)
	assert.Equal(t, ProviderStatusTimeout, quote.Providers[1].Status)
}

func TestShippingAggregatorCallerCancelIsNotTimeout(t *testing.T) {
	events := &eventRecorder{}
	fast := &stubProvider{name: "ground_parcel", rates: []domain.Rate{{ServiceCode: "GROUND", CostCents: 1846}}}
	slow := &stubProvider{name: "air_cargo", delay: 300 * time.Millisecond, ignoreCtx: true}
	agg := newTestAggregator(t, ShippingAggregatorDeps{Timeout: 5 * time.Second, Logger: events.log},
		ShippingModule{Provider: fast, Enabled: true},
		ShippingModule{Provider: slow, Enabled: true},
	)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	defer cancel()

	quote, err := agg.QuoteShipping(ctx, ShippingQuoteRequest{Destination: testDestination, TotalWeightLbs: 10})
	require.NoError(t, err)

	assert.False(t, quote.TimedOut)
	assert.Equal(t, ProviderStatusOK, quote.Providers[0].Status)
	assert.Equal(t, ProviderStatusCanceled, quote.Providers[1].Status)
	assert.NotContains(t, events.names(), "shipping.aggregate.timeout")
}

func TestShippingAggregatorProviderTimeout(t *testing.T) {
	slow := &stubProvider{name: "air_cargo", rates: []domain.Rate{{ServiceCode: "NFO", CostCents: 100}}, delay: time.Second}
	fast := &stubProvider{name: "ground_parcel", rates: []domain.Rate{{ServiceCode: "GROUND", CostCents: 1846}}}
	agg := newTestAggregator(t, ShippingAggregatorDeps{Timeout: 2 * time.Second, ProviderTimeout: 30 * time.Millisecond},
		ShippingModule{Provider: slow, Enabled: true},
		ShippingModule{Provider: fast, Enabled: true},
	)

	quote, err := agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Destination: testDestination, TotalWeightLbs: 10})
	require.NoError(t, err)
	require.Len(t, quote.Rates, 1)
	assert.False(t, quote.TimedOut)
	assert.Equal(t, ProviderStatusTimeout, quote.Providers[0].Status)
}

func TestShippingAggregatorIsolatesPanics(t *testing.T) {
	broken := &stubProvider{name: "air_cargo", panicMsg: "nil map write"}
	ground := &stubProvider{name: "ground_parcel", rates: []domain.Rate{{ServiceCode: "GROUND", CostCents: 1846}}}
	agg := newTestAggregator(t, ShippingAggregatorDeps{},
		ShippingModule{Provider: broken, Enabled: true},
		ShippingModule{Provider: ground, Enabled: true},
	)

	quote, err := agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Destination: testDestination, TotalWeightLbs: 10})
	require.NoError(t, err)
	require.Len(t, quote.Rates, 1)
	assert.Equal(t, ProviderStatusFailed, quote.Providers[0].Status)
	assert.Contains(t, quote.Providers[0].Error, "nil map write")
}

func TestShippingAggregatorPropagatesCarrierHint(t *testing.T) {
	ground := &stubProvider{name: "ground_parcel"}
	agg := newTestAggregator(t, ShippingAggregatorDeps{}, ShippingModule{Provider: ground, Enabled: true})

	_, err := agg.QuoteShipping(context.Background(), ShippingQuoteRequest{
		Destination:    testDestination,
		TotalWeightLbs: 80,
		CarrierHint:    " ATL ",
	})
	require.NoError(t, err)

	req := ground.lastRequest()
	require.Len(t, req.Packages, 3)
	for _, p := range req.Packages {
		assert.Equal(t, "ATL", p.Metadata[domain.MetadataCarrierHint])
	}
}

func TestShippingAggregatorOriginOverride(t *testing.T) {
	ground := &stubProvider{name: "ground_parcel"}
	agg := newTestAggregator(t, ShippingAggregatorDeps{}, ShippingModule{Provider: ground, Enabled: true})

	override := testOrigin
	override.City = "Atlanta"
	override.State = "GA"
	_, err := agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Origin: &override, Destination: testDestination, TotalWeightLbs: 1})
	require.NoError(t, err)
	assert.Equal(t, override, ground.lastRequest().Origin)

	_, err = agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Origin: &domain.ShippingAddress{}, Destination: testDestination, TotalWeightLbs: 1})
	assert.ErrorIs(t, err, ErrShippingInvalidInput)
}

func TestShippingAggregatorRejectsInvalidInput(t *testing.T) {
	ground := &stubProvider{name: "ground_parcel"}
	agg := newTestAggregator(t, ShippingAggregatorDeps{}, ShippingModule{Provider: ground, Enabled: true})

	noZip := testDestination
	noZip.ZipCode = ""
	_, err := agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Destination: noZip, TotalWeightLbs: 5})
	require.ErrorIs(t, err, ErrShippingInvalidInput)
	assert.Contains(t, err.Error(), "zipCode")

	_, err = agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Destination: testDestination})
	assert.ErrorIs(t, err, ErrShippingInvalidInput)

	_, err = agg.QuoteShipping(context.Background(), ShippingQuoteRequest{Destination: testDestination, TotalWeightLbs: 1e7})
	assert.ErrorIs(t, err, ErrShippingInvalidInput)
	assert.Zero(t, ground.callCount())
}

func TestNewShippingAggregatorValidation(t *testing.T) {
	registry, err := NewShippingRegistry()
	require.NoError(t, err)
	splitter, err := NewBoxSplitter(0, BoxDimensions{})
	require.NoError(t, err)

	_, err = NewShippingAggregator(ShippingAggregatorDeps{Splitter: splitter, Origin: testOrigin})
	assert.Error(t, err)
	_, err = NewShippingAggregator(ShippingAggregatorDeps{Registry: registry, Origin: testOrigin})
	assert.Error(t, err)
	_, err = NewShippingAggregator(ShippingAggregatorDeps{Registry: registry, Splitter: splitter})
	assert.Error(t, err)
}

func TestShippingRegistry(t *testing.T) {
	ground := &stubProvider{name: "ground_parcel"}
	air := &stubProvider{name: "air_cargo"}

	registry, err := NewShippingRegistry(
		ShippingModule{Provider: ground, Enabled: true},
		ShippingModule{Provider: air},
	)
	require.NoError(t, err)
	enabled := registry.EnabledModules()
	require.Len(t, enabled, 1)
	assert.Equal(t, "ground_parcel", enabled[0].Name())
	assert.Equal(t, map[string]bool{"ground_parcel": true, "air_cargo": false}, registry.Names())

	_, err = NewShippingRegistry(ShippingModule{Provider: ground}, ShippingModule{Provider: &stubProvider{name: "Ground_Parcel"}})
	assert.Error(t, err)
	_, err = NewShippingRegistry(ShippingModule{})
	assert.Error(t, err)
	_, err = NewShippingRegistry(ShippingModule{Provider: &stubProvider{name: " "}})
	assert.Error(t, err)

	var nilRegistry *ShippingRegistry
	assert.Empty(t, nilRegistry.EnabledModules())
}
