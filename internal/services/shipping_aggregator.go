package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

const (
	// DefaultShippingTimeout bounds the whole carrier fan-out.
	DefaultShippingTimeout = 10 * time.Second

	shippingInstrumentation = "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/services/shipping"
)

// ErrShippingInvalidInput signals a missing destination field or non-positive weight.
var ErrShippingInvalidInput = errors.New("shipping: invalid input")

// Provider outcome states reported on ShippingQuote.Providers.
const (
	ProviderStatusOK       = "ok"
	ProviderStatusFailed   = "failed"
	ProviderStatusTimeout  = "timeout"
	ProviderStatusCanceled = "canceled"
)

// ShippingAggregator fans a shipment out to every enabled carrier and merges the results.
type ShippingAggregator struct {
	registry        *ShippingRegistry
	splitter        *BoxSplitter
	origin          domain.ShippingAddress
	allowed         serviceAllowList
	timeout         time.Duration
	providerTimeout time.Duration
	tracer          trace.Tracer
	latency         metric.Float64Histogram
	failures        metric.Int64Counter
	timeouts        metric.Int64Counter
	logger          func(context.Context, string, map[string]any)
}

// ShippingAggregatorDeps wires the aggregator.
type ShippingAggregatorDeps struct {
	Registry *ShippingRegistry
	Splitter *BoxSplitter
	// Origin is the warehouse address used when a request does not override it.
	Origin domain.ShippingAddress
	// AllowedServices lists sellable service codes, either "CODE" or "carrier:CODE".
	// An empty list allows every service.
	AllowedServices []string
	Timeout         time.Duration
	// ProviderTimeout optionally bounds each carrier call below Timeout.
	ProviderTimeout time.Duration
	Meter           metric.Meter
	Tracer          trace.Tracer
	Logger          func(context.Context, string, map[string]any)
}

// ShippingQuoteRequest is one shipment to be rated.
type ShippingQuoteRequest struct {
	Origin         *domain.ShippingAddress
	Destination    domain.ShippingAddress
	TotalWeightLbs float64
	CarrierHint    string
}

// ProviderOutcome records how one carrier call ended.
type ProviderOutcome struct {
	Provider string
	Status   string
	Rates    int
	Error    string
	Duration time.Duration
}

// ShippingQuote is the merged, filtered and sorted result of a fan-out.
type ShippingQuote struct {
	Rates          []domain.Rate
	Packages       []domain.Package
	PackageCount   int
	BoxSummary     string
	TotalWeightLbs float64
	TimedOut       bool
	Providers      []ProviderOutcome
}

// NewShippingAggregator validates dependencies and registers metrics instruments.
func NewShippingAggregator(deps ShippingAggregatorDeps) (*ShippingAggregator, error) {
	if deps.Registry == nil {
		return nil, errors.New("shipping aggregator: registry is required")
	}
	if deps.Splitter == nil {
		return nil, errors.New("shipping aggregator: box splitter is required")
	}
	if missing := deps.Origin.MissingFields(); len(missing) > 0 {
		return nil, fmt.Errorf("shipping aggregator: origin address missing %s", strings.Join(missing, ", "))
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = DefaultShippingTimeout
	}
	providerTimeout := deps.ProviderTimeout
	if providerTimeout <= 0 || providerTimeout > timeout {
		providerTimeout = 0
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	tracer := deps.Tracer
	if tracer == nil {
		tracer = otel.Tracer(shippingInstrumentation)
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(shippingInstrumentation)
	}

	latency, err := meter.Float64Histogram(
		"shipping.provider.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds of carrier rate calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("shipping aggregator: create latency histogram: %w", err)
	}
	failures, err := meter.Int64Counter(
		"shipping.provider.failures",
		metric.WithDescription("Carrier rate calls that failed or panicked"),
	)
	if err != nil {
		return nil, fmt.Errorf("shipping aggregator: create failure counter: %w", err)
	}
	timeouts, err := meter.Int64Counter(
		"shipping.aggregate.timeouts",
		metric.WithDescription("Fan-outs that hit the aggregate deadline before every carrier answered"),
	)
	if err != nil {
		return nil, fmt.Errorf("shipping aggregator: create timeout counter: %w", err)
	}

	return &ShippingAggregator{
		registry:        deps.Registry,
		splitter:        deps.Splitter,
		origin:          deps.Origin,
		allowed:         newServiceAllowList(deps.AllowedServices),
		timeout:         timeout,
		providerTimeout: providerTimeout,
		tracer:          tracer,
		latency:         latency,
		failures:        failures,
		timeouts:        timeouts,
		logger:          logger,
	}, nil
}

// QuoteShipping rates the shipment with every enabled carrier. Carrier failures
// and the aggregate deadline only shrink the result; the call fails solely on
// invalid input.
func (a *ShippingAggregator) QuoteShipping(ctx context.Context, req ShippingQuoteRequest) (ShippingQuote, error) {
	if missing := req.Destination.MissingFields(); len(missing) > 0 {
		return ShippingQuote{}, fmt.Errorf("%w: destination missing %s", ErrShippingInvalidInput, strings.Join(missing, ", "))
	}
	origin := a.origin
	if req.Origin != nil {
		if missing := req.Origin.MissingFields(); len(missing) > 0 {
			return ShippingQuote{}, fmt.Errorf("%w: origin missing %s", ErrShippingInvalidInput, strings.Join(missing, ", "))
		}
		origin = *req.Origin
	}

	packages, err := a.splitter.Split(req.TotalWeightLbs)
	if err != nil {
		return ShippingQuote{}, err
	}
	if hint := strings.TrimSpace(req.CarrierHint); hint != "" {
		for i := range packages {
			packages[i].Metadata[domain.MetadataCarrierHint] = hint
		}
	}

	rateReq := RateRequest{Origin: origin, Destination: req.Destination, Packages: packages}
	perProvider, outcomes, timedOut := a.fanOut(ctx, a.registry.EnabledModules(), rateReq)
	if timedOut {
		a.timeouts.Add(ctx, 1)
		a.logger(ctx, "shipping.aggregate.timeout", map[string]any{"timeout": a.timeout.String()})
	}

	var merged []domain.Rate
	for _, rates := range perProvider {
		merged = append(merged, rates...)
	}
	filtered := a.allowed.filter(merged)
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].CostCents < filtered[j].CostCents })

	total := 0.0
	for _, p := range packages {
		total += p.WeightLbs
	}
	return ShippingQuote{
		Rates:          filtered,
		Packages:       packages,
		PackageCount:   len(packages),
		BoxSummary:     BoxSummary(packages),
		TotalWeightLbs: total,
		TimedOut:       timedOut,
		Providers:      outcomes,
	}, nil
}

// fanOut calls every provider concurrently under one deadline. Results that
// arrive after the deadline are discarded.
func (a *ShippingAggregator) fanOut(ctx context.Context, providers []CarrierRateProvider, req RateRequest) ([][]domain.Rate, []ProviderOutcome, bool) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		mu       sync.Mutex
		sealed   bool
		results  = make([][]domain.Rate, len(providers))
		outcomes = make([]ProviderOutcome, len(providers))
		finished = make([]bool, len(providers))
	)
	for i, p := range providers {
		outcomes[i] = ProviderOutcome{Provider: p.Name(), Status: ProviderStatusTimeout}
	}

	var g errgroup.Group
	for i, p := range providers {
		i, p := i, p
		g.Go(func() error {
			rates, outcome := a.callProvider(ctx, p, req)
			mu.Lock()
			defer mu.Unlock()
			if sealed {
				return nil
			}
			results[i] = rates
			outcomes[i] = outcome
			finished[i] = true
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	timedOut := false
	canceled := false
	select {
	case <-done:
	case <-ctx.Done():
		select {
		case <-done:
		default:
			timedOut = errors.Is(ctx.Err(), context.DeadlineExceeded)
			canceled = !timedOut
		}
	}

	mu.Lock()
	sealed = true
	if canceled {
		for i := range outcomes {
			if !finished[i] {
				outcomes[i].Status = ProviderStatusCanceled
			}
		}
	}
	outRates := append([][]domain.Rate(nil), results...)
	outOutcomes := append([]ProviderOutcome(nil), outcomes...)
	mu.Unlock()
	return outRates, outOutcomes, timedOut
}

func (a *ShippingAggregator) callProvider(ctx context.Context, p CarrierRateProvider, req RateRequest) (rates []domain.Rate, outcome ProviderOutcome) {
	name := p.Name()
	if a.providerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.providerTimeout)
		defer cancel()
	}
	ctx, span := a.tracer.Start(ctx, "shipping.provider.GetRates",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("carrier", name), attribute.Int("packages", len(req.Packages))),
	)
	start := time.Now()
	outcome = ProviderOutcome{Provider: name, Status: ProviderStatusOK}

	defer func() {
		if r := recover(); r != nil {
			rates = nil
			outcome.Status = ProviderStatusFailed
			outcome.Error = fmt.Sprintf("panic: %v", r)
		}
		outcome.Duration = time.Since(start)
		outcome.Rates = len(rates)
		attrs := metric.WithAttributes(attribute.String("carrier", name), attribute.String("status", outcome.Status))
		a.latency.Record(ctx, float64(outcome.Duration)/float64(time.Millisecond), attrs)
		if outcome.Status != ProviderStatusOK {
			a.failures.Add(ctx, 1, attrs)
			span.SetStatus(codes.Error, outcome.Error)
			a.logger(ctx, "shipping.provider.failed", map[string]any{
				"carrier":  name,
				"status":   outcome.Status,
				"error":    outcome.Error,
				"duration": outcome.Duration.String(),
			})
		}
		span.SetAttributes(attribute.Int("rates", outcome.Rates))
		span.End()
	}()

	got, err := p.GetRates(ctx, req)
	if err != nil {
		outcome.Status = ProviderStatusFailed
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome.Status = ProviderStatusTimeout
		}
		outcome.Error = err.Error()
		span.RecordError(err)
		return nil, outcome
	}
	return normalizeRates(name, got), outcome
}

// normalizeRates fills in the carrier name and drops rates that cannot be sold.
func normalizeRates(carrier string, rates []domain.Rate) []domain.Rate {
	out := make([]domain.Rate, 0, len(rates))
	for _, r := range rates {
		r.ServiceCode = strings.ToUpper(strings.TrimSpace(r.ServiceCode))
		if r.ServiceCode == "" || r.CostCents < 0 {
			continue
		}
		if strings.TrimSpace(r.Carrier) == "" {
			r.Carrier = carrier
		}
		if strings.TrimSpace(r.ServiceName) == "" {
			r.ServiceName = r.ServiceCode
		}
		out = append(out, r)
	}
	return out
}

type serviceAllowList struct {
	any      bool
	codes    map[string]struct{}
	carriers map[string]struct{}
}

func newServiceAllowList(entries []string) serviceAllowList {
	list := serviceAllowList{codes: map[string]struct{}{}, carriers: map[string]struct{}{}}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if carrier, code, ok := strings.Cut(entry, ":"); ok {
			list.carriers[allowKey(carrier, code)] = struct{}{}
			continue
		}
		list.codes[strings.ToUpper(entry)] = struct{}{}
	}
	list.any = len(list.codes) == 0 && len(list.carriers) == 0
	return list
}

func (l serviceAllowList) allows(r domain.Rate) bool {
	if l.any {
		return true
	}
	if _, ok := l.codes[strings.ToUpper(r.ServiceCode)]; ok {
		return true
	}
	_, ok := l.carriers[allowKey(r.Carrier, r.ServiceCode)]
	return ok
}

func (l serviceAllowList) filter(rates []domain.Rate) []domain.Rate {
	out := make([]domain.Rate, 0, len(rates))
	for _, r := range rates {
		if l.allows(r) {
			out = append(out, r)
		}
	}
	return out
}

func allowKey(carrier, code string) string {
	return strings.ToLower(strings.TrimSpace(carrier)) + ":" + strings.ToUpper(strings.TrimSpace(code))
}
