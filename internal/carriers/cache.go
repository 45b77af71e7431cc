package carriers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/services"
)

// DefaultRateTTL is how long a carrier's rates for one shipment are reused.
const DefaultRateTTL = 10 * time.Minute

// RateCache stores carrier rates under an opaque key.
type RateCache interface {
	Get(ctx context.Context, key string) ([]domain.Rate, bool, error)
	Set(ctx context.Context, key string, rates []domain.Rate, ttl time.Duration) error
}

// CachingProvider reuses a carrier's successful rate responses for identical
// shipments. Failures are never cached and cache errors fall through to the carrier.
type CachingProvider struct {
	inner  services.CarrierRateProvider
	cache  RateCache
	ttl    time.Duration
	logger func(context.Context, string, map[string]any)
}

var _ services.CarrierRateProvider = (*CachingProvider)(nil)

func NewCachingProvider(inner services.CarrierRateProvider, cache RateCache, ttl time.Duration, logger func(context.Context, string, map[string]any)) (*CachingProvider, error) {
	if inner == nil {
		return nil, errors.New("caching provider: inner provider is required")
	}
	if cache == nil {
		return nil, errors.New("caching provider: cache is required")
	}
	if ttl <= 0 {
		ttl = DefaultRateTTL
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &CachingProvider{inner: inner, cache: cache, ttl: ttl, logger: logger}, nil
}

func (p *CachingProvider) Name() string { return p.inner.Name() }

func (p *CachingProvider) GetRates(ctx context.Context, req services.RateRequest) ([]domain.Rate, error) {
	key := RateCacheKey(p.inner.Name(), req)
	rates, ok, err := p.cache.Get(ctx, key)
	if err != nil {
		p.logger(ctx, "carrier.cache.get_failed", map[string]any{"carrier": p.Name(), "error": err.Error()})
	} else if ok {
		return rates, nil
	}

	rates, err = p.inner.GetRates(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := p.cache.Set(ctx, key, rates, p.ttl); err != nil {
		p.logger(ctx, "carrier.cache.set_failed", map[string]any{"carrier": p.Name(), "error": err.Error()})
	}
	return rates, nil
}

// RateCacheKey derives a stable key from everything a carrier prices on.
func RateCacheKey(carrier string, req services.RateRequest) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(carrier)),
		addressKey(req.Origin),
		addressKey(req.Destination),
	}
	for _, pkg := range req.Packages {
		meta := make([]string, 0, len(pkg.Metadata))
		for k, v := range pkg.Metadata {
			meta = append(meta, strings.ToLower(k)+"="+strings.ToUpper(strings.TrimSpace(v)))
		}
		sort.Strings(meta)
		parts = append(parts, fmt.Sprintf("%.2f/%.1fx%.1fx%.1f/%s",
			pkg.WeightLbs, pkg.LengthIn, pkg.WidthIn, pkg.HeightIn, strings.Join(meta, "&")))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return "rates:" + hex.EncodeToString(sum[:])
}

func addressKey(a domain.ShippingAddress) string {
	return strings.Join([]string{
		strings.ToUpper(strings.TrimSpace(a.Country)),
		strings.ToUpper(strings.TrimSpace(a.State)),
		strings.ToUpper(strings.TrimSpace(a.ZipCode)),
		strings.ToUpper(strings.TrimSpace(a.City)),
		strings.ToUpper(strings.TrimSpace(a.Street)),
		fmt.Sprintf("%t", a.IsResidential),
	}, ",")
}

// DefaultMemoryCacheEntries bounds a MemoryRateCache when no limit is given.
const DefaultMemoryCacheEntries = 10000

// memorySweepInterval spaces out full expiry sweeps triggered by Set.
const memorySweepInterval = time.Minute

// MemoryRateCache is a process-local RateCache. Expired entries are dropped on
// read and swept on write, and the entry count never exceeds its limit.
type MemoryRateCache struct {
	now        func() time.Time
	maxEntries int
	mu         sync.RWMutex
	m          map[string]memoryRateEntry
	nextSweep  time.Time
}

type memoryRateEntry struct {
	rates   []domain.Rate
	expires time.Time
}

// MemoryCacheOption customises a MemoryRateCache.
type MemoryCacheOption func(*MemoryRateCache)

// WithMaxEntries caps the number of cached keys. Non-positive values keep the default.
func WithMaxEntries(n int) MemoryCacheOption {
	return func(c *MemoryRateCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

func NewMemoryRateCache(now func() time.Time, opts ...MemoryCacheOption) *MemoryRateCache {
	if now == nil {
		now = time.Now
	}
	c := &MemoryRateCache{now: now, maxEntries: DefaultMemoryCacheEntries, m: make(map[string]memoryRateEntry)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Len reports how many entries are held, expired or not.
func (c *MemoryRateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}

func (c *MemoryRateCache) Get(_ context.Context, key string) ([]domain.Rate, bool, error) {
	c.mu.RLock()
	entry, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.m, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return append([]domain.Rate(nil), entry.rates...), true, nil
}

func (c *MemoryRateCache) Set(_ context.Context, key string, rates []domain.Rate, ttl time.Duration) error {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.m[key]
	if !now.Before(c.nextSweep) || (!exists && len(c.m) >= c.maxEntries) {
		c.sweepLocked(now)
	}
	if !exists && len(c.m) >= c.maxEntries {
		c.evictSoonestLocked()
	}
	c.m[key] = memoryRateEntry{rates: append([]domain.Rate(nil), rates...), expires: now.Add(ttl)}
	return nil
}

func (c *MemoryRateCache) sweepLocked(now time.Time) {
	for k, entry := range c.m {
		if now.After(entry.expires) {
			delete(c.m, k)
		}
	}
	c.nextSweep = now.Add(memorySweepInterval)
}

// evictSoonestLocked drops the live entry closest to expiry.
func (c *MemoryRateCache) evictSoonestLocked() {
	var (
		victim  string
		soonest time.Time
		found   bool
	)
	for k, entry := range c.m {
		if !found || entry.expires.Before(soonest) {
			victim, soonest, found = k, entry.expires, true
		}
	}
	if found {
		delete(c.m, victim)
	}
}
