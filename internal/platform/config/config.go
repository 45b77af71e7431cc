package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultSecurityEnvironment = "local"
	defaultCatalogSource       = CatalogSourceSeed
	defaultCatalogRefresh      = 5 * time.Minute
	defaultMaxBoxWeightLbs     = 36.0
	defaultMaxPackages         = 100
	defaultBoxSideIn           = 12.0
	defaultAggregateTimeout    = 10 * time.Second
	defaultRateCacheTTL        = 10 * time.Minute
	defaultCarrierTimeout      = 8 * time.Second
	defaultAllowedServices     = "GROUND,HOME_DELIVERY,TWO_DAY,OVERNIGHT,air_cargo:NFO,air_cargo:STANDARD_AIR"
	defaultOriginStreet        = "1300 Basswood Road"
	defaultOriginCity          = "Schaumburg"
	defaultOriginState         = "IL"
	defaultOriginZip           = "60173"
	defaultOriginCountry       = "US"
	defaultAirCargoAirport     = "ORD"
)

// Catalog sources accepted by CatalogConfig.Source.
const (
	CatalogSourceSeed      = "seed"
	CatalogSourceFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Catalog   CatalogConfig
	Shipping  ShippingConfig
	Carriers  CarriersConfig
	Cache     CacheConfig
	Security  SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// CatalogConfig selects where the pricing catalog is read from.
type CatalogConfig struct {
	Source          string
	SeedFile        string
	RefreshInterval time.Duration
}

// AddressConfig is a postal address supplied through the environment.
type AddressConfig struct {
	Street  string
	Street2 string
	City    string
	State   string
	ZipCode string
	Country string
}

// ShippingConfig holds the constants the shipping aggregator runs with.
type ShippingConfig struct {
	Origin           AddressConfig
	MaxBoxWeightLbs  float64
	MaxPackages      int
	BoxLengthIn      float64
	BoxWidthIn       float64
	BoxHeightIn      float64
	AggregateTimeout time.Duration
	ProviderTimeout  time.Duration
	AllowedServices  []string
}

// CarriersConfig groups per-carrier settings.
type CarriersConfig struct {
	GroundParcel CarrierConfig
	AirCargo     CarrierConfig
}

// CarrierConfig configures one carrier rate API.
type CarrierConfig struct {
	Enabled        bool
	BaseURL        string
	APIKey         string
	AccountID      string
	Timeout        time.Duration
	DefaultAirport string
}

// CacheConfig controls carrier rate caching. An empty RedisURL keeps the cache in memory.
type CacheConfig struct {
	RateTTL  time.Duration
	RedisURL string
}

// SecurityConfig names the deployment environment.
type SecurityConfig struct {
	Environment string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	secrets []missingSecret
}

type missingSecret struct {
	name     string
	redacted string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.secrets) == 0 {
		return "missing required secrets"
	}
	names := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		names = append(names, secret.redacted)
	}
	sort.Strings(names)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(names, ", "))
}

// RedactedNames returns a copy of the redacted secret identifiers.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.redacted)
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil || len(e.secrets) == 0 {
		return nil
	}
	out := make([]string, 0, len(e.secrets))
	for _, secret := range e.secrets {
		out = append(out, secret.name)
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

// Snapshot captures the resolved environment values used during loading so callers can construct
// dependent components (e.g., secret fetcher) with the same inputs.
type Snapshot struct {
	EnvFile         string
	Values          map[string]string
	ResolvedSecrets map[string]string
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map). Callers can use the result to initialise
// dependencies before invoking Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	merge := func(source map[string]string) {
		if source == nil {
			return
		}
		for key, value := range source {
			values[key] = value
		}
	}

	merge(dotEnvValues)

	if options.useSystemEnv {
		system := make(map[string]string)
		for _, entry := range os.Environ() {
			if entry == "" {
				continue
			}
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				continue
			}
			key := strings.TrimSpace(parts[0])
			if key == "" {
				continue
			}
			system[key] = parts[1]
		}
		merge(system)
	}

	merge(options.envMap)

	return values, nil
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers should match the config field names recorded by the loader
// (e.g. "Carriers.GroundParcel.APIKey").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}

	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Catalog: CatalogConfig{
			Source:          strings.ToLower(stringWithDefault(lookup, "API_CATALOG_SOURCE", defaultCatalogSource)),
			SeedFile:        stringWithDefault(lookup, "API_CATALOG_SEED_FILE", ""),
			RefreshInterval: durationWithDefault(lookup, "API_CATALOG_REFRESH_INTERVAL", defaultCatalogRefresh),
		},
		Shipping: ShippingConfig{
			Origin: AddressConfig{
				Street:  stringWithDefault(lookup, "API_SHIPPING_ORIGIN_STREET", defaultOriginStreet),
				Street2: stringWithDefault(lookup, "API_SHIPPING_ORIGIN_STREET2", ""),
				City:    stringWithDefault(lookup, "API_SHIPPING_ORIGIN_CITY", defaultOriginCity),
				State:   stringWithDefault(lookup, "API_SHIPPING_ORIGIN_STATE", defaultOriginState),
				ZipCode: stringWithDefault(lookup, "API_SHIPPING_ORIGIN_ZIP", defaultOriginZip),
				Country: stringWithDefault(lookup, "API_SHIPPING_ORIGIN_COUNTRY", defaultOriginCountry),
			},
			MaxBoxWeightLbs:  floatWithDefault(lookup, "API_SHIPPING_MAX_BOX_WEIGHT_LBS", defaultMaxBoxWeightLbs),
			MaxPackages:      intWithDefault(lookup, "API_SHIPPING_MAX_PACKAGES", defaultMaxPackages),
			BoxLengthIn:      floatWithDefault(lookup, "API_SHIPPING_BOX_LENGTH_IN", defaultBoxSideIn),
			BoxWidthIn:       floatWithDefault(lookup, "API_SHIPPING_BOX_WIDTH_IN", defaultBoxSideIn),
			BoxHeightIn:      floatWithDefault(lookup, "API_SHIPPING_BOX_HEIGHT_IN", defaultBoxSideIn),
			AggregateTimeout: durationWithDefault(lookup, "API_SHIPPING_AGGREGATE_TIMEOUT", defaultAggregateTimeout),
			ProviderTimeout:  durationWithDefault(lookup, "API_SHIPPING_PROVIDER_TIMEOUT", 0),
			AllowedServices:  csvWithDefault(lookup, "API_SHIPPING_ALLOWED_SERVICES", defaultAllowedServices),
		},
		Carriers: CarriersConfig{
			GroundParcel: CarrierConfig{
				Enabled:   boolWithDefault(lookup, "API_CARRIER_GROUND_ENABLED", false),
				BaseURL:   stringWithDefault(lookup, "API_CARRIER_GROUND_BASE_URL", ""),
				APIKey:    stringWithDefault(lookup, "API_CARRIER_GROUND_API_KEY", ""),
				AccountID: stringWithDefault(lookup, "API_CARRIER_GROUND_ACCOUNT_ID", ""),
				Timeout:   durationWithDefault(lookup, "API_CARRIER_GROUND_TIMEOUT", defaultCarrierTimeout),
			},
			AirCargo: CarrierConfig{
				Enabled:        boolWithDefault(lookup, "API_CARRIER_AIR_ENABLED", false),
				BaseURL:        stringWithDefault(lookup, "API_CARRIER_AIR_BASE_URL", ""),
				APIKey:         stringWithDefault(lookup, "API_CARRIER_AIR_API_KEY", ""),
				AccountID:      stringWithDefault(lookup, "API_CARRIER_AIR_ACCOUNT_ID", ""),
				Timeout:        durationWithDefault(lookup, "API_CARRIER_AIR_TIMEOUT", defaultCarrierTimeout),
				DefaultAirport: strings.ToUpper(stringWithDefault(lookup, "API_CARRIER_AIR_DEFAULT_AIRPORT", defaultAirCargoAirport)),
			},
		},
		Cache: CacheConfig{
			RateTTL:  durationWithDefault(lookup, "API_CACHE_RATE_TTL", defaultRateCacheTTL),
			RedisURL: stringWithDefault(lookup, "API_CACHE_REDIS_URL", ""),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
	}

	resolvedSecrets := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Carriers.GroundParcel.APIKey", &cfg.Carriers.GroundParcel.APIKey},
		{"Carriers.AirCargo.APIKey", &cfg.Carriers.AirCargo.APIKey},
		{"Cache.RedisURL", &cfg.Cache.RedisURL},
	}
	for _, target := range secretFields {
		resolved, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = resolved
		resolvedSecrets[target.name] = strings.TrimSpace(resolved)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolvedSecrets); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" {
		return value, nil
	}
	if !isSecretReference(value) {
		return value, nil
	}
	if resolver == nil {
		normalized := normalizeSecretReference(value)
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	normalized := normalizeSecretReference(value)
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	require := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	require(cfg.Server.Port != "", "Server.Port")
	switch cfg.Catalog.Source {
	case CatalogSourceSeed:
	case CatalogSourceFirestore:
		require(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	default:
		invalid = append(invalid, "Catalog.Source")
	}
	require(cfg.Catalog.RefreshInterval >= 0, "Catalog.RefreshInterval")

	origin := cfg.Shipping.Origin
	require(strings.TrimSpace(origin.Street) != "", "Shipping.Origin.Street")
	require(strings.TrimSpace(origin.City) != "", "Shipping.Origin.City")
	require(strings.TrimSpace(origin.State) != "", "Shipping.Origin.State")
	require(strings.TrimSpace(origin.ZipCode) != "", "Shipping.Origin.ZipCode")
	require(strings.TrimSpace(origin.Country) != "", "Shipping.Origin.Country")
	require(cfg.Shipping.MaxBoxWeightLbs > 0 && cfg.Shipping.MaxBoxWeightLbs <= 10000, "Shipping.MaxBoxWeightLbs")
	require(cfg.Shipping.MaxPackages > 0 && cfg.Shipping.MaxPackages <= 10000, "Shipping.MaxPackages")
	require(cfg.Shipping.BoxLengthIn > 0 && cfg.Shipping.BoxWidthIn > 0 && cfg.Shipping.BoxHeightIn > 0, "Shipping.Box")
	require(cfg.Shipping.AggregateTimeout > 0, "Shipping.AggregateTimeout")
	require(cfg.Shipping.ProviderTimeout >= 0 && cfg.Shipping.ProviderTimeout <= cfg.Shipping.AggregateTimeout, "Shipping.ProviderTimeout")

	if cfg.Carriers.GroundParcel.Enabled {
		require(cfg.Carriers.GroundParcel.BaseURL != "", "Carriers.GroundParcel.BaseURL")
	}
	if cfg.Carriers.AirCargo.Enabled {
		require(cfg.Carriers.AirCargo.BaseURL != "", "Carriers.AirCargo.BaseURL")
	}
	require(cfg.Cache.RateTTL >= 0, "Cache.RateTTL")

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	if len(required) == 0 {
		return nil
	}
	missing := make([]missingSecret, 0, len(required))
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if value := strings.TrimSpace(resolved[trimmed]); value != "" {
			continue
		}
		missing = append(missing, missingSecret{
			name:     trimmed,
			redacted: redactSecretName(trimmed),
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{secrets: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		value = strings.Trim(value, "\"'")
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key, fallback string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		raw = fallback
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
