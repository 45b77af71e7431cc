package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func load(t *testing.T, env map[string]string, opts ...Option) (Config, error) {
	t.Helper()
	base := []Option{WithEnvMap(env), WithoutSystemEnv(), WithEnvFile("")}
	return Load(context.Background(), append(base, opts...)...)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := load(t, map[string]string{})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Catalog.Source != CatalogSourceSeed {
		t.Errorf("expected seed catalog, got %s", cfg.Catalog.Source)
	}
	if cfg.Shipping.MaxBoxWeightLbs != 36 {
		t.Errorf("expected 36 lbs max box weight, got %v", cfg.Shipping.MaxBoxWeightLbs)
	}
	if cfg.Shipping.MaxPackages != 100 {
		t.Errorf("expected 100 max packages, got %d", cfg.Shipping.MaxPackages)
	}
	if cfg.Shipping.AggregateTimeout != 10*time.Second {
		t.Errorf("expected 10s aggregate timeout, got %s", cfg.Shipping.AggregateTimeout)
	}
	if cfg.Shipping.ProviderTimeout != 0 {
		t.Errorf("expected no provider timeout, got %s", cfg.Shipping.ProviderTimeout)
	}
	if !slices.Contains(cfg.Shipping.AllowedServices, "GROUND") || !slices.Contains(cfg.Shipping.AllowedServices, "air_cargo:NFO") {
		t.Errorf("unexpected default allow-list %v", cfg.Shipping.AllowedServices)
	}
	if cfg.Shipping.Origin.ZipCode != defaultOriginZip {
		t.Errorf("expected default origin zip, got %s", cfg.Shipping.Origin.ZipCode)
	}
	if cfg.Carriers.GroundParcel.Enabled || cfg.Carriers.AirCargo.Enabled {
		t.Errorf("expected carriers disabled by default")
	}
	if cfg.Carriers.AirCargo.DefaultAirport != "ORD" {
		t.Errorf("expected default airport ORD, got %s", cfg.Carriers.AirCargo.DefaultAirport)
	}
	if cfg.Cache.RateTTL != defaultRateCacheTTL {
		t.Errorf("unexpected rate ttl %s", cfg.Cache.RateTTL)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                 "9090",
		"API_CATALOG_SOURCE":              "Firestore",
		"API_FIRESTORE_PROJECT_ID":        "print-prod",
		"API_SHIPPING_MAX_BOX_WEIGHT_LBS": "40.5",
		"API_SHIPPING_ALLOWED_SERVICES":   "GROUND, ground_parcel:TWO_DAY ,",
		"API_SHIPPING_PROVIDER_TIMEOUT":   "4s",
		"API_CARRIER_GROUND_ENABLED":      "yes",
		"API_CARRIER_GROUND_BASE_URL":     "https://ground.example.com",
		"API_CARRIER_GROUND_API_KEY":      "secret://carriers/ground",
		"API_CARRIER_AIR_DEFAULT_AIRPORT": "atl",
		"API_CACHE_REDIS_URL":             "sm://cache/redis",
		"API_SECURITY_ENVIRONMENT":        "PROD",
	}
	secrets := map[string]string{
		"secret://carriers/ground": "ground-key",
		"secret://cache/redis":     "redis://:pw@localhost:6379/0",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := load(t, env, WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Catalog.Source != CatalogSourceFirestore {
		t.Errorf("expected firestore catalog, got %s", cfg.Catalog.Source)
	}
	if cfg.Shipping.MaxBoxWeightLbs != 40.5 {
		t.Errorf("unexpected max box weight %v", cfg.Shipping.MaxBoxWeightLbs)
	}
	if want := []string{"GROUND", "ground_parcel:TWO_DAY"}; !slices.Equal(cfg.Shipping.AllowedServices, want) {
		t.Errorf("expected allow-list %v, got %v", want, cfg.Shipping.AllowedServices)
	}
	if cfg.Shipping.ProviderTimeout != 4*time.Second {
		t.Errorf("unexpected provider timeout %s", cfg.Shipping.ProviderTimeout)
	}
	if !cfg.Carriers.GroundParcel.Enabled {
		t.Errorf("expected ground carrier enabled")
	}
	if cfg.Carriers.GroundParcel.APIKey != "ground-key" {
		t.Errorf("expected resolved api key, got %s", cfg.Carriers.GroundParcel.APIKey)
	}
	if cfg.Carriers.AirCargo.DefaultAirport != "ATL" {
		t.Errorf("expected upper-cased airport, got %s", cfg.Carriers.AirCargo.DefaultAirport)
	}
	if cfg.Cache.RedisURL != "redis://:pw@localhost:6379/0" {
		t.Errorf("expected resolved redis url, got %s", cfg.Cache.RedisURL)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nexport API_SHIPPING_ORIGIN_CITY=\"Atlanta\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Shipping.Origin.City != "Atlanta" {
		t.Errorf("expected origin city from dotenv, got %s", cfg.Shipping.Origin.City)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"API_CATALOG_SOURCE":             "firestore",
		"API_SHIPPING_AGGREGATE_TIMEOUT": "2s",
		"API_SHIPPING_PROVIDER_TIMEOUT":  "5s",
		"API_CARRIER_AIR_ENABLED":        "true",
		"API_SHIPPING_MAX_PACKAGES":      "0",
	}
	_, err := load(t, env)
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T (%v)", err, err)
	}
	for _, field := range []string{"Firestore.ProjectID", "Shipping.ProviderTimeout", "Carriers.AirCargo.BaseURL", "Shipping.MaxPackages"} {
		if !slices.Contains(validation.Fields(), field) {
			t.Errorf("expected %s in %v", field, validation.Fields())
		}
	}
}

func TestLoadRejectsUnknownCatalogSource(t *testing.T) {
	_, err := load(t, map[string]string{"API_CATALOG_SOURCE": "postgres"})
	var validation *ValidationError
	if !errors.As(err, &validation) || !slices.Contains(validation.Fields(), "Catalog.Source") {
		t.Fatalf("expected Catalog.Source validation error, got %v", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	_, err := load(t, map[string]string{"API_CARRIER_AIR_API_KEY": "secret://missing"})
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7000\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_SERVER_PORT", "7100")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{"API_SERVER_PORT": "7200"}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if got := values["API_SERVER_PORT"]; got != "7200" {
		t.Fatalf("expected override port, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	_, err := load(t, map[string]string{}, WithRequiredSecrets("Carriers.GroundParcel.APIKey"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Carriers.GroundParcel.APIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Carriers.AirCargo.APIKey" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	_, _ = load(t, map[string]string{}, WithRequiredSecrets("Carriers.AirCargo.APIKey"), WithPanicOnMissingSecrets())
}
