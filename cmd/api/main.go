package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/carriers"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/handlers"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/platform/config"
	pfirestore "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/platform/firestore"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/platform/observability"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/platform/secrets"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/repositories"
	firestoreRepo "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/repositories/firestore"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/repositories/seed"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/services"
)

const meterName = "github.com/iradwatkins/uvcoatedclubflyers-sub002/cmd/api"

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(os.Getenv("API_LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	meter := otel.GetMeterProvider().Meter(meterName)

	envValues, err := config.EnvironmentValues()
	if err != nil {
		logger.Fatal("failed to read environment values", zap.Error(err))
	}

	fetcher, err := newSecretFetcher(ctx, logger, meter, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, cfg, startedAt)
	events := observability.EventLogger(logger.Named("quotes"))

	var checks []repositories.DependencyCheck

	catalogSource, firestoreProvider, err := newCatalogSource(cfg)
	if err != nil {
		logger.Fatal("failed to initialise catalog source", zap.Error(err))
	}
	if firestoreProvider != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := firestoreProvider.Close(closeCtx); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}()
		if pinger, ok := catalogSource.(interface{ Ping(context.Context) error }); ok {
			checks = append(checks, repositories.DependencyCheck{
				Name:    "firestore",
				Timeout: 1500 * time.Millisecond,
				Check:   pinger.Ping,
			})
		}
	}

	calculator, err := services.NewPricingCalculator(ctx, services.PricingCalculatorDeps{
		Catalog: catalogSource,
		Logger:  events,
	})
	if err != nil {
		logger.Fatal("failed to load pricing catalog", zap.Error(err))
	}
	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	defer stopRefresh()
	calculator.StartRefresh(refreshCtx, cfg.Catalog.RefreshInterval)
	checks = append(checks, repositories.DependencyCheck{
		Name:     "catalog",
		Critical: true,
		Check: func(context.Context) error {
			if calculator.LoadedAt().IsZero() {
				return services.ErrPricingCatalogUnavailable
			}
			return nil
		},
	})

	rateCache, redisClient, err := newRateCache(cfg.Cache)
	if err != nil {
		logger.Fatal("failed to initialise rate cache", zap.Error(err))
	}
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		if pinger, ok := rateCache.(interface{ Ping(context.Context) error }); ok {
			checks = append(checks, repositories.DependencyCheck{
				Name:  "redis",
				Check: pinger.Ping,
			})
		}
	}

	registry, err := newShippingRegistry(cfg, rateCache, events)
	if err != nil {
		logger.Fatal("failed to initialise carrier registry", zap.Error(err))
	}
	if len(registry.EnabledModules()) == 0 {
		logger.Warn("no carriers enabled; shipping quotes will be unavailable")
	}

	splitter, err := services.NewBoxSplitter(cfg.Shipping.MaxBoxWeightLbs, services.BoxDimensions{
		LengthIn: cfg.Shipping.BoxLengthIn,
		WidthIn:  cfg.Shipping.BoxWidthIn,
		HeightIn: cfg.Shipping.BoxHeightIn,
	}, services.WithMaxPackages(cfg.Shipping.MaxPackages))
	if err != nil {
		logger.Fatal("failed to initialise box splitter", zap.Error(err))
	}

	origin := cfg.Shipping.Origin
	aggregator, err := services.NewShippingAggregator(services.ShippingAggregatorDeps{
		Registry: registry,
		Splitter: splitter,
		Origin: domain.ShippingAddress{
			Street:  origin.Street,
			Street2: origin.Street2,
			City:    origin.City,
			State:   origin.State,
			ZipCode: origin.ZipCode,
			Country: origin.Country,
		},
		AllowedServices: cfg.Shipping.AllowedServices,
		Timeout:         cfg.Shipping.AggregateTimeout,
		ProviderTimeout: cfg.Shipping.ProviderTimeout,
		Meter:           meter,
		Logger:          events,
	})
	if err != nil {
		logger.Fatal("failed to initialise shipping aggregator", zap.Error(err))
	}

	engine, err := services.NewQuotationEngine(services.QuotationEngineDeps{
		Pricing:  calculator,
		Shipping: aggregator,
		Logger:   events,
	})
	if err != nil {
		logger.Fatal("failed to initialise quotation engine", zap.Error(err))
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		logger.Fatal("failed to initialise health repository", zap.Error(err))
	}
	systemService, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: healthRepo,
		Catalog:          calculator,
		Registry:         registry,
		Build:            buildInfo,
	})
	if err != nil {
		logger.Fatal("failed to initialise system service", zap.Error(err))
	}

	httpLogger := logger.Named("http")
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(systemService),
	)
	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(httpLogger),
			observability.TraceMiddleware("quote-api"),
			observability.RecoveryMiddleware(httpLogger),
			observability.RequestLoggerMiddleware(),
		),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithQuoteRoutes(handlers.NewQuoteHandlers(engine).Routes),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(calculator).Routes),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := httpLogger.With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("quotation api listening", listenFields(cfg, registry)...)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")
	stopRefresh()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// listenFields describes the running configuration in the startup log line.
func listenFields(cfg config.Config, registry *services.ShippingRegistry) []zap.Field {
	return []zap.Field{
		zap.String("catalogSource", cfg.Catalog.Source),
		zap.Any("carriers", registry.Names()),
		zap.Int("maxPackages", cfg.Shipping.MaxPackages),
	}
}

func newCatalogSource(cfg config.Config) (repositories.CatalogRepository, *pfirestore.Provider, error) {
	switch cfg.Catalog.Source {
	case config.CatalogSourceFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		repo, err := firestoreRepo.NewCatalogRepository(provider)
		if err != nil {
			return nil, nil, err
		}
		return repo, provider, nil
	default:
		return seed.NewCatalogRepository(cfg.Catalog.SeedFile), nil, nil
	}
}

func newRateCache(cfg config.CacheConfig) (carriers.RateCache, *redis.Client, error) {
	url := strings.TrimSpace(cfg.RedisURL)
	if url == "" {
		return carriers.NewMemoryRateCache(nil), nil, nil
	}
	client, err := carriers.NewRedisClient(url)
	if err != nil {
		return nil, nil, err
	}
	cache, err := carriers.NewRedisRateCache(client, "")
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return cache, client, nil
}

func newShippingRegistry(cfg config.Config, cache carriers.RateCache, logger func(context.Context, string, map[string]any)) (*services.ShippingRegistry, error) {
	ground := cfg.Carriers.GroundParcel
	air := cfg.Carriers.AirCargo

	groundProvider, err := carriers.NewCachingProvider(
		carriers.NewGroundParcelProvider(carriers.GroundParcelConfig{
			BaseURL:   ground.BaseURL,
			APIKey:    ground.APIKey,
			AccountID: ground.AccountID,
		}, carriers.WithTimeout(ground.Timeout)),
		cache, cfg.Cache.RateTTL, logger,
	)
	if err != nil {
		return nil, err
	}
	airProvider, err := carriers.NewCachingProvider(
		carriers.NewAirCargoProvider(carriers.AirCargoConfig{
			BaseURL:        air.BaseURL,
			APIKey:         air.APIKey,
			AccountID:      air.AccountID,
			DefaultAirport: air.DefaultAirport,
		}, carriers.WithTimeout(air.Timeout)),
		cache, cfg.Cache.RateTTL, logger,
	)
	if err != nil {
		return nil, err
	}

	return services.NewShippingRegistry(
		services.ShippingModule{Provider: groundProvider, Enabled: ground.Enabled},
		services.ShippingModule{Provider: airProvider, Enabled: air.Enabled},
	)
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, meter metric.Meter, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		if env == nil {
			return ""
		}
		return strings.TrimSpace(env[key])
	}

	envLabel := strings.ToLower(lookup("API_SECURITY_ENVIRONMENT"))
	if envLabel == "" {
		envLabel = "local"
	}
	defaultProject := lookup("API_SECRET_DEFAULT_PROJECT_ID")
	if defaultProject == "" {
		defaultProject = lookup("API_FIRESTORE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithEnvironment(envLabel),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(meter),
	}
	if projectMap := secretProjectMapFromEnv(env); len(projectMap) > 0 {
		opts = append(opts, secrets.WithProjectMap(projectMap))
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if credentialsFile := lookup("API_SECRET_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the API keys of every carrier switched on in env.
func requiredSecretNames(env map[string]string) []string {
	enabled := func(key string) bool {
		ok, err := strconv.ParseBool(strings.TrimSpace(env[key]))
		return err == nil && ok
	}
	var required []string
	if enabled("API_CARRIER_GROUND_ENABLED") {
		required = append(required, "Carriers.GroundParcel.APIKey")
	}
	if enabled("API_CARRIER_AIR_ENABLED") {
		required = append(required, "Carriers.AirCargo.APIKey")
	}
	return uniqueStrings(required)
}

func secretProjectMapFromEnv(env map[string]string) map[string]string {
	raw := ""
	if env != nil {
		raw = env["API_SECRET_PROJECT_IDS"]
	}
	projects := make(map[string]string)
	for label, project := range parseKeyValueList(raw) {
		projects[strings.ToLower(label)] = project
	}
	return projects
}

func parseKeyValueList(raw string) map[string]string {
	result := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return result
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	sort.Strings(out)
	return out
}
