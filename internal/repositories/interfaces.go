package repositories

import (
	"context"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsUnavailable() bool
}

// CatalogRepository loads the pricing catalog. Implementations are read-only.
type CatalogRepository interface {
	LoadPricingCatalog(ctx context.Context) (domain.PricingCatalog, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
