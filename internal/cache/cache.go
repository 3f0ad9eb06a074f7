package cache

import (
	"context"
	"time"

	"viandas/backend/internal/domain"
)

// CatalogCache holds a short-lived copy of the product catalog, the most
// frequently read payload (every storefront visit and every till sale form
// lists it).
type CatalogCache interface {
	GetProducts(ctx context.Context) ([]domain.Product, bool, error)
	SetProducts(ctx context.Context, products []domain.Product, ttl time.Duration) error
	// Invalidate drops the cached catalog after any product mutation.
	Invalidate(ctx context.Context) error
}

type NoopCatalogCache struct{}

func (NoopCatalogCache) GetProducts(_ context.Context) ([]domain.Product, bool, error) {
	return nil, false, nil
}

func (NoopCatalogCache) SetProducts(_ context.Context, _ []domain.Product, _ time.Duration) error {
	return nil
}

func (NoopCatalogCache) Invalidate(_ context.Context) error {
	return nil
}
