package cache

import (
	"context"
	"time"

	"tajautos/backend/internal/domain"
)

type RestockCache interface {
	Get(ctx context.Context, key string) (*domain.RestockReport, bool, error)
	Set(ctx context.Context, key string, value *domain.RestockReport, ttl time.Duration) error
}

type NoopRestockCache struct{}

func (NoopRestockCache) Get(_ context.Context, _ string) (*domain.RestockReport, bool, error) {
	return nil, false, nil
}

func (NoopRestockCache) Set(_ context.Context, _ string, _ *domain.RestockReport, _ time.Duration) error {
	return nil
}
