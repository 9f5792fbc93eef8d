package cache

import (
	"context"
	"time"

	"cosmoshop/backend/internal/domain"
)

type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.RestockReport, bool, error)
	Set(ctx context.Context, key string, value *domain.RestockReport, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.RestockReport, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.RestockReport, _ time.Duration) error {
	return nil
}

func (NoopReportCache) Delete(_ context.Context, _ string) error {
	return nil
}
