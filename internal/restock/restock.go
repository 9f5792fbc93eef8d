// Package restock builds low-stock reports for the catalog: every active
// product whose quantity has fallen to or below its restock threshold,
// most urgent first.
package restock

import (
	"context"
	"sort"
	"time"

	"cosmoshop/backend/internal/cache"
	"cosmoshop/backend/internal/domain"
)

const reportKey = "pos:restock:report"

type Engine struct {
	cache    cache.ReportCache
	cacheTTL time.Duration
}

func NewEngine(cacheStore cache.ReportCache, cacheTTL time.Duration) *Engine {
	if cacheStore == nil {
		cacheStore = cache.NoopReportCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Engine{
		cache:    cacheStore,
		cacheTTL: cacheTTL,
	}
}

// Report returns the current restock report, serving a cached copy when one
// is fresh. load fetches the low-stock products when the cache misses; a
// cache error degrades to a live load, never to a failed report.
func (e *Engine) Report(ctx context.Context, load func(ctx context.Context) ([]domain.Product, error)) (*domain.RestockReport, error) {
	if cached, ok, err := e.cache.Get(ctx, reportKey); err == nil && ok {
		return cached, nil
	}

	products, err := load(ctx)
	if err != nil {
		return nil, err
	}

	alerts := make([]domain.RestockAlert, 0, len(products))
	for _, p := range products {
		if !p.IsActive || !p.NeedsRestock() {
			continue
		}
		alerts = append(alerts, domain.RestockAlert{
			SKU:              p.SKU,
			Name:             p.Name,
			Brand:            p.Brand,
			Category:         p.Category,
			StockQuantity:    p.StockQuantity,
			RestockThreshold: p.RestockThreshold,
			ShortBy:          p.RestockThreshold - p.StockQuantity,
		})
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].ShortBy != alerts[j].ShortBy {
			return alerts[i].ShortBy > alerts[j].ShortBy
		}
		return alerts[i].SKU < alerts[j].SKU
	})

	report := &domain.RestockReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Alerts:      alerts,
	}
	_ = e.cache.Set(ctx, reportKey, report, e.cacheTTL)
	return report, nil
}

// Invalidate drops the cached report after a stock mutation so the next
// read reflects the new quantities.
func (e *Engine) Invalidate(ctx context.Context) {
	_ = e.cache.Delete(ctx, reportKey)
}
