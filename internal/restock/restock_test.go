package restock

import (
	"context"
	"errors"
	"testing"
	"time"

	"cosmoshop/backend/internal/domain"
)

type fakeCache struct {
	stored  *domain.RestockReport
	sets    int
	deletes int
}

func (f *fakeCache) Get(_ context.Context, _ string) (*domain.RestockReport, bool, error) {
	if f.stored == nil {
		return nil, false, nil
	}
	return f.stored, true, nil
}

func (f *fakeCache) Set(_ context.Context, _ string, value *domain.RestockReport, _ time.Duration) error {
	f.stored = value
	f.sets++
	return nil
}

func (f *fakeCache) Delete(_ context.Context, _ string) error {
	f.stored = nil
	f.deletes++
	return nil
}

func lowStockProducts() []domain.Product {
	return []domain.Product{
		{SKU: "LIP-001", Name: "Velvet Matte Lipstick", Brand: "Aurea", Category: domain.CategoryLips, StockQuantity: 1, RestockThreshold: 10, IsActive: true},
		{SKU: "EYE-002", Name: "Kajal Intense Black", Brand: "Noir Lane", Category: domain.CategoryEyes, StockQuantity: 5, RestockThreshold: 10, IsActive: true},
		{SKU: "SKN-003", Name: "Hydra Boost Serum", Brand: "Derma+", Category: domain.CategorySkincare, StockQuantity: 50, RestockThreshold: 6, IsActive: true},
		{SKU: "ACC-004", Name: "Blending Brush Set", Brand: "ToolKit", Category: domain.CategoryAccessories, StockQuantity: 0, RestockThreshold: 4, IsActive: false},
	}
}

func TestReportRanksByShortfall(t *testing.T) {
	engine := NewEngine(nil, 0)

	report, err := engine.Report(context.Background(), func(context.Context) ([]domain.Product, error) {
		return lowStockProducts(), nil
	})
	if err != nil {
		t.Fatal(err)
	}

	// Well-stocked and inactive products are excluded.
	if len(report.Alerts) != 2 {
		t.Fatalf("got %d alerts, want 2", len(report.Alerts))
	}
	if report.Alerts[0].SKU != "LIP-001" || report.Alerts[0].ShortBy != 9 {
		t.Fatalf("most urgent alert = %+v", report.Alerts[0])
	}
	if report.Alerts[1].SKU != "EYE-002" || report.Alerts[1].ShortBy != 5 {
		t.Fatalf("second alert = %+v", report.Alerts[1])
	}
}

func TestReportServesCachedCopy(t *testing.T) {
	cache := &fakeCache{}
	engine := NewEngine(cache, time.Minute)
	ctx := context.Background()

	loads := 0
	load := func(context.Context) ([]domain.Product, error) {
		loads++
		return lowStockProducts(), nil
	}

	if _, err := engine.Report(ctx, load); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Report(ctx, load); err != nil {
		t.Fatal(err)
	}
	if loads != 1 {
		t.Fatalf("load ran %d times, want 1 (second read cached)", loads)
	}

	engine.Invalidate(ctx)
	if cache.deletes != 1 {
		t.Fatalf("invalidate should delete the cached report")
	}
	if _, err := engine.Report(ctx, load); err != nil {
		t.Fatal(err)
	}
	if loads != 2 {
		t.Fatalf("load after invalidate ran %d times, want 2", loads)
	}
}

func TestReportPropagatesLoadError(t *testing.T) {
	engine := NewEngine(nil, 0)
	boom := errors.New("db down")

	_, err := engine.Report(context.Background(), func(context.Context) ([]domain.Product, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want the load error", err)
	}
}
