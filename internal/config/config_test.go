package config

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestLoadDoesNotInjectWeakAuthDefault(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadTaxRate(t *testing.T) {
	t.Setenv("TAX_RATE_PERCENT", "18.5")
	cfg := Load()
	if !cfg.TaxRatePercent.Equal(decimal.RequireFromString("18.5")) {
		t.Fatalf("tax rate = %s, want 18.5", cfg.TaxRatePercent)
	}

	t.Setenv("TAX_RATE_PERCENT", "not-a-number")
	cfg = Load()
	if !cfg.TaxRatePercent.IsZero() {
		t.Fatalf("garbage tax rate should fall back to 0, got %s", cfg.TaxRatePercent)
	}

	t.Setenv("TAX_RATE_PERCENT", "-3")
	cfg = Load()
	if !cfg.TaxRatePercent.IsZero() {
		t.Fatalf("negative tax rate should fall back to 0, got %s", cfg.TaxRatePercent)
	}
}
