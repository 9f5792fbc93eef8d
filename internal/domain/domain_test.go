package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCategoryValid(t *testing.T) {
	for _, c := range []Category{CategoryLips, CategoryEyes, CategoryFace, CategorySkincare, CategoryAccessories} {
		if !c.Valid() {
			t.Errorf("expected %s to be valid", c)
		}
	}
	if Category("HAIR").Valid() {
		t.Error("expected HAIR to be invalid")
	}
	if Category("lips").Valid() {
		t.Error("categories are case sensitive")
	}
}

func TestPaymentMethodValid(t *testing.T) {
	for _, m := range []PaymentMethod{PaymentCash, PaymentCard, PaymentUPI} {
		if !m.Valid() {
			t.Errorf("expected %s to be valid", m)
		}
	}
	if PaymentMethod("CHEQUE").Valid() {
		t.Error("expected CHEQUE to be invalid")
	}
}

func TestProductDerivedFields(t *testing.T) {
	p := Product{
		CostPrice:        decimal.RequireFromString("10.00"),
		SellingPrice:     decimal.RequireFromString("18.00"),
		StockQuantity:    5,
		RestockThreshold: 5,
	}

	if !p.NeedsRestock() {
		t.Error("stock equal to threshold should need restock")
	}
	p.StockQuantity = 6
	if p.NeedsRestock() {
		t.Error("stock above threshold should not need restock")
	}

	if got := p.ProfitPerUnit(); !got.Equal(decimal.RequireFromString("8.00")) {
		t.Errorf("profit per unit = %s, want 8.00", got)
	}
	if got := p.ProfitPercentage(); !got.Equal(decimal.RequireFromString("80.00")) {
		t.Errorf("profit percentage = %s, want 80.00", got)
	}
}

func TestProfitPercentageZeroCost(t *testing.T) {
	p := Product{CostPrice: decimal.Zero, SellingPrice: decimal.RequireFromString("5.00")}
	if got := p.ProfitPercentage(); !got.IsZero() {
		t.Errorf("profit percentage with zero cost = %s, want 0", got)
	}
}

func TestNewSaleTotals(t *testing.T) {
	products := map[string]Product{
		"LIP-001": {
			ID: "p1", SKU: "LIP-001",
			CostPrice:    decimal.RequireFromString("10.00"),
			SellingPrice: decimal.RequireFromString("18.00"),
		},
		"EYE-002": {
			ID: "p2", SKU: "EYE-002",
			CostPrice:    decimal.RequireFromString("3.20"),
			SellingPrice: decimal.RequireFromString("7.50"),
		},
	}
	draft := SaleDraft{
		OrderID:        "#ORD-AAAA1111",
		Cashier:        "priya",
		PaymentMethod:  PaymentCash,
		TaxRatePercent: decimal.RequireFromString("18"),
		Lines: []SaleLine{
			{SKU: "LIP-001", Quantity: 2},
			{SKU: "EYE-002", Quantity: 1},
		},
	}

	sale := NewSale(draft, products, time.Now().UTC())

	if !sale.Subtotal.Equal(decimal.RequireFromString("43.50")) {
		t.Errorf("subtotal = %s, want 43.50", sale.Subtotal)
	}
	if !sale.Tax.Equal(decimal.RequireFromString("7.83")) {
		t.Errorf("tax = %s, want 7.83", sale.Tax)
	}
	if !sale.Total.Equal(decimal.RequireFromString("51.33")) {
		t.Errorf("total = %s, want 51.33", sale.Total)
	}
	if !sale.Profit.Equal(decimal.RequireFromString("20.30")) {
		t.Errorf("profit = %s, want 20.30", sale.Profit)
	}

	sumItems := decimal.Zero
	for _, item := range sale.Items {
		sumItems = sumItems.Add(item.Subtotal)
		if item.SaleID != sale.ID {
			t.Errorf("item %s not linked to sale", item.ID)
		}
	}
	if !sumItems.Equal(sale.Subtotal) {
		t.Errorf("item subtotals %s do not add up to %s", sumItems, sale.Subtotal)
	}
}

func TestNewSaleExplicitTaxAmount(t *testing.T) {
	products := map[string]Product{
		"LIP-001": {
			SKU:          "LIP-001",
			CostPrice:    decimal.RequireFromString("10.00"),
			SellingPrice: decimal.RequireFromString("18.00"),
		},
	}
	amount := decimal.RequireFromString("2.50")
	draft := SaleDraft{
		OrderID:        "#ORD-BBBB2222",
		PaymentMethod:  PaymentCard,
		TaxRatePercent: decimal.RequireFromString("18"),
		TaxAmount:      &amount,
		Lines:          []SaleLine{{SKU: "LIP-001", Quantity: 1}},
	}

	sale := NewSale(draft, products, time.Now().UTC())
	if !sale.Tax.Equal(amount) {
		t.Errorf("tax = %s, want explicit 2.50", sale.Tax)
	}
	if !sale.Total.Equal(decimal.RequireFromString("20.50")) {
		t.Errorf("total = %s, want 20.50", sale.Total)
	}
}

func TestNewSaleItemSnapshots(t *testing.T) {
	p := Product{
		ID: "p1", SKU: "SKN-003",
		CostPrice:    decimal.RequireFromString("22.00"),
		SellingPrice: decimal.RequireFromString("45.00"),
	}
	item := NewSaleItem("sale-1", p, 3)

	if !item.UnitPrice.Equal(p.SellingPrice) || !item.UnitCost.Equal(p.CostPrice) {
		t.Error("item must snapshot the product's prices")
	}
	if !item.Subtotal.Equal(decimal.RequireFromString("135.00")) {
		t.Errorf("subtotal = %s, want 135.00", item.Subtotal)
	}
	if !item.Profit.Equal(decimal.RequireFromString("69.00")) {
		t.Errorf("profit = %s, want 69.00", item.Profit)
	}
}

func TestNewOrderIDFormat(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := NewOrderID()
		if !ValidOrderID(id) {
			t.Fatalf("generated order id %q does not match expected format", id)
		}
	}
}

func TestNewOrderIDUniqueness(t *testing.T) {
	const n = 100_000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := NewOrderID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate order id after %d draws: %s", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestValidOrderID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"#ORD-1A2B3C4D", true},
		{"#ORD-00000000", true},
		{"#ORD-GGGGGGGG", false},
		{"#ORD-1a2b3c4d", false},
		{"#ORD-1234567", false},
		{"#ORD-123456789", false},
		{"ORD-12345678", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := ValidOrderID(tc.id); got != tc.want {
			t.Errorf("ValidOrderID(%q) = %t, want %t", tc.id, got, tc.want)
		}
	}
}
