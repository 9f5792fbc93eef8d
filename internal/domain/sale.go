package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// NewSaleItem snapshots the product's current prices into a sale line and
// computes its subtotal and profit. The result is immutable from here on;
// the snapshot is what keeps historical records accurate when the product's
// prices change later.
func NewSaleItem(saleID string, p Product, quantity int) SaleItem {
	qty := decimal.NewFromInt(int64(quantity))
	return SaleItem{
		ID:         NewID("item"),
		SaleID:     saleID,
		ProductID:  p.ID,
		ProductSKU: p.SKU,
		Quantity:   quantity,
		UnitPrice:  p.SellingPrice,
		UnitCost:   p.CostPrice,
		Subtotal:   p.SellingPrice.Mul(qty),
		Profit:     p.SellingPrice.Sub(p.CostPrice).Mul(qty),
	}
}

// NewSale assembles a sale header plus items from a draft and the product
// rows the store has already locked and stock-checked. Totals and tax are
// fixed here, once; the sale is never recomputed after creation.
func NewSale(draft SaleDraft, products map[string]Product, now time.Time) Sale {
	sale := Sale{
		ID:            NewID("sale"),
		OrderID:       draft.OrderID,
		Cashier:       draft.Cashier,
		PaymentMethod: draft.PaymentMethod,
		Notes:         draft.Notes,
		CreatedAt:     now,
		Subtotal:      decimal.Zero,
		Profit:        decimal.Zero,
		Items:         make([]SaleItem, 0, len(draft.Lines)),
	}

	for _, line := range draft.Lines {
		item := NewSaleItem(sale.ID, products[line.SKU], line.Quantity)
		sale.Subtotal = sale.Subtotal.Add(item.Subtotal)
		sale.Profit = sale.Profit.Add(item.Profit)
		sale.Items = append(sale.Items, item)
	}

	if draft.TaxAmount != nil {
		sale.Tax = *draft.TaxAmount
	} else {
		sale.Tax = sale.Subtotal.Mul(draft.TaxRatePercent).Div(hundred).Round(2)
	}
	sale.Total = sale.Subtotal.Add(sale.Tax)
	return sale
}
