package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryLips        Category = "LIPS"
	CategoryEyes        Category = "EYES"
	CategoryFace        Category = "FACE"
	CategorySkincare    Category = "SKINCARE"
	CategoryAccessories Category = "ACCESSORIES"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryLips, CategoryEyes, CategoryFace, CategorySkincare, CategoryAccessories:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentCash PaymentMethod = "CASH"
	PaymentCard PaymentMethod = "CARD"
	PaymentUPI  PaymentMethod = "UPI"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentUPI:
		return true
	}
	return false
}

const (
	RoleOwner    = "OWNER"
	RoleEmployee = "EMPLOYEE"
)

// MinPrice is the smallest monetary value accepted for cost and selling prices.
var MinPrice = decimal.NewFromFloat(0.01)

// Actor is the authenticated principal performing an operation. Accounts are
// managed by an external identity provider; the backend only stamps the
// username onto sales and receipts.
type Actor struct {
	Username string
	Role     string
}

type Product struct {
	ID               string          `json:"id"`
	SKU              string          `json:"sku"`
	Name             string          `json:"name"`
	Brand            string          `json:"brand"`
	Category         Category        `json:"category"`
	Description      string          `json:"description,omitempty"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	SellingPrice     decimal.Decimal `json:"selling_price"`
	StockQuantity    int             `json:"stock_quantity"`
	RestockThreshold int             `json:"restock_threshold"`
	IsActive         bool            `json:"is_active"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (p Product) NeedsRestock() bool {
	return p.StockQuantity <= p.RestockThreshold
}

func (p Product) ProfitPerUnit() decimal.Decimal {
	return p.SellingPrice.Sub(p.CostPrice)
}

func (p Product) ProfitPercentage() decimal.Decimal {
	if !p.CostPrice.IsPositive() {
		return decimal.Zero
	}
	return p.ProfitPerUnit().Div(p.CostPrice).Mul(decimal.NewFromInt(100)).Round(2)
}

// StockReceipt is an append-only record of an incoming shipment. Committing a
// receipt and incrementing the product's stock happen in one atomic unit; the
// row is immutable afterwards.
type StockReceipt struct {
	ID                 string          `json:"id"`
	ProductID          string          `json:"product_id"`
	ProductSKU         string          `json:"product_sku"`
	Quantity           int             `json:"quantity"`
	CostPriceAtReceipt decimal.Decimal `json:"cost_price_at_receipt"`
	SupplierName       string          `json:"supplier_name,omitempty"`
	SupplierNotes      string          `json:"supplier_notes,omitempty"`
	ReceivedBy         string          `json:"received_by"`
	ReceivedAt         time.Time       `json:"received_at"`
}

// SaleItem is a line of a sale. UnitPrice and UnitCost are snapshots of the
// product's prices at the moment of sale; later product edits never change
// them. Subtotal and Profit are computed once at construction.
type SaleItem struct {
	ID         string          `json:"id"`
	SaleID     string          `json:"sale_id"`
	ProductID  string          `json:"product_id"`
	ProductSKU string          `json:"product_sku"`
	Quantity   int             `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Profit     decimal.Decimal `json:"profit"`
}

type Sale struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"order_id"`
	Cashier       string          `json:"cashier"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Tax           decimal.Decimal `json:"tax"`
	Total         decimal.Decimal `json:"total"`
	Profit        decimal.Decimal `json:"profit"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	Items         []SaleItem      `json:"items"`
}

// SaleLine is one requested line of a sale draft, keyed by SKU.
type SaleLine struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// SaleDraft carries everything the store needs to commit a sale atomically.
// Price snapshots and totals are computed under the store's lock, not here.
type SaleDraft struct {
	OrderID        string
	Cashier        string
	PaymentMethod  PaymentMethod
	TaxRatePercent decimal.Decimal
	TaxAmount      *decimal.Decimal
	Notes          string
	Lines          []SaleLine
}

type ProductFilter struct {
	Category     *Category
	Active       *bool
	NeedsRestock bool
	Limit        int
}

type ReceiptFilter struct {
	ProductSKU string
	ReceivedBy string
	From       *time.Time
	To         *time.Time
	Limit      int
}

type SaleFilter struct {
	Cashier string
	From    *time.Time
	To      *time.Time
	Limit   int
}

type ProductCreateRequest struct {
	SKU              string          `json:"sku" validate:"required"`
	Name             string          `json:"name" validate:"required"`
	Brand            string          `json:"brand" validate:"required"`
	Category         string          `json:"category" validate:"required"`
	Description      string          `json:"description"`
	CostPrice        decimal.Decimal `json:"cost_price"`
	SellingPrice     decimal.Decimal `json:"selling_price"`
	RestockThreshold int             `json:"restock_threshold" validate:"gte=0"`
}

type ProductUpdateRequest struct {
	Name             *string          `json:"name,omitempty"`
	Brand            *string          `json:"brand,omitempty"`
	Category         *string          `json:"category,omitempty"`
	Description      *string          `json:"description,omitempty"`
	CostPrice        *decimal.Decimal `json:"cost_price,omitempty"`
	SellingPrice     *decimal.Decimal `json:"selling_price,omitempty"`
	RestockThreshold *int             `json:"restock_threshold,omitempty"`
	IsActive         *bool            `json:"is_active,omitempty"`
}

type ReceiptCreateRequest struct {
	SKU           string          `json:"sku" validate:"required"`
	Quantity      int             `json:"quantity" validate:"required,gt=0"`
	CostPrice     decimal.Decimal `json:"cost_price"`
	SupplierName  string          `json:"supplier_name"`
	SupplierNotes string          `json:"supplier_notes"`
}

type SaleLineRequest struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

type SaleCreateRequest struct {
	OrderID        string            `json:"order_id,omitempty"`
	PaymentMethod  string            `json:"payment_method" validate:"required"`
	TaxAmount      *decimal.Decimal  `json:"tax_amount,omitempty"`
	TaxRatePercent *decimal.Decimal  `json:"tax_rate_percent,omitempty"`
	Notes          string            `json:"notes"`
	Items          []SaleLineRequest `json:"items" validate:"required,min=1,dive"`
}

type RestockAlert struct {
	SKU              string   `json:"sku"`
	Name             string   `json:"name"`
	Brand            string   `json:"brand"`
	Category         Category `json:"category"`
	StockQuantity    int      `json:"stock_quantity"`
	RestockThreshold int      `json:"restock_threshold"`
	ShortBy          int      `json:"short_by"`
}

type RestockReport struct {
	GeneratedAt string         `json:"generated_at"`
	Alerts      []RestockAlert `json:"alerts"`
}
