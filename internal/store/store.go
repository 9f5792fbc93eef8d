package store

import (
	"context"
	"errors"
	"fmt"

	"cosmoshop/backend/internal/domain"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrValidation           = errors.New("validation failed")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrProductInactive      = errors.New("product is inactive")
	ErrConflict             = errors.New("already exists")
	ErrReferentialIntegrity = errors.New("delete blocked by existing references")
)

// InsufficientStockError names the offending product and the requested vs
// available quantity so the caller can render a precise message. It matches
// errors.Is(err, ErrInsufficientStock).
type InsufficientStockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ConflictError reports a uniqueness violation (sku or order_id).
type ConflictError struct {
	Field string
	Value string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// ReferenceError reports a delete blocked by a protected reference.
type ReferenceError struct {
	Entity       string
	Key          string
	ReferencedBy string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("cannot delete %s %q: referenced by %s", e.Entity, e.Key, e.ReferencedBy)
}

func (e *ReferenceError) Unwrap() error { return ErrReferentialIntegrity }

// Repository is the persistence contract for the catalog, the receiving
// ledger and the sale transaction engine. CreateReceipt and CreateSale are
// atomic units of work: the stock mutation and the inserted rows commit or
// roll back together, and the stock check happens inside the same unit as
// the decrement so concurrent sales cannot oversell. A sale draft must not
// repeat a SKU across lines; such drafts fail with ErrValidation.
type Repository interface {
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, sku string) error

	CreateReceipt(ctx context.Context, receipt domain.StockReceipt) (*domain.StockReceipt, error)
	ListReceipts(ctx context.Context, filter domain.ReceiptFilter) ([]domain.StockReceipt, error)

	CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error)
	GetSaleByOrderID(ctx context.Context, orderID string) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	DeleteSale(ctx context.Context, orderID string) error
}
