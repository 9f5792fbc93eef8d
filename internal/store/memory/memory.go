package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"cosmoshop/backend/internal/domain"
	"cosmoshop/backend/internal/store"
)

// Store is an in-memory Repository used for dev/demo mode and tests. A single
// mutex serializes all stock-affecting operations, which gives the same
// atomicity guarantee the postgres store gets from serializable transactions:
// the stock check and the stock mutation happen under one critical section,
// and every write path validates everything before mutating anything.
type Store struct {
	mu           sync.RWMutex
	products     map[string]domain.Product
	receipts     []domain.StockReceipt
	salesByOrder map[string]domain.Sale
}

func New() *Store {
	return &Store{
		products:     make(map[string]domain.Product),
		receipts:     make([]domain.StockReceipt, 0, 64),
		salesByOrder: make(map[string]domain.Sale),
	}
}

// NewSeeded returns a store preloaded with a small cosmetics catalog for
// dev/demo mode. Stock starts at zero; receive stock through the ledger.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	seed := []struct {
		sku, name, brand string
		category         domain.Category
		cost, price      string
		threshold        int
	}{
		{"LIP-VEL-001", "Velvet Matte Lipstick", "Aurea", domain.CategoryLips, "10.00", "18.00", 10},
		{"LIP-GLS-002", "Glass Shine Gloss", "Aurea", domain.CategoryLips, "6.50", "12.00", 10},
		{"EYE-KJL-001", "Kajal Intense Black", "Noir Lane", domain.CategoryEyes, "3.20", "7.50", 15},
		{"EYE-PAL-004", "Sunset Eyeshadow Palette", "Noir Lane", domain.CategoryEyes, "14.00", "29.00", 5},
		{"FCE-FND-010", "Silk Finish Foundation", "Derma+", domain.CategoryFace, "11.75", "24.50", 8},
		{"SKN-SRM-003", "Hydra Boost Serum", "Derma+", domain.CategorySkincare, "22.00", "45.00", 6},
		{"SKN-CLN-007", "Gentle Foam Cleanser", "Derma+", domain.CategorySkincare, "5.40", "11.90", 12},
		{"ACC-BRS-002", "Blending Brush Set", "ToolKit", domain.CategoryAccessories, "8.00", "19.00", 4},
	}
	for _, p := range seed {
		cost, _ := decimal.NewFromString(p.cost)
		price, _ := decimal.NewFromString(p.price)
		s.products[p.sku] = domain.Product{
			ID:               domain.NewID("prod"),
			SKU:              p.sku,
			Name:             p.name,
			Brand:            p.brand,
			Category:         p.category,
			CostPrice:        cost,
			SellingPrice:     price,
			RestockThreshold: p.threshold,
			IsActive:         true,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
	}
	return s
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if filter.Category != nil && p.Category != *filter.Category {
			continue
		}
		if filter.Active != nil && p.IsActive != *filter.Active {
			continue
		}
		if filter.NeedsRestock && !p.NeedsRestock() {
			continue
		}
		products = append(products, p)
	}

	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	if filter.Limit > 0 && len(products) > filter.Limit {
		products = products[:filter.Limit]
	}
	return products, nil
}

func (s *Store) GetProductBySKU(_ context.Context, sku string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[sku]
	if !ok {
		return nil, fmt.Errorf("product %s: %w", sku, store.ErrNotFound)
	}
	found := p
	return &found, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if p.ID == id {
			found := p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.SKU]; exists {
		return nil, &store.ConflictError{Field: "sku", Value: product.SKU}
	}
	s.products[product.SKU] = product
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.SKU]
	if !exists {
		return nil, fmt.Errorf("product %s: %w", product.SKU, store.ErrNotFound)
	}
	// Stock is mutated only by receipts and sales, never by a product update.
	product.ID = existing.ID
	product.StockQuantity = existing.StockQuantity
	product.CreatedAt = existing.CreatedAt
	s.products[product.SKU] = product
	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, sku string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, exists := s.products[sku]
	if !exists {
		return fmt.Errorf("product %s: %w", sku, store.ErrNotFound)
	}
	for _, r := range s.receipts {
		if r.ProductID == p.ID {
			return &store.ReferenceError{Entity: "product", Key: sku, ReferencedBy: "stock_receipts"}
		}
	}
	for _, sale := range s.salesByOrder {
		for _, item := range sale.Items {
			if item.ProductID == p.ID {
				return &store.ReferenceError{Entity: "product", Key: sku, ReferencedBy: "sale_items"}
			}
		}
	}
	delete(s.products, sku)
	return nil
}

func (s *Store) CreateReceipt(_ context.Context, receipt domain.StockReceipt) (*domain.StockReceipt, error) {
	if receipt.Quantity < 1 || receipt.CostPriceAtReceipt.LessThan(domain.MinPrice) {
		return nil, fmt.Errorf("receipt quantity and cost must be positive: %w", store.ErrValidation)
	}
	if receipt.ID == "" {
		receipt.ID = domain.NewID("rcpt")
	}
	if receipt.ReceivedAt.IsZero() {
		receipt.ReceivedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.products[receipt.ProductSKU]
	if !exists {
		return nil, fmt.Errorf("product %s: %w", receipt.ProductSKU, store.ErrNotFound)
	}

	// Insert and increment are one critical section: both or neither.
	receipt.ProductID = product.ID
	product.StockQuantity += receipt.Quantity
	product.UpdatedAt = receipt.ReceivedAt
	s.products[product.SKU] = product
	s.receipts = append(s.receipts, receipt)

	created := receipt
	return &created, nil
}

func (s *Store) ListReceipts(_ context.Context, filter domain.ReceiptFilter) ([]domain.StockReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockReceipt, 0, len(s.receipts))
	for _, r := range s.receipts {
		if filter.ProductSKU != "" && r.ProductSKU != filter.ProductSKU {
			continue
		}
		if filter.ReceivedBy != "" && r.ReceivedBy != filter.ReceivedBy {
			continue
		}
		if filter.From != nil && r.ReceivedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !r.ReceivedAt.Before(*filter.To) {
			continue
		}
		result = append(result, r)
	}

	slices.SortFunc(result, func(a, b domain.StockReceipt) int {
		if a.ReceivedAt.Equal(b.ReceivedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.ReceivedAt.After(b.ReceivedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) CreateSale(_ context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Lines) == 0 {
		return nil, fmt.Errorf("sale needs at least one line: %w", store.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByOrder[draft.OrderID]; exists {
		return nil, &store.ConflictError{Field: "order_id", Value: draft.OrderID}
	}

	// Validate every line before mutating anything, so a failure on the
	// second line leaves the first line's product untouched. A SKU may
	// appear on only one line: the stock check is per line, and repeated
	// lines could pass it individually yet decrement past zero together.
	resolved := make(map[string]domain.Product, len(draft.Lines))
	for _, line := range draft.Lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("quantity for %s must be positive: %w", line.SKU, store.ErrValidation)
		}
		if _, dup := resolved[line.SKU]; dup {
			return nil, fmt.Errorf("duplicate line for %s: %w", line.SKU, store.ErrValidation)
		}
		product, exists := s.products[line.SKU]
		if !exists {
			return nil, fmt.Errorf("product %s: %w", line.SKU, store.ErrNotFound)
		}
		if !product.IsActive {
			return nil, fmt.Errorf("product %s: %w", line.SKU, store.ErrProductInactive)
		}
		if product.StockQuantity < line.Quantity {
			return nil, &store.InsufficientStockError{
				SKU:       line.SKU,
				Requested: line.Quantity,
				Available: product.StockQuantity,
			}
		}
		resolved[line.SKU] = product
	}

	now := time.Now().UTC()
	sale := domain.NewSale(draft, resolved, now)

	for _, line := range draft.Lines {
		product := s.products[line.SKU]
		product.StockQuantity -= line.Quantity
		product.UpdatedAt = now
		s.products[line.SKU] = product
	}
	s.salesByOrder[sale.OrderID] = sale

	created := cloneSale(sale)
	return &created, nil
}

func (s *Store) GetSaleByOrderID(_ context.Context, orderID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.salesByOrder[orderID]
	if !exists {
		return nil, fmt.Errorf("sale %s: %w", orderID, store.ErrNotFound)
	}
	found := cloneSale(sale)
	return &found, nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Sale, 0, len(s.salesByOrder))
	for _, sale := range s.salesByOrder {
		if filter.Cashier != "" && sale.Cashier != filter.Cashier {
			continue
		}
		if filter.From != nil && sale.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !sale.CreatedAt.Before(*filter.To) {
			continue
		}
		result = append(result, cloneSale(sale))
	}

	slices.SortFunc(result, func(a, b domain.Sale) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return strings.Compare(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// DeleteSale removes the sale header and cascades to its items. Referenced
// products are left untouched; this is record removal, not a refund.
func (s *Store) DeleteSale(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.salesByOrder[orderID]; !exists {
		return fmt.Errorf("sale %s: %w", orderID, store.ErrNotFound)
	}
	delete(s.salesByOrder, orderID)
	return nil
}

func validateProduct(p domain.Product) error {
	if p.SKU == "" || p.Name == "" || p.Brand == "" {
		return fmt.Errorf("sku, name and brand are required: %w", store.ErrValidation)
	}
	if !p.Category.Valid() {
		return fmt.Errorf("unknown category %q: %w", p.Category, store.ErrValidation)
	}
	if p.CostPrice.LessThan(domain.MinPrice) || p.SellingPrice.LessThan(domain.MinPrice) {
		return fmt.Errorf("prices must be at least %s: %w", domain.MinPrice, store.ErrValidation)
	}
	if p.StockQuantity < 0 || p.RestockThreshold < 0 {
		return fmt.Errorf("stock and threshold must be non-negative: %w", store.ErrValidation)
	}
	return nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	cloned := sale
	cloned.Items = make([]domain.SaleItem, len(sale.Items))
	copy(cloned.Items, sale.Items)
	return cloned
}
