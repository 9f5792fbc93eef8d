package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cosmoshop/backend/internal/domain"
	"cosmoshop/backend/internal/restock"
	"cosmoshop/backend/internal/store"
	"cosmoshop/backend/internal/tax"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// ErrForbidden marks operations the actor's role does not allow.
var ErrForbidden = errors.New("forbidden")

// orderIDRetries bounds the retry loop on generated order ids. A collision
// on an 8-hex-char id is close to impossible; three attempts is plenty.
const orderIDRetries = 3

type Service struct {
	repo      store.Repository
	taxes     tax.Policy
	restocker *restock.Engine
}

func New(repo store.Repository, taxes tax.Policy, restocker *restock.Engine) *Service {
	if restocker == nil {
		restocker = restock.NewEngine(nil, 0)
	}

	return &Service{
		repo:      repo,
		taxes:     taxes,
		restocker: restocker,
	}
}

func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if filter.Category != nil && !filter.Category.Valid() {
		return nil, fmt.Errorf("unknown category %q: %w", *filter.Category, store.ErrValidation)
	}
	return s.repo.ListProducts(ctx, filter)
}

// GetProduct resolves by SKU first, then by row id, so both identifiers work
// on the same endpoint.
func (s *Service) GetProduct(ctx context.Context, key string) (domain.Product, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.Product{}, store.ErrValidation
	}

	product, err := s.repo.GetProductBySKU(ctx, strings.ToUpper(key))
	if err == nil {
		return *product, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Product{}, err
	}

	product, err = s.repo.GetProductByID(ctx, key)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.Product{}, fmt.Errorf("owner role required: %w", ErrForbidden)
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Name = strings.TrimSpace(req.Name)
	req.Brand = strings.TrimSpace(req.Brand)

	if req.SKU == "" || req.Name == "" || req.Brand == "" {
		return domain.Product{}, fmt.Errorf("sku, name and brand are required: %w", store.ErrValidation)
	}
	category := domain.Category(strings.ToUpper(strings.TrimSpace(req.Category)))
	if !category.Valid() {
		return domain.Product{}, fmt.Errorf("unknown category %q: %w", req.Category, store.ErrValidation)
	}
	if req.CostPrice.LessThan(domain.MinPrice) || req.SellingPrice.LessThan(domain.MinPrice) {
		return domain.Product{}, fmt.Errorf("prices must be at least %s: %w", domain.MinPrice, store.ErrValidation)
	}
	if req.RestockThreshold < 0 {
		return domain.Product{}, fmt.Errorf("restock threshold must not be negative: %w", store.ErrValidation)
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:               domain.NewID("prod"),
		SKU:              req.SKU,
		Name:             req.Name,
		Brand:            req.Brand,
		Category:         category,
		Description:      strings.TrimSpace(req.Description),
		CostPrice:        req.CostPrice,
		SellingPrice:     req.SellingPrice,
		StockQuantity:    0,
		RestockThreshold: req.RestockThreshold,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] product created sku=%s by=%s", created.SKU, actor.Username)
	s.restocker.Invalidate(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, sku string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return domain.Product{}, fmt.Errorf("owner role required: %w", ErrForbidden)
	}

	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return domain.Product{}, store.ErrValidation
	}

	existing, err := s.repo.GetProductBySKU(ctx, sku)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("name must not be empty: %w", store.ErrValidation)
		}
		updated.Name = name
	}
	if req.Brand != nil {
		brand := strings.TrimSpace(*req.Brand)
		if brand == "" {
			return domain.Product{}, fmt.Errorf("brand must not be empty: %w", store.ErrValidation)
		}
		updated.Brand = brand
	}
	if req.Category != nil {
		category := domain.Category(strings.ToUpper(strings.TrimSpace(*req.Category)))
		if !category.Valid() {
			return domain.Product{}, fmt.Errorf("unknown category %q: %w", *req.Category, store.ErrValidation)
		}
		updated.Category = category
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.CostPrice != nil {
		if req.CostPrice.LessThan(domain.MinPrice) {
			return domain.Product{}, fmt.Errorf("cost price must be at least %s: %w", domain.MinPrice, store.ErrValidation)
		}
		updated.CostPrice = *req.CostPrice
	}
	if req.SellingPrice != nil {
		if req.SellingPrice.LessThan(domain.MinPrice) {
			return domain.Product{}, fmt.Errorf("selling price must be at least %s: %w", domain.MinPrice, store.ErrValidation)
		}
		updated.SellingPrice = *req.SellingPrice
	}
	if req.RestockThreshold != nil {
		if *req.RestockThreshold < 0 {
			return domain.Product{}, fmt.Errorf("restock threshold must not be negative: %w", store.ErrValidation)
		}
		updated.RestockThreshold = *req.RestockThreshold
	}
	if req.IsActive != nil {
		updated.IsActive = *req.IsActive
	}
	updated.UpdatedAt = time.Now().UTC()

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] product updated sku=%s by=%s", saved.SKU, actor.Username)
	s.restocker.Invalidate(ctx)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, sku string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return fmt.Errorf("owner role required: %w", ErrForbidden)
	}

	sku = strings.ToUpper(strings.TrimSpace(sku))
	if sku == "" {
		return store.ErrValidation
	}

	if err := s.repo.DeleteProduct(ctx, sku); err != nil {
		return err
	}

	log.Printf("[service] product deleted sku=%s by=%s", sku, actor.Username)
	s.restocker.Invalidate(ctx)
	return nil
}

func (s *Service) RecordReceipt(ctx context.Context, req domain.ReceiptCreateRequest) (domain.StockReceipt, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.StockReceipt{}, fmt.Errorf("authenticated actor required: %w", ErrForbidden)
	}

	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	if req.SKU == "" {
		return domain.StockReceipt{}, fmt.Errorf("sku is required: %w", store.ErrValidation)
	}
	if req.Quantity < 1 {
		return domain.StockReceipt{}, fmt.Errorf("quantity must be positive: %w", store.ErrValidation)
	}
	if req.CostPrice.LessThan(domain.MinPrice) {
		return domain.StockReceipt{}, fmt.Errorf("cost price must be at least %s: %w", domain.MinPrice, store.ErrValidation)
	}

	receipt := domain.StockReceipt{
		ID:                 domain.NewID("rcpt"),
		ProductSKU:         req.SKU,
		Quantity:           req.Quantity,
		CostPriceAtReceipt: req.CostPrice,
		SupplierName:       strings.TrimSpace(req.SupplierName),
		SupplierNotes:      strings.TrimSpace(req.SupplierNotes),
		ReceivedBy:         actor.Username,
		ReceivedAt:         time.Now().UTC(),
	}

	created, err := s.repo.CreateReceipt(ctx, receipt)
	if err != nil {
		return domain.StockReceipt{}, err
	}

	log.Printf("[service] stock received sku=%s qty=%d by=%s", created.ProductSKU, created.Quantity, actor.Username)
	s.restocker.Invalidate(ctx)
	return *created, nil
}

func (s *Service) ListReceipts(ctx context.Context, filter domain.ReceiptFilter) ([]domain.StockReceipt, error) {
	filter.ProductSKU = strings.ToUpper(strings.TrimSpace(filter.ProductSKU))
	return s.repo.ListReceipts(ctx, filter)
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Sale{}, fmt.Errorf("authenticated actor required: %w", ErrForbidden)
	}

	method := domain.PaymentMethod(strings.ToUpper(strings.TrimSpace(req.PaymentMethod)))
	if !method.Valid() {
		return domain.Sale{}, fmt.Errorf("unknown payment method %q: %w", req.PaymentMethod, store.ErrValidation)
	}
	if len(req.Items) == 0 {
		return domain.Sale{}, fmt.Errorf("sale needs at least one item: %w", store.ErrValidation)
	}

	lines, err := mergeLines(req.Items)
	if err != nil {
		return domain.Sale{}, err
	}

	draft := domain.SaleDraft{
		Cashier:       actor.Username,
		PaymentMethod: method,
		Notes:         strings.TrimSpace(req.Notes),
		Lines:         lines,
	}

	// Tax resolution order: explicit amount wins, then explicit rate, then
	// the configured policy.
	switch {
	case req.TaxAmount != nil:
		if req.TaxAmount.IsNegative() {
			return domain.Sale{}, fmt.Errorf("tax amount must not be negative: %w", store.ErrValidation)
		}
		amount := req.TaxAmount.Round(2)
		draft.TaxAmount = &amount
	case req.TaxRatePercent != nil:
		if req.TaxRatePercent.IsNegative() || req.TaxRatePercent.GreaterThan(decimal.NewFromInt(100)) {
			return domain.Sale{}, fmt.Errorf("tax rate must be within [0, 100]: %w", store.ErrValidation)
		}
		draft.TaxRatePercent = *req.TaxRatePercent
	default:
		draft.TaxRatePercent = s.taxes.RatePercent()
	}

	generated := strings.TrimSpace(req.OrderID) == ""
	if generated {
		draft.OrderID = domain.NewOrderID()
	} else {
		draft.OrderID = strings.ToUpper(strings.TrimSpace(req.OrderID))
	}

	var created *domain.Sale
	for attempt := 0; ; attempt++ {
		created, err = s.repo.CreateSale(ctx, draft)
		if err == nil {
			break
		}
		// Retry only collisions on ids this backend minted; a caller
		// supplied duplicate is a real conflict.
		if generated && errors.Is(err, store.ErrConflict) && attempt < orderIDRetries-1 {
			draft.OrderID = domain.NewOrderID()
			continue
		}
		return domain.Sale{}, err
	}

	log.Printf("[service] sale created order=%s total=%s cashier=%s", created.OrderID, created.Total, actor.Username)
	s.restocker.Invalidate(ctx)
	return *created, nil
}

func (s *Service) GetSale(ctx context.Context, orderID string) (domain.Sale, error) {
	// Order ids are stored uppercased, so lookups normalize the same way.
	orderID = strings.ToUpper(strings.TrimSpace(orderID))
	if orderID == "" {
		return domain.Sale{}, store.ErrValidation
	}

	sale, err := s.repo.GetSaleByOrderID(ctx, orderID)
	if err != nil {
		return domain.Sale{}, err
	}
	return *sale, nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx, filter)
}

// DeleteSale removes a sale record and its items. Stock is not restored:
// deleting a record is a bookkeeping correction, not a return.
func (s *Service) DeleteSale(ctx context.Context, orderID string) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleOwner {
		return fmt.Errorf("owner role required: %w", ErrForbidden)
	}

	orderID = strings.ToUpper(strings.TrimSpace(orderID))
	if orderID == "" {
		return store.ErrValidation
	}

	if err := s.repo.DeleteSale(ctx, orderID); err != nil {
		return err
	}

	log.Printf("[service] sale deleted order=%s by=%s", orderID, actor.Username)
	return nil
}

func (s *Service) RestockAlerts(ctx context.Context) (domain.RestockReport, error) {
	report, err := s.restocker.Report(ctx, func(ctx context.Context) ([]domain.Product, error) {
		active := true
		return s.repo.ListProducts(ctx, domain.ProductFilter{Active: &active, NeedsRestock: true})
	})
	if err != nil {
		return domain.RestockReport{}, err
	}
	return *report, nil
}

// mergeLines aggregates duplicate SKUs so a cart listing the same product
// twice is treated as one line with the summed quantity.
func mergeLines(items []domain.SaleLineRequest) ([]domain.SaleLine, error) {
	bySKU := make(map[string]int, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		sku := strings.ToUpper(strings.TrimSpace(item.SKU))
		if sku == "" {
			return nil, fmt.Errorf("item sku is required: %w", store.ErrValidation)
		}
		if item.Quantity < 1 {
			return nil, fmt.Errorf("quantity for %s must be positive: %w", sku, store.ErrValidation)
		}
		if _, seen := bySKU[sku]; !seen {
			order = append(order, sku)
		}
		bySKU[sku] += item.Quantity
	}

	lines := make([]domain.SaleLine, 0, len(order))
	for _, sku := range order {
		lines = append(lines, domain.SaleLine{SKU: sku, Quantity: bySKU[sku]})
	}
	return lines, nil
}
