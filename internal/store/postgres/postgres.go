package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cosmoshop/backend/internal/domain"
	"cosmoshop/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, sku, name, brand, category, COALESCE(description, ''), cost_price, selling_price, stock_quantity, restock_threshold, is_active, created_at, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Brand, &p.Category, &p.Description,
		&p.CostPrice, &p.SellingPrice, &p.StockQuantity, &p.RestockThreshold,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 3)
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		conditions = append(conditions, fmt.Sprintf("is_active = $%d", len(args)))
	}
	if filter.NeedsRestock {
		conditions = append(conditions, "stock_quantity <= restock_threshold")
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY name"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (s *Store) GetProductBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE sku = $1`, sku)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", sku, store.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, store.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, sku, name, brand, category, description, cost_price, selling_price, stock_quantity, restock_threshold, is_active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, product.ID, product.SKU, product.Name, product.Brand, product.Category, product.Description,
		product.CostPrice, product.SellingPrice, product.StockQuantity, product.RestockThreshold,
		product.IsActive, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.ConflictError{Field: "sku", Value: product.SKU}
		}
		return nil, err
	}
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	// stock_quantity is deliberately absent: only receipts and sales move it.
	row := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, brand = $3, category = $4, description = $5,
		    cost_price = $6, selling_price = $7, restock_threshold = $8,
		    is_active = $9, updated_at = $10
		WHERE sku = $1
		RETURNING `+productColumns+`
	`, product.SKU, product.Name, product.Brand, product.Category, product.Description,
		product.CostPrice, product.SellingPrice, product.RestockThreshold,
		product.IsActive, product.UpdatedAt)

	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", product.SKU, store.ErrNotFound)
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) DeleteProduct(ctx context.Context, sku string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE sku = $1`, sku)
	if err != nil {
		if isForeignKeyViolation(err) {
			return &store.ReferenceError{Entity: "product", Key: sku, ReferencedBy: referencingTable(err)}
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("product %s: %w", sku, store.ErrNotFound)
	}
	return nil
}

func (s *Store) CreateReceipt(ctx context.Context, receipt domain.StockReceipt) (*domain.StockReceipt, error) {
	if receipt.Quantity < 1 || receipt.CostPriceAtReceipt.LessThan(domain.MinPrice) {
		return nil, fmt.Errorf("receipt quantity and cost must be positive: %w", store.ErrValidation)
	}
	if receipt.ID == "" {
		receipt.ID = domain.NewID("rcpt")
	}
	if receipt.ReceivedAt.IsZero() {
		receipt.ReceivedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var productID string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM products WHERE sku = $1 FOR UPDATE
	`, receipt.ProductSKU).Scan(&productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", receipt.ProductSKU, store.ErrNotFound)
		}
		return nil, err
	}
	receipt.ProductID = productID

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_receipts (id, product_id, quantity, cost_price_at_receipt, supplier_name, supplier_notes, received_by, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, receipt.ID, receipt.ProductID, receipt.Quantity, receipt.CostPriceAtReceipt,
		receipt.SupplierName, receipt.SupplierNotes, receipt.ReceivedBy, receipt.ReceivedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = $3 WHERE id = $1
	`, receipt.ProductID, receipt.Quantity, receipt.ReceivedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := receipt
	return &created, nil
}

func (s *Store) ListReceipts(ctx context.Context, filter domain.ReceiptFilter) ([]domain.StockReceipt, error) {
	conditions := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if filter.ProductSKU != "" {
		args = append(args, filter.ProductSKU)
		conditions = append(conditions, fmt.Sprintf("p.sku = $%d", len(args)))
	}
	if filter.ReceivedBy != "" {
		args = append(args, filter.ReceivedBy)
		conditions = append(conditions, fmt.Sprintf("r.received_by = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("r.received_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("r.received_at < $%d", len(args)))
	}

	query := `
		SELECT r.id, r.product_id, p.sku, r.quantity, r.cost_price_at_receipt,
		       COALESCE(r.supplier_name, ''), COALESCE(r.supplier_notes, ''), r.received_by, r.received_at
		FROM stock_receipts r
		JOIN products p ON p.id = r.product_id`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY r.received_at DESC, r.id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	receipts := make([]domain.StockReceipt, 0, 64)
	for rows.Next() {
		var r domain.StockReceipt
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ProductSKU, &r.Quantity, &r.CostPriceAtReceipt,
			&r.SupplierName, &r.SupplierNotes, &r.ReceivedBy, &r.ReceivedAt); err != nil {
			return nil, err
		}
		r.ReceivedAt = r.ReceivedAt.UTC()
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.Sale, error) {
	if len(draft.Lines) == 0 {
		return nil, fmt.Errorf("sale needs at least one line: %w", store.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// A SKU may appear on only one line: the stock check below is per
	// line, and repeated lines could pass it individually yet decrement
	// past zero together.
	skus := make([]string, 0, len(draft.Lines))
	seen := make(map[string]struct{}, len(draft.Lines))
	for _, line := range draft.Lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("quantity for %s must be positive: %w", line.SKU, store.ErrValidation)
		}
		if _, dup := seen[line.SKU]; dup {
			return nil, fmt.Errorf("duplicate line for %s: %w", line.SKU, store.ErrValidation)
		}
		seen[line.SKU] = struct{}{}
		skus = append(skus, line.SKU)
	}

	// Lock all product rows in one statement, in a stable order, so two
	// concurrent sales against overlapping products serialize instead of
	// deadlocking. The stock check below happens under these locks.
	rows, err := tx.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE sku = ANY($1) ORDER BY sku FOR UPDATE
	`, skus)
	if err != nil {
		return nil, err
	}
	locked := make(map[string]domain.Product, len(skus))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		locked[p.SKU] = p
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, line := range draft.Lines {
		product, exists := locked[line.SKU]
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
	}

	now := time.Now().UTC()
	sale := domain.NewSale(draft, locked, now)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, order_id, cashier, subtotal, tax, total, profit, payment_method, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, sale.ID, sale.OrderID, sale.Cashier, sale.Subtotal, sale.Tax, sale.Total, sale.Profit,
		sale.PaymentMethod, sale.Notes, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &store.ConflictError{Field: "order_id", Value: sale.OrderID}
		}
		return nil, err
	}

	for _, item := range sale.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price, unit_cost, subtotal, profit)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, item.ID, item.SaleID, item.ProductID, item.Quantity, item.UnitPrice, item.UnitCost, item.Subtotal, item.Profit)
		if err != nil {
			return nil, err
		}
	}

	for _, line := range draft.Lines {
		_, err = tx.ExecContext(ctx, `
			UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = $3 WHERE sku = $1
		`, line.SKU, line.Quantity, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := sale
	return &created, nil
}

func (s *Store) GetSaleByOrderID(ctx context.Context, orderID string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, order_id, cashier, subtotal, tax, total, profit, payment_method, COALESCE(notes, ''), created_at
		FROM sales WHERE order_id = $1
	`, orderID).Scan(&sale.ID, &sale.OrderID, &sale.Cashier, &sale.Subtotal, &sale.Tax, &sale.Total,
		&sale.Profit, &sale.PaymentMethod, &sale.Notes, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sale %s: %w", orderID, store.ErrNotFound)
		}
		return nil, err
	}
	sale.CreatedAt = sale.CreatedAt.UTC()

	items, err := s.saleItems(ctx, []string{sale.ID})
	if err != nil {
		return nil, err
	}
	sale.Items = items[sale.ID]
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	conditions := make([]string, 0, 3)
	args := make([]any, 0, 4)
	if filter.Cashier != "" {
		args = append(args, filter.Cashier)
		conditions = append(conditions, fmt.Sprintf("cashier = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}

	query := `
		SELECT id, order_id, cashier, subtotal, tax, total, profit, payment_method, COALESCE(notes, ''), created_at
		FROM sales`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	saleIDs := make([]string, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.OrderID, &sale.Cashier, &sale.Subtotal, &sale.Tax,
			&sale.Total, &sale.Profit, &sale.PaymentMethod, &sale.Notes, &sale.CreatedAt); err != nil {
			return nil, err
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
		saleIDs = append(saleIDs, sale.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := s.saleItems(ctx, saleIDs)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}

func (s *Store) DeleteSale(ctx context.Context, orderID string) error {
	// sale_items cascades via its foreign key; products are untouched.
	res, err := s.db.ExecContext(ctx, `DELETE FROM sales WHERE order_id = $1`, orderID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sale %s: %w", orderID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) saleItems(ctx context.Context, saleIDs []string) (map[string][]domain.SaleItem, error) {
	result := make(map[string][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.sale_id, i.product_id, p.sku, i.quantity, i.unit_price, i.unit_cost, i.subtotal, i.profit
		FROM sale_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.sale_id = ANY($1)
		ORDER BY i.id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.ProductSKU,
			&item.Quantity, &item.UnitPrice, &item.UnitCost, &item.Subtotal, &item.Profit); err != nil {
			return nil, err
		}
		result[item.SaleID] = append(result[item.SaleID], item)
	}
	return result, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func referencingTable(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.TableName != "" {
		return pgErr.TableName
	}
	return "dependent rows"
}
