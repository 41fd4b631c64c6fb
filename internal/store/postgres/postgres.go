package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"kasirhub/backend/internal/domain"
	"kasirhub/backend/internal/store"
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

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	var t domain.Tenant
	var window sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, refund_window_days, active, created_at
		FROM tenants
		WHERE id = $1
	`, tenantID).Scan(&t.ID, &t.Name, &window, &t.Active, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if window.Valid {
		days := int(window.Int64)
		t.RefundWindowDays = &days
	}
	return &t, nil
}

const productColumns = `
	id, tenant_id, sku, COALESCE(barcode, ''), name, COALESCE(category, ''),
	cost_price_cents, selling_price_cents, stock_level, low_stock_threshold,
	taxable, active, COALESCE(image_url, ''), created_at, updated_at
`

func scanProduct(row interface{ Scan(dest ...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(
		&p.ID, &p.TenantID, &p.SKU, &p.Barcode, &p.Name, &p.Category,
		&p.CostPriceCents, &p.SellingPriceCents, &p.StockLevel, &p.LowStockThreshold,
		&p.Taxable, &p.Active, &p.ImageURL, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO products (
			id, tenant_id, sku, barcode, name, category,
			cost_price_cents, selling_price_cents, stock_level, low_stock_threshold,
			taxable, active, image_url, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now(),now())
		RETURNING `+productColumns,
		product.ID, product.TenantID, product.SKU, nullIfEmpty(product.Barcode),
		product.Name, nullIfEmpty(product.Category),
		product.CostPriceCents, product.SellingPriceCents, product.StockLevel,
		product.LowStockThreshold, product.Taxable, product.Active, nullIfEmpty(product.ImageURL),
	)
	created, err := scanProduct(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE products SET
			sku = $3, barcode = $4, name = $5, category = $6,
			cost_price_cents = $7, selling_price_cents = $8,
			low_stock_threshold = $9, taxable = $10, active = $11,
			image_url = $12, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+productColumns,
		product.ID, product.TenantID, product.SKU, nullIfEmpty(product.Barcode),
		product.Name, nullIfEmpty(product.Category),
		product.CostPriceCents, product.SellingPriceCents,
		product.LowStockThreshold, product.Taxable, product.Active, nullIfEmpty(product.ImageURL),
	)
	updated, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Store) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, tenantID string, productID string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1 AND tenant_id = $2
	`, productID, tenantID)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error) {
	return s.productMap(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1 AND id = ANY($2)
	`, []any{tenantID, productIDs}, func(p domain.Product) string { return p.ID })
}

func (s *Store) GetProductsBySKUs(ctx context.Context, tenantID string, skus []string) (map[string]domain.Product, error) {
	normalized := make([]string, 0, len(skus))
	for _, sku := range skus {
		normalized = append(normalized, store.NormalizeSKU(sku))
	}
	return s.productMap(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1 AND upper(sku) = ANY($2)
	`, []any{tenantID, normalized}, func(p domain.Product) string { return store.NormalizeSKU(p.SKU) })
}

// GetProductsByBarcodes looks across all tenants: barcodes identify the
// physical product and are globally unique.
func (s *Store) GetProductsByBarcodes(ctx context.Context, barcodes []string) (map[string]domain.Product, error) {
	filtered := make([]string, 0, len(barcodes))
	for _, b := range barcodes {
		if b != "" {
			filtered = append(filtered, b)
		}
	}
	if len(filtered) == 0 {
		return map[string]domain.Product{}, nil
	}
	return s.productMap(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE barcode = ANY($1)
	`, []any{filtered}, func(p domain.Product) string { return p.Barcode })
}

func (s *Store) GetProductsByNames(ctx context.Context, tenantID string, names []string) (map[string]domain.Product, error) {
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		normalized = append(normalized, store.NormalizeName(n))
	}
	return s.productMap(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1 AND lower(name) = ANY($2)
	`, []any{tenantID, normalized}, func(p domain.Product) string { return store.NormalizeName(p.Name) })
}

func (s *Store) productMap(ctx context.Context, query string, args []any, key func(domain.Product) string) (map[string]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.Product)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[key(p)] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) SetProductImageURL(ctx context.Context, tenantID string, productID string, imageURL string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET image_url = $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3
	`, nullIfEmpty(imageURL), productID, tenantID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetCategoriesByNames(ctx context.Context, tenantID string, names []string) (map[string]domain.ProductCategory, error) {
	normalized := make([]string, 0, len(names))
	for _, n := range names {
		normalized = append(normalized, store.NormalizeName(n))
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, COALESCE(description, ''), active, created_at
		FROM product_categories
		WHERE tenant_id = $1 AND lower(name) = ANY($2)
	`, tenantID, normalized)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.ProductCategory)
	for rows.Next() {
		var c domain.ProductCategory
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		out[store.NormalizeName(c.Name)] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCategory is idempotent on (tenant, name): a concurrent duplicate
// insert is reported as success.
func (s *Store) CreateCategory(ctx context.Context, category domain.ProductCategory) error {
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_categories (id, tenant_id, name, description, active, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, category.ID, category.TenantID, category.Name, nullIfEmpty(category.Description), category.Active)
	if err != nil && !isUniqueViolation(err) {
		return err
	}
	return nil
}

func (s *Store) ListCategories(ctx context.Context, tenantID string) ([]domain.ProductCategory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, COALESCE(description, ''), active, created_at
		FROM product_categories
		WHERE tenant_id = $1
		ORDER BY name
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ProductCategory
	for rows.Next() {
		var c domain.ProductCategory
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Description, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// applyDeltaTx is the ledger primitive: one conditional update-and-return
// of the stock level plus one movement row, inside the caller's
// transaction. The WHERE clause refuses any update that would drive the
// level negative, so the check and the write are a single statement.
func applyDeltaTx(ctx context.Context, tx *sql.Tx, delta domain.StockDelta) (int, error) {
	var newStock int
	err := tx.QueryRowContext(ctx, `
		UPDATE products
		SET stock_level = stock_level + $1, updated_at = now()
		WHERE id = $2 AND tenant_id = $3 AND stock_level + $1 >= 0
		RETURNING stock_level
	`, delta.Delta, delta.ProductID, delta.TenantID).Scan(&newStock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			checkErr := tx.QueryRowContext(ctx, `
				SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND tenant_id = $2)
			`, delta.ProductID, delta.TenantID).Scan(&exists)
			if checkErr != nil {
				return 0, checkErr
			}
			if !exists {
				return 0, store.ErrNotFound
			}
			return 0, store.ErrInsufficientStock
		}
		return 0, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (
			id, tenant_id, product_id, movement_type, quantity_delta,
			previous_stock, new_stock, operator_id, reference, reason, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now())
	`, uuid.NewString(), delta.TenantID, delta.ProductID, delta.Type, delta.Delta,
		newStock-delta.Delta, newStock, nullIfEmpty(delta.OperatorID),
		nullIfEmpty(delta.Reference), nullIfEmpty(delta.Reason))
	if err != nil {
		return 0, err
	}
	return newStock, nil
}

func (s *Store) ApplyStockDelta(ctx context.Context, delta domain.StockDelta) (int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	newStock, err := applyDeltaTx(ctx, tx, delta)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newStock, nil
}

func (s *Store) ListStockMovements(ctx context.Context, tenantID string, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, tenant_id, product_id, movement_type, quantity_delta,
		       previous_stock, new_stock, COALESCE(operator_id, ''),
		       COALESCE(reference, ''), COALESCE(reason, ''), created_at
		FROM stock_movements
		WHERE tenant_id = $1
	`
	args := []any{tenantID}
	if productID != "" {
		query += ` AND product_id = $2`
		args = append(args, productID)
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StockMovement
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ProductID, &m.Type, &m.QuantityDelta,
			&m.PreviousStock, &m.NewStock, &m.OperatorID, &m.Reference, &m.Reason, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSale persists the sale, its items, the stock decrements, and the
// SALE movements in one serializable transaction. Any insufficient line
// aborts the whole commit.
func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale.ID = uuid.NewString()
	sale.RefundStatus = domain.RefundStatusNone
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (
			id, tenant_id, sale_number, subtotal_cents, tax_cents, discount_cents,
			total_cents, payment_method, cash_received_cents, cash_change_cents,
			card_amount_cents, total_refunded_cents, refund_status, operator_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,0,$12,$13,now())
		RETURNING created_at
	`, sale.ID, sale.TenantID, sale.SaleNumber, sale.SubtotalCents, sale.TaxCents,
		sale.DiscountCents, sale.TotalCents, sale.PaymentMethod, sale.CashReceivedCents,
		sale.CashChangeCents, sale.CardAmountCents, sale.RefundStatus, sale.OperatorID,
	).Scan(&sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	for i := range sale.Items {
		item := &sale.Items[i]
		item.ID = uuid.NewString()
		item.SaleID = sale.ID
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sale_items (
				id, sale_id, product_id, quantity, unit_price_cents,
				subtotal_cents, tax_cents, total_cents, quantity_refunded
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0)
		`, item.ID, item.SaleID, item.ProductID, item.Quantity, item.UnitPriceCents,
			item.SubtotalCents, item.TaxCents, item.TotalCents)
		if err != nil {
			return nil, err
		}
		if _, err := applyDeltaTx(ctx, tx, domain.StockDelta{
			TenantID:   sale.TenantID,
			ProductID:  item.ProductID,
			Delta:      -item.Quantity,
			Type:       domain.MovementSale,
			OperatorID: sale.OperatorID,
			Reference:  sale.SaleNumber,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, sale_number, subtotal_cents, tax_cents, discount_cents,
		       total_cents, payment_method, cash_received_cents, cash_change_cents,
		       card_amount_cents, total_refunded_cents, refund_status, operator_id, created_at
		FROM sales
		WHERE id = $1
	`, saleID).Scan(
		&sale.ID, &sale.TenantID, &sale.SaleNumber, &sale.SubtotalCents, &sale.TaxCents,
		&sale.DiscountCents, &sale.TotalCents, &sale.PaymentMethod, &sale.CashReceivedCents,
		&sale.CashChangeCents, &sale.CardAmountCents, &sale.TotalRefundedCents,
		&sale.RefundStatus, &sale.OperatorID, &sale.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price_cents,
		       subtotal_cents, tax_cents, total_cents, quantity_refunded
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY id
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.SaleItem
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity,
			&item.UnitPriceCents, &item.SubtotalCents, &item.TaxCents, &item.TotalCents,
			&item.QuantityRefunded); err != nil {
			return nil, err
		}
		sale.Items = append(sale.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) CountSaleNumbers(ctx context.Context, prefix string) (int, error) {
	return s.countByPrefix(ctx, "sales", "sale_number", prefix)
}

func (s *Store) SaleNumberExists(ctx context.Context, saleNumber string) (bool, error) {
	return s.numberExists(ctx, "sales", "sale_number", saleNumber)
}

// CommitRefund applies an adjudicated refund in one serializable
// transaction: the sale row is locked, the adjudicator's view of the
// accumulators is revalidated, and only then are the refund rows written.
func (s *Store) CommitRefund(ctx context.Context, commit store.RefundCommit) (*domain.Refund, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	refund := commit.Refund
	var currentRefunded int64
	err = tx.QueryRowContext(ctx, `
		SELECT total_refunded_cents
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, refund.SaleID).Scan(&currentRefunded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if currentRefunded+refund.TotalCents != commit.NewTotalRefundedCents {
		return nil, store.ErrConflict
	}

	refund.ID = uuid.NewString()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO refunds (
			id, tenant_id, refund_number, sale_id, refund_type,
			subtotal_cents, tax_cents, total_cents, payment_method,
			reason, notes, operator_id, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,now())
		RETURNING created_at
	`, refund.ID, refund.TenantID, refund.RefundNumber, refund.SaleID, refund.RefundType,
		refund.SubtotalCents, refund.TaxCents, refund.TotalCents, refund.PaymentMethod,
		nullIfEmpty(refund.Reason), nullIfEmpty(refund.Notes), refund.OperatorID,
	).Scan(&refund.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	for i := range refund.Items {
		item := &refund.Items[i]
		item.ID = uuid.NewString()
		item.RefundID = refund.ID

		res, err := tx.ExecContext(ctx, `
			UPDATE sale_items
			SET quantity_refunded = quantity_refunded + $1
			WHERE id = $2 AND sale_id = $3 AND quantity_refunded + $1 <= quantity
		`, item.Quantity, item.SaleItemID, refund.SaleID)
		if err != nil {
			return nil, err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, store.ErrConflict
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO refund_items (
				id, refund_id, sale_item_id, product_id, quantity,
				unit_price_cents, subtotal_cents, tax_cents, total_cents
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.ID, item.RefundID, item.SaleItemID, item.ProductID, item.Quantity,
			item.UnitPriceCents, item.SubtotalCents, item.TaxCents, item.TotalCents)
		if err != nil {
			return nil, err
		}

		if commit.Restock {
			if _, err := applyDeltaTx(ctx, tx, domain.StockDelta{
				TenantID:   refund.TenantID,
				ProductID:  item.ProductID,
				Delta:      item.Quantity,
				Type:       domain.MovementRefund,
				OperatorID: commit.OperatorID,
				Reference:  refund.RefundNumber,
			}); err != nil {
				return nil, err
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET total_refunded_cents = $1, refund_status = $2
		WHERE id = $3
	`, commit.NewTotalRefundedCents, commit.NewRefundStatus, refund.SaleID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (s *Store) ListRefundsBySale(ctx context.Context, saleID string) ([]domain.Refund, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, refund_number, sale_id, refund_type,
		       subtotal_cents, tax_cents, total_cents, payment_method,
		       COALESCE(reason, ''), COALESCE(notes, ''), operator_id, created_at
		FROM refunds
		WHERE sale_id = $1
		ORDER BY created_at
	`, saleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Refund
	for rows.Next() {
		var r domain.Refund
		if err := rows.Scan(&r.ID, &r.TenantID, &r.RefundNumber, &r.SaleID, &r.RefundType,
			&r.SubtotalCents, &r.TaxCents, &r.TotalCents, &r.PaymentMethod,
			&r.Reason, &r.Notes, &r.OperatorID, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		items, err := s.listRefundItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (s *Store) listRefundItems(ctx context.Context, refundID string) ([]domain.RefundItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, refund_id, sale_item_id, product_id, quantity,
		       unit_price_cents, subtotal_cents, tax_cents, total_cents
		FROM refund_items
		WHERE refund_id = $1
	`, refundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RefundItem
	for rows.Next() {
		var item domain.RefundItem
		if err := rows.Scan(&item.ID, &item.RefundID, &item.SaleItemID, &item.ProductID,
			&item.Quantity, &item.UnitPriceCents, &item.SubtotalCents, &item.TaxCents,
			&item.TotalCents); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Store) CountRefundNumbers(ctx context.Context, prefix string) (int, error) {
	return s.countByPrefix(ctx, "refunds", "refund_number", prefix)
}

func (s *Store) RefundNumberExists(ctx context.Context, refundNumber string) (bool, error) {
	return s.numberExists(ctx, "refunds", "refund_number", refundNumber)
}

func (s *Store) countByPrefix(ctx context.Context, table string, column string, prefix string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE `+column+` LIKE $1`,
		likePrefix(prefix),
	).Scan(&n)
	return n, err
}

func (s *Store) numberExists(ctx context.Context, table string, column string, value string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM `+table+` WHERE `+column+` = $1)`,
		value,
	).Scan(&exists)
	return exists, err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (
			id, tenant_id, actor_username, actor_role, action,
			entity_type, entity_id, detail, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, uuid.NewString(), entry.TenantID, entry.ActorUsername, entry.ActorRole,
		entry.Action, entry.EntityType, nullIfEmpty(entry.EntityID), nullIfEmpty(entry.Detail))
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, tenant_id, actor_username, actor_role, action,
		       entity_type, COALESCE(entity_id, ''), COALESCE(detail, ''), created_at
		FROM audit_logs
		WHERE tenant_id = $1
	`
	args := []any{tenantID}
	if !from.IsZero() {
		args = append(args, from)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditLog
	for rows.Next() {
		var e domain.AuditLog
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorUsername, &e.ActorRole,
			&e.Action, &e.EntityType, &e.EntityID, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, role, tenant_id, active, created_at)
		VALUES ($1,$2,$3,$4,$5,now())
	`, user.Username, user.Password, user.Role, user.TenantID, user.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var u domain.UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, role, tenant_id, active, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&u.Username, &u.Password, &u.Role, &u.TenantID, &u.Active, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password_hash, role, tenant_id, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.UserAccount
	for rows.Next() {
		var u domain.UserAccount
		if err := rows.Scan(&u.Username, &u.Password, &u.Role, &u.TenantID, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $1 WHERE username = $2
	`, password, username)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// likePrefix escapes LIKE metacharacters so the prefix matches literally.
func likePrefix(prefix string) string {
	out := make([]byte, 0, len(prefix)+4)
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		if c == '%' || c == '_' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return string(out) + "%"
}

