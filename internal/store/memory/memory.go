// Package memory provides an in-memory store.Repository used for local
// development and for the service test suite. All operations run under a
// single mutex, so every method is atomic by construction.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kasirhub/backend/internal/domain"
	"kasirhub/backend/internal/store"
)

type Store struct {
	mu sync.RWMutex

	tenants    map[string]domain.Tenant
	products   map[string]domain.Product
	categories map[string]domain.ProductCategory
	sales      map[string]domain.Sale
	refunds    map[string]domain.Refund
	movements  []domain.StockMovement
	auditLogs  []domain.AuditLog
	users      map[string]domain.UserAccount
}

func New() *Store {
	return &Store{
		tenants:    make(map[string]domain.Tenant),
		products:   make(map[string]domain.Product),
		categories: make(map[string]domain.ProductCategory),
		sales:      make(map[string]domain.Sale),
		refunds:    make(map[string]domain.Refund),
		users:      make(map[string]domain.UserAccount),
	}
}

// NewSeeded returns a store pre-populated with a demo tenant, an admin and
// a cashier account, and a small catalog. Passwords are admin123/kasir123.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()

	window := 30
	s.tenants["tenant-demo"] = domain.Tenant{
		ID:               "tenant-demo",
		Name:             "Toko Demo",
		RefundWindowDays: &window,
		Active:           true,
		CreatedAt:        now,
	}

	for _, u := range []struct {
		username, password, role string
	}{
		{"admin", "admin123", "admin"},
		{"kasir", "kasir123", "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			panic(err)
		}
		s.users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			TenantID:  "tenant-demo",
			Active:    true,
			CreatedAt: now,
		}
	}

	seedProducts := []domain.Product{
		{SKU: "KOPI-001", Barcode: "8991002100011", Name: "Kopi Tubruk 200g", Category: "Minuman", CostPriceCents: 1200000, SellingPriceCents: 1500000, StockLevel: 40, LowStockThreshold: 5, Taxable: true},
		{SKU: "TEH-001", Barcode: "8991002100028", Name: "Teh Celup 25s", Category: "Minuman", CostPriceCents: 800000, SellingPriceCents: 1100000, StockLevel: 60, LowStockThreshold: 10, Taxable: true},
		{SKU: "GULA-001", Name: "Gula Pasir 1kg", Category: "Sembako", CostPriceCents: 1400000, SellingPriceCents: 1600000, StockLevel: 25, LowStockThreshold: 5, Taxable: false},
	}
	for _, p := range seedProducts {
		p.ID = uuid.NewString()
		p.TenantID = "tenant-demo"
		p.Active = true
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	for _, name := range []string{"Minuman", "Sembako"} {
		id := uuid.NewString()
		s.categories[id] = domain.ProductCategory{
			ID:        id,
			TenantID:  "tenant-demo",
			Name:      name,
			Active:    true,
			CreatedAt: now,
		}
	}
	return s
}

// PutTenant inserts or replaces a tenant row. Seeding and tests only.
func (s *Store) PutTenant(tenant domain.Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenant.CreatedAt.IsZero() {
		tenant.CreatedAt = time.Now().UTC()
	}
	s.tenants[tenant.ID] = tenant
}

func (s *Store) GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := t
	return &out, nil
}

func (s *Store) productConflicts(p domain.Product) bool {
	sku := store.NormalizeSKU(p.SKU)
	name := store.NormalizeName(p.Name)
	for _, other := range s.products {
		if other.ID == p.ID {
			continue
		}
		if p.Barcode != "" && other.Barcode == p.Barcode {
			return true
		}
		if other.TenantID != p.TenantID {
			continue
		}
		if store.NormalizeSKU(other.SKU) == sku || store.NormalizeName(other.Name) == name {
			return true
		}
	}
	return false
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if s.productConflicts(product) {
		return nil, store.ErrDuplicate
	}
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product
	out := product
	return &out, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[product.ID]
	if !ok || existing.TenantID != product.TenantID {
		return nil, store.ErrNotFound
	}
	if s.productConflicts(product) {
		return nil, store.ErrDuplicate
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	out := product
	return &out, nil
}

func (s *Store) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Product
	for _, p := range s.products {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetProductByID(ctx context.Context, tenantID string, productID string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[productID]
	if !ok || p.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	out := p
	return &out, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if p, ok := s.products[id]; ok && p.TenantID == tenantID {
			out[id] = p
		}
	}
	return out, nil
}

func (s *Store) GetProductsBySKUs(ctx context.Context, tenantID string, skus []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(skus))
	for _, sku := range skus {
		want[store.NormalizeSKU(sku)] = true
	}
	out := make(map[string]domain.Product)
	for _, p := range s.products {
		key := store.NormalizeSKU(p.SKU)
		if p.TenantID == tenantID && want[key] {
			out[key] = p
		}
	}
	return out, nil
}

// GetProductsByBarcodes looks across all tenants: barcodes identify the
// physical product and are globally unique.
func (s *Store) GetProductsByBarcodes(ctx context.Context, barcodes []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(barcodes))
	for _, b := range barcodes {
		if b != "" {
			want[b] = true
		}
	}
	out := make(map[string]domain.Product)
	for _, p := range s.products {
		if p.Barcode != "" && want[p.Barcode] {
			out[p.Barcode] = p
		}
	}
	return out, nil
}

func (s *Store) GetProductsByNames(ctx context.Context, tenantID string, names []string) (map[string]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[store.NormalizeName(n)] = true
	}
	out := make(map[string]domain.Product)
	for _, p := range s.products {
		key := store.NormalizeName(p.Name)
		if p.TenantID == tenantID && want[key] {
			out[key] = p
		}
	}
	return out, nil
}

func (s *Store) SetProductImageURL(ctx context.Context, tenantID string, productID string, imageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok || p.TenantID != tenantID {
		return store.ErrNotFound
	}
	p.ImageURL = imageURL
	p.UpdatedAt = time.Now().UTC()
	s.products[productID] = p
	return nil
}

func (s *Store) GetCategoriesByNames(ctx context.Context, tenantID string, names []string) (map[string]domain.ProductCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[store.NormalizeName(n)] = true
	}
	out := make(map[string]domain.ProductCategory)
	for _, c := range s.categories {
		key := store.NormalizeName(c.Name)
		if c.TenantID == tenantID && want[key] {
			out[key] = c
		}
	}
	return out, nil
}

// CreateCategory is idempotent on (tenant, name): a concurrent duplicate
// insert is reported as success.
func (s *Store) CreateCategory(ctx context.Context, category domain.ProductCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := store.NormalizeName(category.Name)
	for _, c := range s.categories {
		if c.TenantID == category.TenantID && store.NormalizeName(c.Name) == key {
			return nil
		}
	}
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	category.CreatedAt = time.Now().UTC()
	s.categories[category.ID] = category
	return nil
}

func (s *Store) ListCategories(ctx context.Context, tenantID string) ([]domain.ProductCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ProductCategory
	for _, c := range s.categories {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// applyDeltaLocked mutates stock and appends the movement. Callers hold mu.
func (s *Store) applyDeltaLocked(delta domain.StockDelta) (int, error) {
	p, ok := s.products[delta.ProductID]
	if !ok || p.TenantID != delta.TenantID {
		return 0, store.ErrNotFound
	}
	newStock := p.StockLevel + delta.Delta
	if newStock < 0 {
		return 0, store.ErrInsufficientStock
	}
	p.StockLevel = newStock
	p.UpdatedAt = time.Now().UTC()
	s.products[p.ID] = p
	s.movements = append(s.movements, domain.StockMovement{
		ID:            uuid.NewString(),
		TenantID:      delta.TenantID,
		ProductID:     delta.ProductID,
		Type:          delta.Type,
		QuantityDelta: delta.Delta,
		PreviousStock: newStock - delta.Delta,
		NewStock:      newStock,
		OperatorID:    delta.OperatorID,
		Reference:     delta.Reference,
		Reason:        delta.Reason,
		CreatedAt:     time.Now().UTC(),
	})
	return newStock, nil
}

func (s *Store) ApplyStockDelta(ctx context.Context, delta domain.StockDelta) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applyDeltaLocked(delta)
}

func (s *Store) ListStockMovements(ctx context.Context, tenantID string, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.StockMovement
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if m.TenantID != tenantID {
			continue
		}
		if productID != "" && m.ProductID != productID {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Sale numbers are unique at commit time, like the Postgres
	// constraint: two committers racing past the number generator
	// cannot both land.
	for _, existing := range s.sales {
		if existing.SaleNumber == sale.SaleNumber {
			return nil, store.ErrDuplicate
		}
	}

	// Verify every line first so a failure leaves nothing applied.
	for _, item := range sale.Items {
		p, ok := s.products[item.ProductID]
		if !ok || p.TenantID != sale.TenantID {
			return nil, store.ErrNotFound
		}
		if p.StockLevel < item.Quantity {
			return nil, store.ErrInsufficientStock
		}
	}

	sale.ID = uuid.NewString()
	sale.CreatedAt = time.Now().UTC()
	sale.RefundStatus = domain.RefundStatusNone
	for i := range sale.Items {
		sale.Items[i].ID = uuid.NewString()
		sale.Items[i].SaleID = sale.ID
	}
	for _, item := range sale.Items {
		if _, err := s.applyDeltaLocked(domain.StockDelta{
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
	s.sales[sale.ID] = sale
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sale, ok := s.sales[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneSale(sale)
	return &out, nil
}

func (s *Store) CountSaleNumbers(ctx context.Context, prefix string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sale := range s.sales {
		if strings.HasPrefix(sale.SaleNumber, prefix) {
			n++
		}
	}
	return n, nil
}

func (s *Store) SaleNumberExists(ctx context.Context, saleNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sale := range s.sales {
		if sale.SaleNumber == saleNumber {
			return true, nil
		}
	}
	return false, nil
}

// CommitRefund revalidates the adjudicated refund against the sale's
// current state before applying it, so two concurrent refunds against the
// same sale cannot both land.
func (s *Store) CommitRefund(ctx context.Context, commit store.RefundCommit) (*domain.Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refund := commit.Refund
	for _, existing := range s.refunds {
		if existing.RefundNumber == refund.RefundNumber {
			return nil, store.ErrDuplicate
		}
	}
	sale, ok := s.sales[refund.SaleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if sale.TotalRefundedCents+refund.TotalCents != commit.NewTotalRefundedCents {
		return nil, store.ErrConflict
	}

	// Validate everything before mutating anything, so a rejected commit
	// leaves no partially bumped accumulators behind.
	itemIdx := make(map[string]int, len(sale.Items))
	for i, item := range sale.Items {
		itemIdx[item.ID] = i
	}
	pending := make(map[string]int, len(refund.Items))
	for _, ri := range refund.Items {
		i, ok := itemIdx[ri.SaleItemID]
		if !ok {
			return nil, store.ErrNotFound
		}
		pending[ri.SaleItemID] += ri.Quantity
		if sale.Items[i].QuantityRefunded+pending[ri.SaleItemID] > sale.Items[i].Quantity {
			return nil, store.ErrConflict
		}
		if commit.Restock {
			if p, ok := s.products[ri.ProductID]; !ok || p.TenantID != refund.TenantID {
				return nil, store.ErrNotFound
			}
		}
	}

	refund.ID = uuid.NewString()
	refund.CreatedAt = time.Now().UTC()
	for i := range refund.Items {
		refund.Items[i].ID = uuid.NewString()
		refund.Items[i].RefundID = refund.ID
	}
	for _, ri := range refund.Items {
		sale.Items[itemIdx[ri.SaleItemID]].QuantityRefunded += ri.Quantity
		if commit.Restock {
			if _, err := s.applyDeltaLocked(domain.StockDelta{
				TenantID:   refund.TenantID,
				ProductID:  ri.ProductID,
				Delta:      ri.Quantity,
				Type:       domain.MovementRefund,
				OperatorID: commit.OperatorID,
				Reference:  refund.RefundNumber,
			}); err != nil {
				return nil, err
			}
		}
	}
	sale.TotalRefundedCents = commit.NewTotalRefundedCents
	sale.RefundStatus = commit.NewRefundStatus
	s.sales[sale.ID] = sale
	s.refunds[refund.ID] = refund
	out := cloneRefund(refund)
	return &out, nil
}

func (s *Store) ListRefundsBySale(ctx context.Context, saleID string) ([]domain.Refund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Refund
	for _, r := range s.refunds {
		if r.SaleID == saleID {
			out = append(out, cloneRefund(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CountRefundNumbers(ctx context.Context, prefix string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.refunds {
		if strings.HasPrefix(r.RefundNumber, prefix) {
			n++
		}
	}
	return n, nil
}

func (s *Store) RefundNumberExists(ctx context.Context, refundNumber string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.refunds {
		if r.RefundNumber == refundNumber {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = uuid.NewString()
	entry.CreatedAt = time.Now().UTC()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AuditLog
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		e := s.auditLogs[i]
		if e.TenantID != tenantID {
			continue
		}
		if !from.IsZero() && e.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && e.CreatedAt.After(to) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Username]; exists {
		return store.ErrDuplicate
	}
	user.CreatedAt = time.Now().UTC()
	s.users[user.Username] = user
	return nil
}

func (s *Store) GetUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := u
	return &out, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return store.ErrNotFound
	}
	u.Password = password
	s.users[username] = u
	return nil
}

func cloneSale(sale domain.Sale) domain.Sale {
	out := sale
	out.Items = append([]domain.SaleItem(nil), sale.Items...)
	return out
}

func cloneRefund(refund domain.Refund) domain.Refund {
	out := refund
	out.Items = append([]domain.RefundItem(nil), refund.Items...)
	return out
}
