package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"kasirhub/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate")
	ErrConflict          = errors.New("conflict")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
)

// RefundCommit carries everything the Refund Adjudicator decided, to be
// applied as one transaction: the refund with its items, the sale's new
// accumulators, and whether refunded quantities go back to stock.
type RefundCommit struct {
	Refund                domain.Refund
	NewTotalRefundedCents int64
	NewRefundStatus       string
	Restock               bool
	OperatorID            string
}

type Repository interface {
	GetTenant(ctx context.Context, tenantID string) (*domain.Tenant, error)

	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error)
	GetProductByID(ctx context.Context, tenantID string, productID string) (*domain.Product, error)
	GetProductsByIDs(ctx context.Context, tenantID string, productIDs []string) (map[string]domain.Product, error)
	GetProductsBySKUs(ctx context.Context, tenantID string, skus []string) (map[string]domain.Product, error)
	GetProductsByBarcodes(ctx context.Context, barcodes []string) (map[string]domain.Product, error)
	GetProductsByNames(ctx context.Context, tenantID string, names []string) (map[string]domain.Product, error)
	SetProductImageURL(ctx context.Context, tenantID string, productID string, imageURL string) error

	GetCategoriesByNames(ctx context.Context, tenantID string, names []string) (map[string]domain.ProductCategory, error)
	CreateCategory(ctx context.Context, category domain.ProductCategory) error
	ListCategories(ctx context.Context, tenantID string) ([]domain.ProductCategory, error)

	// ApplyStockDelta is the Inventory Ledger primitive: a single atomic
	// update-and-return of the product's stock level plus one appended
	// movement row. Returns the resulting stock level.
	ApplyStockDelta(ctx context.Context, delta domain.StockDelta) (int, error)
	ListStockMovements(ctx context.Context, tenantID string, productID string, limit int) ([]domain.StockMovement, error)

	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	GetSaleByID(ctx context.Context, saleID string) (*domain.Sale, error)
	CountSaleNumbers(ctx context.Context, prefix string) (int, error)
	SaleNumberExists(ctx context.Context, saleNumber string) (bool, error)

	CommitRefund(ctx context.Context, commit RefundCommit) (*domain.Refund, error)
	ListRefundsBySale(ctx context.Context, saleID string) ([]domain.Refund, error)
	CountRefundNumbers(ctx context.Context, prefix string) (int, error)
	RefundNumberExists(ctx context.Context, refundNumber string) (bool, error)

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// NormalizeSKU is the canonical form used for per-tenant SKU uniqueness
// and for all SKU lookup map keys.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

// NormalizeName is the canonical form used for per-tenant name uniqueness.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
