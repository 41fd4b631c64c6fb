package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"kasirhub/backend/internal/docnum"
	"kasirhub/backend/internal/domain"
	"kasirhub/backend/internal/imaging"
	"kasirhub/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

var (
	ErrForbidden             = errors.New("forbidden")
	ErrValidation            = errors.New("validation failed")
	ErrRefundWindowExpired   = errors.New("refund window expired")
	ErrPaymentMethodMismatch = errors.New("payment method mismatch")
	ErrRefundExceedsQuantity = errors.New("refund exceeds remaining quantity")
	ErrRefundExceedsAmount   = errors.New("refund exceeds remaining amount")
)

type Service struct {
	repo   store.Repository
	images *imaging.Rehoster

	saleNums   *docnum.Generator
	refundNums *docnum.Generator
}

func New(repo store.Repository, images *imaging.Rehoster) *Service {
	return &Service{
		repo:       repo,
		images:     images,
		saleNums:   docnum.New("SALE", repo.CountSaleNumbers, repo.SaleNumberExists),
		refundNums: docnum.New("REF", repo.CountRefundNumbers, repo.RefundNumberExists),
	}
}

func (s *Service) requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.TenantID == "" {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if actor.Role != "admin" {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, actor.TenantID)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	req.SKU = store.NormalizeSKU(req.SKU)
	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Category = strings.TrimSpace(req.Category)

	if req.SKU == "" || req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: sku and name are required", ErrValidation)
	}
	if req.SellingPriceCents < 1 || req.CostPriceCents < 0 || req.InitialStock < 0 || req.LowStockThreshold < 0 {
		return domain.Product{}, fmt.Errorf("%w: prices and stock must not be negative", ErrValidation)
	}

	if req.Category != "" {
		if err := s.ensureCategory(ctx, actor.TenantID, req.Category); err != nil {
			return domain.Product{}, err
		}
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		TenantID:          actor.TenantID,
		SKU:               req.SKU,
		Barcode:           req.Barcode,
		Name:              req.Name,
		Category:          req.Category,
		CostPriceCents:    req.CostPriceCents,
		SellingPriceCents: req.SellingPriceCents,
		LowStockThreshold: req.LowStockThreshold,
		Taxable:           req.Taxable,
		Active:            true,
	})
	if err != nil {
		return domain.Product{}, err
	}

	if req.InitialStock > 0 {
		newStock, err := s.repo.ApplyStockDelta(ctx, domain.StockDelta{
			TenantID:   actor.TenantID,
			ProductID:  created.ID,
			Delta:      req.InitialStock,
			Type:       domain.MovementRefill,
			OperatorID: actor.ID,
			Reason:     "initial stock",
		})
		if err != nil {
			return domain.Product{}, err
		}
		created.StockLevel = newStock
	}

	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("sku=%s,price=%d,stock=%d", created.SKU, created.SellingPriceCents, req.InitialStock))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, actor.TenantID, productID)
	if err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if req.SellingPriceCents < 1 || req.CostPriceCents < 0 || req.LowStockThreshold < 0 {
		return domain.Product{}, fmt.Errorf("%w: prices must not be negative", ErrValidation)
	}

	if req.Category != "" && req.Category != existing.Category {
		if err := s.ensureCategory(ctx, actor.TenantID, req.Category); err != nil {
			return domain.Product{}, err
		}
	}

	existing.Barcode = req.Barcode
	existing.Name = req.Name
	existing.Category = req.Category
	existing.CostPriceCents = req.CostPriceCents
	existing.SellingPriceCents = req.SellingPriceCents
	existing.LowStockThreshold = req.LowStockThreshold
	existing.Taxable = req.Taxable
	existing.Active = req.Active

	saved, err := s.repo.UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}

	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("active=%t,price=%d", saved.Active, saved.SellingPriceCents))
	return *saved, nil
}

func (s *Service) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.GetProductByID(ctx, actor.TenantID, productID)
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.ProductCategory, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListCategories(ctx, actor.TenantID)
}

func (s *Service) ensureCategory(ctx context.Context, tenantID string, name string) error {
	return s.repo.CreateCategory(ctx, domain.ProductCategory{
		TenantID: tenantID,
		Name:     name,
		Active:   true,
	})
}

// RefillStock records incoming goods. The quantity must be positive; use
// AdjustStock for corrections in either direction.
func (s *Service) RefillStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockAdjustResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}
	if req.ProductID == "" || req.Quantity < 1 {
		return domain.StockAdjustResponse{}, fmt.Errorf("%w: product_id and a positive quantity are required", ErrValidation)
	}

	newStock, err := s.repo.ApplyStockDelta(ctx, domain.StockDelta{
		TenantID:   actor.TenantID,
		ProductID:  req.ProductID,
		Delta:      req.Quantity,
		Type:       domain.MovementRefill,
		OperatorID: actor.ID,
		Reason:     req.Reason,
	})
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}

	s.logAudit(ctx, "stock_refill", "product", req.ProductID, fmt.Sprintf("qty=%d,new_stock=%d", req.Quantity, newStock))
	return domain.StockAdjustResponse{ProductID: req.ProductID, NewStock: newStock}, nil
}

// AdjustStock records a manual correction. The quantity is a signed delta;
// a reason is required because adjustments bypass the sale/refund flows.
func (s *Service) AdjustStock(ctx context.Context, req domain.StockAdjustRequest) (domain.StockAdjustResponse, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}
	if req.ProductID == "" || req.Quantity == 0 {
		return domain.StockAdjustResponse{}, fmt.Errorf("%w: product_id and a non-zero quantity are required", ErrValidation)
	}
	if strings.TrimSpace(req.Reason) == "" {
		return domain.StockAdjustResponse{}, fmt.Errorf("%w: a reason is required for manual adjustments", ErrValidation)
	}

	newStock, err := s.repo.ApplyStockDelta(ctx, domain.StockDelta{
		TenantID:   actor.TenantID,
		ProductID:  req.ProductID,
		Delta:      req.Quantity,
		Type:       domain.MovementAdjustment,
		OperatorID: actor.ID,
		Reason:     req.Reason,
	})
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}

	s.logAudit(ctx, "stock_adjust", "product", req.ProductID, fmt.Sprintf("delta=%d,new_stock=%d,reason=%s", req.Quantity, newStock, req.Reason))
	return domain.StockAdjustResponse{ProductID: req.ProductID, NewStock: newStock}, nil
}

func (s *Service) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListStockMovements(ctx, actor.TenantID, productID, limit)
}

func (s *Service) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	return s.repo.ListAuditLogs(ctx, actor.TenantID, from, to, limit)
}

// Authenticate checks credentials and returns the actor identity the
// caller should embed in subsequent request contexts.
func (s *Service) Authenticate(ctx context.Context, username string, password string) (domain.Actor, error) {
	user, err := s.repo.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Actor{}, ErrForbidden
		}
		return domain.Actor{}, err
	}
	if !user.Active {
		return domain.Actor{}, ErrForbidden
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return domain.Actor{}, ErrForbidden
	}
	return domain.Actor{
		ID:       user.Username,
		Username: user.Username,
		Role:     user.Role,
		TenantID: user.TenantID,
	}, nil
}

func (s *Service) CreateUser(ctx context.Context, username string, password string, role string) error {
	actor, err := s.requireAdmin(ctx)
	if err != nil {
		return err
	}

	username = strings.TrimSpace(username)
	if username == "" || len(password) < 8 {
		return fmt.Errorf("%w: username and a password of at least 8 characters are required", ErrValidation)
	}
	if role != "admin" && role != "cashier" {
		return fmt.Errorf("%w: role must be admin or cashier", ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.repo.CreateUser(ctx, domain.UserAccount{
		Username: username,
		Password: string(hash),
		Role:     role,
		TenantID: actor.TenantID,
		Active:   true,
	}); err != nil {
		return err
	}

	s.logAudit(ctx, "user_create", "user", username, "role="+role)
	return nil
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		TenantID:      actor.TenantID,
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      entityID,
		Detail:        detail,
	}); err != nil {
		log.Printf("[service] WARN: failed to write audit log action=%s: %v", action, err)
	}
}
