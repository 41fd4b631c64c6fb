package service

import (
	"context"
	"fmt"

	"kasirhub/backend/internal/domain"
	"kasirhub/backend/internal/store"
)

const maxSaleItems = 100

// CommitSale validates a cart against the live catalog, derives the
// authoritative totals, and persists the sale together with its stock
// effects in a single transaction. Client-sent totals are checked, never
// trusted.
func (s *Service) CommitSale(ctx context.Context, req domain.SaleCommitRequest) (domain.SaleCommitResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.SaleCommitResponse{}, err
	}

	if len(req.Items) == 0 {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	if len(req.Items) > maxSaleItems {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: at most %d items per sale", ErrValidation, maxSaleItems)
	}
	if !domain.ValidPaymentMethod(req.PaymentMethod) {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, req.PaymentMethod)
	}
	if req.DiscountCents < 0 {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: discount must not be negative", ErrValidation)
	}

	productIDs := make([]string, 0, len(req.Items))
	seen := make(map[string]bool, len(req.Items))
	for _, item := range req.Items {
		if item.ProductID == "" || item.Quantity < 1 {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: every item needs a product_id and a positive quantity", ErrValidation)
		}
		if seen[item.ProductID] {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: product %s appears more than once", ErrValidation, item.ProductID)
		}
		seen[item.ProductID] = true
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := s.repo.GetProductsByIDs(ctx, actor.TenantID, productIDs)
	if err != nil {
		return domain.SaleCommitResponse{}, err
	}

	var subtotal, tax int64
	items := make([]domain.SaleItem, 0, len(req.Items))
	for _, input := range req.Items {
		product, ok := products[input.ProductID]
		if !ok {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: product %s not found", ErrValidation, input.ProductID)
		}
		if !product.Active {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: product %s is inactive", ErrValidation, product.SKU)
		}
		if input.UnitPriceCents != 0 && input.UnitPriceCents != product.SellingPriceCents {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: price for %s no longer matches the catalog", ErrValidation, product.SKU)
		}
		if !product.Taxable && input.TaxCents != 0 {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: product %s is not taxable", ErrValidation, product.SKU)
		}
		if input.TaxCents < 0 {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: tax must not be negative", ErrValidation)
		}

		unitPrice := product.SellingPriceCents
		itemSubtotal := unitPrice * int64(input.Quantity)
		items = append(items, domain.SaleItem{
			ProductID:      input.ProductID,
			Quantity:       input.Quantity,
			UnitPriceCents: unitPrice,
			SubtotalCents:  itemSubtotal,
			TaxCents:       input.TaxCents,
			TotalCents:     itemSubtotal + input.TaxCents,
		})
		subtotal += itemSubtotal
		tax += input.TaxCents
	}

	if req.SubtotalCents != subtotal {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: subtotal mismatch: sent %d, computed %d", ErrValidation, req.SubtotalCents, subtotal)
	}
	if req.TaxCents != tax {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: tax mismatch: sent %d, computed %d", ErrValidation, req.TaxCents, tax)
	}
	total := subtotal + tax - req.DiscountCents
	if total < 0 {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: discount exceeds the sale amount", ErrValidation)
	}
	if req.TotalCents != total {
		return domain.SaleCommitResponse{}, fmt.Errorf("%w: total mismatch: sent %d, computed %d", ErrValidation, req.TotalCents, total)
	}

	var cashReceived, cashChange, cardAmount int64
	switch req.PaymentMethod {
	case domain.PaymentCash:
		if req.CashReceivedCents < total {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: cash received is less than the total", ErrValidation)
		}
		cashReceived = req.CashReceivedCents
		cashChange = req.CashReceivedCents - total
	case domain.PaymentCard:
		if req.CardAmountCents != 0 && req.CardAmountCents != total {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: card amount must equal the total", ErrValidation)
		}
		cardAmount = total
	case domain.PaymentMixed:
		if req.CashReceivedCents < 1 || req.CardAmountCents < 1 {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: mixed payment needs both a cash and a card portion", ErrValidation)
		}
		if req.CashReceivedCents+req.CardAmountCents != total {
			return domain.SaleCommitResponse{}, fmt.Errorf("%w: cash and card portions must sum to the total", ErrValidation)
		}
		cashReceived = req.CashReceivedCents
		cardAmount = req.CardAmountCents
	}

	saleNumber, err := s.saleNums.Next(ctx)
	if err != nil {
		return domain.SaleCommitResponse{}, err
	}

	sale, err := s.repo.CreateSale(ctx, domain.Sale{
		TenantID:          actor.TenantID,
		SaleNumber:        saleNumber,
		SubtotalCents:     subtotal,
		TaxCents:          tax,
		DiscountCents:     req.DiscountCents,
		TotalCents:        total,
		PaymentMethod:     req.PaymentMethod,
		CashReceivedCents: cashReceived,
		CashChangeCents:   cashChange,
		CardAmountCents:   cardAmount,
		OperatorID:        actor.ID,
		Items:             items,
	})
	if err != nil {
		return domain.SaleCommitResponse{}, err
	}

	s.logAudit(ctx, "sale_commit", "sale", sale.ID, fmt.Sprintf("number=%s,total=%d,items=%d", sale.SaleNumber, sale.TotalCents, len(sale.Items)))
	return domain.SaleCommitResponse{SaleID: sale.ID, SaleNumber: sale.SaleNumber}, nil
}

func (s *Service) GetSale(ctx context.Context, saleID string) (*domain.Sale, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.TenantID != actor.TenantID {
		// Do not leak other tenants' sale IDs.
		return nil, store.ErrNotFound
	}
	return sale, nil
}
