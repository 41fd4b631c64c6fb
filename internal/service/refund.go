package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"kasirhub/backend/internal/domain"
	"kasirhub/backend/internal/store"
)

// Tolerances for refund arithmetic, in cents. Rounding the per-unit tax
// share can leave the sum a hair off the recorded sale totals; these keep
// legitimate refunds from bouncing without opening a real over-refund hole.
const (
	overRefundToleranceCents = 1
	fullRefundToleranceCents = 5
)

// AdjudicateRefund decides whether a requested refund is allowed and, if
// so, how much money it returns. Amounts are always derived from the
// recorded sale items: the unit price as sold and a proportional share of
// the tax actually charged on each line.
func (s *Service) AdjudicateRefund(ctx context.Context, req domain.RefundRequest) (domain.RefundResponse, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return domain.RefundResponse{}, err
	}

	if req.SaleID == "" || len(req.Items) == 0 {
		return domain.RefundResponse{}, fmt.Errorf("%w: sale_id and at least one item are required", ErrValidation)
	}
	if !domain.ValidPaymentMethod(req.PaymentMethod) {
		return domain.RefundResponse{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, req.PaymentMethod)
	}

	sale, err := s.repo.GetSaleByID(ctx, req.SaleID)
	if err != nil {
		return domain.RefundResponse{}, err
	}
	if sale.TenantID != actor.TenantID {
		return domain.RefundResponse{}, store.ErrNotFound
	}

	tenant, err := s.repo.GetTenant(ctx, actor.TenantID)
	if err != nil {
		return domain.RefundResponse{}, err
	}
	if err := checkRefundWindow(tenant.RefundWindowDays, sale.CreatedAt, time.Now()); err != nil {
		return domain.RefundResponse{}, err
	}

	// A refund goes back the way the money came in. A MIXED sale is the
	// exception: the money came in over two instruments, so either one
	// (or MIXED itself) is acceptable.
	if sale.PaymentMethod != domain.PaymentMixed && req.PaymentMethod != sale.PaymentMethod {
		return domain.RefundResponse{}, ErrPaymentMethodMismatch
	}

	saleItems := make(map[string]domain.SaleItem, len(sale.Items))
	for _, item := range sale.Items {
		saleItems[item.ID] = item
	}

	var subtotal, tax int64
	seen := make(map[string]bool, len(req.Items))
	items := make([]domain.RefundItem, 0, len(req.Items))
	for _, input := range req.Items {
		if input.SaleItemID == "" || input.Quantity < 1 {
			return domain.RefundResponse{}, fmt.Errorf("%w: every item needs a sale_item_id and a positive quantity", ErrValidation)
		}
		if seen[input.SaleItemID] {
			return domain.RefundResponse{}, fmt.Errorf("%w: sale item %s appears more than once", ErrValidation, input.SaleItemID)
		}
		seen[input.SaleItemID] = true

		saleItem, ok := saleItems[input.SaleItemID]
		if !ok {
			return domain.RefundResponse{}, fmt.Errorf("%w: sale item %s does not belong to this sale", ErrValidation, input.SaleItemID)
		}
		if saleItem.QuantityRefunded+input.Quantity > saleItem.Quantity {
			return domain.RefundResponse{}, ErrRefundExceedsQuantity
		}

		itemSubtotal := saleItem.UnitPriceCents * int64(input.Quantity)
		itemTax := proportionalTax(saleItem.TaxCents, saleItem.Quantity, input.Quantity)
		items = append(items, domain.RefundItem{
			SaleItemID:     saleItem.ID,
			ProductID:      saleItem.ProductID,
			Quantity:       input.Quantity,
			UnitPriceCents: saleItem.UnitPriceCents,
			SubtotalCents:  itemSubtotal,
			TaxCents:       itemTax,
			TotalCents:     itemSubtotal + itemTax,
		})
		subtotal += itemSubtotal
		tax += itemTax
	}

	refundTotal := subtotal + tax
	if refundTotal < 1 {
		return domain.RefundResponse{}, fmt.Errorf("%w: refund amount must be positive", ErrValidation)
	}
	newTotalRefunded := sale.TotalRefundedCents + refundTotal
	if newTotalRefunded > sale.TotalCents+overRefundToleranceCents {
		return domain.RefundResponse{}, ErrRefundExceedsAmount
	}

	status := domain.RefundStatusPartial
	if sale.TotalCents-newTotalRefunded <= fullRefundToleranceCents {
		status = domain.RefundStatusFull
	}

	refundNumber, err := s.refundNums.Next(ctx)
	if err != nil {
		return domain.RefundResponse{}, err
	}

	refund, err := s.repo.CommitRefund(ctx, store.RefundCommit{
		Refund: domain.Refund{
			TenantID:      actor.TenantID,
			RefundNumber:  refundNumber,
			SaleID:        sale.ID,
			RefundType:    status,
			SubtotalCents: subtotal,
			TaxCents:      tax,
			TotalCents:    refundTotal,
			PaymentMethod: req.PaymentMethod,
			Reason:        req.Reason,
			Notes:         req.Notes,
			OperatorID:    actor.ID,
			Items:         items,
		},
		NewTotalRefundedCents: newTotalRefunded,
		NewRefundStatus:       status,
		Restock:               req.Restock,
		OperatorID:            actor.ID,
	})
	if err != nil {
		return domain.RefundResponse{}, err
	}

	s.logAudit(ctx, "refund_commit", "refund", refund.ID, fmt.Sprintf("number=%s,sale=%s,amount=%d,status=%s", refund.RefundNumber, sale.SaleNumber, refundTotal, status))
	return domain.RefundResponse{RefundID: refund.ID, RefundNumber: refund.RefundNumber}, nil
}

func (s *Service) ListRefunds(ctx context.Context, saleID string) ([]domain.Refund, error) {
	actor, err := s.requireActor(ctx)
	if err != nil {
		return nil, err
	}
	sale, err := s.repo.GetSaleByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.TenantID != actor.TenantID {
		return nil, store.ErrNotFound
	}
	return s.repo.ListRefundsBySale(ctx, saleID)
}

// proportionalTax returns the refunded quantity's share of the tax that
// was actually charged on the sale line, rounded to the nearest cent.
func proportionalTax(lineTaxCents int64, soldQty int, refundQty int) int64 {
	if soldQty == 0 {
		return 0
	}
	return int64(math.Round(float64(lineTaxCents) * float64(refundQty) / float64(soldQty)))
}

// checkRefundWindow enforces the tenant's day-limit policy. The limit
// counts calendar days in UTC: a window of 0 means same-day only, and a
// nil window means refunds never expire.
func checkRefundWindow(windowDays *int, soldAt time.Time, now time.Time) error {
	if windowDays == nil {
		return nil
	}
	saleDay := soldAt.UTC().Truncate(24 * time.Hour)
	today := now.UTC().Truncate(24 * time.Hour)
	if int(today.Sub(saleDay).Hours()/24) > *windowDays {
		return ErrRefundWindowExpired
	}
	return nil
}
