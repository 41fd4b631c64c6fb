package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"kasirhub/backend/internal/domain"
)

// sellTwoTaxedUnits commits a sale of 2 units at 50.00 each with 15.00
// total tax, paid with the given method. It returns the stored sale.
func sellTwoTaxedUnits(t *testing.T, svc *Service, method string) *domain.Sale {
	t.Helper()
	product := mustCreateProduct(t, svc, domain.ProductCreateRequest{
		SKU: "SKU-TAXED", Name: "Produk Pajak", SellingPriceCents: 5000, InitialStock: 10, Taxable: true,
	})

	req := domain.SaleCommitRequest{
		SubtotalCents: 10000,
		TaxCents:      1500,
		TotalCents:    11500,
		PaymentMethod: method,
		Items: []domain.SaleItemInput{
			{ProductID: product.ID, Quantity: 2, TaxCents: 1500},
		},
	}
	switch method {
	case domain.PaymentCash:
		req.CashReceivedCents = 11500
	case domain.PaymentCard:
		req.CardAmountCents = 11500
	case domain.PaymentMixed:
		req.CashReceivedCents = 5000
		req.CardAmountCents = 6500
	}

	resp, err := svc.CommitSale(cashierCtx(), req)
	if err != nil {
		t.Fatalf("commit sale: %v", err)
	}
	sale, err := svc.GetSale(cashierCtx(), resp.SaleID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	return sale
}

func TestRefundDerivesProportionalTax(t *testing.T) {
	svc, _ := newTestService()
	sale := sellTwoTaxedUnits(t, svc, domain.PaymentCash)

	resp, err := svc.AdjudicateRefund(cashierCtx(), domain.RefundRequest{
		SaleID:        sale.ID,
		PaymentMethod: domain.PaymentCash,
		Reason:        "customer return",
		Items: []domain.RefundItemInput{
			{SaleItemID: sale.Items[0].ID, Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if !strings.HasPrefix(resp.RefundNumber, "REF-") {
		t.Fatalf("refund number %q missing REF- prefix", resp.RefundNumber)
	}

	refunds, err := svc.ListRefunds(cashierCtx(), sale.ID)
	if err != nil {
		t.Fatalf("list refunds: %v", err)
	}
	if len(refunds) != 1 {
		t.Fatalf("got %d refunds, want 1", len(refunds))
	}
	refund := refunds[0]
	// Half of the 15.00 tax comes back with one of the two units.
	if refund.SubtotalCents != 5000 || refund.TaxCents != 750 || refund.TotalCents != 5750 {
		t.Fatalf("refund amounts = %d/%d/%d, want 5000/750/5750", refund.SubtotalCents, refund.TaxCents, refund.TotalCents)
	}

	sale, _ = svc.GetSale(cashierCtx(), sale.ID)
	if sale.TotalRefundedCents != 5750 {
		t.Fatalf("total refunded = %d, want 5750", sale.TotalRefundedCents)
	}
	if sale.RefundStatus != domain.RefundStatusPartial {
		t.Fatalf("refund status = %s, want PARTIAL", sale.RefundStatus)
	}
	if sale.Items[0].QuantityRefunded != 1 {
		t.Fatalf("quantity refunded = %d, want 1", sale.Items[0].QuantityRefunded)
	}
}

func TestRefundReachesFullStatusAndStopsThere(t *testing.T) {
	svc, _ := newTestService()
	sale := sellTwoTaxedUnits(t, svc, domain.PaymentCash)

	if _, err := svc.AdjudicateRefund(cashierCtx(), domain.RefundRequest{
		SaleID:        sale.ID,
		PaymentMethod: domain.PaymentCash,
		Items: []domain.RefundItemInput{
			{SaleItemID: sale.Items[0].ID, Quantity: 1},
		},
	}); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if _, err := svc.AdjudicateRefund(cashierCtx(), domain.RefundRequest{
		SaleID:        sale.ID,
		PaymentMethod: domain.PaymentCash,
		Items: []domain.RefundItemInput{
			{SaleItemID: sale.Items[0].ID, Quantity: 1},
		},
	}); err != nil {
		t.Fatalf("second refund: %v", err)
	}

	sale, _ = svc.GetSale(cashierCtx(), sale.ID)
	if sale.TotalRefundedCents != 11500 {
		t.Fatalf("total refunded = %d, want 11500", sale.TotalRefundedCents)
	}
	if sale.RefundStatus != domain.RefundStatusFull {
		t.Fatalf("refund status = %s, want FULL", sale.RefundStatus)
	}

	_, err := svc.AdjudicateRefund(cashierCtx(), domain.RefundRequest{
		SaleID:        sale.ID,
		PaymentMethod: domain.PaymentCash,
		Items: []domain.RefundItemInput{
			{SaleItemID: sale.Items[0].ID, Quantity: 1},
		},
	})
	if !errors.Is(err, ErrRefundExceedsQuantity) {
		t.Fatalf("refund on exhausted sale err = %v, want ErrRefundExceedsQuantity", err)
	}
}

func TestRefundQuantityCannotExceedSold(t *testing.T) {
	svc, _ := newTestService()
	sale := sellTwoTaxedUnits(t, svc, domain.PaymentCash)

	_, err := svc.AdjudicateRefund(cashierCtx(), domain.RefundRequest{
		SaleID:        sale.ID,
		PaymentMethod: domain.PaymentCash,
		Items: []domain.RefundItemInput{
			{SaleItemID: sale.Items[0].ID, Quantity: 3},
		},
	})
	if !errors.Is(err, ErrRefundExceedsQuantity) {
		t.Fatalf("err = %v, want ErrRefundExceedsQuantity", err)
	}
}

func TestRefundPaymentMethodMustMatchSale(t *testing.T) {
	svc, _ := newTestService()
	sale := sellTwoTaxedUnits(t, svc, domain.PaymentCash)

	_, err := svc.AdjudicateRefund(cashierCtx(), domain.RefundRequest{
		SaleID:        sale.ID,
		PaymentMethod: domain.PaymentCard,
		Items: []domain.RefundItemInput{
			{SaleItemID: sale.Items[0].ID, Quantity: 1},
		},
	})
	if !errors.Is(err, ErrPaymentMethodMismatch) {
		t.Fatalf("err = %v, want ErrPaymentMethodMismatch", err)
	}
}

func TestMixedSaleAcceptsEitherRefundMethod(t *testing.T) {
	svc, _ := newTestService()
	sale := sellTwoTaxedUnits(t, svc, domain.PaymentMixed)

	if _, err := svc.AdjudicateRefund(cashierCtx(), domain.RefundRequest{
		SaleID:        sale.ID,
		PaymentMethod: domain.PaymentCard,
		Items: []domain.RefundItemInput{
			{SaleItemID: sale.Items[0].ID, Quantity: 1},
		},
	}); err != nil {
		t.Fatalf("card refund against mixed sale: %v", err)
	}
	if _, err := svc.AdjudicateRefund(cashierCtx(), domain.RefundRequest{
		SaleID:        sale.ID,
		PaymentMethod: domain.PaymentCash,
		Items: []domain.RefundItemInput{
			{SaleItemID: sale.Items[0].ID, Quantity: 1},
		},
	}); err != nil {
		t.Fatalf("cash refund against mixed sale: %v", err)
	}
}

func TestRefundRestockReturnsUnitsToInventory(t *testing.T) {
	svc, _ := newTestService()
	sale := sellTwoTaxedUnits(t, svc, domain.PaymentCash)

	resp, err := svc.AdjudicateRefund(cashierCtx(), domain.RefundRequest{
		SaleID:        sale.ID,
		PaymentMethod: domain.PaymentCash,
		Restock:       true,
		Items: []domain.RefundItemInput{
			{SaleItemID: sale.Items[0].ID, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}

	products, _ := svc.ListProducts(adminCtx())
	if products[0].StockLevel != 10 {
		t.Fatalf("stock after restocked refund = %d, want 10", products[0].StockLevel)
	}

	movements, _ := svc.ListStockMovements(adminCtx(), sale.Items[0].ProductID, 10)
	found := false
	for _, m := range movements {
		if m.Type == domain.MovementRefund {
			found = true
			if m.QuantityDelta != 2 || m.Reference != resp.RefundNumber {
				t.Fatalf("refund movement = %+v", m)
			}
		}
	}
	if !found {
		t.Fatalf("no REFUND movement recorded")
	}
}

func TestRefundWithoutRestockLeavesInventoryAlone(t *testing.T) {
	svc, _ := newTestService()
	sale := sellTwoTaxedUnits(t, svc, domain.PaymentCash)

	if _, err := svc.AdjudicateRefund(cashierCtx(), domain.RefundRequest{
		SaleID:        sale.ID,
		PaymentMethod: domain.PaymentCash,
		Items: []domain.RefundItemInput{
			{SaleItemID: sale.Items[0].ID, Quantity: 2},
		},
	}); err != nil {
		t.Fatalf("refund: %v", err)
	}

	products, _ := svc.ListProducts(adminCtx())
	if products[0].StockLevel != 8 {
		t.Fatalf("stock after non-restocked refund = %d, want 8", products[0].StockLevel)
	}
}

func TestCheckRefundWindow(t *testing.T) {
	day := func(s string) time.Time {
		parsed, err := time.Parse("2006-01-02 15:04", s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		return parsed
	}
	window := func(n int) *int { return &n }

	cases := []struct {
		name    string
		window  *int
		soldAt  time.Time
		now     time.Time
		expired bool
	}{
		{"nil window never expires", nil, day("2020-01-01 10:00"), day("2026-08-31 10:00"), false},
		{"zero window same day ok", window(0), day("2026-08-31 08:00"), day("2026-08-31 23:00"), false},
		{"zero window next day expired", window(0), day("2026-08-30 23:59"), day("2026-08-31 00:01"), true},
		{"thirty days boundary ok", window(30), day("2026-08-01 10:00"), day("2026-08-31 10:00"), false},
		{"thirty one days expired", window(30), day("2026-07-31 10:00"), day("2026-08-31 10:00"), true},
	}
	for _, tc := range cases {
		err := checkRefundWindow(tc.window, tc.soldAt, tc.now)
		if tc.expired && !errors.Is(err, ErrRefundWindowExpired) {
			t.Errorf("%s: err = %v, want ErrRefundWindowExpired", tc.name, err)
		}
		if !tc.expired && err != nil {
			t.Errorf("%s: unexpected err %v", tc.name, err)
		}
	}
}

func TestProportionalTaxRounding(t *testing.T) {
	cases := []struct {
		lineTax  int64
		soldQty  int
		refund   int
		expected int64
	}{
		{1500, 2, 1, 750},
		{1500, 2, 2, 1500},
		{1000, 3, 1, 333},
		{1000, 3, 2, 667},
		{5, 3, 1, 2},
		{0, 4, 2, 0},
	}
	for _, tc := range cases {
		if got := proportionalTax(tc.lineTax, tc.soldQty, tc.refund); got != tc.expected {
			t.Errorf("proportionalTax(%d, %d, %d) = %d, want %d", tc.lineTax, tc.soldQty, tc.refund, got, tc.expected)
		}
	}
}
