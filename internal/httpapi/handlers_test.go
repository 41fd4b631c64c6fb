package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"kasirhub/backend/internal/domain"
	"kasirhub/backend/internal/service"
	"kasirhub/backend/internal/store/memory"
)

func newTestAPI() http.Handler {
	repo := memory.NewSeeded()
	svc := service.New(repo, nil)
	auth := NewAuthManager("test-secret", time.Hour)
	return New(svc, auth, "*").Handler()
}

func doJSON(t *testing.T, handler http.Handler, method string, path string, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func login(t *testing.T, handler http.Handler, username string, password string) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", domain.LoginRequest{
		Username: username,
		Password: password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.TenantID == "" {
		t.Fatalf("login response missing tenant")
	}
	return resp.AccessToken
}

func TestSaleAndRefundFlowOverHTTP(t *testing.T) {
	handler := newTestAPI()
	adminToken := login(t, handler, "admin", "admin123")
	cashierToken := login(t, handler, "kasir", "kasir123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", adminToken, domain.ProductCreateRequest{
		SKU: "SKU-HTTP", Name: "Produk HTTP", SellingPriceCents: 5000, InitialStock: 10, Taxable: true,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create product: status %d body %s", rec.Code, rec.Body.String())
	}
	var created struct {
		Product domain.Product `json:"product"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode product: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", cashierToken, domain.SaleCommitRequest{
		SubtotalCents:     10000,
		TaxCents:          1500,
		TotalCents:        11500,
		PaymentMethod:     domain.PaymentCash,
		CashReceivedCents: 11500,
		Items: []domain.SaleItemInput{
			{ProductID: created.Product.ID, Quantity: 2, TaxCents: 1500},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("commit sale: status %d body %s", rec.Code, rec.Body.String())
	}
	var saleResp domain.SaleCommitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &saleResp); err != nil {
		t.Fatalf("decode sale response: %v", err)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+saleResp.SaleID, cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get sale: status %d body %s", rec.Code, rec.Body.String())
	}
	var fetched struct {
		Sale domain.Sale `json:"sale"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &fetched); err != nil {
		t.Fatalf("decode sale: %v", err)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/refunds", cashierToken, domain.RefundRequest{
		SaleID:        saleResp.SaleID,
		PaymentMethod: domain.PaymentCash,
		Reason:        "return",
		Items: []domain.RefundItemInput{
			{SaleItemID: fetched.Sale.Items[0].ID, Quantity: 1},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("refund: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/v1/sales/%s/refunds", saleResp.SaleID), cashierToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list refunds: status %d body %s", rec.Code, rec.Body.String())
	}
	var refunds struct {
		Refunds []domain.Refund `json:"refunds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &refunds); err != nil {
		t.Fatalf("decode refunds: %v", err)
	}
	if len(refunds.Refunds) != 1 || refunds.Refunds[0].TotalCents != 5750 {
		t.Fatalf("refunds = %+v", refunds.Refunds)
	}
}

func TestRefundErrorsMapToUnprocessable(t *testing.T) {
	handler := newTestAPI()
	adminToken := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", adminToken, domain.ProductCreateRequest{
		SKU: "SKU-422", Name: "Produk 422", SellingPriceCents: 1000, InitialStock: 5,
	})
	var created struct {
		Product domain.Product `json:"product"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/sales", adminToken, domain.SaleCommitRequest{
		SubtotalCents: 1000, TotalCents: 1000, PaymentMethod: domain.PaymentCash, CashReceivedCents: 1000,
		Items: []domain.SaleItemInput{{ProductID: created.Product.ID, Quantity: 1}},
	})
	var saleResp domain.SaleCommitResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &saleResp)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/sales/"+saleResp.SaleID, adminToken, nil)
	var fetched struct {
		Sale domain.Sale `json:"sale"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &fetched)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/refunds", adminToken, domain.RefundRequest{
		SaleID:        saleResp.SaleID,
		PaymentMethod: domain.PaymentCard,
		Items: []domain.RefundItemInput{
			{SaleItemID: fetched.Sale.Items[0].ID, Quantity: 1},
		},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("method mismatch refund: status %d body %s", rec.Code, rec.Body.String())
	}
}

func TestCatalogImportOverHTTP(t *testing.T) {
	handler := newTestAPI()
	adminToken := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/imports/catalog", adminToken, domain.ImportRequest{
		Rows: []domain.ImportRow{
			{SKU: "IMP-1", Name: "Produk Impor", SellingPrice: "12,500.00", StockQty: "7"},
			{SKU: "IMP-2", Name: "", SellingPrice: "1000"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("import: status %d body %s", rec.Code, rec.Body.String())
	}
	var summary domain.ImportSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if summary.SuccessCount != 1 || summary.FailedCount != 1 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestStockEndpoints(t *testing.T) {
	handler := newTestAPI()
	adminToken := login(t, handler, "admin", "admin123")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/products", adminToken, domain.ProductCreateRequest{
		SKU: "SKU-STOCK", Name: "Produk Stok", SellingPriceCents: 1000, InitialStock: 3,
	})
	var created struct {
		Product domain.Product `json:"product"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &created)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/stock/refill", adminToken, domain.StockAdjustRequest{
		ProductID: created.Product.ID, Quantity: 4,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("refill: status %d body %s", rec.Code, rec.Body.String())
	}
	var adjusted domain.StockAdjustResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &adjusted)
	if adjusted.NewStock != 7 {
		t.Fatalf("new stock = %d, want 7", adjusted.NewStock)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/stock/movements?product_id="+created.Product.ID, adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("movements: status %d body %s", rec.Code, rec.Body.String())
	}
	var movements struct {
		Movements []domain.StockMovement `json:"movements"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &movements); err != nil {
		t.Fatalf("decode movements: %v", err)
	}
	if len(movements.Movements) != 2 {
		t.Fatalf("got %d movements, want 2", len(movements.Movements))
	}
}
