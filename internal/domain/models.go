package domain

import "time"

const (
	PaymentCash  = "CASH"
	PaymentCard  = "CARD"
	PaymentMixed = "MIXED"
)

const (
	RefundStatusNone    = "NONE"
	RefundStatusPartial = "PARTIAL"
	RefundStatusFull    = "FULL"
)

const (
	MovementSale       = "SALE"
	MovementRefund     = "REFUND"
	MovementRefill     = "REFILL"
	MovementAdjustment = "ADJUSTMENT"
)

type Tenant struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	RefundWindowDays *int      `json:"refund_window_days,omitempty"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

type Product struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	SKU               string    `json:"sku"`
	Barcode           string    `json:"barcode,omitempty"`
	Name              string    `json:"name"`
	Category          string    `json:"category,omitempty"`
	CostPriceCents    int64     `json:"cost_price_cents"`
	SellingPriceCents int64     `json:"selling_price_cents"`
	StockLevel        int       `json:"stock_level"`
	LowStockThreshold int       `json:"low_stock_threshold"`
	Taxable           bool      `json:"taxable"`
	Active            bool      `json:"active"`
	ImageURL          string    `json:"image_url,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	SKU               string `json:"sku"`
	Barcode           string `json:"barcode,omitempty"`
	Name              string `json:"name"`
	Category          string `json:"category,omitempty"`
	CostPriceCents    int64  `json:"cost_price_cents"`
	SellingPriceCents int64  `json:"selling_price_cents"`
	InitialStock      int    `json:"initial_stock"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Taxable           bool   `json:"taxable"`
}

type ProductUpdateRequest struct {
	Barcode           string `json:"barcode,omitempty"`
	Name              string `json:"name"`
	Category          string `json:"category,omitempty"`
	CostPriceCents    int64  `json:"cost_price_cents"`
	SellingPriceCents int64  `json:"selling_price_cents"`
	LowStockThreshold int    `json:"low_stock_threshold"`
	Taxable           bool   `json:"taxable"`
	Active            bool   `json:"active"`
}

type ProductCategory struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

type Sale struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenant_id"`
	SaleNumber         string     `json:"sale_number"`
	SubtotalCents      int64      `json:"subtotal_cents"`
	TaxCents           int64      `json:"tax_cents"`
	DiscountCents      int64      `json:"discount_cents"`
	TotalCents         int64      `json:"total_cents"`
	PaymentMethod      string     `json:"payment_method"`
	CashReceivedCents  int64      `json:"cash_received_cents"`
	CashChangeCents    int64      `json:"cash_change_cents"`
	CardAmountCents    int64      `json:"card_amount_cents"`
	TotalRefundedCents int64      `json:"total_refunded_cents"`
	RefundStatus       string     `json:"refund_status"`
	OperatorID         string     `json:"operator_id"`
	CreatedAt          time.Time  `json:"created_at"`
	Items              []SaleItem `json:"items"`
}

type SaleItem struct {
	ID               string `json:"id"`
	SaleID           string `json:"sale_id"`
	ProductID        string `json:"product_id"`
	Quantity         int    `json:"quantity"`
	UnitPriceCents   int64  `json:"unit_price_cents"`
	SubtotalCents    int64  `json:"subtotal_cents"`
	TaxCents         int64  `json:"tax_cents"`
	TotalCents       int64  `json:"total_cents"`
	QuantityRefunded int    `json:"quantity_refunded"`
}

type SaleItemInput struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	TaxCents       int64  `json:"tax_cents"`
}

type SaleCommitRequest struct {
	SubtotalCents     int64           `json:"subtotal_cents"`
	TaxCents          int64           `json:"tax_cents"`
	DiscountCents     int64           `json:"discount_cents"`
	TotalCents        int64           `json:"total_cents"`
	PaymentMethod     string          `json:"payment_method"`
	CashReceivedCents int64           `json:"cash_received_cents"`
	CardAmountCents   int64           `json:"card_amount_cents"`
	Items             []SaleItemInput `json:"items"`
}

type SaleCommitResponse struct {
	SaleID     string `json:"sale_id"`
	SaleNumber string `json:"sale_number"`
}

type Refund struct {
	ID            string       `json:"id"`
	TenantID      string       `json:"tenant_id"`
	RefundNumber  string       `json:"refund_number"`
	SaleID        string       `json:"sale_id"`
	RefundType    string       `json:"refund_type"`
	SubtotalCents int64        `json:"subtotal_cents"`
	TaxCents      int64        `json:"tax_cents"`
	TotalCents    int64        `json:"total_cents"`
	PaymentMethod string       `json:"payment_method"`
	Reason        string       `json:"reason,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	OperatorID    string       `json:"operator_id"`
	CreatedAt     time.Time    `json:"created_at"`
	Items         []RefundItem `json:"items"`
}

type RefundItem struct {
	ID             string `json:"id"`
	RefundID       string `json:"refund_id"`
	SaleItemID     string `json:"sale_item_id"`
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
	TaxCents       int64  `json:"tax_cents"`
	TotalCents     int64  `json:"total_cents"`
}

type RefundItemInput struct {
	SaleItemID string `json:"sale_item_id"`
	Quantity   int    `json:"quantity"`
}

type RefundRequest struct {
	SaleID        string            `json:"sale_id"`
	Items         []RefundItemInput `json:"items"`
	PaymentMethod string            `json:"payment_method"`
	Reason        string            `json:"reason"`
	Notes         string            `json:"notes,omitempty"`
	Restock       bool              `json:"restock"`
}

type RefundResponse struct {
	RefundID     string `json:"refund_id"`
	RefundNumber string `json:"refund_number"`
}

type StockMovement struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ProductID     string    `json:"product_id"`
	Type          string    `json:"type"`
	QuantityDelta int       `json:"quantity_delta"`
	PreviousStock int       `json:"previous_stock"`
	NewStock      int       `json:"new_stock"`
	OperatorID    string    `json:"operator_id"`
	Reference     string    `json:"reference,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// StockDelta is the Inventory Ledger request: one signed stock change plus
// the movement metadata recorded alongside it.
type StockDelta struct {
	TenantID   string
	ProductID  string
	Delta      int
	Type       string
	OperatorID string
	Reference  string
	Reason     string
}

type StockAdjustRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason,omitempty"`
}

type StockAdjustResponse struct {
	ProductID string `json:"product_id"`
	NewStock  int    `json:"new_stock"`
}

type ImportRow struct {
	SKU               string `json:"sku"`
	Barcode           string `json:"barcode,omitempty"`
	Name              string `json:"name"`
	Category          string `json:"category,omitempty"`
	CostPrice         string `json:"cost_price,omitempty"`
	SellingPrice      string `json:"selling_price"`
	StockQty          string `json:"stock_qty,omitempty"`
	LowStockThreshold string `json:"low_stock_threshold,omitempty"`
	Taxable           bool   `json:"taxable"`
	ImageURL          string `json:"image_url,omitempty"`
}

type ImportRequest struct {
	Rows []ImportRow `json:"rows"`
}

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
	SKU   string `json:"sku,omitempty"`
	Name  string `json:"name,omitempty"`
}

type ImportSummary struct {
	SuccessCount int              `json:"success_count"`
	FailedCount  int              `json:"failed_count"`
	Errors       []ImportRowError `json:"errors"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	TenantID    string `json:"tenant_id"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	ID       string
	Username string
	Role     string
	TenantID string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	TenantID  string
	Active    bool
	CreatedAt time.Time
}

func ValidPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentCard, PaymentMixed:
		return true
	}
	return false
}

func ValidMovementType(movementType string) bool {
	switch movementType {
	case MovementSale, MovementRefund, MovementRefill, MovementAdjustment:
		return true
	}
	return false
}
