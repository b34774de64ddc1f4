package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Repository level errors shared by the store and its in-memory stand-ins
var (
	ErrNotFound     = errors.New("record not found")
	ErrStaleState   = errors.New("record changed concurrently")
	ErrDuplicateKey = errors.New("duplicate key")
)

// Product is the catalog view consumed by checkout
type Product struct {
	ID            string    `db:"id" json:"id"`
	SupplierID    string    `db:"supplier_id" json:"supplier_id"`
	Name          string    `db:"name" json:"name"`
	Price         int64     `db:"price" json:"price"`
	DiscountPrice int64     `db:"discount_price" json:"discount_price"`
	Stock         int       `db:"stock" json:"stock"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// EffectivePrice returns the discount price when it undercuts the list price.
func (p *Product) EffectivePrice() int64 {
	if p.DiscountPrice > 0 && p.DiscountPrice < p.Price {
		return p.DiscountPrice
	}
	return p.Price
}

// Address is an address book entry
type Address struct {
	ID         string `db:"id" json:"id"`
	CustomerID string `db:"customer_id" json:"customer_id"`
	FullName   string `db:"full_name" json:"full_name"`
	Phone      string `db:"phone" json:"phone"`
	Line1      string `db:"line1" json:"line1"`
	Line2      string `db:"line2" json:"line2,omitempty"`
	City       string `db:"city" json:"city"`
	State      string `db:"state" json:"state"`
	PostalCode string `db:"postal_code" json:"postal_code"`
	Country    string `db:"country" json:"country"`
}

// ShippingAddress is the copied address stored on an order
type ShippingAddress struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Snapshot copies the address values so later edits never reach the order.
func (a *Address) Snapshot() ShippingAddress {
	return ShippingAddress{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

// Value implements driver.Valuer
func (s ShippingAddress) Value() (driver.Value, error) {
	return jsonValue(s)
}

// Scan implements sql.Scanner
func (s *ShippingAddress) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// Cart is a customer's basket
type Cart struct {
	CustomerID string     `json:"customer_id"`
	Items      []CartItem `json:"items"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// CartItem is a line in a cart
type CartItem struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	Quantity      int       `json:"quantity"`
	PriceSnapshot int64     `json:"price_snapshot"`
	AddedAt       time.Time `json:"added_at"`
}

// FindItem returns the index of the line with the given id, or -1.
func (c *Cart) FindItem(itemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// FindProduct returns the index of the line holding the product, or -1.
func (c *Cart) FindProduct(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Order is the immutable priced snapshot created at checkout
type Order struct {
	ID                 string          `db:"id" json:"id"`
	OrderNumber        string          `db:"order_number" json:"order_number"`
	CustomerID         string          `db:"customer_id" json:"customer_id"`
	Items              OrderItems      `db:"items" json:"items"`
	ShippingAddress    ShippingAddress `db:"shipping_address" json:"shipping_address"`
	PaymentMethod      PaymentMethod   `db:"payment_method" json:"payment_method"`
	Notes              string          `db:"notes" json:"notes,omitempty"`
	TotalAmount        int64           `db:"total_amount" json:"total_amount"`
	Tax                int64           `db:"tax" json:"tax"`
	ShippingCharges    int64           `db:"shipping_charges" json:"shipping_charges"`
	Discount           int64           `db:"discount" json:"discount"`
	FinalAmount        int64           `db:"final_amount" json:"final_amount"`
	Status             OrderStatus     `db:"status" json:"status"`
	StatusHistory      StatusHistory   `db:"status_history" json:"status_history"`
	PaymentID          string          `db:"payment_id" json:"payment_id,omitempty"`
	CancelledAt        *time.Time      `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason string          `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	IdempotencyKey     string          `db:"idempotency_key" json:"-"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
}

// SupplierIDs returns the distinct suppliers present on the order.
func (o *Order) SupplierIDs() []string {
	seen := make(map[string]struct{}, len(o.Items))
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		if _, ok := seen[item.SupplierID]; ok || item.SupplierID == "" {
			continue
		}
		seen[item.SupplierID] = struct{}{}
		ids = append(ids, item.SupplierID)
	}
	return ids
}

// OrderItem is a frozen order line
type OrderItem struct {
	ProductID  string `json:"product_id"`
	SupplierID string `json:"supplier_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Subtotal   int64  `json:"subtotal"`
}

// OrderItems is stored as a JSONB document column
type OrderItems []OrderItem

// Value implements driver.Valuer
func (items OrderItems) Value() (driver.Value, error) {
	if items == nil {
		return "[]", nil
	}
	return jsonValue(items)
}

// Scan implements sql.Scanner
func (items *OrderItems) Scan(src interface{}) error {
	return scanJSON(src, items)
}

// StatusEntry is one append-only status history record
type StatusEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"`
}

// StatusHistory is stored as a JSONB document column
type StatusHistory []StatusEntry

// Value implements driver.Valuer
func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	return jsonValue(h)
}

// Scan implements sql.Scanner
func (h *StatusHistory) Scan(src interface{}) error {
	return scanJSON(src, h)
}

// OrderTransition describes a conditional status change on an order
type OrderTransition struct {
	From               []OrderStatus
	Entry              StatusEntry
	CancelledAt        *time.Time
	CancellationReason string
}

// Payment is the single payment record of an order
type Payment struct {
	ID                string          `db:"id" json:"id"`
	OrderID           string          `db:"order_id" json:"order_id"`
	CustomerID        string          `db:"customer_id" json:"customer_id"`
	TransactionID     string          `db:"transaction_id" json:"transaction_id"`
	Amount            int64           `db:"amount" json:"amount"`
	Currency          string          `db:"currency" json:"currency"`
	PaymentMethod     PaymentMethod   `db:"payment_method" json:"payment_method"`
	Status            PaymentStatus   `db:"status" json:"status"`
	GatewayOrderRef   string          `db:"gateway_order_ref" json:"gateway_order_ref,omitempty"`
	GatewayPaymentRef string          `db:"gateway_payment_ref" json:"gateway_payment_ref,omitempty"`
	GatewayResponse   types.JSONText  `db:"gateway_response" json:"gateway_response,omitempty"`
	PaidAt            *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	FailureReason     string          `db:"failure_reason" json:"failure_reason,omitempty"`
	RefundRef         string          `db:"refund_ref" json:"refund_ref,omitempty"`
	RefundStatus      RefundStatus    `db:"refund_status" json:"refund_status,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// jsonValue encodes as text; lib/pq sends []byte parameters as bytea.
func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON column type %T", src)
	}
}
