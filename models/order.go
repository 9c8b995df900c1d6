package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// statusFlow is the delivery sequence. Statuses cannot be skipped.
var statusFlow = map[OrderStatus]OrderStatus{
	StatusPending:        StatusConfirmed,
	StatusConfirmed:      StatusPreparing,
	StatusPreparing:      StatusOutForDelivery,
	StatusOutForDelivery: StatusDelivered,
}

// Next returns the status that follows s in the delivery sequence.
func (s OrderStatus) Next() (OrderStatus, bool) {
	next, ok := statusFlow[s]
	return next, ok
}

// CanTransitionTo reports whether an order in status s may move to next:
// either the following status, or cancelled from any non-terminal status.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	following, ok := s.Next()
	return ok && following == next
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

// Order is a snapshot taken at checkout. Status mirrors the latest
// OrderStatusHistory row.
type Order struct {
	ID               int64           `json:"id" gorm:"primaryKey"`
	Code             string          `json:"code" gorm:"size:32;uniqueIndex"`
	UserID           *int64          `json:"user_id,omitempty" gorm:"index"`
	SessionKey       string          `json:"-" gorm:"size:64;index"`
	CustomerName     string          `json:"customer_name" gorm:"size:255"`
	CustomerPhone    string          `json:"customer_phone" gorm:"size:32"`
	CustomerEmail    string          `json:"customer_email" gorm:"size:255"`
	ShippingAddress  string          `json:"shipping_address" gorm:"size:512"`
	AddressID        *int64          `json:"address_id,omitempty"`
	StoreID          *int64          `json:"store_id,omitempty"`
	DeliveryMethodID int64           `json:"delivery_method_id"`
	PaymentMethodID  int64           `json:"payment_method_id"`
	PromotionID      *int64          `json:"promotion_id,omitempty"`
	Subtotal         decimal.Decimal `json:"subtotal" gorm:"type:decimal(14,2)"`
	ShippingFee      decimal.Decimal `json:"shipping_fee" gorm:"type:decimal(14,2)"`
	DiscountAmount   decimal.Decimal `json:"discount_amount" gorm:"type:decimal(14,2)"`
	TotalAmount      decimal.Decimal `json:"total_amount" gorm:"type:decimal(14,2)"`
	Status           OrderStatus     `json:"status" gorm:"size:32;index"`
	PaymentStatus    PaymentStatus   `json:"payment_status" gorm:"size:32"`
	Note             string          `json:"note" gorm:"type:text"`
	OrderDate        time.Time       `json:"order_date" gorm:"index"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID            int64           `json:"id" gorm:"primaryKey"`
	OrderID       int64           `json:"order_id" gorm:"index"`
	ProductID     int64           `json:"product_id"`
	ProductName   string          `json:"product_name" gorm:"size:255"`
	UnitPrice     decimal.Decimal `json:"unit_price" gorm:"type:decimal(14,2)"`
	Quantity      int             `json:"quantity"`
	Configuration datatypes.JSON  `json:"configuration"`
	LineTotal     decimal.Decimal `json:"line_total" gorm:"type:decimal(14,2)"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OrderStatusHistory rows are only ever inserted.
type OrderStatusHistory struct {
	ID        int64       `json:"id" gorm:"primaryKey"`
	OrderID   int64       `json:"order_id" gorm:"index"`
	Status    OrderStatus `json:"status" gorm:"size:32"`
	ChangedAt time.Time   `json:"changed_at"`
	Actor     string      `json:"actor" gorm:"size:255"`
	Note      string      `json:"note" gorm:"type:text"`
}

type PaymentTransaction struct {
	ID             int64           `json:"id" gorm:"primaryKey"`
	OrderID        int64           `json:"order_id" gorm:"index"`
	TransactionRef string          `json:"transaction_ref" gorm:"size:64"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(14,2)"`
	ResultCode     string          `json:"result_code" gorm:"size:8"`
	Verified       bool            `json:"verified"`
	CreatedAt      time.Time       `json:"created_at"`
}
