package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Cart is owned by a user or by an anonymous session key, never both.
type Cart struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	UserID     *int64    `json:"user_id,omitempty" gorm:"uniqueIndex"`
	SessionKey *string   `json:"session_key,omitempty" gorm:"size:64;uniqueIndex"`
	CouponCode string    `json:"coupon_code" gorm:"size:64"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CartItem struct {
	ID        int64           `json:"id" gorm:"primaryKey"`
	CartID    int64           `json:"cart_id" gorm:"index"`
	ProductID int64           `json:"product_id" gorm:"index"`
	VariantID *int64          `json:"variant_id,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price" gorm:"type:decimal(14,2)"`
	// Configuration is the serialized list of selected choices.
	Configuration datatypes.JSON `json:"configuration"`
	// ConfigKey is the canonical form of Configuration used to group identical lines.
	ConfigKey string    `json:"-" gorm:"size:512"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SelectedChoice is one entry of a cart line configuration snapshot.
type SelectedChoice struct {
	GroupID         int64           `json:"group_id"`
	GroupName       string          `json:"group_name"`
	OptionID        int64           `json:"option_id"`
	OptionName      string          `json:"option_name"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

func (i CartItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
