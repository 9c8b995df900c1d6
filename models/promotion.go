package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Only percentage discounts are priced.
type DiscountType string

const (
	Percentage DiscountType = "PERCENTAGE"
)

type Promotion struct {
	ID             int64            `json:"id" gorm:"primaryKey"`
	Name           string           `json:"name" gorm:"size:255"`
	CouponCode     *string          `json:"coupon_code,omitempty" gorm:"size:64;uniqueIndex"`
	DiscountType   DiscountType     `json:"discount_type" gorm:"size:50"`
	DiscountValue  decimal.Decimal  `json:"discount_value" gorm:"type:decimal(5,2)"`
	StartDate      time.Time        `json:"start_date"`
	EndDate        time.Time        `json:"end_date"`
	MinOrderValue  *decimal.Decimal `json:"min_order_value,omitempty" gorm:"type:decimal(14,2)"`
	MaxUses        *int             `json:"max_uses,omitempty"`
	MaxUsesPerUser *int             `json:"max_uses_per_user,omitempty"`
	UsesCount      int              `json:"uses_count" gorm:"not null;default:0"`
	IsActive       bool             `json:"is_active" gorm:"not null"`
	// OwnerUserID restricts a promotion to a single user (auto-vouchers).
	OwnerUserID *int64 `json:"owner_user_id,omitempty" gorm:"index"`
	// GeneratedForThreshold is set on promotions minted by the reward engine.
	GeneratedForThreshold *int64    `json:"generated_for_threshold,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// PromotionProduct limits a promotion to orders containing the product.
type PromotionProduct struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	PromotionID int64     `json:"promotion_id" gorm:"index"`
	ProductID   int64     `json:"product_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// PromotionCategory limits a promotion to orders containing a product of the category.
type PromotionCategory struct {
	ID          int64     `json:"id" gorm:"primaryKey"`
	PromotionID int64     `json:"promotion_id" gorm:"index"`
	CategoryID  int64     `json:"category_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserPromotion is one redemption event.
type UserPromotion struct {
	ID             int64           `json:"id" gorm:"primaryKey"`
	UserID         int64           `json:"user_id" gorm:"index:idx_user_promotion"`
	PromotionID    int64           `json:"promotion_id" gorm:"index:idx_user_promotion"`
	OrderID        *int64          `json:"order_id,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount" gorm:"type:decimal(14,2)"`
	RedeemedAt     time.Time       `json:"redeemed_at"`
}
