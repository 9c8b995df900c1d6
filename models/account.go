package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	Email        string    `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string    `json:"-" gorm:"size:255"`
	FullName     string    `json:"full_name" gorm:"size:255"`
	Phone        string    `json:"phone" gorm:"size:32"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Address struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	UserID    int64     `json:"user_id" gorm:"index"`
	Line      string    `json:"line" gorm:"size:512"`
	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Store struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:255"`
	Address   string    `json:"address" gorm:"size:512"`
	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeliveryMethod with IsDelivery=false is a pickup method.
type DeliveryMethod struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	Code       string    `json:"code" gorm:"size:32;uniqueIndex"`
	Name       string    `json:"name" gorm:"size:255"`
	IsDelivery bool      `json:"is_delivery"`
	IsActive   bool      `json:"is_active" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

const (
	PaymentCodeCOD    = "cod"
	PaymentCodeOnline = "online"
)

type PaymentMethod struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Code      string    `json:"code" gorm:"size:32;uniqueIndex"`
	Name      string    `json:"name" gorm:"size:255"`
	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRewardProgress records, per user and threshold, whether the
// threshold voucher has been minted.
type UserRewardProgress struct {
	ID              int64           `json:"id" gorm:"primaryKey"`
	UserID          int64           `json:"user_id" gorm:"uniqueIndex:idx_reward_user_threshold"`
	Threshold       int64           `json:"threshold" gorm:"uniqueIndex:idx_reward_user_threshold"`
	QualifyingSpend decimal.Decimal `json:"qualifying_spend" gorm:"type:decimal(14,2)"`
	VoucherClaimed  bool            `json:"voucher_claimed"`
	PromotionID     *int64          `json:"promotion_id,omitempty"`
	ClaimedAt       *time.Time      `json:"claimed_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
