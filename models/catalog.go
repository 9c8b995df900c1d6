package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	Slug      string    `json:"slug" gorm:"size:255;uniqueIndex"`
	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Product is a catalog entry. A configurable product is a combo whose
// choices are described by its ConfigurationGroups.
type Product struct {
	ID             int64           `json:"id" gorm:"primaryKey"`
	CategoryID     int64           `json:"category_id" gorm:"index"`
	Name           string          `json:"name" gorm:"size:255;not null"`
	Description    string          `json:"description" gorm:"type:text"`
	Price          decimal.Decimal `json:"price" gorm:"type:decimal(14,2)"`
	IsConfigurable bool            `json:"is_configurable"`
	IsActive       bool            `json:"is_active" gorm:"not null"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type ProductVariant struct {
	ID        int64           `json:"id" gorm:"primaryKey"`
	ProductID int64           `json:"product_id" gorm:"index"`
	Name      string          `json:"name" gorm:"size:255"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(14,2)"`
	IsActive  bool            `json:"is_active" gorm:"not null"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ConfigurationGroup is a named slot such as "Choose a drink".
type ConfigurationGroup struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	ProductID int64     `json:"product_id" gorm:"index"`
	Name      string    `json:"name" gorm:"size:255"`
	MinSelect int       `json:"min_select"`
	MaxSelect int       `json:"max_select"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ConfigurationOption struct {
	ID              int64           `json:"id" gorm:"primaryKey"`
	GroupID         int64           `json:"group_id" gorm:"index"`
	OptionProductID int64           `json:"option_product_id"`
	OptionVariantID *int64          `json:"option_variant_id,omitempty"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment" gorm:"type:decimal(14,2)"`
	IsDefault       bool            `json:"is_default"`
	SortOrder       int             `json:"sort_order"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}
