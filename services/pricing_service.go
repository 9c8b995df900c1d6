package services

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"food_ordering/models"
)

var (
	FreeShippingThreshold = decimal.NewFromInt(60000)
	SmallOrderShippingFee = decimal.NewFromInt(15000)
	RegularShippingFee    = decimal.NewFromInt(10000)
)

type PricingService struct {
	db         *gorm.DB
	promotions *PromotionService
}

func NewPricingService(db *gorm.DB, promotions *PromotionService) *PricingService {
	return &PricingService{db: db, promotions: promotions}
}

// Quote is the priced breakdown of a cart. Total = Subtotal + ShippingFee -
// DiscountAmount.
type Quote struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	ShippingFee    decimal.Decimal `json:"shipping_fee"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	Total          decimal.Decimal `json:"total"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	// Rejection explains why CouponCode was not applied.
	Rejection *RuleError        `json:"coupon_rejection,omitempty"`
	Promotion *models.Promotion `json:"-"`
}

type QuoteInput struct {
	DeliveryMethodID int64  `json:"delivery_method_id"`
	CouponCode       string `json:"coupon_code"`
}

// ShippingFee applies the shipping table:
//
//	pickup                                        0
//	delivery, subtotal < 60,000                   15,000
//	delivery, >= 60,000, signed in, first order   0
//	delivery, >= 60,000, otherwise                10,000
//
// A first order is one placed by a user with no earlier non-cancelled order.
func ShippingFee(tx *gorm.DB, rc RequestContext, method *models.DeliveryMethod, subtotal decimal.Decimal) (decimal.Decimal, error) {
	if !method.IsDelivery {
		return decimal.Zero, nil
	}
	if subtotal.LessThan(FreeShippingThreshold) {
		return SmallOrderShippingFee, nil
	}
	if !rc.IsAuthenticated {
		return RegularShippingFee, nil
	}
	var prior int64
	err := tx.Model(&models.Order{}).
		Where("user_id = ? AND status <> ?", rc.UserID, models.StatusCancelled).
		Count(&prior).Error
	if err != nil {
		return decimal.Zero, err
	}
	if prior == 0 {
		return decimal.Zero, nil
	}
	return RegularShippingFee, nil
}

func activeDeliveryMethod(tx *gorm.DB, id int64) (*models.DeliveryMethod, error) {
	method := &models.DeliveryMethod{}
	if err := tx.Where("id = ? AND is_active = ?", id, true).First(method).Error; err != nil {
		return nil, notFound("delivery method", err)
	}
	return method, nil
}

// Quote prices the caller's cart for the given delivery method. The coupon
// stored on the cart is used when in.CouponCode is empty.
func (s *PricingService) Quote(ctx context.Context, rc RequestContext, in QuoteInput) (*Quote, error) {
	if in.DeliveryMethodID <= 0 {
		return nil, ValidationErrors{{Field: "delivery_method_id", Message: "is required"}}
	}
	db := s.db.WithContext(ctx)
	method, err := activeDeliveryMethod(db, in.DeliveryMethodID)
	if err != nil {
		return nil, err
	}
	view, err := loadCartView(db, rc)
	if err != nil {
		return nil, err
	}
	if view.IsEmpty() {
		return nil, Reject(ReasonEmptyCart, "cart is empty")
	}
	return s.price(db, rc, view, method, in.CouponCode)
}

func (s *PricingService) price(tx *gorm.DB, rc RequestContext, view *CartView, method *models.DeliveryMethod, code string) (*Quote, error) {
	if code == "" && view.Cart != nil {
		code = view.Cart.CouponCode
	}
	shipping, err := ShippingFee(tx, rc, method, view.Subtotal)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Subtotal:       view.Subtotal,
		ShippingFee:    shipping,
		DiscountAmount: decimal.Zero,
		CouponCode:     normalizeCode(code),
	}
	if q.CouponCode != "" {
		promo, rejection, err := s.promotions.checkCoupon(tx, rc, q.CouponCode, view.couponCheck())
		if err != nil {
			return nil, err
		}
		q.Rejection = rejection
		if promo != nil {
			q.Promotion = promo
			q.DiscountAmount = ComputeDiscount(promo, view.Subtotal)
		}
	}
	q.Total = q.Subtotal.Add(q.ShippingFee).Sub(q.DiscountAmount)
	return q, nil
}

// CheckoutOptions lists the active choices offered at checkout.
type CheckoutOptions struct {
	DeliveryMethods []models.DeliveryMethod `json:"delivery_methods"`
	PaymentMethods  []models.PaymentMethod  `json:"payment_methods"`
	Stores          []models.Store          `json:"stores"`
}

func (s *PricingService) CheckoutOptions(ctx context.Context) (*CheckoutOptions, error) {
	db := s.db.WithContext(ctx)
	opts := &CheckoutOptions{}
	if err := db.Where("is_active = ?", true).Order("id").Find(&opts.DeliveryMethods).Error; err != nil {
		return nil, err
	}
	if err := db.Where("is_active = ?", true).Order("id").Find(&opts.PaymentMethods).Error; err != nil {
		return nil, err
	}
	if err := db.Where("is_active = ?", true).Order("name").Find(&opts.Stores).Error; err != nil {
		return nil, err
	}
	return opts, nil
}
