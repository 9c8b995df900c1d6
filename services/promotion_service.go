package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"food_ordering/models"
)

type PromotionService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewPromotionService(db *gorm.DB) *PromotionService {
	return &PromotionService{db: db, now: utcNow}
}

func utcNow() time.Time { return time.Now().UTC() }

// PromotionDetail is a promotion together with its scope.
type PromotionDetail struct {
	models.Promotion
	ProductIDs  []int64 `json:"product_ids"`
	CategoryIDs []int64 `json:"category_ids"`
}

// CouponCheck is what a coupon is evaluated against.
type CouponCheck struct {
	Subtotal    decimal.Decimal
	ProductIDs  []int64
	CategoryIDs []int64
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

var hundred = decimal.NewFromInt(100)

func validatePromotion(p *models.Promotion) ValidationErrors {
	var errs ValidationErrors
	if strings.TrimSpace(p.Name) == "" {
		errs.Add("name", "is required")
	}
	if p.DiscountType == "" {
		p.DiscountType = models.Percentage
	}
	if p.DiscountType != models.Percentage {
		errs.Add("discount_type", "must be PERCENTAGE")
	}
	if !p.DiscountValue.IsPositive() || p.DiscountValue.GreaterThan(hundred) {
		errs.Add("discount_value", "must be between 0 and 100")
	}
	if !p.EndDate.After(p.StartDate) {
		errs.Add("end_date", "must be after start_date")
	}
	if p.MinOrderValue != nil && p.MinOrderValue.IsNegative() {
		errs.Add("min_order_value", "must not be negative")
	}
	if p.MaxUses != nil && *p.MaxUses < 1 {
		errs.Add("max_uses", "must be at least 1")
	}
	if p.MaxUsesPerUser != nil && *p.MaxUsesPerUser < 1 {
		errs.Add("max_uses_per_user", "must be at least 1")
	}
	if p.CouponCode != nil {
		code := normalizeCode(*p.CouponCode)
		if code == "" {
			p.CouponCode = nil
		} else {
			p.CouponCode = &code
		}
	}
	return errs
}

func (s *PromotionService) codeTaken(tx *gorm.DB, code *string, exceptID int64) (bool, error) {
	if code == nil {
		return false, nil
	}
	var count int64
	err := tx.Model(&models.Promotion{}).Where("coupon_code = ? AND id <> ?", *code, exceptID).Count(&count).Error
	return count > 0, err
}

func replaceScope(tx *gorm.DB, promotionID int64, productIDs, categoryIDs []int64) error {
	if err := tx.Where("promotion_id = ?", promotionID).Delete(&models.PromotionProduct{}).Error; err != nil {
		return err
	}
	if err := tx.Where("promotion_id = ?", promotionID).Delete(&models.PromotionCategory{}).Error; err != nil {
		return err
	}
	for _, id := range productIDs {
		if err := tx.Create(&models.PromotionProduct{PromotionID: promotionID, ProductID: id}).Error; err != nil {
			return err
		}
	}
	for _, id := range categoryIDs {
		if err := tx.Create(&models.PromotionCategory{PromotionID: promotionID, CategoryID: id}).Error; err != nil {
			return err
		}
	}
	return nil
}

func duplicateCode() error {
	return ValidationErrors{{Field: "coupon_code", Message: "is already in use"}}
}

func (s *PromotionService) CreatePromotion(ctx context.Context, promo *models.Promotion, productIDs, categoryIDs []int64) error {
	if err := validatePromotion(promo).Err(); err != nil {
		return err
	}
	// Usage and ownership are server-managed.
	promo.ID = 0
	promo.UsesCount = 0
	promo.OwnerUserID = nil
	promo.GeneratedForThreshold = nil
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		taken, err := s.codeTaken(tx, promo.CouponCode, 0)
		if err != nil {
			return err
		}
		if taken {
			return duplicateCode()
		}
		if err := tx.Create(promo).Error; err != nil {
			return err
		}
		return replaceScope(tx, promo.ID, productIDs, categoryIDs)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return duplicateCode()
	}
	return err
}

func (s *PromotionService) UpdatePromotion(ctx context.Context, id int64, promo *models.Promotion, productIDs, categoryIDs []int64) (*models.Promotion, error) {
	if err := validatePromotion(promo).Err(); err != nil {
		return nil, err
	}
	existing := &models.Promotion{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(existing, id).Error; err != nil {
			return notFound("promotion", err)
		}
		taken, err := s.codeTaken(tx, promo.CouponCode, id)
		if err != nil {
			return err
		}
		if taken {
			return duplicateCode()
		}
		if promo.MaxUses != nil && *promo.MaxUses < existing.UsesCount {
			return ValidationErrors{{Field: "max_uses", Message: fmt.Sprintf("must not be below the %d uses already redeemed", existing.UsesCount)}}
		}
		existing.Name = promo.Name
		existing.CouponCode = promo.CouponCode
		existing.DiscountType = promo.DiscountType
		existing.DiscountValue = promo.DiscountValue
		existing.StartDate = promo.StartDate
		existing.EndDate = promo.EndDate
		existing.MinOrderValue = promo.MinOrderValue
		existing.MaxUses = promo.MaxUses
		existing.MaxUsesPerUser = promo.MaxUsesPerUser
		existing.IsActive = promo.IsActive
		if err := tx.Save(existing).Error; err != nil {
			return err
		}
		return replaceScope(tx, id, productIDs, categoryIDs)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, duplicateCode()
	}
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// DeletePromotion removes an unused promotion. A promotion that has been
// redeemed is deactivated instead so redemption rows stay meaningful.
func (s *PromotionService) DeletePromotion(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		promo := &models.Promotion{}
		if err := tx.First(promo, id).Error; err != nil {
			return notFound("promotion", err)
		}
		if promo.UsesCount > 0 {
			return tx.Model(promo).Update("is_active", false).Error
		}
		if err := replaceScope(tx, id, nil, nil); err != nil {
			return err
		}
		return tx.Delete(promo).Error
	})
}

func (s *PromotionService) GetPromotion(ctx context.Context, id int64) (*PromotionDetail, error) {
	detail := &PromotionDetail{ProductIDs: []int64{}, CategoryIDs: []int64{}}
	db := s.db.WithContext(ctx)
	if err := db.First(&detail.Promotion, id).Error; err != nil {
		return nil, notFound("promotion", err)
	}
	if err := db.Model(&models.PromotionProduct{}).Where("promotion_id = ?", id).Pluck("product_id", &detail.ProductIDs).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.PromotionCategory{}).Where("promotion_id = ?", id).Pluck("category_id", &detail.CategoryIDs).Error; err != nil {
		return nil, err
	}
	return detail, nil
}

// ListPromotions returns every admin-visible promotion. Reward vouchers are
// left out unless includeVouchers is set.
func (s *PromotionService) ListPromotions(ctx context.Context, includeVouchers bool) ([]models.Promotion, error) {
	var promos []models.Promotion
	q := s.db.WithContext(ctx).Order("id DESC")
	if !includeVouchers {
		q = q.Where("owner_user_id IS NULL")
	}
	if err := q.Find(&promos).Error; err != nil {
		return nil, err
	}
	return promos, nil
}

// findByCode looks a coupon up by code. A missing code is a rejection.
func findByCode(tx *gorm.DB, code string) (*models.Promotion, *RuleError, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, Reject(ReasonNotFound, "coupon code is empty"), nil
	}
	promo := &models.Promotion{}
	err := tx.Where("coupon_code = ?", code).First(promo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, Reject(ReasonNotFound, "coupon %s does not exist", code), nil
	}
	if err != nil {
		return nil, nil, err
	}
	return promo, nil, nil
}

// evaluate checks promo against the caller and the order contents. The
// returned rejection is nil when the coupon applies.
func (s *PromotionService) evaluate(tx *gorm.DB, rc RequestContext, promo *models.Promotion, check CouponCheck, now time.Time) (*RuleError, error) {
	switch {
	case !promo.IsActive:
		return Reject(ReasonInactive, "coupon is not active"), nil
	case now.Before(promo.StartDate):
		return Reject(ReasonNotStarted, "coupon is valid from %s", promo.StartDate.Format(time.DateOnly)), nil
	case now.After(promo.EndDate):
		return Reject(ReasonExpired, "coupon expired on %s", promo.EndDate.Format(time.DateOnly)), nil
	}

	if promo.OwnerUserID != nil {
		if !rc.IsAuthenticated {
			return Reject(ReasonLoginRequired, "sign in to use this voucher"), nil
		}
		if *promo.OwnerUserID != rc.UserID {
			return Reject(ReasonNotOwner, "voucher belongs to another customer"), nil
		}
	}

	if promo.MinOrderValue != nil && check.Subtotal.LessThan(*promo.MinOrderValue) {
		return Reject(ReasonMinOrderNotMet, "order subtotal must be at least %s", promo.MinOrderValue.StringFixed(0)), nil
	}

	if promo.MaxUses != nil && promo.UsesCount >= *promo.MaxUses {
		return Reject(ReasonUsageCapReached, "coupon has been fully redeemed"), nil
	}

	if promo.MaxUsesPerUser != nil {
		if !rc.IsAuthenticated {
			return Reject(ReasonLoginRequired, "sign in to use this coupon"), nil
		}
		used, err := userRedemptions(tx, promo.ID, rc.UserID)
		if err != nil {
			return nil, err
		}
		if used >= int64(*promo.MaxUsesPerUser) {
			return Reject(ReasonUserUsageCapReached, "coupon already used %d time(s)", used), nil
		}
	}

	ok, err := scopeMatches(tx, promo.ID, check)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Reject(ReasonScopeMismatch, "coupon does not apply to the items in the cart"), nil
	}
	return nil, nil
}

func userRedemptions(tx *gorm.DB, promotionID, userID int64) (int64, error) {
	var used int64
	err := tx.Model(&models.UserPromotion{}).
		Where("promotion_id = ? AND user_id = ?", promotionID, userID).
		Count(&used).Error
	return used, err
}

// scopeMatches requires every configured scope list to share at least one
// id with the order. Unconfigured lists match anything.
func scopeMatches(tx *gorm.DB, promotionID int64, check CouponCheck) (bool, error) {
	var productScope, categoryScope []int64
	if err := tx.Model(&models.PromotionProduct{}).Where("promotion_id = ?", promotionID).Pluck("product_id", &productScope).Error; err != nil {
		return false, err
	}
	if err := tx.Model(&models.PromotionCategory{}).Where("promotion_id = ?", promotionID).Pluck("category_id", &categoryScope).Error; err != nil {
		return false, err
	}
	return intersects(productScope, check.ProductIDs) && intersects(categoryScope, check.CategoryIDs), nil
}

func intersects(scope, ids []int64) bool {
	if len(scope) == 0 {
		return true
	}
	set := make(map[int64]struct{}, len(scope))
	for _, id := range scope {
		set[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// CheckCoupon resolves code and evaluates it without redeeming it.
func (s *PromotionService) CheckCoupon(ctx context.Context, rc RequestContext, code string, check CouponCheck) (*models.Promotion, *RuleError, error) {
	return s.checkCoupon(s.db.WithContext(ctx), rc, code, check)
}

func (s *PromotionService) checkCoupon(tx *gorm.DB, rc RequestContext, code string, check CouponCheck) (*models.Promotion, *RuleError, error) {
	promo, rejection, err := findByCode(tx, code)
	if err != nil || rejection != nil {
		return nil, rejection, err
	}
	rejection, err = s.evaluate(tx, rc, promo, check, s.now())
	if err != nil || rejection != nil {
		return nil, rejection, err
	}
	return promo, nil, nil
}

// GetAvailablePromotions lists the coupons the caller could apply to an
// order like check, best discount first.
func (s *PromotionService) GetAvailablePromotions(ctx context.Context, rc RequestContext, check CouponCheck) ([]models.Promotion, error) {
	db := s.db.WithContext(ctx)
	q := db.Where("is_active = ? AND coupon_code IS NOT NULL", true)
	if rc.IsAuthenticated {
		q = q.Where("(owner_user_id IS NULL OR owner_user_id = ?)", rc.UserID)
	} else {
		q = q.Where("owner_user_id IS NULL")
	}
	var candidates []models.Promotion
	if err := q.Find(&candidates).Error; err != nil {
		return nil, err
	}

	now := s.now()
	available := make([]models.Promotion, 0, len(candidates))
	for i := range candidates {
		rejection, err := s.evaluate(db, rc, &candidates[i], check, now)
		if err != nil {
			return nil, err
		}
		if rejection == nil {
			available = append(available, candidates[i])
		}
	}

	sort.SliceStable(available, func(i, j int) bool {
		if !available[i].DiscountValue.Equal(available[j].DiscountValue) {
			return available[i].DiscountValue.GreaterThan(available[j].DiscountValue)
		}
		return available[i].EndDate.Before(available[j].EndDate)
	})
	return available, nil
}

// ComputeDiscount prices a percentage promotion against subtotal, rounded
// to whole currency units and capped at the subtotal.
func ComputeDiscount(promo *models.Promotion, subtotal decimal.Decimal) decimal.Decimal {
	if promo == nil || !subtotal.IsPositive() {
		return decimal.Zero
	}
	discount := subtotal.Mul(promo.DiscountValue).Div(hundred).Round(0)
	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		return subtotal
	}
	return discount
}

// redeem records one use of promo inside the checkout transaction. The
// global counter is incremented conditionally so concurrent checkouts can
// never exceed MaxUses. Guests increment the counter only.
func (s *PromotionService) redeem(tx *gorm.DB, promo *models.Promotion, userID *int64, orderID int64, amount decimal.Decimal) error {
	res := tx.Model(&models.Promotion{}).
		Where("id = ? AND (max_uses IS NULL OR uses_count < max_uses)", promo.ID).
		UpdateColumn("uses_count", gorm.Expr("uses_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return Reject(ReasonUsageCapReached, "coupon has been fully redeemed")
	}
	if userID == nil {
		return nil
	}

	if promo.MaxUsesPerUser != nil {
		used, err := userRedemptions(tx, promo.ID, *userID)
		if err != nil {
			return err
		}
		if used >= int64(*promo.MaxUsesPerUser) {
			return Reject(ReasonUserUsageCapReached, "coupon already used %d time(s)", used)
		}
	}

	redemption := &models.UserPromotion{
		UserID:         *userID,
		PromotionID:    promo.ID,
		OrderID:        &orderID,
		DiscountAmount: amount,
		RedeemedAt:     s.now(),
	}
	if err := tx.Create(redemption).Error; err != nil {
		return fmt.Errorf("record redemption: %w", err)
	}
	return nil
}
