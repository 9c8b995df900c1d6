package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"food_ordering/models"
)

type CartService struct {
	db         *gorm.DB
	promotions *PromotionService
}

func NewCartService(db *gorm.DB, promotions *PromotionService) *CartService {
	return &CartService{db: db, promotions: promotions}
}

type AddItemInput struct {
	ProductID int64   `json:"product_id"`
	VariantID *int64  `json:"variant_id"`
	Quantity  int     `json:"quantity"`
	OptionIDs []int64 `json:"option_ids"`
}

func (in AddItemInput) Validate() error {
	var errs ValidationErrors
	if in.ProductID <= 0 {
		errs.Add("product_id", "is required")
	}
	if in.Quantity < 1 {
		errs.Add("quantity", "must be at least 1")
	}
	return errs.Err()
}

// CartLine is a cart item with the product data needed for display and
// coupon scoping.
type CartLine struct {
	models.CartItem
	ProductName string          `json:"product_name"`
	CategoryID  int64           `json:"category_id"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type CartView struct {
	Cart     *models.Cart    `json:"cart,omitempty"`
	Items    []CartLine      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

func (v *CartView) IsEmpty() bool { return len(v.Items) == 0 }

func (v *CartView) couponCheck() CouponCheck {
	check := CouponCheck{Subtotal: v.Subtotal}
	for _, line := range v.Items {
		check.ProductIDs = append(check.ProductIDs, line.ProductID)
		check.CategoryIDs = append(check.CategoryIDs, line.CategoryID)
	}
	return check
}

type AppliedCoupon struct {
	Code           string          `json:"code"`
	PromotionID    int64           `json:"promotion_id"`
	Name           string          `json:"name"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// findCart returns the caller's cart or nil when there is none.
func findCart(tx *gorm.DB, rc RequestContext) (*models.Cart, error) {
	cart := &models.Cart{}
	var err error
	switch {
	case rc.IsAuthenticated:
		err = tx.Where("user_id = ?", rc.UserID).First(cart).Error
	case rc.SessionKey != "":
		err = tx.Where("session_key = ? AND user_id IS NULL", rc.SessionKey).First(cart).Error
	default:
		return nil, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func findOrCreateCart(tx *gorm.DB, rc RequestContext) (*models.Cart, error) {
	cart, err := findCart(tx, rc)
	if err != nil || cart != nil {
		return cart, err
	}
	if !rc.IsAuthenticated && rc.SessionKey == "" {
		return nil, ValidationErrors{{Field: "session", Message: "is required"}}
	}
	cart = &models.Cart{}
	if rc.IsAuthenticated {
		cart.UserID = rc.userIDPtr()
	} else {
		key := rc.SessionKey
		cart.SessionKey = &key
	}
	if err := tx.Create(cart).Error; err != nil {
		return nil, err
	}
	return cart, nil
}

func buildCartView(tx *gorm.DB, cart *models.Cart) (*CartView, error) {
	view := &CartView{Cart: cart, Items: []CartLine{}, Subtotal: decimal.Zero}
	if cart == nil {
		return view, nil
	}
	var items []models.CartItem
	if err := tx.Where("cart_id = ?", cart.ID).Order("id").Find(&items).Error; err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return view, nil
	}

	productIDs := make([]int64, 0, len(items))
	for _, item := range items {
		productIDs = append(productIDs, item.ProductID)
	}
	var products []models.Product
	if err := tx.Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	for _, item := range items {
		product := byID[item.ProductID]
		line := CartLine{
			CartItem:    item,
			ProductName: product.Name,
			CategoryID:  product.CategoryID,
			LineTotal:   item.LineTotal(),
		}
		view.Items = append(view.Items, line)
		view.Subtotal = view.Subtotal.Add(line.LineTotal)
	}
	return view, nil
}

func loadCartView(tx *gorm.DB, rc RequestContext) (*CartView, error) {
	cart, err := findCart(tx, rc)
	if err != nil {
		return nil, err
	}
	return buildCartView(tx, cart)
}

func (s *CartService) GetCart(ctx context.Context, rc RequestContext) (*CartView, error) {
	return loadCartView(s.db.WithContext(ctx), rc)
}

// AvailablePromotions lists the coupons the caller's current cart qualifies for.
func (s *CartService) AvailablePromotions(ctx context.Context, rc RequestContext) ([]models.Promotion, error) {
	view, err := loadCartView(s.db.WithContext(ctx), rc)
	if err != nil {
		return nil, err
	}
	return s.promotions.GetAvailablePromotions(ctx, rc, view.couponCheck())
}

// resolvedItem is a priced, validated cart line before it is stored.
type resolvedItem struct {
	unitPrice decimal.Decimal
	choices   []models.SelectedChoice
	configKey string
}

// resolveItem prices the product and validates the selected options against
// the product's configuration groups.
func resolveItem(tx *gorm.DB, in AddItemInput) (*resolvedItem, error) {
	product := &models.Product{}
	if err := tx.First(product, in.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Reject(ReasonUnavailable, "product %d does not exist", in.ProductID)
		}
		return nil, err
	}
	if !product.IsActive {
		return nil, Reject(ReasonUnavailable, "%s is not available", product.Name)
	}

	price := product.Price
	if in.VariantID != nil {
		variant := &models.ProductVariant{}
		err := tx.Where("id = ? AND product_id = ?", *in.VariantID, product.ID).First(variant).Error
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !variant.IsActive) {
			return nil, Reject(ReasonUnavailable, "variant %d is not available for %s", *in.VariantID, product.Name)
		}
		if err != nil {
			return nil, err
		}
		price = variant.Price
	}

	resolved := &resolvedItem{unitPrice: price, choices: []models.SelectedChoice{}}
	if !product.IsConfigurable {
		if len(in.OptionIDs) > 0 {
			return nil, Reject(ReasonInvalidConfiguration, "%s has no options", product.Name)
		}
		return resolved, nil
	}

	conf, err := loadConfiguration(tx, product.ID)
	if err != nil {
		return nil, err
	}
	selected, err := selectOptions(conf, in.OptionIDs)
	if err != nil {
		return nil, err
	}

	keyParts := make([]string, 0)
	for _, group := range conf.Groups {
		count := 0
		for _, opt := range group.Options {
			if _, ok := selected[opt.ID]; !ok {
				continue
			}
			count++
			resolved.unitPrice = resolved.unitPrice.Add(opt.PriceAdjustment)
			resolved.choices = append(resolved.choices, models.SelectedChoice{
				GroupID:         group.ID,
				GroupName:       group.Name,
				OptionID:        opt.ID,
				OptionName:      opt.Name,
				PriceAdjustment: opt.PriceAdjustment,
			})
			keyParts = append(keyParts, strconv.FormatInt(group.ID, 10)+":"+strconv.FormatInt(opt.ID, 10))
		}
		if count < group.MinSelect || count > group.MaxSelect {
			return nil, Reject(ReasonInvalidConfiguration, "%s: choose between %d and %d option(s), got %d",
				group.Name, group.MinSelect, group.MaxSelect, count)
		}
	}
	resolved.configKey = strings.Join(keyParts, ",")
	return resolved, nil
}

// selectOptions checks that every id belongs to conf. With no ids the
// default options are selected.
func selectOptions(conf *ProductConfiguration, optionIDs []int64) (map[int64]struct{}, error) {
	known := map[int64]struct{}{}
	defaults := map[int64]struct{}{}
	for _, group := range conf.Groups {
		for _, opt := range group.Options {
			known[opt.ID] = struct{}{}
			if opt.IsDefault {
				defaults[opt.ID] = struct{}{}
			}
		}
	}
	if len(optionIDs) == 0 {
		return defaults, nil
	}

	selected := make(map[int64]struct{}, len(optionIDs))
	for _, id := range optionIDs {
		if _, ok := known[id]; !ok {
			return nil, Reject(ReasonInvalidConfiguration, "option %d does not belong to %s", id, conf.Product.Name)
		}
		if _, dup := selected[id]; dup {
			return nil, Reject(ReasonInvalidConfiguration, "option %d selected twice", id)
		}
		selected[id] = struct{}{}
	}
	return selected, nil
}

func whereVariant(q *gorm.DB, variantID *int64) *gorm.DB {
	if variantID == nil {
		return q.Where("variant_id IS NULL")
	}
	return q.Where("variant_id = ?", *variantID)
}

func findSameLine(tx *gorm.DB, cartID, productID int64, variantID *int64, configKey string) (*models.CartItem, error) {
	line := &models.CartItem{}
	q := tx.Where("cart_id = ? AND product_id = ? AND config_key = ?", cartID, productID, configKey)
	err := whereVariant(q, variantID).First(line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return line, nil
}

// AddItem adds a product to the caller's cart, creating the cart on first
// use. Identical lines are combined.
func (s *CartService) AddItem(ctx context.Context, rc RequestContext, in AddItemInput) (*models.CartItem, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var item *models.CartItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolved, err := resolveItem(tx, in)
		if err != nil {
			return err
		}
		cart, err := findOrCreateCart(tx, rc)
		if err != nil {
			return err
		}

		existing, err := findSameLine(tx, cart.ID, in.ProductID, in.VariantID, resolved.configKey)
		if err != nil {
			return err
		}
		if existing != nil {
			existing.Quantity += in.Quantity
			existing.UnitPrice = resolved.unitPrice
			item = existing
			return tx.Save(existing).Error
		}

		snapshot, err := json.Marshal(resolved.choices)
		if err != nil {
			return fmt.Errorf("encode configuration: %w", err)
		}
		item = &models.CartItem{
			CartID:        cart.ID,
			ProductID:     in.ProductID,
			VariantID:     in.VariantID,
			Quantity:      in.Quantity,
			UnitPrice:     resolved.unitPrice,
			Configuration: datatypes.JSON(snapshot),
			ConfigKey:     resolved.configKey,
		}
		return tx.Create(item).Error
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func ownedItem(tx *gorm.DB, rc RequestContext, itemID int64) (*models.CartItem, error) {
	cart, err := findCart(tx, rc)
	if err != nil {
		return nil, err
	}
	if cart == nil {
		return nil, fmt.Errorf("cart item: %w", ErrNotFound)
	}
	item := &models.CartItem{}
	if err := tx.Where("id = ? AND cart_id = ?", itemID, cart.ID).First(item).Error; err != nil {
		return nil, notFound("cart item", err)
	}
	return item, nil
}

// UpdateItem sets a line quantity. A quantity of zero or less removes it.
func (s *CartService) UpdateItem(ctx context.Context, rc RequestContext, itemID int64, quantity int) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := ownedItem(tx, rc, itemID)
		if err != nil {
			return err
		}
		if quantity <= 0 {
			return tx.Delete(item).Error
		}
		return tx.Model(item).Update("quantity", quantity).Error
	})
}

func (s *CartService) RemoveItem(ctx context.Context, rc RequestContext, itemID int64) error {
	return s.UpdateItem(ctx, rc, itemID, 0)
}

// ApplyCoupon checks code against the current cart and keeps it on the cart
// for checkout. Nothing is redeemed.
func (s *CartService) ApplyCoupon(ctx context.Context, rc RequestContext, code string) (*AppliedCoupon, error) {
	db := s.db.WithContext(ctx)
	view, err := loadCartView(db, rc)
	if err != nil {
		return nil, err
	}
	if view.IsEmpty() {
		return nil, Reject(ReasonEmptyCart, "cart is empty")
	}
	promo, rejection, err := s.promotions.checkCoupon(db, rc, code, view.couponCheck())
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		return nil, rejection
	}
	if err := db.Model(view.Cart).Update("coupon_code", *promo.CouponCode).Error; err != nil {
		return nil, err
	}
	return &AppliedCoupon{
		Code:           *promo.CouponCode,
		PromotionID:    promo.ID,
		Name:           promo.Name,
		DiscountAmount: ComputeDiscount(promo, view.Subtotal),
	}, nil
}

func (s *CartService) RemoveCoupon(ctx context.Context, rc RequestContext) error {
	db := s.db.WithContext(ctx)
	cart, err := findCart(db, rc)
	if err != nil || cart == nil {
		return err
	}
	return db.Model(cart).Update("coupon_code", "").Error
}

// MergeOnLogin moves the anonymous cart of sessionKey into the user's cart.
// Identical lines have their quantities summed. When the user has no cart
// the anonymous cart simply changes owner.
func (s *CartService) MergeOnLogin(ctx context.Context, sessionKey string, userID int64) error {
	if sessionKey == "" {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		anon, err := findCart(tx, Anonymous(sessionKey))
		if err != nil || anon == nil {
			return err
		}
		owned, err := findCart(tx, ForUser(userID, sessionKey))
		if err != nil {
			return err
		}
		if owned == nil {
			return tx.Model(anon).Updates(map[string]any{"user_id": userID, "session_key": nil}).Error
		}

		var items []models.CartItem
		if err := tx.Where("cart_id = ?", anon.ID).Find(&items).Error; err != nil {
			return err
		}
		for i := range items {
			item := &items[i]
			same, err := findSameLine(tx, owned.ID, item.ProductID, item.VariantID, item.ConfigKey)
			if err != nil {
				return err
			}
			if same != nil {
				if err := tx.Model(same).Update("quantity", same.Quantity+item.Quantity).Error; err != nil {
					return err
				}
				if err := tx.Delete(item).Error; err != nil {
					return err
				}
				continue
			}
			if err := tx.Model(item).Update("cart_id", owned.ID).Error; err != nil {
				return err
			}
		}
		if owned.CouponCode == "" && anon.CouponCode != "" {
			if err := tx.Model(owned).Update("coupon_code", anon.CouponCode).Error; err != nil {
				return err
			}
		}
		return tx.Delete(anon).Error
	})
}

// clearCart deletes a cart and its lines once it has been ordered.
func clearCart(tx *gorm.DB, cartID int64) error {
	if err := tx.Where("cart_id = ?", cartID).Delete(&models.CartItem{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Cart{}, cartID).Error
}
