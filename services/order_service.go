package services

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"food_ordering/models"
	"food_ordering/outbox"
	"food_ordering/tracing"
)

type OrderService struct {
	db         *gorm.DB
	pricing    *PricingService
	promotions *PromotionService
	rewards    *RewardService
	notifier   Notifier
	log        *slog.Logger
	now        func() time.Time
}

func NewOrderService(db *gorm.DB, pricing *PricingService, promotions *PromotionService, rewards *RewardService, notifier Notifier, log *slog.Logger) *OrderService {
	return &OrderService{
		db:         db,
		pricing:    pricing,
		promotions: promotions,
		rewards:    rewards,
		notifier:   notifier,
		log:        log,
		now:        utcNow,
	}
}

type CheckoutInput struct {
	CustomerName     string `json:"customer_name"`
	CustomerPhone    string `json:"customer_phone"`
	CustomerEmail    string `json:"customer_email"`
	DeliveryMethodID int64  `json:"delivery_method_id"`
	PaymentMethodID  int64  `json:"payment_method_id"`
	// AddressID picks a saved address; guests send ShippingAddress instead.
	AddressID       *int64 `json:"address_id"`
	ShippingAddress string `json:"shipping_address"`
	StoreID         *int64 `json:"store_id"`
	CouponCode      string `json:"coupon_code"`
	Note            string `json:"note"`
}

func (in CheckoutInput) Validate() error {
	var errs ValidationErrors
	if strings.TrimSpace(in.CustomerName) == "" {
		errs.Add("customer_name", "is required")
	}
	phone := strings.TrimSpace(in.CustomerPhone)
	if phone == "" {
		errs.Add("customer_phone", "is required")
	} else if len(phone) < 8 || len(phone) > 15 || strings.Trim(phone, "+0123456789") != "" {
		errs.Add("customer_phone", "must be 8 to 15 digits")
	}
	if in.CustomerEmail != "" {
		if _, err := mail.ParseAddress(in.CustomerEmail); err != nil {
			errs.Add("customer_email", "is not a valid address")
		}
	}
	if in.DeliveryMethodID <= 0 {
		errs.Add("delivery_method_id", "is required")
	}
	if in.PaymentMethodID <= 0 {
		errs.Add("payment_method_id", "is required")
	}
	return errs.Err()
}

// OrderDetail is an order with its lines and status history.
type OrderDetail struct {
	models.Order
	Items   []models.OrderItem          `json:"items"`
	History []models.OrderStatusHistory `json:"history"`
}

func newOrderCode(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "ORD-" + now.Format("20060102") + "-" + suffix
}

// fulfilment resolves where the order goes: a delivery address or a pickup
// store.
func fulfilment(tx *gorm.DB, rc RequestContext, method *models.DeliveryMethod, in CheckoutInput, order *models.Order) error {
	if !method.IsDelivery {
		if in.StoreID == nil {
			return ValidationErrors{{Field: "store_id", Message: "is required for pickup"}}
		}
		store := &models.Store{}
		if err := tx.Where("id = ? AND is_active = ?", *in.StoreID, true).First(store).Error; err != nil {
			return notFound("store", err)
		}
		order.StoreID = &store.ID
		order.ShippingAddress = store.Address
		return nil
	}

	if in.AddressID != nil {
		if !rc.IsAuthenticated {
			return fmt.Errorf("address: %w", ErrForbidden)
		}
		addr := &models.Address{}
		err := tx.Where("id = ? AND user_id = ? AND is_active = ?", *in.AddressID, rc.UserID, true).First(addr).Error
		if err != nil {
			return notFound("address", err)
		}
		order.AddressID = &addr.ID
		order.ShippingAddress = addr.Line
		return nil
	}
	if strings.TrimSpace(in.ShippingAddress) == "" {
		return ValidationErrors{{Field: "shipping_address", Message: "is required for delivery"}}
	}
	order.ShippingAddress = strings.TrimSpace(in.ShippingAddress)
	return nil
}

func checkAvailable(tx *gorm.DB, view *CartView) error {
	ids := make([]int64, 0, len(view.Items))
	for _, line := range view.Items {
		ids = append(ids, line.ProductID)
	}
	var inactive []models.Product
	if err := tx.Where("id IN ? AND is_active = ?", ids, false).Find(&inactive).Error; err != nil {
		return err
	}
	if len(inactive) > 0 {
		return Reject(ReasonUnavailable, "%s is no longer available", inactive[0].Name)
	}
	return nil
}

// CreateOrder turns the caller's cart into an order. The order, its lines,
// the first history row, the coupon redemption, the outbox event and the
// cart removal commit together.
func (s *OrderService) CreateOrder(ctx context.Context, rc RequestContext, in CheckoutInput) (*models.Order, error) {
	ctx, span := tracing.Start(ctx, "orders.create")
	defer span.End()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		Code:             newOrderCode(now),
		UserID:           rc.userIDPtr(),
		SessionKey:       rc.SessionKey,
		CustomerName:     strings.TrimSpace(in.CustomerName),
		CustomerPhone:    strings.TrimSpace(in.CustomerPhone),
		CustomerEmail:    strings.TrimSpace(in.CustomerEmail),
		DeliveryMethodID: in.DeliveryMethodID,
		PaymentMethodID:  in.PaymentMethodID,
		Status:           models.StatusPending,
		PaymentStatus:    models.PaymentUnpaid,
		Note:             in.Note,
		OrderDate:        now,
	}
	var items []models.OrderItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		method, err := activeDeliveryMethod(tx, in.DeliveryMethodID)
		if err != nil {
			return err
		}
		if err := tx.Where("id = ? AND is_active = ?", in.PaymentMethodID, true).First(&models.PaymentMethod{}).Error; err != nil {
			return notFound("payment method", err)
		}
		if err := fulfilment(tx, rc, method, in, order); err != nil {
			return err
		}

		view, err := loadCartView(tx, rc)
		if err != nil {
			return err
		}
		if view.IsEmpty() {
			return Reject(ReasonEmptyCart, "cart is empty")
		}
		if err := checkAvailable(tx, view); err != nil {
			return err
		}

		quote, err := s.pricing.price(tx, rc, view, method, in.CouponCode)
		if err != nil {
			return err
		}
		if quote.Rejection != nil {
			return quote.Rejection
		}
		order.Subtotal = quote.Subtotal
		order.ShippingFee = quote.ShippingFee
		order.DiscountAmount = quote.DiscountAmount
		order.TotalAmount = quote.Total
		if quote.Promotion != nil {
			order.PromotionID = &quote.Promotion.ID
		}
		if err := tx.Create(order).Error; err != nil {
			return err
		}

		items = make([]models.OrderItem, 0, len(view.Items))
		for _, line := range view.Items {
			items = append(items, models.OrderItem{
				OrderID:       order.ID,
				ProductID:     line.ProductID,
				ProductName:   line.ProductName,
				UnitPrice:     line.UnitPrice,
				Quantity:      line.Quantity,
				Configuration: line.Configuration,
				LineTotal:     line.LineTotal,
			})
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}

		if err := tx.Create(&models.OrderStatusHistory{
			OrderID:   order.ID,
			Status:    models.StatusPending,
			ChangedAt: now,
			Actor:     rc.Actor(),
			Note:      "order placed",
		}).Error; err != nil {
			return err
		}

		if quote.Promotion != nil {
			if err := s.promotions.redeem(tx, quote.Promotion, rc.userIDPtr(), order.ID, quote.DiscountAmount); err != nil {
				return err
			}
		}

		if err := outbox.Enqueue(ctx, tx, "order", order.Code, "order.placed", map[string]any{
			"order_id":     order.ID,
			"code":         order.Code,
			"user_id":      order.UserID,
			"total_amount": order.TotalAmount.String(),
			"items":        len(items),
		}); err != nil {
			return err
		}
		return clearCart(tx, view.Cart.ID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("order.code", order.Code))
	s.log.InfoContext(ctx, "order placed", "order_code", order.Code, "total", order.TotalAmount.String(), "actor", rc.Actor())

	if s.notifier != nil {
		if err := s.notifier.OrderPlaced(ctx, order, items); err != nil {
			s.log.ErrorContext(ctx, "order notification failed", "order_code", order.Code, "err", err)
		}
	}
	return order, nil
}

// TransitionStatus moves an order to next, recording the change in the
// status history. Delivery triggers reward accrual for the customer.
func (s *OrderService) TransitionStatus(ctx context.Context, orderID int64, next models.OrderStatus, actor, note string) (*models.Order, error) {
	return s.transition(ctx, orderID, next, actor, note, nil)
}

func (s *OrderService) transition(ctx context.Context, orderID int64, next models.OrderStatus, actor, note string, precondition func(*models.Order) error) (*models.Order, error) {
	ctx, span := tracing.Start(ctx, "orders.transition")
	defer span.End()

	if !next.Valid() {
		return nil, ValidationErrors{{Field: "status", Message: "unknown status " + strconv.Quote(string(next))}}
	}
	order := &models.Order{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(order, orderID).Error; err != nil {
			return notFound("order", err)
		}
		if precondition != nil {
			if err := precondition(order); err != nil {
				return err
			}
		}
		if !order.Status.CanTransitionTo(next) {
			return Reject(ReasonInvalidTransition, "order %s cannot move from %s to %s", order.Code, order.Status, next)
		}
		previous := order.Status
		if err := tx.Create(&models.OrderStatusHistory{
			OrderID:   order.ID,
			Status:    next,
			ChangedAt: s.now(),
			Actor:     actor,
			Note:      note,
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(order).Update("status", next).Error; err != nil {
			return err
		}
		order.Status = next
		return outbox.Enqueue(ctx, tx, "order", order.Code, "order.status_changed", map[string]any{
			"order_id": order.ID,
			"code":     order.Code,
			"from":     previous,
			"to":       next,
			"actor":    actor,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.log.InfoContext(ctx, "order status changed", "order_code", order.Code, "status", next, "actor", actor)

	if next == models.StatusDelivered && order.UserID != nil && s.rewards != nil {
		res, err := s.rewards.Evaluate(ctx, *order.UserID)
		if err != nil {
			s.log.ErrorContext(ctx, "reward evaluation failed", "order_code", order.Code, "user_id", *order.UserID, "err", err)
		} else if res.Minted != nil {
			s.log.InfoContext(ctx, "reward voucher issued on delivery", "order_code", order.Code, "promotion_id", res.Minted.ID)
		}
	}
	return order, nil
}

// CancelOwnOrder lets a customer cancel an order that is still pending.
func (s *OrderService) CancelOwnOrder(ctx context.Context, rc RequestContext, orderID int64) (*models.Order, error) {
	return s.transition(ctx, orderID, models.StatusCancelled, rc.Actor(), "cancelled by customer", func(o *models.Order) error {
		if err := authorize(rc, o); err != nil {
			return err
		}
		if o.Status != models.StatusPending {
			return Reject(ReasonInvalidTransition, "only pending orders can be cancelled, order is %s", o.Status)
		}
		return nil
	})
}

// authorize allows admins, the owning user, or the guest session that
// placed the order.
func authorize(rc RequestContext, o *models.Order) error {
	switch {
	case rc.IsAdmin:
		return nil
	case o.UserID != nil:
		if rc.IsAuthenticated && *o.UserID == rc.UserID {
			return nil
		}
	case rc.SessionKey != "" && o.SessionKey == rc.SessionKey:
		return nil
	}
	return fmt.Errorf("order %d: %w", o.ID, ErrForbidden)
}

func (s *OrderService) GetOrder(ctx context.Context, rc RequestContext, orderID int64) (*OrderDetail, error) {
	db := s.db.WithContext(ctx)
	detail := &OrderDetail{}
	if err := db.First(&detail.Order, orderID).Error; err != nil {
		return nil, notFound("order", err)
	}
	if err := authorize(rc, &detail.Order); err != nil {
		return nil, err
	}
	if err := db.Where("order_id = ?", orderID).Order("id").Find(&detail.Items).Error; err != nil {
		return nil, err
	}
	history, err := s.history(db, orderID)
	if err != nil {
		return nil, err
	}
	detail.History = history
	return detail, nil
}

func (s *OrderService) history(db *gorm.DB, orderID int64) ([]models.OrderStatusHistory, error) {
	var rows []models.OrderStatusHistory
	err := db.Where("order_id = ?", orderID).Order("changed_at, id").Find(&rows).Error
	return rows, err
}

// GetStatusHistory returns the order's status changes, oldest first.
func (s *OrderService) GetStatusHistory(ctx context.Context, rc RequestContext, orderID int64) ([]models.OrderStatusHistory, error) {
	db := s.db.WithContext(ctx)
	order := &models.Order{}
	if err := db.First(order, orderID).Error; err != nil {
		return nil, notFound("order", err)
	}
	if err := authorize(rc, order); err != nil {
		return nil, err
	}
	return s.history(db, orderID)
}

// ListUserOrders returns the caller's orders, newest first.
func (s *OrderService) ListUserOrders(ctx context.Context, rc RequestContext) ([]models.Order, error) {
	q := s.db.WithContext(ctx).Order("order_date DESC, id DESC")
	switch {
	case rc.IsAuthenticated:
		q = q.Where("user_id = ?", rc.UserID)
	case rc.SessionKey != "":
		q = q.Where("session_key = ? AND user_id IS NULL", rc.SessionKey)
	default:
		return []models.Order{}, nil
	}
	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// ListOrders returns all orders, optionally filtered by status.
func (s *OrderService) ListOrders(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	q := s.db.WithContext(ctx).Order("order_date DESC, id DESC")
	if status != "" {
		if !status.Valid() {
			return nil, ValidationErrors{{Field: "status", Message: "unknown status " + strconv.Quote(string(status))}}
		}
		q = q.Where("status = ?", status)
	}
	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
