package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"food_ordering/models"
	"food_ordering/outbox"
)

// ResultSuccess is the gateway result code of a completed payment.
const ResultSuccess = "00"

const signatureParam = "signature"

type PaymentService struct {
	db         *gorm.DB
	gatewayURL string
	secret     []byte
	returnURL  string
	log        *slog.Logger
	now        func() time.Time
}

func NewPaymentService(db *gorm.DB, gatewayURL, secret, returnURL string, log *slog.Logger) *PaymentService {
	return &PaymentService{
		db:         db,
		gatewayURL: gatewayURL,
		secret:     []byte(secret),
		returnURL:  returnURL,
		log:        log,
		now:        utcNow,
	}
}

// canonical joins the parameters sorted by name, leaving the signature out.
func canonical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != signatureParam {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(params.Get(k)))
	}
	return strings.Join(parts, "&")
}

func (s *PaymentService) sign(params url.Values) string {
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(canonical(params)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *PaymentService) verify(params url.Values) bool {
	got, err := hex.DecodeString(params.Get(signatureParam))
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, s.secret)
	mac.Write([]byte(canonical(params)))
	return hmac.Equal(got, mac.Sum(nil))
}

// BuildRedirectURL returns the signed gateway URL the customer is sent to
// for an online payment.
func (s *PaymentService) BuildRedirectURL(ctx context.Context, rc RequestContext, orderID int64) (string, error) {
	db := s.db.WithContext(ctx)
	order := &models.Order{}
	if err := db.First(order, orderID).Error; err != nil {
		return "", notFound("order", err)
	}
	if err := authorize(rc, order); err != nil {
		return "", err
	}
	method := &models.PaymentMethod{}
	if err := db.First(method, order.PaymentMethodID).Error; err != nil {
		return "", notFound("payment method", err)
	}
	if method.Code != models.PaymentCodeOnline {
		return "", Reject(ReasonUnavailable, "order %s is not paid online", order.Code)
	}
	if order.PaymentStatus == models.PaymentPaid || order.Status == models.StatusCancelled {
		return "", Reject(ReasonUnavailable, "order %s cannot be paid", order.Code)
	}

	params := url.Values{}
	params.Set("amount", order.TotalAmount.StringFixed(0))
	params.Set("order_ref", order.Code)
	params.Set("return_url", s.returnURL)
	params.Set("created_at", s.now().Format("20060102150405"))
	params.Set(signatureParam, s.sign(params))
	return s.gatewayURL + "?" + params.Encode(), nil
}

// HandleCallback verifies a gateway callback and records the payment. A
// repeated callback for the same transaction changes nothing.
func (s *PaymentService) HandleCallback(ctx context.Context, params url.Values) (*models.Order, error) {
	if !s.verify(params) {
		return nil, Reject(ReasonInvalidSignature, "payment callback signature mismatch")
	}
	amount, err := decimal.NewFromString(params.Get("amount"))
	if err != nil {
		return nil, ValidationErrors{{Field: "amount", Message: "is not a number"}}
	}
	ref := params.Get("transaction_ref")
	result := params.Get("result_code")

	order := &models.Order{}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("code = ?", params.Get("order_ref")).First(order).Error; err != nil {
			return notFound("order", err)
		}
		if !amount.Equal(order.TotalAmount) {
			return Reject(ReasonAmountMismatch, "paid %s, order total is %s", amount.String(), order.TotalAmount.String())
		}

		var seen int64
		if err := tx.Model(&models.PaymentTransaction{}).
			Where("order_id = ? AND transaction_ref = ?", order.ID, ref).
			Count(&seen).Error; err != nil {
			return err
		}
		if seen > 0 {
			return nil
		}

		method := &models.PaymentMethod{}
		if err := tx.First(method, order.PaymentMethodID).Error; err != nil {
			return notFound("payment method", err)
		}
		if method.Code != models.PaymentCodeOnline {
			return Reject(ReasonUnavailable, "order %s is not paid online", order.Code)
		}
		if order.Status == models.StatusCancelled {
			return Reject(ReasonUnavailable, "order %s is cancelled", order.Code)
		}

		if err := tx.Create(&models.PaymentTransaction{
			OrderID:        order.ID,
			TransactionRef: ref,
			Amount:         amount,
			ResultCode:     result,
			Verified:       true,
		}).Error; err != nil {
			return err
		}

		status := models.PaymentFailed
		if result == ResultSuccess {
			status = models.PaymentPaid
		}
		if order.PaymentStatus == models.PaymentPaid {
			return nil
		}
		if err := tx.Model(order).Update("payment_status", status).Error; err != nil {
			return err
		}
		order.PaymentStatus = status
		return outbox.Enqueue(ctx, tx, "order", order.Code, "order.payment_updated", map[string]any{
			"order_id":        order.ID,
			"code":            order.Code,
			"payment_status":  status,
			"transaction_ref": ref,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "payment callback processed", "order_code", order.Code, "result_code", result, "payment_status", order.PaymentStatus)
	return order, nil
}

// SignCallback signs gateway-style parameters. It lets a local gateway
// stub and tests produce valid callbacks.
func (s *PaymentService) SignCallback(params url.Values) url.Values {
	signed := url.Values{}
	for k, v := range params {
		signed[k] = append([]string(nil), v...)
	}
	signed.Set(signatureParam, s.sign(signed))
	return signed
}

// RequiresRedirect reports whether order is paid through the gateway.
func (s *PaymentService) RequiresRedirect(ctx context.Context, order *models.Order) (bool, error) {
	method := &models.PaymentMethod{}
	if err := s.db.WithContext(ctx).First(method, order.PaymentMethodID).Error; err != nil {
		return false, notFound("payment method", err)
	}
	return method.Code == models.PaymentCodeOnline, nil
}
