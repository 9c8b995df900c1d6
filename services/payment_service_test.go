package services

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"food_ordering/models"
)

func placeOnlineOrder(t *testing.T, app *testApp, rc RequestContext) *models.Order {
	t.Helper()
	fillCart(t, app, rc, 30000, 1)
	in := checkoutInput(t, app)
	in.PaymentMethodID = paymentMethod(t, app.db, models.PaymentCodeOnline).ID
	order, err := app.orders.CreateOrder(context.Background(), rc, in)
	require.NoError(t, err)
	return order
}

func newPaymentService(app *testApp) *PaymentService {
	s := NewPaymentService(app.db, "https://pay.example.com/checkout", "gateway-secret", "https://shop.example.com/return", discardLogger())
	s.now = fixedClock
	return s
}

func callback(order *models.Order, amount, ref, result string) url.Values {
	return url.Values{
		"order_ref":       {order.Code},
		"amount":          {amount},
		"transaction_ref": {ref},
		"result_code":     {result},
	}
}

func TestBuildRedirectURL(t *testing.T) {
	app := newTestApp(t)
	payments := newPaymentService(app)
	rc := Anonymous("pay-session")
	order := placeOnlineOrder(t, app, rc)

	raw, err := payments.BuildRedirectURL(context.Background(), rc, order.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(raw, "https://pay.example.com/checkout?"))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, order.Code, q.Get("order_ref"))
	assert.Equal(t, order.TotalAmount.StringFixed(0), q.Get("amount"))
	assert.Equal(t, "20260310120000", q.Get("created_at"))
	assert.True(t, payments.verify(q))

	q.Set("amount", "1")
	assert.False(t, payments.verify(q))

	_, err = payments.BuildRedirectURL(context.Background(), Anonymous("someone-else"), order.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestBuildRedirectURLRequiresOnlinePayment(t *testing.T) {
	app := newTestApp(t)
	payments := newPaymentService(app)
	rc := Anonymous("cod-session")
	fillCart(t, app, rc, 30000, 1)
	order, err := app.orders.CreateOrder(context.Background(), rc, checkoutInput(t, app))
	require.NoError(t, err)

	_, err = payments.BuildRedirectURL(context.Background(), rc, order.ID)
	assertRule(t, err, ReasonUnavailable)
}

func TestHandleCallbackMarksPaidOnce(t *testing.T) {
	app := newTestApp(t)
	payments := newPaymentService(app)
	ctx := context.Background()
	order := placeOnlineOrder(t, app, Anonymous("pay-session"))
	amount := order.TotalAmount.StringFixed(0)

	params := payments.SignCallback(callback(order, amount, "TX-1", ResultSuccess))
	paid, err := payments.HandleCallback(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.PaymentStatus)

	_, err = payments.HandleCallback(ctx, params)
	require.NoError(t, err)

	var txCount int64
	require.NoError(t, app.db.Model(&models.PaymentTransaction{}).Where("order_id = ?", order.ID).Count(&txCount).Error)
	assert.Equal(t, int64(1), txCount)

	// A later failure report does not undo a completed payment.
	_, err = payments.HandleCallback(ctx, payments.SignCallback(callback(order, amount, "TX-2", "24")))
	require.NoError(t, err)
	reloaded := &models.Order{}
	require.NoError(t, app.db.First(reloaded, order.ID).Error)
	assert.Equal(t, models.PaymentPaid, reloaded.PaymentStatus)
}

func TestHandleCallbackRejections(t *testing.T) {
	app := newTestApp(t)
	payments := newPaymentService(app)
	ctx := context.Background()
	order := placeOnlineOrder(t, app, Anonymous("pay-session"))
	amount := order.TotalAmount.StringFixed(0)

	tampered := payments.SignCallback(callback(order, amount, "TX-1", ResultSuccess))
	tampered.Set("result_code", "00 ")
	_, err := payments.HandleCallback(ctx, tampered)
	assertRule(t, err, ReasonInvalidSignature)

	_, err = payments.HandleCallback(ctx, payments.SignCallback(callback(order, "1000", "TX-1", ResultSuccess)))
	assertRule(t, err, ReasonAmountMismatch)

	failed, err := payments.HandleCallback(ctx, payments.SignCallback(callback(order, amount, "TX-3", "24")))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, failed.PaymentStatus)

	unknown := callback(order, amount, "TX-4", ResultSuccess)
	unknown.Set("order_ref", "ORD-MISSING")
	_, err = payments.HandleCallback(ctx, payments.SignCallback(unknown))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandleCallbackRejectsCancelledAndCashOrders(t *testing.T) {
	app := newTestApp(t)
	payments := newPaymentService(app)
	ctx := context.Background()

	rc := Anonymous("cancel-session")
	cancelled := placeOnlineOrder(t, app, rc)
	_, err := app.orders.CancelOwnOrder(ctx, rc, cancelled.ID)
	require.NoError(t, err)

	_, err = payments.HandleCallback(ctx, payments.SignCallback(callback(cancelled, cancelled.TotalAmount.String(), "TXN-C", ResultSuccess)))
	assertRule(t, err, ReasonUnavailable)

	cashRC := Anonymous("cash-session")
	fillCart(t, app, cashRC, 30000, 1)
	cash, err := app.orders.CreateOrder(ctx, cashRC, checkoutInput(t, app))
	require.NoError(t, err)

	_, err = payments.HandleCallback(ctx, payments.SignCallback(callback(cash, cash.TotalAmount.String(), "TXN-D", ResultSuccess)))
	assertRule(t, err, ReasonUnavailable)

	for _, id := range []int64{cancelled.ID, cash.ID} {
		stored := &models.Order{}
		require.NoError(t, app.db.First(stored, id).Error)
		assert.Equal(t, models.PaymentUnpaid, stored.PaymentStatus)
	}
	var recorded int64
	require.NoError(t, app.db.Model(&models.PaymentTransaction{}).Count(&recorded).Error)
	assert.Zero(t, recorded)
}
