package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"food_ordering/database"
	"food_ordering/models"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err, "failed to connect to database")
	require.NoError(t, database.Migrate(db), "failed to migrate database")
	require.NoError(t, database.SeedReference(db))
	t.Cleanup(func() { database.Close(db) })
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []string
	err    error
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, order *models.Order, _ []models.OrderItem) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order.Code)
	return n.err
}

// testApp wires every service against one database with a fixed clock.
type testApp struct {
	db         *gorm.DB
	catalog    *CatalogService
	promotions *PromotionService
	pricing    *PricingService
	carts      *CartService
	rewards    *RewardService
	orders     *OrderService
	notifier   *recordingNotifier
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	db := setupTestDB(t)
	log := discardLogger()
	app := &testApp{db: db, notifier: &recordingNotifier{}}
	app.catalog = NewCatalogService(db, nil, log)
	app.promotions = NewPromotionService(db)
	app.promotions.now = fixedClock
	app.pricing = NewPricingService(db, app.promotions)
	app.carts = NewCartService(db, app.promotions)
	app.rewards = NewRewardService(db, log)
	app.rewards.now = fixedClock
	app.orders = NewOrderService(db, app.pricing, app.promotions, app.rewards, app.notifier, log)
	app.orders.now = fixedClock
	return app
}

func seedCategory(t *testing.T, db *gorm.DB, name string) *models.Category {
	t.Helper()
	c := &models.Category{Name: name, Slug: slugify(name) + "-" + uuid.NewString()[:4], IsActive: true}
	require.NoError(t, db.Create(c).Error)
	return c
}

func seedProduct(t *testing.T, db *gorm.DB, categoryID int64, name string, price int64) *models.Product {
	t.Helper()
	p := &models.Product{CategoryID: categoryID, Name: name, Price: decimal.NewFromInt(price), IsActive: true}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, FullName: "Test User"}
	require.NoError(t, db.Create(u).Error)
	return u
}

func deliveryMethod(t *testing.T, db *gorm.DB, code string) *models.DeliveryMethod {
	t.Helper()
	m := &models.DeliveryMethod{}
	require.NoError(t, db.Where("code = ?", code).First(m).Error)
	return m
}

func paymentMethod(t *testing.T, db *gorm.DB, code string) *models.PaymentMethod {
	t.Helper()
	m := &models.PaymentMethod{}
	require.NoError(t, db.Where("code = ?", code).First(m).Error)
	return m
}

func seedPromotion(t *testing.T, db *gorm.DB, code string, percent int64, mutate func(*models.Promotion)) *models.Promotion {
	t.Helper()
	p := &models.Promotion{
		Name:          code + " promotion",
		CouponCode:    &code,
		DiscountType:  models.Percentage,
		DiscountValue: decimal.NewFromInt(percent),
		StartDate:     fixedNow.Add(-24 * time.Hour),
		EndDate:       fixedNow.Add(24 * time.Hour),
		IsActive:      true,
	}
	if mutate != nil {
		mutate(p)
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

func intPtr(v int) *int { return &v }

func assertRule(t *testing.T, err error, code string) {
	t.Helper()
	re, ok := AsRule(err)
	require.True(t, ok, "expected rule error %q, got %v", code, err)
	assert.Equal(t, code, re.Code)
}
