package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"food_ordering/models"
)

type memoryCache struct {
	data          map[string][]byte
	invalidations int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}}
}

func (c *memoryCache) Get(_ context.Context, name string, dest any) (bool, error) {
	b, ok := c.data[name]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (c *memoryCache) Set(_ context.Context, name string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[name] = b
	return nil
}

func (c *memoryCache) Invalidate(context.Context) error {
	c.data = map[string][]byte{}
	c.invalidations++
	return nil
}

func TestCreateProductValidation(t *testing.T) {
	db := setupTestDB(t)
	service := NewCatalogService(db, nil, discardLogger())

	err := service.CreateProduct(context.Background(), &models.Product{Price: decimal.NewFromInt(-1)})
	ve, ok := AsValidation(err)
	require.True(t, ok)
	fields := map[string]bool{}
	for _, fe := range ve {
		fields[fe.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["price"])
	assert.True(t, fields["category_id"])
}

func TestCreateProductUnknownCategory(t *testing.T) {
	db := setupTestDB(t)
	service := NewCatalogService(db, nil, discardLogger())

	err := service.CreateProduct(context.Background(), &models.Product{CategoryID: 99, Name: "Burger", Price: decimal.NewFromInt(30000)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListProductsUsesCacheUntilWrite(t *testing.T) {
	db := setupTestDB(t)
	cache := newMemoryCache()
	service := NewCatalogService(db, cache, discardLogger())
	ctx := context.Background()

	burgers := &models.Category{Name: "Burgers", IsActive: true}
	require.NoError(t, service.CreateCategory(ctx, burgers))
	assert.Equal(t, "burgers", burgers.Slug)

	require.NoError(t, service.CreateProduct(ctx, &models.Product{CategoryID: burgers.ID, Name: "Cheeseburger", Price: decimal.NewFromInt(45000), IsActive: true}))
	require.NoError(t, service.CreateProduct(ctx, &models.Product{CategoryID: burgers.ID, Name: "Retired", Price: decimal.NewFromInt(1000), IsActive: false}))

	products, err := service.ListProducts(ctx, burgers.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Cheeseburger", products[0].Name)

	// Bypass the service so the cache is not invalidated.
	require.NoError(t, db.Model(&models.Product{}).Where("id = ?", products[0].ID).Update("name", "Renamed").Error)
	cached, err := service.ListProducts(ctx, burgers.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cheeseburger", cached[0].Name)
	assert.True(t, cached[0].Price.Equal(decimal.NewFromInt(45000)))

	require.NoError(t, service.CreateProduct(ctx, &models.Product{CategoryID: burgers.ID, Name: "Veggie", Price: decimal.NewFromInt(40000), IsActive: true}))
	fresh, err := service.ListProducts(ctx, burgers.ID)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	assert.Equal(t, "Renamed", fresh[0].Name)
	assert.Equal(t, 4, cache.invalidations)
}

func TestDeleteProductHidesIt(t *testing.T) {
	db := setupTestDB(t)
	service := NewCatalogService(db, nil, discardLogger())
	ctx := context.Background()
	cat := seedCategory(t, db, "Sides")
	fries := seedProduct(t, db, cat.ID, "Fries", 15000)

	require.NoError(t, service.DeleteProduct(ctx, fries.ID))
	products, err := service.ListProducts(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, products)

	assert.ErrorIs(t, service.DeleteProduct(ctx, 12345), ErrNotFound)
}

func TestCreateGroupValidation(t *testing.T) {
	db := setupTestDB(t)
	service := NewCatalogService(db, nil, discardLogger())
	ctx := context.Background()
	cat := seedCategory(t, db, "Combos")
	plain := seedProduct(t, db, cat.ID, "Water", 10000)

	err := service.CreateGroup(ctx, &models.ConfigurationGroup{ProductID: plain.ID, Name: "Drink", MinSelect: 2, MaxSelect: 1})
	_, ok := AsValidation(err)
	assert.True(t, ok)

	err = service.CreateGroup(ctx, &models.ConfigurationGroup{ProductID: plain.ID, Name: "Drink", MinSelect: 1, MaxSelect: 1})
	ve, ok := AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "product_id", ve[0].Field)
}

func TestGetProductConfigurationOrdersGroups(t *testing.T) {
	db := setupTestDB(t)
	service := NewCatalogService(db, nil, discardLogger())
	ctx := context.Background()

	cat := seedCategory(t, db, "Combos")
	combo := &models.Product{CategoryID: cat.ID, Name: "Burger combo", Price: decimal.NewFromInt(80000), IsConfigurable: true, IsActive: true}
	require.NoError(t, service.CreateProduct(ctx, combo))
	coke := seedProduct(t, db, cat.ID, "Coke", 15000)
	fries := seedProduct(t, db, cat.ID, "Fries", 20000)

	large := &models.ProductVariant{ProductID: fries.ID, Name: "Large", Price: decimal.NewFromInt(25000), IsActive: true}
	require.NoError(t, service.CreateVariant(ctx, large))

	side := &models.ConfigurationGroup{ProductID: combo.ID, Name: "Side", MinSelect: 1, MaxSelect: 1, SortOrder: 2}
	drink := &models.ConfigurationGroup{ProductID: combo.ID, Name: "Drink", MinSelect: 1, MaxSelect: 1, SortOrder: 1}
	require.NoError(t, service.CreateGroup(ctx, side))
	require.NoError(t, service.CreateGroup(ctx, drink))

	require.NoError(t, service.CreateOption(ctx, &models.ConfigurationOption{GroupID: drink.ID, OptionProductID: coke.ID, IsDefault: true}))
	require.NoError(t, service.CreateOption(ctx, &models.ConfigurationOption{GroupID: side.ID, OptionProductID: fries.ID, OptionVariantID: &large.ID, PriceAdjustment: decimal.NewFromInt(5000)}))

	wrongVariant := &models.ConfigurationOption{GroupID: side.ID, OptionProductID: coke.ID, OptionVariantID: &large.ID}
	_, ok := AsValidation(service.CreateOption(ctx, wrongVariant))
	assert.True(t, ok)

	conf, err := service.GetProductConfiguration(ctx, combo.ID)
	require.NoError(t, err)
	require.Len(t, conf.Groups, 2)
	assert.Equal(t, "Drink", conf.Groups[0].Name)
	assert.Equal(t, "Side", conf.Groups[1].Name)
	require.Len(t, conf.Groups[1].Options, 1)
	assert.Equal(t, "Fries - Large", conf.Groups[1].Options[0].Name)

	require.NoError(t, service.DeleteGroup(ctx, side.ID))
	conf, err = service.GetProductConfiguration(ctx, combo.ID)
	require.NoError(t, err)
	assert.Len(t, conf.Groups, 1)

	_, err = service.GetProductConfiguration(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}
