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

type comboFixture struct {
	combo  *models.Product
	coke   *models.ConfigurationOption
	orange *models.ConfigurationOption
	fries  *models.ConfigurationOption
}

// seedCombo builds a combo with a required drink (coke by default, orange
// for +5,000) and an optional side.
func seedCombo(t *testing.T, app *testApp) comboFixture {
	t.Helper()
	ctx := context.Background()
	cat := seedCategory(t, app.db, "Combos")
	combo := &models.Product{CategoryID: cat.ID, Name: "Chicken combo", Price: decimal.NewFromInt(70000), IsConfigurable: true, IsActive: true}
	require.NoError(t, app.db.Create(combo).Error)
	coke := seedProduct(t, app.db, cat.ID, "Coke", 15000)
	orange := seedProduct(t, app.db, cat.ID, "Orange juice", 25000)
	fries := seedProduct(t, app.db, cat.ID, "Fries", 20000)

	drink := &models.ConfigurationGroup{ProductID: combo.ID, Name: "Drink", MinSelect: 1, MaxSelect: 1, SortOrder: 1}
	side := &models.ConfigurationGroup{ProductID: combo.ID, Name: "Side", MinSelect: 0, MaxSelect: 1, SortOrder: 2}
	require.NoError(t, app.catalog.CreateGroup(ctx, drink))
	require.NoError(t, app.catalog.CreateGroup(ctx, side))

	f := comboFixture{
		combo:  combo,
		coke:   &models.ConfigurationOption{GroupID: drink.ID, OptionProductID: coke.ID, IsDefault: true, SortOrder: 1},
		orange: &models.ConfigurationOption{GroupID: drink.ID, OptionProductID: orange.ID, PriceAdjustment: decimal.NewFromInt(5000), SortOrder: 2},
		fries:  &models.ConfigurationOption{GroupID: side.ID, OptionProductID: fries.ID, PriceAdjustment: decimal.NewFromInt(10000)},
	}
	require.NoError(t, app.catalog.CreateOption(ctx, f.coke))
	require.NoError(t, app.catalog.CreateOption(ctx, f.orange))
	require.NoError(t, app.catalog.CreateOption(ctx, f.fries))
	return f
}

func TestAddItemGroupsIdenticalLines(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	cat := seedCategory(t, app.db, "Burgers")
	burger := seedProduct(t, app.db, cat.ID, "Burger", 30000)
	rc := Anonymous("session-1")

	_, err := app.carts.AddItem(ctx, rc, AddItemInput{ProductID: burger.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = app.carts.AddItem(ctx, rc, AddItemInput{ProductID: burger.ID, Quantity: 1})
	require.NoError(t, err)

	view, err := app.carts.GetCart(ctx, rc)
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 3, view.Items[0].Quantity)
	assert.True(t, view.Subtotal.Equal(decimal.NewFromInt(90000)))
}

func TestGetCartSubtotal(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	cat := seedCategory(t, app.db, "Mains")
	rice := seedProduct(t, app.db, cat.ID, "Fried rice", 20000)
	soup := seedProduct(t, app.db, cat.ID, "Soup", 15000)
	rc := Anonymous("session-2")

	_, err := app.carts.AddItem(ctx, rc, AddItemInput{ProductID: rice.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = app.carts.AddItem(ctx, rc, AddItemInput{ProductID: soup.ID, Quantity: 1})
	require.NoError(t, err)

	view, err := app.carts.GetCart(ctx, rc)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, "Fried rice", view.Items[0].ProductName)
	assert.True(t, view.Items[0].LineTotal.Equal(decimal.NewFromInt(40000)))
	assert.True(t, view.Subtotal.Equal(decimal.NewFromInt(55000)))
}

func TestGetCartWithoutCart(t *testing.T) {
	app := newTestApp(t)

	view, err := app.carts.GetCart(context.Background(), Anonymous("nobody"))
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())
	assert.True(t, view.Subtotal.IsZero())
}

func TestAddItemRejectsUnavailableProduct(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	cat := seedCategory(t, app.db, "Mains")
	gone := seedProduct(t, app.db, cat.ID, "Seasonal", 20000)
	require.NoError(t, app.db.Model(gone).Update("is_active", false).Error)

	_, err := app.carts.AddItem(ctx, Anonymous("s"), AddItemInput{ProductID: gone.ID, Quantity: 1})
	assertRule(t, err, ReasonUnavailable)

	_, err = app.carts.AddItem(ctx, Anonymous("s"), AddItemInput{ProductID: 4242, Quantity: 1})
	assertRule(t, err, ReasonUnavailable)

	_, err = app.carts.AddItem(ctx, Anonymous("s"), AddItemInput{ProductID: gone.ID, Quantity: 0})
	_, ok := AsValidation(err)
	assert.True(t, ok)
}

func TestAddConfigurableItem(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	f := seedCombo(t, app)
	rc := Anonymous("combo-session")

	item, err := app.carts.AddItem(ctx, rc, AddItemInput{ProductID: f.combo.ID, Quantity: 1, OptionIDs: []int64{f.fries.ID, f.orange.ID}})
	require.NoError(t, err)
	assert.True(t, item.UnitPrice.Equal(decimal.NewFromInt(85000)))

	var choices []models.SelectedChoice
	require.NoError(t, json.Unmarshal(item.Configuration, &choices))
	require.Len(t, choices, 2)
	assert.Equal(t, "Drink", choices[0].GroupName)
	assert.Equal(t, "Orange juice", choices[0].OptionName)
	assert.Equal(t, "Side", choices[1].GroupName)

	// Same choices in another order land on the same line.
	_, err = app.carts.AddItem(ctx, rc, AddItemInput{ProductID: f.combo.ID, Quantity: 1, OptionIDs: []int64{f.orange.ID, f.fries.ID}})
	require.NoError(t, err)

	// No choices picks the default drink and makes a separate line.
	def, err := app.carts.AddItem(ctx, rc, AddItemInput{ProductID: f.combo.ID, Quantity: 1})
	require.NoError(t, err)
	assert.True(t, def.UnitPrice.Equal(decimal.NewFromInt(70000)))

	view, err := app.carts.GetCart(ctx, rc)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	assert.Equal(t, 2, view.Items[0].Quantity)
	assert.True(t, view.Subtotal.Equal(decimal.NewFromInt(240000)))
}

func TestAddConfigurableItemInvalidSelections(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	f := seedCombo(t, app)
	rc := Anonymous("combo-session")

	cases := []struct {
		name    string
		options []int64
	}{
		{"two drinks", []int64{f.coke.ID, f.orange.ID}},
		{"missing drink", []int64{f.fries.ID}},
		{"foreign option", []int64{f.coke.ID, 9999}},
		{"duplicate option", []int64{f.coke.ID, f.coke.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := app.carts.AddItem(ctx, rc, AddItemInput{ProductID: f.combo.ID, Quantity: 1, OptionIDs: tc.options})
			assertRule(t, err, ReasonInvalidConfiguration)
		})
	}

	view, err := app.carts.GetCart(ctx, rc)
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())
}

func TestUpdateItem(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	cat := seedCategory(t, app.db, "Mains")
	rice := seedProduct(t, app.db, cat.ID, "Fried rice", 20000)
	rc := Anonymous("owner")

	item, err := app.carts.AddItem(ctx, rc, AddItemInput{ProductID: rice.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, app.carts.UpdateItem(ctx, rc, item.ID, 4))
	view, err := app.carts.GetCart(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, 4, view.Items[0].Quantity)

	assert.ErrorIs(t, app.carts.UpdateItem(ctx, Anonymous("intruder"), item.ID, 1), ErrNotFound)

	require.NoError(t, app.carts.UpdateItem(ctx, rc, item.ID, 0))
	view, err = app.carts.GetCart(ctx, rc)
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())
	assert.ErrorIs(t, app.carts.RemoveItem(ctx, rc, item.ID), ErrNotFound)
}

func TestMergeOnLoginSumsIdenticalLines(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	cat := seedCategory(t, app.db, "Mains")
	a := seedProduct(t, app.db, cat.ID, "A", 10000)
	b := seedProduct(t, app.db, cat.ID, "B", 12000)
	user := seedUser(t, app.db, "merge@example.com")

	anon := Anonymous("anon-session")
	member := ForUser(user.ID, "anon-session")
	_, err := app.carts.AddItem(ctx, anon, AddItemInput{ProductID: a.ID, Quantity: 2})
	require.NoError(t, err)
	_, err = app.carts.AddItem(ctx, member, AddItemInput{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)
	_, err = app.carts.AddItem(ctx, member, AddItemInput{ProductID: b.ID, Quantity: 1})
	require.NoError(t, err)

	require.NoError(t, app.carts.MergeOnLogin(ctx, "anon-session", user.ID))

	view, err := app.carts.GetCart(ctx, member)
	require.NoError(t, err)
	require.Len(t, view.Items, 2)
	quantities := map[int64]int{}
	for _, line := range view.Items {
		quantities[line.ProductID] = line.Quantity
	}
	assert.Equal(t, 3, quantities[a.ID])
	assert.Equal(t, 1, quantities[b.ID])

	var carts int64
	require.NoError(t, app.db.Model(&models.Cart{}).Count(&carts).Error)
	assert.Equal(t, int64(1), carts)

	leftover, err := app.carts.GetCart(ctx, anon)
	require.NoError(t, err)
	assert.True(t, leftover.IsEmpty())
}

func TestMergeOnLoginTransfersCart(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	cat := seedCategory(t, app.db, "Mains")
	a := seedProduct(t, app.db, cat.ID, "A", 10000)
	user := seedUser(t, app.db, "fresh@example.com")

	_, err := app.carts.AddItem(ctx, Anonymous("s1"), AddItemInput{ProductID: a.ID, Quantity: 2})
	require.NoError(t, err)
	require.NoError(t, app.carts.MergeOnLogin(ctx, "s1", user.ID))

	view, err := app.carts.GetCart(ctx, ForUser(user.ID, ""))
	require.NoError(t, err)
	require.Len(t, view.Items, 1)
	assert.Equal(t, 2, view.Items[0].Quantity)
	require.NotNil(t, view.Cart.UserID)
	assert.Nil(t, view.Cart.SessionKey)

	// Nothing to merge is not an error.
	require.NoError(t, app.carts.MergeOnLogin(ctx, "s1", user.ID))
}

func TestApplyCoupon(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	cat := seedCategory(t, app.db, "Mains")
	a := seedProduct(t, app.db, cat.ID, "A", 45000)
	seedPromotion(t, app.db, "SAVE10", 10, nil)
	rc := Anonymous("coupon-session")

	_, err := app.carts.ApplyCoupon(ctx, rc, "save10")
	assertRule(t, err, ReasonEmptyCart)

	_, err = app.carts.AddItem(ctx, rc, AddItemInput{ProductID: a.ID, Quantity: 1})
	require.NoError(t, err)

	applied, err := app.carts.ApplyCoupon(ctx, rc, " save10 ")
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", applied.Code)
	assert.True(t, applied.DiscountAmount.Equal(decimal.NewFromInt(4500)))

	view, err := app.carts.GetCart(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", view.Cart.CouponCode)

	_, err = app.carts.ApplyCoupon(ctx, rc, "NOPE")
	assertRule(t, err, ReasonNotFound)

	require.NoError(t, app.carts.RemoveCoupon(ctx, rc))
	view, err = app.carts.GetCart(ctx, rc)
	require.NoError(t, err)
	assert.Empty(t, view.Cart.CouponCode)
}
