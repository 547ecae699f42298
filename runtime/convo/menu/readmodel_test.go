package menu_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curbvoice/curbvoice/runtime/convo/menu"
	"github.com/curbvoice/curbvoice/runtime/convo/menu/inmem"
)

func seedReadModel(t *testing.T) *menu.ReadModel {
	t.Helper()
	repo := inmem.NewRepository()
	repo.SeedItems(1,
		menu.Item{ID: "itm-classic", RestaurantID: 1, Name: "Classic Burger",
			Category: "burgers", Price: decimal.RequireFromString("5.00"), IsAvailable: true},
		menu.Item{ID: "itm-veggie", RestaurantID: 1, Name: "Veggie Burger",
			Category: "burgers", Price: decimal.RequireFromString("5.50"), IsAvailable: true},
		menu.Item{ID: "itm-fries", RestaurantID: 1, Name: "French Fries",
			Category: "sides", Price: decimal.RequireFromString("2.50"), IsAvailable: true},
		menu.Item{ID: "itm-shake", RestaurantID: 1, Name: "Chocolate Shake",
			Category: "drinks", Price: decimal.RequireFromString("3.25"), IsAvailable: false},
	)
	rm, err := menu.NewReadModel(repo, menu.ReadModelOptions{})
	require.NoError(t, err)
	return rm
}

func itemIDs(items []menu.Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}

func TestAvailableItemsExcludesUnavailable(t *testing.T) {
	rm := seedReadModel(t)

	items, err := rm.AvailableItems(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"itm-classic", "itm-fries", "itm-veggie"}, itemIDs(items),
		"sorted by name, shake excluded")
}

func TestSearchExactMatchWins(t *testing.T) {
	rm := seedReadModel(t)

	// "burger" alone token-matches both burgers.
	got := rm.Search(context.Background(), 1, "burger")
	assert.ElementsMatch(t, []string{"itm-classic", "itm-veggie"}, itemIDs(got))

	// The full name matches exactly and suppresses the token matches.
	got = rm.Search(context.Background(), 1, "a Classic Burger, please!")
	require.Len(t, got, 1)
	assert.Equal(t, "itm-classic", got[0].ID)
}

func TestSearchNeverMatchesUnavailable(t *testing.T) {
	rm := seedReadModel(t)

	got := rm.Search(context.Background(), 1, "chocolate shake")
	assert.Empty(t, got)
}

func TestSearchEmptyQuery(t *testing.T) {
	rm := seedReadModel(t)

	assert.Nil(t, rm.Search(context.Background(), 1, ""))
	assert.Nil(t, rm.Search(context.Background(), 1, "  ?!  "))
}

func TestItemByName(t *testing.T) {
	rm := seedReadModel(t)
	ctx := context.Background()

	it, err := rm.ItemByName(ctx, 1, "classic burger")
	require.NoError(t, err)
	assert.Equal(t, "itm-classic", it.ID)

	// Unavailable items are not matched by name.
	_, err = rm.ItemByName(ctx, 1, "Chocolate Shake")
	assert.ErrorIs(t, err, menu.ErrItemNotFound)

	_, err = rm.ItemByName(ctx, 1, "galaxy pie")
	assert.ErrorIs(t, err, menu.ErrItemNotFound)
}

func TestItemByIDSeesUnavailableItems(t *testing.T) {
	rm := seedReadModel(t)
	ctx := context.Background()

	it, err := rm.ItemByID(ctx, 1, "itm-shake")
	require.NoError(t, err)
	assert.False(t, it.IsAvailable, "callers distinguish unavailable from unknown")

	_, err = rm.ItemByID(ctx, 1, "itm-404")
	assert.ErrorIs(t, err, menu.ErrItemNotFound)
}

func TestItemsByCategory(t *testing.T) {
	rm := seedReadModel(t)

	groups, err := rm.ItemsByCategory(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, groups["burgers"], 2)
	assert.Len(t, groups["sides"], 1)
	assert.NotContains(t, groups, "drinks", "category with only unavailable items is absent")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "classic burger", menu.Normalize("  Classic   Burger! "))
	assert.Equal(t, "whopper jr", menu.Normalize("Whopper-Jr."))
	assert.Equal(t, "", menu.Normalize("?!()"))
}

func TestTokenizeDropsStopwords(t *testing.T) {
	tokens := menu.Tokenize(menu.Normalize("I want a large Coke meal please"))
	assert.Equal(t, []string{"large", "coke"}, tokens)
}
