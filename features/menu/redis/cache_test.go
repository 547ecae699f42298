package redis

import (
	"context"
	"path"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curbvoice/curbvoice/runtime/convo/menu"
)

type fakeRedis struct {
	data   map[string]string
	getErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *goredis.StringCmd {
	if f.getErr != nil {
		return goredis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *goredis.StatusCmd {
	f.data[key] = string(value.([]byte))
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *goredis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return goredis.NewIntResult(n, nil)
}

func (f *fakeRedis) Scan(_ context.Context, _ uint64, match string, _ int64) *goredis.ScanCmd {
	var keys []string
	for k := range f.data {
		if ok, _ := path.Match(match, k); ok {
			keys = append(keys, k)
		}
	}
	return goredis.NewScanCmdResult(keys, 0, nil)
}

func newTestCache(t *testing.T) (*Cache, *fakeRedis) {
	t.Helper()
	rdb := newFakeRedis()
	cache, err := New(Options{Client: rdb})
	require.NoError(t, err)
	return cache, rdb
}

func TestMenuItemsRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	items := []menu.Item{{
		ID:           "itm-1",
		RestaurantID: 1,
		Name:         "Classic Burger",
		Category:     "burgers",
		Price:        decimal.RequireFromString("5.00"),
		IsAvailable:  true,
	}}
	require.NoError(t, cache.SetMenuItems(ctx, 1, items))

	got, err := cache.GetMenuItems(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Classic Burger", got[0].Name)
	assert.True(t, got[0].Price.Equal(decimal.RequireFromString("5.00")))
}

func TestMissReturnsErrCacheMiss(t *testing.T) {
	cache, _ := newTestCache(t)

	_, err := cache.GetMenuItems(context.Background(), 42)
	assert.ErrorIs(t, err, menu.ErrCacheMiss)
	_, err = cache.GetInventory(context.Background(), 42)
	assert.ErrorIs(t, err, menu.ErrCacheMiss)
	_, err = cache.GetItemIngredients(context.Background(), "itm-404")
	assert.ErrorIs(t, err, menu.ErrCacheMiss)
}

func TestTransportErrorIsNotAMiss(t *testing.T) {
	cache, rdb := newTestCache(t)
	rdb.getErr = assert.AnError

	_, err := cache.GetMenuItems(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, menu.ErrCacheMiss)
}

func TestInventoryRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	inv := map[string]menu.InventoryRecord{
		"ing-cheese": {
			IngredientID: "ing-cheese",
			CurrentStock: decimal.RequireFromString("12"),
			MinStock:     decimal.RequireFromString("4"),
		},
	}
	require.NoError(t, cache.SetInventory(ctx, 1, inv))

	got, err := cache.GetInventory(ctx, 1)
	require.NoError(t, err)
	require.Contains(t, got, "ing-cheese")
	assert.True(t, got["ing-cheese"].CurrentStock.Equal(decimal.RequireFromString("12")))
}

func TestInvalidateDropsRestaurantKeysOnly(t *testing.T) {
	cache, rdb := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetMenuItems(ctx, 1, []menu.Item{}))
	require.NoError(t, cache.SetIngredients(ctx, 1, []menu.Ingredient{}))
	require.NoError(t, cache.SetMenuItems(ctx, 2, []menu.Item{}))

	require.NoError(t, cache.Invalidate(ctx, 1))

	_, err := cache.GetMenuItems(ctx, 1)
	assert.ErrorIs(t, err, menu.ErrCacheMiss)
	_, err = cache.GetIngredients(ctx, 1)
	assert.ErrorIs(t, err, menu.ErrCacheMiss)
	_, err = cache.GetMenuItems(ctx, 2)
	assert.NoError(t, err)
	assert.Len(t, rdb.data, 1)
}

func TestCorruptPayloadSurfacesError(t *testing.T) {
	cache, rdb := newTestCache(t)
	rdb.data["menu:1:items"] = "{not json"

	_, err := cache.GetMenuItems(context.Background(), 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, menu.ErrCacheMiss)
}
