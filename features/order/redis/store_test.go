package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curbvoice/curbvoice/runtime/convo/order"
)

type fakeRedis struct {
	data    map[string]string
	ttls    map[string]time.Duration
	setErr  error
	lastKey string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *goredis.StringCmd {
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *goredis.StatusCmd {
	if f.setErr != nil {
		return goredis.NewStatusResult("", f.setErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
	f.lastKey = key
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

func newTestStore(t *testing.T) (*Store, *fakeRedis) {
	t.Helper()
	rdb := newFakeRedis()
	store, err := New(Options{Client: rdb})
	require.NoError(t, err)
	return store, rdb
}

func sampleAggregate() order.Aggregate {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return order.Aggregate{
		ID:           "ord-1",
		SessionID:    "sess-1",
		RestaurantID: 1,
		Items: []order.Line{{
			LineID:     "line-1",
			MenuItemID: "itm-classic",
			Name:       "Classic Burger",
			Quantity:   1,
			UnitPrice:  decimal.RequireFromString("5.00"),
			ExtraCost:  decimal.Zero,
			TotalPrice: decimal.RequireFromString("5.00"),
		}},
		Subtotal:  decimal.RequireFromString("5.00"),
		Tax:       decimal.Zero,
		Total:     decimal.RequireFromString("5.00"),
		Status:    order.StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUpsertAndGet(t *testing.T) {
	store, rdb := newTestStore(t)
	ctx := context.Background()

	agg := sampleAggregate()
	require.NoError(t, store.Upsert(ctx, agg, 10*time.Minute))
	assert.Equal(t, "order:ord-1", rdb.lastKey)
	assert.Equal(t, 10*time.Minute, rdb.ttls["order:ord-1"])

	got, err := store.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, agg.ID, got.ID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Classic Burger", got.Items[0].Name)
	assert.True(t, got.Total.Equal(decimal.RequireFromString("5.00")))
	assert.Equal(t, order.StatusActive, got.Status)
}

func TestUpsertDefaultsTTL(t *testing.T) {
	store, rdb := newTestStore(t)

	require.NoError(t, store.Upsert(context.Background(), sampleAggregate(), 0))
	assert.Equal(t, order.DefaultTTL, rdb.ttls["order:ord-1"])
}

func TestGetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "ord-404")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, sampleAggregate(), time.Minute))
	require.NoError(t, store.Delete(ctx, "ord-1"))
	require.NoError(t, store.Delete(ctx, "ord-1"))

	_, err := store.Get(ctx, "ord-1")
	assert.ErrorIs(t, err, order.ErrNotFound)
}

func TestCorruptPayloadSurfacesError(t *testing.T) {
	store, rdb := newTestStore(t)
	rdb.data["order:ord-1"] = "{broken"

	_, err := store.Get(context.Background(), "ord-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, order.ErrNotFound)
}

func TestValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "")
	assert.Error(t, err)
	assert.Error(t, store.Upsert(ctx, order.Aggregate{}, time.Minute))
	assert.Error(t, store.Delete(ctx, ""))

	_, err = New(Options{})
	assert.Error(t, err)
}
