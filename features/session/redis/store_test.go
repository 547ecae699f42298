package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curbvoice/curbvoice/runtime/convo/session"
)

// fakeRedis backs both the store and the locker in tests.
type fakeRedis struct {
	data map[string]string
	ttls map[string]time.Duration
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
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
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

func (f *fakeRedis) SetNX(_ context.Context, key string, value any, ttl time.Duration) *goredis.BoolCmd {
	if _, held := f.data[key]; held {
		return goredis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	f.ttls[key] = ttl
	return goredis.NewBoolResult(true, nil)
}

// Eval understands only the compare-and-del release script.
func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...any) *goredis.Cmd {
	if f.data[keys[0]] == args[0].(string) {
		delete(f.data, keys[0])
		return goredis.NewCmdResult(int64(1), nil)
	}
	return goredis.NewCmdResult(int64(0), nil)
}

func newTestStore(t *testing.T) (*Store, *fakeRedis) {
	t.Helper()
	rdb := newFakeRedis()
	store, err := NewStore(StoreOptions{Client: rdb})
	require.NoError(t, err)
	return store, rdb
}

func sampleContext() session.Context {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return session.Context{
		SessionID:    "sess-1",
		RestaurantID: 1,
		OrderID:      "ord-1",
		State:        session.StateOrdering,
		TurnCounter:  3,
		History: []session.Turn{{
			UserInput:    "a burger please",
			ResponseText: "I added Classic Burger to your order.",
			Intent:       "ADD_ITEM",
			State:        session.StateOrdering,
			Timestamp:    now,
		}},
		LastMentionedLine: "line-1",
		UpdatedAt:         now,
	}
}

func TestPutAndGet(t *testing.T) {
	store, rdb := newTestStore(t)
	ctx := context.Background()

	sc := sampleContext()
	require.NoError(t, store.Put(ctx, sc, 10*time.Minute))
	assert.Equal(t, 10*time.Minute, rdb.ttls["session:sess-1"])

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, sc.SessionID, got.SessionID)
	assert.Equal(t, session.StateOrdering, got.State)
	assert.Equal(t, 3, got.TurnCounter)
	require.Len(t, got.History, 1)
	assert.Equal(t, "ADD_ITEM", got.History[0].Intent)
	assert.Equal(t, "line-1", got.LastMentionedLine)
}

func TestPutDefaultsTTL(t *testing.T) {
	store, rdb := newTestStore(t)

	require.NoError(t, store.Put(context.Background(), sampleContext(), 0))
	assert.Equal(t, session.DefaultTTL, rdb.ttls["session:sess-1"])
}

func TestGetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "sess-404")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, sampleContext(), time.Minute))
	require.NoError(t, store.Delete(ctx, "sess-1"))
	require.NoError(t, store.Delete(ctx, "sess-1"))

	_, err := store.Get(ctx, "sess-1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestCorruptPayloadSurfacesError(t *testing.T) {
	store, rdb := newTestStore(t)
	rdb.data["session:sess-1"] = "{broken"

	_, err := store.Get(context.Background(), "sess-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrNotFound)
}

func TestStoreValidation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "")
	assert.Error(t, err)
	assert.Error(t, store.Put(ctx, session.Context{}, time.Minute))
	assert.Error(t, store.Delete(ctx, ""))

	_, err = NewStore(StoreOptions{})
	assert.Error(t, err)
}
