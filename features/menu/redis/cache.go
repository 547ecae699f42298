// Package redis provides the Redis-backed menu cache used in front of the
// durable menu repository. Projections are stored as JSON under
// restaurant-scoped keys with a TTL safety net; invalidation is explicit and
// driven by menu import tooling.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/curbvoice/curbvoice/runtime/convo/menu"
)

type (
	// Cmdable captures the subset of the go-redis client used by the cache.
	// It is satisfied by *goredis.Client so tests can substitute a fake.
	Cmdable interface {
		Get(ctx context.Context, key string) *goredis.StringCmd
		Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
		Del(ctx context.Context, keys ...string) *goredis.IntCmd
		Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
	}

	// Options configures the cache.
	Options struct {
		Client Cmdable
		// TTL bounds the lifetime of cached projections. Defaults to
		// menu.DefaultCacheTTL.
		TTL time.Duration
		// KeyPrefix namespaces every key, e.g. per deployment.
		KeyPrefix string
	}

	// Cache implements menu.Cache on Redis.
	Cache struct {
		rdb    Cmdable
		ttl    time.Duration
		prefix string
	}
)

var _ menu.Cache = (*Cache)(nil)

// New returns a Redis-backed menu cache.
func New(opts Options) (*Cache, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = menu.DefaultCacheTTL
	}
	return &Cache{rdb: opts.Client, ttl: ttl, prefix: opts.KeyPrefix}, nil
}

// GetMenuItems implements menu.Cache.
func (c *Cache) GetMenuItems(ctx context.Context, restaurantID int64) ([]menu.Item, error) {
	var items []menu.Item
	if err := c.getJSON(ctx, c.itemsKey(restaurantID), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SetMenuItems implements menu.Cache.
func (c *Cache) SetMenuItems(ctx context.Context, restaurantID int64, items []menu.Item) error {
	return c.setJSON(ctx, c.itemsKey(restaurantID), items)
}

// GetIngredients implements menu.Cache.
func (c *Cache) GetIngredients(ctx context.Context, restaurantID int64) ([]menu.Ingredient, error) {
	var ings []menu.Ingredient
	if err := c.getJSON(ctx, c.ingredientsKey(restaurantID), &ings); err != nil {
		return nil, err
	}
	return ings, nil
}

// SetIngredients implements menu.Cache.
func (c *Cache) SetIngredients(ctx context.Context, restaurantID int64, ingredients []menu.Ingredient) error {
	return c.setJSON(ctx, c.ingredientsKey(restaurantID), ingredients)
}

// GetItemIngredients implements menu.Cache.
func (c *Cache) GetItemIngredients(ctx context.Context, menuItemID string) ([]menu.ItemIngredient, error) {
	var assocs []menu.ItemIngredient
	if err := c.getJSON(ctx, c.itemIngredientsKey(menuItemID), &assocs); err != nil {
		return nil, err
	}
	return assocs, nil
}

// SetItemIngredients implements menu.Cache.
func (c *Cache) SetItemIngredients(ctx context.Context, menuItemID string, assocs []menu.ItemIngredient) error {
	return c.setJSON(ctx, c.itemIngredientsKey(menuItemID), assocs)
}

// GetInventory implements menu.Cache.
func (c *Cache) GetInventory(ctx context.Context, restaurantID int64) (map[string]menu.InventoryRecord, error) {
	var inv map[string]menu.InventoryRecord
	if err := c.getJSON(ctx, c.inventoryKey(restaurantID), &inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// SetInventory implements menu.Cache.
func (c *Cache) SetInventory(ctx context.Context, restaurantID int64, inv map[string]menu.InventoryRecord) error {
	return c.setJSON(ctx, c.inventoryKey(restaurantID), inv)
}

// Invalidate drops the restaurant-scoped projections. Item-ingredient
// projections are keyed by item, not restaurant, and age out through the TTL.
func (c *Cache) Invalidate(ctx context.Context, restaurantID int64) error {
	match := fmt.Sprintf("%smenu:%d:*", c.prefix, restaurantID)
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return fmt.Errorf("scan menu keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete menu keys: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (c *Cache) getJSON(ctx context.Context, key string, dst any) error {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return menu.ErrCacheMiss
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode cached value %s: %w", key, err)
	}
	return nil
}

func (c *Cache) setJSON(ctx context.Context, key string, val any) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode cached value %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, raw, c.ttl).Err()
}

func (c *Cache) itemsKey(restaurantID int64) string {
	return fmt.Sprintf("%smenu:%d:items", c.prefix, restaurantID)
}

func (c *Cache) ingredientsKey(restaurantID int64) string {
	return fmt.Sprintf("%smenu:%d:ingredients", c.prefix, restaurantID)
}

func (c *Cache) inventoryKey(restaurantID int64) string {
	return fmt.Sprintf("%smenu:%d:inventory", c.prefix, restaurantID)
}

func (c *Cache) itemIngredientsKey(menuItemID string) string {
	return fmt.Sprintf("%smenuitem:%s:ingredients", c.prefix, menuItemID)
}
