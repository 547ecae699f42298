package inmem

import (
	"context"
	"fmt"
	"sync"

	"github.com/curbvoice/curbvoice/runtime/convo/menu"
)

// Cache is an in-memory menu.Cache. It is safe for concurrent use and never
// evicts; tests exercise the miss path by starting empty or calling
// Invalidate.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]any
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]any)}
}

func itemsKey(restaurantID int64) string       { return fmt.Sprintf("items:%d", restaurantID) }
func ingredientsKey(restaurantID int64) string { return fmt.Sprintf("ingredients:%d", restaurantID) }
func assocKey(menuItemID string) string        { return "assoc:" + menuItemID }
func inventoryKey(restaurantID int64) string   { return fmt.Sprintf("inventory:%d", restaurantID) }

// GetMenuItems implements menu.Cache.
func (c *Cache) GetMenuItems(_ context.Context, restaurantID int64) ([]menu.Item, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[itemsKey(restaurantID)]
	if !ok {
		return nil, menu.ErrCacheMiss
	}
	return append([]menu.Item(nil), v.([]menu.Item)...), nil
}

// SetMenuItems implements menu.Cache.
func (c *Cache) SetMenuItems(_ context.Context, restaurantID int64, items []menu.Item) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[itemsKey(restaurantID)] = append([]menu.Item(nil), items...)
	return nil
}

// GetIngredients implements menu.Cache.
func (c *Cache) GetIngredients(_ context.Context, restaurantID int64) ([]menu.Ingredient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[ingredientsKey(restaurantID)]
	if !ok {
		return nil, menu.ErrCacheMiss
	}
	return append([]menu.Ingredient(nil), v.([]menu.Ingredient)...), nil
}

// SetIngredients implements menu.Cache.
func (c *Cache) SetIngredients(_ context.Context, restaurantID int64, ings []menu.Ingredient) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ingredientsKey(restaurantID)] = append([]menu.Ingredient(nil), ings...)
	return nil
}

// GetItemIngredients implements menu.Cache.
func (c *Cache) GetItemIngredients(_ context.Context, menuItemID string) ([]menu.ItemIngredient, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[assocKey(menuItemID)]
	if !ok {
		return nil, menu.ErrCacheMiss
	}
	return append([]menu.ItemIngredient(nil), v.([]menu.ItemIngredient)...), nil
}

// SetItemIngredients implements menu.Cache.
func (c *Cache) SetItemIngredients(_ context.Context, menuItemID string, assocs []menu.ItemIngredient) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[assocKey(menuItemID)] = append([]menu.ItemIngredient(nil), assocs...)
	return nil
}

// GetInventory implements menu.Cache.
func (c *Cache) GetInventory(_ context.Context, restaurantID int64) (map[string]menu.InventoryRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[inventoryKey(restaurantID)]
	if !ok {
		return nil, menu.ErrCacheMiss
	}
	src := v.(map[string]menu.InventoryRecord)
	out := make(map[string]menu.InventoryRecord, len(src))
	for k, rec := range src {
		out[k] = rec
	}
	return out, nil
}

// SetInventory implements menu.Cache.
func (c *Cache) SetInventory(_ context.Context, restaurantID int64, inv map[string]menu.InventoryRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make(map[string]menu.InventoryRecord, len(inv))
	for k, rec := range inv {
		cp[k] = rec
	}
	c.entries[inventoryKey(restaurantID)] = cp
	return nil
}

// Invalidate implements menu.Cache. Item ingredient associations are keyed by
// item ID, not restaurant, so restaurant-level invalidation leaves them in
// place; imports that change recipes must invalidate the affected items via
// SetItemIngredients.
func (c *Cache) Invalidate(_ context.Context, restaurantID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, itemsKey(restaurantID))
	delete(c.entries, ingredientsKey(restaurantID))
	delete(c.entries, inventoryKey(restaurantID))
	return nil
}
