// Package inmem provides in-memory implementations of menu.Repository and
// menu.Cache. They are intended for tests and local development; production
// deployments use features/menu/mongo and features/menu/redis.
package inmem

import (
	"context"
	"sync"

	"github.com/curbvoice/curbvoice/runtime/convo/menu"
)

// Repository is an in-memory menu.Repository. It is safe for concurrent use.
type Repository struct {
	mu          sync.RWMutex
	items       map[int64][]menu.Item
	ingredients map[int64][]menu.Ingredient
	assocs      map[string][]menu.ItemIngredient
	inventory   map[int64]map[string]menu.InventoryRecord
}

// NewRepository returns an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		items:       make(map[int64][]menu.Item),
		ingredients: make(map[int64][]menu.Ingredient),
		assocs:      make(map[string][]menu.ItemIngredient),
		inventory:   make(map[int64]map[string]menu.InventoryRecord),
	}
}

// SeedItems replaces the menu items of a restaurant.
func (r *Repository) SeedItems(restaurantID int64, items ...menu.Item) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[restaurantID] = append([]menu.Item(nil), items...)
}

// SeedIngredients replaces the ingredients of a restaurant.
func (r *Repository) SeedIngredients(restaurantID int64, ings ...menu.Ingredient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ingredients[restaurantID] = append([]menu.Ingredient(nil), ings...)
}

// SeedItemIngredients replaces the ingredient associations of a menu item.
func (r *Repository) SeedItemIngredients(menuItemID string, assocs ...menu.ItemIngredient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assocs[menuItemID] = append([]menu.ItemIngredient(nil), assocs...)
}

// SeedInventory replaces the inventory of a restaurant.
func (r *Repository) SeedInventory(restaurantID int64, records ...menu.InventoryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv := make(map[string]menu.InventoryRecord, len(records))
	for _, rec := range records {
		inv[rec.IngredientID] = rec
	}
	r.inventory[restaurantID] = inv
}

// MenuItems implements menu.Repository.
func (r *Repository) MenuItems(_ context.Context, restaurantID int64) ([]menu.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]menu.Item(nil), r.items[restaurantID]...), nil
}

// Ingredients implements menu.Repository.
func (r *Repository) Ingredients(_ context.Context, restaurantID int64) ([]menu.Ingredient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]menu.Ingredient(nil), r.ingredients[restaurantID]...), nil
}

// ItemIngredients implements menu.Repository.
func (r *Repository) ItemIngredients(_ context.Context, menuItemID string) ([]menu.ItemIngredient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]menu.ItemIngredient(nil), r.assocs[menuItemID]...), nil
}

// Inventory implements menu.Repository.
func (r *Repository) Inventory(_ context.Context, restaurantID int64) (map[string]menu.InventoryRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]menu.InventoryRecord, len(r.inventory[restaurantID]))
	for k, v := range r.inventory[restaurantID] {
		out[k] = v
	}
	return out, nil
}

// Categories implements menu.Repository.
func (r *Repository) Categories(_ context.Context, restaurantID int64) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]struct{})
	var cats []string
	for _, it := range r.items[restaurantID] {
		if _, ok := seen[it.Category]; ok {
			continue
		}
		seen[it.Category] = struct{}{}
		cats = append(cats, it.Category)
	}
	return cats, nil
}
