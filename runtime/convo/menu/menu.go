// Package menu implements the menu read model: cache-first access to menu
// items, ingredients and inventory for one restaurant, plus the normalized
// keyword search used to ground LLM-extracted item names against live menu
// data.
//
// The package defines two ports. Repository is the durable store (see
// features/menu/mongo); Cache is an optional fast path (see
// features/menu/redis). CachedRepository composes the two so every read tries
// the cache first and falls back to the durable store on miss or cache error,
// repopulating the cache on the way out. Cache errors never surface to
// callers.
package menu

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type (
	// Item is a sellable menu entry. Items are created and updated by
	// out-of-band imports and are read-only to the conversation core.
	Item struct {
		ID           string          `json:"id"`
		RestaurantID int64           `json:"restaurant_id"`
		Name         string          `json:"name"`
		Category     string          `json:"category"`
		Price        decimal.Decimal `json:"price"`
		IsAvailable  bool            `json:"is_available"`
		Tags         []string        `json:"tags,omitempty"`
	}

	// Ingredient is a raw ingredient available at a restaurant.
	Ingredient struct {
		ID           string          `json:"id"`
		RestaurantID int64           `json:"restaurant_id"`
		Name         string          `json:"name"`
		UnitCost     decimal.Decimal `json:"unit_cost"`
		IsAllergen   bool            `json:"is_allergen"`
		AllergenType string          `json:"allergen_type,omitempty"`
	}

	// ItemIngredient associates an ingredient with a menu item. It is the
	// basis for validating "no X" and "extra X" modifications.
	ItemIngredient struct {
		MenuItemID     string          `json:"menu_item_id"`
		IngredientID   string          `json:"ingredient_id"`
		Quantity       decimal.Decimal `json:"quantity"`
		Unit           string          `json:"unit"`
		IsOptional     bool            `json:"is_optional"`
		AdditionalCost decimal.Decimal `json:"additional_cost"`
	}

	// InventoryRecord tracks current stock for one ingredient. Inventory may
	// be absent for an ingredient; policy for that case is configured on the
	// command bus.
	InventoryRecord struct {
		IngredientID string          `json:"ingredient_id"`
		CurrentStock decimal.Decimal `json:"current_stock"`
		MinStock     decimal.Decimal `json:"min_stock"`
		IsLowStock   bool            `json:"is_low_stock"`
	}

	// Repository is the durable menu store port. Implementations must be safe
	// for concurrent use.
	Repository interface {
		// MenuItems returns every menu item of the restaurant, available or
		// not.
		MenuItems(ctx context.Context, restaurantID int64) ([]Item, error)
		// Ingredients returns every ingredient of the restaurant.
		Ingredients(ctx context.Context, restaurantID int64) ([]Ingredient, error)
		// ItemIngredients returns the ingredient associations of one item.
		ItemIngredients(ctx context.Context, menuItemID string) ([]ItemIngredient, error)
		// Inventory returns the inventory records of the restaurant keyed by
		// ingredient ID.
		Inventory(ctx context.Context, restaurantID int64) (map[string]InventoryRecord, error)
		// Categories returns the distinct item categories of the restaurant.
		Categories(ctx context.Context, restaurantID int64) ([]string, error)
	}

	// Cache is the optional fast-path store in front of Repository. Get
	// methods return ErrCacheMiss when the key is not populated.
	// Implementations must be safe for concurrent use; writes use
	// single-writer-per-key semantics.
	Cache interface {
		GetMenuItems(ctx context.Context, restaurantID int64) ([]Item, error)
		SetMenuItems(ctx context.Context, restaurantID int64, items []Item) error
		GetIngredients(ctx context.Context, restaurantID int64) ([]Ingredient, error)
		SetIngredients(ctx context.Context, restaurantID int64, ingredients []Ingredient) error
		GetItemIngredients(ctx context.Context, menuItemID string) ([]ItemIngredient, error)
		SetItemIngredients(ctx context.Context, menuItemID string, assocs []ItemIngredient) error
		GetInventory(ctx context.Context, restaurantID int64) (map[string]InventoryRecord, error)
		SetInventory(ctx context.Context, restaurantID int64, inv map[string]InventoryRecord) error
		// Invalidate drops every cached entry of the restaurant. Called by
		// out-of-band import tooling after menu changes.
		Invalidate(ctx context.Context, restaurantID int64) error
	}

	// Source answers the menu questions the pipeline asks on the hot path.
	// All reads are idempotent; Search never returns an error and yields an
	// empty slice on any failure.
	Source interface {
		// AvailableItems returns the available items of the restaurant.
		AvailableItems(ctx context.Context, restaurantID int64) ([]Item, error)
		// Search performs normalized keyword search over available item
		// names. It never fails; lookup errors yield an empty result.
		Search(ctx context.Context, restaurantID int64, query string) []Item
		// ItemByName returns the available item whose normalized name equals
		// the normalized query. Returns ErrItemNotFound when absent.
		ItemByName(ctx context.Context, restaurantID int64, name string) (Item, error)
		// ItemByID returns the item with the given ID regardless of
		// availability, so callers can distinguish "unknown" from
		// "unavailable". Returns ErrItemNotFound when absent.
		ItemByID(ctx context.Context, restaurantID int64, menuItemID string) (Item, error)
		// IngredientsOf returns the ingredient associations of one item.
		IngredientsOf(ctx context.Context, menuItemID string) ([]ItemIngredient, error)
		// AllIngredientsWithCosts returns the restaurant's ingredients.
		AllIngredientsWithCosts(ctx context.Context, restaurantID int64) ([]Ingredient, error)
		// Categories returns the restaurant's item categories.
		Categories(ctx context.Context, restaurantID int64) ([]string, error)
		// ItemsByCategory groups available items by category.
		ItemsByCategory(ctx context.Context, restaurantID int64) (map[string][]Item, error)
		// Inventory returns inventory records keyed by ingredient ID.
		Inventory(ctx context.Context, restaurantID int64) (map[string]InventoryRecord, error)
	}
)

var (
	// ErrCacheMiss indicates a cache key is not populated.
	ErrCacheMiss = errors.New("menu: cache miss")
	// ErrItemNotFound indicates no menu item matched the lookup.
	ErrItemNotFound = errors.New("menu: item not found")
)

// DefaultCacheTTL is the default lifetime of cached menu projections.
// Invalidation is explicit (import tooling) so the TTL is a safety net, not a
// freshness mechanism.
const DefaultCacheTTL = 15 * time.Minute
