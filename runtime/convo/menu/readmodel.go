package menu

import (
	"context"
	"fmt"
	"sort"

	"github.com/curbvoice/curbvoice/runtime/convo/telemetry"
)

type (
	// ReadModel implements Source on top of a Repository. Wrap the repository
	// in a CachedRepository to make reads cache-first.
	ReadModel struct {
		repo   Repository
		logger telemetry.Logger
	}

	// ReadModelOptions configures optional ReadModel behavior.
	ReadModelOptions struct {
		// Logger receives search diagnostics. Defaults to a no-op logger.
		Logger telemetry.Logger
	}
)

// NewReadModel builds a Source over the provided repository.
func NewReadModel(repo Repository, opts ReadModelOptions) (*ReadModel, error) {
	if repo == nil {
		return nil, fmt.Errorf("menu: repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &ReadModel{repo: repo, logger: logger}, nil
}

// AvailableItems returns the available items of the restaurant sorted by name.
func (m *ReadModel) AvailableItems(ctx context.Context, restaurantID int64) ([]Item, error) {
	items, err := m.repo.MenuItems(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("menu: load items for restaurant %d: %w", restaurantID, err)
	}
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.IsAvailable {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Search performs normalized keyword search over available item names. An
// exact normalized match always wins over token matches. Search never fails:
// lookup errors are logged and yield an empty result.
func (m *ReadModel) Search(ctx context.Context, restaurantID int64, query string) []Item {
	normalized := Normalize(query)
	if normalized == "" {
		return nil
	}
	items, err := m.AvailableItems(ctx, restaurantID)
	if err != nil {
		m.logger.Warn(ctx, "menu search falling back to empty result",
			"restaurant_id", restaurantID, "query", query, "err", err.Error())
		return nil
	}
	tokens := Tokenize(normalized)
	var matches []Item
	for _, it := range items {
		name := Normalize(it.Name)
		if name == normalized {
			return []Item{it}
		}
		if matchTokens(tokens, name) {
			matches = append(matches, it)
		}
	}
	return matches
}

// ItemByName returns the available item whose normalized name equals the
// normalized argument.
func (m *ReadModel) ItemByName(ctx context.Context, restaurantID int64, name string) (Item, error) {
	normalized := Normalize(name)
	if normalized == "" {
		return Item{}, ErrItemNotFound
	}
	items, err := m.AvailableItems(ctx, restaurantID)
	if err != nil {
		return Item{}, err
	}
	for _, it := range items {
		if Normalize(it.Name) == normalized {
			return it, nil
		}
	}
	return Item{}, ErrItemNotFound
}

// ItemByID returns the item with the given ID regardless of availability.
func (m *ReadModel) ItemByID(ctx context.Context, restaurantID int64, menuItemID string) (Item, error) {
	items, err := m.repo.MenuItems(ctx, restaurantID)
	if err != nil {
		return Item{}, fmt.Errorf("menu: load items for restaurant %d: %w", restaurantID, err)
	}
	for _, it := range items {
		if it.ID == menuItemID {
			return it, nil
		}
	}
	return Item{}, ErrItemNotFound
}

// IngredientsOf returns the ingredient associations of one menu item.
func (m *ReadModel) IngredientsOf(ctx context.Context, menuItemID string) ([]ItemIngredient, error) {
	assocs, err := m.repo.ItemIngredients(ctx, menuItemID)
	if err != nil {
		return nil, fmt.Errorf("menu: load ingredients of item %s: %w", menuItemID, err)
	}
	return assocs, nil
}

// AllIngredientsWithCosts returns every ingredient of the restaurant.
func (m *ReadModel) AllIngredientsWithCosts(ctx context.Context, restaurantID int64) ([]Ingredient, error) {
	ings, err := m.repo.Ingredients(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("menu: load ingredients for restaurant %d: %w", restaurantID, err)
	}
	return ings, nil
}

// Categories returns the distinct item categories of the restaurant.
func (m *ReadModel) Categories(ctx context.Context, restaurantID int64) ([]string, error) {
	cats, err := m.repo.Categories(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("menu: load categories for restaurant %d: %w", restaurantID, err)
	}
	sort.Strings(cats)
	return cats, nil
}

// ItemsByCategory groups available items by category.
func (m *ReadModel) ItemsByCategory(ctx context.Context, restaurantID int64) (map[string][]Item, error) {
	items, err := m.AvailableItems(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Item)
	for _, it := range items {
		out[it.Category] = append(out[it.Category], it)
	}
	return out, nil
}

// Inventory returns the restaurant's inventory records keyed by ingredient ID.
func (m *ReadModel) Inventory(ctx context.Context, restaurantID int64) (map[string]InventoryRecord, error) {
	inv, err := m.repo.Inventory(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("menu: load inventory for restaurant %d: %w", restaurantID, err)
	}
	return inv, nil
}
