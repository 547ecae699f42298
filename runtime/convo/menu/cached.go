package menu

import (
	"context"
	"errors"

	"github.com/curbvoice/curbvoice/runtime/convo/telemetry"
)

type (
	// CachedRepository implements Repository with a try-cached-then-direct
	// read path. Every read attempts the cache first; on miss or any cache
	// error it falls through to the durable repository and repopulates the
	// cache. Cache failures are logged and never surface to callers, so the
	// pipeline degrades to direct reads when the cache is down.
	CachedRepository struct {
		cache   Cache
		direct  Repository
		logger  telemetry.Logger
		metrics telemetry.Metrics
	}

	// CachedRepositoryOptions configures optional CachedRepository behavior.
	CachedRepositoryOptions struct {
		Logger  telemetry.Logger
		Metrics telemetry.Metrics
	}
)

// NewCachedRepository composes a cache in front of a durable repository.
func NewCachedRepository(cache Cache, direct Repository, opts CachedRepositoryOptions) (*CachedRepository, error) {
	if cache == nil {
		return nil, errors.New("menu: cache is required")
	}
	if direct == nil {
		return nil, errors.New("menu: direct repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &CachedRepository{cache: cache, direct: direct, logger: logger, metrics: metrics}, nil
}

// MenuItems implements Repository.
func (r *CachedRepository) MenuItems(ctx context.Context, restaurantID int64) ([]Item, error) {
	items, err := r.cache.GetMenuItems(ctx, restaurantID)
	if err == nil {
		r.metrics.IncCounter(telemetry.MetricMenuCacheHits, 1, "kind", "items")
		return items, nil
	}
	r.observeMiss(ctx, "items", err)
	items, err = r.direct.MenuItems(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if cerr := r.cache.SetMenuItems(ctx, restaurantID, items); cerr != nil {
		r.logger.Warn(ctx, "menu cache repopulation failed", "kind", "items", "err", cerr.Error())
	}
	return items, nil
}

// Ingredients implements Repository.
func (r *CachedRepository) Ingredients(ctx context.Context, restaurantID int64) ([]Ingredient, error) {
	ings, err := r.cache.GetIngredients(ctx, restaurantID)
	if err == nil {
		r.metrics.IncCounter(telemetry.MetricMenuCacheHits, 1, "kind", "ingredients")
		return ings, nil
	}
	r.observeMiss(ctx, "ingredients", err)
	ings, err = r.direct.Ingredients(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if cerr := r.cache.SetIngredients(ctx, restaurantID, ings); cerr != nil {
		r.logger.Warn(ctx, "menu cache repopulation failed", "kind", "ingredients", "err", cerr.Error())
	}
	return ings, nil
}

// ItemIngredients implements Repository.
func (r *CachedRepository) ItemIngredients(ctx context.Context, menuItemID string) ([]ItemIngredient, error) {
	assocs, err := r.cache.GetItemIngredients(ctx, menuItemID)
	if err == nil {
		r.metrics.IncCounter(telemetry.MetricMenuCacheHits, 1, "kind", "item_ingredients")
		return assocs, nil
	}
	r.observeMiss(ctx, "item_ingredients", err)
	assocs, err = r.direct.ItemIngredients(ctx, menuItemID)
	if err != nil {
		return nil, err
	}
	if cerr := r.cache.SetItemIngredients(ctx, menuItemID, assocs); cerr != nil {
		r.logger.Warn(ctx, "menu cache repopulation failed", "kind", "item_ingredients", "err", cerr.Error())
	}
	return assocs, nil
}

// Inventory implements Repository.
func (r *CachedRepository) Inventory(ctx context.Context, restaurantID int64) (map[string]InventoryRecord, error) {
	inv, err := r.cache.GetInventory(ctx, restaurantID)
	if err == nil {
		r.metrics.IncCounter(telemetry.MetricMenuCacheHits, 1, "kind", "inventory")
		return inv, nil
	}
	r.observeMiss(ctx, "inventory", err)
	inv, err = r.direct.Inventory(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	if cerr := r.cache.SetInventory(ctx, restaurantID, inv); cerr != nil {
		r.logger.Warn(ctx, "menu cache repopulation failed", "kind", "inventory", "err", cerr.Error())
	}
	return inv, nil
}

// Categories implements Repository. Categories are derived from items so the
// cached item projection serves them too.
func (r *CachedRepository) Categories(ctx context.Context, restaurantID int64) ([]string, error) {
	items, err := r.MenuItems(ctx, restaurantID)
	if err != nil {
		return r.direct.Categories(ctx, restaurantID)
	}
	seen := make(map[string]struct{})
	var cats []string
	for _, it := range items {
		if _, ok := seen[it.Category]; ok {
			continue
		}
		seen[it.Category] = struct{}{}
		cats = append(cats, it.Category)
	}
	return cats, nil
}

func (r *CachedRepository) observeMiss(ctx context.Context, kind string, err error) {
	r.metrics.IncCounter(telemetry.MetricMenuCacheMiss, 1, "kind", kind)
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn(ctx, "menu cache read failed, using direct store", "kind", kind, "err", err.Error())
	}
}
