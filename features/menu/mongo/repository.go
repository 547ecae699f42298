// Package mongo provides the MongoDB-backed menu repository. It serves the
// read side of the menu read model and the write side used by out-of-band
// import tooling.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"

	"github.com/curbvoice/curbvoice/runtime/convo/menu"
)

const (
	defaultItemsCollection           = "menu_items"
	defaultIngredientsCollection     = "ingredients"
	defaultItemIngredientsCollection = "item_ingredients"
	defaultInventoryCollection       = "inventory"
	defaultOpTimeout                 = 5 * time.Second
	menuClientName                   = "menu-mongo"
)

// Options configures the Mongo menu repository.
type Options struct {
	Client                    *mongodriver.Client
	Database                  string
	ItemsCollection           string
	IngredientsCollection     string
	ItemIngredientsCollection string
	InventoryCollection       string
	Timeout                   time.Duration
}

// Repository implements menu.Repository on MongoDB. It also exposes the
// upsert and delete operations menu import tooling uses; the conversation
// pipeline itself never writes menu data.
type Repository struct {
	mongo       *mongodriver.Client
	items       collection
	ingredients collection
	assocs      collection
	inventory   collection
	timeout     time.Duration
}

var _ menu.Repository = (*Repository)(nil)
var _ health.Pinger = (*Repository)(nil)

// New returns a menu repository backed by MongoDB.
func New(opts Options) (*Repository, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	itemsCollection := opts.ItemsCollection
	if itemsCollection == "" {
		itemsCollection = defaultItemsCollection
	}
	ingredientsCollection := opts.IngredientsCollection
	if ingredientsCollection == "" {
		ingredientsCollection = defaultIngredientsCollection
	}
	assocsCollection := opts.ItemIngredientsCollection
	if assocsCollection == "" {
		assocsCollection = defaultItemIngredientsCollection
	}
	inventoryCollection := opts.InventoryCollection
	if inventoryCollection == "" {
		inventoryCollection = defaultInventoryCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	db := opts.Client.Database(opts.Database)
	items := mongoCollection{coll: db.Collection(itemsCollection)}
	ingredients := mongoCollection{coll: db.Collection(ingredientsCollection)}
	assocs := mongoCollection{coll: db.Collection(assocsCollection)}
	inventory := mongoCollection{coll: db.Collection(inventoryCollection)}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, items, ingredients, assocs, inventory); err != nil {
		return nil, err
	}
	return newRepositoryWithCollections(opts.Client, items, ingredients, assocs, inventory, timeout)
}

// Name implements health.Pinger.
func (r *Repository) Name() string {
	return menuClientName
}

// Ping implements health.Pinger.
func (r *Repository) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return r.mongo.Ping(ctx, readpref.Primary())
}

// MenuItems implements menu.Repository.
func (r *Repository) MenuItems(ctx context.Context, restaurantID int64) ([]menu.Item, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	cur, err := r.items.Find(ctx, bson.M{"restaurant_id": restaurantID},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []menu.Item
	for cur.Next(ctx) {
		var doc itemDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		item, err := doc.toItem()
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ingredients implements menu.Repository.
func (r *Repository) Ingredients(ctx context.Context, restaurantID int64) ([]menu.Ingredient, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	cur, err := r.ingredients.Find(ctx, bson.M{"restaurant_id": restaurantID},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []menu.Ingredient
	for cur.Next(ctx) {
		var doc ingredientDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ing, err := doc.toIngredient()
		if err != nil {
			return nil, err
		}
		out = append(out, ing)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ItemIngredients implements menu.Repository.
func (r *Repository) ItemIngredients(ctx context.Context, menuItemID string) ([]menu.ItemIngredient, error) {
	if menuItemID == "" {
		return nil, errors.New("menu item id is required")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	cur, err := r.assocs.Find(ctx, bson.M{"menu_item_id": menuItemID})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	var out []menu.ItemIngredient
	for cur.Next(ctx) {
		var doc itemIngredientDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		assoc, err := doc.toItemIngredient()
		if err != nil {
			return nil, err
		}
		out = append(out, assoc)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Inventory implements menu.Repository.
func (r *Repository) Inventory(ctx context.Context, restaurantID int64) (map[string]menu.InventoryRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	cur, err := r.inventory.Find(ctx, bson.M{"restaurant_id": restaurantID})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = cur.Close(ctx)
	}()
	out := make(map[string]menu.InventoryRecord)
	for cur.Next(ctx) {
		var doc inventoryDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		rec, err := doc.toRecord()
		if err != nil {
			return nil, err
		}
		out[rec.IngredientID] = rec
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Categories implements menu.Repository.
func (r *Repository) Categories(ctx context.Context, restaurantID int64) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	values, err := r.items.Distinct(ctx, "category", bson.M{"restaurant_id": restaurantID})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("category value %v is not a string", v)
		}
		out = append(out, s)
	}
	return out, nil
}

// UpsertItem creates or replaces a menu item. Used by import tooling.
func (r *Repository) UpsertItem(ctx context.Context, item menu.Item) error {
	if item.ID == "" {
		return errors.New("item id is required")
	}
	if item.RestaurantID == 0 {
		return errors.New("restaurant id is required")
	}
	doc := fromItem(item)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"item_id": doc.ItemID}
	update := bson.M{
		"$set": bson.M{
			"item_id":       doc.ItemID,
			"restaurant_id": doc.RestaurantID,
			"name":          doc.Name,
			"category":      doc.Category,
			"price":         doc.Price,
			"is_available":  doc.IsAvailable,
			"tags":          doc.Tags,
		},
	}
	_, err := r.items.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// UpsertIngredient creates or replaces an ingredient. Used by import tooling.
func (r *Repository) UpsertIngredient(ctx context.Context, ing menu.Ingredient) error {
	if ing.ID == "" {
		return errors.New("ingredient id is required")
	}
	if ing.RestaurantID == 0 {
		return errors.New("restaurant id is required")
	}
	doc := fromIngredient(ing)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"ingredient_id": doc.IngredientID}
	update := bson.M{
		"$set": bson.M{
			"ingredient_id": doc.IngredientID,
			"restaurant_id": doc.RestaurantID,
			"name":          doc.Name,
			"unit_cost":     doc.UnitCost,
			"is_allergen":   doc.IsAllergen,
			"allergen_type": doc.AllergenType,
		},
	}
	_, err := r.ingredients.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// UpsertItemIngredient creates or replaces an item-ingredient association.
func (r *Repository) UpsertItemIngredient(ctx context.Context, assoc menu.ItemIngredient) error {
	if assoc.MenuItemID == "" {
		return errors.New("menu item id is required")
	}
	if assoc.IngredientID == "" {
		return errors.New("ingredient id is required")
	}
	doc := fromItemIngredient(assoc)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"menu_item_id": doc.MenuItemID, "ingredient_id": doc.IngredientID}
	update := bson.M{
		"$set": bson.M{
			"menu_item_id":    doc.MenuItemID,
			"ingredient_id":   doc.IngredientID,
			"quantity":        doc.Quantity,
			"unit":            doc.Unit,
			"is_optional":     doc.IsOptional,
			"additional_cost": doc.AdditionalCost,
		},
	}
	_, err := r.assocs.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// UpsertInventory creates or replaces the inventory record of one ingredient.
func (r *Repository) UpsertInventory(ctx context.Context, restaurantID int64, rec menu.InventoryRecord) error {
	if restaurantID == 0 {
		return errors.New("restaurant id is required")
	}
	if rec.IngredientID == "" {
		return errors.New("ingredient id is required")
	}
	doc := fromRecord(restaurantID, rec)
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"restaurant_id": restaurantID, "ingredient_id": doc.IngredientID}
	update := bson.M{
		"$set": bson.M{
			"restaurant_id": doc.RestaurantID,
			"ingredient_id": doc.IngredientID,
			"current_stock": doc.CurrentStock,
			"min_stock":     doc.MinStock,
			"is_low_stock":  doc.IsLowStock,
		},
	}
	_, err := r.inventory.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

// DeleteItem removes a menu item and its ingredient associations.
func (r *Repository) DeleteItem(ctx context.Context, menuItemID string) error {
	if menuItemID == "" {
		return errors.New("menu item id is required")
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := r.items.DeleteOne(ctx, bson.M{"item_id": menuItemID}); err != nil {
		return err
	}
	_, err := r.assocs.DeleteMany(ctx, bson.M{"menu_item_id": menuItemID})
	return err
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Prices and quantities are stored as decimal strings so values round-trip
// without binary floating point drift.
type itemDocument struct {
	ItemID       string   `bson:"item_id"`
	RestaurantID int64    `bson:"restaurant_id"`
	Name         string   `bson:"name"`
	Category     string   `bson:"category"`
	Price        string   `bson:"price"`
	IsAvailable  bool     `bson:"is_available"`
	Tags         []string `bson:"tags,omitempty"`
}

type ingredientDocument struct {
	IngredientID string `bson:"ingredient_id"`
	RestaurantID int64  `bson:"restaurant_id"`
	Name         string `bson:"name"`
	UnitCost     string `bson:"unit_cost"`
	IsAllergen   bool   `bson:"is_allergen"`
	AllergenType string `bson:"allergen_type,omitempty"`
}

type itemIngredientDocument struct {
	MenuItemID     string `bson:"menu_item_id"`
	IngredientID   string `bson:"ingredient_id"`
	Quantity       string `bson:"quantity"`
	Unit           string `bson:"unit"`
	IsOptional     bool   `bson:"is_optional"`
	AdditionalCost string `bson:"additional_cost"`
}

type inventoryDocument struct {
	RestaurantID int64  `bson:"restaurant_id"`
	IngredientID string `bson:"ingredient_id"`
	CurrentStock string `bson:"current_stock"`
	MinStock     string `bson:"min_stock"`
	IsLowStock   bool   `bson:"is_low_stock"`
}

func fromItem(item menu.Item) itemDocument {
	return itemDocument{
		ItemID:       item.ID,
		RestaurantID: item.RestaurantID,
		Name:         item.Name,
		Category:     item.Category,
		Price:        item.Price.String(),
		IsAvailable:  item.IsAvailable,
		Tags:         item.Tags,
	}
}

func (doc itemDocument) toItem() (menu.Item, error) {
	price, err := decimal.NewFromString(doc.Price)
	if err != nil {
		return menu.Item{}, fmt.Errorf("item %s price %q: %w", doc.ItemID, doc.Price, err)
	}
	return menu.Item{
		ID:           doc.ItemID,
		RestaurantID: doc.RestaurantID,
		Name:         doc.Name,
		Category:     doc.Category,
		Price:        price,
		IsAvailable:  doc.IsAvailable,
		Tags:         doc.Tags,
	}, nil
}

func fromIngredient(ing menu.Ingredient) ingredientDocument {
	return ingredientDocument{
		IngredientID: ing.ID,
		RestaurantID: ing.RestaurantID,
		Name:         ing.Name,
		UnitCost:     ing.UnitCost.String(),
		IsAllergen:   ing.IsAllergen,
		AllergenType: ing.AllergenType,
	}
}

func (doc ingredientDocument) toIngredient() (menu.Ingredient, error) {
	cost, err := decimal.NewFromString(doc.UnitCost)
	if err != nil {
		return menu.Ingredient{}, fmt.Errorf("ingredient %s unit_cost %q: %w", doc.IngredientID, doc.UnitCost, err)
	}
	return menu.Ingredient{
		ID:           doc.IngredientID,
		RestaurantID: doc.RestaurantID,
		Name:         doc.Name,
		UnitCost:     cost,
		IsAllergen:   doc.IsAllergen,
		AllergenType: doc.AllergenType,
	}, nil
}

func fromItemIngredient(assoc menu.ItemIngredient) itemIngredientDocument {
	return itemIngredientDocument{
		MenuItemID:     assoc.MenuItemID,
		IngredientID:   assoc.IngredientID,
		Quantity:       assoc.Quantity.String(),
		Unit:           assoc.Unit,
		IsOptional:     assoc.IsOptional,
		AdditionalCost: assoc.AdditionalCost.String(),
	}
}

func (doc itemIngredientDocument) toItemIngredient() (menu.ItemIngredient, error) {
	qty, err := decimal.NewFromString(doc.Quantity)
	if err != nil {
		return menu.ItemIngredient{}, fmt.Errorf("association %s/%s quantity %q: %w",
			doc.MenuItemID, doc.IngredientID, doc.Quantity, err)
	}
	cost, err := decimal.NewFromString(doc.AdditionalCost)
	if err != nil {
		return menu.ItemIngredient{}, fmt.Errorf("association %s/%s additional_cost %q: %w",
			doc.MenuItemID, doc.IngredientID, doc.AdditionalCost, err)
	}
	return menu.ItemIngredient{
		MenuItemID:     doc.MenuItemID,
		IngredientID:   doc.IngredientID,
		Quantity:       qty,
		Unit:           doc.Unit,
		IsOptional:     doc.IsOptional,
		AdditionalCost: cost,
	}, nil
}

func fromRecord(restaurantID int64, rec menu.InventoryRecord) inventoryDocument {
	return inventoryDocument{
		RestaurantID: restaurantID,
		IngredientID: rec.IngredientID,
		CurrentStock: rec.CurrentStock.String(),
		MinStock:     rec.MinStock.String(),
		IsLowStock:   rec.IsLowStock,
	}
}

func (doc inventoryDocument) toRecord() (menu.InventoryRecord, error) {
	stock, err := decimal.NewFromString(doc.CurrentStock)
	if err != nil {
		return menu.InventoryRecord{}, fmt.Errorf("inventory %s current_stock %q: %w",
			doc.IngredientID, doc.CurrentStock, err)
	}
	minStock, err := decimal.NewFromString(doc.MinStock)
	if err != nil {
		return menu.InventoryRecord{}, fmt.Errorf("inventory %s min_stock %q: %w",
			doc.IngredientID, doc.MinStock, err)
	}
	return menu.InventoryRecord{
		IngredientID: doc.IngredientID,
		CurrentStock: stock,
		MinStock:     minStock,
		IsLowStock:   doc.IsLowStock,
	}, nil
}

func ensureIndexes(ctx context.Context, items, ingredients, assocs, inventory collection) error {
	itemIDIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "item_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := items.Indexes().CreateOne(ctx, itemIDIndex); err != nil {
		return err
	}
	itemRestaurantIndex := mongodriver.IndexModel{
		Keys: bson.D{{Key: "restaurant_id", Value: 1}},
	}
	if _, err := items.Indexes().CreateOne(ctx, itemRestaurantIndex); err != nil {
		return err
	}
	ingredientIDIndex := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "ingredient_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := ingredients.Indexes().CreateOne(ctx, ingredientIDIndex); err != nil {
		return err
	}
	ingredientRestaurantIndex := mongodriver.IndexModel{
		Keys: bson.D{{Key: "restaurant_id", Value: 1}},
	}
	if _, err := ingredients.Indexes().CreateOne(ctx, ingredientRestaurantIndex); err != nil {
		return err
	}
	assocIndex := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "menu_item_id", Value: 1},
			{Key: "ingredient_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := assocs.Indexes().CreateOne(ctx, assocIndex); err != nil {
		return err
	}
	inventoryIndex := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "restaurant_id", Value: 1},
			{Key: "ingredient_id", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := inventory.Indexes().CreateOne(ctx, inventoryIndex); err != nil {
		return err
	}
	return nil
}

func newRepositoryWithCollections(mongoClient *mongodriver.Client,
	items, ingredients, assocs, inventory collection, timeout time.Duration) (*Repository, error) {
	if items == nil || ingredients == nil || assocs == nil || inventory == nil {
		return nil, errors.New("collections are required")
	}
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &Repository{
		mongo:       mongoClient,
		items:       items,
		ingredients: ingredients,
		assocs:      assocs,
		inventory:   inventory,
		timeout:     timeout,
	}, nil
}

type collection interface {
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error)
	Distinct(ctx context.Context, fieldName string, filter any,
		opts ...*options.DistinctOptions) ([]any, error)
	UpdateOne(ctx context.Context, filter any, update any,
		opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any,
		opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error)
	DeleteMany(ctx context.Context, filter any,
		opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel,
		opts ...*options.CreateIndexesOptions) (string, error)
}

type cursor interface {
	Close(ctx context.Context) error
	Decode(val any) error
	Err() error
	Next(ctx context.Context) bool
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) Distinct(ctx context.Context, fieldName string, filter any,
	opts ...*options.DistinctOptions) ([]any, error) {
	return c.coll.Distinct(ctx, fieldName, filter, opts...)
}

func (c mongoCollection) UpdateOne(ctx context.Context, filter any, update any,
	opts ...*options.UpdateOptions) (*mongodriver.UpdateResult, error) {
	return c.coll.UpdateOne(ctx, filter, update, opts...)
}

func (c mongoCollection) DeleteOne(ctx context.Context, filter any,
	opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	return c.coll.DeleteOne(ctx, filter, opts...)
}

func (c mongoCollection) DeleteMany(ctx context.Context, filter any,
	opts ...*options.DeleteOptions) (*mongodriver.DeleteResult, error) {
	return c.coll.DeleteMany(ctx, filter, opts...)
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

func (c mongoCursor) Decode(val any) error {
	return c.cur.Decode(val)
}

func (c mongoCursor) Err() error {
	return c.cur.Err()
}

func (c mongoCursor) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel,
	opts ...*options.CreateIndexesOptions) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
