package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/curbvoice/curbvoice/runtime/convo/clock"
	"github.com/curbvoice/curbvoice/runtime/convo/menu"
	"github.com/curbvoice/curbvoice/runtime/convo/order"
	"github.com/curbvoice/curbvoice/runtime/convo/telemetry"
)

type (
	// ExecContext carries the per-turn identifiers the bus needs to execute
	// a batch.
	ExecContext struct {
		SessionID    string
		RestaurantID int64
		OrderID      string
		// LastMentionedLine is the line ID the session most recently added
		// or modified, used to resolve symbolic targets.
		LastMentionedLine string
	}

	// Limits bounds what a single order may accumulate.
	Limits struct {
		MaxQuantityPerItem int
		MaxItemsPerOrder   int
		MaxOrderTotal      decimal.Decimal
	}

	// BusOptions configures a Bus.
	BusOptions struct {
		// Limits defaults to 10 per item, 50 per order, $200 total.
		Limits Limits
		// EnableOrderLimits toggles the Limits checks.
		EnableOrderLimits bool
		// EnableCustomizationValidation toggles modifier validation.
		EnableCustomizationValidation bool
		// EnableInventoryChecking toggles stock checks on ADD_ITEM.
		EnableInventoryChecking bool
		// AllowNegativeInventory skips the stock sufficiency check while
		// still recording usage. Default true.
		AllowNegativeInventory bool
		// UnknownIngredientPolicy defaults to warn.
		UnknownIngredientPolicy UnknownIngredientPolicy
		// TaxRate is the fraction applied to the subtotal. Defaults to zero.
		TaxRate decimal.Decimal
		// OrderTTL is the order store TTL refreshed on every write.
		OrderTTL time.Duration
		// StoreTimeout bounds each order store call. Defaults to 5s.
		StoreTimeout time.Duration
		// HoursAnswer is the text spoken for opening-hours questions.
		HoursAnswer string
		Clock       clock.Clock
		Logger      telemetry.Logger
		Metrics     telemetry.Metrics
	}

	// Bus executes validated commands against the order store, applies the
	// aggregate invariants and categorizes every result.
	Bus struct {
		menu       menu.Source
		orders     order.Store
		customizer *Customizer
		limits     Limits
		orderLimit bool
		custom     bool
		inventory  bool
		negativeOK bool
		taxRate    decimal.Decimal
		orderTTL   time.Duration
		storeTO    time.Duration
		hours      string
		clock      clock.Clock
		logger     telemetry.Logger
		metrics    telemetry.Metrics
		newLineID  func() string
	}
)

// DefaultLimits are the stock order limits.
func DefaultLimits() Limits {
	return Limits{
		MaxQuantityPerItem: 10,
		MaxItemsPerOrder:   50,
		MaxOrderTotal:      decimal.NewFromInt(200),
	}
}

const defaultHoursAnswer = "We're open every day from 10 AM to 10 PM."

// NewBus builds a command bus over the given menu source and order store.
func NewBus(src menu.Source, orders order.Store, opts BusOptions) (*Bus, error) {
	if src == nil {
		return nil, errors.New("command: menu source is required")
	}
	if orders == nil {
		return nil, errors.New("command: order store is required")
	}
	limits := opts.Limits
	if limits.MaxQuantityPerItem <= 0 {
		limits.MaxQuantityPerItem = DefaultLimits().MaxQuantityPerItem
	}
	if limits.MaxItemsPerOrder <= 0 {
		limits.MaxItemsPerOrder = DefaultLimits().MaxItemsPerOrder
	}
	if limits.MaxOrderTotal.IsZero() {
		limits.MaxOrderTotal = DefaultLimits().MaxOrderTotal
	}
	customizer, err := NewCustomizer(src, opts.UnknownIngredientPolicy)
	if err != nil {
		return nil, err
	}
	ttl := opts.OrderTTL
	if ttl <= 0 {
		ttl = order.DefaultTTL
	}
	storeTO := opts.StoreTimeout
	if storeTO <= 0 {
		storeTO = 5 * time.Second
	}
	hours := opts.HoursAnswer
	if hours == "" {
		hours = defaultHoursAnswer
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Bus{
		menu:       src,
		orders:     orders,
		customizer: customizer,
		limits:     limits,
		orderLimit: opts.EnableOrderLimits,
		custom:     opts.EnableCustomizationValidation,
		inventory:  opts.EnableInventoryChecking,
		negativeOK: opts.AllowNegativeInventory,
		taxRate:    opts.TaxRate,
		orderTTL:   ttl,
		storeTO:    storeTO,
		hours:      hours,
		clock:      clk,
		logger:     logger,
		metrics:    metrics,
		newLineID:  uuid.NewString,
	}, nil
}

/// Execute runs the batch in order. Commands execute independently: one
// failure never aborts the batch. A SYSTEM failure still lets the remaining
// commands run but forces the batch follow-up to STOP via the outcome
// derivation.
func (b *Bus) Execute(ctx context.Context, ec ExecContext, cmds []Command) BatchResult {
	results := make([]Result, 0, len(cmds))
	for _, cmd := range cmds {
		res := b.executeOne(ctx, ec, cmd)
		results = append(results, res)
		b.metrics.IncCounter(telemetry.MetricCommandResults, 1,
			"kind", string(cmd.Kind()), "status", string(res.Status), "code", string(res.ErrorCode))
		if res.Status == StatusError {
			b.logger.Info(ctx, "command failed",
				"kind", string(cmd.Kind()), "category", string(res.ErrorCategory),
				"code", string(res.ErrorCode), "message", res.Message)
		}
	}
	return Derive(results)
}

// executeOne runs one command inside its own unit of work, converting panics
// into SYSTEM/INTERNAL_ERROR results so a handler bug degrades one command,
// not the session.
func (b *Bus) executeOne(ctx context.Context, ec ExecContext, cmd Command) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(ctx, "command handler panicked", "kind", string(cmd.Kind()), "panic", fmt.Sprint(r))
			res = errorResult(cmd, CategorySystem, CodeInternalError, "internal error executing command")
		}
	}()

	switch c := cmd.(type) {
	case AddItem:
		return b.handleAdd(ctx, ec, c)
	case RemoveItem:
		return b.handleRemove(ctx, ec, c)
	case ModifyItem:
		return b.handleModify(ctx, ec, c)
	case ClearOrder:
		return b.handleClear(ctx, ec, c)
	case ConfirmOrder:
		return b.handleConfirm(ctx, ec, c)
	case Question:
		return b.handleQuestion(ctx, ec, c)
	case ItemUnavailable:
		return b.handleItemUnavailable(c)
	case ClarificationNeeded:
		return b.handleClarification(c)
	case Unknown:
		return b.handleUnknown(c)
	default:
		return errorResult(cmd, CategorySystem, CodeInternalError, fmt.Sprintf("unhandled command kind %s", cmd.Kind()))
	}
}

func (b *Bus) handleAdd(ctx context.Context, ec ExecContext, cmd AddItem) Result {
	if cmd.Quantity < 1 {
		return errorResult(cmd, CategoryValidation, CodeInvalidQuantity, "quantity must be at least 1")
	}
	if b.orderLimit && cmd.Quantity > b.limits.MaxQuantityPerItem {
		return errorResult(cmd, CategoryBusiness, CodeQuantityExceedsLimit,
			fmt.Sprintf("at most %d of one item per order", b.limits.MaxQuantityPerItem))
	}

	item, err := b.menu.ItemByID(ctx, ec.RestaurantID, cmd.MenuItemID)
	if errors.Is(err, menu.ErrItemNotFound) {
		return errorResult(cmd, CategoryBusiness, CodeItemNotFound, "that item isn't on the menu")
	}
	if err != nil {
		return errorResult(cmd, CategorySystem, CodeDatabaseError, "menu lookup failed")
	}
	if !item.IsAvailable {
		return errorResult(cmd, CategoryBusiness, CodeItemUnavailable,
			fmt.Sprintf("%s is not available right now", item.Name))
	}
	if !sizeAllowed(item, cmd.Size) {
		return errorResult(cmd, CategoryBusiness, CodeSizeNotAvailable,
			fmt.Sprintf("%s doesn't come in %s", item.Name, cmd.Size))
	}

	modifiers := cmd.Modifiers
	extraCost := decimal.Zero
	var dropped []string
	if b.custom {
		cust, cerr := b.customizer.Validate(ctx, ec.RestaurantID, item.ID, cmd.Modifiers)
		if cerr != nil {
			return errorResult(cmd, CategorySystem, CodeDatabaseError, "customization lookup failed")
		}
		if cust.Failure != nil {
			return errorResult(cmd, CategoryBusiness, cust.Failure.Code, cust.Failure.Message)
		}
		modifiers = cust.Accepted
		extraCost = cust.ExtraCost
		dropped = cust.Dropped
	}

	if b.inventory && !b.negativeOK {
		if res, ok := b.checkInventory(ctx, ec.RestaurantID, item, cmd.Quantity); !ok {
			res.Command = cmd
			return res
		}
	}

	agg, res, ok := b.loadOrCreate(ctx, ec, cmd)
	if !ok {
		return res
	}
	if agg.Status != order.StatusActive {
		return errorResult(cmd, CategoryBusiness, "", "the order is already confirmed")
	}
	if b.orderLimit && agg.ItemCount()+cmd.Quantity > b.limits.MaxItemsPerOrder {
		return errorResult(cmd, CategoryBusiness, CodeQuantityExceedsLimit,
			fmt.Sprintf("orders are limited to %d items", b.limits.MaxItemsPerOrder))
	}

	line := order.Line{
		LineID:              b.newLineID(),
		MenuItemID:          item.ID,
		Name:                item.Name,
		Quantity:            cmd.Quantity,
		Size:                cmd.Size,
		Modifiers:           modifiers,
		SpecialInstructions: cmd.SpecialInstructions,
		UnitPrice:           item.Price,
		ExtraCost:           extraCost,
	}
	agg.Items = append(agg.Items, line)
	agg.Recalculate(b.taxRate)
	if b.orderLimit && agg.Total.GreaterThan(b.limits.MaxOrderTotal) {
		return errorResult(cmd, CategoryBusiness, CodeQuantityExceedsLimit,
			fmt.Sprintf("orders are limited to $%s", b.limits.MaxOrderTotal.StringFixed(2)))
	}
	if res, ok := b.save(ctx, agg, cmd); !ok {
		return res
	}

	data := map[string]any{
		"line_id":   line.LineID,
		"item_name": item.Name,
		"quantity":  cmd.Quantity,
		"total":     agg.Total.StringFixed(2),
	}
	if len(dropped) > 0 {
		return warningResult(cmd,
			fmt.Sprintf("added %s, but we can't add %s", item.Name, joinAnd(dropped)),
			CodeModifierAddNotAllowed, data)
	}
	return successResult(cmd, fmt.Sprintf("added %d x %s", cmd.Quantity, item.Name), data)
}

func (b *Bus) handleRemove(ctx context.Context, ec ExecContext, cmd RemoveItem) Result {
	agg, res, ok := b.load(ctx, ec, cmd)
	if !ok {
		return res
	}
	if agg.Status != order.StatusActive {
		return errorResult(cmd, CategoryBusiness, "", "the order is already confirmed")
	}
	line := resolveTarget(&agg, ec, cmd.OrderItemID, cmd.TargetRef)
	if line == nil {
		return errorResult(cmd, CategoryBusiness, CodeItemNotFound, "I couldn't find that item in your order")
	}
	name := line.Name
	agg.RemoveLine(line.LineID)
	agg.Recalculate(b.taxRate)
	if res, ok := b.save(ctx, agg, cmd); !ok {
		return res
	}
	return successResult(cmd, fmt.Sprintf("removed %s", name), map[string]any{
		"item_name": name,
		"total":     agg.Total.StringFixed(2),
	})
}

func (b *Bus) handleModify(ctx context.Context, ec ExecContext, cmd ModifyItem) Result {
	ch := cmd.Changes
	if conflictingChanges(ch) {
		return errorResult(cmd, CategoryValidation, CodeModifierConflict,
			"those changes contradict each other")
	}

	agg, res, ok := b.load(ctx, ec, cmd)
	if !ok {
		return res
	}
	if agg.Status != order.StatusActive {
		return errorResult(cmd, CategoryBusiness, "", "the order is already confirmed")
	}
	line := resolveTarget(&agg, ec, cmd.OrderItemID, cmd.TargetRef)
	if line == nil {
		return errorResult(cmd, CategoryBusiness, CodeItemNotFound, "I couldn't find that item in your order")
	}

	if ch.HasQuantity {
		if ch.SetQuantity < 1 {
			return errorResult(cmd, CategoryValidation, CodeInvalidQuantity, "quantity must be at least 1")
		}
		if b.orderLimit && ch.SetQuantity > b.limits.MaxQuantityPerItem {
			return errorResult(cmd, CategoryBusiness, CodeQuantityExceedsLimit,
				fmt.Sprintf("at most %d of one item per order", b.limits.MaxQuantityPerItem))
		}
	}
	if ch.SetSize != "" {
		item, err := b.menu.ItemByID(ctx, ec.RestaurantID, line.MenuItemID)
		if err != nil {
			return errorResult(cmd, CategorySystem, CodeDatabaseError, "menu lookup failed")
		}
		if !sizeAllowed(item, ch.SetSize) {
			return errorResult(cmd, CategoryBusiness, CodeSizeNotAvailable,
				fmt.Sprintf("%s doesn't come in %s", line.Name, ch.SetSize))
		}
	}

	modifiers := applyModifierChanges(line.Modifiers, ch)
	if b.custom {
		cust, cerr := b.customizer.Validate(ctx, ec.RestaurantID, line.MenuItemID, modifiers)
		if cerr != nil {
			return errorResult(cmd, CategorySystem, CodeDatabaseError, "customization lookup failed")
		}
		if cust.Failure != nil {
			return errorResult(cmd, CategoryBusiness, cust.Failure.Code, cust.Failure.Message)
		}
		line.Modifiers = cust.Accepted
		line.ExtraCost = cust.ExtraCost
	} else {
		line.Modifiers = modifiers
	}

	if ch.HasQuantity {
		line.Quantity = ch.SetQuantity
	}
	if ch.SetSize != "" {
		line.Size = ch.SetSize
	}
	if ch.ClearSpecialInstructions {
		line.SpecialInstructions = ""
	} else if ch.SetSpecialInstructions != "" {
		line.SpecialInstructions = ch.SetSpecialInstructions
	}

	agg.Recalculate(b.taxRate)
	if res, ok := b.save(ctx, agg, cmd); !ok {
		return res
	}
	return successResult(cmd, fmt.Sprintf("updated %s", line.Name), map[string]any{
		"line_id":   line.LineID,
		"item_name": line.Name,
		"total":     agg.Total.StringFixed(2),
	})
}

func (b *Bus) handleClear(ctx context.Context, ec ExecContext, cmd ClearOrder) Result {
	agg, res, ok := b.loadOrCreate(ctx, ec, cmd)
	if !ok {
		return res
	}
	if agg.Status != order.StatusActive {
		return errorResult(cmd, CategoryBusiness, "", "the order is already confirmed")
	}
	agg.Items = nil
	agg.Recalculate(b.taxRate)
	if res, ok := b.save(ctx, agg, cmd); !ok {
		return res
	}
	return successResult(cmd, "order cleared", map[string]any{"total": agg.Total.StringFixed(2)})
}

func (b *Bus) handleConfirm(ctx context.Context, ec ExecContext, cmd ConfirmOrder) Result {
	agg, err := b.loadRaw(ctx, ec.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		return errorResult(cmd, CategoryBusiness, "", "Cannot confirm empty order")
	}
	if err != nil {
		return errorResult(cmd, CategorySystem, CodeDatabaseError, "order lookup failed")
	}
	if len(agg.Items) == 0 {
		return errorResult(cmd, CategoryBusiness, "", "Cannot confirm empty order")
	}
	if agg.Status != order.StatusActive {
		return errorResult(cmd, CategoryBusiness, "", "the order is already confirmed")
	}
	now := b.clock.Now()
	agg.Status = order.StatusConfirmed
	agg.ConfirmedAt = &now
	agg.Recalculate(b.taxRate)
	if res, ok := b.save(ctx, agg, cmd); !ok {
		return res
	}
	return successResult(cmd, "order confirmed", map[string]any{
		"total":      agg.Total.StringFixed(2),
		"item_count": agg.ItemCount(),
	})
}

// handleQuestion answers customer questions deterministically from the menu
// read model; no LLM call happens inside the bus.
func (b *Bus) handleQuestion(ctx context.Context, ec ExecContext, cmd Question) Result {
	answer := ""
	switch cmd.Category {
	case QuestionCategoryMenu:
		answer = b.answerMenu(ctx, ec.RestaurantID)
	case QuestionCategoryPricing:
		answer = b.answerPricing(ctx, ec.RestaurantID, cmd.Question)
	case QuestionCategoryHours:
		answer = b.hours
	case QuestionCategoryAllergens:
		answer = b.answerAllergens(ctx, ec.RestaurantID)
	default:
		answer = "I can help with our menu, prices and allergens. What would you like to know?"
	}
	if answer == "" {
		answer = "I'm not sure about that one, sorry."
	}
	return successResult(cmd, "question answered", map[string]any{
		"answer":   answer,
		"category": cmd.Category,
	})
}

func (b *Bus) handleItemUnavailable(cmd ItemUnavailable) Result {
	message := cmd.Message
	if message == "" {
		message = fmt.Sprintf("Sorry, we don't have %s.", cmd.RequestedItem)
	}
	return successResult(cmd, message, map[string]any{
		"category":       "item_unavailable",
		"requested_item": cmd.RequestedItem,
	})
}

func (b *Bus) handleClarification(cmd ClarificationNeeded) Result {
	return successResult(cmd, cmd.ClarificationQuestion, map[string]any{
		"ambiguous_item":         cmd.AmbiguousItem,
		"suggested_options":      cmd.SuggestedOptions,
		"clarification_question": cmd.ClarificationQuestion,
	})
}

func (b *Bus) handleUnknown(cmd Unknown) Result {
	question := cmd.ClarifyingQuestion
	if question == "" {
		question = "Sorry, could you say that again?"
	}
	return successResult(cmd, question, map[string]any{"clarifying_question": question})
}

// --- order store plumbing ---

func (b *Bus) loadRaw(ctx context.Context, orderID string) (order.Aggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, b.storeTO)
	defer cancel()
	return b.orders.Get(ctx, orderID)
}

// load fetches the aggregate and maps store failures to categorized results.
func (b *Bus) load(ctx context.Context, ec ExecContext, cmd Command) (order.Aggregate, Result, bool) {
	agg, err := b.loadRaw(ctx, ec.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		return order.Aggregate{}, errorResult(cmd, CategoryBusiness, CodeItemNotFound, "your order is empty"), false
	}
	if err != nil {
		return order.Aggregate{}, errorResult(cmd, CategorySystem, CodeDatabaseError, "order lookup failed"), false
	}
	return agg, Result{}, true
}

// loadOrCreate fetches the aggregate, creating a fresh active one when the
// session has not ordered yet.
func (b *Bus) loadOrCreate(ctx context.Context, ec ExecContext, cmd Command) (order.Aggregate, Result, bool) {
	agg, err := b.loadRaw(ctx, ec.OrderID)
	if errors.Is(err, order.ErrNotFound) {
		now := b.clock.Now()
		agg = order.Aggregate{
			ID:           ec.OrderID,
			SessionID:    ec.SessionID,
			RestaurantID: ec.RestaurantID,
			Status:       order.StatusActive,
			Subtotal:     decimal.Zero,
			Tax:          decimal.Zero,
			Total:        decimal.Zero,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return agg, Result{}, true
	}
	if err != nil {
		return order.Aggregate{}, errorResult(cmd, CategorySystem, CodeDatabaseError, "order lookup failed"), false
	}
	return agg, Result{}, true
}

func (b *Bus) save(ctx context.Context, agg order.Aggregate, cmd Command) (Result, bool) {
	agg.UpdatedAt = b.clock.Now()
	sctx, cancel := context.WithTimeout(ctx, b.storeTO)
	defer cancel()
	if err := b.orders.Upsert(sctx, agg, b.orderTTL); err != nil {
		return errorResult(cmd, CategorySystem, CodeDatabaseError, "order save failed"), false
	}
	return Result{}, true
}

// --- inventory ---

// checkInventory verifies stock for every ingredient of the item. Ingredients
// without an inventory record are treated as unconstrained.
func (b *Bus) checkInventory(ctx context.Context, restaurantID int64, item menu.Item, quantity int) (Result, bool) {
	assocs, err := b.menu.IngredientsOf(ctx, item.ID)
	if err != nil {
		return errorResult(nil, CategorySystem, CodeDatabaseError, "inventory lookup failed"), false
	}
	inv, err := b.menu.Inventory(ctx, restaurantID)
	if err != nil {
		return errorResult(nil, CategorySystem, CodeDatabaseError, "inventory lookup failed"), false
	}
	qty := decimal.NewFromInt(int64(quantity))
	for _, assoc := range assocs {
		rec, ok := inv[assoc.IngredientID]
		if !ok {
			continue
		}
		if rec.CurrentStock.LessThan(assoc.Quantity.Mul(qty)) {
			return errorResult(nil, CategoryBusiness, CodeInventoryShortage,
				fmt.Sprintf("we're out of stock for %s", item.Name)), false
		}
	}
	return Result{}, true
}

// --- target resolution ---

// resolveTarget finds the order line a remove/modify addresses: explicit line
// ID first, then the symbolic reference ("last_item", the session's
// last-mentioned line, or a normalized name match).
func resolveTarget(agg *order.Aggregate, ec ExecContext, orderItemID, targetRef string) *order.Line {
	if orderItemID != "" {
		return agg.FindLine(orderItemID)
	}
	switch targetRef {
	case "":
		if ec.LastMentionedLine != "" {
			if line := agg.FindLine(ec.LastMentionedLine); line != nil {
				return line
			}
		}
		if len(agg.Items) == 1 {
			return &agg.Items[0]
		}
		return nil
	case TargetLastItem:
		if len(agg.Items) == 0 {
			return nil
		}
		return &agg.Items[len(agg.Items)-1]
	}
	if line := agg.FindLine(ec.LastMentionedLine); line != nil && targetRef == ec.LastMentionedLine {
		return line
	}
	normalized := menu.Normalize(targetRef)
	tokens := menu.Tokenize(normalized)
	for i := range agg.Items {
		name := menu.Normalize(agg.Items[i].Name)
		if name == normalized {
			return &agg.Items[i]
		}
		for _, t := range tokens {
			if strings.Contains(name, t) {
				return &agg.Items[i]
			}
		}
	}
	return nil
}

// --- modifier change plumbing ---

// conflictingChanges reports a change set that cannot be applied coherently:
// adding and removing the same modifier, or setting and clearing special
// instructions at once. Detection is eager so no partial mutation happens.
func conflictingChanges(ch Changes) bool {
	if ch.AddModifier != "" && ch.RemoveModifier != "" &&
		menu.Normalize(ch.AddModifier) == menu.Normalize(ch.RemoveModifier) {
		return true
	}
	if ch.ClearSpecialInstructions && ch.SetSpecialInstructions != "" {
		return true
	}
	return false
}

// applyModifierChanges rewrites the modifier list for a modify command.
// Removing an ingredient first drops a matching "extra X" entry; when none
// exists, a "no X" modifier is appended (validated downstream against the
// item's ingredients).
func applyModifierChanges(existing []string, ch Changes) []string {
	out := append([]string(nil), existing...)
	if ch.RemoveModifier != "" {
		target := menu.Normalize(ch.RemoveModifier)
		dropped := false
		for i, m := range out {
			parsed := parseModifier(m)
			if parsed.action == actionAdd && parsed.ingredient == target {
				out = append(out[:i], out[i+1:]...)
				dropped = true
				break
			}
		}
		if !dropped {
			out = append(out, "no "+ch.RemoveModifier)
		}
	}
	if ch.AddModifier != "" {
		parsed := parseModifier(ch.AddModifier)
		if parsed.action == actionPassthrough {
			out = append(out, "extra "+ch.AddModifier)
		} else {
			out = append(out, ch.AddModifier)
		}
	}
	return out
}

// --- question answers ---

func (b *Bus) answerMenu(ctx context.Context, restaurantID int64) string {
	items, err := b.menu.AvailableItems(ctx, restaurantID)
	if err != nil || len(items) == 0 {
		return ""
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
		if len(names) == 8 {
			break
		}
	}
	return "We have " + joinAnd(names) + "."
}

func (b *Bus) answerPricing(ctx context.Context, restaurantID int64, question string) string {
	hits := b.menu.Search(ctx, restaurantID, question)
	if len(hits) > 0 {
		it := hits[0]
		return fmt.Sprintf("%s is $%s.", it.Name, it.Price.StringFixed(2))
	}
	items, err := b.menu.AvailableItems(ctx, restaurantID)
	if err != nil || len(items) == 0 {
		return ""
	}
	min, max := items[0].Price, items[0].Price
	for _, it := range items[1:] {
		if it.Price.LessThan(min) {
			min = it.Price
		}
		if it.Price.GreaterThan(max) {
			max = it.Price
		}
	}
	return fmt.Sprintf("Our items range from $%s to $%s.", min.StringFixed(2), max.StringFixed(2))
}

func (b *Bus) answerAllergens(ctx context.Context, restaurantID int64) string {
	ings, err := b.menu.AllIngredientsWithCosts(ctx, restaurantID)
	if err != nil {
		return ""
	}
	var allergens []string
	for _, ing := range ings {
		if ing.IsAllergen {
			allergens = append(allergens, ing.Name)
		}
	}
	if len(allergens) == 0 {
		return "We don't list any allergens for our menu, but let me know if you have a specific concern."
	}
	sort.Strings(allergens)
	return "Our items may contain " + joinAnd(allergens) + ". Ask me about any specific item."
}

// joinAnd joins a list with commas and a grammatical "and" before the last
// element.
func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " and " + items[1]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
	}
}
