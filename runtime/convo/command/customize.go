package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/curbvoice/curbvoice/runtime/convo/menu"
)

// UnknownIngredientPolicy decides how an "extra X" request for an ingredient
// the restaurant does not stock is treated.
type UnknownIngredientPolicy string

const (
	// UnknownIngredientWarn drops the modifier, keeps the command and
	// surfaces a WARNING (the batch becomes PARTIAL_SUCCESS).
	UnknownIngredientWarn UnknownIngredientPolicy = "warn"
	// UnknownIngredientReject fails the command with
	// MODIFIER_ADD_NOT_ALLOWED.
	UnknownIngredientReject UnknownIngredientPolicy = "reject"
)

type modifierAction int

const (
	actionAdd modifierAction = iota
	actionRemove
	actionPassthrough
)

var (
	removePrefixes = []string{"no ", "without ", "remove ", "hold the ", "hold "}
	addPrefixes    = []string{"extra ", "add ", "added ", "more ", "double "}
)

type parsedModifier struct {
	raw        string
	ingredient string
	action     modifierAction
}

// parseModifier classifies a spoken modifier. Strings with no recognized
// prefix ("plain", "well done") pass through unvalidated and without cost.
func parseModifier(raw string) parsedModifier {
	norm := menu.Normalize(raw)
	for _, p := range removePrefixes {
		if strings.HasPrefix(norm, p) {
			return parsedModifier{raw: raw, ingredient: strings.TrimPrefix(norm, p), action: actionRemove}
		}
	}
	for _, p := range addPrefixes {
		if strings.HasPrefix(norm, p) {
			return parsedModifier{raw: raw, ingredient: strings.TrimPrefix(norm, p), action: actionAdd}
		}
	}
	return parsedModifier{raw: raw, action: actionPassthrough}
}

type (
	// Customization is the outcome of validating one modifier list against
	// menu data.
	Customization struct {
		// Accepted are the modifiers to store on the line, deduplicated,
		// original spelling preserved.
		Accepted []string
		// ExtraCost is the summed additional cost of accepted additions.
		ExtraCost decimal.Decimal
		// Dropped lists modifiers removed under the warn policy, with the
		// reason spoken back to the customer.
		Dropped []string
		// Failure is non-nil when a modifier fails hard; the owning command
		// must not execute.
		Failure *CustomizationFailure
	}

	// CustomizationFailure describes the first hard modifier failure.
	CustomizationFailure struct {
		Code    ErrorCode
		Message string
	}

	// Customizer validates modifier lists against the menu read model.
	Customizer struct {
		menu   menu.Source
		policy UnknownIngredientPolicy
	}
)

// NewCustomizer builds a Customizer. An empty policy defaults to warn.
func NewCustomizer(src menu.Source, policy UnknownIngredientPolicy) (*Customizer, error) {
	if src == nil {
		return nil, fmt.Errorf("command: menu source is required")
	}
	if policy == "" {
		policy = UnknownIngredientWarn
	}
	if policy != UnknownIngredientWarn && policy != UnknownIngredientReject {
		return nil, fmt.Errorf("command: unknown ingredient policy %q", policy)
	}
	return &Customizer{menu: src, policy: policy}, nil
}

// Validate checks every modifier of an item against the menu data.
//
// "Remove X" is valid iff X is an ingredient of the menu item. "Extra X" is
// valid iff X exists as an ingredient of the restaurant; its cost is the
// item-association additional cost when X already belongs to the item
// (quantity upgrade), otherwise the ingredient unit cost.
func (c *Customizer) Validate(ctx context.Context, restaurantID int64, menuItemID string, modifiers []string) (Customization, error) {
	out := Customization{ExtraCost: decimal.Zero}
	if len(modifiers) == 0 {
		return out, nil
	}

	assocs, err := c.menu.IngredientsOf(ctx, menuItemID)
	if err != nil {
		return out, fmt.Errorf("command: load item ingredients: %w", err)
	}
	all, err := c.menu.AllIngredientsWithCosts(ctx, restaurantID)
	if err != nil {
		return out, fmt.Errorf("command: load restaurant ingredients: %w", err)
	}

	byID := make(map[string]menu.Ingredient, len(all))
	byName := make(map[string]menu.Ingredient, len(all))
	for _, ing := range all {
		byID[ing.ID] = ing
		byName[menu.Normalize(ing.Name)] = ing
	}
	assocByIngredient := make(map[string]menu.ItemIngredient, len(assocs))
	for _, a := range assocs {
		assocByIngredient[a.IngredientID] = a
	}

	seen := make(map[string]struct{})
	for _, raw := range modifiers {
		norm := menu.Normalize(raw)
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}

		mod := parseModifier(raw)
		switch mod.action {
		case actionPassthrough:
			out.Accepted = append(out.Accepted, raw)

		case actionRemove:
			ing, ok := lookupIngredient(byName, mod.ingredient)
			if !ok {
				out.Failure = &CustomizationFailure{
					Code:    CodeModifierRemoveNotPresent,
					Message: fmt.Sprintf("%s isn't an ingredient of this item", mod.ingredient),
				}
				return out, nil
			}
			if _, present := assocByIngredient[ing.ID]; !present {
				out.Failure = &CustomizationFailure{
					Code:    CodeModifierRemoveNotPresent,
					Message: fmt.Sprintf("%s isn't an ingredient of this item", ing.Name),
				}
				return out, nil
			}
			out.Accepted = append(out.Accepted, raw)

		case actionAdd:
			ing, ok := lookupIngredient(byName, mod.ingredient)
			if !ok {
				if c.policy == UnknownIngredientReject {
					out.Failure = &CustomizationFailure{
						Code:    CodeModifierAddNotAllowed,
						Message: fmt.Sprintf("we can't add %s", mod.ingredient),
					}
					return out, nil
				}
				out.Dropped = append(out.Dropped, mod.ingredient)
				continue
			}
			if assoc, present := assocByIngredient[ing.ID]; present {
				out.ExtraCost = out.ExtraCost.Add(assoc.AdditionalCost)
			} else {
				out.ExtraCost = out.ExtraCost.Add(ing.UnitCost)
			}
			out.Accepted = append(out.Accepted, raw)
		}
	}
	return out, nil
}

// lookupIngredient resolves a spoken ingredient name to a known ingredient:
// exact normalized equality first, then containment either way ("cheese"
// matching "cheddar cheese").
func lookupIngredient(byName map[string]menu.Ingredient, spoken string) (menu.Ingredient, bool) {
	if ing, ok := byName[spoken]; ok {
		return ing, true
	}
	for name, ing := range byName {
		if strings.Contains(name, spoken) || strings.Contains(spoken, name) {
			return ing, true
		}
	}
	return menu.Ingredient{}, false
}

// sizeAllowed reports whether an item offers the given size. Items declare
// their sizes via "size:<name>" tags; an item with no size tags offers none.
func sizeAllowed(item menu.Item, size string) bool {
	if size == "" {
		return true
	}
	want := "size:" + menu.Normalize(size)
	for _, tag := range item.Tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}
