// Package command implements the command bus: typed order-mutation and
// response commands, their execution against the order store, per-result
// error categorization and the deterministic batch outcome derivation that
// drives the response policy.
//
// Commands are value objects. Parsers construct them, the bus executes them,
// nothing mutates them. Each command in a batch runs independently inside its
// own load-mutate-store unit of work; the order is reloaded before every
// command so later commands observe earlier commands' committed effects.
package command

// Kind tags a command variant.
type Kind string

const (
	KindAddItem             Kind = "ADD_ITEM"
	KindRemoveItem          Kind = "REMOVE_ITEM"
	KindModifyItem          Kind = "MODIFY_ITEM"
	KindClearOrder          Kind = "CLEAR_ORDER"
	KindConfirmOrder        Kind = "CONFIRM_ORDER"
	KindQuestion            Kind = "QUESTION"
	KindClarificationNeeded Kind = "CLARIFICATION_NEEDED"
	KindItemUnavailable     Kind = "ITEM_UNAVAILABLE"
	KindUnknown             Kind = "UNKNOWN"
)

// Kinds lists every command kind, in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindAddItem, KindRemoveItem, KindModifyItem, KindClearOrder, KindConfirmOrder,
		KindQuestion, KindClarificationNeeded, KindItemUnavailable, KindUnknown,
	}
}

// Command is the closed set of operations the bus executes. Implementations
// are the variant structs below; the bus switches exhaustively on them.
type Command interface {
	Kind() Kind
}

type (
	// AddItem appends an order line for a resolved menu item.
	AddItem struct {
		MenuItemID          string
		Quantity            int
		Size                string
		Modifiers           []string
		SpecialInstructions string
	}

	// RemoveItem removes one order line, addressed either by line ID or by a
	// symbolic reference resolved against the current order ("last_item",
	// the session's last-mentioned line, or an item name).
	RemoveItem struct {
		OrderItemID string
		TargetRef   string
	}

	// ModifyItem applies a change set to one order line. Changes are
	// validated individually against menu data; a change set that both adds
	// and removes the same modifier is rejected eagerly before any mutation.
	ModifyItem struct {
		OrderItemID string
		TargetRef   string
		Changes     Changes
	}

	// Changes is the set of simultaneous mutations one ModifyItem carries.
	Changes struct {
		AddModifier              string
		RemoveModifier           string
		SetSpecialInstructions   string
		ClearSpecialInstructions bool
		SetSize                  string
		SetQuantity              int
		// HasQuantity distinguishes "set quantity to 0" (invalid) from "no
		// quantity change".
		HasQuantity bool
	}

	// ClearOrder empties the order and zeroes its totals.
	ClearOrder struct{}

	// ConfirmOrder freezes a non-empty active order.
	ConfirmOrder struct{}

	// Question is a pure response command answering a customer question. It
	// never mutates the order.
	Question struct {
		Question string
		Category string
	}

	// ItemUnavailable is a pure response command reporting that a requested
	// item is not on the menu.
	ItemUnavailable struct {
		RequestedItem string
		Message       string
	}

	// ClarificationNeeded is a pure response command carrying a
	// disambiguation question. The bus returns SUCCESS with the
	// clarification payload so it surfaces through the aggregator as dynamic
	// text, unifying "need more info" with "command executed".
	ClarificationNeeded struct {
		AmbiguousItem         string
		SuggestedOptions      []string
		ClarificationQuestion string
	}

	// Unknown is a pure response command asking the customer to rephrase.
	Unknown struct {
		UserInput          string
		ClarifyingQuestion string
	}
)

func (AddItem) Kind() Kind             { return KindAddItem }
func (RemoveItem) Kind() Kind          { return KindRemoveItem }
func (ModifyItem) Kind() Kind          { return KindModifyItem }
func (ClearOrder) Kind() Kind          { return KindClearOrder }
func (ConfirmOrder) Kind() Kind        { return KindConfirmOrder }
func (Question) Kind() Kind            { return KindQuestion }
func (ClarificationNeeded) Kind() Kind { return KindClarificationNeeded }
func (ItemUnavailable) Kind() Kind     { return KindItemUnavailable }
func (Unknown) Kind() Kind             { return KindUnknown }

// Question categories inferred by the question parser.
const (
	QuestionCategoryMenu      = "menu"
	QuestionCategoryPricing   = "pricing"
	QuestionCategoryHours     = "hours"
	QuestionCategoryAllergens = "allergens"
	QuestionCategoryOther     = "other"
)

// Symbolic remove/modify target references.
const (
	TargetLastItem = "last_item"
)
