// Package intent defines the customer intent taxonomy and the LLM-backed
// classifier that opens every conversation turn. The classifier produces the
// intent, a confidence score and a cleansed version of the utterance with
// background chatter stripped while every domain token (item names,
// quantities, modifiers) is preserved.
package intent

// Type enumerates the customer intents the pipeline understands.
type Type string

const (
	AddItem      Type = "ADD_ITEM"
	RemoveItem   Type = "REMOVE_ITEM"
	ModifyItem   Type = "MODIFY_ITEM"
	ClearOrder   Type = "CLEAR_ORDER"
	ConfirmOrder Type = "CONFIRM_ORDER"
	Question     Type = "QUESTION"
	SmallTalk    Type = "SMALL_TALK"
	Repeat       Type = "REPEAT"
	Unknown      Type = "UNKNOWN"
)

// Types lists every intent, in a stable order.
func Types() []Type {
	return []Type{AddItem, RemoveItem, ModifyItem, ClearOrder, ConfirmOrder, Question, SmallTalk, Repeat, Unknown}
}

// Valid reports whether t is a member of the intent taxonomy.
func (t Type) Valid() bool {
	switch t {
	case AddItem, RemoveItem, ModifyItem, ClearOrder, ConfirmOrder, Question, SmallTalk, Repeat, Unknown:
		return true
	}
	return false
}

// Classification is the classifier's structured output for one utterance.
type Classification struct {
	// Intent is the classified customer intent.
	Intent Type `json:"intent"`
	// Confidence is the classifier's self-reported confidence in [0, 1].
	Confidence float64 `json:"confidence"`
	// CleansedInput is the utterance with background noise removed. Every
	// substring naming a menu item or quantity is preserved verbatim.
	CleansedInput string `json:"cleansed_input"`
}
