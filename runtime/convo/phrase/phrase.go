// Package phrase defines the canned phrase identifiers shared by the state
// machine, the response aggregator and the audio dispatcher, together with a
// catalog of their spoken texts. Canned phrases map to pre-rendered audio
// objects; their text is still returned to the caller and used to synthesize
// the object on a cache miss.
package phrase

// ID names a canned phrase. IDs are stable: they key pre-rendered audio
// objects at restaurants/<restaurant_id>/canned/<id>.mp3.
type ID string

const (
	Greeting              ID = "GREETING"
	ItemAddedSuccess      ID = "ITEM_ADDED_SUCCESS"
	ItemRemovedSuccess    ID = "ITEM_REMOVED_SUCCESS"
	ItemModifiedSuccess   ID = "ITEM_MODIFIED_SUCCESS"
	OrderCleared          ID = "ORDER_CLEARED"
	OrderConfirmed        ID = "ORDER_CONFIRMED"
	OrderAlreadyConfirmed ID = "ORDER_ALREADY_CONFIRMED"
	NoOrderYet            ID = "NO_ORDER_YET"
	NothingToConfirm      ID = "NOTHING_TO_CONFIRM"
	DidntUnderstand       ID = "DIDNT_UNDERSTAND"
	SystemErrorRetry      ID = "SYSTEM_ERROR_RETRY"
	SmallTalkReply        ID = "SMALL_TALK_REPLY"
	AnythingElse          ID = "ANYTHING_ELSE"
)

// defaultTexts is the built-in spoken text per phrase.
var defaultTexts = map[ID]string{
	Greeting:              "Hi, welcome! What can I get started for you?",
	ItemAddedSuccess:      "Got it! Anything else?",
	ItemRemovedSuccess:    "Done, I took that off. Anything else?",
	ItemModifiedSuccess:   "Sure, I updated that. Anything else?",
	OrderCleared:          "No problem, I cleared your order. What would you like instead?",
	OrderConfirmed:        "Perfect, your order is confirmed. Please pull forward!",
	OrderAlreadyConfirmed: "Your order is already confirmed and being prepared. Please pull forward.",
	NoOrderYet:            "You don't have anything in your order yet. What can I get you?",
	NothingToConfirm:      "There's nothing to confirm yet. What would you like to order?",
	DidntUnderstand:       "Sorry, I didn't catch that. Could you say it again?",
	SystemErrorRetry:      "Sorry, we're having some technical difficulties. Could you repeat that?",
	SmallTalkReply:        "Happy to help! What can I get for you?",
	AnythingElse:          "Anything else for you?",
}

// Catalog resolves phrase texts with optional per-restaurant overrides so a
// tenant can re-voice canned lines without touching the defaults.
type Catalog struct {
	overrides map[int64]map[ID]string
}

// NewCatalog builds a Catalog from per-restaurant override maps. The argument
// may be nil.
func NewCatalog(overrides map[int64]map[ID]string) *Catalog {
	return &Catalog{overrides: overrides}
}

// Text resolves the spoken text of a phrase for a restaurant. Unknown IDs
// yield the empty string.
func (c *Catalog) Text(restaurantID int64, id ID) string {
	if c != nil && c.overrides != nil {
		if byID, ok := c.overrides[restaurantID]; ok {
			if text, ok := byID[id]; ok {
				return text
			}
		}
	}
	return defaultTexts[id]
}

// DefaultText returns the built-in text of a phrase.
func DefaultText(id ID) string { return defaultTexts[id] }
