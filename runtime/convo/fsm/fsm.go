// Package fsm implements the pure, table-driven conversation state machine.
// Next is a function of (state, intent) only: it performs no I/O, holds no
// state, and every state/intent cell is defined explicitly so missing entries
// are invalid by construction.
package fsm

import (
	"github.com/curbvoice/curbvoice/runtime/convo/intent"
	"github.com/curbvoice/curbvoice/runtime/convo/phrase"
	"github.com/curbvoice/curbvoice/runtime/convo/session"
)

// Transition is the outcome of one state machine step.
type Transition struct {
	// Target is the state the conversation moves to. For invalid transitions
	// it equals the current state.
	Target session.State
	// RequiresCommand indicates the intent parser must run and produce
	// commands for the bus.
	RequiresCommand bool
	// IsValid reports whether the intent is allowed in the current state.
	IsValid bool
	// InvalidPhrase is the canned phrase spoken for an invalid transition.
	InvalidPhrase phrase.ID
}

func valid(target session.State, requiresCommand bool) Transition {
	return Transition{Target: target, RequiresCommand: requiresCommand, IsValid: true}
}

func invalid(stay session.State, p phrase.ID) Transition {
	return Transition{Target: stay, IsValid: false, InvalidPhrase: p}
}

// table holds every state × intent cell. Construction is eager so tests can
// assert exhaustiveness.
var table = map[session.State]map[intent.Type]Transition{
	session.StateIdle: {
		intent.AddItem:      valid(session.StateOrdering, true),
		intent.RemoveItem:   invalid(session.StateIdle, phrase.NoOrderYet),
		intent.ModifyItem:   invalid(session.StateIdle, phrase.NoOrderYet),
		intent.ClearOrder:   invalid(session.StateIdle, phrase.NoOrderYet),
		intent.ConfirmOrder: invalid(session.StateIdle, phrase.NothingToConfirm),
		intent.Question:     valid(session.StateThinking, true),
		intent.SmallTalk:    valid(session.StateIdle, false),
		intent.Repeat:       valid(session.StateIdle, false),
		intent.Unknown:      valid(session.StateIdle, true),
	},
	session.StateOrdering: {
		intent.AddItem:      valid(session.StateOrdering, true),
		intent.RemoveItem:   valid(session.StateOrdering, true),
		intent.ModifyItem:   valid(session.StateOrdering, true),
		intent.ClearOrder:   valid(session.StateOrdering, true),
		intent.ConfirmOrder: valid(session.StateConfirming, false),
		intent.Question:     valid(session.StateOrdering, true),
		intent.SmallTalk:    valid(session.StateOrdering, false),
		intent.Repeat:       valid(session.StateOrdering, false),
		intent.Unknown:      valid(session.StateOrdering, true),
	},
	session.StateThinking: {
		intent.AddItem:      valid(session.StateOrdering, true),
		intent.RemoveItem:   invalid(session.StateThinking, phrase.NoOrderYet),
		intent.ModifyItem:   invalid(session.StateThinking, phrase.NoOrderYet),
		intent.ClearOrder:   invalid(session.StateThinking, phrase.NoOrderYet),
		intent.ConfirmOrder: invalid(session.StateThinking, phrase.NothingToConfirm),
		intent.Question:     valid(session.StateThinking, true),
		intent.SmallTalk:    valid(session.StateThinking, false),
		intent.Repeat:       valid(session.StateThinking, false),
		intent.Unknown:      valid(session.StateThinking, true),
	},
	session.StateClarifying: {
		intent.AddItem:      valid(session.StateOrdering, true),
		intent.RemoveItem:   valid(session.StateOrdering, true),
		intent.ModifyItem:   valid(session.StateOrdering, true),
		intent.ClearOrder:   valid(session.StateOrdering, true),
		intent.ConfirmOrder: valid(session.StateConfirming, false),
		intent.Question:     valid(session.StateClarifying, true),
		intent.SmallTalk:    valid(session.StateClarifying, false),
		intent.Repeat:       valid(session.StateClarifying, false),
		intent.Unknown:      valid(session.StateClarifying, true),
	},
	session.StateConfirming: {
		intent.AddItem:      valid(session.StateOrdering, true),
		intent.RemoveItem:   valid(session.StateOrdering, true),
		intent.ModifyItem:   valid(session.StateOrdering, true),
		intent.ClearOrder:   valid(session.StateOrdering, true),
		intent.ConfirmOrder: valid(session.StateClosing, false),
		intent.Question:     valid(session.StateConfirming, true),
		intent.SmallTalk:    valid(session.StateConfirming, false),
		intent.Repeat:       valid(session.StateConfirming, false),
		intent.Unknown:      valid(session.StateConfirming, true),
	},
	session.StateClosing: {
		intent.AddItem:      valid(session.StateOrdering, true),
		intent.RemoveItem:   invalid(session.StateClosing, phrase.OrderAlreadyConfirmed),
		intent.ModifyItem:   invalid(session.StateClosing, phrase.OrderAlreadyConfirmed),
		intent.ClearOrder:   invalid(session.StateClosing, phrase.OrderAlreadyConfirmed),
		intent.ConfirmOrder: invalid(session.StateClosing, phrase.OrderAlreadyConfirmed),
		intent.Question:     valid(session.StateClosing, true),
		intent.SmallTalk:    valid(session.StateClosing, false),
		intent.Repeat:       valid(session.StateClosing, false),
		intent.Unknown:      valid(session.StateClosing, true),
	},
}

// Next resolves the transition for the given state and intent. Unknown states
// or intents outside the taxonomy resolve to an invalid transition that stays
// put and asks the customer to repeat.
func Next(state session.State, in intent.Type) Transition {
	if byIntent, ok := table[state]; ok {
		if tr, ok := byIntent[in]; ok {
			return tr
		}
	}
	return invalid(state, phrase.DidntUnderstand)
}
