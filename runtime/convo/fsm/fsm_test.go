package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curbvoice/curbvoice/runtime/convo/intent"
	"github.com/curbvoice/curbvoice/runtime/convo/phrase"
	"github.com/curbvoice/curbvoice/runtime/convo/session"
)

func TestTableIsExhaustive(t *testing.T) {
	for _, state := range session.States() {
		byIntent, ok := table[state]
		require.True(t, ok, "state %s has no row", state)
		for _, in := range intent.Types() {
			_, ok := byIntent[in]
			assert.True(t, ok, "cell (%s, %s) is undefined", state, in)
		}
	}
}

func TestInvalidTransitionsStayPut(t *testing.T) {
	for _, state := range session.States() {
		for _, in := range intent.Types() {
			tr := Next(state, in)
			if tr.IsValid {
				continue
			}
			assert.Equal(t, state, tr.Target, "invalid (%s, %s) must not move", state, in)
			assert.NotEmpty(t, tr.InvalidPhrase, "invalid (%s, %s) needs a phrase", state, in)
			assert.False(t, tr.RequiresCommand)
		}
	}
}

func TestConfirmNeverRequiresCommand(t *testing.T) {
	// The orchestrator handles CONFIRM_ORDER itself: read-back on the first
	// confirm, order freeze on the second.
	for _, state := range session.States() {
		tr := Next(state, intent.ConfirmOrder)
		assert.False(t, tr.RequiresCommand, "confirm in %s must not dispatch the parser", state)
	}
}

func TestOrderingFlow(t *testing.T) {
	cases := []struct {
		name   string
		state  session.State
		intent intent.Type
		want   Transition
	}{
		{"first add opens the order", session.StateIdle, intent.AddItem,
			valid(session.StateOrdering, true)},
		{"remove before ordering", session.StateIdle, intent.RemoveItem,
			invalid(session.StateIdle, phrase.NoOrderYet)},
		{"confirm before ordering", session.StateIdle, intent.ConfirmOrder,
			invalid(session.StateIdle, phrase.NothingToConfirm)},
		{"question while idle", session.StateIdle, intent.Question,
			valid(session.StateThinking, true)},
		{"add while thinking resumes ordering", session.StateThinking, intent.AddItem,
			valid(session.StateOrdering, true)},
		{"confirm while ordering reads back", session.StateOrdering, intent.ConfirmOrder,
			valid(session.StateConfirming, false)},
		{"clarification answer returns to ordering", session.StateClarifying, intent.AddItem,
			valid(session.StateOrdering, true)},
		{"confirm from clarifying reads back", session.StateClarifying, intent.ConfirmOrder,
			valid(session.StateConfirming, false)},
		{"second confirm closes", session.StateConfirming, intent.ConfirmOrder,
			valid(session.StateClosing, false)},
		{"add during confirmation reopens", session.StateConfirming, intent.AddItem,
			valid(session.StateOrdering, true)},
		{"mutation after close is refused", session.StateClosing, intent.RemoveItem,
			invalid(session.StateClosing, phrase.OrderAlreadyConfirmed)},
		{"new order after close", session.StateClosing, intent.AddItem,
			valid(session.StateOrdering, true)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Next(tc.state, tc.intent))
		})
	}
}

func TestUnknownIntentAlwaysRunsParser(t *testing.T) {
	// UNKNOWN stays in place but still dispatches so the parser can salvage
	// the utterance.
	for _, state := range session.States() {
		tr := Next(state, intent.Unknown)
		assert.True(t, tr.IsValid)
		assert.True(t, tr.RequiresCommand)
		assert.Equal(t, state, tr.Target)
	}
}

func TestOutOfTaxonomyInput(t *testing.T) {
	tr := Next(session.StateOrdering, intent.Type("SING_A_SONG"))
	assert.False(t, tr.IsValid)
	assert.Equal(t, session.StateOrdering, tr.Target)
	assert.Equal(t, phrase.DidntUnderstand, tr.InvalidPhrase)

	tr = Next(session.State("LIMBO"), intent.AddItem)
	assert.False(t, tr.IsValid)
	assert.Equal(t, session.State("LIMBO"), tr.Target)
}
