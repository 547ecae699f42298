// Package respond implements the response aggregator: it folds a command
// batch result into exactly one reply, either a canned phrase (stable ID,
// pre-rendered audio) or dynamic text composed deterministically from the
// individual results. Given identical inputs the aggregator produces
// identical text.
package respond

import (
	"fmt"
	"strings"

	"github.com/curbvoice/curbvoice/runtime/convo/command"
	"github.com/curbvoice/curbvoice/runtime/convo/order"
	"github.com/curbvoice/curbvoice/runtime/convo/phrase"
)

// Category tells the audio dispatcher how to source the reply audio.
type Category string

const (
	// Canned replies map to a stable phrase ID with pre-rendered audio.
	Canned Category = "CANNED"
	// Dynamic replies are composed text requiring fresh synthesis.
	Dynamic Category = "DYNAMIC"
)

type (
	// Response is the aggregated reply for one turn.
	Response struct {
		Text     string
		Category Category
		// PhraseID is set for canned responses only.
		PhraseID phrase.ID
	}

	// Aggregator composes turn replies from batch results and canned phrases.
	Aggregator struct {
		phrases *phrase.Catalog
	}
)

// NewAggregator builds an Aggregator over the given catalog. A nil catalog
// uses the built-in phrase texts.
func NewAggregator(catalog *phrase.Catalog) *Aggregator {
	if catalog == nil {
		catalog = phrase.NewCatalog(nil)
	}
	return &Aggregator{phrases: catalog}
}

// CannedResponse builds a canned reply for the phrase, used by the
// orchestrator's short-circuit paths (low confidence, invalid transition).
func (a *Aggregator) CannedResponse(restaurantID int64, id phrase.ID) Response {
	return Response{
		Text:     a.phrases.Text(restaurantID, id),
		Category: Canned,
		PhraseID: id,
	}
}

// successPhrases maps a homogeneous ALL_SUCCESS mutating batch to its canned
// phrase.
var successPhrases = map[command.Kind]phrase.ID{
	command.KindAddItem:      phrase.ItemAddedSuccess,
	command.KindRemoveItem:   phrase.ItemRemovedSuccess,
	command.KindModifyItem:   phrase.ItemModifiedSuccess,
	command.KindClearOrder:   phrase.OrderCleared,
	command.KindConfirmOrder: phrase.OrderConfirmed,
}

// FromBatch folds a batch result into one reply.
func (a *Aggregator) FromBatch(restaurantID int64, br command.BatchResult) Response {
	if br.Outcome == command.OutcomeFatalSystem {
		return a.CannedResponse(restaurantID, phrase.SystemErrorRetry)
	}
	if br.Outcome == command.OutcomeAllSuccess && len(br.Results) == 1 {
		if id, ok := successPhrases[br.CommandFamily]; ok {
			return a.CannedResponse(restaurantID, id)
		}
	}
	text := a.compose(restaurantID, br)
	if text == "" {
		return a.CannedResponse(restaurantID, phrase.DidntUnderstand)
	}
	return Response{Text: text, Category: Dynamic}
}

// OrderSummary composes the confirmation read-back spoken when the customer
// says they are done: every line with its quantity, then the total, then the
// confirmation question.
func (a *Aggregator) OrderSummary(agg *order.Aggregate) Response {
	lines := make([]string, 0, len(agg.Items))
	for _, line := range agg.Items {
		entry := fmt.Sprintf("%d %s", line.Quantity, line.Name)
		if line.Size != "" {
			entry = fmt.Sprintf("%d %s %s", line.Quantity, line.Size, line.Name)
		}
		lines = append(lines, entry)
	}
	text := fmt.Sprintf("So that's %s. Your total is $%s. Is that correct?",
		joinAnd(lines), agg.Total.StringFixed(2))
	return Response{Text: text, Category: Dynamic}
}

// compose concatenates, in fixed order: acknowledgements for successes, one
// sentence per unavailable item, failure explanations, then any clarifying
// question last so the customer answers the most recent thing they heard.
func (a *Aggregator) compose(restaurantID int64, br command.BatchResult) string {
	var (
		added      []string
		removed    []string
		updated    []string
		statements []string
		failures   []string
		questions  []string
	)

	for _, r := range br.Results {
		if r.Status == command.StatusError {
			if r.ErrorCategory == command.CategorySystem {
				continue
			}
			failures = append(failures, sentence(r.Message))
			continue
		}
		switch cmd := r.Command.(type) {
		case command.AddItem:
			added = append(added, itemName(r))
		case command.RemoveItem:
			removed = append(removed, itemName(r))
		case command.ModifyItem:
			updated = append(updated, itemName(r))
		case command.ClearOrder:
			statements = append(statements, a.phrases.Text(restaurantID, phrase.OrderCleared))
		case command.ConfirmOrder:
			statements = append(statements, a.phrases.Text(restaurantID, phrase.OrderConfirmed))
		case command.Question:
			if answer, ok := r.Data["answer"].(string); ok && answer != "" {
				statements = append(statements, sentence(answer))
			}
		case command.ItemUnavailable:
			statements = append(statements, sentence(r.Message))
		case command.ClarificationNeeded:
			questions = append(questions, sentence(cmd.ClarificationQuestion))
		case command.Unknown:
			questions = append(questions, sentence(r.Message))
		}
		if r.Status == command.StatusWarning && r.Message != "" {
			failures = append(failures, sentence(r.Message))
		}
	}

	var parts []string
	if len(added) > 0 {
		parts = append(parts, fmt.Sprintf("I added %s.", joinAnd(added)))
	}
	if len(removed) > 0 {
		parts = append(parts, fmt.Sprintf("I removed %s.", joinAnd(removed)))
	}
	if len(updated) > 0 {
		parts = append(parts, fmt.Sprintf("I updated %s.", joinAnd(updated)))
	}
	parts = append(parts, statements...)
	parts = append(parts, failures...)
	parts = append(parts, questions...)

	text := strings.Join(parts, " ")
	if text != "" && len(questions) == 0 && br.Outcome == command.OutcomeAllSuccess && onlyMutations(br) {
		text += " " + a.phrases.Text(restaurantID, phrase.AnythingElse)
	}
	return strings.TrimSpace(text)
}

// onlyMutations reports whether every result belongs to an order-mutating
// command, in which case the reply ends by prompting for more.
func onlyMutations(br command.BatchResult) bool {
	for _, r := range br.Results {
		switch r.Command.(type) {
		case command.AddItem, command.RemoveItem, command.ModifyItem, command.ClearOrder:
		default:
			return false
		}
	}
	return len(br.Results) > 0
}

// itemName prefers the executed item name recorded by the bus over whatever
// the command carried.
func itemName(r command.Result) string {
	if name, ok := r.Data["item_name"].(string); ok && name != "" {
		return name
	}
	return "that item"
}

// sentence upper-cases the first letter and guarantees terminal punctuation.
func sentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	s = strings.ToUpper(s[:1]) + s[1:]
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}

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
