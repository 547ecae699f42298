// Package parser turns a classified utterance into typed commands. A registry
// routes by intent: trivial intents (CLEAR_ORDER, CONFIRM_ORDER, QUESTION,
// UNKNOWN) use deterministic rule parsers, while ADD_ITEM, REMOVE_ITEM and
// MODIFY_ITEM use tool-calling LLM parsers whose payloads are validated
// against JSON Schema descriptors before any command is constructed. A
// descriptor that fails validation is a system fault, never a guess.
package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/curbvoice/curbvoice/runtime/convo/command"
	"github.com/curbvoice/curbvoice/runtime/convo/intent"
	"github.com/curbvoice/curbvoice/runtime/convo/menu"
	"github.com/curbvoice/curbvoice/runtime/convo/model"
	"github.com/curbvoice/curbvoice/runtime/convo/order"
	"github.com/curbvoice/curbvoice/runtime/convo/session"
	"github.com/curbvoice/curbvoice/runtime/convo/telemetry"
)

type (
	// Input is everything a parser may consult for one utterance.
	Input struct {
		RestaurantID int64
		// Utterance is the cleansed input produced by the classifier.
		Utterance string
		Intent    intent.Type
		Session   *session.Context
		// Order is the current aggregate, nil when the session has not
		// ordered yet.
		Order *order.Aggregate
	}

	// Output is the parsed command batch plus the parser's own confidence in
	// it. Confidence below 1 signals the commands embed a guess (e.g. a
	// disambiguated menu item).
	Output struct {
		Commands   []command.Command
		Confidence float64
	}

	// Parser converts one utterance of a known intent into commands.
	Parser interface {
		Parse(ctx context.Context, in Input) (Output, error)
	}

	// Registry routes utterances to the parser registered for their intent.
	Registry struct {
		parsers map[intent.Type]Parser
		logger  telemetry.Logger
	}

	// Config wires the full default parser set.
	Config struct {
		// Client is the LLM used by the slot-filling parsers.
		Client model.Client
		// Menu grounds extracted item names against live menu data.
		Menu menu.Source
		// ModelID overrides the client's default model.
		ModelID string
		// Timeout bounds each model call. Defaults to 20s.
		Timeout time.Duration
		// MaxModelCalls caps LLM round trips within one Parse. Defaults to 5.
		MaxModelCalls int
		Logger        telemetry.Logger
		Metrics       telemetry.Metrics
	}
)

// ErrNoParser indicates no parser is registered for the intent.
var ErrNoParser = errors.New("parser: no parser registered for intent")

const (
	defaultTimeout       = 20 * time.Second
	defaultMaxModelCalls = 5
)

// NewRegistry builds a registry with the default parser for every
// command-producing intent.
func NewRegistry(cfg Config) (*Registry, error) {
	if cfg.Client == nil {
		return nil, errors.New("parser: model client is required")
	}
	if cfg.Menu == nil {
		return nil, errors.New("parser: menu source is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxModelCalls <= 0 {
		cfg.MaxModelCalls = defaultMaxModelCalls
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NewNoopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewNoopMetrics()
	}
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}

	r := &Registry{parsers: make(map[intent.Type]Parser), logger: cfg.Logger}
	r.Register(intent.AddItem, &AddItemParser{
		client:    cfg.Client,
		menu:      cfg.Menu,
		modelID:   cfg.ModelID,
		timeout:   cfg.Timeout,
		maxCalls:  cfg.MaxModelCalls,
		validator: validator,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	})
	r.Register(intent.RemoveItem, &RemoveItemParser{
		client:    cfg.Client,
		modelID:   cfg.ModelID,
		timeout:   cfg.Timeout,
		validator: validator,
		logger:    cfg.Logger,
	})
	r.Register(intent.ModifyItem, &ModifyItemParser{
		client:    cfg.Client,
		modelID:   cfg.ModelID,
		timeout:   cfg.Timeout,
		validator: validator,
		logger:    cfg.Logger,
	})
	r.Register(intent.ClearOrder, RuleParser(parseClear))
	r.Register(intent.ConfirmOrder, RuleParser(parseConfirm))
	r.Register(intent.Question, RuleParser(parseQuestion))
	r.Register(intent.Unknown, RuleParser(parseUnknown))
	return r, nil
}

// Register binds a parser to an intent, replacing any previous binding.
func (r *Registry) Register(t intent.Type, p Parser) {
	r.parsers[t] = p
}

// Parse routes to the registered parser. Intents without a parser fall back
// to an UNKNOWN command so the conversation can recover by asking.
func (r *Registry) Parse(ctx context.Context, in Input) (Output, error) {
	p, ok := r.parsers[in.Intent]
	if !ok {
		r.logger.Warn(ctx, "no parser for intent, asking to rephrase", "intent", string(in.Intent))
		return parseUnknown(ctx, in)
	}
	out, err := p.Parse(ctx, in)
	if err != nil {
		return Output{}, fmt.Errorf("parser: parse %s: %w", in.Intent, err)
	}
	return out, nil
}

// RuleParser adapts a function to the Parser interface.
type RuleParser func(ctx context.Context, in Input) (Output, error)

// Parse implements Parser.
func (f RuleParser) Parse(ctx context.Context, in Input) (Output, error) { return f(ctx, in) }

func parseClear(_ context.Context, _ Input) (Output, error) {
	return Output{Commands: []command.Command{command.ClearOrder{}}, Confidence: 1}, nil
}

func parseConfirm(_ context.Context, _ Input) (Output, error) {
	return Output{Commands: []command.Command{command.ConfirmOrder{}}, Confidence: 1}, nil
}

func parseUnknown(_ context.Context, in Input) (Output, error) {
	return Output{
		Commands:   []command.Command{command.Unknown{UserInput: in.Utterance}},
		Confidence: 1,
	}, nil
}

// parseQuestion builds a QUESTION command with a keyword-inferred category.
// The answer itself is composed downstream by the command bus from menu data.
func parseQuestion(_ context.Context, in Input) (Output, error) {
	return Output{
		Commands: []command.Command{command.Question{
			Question: in.Utterance,
			Category: inferQuestionCategory(in.Utterance),
		}},
		Confidence: 1,
	}, nil
}

func inferQuestionCategory(utterance string) string {
	s := strings.ToLower(utterance)
	switch {
	case containsAny(s, "price", "cost", "how much", "expensive", "cheap", "$"):
		return command.QuestionCategoryPricing
	case containsAny(s, "hour", "open", "close", "closing", "how late"):
		return command.QuestionCategoryHours
	case containsAny(s, "allerg", "nut", "gluten", "dairy", "lactose", "vegan", "vegetarian", "contain"):
		return command.QuestionCategoryAllergens
	case containsAny(s, "menu", "have", "sell", "offer", "option", "kind of", "serve"):
		return command.QuestionCategoryMenu
	}
	return command.QuestionCategoryOther
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// orderSnapshot renders the current order lines for a model prompt, one line
// per order line with its stable line ID.
func orderSnapshot(agg *order.Aggregate) string {
	if agg == nil || len(agg.Items) == 0 {
		return "(the order is empty)"
	}
	var b strings.Builder
	for _, line := range agg.Items {
		fmt.Fprintf(&b, "%s: %d x %s", line.LineID, line.Quantity, line.Name)
		var details []string
		if line.Size != "" {
			details = append(details, line.Size)
		}
		details = append(details, line.Modifiers...)
		if len(details) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(details, ", "))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
