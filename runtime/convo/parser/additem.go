package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/curbvoice/curbvoice/runtime/convo/command"
	"github.com/curbvoice/curbvoice/runtime/convo/menu"
	"github.com/curbvoice/curbvoice/runtime/convo/model"
	"github.com/curbvoice/curbvoice/runtime/convo/telemetry"
)

// AddItemParser is the two-stage ADD_ITEM pipeline. Stage one asks the model
// to extract the mentioned items as structured slots; stage two grounds every
// extracted name against the menu read model. The model never picks menu item
// IDs directly: a name resolving to exactly one menu item becomes an AddItem
// command, zero matches become ItemUnavailable, and multiple matches trigger
// one bounded disambiguation call before falling back to a clarification
// question.
type AddItemParser struct {
	client    model.Client
	menu      menu.Source
	modelID   string
	timeout   time.Duration
	maxCalls  int
	validator *Validator
	logger    telemetry.Logger
	metrics   telemetry.Metrics
}

const (
	confidenceResolved     = 0.9
	confidenceDisambiguate = 0.8
	confidenceClarify      = 0.5
)

const addItemSystemPrompt = `You extract food order items from a drive-thru customer utterance.
Call the report_order_items tool exactly once with every item the customer asked to add.
Copy item names as the customer spoke them; do not invent menu names, sizes or modifiers that were not said.
Quantities default to 1 when unstated. Modifiers are phrases like "no pickles" or "extra cheese".
Set intent to "ADD_ITEM" and confidence to how sure you are about the extraction.`

const chooseItemSystemPrompt = `A drive-thru customer mentioned an item that matches several menu entries.
Call the choose_menu_item tool exactly once. If the utterance clearly identifies one of the candidates,
set choice to that candidate name verbatim. Otherwise leave choice empty and supply a short
clarifying_question offering the candidates.`

type (
	extractedItem struct {
		Name                string   `json:"name"`
		Quantity            int      `json:"quantity"`
		Size                string   `json:"size"`
		Modifiers           []string `json:"modifiers"`
		SpecialInstructions string   `json:"special_instructions"`
	}

	addItemSlots struct {
		Items []extractedItem `json:"items"`
	}

	chosenItem struct {
		Choice             string `json:"choice"`
		ClarifyingQuestion string `json:"clarifying_question"`
	}
)

// Parse implements Parser.
func (p *AddItemParser) Parse(ctx context.Context, in Input) (Output, error) {
	budget := p.maxCalls

	items, err := p.extract(ctx, in, &budget)
	if err != nil {
		return Output{}, err
	}

	out := Output{Confidence: 1}
	for _, it := range items {
		cmd, conf, err := p.resolve(ctx, in, it, &budget)
		if err != nil {
			return Output{}, err
		}
		out.Commands = append(out.Commands, cmd)
		if conf < out.Confidence {
			out.Confidence = conf
		}
	}
	return out, nil
}

// extract runs stage one. When the model declines to call the tool, the whole
// utterance is treated as a single item mention so resolution still happens.
func (p *AddItemParser) extract(ctx context.Context, in Input, budget *int) ([]extractedItem, error) {
	resp, err := p.complete(ctx, budget, model.Request{
		Model: p.modelID,
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: addItemSystemPrompt},
			{Role: model.RoleUser, Content: in.Utterance},
		},
		Tools: []model.ToolDefinition{{
			Name:        toolReportItems,
			Description: "Report the items the customer asked to add to the order.",
			InputSchema: p.validator.InputSchema(toolReportItems),
		}},
	})
	if err != nil {
		return nil, err
	}

	call, ok := findToolCall(resp, toolReportItems)
	if !ok {
		p.logger.Warn(ctx, "item extraction returned no tool call, resolving raw utterance",
			"utterance", in.Utterance)
		return []extractedItem{{Name: in.Utterance, Quantity: 1}}, nil
	}
	desc, err := p.validator.DecodeDescriptor(toolReportItems, call.Payload)
	if err != nil {
		return nil, err
	}
	var slots addItemSlots
	if err := decodeSlots(desc, &slots); err != nil {
		return nil, err
	}
	for i := range slots.Items {
		if slots.Items[i].Quantity == 0 {
			slots.Items[i].Quantity = 1
		}
	}
	return slots.Items, nil
}

// resolve grounds one extracted item against the menu.
func (p *AddItemParser) resolve(ctx context.Context, in Input, it extractedItem, budget *int) (command.Command, float64, error) {
	hits := p.menu.Search(ctx, in.RestaurantID, it.Name)
	switch len(hits) {
	case 1:
		return addCommand(it, hits[0]), confidenceResolved, nil
	case 0:
		return command.ItemUnavailable{RequestedItem: it.Name}, confidenceResolved, nil
	}
	return p.disambiguate(ctx, in, it, hits, budget)
}

// disambiguate runs stage two for one ambiguous mention. Without call budget
// or a decisive model answer the parser asks the customer instead of guessing.
func (p *AddItemParser) disambiguate(ctx context.Context, in Input, it extractedItem, hits []menu.Item, budget *int) (command.Command, float64, error) {
	names := make([]string, len(hits))
	for i, h := range hits {
		names[i] = h.Name
	}
	clarify := func(question string) (command.Command, float64, error) {
		if question == "" {
			question = fmt.Sprintf("Which one would you like: %s?", strings.Join(names, ", "))
		}
		return command.ClarificationNeeded{
			AmbiguousItem:         it.Name,
			SuggestedOptions:      names,
			ClarificationQuestion: question,
		}, confidenceClarify, nil
	}

	if *budget <= 0 {
		p.logger.Warn(ctx, "model call budget exhausted, asking for clarification", "item", it.Name)
		return clarify("")
	}

	resp, err := p.complete(ctx, budget, model.Request{
		Model: p.modelID,
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: chooseItemSystemPrompt},
			{Role: model.RoleUser, Content: fmt.Sprintf("Utterance: %s\nCandidates:\n%s", in.Utterance, strings.Join(names, "\n"))},
		},
		Tools: []model.ToolDefinition{{
			Name:        toolChooseMenuItem,
			Description: "Choose which candidate menu item the customer meant, or ask for clarification.",
			InputSchema: p.validator.InputSchema(toolChooseMenuItem),
		}},
	})
	if err != nil {
		return nil, 0, err
	}

	call, ok := findToolCall(resp, toolChooseMenuItem)
	if !ok {
		return clarify("")
	}
	var choice chosenItem
	if err := decodePayload(p.validator, toolChooseMenuItem, call.Payload, &choice); err != nil {
		return nil, 0, err
	}
	if choice.Choice != "" {
		want := menu.Normalize(choice.Choice)
		for _, h := range hits {
			if menu.Normalize(h.Name) == want {
				return addCommand(it, h), confidenceDisambiguate, nil
			}
		}
		p.logger.Warn(ctx, "disambiguation chose a non-candidate, asking instead",
			"item", it.Name, "choice", choice.Choice)
	}
	return clarify(choice.ClarifyingQuestion)
}

func (p *AddItemParser) complete(ctx context.Context, budget *int, req model.Request) (model.Response, error) {
	if *budget <= 0 {
		return model.Response{}, fmt.Errorf("parser: model call budget exhausted")
	}
	*budget--
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	start := time.Now()
	resp, err := p.client.Complete(cctx, req)
	p.metrics.RecordTimer(telemetry.MetricModelLatency, time.Since(start), "call", "parse")
	if err != nil {
		return model.Response{}, fmt.Errorf("parser: model call: %w", err)
	}
	return resp, nil
}

func addCommand(it extractedItem, item menu.Item) command.Command {
	return command.AddItem{
		MenuItemID:          item.ID,
		Quantity:            it.Quantity,
		Size:                it.Size,
		Modifiers:           it.Modifiers,
		SpecialInstructions: it.SpecialInstructions,
	}
}

func findToolCall(resp model.Response, name string) (model.ToolCall, bool) {
	for _, tc := range resp.ToolCalls {
		if tc.Name == name {
			return tc, true
		}
	}
	return model.ToolCall{}, false
}
