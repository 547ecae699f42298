package parser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/curbvoice/curbvoice/runtime/convo/command"
	"github.com/curbvoice/curbvoice/runtime/convo/menu"
	"github.com/curbvoice/curbvoice/runtime/convo/model"
	"github.com/curbvoice/curbvoice/runtime/convo/order"
	"github.com/curbvoice/curbvoice/runtime/convo/telemetry"
)

// RemoveItemParser resolves which order line the customer wants removed.
// Unambiguous references (a pronoun, a single-line order, a unique name
// match) are resolved by rule without a model call; only genuinely ambiguous
// utterances consult the model against the order snapshot.
type RemoveItemParser struct {
	client    model.Client
	modelID   string
	timeout   time.Duration
	validator *Validator
	logger    telemetry.Logger
}

const selectLineSystemPrompt = `You identify which line of a drive-thru order the customer wants removed.
The order lines are listed with their IDs. Call the select_order_line tool exactly once.
Set slots.order_item_id to the matching line ID. If the customer's reference does not match
any line, or matches several, set needs_clarification to true with a short clarifying_question.
Set intent to "REMOVE_ITEM".`

type targetSlots struct {
	OrderItemID string `json:"order_item_id"`
	TargetRef   string `json:"target_ref"`
}

// Parse implements Parser.
func (p *RemoveItemParser) Parse(ctx context.Context, in Input) (Output, error) {
	if ref, ok := ruleTarget(in.Utterance, in.Order); ok {
		return Output{
			Commands:   []command.Command{command.RemoveItem{TargetRef: ref}},
			Confidence: 1,
		}, nil
	}

	desc, slots, err := p.selectLine(ctx, in)
	if err != nil {
		return Output{}, err
	}
	if desc.NeedsClarification || (slots.OrderItemID == "" && slots.TargetRef == "") {
		question := desc.ClarifyingQuestion
		if question == "" {
			question = "Which item would you like me to remove?"
		}
		return Output{
			Commands:   []command.Command{command.Unknown{UserInput: in.Utterance, ClarifyingQuestion: question}},
			Confidence: confidenceClarify,
		}, nil
	}
	return Output{
		Commands: []command.Command{command.RemoveItem{
			OrderItemID: slots.OrderItemID,
			TargetRef:   slots.TargetRef,
		}},
		Confidence: confidenceDisambiguate,
	}, nil
}

func (p *RemoveItemParser) selectLine(ctx context.Context, in Input) (Descriptor, targetSlots, error) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	resp, err := p.client.Complete(cctx, model.Request{
		Model: p.modelID,
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: selectLineSystemPrompt},
			{Role: model.RoleUser, Content: fmt.Sprintf("Order:\n%s\n\nCustomer: %s", orderSnapshot(in.Order), in.Utterance)},
		},
		Tools: []model.ToolDefinition{{
			Name:        toolSelectLine,
			Description: "Select the order line the customer referred to.",
			InputSchema: p.validator.InputSchema(toolSelectLine),
		}},
	})
	if err != nil {
		return Descriptor{}, targetSlots{}, fmt.Errorf("parser: model call: %w", err)
	}
	call, ok := findToolCall(resp, toolSelectLine)
	if !ok {
		p.logger.Warn(ctx, "line selection returned no tool call", "utterance", in.Utterance)
		return Descriptor{NeedsClarification: true}, targetSlots{}, nil
	}
	desc, err := p.validator.DecodeDescriptor(toolSelectLine, call.Payload)
	if err != nil {
		return Descriptor{}, targetSlots{}, err
	}
	var slots targetSlots
	if err := decodeSlots(desc, &slots); err != nil {
		return Descriptor{}, targetSlots{}, err
	}
	return desc, slots, nil
}

// lastItemPhrases are multi-word references to the most recent line;
// lastItemPronouns match as whole tokens only so "it" does not fire inside
// "without".
var (
	lastItemPhrases  = []string{"last one", "last thing", "the last"}
	lastItemPronouns = map[string]struct{}{"that": {}, "it": {}}
)

// ruleTarget resolves the reference without a model call when the utterance
// is unambiguous against the order.
func ruleTarget(utterance string, agg *order.Aggregate) (string, bool) {
	if agg == nil || len(agg.Items) == 0 {
		// Let the bus report the empty order.
		return command.TargetLastItem, true
	}
	s := strings.ToLower(utterance)
	for _, w := range lastItemPhrases {
		if strings.Contains(s, w) {
			return command.TargetLastItem, true
		}
	}
	for _, f := range strings.Fields(menu.Normalize(utterance)) {
		if _, ok := lastItemPronouns[f]; ok {
			return command.TargetLastItem, true
		}
	}
	if len(agg.Items) == 1 {
		return command.TargetLastItem, true
	}
	tokens := menu.Tokenize(menu.Normalize(utterance))
	matched := -1
	for i := range agg.Items {
		name := menu.Normalize(agg.Items[i].Name)
		for _, t := range tokens {
			if strings.Contains(name, t) {
				if matched >= 0 && matched != i {
					return "", false
				}
				matched = i
			}
		}
	}
	if matched >= 0 {
		return agg.Items[matched].Name, true
	}
	return "", false
}
