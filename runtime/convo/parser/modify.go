package parser

import (
	"context"
	"fmt"
	"time"

	"github.com/curbvoice/curbvoice/runtime/convo/command"
	"github.com/curbvoice/curbvoice/runtime/convo/model"
	"github.com/curbvoice/curbvoice/runtime/convo/telemetry"
)

// ModifyItemParser extracts a change set for one order line. Modifications
// are too varied for keyword rules ("make that a large", "no onions on the
// burger", "actually two of those"), so a single model call fills the slots
// against the order snapshot.
type ModifyItemParser struct {
	client    model.Client
	modelID   string
	timeout   time.Duration
	validator *Validator
	logger    telemetry.Logger
}

const modifyLineSystemPrompt = `You extract a modification to one line of a drive-thru order.
The order lines are listed with their IDs. Call the modify_order_line tool exactly once.
Set slots.order_item_id to the line being changed (or slots.target_ref to "last_item" when
the customer refers to the most recent item). Fill only the changes the customer asked for:
add_modifier / remove_modifier name a single ingredient, set_quantity and set_size replace
the current values, set_special_instructions replaces the note and clear_special_instructions
removes it. If you cannot tell which line or what change, set needs_clarification to true with
a short clarifying_question. Set intent to "MODIFY_ITEM".`

type modifySlots struct {
	OrderItemID              string `json:"order_item_id"`
	TargetRef                string `json:"target_ref"`
	AddModifier              string `json:"add_modifier"`
	RemoveModifier           string `json:"remove_modifier"`
	SetQuantity              *int   `json:"set_quantity"`
	SetSize                  string `json:"set_size"`
	SetSpecialInstructions   string `json:"set_special_instructions"`
	ClearSpecialInstructions bool   `json:"clear_special_instructions"`
}

// Parse implements Parser.
func (p *ModifyItemParser) Parse(ctx context.Context, in Input) (Output, error) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	resp, err := p.client.Complete(cctx, model.Request{
		Model: p.modelID,
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: modifyLineSystemPrompt},
			{Role: model.RoleUser, Content: fmt.Sprintf("Order:\n%s\n\nCustomer: %s", orderSnapshot(in.Order), in.Utterance)},
		},
		Tools: []model.ToolDefinition{{
			Name:        toolModifyLine,
			Description: "Report the change the customer wants applied to one order line.",
			InputSchema: p.validator.InputSchema(toolModifyLine),
		}},
	})
	if err != nil {
		return Output{}, fmt.Errorf("parser: model call: %w", err)
	}

	call, ok := findToolCall(resp, toolModifyLine)
	if !ok {
		p.logger.Warn(ctx, "modification extraction returned no tool call", "utterance", in.Utterance)
		return clarifyOutput(in, "What would you like me to change?"), nil
	}
	desc, err := p.validator.DecodeDescriptor(toolModifyLine, call.Payload)
	if err != nil {
		return Output{}, err
	}
	var slots modifySlots
	if err := decodeSlots(desc, &slots); err != nil {
		return Output{}, err
	}
	if desc.NeedsClarification || emptyChanges(slots) {
		return clarifyOutput(in, desc.ClarifyingQuestion), nil
	}

	changes := command.Changes{
		AddModifier:              slots.AddModifier,
		RemoveModifier:           slots.RemoveModifier,
		SetSpecialInstructions:   slots.SetSpecialInstructions,
		ClearSpecialInstructions: slots.ClearSpecialInstructions,
		SetSize:                  slots.SetSize,
	}
	if slots.SetQuantity != nil {
		changes.SetQuantity = *slots.SetQuantity
		changes.HasQuantity = true
	}
	return Output{
		Commands: []command.Command{command.ModifyItem{
			OrderItemID: slots.OrderItemID,
			TargetRef:   slots.TargetRef,
			Changes:     changes,
		}},
		Confidence: confidenceDisambiguate,
	}, nil
}

func emptyChanges(s modifySlots) bool {
	return s.AddModifier == "" && s.RemoveModifier == "" && s.SetQuantity == nil &&
		s.SetSize == "" && s.SetSpecialInstructions == "" && !s.ClearSpecialInstructions
}

func clarifyOutput(in Input, question string) Output {
	if question == "" {
		question = "What would you like me to change?"
	}
	return Output{
		Commands:   []command.Command{command.Unknown{UserInput: in.Utterance, ClarifyingQuestion: question}},
		Confidence: confidenceClarify,
	}
}
