package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrDescriptor indicates a model tool payload failed schema validation. The
// model produced something the contract forbids, so the turn fails as a
// system error rather than executing a guessed command.
var ErrDescriptor = errors.New("parser: descriptor validation failed")

// Descriptor is the envelope every slot-filling tool returns. Slots carry the
// intent-specific payload and are decoded by the owning parser.
type Descriptor struct {
	Intent             string          `json:"intent"`
	Confidence         float64         `json:"confidence"`
	Slots              json.RawMessage `json:"slots"`
	NeedsClarification bool            `json:"needs_clarification,omitempty"`
	ClarifyingQuestion string          `json:"clarifying_question,omitempty"`
	Notes              string          `json:"notes,omitempty"`
}

// Tool names the slot-filling parsers expose to the model.
const (
	toolReportItems    = "report_order_items"
	toolSelectLine     = "select_order_line"
	toolModifyLine     = "modify_order_line"
	toolChooseMenuItem = "choose_menu_item"
)

// envelopeSchema wraps an intent-specific slots schema. Unknown keys are
// rejected at every level so a hallucinated field fails loudly instead of
// being silently dropped.
const envelopeSchema = `{
  "type": "object",
  "properties": {
    "intent": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "slots": %s,
    "needs_clarification": {"type": "boolean"},
    "clarifying_question": {"type": "string"},
    "notes": {"type": "string"}
  },
  "required": ["intent", "slots"],
  "additionalProperties": false
}`

const addItemSlotsSchema = `{
  "type": "object",
  "properties": {
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "quantity": {"type": "integer", "minimum": 1},
          "size": {"type": "string"},
          "modifiers": {"type": "array", "items": {"type": "string"}},
          "special_instructions": {"type": "string"}
        },
        "required": ["name"],
        "additionalProperties": false
      }
    }
  },
  "required": ["items"],
  "additionalProperties": false
}`

const removeItemSlotsSchema = `{
  "type": "object",
  "properties": {
    "order_item_id": {"type": "string"},
    "target_ref": {"type": "string"}
  },
  "additionalProperties": false
}`

const modifyItemSlotsSchema = `{
  "type": "object",
  "properties": {
    "order_item_id": {"type": "string"},
    "target_ref": {"type": "string"},
    "add_modifier": {"type": "string"},
    "remove_modifier": {"type": "string"},
    "set_quantity": {"type": "integer"},
    "set_size": {"type": "string"},
    "set_special_instructions": {"type": "string"},
    "clear_special_instructions": {"type": "boolean"}
  },
  "additionalProperties": false
}`

const chooseItemSchema = `{
  "type": "object",
  "properties": {
    "choice": {"type": "string"},
    "clarifying_question": {"type": "string"}
  },
  "additionalProperties": false
}`

// Validator holds the compiled descriptor schemas, one per tool.
type Validator struct {
	schemas map[string]*jsonschema.Schema
	inputs  map[string]map[string]any
}

// NewValidator compiles every descriptor schema.
func NewValidator() (*Validator, error) {
	texts := map[string]string{
		toolReportItems:    fmt.Sprintf(envelopeSchema, addItemSlotsSchema),
		toolSelectLine:     fmt.Sprintf(envelopeSchema, removeItemSlotsSchema),
		toolModifyLine:     fmt.Sprintf(envelopeSchema, modifyItemSlotsSchema),
		toolChooseMenuItem: chooseItemSchema,
	}
	v := &Validator{
		schemas: make(map[string]*jsonschema.Schema, len(texts)),
		inputs:  make(map[string]map[string]any, len(texts)),
	}
	compiler := jsonschema.NewCompiler()
	for tool, text := range texts {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(text))
		if err != nil {
			return nil, fmt.Errorf("parser: parse schema for %s: %w", tool, err)
		}
		url := tool + ".json"
		if err := compiler.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("parser: add schema resource for %s: %w", tool, err)
		}
		var input map[string]any
		if err := json.Unmarshal([]byte(text), &input); err != nil {
			return nil, fmt.Errorf("parser: decode schema for %s: %w", tool, err)
		}
		v.inputs[tool] = input
	}
	for tool := range texts {
		sch, err := compiler.Compile(tool + ".json")
		if err != nil {
			return nil, fmt.Errorf("parser: compile schema for %s: %w", tool, err)
		}
		v.schemas[tool] = sch
	}
	return v, nil
}

// InputSchema returns the JSON Schema exposed to the model as the tool's
// input contract.
func (v *Validator) InputSchema(tool string) map[string]any {
	return v.inputs[tool]
}

// Validate checks a tool payload against the tool's compiled schema.
func (v *Validator) Validate(tool string, payload map[string]any) error {
	sch, ok := v.schemas[tool]
	if !ok {
		return fmt.Errorf("%w: unknown tool %q", ErrDescriptor, tool)
	}
	if err := sch.Validate(normalizeJSON(payload)); err != nil {
		return fmt.Errorf("%w: tool %s: %v", ErrDescriptor, tool, err)
	}
	return nil
}

// DecodeDescriptor validates the payload and decodes the envelope.
func (v *Validator) DecodeDescriptor(tool string, payload map[string]any) (Descriptor, error) {
	if err := v.Validate(tool, payload); err != nil {
		return Descriptor{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: tool %s: %v", ErrDescriptor, tool, err)
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return Descriptor{}, fmt.Errorf("%w: tool %s: %v", ErrDescriptor, tool, err)
	}
	return d, nil
}

// normalizeJSON round-trips a payload through encoding/json semantics so the
// schema validator sees canonical JSON values (float64 numbers, map[string]any
// objects) regardless of how the provider adapter decoded them.
func normalizeJSON(payload map[string]any) any {
	raw, err := json.Marshal(payload)
	if err != nil {
		return payload
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return payload
	}
	return out
}

// decodePayload validates a flat (non-envelope) tool payload and decodes it
// into out.
func decodePayload(v *Validator, tool string, payload map[string]any, out any) error {
	if err := v.Validate(tool, payload); err != nil {
		return err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: tool %s: %v", ErrDescriptor, tool, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: tool %s: %v", ErrDescriptor, tool, err)
	}
	return nil
}

// decodeSlots unmarshals the envelope slots into the parser's typed slot
// struct.
func decodeSlots(d Descriptor, out any) error {
	if len(d.Slots) == 0 {
		return fmt.Errorf("%w: missing slots", ErrDescriptor)
	}
	if err := json.Unmarshal(d.Slots, out); err != nil {
		return fmt.Errorf("%w: decode slots: %v", ErrDescriptor, err)
	}
	return nil
}
