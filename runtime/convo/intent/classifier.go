package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/curbvoice/curbvoice/runtime/convo/model"
	"github.com/curbvoice/curbvoice/runtime/convo/order"
	"github.com/curbvoice/curbvoice/runtime/convo/session"
	"github.com/curbvoice/curbvoice/runtime/convo/telemetry"
)

// historyWindow is the number of prior turns included in the classification
// prompt.
const historyWindow = 8

const systemPrompt = `You are the intent classifier of a drive-thru ordering assistant.
Classify the customer's latest utterance into exactly one intent:
ADD_ITEM, REMOVE_ITEM, MODIFY_ITEM, CLEAR_ORDER, CONFIRM_ORDER, QUESTION, SMALL_TALK, REPEAT, UNKNOWN.

Also produce "cleansed_input": the utterance with background chatter removed.
You MUST keep every word that names a food item, a quantity, a size or a
modification exactly as spoken. When unsure, keep the word and lower your
confidence instead of dropping it.

Respond with a single JSON object and nothing else:
{"intent": "...", "confidence": 0.0, "cleansed_input": "..."}`

type (
	// Classifier performs the single LLM call that opens a turn.
	Classifier struct {
		client  model.Client
		modelID string
		timeout time.Duration
		logger  telemetry.Logger
		metrics telemetry.Metrics
	}

	// ClassifierOptions configures a Classifier.
	ClassifierOptions struct {
		// Model optionally overrides the client's default model.
		Model string
		// Timeout bounds the LLM call. Defaults to 20s.
		Timeout time.Duration
		Logger  telemetry.Logger
		Metrics telemetry.Metrics
	}
)

// NewClassifier builds a Classifier over the given model client.
func NewClassifier(client model.Client, opts ClassifierOptions) (*Classifier, error) {
	if client == nil {
		return nil, errors.New("intent: model client is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Classifier{
		client:  client,
		modelID: opts.Model,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Classify runs the classification call. The call has no side effects.
// Malformed model output degrades to UNKNOWN at confidence zero instead of
// failing the turn; transport errors are returned so the orchestrator can
// translate them into a SYSTEM failure.
func (c *Classifier) Classify(ctx context.Context, utterance string, sc *session.Context, snapshot *order.Aggregate) (Classification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := []model.Message{{Role: model.RoleSystem, Content: systemPrompt}}
	if sc != nil {
		for _, turn := range sc.RecentTurns(historyWindow) {
			messages = append(messages,
				model.Message{Role: model.RoleUser, Content: turn.UserInput},
				model.Message{Role: model.RoleAssistant, Content: turn.ResponseText},
			)
		}
	}
	messages = append(messages, model.Message{Role: model.RoleUser, Content: buildTurnPrompt(utterance, snapshot)})

	started := time.Now()
	resp, err := c.client.Complete(ctx, model.Request{
		Model:     c.modelID,
		Messages:  messages,
		ForceJSON: true,
	})
	c.metrics.RecordTimer(telemetry.MetricModelLatency, time.Since(started), "call", "classify")
	if err != nil {
		return Classification{}, fmt.Errorf("intent: classification call: %w", err)
	}

	cls, perr := parseClassification(resp.Text)
	if perr != nil {
		c.logger.Warn(ctx, "classifier returned malformed output, degrading to UNKNOWN",
			"err", perr.Error(), "raw", truncate(resp.Text, 200))
		return Classification{Intent: Unknown, Confidence: 0, CleansedInput: utterance}, nil
	}
	if cls.CleansedInput == "" {
		cls.CleansedInput = utterance
	}
	return cls, nil
}

func buildTurnPrompt(utterance string, snapshot *order.Aggregate) string {
	var b strings.Builder
	b.WriteString("Current order:\n")
	if snapshot == nil || len(snapshot.Items) == 0 {
		b.WriteString("  (empty)\n")
	} else {
		for _, line := range snapshot.Items {
			fmt.Fprintf(&b, "  %dx %s", line.Quantity, line.Name)
			if len(line.Modifiers) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(line.Modifiers, ", "))
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("Customer says: ")
	b.WriteString(utterance)
	return b.String()
}

func parseClassification(raw string) (Classification, error) {
	raw = stripFences(raw)
	var cls Classification
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		return Classification{}, fmt.Errorf("decode classification: %w", err)
	}
	if !cls.Intent.Valid() {
		return Classification{}, fmt.Errorf("unknown intent %q", cls.Intent)
	}
	if cls.Confidence < 0 {
		cls.Confidence = 0
	}
	if cls.Confidence > 1 {
		cls.Confidence = 1
	}
	return cls, nil
}

// stripFences removes a markdown code fence wrapper some models insist on
// despite JSON-only instructions.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
