// Package model provides the provider-agnostic LLM client contract used by the
// intent classifier and the tool-using parsers. Implementations wrap provider
// SDKs (Anthropic, OpenAI) and translate Request/Response to provider-specific
// formats; see features/model.
package model

import (
	"context"
	"errors"
)

type (
	// Client defines the contract the pipeline uses to invoke LLM calls.
	// Clients must be safe for concurrent use across turns.
	Client interface {
		// Complete sends a chat completion request to the model provider and
		// returns the generated response. Returns an error if the provider is
		// unavailable, quota is exceeded, or the request is malformed.
		Complete(ctx context.Context, req Request) (Response, error)
	}

	// Request captures the normalized parameters for a model invocation.
	Request struct {
		// Model identifies the target model using the provider-specific
		// identifier. Empty means use the client's configured default.
		Model string

		// Messages is the ordered chat history provided to the model,
		// including system prompts, user inputs and prior assistant turns.
		Messages []Message

		// Temperature controls sampling temperature. Zero means greedy
		// decoding.
		Temperature float32

		// Tools describes the tool schemas exposed to the model for function
		// calling. Empty if the model should not invoke tools.
		Tools []ToolDefinition

		// ForceJSON asks the provider for a JSON-only response. Providers
		// without a native JSON mode enforce it via the system prompt.
		ForceJSON bool

		// MaxTokens caps the number of completion tokens. Zero means the
		// provider default.
		MaxTokens int
	}

	// Response wraps the generated content and any tool call suggestions.
	Response struct {
		// Text is the concatenated assistant text. Empty if the model only
		// requested tool calls.
		Text string

		// ToolCalls lists tool invocations requested by the model. Empty if
		// the model produced a final text response.
		ToolCalls []ToolCall

		// Usage reports token usage when the provider makes it available.
		Usage TokenUsage

		// StopReason explains why the model stopped generating. Values are
		// provider-specific and may be empty.
		StopReason string
	}

	// Message mirrors an LLM chat message with role and content.
	Message struct {
		// Role is one of "system", "user", "assistant" or "tool".
		Role string

		// Content is the message text. For tool-result messages this is the
		// serialized tool output.
		Content string

		// ToolCallID correlates a tool-result message with the tool call that
		// produced it. Empty for regular messages.
		ToolCallID string
	}

	// ToolDefinition describes a tool schema passed to model providers for
	// function calling.
	ToolDefinition struct {
		// Name is the identifier presented to the model.
		Name string

		// Description documents the tool for prompting purposes.
		Description string

		// InputSchema is the JSON Schema describing the tool's input
		// parameters, typically a map[string]any with "type": "object".
		InputSchema any
	}

	// ToolCall captures a tool invocation requested by the model.
	ToolCall struct {
		// ID is the provider-assigned identifier of this invocation, echoed
		// back in the tool-result message.
		ID string

		// Name identifies which tool should be invoked.
		Name string

		// Payload carries the JSON arguments requested by the model, decoded
		// into a map[string]any.
		Payload map[string]any
	}

	// TokenUsage records prompt/completion token counts when provided by the
	// model provider.
	TokenUsage struct {
		InputTokens  int
		OutputTokens int
		TotalTokens  int
	}
)

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

var (
	// ErrNoMessages indicates a request was issued without any messages.
	ErrNoMessages = errors.New("model: messages are required")
	// ErrRateLimited indicates the provider rejected the call for quota
	// reasons. Adapters wrap provider 429s with this sentinel so middleware
	// can react.
	ErrRateLimited = errors.New("model: rate limited")
)
