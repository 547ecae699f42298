package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curbvoice/curbvoice/runtime/convo/model"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func newClient(t *testing.T, stub *stubMessagesClient) *Client {
	t.Helper()
	cl, err := New(stub, Options{DefaultModel: "claude-sonnet-4-5", MaxTokens: 128})
	require.NoError(t, err)
	return cl
}

func TestCompleteText(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: `{"intent":"ADD_ITEM"}`}},
		StopReason: sdk.StopReasonEndTurn,
		Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
	}}
	cl := newClient(t, stub)

	resp, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "classify"},
			{Role: model.RoleUser, Content: "a burger please"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"intent":"ADD_ITEM"}`, resp.Text)
	assert.Equal(t, string(sdk.StopReasonEndTurn), resp.StopReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)

	require.Len(t, stub.lastParams.System, 1)
	assert.Equal(t, "classify", stub.lastParams.System[0].Text)
	require.Len(t, stub.lastParams.Messages, 1)
}

func TestCompleteToolUse(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{
			Type:  "tool_use",
			Name:  "report_order_items",
			ID:    "tool-1",
			Input: json.RawMessage(`{"intent":"ADD_ITEM","slots":{"items":[{"name":"burger"}]}}`),
		}},
		StopReason: sdk.StopReasonToolUse,
	}}
	cl := newClient(t, stub)

	resp, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "a burger"}},
		Tools: []model.ToolDefinition{{
			Name:        "report_order_items",
			Description: "Report the items the customer asked to add.",
			InputSchema: map[string]any{"type": "object"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	call := resp.ToolCalls[0]
	assert.Equal(t, "report_order_items", call.Name)
	assert.Equal(t, "tool-1", call.ID)
	assert.Equal(t, "ADD_ITEM", call.Payload["intent"])
	require.Len(t, stub.lastParams.Tools, 1)
}

func TestForceJSONAppendsSystemInstruction(t *testing.T) {
	stub := &stubMessagesClient{resp: &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: "{}"}},
	}}
	cl := newClient(t, stub)

	_, err := cl.Complete(context.Background(), model.Request{
		Messages:  []model.Message{{Role: model.RoleUser, Content: "hi"}},
		ForceJSON: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, stub.lastParams.System)
	assert.Equal(t, jsonOnlyInstruction, stub.lastParams.System[len(stub.lastParams.System)-1].Text)
}

func TestCompleteValidation(t *testing.T) {
	cl := newClient(t, &stubMessagesClient{})

	_, err := cl.Complete(context.Background(), model.Request{})
	assert.ErrorIs(t, err, model.ErrNoMessages)

	_, err = New(nil, Options{DefaultModel: "m"})
	assert.Error(t, err)
	_, err = New(&stubMessagesClient{}, Options{})
	assert.Error(t, err)
}

func TestRateLimitErrorIsWrapped(t *testing.T) {
	stub := &stubMessagesClient{err: &sdk.Error{StatusCode: http.StatusTooManyRequests}}
	cl := newClient(t, stub)

	_, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, model.ErrRateLimited)
}

func TestCompleteTransportError(t *testing.T) {
	stub := &stubMessagesClient{err: errors.New("overloaded")}
	cl := newClient(t, stub)

	_, err := cl.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic messages.new")
}
