package parser

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curbvoice/curbvoice/runtime/convo/command"
	"github.com/curbvoice/curbvoice/runtime/convo/intent"
	"github.com/curbvoice/curbvoice/runtime/convo/menu"
	menuinmem "github.com/curbvoice/curbvoice/runtime/convo/menu/inmem"
	"github.com/curbvoice/curbvoice/runtime/convo/model"
	"github.com/curbvoice/curbvoice/runtime/convo/order"
)

// fakeClient replays scripted responses and records every request.
type fakeClient struct {
	t         *testing.T
	responses []model.Response
	err       error
	requests  []model.Request
}

func (f *fakeClient) Complete(_ context.Context, req model.Request) (model.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return model.Response{}, f.err
	}
	if len(f.responses) == 0 {
		f.t.Fatal("fake client: no scripted response left")
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func toolResponse(name string, payload map[string]any) model.Response {
	return model.Response{ToolCalls: []model.ToolCall{{ID: "call-1", Name: name, Payload: payload}}}
}

func itemsPayload(items ...map[string]any) map[string]any {
	anyItems := make([]any, len(items))
	for i, it := range items {
		anyItems[i] = it
	}
	return map[string]any{
		"intent":     "ADD_ITEM",
		"confidence": 0.9,
		"slots":      map[string]any{"items": anyItems},
	}
}

func testMenu(t *testing.T) menu.Source {
	t.Helper()
	repo := menuinmem.NewRepository()
	repo.SeedItems(1,
		menu.Item{ID: "itm-classic", RestaurantID: 1, Name: "Classic Burger", Price: decimal.NewFromFloat(5.00), IsAvailable: true},
		menu.Item{ID: "itm-veggie", RestaurantID: 1, Name: "Veggie Burger", Price: decimal.NewFromFloat(5.50), IsAvailable: true},
		menu.Item{ID: "itm-fries", RestaurantID: 1, Name: "French Fries", Price: decimal.NewFromFloat(2.50), IsAvailable: true},
	)
	src, err := menu.NewReadModel(repo, menu.ReadModelOptions{})
	require.NoError(t, err)
	return src
}

func testRegistry(t *testing.T, client model.Client) *Registry {
	t.Helper()
	r, err := NewRegistry(Config{Client: client, Menu: testMenu(t)})
	require.NoError(t, err)
	return r
}

func TestRuleParsers(t *testing.T) {
	r := testRegistry(t, &fakeClient{t: t})
	ctx := context.Background()

	t.Run("clear", func(t *testing.T) {
		out, err := r.Parse(ctx, Input{RestaurantID: 1, Intent: intent.ClearOrder, Utterance: "start over"})
		require.NoError(t, err)
		require.Len(t, out.Commands, 1)
		assert.IsType(t, command.ClearOrder{}, out.Commands[0])
	})

	t.Run("confirm", func(t *testing.T) {
		out, err := r.Parse(ctx, Input{RestaurantID: 1, Intent: intent.ConfirmOrder, Utterance: "that's all"})
		require.NoError(t, err)
		require.Len(t, out.Commands, 1)
		assert.IsType(t, command.ConfirmOrder{}, out.Commands[0])
	})

	t.Run("unknown", func(t *testing.T) {
		out, err := r.Parse(ctx, Input{RestaurantID: 1, Intent: intent.Unknown, Utterance: "fhqwhgads"})
		require.NoError(t, err)
		require.Len(t, out.Commands, 1)
		cmd := out.Commands[0].(command.Unknown)
		assert.Equal(t, "fhqwhgads", cmd.UserInput)
	})

	t.Run("unregistered intent falls back to unknown", func(t *testing.T) {
		out, err := r.Parse(ctx, Input{RestaurantID: 1, Intent: intent.SmallTalk, Utterance: "nice weather"})
		require.NoError(t, err)
		require.Len(t, out.Commands, 1)
		assert.IsType(t, command.Unknown{}, out.Commands[0])
	})
}

func TestQuestionCategoryInference(t *testing.T) {
	cases := []struct {
		utterance string
		category  string
	}{
		{"how much is the burger", command.QuestionCategoryPricing},
		{"what time do you close", command.QuestionCategoryHours},
		{"does the shake contain nuts", command.QuestionCategoryAllergens},
		{"what do you have", command.QuestionCategoryMenu},
		{"do you take reservations", command.QuestionCategoryOther},
	}
	r := testRegistry(t, &fakeClient{t: t})
	for _, tc := range cases {
		t.Run(tc.utterance, func(t *testing.T) {
			out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.Question, Utterance: tc.utterance})
			require.NoError(t, err)
			q := out.Commands[0].(command.Question)
			assert.Equal(t, tc.category, q.Category)
			assert.Equal(t, tc.utterance, q.Question)
		})
	}
}

func TestAddItemParserSingleMatch(t *testing.T) {
	client := &fakeClient{t: t, responses: []model.Response{
		toolResponse(toolReportItems, itemsPayload(map[string]any{
			"name": "fries", "quantity": 2, "modifiers": []any{"extra salt"},
		})),
	}}
	r := testRegistry(t, client)

	out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.AddItem, Utterance: "two fries with extra salt"})
	require.NoError(t, err)
	require.Len(t, out.Commands, 1)
	add := out.Commands[0].(command.AddItem)
	assert.Equal(t, "itm-fries", add.MenuItemID)
	assert.Equal(t, 2, add.Quantity)
	assert.Equal(t, []string{"extra salt"}, add.Modifiers)
	assert.Equal(t, confidenceResolved, out.Confidence)
}

func TestAddItemParserQuantityDefaultsToOne(t *testing.T) {
	client := &fakeClient{t: t, responses: []model.Response{
		toolResponse(toolReportItems, itemsPayload(map[string]any{"name": "fries"})),
	}}
	r := testRegistry(t, client)
	out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.AddItem, Utterance: "fries please"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Commands[0].(command.AddItem).Quantity)
}

func TestAddItemParserNoMatch(t *testing.T) {
	client := &fakeClient{t: t, responses: []model.Response{
		toolResponse(toolReportItems, itemsPayload(map[string]any{"name": "sushi roll"})),
	}}
	r := testRegistry(t, client)

	out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.AddItem, Utterance: "a sushi roll"})
	require.NoError(t, err)
	require.Len(t, out.Commands, 1)
	cmd := out.Commands[0].(command.ItemUnavailable)
	assert.Equal(t, "sushi roll", cmd.RequestedItem)
}

func TestAddItemParserDisambiguation(t *testing.T) {
	t.Run("model picks a candidate", func(t *testing.T) {
		client := &fakeClient{t: t, responses: []model.Response{
			toolResponse(toolReportItems, itemsPayload(map[string]any{"name": "burger"})),
			toolResponse(toolChooseMenuItem, map[string]any{"choice": "Veggie Burger"}),
		}}
		r := testRegistry(t, client)

		out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.AddItem, Utterance: "the veggie one"})
		require.NoError(t, err)
		add := out.Commands[0].(command.AddItem)
		assert.Equal(t, "itm-veggie", add.MenuItemID)
		assert.Equal(t, confidenceDisambiguate, out.Confidence)
		require.Len(t, client.requests, 2, "one extraction call plus one disambiguation call")
	})

	t.Run("model asks for clarification", func(t *testing.T) {
		client := &fakeClient{t: t, responses: []model.Response{
			toolResponse(toolReportItems, itemsPayload(map[string]any{"name": "burger"})),
			toolResponse(toolChooseMenuItem, map[string]any{"clarifying_question": "Classic or veggie?"}),
		}}
		r := testRegistry(t, client)

		out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.AddItem, Utterance: "a burger"})
		require.NoError(t, err)
		cmd := out.Commands[0].(command.ClarificationNeeded)
		assert.Equal(t, "burger", cmd.AmbiguousItem)
		assert.Equal(t, "Classic or veggie?", cmd.ClarificationQuestion)
		assert.ElementsMatch(t, []string{"Classic Burger", "Veggie Burger"}, cmd.SuggestedOptions)
		assert.Equal(t, confidenceClarify, out.Confidence)
	})

	t.Run("non-candidate choice degrades to clarification", func(t *testing.T) {
		client := &fakeClient{t: t, responses: []model.Response{
			toolResponse(toolReportItems, itemsPayload(map[string]any{"name": "burger"})),
			toolResponse(toolChooseMenuItem, map[string]any{"choice": "Chicken Burger"}),
		}}
		r := testRegistry(t, client)

		out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.AddItem, Utterance: "a burger"})
		require.NoError(t, err)
		assert.IsType(t, command.ClarificationNeeded{}, out.Commands[0])
	})
}

func TestAddItemParserDescriptorRejected(t *testing.T) {
	cases := []struct {
		name    string
		payload map[string]any
	}{
		{"unknown envelope key", map[string]any{
			"intent": "ADD_ITEM",
			"slots":  map[string]any{"items": []any{map[string]any{"name": "fries"}}},
			"bogus":  true,
		}},
		{"unknown item key", map[string]any{
			"intent": "ADD_ITEM",
			"slots":  map[string]any{"items": []any{map[string]any{"name": "fries", "menu_item_id": "itm-fries"}}},
		}},
		{"missing slots", map[string]any{"intent": "ADD_ITEM"}},
		{"empty items", map[string]any{
			"intent": "ADD_ITEM",
			"slots":  map[string]any{"items": []any{}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeClient{t: t, responses: []model.Response{toolResponse(toolReportItems, tc.payload)}}
			r := testRegistry(t, client)
			_, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.AddItem, Utterance: "fries"})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDescriptor)
		})
	}
}

func TestAddItemParserNoToolCallResolvesRawUtterance(t *testing.T) {
	client := &fakeClient{t: t, responses: []model.Response{{Text: "sure thing"}}}
	r := testRegistry(t, client)
	out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.AddItem, Utterance: "french fries"})
	require.NoError(t, err)
	add := out.Commands[0].(command.AddItem)
	assert.Equal(t, "itm-fries", add.MenuItemID)
}

func TestAddItemParserModelError(t *testing.T) {
	client := &fakeClient{t: t, err: errors.New("provider down")}
	r := testRegistry(t, client)
	_, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.AddItem, Utterance: "fries"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDescriptor)
}

func twoLineOrder() *order.Aggregate {
	return &order.Aggregate{
		ID:     "ord-1",
		Status: order.StatusActive,
		Items: []order.Line{
			{LineID: "line-1", MenuItemID: "itm-classic", Name: "Classic Burger", Quantity: 1},
			{LineID: "line-2", MenuItemID: "itm-fries", Name: "French Fries", Quantity: 1},
		},
	}
}

func TestRemoveItemParserRules(t *testing.T) {
	r := testRegistry(t, &fakeClient{t: t})
	ctx := context.Background()

	t.Run("pronoun means last item", func(t *testing.T) {
		out, err := r.Parse(ctx, Input{RestaurantID: 1, Intent: intent.RemoveItem, Utterance: "remove that", Order: twoLineOrder()})
		require.NoError(t, err)
		cmd := out.Commands[0].(command.RemoveItem)
		assert.Equal(t, command.TargetLastItem, cmd.TargetRef)
	})

	t.Run("single line order needs no reference", func(t *testing.T) {
		agg := twoLineOrder()
		agg.Items = agg.Items[:1]
		out, err := r.Parse(ctx, Input{RestaurantID: 1, Intent: intent.RemoveItem, Utterance: "take the food off", Order: agg})
		require.NoError(t, err)
		assert.Equal(t, command.TargetLastItem, out.Commands[0].(command.RemoveItem).TargetRef)
	})

	t.Run("unique name match", func(t *testing.T) {
		out, err := r.Parse(ctx, Input{RestaurantID: 1, Intent: intent.RemoveItem, Utterance: "no more fries", Order: twoLineOrder()})
		require.NoError(t, err)
		assert.Equal(t, "French Fries", out.Commands[0].(command.RemoveItem).TargetRef)
	})

	t.Run("empty order still yields a command for the bus to reject", func(t *testing.T) {
		out, err := r.Parse(ctx, Input{RestaurantID: 1, Intent: intent.RemoveItem, Utterance: "remove the burger"})
		require.NoError(t, err)
		assert.IsType(t, command.RemoveItem{}, out.Commands[0])
	})
}

func TestRemoveItemParserModelSelection(t *testing.T) {
	agg := &order.Aggregate{
		ID:     "ord-1",
		Status: order.StatusActive,
		Items: []order.Line{
			{LineID: "line-1", Name: "Classic Burger", Quantity: 1},
			{LineID: "line-2", Name: "Veggie Burger", Quantity: 1},
		},
	}

	t.Run("model selects a line", func(t *testing.T) {
		client := &fakeClient{t: t, responses: []model.Response{
			toolResponse(toolSelectLine, map[string]any{
				"intent": "REMOVE_ITEM",
				"slots":  map[string]any{"order_item_id": "line-2"},
			}),
		}}
		r := testRegistry(t, client)
		out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.RemoveItem, Utterance: "drop the second burger", Order: agg})
		require.NoError(t, err)
		assert.Equal(t, "line-2", out.Commands[0].(command.RemoveItem).OrderItemID)
	})

	t.Run("model asks for clarification", func(t *testing.T) {
		client := &fakeClient{t: t, responses: []model.Response{
			toolResponse(toolSelectLine, map[string]any{
				"intent":              "REMOVE_ITEM",
				"slots":               map[string]any{},
				"needs_clarification": true,
				"clarifying_question": "Which burger should I remove?",
			}),
		}}
		r := testRegistry(t, client)
		out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.RemoveItem, Utterance: "remove the burger", Order: agg})
		require.NoError(t, err)
		cmd := out.Commands[0].(command.Unknown)
		assert.Equal(t, "Which burger should I remove?", cmd.ClarifyingQuestion)
	})
}

func TestModifyItemParser(t *testing.T) {
	agg := twoLineOrder()

	t.Run("quantity change", func(t *testing.T) {
		client := &fakeClient{t: t, responses: []model.Response{
			toolResponse(toolModifyLine, map[string]any{
				"intent": "MODIFY_ITEM",
				"slots":  map[string]any{"order_item_id": "line-1", "set_quantity": 3},
			}),
		}}
		r := testRegistry(t, client)
		out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.ModifyItem, Utterance: "make it three burgers", Order: agg})
		require.NoError(t, err)
		cmd := out.Commands[0].(command.ModifyItem)
		assert.Equal(t, "line-1", cmd.OrderItemID)
		assert.True(t, cmd.Changes.HasQuantity)
		assert.Equal(t, 3, cmd.Changes.SetQuantity)
	})

	t.Run("modifier change on last item", func(t *testing.T) {
		client := &fakeClient{t: t, responses: []model.Response{
			toolResponse(toolModifyLine, map[string]any{
				"intent": "MODIFY_ITEM",
				"slots":  map[string]any{"target_ref": "last_item", "add_modifier": "cheese"},
			}),
		}}
		r := testRegistry(t, client)
		out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.ModifyItem, Utterance: "add cheese to that", Order: agg})
		require.NoError(t, err)
		cmd := out.Commands[0].(command.ModifyItem)
		assert.Equal(t, command.TargetLastItem, cmd.TargetRef)
		assert.Equal(t, "cheese", cmd.Changes.AddModifier)
		assert.False(t, cmd.Changes.HasQuantity)
	})

	t.Run("empty change set asks for clarification", func(t *testing.T) {
		client := &fakeClient{t: t, responses: []model.Response{
			toolResponse(toolModifyLine, map[string]any{
				"intent": "MODIFY_ITEM",
				"slots":  map[string]any{"order_item_id": "line-1"},
			}),
		}}
		r := testRegistry(t, client)
		out, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.ModifyItem, Utterance: "change the burger", Order: agg})
		require.NoError(t, err)
		assert.IsType(t, command.Unknown{}, out.Commands[0])
	})

	t.Run("unknown slot key rejected", func(t *testing.T) {
		client := &fakeClient{t: t, responses: []model.Response{
			toolResponse(toolModifyLine, map[string]any{
				"intent": "MODIFY_ITEM",
				"slots":  map[string]any{"order_item_id": "line-1", "set_price": 1.00},
			}),
		}}
		r := testRegistry(t, client)
		_, err := r.Parse(context.Background(), Input{RestaurantID: 1, Intent: intent.ModifyItem, Utterance: "make it a dollar", Order: agg})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDescriptor)
	})
}
