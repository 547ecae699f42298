package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curbvoice/curbvoice/runtime/convo/model"
)

type scriptedClient struct {
	err   error
	calls int
}

func (c *scriptedClient) Complete(context.Context, model.Request) (model.Response, error) {
	c.calls++
	if c.err != nil {
		return model.Response{}, c.err
	}
	return model.Response{Text: "ok"}, nil
}

func (l *AdaptiveRateLimiter) tpm() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

func TestBackoffHalvesBudget(t *testing.T) {
	l := NewAdaptiveRateLimiter(60000, 120000)
	next := &scriptedClient{err: model.ErrRateLimited}
	client := l.Middleware()(next)

	_, err := client.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.ErrorIs(t, err, model.ErrRateLimited)
	assert.Equal(t, 30000.0, l.tpm())

	_, _ = client.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	assert.Equal(t, 15000.0, l.tpm())
}

func TestBackoffRespectsFloor(t *testing.T) {
	l := NewAdaptiveRateLimiter(1000, 1000)
	for range 20 {
		l.backoff()
	}
	assert.Equal(t, 100.0, l.tpm(), "budget never drops below 10% of initial")
}

func TestProbeRecoversAdditively(t *testing.T) {
	l := NewAdaptiveRateLimiter(60000, 120000)
	l.backoff()
	require.Equal(t, 30000.0, l.tpm())

	next := &scriptedClient{}
	client := l.Middleware()(next)
	_, err := client.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 33000.0, l.tpm(), "recovery adds 5% of the initial budget")
}

func TestProbeRespectsCeiling(t *testing.T) {
	l := NewAdaptiveRateLimiter(60000, 61000)
	l.probe()
	assert.Equal(t, 61000.0, l.tpm())
	l.probe()
	assert.Equal(t, 61000.0, l.tpm())
}

func TestNonRateLimitErrorsLeaveBudgetUntouched(t *testing.T) {
	l := NewAdaptiveRateLimiter(60000, 120000)
	next := &scriptedClient{err: errors.New("boom")}
	client := l.Middleware()(next)

	_, err := client.Complete(context.Background(), model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.Equal(t, 60000.0, l.tpm())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 500, estimateTokens(model.Request{}))

	req := model.Request{Messages: []model.Message{{Role: model.RoleUser, Content: "abcdef"}}}
	assert.Equal(t, 502, estimateTokens(req))
}
