package broker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentui/internal/domain"
)

func TestWaitUnknownReturnsImmediately(t *testing.T) {
	b := newTestBroker(t, Config{PollInterval: time.Second})

	start := time.Now()
	_, err := b.WaitForCompletion(context.Background(), "missing", 5*time.Second)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestWaitAlreadyCompletedReturnsImmediately(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t, Config{PollInterval: time.Second})

	req, err := b.CreateRequest(ctx, confirmParams("A"))
	require.NoError(t, err)
	_, err = b.SubmitResponse(ctx, req.ID, json.RawMessage(`{"approved":true}`))
	require.NoError(t, err)

	start := time.Now()
	got, err := b.WaitForCompletion(ctx, req.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, domain.StatusCompleted, got.Status)
	assert.JSONEq(t, `{"approved":true}`, string(got.Output))
}

func TestWaitWakesOnCompletion(t *testing.T) {
	ctx := context.Background()
	// A poll interval longer than the test proves the done channel wakes the waiter.
	b := newTestBroker(t, Config{PollInterval: 10 * time.Second})

	req, err := b.CreateRequest(ctx, confirmParams("A"))
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_, _ = b.SubmitResponse(ctx, req.ID, json.RawMessage(`{"approved":true}`))
	}()

	start := time.Now()
	got, err := b.WaitForCompletion(ctx, req.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, domain.StatusCompleted, got.Status)
}

func TestWaitTimesOutNotBeforeDeadline(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t, Config{PollInterval: 20 * time.Millisecond})

	req, err := b.CreateRequest(ctx, confirmParams("A"))
	require.NoError(t, err)

	timeout := 200 * time.Millisecond
	start := time.Now()
	_, err = b.WaitForCompletion(ctx, req.ID, timeout)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, domain.ErrWaitTimeout)
	assert.GreaterOrEqual(t, elapsed, timeout)

	got, err := b.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status, "waiter timeout must not change the request")
}

func TestWaitStopsOnContextCancel(t *testing.T) {
	b := newTestBroker(t, Config{PollInterval: 20 * time.Millisecond})

	req, err := b.CreateRequest(context.Background(), confirmParams("A"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err = b.WaitForCompletion(ctx, req.ID, 10*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitReturnsCancelledRequest(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(t, Config{PollInterval: 20 * time.Millisecond})

	req, err := b.CreateRequest(ctx, confirmParams("A"))
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		_, _ = b.CancelRequest(ctx, req.ID, "agent gave up")
	}()

	got, err := b.WaitForCompletion(ctx, req.ID, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusError, got.Status)
	assert.Equal(t, "agent gave up", got.Error)
}
