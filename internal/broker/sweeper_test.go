package broker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentui/internal/domain"
	"github.com/xiaot623/agentui/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSweepExpiresAndEvicts(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	history, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer history.Close()

	b := newTestBroker(t, Config{Retention: time.Hour, ExpirePending: true},
		WithClock(clock.Now), WithHistory(history))

	ch := &recordingChannel{id: "c"}
	require.NoError(t, b.OnClientConnect("A", ch))

	short := confirmParams("A")
	short.TimeoutSeconds = 1
	expiring, err := b.CreateRequest(ctx, short)
	require.NoError(t, err)

	long := confirmParams("A")
	long.TimeoutSeconds = 600
	waiting, err := b.CreateRequest(ctx, long)
	require.NoError(t, err)

	clock.Advance(2 * time.Second)
	res := b.Sweep(ctx, clock.Now())
	assert.Equal(t, SweepResult{Expired: 1}, res)

	got, err := b.GetRequest(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusTimeout, got.Status)
	assert.Empty(t, got.Output)

	events := ch.Events()
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventTypeRequestCompleted, events[2].Type)
	assert.Equal(t, expiring.ID, events[2].Request.ID)

	still, err := b.GetRequest(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, still.Status)

	clock.Advance(time.Hour + time.Second)
	_, err = b.SubmitResponse(ctx, waiting.ID, json.RawMessage(`{"approved":true}`))
	require.NoError(t, err)

	res = b.Sweep(ctx, clock.Now())
	assert.Equal(t, SweepResult{Evicted: 1}, res)

	_, err = b.GetRequest(ctx, expiring.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = b.GetRequest(ctx, waiting.ID)
	require.NoError(t, err, "recently completed request is retained")

	trail, err := b.History(ctx, expiring.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, domain.HistoryCreated, trail[0].Type)
	assert.Equal(t, domain.HistoryExpired, trail[1].Type)
	assert.Equal(t, domain.HistoryEvicted, trail[2].Type)
}

func TestSweepLeavesPendingWhenExpiryDisabled(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Now()}
	b := newTestBroker(t, Config{ExpirePending: false}, WithClock(clock.Now))

	params := confirmParams("A")
	params.TimeoutSeconds = 1
	req, err := b.CreateRequest(ctx, params)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	assert.Equal(t, SweepResult{}, b.Sweep(ctx, clock.Now()))

	got, err := b.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
}

func TestLateResponseAcceptedWithDefaultConfig(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	b := newTestBroker(t, DefaultConfig(), WithClock(clock.Now))

	req, err := b.CreateRequest(ctx, confirmParams("A"))
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	require.True(t, clock.Now().After(req.ExpiresAt))
	assert.Equal(t, SweepResult{}, b.Sweep(ctx, clock.Now()))

	done, err := b.SubmitResponse(ctx, req.ID, json.RawMessage(`{"approved":true}`))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, done.Status)
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	b := newTestBroker(t, Config{SweepInterval: 10 * time.Millisecond, ExpirePending: true})

	params := confirmParams("A")
	params.TimeoutSeconds = 1
	req, err := b.CreateRequest(context.Background(), params)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- b.RunSweeper(ctx) }()

	assert.Eventually(t, func() bool {
		got, err := b.GetRequest(context.Background(), req.ID)
		return err == nil && got.Status == domain.StatusTimeout
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
