package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/agentui/internal/broker"
	"github.com/xiaot623/agentui/internal/domain"
	"github.com/xiaot623/agentui/internal/images"
	"github.com/xiaot623/agentui/internal/logger"
	"github.com/xiaot623/agentui/internal/metrics"
	"github.com/xiaot623/agentui/internal/policy"
	"github.com/xiaot623/agentui/internal/repository"
	"github.com/xiaot623/agentui/internal/session"
	"github.com/xiaot623/agentui/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, *broker.Broker) {
	t.Helper()
	ctx := context.Background()

	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)
	history, err := repository.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })
	imgs, err := images.NewStore(images.Options{Dir: t.TempDir(), MaxUploadBytes: 1 << 20})
	require.NoError(t, err)

	m := metrics.New()
	b := broker.New(store.New(), session.NewRegistry(),
		broker.Config{PollInterval: 20 * time.Millisecond},
		broker.WithAdmission(engine),
		broker.WithHistory(history),
		broker.WithMetrics(m),
		broker.WithLogger(logger.Nop()),
	)
	return NewHandler(b, WithImages(imgs, time.Hour), WithMetrics(m)), b
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func confirmParams() broker.CreateParams {
	return broker.CreateParams{
		Type:           domain.WidgetConfirm,
		SessionID:      "A",
		Input:          json.RawMessage(`{"title":"Deploy?"}`),
		TimeoutSeconds: 300,
	}
}
