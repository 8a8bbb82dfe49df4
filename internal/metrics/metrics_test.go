package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.RequestCreated("confirm")
	m.RequestCreated("confirm")
	m.RequestFinished("completed")
	m.ResponseConflict()
	m.DeliveryFailed()
	m.ImageStored()
	m.ObserveWait("completed", 200*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requestsCreated.WithLabelValues("confirm")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsFinished.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.responseConflicts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveryFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.imagesStored))
}

func TestHandlerExposesState(t *testing.T) {
	m := New()
	m.TrackState(
		func() float64 { return 3 },
		func() float64 { return 1 },
		func() float64 { return 2 },
	)
	m.RequestCreated("form")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "agentui_requests_pending 3")
	assert.Contains(t, body, "agentui_channels_connected 2")
	assert.Contains(t, body, `agentui_requests_created_total{type="form"} 1`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RequestCreated("confirm")
	m.RequestFinished("timeout")
	m.ResponseConflict()
	m.DeliveryFailed()
	m.ObserveWait("timeout", time.Second)
	m.TrackState(nil, nil, nil)
}
