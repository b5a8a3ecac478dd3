package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerUsesOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewManager(WithRegistry(reg), WithNamespace("test"))
	assert.Same(t, reg, m.Registry())

	m.eventsEnqueued.WithLabelValues("COIN_INSERTED").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsEnqueued.WithLabelValues("COIN_INSERTED")))
}

func TestPackageHelpersRecordOnDefault(t *testing.T) {
	before := testutil.ToFloat64(Default().meterReadErrors.WithLabelValues("LEFT"))
	RecordMeterReadError("LEFT")
	assert.Equal(t, before+1, testutil.ToFloat64(Default().meterReadErrors.WithLabelValues("LEFT")))

	SetRelay("RIGHT", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(Default().relayOn.WithLabelValues("RIGHT")))
	SetRelay("RIGHT", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(Default().relayOn.WithLabelValues("RIGHT")))
}

func TestHandlerExposesNamespace(t *testing.T) {
	SetQueueCapacity(100)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "evm_queue_capacity 100"), "body: %s", body)
}
