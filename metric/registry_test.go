package metric

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamplug/errors"
)

func newCounter(name string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "streamplug",
		Subsystem: "test",
		Name:      name,
		Help:      "test counter",
	})
}

func TestRegisterAndUnregister(t *testing.T) {
	r := NewRegistry()
	c := newCounter("events_total")

	require.NoError(t, r.Register("pump", "events", c))
	assert.True(t, r.Unregister("pump", "events"))
	assert.False(t, r.Unregister("pump", "events"))
}

func TestDuplicateRegistrationRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("pump", "events", newCounter("events_total")))

	err := r.Register("pump", "events", newCounter("events_total"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestPrometheusNameConflictRejected(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("pump_a", "events", newCounter("events_total")))

	// Different registry key, same fully-qualified prometheus name
	err := r.Register("pump_b", "events", newCounter("events_total"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestHandlerServesMetrics(t *testing.T) {
	r := NewRegistry()
	c := newCounter("served_total")
	require.NoError(t, r.Register("pump", "served", c))
	c.Add(3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "streamplug_test_served_total 3")
}
