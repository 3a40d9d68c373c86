package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360/streamplug/metric"
)

// pumpMetrics instruments the pipeline pumps. A nil *pumpMetrics disables
// collection; every method tolerates a nil receiver so pumps never branch
// on whether metrics are enabled.
type pumpMetrics struct {
	batchesRead     *prometheus.CounterVec
	batchesOut      *prometheus.CounterVec
	batchesWritten  *prometheus.CounterVec
	messagesWritten *prometheus.CounterVec
	reconnects      *prometheus.CounterVec
	backoffs        *prometheus.CounterVec
	fatalErrors     *prometheus.CounterVec
	rejectedBatches *prometheus.CounterVec
	connectSeconds  *prometheus.HistogramVec
	queueDepth      *prometheus.GaugeVec
}

func newPumpMetrics(registry *metric.Registry) (*pumpMetrics, error) {
	if registry == nil {
		return nil, nil
	}

	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "streamplug",
			Subsystem: "host",
			Name:      name,
			Help:      help,
		}, []string{"instance"})
	}

	m := &pumpMetrics{
		batchesRead:     counter("batches_read_total", "Batches pulled from input plugins"),
		batchesOut:      counter("batches_processed_total", "Batches returned by processor plugins"),
		batchesWritten:  counter("batches_written_total", "Batches delivered to output plugins"),
		messagesWritten: counter("messages_written_total", "Messages delivered to output plugins"),
		reconnects:      counter("reconnects_total", "Plugin sessions re-established after a disconnect"),
		backoffs:        counter("backoffs_total", "Server-requested retry delays honored"),
		fatalErrors:     counter("fatal_errors_total", "Plugin calls that failed with no recovery signal"),
		rejectedBatches: counter("rejected_batches_total", "Output batches handed to the rejected-batch handler"),
		connectSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "streamplug",
			Subsystem: "host",
			Name:      "connect_seconds",
			Help:      "Time to establish a plugin session, including retries",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"instance"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "streamplug",
			Subsystem: "host",
			Name:      "queue_depth",
			Help:      "Current depth of an inter-stage batch queue",
		}, []string{"stage"}),
	}

	registrations := []struct {
		name      string
		collector prometheus.Collector
	}{
		{"batches_read_total", m.batchesRead},
		{"batches_processed_total", m.batchesOut},
		{"batches_written_total", m.batchesWritten},
		{"messages_written_total", m.messagesWritten},
		{"reconnects_total", m.reconnects},
		{"backoffs_total", m.backoffs},
		{"fatal_errors_total", m.fatalErrors},
		{"rejected_batches_total", m.rejectedBatches},
		{"connect_seconds", m.connectSeconds},
		{"queue_depth", m.queueDepth},
	}
	for _, r := range registrations {
		if err := registry.Register("host", r.name, r.collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *pumpMetrics) readBatch(instance string) {
	if m == nil {
		return
	}
	m.batchesRead.WithLabelValues(instance).Inc()
}

func (m *pumpMetrics) processedBatch(instance string) {
	if m == nil {
		return
	}
	m.batchesOut.WithLabelValues(instance).Inc()
}

func (m *pumpMetrics) wroteBatch(instance string, messages int) {
	if m == nil {
		return
	}
	m.batchesWritten.WithLabelValues(instance).Inc()
	m.messagesWritten.WithLabelValues(instance).Add(float64(messages))
}

func (m *pumpMetrics) reconnected(instance string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(instance).Inc()
}

func (m *pumpMetrics) backedOff(instance string) {
	if m == nil {
		return
	}
	m.backoffs.WithLabelValues(instance).Inc()
}

func (m *pumpMetrics) fatal(instance string) {
	if m == nil {
		return
	}
	m.fatalErrors.WithLabelValues(instance).Inc()
}

func (m *pumpMetrics) rejected(instance string) {
	if m == nil {
		return
	}
	m.rejectedBatches.WithLabelValues(instance).Inc()
}

func (m *pumpMetrics) observeConnect(instance string, d time.Duration) {
	if m == nil {
		return
	}
	m.connectSeconds.WithLabelValues(instance).Observe(d.Seconds())
}

// depthGauge returns the gauge for one queue stage, or nil when metrics are
// disabled.
func (m *pumpMetrics) depthGauge(stage string) prometheus.Gauge {
	if m == nil {
		return nil
	}
	return m.queueDepth.WithLabelValues(stage)
}
