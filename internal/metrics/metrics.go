// Package metrics records ledger activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jmerrifield20/fieldledger/internal/ledger"
)

// Recorder implements ledger.Observer. Each Recorder owns its registry, so
// several ledgers (or tests) never share counters.
type Recorder struct {
	registry *prometheus.Registry

	eventsAppended *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	chainLength    prometheus.Gauge
	brokenAt       prometheus.Gauge
}

// NewRecorder creates a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldledger_events_appended_total",
			Help: "Total ledger events appended by category.",
		}, []string{"category"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fieldledger_chain_verifications_total",
			Help: "Total chain verifications by result.",
		}, []string{"result"}),
		chainLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fieldledger_chain_verified_events",
			Help: "Number of events that matched their anchors in the last chain verification.",
		}),
		brokenAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fieldledger_chain_broken_index",
			Help: "Index of the first broken event in the last chain verification, -1 if intact.",
		}),
	}
	r.brokenAt.Set(-1)
	r.registry.MustRegister(r.eventsAppended, r.verifications, r.chainLength, r.brokenAt)
	return r
}

// Registry returns the registry holding the ledger metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// EventAppended implements ledger.Observer.
func (r *Recorder) EventAppended(e ledger.Event) {
	r.eventsAppended.WithLabelValues(string(e.Category)).Inc()
}

// ChainVerified implements ledger.Observer.
func (r *Recorder) ChainVerified(res ledger.Result) {
	r.chainLength.Set(float64(res.Verified))
	if res.Valid {
		r.verifications.WithLabelValues("valid").Inc()
		r.brokenAt.Set(-1)
		return
	}
	r.verifications.WithLabelValues("broken").Inc()
	r.brokenAt.Set(float64(res.Index))
}

// WriteTextfile writes the current metrics in the node exporter textfile
// format, for collection without running an HTTP endpoint.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
