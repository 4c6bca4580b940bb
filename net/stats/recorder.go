package stats

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"github.com/ValentinKolb/dNet/net/common"
	"github.com/VictoriaMetrics/metrics"
)

// Recorder counts events per kind
type Recorder struct {
	set      *metrics.Set
	counters map[common.EventKind]*metrics.Counter
}

// NewRecorder creates a recorder with one counter per event kind.
// If connections is not nil it is exported as the dnet_connections gauge.
func NewRecorder(connections func() int) *Recorder {
	r := &Recorder{
		set:      metrics.NewSet(),
		counters: make(map[common.EventKind]*metrics.Counter),
	}
	for _, k := range common.EventKinds() {
		r.counters[k] = r.set.NewCounter(fmt.Sprintf(`dnet_events_total{kind=%q}`, k.String()))
	}
	if connections != nil {
		r.set.NewGauge("dnet_connections", func() float64 {
			return float64(connections())
		})
	}
	return r
}

// Record counts one event. It is safe for concurrent use.
func (r *Recorder) Record(e common.Event) {
	if c, ok := r.counters[e.Kind]; ok {
		c.Inc()
	}
}

// Hook returns Record as an event sink
func (r *Recorder) Hook() common.EventSink {
	return r.Record
}

// Count returns the number of recorded events of kind
func (r *Recorder) Count(kind common.EventKind) uint64 {
	if c, ok := r.counters[kind]; ok {
		return c.Get()
	}
	return 0
}

// WritePrometheus writes all counters in the Prometheus text format
func (r *Recorder) WritePrometheus(w io.Writer) {
	r.set.WritePrometheus(w)
}

// Handler serves the counters together with the process metrics
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		r.WritePrometheus(w)
		metrics.WritePrometheus(w, true)
	})
}

// Summary returns the non-zero counters as "Kind=n" pairs, ordered by kind
func (r *Recorder) Summary() string {
	kinds := make([]common.EventKind, 0, len(r.counters))
	for k := range r.counters {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var parts []string
	for _, k := range kinds {
		if n := r.counters[k].Get(); n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", k, n))
		}
	}
	if len(parts) == 0 {
		return "no events"
	}
	return strings.Join(parts, " ")
}
