// Package capability loads the heavy speech capabilities at startup and
// tracks their state for health reporting.
package capability

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Status is the load outcome of one capability.
type Status struct {
	Name      string        `json:"name"`
	Backend   string        `json:"backend,omitempty"`
	State     State         `json:"state"`
	Error     string        `json:"error,omitempty"`
	LoadTime  time.Duration `json:"load_time_ns"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Registry records capability states. It is safe for concurrent use.
type Registry struct {
	log      *slog.Logger
	mu       sync.RWMutex
	statuses map[string]*Status

	loadHist   metric.Float64Histogram
	readyGauge metric.Int64ObservableGauge
}

func NewRegistry(log *slog.Logger) *Registry {
	r := &Registry{
		log:      log.With(slog.String("component", "capability-registry")),
		statuses: make(map[string]*Status),
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return r
}

func (r *Registry) initMetrics() error {
	meter := otel.Meter("github.com/cl33/RealTimeTTS/capability")
	hist, err := meter.Float64Histogram("realtimetts.capability.load.duration",
		metric.WithDescription("Capability load time"),
		metric.WithUnit("s"))
	if err != nil {
		return err
	}
	gauge, err := meter.Int64ObservableGauge("realtimetts.capability.ready",
		metric.WithDescription("1 when the capability is loaded"))
	if err != nil {
		return err
	}
	r.loadHist = hist
	r.readyGauge = gauge
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		for _, st := range r.Snapshot() {
			var v int64
			if st.State == StateReady {
				v = 1
			}
			obs.ObserveInt64(gauge, v, metric.WithAttributes(attribute.String("capability", st.Name)))
		}
		return nil
	}, gauge)
	return err
}

func (r *Registry) update(name, backend string, state State, err error, took time.Duration) {
	r.mu.Lock()
	st, ok := r.statuses[name]
	if !ok {
		st = &Status{Name: name}
		r.statuses[name] = st
	}
	if backend != "" {
		st.Backend = backend
	}
	st.State = state
	st.Error = ""
	if err != nil {
		st.Error = err.Error()
	}
	st.LoadTime = took
	st.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()

	if state != StateLoading && r.loadHist != nil {
		r.loadHist.Record(context.Background(), took.Seconds(),
			metric.WithAttributes(
				attribute.String("capability", name),
				attribute.String("state", string(state))))
	}
}

// Ready reports whether every known capability has loaded.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.statuses) == 0 {
		return false
	}
	for _, st := range r.statuses {
		if st.State != StateReady {
			return false
		}
	}
	return true
}

// Snapshot returns statuses sorted by name.
func (r *Registry) Snapshot() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Status, 0, len(r.statuses))
	for _, st := range r.statuses {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) Get(name string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.statuses[name]
	if !ok {
		return Status{}, false
	}
	return *st, true
}
