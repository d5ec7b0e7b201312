package prometrics

import (
	"errors"
	"sync"

	"github.com/Zhima-Mochi/minishop-pharmacy/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry creates label-keyed instruments on a Prometheus registerer.
// Asking twice for the same name returns the same underlying vector.
type Registry interface {
	Counter(name string, help string, labelKeys ...string) observability.Counter
	Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram
}

type registry struct {
	reg       prometheus.Registerer
	namespace string
	subsystem string

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// New returns a Registry on reg, or on the default registerer when reg is nil.
func New(reg prometheus.Registerer, namespace, subsystem string) Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &registry{
		reg:        reg,
		namespace:  namespace,
		subsystem:  subsystem,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

func (r *registry) Counter(name string, help string, labelKeys ...string) observability.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cv, ok := r.counters[name]; ok {
		return &counter{v: cv}
	}
	cv := register(r.reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help,
	}, labelKeys))
	r.counters[name] = cv
	return &counter{v: cv}
}

func (r *registry) Histogram(name string, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hv, ok := r.histograms[name]; ok {
		return &histogram{v: hv}
	}
	hv := register(r.reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: r.subsystem, Name: name, Help: help, Buckets: buckets,
	}, labelKeys))
	r.histograms[name] = hv
	return &histogram{v: hv}
}

// register adds c to reg, adopting the existing collector when another
// Registry already registered an identical one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

type counter struct{ v *prometheus.CounterVec }

func (c *counter) Add(d float64, labels ...observability.Label) {
	c.v.With(labelMap(labels)).Add(d)
}

func (c *counter) Bind(labels ...observability.Label) observability.BoundCounter {
	return c.v.With(labelMap(labels))
}

type histogram struct{ v *prometheus.HistogramVec }

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	h.v.With(labelMap(labels)).Observe(v)
}

func (h *histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	return h.v.With(labelMap(labels))
}

func labelMap(ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		m[l.Key] = l.Value
	}
	return m
}
