package world

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"haulplan.ai/internal/haul"
)

// Metrics are the world loop's prometheus collectors. They are registered on
// the registerer passed to NewMetrics so tests can use a private registry.
type Metrics struct {
	Tick           prometheus.Gauge
	StepSeconds    prometheus.Histogram
	InboxDepth     prometheus.Gauge
	Searches       *prometheus.CounterVec
	Committed      prometheus.Counter
	DeliveredUnits prometheus.Counter
	Overkill       prometheus.Counter
	ItemsRemoved   *prometheus.CounterVec
	Postings       *prometheus.GaugeVec
	ActiveJobs     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Tick: f.NewGauge(prometheus.GaugeOpts{
			Name: "haulplan_world_tick",
			Help: "Last completed world tick",
		}),
		StepSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "haulplan_world_step_seconds",
			Help:    "Time spent in one world step",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		InboxDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "haulplan_world_inbox_depth",
			Help: "Operator commands waiting for the next tick",
		}),
		Searches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haulplan_destination_searches_total",
			Help: "Destination searches by result",
		}, []string{"result"}),
		Committed: f.NewCounter(prometheus.CounterOpts{
			Name: "haulplan_postings_committed_total",
			Help: "Postings registered",
		}),
		DeliveredUnits: f.NewCounter(prometheus.CounterOpts{
			Name: "haulplan_delivered_units_total",
			Help: "Units dropped on posting destinations",
		}),
		Overkill: f.NewCounter(prometheus.CounterOpts{
			Name: "haulplan_overkill_total",
			Help: "Deliveries that went past the requested quantity",
		}),
		ItemsRemoved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "haulplan_posting_items_removed_total",
			Help: "Items leaving postings by reason",
		}, []string{"reason"}),
		Postings: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "haulplan_postings",
			Help: "Registered postings by status",
		}, []string{"status"}),
		ActiveJobs: f.NewGauge(prometheus.GaugeOpts{
			Name: "haulplan_active_haul_jobs",
			Help: "Workers currently running a haul job",
		}),
	}
}

func (m *Metrics) observeStep(tick uint64, d time.Duration, inbox int) {
	m.Tick.Set(float64(tick))
	m.StepSeconds.Observe(d.Seconds())
	m.InboxDepth.Set(float64(inbox))
}

func (m *Metrics) observeSearch(ok bool) {
	result := "found"
	if !ok {
		result = "blocked"
	}
	m.Searches.WithLabelValues(result).Inc()
}

func (m *Metrics) setStatusCounts(counts map[haul.Status]int) {
	for s := haul.StatusInProgress; s <= haul.StatusOverkillError; s++ {
		m.Postings.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
