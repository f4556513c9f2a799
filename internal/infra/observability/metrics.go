package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marco"

// Metrics exposes Prometheus collectors for intake, dispatch and transport activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	extractions   *prometheus.CounterVec
	replies       *prometheus.CounterVec
	ticks         prometheus.Counter
	tickDuration  prometheus.Histogram
	dueReminders  prometheus.Histogram
	notifications *prometheus.CounterVec
	deadLetters   prometheus.Counter
	updates       *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
}

// MustNewMetrics registers the collectors on reg. Collectors that are already
// registered are reused, any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Metrics{
		extractions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "extractions_total",
			Help:      "Intent extractions by result status.",
		}, []string{"status"})),
		replies: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "intake",
			Name:      "replies_total",
			Help:      "Confirmation replies by outcome.",
		}, []string{"outcome"})),
		ticks: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "ticks_total",
			Help:      "Dispatch ticks executed.",
		})),
		tickDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "tick_duration_seconds",
			Help:      "Wall time spent in one dispatch tick.",
			Buckets:   prometheus.DefBuckets,
		})),
		dueReminders: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "due_reminders",
			Help:      "Reminders found due per tick.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100},
		})),
		notifications: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "notifications_total",
			Help:      "Notifier calls by result.",
		}, []string{"result"})),
		deadLetters: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "dead_letters_total",
			Help:      "Reminders abandoned after exhausting notify attempts.",
		})),
		updates: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "telegram",
			Name:      "updates_total",
			Help:      "Chat updates handled by kind.",
		}, []string{"kind"})),
		httpRequests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

func (m *Metrics) RecordExtraction(status string) {
	if m == nil {
		return
	}
	m.extractions.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordReply(outcome string) {
	if m == nil {
		return
	}
	m.replies.WithLabelValues(outcome).Inc()
}

// RecordTick observes one completed dispatch tick.
func (m *Metrics) RecordTick(duration time.Duration, due int) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	m.tickDuration.Observe(duration.Seconds())
	m.dueReminders.Observe(float64(due))
}

func (m *Metrics) RecordNotify(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordDeadLetter() {
	if m == nil {
		return
	}
	m.deadLetters.Inc()
}

func (m *Metrics) RecordUpdate(kind string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordHTTPRequest(route, code string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, code).Inc()
}
