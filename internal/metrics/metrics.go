// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"context"
	"time"

	"deadlinebot/internal/eventbus"
	"deadlinebot/internal/notifier"
	"deadlinebot/internal/reminder"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deadlinebot"

// Metrics implements reminder.Recorder, scheduler.Observer and router.Observer.
type Metrics struct {
	reg *prometheus.Registry

	notifications   *prometheus.CounterVec
	ticks           *prometheus.CounterVec
	tickDuration    *prometheus.HistogramVec
	commands        *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	deliveryLatency prometheus.Histogram
}

// New registers every collector on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Reminder events by kind and result (sent, failed, duplicate, empty).",
		}, []string{"kind", "result"}),
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Evaluator ticks by outcome.",
		}, []string{"evaluator", "result"}),
		tickDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Evaluator tick duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~40s
		}, []string{"evaluator"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Chat commands handled by outcome.",
		}, []string{"command", "result"}),
		deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Outbound channel messages by result.",
		}, []string{"result"}),
		deliveryLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_latency_seconds",
			Help:      "Transport latency of outbound channel messages.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		}),
	}
}

// Registry is what the HTTP handler gathers from.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Notification(kind reminder.Kind, result string) {
	m.notifications.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) ObserveTick(evaluator string, took time.Duration, err error) {
	m.ticks.WithLabelValues(evaluator, outcome(err)).Inc()
	m.tickDuration.WithLabelValues(evaluator).Observe(took.Seconds())
}

func (m *Metrics) ObserveCommand(name string, err error) {
	m.commands.WithLabelValues(name, outcome(err)).Inc()
}

// Consume counts delivery events from bus until ctx is done.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			m.observeEvent(ev)
		}
	}
}

func (m *Metrics) observeEvent(ev eventbus.Event) {
	var result string
	switch ev.Type {
	case eventbus.TypeDeliverySent:
		result = "sent"
	case eventbus.TypeDeliveryFailed:
		result = "failed"
	default:
		return
	}
	m.deliveries.WithLabelValues(result).Inc()
	if d, ok := ev.Data.(notifier.DeliveryEvent); ok {
		m.deliveryLatency.Observe(d.Took.Seconds())
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
