package server

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks server runtime statistics as Prometheus collectors. Each
// server instance carries its own registry so tests can run several servers
// in one process.
type Metrics struct {
	startTime time.Time
	registry  *prometheus.Registry

	ActiveConnections prometheus.Gauge
	TotalConnections  prometheus.Counter
	TotalDisconnects  prometheus.Counter

	Registrations prometheus.Counter
	AuthSuccess   prometheus.Counter
	AuthFailures  *prometheus.CounterVec // reason: invalid_credentials, already_logged_in

	MessagesRouted   *prometheus.CounterVec // mode: global, dm, group
	DeliveriesTotal  prometheus.Counter
	DeliveryFailures prometheus.Counter

	GroupsCreated prometheus.Counter
}

// NewMetrics creates a Metrics instance with a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),
		registry:  reg,

		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gochat_connections_active",
			Help: "The current number of open client connections.",
		}),
		TotalConnections: factory.NewCounter(prometheus.CounterOpts{
			Name: "gochat_connections_total",
			Help: "The total number of client connections accepted.",
		}),
		TotalDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "gochat_disconnects_total",
			Help: "The total number of client disconnects, clean and unclean.",
		}),
		Registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "gochat_registrations_total",
			Help: "The total number of successful user registrations.",
		}),
		AuthSuccess: factory.NewCounter(prometheus.CounterOpts{
			Name: "gochat_auth_success_total",
			Help: "The total number of successful logins.",
		}),
		AuthFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gochat_auth_failures_total",
			Help: "The total number of failed logins.",
		}, []string{"reason"}),
		MessagesRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gochat_messages_routed_total",
			Help: "The total number of inbound chat messages routed.",
		}, []string{"mode"}),
		DeliveriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "gochat_deliveries_total",
			Help: "The total number of per-recipient message deliveries.",
		}),
		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "gochat_delivery_failures_total",
			Help: "The total number of failed recipient writes, each treated as that recipient's disconnect.",
		}),
		GroupsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "gochat_groups_created_total",
			Help: "The total number of groups created.",
		}),
	}
}

// Registry returns the metrics registry for the HTTP exposition handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// StartPeriodicLog starts a goroutine that logs a summary every interval.
// It stops when the done channel is closed.
func (s *Server) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				slog.Info("status",
					"uptime", time.Since(s.metrics.startTime).Truncate(time.Second).String(),
					"sessions", s.sessions.Count(),
					"groups", s.groups.Count(),
				)
			}
		}
	}()
}
