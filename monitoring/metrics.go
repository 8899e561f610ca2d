package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)
)

var (
	NotificationsRaised = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_notifications_raised_total",
			Help: "Appointment reminders raised by the notification engine",
		},
	)

	NotificationAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_notification_alerts_total",
			Help: "Audible alerts emitted, at most one per cooldown window",
		},
	)

	RemindersSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_reminders_sent_total",
			Help: "WhatsApp reminder dispatch attempts by outcome",
		},
		[]string{"status"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_active_sessions",
			Help: "Operators with an open session",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(NotificationsRaised)
	prometheus.MustRegister(NotificationAlerts)
	prometheus.MustRegister(RemindersSent)
	prometheus.MustRegister(ActiveSessions)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
