package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carshine",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)

	bookingOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carshine",
			Name:      "booking_operations_total",
			Help:      "Booking mutations by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	slotConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "carshine",
			Name:      "slot_conflicts_total",
			Help:      "Saves rejected because the time slot was taken.",
		},
	)

	notifyTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "carshine",
			Name:      "notify_tasks_total",
			Help:      "Notification worker tasks by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingOps, slotConflicts, notifyTasks)
	})
}

// IncHTTP increments the counter for an endpoint/status pair.
func IncHTTP(endpoint, status string) {
	httpRequests.WithLabelValues(endpoint, status).Inc()
}

// IncBookingOp increments the mutation counter.
func IncBookingOp(operation, outcome string) {
	bookingOps.WithLabelValues(operation, outcome).Inc()
}

// IncSlotConflict increments the conflict rejection counter.
func IncSlotConflict() {
	slotConflicts.Inc()
}

// IncNotifyTask increments the worker task counter.
func IncNotifyTask(result string) {
	notifyTasks.WithLabelValues(result).Inc()
}
