package monitoring

import (
	"context"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservations_total",
			Help: "Reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	cancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cancellations_total",
			Help: "Cancellation attempts by outcome",
		},
		[]string{"outcome"},
	)

	conflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "reserve_conflict_retries_total",
			Help: "Optimistic-concurrency retries in the capacity coordinator",
		},
	)

	waitlistAdvances = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_advances_total",
			Help: "Waitlist entries promoted to notified per service",
		},
		[]string{"service_id"},
	)

	waitlistLength = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waitlist_length",
			Help: "Current number of waiting entries per service",
		},
		[]string{"service_id"},
	)

	openSlots = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "open_slots_total",
			Help: "Upcoming slots currently accepting reservations",
		},
	)

	cacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"},
	)

	notificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Notification publishes that failed or were shed by the breaker",
		},
	)

	redisUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "redis_up",
			Help: "Whether the Redis backing cache and rate limiting is reachable",
		},
	)
)

func TrackReservation(outcome string) {
	if outcome == "" {
		outcome = "error"
	}
	reservations.WithLabelValues(outcome).Inc()
}

func TrackCancellation(outcome string) {
	if outcome == "" {
		outcome = "error"
	}
	cancellations.WithLabelValues(outcome).Inc()
}

func TrackConflictRetry() {
	conflictRetries.Inc()
}

func TrackWaitlistAdvance(serviceID string) {
	waitlistAdvances.WithLabelValues(serviceID).Inc()
}

func TrackCache(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}

func TrackNotificationFailure() {
	notificationFailures.Inc()
}

// Monitor polls slow-moving occupancy gauges from the store. Counters above
// are pushed from the hot paths instead.
type Monitor struct {
	app   core.App
	redis *redis.Client
}

func NewMonitor(app core.App, redisClient *redis.Client) *Monitor {
	return &Monitor{app: app, redis: redisClient}
}

// Run collects gauges every 30 seconds until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.collect()
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.redis.Ping(ctx).Err(); err != nil {
		redisUp.Set(0)
	} else {
		redisUp.Set(1)
	}

	var open int
	err := m.app.DB().NewQuery(`
		SELECT COUNT(*) FROM slots
		WHERE status = 'open' AND available = TRUE AND start_time > {:now}
	`).Bind(dbx.Params{"now": time.Now().UTC().Format("2006-01-02 15:04:05.000Z")}).Row(&open)
	if err == nil {
		openSlots.Set(float64(open))
	}

	type row struct {
		Service string `db:"service"`
		N       int    `db:"n"`
	}
	var rows []row
	err = m.app.DB().NewQuery(`
		SELECT service, COUNT(*) AS n FROM waitlist_entries
		WHERE status = 'waiting' GROUP BY service
	`).All(&rows)
	if err == nil {
		for _, r := range rows {
			waitlistLength.WithLabelValues(r.Service).Set(float64(r.N))
		}
	}
}
