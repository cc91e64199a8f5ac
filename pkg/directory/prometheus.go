package directory

import "github.com/prometheus/client_golang/prometheus"

// Metrics used in monitoring service.
var (
	sessionsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Number of connected control sessions",
			Name:      "sessions_connected",
			Namespace: "rendez",
		},
	)

	usersLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Number of logged-in users",
			Name:      "users_live",
			Namespace: "rendez",
		},
	)

	roomsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Help:      "Number of live rooms",
			Name:      "rooms_live",
			Namespace: "rendez",
		},
	)
)

func init() {
	prometheus.MustRegister(
		sessionsConnected,
		usersLive,
		roomsLive,
	)
}

func updateSessionsMetric(n int) {
	sessionsConnected.Set(float64(n))
}

func updateUsersMetric(n int) {
	usersLive.Set(float64(n))
}

func updateRoomsMetric(n int) {
	roomsLive.Set(float64(n))
}
