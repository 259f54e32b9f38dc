package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type uniqueUsers struct {
	counter   prometheus.Gauge
	userCache map[string]struct{}
	mu        sync.Mutex
}

const userCountPerWeek = "users_count_per_week"

var totalUniqueUsersPerWeekMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      userCountPerWeek,
		Help:      "number of distinct users that completed a job this week",
	},
)

var UniqueUsersPerWeek = &uniqueUsers{
	counter:   totalUniqueUsersPerWeekMetric,
	userCache: make(map[string]struct{}),
}

func (u *uniqueUsers) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.userCache = make(map[string]struct{})
	u.counter.Set(0)
}

func (u *uniqueUsers) Observe(userID string) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, exists := u.userCache[userID]; exists {
		return
	}

	u.userCache[userID] = struct{}{}
	u.counter.Inc()
}
