// Package metrics exposes prometheus collectors for the serve mode.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mhagberg/towerbox/internal/inventory"
)

var (
	groupHosts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "towerbox",
			Name:      "group_hosts",
			Help:      "Number of hosts in each inventory group",
		},
		[]string{"group"},
	)

	hostsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "towerbox",
			Name:      "hosts_total",
			Help:      "Number of hosts with recorded hostvars in the current inventory",
		},
	)

	groupsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "towerbox",
			Name:      "groups_total",
			Help:      "Number of groups in the current inventory",
		},
	)

	refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "towerbox",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of inventory refreshes against the NetBox API",
			Buckets:   prometheus.DefBuckets,
		},
	)

	refreshErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "towerbox",
			Name:      "refresh_errors_total",
			Help:      "Total number of failed inventory refreshes",
		},
	)

	lastRefresh = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "towerbox",
			Name:      "last_refresh_timestamp_seconds",
			Help:      "Unix timestamp of the last successful inventory refresh",
		},
	)
)

func init() {
	prometheus.MustRegister(groupHosts)
	prometheus.MustRegister(hostsTotal)
	prometheus.MustRegister(groupsTotal)
	prometheus.MustRegister(refreshDuration)
	prometheus.MustRegister(refreshErrors)
	prometheus.MustRegister(lastRefresh)
}

// SetInventory updates the gauges from a freshly built document. Group
// gauges are reset first so groups that vanished drop out.
func SetInventory(doc *inventory.Document) {
	groupHosts.Reset()
	sizes := doc.GroupSizes()
	for name, n := range sizes {
		groupHosts.WithLabelValues(name).Set(float64(n))
	}
	groupsTotal.Set(float64(len(sizes)))
	hostsTotal.Set(float64(doc.HostCount()))
	lastRefresh.SetToCurrentTime()
}

// ObserveRefresh records the duration of a successful refresh
func ObserveRefresh(d time.Duration) {
	refreshDuration.Observe(d.Seconds())
}

// RecordRefreshError increments the refresh error counter
func RecordRefreshError() {
	refreshErrors.Inc()
}
