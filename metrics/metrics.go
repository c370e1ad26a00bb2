// Package metrics enthält die Prometheus-Zähler der Pipeline.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patentsview_api_requests_total",
			Help: "Total number of requests sent to the PatentsView API.",
		},
		[]string{"endpoint", "status"},
	)
	APIThrottled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "patentsview_api_throttled_total",
			Help: "Total number of 429 responses that triggered a Retry-After wait.",
		},
	)
	PatentsInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "patents_inserted_total",
			Help: "Total number of patent rows inserted.",
		},
	)
	UnresolvedAssignees = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "unresolved_assignees_total",
			Help: "Total number of assignees that matched neither a company nor an alternate name.",
		},
	)
	CitationEdgesInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "citation_edges_inserted_total",
			Help: "Total number of citation edges inserted.",
		},
	)
)

func init() {
	prometheus.MustRegister(APIRequests, APIThrottled, PatentsInserted, UnresolvedAssignees, CitationEdgesInserted)
}
