package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalPagesFetched tracks page fetch attempts, successful or not.
	TotalPagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_pages_fetched_total",
		Help: "The total number of page fetch attempts.",
	})
	// TotalFetchFailures tracks fetch attempts that ended in timeout or navigation error.
	TotalFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_fetch_failures_total",
		Help: "The total number of failed page fetches, by failure kind.",
	}, []string{"kind"})
	// TotalRetries tracks retry attempts performed with a fresh session.
	TotalRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_page_retries_total",
		Help: "The total number of page retries with a fresh browser session.",
	})
	// TotalRotations tracks proactive session replacements after successful pages.
	TotalRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_session_rotations_total",
		Help: "The total number of proactive browser session rotations.",
	})
	// TotalListings tracks listings accumulated across all regions.
	TotalListings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_listings_collected_total",
		Help: "The total number of listings collected.",
	})
	// TotalRegionsCompleted tracks regions whose crawl ran to completion.
	TotalRegionsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_regions_completed_total",
		Help: "The total number of region crawls that finished.",
	})
)
