// Package metrics holds the Prometheus collectors of hlsfeed.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedResolutionsTotal counts feed reads by outcome.
	FeedResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsfeed_feed_resolutions_total",
		Help: "Feed resolutions by result",
	}, []string{"result"})

	// FeedResolutionDuration tracks how long a feed read takes at the gateway.
	FeedResolutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hlsfeed_feed_resolution_duration_seconds",
		Help:    "Time taken to resolve the feed to a manifest reference",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// ManifestRewritesTotal counts requests whose URI the hook replaced.
	ManifestRewritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlsfeed_manifest_rewrites_total",
		Help: "Player requests redirected to the current manifest",
	})

	// PlaylistLoadsTotal counts media playlist loads by outcome.
	PlaylistLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hlsfeed_playlist_loads_total",
		Help: "Media playlist loads by result",
	}, []string{"result"})

	// SegmentsTotal counts new segments handed to the play handler.
	SegmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hlsfeed_segments_total",
		Help: "Media segments dispatched to the play handler",
	})
)

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// ObserveResolution records one feed read.
func ObserveResolution(success bool, d time.Duration) {
	FeedResolutionsTotal.WithLabelValues(result(success)).Inc()
	FeedResolutionDuration.Observe(d.Seconds())
}

func IncManifestRewrite() {
	ManifestRewritesTotal.Inc()
}

func IncPlaylistLoad(success bool) {
	PlaylistLoadsTotal.WithLabelValues(result(success)).Inc()
}

func IncSegment() {
	SegmentsTotal.Inc()
}
