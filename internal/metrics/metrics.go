// Package metrics reports run results to a Prometheus Pushgateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Job is the Pushgateway job name for sync runs.
const Job = "instagram_sync"

// Push sends the run's gauges to the Pushgateway. A push failure is logged
// and never fails the run.
func Push(gatewayURL string, newPosts, published int, log *zap.SugaredLogger) {
	registry := prometheus.NewRegistry()

	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "last_success",
		Help: "Last time the sync successfully completed",
	})
	lastSuccess.SetToCurrentTime()

	fetched := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "new_instagram_posts",
		Help: "Number of new posts fetched from Instagram",
	})
	fetched.Set(float64(newPosts))

	posted := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "posted_to_wordpress",
		Help: "Number of posts successfully posted to WordPress",
	})
	posted.Set(float64(published))

	registry.MustRegister(lastSuccess, fetched, posted)

	if err := push.New(gatewayURL, Job).Gatherer(registry).Push(); err != nil {
		log.Errorw("metrics push failed", "gateway", gatewayURL, "error", err)
		return
	}
	log.Debugw("pushed metrics", "gateway", gatewayURL)
}
