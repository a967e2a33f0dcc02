// Package promobserver exports pollcache operations as Prometheus metrics.
package promobserver

import (
	"context"
	"time"

	"github.com/goforj/pollcache"
	"github.com/prometheus/client_golang/prometheus"
)

// Observer implements pollcache.Observer on Prometheus collectors.
type Observer struct {
	ops           *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
}

var _ pollcache.Observer = (*Observer)(nil)

// New creates the collectors and registers them with reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) (*Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &Observer{
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pollcache",
				Name:      "ops_total",
				Help:      "Total number of cache operations by result.",
			},
			[]string{"cache", "op", "result"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pollcache",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of backend fetches.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"cache"},
		),
	}
	for _, c := range []prometheus.Collector{o.ops, o.fetchDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// OnPollOp implements pollcache.Observer.
func (o *Observer) OnPollOp(_ context.Context, cache, op, _ string, hit bool, err error, dur time.Duration) {
	o.ops.WithLabelValues(cache, op, result(hit, err)).Inc()
	if op == pollcache.OpFetch {
		o.fetchDuration.WithLabelValues(cache).Observe(dur.Seconds())
	}
}

func result(hit bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case hit:
		return "hit"
	default:
		return "ok"
	}
}
