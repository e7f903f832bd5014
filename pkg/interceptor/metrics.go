// Kunhua Huang 2026

package interceptor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ecstasoy/handshake/pkg/protocol"
)

type Collectors struct {
	Requests *prometheus.CounterVec
	Duration *prometheus.HistogramVec
}

// NewCollectors registers the request metrics on reg, or on the default
// registerer when reg is nil.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := &Collectors{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handshake_requests_total",
				Help: "Total number of handshake requests handled",
			},
			[]string{"command", "status"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "handshake_request_duration_seconds",
				Help:    "Time spent turning a request into its reply",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),
	}

	reg.MustRegister(c.Requests, c.Duration)

	return c
}

func Metrics(c *Collectors) Interceptor {
	return func(ctx context.Context, cmd protocol.Command, invoker Invoker) (protocol.Message, error) {
		start := time.Now()

		reply, err := invoker(ctx, cmd)

		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
		}

		c.Requests.WithLabelValues(cmd.Kind.String(), status).Inc()
		c.Duration.WithLabelValues(cmd.Kind.String()).Observe(duration)

		return reply, err
	}
}
