package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus/push"
)

// Pusher sends a collector's registry to a Prometheus Pushgateway.
type Pusher struct {
	url     string
	job     string
	timeout time.Duration
}

// NewPusher creates a pusher. job defaults to "pcapcpu".
func NewPusher(url, job string) *Pusher {
	if job == "" {
		job = "pcapcpu"
	}
	return &Pusher{url: url, job: job, timeout: 10 * time.Second}
}

// Push replaces the job's metrics on the gateway. instance, when set, is
// added as a grouping label.
func (p *Pusher) Push(ctx context.Context, c *Collector, instance string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	pusher := push.New(p.url, p.job).Gatherer(c.Registry())
	if instance != "" {
		pusher = pusher.Grouping("instance", instance)
	}

	slog.Debug("pushing metrics", "url", p.url, "job", p.job)
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("metrics push to %s failed: %w", p.url, err)
	}
	return nil
}
