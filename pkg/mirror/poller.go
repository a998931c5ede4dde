package mirror

import (
	"context"
	"time"

	"notifeed/pkg/logger"
	"notifeed/pkg/models"
)

// Apply installs a remote-origin item locally; it returns whether the
// item won the last-writer-wins comparison.
type Apply func(it models.FeedItem) (bool, error)

// Poller periodically pulls remote changes and applies them locally.
// The high-water mark is the largest remote UpdatedAt successfully
// applied, so each poll only asks for items newer than those and a
// failed apply is retried on the next tick.
type Poller struct {
	client   *Client
	apply    Apply
	interval time.Duration
	since    int64
}

// NewPoller builds a poller; a non-positive interval defaults to 30s.
func NewPoller(client *Client, apply Apply, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{client: client, apply: apply, interval: interval}
}

// Run polls until ctx is done. Poll failures are logged and retried on
// the next tick; the loop never aborts on a transient error.
func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	items, err := p.client.Changes(ctx, p.since)
	if err != nil {
		logger.Warn("mirror_poll_failed", "since", p.since, "error", err)
		return
	}
	for _, it := range items {
		applied, err := p.apply(it)
		if err != nil {
			// stop here so the high-water mark stays behind the failed
			// item and the next poll retries it
			logger.Error("mirror_apply_failed", "id", it.ID, "error", err)
			break
		}
		if it.UpdatedAt > p.since {
			p.since = it.UpdatedAt
		}
		if applied {
			logger.Debug("mirror_change_applied", "id", it.ID)
		}
	}
}
