package store

import (
	"context"
	"sync"

	"notifeed/pkg/logger"
	"notifeed/pkg/models"
	"notifeed/pkg/telemetry"
)

// Live subscription stream. Every committed write publishes a fresh
// complete snapshot (non-archived items, newest first) to every
// subscriber; there are no delta semantics. A slow subscriber has its
// pending snapshot replaced rather than blocking the writer.

var (
	subMu  sync.Mutex
	subSeq int
	subs   = map[int]chan []models.FeedItem{}
)

// Subscribe registers a live feed subscription. The returned channel
// receives an initial snapshot and then one snapshot per committed write
// until ctx is done.
func Subscribe(ctx context.Context) (<-chan []models.FeedItem, error) {
	if db == nil {
		return nil, ErrNotOpen
	}
	snap, err := ListActive()
	if err != nil {
		return nil, err
	}
	ch := make(chan []models.FeedItem, 1)
	ch <- snap

	subMu.Lock()
	subSeq++
	id := subSeq
	subs[id] = ch
	subMu.Unlock()
	logger.Debug("stream_subscribed", "id", id)

	go func() {
		<-ctx.Done()
		subMu.Lock()
		delete(subs, id)
		subMu.Unlock()
		logger.Debug("stream_unsubscribed", "id", id)
	}()
	return ch, nil
}

// notifyLocked publishes a fresh snapshot to all subscribers. Caller
// holds mu, so the snapshot is consistent with the write that triggered
// it and snapshots are published in commit order.
func notifyLocked() {
	subMu.Lock()
	n := len(subs)
	subMu.Unlock()
	if n == 0 {
		return
	}
	snap, err := listActiveLocked()
	if err != nil {
		logger.Error("stream_snapshot_failed", "error", err)
		return
	}
	telemetry.SnapshotTotal.Inc()
	subMu.Lock()
	defer subMu.Unlock()
	for _, ch := range subs {
		// replace a pending stale snapshot; latest wins
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
