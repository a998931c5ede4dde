// Package telemetry exposes prometheus collectors for the ingestion
// pipeline, the feed store and the remote mirror.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IngestTotal counts raw postings by pipeline outcome: enqueued,
	// deduped, blank, disabled, noise, queue_full.
	IngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifeed_ingest_total",
		Help: "Raw notification postings by pipeline outcome.",
	}, []string{"outcome"})

	// MergeTotal counts aggregator decisions: refresh (merge-window hit)
	// or increment.
	MergeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifeed_merge_total",
		Help: "Thread aggregator merge decisions.",
	}, []string{"decision"})

	// UpsertTotal counts committed feed item writes.
	UpsertTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifeed_store_upsert_total",
		Help: "Committed feed item upserts.",
	})

	// ArchivedTotal counts items transitioned to archived, including
	// supersession archives.
	ArchivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifeed_store_archived_total",
		Help: "Feed items transitioned to archived.",
	})

	// MirrorPushTotal counts remote mirror pushes by result (ok, error).
	MirrorPushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifeed_mirror_push_total",
		Help: "Remote mirror pushes by result.",
	}, []string{"result"})

	// MirrorApplyTotal counts remote-origin items by LWW outcome
	// (applied, stale).
	MirrorApplyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifeed_mirror_apply_total",
		Help: "Remote-origin item applications by last-writer-wins outcome.",
	}, []string{"outcome"})

	// QueueDepth reports the current ingest queue length.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notifeed_ingest_queue_depth",
		Help: "Current ingest queue length.",
	})

	// SnapshotTotal counts live stream snapshots published to subscribers.
	SnapshotTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifeed_stream_snapshot_total",
		Help: "Live stream snapshots published.",
	})
)
