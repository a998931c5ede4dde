package ingest

import (
	"encoding/json"
	"time"

	"notifeed/pkg/labels"
	"notifeed/pkg/logger"
	"notifeed/pkg/models"
	"notifeed/pkg/telemetry"
)

// Outcome classifies what the pipeline did with a raw posting.
type Outcome string

const (
	OutcomeEnqueued  Outcome = "enqueued"
	OutcomeBlank     Outcome = "blank"
	OutcomeDeduped   Outcome = "deduped"
	OutcomeDisabled  Outcome = "disabled"
	OutcomeNoise     Outcome = "noise"
	OutcomeQueueFull Outcome = "queue_full"
)

// Settings is the snapshot view of the user settings surface consulted
// before committing an ingestion.
type Settings interface {
	PackageEnabled(pkg string) bool
}

// Pipeline is the notification ingestion entry point. The delivery
// callback only does synchronous in-memory filtering here (normalization,
// dedup, noise gating) and hands the merge+persist+mirror work to the
// queue, so the callback returns quickly.
type Pipeline struct {
	dedup    *DedupWindow
	noise    *SystemNoiseFilter
	queue    *Queue
	settings Settings
	now      func() time.Time
}

// NewPipeline assembles a pipeline. A nil settings keeps every package
// enabled; a nil clock uses time.Now.
func NewPipeline(dedup *DedupWindow, noise *SystemNoiseFilter, q *Queue, settings Settings, clock func() time.Time) *Pipeline {
	if clock == nil {
		clock = time.Now
	}
	return &Pipeline{dedup: dedup, noise: noise, queue: q, settings: settings, now: clock}
}

// HandlePosting processes one raw notification posting. It never panics
// and never blocks: every failure is logged and the event dropped.
func (p *Pipeline) HandlePosting(ev models.NotificationEvent) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("ingest_panic_recovered", "package", ev.PackageName, "panic", r)
			out = OutcomeBlank
		}
	}()

	title := ev.NormalizedTitle()
	body := ev.NormalizedBody()
	if title == "" && body == "" {
		// malformed payload is a no-op filter, not an error
		telemetry.IngestTotal.WithLabelValues(string(OutcomeBlank)).Inc()
		return OutcomeBlank
	}

	now := p.now()
	if ev.PostTime > 0 {
		now = time.UnixMilli(ev.PostTime)
	}

	if p.dedup.ShouldSuppress(ev.Key, now) {
		telemetry.IngestTotal.WithLabelValues(string(OutcomeDeduped)).Inc()
		return OutcomeDeduped
	}

	// The dedup record above is written even for disabled packages, so a
	// later toggle cannot release a backlog flood.
	if p.settings != nil && !p.settings.PackageEnabled(ev.PackageName) {
		telemetry.IngestTotal.WithLabelValues(string(OutcomeDisabled)).Inc()
		return OutcomeDisabled
	}

	entry := labels.Resolve(ev.PackageName)
	if entry.Category == models.CategorySystem && p.noise != nil {
		if !p.noise.ShouldKeep(title, body, now) {
			telemetry.IngestTotal.WithLabelValues(string(OutcomeNoise)).Inc()
			return OutcomeNoise
		}
	}

	in := MergeInput{
		BucketKey:   models.BucketKey(ev.PackageName, entry.Category),
		Title:       title,
		Body:        body,
		PackageName: ev.PackageName,
		Source:      entry.Label,
		Category:    entry.Category,
		Priority:    entry.Priority,
		ActionHint:  labels.ActionHint(entry.Category),
		TS:          now.UnixMilli(),
	}
	payload, err := json.Marshal(in)
	if err != nil {
		logger.Error("ingest_marshal_failed", "bucket", in.BucketKey, "error", err)
		return OutcomeBlank
	}
	if err := p.queue.TryEnqueue(&Op{Bucket: in.BucketKey, Payload: payload, TS: in.TS}); err != nil {
		logger.Warn("ingest_enqueue_failed", "bucket", in.BucketKey, "error", err)
		telemetry.IngestTotal.WithLabelValues(string(OutcomeQueueFull)).Inc()
		return OutcomeQueueFull
	}
	telemetry.IngestTotal.WithLabelValues(string(OutcomeEnqueued)).Inc()
	return OutcomeEnqueued
}

// Enqueue pushes an already-normalized merge input onto the queue,
// bypassing the device-posting filters. Integration sources (news feeds)
// use this to share the aggregation path.
func (p *Pipeline) Enqueue(in MergeInput) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return p.queue.TryEnqueue(&Op{Bucket: in.BucketKey, Payload: payload, TS: in.TS})
}
