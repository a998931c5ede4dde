package ingest

import (
	"encoding/json"
	"hash/fnv"
	"sync"

	"notifeed/pkg/logger"
	"notifeed/pkg/models"
	"notifeed/pkg/telemetry"
)

const defaultWorkers = 4

// ProcessorConfig wires the processor to its queue, aggregator and store
// operations. Store access is injected as functions so tests can run the
// processor against fakes with controlled clocks.
type ProcessorConfig struct {
	Queue      *Queue
	Aggregator *ThreadAggregator
	Workers    int

	Lookup        Lookup
	Upsert        func(models.FeedItem) error
	ArchiveExcept func(pkg string, cat models.Category, keepID string, nowMs int64) error

	// OnApplied runs after a committed upsert (mirror push hook). It must
	// not block: local visibility never waits on the mirror.
	OnApplied func(models.FeedItem)
}

// Processor drains the ingest queue with a fixed pool of workers. Ops are
// sharded by FNV hash of the bucket key, so two events for the same
// thread are always merged in arrival order; this is the one
// correctness-critical ordering in the system (two concurrent merges
// reading the same stale previous item would both write previous+1 and
// lose an increment).
type Processor struct {
	cfg    ProcessorConfig
	shards []chan *Item
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewProcessor creates a processor; Workers defaults to 4.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	p := &Processor{cfg: cfg, done: make(chan struct{})}
	p.shards = make([]chan *Item, cfg.Workers)
	for i := range p.shards {
		p.shards[i] = make(chan *Item, 64)
	}
	return p
}

// Start launches the dispatcher and workers. They exit when the queue is
// closed and drained.
func (p *Processor) Start() {
	for i, sh := range p.shards {
		p.wg.Add(1)
		go func(i int, sh chan *Item) {
			defer p.wg.Done()
			for it := range sh {
				p.process(it)
			}
		}(i, sh)
	}
	go p.dispatch()
}

// Wait blocks until the queue has been closed and all in-flight ops are
// applied.
func (p *Processor) Wait() {
	<-p.done
	p.wg.Wait()
}

func (p *Processor) dispatch() {
	defer close(p.done)
	for it := range p.cfg.Queue.Out() {
		telemetry.QueueDepth.Set(float64(p.cfg.Queue.Len()))
		idx := shardIndex(it.Op.Bucket, len(p.shards))
		p.shards[idx] <- it
	}
	for _, sh := range p.shards {
		close(sh)
	}
}

// process applies one op: merge against current stored state, idempotent
// upsert, supersession archive, then the mirror hook. Failures are logged
// and the event dropped; the next event for the bucket self-heals since
// merges are idempotent against current stored state.
func (p *Processor) process(it *Item) {
	defer it.Done()

	var in MergeInput
	if err := json.Unmarshal(it.Op.Payload, &in); err != nil {
		logger.Error("ingest_invalid_op_payload", "bucket", it.Op.Bucket, "error", err)
		return
	}

	item, err := p.cfg.Aggregator.Merge(in, p.cfg.Lookup)
	if err != nil {
		logger.Error("ingest_merge_failed", "bucket", in.BucketKey, "error", err)
		return
	}
	if err := p.cfg.Upsert(item); err != nil {
		logger.Error("ingest_upsert_failed", "id", item.ID, "error", err)
		return
	}
	if item.PackageName != "" && p.cfg.ArchiveExcept != nil {
		if err := p.cfg.ArchiveExcept(item.PackageName, item.Category, item.ID, in.TS); err != nil {
			logger.Error("ingest_supersede_failed", "id", item.ID, "error", err)
		}
	}
	if p.cfg.OnApplied != nil {
		p.cfg.OnApplied(item)
	}
}

func shardIndex(bucket string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(bucket))
	return int(h.Sum32() % uint32(n))
}
