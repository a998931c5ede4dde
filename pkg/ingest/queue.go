package ingest

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// defaultQueueCapacity backs NewQueue when no explicit size is
// configured.
const defaultQueueCapacity = 4096

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("ingest queue full")

// ErrQueueClosed is returned when enqueue is attempted after close.
var ErrQueueClosed = errors.New("ingest queue closed")

// Op is a merge operation destined for the persistence pipeline. Payload
// holds the JSON-encoded MergeInput and may be backed by a pooled
// ByteBuffer; consumers must call Item.Done() when finished.
type Op struct {
	// Bucket is the thread bucket key; the processor shards by it so
	// same-bucket ops are applied in arrival order.
	Bucket  string
	Payload []byte
	TS      int64
	// EnqSeq is a monotonic enqueue sequence assigned when the op is
	// accepted into the queue.
	EnqSeq uint64
}

// Item wraps an Op and owns a pooled ByteBuffer if one was used.
// Consumers MUST call Done() exactly once after processing.
type Item struct {
	Op *Op

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

// Done releases pooled resources back to their pools.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			if cap(it.buf.B) > maxPooledBuffer {
				// drop so GC can reclaim the array
				it.buf = nil
			} else {
				bytebufferpool.Put(it.buf)
				it.buf = nil
			}
		}
		if it.Op != nil {
			it.Op.Payload = nil
			opPool.Put(it.Op)
			it.Op = nil
		}
		itemPool.Put(it)
	})
}

var opPool = sync.Pool{New: func() any { return &Op{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer caps buffers returned to the pool; larger ones are
// dropped to avoid unbounded resident memory.
var maxPooledBuffer = 256 * 1024

// SetMaxPooledBuffer overrides the pooled buffer cap (startup only).
func SetMaxPooledBuffer(n int) {
	if n > 0 {
		maxPooledBuffer = n
	}
}

// Queue is a bounded in-memory queue of merge ops, safe for concurrent
// producers. The delivery callback enqueues and returns; workers consume
// via Out().
type Queue struct {
	ch       chan *Item
	capacity int
	dropped  uint64
	enqSeq   uint64

	// closeMu orders enqueues against Close: producers hold the read
	// side across the channel send so Close cannot slip in between the
	// closed check and the send.
	closeMu sync.RWMutex
	closed  bool
}

// NewQueue creates a bounded Queue of the given capacity (>0).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

// Out exposes items for consumers; do not close the returned channel.
func (q *Queue) Out() <-chan *Item { return q.ch }

// TryEnqueue enqueues an Op without blocking, copying the payload into a
// pooled buffer. Returns ErrQueueFull when at capacity.
func (q *Queue) TryEnqueue(op *Op) error {
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	newOp := opPool.Get().(*Op)
	*newOp = *op
	newOp.EnqSeq = atomic.AddUint64(&q.enqSeq, 1)

	var bb *bytebufferpool.ByteBuffer
	if len(op.Payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], op.Payload...)
		newOp.Payload = bb.B[:len(op.Payload)]
	}
	it := itemPool.Get().(*Item)
	*it = Item{Op: newOp, buf: bb}

	select {
	case q.ch <- it:
		return nil
	default:
		if bb != nil {
			bytebufferpool.Put(bb)
		}
		opPool.Put(newOp)
		atomic.AddUint64(&q.dropped, 1)
		return ErrQueueFull
	}
}

// Close closes the queue for new enqueues. Items already accepted stay
// in the channel for the consumer to drain.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// CloseAndDrain closes the queue and discards remaining items, releasing
// their resources. Use only when no consumer is attached; with a running
// processor, Close and let its workers drain.
func (q *Queue) CloseAndDrain() {
	q.Close()
	for it := range q.ch {
		it.Done()
	}
}

// Len returns the current number of queued items.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity.
func (q *Queue) Cap() int { return q.capacity }

// Dropped returns how many ops were dropped due to a full queue.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
