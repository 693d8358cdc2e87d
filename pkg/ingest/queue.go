package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"
)

// Op is a lightweight in-memory representation of a merge patch destined
// for the store. Patch holds the raw JSON patch bytes and may be backed by
// a pooled ByteBuffer; consumers must call Item.Done() when finished.
type Op struct {
	Key   string
	Patch []byte
	// EnqSeq is a monotonic enqueue sequence assigned when the op is
	// accepted into the queue, for deterministic ordering.
	EnqSeq uint64
}

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("ingest queue full")

// Item wraps an Op and owns a pooled ByteBuffer if one was used. Consumers
// MUST call Done() exactly once after processing the item to return pooled
// resources.
type Item struct {
	Op *Op

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

// Done releases internal pooled resources back to the pool.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			// avoid retaining huge buffers in the pool
			if cap(it.buf.B) > maxPooledBuffer {
				it.buf = nil
			} else {
				bytebufferpool.Put(it.buf)
				it.buf = nil
			}
		}
		if it.Op != nil {
			it.Op.Patch = nil
			opPool.Put(it.Op)
			it.Op = nil
		}
	})
}

// Queue is a bounded in-memory queue carrying merge patches from mutation
// callers to the store worker. It is safe for concurrent producers.
type Queue struct {
	ch       chan *Item
	capacity int
	dropped  uint64
}

var opPool = sync.Pool{New: func() any { return &Op{} }}

// maxPooledBuffer controls the largest buffer that will be returned to the
// pool; larger ones are dropped so GC can reclaim the array.
var maxPooledBuffer = 256 * 1024

// SetMaxPooledBuffer overrides the pooled buffer cap (startup only).
func SetMaxPooledBuffer(n int) {
	if n > 0 {
		maxPooledBuffer = n
	}
}

var enqSeq uint64

// NewQueue creates a bounded Queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

// Out returns a read-only channel that consumers can range over to receive
// queued items. Do not close it from callers.
func (q *Queue) Out() <-chan *Item { return q.ch }

func makeItem(key string, patch []byte) *Item {
	op := opPool.Get().(*Op)
	op.Key = key
	op.EnqSeq = atomic.AddUint64(&enqSeq, 1)

	var bb *bytebufferpool.ByteBuffer
	if len(patch) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], patch...)
		op.Patch = bb.B[:len(patch)]
	}
	return &Item{Op: op, buf: bb}
}

func releaseItem(it *Item) {
	if it.buf != nil {
		bytebufferpool.Put(it.buf)
	}
	opPool.Put(it.Op)
}

// TryEnqueue copies patch into a pooled buffer and enqueues it without
// blocking. If the queue is full ErrQueueFull is returned and the drop is
// counted.
func (q *Queue) TryEnqueue(key string, patch []byte) error {
	it := makeItem(key, patch)
	select {
	case q.ch <- it:
		return nil
	default:
		releaseItem(it)
		atomic.AddUint64(&q.dropped, 1)
		droppedTotal.Inc()
		return ErrQueueFull
	}
}

// Enqueue blocks until space is available or the context is done.
func (q *Queue) Enqueue(ctx context.Context, key string, patch []byte) error {
	it := makeItem(key, patch)
	select {
	case q.ch <- it:
		return nil
	case <-ctx.Done():
		releaseItem(it)
		atomic.AddUint64(&q.dropped, 1)
		droppedTotal.Inc()
		return ctx.Err()
	}
}

// CloseAndDrain closes the queue channel and drains remaining items,
// ensuring their resources are released.
func (q *Queue) CloseAndDrain() {
	close(q.ch)
	for it := range q.ch {
		it.Done()
	}
}

// RunWorker invokes handler for each dequeued Op. It guarantees
// Item.Done() is called even if the handler returns an error. The worker
// exits when stop is closed or the queue is closed.
func (q *Queue) RunWorker(stop <-chan struct{}, handler func(*Op) error) {
	for {
		select {
		case it, ok := <-q.ch:
			if !ok {
				return
			}
			func(it *Item) {
				defer it.Done()
				_ = handler(it.Op)
			}(it)
		case <-stop:
			return
		}
	}
}

// Len returns the current number of items in the queue.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity of the queue.
func (q *Queue) Cap() int { return q.capacity }

// Dropped returns the number of operations dropped due to a full queue or
// context cancellation during enqueue.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
