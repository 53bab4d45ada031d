package engine

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/roach88/vetogate/internal/types"
)

// RequestType distinguishes between queued request kinds.
type RequestType int

const (
	// RequestExecute runs a top-level command.
	RequestExecute RequestType = iota + 1
	// RequestInstantiate creates a contract instance.
	RequestInstantiate
	// RequestAdvance moves block height and block time forward.
	RequestAdvance
)

func (t RequestType) String() string {
	switch t {
	case RequestExecute:
		return "execute"
	case RequestInstantiate:
		return "instantiate"
	case RequestAdvance:
		return "advance"
	default:
		return "unknown"
	}
}

// Request is a unit of work submitted to the single-writer loop.
type Request struct {
	Type     RequestType
	Sender   types.Address
	Contract types.Address   // execute target
	Code     string          // instantiate
	Label    string          // instantiate
	Msg      json.RawMessage // execute, instantiate
	Seconds  time.Duration   // advance
	Blocks   uint64          // advance
}

// Result is what the Run loop hands back to Submit.
type Result struct {
	Outcome *Outcome
	Err     error
}

// pending pairs a request with the channel its submitter waits on.
type pending struct {
	req  Request
	done chan Result
}

// requestQueue is a thread-safe FIFO queue for requests.
//
// Thread-safety is provided for external enqueuing (HTTP handlers) while the
// Engine's Run loop dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type requestQueue struct {
	mu     sync.Mutex
	items  []pending
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

// newRequestQueue creates an empty request queue.
func newRequestQueue() *requestQueue {
	return &requestQueue{
		items:  make([]pending, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a request to the back of the queue.
// Returns false if the queue is closed.
func (q *requestQueue) Enqueue(p pending) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, p)

	// Non-blocking - buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns false if the queue is empty.
func (q *requestQueue) TryDequeue() (pending, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return pending{}, false
	}

	p := q.items[0]
	// Release the slot so the done channel can be collected.
	q.items[0] = pending{}

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return p, true
}

// Wait returns a channel that signals when requests may be available.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more requests will be enqueued and fails every request
// still waiting.
func (q *requestQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	for _, p := range q.items {
		p.done <- Result{Err: ErrStopped}
	}
	q.items = nil
	close(q.signal)
}
