package stream

import "sync"

// OverflowPolicy decides what a full client queue does with the next event.
type OverflowPolicy uint8

const (
	_overflow_beg OverflowPolicy = iota
	// OverflowBlock holds the publisher until the client catches up.
	OverflowBlock
	// OverflowDropOldest discards the oldest queued event.
	OverflowDropOldest
	// OverflowDisconnect closes the client.
	OverflowDisconnect
	_overflow_end
)

func (p OverflowPolicy) IsAvailable() bool {
	return p > _overflow_beg && p < _overflow_end
}

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowBlock:
		return "block"
	case OverflowDropOldest:
		return "drop_oldest"
	case OverflowDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

func ParseOverflowPolicy(s string) (OverflowPolicy, bool) {
	for p := _overflow_beg + 1; p < _overflow_end; p++ {
		if p.String() == s {
			return p, true
		}
	}
	return 0, false
}

// eventQueue is a bounded ring buffer of encoded records.
type eventQueue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      [][]byte
	head     int
	tail     int
	size     int
	dropped  uint64
	closed   bool
	policy   OverflowPolicy
}

func newEventQueue(capacity int, policy OverflowPolicy) *eventQueue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &eventQueue{
		buf:    make([][]byte, capacity),
		policy: policy,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// push enqueues rec. It returns false when the queue is closed, or when it is
// full under OverflowDisconnect.
func (q *eventQueue) push(rec []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.closed {
			return false
		}
		if q.size < len(q.buf) {
			q.buf[q.tail] = rec
			q.tail = (q.tail + 1) % len(q.buf)
			q.size++
			q.notEmpty.Signal()
			return true
		}
		switch q.policy {
		case OverflowBlock:
			q.notFull.Wait()
		case OverflowDropOldest:
			q.buf[q.head] = nil
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			q.dropped++
		default:
			return false
		}
	}
}

// pop blocks until a record is queued. Queued records drain before a closed
// queue reports false.
func (q *eventQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.size > 0 {
			rec := q.buf[q.head]
			q.buf[q.head] = nil
			q.head = (q.head + 1) % len(q.buf)
			q.size--
			q.notFull.Signal()
			return rec, true
		}
		if q.closed {
			return nil, false
		}
		q.notEmpty.Wait()
	}
}

func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

// discard drops everything queued; used when the connection is gone.
func (q *eventQueue) discard() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.buf {
		q.buf[i] = nil
	}
	q.head, q.tail, q.size = 0, 0, 0
	q.closed = true
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *eventQueue) droppedCount() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
