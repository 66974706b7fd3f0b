package logsink

import (
	"errors"
	"sync"
	"time"

	"github.com/louisbranch/heartlog/internal/wire"
)

// ErrQueueClosed is returned by Enqueue once the queue stopped accepting
// entries.
var ErrQueueClosed = errors.New("log queue is closed")

// Entry is one immutable log record: the bytes of one read, newline
// terminated, plus where and when it arrived.
type Entry struct {
	Text       string
	Source     string
	ReceivedAt time.Time
}

// NewEntry builds an entry, appending a newline when text lacks one.
func NewEntry(text, source string, receivedAt time.Time) Entry {
	return Entry{
		Text:       wire.EnsureNewline(text),
		Source:     source,
		ReceivedAt: receivedAt,
	}
}

// Queue is a many-producer, single-consumer FIFO of entries guarded by one
// mutex. Producers push; the consumer takes everything at once.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	closed  bool
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends one entry. Empty entries are ignored.
func (q *Queue) Enqueue(entry Entry) error {
	if entry.Text == "" {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.entries = append(q.entries, entry)
	return nil
}

// Drain removes and returns every queued entry in arrival order.
func (q *Queue) Drain() []Entry {
	q.mu.Lock()
	batch := q.entries
	q.entries = nil
	q.mu.Unlock()
	return batch
}

// Len reports the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close stops the queue from accepting entries. Entries already queued stay
// available to Drain.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}
