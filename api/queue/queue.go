package queue

import (
	"github.com/pkg/errors"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue is closed")

// JobQueue is a bounded FIFO of pending precompute jobs.
type JobQueue interface {
	// Enqueue appends x.  It returns false without error when the queue is full.
	Enqueue(x interface{}) (bool, error)
	// EnqueueKeyed appends x unless an entry with the same key is already waiting, in
	// which case it reports success without adding anything.
	EnqueueKeyed(key int, x interface{}) (bool, error)
	// Dequeue removes the oldest entry.  It does not block; ok is false when the queue
	// is empty.
	Dequeue() (x interface{}, ok bool, err error)
	Clear() error
	Close() error
	Size() int
	// Contents lists the waiting entries, oldest first.
	Contents() ([]interface{}, error)
}

// entry is the unit stored in both queue implementations.  Its fields are exported for
// gob encoding by the persisted queue.
type entry struct {
	Key   int
	Keyed bool
	Value interface{}
}
