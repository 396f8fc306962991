package queue

import (
	"os"
	"path"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"github.com/uncharted-causemos/dque"
)

const segmentSize = 50

// PersistedQueue is a JobQueue stored on disk, so that pending precompute jobs survive a
// restart.  Values are gob encoded; their concrete types must be registered with
// gob.Register before the queue is opened.
type PersistedQueue struct {
	queue    *dque.DQue
	capacity int
	keys     map[int]bool
	closed   bool
	mutex    *sync.RWMutex
}

func entryBuilder() interface{} {
	return &entry{}
}

// keyCollector rebuilds the set of waiting keys from a queue loaded from disk.
type keyCollector struct {
	keys map[int]bool
}

// Apply is called by dque on each stored entry.
func (k *keyCollector) Apply(item interface{}) error {
	e, ok := item.(*entry)
	if !ok {
		return errors.Errorf("unexpected type %s", reflect.TypeOf(item))
	}
	if e.Keyed {
		k.keys[e.Key] = true
	}
	return nil
}

// valueCollector copies the stored values in queue order.
type valueCollector struct {
	values []interface{}
}

// Apply is called by dque on each stored entry.
func (v *valueCollector) Apply(item interface{}) error {
	e, ok := item.(*entry)
	if !ok {
		return errors.Errorf("unexpected type %s", reflect.TypeOf(item))
	}
	v.values = append(v.values, e.Value)
	return nil
}

// NewPersistedQueue opens the queue stored as name under dir, creating it if it does not
// exist yet.  The queue holds at most capacity entries.
func NewPersistedQueue(capacity int, dir string, name string) (*PersistedQueue, error) {
	var queue *dque.DQue
	if _, err := os.Stat(path.Join(dir, name)); err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "failed to access queue %s/%s", dir, name)
		}
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return nil, errors.Wrapf(err, "failed to create queue dir %s", dir)
		}
		queue, err = dque.New(name, dir, segmentSize, entryBuilder)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to initialize queue %s/%s", dir, name)
		}
	} else {
		queue, err = dque.Open(name, dir, segmentSize, entryBuilder)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load queue %s/%s", dir, name)
		}
	}

	collector := &keyCollector{keys: map[int]bool{}}
	if err := queue.ApplyToQueue(collector); err != nil {
		return nil, errors.Wrapf(err, "failed to rebuild key set for %s/%s", dir, name)
	}

	return &PersistedQueue{
		queue:    queue,
		capacity: capacity,
		keys:     collector.keys,
		mutex:    &sync.RWMutex{},
	}, nil
}

// Enqueue implements JobQueue.
func (q *PersistedQueue) Enqueue(x interface{}) (bool, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return false, ErrClosed
	}
	if q.queue.Size() >= q.capacity {
		return false, nil
	}
	if err := q.queue.Enqueue(&entry{Value: x}); err != nil {
		return false, errors.Wrap(err, "failed to enqueue")
	}
	return true, nil
}

// EnqueueKeyed implements JobQueue.
func (q *PersistedQueue) EnqueueKeyed(key int, x interface{}) (bool, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return false, ErrClosed
	}
	if q.keys[key] {
		return true, nil
	}
	if q.queue.Size() >= q.capacity {
		return false, nil
	}
	if err := q.queue.Enqueue(&entry{Key: key, Keyed: true, Value: x}); err != nil {
		return false, errors.Wrap(err, "failed to enqueue with key")
	}
	q.keys[key] = true
	return true, nil
}

// Dequeue implements JobQueue.
func (q *PersistedQueue) Dequeue() (interface{}, bool, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return nil, false, ErrClosed
	}
	item, err := q.queue.Dequeue()
	if errors.Is(err, dque.ErrEmpty) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to dequeue")
	}

	e := item.(*entry)
	if e.Keyed {
		delete(q.keys, e.Key)
	}
	return e.Value, true, nil
}

// Size implements JobQueue.
func (q *PersistedQueue) Size() int {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	if q.closed {
		return 0
	}
	return q.queue.Size()
}

// Clear implements JobQueue.  dque has no truncation, so the queue is drained.
func (q *PersistedQueue) Clear() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.keys = map[int]bool{}
	for q.queue.Size() > 0 {
		if _, err := q.queue.Dequeue(); err != nil {
			return errors.Wrap(err, "failed to clear queue")
		}
	}
	return nil
}

// Close flushes the queue to disk and forbids further operations.
func (q *PersistedQueue) Close() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return errors.Wrap(ErrClosed, "close of previously closed queue")
	}
	q.closed = true
	return errors.Wrap(q.queue.Close(), "failed to close queue")
}

// Contents implements JobQueue.
func (q *PersistedQueue) Contents() ([]interface{}, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	if q.closed {
		return nil, ErrClosed
	}
	collector := &valueCollector{values: make([]interface{}, 0, q.queue.Size())}
	if err := q.queue.ApplyToQueue(collector); err != nil {
		return nil, errors.Wrap(err, "failed to read queue contents")
	}
	return collector.values, nil
}
