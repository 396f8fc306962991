package queue

import (
	"container/list"
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// ListQueue is an in-memory JobQueue backed by a doubly linked list.  Its contents do not
// survive a restart.
type ListQueue struct {
	entries  *list.List
	keys     map[int]bool
	capacity int
	closed   bool
	mutex    *sync.RWMutex
}

// NewListQueue creates an empty queue holding at most capacity entries.
func NewListQueue(capacity int) *ListQueue {
	return &ListQueue{
		entries:  list.New(),
		keys:     map[int]bool{},
		capacity: capacity,
		mutex:    &sync.RWMutex{},
	}
}

// Enqueue implements JobQueue.
func (q *ListQueue) Enqueue(x interface{}) (bool, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return false, ErrClosed
	}
	if q.entries.Len() >= q.capacity {
		return false, nil
	}
	q.entries.PushBack(&entry{Value: x})
	return true, nil
}

// EnqueueKeyed implements JobQueue.
func (q *ListQueue) EnqueueKeyed(key int, x interface{}) (bool, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return false, ErrClosed
	}
	if q.keys[key] {
		return true, nil
	}
	if q.entries.Len() >= q.capacity {
		return false, nil
	}
	q.entries.PushBack(&entry{Key: key, Keyed: true, Value: x})
	q.keys[key] = true
	return true, nil
}

// Dequeue implements JobQueue.
func (q *ListQueue) Dequeue() (interface{}, bool, error) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return nil, false, ErrClosed
	}
	front := q.entries.Front()
	if front == nil {
		return nil, false, nil
	}
	q.entries.Remove(front)

	e := front.Value.(*entry)
	if e.Keyed {
		delete(q.keys, e.Key)
	}
	return e.Value, true, nil
}

// Size implements JobQueue.
func (q *ListQueue) Size() int {
	q.mutex.RLock()
	defer q.mutex.RUnlock()
	return q.entries.Len()
}

// Clear implements JobQueue.
func (q *ListQueue) Clear() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return ErrClosed
	}
	q.entries.Init()
	q.keys = map[int]bool{}
	return nil
}

// Close implements JobQueue.
func (q *ListQueue) Close() error {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return errors.Wrap(ErrClosed, "close of previously closed queue")
	}
	q.closed = true
	return nil
}

// Contents implements JobQueue.
func (q *ListQueue) Contents() ([]interface{}, error) {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	contents := make([]interface{}, 0, q.entries.Len())
	for current := q.entries.Front(); current != nil; current = current.Next() {
		e, ok := current.Value.(*entry)
		if !ok {
			return nil, errors.Errorf("unexpected type %s", reflect.TypeOf(current.Value))
		}
		contents = append(contents, e.Value)
	}
	return contents, nil
}
