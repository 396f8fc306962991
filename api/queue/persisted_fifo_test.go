package queue

import (
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/assert"
)

type testJob struct {
	Frame int
}

func init() {
	gob.Register(testJob{})
}

func TestPersistedEnqueueDequeue(t *testing.T) {
	queue, err := NewPersistedQueue(2, t.TempDir(), "q1")
	assert.NoError(t, err)

	result, err := queue.Enqueue(testJob{10})
	assert.NoError(t, err)
	assert.True(t, result)
	result, err = queue.Enqueue(testJob{20})
	assert.NoError(t, err)
	assert.True(t, result)
	result, err = queue.Enqueue(testJob{30})
	assert.NoError(t, err)
	assert.False(t, result)

	assert.Equal(t, 2, queue.Size())

	value, ok, err := queue.Dequeue()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testJob{10}, value)

	value, ok, err = queue.Dequeue()
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, testJob{20}, value)

	_, ok, err = queue.Dequeue()
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestPersistedKeyedEnqueueDequeue(t *testing.T) {
	queue, err := NewPersistedQueue(2, t.TempDir(), "q2")
	assert.NoError(t, err)

	result, err := queue.EnqueueKeyed(1, testJob{10})
	assert.NoError(t, err)
	assert.True(t, result)
	result, err = queue.EnqueueKeyed(1, testJob{10})
	assert.NoError(t, err)
	assert.True(t, result)
	assert.Equal(t, 1, queue.Size())

	_, _, err = queue.Dequeue()
	assert.NoError(t, err)

	result, err = queue.EnqueueKeyed(1, testJob{10})
	assert.NoError(t, err)
	assert.True(t, result)
	assert.Equal(t, 1, queue.Size())
}

func TestPersistedClear(t *testing.T) {
	queue, err := NewPersistedQueue(3, t.TempDir(), "q3")
	assert.NoError(t, err)
	_, _ = queue.Enqueue(testJob{10})
	_, _ = queue.EnqueueKeyed(2, testJob{20})

	err = queue.Clear()
	assert.NoError(t, err)
	assert.Equal(t, 0, queue.Size())

	result, err := queue.EnqueueKeyed(2, testJob{20})
	assert.NoError(t, err)
	assert.True(t, result)
	assert.Equal(t, 1, queue.Size())
}

func TestPersistedReload(t *testing.T) {
	dir := t.TempDir()

	queue, err := NewPersistedQueue(3, dir, "q4")
	assert.NoError(t, err)
	_, _ = queue.EnqueueKeyed(10, testJob{1})
	_, _ = queue.EnqueueKeyed(20, testJob{2})
	_, _ = queue.Enqueue(testJob{3})
	assert.NoError(t, queue.Close())

	queue, err = NewPersistedQueue(3, dir, "q4")
	assert.NoError(t, err)
	defer queue.Close()
	assert.Equal(t, 3, queue.Size())

	contents, err := queue.Contents()
	assert.NoError(t, err)
	assert.Equal(t, []interface{}{testJob{1}, testJob{2}, testJob{3}}, contents)

	// waiting keys are restored from disk
	result, err := queue.EnqueueKeyed(10, testJob{1})
	assert.NoError(t, err)
	assert.True(t, result)
	assert.Equal(t, 3, queue.Size())

	result, err = queue.EnqueueKeyed(40, testJob{4})
	assert.NoError(t, err)
	assert.False(t, result)
}

func TestPersistedClose(t *testing.T) {
	queue, err := NewPersistedQueue(3, t.TempDir(), "q5")
	assert.NoError(t, err)
	_, _ = queue.Enqueue(testJob{10})

	err = queue.Close()
	assert.NoError(t, err)

	err = queue.Close()
	assert.ErrorIs(t, err, ErrClosed)

	_, err = queue.Enqueue(testJob{10})
	assert.Error(t, err)

	_, err = queue.EnqueueKeyed(10, testJob{10})
	assert.Error(t, err)

	_, _, err = queue.Dequeue()
	assert.Error(t, err)

	_, err = queue.Contents()
	assert.Error(t, err)
}
