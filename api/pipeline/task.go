package pipeline

import (
	"context"
	"sync"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
)

// task is an evaluation shared by every future attached to it.  It counts the futures
// interested in its result and cancels the computation when the last one detaches.
type task struct {
	key    string
	done   chan struct{}
	cancel context.CancelFunc

	mutex    *sync.Mutex
	interest int
	canceled bool
	state    flow.State
	err      error
}

func newTask(key string, cancel context.CancelFunc) *task {
	return &task{
		key:      key,
		done:     make(chan struct{}),
		cancel:   cancel,
		mutex:    &sync.Mutex{},
		interest: 1,
	}
}

// newFinishedTask wraps an already available result.
func newFinishedTask(key string, state flow.State) *task {
	t := newTask(key, func() {})
	t.finish(state, nil)
	return t
}

// retain registers another interested future.  It fails once the last interested future
// has let go, whether or not the evaluation had finished by then.
func (t *task) retain() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.canceled || t.interest <= 0 {
		return false
	}
	t.interest++
	return true
}

// release drops one interested future and cancels the computation when none is left.
// Results that are already committed stay committed.
func (t *task) release() {
	t.mutex.Lock()
	t.interest--
	cancel := false
	if t.interest <= 0 {
		if t.finished() {
			t.state.Reset()
		} else {
			cancel = true
			t.canceled = true
		}
	}
	t.mutex.Unlock()

	if cancel {
		t.cancel()
	}
}

// finish takes over the caller's reference on state.
func (t *task) finish(state flow.State, err error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.finished() {
		state.Reset()
		return
	}
	t.state = state
	t.err = err
	if t.interest <= 0 {
		t.state.Reset()
	}
	close(t.done)
}

// finished must be called with the mutex held, or after done is closed.
func (t *task) finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *task) result() (flow.State, error) {
	<-t.done
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.err != nil {
		return flow.State{}, t.err
	}
	return t.state.Share(), nil
}
