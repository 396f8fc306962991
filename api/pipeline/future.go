package pipeline

import (
	"context"
	"sync"
	"weak"

	"github.com/pkg/errors"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
)

// ErrDetached is returned when waiting on a future that is not attached to an evaluation.
var ErrDetached = errors.New("evaluation future is not attached to a pipeline evaluation")

// EvaluationFuture is a handle on an asynchronous pipeline evaluation.  Several futures
// may share one evaluation; all of them receive the same result.  The future refers to
// its pipeline weakly and does not keep it alive.
type EvaluationFuture struct {
	mutex    *sync.Mutex
	request  Request
	pipeline weak.Pointer[Pipeline]
	task     *task
}

// NewEvaluationFuture creates a detached future for the given request.
func NewEvaluationFuture(req Request) *EvaluationFuture {
	return &EvaluationFuture{
		mutex:   &sync.Mutex{},
		request: req,
	}
}

// Request returns the request the future represents.
func (f *EvaluationFuture) Request() Request {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.request
}

// Pipeline returns the pipeline the future is attached to, or nil.
func (f *EvaluationFuture) Pipeline() *Pipeline {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.pipeline.Value()
}

// IsValid reports whether the future is attached to an evaluation.
func (f *EvaluationFuture) IsValid() bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.task != nil
}

// IsFinished reports whether the attached evaluation has completed.  A detached future
// is never finished.
func (f *EvaluationFuture) IsFinished() bool {
	f.mutex.Lock()
	t := f.task
	f.mutex.Unlock()
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed when the attached evaluation completes.  It
// returns nil for a detached future.
func (f *EvaluationFuture) Done() <-chan struct{} {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.task == nil {
		return nil
	}
	return f.task.done
}

// Wait blocks until the evaluation completes or ctx is done.  A detached future returns
// ErrDetached immediately.
func (f *EvaluationFuture) Wait(ctx context.Context) (flow.State, error) {
	f.mutex.Lock()
	t := f.task
	f.mutex.Unlock()
	if t == nil {
		return flow.State{}, ErrDetached
	}

	select {
	case <-t.done:
		return t.result()
	case <-ctx.Done():
		return flow.State{}, ctx.Err()
	}
}

// Share returns another future on the same evaluation.  Each copy must be reset on its
// own to give up interest in the result.
func (f *EvaluationFuture) Share() *EvaluationFuture {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	copied := &EvaluationFuture{
		mutex:    &sync.Mutex{},
		request:  f.request,
		pipeline: f.pipeline,
	}
	if f.task != nil && f.task.retain() {
		copied.task = f.task
	}
	return copied
}

// Reset gives up interest in the current evaluation and prepares the future for a new
// request at time t.  The evaluation keeps running while other futures share it.  The
// future stays detached until a pipeline attaches it again.
func (f *EvaluationFuture) Reset(t anim.TimePoint) {
	f.mutex.Lock()
	old := f.task
	f.task = nil
	f.pipeline = weak.Pointer[Pipeline]{}
	f.request = NewRequest(t)
	f.mutex.Unlock()

	if old != nil {
		old.release()
	}
}

// attach binds the future to a pipeline evaluation, dropping any previous one.
func (f *EvaluationFuture) attach(p *Pipeline, req Request, t *task) {
	f.mutex.Lock()
	old := f.task
	f.request = req
	f.pipeline = weak.Make(p)
	f.task = t
	f.mutex.Unlock()

	if old != nil {
		old.release()
	}
}
