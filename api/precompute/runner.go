package precompute

import (
	"context"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/queue"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

// historySize is the number of finished jobs that are remembered for reporting.
const historySize = 100

// Runner services the precompute queue, evaluating the queued frames through the
// pipeline with bounded parallelism.
type Runner struct {
	config.Config
	pipeline     *pipeline.Pipeline
	clock        anim.Clock
	queue        queue.JobQueue
	pollInterval time.Duration
	done         chan bool
	running      bool
	mutex        *sync.RWMutex
	nextID       int
	active       map[int]JobData
	history      []JobData
}

// NewRunner creates a runner feeding requests from requestQueue into p.
func NewRunner(cfg *config.Config, p *pipeline.Pipeline, clock anim.Clock, requestQueue queue.JobQueue) *Runner {
	pollInterval := time.Duration(cfg.Environment.PollIntervalSec) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	return &Runner{
		Config: config.Config{
			Logger:      cfg.Logger,
			Environment: cfg.Environment,
		},
		pipeline:     p,
		clock:        clock,
		queue:        requestQueue,
		pollInterval: pollInterval,
		done:         make(chan bool, 1),
		mutex:        &sync.RWMutex{},
		active:       make(map[int]JobData),
	}
}

// Start initiates request queue servicing.
func (r *Runner) Start() {
	r.mutex.Lock()
	if r.running {
		r.mutex.Unlock()
		return
	}
	r.running = true
	r.mutex.Unlock()

	// Read from the queue until we get shut down.
	go func() {
		for {
			r.Submit(false)
			select {
			case <-r.done:
				r.mutex.Lock()
				r.running = false
				r.mutex.Unlock()
				return
			case <-time.After(r.pollInterval):
			}
		}
	}()
}

// Stop ends request servicing.  Jobs already dispatched run to completion.
func (r *Runner) Stop() {
	if !r.Running() {
		return
	}
	select {
	case r.done <- true:
	default:
	}
}

// Running indicates whether or not the runner routine has been stopped, or is currently
// running.
func (r *Runner) Running() bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.running
}

// InFlight returns the number of dispatched jobs that have not finished yet.
func (r *Runner) InFlight() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return len(r.active)
}

// Submit dispatches queued requests until the configured parallelism is reached.  With
// force the next request is dispatched regardless of the number of running jobs.
func (r *Runner) Submit(force bool) {
	if force {
		r.submit()
		return
	}
	for r.InFlight() < r.Environment.Parallelism {
		if !r.submit() {
			return
		}
	}
}

// submit dispatches the next queued request.  It returns false once the queue is empty.
func (r *Runner) submit() bool {
	data, ok, err := r.queue.Dequeue()
	if err != nil {
		r.Logger.Error(err)
		return false
	}
	if !ok {
		return false
	}
	request, ok := data.(KeyedFrameRequest)
	if !ok {
		r.Logger.Error(errors.Errorf("unhandled request type %s", reflect.TypeOf(data)))
		return true
	}

	t := r.clock.FrameToTime(request.Frame)
	req := pipeline.NewRequest(t, request.Options())
	job := JobData{Frame: request.Frame, Time: t, State: JobRunning, StartTime: time.Now()}

	if config.UseCacheIdempotency(r.Environment.IdempotencyChecks) && r.pipeline.Cached(req) {
		job.State = JobCached
		job.EndTime = &job.StartTime
		r.mutex.Lock()
		r.record(job)
		r.mutex.Unlock()
		return true
	}

	future := r.pipeline.EvaluatePipeline(req)

	r.mutex.Lock()
	id := r.nextID
	r.nextID++
	r.active[id] = job
	r.mutex.Unlock()

	r.Logger.Debugw("dispatched precompute job", "frame", request.Frame, "time", t)
	go r.track(id, job, future)
	return true
}

// track waits for a dispatched job and moves it to the history.
func (r *Runner) track(id int, job JobData, future *pipeline.EvaluationFuture) {
	state, err := future.Wait(context.Background())
	future.Reset(job.Time)

	end := time.Now()
	job.EndTime = &end
	if err != nil {
		job.State = JobFailed
		job.Error = err.Error()
		r.Logger.Warnw("precompute job failed", "frame", job.Frame, "error", err)
	} else {
		status := state.Status()
		validity := state.Validity()
		job.Status = &status
		job.Validity = &validity
		job.State = JobSuccess
		if status.IsError() {
			job.State = JobFailed
		}
		state.Reset()
	}

	r.mutex.Lock()
	delete(r.active, id)
	r.record(job)
	r.mutex.Unlock()
}

// record must be called with the mutex held.
func (r *Runner) record(job JobData) {
	r.history = append(r.history, job)
	if len(r.history) > historySize {
		r.history = r.history[len(r.history)-historySize:]
	}
}

// Jobs returns the running jobs followed by the most recently finished ones.
func (r *Runner) Jobs() []JobData {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]int, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	jobs := make([]JobData, 0, len(r.active)+len(r.history))
	for _, id := range ids {
		jobs = append(jobs, r.active[id])
	}
	return append(jobs, r.history...)
}
