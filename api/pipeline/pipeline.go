package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
)

// Invalidator is implemented by nodes that keep cached results.
type Invalidator interface {
	Invalidate(keep anim.TimeInterval, resetSynchronous bool)
}

// Pipeline drives the evaluation of a chain of nodes.  It caches final results, shares
// in-flight evaluations between identical requests and cancels evaluations nobody is
// waiting for anymore.
type Pipeline struct {
	head   Node
	logger *zap.SugaredLogger
	cache  *StateCache

	mutex *sync.Mutex
	tasks map[string]*task
}

// New creates a pipeline whose output is produced by head.
func New(head Node, cacheSize int, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		head:   head,
		logger: logger,
		cache:  NewStateCache(cacheSize),
		mutex:  &sync.Mutex{},
		tasks:  make(map[string]*task),
	}
}

// Head returns the last node of the pipeline.
func (p *Pipeline) Head() Node {
	return p.head
}

// Applications returns the modifier applications of the pipeline, from the source up.
func (p *Pipeline) Applications() []*ModifierApplication {
	var apps []*ModifierApplication
	node := p.head
	for node != nil {
		app, ok := node.(*ModifierApplication)
		if !ok {
			break
		}
		apps = append([]*ModifierApplication{app}, apps...)
		node = app.Input()
	}
	return apps
}

// Source returns the first node of the pipeline.
func (p *Pipeline) Source() Node {
	node := p.head
	for {
		app, ok := node.(*ModifierApplication)
		if !ok || app.Input() == nil {
			return node
		}
		node = app.Input()
	}
}

// EvaluatePipeline starts an evaluation for req and returns a future on its result.
func (p *Pipeline) EvaluatePipeline(req Request) *EvaluationFuture {
	future := NewEvaluationFuture(req)
	p.Attach(future)
	return future
}

// Attach binds a (typically reset) future to an evaluation of its current request.
func (p *Pipeline) Attach(future *EvaluationFuture) {
	req := future.Request()
	future.attach(p, req, p.start(req))
}

// InFlight returns the number of evaluations currently running.
func (p *Pipeline) InFlight() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.tasks)
}

// Cached reports whether a final result for req is cached.
func (p *Pipeline) Cached(req Request) bool {
	state, ok := p.cache.Lookup(req)
	state.Reset()
	return ok
}

// SetStageEnabled turns the modifier application at index (counted from the source up)
// on or off.  Results depending on it are discarded.
func (p *Pipeline) SetStageEnabled(index int, enabled bool) error {
	apps := p.Applications()
	if index < 0 || index >= len(apps) {
		return errors.Errorf("no pipeline stage %d", index)
	}
	apps[index].SetEnabled(enabled)
	for _, app := range apps[index+1:] {
		app.Invalidate(anim.Empty(), false)
	}
	p.cache.Invalidate(anim.Empty())
	return nil
}

// CacheSize returns the number of cached pipeline results.
func (p *Pipeline) CacheSize() int {
	return p.cache.Size()
}

func (p *Pipeline) start(req Request) *task {
	key := req.key()
	if state, ok := p.cache.Lookup(req); ok {
		return newFinishedTask(key, state)
	}

	p.mutex.Lock()
	if t, ok := p.tasks[key]; ok && t.retain() {
		p.mutex.Unlock()
		return t
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := newTask(key, cancel)
	p.tasks[key] = t
	p.mutex.Unlock()

	go p.run(ctx, req, t)
	return t
}

func (p *Pipeline) run(ctx context.Context, req Request, t *task) {
	started := time.Now()
	defer func() {
		p.mutex.Lock()
		if p.tasks[t.key] == t {
			delete(p.tasks, t.key)
		}
		p.mutex.Unlock()
		t.cancel()
	}()

	state, err := p.evaluate(ctx, req)
	if err != nil {
		p.logger.Debugw("pipeline evaluation abandoned", "time", req.Time(), "error", err)
		t.finish(flow.State{}, err)
		return
	}

	// The cancellation token is checked before the result is committed.
	if ctx.Err() == nil {
		p.cache.Insert(req, state)
	}
	p.logger.Debugw("pipeline evaluation finished",
		"time", req.Time(),
		"status", state.Status().String(),
		"validity", state.Validity().String(),
		"duration", time.Since(started))
	t.finish(state, nil)
}

// evaluate runs the head node.  Failures escaping the nodes resolve the evaluation with
// an error state rather than leaving it unresolved.
func (p *Pipeline) evaluate(ctx context.Context, req Request) (state flow.State, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Errorf("pipeline evaluation failed: %v", r)
			state = flow.NewState(nil, flow.ErrorStatus(errors.Errorf("unexpected failure: %v", r).Error()), anim.Instant(req.Time()))
			err = nil
		}
	}()
	if p.head == nil {
		return flow.NewState(nil, flow.Status{}, anim.Infinite()), nil
	}
	return p.head.Evaluate(ctx, req)
}

// EvaluatePreliminary returns a cached result for the request, or an immediate
// preliminary result of the pipeline if none is cached.
func (p *Pipeline) EvaluatePreliminary(req Request) flow.State {
	if state, ok := p.cache.Lookup(req); ok {
		return state
	}
	if p.head == nil {
		return flow.State{}
	}
	return p.head.EvaluateSynchronous(req)
}

// EvaluateMultiple evaluates the pipeline at several times with at most limit evaluations
// running at once.  Results are returned in the order of times.
func (p *Pipeline) EvaluateMultiple(ctx context.Context, req Request, times []anim.TimePoint, limit int) ([]flow.State, error) {
	results := make([]flow.State, len(times))

	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, t := range times {
		g.Go(func() error {
			future := p.EvaluatePipeline(req.WithTime(t))
			defer future.Reset(t)

			state, err := future.Wait(gctx)
			if err != nil {
				return errors.Wrapf(err, "failed to evaluate pipeline at time %d", t)
			}
			results[i] = state
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for i := range results {
			results[i].Reset()
		}
		return nil, err
	}
	return results, nil
}

// Invalidate discards cached results outside keep in the pipeline and all of its nodes.
// With resetSynchronous the modifiers' cache slots are cleared too.
func (p *Pipeline) Invalidate(keep anim.TimeInterval, resetSynchronous bool) {
	p.cache.Invalidate(keep)
	for _, app := range p.Applications() {
		app.Invalidate(keep, resetSynchronous)
	}
	if inv, ok := p.Source().(Invalidator); ok {
		inv.Invalidate(keep, resetSynchronous)
	}
}
