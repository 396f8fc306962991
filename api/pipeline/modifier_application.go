package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
)

// ModifierApplication inserts a modifier into a pipeline on top of an input node.  It
// owns the caches the modifier works with and serializes evaluations so that at most one
// modifier evaluation is in progress per application.
type ModifierApplication struct {
	modifier Modifier
	input    Node
	logger   *zap.SugaredLogger

	// flights collapses concurrent requests for the same time into one evaluation.
	flights      singleflight.Group
	waitersMutex *sync.Mutex
	waiters      map[string]*flightWaiters
	// evalMutex is held for the duration of every modifier evaluation and orders the
	// accesses to slot.
	evalMutex *sync.Mutex
	slot      CacheSlot

	cache *StateCache

	mutex   *sync.RWMutex
	enabled bool
	status  flow.Status
}

// CacheSlot is a single stored flow state owned by one modifier application.  It may
// only be accessed from inside a modifier evaluation on that application.
type CacheSlot struct {
	state flow.State
}

// NewModifierApplication applies modifier to the output of input.
func NewModifierApplication(modifier Modifier, input Node, logger *zap.SugaredLogger) *ModifierApplication {
	return &ModifierApplication{
		modifier:     modifier,
		input:        input,
		logger:       logger,
		waitersMutex: &sync.Mutex{},
		waiters:      make(map[string]*flightWaiters),
		evalMutex:    &sync.Mutex{},
		cache:        NewStateCache(DefaultCacheSize),
		mutex:        &sync.RWMutex{},
		enabled:      true,
	}
}

// Modifier returns the applied modifier.
func (a *ModifierApplication) Modifier() Modifier {
	return a.modifier
}

// Input returns the upstream node.
func (a *ModifierApplication) Input() Node {
	return a.input
}

// Title implements Node.
func (a *ModifierApplication) Title() string {
	if a.modifier == nil {
		return "empty modifier"
	}
	return a.modifier.Title()
}

// Enabled reports whether the modifier is applied.
func (a *ModifierApplication) Enabled() bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.enabled
}

// SetEnabled turns the modifier on or off.  Turning it off drops all cached results.
func (a *ModifierApplication) SetEnabled(enabled bool) {
	a.mutex.Lock()
	changed := a.enabled != enabled
	a.enabled = enabled
	if !enabled {
		a.status = flow.NewStatus(flow.Success, "Modifier is currently turned off.")
	}
	a.mutex.Unlock()

	if changed && !enabled {
		a.Invalidate(anim.Empty(), true)
	}
}

// Status returns the status the modifier reported during its latest evaluation.
func (a *ModifierApplication) Status() flow.Status {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.status
}

func (a *ModifierApplication) setStatus(status flow.Status) {
	a.mutex.Lock()
	a.status = status
	a.mutex.Unlock()
}

func (a *ModifierApplication) active() bool {
	return a.modifier != nil && a.Enabled()
}

// Slot returns the application's cache slot.  Modifiers use it to keep state across
// evaluations; the caller must be running inside Evaluate or EvaluateSynchronous of this
// application.
func (a *ModifierApplication) Slot() *CacheSlot {
	return &a.slot
}

// SlotSnapshot returns a shared copy of the state held in the cache slot.
func (a *ModifierApplication) SlotSnapshot() flow.State {
	a.evalMutex.Lock()
	defer a.evalMutex.Unlock()
	return a.slot.state.Share()
}

// Invalidate trims the cached results to the part that remains valid within keep.  If
// resetSlot is set the modifier's cache slot is cleared as well.
func (a *ModifierApplication) Invalidate(keep anim.TimeInterval, resetSlot bool) {
	a.cache.Invalidate(keep)
	if resetSlot {
		a.evalMutex.Lock()
		a.slot.state.Reset()
		a.evalMutex.Unlock()
	}
}

// ValidityInterval implements Node.
func (a *ModifierApplication) ValidityInterval(req Request) anim.TimeInterval {
	iv := anim.Infinite()
	if a.input != nil {
		iv = iv.Intersect(a.input.ValidityInterval(req))
	}
	if a.active() {
		if restrictor, ok := a.modifier.(ValidityRestrictor); ok {
			iv = iv.Intersect(restrictor.ValidityInterval(req, a))
		}
	}
	return iv
}

// Evaluate implements Node.
func (a *ModifierApplication) Evaluate(ctx context.Context, req Request) (flow.State, error) {
	// A disabled modifier is bypassed.
	if a.input != nil && !a.active() {
		return a.input.Evaluate(ctx, req)
	}

	if state, ok := a.cache.Lookup(req); ok {
		return state, nil
	}

	key := req.key()
	w := a.join(key)
	defer a.leave(key, w)

	for {
		result, err, shared := a.flights.Do(key, func() (interface{}, error) {
			state, err := a.evaluateInternal(ctx, req)
			if err != nil {
				return nil, err
			}
			// Results computed for a request that has been given up are not committed.
			if ctx.Err() == nil {
				a.cache.Insert(req, state)
			}
			return &state, nil
		})
		if err != nil {
			// The flight ran under another caller's context, which was canceled.
			if shared && isCancellation(err) && ctx.Err() == nil {
				a.flights.Forget(key)
				continue
			}
			return flow.State{}, err
		}
		state := result.(*flow.State)
		a.collect(w, state)
		return state.Share(), nil
	}
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// flightWaiters tracks the callers waiting on flights for one key.  Each flight result
// holds a reference on its data until the last of those callers has taken its own share.
type flightWaiters struct {
	count   int
	results map[*flow.State]struct{}
}

func (a *ModifierApplication) collect(w *flightWaiters, state *flow.State) {
	a.waitersMutex.Lock()
	w.results[state] = struct{}{}
	a.waitersMutex.Unlock()
}

func (a *ModifierApplication) join(key string) *flightWaiters {
	a.waitersMutex.Lock()
	defer a.waitersMutex.Unlock()
	w, ok := a.waiters[key]
	if !ok {
		w = &flightWaiters{results: map[*flow.State]struct{}{}}
		a.waiters[key] = w
	}
	w.count++
	return w
}

// leave releases the flight results once nobody waits on the key anymore.
func (a *ModifierApplication) leave(key string, w *flightWaiters) {
	a.waitersMutex.Lock()
	w.count--
	if w.count > 0 {
		a.waitersMutex.Unlock()
		return
	}
	delete(a.waiters, key)
	a.waitersMutex.Unlock()

	for state := range w.results {
		state.Reset()
	}
}

func (a *ModifierApplication) evaluateInternal(ctx context.Context, req Request) (flow.State, error) {
	if a.input == nil {
		return flow.State{}, nil
	}
	state, err := a.input.Evaluate(ctx, req)
	if err != nil {
		return flow.State{}, errors.Wrapf(err, "failed to evaluate input of '%s'", a.Title())
	}
	if err := ctx.Err(); err != nil {
		return flow.State{}, err
	}

	if !a.prepareInput(req, &state) {
		return state, nil
	}

	a.apply(&state, func() (flow.Status, error) {
		return a.modifier.Evaluate(ctx, req, a, &state)
	})
	state.IntersectValidity(a.ValidityInterval(req))
	return state, nil
}

// EvaluateSynchronous implements Node.  Modifiers that cannot compute a preliminary
// result leave the upstream state untouched, unless a complete result for the
// requested time is already cached.
func (a *ModifierApplication) EvaluateSynchronous(req Request) flow.State {
	if a.input == nil {
		return flow.State{}
	}
	if !a.active() {
		return a.input.EvaluateSynchronous(req)
	}

	state := a.input.EvaluateSynchronous(req)

	syncModifier, ok := a.modifier.(SynchronousModifier)
	if !ok {
		if cached, found := a.cache.Lookup(req); found {
			state.Reset()
			return cached
		}
		return state
	}

	if !a.prepareInput(req, &state) {
		return state
	}
	a.apply(&state, func() (flow.Status, error) {
		return syncModifier.EvaluateSynchronous(req, a, &state), nil
	})
	return state
}

// prepareInput clears upstream warnings and decides whether the modifier runs at all.
// Pending states pass unchanged so that the modifier can tell a deferred input apart.
func (a *ModifierApplication) prepareInput(req Request, state *flow.State) bool {
	switch state.Status().Type {
	case flow.Error:
		if !req.ContinueOnError() {
			return false
		}
	case flow.Warning:
		state.SetStatus(flow.Status{})
	case flow.Pending:
		return true
	}
	return state.HasData()
}

// apply runs one modifier evaluation while holding the evaluation lock, converting
// returned errors and panics into an Error status on the state.
func (a *ModifierApplication) apply(state *flow.State, evaluate func() (flow.Status, error)) {
	a.evalMutex.Lock()
	defer a.evalMutex.Unlock()

	inputStatus := state.Status()
	status, err := a.protect(evaluate)
	if err != nil {
		a.setStatus(flow.ErrorStatus(err.Error()))
		a.logger.Warnw("modifier evaluation failed", "modifier", a.Title(), "error", err)
		state.SetStatus(flow.ErrorStatus(fmt.Sprintf("Modifier '%s' reported: %s", a.Title(), err.Error())))
		return
	}

	if status.Type == flow.Warning || status.Type == flow.Error {
		if state.Status().Type == flow.Success {
			state.SetStatus(status)
		}
	}
	if !inputStatus.IsError() || status.Type == flow.Success {
		a.setStatus(status)
	} else {
		a.setStatus(flow.Status{})
	}
}

func (a *ModifierApplication) protect(evaluate func() (flow.Status, error)) (status flow.Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("unexpected failure: %v", r)
		}
	}()
	return evaluate()
}
