package pipeline

import (
	"context"
	"sync"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
)

// testSource produces states from a script and records how often it was asked.
type testSource struct {
	mutex       *sync.Mutex
	calls       int
	invalidated int
	gate        chan struct{}
	stubborn    bool
	script      func(req Request) flow.State
}

func newTestSource(script func(req Request) flow.State) *testSource {
	return &testSource{mutex: &sync.Mutex{}, script: script}
}

// gated makes Evaluate block until open is called or the evaluation is canceled.
func (s *testSource) gated() *testSource {
	s.gate = make(chan struct{})
	return s
}

// stubbornlyGated makes Evaluate block until open is called, even once canceled.
func (s *testSource) stubbornlyGated() *testSource {
	s.gated()
	s.stubborn = true
	return s
}

func (s *testSource) open() {
	close(s.gate)
}

func (s *testSource) callCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.calls
}

func (s *testSource) Title() string {
	return "test source"
}

func (s *testSource) Evaluate(ctx context.Context, req Request) (flow.State, error) {
	s.mutex.Lock()
	s.calls++
	s.mutex.Unlock()
	if s.gate != nil && s.stubborn {
		<-s.gate
	} else if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return flow.State{}, ctx.Err()
		}
	}
	return s.script(req), nil
}

func (s *testSource) EvaluateSynchronous(req Request) flow.State {
	return s.script(req)
}

func (s *testSource) ValidityInterval(req Request) anim.TimeInterval {
	return anim.Instant(req.Time())
}

func (s *testSource) Invalidate(anim.TimeInterval, bool) {
	s.mutex.Lock()
	s.invalidated++
	s.mutex.Unlock()
}

// particleState builds a state of n particles valid at exactly time t.
func particleState(n int, status flow.Status, t anim.TimePoint) flow.State {
	particles := &flow.Particles{Positions: make([]flow.Point3, n)}
	for i := range particles.Positions {
		particles.Positions[i] = flow.Point3{float64(i), 0, 0}
	}
	return flow.NewState(flow.NewCollection(particles), status, anim.Instant(t))
}

func steadySource(n int) *testSource {
	return newTestSource(func(req Request) flow.State {
		return particleState(n, flow.Status{}, req.Time())
	})
}

func particleCount(state flow.State) int {
	obj, ok := state.Data().Find(flow.KindParticles)
	if !ok {
		return -1
	}
	return obj.(*flow.Particles).Count()
}

// funcModifier adapts a function to the Modifier interface and counts its invocations.
type funcModifier struct {
	mutex *sync.Mutex
	calls int
	fn    func(state *flow.State) (flow.Status, error)
}

func newFuncModifier(fn func(state *flow.State) (flow.Status, error)) *funcModifier {
	return &funcModifier{mutex: &sync.Mutex{}, fn: fn}
}

func (m *funcModifier) Title() string {
	return "test modifier"
}

func (m *funcModifier) Evaluate(_ context.Context, _ Request, _ *ModifierApplication, state *flow.State) (flow.Status, error) {
	m.mutex.Lock()
	m.calls++
	m.mutex.Unlock()
	return m.fn(state)
}

func (m *funcModifier) callCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.calls
}

// countModifier stores the particle count as an attribute.
func countModifier() *funcModifier {
	return newFuncModifier(func(state *flow.State) (flow.Status, error) {
		state.SetAttribute("count", float64(particleCount(*state)))
		return flow.Status{}, nil
	})
}
