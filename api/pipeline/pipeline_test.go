package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
)

func testPipeline(t *testing.T, src *testSource) (*Pipeline, *ModifierApplication, *ModifierApplication) {
	logger := zaptest.NewLogger(t).Sugar()
	count := NewModifierApplication(countModifier(), src, logger)
	replay := NewModifierApplication(NewReplayCache(), count, logger)
	return New(replay, 8, logger), count, replay
}

func TestPipelineApplications(t *testing.T) {
	src := steadySource(1)
	p, count, replay := testPipeline(t, src)

	assert.Equal(t, []*ModifierApplication{count, replay}, p.Applications())
	assert.Same(t, src, p.Source())
	assert.Same(t, replay, p.Head())
}

func TestPipelineCachesResults(t *testing.T) {
	src := steadySource(2)
	p, _, _ := testPipeline(t, src)

	_, err := p.EvaluatePipeline(NewRequest(3)).Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, p.CacheSize())

	future := p.EvaluatePipeline(NewRequest(3))
	assert.True(t, future.IsFinished())
	assert.Equal(t, 1, src.callCount())
}

func TestPipelineDoesNotCachePending(t *testing.T) {
	src := newTestSource(func(req Request) flow.State {
		return particleState(1, flow.PendingStatus(), req.Time())
	})
	p, _, _ := testPipeline(t, src)

	state, err := p.EvaluatePipeline(NewRequest(3)).Wait(context.Background())
	assert.NoError(t, err)
	assert.True(t, state.Status().IsPending())
	assert.Equal(t, 0, p.CacheSize())
}

func TestPipelineEvaluatePreliminary(t *testing.T) {
	src := steadySource(4)
	p, _, _ := testPipeline(t, src)

	state := p.EvaluatePreliminary(NewRequest(1))
	assert.Equal(t, 4, particleCount(state))
	assert.Equal(t, 0, src.callCount())
}

func TestPipelineEvaluateMultiple(t *testing.T) {
	src := steadySource(2)
	p, _, _ := testPipeline(t, src)

	times := []anim.TimePoint{40, 10, 30, 20}
	states, err := p.EvaluateMultiple(context.Background(), NewRequest(0), times, 2)
	assert.NoError(t, err)
	assert.Len(t, states, len(times))
	for i, state := range states {
		assert.True(t, state.Validity().Contains(times[i]))
	}
	assert.Equal(t, len(times), p.CacheSize())
	assert.Equal(t, 0, p.InFlight())
}

func TestPipelineInvalidate(t *testing.T) {
	src := steadySource(2)
	p, count, replay := testPipeline(t, src)

	_, err := p.EvaluatePipeline(NewRequest(3)).Wait(context.Background())
	assert.NoError(t, err)

	p.Invalidate(anim.Empty(), false)
	assert.Equal(t, 0, p.CacheSize())
	assert.Equal(t, 0, count.cache.Size())
	assert.True(t, replay.SlotSnapshot().HasData())
	assert.Equal(t, 1, src.invalidated)

	p.Invalidate(anim.Empty(), true)
	assert.False(t, replay.SlotSnapshot().HasData())
}

type panickingNode struct {
	testSource
}

func (n *panickingNode) Evaluate(context.Context, Request) (flow.State, error) {
	panic("corrupted frame")
}

func TestPipelinePanicResolvesFuture(t *testing.T) {
	node := &panickingNode{testSource: *steadySource(1)}
	p := New(node, 4, zaptest.NewLogger(t).Sugar())

	state, err := p.EvaluatePipeline(NewRequest(7)).Wait(context.Background())
	assert.NoError(t, err)
	assert.True(t, state.Status().IsError())
	assert.Contains(t, state.Status().Text, "corrupted frame")
}

func TestPipelineWithoutHead(t *testing.T) {
	p := New(nil, 4, zaptest.NewLogger(t).Sugar())

	state, err := p.EvaluatePipeline(NewRequest(0)).Wait(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, flow.Success, state.Status().Type)
	assert.True(t, state.Validity().IsInfinite())
}

func TestPipelineSetStageEnabled(t *testing.T) {
	src := steadySource(2)
	p, count, _ := testPipeline(t, src)

	state, err := p.EvaluatePipeline(NewRequest(3)).Wait(context.Background())
	assert.NoError(t, err)
	_, ok := state.Attribute("count")
	assert.True(t, ok)

	assert.NoError(t, p.SetStageEnabled(0, false))
	assert.False(t, count.Enabled())
	assert.False(t, p.Cached(NewRequest(3)))

	state, err = p.EvaluatePipeline(NewRequest(3)).Wait(context.Background())
	assert.NoError(t, err)
	_, ok = state.Attribute("count")
	assert.False(t, ok)

	assert.Error(t, p.SetStageEnabled(2, true))
	assert.Error(t, p.SetStageEnabled(-1, true))
}

func TestPipelineSeparatesResultsByOptions(t *testing.T) {
	src := newTestSource(func(req Request) flow.State {
		return particleState(2, flow.ErrorStatus("unreadable"), req.Time())
	})
	p, count, _ := testPipeline(t, src)
	ctx := context.Background()

	halted, err := p.EvaluatePipeline(NewRequest(5)).Wait(ctx)
	assert.NoError(t, err)
	assert.True(t, halted.Status().IsError())
	_, ok := halted.Attribute("count")
	assert.False(t, ok)

	continued, err := p.EvaluatePipeline(NewRequest(5, OptionContinueOnError)).Wait(ctx)
	assert.NoError(t, err)
	value, ok := continued.Attribute("count")
	assert.True(t, ok)
	assert.Equal(t, 2.0, value)
	assert.Equal(t, 2, p.CacheSize())
	assert.Equal(t, 2, count.cache.Size())

	// an interactive request reuses the complete default result
	interactive, err := p.EvaluatePipeline(NewRequest(5, OptionInteractive)).Wait(ctx)
	assert.NoError(t, err)
	_, ok = interactive.Attribute("count")
	assert.False(t, ok)
	assert.True(t, p.Cached(NewRequest(5, OptionInteractive)))
}

func TestPipelineRestartsAbandonedEvaluation(t *testing.T) {
	// the source keeps running after its evaluation is canceled
	src := steadySource(3).stubbornlyGated()
	p, _, _ := testPipeline(t, src)

	first := p.EvaluatePipeline(NewRequest(2))
	assert.Eventually(t, func() bool { return src.callCount() == 1 }, time.Second, time.Millisecond)
	first.Reset(2)

	second := p.EvaluatePipeline(NewRequest(2))
	defer second.Reset(2)
	src.open()

	state, err := second.Wait(context.Background())
	assert.NoError(t, err)
	assert.True(t, state.HasData())
	assert.Equal(t, 3, particleCount(state))
	state.Reset()
}

func TestPipelineReleasesFinishedEvaluations(t *testing.T) {
	src := steadySource(3)
	p, _, _ := testPipeline(t, src)

	future := p.EvaluatePipeline(NewRequest(4))
	state, err := future.Wait(context.Background())
	assert.NoError(t, err)
	future.Reset(4)
	p.Invalidate(anim.Empty(), true)

	// nothing else refers to the result, so changing it copies nothing
	data := state.Data()
	before, ok := data.Find(flow.KindParticles)
	assert.True(t, ok)
	after, ok := state.MakeMutable(flow.KindParticles)
	assert.True(t, ok)
	assert.Same(t, data, state.Data())
	assert.Same(t, before, after)
}
