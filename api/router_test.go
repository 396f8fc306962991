package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/modifiers"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/precompute"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/queue"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/routes"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/source"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

const testFrames = 4

type testService struct {
	router   chi.Router
	pipeline *pipeline.Pipeline
	queue    *queue.ListQueue
	runner   *precompute.Runner
}

func newTestService(t *testing.T, queueSize int) *testService {
	cfg := config.Config{
		Logger: zaptest.NewLogger(t).Sugar(),
		Environment: &config.Environment{
			QueueSize:         queueSize,
			Parallelism:       2,
			PollIntervalSec:   1,
			IdempotencyChecks: config.IdempotencyAll,
		},
	}
	clock := anim.NewClock(10)
	src := source.NewStaticSource("lattice", clock, source.NewLatticeTrajectory(testFrames, 8)...)
	def, err := modifiers.LoadDefinition("")
	require.NoError(t, err)
	head, err := def.Build(src, cfg.Logger)
	require.NoError(t, err)

	s := &testService{
		pipeline: pipeline.New(head, 16, cfg.Logger),
		queue:    queue.NewListQueue(queueSize),
	}
	s.runner = precompute.NewRunner(&cfg, s.pipeline, clock, s.queue)
	s.router, err = NewRouter(cfg, s.pipeline, clock, s.queue, s.runner)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.runner.Stop()
		assert.Eventually(t, func() bool {
			return !s.runner.Running() && s.runner.InFlight() == 0 && s.pipeline.InFlight() == 0
		}, time.Second, time.Millisecond)
	})
	return s
}

func (s *testService) do(t *testing.T, method string, target string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(method, target, &buf))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

type stateResponse struct {
	Time        int32 `json:"time"`
	Frame       int   `json:"frame"`
	Preliminary bool  `json:"preliminary"`
	Status      struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"status"`
	Validity struct {
		Start *int32 `json:"start"`
		End   *int32 `json:"end"`
	} `json:"validity"`
	Objects    []routes.ObjectSummary `json:"objects"`
	Attributes map[string]float64     `json:"attributes"`
}

func TestStateRoute(t *testing.T) {
	s := newTestService(t, 10)

	var resp stateResponse
	decode(t, s.do(t, http.MethodGet, "/pipeline/state?frame=1", nil), &resp)
	assert.Equal(t, int32(10), resp.Time)
	assert.Equal(t, 1, resp.Frame)
	assert.False(t, resp.Preliminary)
	assert.Equal(t, "success", resp.Status.Type)
	if assert.NotNil(t, resp.Validity.Start) && assert.NotNil(t, resp.Validity.End) {
		assert.Equal(t, int32(10), *resp.Validity.Start)
		assert.Equal(t, int32(19), *resp.Validity.End)
	}
	assert.Equal(t, 8.0, resp.Attributes["ParticleCount"])
	assert.Equal(t, 0.0, resp.Attributes["Slice.DeletedCount"])
	assert.Contains(t, resp.Objects, routes.ObjectSummary{Kind: "particles", Count: 8})
	assert.True(t, s.pipeline.Cached(pipeline.NewRequest(10)))

	// the same time through the time parameter is served from the cache
	decode(t, s.do(t, http.MethodGet, "/pipeline/state?time=15", nil), &resp)
	assert.Equal(t, 1, resp.Frame)
	assert.Equal(t, 8.0, resp.Attributes["ParticleCount"])
}

func TestStateRoutePreliminary(t *testing.T) {
	s := newTestService(t, 10)

	var resp stateResponse
	decode(t, s.do(t, http.MethodGet, "/pipeline/state?frame=2&preliminary=true", nil), &resp)
	assert.True(t, resp.Preliminary)
	assert.Equal(t, 2, resp.Frame)
	assert.False(t, s.pipeline.Cached(pipeline.NewRequest(20)))
}

func TestStateRouteBadRequest(t *testing.T) {
	s := newTestService(t, 10)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/pipeline/state", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/pipeline/state?frame=x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/pipeline/state?frame=1&interactive=maybe", nil).Code)
}

func TestStatesRoute(t *testing.T) {
	s := newTestService(t, 10)

	var resp []stateResponse
	decode(t, s.do(t, http.MethodGet, "/pipeline/states?from=0&to=3", nil), &resp)
	require.Len(t, resp, 4)
	for i, state := range resp {
		assert.Equal(t, i, state.Frame)
		assert.Equal(t, float64(i), state.Attributes["SourceFrame"])
	}
	assert.Equal(t, 4, s.pipeline.CacheSize())

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/pipeline/states?from=3&to=0", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/pipeline/states?from=0", nil).Code)
}

func TestStagesRoutes(t *testing.T) {
	s := newTestService(t, 10)

	var stages []routes.StageResponse
	decode(t, s.do(t, http.MethodGet, "/pipeline/stages", nil), &stages)
	require.Len(t, stages, 4)
	assert.Equal(t, "Affine transformation", stages[0].Title)
	assert.Equal(t, "Replay cache", stages[3].Title)
	for _, stage := range stages {
		assert.True(t, stage.Enabled)
	}

	// removing the particle counter drops the attribute
	var stage routes.StageResponse
	decode(t, s.do(t, http.MethodPut, "/pipeline/stages/2/enabled?value=false", nil), &stage)
	assert.False(t, stage.Enabled)
	assert.Equal(t, "Particle count", stage.Title)

	var resp stateResponse
	decode(t, s.do(t, http.MethodGet, "/pipeline/state?frame=0", nil), &resp)
	_, ok := resp.Attributes["ParticleCount"]
	assert.False(t, ok)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPut, "/pipeline/stages/9/enabled?value=true", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/pipeline/stages/1/enabled?value=maybe", nil).Code)
}

func TestInvalidateRoute(t *testing.T) {
	s := newTestService(t, 10)

	var resp stateResponse
	decode(t, s.do(t, http.MethodGet, "/pipeline/state?frame=0", nil), &resp)
	assert.Equal(t, 1, s.pipeline.CacheSize())

	w := s.do(t, http.MethodPut, "/pipeline/invalidate?reset_sync=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, s.pipeline.CacheSize())
	assert.False(t, s.pipeline.Cached(pipeline.NewRequest(0)))
}

func TestPrecomputeRoutes(t *testing.T) {
	s := newTestService(t, 10)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/pipeline/precompute", precompute.FrameRequest{Frame: 1}).Code)
	// duplicates are dropped by the queue
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/pipeline/precompute", precompute.FrameRequest{Frame: 1}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/pipeline/precompute", precompute.FrameRequest{Frame: testFrames}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/pipeline/precompute", precompute.FrameRequest{Frame: -1}).Code)

	bulk := []precompute.FrameRequest{{Frame: 2}, {Frame: 3, ContinueOnError: true}}
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/pipeline/precompute/bulk", bulk).Code)

	var jobs routes.JobsResponse
	decode(t, s.do(t, http.MethodGet, "/pipeline/jobs", nil), &jobs)
	assert.Equal(t, []precompute.FrameRequest{{Frame: 1}, {Frame: 2}, {Frame: 3, ContinueOnError: true}}, jobs.Queued)
	assert.Empty(t, jobs.Jobs)

	var status routes.StatusResponse
	decode(t, s.do(t, http.MethodGet, "/pipeline/status", nil), &status)
	assert.Equal(t, routes.StatusResponse{Count: 3}, status)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/pipeline/force-dispatch", nil).Code)
	assert.Eventually(t, func() bool { return s.runner.InFlight() == 0 && s.pipeline.Cached(pipeline.NewRequest(10)) }, time.Second, time.Millisecond)
	assert.Equal(t, 2, s.queue.Size())

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/pipeline/clear", nil).Code)
	assert.Equal(t, 0, s.queue.Size())

	decode(t, s.do(t, http.MethodGet, "/pipeline/jobs", nil), &jobs)
	assert.Empty(t, jobs.Queued)
	if assert.Len(t, jobs.Jobs, 1) {
		assert.Equal(t, 1, jobs.Jobs[0].Frame)
		assert.Equal(t, precompute.JobSuccess, jobs.Jobs[0].State)
	}
}

func TestPrecomputeAllRoute(t *testing.T) {
	s := newTestService(t, 10)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/pipeline/start", nil).Code)
	assert.True(t, s.runner.Running())

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/pipeline/precompute/all", nil).Code)
	assert.Eventually(t, func() bool {
		return s.queue.Size() == 0 && s.runner.InFlight() == 0 && s.pipeline.CacheSize() == testFrames
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/pipeline/stop", nil).Code)
	assert.Eventually(t, func() bool { return !s.runner.Running() }, 2*time.Second, time.Millisecond)

	var status routes.StatusResponse
	decode(t, s.do(t, http.MethodGet, "/pipeline/status", nil), &status)
	assert.False(t, status.IsRunning)
	assert.Equal(t, testFrames, status.Cached)
}

func TestPrecomputeQueueFull(t *testing.T) {
	s := newTestService(t, 2)

	bulk := []precompute.FrameRequest{{Frame: 0}, {Frame: 1}, {Frame: 2}}
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodPut, "/pipeline/precompute/bulk", bulk).Code)
	assert.Equal(t, 2, s.queue.Size())
}
