package source

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/machinebox/graphql"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
)

const frameCountQuery = `query {
	frameCount
}`

const frameQuery = `query($index: Int!) {
	frame(index: $index) {
		identifiers
		types
		positions
	}
}`

type frameCountResponse struct {
	FrameCount int `json:"frameCount"`
}

type frameResponse struct {
	Frame struct {
		Identifiers []int64      `json:"identifiers"`
		Types       []int32      `json:"types"`
		Positions   [][3]float64 `json:"positions"`
	} `json:"frame"`
}

// GraphQLSource is a pipeline source that loads trajectory frames from a GraphQL frame
// server.  Loaded frames are kept in memory until the source is invalidated.
type GraphQLSource struct {
	client *graphql.Client
	clock  anim.Clock
	logger *zap.SugaredLogger

	flights singleflight.Group

	mutex      *sync.RWMutex
	generation int
	frameCount int
	frames     map[int]flow.State
	lastFrame  int
}

// NewGraphQLSource creates a source reading from the frame server at addr.
func NewGraphQLSource(addr string, timeout time.Duration, clock anim.Clock, logger *zap.SugaredLogger) *GraphQLSource {
	// standard http client with our timeout
	httpClient := &http.Client{Timeout: timeout}

	return &GraphQLSource{
		client:     graphql.NewClient(addr, graphql.WithHTTPClient(httpClient)),
		clock:      clock,
		logger:     logger,
		mutex:      &sync.RWMutex{},
		frameCount: -1,
		frames:     make(map[int]flow.State),
		lastFrame:  -1,
	}
}

// Title implements pipeline.Node.
func (s *GraphQLSource) Title() string {
	return "Remote trajectory"
}

// FrameCount returns the number of frames reported by the server, fetching it if needed.
func (s *GraphQLSource) FrameCount(ctx context.Context) (int, error) {
	s.mutex.RLock()
	count := s.frameCount
	s.mutex.RUnlock()
	if count >= 0 {
		return count, nil
	}

	var resp frameCountResponse
	if err := s.client.Run(ctx, graphql.NewRequest(frameCountQuery), &resp); err != nil {
		return 0, errors.Wrap(err, "failed to fetch frame count")
	}

	s.mutex.Lock()
	s.frameCount = resp.FrameCount
	s.mutex.Unlock()
	return resp.FrameCount, nil
}

// Evaluate implements pipeline.Node.  Failures to reach the server yield an error state.
// Interactive requests never wait for a frame to load: the frame is fetched in the
// background and the last loaded frame stands in with Pending status.
func (s *GraphQLSource) Evaluate(ctx context.Context, req pipeline.Request) (flow.State, error) {
	count, err := s.FrameCount(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return flow.State{}, ctx.Err()
		}
		return s.errorState(req, err), nil
	}
	if count == 0 {
		return flow.NewState(nil, flow.Status{}, anim.Infinite()), nil
	}

	frame := clampFrame(s.clock, req.Time(), count)
	validity := frameValidity(s.clock, frame, count)

	if data, ok := s.loaded(frame); ok {
		return flow.NewState(data, flow.Status{}, validity), nil
	}

	key := fmt.Sprint(frame)
	if req.Interactive() {
		go s.prefetch(key, frame)
		return s.EvaluateSynchronous(req), nil
	}

	for {
		_, err, shared := s.flights.Do(key, s.fetch(ctx, frame))
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return flow.State{}, ctx.Err()
		}
		// Another caller started the load and gave up on it.
		if shared && canceled(err) {
			s.flights.Forget(key)
			continue
		}
		return s.errorState(req, err), nil
	}

	data, ok := s.loaded(frame)
	if !ok {
		return s.errorState(req, errors.Errorf("frame %d was dropped while loading", frame)), nil
	}
	return flow.NewState(data, flow.Status{}, validity), nil
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (s *GraphQLSource) fetch(ctx context.Context, frame int) func() (interface{}, error) {
	return func() (interface{}, error) {
		// a flight for this frame may have completed in the meantime
		if s.has(frame) {
			return nil, nil
		}
		return nil, s.fetchFrame(ctx, frame)
	}
}

// prefetch loads a frame nobody waits for.  The HTTP client timeout bounds it.
func (s *GraphQLSource) prefetch(key string, frame int) {
	if _, err, _ := s.flights.Do(key, s.fetch(context.Background(), frame)); err != nil {
		s.logger.Warnw("background frame load failed", "frame", frame, "error", err)
	}
}

func (s *GraphQLSource) fetchFrame(ctx context.Context, frame int) error {
	s.mutex.RLock()
	generation := s.generation
	s.mutex.RUnlock()

	query := graphql.NewRequest(frameQuery)
	query.Var("index", frame)

	var resp frameResponse
	if err := s.client.Run(ctx, query, &resp); err != nil {
		return errors.Wrapf(err, "failed to fetch frame %d", frame)
	}

	particles := &flow.Particles{
		Identifiers: resp.Frame.Identifiers,
		Types:       resp.Frame.Types,
		Positions:   make([]flow.Point3, len(resp.Frame.Positions)),
	}
	for i, p := range resp.Frame.Positions {
		particles.Positions[i] = flow.Point3(p)
	}
	attrs := &flow.Attributes{Values: map[string]float64{"SourceFrame": float64(frame)}}
	s.logger.Debugw("loaded frame", "frame", frame, "particles", particles.Count())

	s.mutex.Lock()
	defer s.mutex.Unlock()
	// frames requested before an invalidation are stale
	if s.generation != generation {
		return nil
	}
	if old, ok := s.frames[frame]; ok {
		old.Reset()
	}
	s.frames[frame] = flow.NewState(flow.NewCollection(particles, attrs), flow.Status{}, anim.Infinite())
	s.lastFrame = frame
	return nil
}

// loaded returns a retained reference on a frame that is already in memory.
func (s *GraphQLSource) loaded(frame int) (*flow.Collection, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	stored, ok := s.frames[frame]
	if !ok {
		return nil, false
	}
	shared := stored.Share()
	return shared.Data(), true
}

func (s *GraphQLSource) has(frame int) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.frames[frame]
	return ok
}

func (s *GraphQLSource) errorState(req pipeline.Request, err error) flow.State {
	s.logger.Warnw("remote trajectory unavailable", "time", req.Time(), "error", err)
	return flow.NewState(nil, flow.ErrorStatus(err.Error()), anim.Instant(req.Time()))
}

// EvaluateSynchronous implements pipeline.Node.  If the requested frame has not been
// loaded yet, the most recently loaded frame is returned with Pending status.
func (s *GraphQLSource) EvaluateSynchronous(req pipeline.Request) flow.State {
	s.mutex.RLock()
	count := s.frameCount
	last := s.lastFrame
	s.mutex.RUnlock()

	if count > 0 {
		frame := clampFrame(s.clock, req.Time(), count)
		if data, ok := s.loaded(frame); ok {
			return flow.NewState(data, flow.Status{}, frameValidity(s.clock, frame, count))
		}
	}
	if last >= 0 {
		if data, ok := s.loaded(last); ok {
			return flow.NewState(data, flow.PendingStatus(), anim.Instant(req.Time()))
		}
	}
	return flow.NewState(nil, flow.PendingStatus(), anim.Instant(req.Time()))
}

// ValidityInterval implements pipeline.Node.
func (s *GraphQLSource) ValidityInterval(req pipeline.Request) anim.TimeInterval {
	s.mutex.RLock()
	count := s.frameCount
	s.mutex.RUnlock()
	if count <= 0 {
		return anim.Instant(req.Time())
	}
	return frameValidity(s.clock, clampFrame(s.clock, req.Time(), count), count)
}

// Invalidate implements pipeline.Invalidator.  Frames are only dropped when nothing is
// kept.
func (s *GraphQLSource) Invalidate(keep anim.TimeInterval, _ bool) {
	if !keep.IsEmpty() {
		return
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, stored := range s.frames {
		stored.Reset()
	}
	s.generation++
	s.frameCount = -1
	s.frames = make(map[int]flow.State)
	s.lastFrame = -1
}
