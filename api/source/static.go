package source

import (
	"context"
	"math"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
)

// StaticSource is a pipeline source serving a trajectory held in memory.
type StaticSource struct {
	title  string
	clock  anim.Clock
	frames []*flow.Collection
}

// NewStaticSource creates a source that takes over the given frame collections.
func NewStaticSource(title string, clock anim.Clock, frames ...*flow.Collection) *StaticSource {
	return &StaticSource{
		title:  title,
		clock:  clock,
		frames: frames,
	}
}

// Title implements pipeline.Node.
func (s *StaticSource) Title() string {
	return s.title
}

// FrameCount returns the number of trajectory frames.
func (s *StaticSource) FrameCount(context.Context) (int, error) {
	return len(s.frames), nil
}

// Evaluate implements pipeline.Node.
func (s *StaticSource) Evaluate(ctx context.Context, req pipeline.Request) (flow.State, error) {
	if err := ctx.Err(); err != nil {
		return flow.State{}, err
	}
	return s.EvaluateSynchronous(req), nil
}

// EvaluateSynchronous implements pipeline.Node.
func (s *StaticSource) EvaluateSynchronous(req pipeline.Request) flow.State {
	if len(s.frames) == 0 {
		return flow.NewState(nil, flow.Status{}, anim.Infinite())
	}
	frame := clampFrame(s.clock, req.Time(), len(s.frames))
	return flow.NewState(s.frames[frame].Retain(), flow.Status{}, s.ValidityInterval(req))
}

// ValidityInterval implements pipeline.Node.
func (s *StaticSource) ValidityInterval(req pipeline.Request) anim.TimeInterval {
	if len(s.frames) == 0 {
		return anim.Infinite()
	}
	frame := clampFrame(s.clock, req.Time(), len(s.frames))
	return frameValidity(s.clock, frame, len(s.frames))
}

// NewLatticeTrajectory generates a trajectory of a simple cubic lattice of roughly the
// given number of particles oscillating around their sites.
func NewLatticeTrajectory(frameCount int, particleCount int) []*flow.Collection {
	side := int(math.Ceil(math.Cbrt(float64(particleCount))))
	if side < 1 {
		side = 1
	}
	frames := make([]*flow.Collection, frameCount)
	for f := 0; f < frameCount; f++ {
		particles := &flow.Particles{}
		for i := 0; i < particleCount; i++ {
			x, y, z := i%side, (i/side)%side, i/(side*side)
			phase := float64(f)*0.3 + float64(i)*0.7
			particles.Identifiers = append(particles.Identifiers, int64(i+1))
			particles.Types = append(particles.Types, int32(1+i%2))
			particles.Positions = append(particles.Positions, flow.Point3{
				float64(x) + 0.1*math.Sin(phase),
				float64(y) + 0.1*math.Cos(phase),
				float64(z),
			})
		}
		attrs := &flow.Attributes{Values: map[string]float64{"SourceFrame": float64(f)}}
		frames[f] = flow.NewCollection(particles, attrs)
	}
	return frames
}
