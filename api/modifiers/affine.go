package modifiers

import (
	"context"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
)

// AffineTransformation scales particle positions uniformly about the origin and then
// translates them.
type AffineTransformation struct {
	Translation flow.Point3
	Scale       float64
}

// Title implements pipeline.Modifier.
func (m *AffineTransformation) Title() string {
	return "Affine transformation"
}

// Evaluate implements pipeline.Modifier.
func (m *AffineTransformation) Evaluate(_ context.Context, req pipeline.Request, app *pipeline.ModifierApplication, state *flow.State) (flow.Status, error) {
	return m.EvaluateSynchronous(req, app, state), nil
}

// EvaluateSynchronous implements pipeline.SynchronousModifier.
func (m *AffineTransformation) EvaluateSynchronous(_ pipeline.Request, _ *pipeline.ModifierApplication, state *flow.State) flow.Status {
	obj, ok := state.MakeMutable(flow.KindParticles)
	if !ok {
		return flow.WarningStatus("No particles to transform.")
	}
	particles := obj.(*flow.Particles)
	scale := m.Scale
	if scale == 0 {
		scale = 1
	}
	for i, p := range particles.Positions {
		for k := 0; k < 3; k++ {
			p[k] = p[k]*scale + m.Translation[k]
		}
		particles.Positions[i] = p
	}
	return flow.Status{}
}
