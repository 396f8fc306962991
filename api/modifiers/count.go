package modifiers

import (
	"context"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
)

// ParticleCount stores the number of particles, optionally restricted to one particle
// type, as a global attribute.
type ParticleCount struct {
	Attribute string
	Type      int32
}

// Title implements pipeline.Modifier.
func (m *ParticleCount) Title() string {
	return "Particle count"
}

// Evaluate implements pipeline.Modifier.
func (m *ParticleCount) Evaluate(_ context.Context, req pipeline.Request, app *pipeline.ModifierApplication, state *flow.State) (flow.Status, error) {
	return m.EvaluateSynchronous(req, app, state), nil
}

// EvaluateSynchronous implements pipeline.SynchronousModifier.
func (m *ParticleCount) EvaluateSynchronous(_ pipeline.Request, _ *pipeline.ModifierApplication, state *flow.State) flow.Status {
	name := m.Attribute
	if name == "" {
		name = "ParticleCount"
	}

	count := 0
	if obj, ok := state.Data().Find(flow.KindParticles); ok {
		particles := obj.(*flow.Particles)
		if m.Type == 0 {
			count = particles.Count()
		} else {
			for _, t := range particles.Types {
				if t == m.Type {
					count++
				}
			}
		}
	}
	state.SetAttribute(name, float64(count))
	return flow.Status{}
}
