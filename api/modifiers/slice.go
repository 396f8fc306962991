package modifiers

import (
	"context"
	"fmt"
	"math"

	"github.com/pkg/errors"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
)

// Slice deletes the particles on the positive side of a plane given by its normal and
// its distance from the origin.  With Invert the other side is deleted.
type Slice struct {
	Normal   flow.Point3
	Distance float64
	Invert   bool
}

// Title implements pipeline.Modifier.
func (m *Slice) Title() string {
	return "Slice"
}

// Evaluate implements pipeline.Modifier.
func (m *Slice) Evaluate(ctx context.Context, req pipeline.Request, app *pipeline.ModifierApplication, state *flow.State) (flow.Status, error) {
	length := math.Sqrt(m.Normal[0]*m.Normal[0] + m.Normal[1]*m.Normal[1] + m.Normal[2]*m.Normal[2])
	if length == 0 {
		return flow.Status{}, errors.New("plane normal is a null vector")
	}
	if _, ok := state.Data().Find(flow.KindParticles); !ok {
		return flow.WarningStatus("No particles to slice."), nil
	}

	obj, _ := state.MakeMutable(flow.KindParticles)
	particles := obj.(*flow.Particles)
	before := particles.Count()
	particles.Filter(func(i int) bool {
		p := particles.Positions[i]
		d := (p[0]*m.Normal[0]+p[1]*m.Normal[1]+p[2]*m.Normal[2])/length - m.Distance
		return (d > 0) == m.Invert
	})
	state.SetAttribute("Slice.DeletedCount", float64(before-particles.Count()))

	if particles.Count() == 0 {
		return flow.WarningStatus(fmt.Sprintf("All %d particles were deleted.", before)), nil
	}
	return flow.Status{}, nil
}
