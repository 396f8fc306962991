package pipeline

import (
	"context"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
)

// Node is a stage of a pipeline that produces a flow state on request.  Sources are
// nodes without an input; modifier applications wrap an upstream node.
type Node interface {
	// Title is a human-readable name of the stage.
	Title() string
	// Evaluate computes the output of the stage.  The returned error is reserved for
	// cancellation; evaluation failures are reported through the state's status.
	Evaluate(ctx context.Context, req Request) (flow.State, error)
	// EvaluateSynchronous returns a preliminary result immediately, without waiting on
	// I/O or expensive computations.
	EvaluateSynchronous(req Request) flow.State
	// ValidityInterval returns the interval over which the output for req stays valid.
	ValidityInterval(req Request) anim.TimeInterval
}

// Modifier transforms the flow state produced by the upstream part of a pipeline.
// Modifiers are strategies: they keep their per-pipeline data in the ModifierApplication
// they are called with.
type Modifier interface {
	Title() string
	// Evaluate modifies state in place and returns the modifier's own status.  A returned
	// error aborts the modifier and is turned into an Error status by the caller.
	Evaluate(ctx context.Context, req Request, app *ModifierApplication, state *flow.State) (flow.Status, error)
}

// SynchronousModifier is implemented by modifiers that can compute a preliminary result
// without blocking.
type SynchronousModifier interface {
	EvaluateSynchronous(req Request, app *ModifierApplication, state *flow.State) flow.Status
}

// ValidityRestrictor is implemented by modifiers whose output depends on the animation
// time.
type ValidityRestrictor interface {
	ValidityInterval(req Request, app *ModifierApplication) anim.TimeInterval
}
