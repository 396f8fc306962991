package pipeline

import (
	"context"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
)

// ReplayCache is a modifier that remembers the last concrete result flowing through it and
// hands it out again whenever the upstream pipeline can only deliver a Pending state.
//
// When the input status is not Pending the input is snapshotted into the application's
// cache slot and passed on unchanged.  When the input is Pending its payload is discarded
// and replaced by the snapshot; the output keeps the Pending status and the validity
// interval of the input so that consumers know they are looking at a replay.  Before the
// first snapshot a replay yields a state without data.
//
// The snapshot is a single slot, independent of the animation time.
type ReplayCache struct{}

// NewReplayCache creates the modifier.
func NewReplayCache() *ReplayCache {
	return &ReplayCache{}
}

// Title implements Modifier.
func (m *ReplayCache) Title() string {
	return "Replay cache"
}

// Evaluate implements Modifier.
func (m *ReplayCache) Evaluate(_ context.Context, req Request, app *ModifierApplication, state *flow.State) (flow.Status, error) {
	return m.EvaluateSynchronous(req, app, state), nil
}

// EvaluateSynchronous implements SynchronousModifier.
func (m *ReplayCache) EvaluateSynchronous(_ Request, app *ModifierApplication, state *flow.State) flow.Status {
	slot := app.Slot()

	if !state.Status().IsPending() {
		slot.state.Assign(*state)
		// Detach the snapshot from the live pipeline data.
		slot.state.CloneObjectsIfNeeded(false)
		return flow.Status{}
	}

	validity := state.Validity()
	state.Assign(slot.state)
	state.SetStatus(flow.PendingStatus())
	state.SetValidity(validity)
	return flow.Status{}
}
