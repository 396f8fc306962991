package routes

import (
	"net/http"

	"github.com/pkg/errors"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

// maxFrameRange bounds the number of frames a single range request may evaluate.
const maxFrameRange = 1000

// StatesRequest evaluates the pipeline for the inclusive frame range `from`..`to`.
func StatesRequest(cfg *config.Config, p *pipeline.Pipeline, clock anim.Clock) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		from, okFrom, err := intParam(r, "from")
		if err != nil {
			handleErrorType(w, err, http.StatusBadRequest, cfg.Logger)
			return
		}
		to, okTo, err := intParam(r, "to")
		if err != nil {
			handleErrorType(w, err, http.StatusBadRequest, cfg.Logger)
			return
		}
		if !okFrom || !okTo {
			handleErrorType(w, errors.New("from and to parameters required"), http.StatusBadRequest, cfg.Logger)
			return
		}
		if to < from || to-from >= maxFrameRange {
			handleErrorType(w, errors.Errorf("invalid frame range %d..%d", from, to), http.StatusBadRequest, cfg.Logger)
			return
		}
		opts, err := requestOptions(r)
		if err != nil {
			handleErrorType(w, err, http.StatusBadRequest, cfg.Logger)
			return
		}

		times := make([]anim.TimePoint, 0, to-from+1)
		for f := from; f <= to; f++ {
			times = append(times, clock.FrameToTime(f))
		}
		states, err := p.EvaluateMultiple(r.Context(), pipeline.NewRequest(0, opts), times, cfg.Environment.Parallelism)
		if err != nil {
			handleErrorType(w, err, http.StatusInternalServerError, cfg.Logger)
			return
		}

		resp := make([]StateResponse, len(states))
		for i, state := range states {
			resp[i] = newStateResponse(clock, times[i], state, false)
		}
		defer func() {
			for i := range states {
				states[i].Reset()
			}
		}()
		if err := handleJSON(w, resp); err != nil {
			handleErrorType(w, errors.New("failed to generate response"), http.StatusInternalServerError, cfg.Logger)
		}
	}
}
