package routes

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

// FrameCounter is implemented by sources that know the length of their trajectory.
type FrameCounter interface {
	FrameCount(ctx context.Context) (int, error)
}

// ObjectSummary describes one data object of a pipeline output.
type ObjectSummary struct {
	Kind  string `json:"kind"`
	Count int    `json:"count,omitempty"`
}

// StateResponse summarizes a pipeline output at one animation time.
type StateResponse struct {
	Time        anim.TimePoint     `json:"time"`
	Frame       int                `json:"frame"`
	Preliminary bool               `json:"preliminary"`
	Status      flow.Status        `json:"status"`
	Validity    anim.TimeInterval  `json:"validity"`
	Objects     []ObjectSummary    `json:"objects"`
	Attributes  map[string]float64 `json:"attributes,omitempty"`
}

func newStateResponse(clock anim.Clock, t anim.TimePoint, state flow.State, preliminary bool) StateResponse {
	resp := StateResponse{
		Time:        t,
		Frame:       clock.TimeToFrame(t),
		Preliminary: preliminary,
		Status:      state.Status(),
		Validity:    state.Validity(),
		Objects:     []ObjectSummary{},
	}
	for _, obj := range state.Data().Objects() {
		summary := ObjectSummary{Kind: obj.Kind()}
		switch o := obj.(type) {
		case *flow.Particles:
			summary.Count = o.Count()
		case *flow.Attributes:
			summary.Count = len(o.Values)
			resp.Attributes = o.Values
		}
		resp.Objects = append(resp.Objects, summary)
	}
	return resp
}

func boolParam(r *http.Request, name string) (bool, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.Wrapf(err, "invalid %s parameter", name)
	}
	return b, nil
}

func intParam(r *http.Request, name string) (int, bool, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return 0, false, nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, errors.Wrapf(err, "invalid %s parameter", name)
	}
	return i, true, nil
}

// requestOptions reads the evaluation flags from the query string.
func requestOptions(r *http.Request) (pipeline.Options, error) {
	var opts pipeline.Options
	interactive, err := boolParam(r, "interactive")
	if err != nil {
		return 0, err
	}
	if interactive {
		opts |= pipeline.OptionInteractive
	}
	continueOnError, err := boolParam(r, "continue_on_error")
	if err != nil {
		return 0, err
	}
	if continueOnError {
		opts |= pipeline.OptionContinueOnError
	}
	return opts, nil
}

// parseRequest builds an evaluation request from either a `time` or a `frame` parameter.
func parseRequest(r *http.Request, clock anim.Clock) (pipeline.Request, error) {
	opts, err := requestOptions(r)
	if err != nil {
		return pipeline.Request{}, err
	}
	if t, ok, err := intParam(r, "time"); err != nil {
		return pipeline.Request{}, err
	} else if ok {
		return pipeline.NewRequest(anim.TimePoint(t), opts), nil
	}
	if frame, ok, err := intParam(r, "frame"); err != nil {
		return pipeline.Request{}, err
	} else if ok {
		return pipeline.NewRequest(clock.FrameToTime(frame), opts), nil
	}
	return pipeline.Request{}, errors.New("time or frame parameter missing")
}

// StateRequest evaluates the pipeline at the requested time.  With `preliminary=true`
// the answer is immediate and may be incomplete.
func StateRequest(cfg *config.Config, p *pipeline.Pipeline, clock anim.Clock) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := parseRequest(r, clock)
		if err != nil {
			handleErrorType(w, err, http.StatusBadRequest, cfg.Logger)
			return
		}
		preliminary, err := boolParam(r, "preliminary")
		if err != nil {
			handleErrorType(w, err, http.StatusBadRequest, cfg.Logger)
			return
		}

		var state flow.State
		if preliminary {
			state = p.EvaluatePreliminary(req)
		} else {
			future := p.EvaluatePipeline(req)
			defer future.Reset(req.Time())
			state, err = future.Wait(r.Context())
			if err != nil {
				handleErrorType(w, errors.Wrapf(err, "failed to evaluate pipeline at time %d", req.Time()), http.StatusInternalServerError, cfg.Logger)
				return
			}
		}
		defer state.Reset()

		if err := handleJSON(w, newStateResponse(clock, req.Time(), state, preliminary)); err != nil {
			handleErrorType(w, errors.New("failed to generate response"), http.StatusInternalServerError, cfg.Logger)
		}
	}
}
