package precompute

import (
	"time"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
)

// FrameRequest asks for the pipeline output of one animation frame to be computed ahead
// of time, so that later requests for it are answered from the cache.
type FrameRequest struct {
	Frame           int  `json:"frame"`
	ContinueOnError bool `json:"continue_on_error,omitempty"`
}

// Options returns the evaluation flags the request asks for.  Precomputation never runs
// interactively, since an interactive evaluation may settle for a Pending result.
func (r FrameRequest) Options() pipeline.Options {
	var opts pipeline.Options
	if r.ContinueOnError {
		opts |= pipeline.OptionContinueOnError
	}
	return opts
}

// KeyedFrameRequest adds an internally generated hash key to support checks for
// duplicate requests.
type KeyedFrameRequest struct {
	FrameRequest
	RequestKey int32
	EnqueuedAt time.Time
}

// Job states.
const (
	JobRunning = "Running"
	JobSuccess = "Success"
	JobFailed  = "Failed"
	JobCached  = "Cached"
)

// JobData keeps track of a dispatched precompute job.
type JobData struct {
	Frame     int                `json:"frame"`
	Time      anim.TimePoint     `json:"time"`
	State     string             `json:"state"`
	Status    *flow.Status       `json:"status,omitempty"`
	Validity  *anim.TimeInterval `json:"validity,omitempty"`
	Error     string             `json:"error,omitempty"`
	StartTime time.Time          `json:"start_time"`
	EndTime   *time.Time         `json:"end_time,omitempty"`
}
