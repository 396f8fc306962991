package routes

import (
	"net/http"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/precompute"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

// StopRequest stops the precompute runner.  Requests can still be enqueued, but the queue will not be serviced.
func StopRequest(cfg *config.Config, runner *precompute.Runner) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		runner.Stop()
	}
}
