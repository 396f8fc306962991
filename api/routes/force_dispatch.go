package routes

import (
	"net/http"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/precompute"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

// ForceDispatchRequest dispatches the next queued request regardless of the number of
// running jobs or whether or not the runner is running.
func ForceDispatchRequest(cfg *config.Config, runner *precompute.Runner) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		runner.Submit(true)
	}
}
