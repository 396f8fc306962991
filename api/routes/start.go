package routes

import (
	"net/http"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/precompute"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

// StartRequest will start the precompute runner.  If its already running then the request does nothing.
func StartRequest(cfg *config.Config, runner *precompute.Runner) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		runner.Start()
	}
}
