package routes

import (
	"net/http"

	"github.com/pkg/errors"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/queue"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

// ClearRequest drops all waiting precompute requests.  Dispatched jobs are not affected.
func ClearRequest(cfg *config.Config, requestQueue queue.JobQueue) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := requestQueue.Clear(); err != nil {
			handleErrorType(w, errors.Wrap(err, "failed to clear queue"), http.StatusInternalServerError, cfg.Logger)
		}
	}
}
