package routes

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/pkg/errors"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/flow"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

// StageResponse describes one modifier application of the pipeline.
type StageResponse struct {
	Index   int         `json:"index"`
	Title   string      `json:"title"`
	Enabled bool        `json:"enabled"`
	Status  flow.Status `json:"status"`
}

func newStageResponse(index int, app *pipeline.ModifierApplication) StageResponse {
	return StageResponse{
		Index:   index,
		Title:   app.Title(),
		Enabled: app.Enabled(),
		Status:  app.Status(),
	}
}

// StagesRequest lists the pipeline stages from the source up.
func StagesRequest(cfg *config.Config, p *pipeline.Pipeline) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		apps := p.Applications()
		stages := make([]StageResponse, len(apps))
		for i, app := range apps {
			stages[i] = newStageResponse(i, app)
		}
		if err := handleJSON(w, stages); err != nil {
			handleErrorType(w, errors.New("failed to generate response"), http.StatusInternalServerError, cfg.Logger)
		}
	}
}

// SetStageEnabledRequest turns a pipeline stage on or off according to the `value`
// parameter.
func SetStageEnabledRequest(cfg *config.Config, p *pipeline.Pipeline) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			handleErrorType(w, errors.Wrap(err, "invalid stage index"), http.StatusBadRequest, cfg.Logger)
			return
		}
		enabled, err := strconv.ParseBool(r.URL.Query().Get("value"))
		if err != nil {
			handleErrorType(w, errors.Wrap(err, "invalid value parameter"), http.StatusBadRequest, cfg.Logger)
			return
		}
		if err := p.SetStageEnabled(index, enabled); err != nil {
			handleErrorType(w, err, http.StatusNotFound, cfg.Logger)
			return
		}
		cfg.Logger.Infow("pipeline stage changed", "index", index, "enabled", enabled)

		if err := handleJSON(w, newStageResponse(index, p.Applications()[index])); err != nil {
			handleErrorType(w, errors.New("failed to generate response"), http.StatusInternalServerError, cfg.Logger)
		}
	}
}

// InvalidateRequest discards all cached pipeline results.  With `reset_sync=true` the
// replay snapshots are dropped as well.
func InvalidateRequest(cfg *config.Config, p *pipeline.Pipeline) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		resetSync, err := boolParam(r, "reset_sync")
		if err != nil {
			handleErrorType(w, err, http.StatusBadRequest, cfg.Logger)
			return
		}
		p.Invalidate(anim.Empty(), resetSync)
		cfg.Logger.Infow("pipeline invalidated", "reset_sync", resetSync)
	}
}
