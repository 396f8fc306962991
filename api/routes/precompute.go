package routes

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/helpers"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/precompute"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/queue"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

// frameCount returns the trajectory length of the pipeline source, or -1 if the source
// cannot tell.
func frameCount(r *http.Request, p *pipeline.Pipeline) (int, error) {
	counter, ok := p.Source().(FrameCounter)
	if !ok {
		return -1, nil
	}
	return counter.FrameCount(r.Context())
}

func enqueueStatusCode(err error) int {
	if errors.Is(err, helpers.ErrQueueFull) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// EnqueueRequest adds a precompute request to the queue if there is space, or returns an
// error if the queue is currently at maximum capacity.
func EnqueueRequest(cfg *config.Config, p *pipeline.Pipeline, requestQueue queue.JobQueue) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var request precompute.FrameRequest

		// Decode and respond with a 400 on failure
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			handleErrorType(w, errors.Wrap(err, "failed to unmarshal enqueue request body"), http.StatusBadRequest, cfg.Logger)
			return
		}

		count, err := frameCount(r, p)
		if err != nil {
			handleErrorType(w, err, http.StatusBadGateway, cfg.Logger)
			return
		}
		if err := helpers.CheckEnqueueParams(request, count); err != nil {
			handleErrorType(w, err, http.StatusBadRequest, cfg.Logger)
			return
		}

		if _, err := helpers.AddToQueue(request, *cfg, requestQueue); err != nil {
			handleErrorType(w, err, enqueueStatusCode(err), cfg.Logger)
			return
		}
	}
}

// BulkEnqueueRequest adds a list of precompute requests to the queue.  Requests are added
// until the queue reaches capacity.
func BulkEnqueueRequest(cfg *config.Config, p *pipeline.Pipeline, requestQueue queue.JobQueue) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		// Read the body into a byte array
		body, err := io.ReadAll(r.Body)
		defer r.Body.Close()
		if err != nil {
			handleErrorType(w, errors.Wrap(err, "failed to read bulk enqueue request body"), http.StatusBadRequest, cfg.Logger)
			return
		}

		var requests []precompute.FrameRequest
		if err := json.Unmarshal(body, &requests); err != nil {
			handleErrorType(w, errors.Wrap(err, "failed to unmarshal bulk enqueue request body"), http.StatusBadRequest, cfg.Logger)
			return
		}

		count, err := frameCount(r, p)
		if err != nil {
			handleErrorType(w, err, http.StatusBadGateway, cfg.Logger)
			return
		}
		for _, request := range requests {
			if err := helpers.CheckEnqueueParams(request, count); err != nil {
				handleErrorType(w, err, http.StatusBadRequest, cfg.Logger)
				return
			}
		}

		for _, request := range requests {
			if _, err := helpers.AddToQueue(request, *cfg, requestQueue); err != nil {
				handleErrorType(w, err, enqueueStatusCode(err), cfg.Logger)
				return
			}
		}
	}
}

// EnqueueAllRequest queues every frame of the trajectory for precomputation.
func EnqueueAllRequest(cfg *config.Config, p *pipeline.Pipeline, requestQueue queue.JobQueue) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		continueOnError, err := boolParam(r, "continue_on_error")
		if err != nil {
			handleErrorType(w, err, http.StatusBadRequest, cfg.Logger)
			return
		}
		count, err := frameCount(r, p)
		if err != nil {
			handleErrorType(w, err, http.StatusBadGateway, cfg.Logger)
			return
		}
		if count < 0 {
			handleErrorType(w, errors.New("source does not report a frame count"), http.StatusBadRequest, cfg.Logger)
			return
		}

		for frame := 0; frame < count; frame++ {
			request := precompute.FrameRequest{
				Frame:           frame,
				ContinueOnError: continueOnError,
			}
			if _, err := helpers.AddToQueue(request, *cfg, requestQueue); err != nil {
				handleErrorType(w, err, enqueueStatusCode(err), cfg.Logger)
				return
			}
		}
		cfg.Logger.Infow("queued trajectory for precomputation", "frames", count)
	}
}

// JobsResponse lists the waiting requests and the dispatched jobs.
type JobsResponse struct {
	Queued []precompute.FrameRequest `json:"queued"`
	Jobs   []precompute.JobData      `json:"jobs"`
}

// JobsRequest returns the contents of the queue and the recent jobs.
func JobsRequest(cfg *config.Config, requestQueue queue.JobQueue, runner *precompute.Runner) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		queueContents, err := requestQueue.Contents()
		if err != nil {
			handleErrorType(w, err, http.StatusInternalServerError, cfg.Logger)
			return
		}
		resp := JobsResponse{
			Queued: make([]precompute.FrameRequest, len(queueContents)),
			Jobs:   runner.Jobs(),
		}
		for i, item := range queueContents {
			request, ok := item.(precompute.KeyedFrameRequest)
			if !ok {
				handleErrorType(w, errors.New("failed to generate response, unexpected datatype found"), http.StatusInternalServerError, cfg.Logger)
				return
			}
			resp.Queued[i] = request.FrameRequest
		}
		if err := handleJSON(w, resp); err != nil {
			handleErrorType(w, errors.New("failed to generate response"), http.StatusInternalServerError, cfg.Logger)
		}
	}
}

// StatusResponse provides the number of items currently queued, whether or not the
// runner routine has been stopped, and the state of the pipeline caches.
type StatusResponse struct {
	Count      int  `json:"count"`
	IsRunning  bool `json:"is_running"`
	Running    int  `json:"running"`
	Evaluating int  `json:"evaluating"`
	Cached     int  `json:"cached"`
}

// StatusRequest creates a get request handler that will return status info for the
// queue, the precompute runner and the pipeline.
func StatusRequest(cfg *config.Config, p *pipeline.Pipeline, requestQueue queue.JobQueue, runner *precompute.Runner) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			Count:      requestQueue.Size(),
			IsRunning:  runner.Running(),
			Running:    runner.InFlight(),
			Evaluating: p.InFlight(),
			Cached:     p.CacheSize(),
		}
		if err := handleJSON(w, resp); err != nil {
			handleErrorType(w, errors.New("failed to generate response"), http.StatusInternalServerError, cfg.Logger)
		}
	}
}
