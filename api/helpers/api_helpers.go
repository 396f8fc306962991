package helpers

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/vova616/xxhash"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/precompute"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/queue"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

// ErrQueueFull is returned when a request could not be added for lack of room.
var ErrQueueFull = errors.New("request queue full")

// CheckEnqueueParams checks if a precompute request addresses a valid frame.
func CheckEnqueueParams(request precompute.FrameRequest, frameCount int) error {
	if request.Frame < 0 {
		return errors.Errorf("frame %d is negative", request.Frame)
	}
	if frameCount >= 0 && request.Frame >= frameCount {
		return errors.Errorf("frame %d is out of range, trajectory has %d frames", request.Frame, frameCount)
	}
	return nil
}

// RequestKey hashes a request so that identical requests can be detected.
func RequestKey(request precompute.FrameRequest) (int32, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return 0, errors.Wrap(err, "failed to marshal request")
	}
	return int32(xxhash.Checksum32(body)), nil
}

// AddToQueue takes a given precompute request and adds it to the queue.
func AddToQueue(request precompute.FrameRequest, cfg config.Config, requestQueue queue.JobQueue) (bool, error) {
	key, err := RequestKey(request)
	if err != nil {
		return false, err
	}

	// Relevant info to run the request downstream
	keyed := precompute.KeyedFrameRequest{
		FrameRequest: request,
		RequestKey:   key,
		EnqueuedAt:   time.Now(),
	}

	// Enqueue the request if there's room, otherwise let the caller know that the service
	// is unavailable.
	var result bool
	if config.UseQueueIdempotency(cfg.Environment.IdempotencyChecks) {
		result, err = requestQueue.EnqueueKeyed(int(keyed.RequestKey), keyed)
	} else {
		result, err = requestQueue.Enqueue(keyed)
	}
	if err != nil {
		return false, err
	}
	if !result {
		return false, ErrQueueFull
	}
	return true, nil
}
