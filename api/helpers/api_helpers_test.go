package helpers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/precompute"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/queue"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

func testConfig(idempotency string) config.Config {
	return config.Config{Environment: &config.Environment{IdempotencyChecks: idempotency}}
}

func TestCheckEnqueueParams(t *testing.T) {
	assert.NoError(t, CheckEnqueueParams(precompute.FrameRequest{Frame: 0}, 3))
	assert.NoError(t, CheckEnqueueParams(precompute.FrameRequest{Frame: 2}, 3))
	assert.Error(t, CheckEnqueueParams(precompute.FrameRequest{Frame: 3}, 3))
	assert.Error(t, CheckEnqueueParams(precompute.FrameRequest{Frame: -1}, 3))
	// unknown frame count
	assert.NoError(t, CheckEnqueueParams(precompute.FrameRequest{Frame: 30}, -1))
}

func TestRequestKey(t *testing.T) {
	a, err := RequestKey(precompute.FrameRequest{Frame: 1})
	assert.NoError(t, err)
	b, err := RequestKey(precompute.FrameRequest{Frame: 1})
	assert.NoError(t, err)
	c, err := RequestKey(precompute.FrameRequest{Frame: 1, ContinueOnError: true})
	assert.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestAddToQueueIdempotent(t *testing.T) {
	requestQueue := queue.NewListQueue(2)
	cfg := testConfig(config.IdempotencyQueue)

	result, err := AddToQueue(precompute.FrameRequest{Frame: 1}, cfg, requestQueue)
	assert.NoError(t, err)
	assert.True(t, result)
	result, err = AddToQueue(precompute.FrameRequest{Frame: 1}, cfg, requestQueue)
	assert.NoError(t, err)
	assert.True(t, result)
	assert.Equal(t, 1, requestQueue.Size())

	contents, err := requestQueue.Contents()
	assert.NoError(t, err)
	keyed := contents[0].(precompute.KeyedFrameRequest)
	assert.Equal(t, 1, keyed.Frame)
	assert.False(t, keyed.EnqueuedAt.IsZero())
}

func TestAddToQueueFull(t *testing.T) {
	requestQueue := queue.NewListQueue(1)
	cfg := testConfig(config.IdempotencyNone)

	_, err := AddToQueue(precompute.FrameRequest{Frame: 1}, cfg, requestQueue)
	assert.NoError(t, err)
	result, err := AddToQueue(precompute.FrameRequest{Frame: 1}, cfg, requestQueue)
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.False(t, result)
}
