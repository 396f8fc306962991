package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Environment contains the imported environment variables.
type Environment struct {
	// Debug vs Deploy
	Mode string `default:"dev"`
	// Port to listen on
	Addr string `default:":4040"`
	// Animation time ticks per frame
	TicksPerFrame int `default:"4800" split_words:"true"`
	// GraphQL frame server address.  The demo trajectory is served when empty.
	SourceAddr string `default:"" split_words:"true"`
	// Frame server request timeout
	SourceTimeoutSec int `default:"10" split_words:"true"`
	// YAML pipeline definition, the built-in pipeline is used when empty
	PipelineFile string `default:"" split_words:"true"`
	// Number of final pipeline results kept in memory
	PipelineCacheSize int `default:"64" split_words:"true"`
	// Precompute queue size
	QueueSize int `default:"1000" split_words:"true"`
	// Use persisted queue or default (memory only) queue.
	PersistedQueue bool `default:"false" split_words:"true"`
	// Directory to store the queue data in when persisted queue is used.
	QueueDir string `default:"./" split_words:"true"`
	// Name of queue when persisted queue is used.
	QueueName string `default:"precompute_queue" split_words:"true"`
	// Precompute runner polling interval
	PollIntervalSec int `default:"1" split_words:"true"`
	// Maximum number of precompute evaluations to run in parallel
	Parallelism int `default:"2"`
	// Enable idempotency checks on precompute requests
	IdempotencyChecks string `default:"all" split_words:"true"`
	// Size of the demo trajectory
	DemoFrames    int `default:"100" split_words:"true"`
	DemoParticles int `default:"1000" split_words:"true"`
}

const (
	// IdempotencyAll applies all idempotency checks
	IdempotencyAll = "all"
	// IdempotencyNone skips all idempotency checks
	IdempotencyNone = "none"
	// IdempotencyQueue ignores duplicate requests when enqueuing
	IdempotencyQueue = "queue"
	// IdempotencyCache skips requests for frames whose result is already cached
	IdempotencyCache = "cache"
)

func (e Environment) String() string {
	settings, err := json.MarshalIndent(e, "", "    ")
	if err != nil {
		return fmt.Errorf("Failed to marshal env: %v", err).Error()
	}
	return fmt.Sprintf("Environment Settings:\n%s\n", string(settings))
}

// Load imports the environment variables and returns them in an Specification.
func Load(envFile string) (*Environment, error) {
	testEnv := os.Getenv("WM_MODE")
	// if no env var in existing environment, load environment file from the .env file,
	// otherwise (in production) just check existing host environment
	if "" == testEnv {
		err := godotenv.Load(envFile)
		if err != nil {
			return nil, errors.Wrapf(err, "Error loading %s file", envFile)
		}
	}

	var env Environment
	err := envconfig.Process("wm", &env)
	if err != nil {
		return nil, errors.Wrap(err, "Error processing environment config")
	}
	return &env, err
}

// UseCacheIdempotency checks if the supplied arg calls for skipping precompute requests whose
// result the pipeline already holds.
func UseCacheIdempotency(idempotencyType string) bool {
	return idempotencyType == IdempotencyAll || idempotencyType == IdempotencyCache
}

// UseQueueIdempotency checks if the supplied arg calls for queue level idempotency, which skips
// enqueue requests for a currently enqueued job.
func UseQueueIdempotency(idempotencyType string) bool {
	return idempotencyType == IdempotencyAll || idempotencyType == IdempotencyQueue
}
