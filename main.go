package main

import (
	"encoding/gob"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.uber.org/zap"

	"gitlab.uncharted.software/WM/wm-pipeline-eval/api"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/modifiers"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/precompute"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/queue"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/source"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

const envFile = "wm.env"

var (
	// populated at compile time based on data injected by the makefile
	version   = "unset"
	timestamp = "unset"
)

func main() {
	// Load environment
	env, err := config.Load(envFile)
	if err != nil {
		log.Fatal(err)
	}

	// Setup logging
	var logger *zap.Logger
	switch env.Mode {
	case "dev":
		logger, err = zap.NewDevelopment()
	case "prod":
		logger, err = zap.NewProduction()

	default:
		err = fmt.Errorf("Invalid 'mode' flag: %s", env.Mode)
	}
	if err != nil {
		log.Fatal(err)
	}

	defer func() {
		_ = logger.Sync()
	}()
	sugar := logger.Sugar()

	config := config.Config{
		Logger:      sugar,
		Environment: env,
	}

	// Log version
	sugar.Infof("Version: %s Timestamp: %s", version, timestamp)

	// Log config
	sugar.Info(env)

	clock := anim.NewClock(env.TicksPerFrame)

	// Setup the pipeline source, falling back to the demo trajectory when no frame
	// server is configured.
	var src pipeline.Node
	if env.SourceAddr != "" {
		src = source.NewGraphQLSource(env.SourceAddr, time.Duration(env.SourceTimeoutSec)*time.Second, clock, sugar)
		sugar.Infof("Reading frames from %s", env.SourceAddr)
	} else {
		src = source.NewStaticSource("demo lattice", clock, source.NewLatticeTrajectory(env.DemoFrames, env.DemoParticles)...)
		sugar.Infof("Serving demo trajectory with %d frames of %d particles", env.DemoFrames, env.DemoParticles)
	}

	// Build the modifier chain
	definition, err := modifiers.LoadDefinition(env.PipelineFile)
	if err != nil {
		sugar.Fatal(err)
	}
	head, err := definition.Build(src, sugar)
	if err != nil {
		sugar.Fatal(err)
	}
	p := pipeline.New(head, env.PipelineCacheSize, sugar)

	// Setup the precompute queue
	var requestQueue queue.JobQueue
	if env.PersistedQueue {
		// The gob package that the persisted queue uses for storing data requires a one-time registration
		// of any structures that it stores.
		gob.Register(precompute.KeyedFrameRequest{})
		persisted, err := queue.NewPersistedQueue(env.QueueSize, env.QueueDir, env.QueueName)
		if err != nil {
			sugar.Fatal(err)
		}
		sugar.Infof("Loaded queue with %d entries from %s%s", persisted.Size(), env.QueueDir, env.QueueName)
		requestQueue = persisted
	} else {
		// in-memory queue, data does not survive a restart
		requestQueue = queue.NewListQueue(env.QueueSize)
	}
	defer func() {
		_ = requestQueue.Close()
	}()

	runner := precompute.NewRunner(&config, p, clock, requestQueue)

	// Setup router
	r, err := api.NewRouter(config, p, clock, requestQueue, runner)
	if err != nil {
		sugar.Fatal(err)
	}

	// Start servicing the precompute queue
	runner.Start()

	// Start listening
	sugar.Infof("Listening on %s", env.Addr)
	sugar.Fatal(http.ListenAndServe(env.Addr, r))
}
