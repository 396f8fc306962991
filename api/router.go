package api

import (
	"compress/flate"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	api_middleware "gitlab.uncharted.software/WM/wm-pipeline-eval/api/middleware"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/anim"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/pipeline"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/precompute"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/queue"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/api/routes"
	"gitlab.uncharted.software/WM/wm-pipeline-eval/config"
)

// NewRouter returns a chi router with endpoints registered.
func NewRouter(cfg config.Config, p *pipeline.Pipeline, clock anim.Clock, requestQueue queue.JobQueue, runner *precompute.Runner) (chi.Router, error) {

	// Setup the router and configure baseline middleware
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(api_middleware.Logger(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(flate.DefaultCompression))

	// Configure CORS handling
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
	})
	r.Use(c.Handler)

	r.Route("/pipeline", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/state", routes.StateRequest(&cfg, p, clock))
		r.Get("/states", routes.StatesRequest(&cfg, p, clock))
		r.Get("/stages", routes.StagesRequest(&cfg, p))
		r.Put("/stages/{index}/enabled", routes.SetStageEnabledRequest(&cfg, p))
		r.Put("/invalidate", routes.InvalidateRequest(&cfg, p))

		r.Put("/precompute", routes.EnqueueRequest(&cfg, p, requestQueue)) // PUT instead of POST due to idempotency
		r.Put("/precompute/bulk", routes.BulkEnqueueRequest(&cfg, p, requestQueue))
		r.Put("/precompute/all", routes.EnqueueAllRequest(&cfg, p, requestQueue))
		r.Get("/jobs", routes.JobsRequest(&cfg, requestQueue, runner))
		r.Get("/status", routes.StatusRequest(&cfg, p, requestQueue, runner))
		r.Put("/start", routes.StartRequest(&cfg, runner))
		r.Put("/stop", routes.StopRequest(&cfg, runner))
		r.Put("/clear", routes.ClearRequest(&cfg, requestQueue))
		r.Put("/force-dispatch", routes.ForceDispatchRequest(&cfg, runner))
	})

	return r, nil
}
