package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/s7dump/internal/config"
	"github.com/me/s7dump/internal/coordinator"
	"github.com/me/s7dump/internal/profile"
	"github.com/me/s7dump/internal/schedule"
	"github.com/me/s7dump/internal/scheduler"
	"github.com/me/s7dump/internal/store"
)

// Deps bundles the server's collaborators.
type Deps struct {
	Store       store.Store
	Scheduler   *scheduler.Scheduler
	Profiles    *profile.Manager
	Coordinator *coordinator.Coordinator
	Broker      *scheduler.Broker
	Schedules   *schedule.Service

	// Metrics, when set, is mounted at /metrics (promhttp handler).
	Metrics http.Handler
}

// Server is the s7dump REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time

	store     store.Store
	sched     *scheduler.Scheduler
	profiles  *profile.Manager
	coord     *coordinator.Coordinator
	broker    *scheduler.Broker
	schedules *schedule.Service
	metrics   http.Handler
}

// New creates a new Server with all routes registered.
func New(cfg config.ServerConfig, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     deps.Store,
		sched:     deps.Scheduler,
		profiles:  deps.Profiles,
		coord:     deps.Coordinator,
		broker:    deps.Broker,
		schedules: deps.Schedules,
		metrics:   deps.Metrics,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	// Liveness probe; plain text, no envelope.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	// API routes (JSON)
	r.Route("/api/v1", func(r chi.Router) {
		// Discovery
		r.Get("/", s.handleDiscovery)

		// Health
		r.Get("/health", s.handleHealth)

		// Jobs
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", s.handleListJobs)
			r.Post("/", s.handleSubmitJob)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Put("/cancel", s.handleCancelJob)
			})
		})

		// Profiles
		r.Route("/profiles", func(r chi.Router) {
			r.Route("/serial", func(r chi.Router) {
				r.Get("/", s.handleListSerialProfiles)
				r.Post("/", s.handleCreateSerialProfile)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetSerialProfile)
					r.Put("/", s.handleUpdateSerialProfile)
					r.Delete("/", s.handleDeleteSerialProfile)
				})
			})
			r.Route("/socat", func(r chi.Router) {
				r.Get("/", s.handleListSocatProfiles)
				r.Post("/", s.handleCreateSocatProfile)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetSocatProfile)
					r.Put("/", s.handleUpdateSocatProfile)
					r.Delete("/", s.handleDeleteSocatProfile)
				})
			})
			r.Route("/power", func(r chi.Router) {
				r.Get("/", s.handleListPowerProfiles)
				r.Post("/", s.handleCreatePowerProfile)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetPowerProfile)
					r.Put("/", s.handleUpdatePowerProfile)
					r.Delete("/", s.handleDeletePowerProfile)
				})
			})
			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", s.handleListJobProfiles)
				r.Post("/", s.handleCreateJobProfile)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetJobProfile)
					r.Put("/", s.handleUpdateJobProfile)
					r.Delete("/", s.handleDeleteJobProfile)
					r.Post("/validate", s.handleValidateJobProfile)
					r.Get("/can-execute", s.handleCanExecuteJobProfile)
					r.Post("/duplicate", s.handleDuplicateJobProfile)
				})
			})
		})

		// Schedules
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", s.handleListSchedules)
			r.Post("/", s.handleCreateSchedule)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSchedule)
				r.Put("/", s.handleUpdateSchedule)
				r.Delete("/", s.handleDeleteSchedule)
			})
		})

		// Resource holdings
		r.Get("/resources", s.handleListResources)

		// SSE endpoints for real-time updates
		r.Route("/sse", func(r chi.Router) {
			r.Get("/jobs", s.handleSSEJobs)
		})
	})
}
