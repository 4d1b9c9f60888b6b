package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xela07ax/workflow-acl/internal/console/handler"
	"github.com/xela07ax/workflow-acl/internal/infra"
	"github.com/xela07ax/workflow-acl/internal/infra/auth"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// RS256 session token check for the protected group
	authValidator auth.TokenValidator
	gatherer      prometheus.Gatherer

	authHandler     *handler.AuthHandler     // /auth
	workflowHandler *handler.WorkflowHandler // /v1/me, /v1/workflows
	adminHandler    *handler.AdminHandler    // /v1/admin
}

func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	gatherer prometheus.Gatherer,
	authH *handler.AuthHandler,
	workflowH *handler.WorkflowHandler,
	adminH *handler.AdminHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		authValidator:   validator,
		gatherer:        gatherer,
		authHandler:     authH,
		workflowHandler: workflowH,
		adminHandler:    adminH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(infra.TracingMiddleware)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	// Public
	r.Group(func(r chi.Router) {
		r.Post("/auth/login", s.authHandler.Login)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		}
	})

	// RS256 token required
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		r.Post("/auth/logout", s.authHandler.Logout)
		r.Get("/v1/me", s.workflowHandler.Me)

		r.Route("/v1/workflows", func(r chi.Router) {
			r.Get("/", s.workflowHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.workflowHandler.Get)
				r.Get("/executions", s.workflowHandler.Executions)
				r.Post("/activate", s.workflowHandler.Activate)
				r.Post("/deactivate", s.workflowHandler.Deactivate)
				r.Post("/execute", s.workflowHandler.Execute)
			})
		})

		// Administrator checks happen in the service so that refusals are audited.
		r.Route("/v1/admin", func(r chi.Router) {
			r.Route("/identities", func(r chi.Router) {
				r.Get("/", s.adminHandler.ListIdentities)
				r.Route("/{identity}", func(r chi.Router) {
					r.Get("/", s.adminHandler.GetIdentity)
					r.Put("/", s.adminHandler.PutIdentity)
					r.Delete("/", s.adminHandler.DeleteIdentity)
				})
			})
			r.Route("/audit", func(r chi.Router) {
				r.Get("/", s.adminHandler.Audit)
				r.Get("/summary/{username}", s.adminHandler.Summary)
				r.Post("/prune", s.adminHandler.Prune)
			})
		})
	})
}

func (s *ConsoleServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("trace_id", infra.TraceID(r.Context())))
	})
}

func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
