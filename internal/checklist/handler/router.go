package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kitchensafe/kitchensafe-backend/pkg/httputil"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/metrics"
)

// HealthCheck reports the state of one dependency for /health.
type HealthCheck func(ctx context.Context) map[string]string

// RouterConfig collects everything the router mounts.
type RouterConfig struct {
	Service        string
	AllowedOrigins []string
	MetricsPath    string

	Tokens   TokenValidator
	Resolver ScopeResolver
	Metrics  *metrics.Metrics
	Health   map[string]HealthCheck

	Checklists *ChecklistHandler
	Templates  *TemplateHandler
	Defects    *DefectHandler
	RAG        *RAGHandler
}

// NewRouter builds the HTTP surface of the checklist service.
func NewRouter(cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(cfg.Metrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]interface{}{
			"status":  "healthy",
			"service": cfg.Service,
		}
		for name, check := range cfg.Health {
			body[name] = check(r.Context())
		}
		httputil.JSON(w, http.StatusOK, body)
	})
	if cfg.MetricsPath != "" {
		r.Handle(cfg.MetricsPath, metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(cfg.Tokens, cfg.Resolver, log))

		r.Route("/checklists", func(r chi.Router) {
			r.Get("/", cfg.Checklists.List)
			r.Post("/generate", cfg.Checklists.Generate)
			r.Post("/events", cfg.Checklists.CreateEvent)
			r.Get("/{id}", cfg.Checklists.Get)
		})
		r.Post("/checklist-items/{id}/submit", cfg.Checklists.SubmitItem)

		r.Get("/sites/{id}/rag", cfg.RAG.Site)
		r.Get("/organizations/{id}/rag", cfg.RAG.Organization)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", cfg.Templates.ListCategories)
			r.Post("/", cfg.Templates.CreateCategory)
			r.Get("/{id}", cfg.Templates.GetCategory)
			r.Put("/{id}", cfg.Templates.UpdateCategory)
			r.Delete("/{id}", cfg.Templates.DeleteCategory)
			r.Get("/{id}/tasks", cfg.Templates.ListTasks)
			r.Post("/{id}/tasks", cfg.Templates.CreateTask)
		})
		r.Route("/tasks", func(r chi.Router) {
			r.Put("/{id}", cfg.Templates.UpdateTask)
			r.Delete("/{id}", cfg.Templates.DeleteTask)
			r.Get("/{id}/fields", cfg.Templates.ListFields)
			r.Post("/{id}/fields", cfg.Templates.CreateField)
		})
		r.Route("/fields", func(r chi.Router) {
			r.Put("/{id}", cfg.Templates.UpdateField)
			r.Delete("/{id}", cfg.Templates.DeleteField)
		})

		r.Route("/defects", func(r chi.Router) {
			r.Get("/", cfg.Defects.List)
			r.Post("/", cfg.Defects.Create)
			r.Get("/{id}", cfg.Defects.Get)
			r.Delete("/{id}", cfg.Defects.Delete)
			r.Post("/{id}/start", cfg.Defects.Start)
			r.Post("/{id}/close", cfg.Defects.Close)
			r.Put("/{id}/severity", cfg.Defects.UpdateSeverity)
		})
	})

	return r
}
