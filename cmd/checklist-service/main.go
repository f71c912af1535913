package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kitchensafe/kitchensafe-backend/internal/auth/jwt"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/access"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/consumers"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/events"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/handler"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/repository"
	"github.com/kitchensafe/kitchensafe-backend/internal/checklist/service"
	"github.com/kitchensafe/kitchensafe-backend/migrations"
	"github.com/kitchensafe/kitchensafe-backend/pkg/config"
	"github.com/kitchensafe/kitchensafe-backend/pkg/database"
	"github.com/kitchensafe/kitchensafe-backend/pkg/logger"
	"github.com/kitchensafe/kitchensafe-backend/pkg/messaging"
	"github.com/kitchensafe/kitchensafe-backend/pkg/metrics"
)

const serviceName = "checklist-service"

func main() {
	// Load configuration
	cfg, err := config.LoadWithValidation(serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(serviceName, cfg.Server.Environment)
	log.Info().Msg("starting Checklist Service")

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid scheduler configuration")
	}
	cal := service.NewCalendar(nil, loc)

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	applied, err := migrations.Apply(ctx, db.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}
	if len(applied) > 0 {
		log.Info().Strs("versions", applied).Msg("migrations applied")
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer, cfg.Metrics.Prefix)
	}

	// Connect to RabbitMQ when enabled; without it events are dropped
	var rmq *messaging.RabbitMQ
	publisher := events.NewPublisher(nil, log)
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		if err := rmq.DeclareDeadLetterQueue(serviceName); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}
		publisher, err = events.NewRabbitPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
	}

	// Initialize repositories
	tenancyRepo := repository.NewTenancyRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	checklistRepo := repository.NewChecklistRepository(db)
	responseRepo := repository.NewResponseRepository(db)
	defectRepo := repository.NewDefectRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	// Initialize services
	templateService := service.NewTemplateService(db, templateRepo, log)
	scheduler := service.NewScheduler(db, tenancyRepo, templateRepo, checklistRepo, publisher, m, cal, log)
	submissionService := service.NewSubmissionService(db, checklistRepo, templateRepo, responseRepo, defectRepo, publisher, m, cal, log)
	checklistService := service.NewChecklistService(checklistRepo, responseRepo, cal, log)
	ragService := service.NewRAGService(tenancyRepo, statsRepo, cal, log)
	defectService := service.NewDefectService(db, tenancyRepo, checklistRepo, defectRepo, publisher, m, cal, log)

	// Start the instantiate consumer
	if rmq != nil {
		instantiateConsumer, err := consumers.NewInstantiateConsumer(rmq, scheduler, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create instantiate consumer")
		}
		if err := instantiateConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start instantiate consumer")
		}
		go rmq.Watch(ctx, func() error {
			return instantiateConsumer.Start(ctx)
		})
	}

	// Start the daily generator
	var generator *service.DailyGenerator
	if cfg.Scheduler.Enabled {
		generator, err = service.NewDailyGenerator(scheduler, cfg.Scheduler.Cron, m, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create daily generator")
		}
		generator.Start()
	}

	// Create router
	health := map[string]handler.HealthCheck{
		"database": db.Health,
	}
	if rmq != nil {
		health["rabbitmq"] = func(context.Context) map[string]string { return rmq.Health() }
	}
	metricsPath := ""
	if m != nil {
		metricsPath = cfg.Metrics.Path
	}

	router := handler.NewRouter(handler.RouterConfig{
		Service:        serviceName,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		MetricsPath:    metricsPath,
		Tokens:         jwt.NewManager(&cfg.JWT),
		Resolver:       access.NewResolver(tenancyRepo, log),
		Metrics:        m,
		Health:         health,
		Checklists:     handler.NewChecklistHandler(checklistService, scheduler, submissionService, log),
		Templates:      handler.NewTemplateHandler(templateService, log),
		Defects:        handler.NewDefectHandler(defectService, log),
		RAG:            handler.NewRAGHandler(ragService, log),
	}, log)

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if generator != nil {
		generator.Stop(shutdownCtx)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
