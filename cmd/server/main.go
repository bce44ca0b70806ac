// Package main provides the entry point for the SmartMeta server
package main

import (
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Caia-Tech/smartmeta/internal/api"
	"github.com/Caia-Tech/smartmeta/internal/llm"
	"github.com/Caia-Tech/smartmeta/internal/pipeline"
	"github.com/Caia-Tech/smartmeta/internal/presentation"
	"github.com/Caia-Tech/smartmeta/internal/processing"
	"github.com/Caia-Tech/smartmeta/internal/storage"
	"github.com/Caia-Tech/smartmeta/internal/temporal/activities"
	"github.com/Caia-Tech/smartmeta/internal/temporal/workflows"
	"github.com/Caia-Tech/smartmeta/pkg/extractor"
	"github.com/Caia-Tech/smartmeta/pkg/logging"
	config "github.com/Caia-Tech/smartmeta/pkg/pipeline"
	"github.com/Caia-Tech/smartmeta/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

func main() {
	configPath := flag.String("config", os.Getenv("SMARTMETA_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logCloser, err := logging.SetupLogger(cfg.Logging)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up logging")
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	// Session storage
	metricsCollector := storage.NewSimpleMetricsCollector()
	store := storage.NewMemoryStore(cfg.Storage.SessionTTL, metricsCollector)
	store.StartJanitor(cfg.Storage.SweepInterval)
	defer store.Close()

	// Pipeline events
	bus := pipeline.NewEventBus(cfg.Events.BufferSize, cfg.Events.Workers)
	defer bus.Close()
	if _, err := pipeline.SubscribeLogger(bus); err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe event logger")
	}

	// Optional git archive
	var archive *storage.GitArchive
	var archiver pipeline.Archiver
	if cfg.Archive.Enabled {
		archive, err = storage.NewGitArchive(cfg.Archive.RepoPath, metricsCollector)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Archive.RepoPath).Msg("Failed to open metadata archive")
		}
		archiver = archive
		if _, err := pipeline.SubscribeArchiver(bus, archive); err != nil {
			log.Fatal().Err(err).Msg("Failed to subscribe archiver")
		}
	}

	// Model client
	var generator llm.Generator
	limiter := ratelimit.NewProviderLimiter(cfg.LLM.MinInterval)
	llmClient, err := llm.NewClient(cfg.LLM, limiter)
	switch {
	case errors.Is(err, llm.ErrMissingAPIKey):
		log.Warn().Msg("OPENROUTER_API_KEY is not set; metadata generation is disabled")
	case err != nil:
		log.Fatal().Err(err).Msg("Failed to create model client")
	default:
		generator = llmClient
	}

	engine := extractor.NewEngine(cfg.ExtractorOptions())
	processor := processing.NewProcessor(engine, store, generator, bus, cfg.Processing)

	// Optional Temporal batch processing
	batch := api.BatchOptions{TaskQueue: cfg.Temporal.TaskQueue, Archive: archiver != nil}
	var w worker.Worker
	if cfg.Temporal.Enabled() {
		temporalClient, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.Host,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			log.Fatal().Err(err).Str("host", cfg.Temporal.Host).Msg("Failed to create Temporal client")
		}
		defer temporalClient.Close()
		batch.Client = temporalClient

		w = worker.New(temporalClient, cfg.Temporal.TaskQueue, worker.Options{
			MaxConcurrentActivityExecutionSize:     10,
			MaxConcurrentWorkflowTaskExecutionSize: 10,
		})
		w.RegisterWorkflow(workflows.BatchMetadataWorkflow)
		w.RegisterActivity(activities.NewActivities(processor, archiver))

		if err := w.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start Temporal worker")
		}
		log.Info().Str("task_queue", cfg.Temporal.TaskQueue).Msg("Temporal worker started")
	} else {
		log.Info().Msg("No Temporal host configured; batch processing is disabled")
	}

	// Initialize Fiber app with configuration
	app := fiber.New(fiber.Config{
		AppName:      "SmartMeta",
		BodyLimit:    int(cfg.Server.MaxRequestSize),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${error}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "UTC",
	}))

	app.Use("/api", cors.New(cors.Config{
		AllowOrigins: getEnv("CORS_ORIGINS", "*"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))

	h := api.NewHandlers(processor, bus, batch)
	storageHandler := api.NewStorageHandler(store, archive, metricsCollector)
	api.SetupRoutes(app, h, storageHandler)

	// Web UI for everything the JSON API does not handle
	renderer, err := presentation.NewRenderer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load UI templates")
	}
	ui := presentation.NewUI(processor, renderer, cfg.Server.MaxRequestSize)
	app.Use(adaptor.HTTPHandler(ui.Handler()))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server...")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	addr := cfg.Server.Addr()
	log.Info().
		Str("address", addr).
		Str("model", cfg.LLM.Model).
		Str("ocr_mode", cfg.Extraction.OCRMode).
		Bool("tesseract", extractor.OCRAvailable).
		Bool("archive", archive != nil).
		Msg("Starting SmartMeta server")
	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("Server stopped")
	}

	if w != nil {
		w.Stop()
	}
}

// getEnv retrieves an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
