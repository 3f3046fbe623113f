package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"alfredoptarigan/interview-engine/internal/auth"
	"alfredoptarigan/interview-engine/internal/config"
	"alfredoptarigan/interview-engine/internal/handlers"
	"alfredoptarigan/interview-engine/internal/logger"
	"alfredoptarigan/interview-engine/internal/metrics"
	"alfredoptarigan/interview-engine/internal/middleware"
	"alfredoptarigan/interview-engine/internal/realtime"
	"alfredoptarigan/interview-engine/internal/repositories"
	"alfredoptarigan/interview-engine/internal/services"
	"alfredoptarigan/interview-engine/internal/tracing"
)

func main() {
	cfg := config.Load()

	log := logger.New(logger.Options{File: cfg.Logging.File, Development: cfg.IsDevelopment()})
	defer log.Sync()
	log.Info("config loaded", zap.String("env", cfg.Server.Env))

	var tp *sdktrace.TracerProvider
	if cfg.Tracing.Enabled {
		var err error
		tp, err = tracing.InitTracer(cfg.Tracing.ServiceName, cfg.Tracing.Endpoint)
		if err != nil {
			log.Fatal("failed to initialize tracing", zap.Error(err))
		}
		log.Info("tracing enabled", zap.String("endpoint", cfg.Tracing.Endpoint))
	}

	db, err := config.InitDatabase(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}

	policyDefaults, err := config.LoadPolicyDefaults(cfg.Interview.PolicyFile)
	if err != nil {
		log.Fatal("failed to load interview policies", zap.Error(err))
	}

	// Repositories
	docRepo := repositories.NewDocumentRepository(db)
	interviewRepo := repositories.NewInterviewRepository(db)
	questionRepo := repositories.NewInterviewQuestionRepository(db)
	jobRepo := repositories.NewJobRepository(db)

	storageService := services.NewStorageService(cfg.Storage.UploadPath)
	if err := storageService.EnsureUploadDir(); err != nil {
		log.Fatal("failed to create upload directory", zap.Error(err))
	}

	geminiService, err := services.NewGeminiService(cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.EmbedModel, cfg.TTS.Model, log)
	if err != nil {
		log.Fatal("failed to initialize gemini", zap.Error(err))
	}

	ctx := context.Background()

	var knowledge services.KnowledgeRetriever
	if cfg.Qdrant.Enabled {
		qdrantService, err := services.NewQdrantService(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection)
		if err != nil {
			log.Fatal("failed to initialize qdrant", zap.Error(err))
		}
		if err := qdrantService.InitCollection(ctx); err != nil {
			log.Fatal("failed to initialize qdrant collection", zap.Error(err))
		}
		knowledge = services.NewKnowledgeRetriever(geminiService, qdrantService)
		log.Info("knowledge retrieval enabled", zap.String("collection", cfg.Qdrant.Collection))
	}

	var normalizer services.AudioNormalizer
	if cfg.Audio.Normalize {
		normalizer = services.NewFFmpegNormalizer(os.TempDir())
	}

	audioArchive, err := newAudioArchive(ctx, cfg, storageService)
	if err != nil {
		log.Fatal("failed to initialize audio archive", zap.Error(err))
	}

	var synthesizer services.SpeechSynthesizer
	if cfg.TTS.Enabled {
		synthesizer = services.NewGeminiSynthesizer(geminiService, cfg.TTS.Voice)
		log.Info("spoken questions enabled", zap.String("model", cfg.TTS.Model), zap.String("voice", cfg.TTS.Voice))
	}
	speech := services.NewSpeechService(synthesizer, audioArchive, cfg.Interview.CollaboratorTimeout, log)

	store, locker, closeStore := newSessionBackend(cfg, log)
	defer closeStore()

	engine := services.NewSessionEngine(services.EngineDeps{
		Interviews:  interviewRepo,
		Ledger:      questionRepo,
		Jobs:        jobRepo,
		Contexts:    services.NewContextProvider(docRepo, services.NewPDFParserService(), knowledge, log),
		Generator:   services.NewGeminiContentGenerator(geminiService, cfg.Gemini.MaxRetries),
		Evaluator:   services.NewGeminiResponseEvaluator(geminiService, cfg.Gemini.MaxRetries),
		Transcriber: services.NewGeminiTranscriber(geminiService, normalizer, log),
		Audio:       audioArchive,
		Store:       store,
		Locker:      locker,
		Defaults:    policyDefaults,
		Timeout:     cfg.Interview.CollaboratorTimeout,
		Logger:      log,
	})
	access := services.NewAccessPolicy(jobRepo)
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	var sweeper services.ExpirySweeper
	if cfg.Sweeper.Enabled {
		sweeper = services.NewExpirySweeper(interviewRepo, engine, services.SweeperOptions{
			Schedule:     cfg.Sweeper.Schedule,
			ScheduledTTL: cfg.Sweeper.ScheduledTTL,
			BatchSize:    cfg.Sweeper.BatchSize,
			Concurrency:  cfg.Sweeper.Concurrency,
		}, log)
		if err := sweeper.Start(); err != nil {
			log.Fatal("failed to start expiry sweeper", zap.Error(err))
		}
	}

	// Handlers
	interviewHandler := handlers.NewInterviewHandler(engine, access, interviewRepo, jobRepo, speech, cfg.Audio.MaxAudioSize, log)
	uploadHandler := handlers.NewUploadHandler(docRepo, storageService, cfg.Storage.MaxFileSize, log)
	reportHandler := handlers.NewReportHandler(engine, access, services.NewReportService(), log)

	bodyLimit := cfg.Storage.MaxFileSize
	if cfg.Audio.MaxAudioSize > bodyLimit {
		bodyLimit = cfg.Audio.MaxAudioSize
	}

	app := fiber.New(fiber.Config{
		AppName:      "Interview Engine API",
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		BodyLimit:    int(bodyLimit) + 1<<20,
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(metrics.FiberMiddleware())

	api := app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	secured := api.Group("", middleware.RequireIdentity(tokens))
	secured.Post("/interviews/start", interviewHandler.HandleStart)
	secured.Post("/interviews/submit", interviewHandler.HandleSubmit)
	secured.Post("/interviews/finish", interviewHandler.HandleFinish)
	secured.Post("/interviews/schedule", interviewHandler.HandleSchedule)
	secured.Get("/interviews", interviewHandler.HandleList)
	secured.Get("/interviews/:id", interviewHandler.HandleDetail)
	secured.Get("/interviews/:id/current", interviewHandler.HandleCurrent)
	secured.Post("/interviews/:id/cancel", interviewHandler.HandleCancel)
	secured.Get("/interviews/:id/report", reportHandler.HandleGetReport)
	secured.Post("/documents/cv", uploadHandler.HandleUploadCV)

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Interview Engine API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/v1/interviews/start",
				"POST /api/v1/interviews/submit",
				"POST /api/v1/interviews/finish",
				"POST /api/v1/interviews/schedule",
				"GET /api/v1/interviews",
				"GET /api/v1/interviews/:id",
				"GET /api/v1/interviews/:id/current",
				"POST /api/v1/interviews/:id/cancel",
				"GET /api/v1/interviews/:id/report",
				"POST /api/v1/documents/cv",
				fmt.Sprintf("WS :%s/ws/interview?token=", cfg.Realtime.Port),
			},
		})
	})

	rt := realtime.NewServer(engine, access, tokens, speech, realtime.Options{
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
		MessagesPerSec: cfg.Realtime.MessagesPerSec,
		Burst:          cfg.Realtime.Burst,
		MaxAudioSize:   cfg.Audio.MaxAudioSize,
	}, log)
	rtServer := &http.Server{
		Addr:              ":" + cfg.Realtime.Port,
		Handler:           rt.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("realtime server starting", zap.String("addr", rtServer.Addr))
		if err := rtServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("realtime server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down")

		if sweeper != nil {
			sweeper.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := rtServer.Shutdown(shutdownCtx); err != nil {
			log.Error("realtime server forced to shutdown", zap.Error(err))
		}
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
		if err := tracing.Shutdown(shutdownCtx, tp); err != nil {
			log.Error("tracer shutdown failed", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info("server starting", zap.String("addr", addr))

	if err := app.Listen(addr); err != nil {
		log.Fatal("failed to start server", zap.Error(err))
	}
}

// newSessionBackend selects the session store and per-interview lock. Redis
// is required when several instances serve the same interviews.
func newSessionBackend(cfg *config.Config, log *zap.Logger) (services.SessionStore, services.Locker, func()) {
	if cfg.Interview.SessionStore == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		log.Info("using redis session store", zap.String("addr", cfg.Redis.Addr))
		return services.NewRedisSessionStore(client, cfg.Interview.SessionTTL),
			services.NewRedisLocker(client, 4*cfg.Interview.CollaboratorTimeout+30*time.Second),
			func() { client.Close() }
	}

	store := services.NewMemorySessionStore(cfg.Interview.SessionTTL, time.Minute)
	log.Info("using in-memory session store")
	return store, services.NewLocalLocker(), store.Close
}

func newAudioArchive(ctx context.Context, cfg *config.Config, storage services.StorageService) (services.AudioArchive, error) {
	switch cfg.Audio.ArchiveBackend {
	case "minio":
		return services.NewMinioAudioArchive(ctx, cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.Bucket, cfg.Minio.UseSSL)
	case "none":
		return nil, nil
	default:
		return services.NewLocalAudioArchive(storage), nil
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	} else {
		code = handlers.StatusFor(err)
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
