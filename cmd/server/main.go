package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberSwagger "github.com/gofiber/swagger"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/clipquiz/api/docs"
	"github.com/clipquiz/api/internal/auth"
	"github.com/clipquiz/api/internal/client"
	"github.com/clipquiz/api/internal/config"
	"github.com/clipquiz/api/internal/handler"
	"github.com/clipquiz/api/internal/middleware"
	"github.com/clipquiz/api/internal/model"
	"github.com/clipquiz/api/internal/progress"
	"github.com/clipquiz/api/internal/redirect"
	"github.com/clipquiz/api/internal/service"
	ws "github.com/clipquiz/api/internal/websocket"
	"github.com/clipquiz/api/internal/worker"
	"github.com/clipquiz/api/internal/writeback"
	"github.com/clipquiz/api/pkg/logger"
)

// @title          ClipQuiz API
// @version        1.0
// @description    Backend API for ClipQuiz, a service that turns YouTube playlists into music quiz games.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog, err := logger.New(cfg.Server.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	// Configure Swagger host/scheme based on environment
	if cfg.Server.ApiDomain != "" {
		docs.SwaggerInfo.Host = cfg.Server.ApiDomain
		docs.SwaggerInfo.Schemes = []string{"https"}
	} else {
		docs.SwaggerInfo.Host = "localhost:" + cfg.Server.Port
		docs.SwaggerInfo.Schemes = []string{"http"}
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Test Redis connection
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	if err := redisClient.Ping(rootCtx).Err(); err != nil {
		appLog.Warn("redis not available", "error", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub and the progress snapshot store. Late
	// subscribers are replayed the job's latest snapshot on connect.
	hub := ws.NewHub(appLog)
	progressStore := progress.NewStore()
	hub.SetReplay(func(jobID string) (model.ProgressEvent, bool) {
		snap, ok := progressStore.Get(jobID)
		return snap.Event, ok
	})
	progressStore.StartJanitor(rootCtx, cfg.Snapshot.JanitorInterval, cfg.Snapshot.TerminalTTL, appLog)

	// Initialize quiz store client (falls back to in-memory store)
	var quizStore client.QuizStore
	storeClient := client.NewStoreClient(&cfg.Store, appLog)
	if storeClient.IsConfigured() {
		quizStore = storeClient
	} else {
		appLog.Warn("quiz store not configured, using in-memory store")
		quizStore = client.NewMemoryStore()
	}

	// Initialize the write-back layer: failed inserts land in the queue
	// and the sweeper retries them in the background.
	queue := writeback.NewQueue(&cfg.Queue, appLog)
	saver := writeback.NewSaver(quizStore, queue, validate, &cfg.Retry, appLog)
	queue.StartSweep(rootCtx, saver.ExecuteQueued)

	// Completion routing
	planner := redirect.NewPlanner(hub, &cfg.Redirect, appLog)

	// Initialize extraction pipeline client
	pipelineClient := client.NewPipelineClient(&cfg.Pipeline, appLog)
	var extractor client.ClipExtractor
	if pipelineClient.IsConfigured() {
		extractor = pipelineClient
	} else {
		appLog.Info("extraction pipeline not configured, jobs run against the mock extractor")
	}

	// Initialize R2 storage (optional - continues if not configured)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			appLog.Warn("R2 client not initialized", "error", err)
		} else {
			storage = r2Client
		}
	} else {
		appLog.Info("R2 storage not configured, clip URLs are served as stored")
	}

	// Initialize OIDC JWKS verifier (optional - falls back to legacy JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.OIDC.Issuer != "" {
		var err error
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			appLog.Warn("JWKS verifier not initialized", "error", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize services
	processService := service.NewProcessService(redisClient, asynqClient, extractor, appLog)
	progressService := service.NewProgressService(progressStore, hub, planner, appLog)
	resultService := service.NewResultService(saver, storage, planner, appLog)
	gameService := service.NewGameService(quizStore, saver, appLog)
	songService := service.NewSongService(quizStore, storage, appLog)

	// Initialize handlers
	processHandler := handler.NewProcessHandler(processService, validate)
	progressHandler := handler.NewProgressHandler(progressService)
	gameHandler := handler.NewGameHandler(gameService, validate)
	songHandler := handler.NewSongHandler(songService)

	// Initialize auth handler for ForwardAuth verification
	var tokenVerifier auth.TokenVerifier
	if jwksVerifier != nil {
		tokenVerifier = jwksVerifier
	}
	authHandler := handler.NewAuthHandler(tokenVerifier, cfg.JWT.Secret)

	// Initialize middleware (with fallback support)
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		appLog.Info("gateway mode enabled, using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		// Direct mode: auth is handled by the backend itself
		var authMiddleware *middleware.AuthMiddleware
		if jwksVerifier != nil && cfg.JWT.Secret != "" {
			authMiddleware = middleware.NewAuthMiddlewareWithFallback(jwksVerifier, cfg.JWT.Secret)
		} else if jwksVerifier != nil {
			authMiddleware = middleware.NewAuthMiddleware(jwksVerifier)
		} else {
			authMiddleware = middleware.NewLegacyAuthMiddleware(cfg.JWT.Secret)
		}
		apiAuthMiddleware = authMiddleware.Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    10 * 1024 * 1024, // 10MB
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		appLog.Debug("debug logging enabled")
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"store":    storeClient.IsConfigured(),
				"pipeline": pipelineClient.IsConfigured(),
				"r2":       storage != nil,
				"auth":     jwksVerifier != nil || cfg.JWT.Secret != "",
			},
			"queueDepth": queue.Len(),
		})
	})

	// Swagger UI
	app.Get("/swagger/*", fiberSwagger.HandlerDefault)

	// ForwardAuth verification endpoint (internal, called by Traefik)
	app.Get("/auth/verify", authHandler.Verify)

	// Progress ingress (internal, called by the extraction pipeline)
	app.Post("/internal/progress", middleware.PipelineAuthMiddleware(cfg.Pipeline.Token), progressHandler.Ingest)

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Process routes
	process := api.Group("/process")
	process.Post("/start", rateLimiter.ProcessLimit(cfg.RateLimit.ProcessPerHour), processHandler.Start)
	process.Get("/status/:jobId", processHandler.Status)
	process.Get("/result/:jobId", processHandler.Result)
	process.Post("/cancel/:jobId", processHandler.Cancel)

	// Progress routes
	api.Get("/progress/:jobId", progressHandler.Snapshot)
	api.Delete("/progress/:jobId", progressHandler.Clear)

	// Game routes
	games := api.Group("/games", rateLimiter.GamesLimit(cfg.RateLimit.GamesPerMin))
	games.Post("/", gameHandler.Create)
	games.Get("/:gameId", gameHandler.Get)
	games.Delete("/:gameId", gameHandler.Delete)

	// Song routes
	songs := api.Group("/songs", rateLimiter.SongsLimit(cfg.RateLimit.SongsPerMin))
	songs.Get("/", songHandler.List)
	songs.Delete("/:songId", songHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		jobID := c.Query("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	processWorker := worker.NewProcessWorker(processService, progressService, resultService, pipelineClient, appLog)
	go startWorkerServer(cfg, processWorker, appLog)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		appLog.Info("shutting down server")

		// Stop pending redirects and disconnect observers before the
		// listener goes away.
		planner.Stop()
		hub.CloseAll()
		rootCancel()

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			appLog.Error("server shutdown error", "error", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	appLog.Info("server starting", "addr", addr)
	if err := app.Listen(addr); err != nil {
		appLog.Fatal("server error", "error", err)
	}

	// Listener is down. Flush whatever the failed-operation queue still
	// holds before exit.
	if queue.Len() > 0 {
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		queue.Drain(drainCtx, saver.ExecuteQueued)
	}
	appLog.Info("server stopped")
}

func startWorkerServer(cfg *config.Config, processWorker *worker.ProcessWorker, appLog *logger.Logger) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"process": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeProcess, processWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		appLog.Error("asynq worker error", "error", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
