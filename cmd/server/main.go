package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/slabscan/api/internal/client"
	"github.com/slabscan/api/internal/config"
	"github.com/slabscan/api/internal/handler"
	"github.com/slabscan/api/internal/middleware"
	"github.com/slabscan/api/internal/notifier"
	"github.com/slabscan/api/internal/poller"
	"github.com/slabscan/api/internal/service"
	"github.com/slabscan/api/internal/store"
	ws "github.com/slabscan/api/internal/websocket"
	"github.com/slabscan/api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis backs job snapshots, the result cache, rate limits and asynq
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}
	cancel()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	validate := validator.New()

	// External clients
	gradingClient := client.NewGradingClient(&cfg.Grading)

	var archiver client.ReportArchiver
	if cfg.R2.IsConfigured() {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client init failed: %v", err)
		} else {
			archiver = r2Client
			log.Println("R2 report archive configured")
		}
	}

	// Job store, restored from the last snapshot
	jobStore := store.NewJobStore(store.WithPersister(store.NewRedisPersister(redisClient, cfg.Redis.JobTTL)))
	restoreCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if n, err := jobStore.Restore(restoreCtx); err != nil {
		log.Printf("Warning: failed to restore jobs: %v", err)
	} else if n > 0 {
		log.Printf("Restored %d jobs", n)
	}
	cancel()

	// WebSocket hub mirrors store changes and carries notifications
	hub := ws.NewHub()
	go hub.Run(ctx)
	jobStore.Subscribe(hub.HandleEvent)

	completionNotifier := notifier.New(cfg.Notify.Icon, hub)
	completionNotifier.Attach(jobStore)

	// Services
	resultCache := store.NewRedisResultCache(redisClient, cfg.Results.CacheTTL)
	reportService := service.NewReportService(resultCache, asynqClient, archiver)
	jobService := service.NewJobService(jobStore, cfg.Poller.CompletedRetention)

	// Background loops
	statusPoller := poller.New(jobStore, gradingClient, poller.Config{
		StuckThreshold:   cfg.Poller.StuckThreshold,
		GracePeriod:      cfg.Poller.GracePeriod,
		ExpectedDuration: cfg.Poller.ExpectedDuration,
	}, poller.WithReportSink(reportService), poller.WithReportFetcher(gradingClient))
	go statusPoller.Run(ctx)

	janitor := worker.NewJanitor(jobService, cfg.Poller.JanitorInterval)
	go janitor.Run(ctx)

	workerServer := startWorkerServer(cfg, redisOpt, reportService, gradingClient)

	// Handlers
	jobHandler := handler.NewJobHandler(jobService, validate)
	reportHandler := handler.NewReportHandler(reportService, validate)

	rateLimiter := middleware.NewRateLimiter(redisClient)

	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"timestamp": time.Now().Unix()})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"grading": gradingClient.IsConfigured(),
				"r2":      archiver != nil,
				"auth":    cfg.Auth.Enabled,
			},
			"jobs": len(jobStore.InFlight()),
		})
	})

	var apiMiddleware []fiber.Handler
	if cfg.Auth.Enabled {
		apiMiddleware = append(apiMiddleware, middleware.NewAuthMiddleware(cfg.Auth.Secret).Authenticate())
	} else {
		log.Println("Warning: API authentication disabled")
	}
	api := app.Group("/api", apiMiddleware...)

	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.SubmitLimit(cfg.RateLimit.SubmitPerMin), jobHandler.Submit)
	jobs.Get("/", jobHandler.List)
	jobs.Post("/clear-completed", jobHandler.ClearCompleted)
	jobs.Get("/:jobId", jobHandler.Get)
	jobs.Delete("/:jobId", jobHandler.Dismiss)

	api.Post("/reports/parse", rateLimiter.ParseLimit(cfg.RateLimit.ParsePerMin), reportHandler.Parse)
	api.Get("/results/:cardId", reportHandler.Result)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, ws.TopicAll)
	}))
	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		hub.HandleConnection(c, c.Params("jobId"))
	}))

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		workerServer.Shutdown()
	}()

	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, reports *service.ReportService, fetcher client.ReportFetcher) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 4,
		Queues: map[string]int{
			service.QueueReprocess: 1,
		},
		LogLevel: asynqLogLevel,
	})

	reprocessWorker := worker.NewReprocessWorker(reports, fetcher)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeReprocess, reprocessWorker.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
	return srv
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
