package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/analysis"
	"github.com/infosage/backend/internal/api/handlers"
	rediscache "github.com/infosage/backend/internal/cache/redis"
	"github.com/infosage/backend/internal/clustering"
	"github.com/infosage/backend/internal/embedding"
	"github.com/infosage/backend/internal/events"
	"github.com/infosage/backend/internal/features"
	"github.com/infosage/backend/internal/ingestion"
	"github.com/infosage/backend/internal/kg/builder"
	"github.com/infosage/backend/internal/kg/neo4j"
	"github.com/infosage/backend/internal/llm"
	"github.com/infosage/backend/internal/metrics"
	"github.com/infosage/backend/internal/middleware/ratelimit"
	"github.com/infosage/backend/internal/middleware/security"
	"github.com/infosage/backend/internal/middleware/validation"
	"github.com/infosage/backend/internal/outputs"
	"github.com/infosage/backend/internal/review"
	"github.com/infosage/backend/internal/search/web"
	"github.com/infosage/backend/internal/similarity"
	"github.com/infosage/backend/internal/storage/models"
	"github.com/infosage/backend/internal/storage/sqlite"
	"github.com/infosage/backend/internal/tasks"
	"github.com/infosage/backend/internal/vector/zilliz"
	"github.com/infosage/backend/internal/verdict"
	"github.com/infosage/backend/pkg/config"
	appLogger "github.com/infosage/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting InfoSage API Server")
	metrics.Init()

	store, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Optional backends stay nil interfaces when disabled or unreachable.
	var (
		remoteCache  embedding.RemoteCache
		eventMirror  events.Mirror
		vectorMirror analysis.VectorMirror
		graph        builder.Graph
		readyDeps    = map[string]handlers.Pinger{"sqlite": store}
		resetters    = map[string]handlers.Resetter{}
	)

	if cfg.Redis.Enabled {
		redisClient, err := rediscache.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.ChannelPrefix)
		if err != nil {
			appLogger.Warn("Redis unavailable, continuing without shared cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			remoteCache = redisClient
			eventMirror = redisClient
			readyDeps["redis"] = redisClient
		}
	}

	var similar similarity.Searcher = similarity.NewIndex(store)
	if cfg.Zilliz.Enabled {
		zillizClient, err := zilliz.NewClient(cfg.Zilliz.Endpoint, cfg.Zilliz.APIKey, cfg.Zilliz.CollectionName, cfg.Zilliz.VectorDim)
		if err != nil {
			appLogger.Warn("Zilliz unavailable, using in-process similarity scan", zap.Error(err))
		} else if err := zillizClient.CreateCollection(context.Background()); err != nil {
			appLogger.Warn("Failed to prepare vector collection, using in-process similarity scan", zap.Error(err))
			zillizClient.Close()
		} else {
			defer zillizClient.Close()
			similar = similarity.NewVectorIndex(zillizClient, store)
			vectorMirror = zillizClient
			resetters["vectors"] = zillizClient
		}
	}

	if cfg.Neo4j.Enabled {
		neo4jClient, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			appLogger.Warn("Neo4j unavailable, narrative graph disabled", zap.Error(err))
		} else {
			defer neo4jClient.Close(context.Background())
			graph = neo4jClient
			readyDeps["neo4j"] = neo4jClient
			resetters["graph"] = neo4jClient
		}
	}

	gate := llm.NewGate(cfg.LLM.MaxConcurrent, cfg.LLM.RequestsPerSecond)
	llmClient := llm.NewClient(cfg.LLM, gate)
	if !llmClient.Available() {
		appLogger.Warn("No LLM API key configured, every stage uses its fallback")
	}

	embedder := embedding.NewProvider(llmClient, remoteCache, embedding.Config{
		Dim:      cfg.LLM.EmbeddingDim,
		Model:    cfg.LLM.EmbeddingModel,
		CacheTTL: time.Duration(cfg.Redis.EmbeddingTTL) * time.Second,
	})

	var search *web.Client
	if cfg.Search.Enabled {
		search = web.NewClient(web.Config{
			SerpAPIKey: cfg.Search.SerpAPIKey,
			BaseURL:    cfg.Search.BaseURL,
			MaxResults: cfg.Search.MaxResults,
			Timeout:    time.Duration(cfg.Search.TimeoutSec) * time.Second,
		})
	}

	broker := events.NewBroker(eventMirror)
	engine := clustering.NewEngine(store, clustering.Config{
		MaxClusters:   cfg.Clustering.MaxClusters,
		MaxIterations: cfg.Clustering.MaxIterations,
		Seed:          cfg.Clustering.Seed,
	})
	reviewService := review.NewService(store, broker)
	kgBuilder := builder.NewBuilder(graph)

	orchestrator := analysis.NewOrchestrator(analysis.Deps{
		Store:      store,
		Embedder:   embedder,
		Similar:    similar,
		Researcher: web.NewResearcher(llmClient, search),
		Verdicts:   verdict.NewSynthesizer(llmClient),
		Features: features.NewExtractor(llmClient, features.Config{
			CallTimeout:   time.Duration(cfg.LLM.TimeoutSec) * time.Second,
			SettleTimeout: time.Duration(cfg.Pipeline.FeatureTimeoutSec) * time.Second,
		}),
		Trends:    llmClient,
		Clusters:  engine,
		Vectors:   vectorMirror,
		Graph:     kgBuilder,
		Escalator: reviewService,
		Publisher: broker,
	}, analysis.Config{
		SimilarityThreshold: cfg.Pipeline.SimilarityThreshold,
		AutoEscalate:        cfg.Pipeline.AutoEscalate,
	})

	runTimeout := time.Duration(cfg.Pipeline.RunTimeoutSec) * time.Second
	pool, err := tasks.NewPool(tasks.Config{
		Workers:     cfg.Pipeline.Workers,
		QueueSize:   cfg.Pipeline.QueueSize,
		TaskTimeout: runTimeout,
	}, func(ctx context.Context, t tasks.Task) error {
		actor := t.Actor
		if actor == "" {
			actor = models.SystemActor
		}
		_, err := orchestrator.Run(ctx, t.ClaimID, actor)
		return err
	})
	if err != nil {
		appLogger.Fatal("Failed to create task pool", zap.Error(err))
	}
	if err := pool.Start(); err != nil {
		appLogger.Fatal("Failed to start task pool", zap.Error(err))
	}

	ingest := ingestion.NewService(store, embedder, similar, pool)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	app.Get("/metrics", metrics.MetricsHandler())

	var limiter *ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.New(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		})
		app.Use(limiter.Middleware())
	}
	app.Use(validation.Middleware(validation.Config{MaxBodySize: cfg.Server.BodyLimit}))

	handlers.Register(app, handlers.Set{
		Claims:   handlers.NewClaimHandler(store, ingest, orchestrator, kgBuilder, runTimeout),
		Analysis: handlers.NewAnalysisHandler(store),
		Review:   handlers.NewReviewHandler(reviewService),
		Clusters: handlers.NewClusterHandler(store, engine),
		Outputs:  handlers.NewOutputHandler(outputs.NewGenerator(store, llmClient)),
		Audit:    handlers.NewAuditHandler(store),
		Admin:    handlers.NewAdminHandler(store, resetters),
		Health:   handlers.NewHealthHandler(readyDeps),
		Events:   handlers.NewEventsHandler(broker),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	if limiter != nil {
		limiter.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		appLogger.Warn("Analysis tasks cancelled during shutdown", zap.Error(err))
	}

	stats := pool.Stats()
	appLogger.Info("Server stopped",
		zap.Int64("tasks_processed", stats.Processed),
		zap.Int64("tasks_failed", stats.Failed),
	)
}
