package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/paperpilot/internal/ai"
	"github.com/xxxsen/paperpilot/internal/config"
	"github.com/xxxsen/paperpilot/internal/db"
	"github.com/xxxsen/paperpilot/internal/embedcache"
	"github.com/xxxsen/paperpilot/internal/event"
	"github.com/xxxsen/paperpilot/internal/filestore"
	"github.com/xxxsen/paperpilot/internal/handler"
	"github.com/xxxsen/paperpilot/internal/index"
	"github.com/xxxsen/paperpilot/internal/ingest"
	"github.com/xxxsen/paperpilot/internal/insight"
	"github.com/xxxsen/paperpilot/internal/job"
	"github.com/xxxsen/paperpilot/internal/middleware"
	"github.com/xxxsen/paperpilot/internal/rag"
	"github.com/xxxsen/paperpilot/internal/repo"
	"github.com/xxxsen/paperpilot/internal/schedule"
	"github.com/xxxsen/paperpilot/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "paperpilot",
		Short: "paperpilot backend server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run paperpilot server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(
				cfg.LogConfig.File,
				cfg.LogConfig.Level,
				int(cfg.LogConfig.FileCount),
				int(cfg.LogConfig.FileSize),
				int(cfg.LogConfig.KeepDays),
				cfg.LogConfig.Console,
			)
			logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

			conn, err := db.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			if err := db.ApplyMigrations(conn); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			return runServer(cfg, conn)
		},
	}

	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	rootLogger := logutil.GetLogger(context.Background())
	rootLogger.Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.String("ai_provider", cfg.AI.Provider),
	)

	docRepo := repo.NewDocumentRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)
	vectorRepo := repo.NewVectorRepo(conn)
	convRepo := repo.NewConversationRepo(conn)
	planRepo := repo.NewPlanRepo(conn)
	insightRepo := repo.NewInsightRepo(conn)
	flashcardRepo := repo.NewFlashcardRepo(conn)

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	providerArgs := cfg.AI.Data
	if providerArgs == nil {
		providerArgs = cfg.AI
	}
	aiProvider, err := ai.NewProvider(cfg.AI.Provider, providerArgs)
	if err != nil {
		return fmt.Errorf("init ai provider: %w", err)
	}
	aiProvider = ai.WrapLimits(aiProvider, ai.LimitConfig{
		MaxInFlight:   cfg.AI.MaxInFlight,
		RatePerSecond: cfg.AI.RatePerSecond,
	})
	callTimeout := time.Duration(cfg.AI.Timeout) * time.Second
	generator := ai.NewGenerator(aiProvider, cfg.AI.GenerateModel, callTimeout)
	if len(cfg.AI.FallbackModels) > 0 {
		entries := []ai.GeneratorEntry{{Name: cfg.AI.GenerateModel, Generator: generator}}
		for _, m := range cfg.AI.FallbackModels {
			entries = append(entries, ai.GeneratorEntry{Name: m, Generator: ai.NewGenerator(aiProvider, m, callTimeout)})
		}
		generator = ai.NewGroupGenerator(entries)
	}
	embedder := ai.NewEmbedder(aiProvider, cfg.AI.EmbedModel, callTimeout, cfg.AI.MaxInFlight)
	if cfg.AI.CacheSize > 0 {
		embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.CacheSize,
			time.Duration(cfg.AI.CacheTTLMin)*time.Minute)
	}

	idx := index.NewMemoryIndex(
		index.WithDefaultK(cfg.RAG.TopK),
		index.WithPersister(vectorRepo),
	)
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 5*time.Minute)
	err = idx.Warm(warmCtx)
	warmCancel()
	if err != nil {
		return fmt.Errorf("warm index: %w", err)
	}

	bus := event.NewBus()
	lifecycle := bus.Subscribe(64)
	go func() {
		for evt := range lifecycle {
			logutil.GetLogger(context.Background()).Info("lifecycle event",
				zap.String("type", evt.Type),
				zap.String("user_id", evt.UserID),
				zap.String("doc_id", evt.DocumentID),
				zap.String("plan_id", evt.PlanID))
		}
	}()

	ingestService := ingest.NewService(ingest.Config{
		ChunkTokens:   cfg.Ingest.ChunkTokens,
		OverlapTokens: cfg.Ingest.OverlapTokens,
		Workers:       cfg.Ingest.Workers,
		QueueSize:     cfg.Ingest.QueueSize,
		EmbedBatch:    cfg.Ingest.EmbedBatch,
	}, docRepo, chunkRepo, embedder, idx, bus)

	ragEngine := rag.NewEngine(rag.Config{
		TopK:            cfg.RAG.TopK,
		MaxPromptTokens: cfg.RAG.MaxPromptTokens,
		HistoryTurns:    cfg.RAG.HistoryTurns,
		RetryBackoff:    time.Duration(cfg.RAG.RetryBackoffMS) * time.Millisecond,
		AllowDegraded:   cfg.RAG.AllowDegraded,
	}, embedder, generator, idx, chunkRepo, docRepo, convRepo)

	insightEngine := insight.NewEngine(insight.Config{
		TrendMinDocs:   cfg.Insight.TrendMinDocs,
		PairThreshold:  cfg.Insight.PairThreshold,
		GapThreshold:   cfg.Insight.GapThreshold,
		MaxPairsPerRun: cfg.Insight.MaxPairsPerRun,
	}, vectorRepo, chunkRepo, docRepo, planRepo, insightRepo,
		insight.NewStanceClassifier(generator), embedder, idx)

	paperService := service.NewPaperService(docRepo, chunkRepo, flashcardRepo, store, idx, ingestService, generator)
	chatService := service.NewChatService(convRepo, docRepo, ragEngine)
	planService := service.NewPlanService(planRepo, docRepo, generator, bus, cfg.Plan)
	insightService := service.NewInsightService(insightEngine, insightRepo, docRepo)

	deps := handler.RouterDeps{
		Papers:    handler.NewPaperHandler(paperService),
		Chat:      handler.NewChatHandler(chatService),
		Plans:     handler.NewPlanHandler(planService),
		Insights:  handler.NewInsightHandler(insightService),
		JWTSecret: []byte(cfg.JWTSecret),
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(cfg.CORSOrigins),
			middleware.RateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ingestService.Start(ctx)

	cronSched := schedule.NewCronScheduler()
	if spec := cfg.Insight.CronSpec; spec != "" {
		if err := cronSched.AddJob(job.NewInsightJob(insightService), spec); err != nil {
			return err
		}
	}
	if spec := cfg.Insight.RetryCronSpec; spec != "" {
		if err := cronSched.AddJob(job.NewIngestRetryJob(docRepo, ingestService), spec); err != nil {
			return err
		}
	}
	cronSched.Start(ctx)

	rootLogger.Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	rootLogger.Info("server stopping...")
	cronSched.Stop()
	ingestService.Stop()
	return nil
}
