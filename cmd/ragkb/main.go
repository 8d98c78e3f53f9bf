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

	"github.com/xxxsen/ragkb/internal/ai"
	"github.com/xxxsen/ragkb/internal/config"
	"github.com/xxxsen/ragkb/internal/db"
	"github.com/xxxsen/ragkb/internal/embedcache"
	"github.com/xxxsen/ragkb/internal/filestore"
	"github.com/xxxsen/ragkb/internal/handler"
	"github.com/xxxsen/ragkb/internal/job"
	"github.com/xxxsen/ragkb/internal/metrics"
	"github.com/xxxsen/ragkb/internal/middleware"
	"github.com/xxxsen/ragkb/internal/pkg/jwt"
	"github.com/xxxsen/ragkb/internal/repo"
	"github.com/xxxsen/ragkb/internal/schedule"
	"github.com/xxxsen/ragkb/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragkb",
		Short: "tenant-scoped rag knowledge base server",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run ragkb server",
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
			if err := db.ApplyMigrations(conn, cfg.AI.VectorDimension); err != nil {
				return fmt.Errorf("migrations: %w", err)
			}
			// Refuse to start if the schema vector width drifted from config.
			if err := db.ValidateVectorDimension(conn, cfg.AI.VectorDimension); err != nil {
				return fmt.Errorf("vector dimension check: %w", err)
			}
			return runServer(cfg, conn)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd)

	var tokenTenant string
	var tokenSubject string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue a tenant jwt for testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" || tokenTenant == "" {
				return fmt.Errorf("--config and --tenant are required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			token, err := jwt.GenerateToken(tokenTenant, tokenSubject, []byte(cfg.JWTSecret),
				time.Hour*time.Duration(cfg.JWTTTLHours))
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
	tokenCmd.Flags().StringVar(&tokenTenant, "tenant", "", "tenant id to embed in the token")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "optional subject")
	rootCmd.AddCommand(tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.Int("vector_dimension", cfg.AI.VectorDimension),
	)

	kbRepo := repo.NewKnowledgeBaseRepo(conn)
	docRepo := repo.NewDocumentRepo(conn)
	chunkRepo := repo.NewChunkRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)

	m := metrics.New()

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return fmt.Errorf("init file store: %w", err)
	}

	aiTimeout := time.Duration(cfg.AI.Timeout) * time.Second
	baseEmbedder, err := ai.BuildEmbedder(cfg.AI.Embed, aiTimeout)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	embedder := ai.NewValidatedEmbedder(baseEmbedder, cfg.AI.VectorDimension)
	embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo, m)
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.AI.CacheSize,
		time.Duration(cfg.AI.CacheTTLHours)*time.Hour, m)

	generator, err := ai.BuildGenerator(cfg.AI.Chat, aiTimeout)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}

	var reranker ai.IReranker
	if cfg.AI.Rerank.Endpoint != "" {
		reranker = ai.NewHTTPReranker(ai.RerankerConfig{
			Endpoint: cfg.AI.Rerank.Endpoint,
			APIKey:   cfg.AI.Rerank.APIKey,
			Model:    cfg.AI.Rerank.Model,
			Timeout:  time.Duration(cfg.AI.Rerank.Timeout) * time.Second,
		})
	}

	kbService := service.NewKnowledgeBaseService(kbRepo, docRepo, chunkRepo)
	ingestService, err := service.NewIngestService(cfg.Ingest, kbRepo, docRepo, chunkRepo, store, embedder, m)
	if err != nil {
		return fmt.Errorf("init ingest service: %w", err)
	}
	defer ingestService.Close()
	searchService := service.NewSearchService(cfg.Retrieval, kbRepo, chunkRepo, embedder, m)
	ragService := service.NewRAGService(cfg.Retrieval, searchService, reranker, generator, m)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewIngestReaperJob(docRepo,
		time.Duration(cfg.Ingest.StuckAfterMinutes)*time.Minute), "*/5 * * * *"); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(cacheRepo, cfg.AI.CacheKeepDays), "0 3 * * *"); err != nil {
		return err
	}

	deps := handler.RouterDeps{
		KnowledgeBases: handler.NewKnowledgeBaseHandler(kbService),
		Ingest:         handler.NewIngestHandler(ingestService, cfg.Ingest.MaxUploadSize),
		Search:         handler.NewSearchHandler(searchService),
		RAG:            handler.NewRAGHandler(ragService),
		Settings:       handler.NewSettingsHandler(cfg, conn),
		Metrics:        m.Handler(),
		JWTSecret:      []byte(cfg.JWTSecret),
		RateWindow:     time.Duration(cfg.RateLimitMS) * time.Millisecond,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.CORS(nil),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
