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

	"github.com/openlegis/legisrag/internal/ai"
	"github.com/openlegis/legisrag/internal/chunker"
	"github.com/openlegis/legisrag/internal/config"
	"github.com/openlegis/legisrag/internal/db"
	"github.com/openlegis/legisrag/internal/embedcache"
	"github.com/openlegis/legisrag/internal/encoder"
	"github.com/openlegis/legisrag/internal/filestore"
	"github.com/openlegis/legisrag/internal/gateway"
	"github.com/openlegis/legisrag/internal/handler"
	"github.com/openlegis/legisrag/internal/index"
	"github.com/openlegis/legisrag/internal/job"
	"github.com/openlegis/legisrag/internal/middleware"
	"github.com/openlegis/legisrag/internal/repo"
	"github.com/openlegis/legisrag/internal/retrieval"
	"github.com/openlegis/legisrag/internal/schedule"
	"github.com/openlegis/legisrag/internal/selfask"
	"github.com/openlegis/legisrag/internal/service"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "legisrag",
		Short: "legislative retrieval and self-ask service",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "serve the ask API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			return runServer(cfg, conn)
		},
	}

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "ingest the corpus snapshot and build the stored index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := setup(configPath)
			if err != nil {
				return err
			}
			return runIngest(cfg, conn)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.AddCommand(runCmd, indexCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("startup error", zap.Error(err))
	}
}

func setup(configPath string) (*config.Config, *sql.DB, error) {
	if configPath == "" {
		return nil, nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
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
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		return nil, nil, fmt.Errorf("migrations: %w", err)
	}
	return cfg, conn, nil
}

type components struct {
	encoder   *encoder.Encoder
	llm       *gateway.Gateway
	ingest    *service.IngestService
	chunks    *repo.ChunkRepo
	snapshots *repo.SnapshotRepo
	summaries *repo.SummaryRepo
	cache     *repo.EmbeddingCacheRepo
}

func buildComponents(cfg *config.Config, conn *sql.DB) (*components, error) {
	chunkRepo := repo.NewChunkRepo(conn)
	snapshotRepo := repo.NewSnapshotRepo(conn)
	summaryRepo := repo.NewSummaryRepo(conn)
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)

	embedder, err := buildEmbedder(cfg.Encoder)
	if err != nil {
		return nil, fmt.Errorf("init embed provider: %w", err)
	}
	embedder = embedcache.WrapDBCacheToEmbedder(embedder, cacheRepo)
	embedder = embedcache.WrapLruCacheToEmbedder(embedder, cfg.Encoder.CacheSize, time.Duration(cfg.Encoder.CacheTTLHours)*time.Hour)
	enc := encoder.New(embedder, cfg.Encoder.Dimension, cfg.Encoder.MaxInputChars, cfg.Encoder.BatchSize)

	generator, err := buildGenerator(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}
	gw := gateway.New(generator, gateway.Config{
		Timeout:         time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		MaxRetries:      cfg.LLM.MaxRetries,
		MaxConcurrency:  int64(cfg.LLM.MaxConcurrency),
		RatePerSecond:   cfg.LLM.RatePerSecond,
		BreakerStreak:   cfg.LLM.BreakerStreak,
		BreakerCooldown: time.Duration(cfg.LLM.BreakerCoolsec) * time.Second,
	})

	store, err := filestore.New(cfg.Corpus.Store)
	if err != nil {
		return nil, fmt.Errorf("init corpus store: %w", err)
	}
	ck := chunker.New(cfg.Chunking.MaxTokens, cfg.Chunking.OverlapTokens)
	ingest := service.NewIngestService(store, cfg.Corpus.Key, ck, enc, gw, chunkRepo, snapshotRepo, summaryRepo)

	return &components{
		encoder:   enc,
		llm:       gw,
		ingest:    ingest,
		chunks:    chunkRepo,
		snapshots: snapshotRepo,
		summaries: summaryRepo,
		cache:     cacheRepo,
	}, nil
}

func buildGenerator(cfg config.LLMConfig) (ai.IGenerator, error) {
	provider, err := ai.NewProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, err
	}
	primary := ai.NewGenerator(provider, cfg.Model)
	if len(cfg.Fallback) == 0 {
		return primary, nil
	}
	entries := []ai.GeneratorEntry{{Name: cfg.Provider, Generator: primary}}
	for _, ref := range cfg.Fallback {
		p, err := ai.NewProvider(ref.Provider, ref.Data)
		if err != nil {
			return nil, fmt.Errorf("init fallback llm provider %s: %w", ref.Provider, err)
		}
		entries = append(entries, ai.GeneratorEntry{Name: ref.Provider, Generator: ai.NewGenerator(p, ref.Model)})
	}
	return ai.NewGroupGenerator(entries), nil
}

func buildEmbedder(cfg config.EncoderConfig) (ai.IEmbedder, error) {
	provider, err := ai.NewEmbedProvider(cfg.Provider, cfg.Data)
	if err != nil {
		return nil, err
	}
	primary := ai.NewEmbedder(provider, cfg.Model)
	if len(cfg.Fallback) == 0 {
		return primary, nil
	}
	entries := []ai.EmbedderEntry{{Name: cfg.Model, Embedder: primary}}
	for _, ref := range cfg.Fallback {
		p, err := ai.NewEmbedProvider(ref.Provider, ref.Data)
		if err != nil {
			return nil, fmt.Errorf("init fallback embed provider %s: %w", ref.Provider, err)
		}
		entries = append(entries, ai.EmbedderEntry{Name: ref.Model, Embedder: ai.NewEmbedder(p, ref.Model)})
	}
	return ai.NewGroupEmbedder(entries), nil
}

func runIngest(cfg *config.Config, conn *sql.DB) error {
	comps, err := buildComponents(cfg, conn)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	snap, err := comps.ingest.Ingest(ctx)
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("corpus indexed",
		zap.String("corpus_hash", snap.CorpusHash),
		zap.Int("chunks", snap.ChunkCount))
	return nil
}

func runServer(cfg *config.Config, conn *sql.DB) error {
	comps, err := buildComponents(cfg, conn)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	idx := index.New(cfg.Encoder.Dimension)
	if err := comps.ingest.BuildIndex(ctx, idx); err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	engine := retrieval.NewEngine(comps.encoder, idx)
	orchestrator := selfask.New(engine, comps.llm, selfask.Config{
		Level1K:        cfg.SelfAsk.Level1K,
		Level2K:        cfg.SelfAsk.Level2K,
		MaxSubLevel1:   cfg.SelfAsk.MaxSubLevel1,
		MaxSubLevel2:   cfg.SelfAsk.MaxSubLevel2,
		MaxInFlight:    cfg.SelfAsk.MaxInFlight,
		MaxPerDocument: cfg.Retrieval.MaxPerDocument,
		SessionTimeout: time.Duration(cfg.SelfAsk.SessionTimeout) * time.Second,
	})
	assistant := service.NewAssistantService(orchestrator, engine, idx, comps.summaries, cfg.Retrieval.DefaultK)

	deps := handler.RouterDeps{
		Ask:           handler.NewAskHandler(assistant),
		Index:         idx,
		AskRateWindow: time.Second,
	}

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(comps.cache, 30), "0 3 * * *"); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewIndexFreshnessJob(comps.ingest, idx), "*/30 * * * *"); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	webEngine, err := webapi.NewEngine(
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
	logutil.GetLogger(ctx).Info("http server listening", zap.Int("port", cfg.Port), zap.Int("chunks", idx.Len()))

	go func() {
		if err := webEngine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
