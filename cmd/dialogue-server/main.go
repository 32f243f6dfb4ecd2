// cmd/dialogue-server/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"geodialogue/internal/common/camunda"
	"geodialogue/internal/common/config"
	"geodialogue/internal/common/database"
	"geodialogue/internal/common/llm"
	"geodialogue/internal/common/logger"
	"geodialogue/internal/common/observability"
	analysisdispatcher "geodialogue/internal/dialogue/analysis-dispatcher"
	dialoguemanager "geodialogue/internal/dialogue/dialogue-manager"
	intentclassifier "geodialogue/internal/dialogue/intent-classifier"
	locationresolver "geodialogue/internal/dialogue/location-resolver"
	parameterextractor "geodialogue/internal/dialogue/parameter-extractor"
	"geodialogue/internal/models"
	"geodialogue/internal/server"
	"geodialogue/internal/session"
	rga "geodialogue/internal/workers/geo-analysis/run-geo-analysis"
	"geodialogue/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewStructured(cfg.Logging.Level, cfg.Logging.Format)
	zapLog := logger.Zap(log)
	defer logger.Sync(log)

	zapLog.Info("Starting dialogue server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx := context.Background()

	obs, err := observability.New(cfg.App.Name, promclient.DefaultRegisterer)
	if err != nil {
		zapLog.Fatal("observability init failed", zap.Error(err))
	}

	// --- Schema registry ---
	reg := registry.Default()
	if cfg.Registry.OverridesPath != "" {
		overrides, err := registry.LoadOverrides(cfg.Registry.OverridesPath)
		if err != nil {
			zapLog.Fatal("registry overrides load failed", zap.Error(err))
		}
		if err := reg.ApplyOverrides(overrides); err != nil {
			zapLog.Fatal("registry overrides rejected", zap.Error(err))
		}
	}
	zapLog.Info("Schema registry ready", zap.String("version", reg.Version()))

	// --- Location table ---
	records, err := loadLocations(ctx, cfg, zapLog)
	if err != nil {
		zapLog.Fatal("location table load failed", zap.Error(err))
	}
	resolver := locationresolver.New(records, locationresolver.Config{
		SimilarityThreshold: cfg.Locations.SimilarityThreshold,
		BBoxBuffer:          cfg.Locations.BBoxBuffer,
	}, log)
	zapLog.Info("Location table loaded", zap.String("source", cfg.Locations.Source), zap.Int("records", len(records)))

	// --- Optional LLM fallback ---
	var (
		fallback  intentclassifier.Fallback
		assistant parameterextractor.Assistant
	)
	if cfg.LLM.Enabled {
		llmClient, err := llm.NewClient(llm.Config{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			Timeout:   config.GetDuration(cfg.LLM.Timeout),
			MaxTokens: cfg.LLM.MaxTokens,
			CacheSize: cfg.LLM.CacheSize,
		}, log)
		if err != nil {
			zapLog.Fatal("llm client init failed", zap.Error(err))
		}
		if cfg.Dialogue.LLMClassification {
			fallback = llmClient
		}
		if cfg.Dialogue.LLMExtraction {
			assistant = llmClient
		}
		zapLog.Info("LLM fallback enabled", zap.String("model", cfg.LLM.Model))
	}

	classifier := intentclassifier.New(intentclassifier.Config{
		Threshold: cfg.Dialogue.IntentThreshold,
		TieRatio:  cfg.Dialogue.TieRatio,
	}, reg.Kinds(), fallback, log)
	extractor := parameterextractor.New(reg, resolver, assistant, log)

	// --- Zeebe (engine backend and/or job worker) ---
	var zeebe *camunda.Client
	if cfg.Engine.Mode == "zeebe" || cfg.Camunda.WorkerEnabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebe, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      10 * time.Second,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
				RetryConfig:            camunda.DefaultRetryConfig,
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer zeebe.Close()
		zapLog.Info("Zeebe client connected successfully")
	}

	// --- Analysis engine ---
	var engine analysisdispatcher.Engine
	if cfg.Engine.Mode == "zeebe" {
		engine = analysisdispatcher.NewZeebeEngine(zeebe, cfg.Camunda.ProcessID)
	} else {
		engine = analysisdispatcher.NewHTTPEngine(cfg.Engine.BaseURL, cfg.Engine.APIKey)
	}
	dispatcher, err := analysisdispatcher.New(analysisdispatcher.Config{
		AttemptTimeout: config.GetDuration(cfg.Engine.Timeout),
		MaxRetries:     cfg.Engine.MaxRetries,
		BackoffBase:    config.GetDuration(cfg.Engine.BackoffBase),
		BackoffMax:     config.GetDuration(cfg.Engine.BackoffMax),
	}, engine, reg, obs, log)
	if err != nil {
		zapLog.Fatal("dispatcher init failed", zap.Error(err))
	}
	zapLog.Info("Analysis engine configured", zap.String("mode", engine.Name()))

	// --- Session store ---
	var (
		store   models.SessionStore
		sweeper *session.Sweeper
	)
	ttl := config.GetDuration(cfg.Session.TTL)
	switch cfg.Session.Backend {
	case "redis":
		var redis *database.RedisClient
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		store = session.NewRedisStore(redis, cfg.Session.KeyPrefix, ttl)
		zapLog.Info("Redis session store connected")
	default:
		memory := session.NewMemoryStore(ttl)
		sweeper, err = session.NewSweeper(memory, cfg.Session.SweepSchedule, log)
		if err != nil {
			zapLog.Fatal("session sweeper init failed", zap.Error(err))
		}
		sweeper.Start()
		store = memory
		zapLog.Info("In-memory session store ready", zap.String("sweepSchedule", cfg.Session.SweepSchedule))
	}

	manager := dialoguemanager.New(dialoguemanager.Config{
		TurnCap:    cfg.Dialogue.TurnCap,
		BBoxBuffer: cfg.Locations.BBoxBuffer,
	}, dialoguemanager.Deps{
		Registry:   reg,
		Classifier: classifier,
		Extractor:  extractor,
		Dispatcher: dispatcher,
		Store:      store,
		Logger:     log,
	})

	// --- Optional run-geo-analysis worker ---
	var jobWorker *camunda.CamundaWorker
	if cfg.Camunda.WorkerEnabled {
		handler := rga.NewHandler(&rga.Config{
			EngineBaseURL: cfg.Engine.BaseURL,
			EngineAPIKey:  cfg.Engine.APIKey,
			Timeout:       config.GetDuration(cfg.Engine.Timeout),
		}, nil, log)
		jobWorker = camunda.NewWorker(zeebe.GetClient(), rga.TaskType, cfg.Camunda.MaxJobsActive, handler, zapLog)
	}

	// --- Chat API ---
	srv := server.New(cfg.Server, manager, store, reg, log)
	go func() {
		if err := srv.Start(); err != nil {
			zapLog.Fatal("chat API failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping chat API", zap.Error(err))
	}
	if jobWorker != nil {
		jobWorker.Stop(shutdownCtx)
	}
	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping meter provider", zap.Error(err))
	}

	zapLog.Info("Dialogue server stopped gracefully")
}

func loadLocations(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) ([]models.LocationRecord, error) {
	switch cfg.Locations.Source {
	case "csv":
		return locationresolver.LoadCSVFile(cfg.Locations.Path)
	case "postgres":
		var pg *database.PostgresClient
		err := retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(ctx, cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			return nil, err
		}
		defer pg.Close()
		return locationresolver.LoadPostgres(ctx, pg, cfg.Locations.Table)
	default:
		return locationresolver.LoadEmbedded()
	}
}
