package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yabrams/precon-demo-sub001/common/id"
	"github.com/yabrams/precon-demo-sub001/common/llm"
	"github.com/yabrams/precon-demo-sub001/common/logger"
	"github.com/yabrams/precon-demo-sub001/common/otel"
	"github.com/yabrams/precon-demo-sub001/core/config"
	"github.com/yabrams/precon-demo-sub001/core/db"
	"github.com/yabrams/precon-demo-sub001/internal/docs"
	"github.com/yabrams/precon-demo-sub001/internal/pipeline"
	"github.com/yabrams/precon-demo-sub001/internal/queue"
	"github.com/yabrams/precon-demo-sub001/internal/store"
	"github.com/yabrams/precon-demo-sub001/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet, OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "extraction worker starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Pipeline.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	consumerName := cfg.Pipeline.RedisConsumer
	if consumerName == "" || consumerName == "api-server" {
		hostname, _ := os.Hostname()
		consumerName = "worker-" + hostname
	}

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     consumerName,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    1,
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Pipeline.MaxAttempts,
		RequeueDelay: 1 * time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create redis consumer", "error", err)
		os.Exit(1)
	}

	primary, err := llm.NewClient(llmConfig(cfg.PrimaryLLM))
	if err != nil {
		slog.ErrorContext(ctx, "failed to create primary llm client", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "primary llm client ready", "provider", cfg.PrimaryLLM.Provider, "model", primary.Model())

	var validator llm.Client
	if cfg.ValidationLLM.Enabled() {
		validator, err = llm.NewClient(llmConfig(cfg.ValidationLLM))
		if err != nil {
			slog.ErrorContext(ctx, "failed to create validation llm client", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "validation llm client ready", "provider", cfg.ValidationLLM.Provider, "model", validator.Model())
	} else {
		slog.InfoContext(ctx, "no validation llm configured, cross-validation will self-validate")
	}

	sessions := store.NewPgExtractionStore(database)
	pipe := pipeline.New(pipeline.Deps{
		Primary:   primary,
		Validator: validator,
		Documents: docs.NewProvider(),
		Store:     sessions,
	})

	w := worker.New(consumer, sessions, pipe, worker.Config{
		MaxAttempts: cfg.Pipeline.MaxAttempts,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  consumerName + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go reclaimer.Run(ctx)

	slog.InfoContext(ctx, "worker running",
		"stream", cfg.Pipeline.RedisStream,
		"group", cfg.Pipeline.RedisGroup,
		"consumer", consumerName,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.InfoContext(ctx, "shutting down...")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker stopped with error", "error", err)
		}
	}

	reclaimer.Stop()
	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func llmConfig(cfg config.LLMConfig) llm.Config {
	return llm.Config{
		Provider:  cfg.Provider,
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}
}

const banner = `
██╗    ██╗ ██████╗ ██████╗ ██╗  ██╗███████╗██████╗
██║    ██║██╔═══██╗██╔══██╗██║ ██╔╝██╔════╝██╔══██╗
██║ █╗ ██║██║   ██║██████╔╝█████╔╝ █████╗  ██████╔╝
██║███╗██║██║   ██║██╔══██╗██╔═██╗ ██╔══╝  ██╔══██╗
╚███╔███╔╝╚██████╔╝██║  ██║██║  ██╗███████╗██║  ██║
 ╚══╝╚══╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝
`
