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

	"masthead.app/newsroom/common/arangodb"
	"masthead.app/newsroom/common/id"
	"masthead.app/newsroom/common/llm"
	"masthead.app/newsroom/common/logger"
	"masthead.app/newsroom/common/otel"
	"masthead.app/newsroom/core/config"
	"masthead.app/newsroom/core/db"
	"masthead.app/newsroom/internal/controller"
	"masthead.app/newsroom/internal/desk"
	"masthead.app/newsroom/internal/memory"
	"masthead.app/newsroom/internal/queue"
	"masthead.app/newsroom/internal/render"
	"masthead.app/newsroom/internal/research"
	"masthead.app/newsroom/internal/retry"
	"masthead.app/newsroom/internal/review"
	"masthead.app/newsroom/internal/search"
	"masthead.app/newsroom/internal/store"
	"masthead.app/newsroom/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "newsroom worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Pipeline.RedisGroup,
		"consumer_name", cfg.Pipeline.RedisConsumer)

	// Different node ID than the server so snowflake IDs never collide.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	runStore := store.NewPGRunStore(database)
	if err := runStore.EnsureSchema(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure schema", "error", err)
		os.Exit(1)
	}

	arango, err := arangodb.New(ctx, arangodb.Config{
		URL:      cfg.ArangoDB.URL,
		Username: cfg.ArangoDB.Username,
		Password: cfg.ArangoDB.Password,
		Database: cfg.ArangoDB.Database,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to arangodb", "error", err)
		os.Exit(1)
	}
	defer arango.Close()
	if err := arango.EnsureDatabase(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure arangodb database", "error", err)
		os.Exit(1)
	}
	if err := arango.EnsureCollections(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure arangodb collections", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "arangodb connected", "database", cfg.ArangoDB.Database)

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
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Pipeline.RedisStream)

	ctrl, err := buildController(ctx, cfg, runStore, arango)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build pipeline", "error", err)
		os.Exit(1)
	}

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Pipeline.RedisStream,
		Group:        cfg.Pipeline.RedisGroup,
		Consumer:     cfg.Pipeline.RedisConsumer,
		DLQStream:    cfg.Pipeline.RedisDLQStream,
		BatchSize:    1, // One run at a time; a run can hold the worker for a long while
		Block:        5 * time.Second,
		MaxAttempts:  3,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	processor := worker.NewPipelineProcessor(ctrl, runStore)

	w := worker.New(consumer, processor, worker.Config{
		MaxAttempts: 3,
	})

	reclaimer := worker.NewRedisReclaimer(redisClient, worker.RedisReclaimerConfig{
		Stream:    cfg.Pipeline.RedisStream,
		Group:     cfg.Pipeline.RedisGroup,
		Consumer:  cfg.Pipeline.RedisConsumer + "-reclaimer",
		MinIdle:   2 * time.Hour,
		Interval:  5 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

// buildController wires the research loop, the writing desk, the review
// panel, and the stores into one pipeline controller.
func buildController(ctx context.Context, cfg config.Config, runStore store.RunStore, arango arangodb.Client) (*controller.Controller, error) {
	agentExec := retry.New(desk.AgentRetryPolicy(cfg.Editorial.AgentMaxAttempts, cfg.Editorial.AgentBaseDelay))

	writerLLM, err := newLLM(cfg.WriterLLM)
	if err != nil {
		return nil, fmt.Errorf("writer llm: %w", err)
	}
	editorLLM, err := newLLM(cfg.EditorLLM)
	if err != nil {
		return nil, fmt.Errorf("editor llm: %w", err)
	}
	factLLM, err := newLLM(cfg.FactCheckerLLM)
	if err != nil {
		return nil, fmt.Errorf("fact checker llm: %w", err)
	}
	authLLM, err := newLLM(cfg.AuthenticityLLM)
	if err != nil {
		return nil, fmt.Errorf("authenticity llm: %w", err)
	}
	humanizerLLM, err := newLLM(cfg.HumanizerLLM)
	if err != nil {
		return nil, fmt.Errorf("humanizer llm: %w", err)
	}
	analystLLM, err := newLLM(cfg.AnalystLLM)
	if err != nil {
		return nil, fmt.Errorf("analyst llm: %w", err)
	}

	mem := memory.New(arango)

	sources := []search.Searcher{search.NewKnowledgeBase(arango)}
	if cfg.Search.TavilyEnabled() {
		tavily, err := search.NewTavily(search.TavilyConfig{
			APIKey:  cfg.Search.TavilyAPIKey,
			BaseURL: cfg.Search.TavilyBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("tavily: %w", err)
		}
		sources = append(sources, tavily)
		slog.InfoContext(ctx, "tavily search enabled")
	} else {
		slog.WarnContext(ctx, "tavily disabled, research uses the knowledge base only")
	}

	loop := research.NewLoop(desk.NewAnalyst(analystLLM, agentExec), search.NewMulti(retry.New(search.TransportRetryPolicy()), sources...), mem, research.Config{
		MaxIterations:       cfg.Research.MaxIterations,
		ConfidenceThreshold: cfg.Research.ConfidenceThreshold,
	})

	factChecker, err := desk.NewFactChecker(factLLM, agentExec)
	if err != nil {
		return nil, fmt.Errorf("fact checker: %w", err)
	}
	aggregator := review.NewAggregator(cfg.Editorial.ReviewTimeoutPerRole,
		desk.NewEditor(editorLLM, agentExec),
		factChecker,
		desk.NewAuthenticity(authLLM, agentExec),
	)

	artifacts, err := newArtifactStore(ctx, cfg.Artifact)
	if err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}

	workflowExec := retry.New(controller.WorkflowRetryPolicy(
		cfg.Editorial.WorkflowMaxAttempts,
		cfg.Editorial.WorkflowBaseDelay,
		cfg.Editorial.WorkflowMultiplier,
	))

	return controller.New(
		runStore,
		artifacts,
		mem,
		loop,
		desk.NewWriter(writerLLM, agentExec),
		aggregator,
		desk.NewHumanizer(humanizerLLM, agentExec),
		render.New(),
		workflowExec,
		controller.Config{
			MaxRevisions: cfg.Editorial.MaxRevisions,
			RunDeadline:  cfg.Editorial.RunDeadline,
		},
	), nil
}

func newLLM(cfg config.LLMConfig) (llm.Client, error) {
	return llm.New(llm.Config{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	})
}

func newArtifactStore(ctx context.Context, cfg config.ArtifactConfig) (store.ArtifactStore, error) {
	if cfg.S3Enabled() {
		return store.NewS3ArtifactStore(ctx, store.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
	}
	return store.NewLocalArtifactStore(cfg.Dir)
}

const banner = `
███╗   ██╗███████╗██╗    ██╗███████╗██████╗  ██████╗  ██████╗ ███╗   ███╗
████╗  ██║██╔════╝██║    ██║██╔════╝██╔══██╗██╔═══██╗██╔═══██╗████╗ ████║
██╔██╗ ██║█████╗  ██║ █╗ ██║███████╗██████╔╝██║   ██║██║   ██║██╔████╔██║
██║╚██╗██║██╔══╝  ██║███╗██║╚════██║██╔══██╗██║   ██║██║   ██║██║╚██╔╝██║
██║ ╚████║███████╗╚███╔███╔╝███████║██║  ██║╚██████╔╝╚██████╔╝██║ ╚═╝ ██║
╚═╝  ╚═══╝╚══════╝ ╚══╝╚══╝ ╚══════╝╚═╝  ╚═╝ ╚═════╝  ╚═════╝ ╚═╝     ╚═╝
                                                            W O R K E R
`
