// Command newsroom runs the editorial pipeline in-process, without the
// queue. Useful for local runs and debugging:
//
//	newsroom run "the future of container networking"
//	newsroom resume 931852632427136 "tighten the intro"
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"masthead.app/newsroom/common/arangodb"
	"masthead.app/newsroom/common/id"
	"masthead.app/newsroom/common/llm"
	"masthead.app/newsroom/common/logger"
	"masthead.app/newsroom/core/config"
	"masthead.app/newsroom/core/db"
	"masthead.app/newsroom/internal/controller"
	"masthead.app/newsroom/internal/desk"
	"masthead.app/newsroom/internal/memory"
	"masthead.app/newsroom/internal/model"
	"masthead.app/newsroom/internal/render"
	"masthead.app/newsroom/internal/research"
	"masthead.app/newsroom/internal/retry"
	"masthead.app/newsroom/internal/review"
	"masthead.app/newsroom/internal/search"
	"masthead.app/newsroom/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	logger.Setup(cfg)

	if err := id.Init(3); err != nil {
		fatal("failed to initialize id generator: %v", err)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		fatal("failed to connect to database: %v", err)
	}
	defer database.Close()

	runStore := store.NewPGRunStore(database)
	if err := runStore.EnsureSchema(ctx); err != nil {
		fatal("failed to ensure schema: %v", err)
	}

	arango, err := arangodb.New(ctx, arangodb.Config{
		URL:      cfg.ArangoDB.URL,
		Username: cfg.ArangoDB.Username,
		Password: cfg.ArangoDB.Password,
		Database: cfg.ArangoDB.Database,
	})
	if err != nil {
		fatal("failed to connect to arangodb: %v", err)
	}
	defer arango.Close()
	if err := arango.EnsureDatabase(ctx); err != nil {
		fatal("failed to ensure arangodb database: %v", err)
	}
	if err := arango.EnsureCollections(ctx); err != nil {
		fatal("failed to ensure arangodb collections: %v", err)
	}

	ctrl, err := buildController(ctx, cfg, runStore, arango)
	if err != nil {
		fatal("failed to build pipeline: %v", err)
	}

	start := time.Now()
	switch os.Args[1] {
	case "run":
		if len(os.Args) < 3 {
			usage()
		}
		topic := strings.TrimSpace(strings.Join(os.Args[2:], " "))
		if topic == "" {
			usage()
		}

		run := &model.Run{ID: id.New(), Topic: topic, Status: model.RunStatusQueued}
		if err := runStore.CreateRun(ctx, run); err != nil {
			fatal("failed to create run: %v", err)
		}
		fmt.Printf("run %d: %s\n", run.ID, run.Topic)

		if err := ctrl.Run(ctx, run); err != nil {
			fatal("run %d failed: %v", run.ID, err)
		}
		report(ctx, runStore, run.ID, start)

	case "resume":
		if len(os.Args) < 3 {
			usage()
		}
		runID, err := strconv.ParseInt(os.Args[2], 10, 64)
		if err != nil {
			fatal("invalid run id %q", os.Args[2])
		}
		feedback := strings.TrimSpace(strings.Join(os.Args[3:], " "))

		if err := ctrl.Resume(ctx, runID, feedback); err != nil {
			fatal("resume of run %d failed: %v", runID, err)
		}
		report(ctx, runStore, runID, start)

	default:
		usage()
	}
}

func report(ctx context.Context, runStore store.RunStore, runID int64, start time.Time) {
	run, err := runStore.GetRun(ctx, runID)
	if err != nil {
		fatal("failed to fetch run %d: %v", runID, err)
	}
	fmt.Printf("run %d finished: status=%s elapsed=%s\n", run.ID, run.Status, time.Since(start).Round(time.Second))
	if run.Error != nil {
		fmt.Printf("warning: %s\n", *run.Error)
	}
}

// buildController mirrors the worker wiring minus the queue.
func buildController(ctx context.Context, cfg config.Config, runStore store.RunStore, arango arangodb.Client) (*controller.Controller, error) {
	agentExec := retry.New(desk.AgentRetryPolicy(cfg.Editorial.AgentMaxAttempts, cfg.Editorial.AgentBaseDelay))

	clients := map[string]config.LLMConfig{
		"writer":       cfg.WriterLLM,
		"editor":       cfg.EditorLLM,
		"fact_checker": cfg.FactCheckerLLM,
		"authenticity": cfg.AuthenticityLLM,
		"humanizer":    cfg.HumanizerLLM,
		"analyst":      cfg.AnalystLLM,
	}
	built := make(map[string]llm.Client, len(clients))
	for name, c := range clients {
		client, err := llm.New(llm.Config{APIKey: c.APIKey, BaseURL: c.BaseURL, Model: c.Model, MaxTokens: c.MaxTokens})
		if err != nil {
			return nil, fmt.Errorf("%s llm: %w", name, err)
		}
		built[name] = client
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
	} else {
		slog.WarnContext(ctx, "tavily disabled, research uses the knowledge base only")
	}

	loop := research.NewLoop(desk.NewAnalyst(built["analyst"], agentExec), search.NewMulti(retry.New(search.TransportRetryPolicy()), sources...), mem, research.Config{
		MaxIterations:       cfg.Research.MaxIterations,
		ConfidenceThreshold: cfg.Research.ConfidenceThreshold,
	})

	factChecker, err := desk.NewFactChecker(built["fact_checker"], agentExec)
	if err != nil {
		return nil, fmt.Errorf("fact checker: %w", err)
	}
	aggregator := review.NewAggregator(cfg.Editorial.ReviewTimeoutPerRole,
		desk.NewEditor(built["editor"], agentExec),
		factChecker,
		desk.NewAuthenticity(built["authenticity"], agentExec),
	)

	var artifacts store.ArtifactStore
	if cfg.Artifact.S3Enabled() {
		artifacts, err = store.NewS3ArtifactStore(ctx, store.S3Config{
			Endpoint:  cfg.Artifact.S3Endpoint,
			AccessKey: cfg.Artifact.S3AccessKey,
			SecretKey: cfg.Artifact.S3SecretKey,
			Bucket:    cfg.Artifact.S3Bucket,
			UseSSL:    cfg.Artifact.S3UseSSL,
		})
	} else {
		artifacts, err = store.NewLocalArtifactStore(cfg.Artifact.Dir)
	}
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
		desk.NewWriter(built["writer"], agentExec),
		aggregator,
		desk.NewHumanizer(built["humanizer"], agentExec),
		render.New(),
		workflowExec,
		controller.Config{
			MaxRevisions: cfg.Editorial.MaxRevisions,
			RunDeadline:  cfg.Editorial.RunDeadline,
		},
	), nil
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  newsroom run <topic words...>
  newsroom resume <run-id> [feedback words...]`)
	os.Exit(2)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
