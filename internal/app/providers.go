// Package app wires evalforge's configuration, database connections, and
// domain services into a single process, the way the teacher platform's
// internal/app/providers.go composes its dependency graph by hand rather
// than through a DI framework.
package app

import (
	"fmt"
	"log/slog"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"evalforge/internal/adapters"
	"evalforge/internal/config"
	evalsvc "evalforge/internal/core/services/eval"
	guardrailsvc "evalforge/internal/core/services/guardrail"
	"evalforge/internal/infrastructure/database"
	evalrepo "evalforge/internal/infrastructure/repository/eval"
	"evalforge/internal/scheduler"
	"evalforge/internal/scorers"
	dialects "evalforge/internal/scorers/template"
	"evalforge/internal/sinks"
	workerseval "evalforge/internal/workers/eval"
	"evalforge/pkg/logging"
)

// Providers holds every constructed dependency the server/worker modes
// share, mirroring the shape (if not the scale) of the teacher's
// ProviderContainer.
type Providers struct {
	Config *config.Config
	Logger *slog.Logger

	Postgres *database.PostgresDB
	Redis    *database.RedisDB

	Registries      *evalsvc.Registries
	TaskStore       *evalrepo.TaskStore
	Engine          *evalsvc.Engine
	TaskManager     *evalsvc.TaskManager
	Baselines       *evalsvc.BaselineRegistry
	Comparer        *evalsvc.ComparisonEngine
	Workflow        *workerseval.Workflow
	Pool            *workerseval.Pool
	Scheduler       *scheduler.Scheduler
	GuardrailEngine *guardrailsvc.Engine
	GuardrailReg    *guardrailsvc.Registry
}

// newLogger builds the slog.Logger the rest of the process shares, via
// the teacher's pkg/logging handler split (tint for text, JSON for prod).
func newLogger(cfg *config.Config) *slog.Logger {
	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)
	return logger.With("app", cfg.App.Name, "env", cfg.App.Environment)
}

// NewProviders constructs the full dependency graph for deploymentMode.
// Worker mode additionally dials Redis, used as the Pool's distributed
// claim lock so more than one worker process can poll the same task
// store without double-executing a task (§4.6 "Shared-resource policy"),
// and builds the poll-driven task Pool and cron Scheduler; run mode only
// needs the Engine.
func NewProviders(cfg *config.Config, mode DeploymentMode) (*Providers, error) {
	logger := newLogger(cfg)

	pg, err := database.NewPostgresDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	traceStore := adapters.NewMemoryTraceStore()
	tracingAdapter := adapters.NewTracingAdapter(traceStore)
	registries := buildRegistries(logger, traceStore, tracingAdapter)

	taskStore := evalrepo.NewTaskStore(pg.DB)
	engine := evalsvc.NewEngine(registries, logger, evalsvc.EngineConfig{
		ConcurrencyLimit: cfg.Engine.ConcurrencyLimit,
	}).
		WithTracingAdapter(tracingAdapter).
		WithEnrichedOutputWrapper(func(s evalsvc.Scorer) evalsvc.Scorer {
			return scorers.NewEnrichedOutputScorer(s)
		})

	loader := evalsvc.NewSourceLoader(evalsvc.NewCSVLoader("")).
		WithScheme("csv", evalsvc.NewCSVLoader("")).
		WithScheme("jsonl", evalsvc.NewJSONLLoader("")).
		WithScheme("trace", evalsvc.NewTraceLoader(tracingAdapter, nil))

	baselines := evalsvc.NewBaselineRegistry()
	comparer := evalsvc.NewComparisonEngine(cfg.Engine.ComparisonThreshold)
	taskManager := evalsvc.NewTaskManager(taskStore, loader, engine, logger).
		WithTransactor(database.NewTransactor(pg.DB)).
		WithBaselines(baselines, comparer)

	guardrailRegistry := guardrailsvc.NewRegistry()
	guardrailFactory, err := guardrailsvc.NewScorerFactory(128)
	if err != nil {
		return nil, fmt.Errorf("build guardrail scorer factory: %w", err)
	}
	guardrailEngine := guardrailsvc.NewEngine(guardrailRegistry, guardrailFactory)

	p := &Providers{
		Config:          cfg,
		Logger:          logger,
		Postgres:        pg,
		Registries:      registries,
		TaskStore:       taskStore,
		Engine:          engine,
		TaskManager:     taskManager,
		Baselines:       baselines,
		Comparer:        comparer,
		GuardrailEngine: guardrailEngine,
		GuardrailReg:    guardrailRegistry,
	}

	if mode == ModeWorker {
		redisDB, err := database.NewRedisDB(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		p.Redis = redisDB

		p.Workflow = workerseval.NewWorkflow(loader, engine, logger)
		p.Pool = workerseval.NewPool(taskManager, taskStore, logger, workerseval.PoolConfig{
			MaxConcurrent: cfg.Workers.MaxConcurrent,
			PollInterval:  cfg.Workers.PollInterval,
		}).WithClaimLocker(redisDB)
		p.Scheduler = scheduler.New(taskManager, logger)
	}

	return p, nil
}

// buildRegistries registers every built-in Adapter, Scorer, and Sink
// (§4.2-§4.4) evalforge ships, the way the teacher's ProvideCore wires
// its provider registry. A missing OPENAI_API_KEY only disables the
// model-backed adapters/scorers; offline scoring (trace replay, exact
// match, regex, keyword) still works.
func buildRegistries(logger *slog.Logger, traceStore *adapters.MemoryTraceStore, tracingAdapter *adapters.TracingAdapter) *evalsvc.Registries {
	registries := evalsvc.NewRegistries()

	registries.Adapters.Register("trace", adapters.NewTraceReadingAdapter(tracingAdapter))

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		client := openai.NewClient(apiKey)
		registries.Adapters.Register("http", adapters.NewHTTPAdapter(client, "gpt-4o-mini"))
		registries.Adapters.Register("sse", adapters.NewSSEAdapter(client, "gpt-4o-mini"))
		registries.Scorers.Register("llm-judge", scorers.NewLLMJudgeScorer(
			"llm-judge", client, "gpt-4o-mini", defaultJudgeTemplate, dialects.DialectAuto))
	} else {
		logger.Warn("OPENAI_API_KEY not set: http, sse, and llm-judge components are unavailable")
	}

	registries.Scorers.Register("exact-match", scorers.NewExactMatchScorer())
	registries.Scorers.Register("contains", scorers.NewContainsScorer())
	registries.Scorers.Register("tool-call-accuracy", scorers.NewToolCallAccuracyScorer())
	registries.Scorers.Register("step-selection", scorers.NewStepSelectionScorer())
	registries.Scorers.Register("parameter-correctness", scorers.NewParameterCorrectnessScorer())

	if regexScorer, err := scorers.NewRegexScorer("pii-regex", scorers.PIIPatterns); err == nil {
		registries.Scorers.Register("pii-regex", regexScorer)
	}
	registries.Scorers.Register("keyword", scorers.NewKeywordScorer("keyword", defaultBlockedKeywords))

	registries.Sinks.Register("console", sinks.NewConsoleSink(os.Stdout, logger))
	registries.Sinks.Register("csv", sinks.NewCSVSink(os.Stdout))
	registries.Sinks.Register("json", sinks.NewJSONSink(os.Stdout))
	registries.Sinks.Register("junit", sinks.NewJUnitSink(os.Stdout))
	registries.Sinks.Register("html", sinks.NewHTMLSink(os.Stdout))
	registries.Sinks.Register("feedback", sinks.NewFeedbackSink())
	registries.Sinks.Register("observability", sinks.NewObservabilitySink(traceStore))

	return registries
}

const defaultJudgeTemplate = `Rate the response's quality from 0 to 1.

Prompt: {{input}}
Response: {{output}}

Respond with just the number.`

var defaultBlockedKeywords = []string{"password", "ssn", "api_key"}
