// Package app wires repositories, collectors, detectors and services from
// configuration. Both binaries build on it.
package app

import (
	"context"
	"fmt"

	"github.com/ai-devops/loganomaly/internal/ai"
	"github.com/ai-devops/loganomaly/internal/collector"
	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/ai-devops/loganomaly/internal/detection"
	"github.com/ai-devops/loganomaly/internal/domain"
	"github.com/ai-devops/loganomaly/internal/events"
	"github.com/ai-devops/loganomaly/internal/repository"
	"github.com/ai-devops/loganomaly/internal/rules"
	"github.com/ai-devops/loganomaly/internal/service"
	"github.com/ai-devops/loganomaly/pkg/sanitizer"
	"go.uber.org/zap"
)

// App holds the wired components.
type App struct {
	Sources  repository.LogSourceRepository
	Entries  repository.LogEntryRepository
	Sessions repository.SessionRepository
	Results  repository.AnalysisResultRepository

	Bus        *events.Bus
	Collectors *collector.Registry
	Detectors  *detection.Selector

	Orchestrator   *service.Orchestrator
	SourceService  *service.SourceService
	CollectService *service.CollectService
	SessionService *service.SessionService
	ReportService  *service.ReportService

	// Checks are the readiness probes keyed by dependency name.
	Checks map[string]func(ctx context.Context) error

	store      *repository.Store
	dispatcher *events.Dispatcher
	logger     *zap.Logger
}

// New builds an App for cfg. The caller must call Close.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Bus:    events.NewBus(logger),
		Checks: make(map[string]func(ctx context.Context) error),
		logger: logger.Named("app"),
	}
	events.RegisterLogging(a.Bus, logger)
	events.RegisterMetrics(a.Bus)

	var publisher events.Publisher = a.Bus
	switch cfg.Storage.Driver {
	case config.StorageSQLite:
		store, err := repository.OpenSQLite(ctx, cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.store = store
		cached, err := repository.NewCachedSourceRepository(store.Sources(), cfg.Storage.SourceCacheSize)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("create source cache: %w", err)
		}
		a.Sources = cached
		a.Entries = store.Entries()
		a.Sessions = store.Sessions()
		a.Results = store.Results()
		a.Checks["storage"] = store.Ping

		outbox := store.Outbox()
		publisher = events.NewOutboxPublisher(outbox)
		a.dispatcher = events.NewDispatcher(outbox, a.Bus, cfg.Storage.OutboxPollInterval, cfg.Storage.OutboxBatchSize, logger)
	default:
		a.Sources = repository.NewMemorySourceRepository()
		a.Entries = repository.NewMemoryEntryRepository()
		a.Sessions = repository.NewMemorySessionRepository()
		a.Results = repository.NewMemoryResultRepository()
	}

	a.Collectors = collector.NewDefaultRegistry(a.Sources, &cfg.Collector, logger)

	llm, err := newLLMDetector(cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	if hc, ok := llm.(ai.HealthChecker); ok && !cfg.AI.MockMode {
		a.Checks["ai"] = hc.HealthCheck
	}

	a.Detectors = detection.NewSelector(detection.NewEngine(logger))
	a.Detectors.Register(domain.ModelRuleBased, rules.NewEngine(rules.DefaultRules(), logger))
	a.Detectors.Register(domain.ModelLLMBased, llm)

	a.Orchestrator = service.NewOrchestrator(
		a.Sources, a.Sessions, a.Results,
		a.Collectors, a.Detectors, publisher,
		cfg.Detection, logger,
	)
	a.SourceService = service.NewSourceService(a.Sources, a.Collectors, logger)
	a.CollectService = service.NewCollectService(a.Sources, a.Entries, a.Collectors, logger)
	a.SessionService = service.NewSessionService(a.Sessions)
	a.ReportService = service.NewReportService(a.Results, a.Sources, logger)

	a.logger.Info("application wired",
		zap.String("storage", string(cfg.Storage.Driver)),
		zap.Bool("ai_mock_mode", cfg.AI.MockMode),
	)
	return a, nil
}

func newLLMDetector(cfg *config.Config, logger *zap.Logger) (detection.Detector, error) {
	if cfg.AI.MockMode {
		logger.Warn("running in mock mode - LLM detection is simulated")
		return ai.NewMockDetector(logger), nil
	}
	prompter, err := ai.NewDefaultPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("create prompt builder: %w", err)
	}
	return ai.NewOpenAIDetector(&cfg.AI, prompter, ai.NewDefaultValidator(),
		sanitizer.New(cfg.Processing.MaxLogSize), logger), nil
}

// Run relays persisted events until ctx is done. It returns immediately
// for in-memory storage, where events go to the bus directly.
func (a *App) Run(ctx context.Context) {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.Run(ctx)
}

// Close releases the storage backend.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}
