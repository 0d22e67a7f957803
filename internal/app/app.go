// Package app wires the extraction engine's collaborators into a single
// App struct, adapted from the teacher's internal/app.App (a single struct
// holding every service, built once at startup and shared by every
// entrypoint).
package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/lorekeeper/extractor/internal/common"
	"github.com/lorekeeper/extractor/internal/core/agents"
	"github.com/lorekeeper/extractor/internal/core/costmeter"
	"github.com/lorekeeper/extractor/internal/core/fewshot"
	"github.com/lorekeeper/extractor/internal/core/orchestrator"
	"github.com/lorekeeper/extractor/internal/domparse"
	"github.com/lorekeeper/extractor/internal/fetcher"
	"github.com/lorekeeper/extractor/internal/llm"
	"github.com/lorekeeper/extractor/internal/storage/sqlite"
)

// App holds every wired component for one process lifetime.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	DB         *sqlite.DB
	Selectors  *sqlite.SelectorStore
	Decisions  *sqlite.DecisionLogStore
	CostStore  *sqlite.CostMeterStore

	LLM    *llm.Factory
	Meter  *costmeter.Meter
	Engine *orchestrator.Engine
}

// New builds and wires every collaborator: SQLite connection and stores,
// the LLM factory, cost meter, few-shot retriever, proposer/validator
// agents, and finally the orchestration Engine.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	db, err := sqlite.Open(cfg.Storage.SQLitePath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	selectors := sqlite.NewSelectorStore(db)
	decisions := sqlite.NewDecisionLogStore(db)
	costStore := sqlite.NewCostMeterStore(db)

	factory := llm.NewFactory(cfg.Claude, cfg.Gemini, logger)
	meter := costmeter.NewMeter(costStore)
	retriever := &fewshot.Retriever{Store: selectors}

	proposer := &agents.Proposer{
		Factory:       factory,
		Provider:      llm.Provider(cfg.Extraction.ProposerProvider),
		Model:         cfg.Extraction.ProposerModel,
		FallbackModel: cfg.Extraction.ProposerFallbackModel,
		HTMLMax:       cfg.Extraction.ProposerHTMLMax,
		Meter:         meter,
		Logger:        logger,
	}
	validator := &agents.Validator{
		Factory:       factory,
		Provider:      llm.Provider(cfg.Extraction.ValidatorProvider),
		Model:         cfg.Extraction.ValidatorModel,
		FallbackModel: cfg.Extraction.ValidatorFallbackModel,
		HTMLMax:       cfg.Extraction.DiscovererHTMLMax,
		Meter:         meter,
		Logger:        logger,
	}

	httpFetcher := fetcher.NewHTTPFetcher("lorekeeper-extractor/1.0", time.Duration(cfg.Extraction.RequestTimeoutSeconds)*time.Second)

	engine := orchestrator.NewEngine(
		httpFetcher,
		domparse.GoqueryParser{},
		selectors,
		decisions,
		costStore,
		meter,
		retriever,
		proposer,
		validator,
		cfg.Extraction,
		logger,
	)

	return &App{
		Config: cfg, Logger: logger,
		DB: db, Selectors: selectors, Decisions: decisions, CostStore: costStore,
		LLM: factory, Meter: meter, Engine: engine,
	}, nil
}

// Close releases the app's held resources.
func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}

