// -----------------------------------------------------------------------
// Last Modified: Thursday, 9th October 2025 8:53:55 am
// Modified By: Bob McAllan
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/parkseohuinim/ai-crawler/internal/common"
	"github.com/parkseohuinim/ai-crawler/internal/handlers"
	"github.com/parkseohuinim/ai-crawler/internal/services/crawler"
)

// App holds all application components and dependencies.
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Crawl orchestration
	Registry     *crawler.Registry
	Analyzer     *crawler.SiteAnalyzer
	Builder      *crawler.StrategyBuilder
	Orchestrator *crawler.Orchestrator
	PostProc     *crawler.TextPostProcessor
	Extractor    *crawler.ContentExtractor
	IntentRouter *crawler.IntentRouter
	BulkJobs     *crawler.BulkJobManager

	// HTTP handlers
	WSHandler    *handlers.WebSocketHandler
	CrawlHandler *handlers.CrawlHandler
}

// New initializes the application with all dependencies, wiring the four
// engine adapters into the registry, then the analyzer -> strategy builder
// -> orchestrator -> bulk job manager chain (spec §2/§4).
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// WebSocket Progress Hub, created early: the bulk job manager publishes
	// through it. Its status broadcaster and log streamer are started at the
	// end of New, once the handlers are wired.
	app.WSHandler = handlers.NewWebSocketHandler(logger, &cfg.WebSocket)

	if err := app.initCrawler(); err != nil {
		return nil, fmt.Errorf("failed to initialize crawl orchestration: %w", err)
	}

	app.CrawlHandler = handlers.NewCrawlHandler(
		app.Registry,
		app.Analyzer,
		app.Builder,
		app.Orchestrator,
		app.BulkJobs,
		app.PostProc,
		app.Extractor,
		app.IntentRouter,
		app.Logger,
	)

	app.WSHandler.StartStatusBroadcaster()
	app.WSHandler.StartLogStreamer()

	logger.Info().
		Strs("engines", app.Registry.Names()).
		Int("max_concurrent", cfg.Jobs.MaxConcurrent).
		Msg("Application initialization complete")

	return app, nil
}

// initCrawler registers the four engine adapters, then wires the
// analyzer -> strategy builder -> orchestrator -> bulk job manager chain
// (spec §4.1-§4.5).
func (a *App) initCrawler() error {
	ctx := context.Background()

	a.Registry = crawler.NewRegistry(a.Logger)
	a.Registry.Register(ctx, crawler.NewHTTPEngine(a.Config.Crawler, a.Logger))
	a.Registry.Register(ctx, crawler.NewBrowserEngine(a.Config.Crawler, a.Logger))
	a.Registry.Register(ctx, crawler.NewAIEngine(a.Config.Claude, a.Logger))
	a.Registry.Register(ctx, crawler.NewPremiumEngine(a.Config.Gemini, a.Config.Crawler.PremiumSearchTopN, a.Logger))

	if len(a.Registry.Names()) == 0 {
		a.Logger.Warn().Msg("No crawl engines registered; every crawl will fail until credentials/config are fixed")
	}

	a.Analyzer = crawler.NewSiteAnalyzer(a.Logger)
	a.Builder = crawler.NewStrategyBuilder(a.Registry)
	a.Orchestrator = crawler.NewOrchestrator(a.Registry, a.Analyzer, a.Builder, a.Logger)
	a.PostProc = crawler.NewTextPostProcessor()
	a.Extractor = crawler.NewContentExtractor()
	a.IntentRouter = crawler.NewIntentRouter()

	a.BulkJobs = crawler.NewBulkJobManager(
		a.Orchestrator,
		a.PostProc,
		a.WSHandler,
		a.Config.Jobs.ResultFileDir,
		a.Config.Jobs.SweepSchedule,
		a.Logger,
	)

	return nil
}

// Close shuts down every registered engine adapter.
func (a *App) Close() error {
	if a.Registry != nil {
		if err := a.Registry.CleanupAll(); err != nil {
			a.Logger.Warn().Err(err).Msg("Engine cleanup reported errors")
		}
	}
	a.Logger.Info().Msg("Flushing context logs")
	common.Stop()
	return nil
}
