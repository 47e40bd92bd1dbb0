package crawler

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
)

// Capability tags an engine can advertise (spec §4.1)
const (
	CapabilityJavaScriptRendering = "javascript_rendering"
	CapabilityAntiBotBypass       = "anti_bot_bypass"
	CapabilityFastStatic          = "fast_static"
	CapabilityBulkProcessing      = "bulk_processing"
	CapabilityPremiumService      = "premium_service"
	CapabilityInfiniteScroll      = "infinite_scroll"
	CapabilityAIExtraction        = "ai_extraction"
)

// Engine is the adapter contract every crawl engine implements (spec §4.1).
type Engine interface {
	Name() string
	Initialize(ctx context.Context) error
	Cleanup() error
	Capabilities() []string
	Crawl(ctx context.Context, url string, strategy CrawlStrategy) (CrawlResult, error)
	CrawlWithRetry(ctx context.Context, url string, strategy CrawlStrategy) (CrawlResult, error)
}

// Registry is the process-wide name -> Engine map, populated once at startup.
// Engines whose Initialize fails are dropped, not recorded as broken (spec §3).
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
	logger  arbor.ILogger
}

// NewRegistry creates an empty engine registry.
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		engines: make(map[string]Engine),
		logger:  logger,
	}
}

// Register initializes an engine and adds it to the registry on success.
// A failed Initialize drops the engine silently from the registry (with a
// log line) rather than recording it as broken, per the §3 registry contract.
func (r *Registry) Register(ctx context.Context, e Engine) {
	if err := e.Initialize(ctx); err != nil {
		r.logger.Warn().Str("engine", e.Name()).Err(err).Msg("Engine failed to initialize, dropping from registry")
		return
	}
	r.mu.Lock()
	r.engines[e.Name()] = e
	r.mu.Unlock()
	r.logger.Info().Str("engine", e.Name()).Strs("capabilities", e.Capabilities()).Msg("Engine registered")
}

// Get returns the engine for name, or false if it isn't registered.
func (r *Registry) Get(name string) (Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.engines[name]
	return e, ok
}

// Names returns the currently registered engine names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	return names
}

// Status reports each registered engine's capabilities, for GET /engines/status.
func (r *Registry) Status() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string][]string, len(r.engines))
	for name, e := range r.engines {
		out[name] = e.Capabilities()
	}
	return out
}

// CleanupAll calls Cleanup on every registered engine, collecting errors.
func (r *Registry) CleanupAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var firstErr error
	for name, e := range r.engines {
		if err := e.Cleanup(); err != nil {
			r.logger.Warn().Str("engine", name).Err(err).Msg("Engine cleanup failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("engine %s cleanup: %w", name, err)
			}
		}
	}
	return firstErr
}
