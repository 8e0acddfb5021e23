package main

import (
	"fmt"
	"log/slog"

	"github.com/danielpatrickdp/taste-genome/internal/analysis"
	"github.com/danielpatrickdp/taste-genome/internal/catalog"
	"github.com/danielpatrickdp/taste-genome/internal/codec"
	"github.com/danielpatrickdp/taste-genome/internal/config"
	"github.com/danielpatrickdp/taste-genome/internal/conviction"
	"github.com/danielpatrickdp/taste-genome/internal/eval"
	"github.com/danielpatrickdp/taste-genome/internal/events"
	"github.com/danielpatrickdp/taste-genome/internal/gate"
	"github.com/danielpatrickdp/taste-genome/internal/logging"
	"github.com/danielpatrickdp/taste-genome/internal/metrics"
	"github.com/danielpatrickdp/taste-genome/internal/orchestrator"
	"github.com/danielpatrickdp/taste-genome/internal/state"
)

// #region engine

// engine bundles the wired components and the resources to release on shutdown.
type engine struct {
	cfg     config.Config
	logger  *slog.Logger
	catalog *catalog.Catalog
	store   *state.Store
	metrics *metrics.Metrics
	orch    *orchestrator.Orchestrator
	closers []func()
}

func (e *engine) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func buildEngine(cfg config.Config, logger *slog.Logger) (*engine, error) {
	e := &engine{cfg: cfg, logger: logger, metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			e.Close()
		}
	}()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	e.catalog = cat

	store, err := state.NewStore(cfg.Database.Driver, cfg.Database.DSN, cat)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	e.store = store
	e.closers = append(e.closers, func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", "error", err)
		}
	})

	// Interface values stay nil without a sidecar so the orchestrator and the
	// guard see "not configured" rather than a nil client.
	var (
		remote  analysis.ContentAnalyzer
		fetcher orchestrator.MetricsFetcher
	)
	if cfg.Sidecar.Addr != "" {
		client, err := codec.NewCodecClient(cfg.Sidecar.Addr)
		if err != nil {
			return nil, fmt.Errorf("connect to sidecar at %s: %w", cfg.Sidecar.Addr, err)
		}
		e.closers = append(e.closers, func() { client.Close() })
		remote, fetcher = client, client
	} else {
		logger.Warn("no sidecar configured; using heuristic analysis and no engagement fetcher")
	}

	guarded := analysis.NewGuarded(remote, analysis.NewHeuristic(analysis.DefaultHeuristicConfig()), cfg.Sidecar.AnalyzeTimeout, logger)
	guarded.OnFallback = e.metrics.AnalyzerFallback

	var publisher events.Publisher = events.Nop{}
	if cfg.NATS.URL != "" {
		p, err := events.Connect(cfg.NATS.URL, logger)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, p.Close)
		publisher = p
	}

	predictor := conviction.NewPredictor(guarded, gate.NewGate(cfg.Engine.Gate.ToGate()), cat, cfg.Engine.Conviction.ToConviction())
	orch, err := orchestrator.NewOrchestrator(orchestrator.Deps{
		Store:     store,
		Catalog:   cat,
		Predictor: predictor,
		Harness:   eval.NewEvalHarness(cfg.Eval),
		Recorder:  logging.NewRecorder(store),
		Fetcher:   fetcher,
		Events:    publisher,
		Observer:  e.metrics,
		Logger:    logger,
	}, cfg.Engine.Orchestrator())
	if err != nil {
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}
	e.orch = orch

	ok = true
	return e, nil
}

// #endregion engine
