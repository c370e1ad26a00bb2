package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"patent-hand/config"
	"patent-hand/providers/patentsview"
	"patent-hand/storage"
)

// ErrRunInProgress wird geliefert, wenn bereits ein Lauf schreibt. Es gibt genau einen Schreiber.
var ErrRunInProgress = errors.New("es läuft bereits ein pipeline-lauf")

// Phasen eines Laufs, wie sie in fetch_runs protokolliert werden.
const (
	PhaseSeed      = "seed"
	PhaseFetch     = "fetch"
	PhaseCitations = "citations"
	PhaseBackfill  = "backfill"
)

// RunOptions wählt die Phasen eines Laufs und ihre Eingaben.
type RunOptions struct {
	SeedPath   string
	ImportSeed bool
	Fetch      bool
	Citations  bool
	Backfill   bool
	FetchOptions
}

// Pipeline verbindet Seed-Import, Fetch und Zitat-Auflösung über einem Store.
type Pipeline struct {
	Store     *storage.Store
	Seeds     *SeedService
	Fetcher   *FetchService
	Citations *CitationResolver
	Logger    *zap.Logger

	mu      sync.Mutex
	running atomic.Bool
}

// Running meldet, ob gerade ein Lauf aktiv ist.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// NewPipeline baut alle Komponenten aus der Konfiguration.
func NewPipeline(cfg *config.Config, store *storage.Store, logger *zap.Logger) (*Pipeline, error) {
	api, err := patentsview.NewAPI(patentsview.Generation(cfg.PatentsViewGeneration), cfg.PatentsViewBaseURL)
	if err != nil {
		return nil, err
	}
	client := patentsview.NewClient(cfg, api, logger)
	return NewPipelineWithSender(cfg, api, client, store, logger), nil
}

// NewPipelineWithSender baut die Pipeline über einem beliebigen Sender.
func NewPipelineWithSender(cfg *config.Config, api patentsview.API, sender patentsview.Sender, store *storage.Store, logger *zap.Logger) *Pipeline {
	walker := patentsview.NewWalker(api, sender, cfg.PageSize, cfg.BatchThreshold, logger)
	reconciler := NewReconciler(store, logger)
	return &Pipeline{
		Store:   store,
		Seeds:   NewSeedService(store, logger),
		Fetcher: NewFetchService(api, walker, reconciler, store, logger),
		Citations: &CitationResolver{
			API:        api,
			Walker:     walker,
			Reconciler: reconciler,
			Store:      store,
			Budget:     cfg.RequestBudget,
			PerCallCap: cfg.PerCallCap,
			Logger:     logger,
		},
		Logger: logger,
	}
}

// Run führt die gewählten Phasen nacheinander aus. Der erste Fehler beendet den Lauf.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (string, error) {
	if !p.mu.TryLock() {
		return "", ErrRunInProgress
	}
	defer p.mu.Unlock()
	p.running.Store(true)
	defer p.running.Store(false)

	runID := uuid.NewString()
	log := p.Logger.With(zap.String("run_id", runID))
	log.Info("Starte Pipeline-Lauf",
		zap.Bool("import_seed", opts.ImportSeed),
		zap.Bool("fetch", opts.Fetch),
		zap.Bool("citations", opts.Citations),
		zap.Bool("backfill", opts.Backfill))

	if opts.ImportSeed {
		if opts.SeedPath == "" {
			return runID, fmt.Errorf("seed-import ohne seed-datei")
		}
		if err := p.phase(ctx, runID, PhaseSeed, func(ctx context.Context) (any, error) {
			return p.Seeds.ImportFile(ctx, opts.SeedPath)
		}); err != nil {
			return runID, err
		}
	}
	if opts.Fetch {
		if err := p.phase(ctx, runID, PhaseFetch, func(ctx context.Context) (any, error) {
			return p.Fetcher.Run(ctx, opts.FetchOptions)
		}); err != nil {
			return runID, err
		}
	}
	if opts.Citations {
		if err := p.phase(ctx, runID, PhaseCitations, func(ctx context.Context) (any, error) {
			return p.Citations.DiscoverEdges(ctx)
		}); err != nil {
			return runID, err
		}
	}
	if opts.Backfill {
		if err := p.phase(ctx, runID, PhaseBackfill, func(ctx context.Context) (any, error) {
			return p.Citations.BackfillCited(ctx)
		}); err != nil {
			return runID, err
		}
	}
	log.Info("Pipeline-Lauf abgeschlossen")
	return runID, nil
}

// phase protokolliert eine Phase in fetch_runs, auch wenn sie fehlschlägt oder abgebrochen wird.
func (p *Pipeline) phase(ctx context.Context, runID, name string, fn func(context.Context) (any, error)) error {
	log := p.Logger.With(zap.String("run_id", runID), zap.String("phase", name))
	run, err := p.Store.StartRun(ctx, runID, name)
	if err != nil {
		return fmt.Errorf("lauf %s konnte nicht protokolliert werden: %w", name, err)
	}

	stats, runErr := fn(ctx)
	if err := p.Store.FinishRun(context.WithoutCancel(ctx), run, stats, runErr); err != nil {
		log.Warn("Lauf konnte nicht abgeschlossen werden", zap.Error(err))
	}
	if runErr != nil {
		log.Error("Phase fehlgeschlagen", zap.Error(runErr))
		return fmt.Errorf("phase %s: %w", name, runErr)
	}
	log.Info("Phase abgeschlossen", zap.Any("stats", stats))
	return nil
}
