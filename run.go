package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"patent-hand/config"
	"patent-hand/providers/patentsview"
	"patent-hand/services"
	"patent-hand/storage"
)

type runFlags struct {
	seed       string
	companies  []string
	resumeFrom uint
	startYear  int
	endYear    int

	importSeed bool
	fetch      bool
	citations  bool
	backfill   bool
}

func newRunCommand() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Führt die Pipeline einmal aus",
		Long: `Führt die gewählten Phasen nacheinander aus: Seed-Import, Patente laden, Zitate finden, zitierte Patente nachladen.
Ohne Phasen-Flag laufen alle Phasen; der Seed-Import nur, wenn --seed gesetzt ist.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := f.options()
			if err != nil {
				return err
			}
			logging, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer logging.Sync()
			return runPipeline(cmd.Context(), opts, logging)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.seed, "seed", "", "Pfad der xlsx-Datei mit Firmen (Spalte \"Name 1\") und alternativen Namen")
	flags.StringSliceVar(&f.companies, "company", nil, "nur diese Firmen laden (mehrfach angebbar)")
	flags.UintVar(&f.resumeFrom, "resume-from", 0, "mit dieser Company-ID fortsetzen")
	flags.IntVar(&f.startYear, "start-year", 0, "erstes Gewährungsjahr")
	flags.IntVar(&f.endYear, "end-year", 0, "letztes Gewährungsjahr")
	flags.BoolVar(&f.importSeed, "import-seed", false, "Seed-Datei importieren")
	flags.BoolVar(&f.fetch, "fetch", false, "Patente der Firmen laden")
	flags.BoolVar(&f.citations, "citations", false, "Zitate der bekannten Patente laden")
	flags.BoolVar(&f.backfill, "backfill", false, "fehlende zitierte Patente nachladen")
	return cmd
}

// options übersetzt die Flags in RunOptions.
func (f runFlags) options() (services.RunOptions, error) {
	opts := services.RunOptions{
		SeedPath:   f.seed,
		ImportSeed: f.importSeed,
		Fetch:      f.fetch,
		Citations:  f.citations,
		Backfill:   f.backfill,
		FetchOptions: services.FetchOptions{
			Companies:  f.companies,
			ResumeFrom: f.resumeFrom,
		},
	}
	if !f.importSeed && !f.fetch && !f.citations && !f.backfill {
		opts.ImportSeed = f.seed != ""
		opts.Fetch, opts.Citations, opts.Backfill = true, true, true
	}
	if opts.ImportSeed && f.seed == "" {
		return opts, errors.New("--import-seed braucht --seed")
	}
	if f.startYear != 0 || f.endYear != 0 {
		if f.startYear != 0 && f.endYear != 0 && f.startYear > f.endYear {
			return opts, fmt.Errorf("--start-year %d liegt nach --end-year %d", f.startYear, f.endYear)
		}
		opts.Years = &patentsview.YearRange{Begin: f.startYear, End: f.endYear}
	}
	return opts, nil
}

func runPipeline(ctx context.Context, opts services.RunOptions, logging *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("konfiguration: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg, logging)
	if err != nil {
		return err
	}
	defer store.Close()

	pipeline, err := services.NewPipeline(cfg, store, logging)
	if err != nil {
		return err
	}

	runID, err := pipeline.Run(ctx, opts)
	if interrupted(ctx, err) {
		logging.Warn("Lauf abgebrochen", zap.String("run_id", runID))
		fmt.Println("Programm vom Benutzer beendet.")
		return nil
	}
	return err
}

// interrupted meldet einen Abbruch durch das Signal. Der Treiber liefert dann je nach Zeitpunkt
// context.Canceled oder einen eigenen Fehler, daher zählt nur der Zustand des Kontexts.
func interrupted(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}
