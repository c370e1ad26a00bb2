package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"patent-hand/metrics"
	"patent-hand/models"
	"patent-hand/providers/patentsview"
)

// CitationStore ist der Teil des Stores, den der CitationResolver braucht.
type CitationStore interface {
	DistinctPatentNumbers(ctx context.Context) ([]string, error)
	CitationExists(ctx context.Context, a, b string) (bool, error)
	SaveCitations(ctx context.Context, edges []models.CitedPatent) error
	MissingCitedPatents(ctx context.Context) ([]string, error)
}

// CitationResolver schließt Zitatketten in zwei Phasen: Kanten finden, dann fehlende zitierte Patente nachladen.
// Beide Phasen leiten ihre Arbeit aus dem aktuellen Datenbankstand ab und können jederzeit erneut laufen.
type CitationResolver struct {
	API        patentsview.API
	Walker     *patentsview.Walker
	Reconciler *Reconciler
	Store      CitationStore
	Budget     int
	PerCallCap int
	Logger     *zap.Logger
}

// EdgeStats zählt das Ergebnis von DiscoverEdges.
type EdgeStats struct {
	Patents    int `json:"patents"`
	Chunks     int `json:"chunks"`
	Fetched    int `json:"fetched"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// BackfillStats zählt das Ergebnis von BackfillCited.
type BackfillStats struct {
	Missing int `json:"missing"`
	Chunks  int `json:"chunks"`
	Fetched int `json:"fetched"`
	ReconcileResult
}

type edgeKey struct{ a, b string }

// unordered normalisiert ein Paar, sodass (a, b) und (b, a) denselben Schlüssel haben.
func unordered(a, b string) edgeKey {
	if b < a {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// DiscoverEdges lädt die Zitate aller bekannten Patente und speichert neue Kanten gemeinsam am Ende.
func (c *CitationResolver) DiscoverEdges(ctx context.Context) (EdgeStats, error) {
	var stats EdgeStats
	numbers, err := c.Store.DistinctPatentNumbers(ctx)
	if err != nil {
		return stats, fmt.Errorf("patentnummern konnten nicht geladen werden: %w", err)
	}
	stats.Patents = len(numbers)
	ep := c.API.Citations
	log := c.Logger.With(zap.String("phase", "citations"))
	log.Info("Starte Suche nach Zitaten", zap.Int("patents", len(numbers)))

	var staged []models.CitedPatent
	seen := make(map[edgeKey]struct{})
	planner := patentsview.NewPlanner(c.API, ep, c.Budget, c.PerCallCap)
	for chunk := range planner.Plan(numbers) {
		filter, err := patentsview.IdentifierQuery(ep.IDField, chunk)
		if err != nil {
			return stats, err
		}
		stats.Chunks++
		for batch, err := range c.Walker.Walk(ctx, ep, filter) {
			if err != nil {
				return stats, err
			}
			for _, cit := range c.API.DecodeCitations(batch) {
				stats.Fetched++
				key := unordered(cit.Citing, cit.Cited)
				if _, dup := seen[key]; dup {
					stats.Duplicates++
					continue
				}
				seen[key] = struct{}{}
				exists, err := c.Store.CitationExists(ctx, cit.Citing, cit.Cited)
				if err != nil {
					return stats, err
				}
				if exists {
					stats.Duplicates++
					continue
				}
				staged = append(staged, models.CitedPatent{CitingPatentNumber: cit.Citing, CitedPatentNumber: cit.Cited})
			}
		}
		log.Debug("Chunk verarbeitet", zap.Int("chunk", stats.Chunks), zap.Int("staged", len(staged)))
	}

	if err := c.Store.SaveCitations(ctx, staged); err != nil {
		return stats, err
	}
	stats.Inserted = len(staged)
	metrics.CitationEdgesInserted.Add(float64(len(staged)))
	log.Info("Zitate gespeichert", zap.Int("inserted", stats.Inserted), zap.Int("duplicates", stats.Duplicates))
	return stats, nil
}

// BackfillCited lädt die Metadaten zitierter Patente, die noch nicht in der Datenbank sind, und gibt sie an den Reconciler.
func (c *CitationResolver) BackfillCited(ctx context.Context) (BackfillStats, error) {
	var stats BackfillStats
	missing, err := c.Store.MissingCitedPatents(ctx)
	if err != nil {
		return stats, fmt.Errorf("fehlende zitierte patente konnten nicht bestimmt werden: %w", err)
	}
	stats.Missing = len(missing)
	ep := c.API.Patents
	log := c.Logger.With(zap.String("phase", "backfill"))
	log.Info("Lade fehlende zitierte Patente nach", zap.Int("missing", len(missing)))

	planner := patentsview.NewPlanner(c.API, ep, c.Budget, c.PerCallCap)
	for chunk := range planner.Plan(missing) {
		filter, err := patentsview.IdentifierQuery(ep.IDField, chunk)
		if err != nil {
			return stats, err
		}
		stats.Chunks++
		for batch, err := range c.Walker.Walk(ctx, ep, filter) {
			if err != nil {
				return stats, err
			}
			patents := c.API.DecodePatents(batch)
			stats.Fetched += len(patents)
			res, err := c.Reconciler.Reconcile(ctx, patents)
			stats.ReconcileResult.add(res)
			if err != nil {
				return stats, err
			}
		}
	}
	log.Info("Nachladen abgeschlossen", zap.Int("fetched", stats.Fetched), zap.Int("inserted", stats.Inserted), zap.Int("unresolved", stats.Unresolved))
	return stats, nil
}
