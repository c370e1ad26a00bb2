package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"patent-hand/models"
	"patent-hand/providers/patentsview"
	"patent-hand/storage"
)

// CompanyStore liefert die Companies, für die Patente geladen werden.
type CompanyStore interface {
	Companies(ctx context.Context, f storage.CompanyFilter) ([]models.Company, error)
}

// FetchService lädt die Patente aller Companies und ihrer alternativen Namen.
type FetchService struct {
	API        patentsview.API
	Walker     *patentsview.Walker
	Reconciler *Reconciler
	Store      CompanyStore
	Logger     *zap.Logger
}

// NewFetchService erstellt eine neue Instanz des FetchService.
func NewFetchService(api patentsview.API, walker *patentsview.Walker, reconciler *Reconciler, store CompanyStore, logger *zap.Logger) *FetchService {
	return &FetchService{API: api, Walker: walker, Reconciler: reconciler, Store: store, Logger: logger}
}

// FetchOptions schränkt einen Fetch-Lauf ein.
type FetchOptions struct {
	Companies  []string
	ResumeFrom uint
	Years      *patentsview.YearRange
}

// FetchStats sind die Zähler eines Fetch-Laufs.
type FetchStats struct {
	Companies int `json:"companies"`
	Names     int `json:"names"`
	Fetched   int `json:"fetched"`
	ReconcileResult
}

func (s *FetchStats) add(o FetchStats) {
	s.Companies += o.Companies
	s.Names += o.Names
	s.Fetched += o.Fetched
	s.ReconcileResult.add(o.ReconcileResult)
}

// Run lädt die Patente aller ausgewählten Companies. Ein Fehler bei einer Company bricht den Lauf ab.
func (f *FetchService) Run(ctx context.Context, opts FetchOptions) (FetchStats, error) {
	var stats FetchStats
	companies, err := f.Store.Companies(ctx, storage.CompanyFilter{Names: opts.Companies, ResumeFrom: opts.ResumeFrom})
	if err != nil {
		return stats, fmt.Errorf("companies konnten nicht geladen werden: %w", err)
	}
	f.Logger.Info("Starte Fetch für Companies", zap.Int("companies", len(companies)))

	for _, c := range companies {
		s, err := f.RunForCompany(ctx, c, opts.Years)
		stats.add(s)
		if err != nil {
			return stats, fmt.Errorf("company %d (%s): %w", c.ID, c.Name, err)
		}
	}
	f.Logger.Info("Fetch abgeschlossen",
		zap.Int("companies", stats.Companies),
		zap.Int("fetched", stats.Fetched),
		zap.Int("inserted", stats.Inserted))
	return stats, nil
}

// RunForCompany lädt die Patente für den Hauptnamen und alle alternativen Namen einer Company.
func (f *FetchService) RunForCompany(ctx context.Context, company models.Company, years *patentsview.YearRange) (FetchStats, error) {
	log := f.Logger.With(zap.Uint("company_id", company.ID), zap.String("company", company.Name))
	stats := FetchStats{Companies: 1}

	names := []string{company.Name}
	for _, alt := range company.AlternateNames {
		names = append(names, alt.Name)
	}

	for _, name := range names {
		filter, err := f.API.OrganizationQuery(name, years)
		if err != nil {
			return stats, err
		}
		stats.Names++
		log.Info("Lade Patente", zap.String("name", name))

		for batch, err := range f.Walker.Walk(ctx, f.API.Patents, filter) {
			if err != nil {
				return stats, err
			}
			patents := f.API.DecodePatents(batch)
			stats.Fetched += len(patents)
			res, err := f.Reconciler.Reconcile(ctx, patents)
			stats.ReconcileResult.add(res)
			if err != nil {
				return stats, err
			}
		}
	}
	return stats, nil
}
