package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"patent-hand/storage"
)

// seedNameColumn ist die Spaltenüberschrift des Hauptnamens; alle Spalten rechts davon sind alternative Namen.
const seedNameColumn = "Name 1"

// SeedStore legt Companies und alternative Namen an.
type SeedStore interface {
	ImportSeed(ctx context.Context, entries []storage.SeedEntry) (storage.SeedResult, error)
}

// SeedService importiert die Liste der Companies aus einer Tabelle.
type SeedService struct {
	Store  SeedStore
	Logger *zap.Logger
}

// NewSeedService erstellt einen SeedService.
func NewSeedService(store SeedStore, logger *zap.Logger) *SeedService {
	return &SeedService{Store: store, Logger: logger}
}

// ImportFile liest eine xlsx-Datei und legt fehlende Companies und alternative Namen an.
func (s *SeedService) ImportFile(ctx context.Context, path string) (storage.SeedResult, error) {
	log := s.Logger.With(zap.String("path", path))
	entries, err := ReadSeedFile(path)
	if err != nil {
		return storage.SeedResult{}, err
	}
	log.Info("Seed-Datei gelesen", zap.Int("rows", len(entries)))

	res, err := s.Store.ImportSeed(ctx, entries)
	if err != nil {
		return res, fmt.Errorf("seed-import fehlgeschlagen: %w", err)
	}
	log.Info("Seed importiert",
		zap.Int("companies", res.Companies),
		zap.Int("alternate_names", res.AlternateNames),
		zap.Int("conflicts", res.Conflicts))
	return res, nil
}

// ReadSeedFile liest das erste Tabellenblatt einer xlsx-Datei.
func ReadSeedFile(path string) ([]storage.SeedEntry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed-datei %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("seed-datei %s: %w", path, err)
	}
	return ParseSeedRows(rows)
}

// ParseSeedRows sucht die Kopfzeile mit "Name 1" und liest alle Zeilen darunter.
func ParseSeedRows(rows [][]string) ([]storage.SeedEntry, error) {
	header, col := -1, -1
	for i, row := range rows {
		for j, cell := range row {
			if strings.TrimSpace(cell) == seedNameColumn {
				header, col = i, j
				break
			}
		}
		if header >= 0 {
			break
		}
	}
	if header < 0 {
		return nil, fmt.Errorf("spalte %q nicht gefunden", seedNameColumn)
	}

	var entries []storage.SeedEntry
	for _, row := range rows[header+1:] {
		if col >= len(row) || strings.TrimSpace(row[col]) == "" {
			continue
		}
		e := storage.SeedEntry{Name: row[col]}
		for _, alt := range row[col+1:] {
			if strings.TrimSpace(alt) != "" {
				e.AlternateNames = append(e.AlternateNames, alt)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}
