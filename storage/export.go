package storage

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gorm.io/gorm"

	"patent-hand/models"
)

const exportBatchSize = 500

// ExportLine ist eine Zeile des Exports: Tabellenname und Datensatz.
type ExportLine struct {
	Table string `json:"table"`
	Row   any    `json:"row"`
}

// ExportCounts zählt die exportierten Zeilen pro Tabelle.
type ExportCounts map[string]int

// Export schreibt alle Tabellen als gzip-komprimiertes JSON-Lines nach w.
func (s *Store) Export(ctx context.Context, w io.Writer) (ExportCounts, error) {
	gz := gzip.NewWriter(w)
	enc := json.NewEncoder(gz)
	counts := ExportCounts{}

	tables := []struct {
		name string
		rows func(db *gorm.DB, emit func(any) error) error
	}{
		{models.Company{}.TableName(), exportTable[models.Company]},
		{models.AlternateName{}.TableName(), exportTable[models.AlternateName]},
		{models.Patent{}.TableName(), exportTable[models.Patent]},
		{models.CitedPatent{}.TableName(), exportTable[models.CitedPatent]},
		{models.FetchRun{}.TableName(), exportTable[models.FetchRun]},
	}
	for _, t := range tables {
		err := t.rows(s.DB.WithContext(ctx), func(row any) error {
			counts[t.name]++
			return enc.Encode(ExportLine{Table: t.name, Row: row})
		})
		if err != nil {
			return counts, fmt.Errorf("export %s: %w", t.name, err)
		}
	}
	return counts, gz.Close()
}

func exportTable[T any](db *gorm.DB, emit func(any) error) error {
	var batch []T
	return db.FindInBatches(&batch, exportBatchSize, func(tx *gorm.DB, _ int) error {
		for _, row := range batch {
			if err := emit(row); err != nil {
				return err
			}
		}
		return nil
	}).Error
}
