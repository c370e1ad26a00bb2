package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"patent-hand/config"
	"patent-hand/models"
)

const insertBatchSize = 200

// Store kapselt die Datenbank. Er wird pro Lauf geöffnet und mit Close wieder freigegeben.
type Store struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Open verbindet sich mit der konfigurierten Datenbank und migriert das Schema.
func Open(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.DBEngine {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	default:
		dialector = sqlite.Open(cfg.DBPath)
	}
	return OpenDialector(ctx, dialector, log)
}

// OpenDialector öffnet einen Store über einen beliebigen gorm-Dialector (z.B. sqlite in Tests).
func OpenDialector(ctx context.Context, dialector gorm.Dialector, log *zap.Logger) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("datenbank konnte nicht geöffnet werden: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dialector.Name() == "sqlite" {
		// sqlite kennt nur einen Schreiber; eine Verbindung hält auch :memory: zusammen.
		sqlDB.SetMaxOpenConns(1)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err = backoff.Retry(func() error {
		if err := sqlDB.PingContext(ctx); err != nil {
			log.Info("Warte auf die Datenbank", zap.Int("attempt", attempt), zap.Error(err))
			attempt++
			return err
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, fmt.Errorf("datenbankverbindung fehlgeschlagen: %w", err)
	}

	if err := db.AutoMigrate(&models.Company{}, &models.AlternateName{}, &models.Patent{}, &models.CitedPatent{}, &models.FetchRun{}); err != nil {
		return nil, fmt.Errorf("auto-migration fehlgeschlagen: %w", err)
	}
	store := &Store{DB: db, Logger: log}
	if err := store.backfillNameFolds(ctx); err != nil {
		return nil, fmt.Errorf("namensschlüssel konnten nicht gesetzt werden: %w", err)
	}
	return store, nil
}

// backfillNameFolds setzt name_fold für Zeilen, die vor Einführung der Spalte angelegt wurden.
func (s *Store) backfillNameFolds(ctx context.Context) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var companies []models.Company
		if err := tx.Where("name_fold = ''").Find(&companies).Error; err != nil {
			return err
		}
		for _, c := range companies {
			if err := tx.Model(&models.Company{}).Where("id = ?", c.ID).UpdateColumn("name_fold", models.FoldName(c.Name)).Error; err != nil {
				return err
			}
		}
		var names []models.AlternateName
		if err := tx.Where("name_fold = ''").Find(&names).Error; err != nil {
			return err
		}
		for _, a := range names {
			if err := tx.Model(&models.AlternateName{}).Where("id = ?", a.ID).UpdateColumn("name_fold", models.FoldName(a.Name)).Error; err != nil {
				return err
			}
		}
		if len(companies)+len(names) > 0 {
			s.Logger.Info("Namensschlüssel nachgetragen", zap.Int("companies", len(companies)), zap.Int("alternate_names", len(names)))
		}
		return nil
	})
}

// Close gibt den Verbindungspool frei.
func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NormalizeName bringt einen Namen in NFC-Form und entfernt Leerraum am Rand.
func NormalizeName(name string) string {
	return models.NormalizeName(name)
}

// SeedEntry ist eine Zeile der Seed-Daten: ein Hauptname und seine alternativen Namen.
type SeedEntry struct {
	Name           string
	AlternateNames []string
}

// SeedResult zählt, was ImportSeed neu angelegt hat.
type SeedResult struct {
	Companies      int `json:"companies"`
	AlternateNames int `json:"alternate_names"`
	Conflicts      int `json:"conflicts"`
}

// ImportSeed legt fehlende Companies und AlternateNames in einer Transaktion an.
// Ein alternativer Name, der bereits einer anderen Company gehört, wird übersprungen.
func (s *Store) ImportSeed(ctx context.Context, entries []SeedEntry) (SeedResult, error) {
	var res SeedResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			name := NormalizeName(e.Name)
			if name == "" {
				continue
			}
			var company models.Company
			err := tx.Where("name = ?", name).First(&company).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				company = models.Company{Name: name}
				if err := tx.Create(&company).Error; err != nil {
					return fmt.Errorf("company %q: %w", name, err)
				}
				res.Companies++
			} else if err != nil {
				return err
			}

			for _, alt := range e.AlternateNames {
				alt = NormalizeName(alt)
				if alt == "" || alt == name {
					continue
				}
				var existing models.AlternateName
				err := tx.Where("name = ?", alt).First(&existing).Error
				if err == nil {
					if existing.CompanyID != company.ID {
						s.Logger.Warn("Alternativer Name gehört bereits zu einer anderen Company",
							zap.String("alternate_name", alt), zap.Uint("company_id", existing.CompanyID))
						res.Conflicts++
					}
					continue
				}
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				if err := tx.Create(&models.AlternateName{CompanyID: company.ID, Name: alt}).Error; err != nil {
					return fmt.Errorf("alternativer name %q: %w", alt, err)
				}
				res.AlternateNames++
			}
		}
		return nil
	})
	return res, err
}

// CompanyByName sucht eine Company mit exakt diesem Namen. nil, wenn keine existiert.
func (s *Store) CompanyByName(ctx context.Context, name string) (*models.Company, error) {
	var c models.Company
	err := s.DB.WithContext(ctx).Where("name = ?", NormalizeName(name)).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindCompanyFold sucht eine Company ohne Beachtung der Groß-/Kleinschreibung.
func (s *Store) FindCompanyFold(ctx context.Context, name string) (*models.Company, error) {
	var c models.Company
	err := s.DB.WithContext(ctx).Where("name_fold = ?", models.FoldName(name)).Order("id").First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindAlternateNameFold sucht einen alternativen Namen ohne Beachtung der Groß-/Kleinschreibung.
func (s *Store) FindAlternateNameFold(ctx context.Context, name string) (*models.AlternateName, error) {
	var a models.AlternateName
	err := s.DB.WithContext(ctx).Where("name_fold = ?", models.FoldName(name)).Order("id").First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CompanyFilter schränkt Companies ein. ResumeFrom überspringt alle IDs darunter.
type CompanyFilter struct {
	Names      []string
	ResumeFrom uint
	Limit      int
}

// Companies liefert Companies samt alternativen Namen, aufsteigend nach ID.
func (s *Store) Companies(ctx context.Context, f CompanyFilter) ([]models.Company, error) {
	q := s.DB.WithContext(ctx).Preload("AlternateNames", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	}).Order("id")
	if len(f.Names) > 0 {
		names := make([]string, 0, len(f.Names))
		for _, n := range f.Names {
			names = append(names, NormalizeName(n))
		}
		q = q.Where("name IN ?", names)
	}
	if f.ResumeFrom > 0 {
		q = q.Where("id >= ?", f.ResumeFrom)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var companies []models.Company
	if err := q.Find(&companies).Error; err != nil {
		return nil, err
	}
	return companies, nil
}

// PatentExists prüft das Tripel (Patentnummer, Company, AlternateName). aliasID nil bedeutet "ohne alternativen Namen".
func (s *Store) PatentExists(ctx context.Context, number string, companyID uint, aliasID *uint) (bool, error) {
	q := s.DB.WithContext(ctx).Model(&models.Patent{}).
		Where("patent_number = ? AND company_id = ?", number, companyID)
	if aliasID == nil {
		q = q.Where("company_alternate_name_id IS NULL")
	} else {
		q = q.Where("company_alternate_name_id = ?", *aliasID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ExternalIDs sind API-Assignee-IDs, die an Companies bzw. AlternateNames gehängt werden sollen.
type ExternalIDs struct {
	Companies      map[uint]string
	AlternateNames map[uint]string
}

// SavePatents schreibt alle Patente und setzt fehlende externe IDs in einer Transaktion.
func (s *Store) SavePatents(ctx context.Context, patents []models.Patent, ids ExternalIDs) error {
	if len(patents) == 0 && len(ids.Companies) == 0 && len(ids.AlternateNames) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(patents) > 0 {
			if err := tx.CreateInBatches(patents, insertBatchSize).Error; err != nil {
				return fmt.Errorf("patente konnten nicht gespeichert werden: %w", err)
			}
		}
		for id, ext := range ids.Companies {
			if err := tx.Model(&models.Company{}).
				Where("id = ? AND (external_id = '' OR external_id IS NULL)", id).
				Update("external_id", ext).Error; err != nil {
				return err
			}
		}
		for id, ext := range ids.AlternateNames {
			if err := tx.Model(&models.AlternateName{}).
				Where("id = ? AND (external_id = '' OR external_id IS NULL)", id).
				Update("external_id", ext).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// DistinctPatentNumbers liefert alle Patentnummern der Datenbank, sortiert.
func (s *Store) DistinctPatentNumbers(ctx context.Context) ([]string, error) {
	var numbers []string
	err := s.DB.WithContext(ctx).Model(&models.Patent{}).
		Distinct().Order("patent_number").Pluck("patent_number", &numbers).Error
	return numbers, err
}

// CitationExists prüft, ob das ungeordnete Paar (a, b) bereits als Kante existiert.
func (s *Store) CitationExists(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.CitedPatent{}).
		Where("(citing_patent_number = ? AND cited_patent_number = ?) OR (citing_patent_number = ? AND cited_patent_number = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// SaveCitations schreibt alle Kanten in einer Transaktion.
func (s *Store) SaveCitations(ctx context.Context, edges []models.CitedPatent) error {
	if len(edges) == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(edges, insertBatchSize).Error; err != nil {
			return fmt.Errorf("zitate konnten nicht gespeichert werden: %w", err)
		}
		return nil
	})
}

// MissingCitedPatents liefert zitierte Patentnummern, zu denen es noch kein Patent gibt.
func (s *Store) MissingCitedPatents(ctx context.Context) ([]string, error) {
	query, args, err := sq.Select("DISTINCT c.cited_patent_number").
		From("cited_patents c").
		LeftJoin("patents p ON p.patent_number = c.cited_patent_number").
		Where(sq.Eq{"p.id": nil}).
		OrderBy("c.cited_patent_number").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// PatentFilter schränkt Patente für die Lese-API ein.
type PatentFilter struct {
	CompanyID uint
	Number    string
	Limit     int
}

// Patents liefert Patente, neueste zuerst.
func (s *Store) Patents(ctx context.Context, f PatentFilter) ([]models.Patent, error) {
	q := s.DB.WithContext(ctx).Model(&models.Patent{})
	if f.CompanyID > 0 {
		q = q.Where("company_id = ?", f.CompanyID)
	}
	if f.Number != "" {
		q = q.Where("patent_number = ?", f.Number)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var patents []models.Patent
	err := q.Order("grant_date desc, id").Find(&patents).Error
	return patents, err
}

// CitationsOf liefert alle Kanten, in denen die Nummer zitiert oder zitiert wird.
func (s *Store) CitationsOf(ctx context.Context, number string) ([]models.CitedPatent, error) {
	var edges []models.CitedPatent
	err := s.DB.WithContext(ctx).
		Where("citing_patent_number = ? OR cited_patent_number = ?", number, number).
		Order("id").Find(&edges).Error
	return edges, err
}
