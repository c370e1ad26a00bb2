package storage

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"patent-hand/models"
)

// StartRun legt einen FetchRun-Eintrag für eine Phase an.
func (s *Store) StartRun(ctx context.Context, runID, phase string) (*models.FetchRun, error) {
	run := &models.FetchRun{RunID: runID, Phase: phase, StartedAt: time.Now(), Stats: datatypes.JSON("{}")}
	if err := s.DB.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// FinishRun schließt einen FetchRun mit seinen Zählern und einem eventuellen Fehler ab.
func (s *Store) FinishRun(ctx context.Context, run *models.FetchRun, stats any, runErr error) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Stats = datatypes.JSON(b)
	if runErr != nil {
		run.Error = runErr.Error()
	}
	return s.DB.WithContext(ctx).Save(run).Error
}

// Runs liefert die letzten Läufe, neueste zuerst.
func (s *Store) Runs(ctx context.Context, limit int) ([]models.FetchRun, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []models.FetchRun
	err := s.DB.WithContext(ctx).Order("started_at desc").Limit(limit).Find(&runs).Error
	return runs, err
}
