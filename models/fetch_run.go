package models

import (
	"time"

	"gorm.io/datatypes"
)

// FetchRun protokolliert einen Lauf einer Pipeline-Phase.
type FetchRun struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	RunID      string     `json:"run_id" gorm:"index;not null"`
	Phase      string     `json:"phase" gorm:"index"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Error      string     `json:"error,omitempty" gorm:"type:text"`
	// Stats enthält die Zähler der Phase als JSON.
	Stats datatypes.JSON `json:"stats"`
}

// TableName gibt explizit den Tabellennamen an.
func (FetchRun) TableName() string {
	return "fetch_runs"
}
