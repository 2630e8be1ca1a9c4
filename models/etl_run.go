package models

import (
	"time"

	"gorm.io/datatypes"
)

// EtlRun records one execution of the CSV load, including the per-table
// row accounting the loader produces.
type EtlRun struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Succeeded  bool      `json:"succeeded" gorm:"index"`
	Error      string    `json:"error,omitempty" gorm:"type:text"`

	Report datatypes.JSON `json:"report,omitempty"`
}

// TableName sets the explicit table name.
func (EtlRun) TableName() string {
	return "etl_runs"
}
