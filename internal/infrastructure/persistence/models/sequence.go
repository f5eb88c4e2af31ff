package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/quotedeck/backend/internal/domain/sequence"
)

// JobSequenceModel is the persistence model for the per-department job
// number sequence.
type JobSequenceModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key"`
	Department   string    `gorm:"type:varchar(10);not null;uniqueIndex:idx_job_sequence_dep_year,priority:1"`
	Year         int       `gorm:"not null;uniqueIndex:idx_job_sequence_dep_year,priority:2"`
	LastSequence int       `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (JobSequenceModel) TableName() string {
	return "job_sequences"
}

// ToDomain converts the persistence model to a domain JobSequence.
func (m *JobSequenceModel) ToDomain() *sequence.JobSequence {
	return &sequence.JobSequence{
		Department:   m.Department,
		Year:         m.Year,
		LastSequence: m.LastSequence,
	}
}

// JobSequenceModelFromDomain converts a domain JobSequence to its
// persistence model.
func JobSequenceModelFromDomain(s *sequence.JobSequence) *JobSequenceModel {
	return &JobSequenceModel{
		ID:           uuid.New(),
		Department:   s.Department,
		Year:         s.Year,
		LastSequence: s.LastSequence,
	}
}
