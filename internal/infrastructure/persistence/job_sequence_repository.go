package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quotedeck/backend/internal/domain/sequence"
	"github.com/quotedeck/backend/internal/infrastructure/persistence/models"
)

// GormJobSequenceRepository implements sequence.Repository using GORM
type GormJobSequenceRepository struct {
	db *gorm.DB
}

// NewGormJobSequenceRepository creates a new GormJobSequenceRepository
func NewGormJobSequenceRepository(db *gorm.DB) *GormJobSequenceRepository {
	return &GormJobSequenceRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormJobSequenceRepository) WithTx(tx *gorm.DB) *GormJobSequenceRepository {
	return &GormJobSequenceRepository{db: tx}
}

// Find returns the sequence for a department/year. A missing row is a
// fresh zero sequence, not an error.
func (r *GormJobSequenceRepository) Find(ctx context.Context, department string, year int) (*sequence.JobSequence, error) {
	var model models.JobSequenceModel
	err := r.db.WithContext(ctx).
		Where("department = ? AND year = ?", department, year).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &sequence.JobSequence{Department: department, Year: year}, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts the sequence for its department/year.
func (r *GormJobSequenceRepository) Save(ctx context.Context, seq *sequence.JobSequence) error {
	model := models.JobSequenceModelFromDomain(seq)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "department"}, {Name: "year"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"last_sequence", "updated_at",
			}),
		}).
		Create(model).Error
}

var _ sequence.Repository = (*GormJobSequenceRepository)(nil)
