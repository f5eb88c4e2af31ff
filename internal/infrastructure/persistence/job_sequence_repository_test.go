package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/quotedeck/backend/internal/domain/sequence"
)

// setupJobSequenceTestDB creates an in-memory SQLite database for testing
func setupJobSequenceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE job_sequences (
			id TEXT PRIMARY KEY,
			department TEXT NOT NULL,
			year INTEGER NOT NULL,
			last_sequence INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE(department, year)
		)
	`).Error
	require.NoError(t, err)

	return db
}

func TestGormJobSequenceRepository_FindMissingReturnsZero(t *testing.T) {
	db := setupJobSequenceTestDB(t)
	repo := NewGormJobSequenceRepository(db)

	seq, err := repo.Find(context.Background(), "NY", 2025)
	require.NoError(t, err)
	assert.Equal(t, "NY", seq.Department)
	assert.Equal(t, 2025, seq.Year)
	assert.Equal(t, 0, seq.LastSequence)
}

func TestGormJobSequenceRepository_SaveAndFind(t *testing.T) {
	db := setupJobSequenceTestDB(t)
	repo := NewGormJobSequenceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &sequence.JobSequence{
		Department: "NY", Year: 2025, LastSequence: 202,
	}))

	seq, err := repo.Find(ctx, "NY", 2025)
	require.NoError(t, err)
	assert.Equal(t, 202, seq.LastSequence)
}

func TestGormJobSequenceRepository_SaveUpsertsPerDepartmentYear(t *testing.T) {
	db := setupJobSequenceTestDB(t)
	repo := NewGormJobSequenceRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, &sequence.JobSequence{Department: "NY", Year: 2025, LastSequence: 10}))
	require.NoError(t, repo.Save(ctx, &sequence.JobSequence{Department: "NY", Year: 2025, LastSequence: 11}))
	require.NoError(t, repo.Save(ctx, &sequence.JobSequence{Department: "SF", Year: 2025, LastSequence: 5}))

	ny, err := repo.Find(ctx, "NY", 2025)
	require.NoError(t, err)
	assert.Equal(t, 11, ny.LastSequence)

	sf, err := repo.Find(ctx, "SF", 2025)
	require.NoError(t, err)
	assert.Equal(t, 5, sf.LastSequence)

	var count int64
	require.NoError(t, db.Table("job_sequences").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
