package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/quotedeck/backend/internal/domain/integration"
)

// setupCredentialTestDB creates an in-memory SQLite database for testing
func setupCredentialTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.Exec(`
		CREATE TABLE oauth_credentials (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL UNIQUE,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			tenants TEXT DEFAULT '[]',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`).Error
	require.NoError(t, err)

	return db
}

func TestGormCredentialRepository_SaveAndFind(t *testing.T) {
	db := setupCredentialTestDB(t)
	repo := NewGormCredentialRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	tenantID := uuid.New()
	expiresAt := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)

	err := repo.Save(ctx, &integration.Credential{
		UserID:       userID,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    expiresAt,
		TenantIDs:    []uuid.UUID{tenantID},
	})
	require.NoError(t, err)

	cred, err := repo.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, cred.UserID)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.True(t, cred.GrantsTenant(tenantID))
}

func TestGormCredentialRepository_SaveReplacesExisting(t *testing.T) {
	db := setupCredentialTestDB(t)
	repo := NewGormCredentialRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	cred := &integration.Credential{
		UserID:       userID,
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, repo.Save(ctx, cred))

	// A refresh rotates both tokens; the row is replaced, not duplicated.
	cred.AccessToken = "access-2"
	cred.RefreshToken = "refresh-2"
	require.NoError(t, repo.Save(ctx, cred))

	found, err := repo.FindByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "access-2", found.AccessToken)
	assert.Equal(t, "refresh-2", found.RefreshToken)

	var count int64
	require.NoError(t, db.Table("oauth_credentials").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGormCredentialRepository_FindNotFound(t *testing.T) {
	db := setupCredentialTestDB(t)
	repo := NewGormCredentialRepository(db)

	_, err := repo.FindByUserID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, integration.ErrCredentialNotFound)
}

func TestGormCredentialRepository_Delete(t *testing.T) {
	db := setupCredentialTestDB(t)
	repo := NewGormCredentialRepository(db)
	ctx := context.Background()

	userID := uuid.New()
	require.NoError(t, repo.Save(ctx, &integration.Credential{
		UserID:       userID,
		AccessToken:  "access",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}))

	require.NoError(t, repo.Delete(ctx, userID))

	_, err := repo.FindByUserID(ctx, userID)
	assert.ErrorIs(t, err, integration.ErrCredentialNotFound)
}
