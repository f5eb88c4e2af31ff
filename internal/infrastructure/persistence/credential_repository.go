package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quotedeck/backend/internal/domain/integration"
	"github.com/quotedeck/backend/internal/infrastructure/persistence/models"
)

// GormCredentialRepository implements integration.CredentialRepository using GORM
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormCredentialRepository) WithTx(tx *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: tx}
}

// FindByUserID returns the user's current credential.
func (r *GormCredentialRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*integration.Credential, error) {
	var model models.OAuthCredentialModel
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrCredentialNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts the user's credential. The previous token pair is
// overwritten; a refresh token is single-use so keeping history would
// only preserve dead tokens.
func (r *GormCredentialRepository) Save(ctx context.Context, cred *integration.Credential) error {
	model := models.OAuthCredentialModelFromDomain(cred)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"access_token", "refresh_token", "expires_at", "tenants", "updated_at",
			}),
		}).
		Create(model).Error
}

// Delete removes the user's credential.
func (r *GormCredentialRepository) Delete(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.OAuthCredentialModel{}).Error
}

var _ integration.CredentialRepository = (*GormCredentialRepository)(nil)
