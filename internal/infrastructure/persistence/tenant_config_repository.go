package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quotedeck/backend/internal/domain/integration"
	"github.com/quotedeck/backend/internal/infrastructure/persistence/models"
)

// GormTenantConfigRepository implements integration.ConfigProvider using GORM
type GormTenantConfigRepository struct {
	db *gorm.DB
}

// NewGormTenantConfigRepository creates a new GormTenantConfigRepository
func NewGormTenantConfigRepository(db *gorm.DB) *GormTenantConfigRepository {
	return &GormTenantConfigRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormTenantConfigRepository) WithTx(tx *gorm.DB) *GormTenantConfigRepository {
	return &GormTenantConfigRepository{db: tx}
}

// GetTenantConfig returns the tenant's platform wiring. A tenant with
// no row has never been connected.
func (r *GormTenantConfigRepository) GetTenantConfig(ctx context.Context, tenantID uuid.UUID) (*integration.TenantConfig, error) {
	var model models.TenantIntegrationConfigModel
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: tenant %s", integration.ErrPlatformNotConfigured, tenantID)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListEnabled returns every tenant with reconciliation switched on.
func (r *GormTenantConfigRepository) ListEnabled(ctx context.Context) ([]*integration.TenantConfig, error) {
	var rows []models.TenantIntegrationConfigModel
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("tenant_name").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	configs := make([]*integration.TenantConfig, 0, len(rows))
	for i := range rows {
		configs = append(configs, rows[i].ToDomain())
	}
	return configs, nil
}

// Save upserts the tenant's configuration.
func (r *GormTenantConfigRepository) Save(ctx context.Context, cfg *integration.TenantConfig) error {
	model := models.TenantIntegrationConfigModelFromDomain(cfg)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tenant_name", "enabled", "api_token", "company_domain",
				"quote_number_field_key", "quote_id_field_key", "quote_number_prefix",
				"updated_at",
			}),
		}).
		Create(model).Error
}

var _ integration.ConfigProvider = (*GormTenantConfigRepository)(nil)
