package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/quotedeck/backend/internal/domain/reconcile"
	"github.com/quotedeck/backend/internal/infrastructure/persistence/models"
)

// GormAuditRepository implements reconcile.AuditSink using GORM
type GormAuditRepository struct {
	db *gorm.DB
}

// NewGormAuditRepository creates a new GormAuditRepository
func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

// AppendSession writes the session and its result rows atomically.
func (r *GormAuditRepository) AppendSession(ctx context.Context, session *reconcile.Session) error {
	model, results := models.ReconSessionModelFromDomain(session)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		if len(results) > 0 {
			if err := tx.Create(&results).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// FindSession loads one audited session with its results.
func (r *GormAuditRepository) FindSession(ctx context.Context, id uuid.UUID) (*reconcile.Session, error) {
	var model models.ReconSessionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reconcile.ErrSessionNotFound
		}
		return nil, err
	}

	var results []models.ReconSessionResultModel
	err = r.db.WithContext(ctx).
		Where("session_id = ?", id).
		Order("created_at").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	return model.ToDomain(results), nil
}

// ListSessionsByTenant returns the tenant's audited sessions without
// result rows. Sort parameters are validated against a whitelist; the
// default order is newest first.
func (r *GormAuditRepository) ListSessionsByTenant(ctx context.Context, tenantID uuid.UUID, limit int, sortField, orderDir string) ([]*reconcile.Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	sortField = ValidateSortField(sortField, SessionSortFields, "started_at")
	orderDir = ValidateSortOrder(orderDir)

	var rows []models.ReconSessionModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order(sortField + " " + orderDir).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	sessions := make([]*reconcile.Session, 0, len(rows))
	for i := range rows {
		sessions = append(sessions, rows[i].ToDomain(nil))
	}
	return sessions, nil
}

var _ reconcile.AuditSink = (*GormAuditRepository)(nil)
