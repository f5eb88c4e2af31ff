package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/quotedeck/backend/internal/domain/integration"
)

// OAuthCredentialModel is the persistence model for an accounting
// platform credential. One row per user; Save replaces in place.
type OAuthCredentialModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex"`
	AccessToken  string    `gorm:"type:text;not null"`
	RefreshToken string    `gorm:"type:text;not null"`
	ExpiresAt    time.Time `gorm:"not null"`
	// TenantsJSON serializes the reachable tenant connection IDs.
	TenantsJSON string    `gorm:"column:tenants;type:jsonb;default:'[]'"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OAuthCredentialModel) TableName() string {
	return "oauth_credentials"
}

// ToDomain converts the persistence model to a domain Credential.
func (m *OAuthCredentialModel) ToDomain() *integration.Credential {
	cred := &integration.Credential{
		UserID:       m.UserID,
		AccessToken:  m.AccessToken,
		RefreshToken: m.RefreshToken,
		ExpiresAt:    m.ExpiresAt,
		TenantIDs:    make([]uuid.UUID, 0),
	}
	if m.TenantsJSON != "" {
		_ = json.Unmarshal([]byte(m.TenantsJSON), &cred.TenantIDs)
	}
	return cred
}

// OAuthCredentialModelFromDomain converts a domain Credential to its
// persistence model.
func OAuthCredentialModelFromDomain(cred *integration.Credential) *OAuthCredentialModel {
	tenants, err := json.Marshal(cred.TenantIDs)
	if err != nil {
		tenants = []byte("[]")
	}
	return &OAuthCredentialModel{
		ID:           uuid.New(),
		UserID:       cred.UserID,
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		ExpiresAt:    cred.ExpiresAt,
		TenantsJSON:  string(tenants),
	}
}

// TenantIntegrationConfigModel is the persistence model for the
// per-tenant platform wiring.
type TenantIntegrationConfigModel struct {
	TenantID            uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantName          string    `gorm:"type:varchar(200);not null"`
	Enabled             bool      `gorm:"not null;default:false"`
	APIToken            string    `gorm:"column:api_token;type:text"`
	CompanyDomain       string    `gorm:"type:varchar(100)"`
	QuoteNumberFieldKey string    `gorm:"type:varchar(64)"`
	QuoteIDFieldKey     string    `gorm:"column:quote_id_field_key;type:varchar(64)"`
	QuoteNumberPrefix   string    `gorm:"type:varchar(10)"`
	CreatedAt           time.Time `gorm:"not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (TenantIntegrationConfigModel) TableName() string {
	return "tenant_integration_configs"
}

// ToDomain converts the persistence model to a domain TenantConfig.
func (m *TenantIntegrationConfigModel) ToDomain() *integration.TenantConfig {
	return &integration.TenantConfig{
		TenantID:            m.TenantID,
		TenantName:          m.TenantName,
		Enabled:             m.Enabled,
		APIToken:            m.APIToken,
		CompanyDomain:       m.CompanyDomain,
		QuoteNumberFieldKey: m.QuoteNumberFieldKey,
		QuoteIDFieldKey:     m.QuoteIDFieldKey,
		QuoteNumberPrefix:   m.QuoteNumberPrefix,
	}
}

// TenantIntegrationConfigModelFromDomain converts a domain TenantConfig
// to its persistence model.
func TenantIntegrationConfigModelFromDomain(cfg *integration.TenantConfig) *TenantIntegrationConfigModel {
	return &TenantIntegrationConfigModel{
		TenantID:            cfg.TenantID,
		TenantName:          cfg.TenantName,
		Enabled:             cfg.Enabled,
		APIToken:            cfg.APIToken,
		CompanyDomain:       cfg.CompanyDomain,
		QuoteNumberFieldKey: cfg.QuoteNumberFieldKey,
		QuoteIDFieldKey:     cfg.QuoteIDFieldKey,
		QuoteNumberPrefix:   cfg.QuoteNumberPrefix,
	}
}
