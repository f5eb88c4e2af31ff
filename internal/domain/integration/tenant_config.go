package integration

import (
	"context"

	"github.com/google/uuid"
)

// TenantConfig holds the per-tenant wiring between the two platforms.
// The two field keys identify the custom Pipedrive deal fields that
// cross-link a deal to its Xero quote: one carries the quote number,
// the other the Xero quote ID.
type TenantConfig struct {
	TenantID            uuid.UUID
	TenantName          string
	Enabled             bool
	APIToken            string // Pipedrive API token; empty means not connected
	CompanyDomain       string // e.g. "acme" for acme.pipedrive.com
	QuoteNumberFieldKey string
	QuoteIDFieldKey     string
	// QuoteNumberPrefix is the department prefix quote numbers must
	// start with, e.g. "NY" for NY25202.
	QuoteNumberPrefix string
}

// Validate checks that the configuration is usable for reconciliation.
func (c *TenantConfig) Validate() error {
	if !c.Enabled {
		return ErrIntegrationDisabled
	}
	if c.APIToken == "" || c.CompanyDomain == "" {
		return ErrPlatformNotConfigured
	}
	if c.QuoteNumberFieldKey == "" || c.QuoteIDFieldKey == "" {
		return ErrPlatformNotConfigured
	}
	return nil
}

// ConfigProvider resolves tenant configuration. The engine is agnostic
// to how configuration is sourced; the persistence layer provides the
// production implementation.
type ConfigProvider interface {
	GetTenantConfig(ctx context.Context, tenantID uuid.UUID) (*TenantConfig, error)
}
