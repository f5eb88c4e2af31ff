package integration

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CRMGateway is the outbound call surface for the Pipedrive platform.
// Every implementation must pass each call through the platform's rate
// governor before dispatch and feed response headers back into it.
type CRMGateway interface {
	// ListWonDeals returns all deals currently in the won state,
	// following pagination to exhaustion.
	ListWonDeals(ctx context.Context, cfg *TenantConfig) ([]Deal, error)
	// ListDealProducts returns the products attached to a deal.
	ListDealProducts(ctx context.Context, cfg *TenantConfig, dealID int64) ([]DealProduct, error)
	// UpdateDealValue sets the deal's monetary value.
	UpdateDealValue(ctx context.Context, cfg *TenantConfig, dealID int64, value decimal.Decimal) error
	// UpdateDealField sets a single custom field on a deal.
	UpdateDealField(ctx context.Context, cfg *TenantConfig, dealID int64, fieldKey, value string) error
}

// AccountingGateway is the outbound call surface for the Xero platform.
// Calls carry the credential's access token plus the target tenant.
type AccountingGateway interface {
	// Connections returns the tenant connections reachable with the token.
	Connections(ctx context.Context, accessToken string) ([]uuid.UUID, error)
	// ListQuotes returns all non-deleted quotes for the tenant,
	// following pagination to exhaustion.
	ListQuotes(ctx context.Context, accessToken string, tenantID uuid.UUID) ([]Quote, error)
	// GetQuote returns a single quote by ID.
	GetQuote(ctx context.Context, accessToken string, tenantID uuid.UUID, quoteID string) (*Quote, error)
	// UpdateQuoteNumber rewrites the quote's document number.
	UpdateQuoteNumber(ctx context.Context, accessToken string, tenantID uuid.UUID, quoteID, number string) error
	// UpdateQuoteStatus transitions the quote to the given status.
	UpdateQuoteStatus(ctx context.Context, accessToken string, tenantID uuid.UUID, quoteID, status string) error
}

// TokenExchanger exchanges a refresh token for a new credential at the
// accounting platform's token endpoint. A successful exchange consumes
// the presented refresh token.
type TokenExchanger interface {
	RefreshCredential(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, expiresIn int64, err error)
}
