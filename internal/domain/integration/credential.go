package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Credential is an OAuth2 access/refresh token pair for the accounting
// platform, bound to a local user and the set of Xero tenant connections
// the pair can reach. Xero rotates the refresh token on every exchange,
// so a credential must only ever be refreshed by one caller at a time.
type Credential struct {
	UserID       uuid.UUID
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	// TenantIDs lists the Xero tenant connections reachable with this
	// credential, as reported by the connections endpoint.
	TenantIDs []uuid.UUID
}

// ExpiresWithin reports whether the access token expires within d.
func (c *Credential) ExpiresWithin(d time.Duration) bool {
	return time.Until(c.ExpiresAt) <= d
}

// GrantsTenant reports whether the credential can reach the given tenant.
func (c *Credential) GrantsTenant(tenantID uuid.UUID) bool {
	for _, id := range c.TenantIDs {
		if id == tenantID {
			return true
		}
	}
	return false
}

// CredentialRepository persists credentials. At most one current
// credential exists per user; Save replaces any previous one.
type CredentialRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*Credential, error)
	Save(ctx context.Context, cred *Credential) error
	Delete(ctx context.Context, userID uuid.UUID) error
}
