package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionGuard serializes fix workflows per tenant. At most one session
// may hold the guard for a tenant at a time; the TTL bounds how long a
// crashed workflow can keep the tenant locked.
type SessionGuard interface {
	// Acquire attempts to claim the tenant for sessionID. Returns false
	// when another session already holds the claim.
	Acquire(ctx context.Context, tenantID, sessionID uuid.UUID, ttl time.Duration) (bool, error)

	// Release drops the tenant's claim. Releasing an unclaimed tenant
	// is not an error.
	Release(ctx context.Context, tenantID uuid.UUID) error

	// Close releases the guard's resources.
	Close() error
}
