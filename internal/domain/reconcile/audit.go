package reconcile

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned when no audit record exists for
	// the requested session.
	ErrSessionNotFound = errors.New("reconcile: session not found")

	// ErrRollbackNotImplemented is returned by every rollback attempt.
	// Fixes write through to the external platforms, so there is no
	// local state to restore.
	ErrRollbackNotImplemented = errors.New("reconcile: session rollback not implemented")
)

// AuditSink records terminal sessions for later inspection. Append is
// called exactly once per session, after it reaches a terminal state.
type AuditSink interface {
	AppendSession(ctx context.Context, session *Session) error
	FindSession(ctx context.Context, id uuid.UUID) (*Session, error)
	// ListSessionsByTenant returns the tenant's sessions without their
	// per-issue results. sortField and orderDir are advisory; the
	// implementation falls back to newest first when they are invalid.
	ListSessionsByTenant(ctx context.Context, tenantID uuid.UUID, limit int, sortField, orderDir string) ([]*Session, error)
}
