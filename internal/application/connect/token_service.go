// Package connect manages the accounting platform connection lifecycle:
// storing OAuth credentials, resolving tenant connections, and keeping
// access tokens fresh.
package connect

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/quotedeck/backend/internal/domain/integration"
)

// AuthError signals that the caller has no usable accounting
// connection and must re-authorize.
type AuthError struct {
	Message string
	Err     error
}

// Error implements the error interface
func (e *AuthError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause
func (e *AuthError) Unwrap() error {
	return e.Err
}

// HTTPStatusCode returns the HTTP status code for this error (401 Unauthorized)
func (e *AuthError) HTTPStatusCode() int {
	return http.StatusUnauthorized
}

// TokenServiceConfig contains configuration for TokenService
type TokenServiceConfig struct {
	// RefreshBuffer is how close to expiry a token may get before it
	// is refreshed ahead of use.
	RefreshBuffer time.Duration
}

// DefaultTokenServiceConfig returns default configuration
func DefaultTokenServiceConfig() TokenServiceConfig {
	return TokenServiceConfig{
		RefreshBuffer: 60 * time.Second,
	}
}

// TokenService hands out valid access credentials. Refreshes are
// serialized per user/tenant pair: the platform rotates refresh tokens
// on every exchange, so two concurrent refreshes with the same token
// would invalidate the whole connection.
type TokenService struct {
	credentials integration.CredentialRepository
	exchanger   integration.TokenExchanger
	accounting  integration.AccountingGateway
	logger      *zap.Logger
	config      TokenServiceConfig

	group singleflight.Group
}

// NewTokenService creates a new TokenService
func NewTokenService(
	credentials integration.CredentialRepository,
	exchanger integration.TokenExchanger,
	accounting integration.AccountingGateway,
	logger *zap.Logger,
	config TokenServiceConfig,
) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.RefreshBuffer <= 0 {
		config.RefreshBuffer = DefaultTokenServiceConfig().RefreshBuffer
	}
	return &TokenService{
		credentials: credentials,
		exchanger:   exchanger,
		accounting:  accounting,
		logger:      logger,
		config:      config,
	}
}

// Connect stores a freshly authorized token pair and resolves the
// tenant connections reachable with it.
func (s *TokenService) Connect(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, expiresIn int64) (*integration.Credential, error) {
	tenants, err := s.accounting.Connections(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tenant connections: %w", err)
	}

	cred := &integration.Credential{
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
		TenantIDs:    tenants,
	}
	if err := s.credentials.Save(ctx, cred); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	s.logger.Info("accounting connection established",
		zap.String("user_id", userID.String()),
		zap.Int("tenant_count", len(tenants)))
	return cred, nil
}

// Disconnect removes the user's stored credential.
func (s *TokenService) Disconnect(ctx context.Context, userID uuid.UUID) error {
	return s.credentials.Delete(ctx, userID)
}

// ValidCredential returns a credential whose access token is valid for
// at least the refresh buffer. When tenantID is non-nil the credential
// must grant access to that tenant. A stale token is refreshed before
// return; a failed refresh is an error, never a stale credential.
func (s *TokenService) ValidCredential(ctx context.Context, userID, tenantID uuid.UUID) (*integration.Credential, error) {
	cred, err := s.loadAndCheck(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if !cred.ExpiresWithin(s.config.RefreshBuffer) {
		return cred, nil
	}

	key := userID.String() + ":" + tenantID.String()
	result, err, _ := s.group.Do(key, func() (any, error) {
		// Another caller may have refreshed while this one waited for
		// the flight; re-read before spending the refresh token.
		cred, err := s.loadAndCheck(ctx, userID, tenantID)
		if err != nil {
			return nil, err
		}
		if !cred.ExpiresWithin(s.config.RefreshBuffer) {
			return cred, nil
		}
		return s.refresh(ctx, cred)
	})
	if err != nil {
		return nil, err
	}
	return result.(*integration.Credential), nil
}

// loadAndCheck loads the user's credential and verifies tenant access.
func (s *TokenService) loadAndCheck(ctx context.Context, userID, tenantID uuid.UUID) (*integration.Credential, error) {
	cred, err := s.credentials.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, integration.ErrCredentialNotFound) {
			return nil, &AuthError{
				Message: "no accounting connection for this user, re-authorization required",
				Err:     err,
			}
		}
		return nil, err
	}
	if tenantID != uuid.Nil && !cred.GrantsTenant(tenantID) {
		return nil, fmt.Errorf("%w: tenant %s", integration.ErrTenantAccessDenied, tenantID)
	}
	return cred, nil
}

// refresh exchanges the refresh token and persists the rotated pair.
func (s *TokenService) refresh(ctx context.Context, cred *integration.Credential) (*integration.Credential, error) {
	accessToken, refreshToken, expiresIn, err := s.exchanger.RefreshCredential(ctx, cred.RefreshToken)
	if err != nil {
		s.logger.Warn("credential refresh failed",
			zap.String("user_id", cred.UserID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", integration.ErrCredentialRefreshFailed, err)
	}

	refreshed := &integration.Credential{
		UserID:       cred.UserID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(expiresIn) * time.Second),
		TenantIDs:    cred.TenantIDs,
	}
	if err := s.credentials.Save(ctx, refreshed); err != nil {
		// The old refresh token is already consumed; losing the new
		// pair here would orphan the connection.
		s.logger.Error("failed to persist rotated credential",
			zap.String("user_id", cred.UserID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to persist rotated credential: %w", err)
	}

	s.logger.Debug("credential refreshed",
		zap.String("user_id", cred.UserID.String()),
		zap.Time("expires_at", refreshed.ExpiresAt))
	return refreshed, nil
}
