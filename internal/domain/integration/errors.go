package integration

import "errors"

// Platform call errors. Adapters wrap these with %w so callers can use
// errors.Is regardless of which platform produced the failure.
var (
	// ErrPlatformUnavailable indicates the platform could not be reached
	ErrPlatformUnavailable = errors.New("integration: platform unavailable")
	// ErrPlatformRequestFailed indicates the platform returned a non-success response
	ErrPlatformRequestFailed = errors.New("integration: platform request failed")
	// ErrPlatformInvalidResponse indicates the platform response could not be decoded
	ErrPlatformInvalidResponse = errors.New("integration: invalid platform response")
	// ErrPlatformRateLimited indicates the platform returned 429 despite local admission
	ErrPlatformRateLimited = errors.New("integration: platform rate limited")
	// ErrPlatformNotConfigured indicates the tenant has no usable platform configuration
	ErrPlatformNotConfigured = errors.New("integration: platform not configured for tenant")
	// ErrIntegrationDisabled indicates the tenant explicitly disabled the integration
	ErrIntegrationDisabled = errors.New("integration: integration disabled for tenant")
)

// Credential errors.
var (
	// ErrCredentialNotFound indicates no stored credential exists for the user
	ErrCredentialNotFound = errors.New("integration: credential not found")
	// ErrCredentialRefreshFailed indicates the refresh token was rejected by the platform
	ErrCredentialRefreshFailed = errors.New("integration: credential refresh failed")
	// ErrTenantAccessDenied indicates the credential does not grant access to the tenant
	ErrTenantAccessDenied = errors.New("integration: credential does not grant access to tenant")
)
