package xero

import "errors"

// Config validation errors.
var (
	ErrConfigMissingClientID     = errors.New("xero: missing client ID")
	ErrConfigMissingClientSecret = errors.New("xero: missing client secret")
)

// Config holds Xero app-level settings. The client credentials are
// shared across tenants; per-tenant access is carried by the OAuth
// credential and the xero-tenant-id header.
type Config struct {
	ClientID     string
	ClientSecret string

	// APIBaseURL and TokenURL default to the public Xero endpoints;
	// overridable for tests.
	APIBaseURL string
	TokenURL   string

	TimeoutSeconds int

	// Xero enforces 60 calls per minute and 5000 per day, advertised
	// via X-MinLimit-Remaining / X-DayLimit-Remaining headers.
	MinuteLimit int
	DailyLimit  int
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return ErrConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrConfigMissingClientSecret
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://api.xero.com/api.xro/2.0"
	}
	if c.TokenURL == "" {
		c.TokenURL = "https://identity.xero.com/connect/token"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.MinuteLimit <= 0 {
		c.MinuteLimit = 60
	}
	if c.DailyLimit <= 0 {
		c.DailyLimit = 5000
	}
	return nil
}
