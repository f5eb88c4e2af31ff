package pipedrive

import (
	"errors"
	"fmt"
	"time"
)

// Config validation errors.
var (
	ErrConfigInvalidBurstLimit = errors.New("pipedrive: burst limit must be positive")
	ErrConfigInvalidDailyLimit = errors.New("pipedrive: daily limit must be positive")
)

// Config holds adapter-level Pipedrive settings. Per-tenant settings
// (API token, company domain, custom field keys) live in the tenant
// configuration and are passed with every call.
type Config struct {
	// APIBaseURL overrides the per-tenant company URL when set.
	// Used in tests and for proxy deployments.
	APIBaseURL string

	TimeoutSeconds int

	// Pipedrive enforces a token budget per short fixed window plus a
	// daily budget. Both are advertised back in response headers.
	BurstLimit  int
	BurstWindow time.Duration
	DailyLimit  int
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.BurstLimit == 0 {
		c.BurstLimit = 80
	}
	if c.BurstWindow == 0 {
		c.BurstWindow = 2 * time.Second
	}
	if c.DailyLimit == 0 {
		c.DailyLimit = 10000
	}
	if c.BurstLimit < 0 {
		return ErrConfigInvalidBurstLimit
	}
	if c.DailyLimit < 0 {
		return ErrConfigInvalidDailyLimit
	}
	return nil
}

// baseURL returns the API base URL for a tenant's company domain.
func (c *Config) baseURL(companyDomain string) string {
	if c.APIBaseURL != "" {
		return c.APIBaseURL
	}
	return fmt.Sprintf("https://%s.pipedrive.com/api/v1", companyDomain)
}
