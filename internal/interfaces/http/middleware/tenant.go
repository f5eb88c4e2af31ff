package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quotedeck/backend/internal/infrastructure/logger"
)

// Tenant context keys
const (
	TenantIDKey     = "tenant_id"
	TenantNameKey   = "tenant_name"
	TenantHeaderKey = "X-Tenant-ID"
)

// TenantInfo describes a resolved tenant
type TenantInfo struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// TenantValidator checks that a tenant exists and is active
type TenantValidator interface {
	ValidateTenant(tenantID string) (*TenantInfo, error)
}

// TenantMiddlewareConfig holds configuration for tenant resolution
type TenantMiddlewareConfig struct {
	// HeaderEnabled allows resolution from the X-Tenant-ID header
	HeaderEnabled bool
	// JWTEnabled allows resolution from JWT claims; the JWT middleware
	// must run earlier in the chain
	JWTEnabled bool
	// SubdomainEnabled allows resolution from the request host
	SubdomainEnabled bool
	// BaseDomain is required for subdomain resolution, e.g. "quotedeck.io"
	BaseDomain string
	// SkipPaths bypass tenant resolution entirely
	SkipPaths []string
	// Required rejects requests that resolve no tenant
	Required bool
	// Validator optionally verifies the resolved tenant
	Validator TenantValidator
	Logger    *zap.Logger
}

// DefaultTenantConfig returns the default tenant middleware configuration
func DefaultTenantConfig() TenantMiddlewareConfig {
	return TenantMiddlewareConfig{
		HeaderEnabled: true,
		JWTEnabled:    true,
		SkipPaths:     []string{"/health", "/healthz", "/ready", "/metrics", "/api/v1/health"},
		Required:      true,
	}
}

// TenantMiddleware resolves the tenant for each request, preferring JWT
// claims over the X-Tenant-ID header over the subdomain
func TenantMiddleware() gin.HandlerFunc {
	return TenantMiddlewareWithConfig(DefaultTenantConfig())
}

// TenantMiddlewareWithConfig returns tenant middleware with custom configuration
func TenantMiddlewareWithConfig(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath || strings.HasPrefix(path, skipPath+"/") {
				c.Next()
				return
			}
		}

		tenantID, source := resolveTenant(c, cfg)

		if tenantID != "" {
			if _, err := uuid.Parse(tenantID); err != nil {
				respondUnauthorized(c, "Invalid tenant ID format")
				return
			}
		}

		if tenantID == "" {
			if cfg.Required {
				respondUnauthorized(c, "Tenant identification required")
				return
			}
			c.Next()
			return
		}

		var info *TenantInfo
		if cfg.Validator != nil {
			var err error
			info, err = cfg.Validator.ValidateTenant(tenantID)
			if err != nil {
				log := cfg.Logger
				if log == nil {
					log = logger.FromContext(c.Request.Context())
				}
				log.Warn("Tenant validation failed",
					zap.String("tenant_id", tenantID),
					zap.Error(err),
				)
				respondUnauthorized(c, "Invalid or inactive tenant")
				return
			}
		}

		c.Set(TenantIDKey, tenantID)
		if info != nil {
			c.Set(TenantNameKey, info.Name)
		}

		// service layer reads the tenant off the request context
		ctx := c.Request.Context()
		ctx, _ = logger.WithTenantID(ctx, logger.FromContext(ctx), tenantID)
		c.Request = c.Request.WithContext(ctx)

		if cfg.Logger != nil {
			cfg.Logger.Debug("Tenant resolved",
				zap.String("tenant_id", tenantID),
				zap.String("source", source),
			)
		}

		c.Next()
	}
}

// resolveTenant walks the configured sources in priority order and
// returns the tenant ID plus the source it came from
func resolveTenant(c *gin.Context, cfg TenantMiddlewareConfig) (string, string) {
	if cfg.JWTEnabled {
		if claimed, ok := c.Get(JWTTenantIDKey); ok {
			if id, ok := claimed.(string); ok && id != "" {
				return id, "jwt"
			}
		}
	}

	if cfg.HeaderEnabled {
		if id := c.GetHeader(TenantHeaderKey); id != "" {
			return id, "header"
		}
	}

	if cfg.SubdomainEnabled && cfg.BaseDomain != "" {
		if id := tenantFromSubdomain(c.Request.Host, cfg.BaseDomain); id != "" {
			return id, "subdomain"
		}
	}

	return "", ""
}

// tenantFromSubdomain pulls the leftmost label in front of the base
// domain, so "acme.quotedeck.io" resolves to "acme"
func tenantFromSubdomain(host, baseDomain string) string {
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	subdomain, found := strings.CutSuffix(host, "."+baseDomain)
	if !found || subdomain == "" || subdomain == "www" {
		return ""
	}

	labels := strings.Split(subdomain, ".")
	return labels[0]
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "UNAUTHORIZED",
			"message": message,
		},
	})
}

// GetTenantID retrieves the tenant ID from gin.Context
func GetTenantID(c *gin.Context) string {
	if tenantID, exists := c.Get(TenantIDKey); exists {
		if id, ok := tenantID.(string); ok {
			return id
		}
	}
	return ""
}

// GetTenantUUID retrieves the tenant ID as a UUID from gin.Context
func GetTenantUUID(c *gin.Context) (uuid.UUID, error) {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(tenantID)
}

// GetTenantName retrieves the validated tenant name from gin.Context
func GetTenantName(c *gin.Context) string {
	if name, exists := c.Get(TenantNameKey); exists {
		if n, ok := name.(string); ok {
			return n
		}
	}
	return ""
}
