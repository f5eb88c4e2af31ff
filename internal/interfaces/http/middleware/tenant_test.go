package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTenantValidator struct {
	known map[string]*TenantInfo
}

func (f *fakeTenantValidator) ValidateTenant(tenantID string) (*TenantInfo, error) {
	if info, ok := f.known[tenantID]; ok {
		return info, nil
	}
	return nil, errors.New("tenant not found or suspended")
}

func newTenantRouter(cfg TenantMiddlewareConfig, captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(TenantMiddlewareWithConfig(cfg))
	router.GET("/api/v1/sessions", func(c *gin.Context) {
		if captured != nil {
			*captured = GetTenantID(c)
		}
		c.Status(http.StatusOK)
	})
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestTenantMiddleware_HeaderResolution(t *testing.T) {
	tenantID := uuid.NewString()
	var captured string
	router := newTenantRouter(DefaultTenantConfig(), &captured)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set(TenantHeaderKey, tenantID)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, tenantID, captured)
}

func TestTenantMiddleware_JWTClaimTakesPriority(t *testing.T) {
	gin.SetMode(gin.TestMode)
	claimTenant := uuid.NewString()
	headerTenant := uuid.NewString()

	var captured string
	router := gin.New()
	router.Use(func(c *gin.Context) {
		// stand-in for the JWT middleware having run first
		c.Set(JWTTenantIDKey, claimTenant)
	})
	router.Use(TenantMiddleware())
	router.GET("/api/v1/sessions", func(c *gin.Context) {
		captured = GetTenantID(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set(TenantHeaderKey, headerTenant)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, claimTenant, captured)
}

func TestTenantMiddleware_SubdomainResolution(t *testing.T) {
	cases := []struct {
		name string
		host string
		want string
	}{
		{"single label", "acme.quotedeck.io", "acme"},
		{"with port", "acme.quotedeck.io:8080", "acme"},
		{"multi level keeps leftmost", "eu.acme.quotedeck.io", "eu"},
		{"bare domain", "quotedeck.io", ""},
		{"www stripped", "www.quotedeck.io", ""},
		{"unrelated host", "acme.example.com", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tenantFromSubdomain(tc.host, "quotedeck.io"))
		})
	}
}

func TestTenantMiddleware_MissingTenant(t *testing.T) {
	t.Run("required rejects", func(t *testing.T) {
		router := newTenantRouter(DefaultTenantConfig(), nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Tenant identification required")
	})

	t.Run("optional passes through", func(t *testing.T) {
		cfg := DefaultTenantConfig()
		cfg.Required = false
		var captured string
		router := newTenantRouter(cfg, &captured)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, captured)
	})
}

func TestTenantMiddleware_RejectsMalformedID(t *testing.T) {
	router := newTenantRouter(DefaultTenantConfig(), nil)

	for _, bad := range []string{"not-a-uuid", "12345", "acme'; DROP TABLE tenants--"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		req.Header.Set(TenantHeaderKey, bad)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code, bad)
		assert.Contains(t, w.Body.String(), "Invalid tenant ID format")
	}
}

func TestTenantMiddleware_Validator(t *testing.T) {
	activeTenant := uuid.New()
	validator := &fakeTenantValidator{
		known: map[string]*TenantInfo{
			activeTenant.String(): {ID: activeTenant, Name: "Acme Distribution"},
		},
	}

	cfg := DefaultTenantConfig()
	cfg.Validator = validator

	gin.SetMode(gin.TestMode)
	var capturedName string
	router := gin.New()
	router.Use(TenantMiddlewareWithConfig(cfg))
	router.GET("/api/v1/sessions", func(c *gin.Context) {
		capturedName = GetTenantName(c)
		c.Status(http.StatusOK)
	})

	t.Run("known tenant", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		req.Header.Set(TenantHeaderKey, activeTenant.String())
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Acme Distribution", capturedName)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		req.Header.Set(TenantHeaderKey, uuid.NewString())
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Invalid or inactive tenant")
	})
}

func TestTenantMiddleware_SkipPaths(t *testing.T) {
	router := newTenantRouter(DefaultTenantConfig(), nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetTenantUUID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("resolved tenant parses", func(t *testing.T) {
		tenantID := uuid.New()
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Set(TenantIDKey, tenantID.String())

		got, err := GetTenantUUID(c)
		require.NoError(t, err)
		assert.Equal(t, tenantID, got)
	})

	t.Run("empty context yields nil uuid", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())

		got, err := GetTenantUUID(c)
		require.NoError(t, err)
		assert.Equal(t, uuid.Nil, got)
	})
}
