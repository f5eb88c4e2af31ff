package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotedeck/backend/internal/infrastructure/auth"
	"github.com/quotedeck/backend/internal/infrastructure/config"
)

func newTestJWTService(t *testing.T) *auth.JWTService {
	t.Helper()
	return auth.NewJWTService(config.JWTConfig{
		Secret:                 "test-access-secret-at-least-32-chars",
		RefreshSecret:          "test-refresh-secret-at-least-32-char",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: 24 * time.Hour,
		Issuer:                 "quotedeck-test",
		MaxRefreshCount:        5,
	})
}

func newTestTokenPair(t *testing.T, svc *auth.JWTService) (*auth.TokenPair, auth.GenerateTokenInput) {
	t.Helper()
	input := auth.GenerateTokenInput{
		TenantID: uuid.New(),
		UserID:   uuid.New(),
	}
	pair, err := svc.GenerateTokenPair(input)
	require.NoError(t, err)
	return pair, input
}

func TestJWTAuthMiddleware_ValidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestJWTService(t)
	pair, input := newTestTokenPair(t, svc)

	var capturedUserID, capturedTenantID string
	var capturedClaims *auth.Claims

	router := gin.New()
	router.Use(JWTAuthMiddleware(svc))
	router.GET("/protected", func(c *gin.Context) {
		capturedUserID = GetJWTUserID(c)
		capturedTenantID = GetJWTTenantID(c)
		capturedClaims = GetJWTClaims(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+pair.AccessToken)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, input.UserID.String(), capturedUserID)
	assert.Equal(t, input.TenantID.String(), capturedTenantID)
	require.NotNil(t, capturedClaims)
	assert.Equal(t, auth.TokenTypeAccess, capturedClaims.TokenType)
}

func TestJWTAuthMiddleware_MissingHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestJWTService(t)

	router := gin.New()
	router.Use(JWTAuthMiddleware(svc))
	router.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN")
}

func TestJWTAuthMiddleware_MalformedHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestJWTService(t)

	router := gin.New()
	router.Use(JWTAuthMiddleware(svc))
	router.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Basic abc123"},
		{"empty token", BearerPrefix},
		{"garbage token", BearerPrefix + "not-a-jwt"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set(AuthHeaderKey, tc.header)
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestJWTAuthMiddleware_RefreshTokenRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestJWTService(t)
	pair, _ := newTestTokenPair(t, svc)

	router := gin.New()
	router.Use(JWTAuthMiddleware(svc))
	router.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+pair.RefreshToken)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_TOKEN_TYPE")
}

func TestJWTAuthMiddleware_SkipPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestJWTService(t)

	cfg := DefaultJWTConfig(svc)
	cfg.SkipPathPrefixes = []string{"/public/"}

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	router.GET("/api/v1/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/public/docs", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/api/v1/ping", "/public/docs"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuthMiddleware_OnErrorHook(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestJWTService(t)

	var hookErr error
	cfg := JWTMiddlewareConfig{
		JWTService: svc,
		OnError: func(c *gin.Context, err error) {
			hookErr = err
			c.AbortWithStatus(http.StatusTeapot)
		},
	}

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	router.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/protected", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Error(t, hookErr)
}

type stubBlacklist struct {
	blacklistedJTIs map[string]bool
	userInvalidated bool
	lookupErr       error
}

func (s *stubBlacklist) AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error {
	return nil
}

func (s *stubBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if s.lookupErr != nil {
		return false, s.lookupErr
	}
	return s.blacklistedJTIs[jti], nil
}

func (s *stubBlacklist) AddUserTokensToBlacklist(ctx context.Context, userID string, ttl time.Duration) error {
	return nil
}

func (s *stubBlacklist) IsUserTokenInvalidated(ctx context.Context, userID string, issuedAt time.Time) (bool, error) {
	if s.lookupErr != nil {
		return false, s.lookupErr
	}
	return s.userInvalidated, nil
}

func TestJWTAuthMiddleware_BlacklistedToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestJWTService(t)
	pair, _ := newTestTokenPair(t, svc)

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)

	cfg := DefaultJWTConfig(svc)
	cfg.TokenBlacklist = &stubBlacklist{blacklistedJTIs: map[string]bool{claims.ID: true}}

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	router.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+pair.AccessToken)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_REVOKED")
}

func TestJWTAuthMiddleware_UserSessionInvalidated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestJWTService(t)
	pair, _ := newTestTokenPair(t, svc)

	cfg := DefaultJWTConfig(svc)
	cfg.TokenBlacklist = &stubBlacklist{userInvalidated: true}

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	router.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+pair.AccessToken)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "TOKEN_REVOKED")
}

func TestJWTAuthMiddleware_BlacklistLookupFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestJWTService(t)
	pair, _ := newTestTokenPair(t, svc)

	cfg := DefaultJWTConfig(svc)
	cfg.TokenBlacklist = &stubBlacklist{lookupErr: assert.AnError}

	router := gin.New()
	router.Use(JWTAuthMiddlewareWithConfig(cfg))
	router.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set(AuthHeaderKey, BearerPrefix+pair.AccessToken)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetJWTClaims_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	assert.Nil(t, GetJWTClaims(c))
	assert.Empty(t, GetJWTUserID(c))
	assert.Empty(t, GetJWTTenantID(c))
}

func TestOptionalJWTAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestJWTService(t)
	pair, input := newTestTokenPair(t, svc)

	var capturedUserID string

	router := gin.New()
	router.Use(OptionalJWTAuthMiddleware(svc))
	router.GET("/maybe", func(c *gin.Context) {
		capturedUserID = GetJWTUserID(c)
		c.Status(http.StatusOK)
	})

	t.Run("no token passes through", func(t *testing.T) {
		capturedUserID = ""
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/maybe", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, capturedUserID)
	})

	t.Run("invalid token passes through without claims", func(t *testing.T) {
		capturedUserID = ""
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/maybe", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+"bogus")
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, capturedUserID)
	})

	t.Run("valid token populates claims", func(t *testing.T) {
		capturedUserID = ""
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/maybe", nil)
		req.Header.Set(AuthHeaderKey, BearerPrefix+pair.AccessToken)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, input.UserID.String(), capturedUserID)
	})
}
