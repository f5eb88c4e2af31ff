package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quotedeck/backend/internal/application/connect"
	"github.com/quotedeck/backend/internal/domain/integration"
	"github.com/quotedeck/backend/internal/interfaces/http/dto"
)

// ConnectionService is the connection lifecycle surface the handler
// depends on.
type ConnectionService interface {
	Connect(ctx context.Context, userID uuid.UUID, accessToken, refreshToken string, expiresIn int64) (*integration.Credential, error)
	Disconnect(ctx context.Context, userID uuid.UUID) error
	ValidCredential(ctx context.Context, userID, tenantID uuid.UUID) (*integration.Credential, error)
}

// ConnectHandler manages the accounting platform connection.
type ConnectHandler struct {
	BaseHandler
	tokens ConnectionService
	logger *zap.Logger
}

// NewConnectHandler creates a new ConnectHandler
func NewConnectHandler(tokens ConnectionService, logger *zap.Logger) *ConnectHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectHandler{tokens: tokens, logger: logger}
}

// connectRequest carries the token pair obtained from the OAuth
// authorization flow.
type connectRequest struct {
	AccessToken  string `json:"accessToken" binding:"required"`
	RefreshToken string `json:"refreshToken" binding:"required"`
	ExpiresIn    int64  `json:"expiresIn" binding:"required,min=1"`
}

// connectionStatus is the caller-visible connection state. Tokens are
// never echoed back.
type connectionStatus struct {
	Connected bool        `json:"connected"`
	TenantIDs []uuid.UUID `json:"tenantIds,omitempty"`
	ExpiresAt string      `json:"expiresAt,omitempty"`
}

// Connect stores an authorized token pair and resolves its tenant set.
// POST /api/v1/connect/xero
func (h *ConnectHandler) Connect(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "user identity missing")
		return
	}

	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	cred, err := h.tokens.Connect(c.Request.Context(), userID, req.AccessToken, req.RefreshToken, req.ExpiresIn)
	if err != nil {
		h.logger.Warn("connect failed", zap.String("user_id", userID.String()), zap.Error(err))
		h.Error(c, http.StatusBadGateway, dto.ErrCodeUpstream, "failed to establish connection")
		return
	}

	h.Created(c, connectionStatus{
		Connected: true,
		TenantIDs: cred.TenantIDs,
		ExpiresAt: cred.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

// Status reports the current connection without exposing tokens.
// GET /api/v1/connect/xero
func (h *ConnectHandler) Status(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "user identity missing")
		return
	}

	cred, err := h.tokens.ValidCredential(c.Request.Context(), userID, uuid.Nil)
	if err != nil {
		var authErr *connect.AuthError
		if errors.As(err, &authErr) {
			h.Success(c, connectionStatus{Connected: false})
			return
		}
		if errors.Is(err, integration.ErrCredentialRefreshFailed) {
			h.Success(c, connectionStatus{Connected: false})
			return
		}
		h.InternalError(c, "failed to check connection")
		return
	}

	h.Success(c, connectionStatus{
		Connected: true,
		TenantIDs: cred.TenantIDs,
		ExpiresAt: cred.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z"),
	})
}

// Disconnect removes the stored credential.
// DELETE /api/v1/connect/xero
func (h *ConnectHandler) Disconnect(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "user identity missing")
		return
	}

	if err := h.tokens.Disconnect(c.Request.Context(), userID); err != nil {
		h.InternalError(c, "failed to disconnect")
		return
	}
	h.NoContent(c)
}
