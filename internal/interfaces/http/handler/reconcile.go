package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appreconcile "github.com/quotedeck/backend/internal/application/reconcile"
	"github.com/quotedeck/backend/internal/domain/integration"
	"github.com/quotedeck/backend/internal/domain/reconcile"
	"github.com/quotedeck/backend/internal/interfaces/http/dto"
)

// progressEventBuffer bounds the per-stream event queue. The workflow
// drops events rather than wait on a slow consumer.
const progressEventBuffer = 256

// sessionClaimTTL bounds how long a crashed workflow can keep its
// tenant locked against new fix sessions.
const sessionClaimTTL = 30 * time.Minute

// ReconcileHandler exposes the validation and fix workflows.
type ReconcileHandler struct {
	BaseHandler
	validator *appreconcile.ValidationService
	fixer     *appreconcile.FixService
	configs   integration.ConfigProvider
	tokens    appreconcile.CredentialSource
	audit     reconcile.AuditSink
	guard     reconcile.SessionGuard
	logger    *zap.Logger
}

// NewReconcileHandler creates a new ReconcileHandler. guard may be nil,
// in which case concurrent fix sessions per tenant are not prevented.
func NewReconcileHandler(
	validator *appreconcile.ValidationService,
	fixer *appreconcile.FixService,
	configs integration.ConfigProvider,
	tokens appreconcile.CredentialSource,
	audit reconcile.AuditSink,
	guard reconcile.SessionGuard,
	logger *zap.Logger,
) *ReconcileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileHandler{
		validator: validator,
		fixer:     fixer,
		configs:   configs,
		tokens:    tokens,
		audit:     audit,
		guard:     guard,
		logger:    logger,
	}
}

// StreamValidation runs the evaluation and streams progress as
// server-sent events, ending with a terminal complete or error event.
// GET /api/v1/reconcile/validate/stream
func (h *ReconcileHandler) StreamValidation(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "user identity missing")
		return
	}
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	setSSEHeaders(c)

	events := make(chan reconcile.ProgressEvent, progressEventBuffer)
	type outcome struct {
		report *appreconcile.EvaluationReport
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer close(events)
		report, err := h.validator.Evaluate(c.Request.Context(), userID, tenantID, events)
		done <- outcome{report: report, err: err}
	}()

	for ev := range events {
		writeSSEEvent(c, string(ev.Type), ev.Payload)
	}

	result := <-done
	if result.err != nil {
		h.logger.Warn("validation stream failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(result.err))
		writeSSEEvent(c, "error", gin.H{"message": result.err.Error()})
		return
	}

	writeSSEEvent(c, "complete", gin.H{
		"session": result.report,
		"summary": result.report.Summary,
	})
}

// fixStreamRequest is the fix workflow request body.
type fixStreamRequest struct {
	TenantID string                  `json:"tenantId"`
	Issues   []reconcile.IssueRecord `json:"issues"`
	Config   *fixStreamConfig        `json:"config,omitempty"`
}

// fixStreamConfig optionally overrides workflow tuning per request.
type fixStreamConfig struct {
	BatchSize    int `json:"batchSize,omitempty"`
	BatchDelayMS int `json:"batchDelayMs,omitempty"`
}

// StreamFix validates the request, then runs the fix workflow
// fire-and-stream: the workflow runs on its own goroutine with its own
// context, and a client disconnect does not cancel it.
// POST /api/v1/reconcile/fix/stream
func (h *ReconcileHandler) StreamFix(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		h.Unauthorized(c, "user identity missing")
		return
	}

	var req fixStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.TenantID == "" {
		h.BadRequest(c, "tenantId is required")
		return
	}
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		h.BadRequest(c, "tenantId is not a valid UUID")
		return
	}
	if req.Issues == nil {
		h.BadRequest(c, "issues must be a list")
		return
	}

	cfg, err := h.configs.GetTenantConfig(c.Request.Context(), tenantID)
	if err != nil {
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotConfigured, "no configuration for tenant "+req.TenantID)
		return
	}
	if err := cfg.Validate(); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeNotConfigured, err.Error())
		return
	}
	cred, err := h.tokens.ValidCredential(c.Request.Context(), userID, tenantID)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeUnauthorized, "no usable platform credentials: "+err.Error())
		return
	}

	fixer := h.fixer
	if req.Config != nil {
		fixer = fixer.WithConfig(appreconcile.FixServiceConfig{
			BatchSize:  req.Config.BatchSize,
			BatchDelay: time.Duration(req.Config.BatchDelayMS) * time.Millisecond,
		})
	}

	session := fixer.InitializeSession(tenantID, cfg.TenantName, req.Issues)
	deps := &appreconcile.WorkflowDeps{Config: cfg, Credential: cred}

	if h.guard != nil {
		claimed, err := h.guard.Acquire(c.Request.Context(), tenantID, session.ID, sessionClaimTTL)
		if err != nil {
			h.InternalError(c, "failed to claim tenant for fixing")
			return
		}
		if !claimed {
			h.Conflict(c, "a fix session is already running for this tenant")
			return
		}
	}

	setSSEHeaders(c)

	events := make(chan reconcile.ProgressEvent, progressEventBuffer)
	go func() {
		defer close(events)
		if h.guard != nil {
			defer func() {
				if err := h.guard.Release(context.Background(), tenantID); err != nil {
					h.logger.Warn("failed to release tenant session claim",
						zap.String("tenant_id", tenantID.String()),
						zap.Error(err))
				}
			}()
		}
		// Deliberately not the request context: completion must not be
		// gated on the client still reading.
		fixer.ExecuteWorkflow(context.Background(), session, deps, events)
	}()

	clientGone := c.Request.Context().Done()
	for ev := range events {
		select {
		case <-clientGone:
			// Drain without writing; the workflow keeps running.
			continue
		default:
		}
		writeSSEEvent(c, string(ev.Type), ev.Payload)
	}

	select {
	case <-clientGone:
	default:
		writeSSEEvent(c, string(reconcile.EventDone), gin.H{})
	}
}

// RollbackSession always reports not implemented. There is no partial
// rollback behavior to preserve.
// DELETE /api/v1/reconcile/sessions
func (h *ReconcileHandler) RollbackSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Query("sessionId"))
	if err != nil {
		h.BadRequest(c, "sessionId query parameter is required")
		return
	}

	err = h.fixer.RollbackSession(sessionID)
	h.Error(c, http.StatusNotImplemented, dto.ErrCodeNotImplemented, err.Error())
}

// ListSessions returns the caller tenant's audited sessions.
// GET /api/v1/reconcile/sessions
func (h *ReconcileHandler) ListSessions(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.BadRequest(c, "invalid tenant ID")
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	sessions, err := h.audit.ListSessionsByTenant(c.Request.Context(), tenantID, limit, c.Query("sort"), c.Query("order"))
	if err != nil {
		h.InternalError(c, "failed to list sessions")
		return
	}
	h.Success(c, sessions)
}

// GetSession returns one audited session with its results.
// GET /api/v1/reconcile/sessions/:id
func (h *ReconcileHandler) GetSession(c *gin.Context) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.BadRequest(c, "invalid session ID")
		return
	}
	sessionID := uuid.MustParse(req.ID)

	session, err := h.audit.FindSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, reconcile.ErrSessionNotFound) {
			h.NotFound(c, "session not found")
			return
		}
		h.InternalError(c, "failed to load session")
		return
	}

	tenantID, err := getTenantID(c)
	if err == nil && session.TenantID != tenantID {
		h.NotFound(c, "session not found")
		return
	}
	h.Success(c, session)
}

// setSSEHeaders prepares the response for an event stream.
func setSSEHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()
}

// writeSSEEvent writes one server-sent event and flushes it.
func writeSSEEvent(c *gin.Context, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		data = []byte("{}")
	}
	_, _ = c.Writer.WriteString("event: " + event + "\n")
	_, _ = c.Writer.WriteString("data: " + string(data) + "\n\n")
	c.Writer.Flush()
}
