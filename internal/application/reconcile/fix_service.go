package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quotedeck/backend/internal/domain/integration"
	"github.com/quotedeck/backend/internal/domain/reconcile"
)

// WorkflowDeps carries the per-run platform access a fix handler needs.
type WorkflowDeps struct {
	Config     *integration.TenantConfig
	Credential *integration.Credential
}

// FixHandler remediates one issue against the external platforms.
type FixHandler func(ctx context.Context, deps *WorkflowDeps, issue reconcile.IssueRecord) error

// FixServiceConfig contains configuration for FixService
type FixServiceConfig struct {
	// BatchSize is sized to stay under the CRM burst window.
	BatchSize int
	// BatchDelay is the fixed wait between batches. It is a deliberate
	// constant, not adaptive backoff; tune it alongside BatchSize.
	BatchDelay time.Duration
}

// DefaultFixServiceConfig returns default configuration
func DefaultFixServiceConfig() FixServiceConfig {
	return FixServiceConfig{
		BatchSize:  80,
		BatchDelay: 2100 * time.Millisecond,
	}
}

// FixService executes the fix workflow: batched, rate-respecting
// remediation of auto-fixable issues with per-item fault isolation.
type FixService struct {
	crm        integration.CRMGateway
	accounting integration.AccountingGateway
	audit      reconcile.AuditSink
	logger     *zap.Logger
	config     FixServiceConfig
	handlers   map[reconcile.IssueCode]FixHandler
}

// NewFixService creates a new FixService with the default handler
// registry.
func NewFixService(
	crm integration.CRMGateway,
	accounting integration.AccountingGateway,
	audit reconcile.AuditSink,
	logger *zap.Logger,
	config FixServiceConfig,
) *FixService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultFixServiceConfig().BatchSize
	}
	if config.BatchDelay < 0 {
		config.BatchDelay = DefaultFixServiceConfig().BatchDelay
	}

	s := &FixService{
		crm:        crm,
		accounting: accounting,
		audit:      audit,
		logger:     logger,
		config:     config,
		handlers:   make(map[reconcile.IssueCode]FixHandler),
	}
	s.RegisterHandler(reconcile.IssueValueMismatch, s.fixDealValue)
	s.RegisterHandler(reconcile.IssueProductCountMismatch, s.fixCrossLink)
	s.RegisterHandler(reconcile.IssueQuoteNotAccepted, s.fixQuoteStatus)
	s.RegisterHandler(reconcile.IssueBadQuoteNumber, s.fixQuoteNumber)
	return s
}

// WithConfig returns a new service instance sharing the handler
// registry but with different batch tuning, for per-request overrides.
func (s *FixService) WithConfig(config FixServiceConfig) *FixService {
	clone := *s
	if config.BatchSize > 0 {
		clone.config.BatchSize = config.BatchSize
	}
	if config.BatchDelay > 0 {
		clone.config.BatchDelay = config.BatchDelay
	}
	return &clone
}

// RegisterHandler binds an issue code to a remediation handler. Adding
// a code is a registration, not a new dispatch branch.
func (s *FixService) RegisterHandler(code reconcile.IssueCode, handler FixHandler) {
	s.handlers[code] = handler
}

// InitializeSession freezes the issue list into a pending session.
func (s *FixService) InitializeSession(tenantID uuid.UUID, tenantName string, issues []reconcile.IssueRecord) *reconcile.Session {
	return reconcile.NewSession(tenantID, tenantName, issues)
}

// ExecuteWorkflow drives a pending session to a terminal state. Issues
// run in fixed-size batches: batches are sequential with a fixed delay
// between them, items within a batch run concurrently. One item's
// failure never aborts its siblings or the session. Events are dropped
// when the optional channel is full; the workflow never waits on a
// consumer.
func (s *FixService) ExecuteWorkflow(ctx context.Context, session *reconcile.Session, deps *WorkflowDeps, events chan<- reconcile.ProgressEvent) *reconcile.Session {
	if err := session.Start(); err != nil {
		s.logger.Error("cannot start session",
			zap.String("session_id", session.ID.String()),
			zap.Error(err))
		emit(events, reconcile.ProgressEvent{Type: reconcile.EventError, Payload: map[string]any{
			"message": err.Error(),
		}})
		return session
	}

	emit(events, reconcile.ProgressEvent{Type: reconcile.EventSessionStarted, Payload: map[string]any{
		"sessionId":   session.ID,
		"tenantName":  session.TenantName,
		"totalIssues": len(session.Issues),
	}})

	total := len(session.Issues)
	for start := 0; start < total; start += s.config.BatchSize {
		if start > 0 {
			time.Sleep(s.config.BatchDelay)
		}
		end := start + s.config.BatchSize
		if end > total {
			end = total
		}

		results := s.runBatch(ctx, deps, session.Issues[start:end])
		for _, r := range results {
			if err := session.RecordResult(r); err != nil {
				s.logger.Error("failed to record fix result", zap.Error(err))
			}
		}

		emit(events, reconcile.ProgressEvent{Type: reconcile.EventProgress, Payload: map[string]any{
			"step":      fmt.Sprintf("batch %d/%d", start/s.config.BatchSize+1, (total+s.config.BatchSize-1)/s.config.BatchSize),
			"processed": end,
			"total":     total,
		}})
	}

	if err := session.Complete(); err != nil {
		s.logger.Error("cannot complete session",
			zap.String("session_id", session.ID.String()),
			zap.Error(err))
	}

	if s.audit != nil {
		if err := s.audit.AppendSession(ctx, session); err != nil {
			// Audit is best-effort: the fixes were already applied to
			// the external platforms.
			s.logger.Error("failed to persist session audit",
				zap.String("session_id", session.ID.String()),
				zap.Error(err))
		}
	}

	emit(events, reconcile.ProgressEvent{Type: reconcile.EventSessionCompleted, Payload: map[string]any{
		"sessionId":  session.ID,
		"status":     session.Status,
		"summary":    session.Summary,
		"fixResults": session.FixResults,
	}})

	s.logger.Info("fix workflow finished",
		zap.String("session_id", session.ID.String()),
		zap.String("status", string(session.Status)),
		zap.Int("total", total))
	return session
}

// RollbackSession is declared but intentionally not implemented: fixes
// write through to the external platforms and there is no recorded
// pre-image to restore.
func (s *FixService) RollbackSession(_ uuid.UUID) error {
	return reconcile.ErrRollbackNotImplemented
}

// runBatch processes one batch concurrently and returns results in
// input order.
func (s *FixService) runBatch(ctx context.Context, deps *WorkflowDeps, issues []reconcile.IssueRecord) []reconcile.FixResult {
	results := make([]reconcile.FixResult, len(issues))

	var wg sync.WaitGroup
	for i := range issues {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.fixOne(ctx, deps, issues[i])
		}(i)
	}
	wg.Wait()

	return results
}

// fixOne dispatches a single issue to its handler, isolating panics
// and retrying a rate-limited call once.
func (s *FixService) fixOne(ctx context.Context, deps *WorkflowDeps, issue reconcile.IssueRecord) (result reconcile.FixResult) {
	result = reconcile.FixResult{
		Code:    issue.Code,
		DealID:  issue.DealID,
		QuoteID: issue.QuoteID,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Outcome = reconcile.OutcomeFailed
			result.Error = fmt.Sprintf("panic: %v", r)
			s.logger.Error("fix handler panicked",
				zap.String("code", string(issue.Code)),
				zap.Int64("deal_id", issue.DealID),
				zap.Any("panic", r))
		}
	}()

	handler, ok := s.handlers[issue.Code]
	if issue.Code.IsManualOnly() || !ok {
		result.Outcome = reconcile.OutcomeSkippedManual
		return result
	}

	err := handler(ctx, deps, issue)
	if errors.Is(err, integration.ErrPlatformRateLimited) {
		// One retry after the inter-batch delay; a second 429 is a
		// plain failure.
		time.Sleep(s.config.BatchDelay)
		err = handler(ctx, deps, issue)
	}
	if err != nil {
		result.Outcome = reconcile.OutcomeFailed
		result.Error = err.Error()
		return result
	}

	result.Outcome = reconcile.OutcomeFixed
	return result
}
