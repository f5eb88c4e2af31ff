package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/quotedeck/backend/internal/domain/shared"
)

// SessionStatus is the fix workflow state. Transitions are strictly
// pending -> running -> completed | completed_with_errors; there is no
// path back from a terminal state.
type SessionStatus string

const (
	SessionPending             SessionStatus = "pending"
	SessionRunning             SessionStatus = "running"
	SessionCompleted           SessionStatus = "completed"
	SessionCompletedWithErrors SessionStatus = "completed_with_errors"
)

// FixOutcome is the terminal outcome of one processed issue.
type FixOutcome string

const (
	OutcomeFixed         FixOutcome = "fixed"
	OutcomeFailed        FixOutcome = "failed"
	OutcomeSkippedManual FixOutcome = "skipped_manual"
)

// FixResult records the outcome of remediating a single issue.
type FixResult struct {
	Code    IssueCode  `json:"code"`
	DealID  int64      `json:"deal_id"`
	QuoteID string     `json:"quote_id"`
	Outcome FixOutcome `json:"outcome"`
	Error   string     `json:"error,omitempty"`
}

// SessionSummary aggregates a terminal session.
type SessionSummary struct {
	Total         int           `json:"total"`
	Fixed         int           `json:"fixed"`
	Failed        int           `json:"failed"`
	SkippedManual int           `json:"skipped_manual"`
	Elapsed       time.Duration `json:"elapsed_ms"`
}

// Session is one execution of the fix workflow against a frozen list
// of issues for one tenant.
type Session struct {
	ID         uuid.UUID       `json:"id"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	TenantName string          `json:"tenant_name"`
	Issues     []IssueRecord   `json:"issues"`
	FixResults []FixResult     `json:"fix_results"`
	Status     SessionStatus   `json:"status"`
	Summary    *SessionSummary `json:"summary,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// NewSession constructs a pending session. The issue list is copied so
// later mutation of the caller's slice cannot reach the session.
func NewSession(tenantID uuid.UUID, tenantName string, issues []IssueRecord) *Session {
	frozen := make([]IssueRecord, len(issues))
	copy(frozen, issues)
	return &Session{
		ID:         uuid.New(),
		TenantID:   tenantID,
		TenantName: tenantName,
		Issues:     frozen,
		FixResults: make([]FixResult, 0, len(frozen)),
		Status:     SessionPending,
	}
}

// Start transitions pending -> running.
func (s *Session) Start() error {
	if s.Status != SessionPending {
		return shared.NewDomainError("INVALID_STATE", "session is not pending")
	}
	s.Status = SessionRunning
	s.StartedAt = time.Now()
	return nil
}

// RecordResult appends one fix result. Only valid while running.
func (s *Session) RecordResult(r FixResult) error {
	if s.Status != SessionRunning {
		return shared.NewDomainError("INVALID_STATE", "session is not running")
	}
	s.FixResults = append(s.FixResults, r)
	return nil
}

// Complete transitions running to a terminal state and computes the
// summary. The status is completed_with_errors when any result failed.
func (s *Session) Complete() error {
	if s.Status != SessionRunning {
		return shared.NewDomainError("INVALID_STATE", "session is not running")
	}

	summary := &SessionSummary{Total: len(s.FixResults)}
	for _, r := range s.FixResults {
		switch r.Outcome {
		case OutcomeFixed:
			summary.Fixed++
		case OutcomeFailed:
			summary.Failed++
		case OutcomeSkippedManual:
			summary.SkippedManual++
		}
	}

	now := time.Now()
	summary.Elapsed = now.Sub(s.StartedAt)
	s.Summary = summary
	s.FinishedAt = &now

	if summary.Failed > 0 {
		s.Status = SessionCompletedWithErrors
	} else {
		s.Status = SessionCompleted
	}
	return nil
}

// IsTerminal reports whether the session reached a terminal state.
func (s *Session) IsTerminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionCompletedWithErrors
}

// ProgressEventType enumerates progress stream event types.
type ProgressEventType string

const (
	EventSessionStarted   ProgressEventType = "session_started"
	EventProgress         ProgressEventType = "progress"
	EventSessionCompleted ProgressEventType = "session_completed"
	EventError            ProgressEventType = "error"
	EventDone             ProgressEventType = "done"
)

// ProgressEvent is one message on the workflow progress stream. Events
// are transient; the engine does not persist them.
type ProgressEvent struct {
	Type    ProgressEventType `json:"type"`
	Payload any               `json:"payload,omitempty"`
}
