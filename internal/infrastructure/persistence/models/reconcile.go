package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/quotedeck/backend/internal/domain/reconcile"
)

// ReconSessionModel is the audit record for one fix workflow session.
// The frozen issue list is stored as JSON; results get their own rows.
type ReconSessionModel struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID  `gorm:"type:uuid;not null;index"`
	TenantName    string     `gorm:"type:varchar(200);not null"`
	Status        string     `gorm:"type:varchar(30);not null"`
	IssuesJSON    string     `gorm:"column:issues;type:jsonb;default:'[]'"`
	Total         int        `gorm:"not null;default:0"`
	Fixed         int        `gorm:"not null;default:0"`
	Failed        int        `gorm:"not null;default:0"`
	SkippedManual int        `gorm:"not null;default:0"`
	ElapsedMS     int64      `gorm:"column:elapsed_ms;not null;default:0"`
	StartedAt     time.Time  `gorm:"not null"`
	FinishedAt    *time.Time `gorm:""`
	CreatedAt     time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReconSessionModel) TableName() string {
	return "recon_sessions"
}

// ReconSessionResultModel is one fix outcome within a session.
type ReconSessionResultModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index"`
	Code      string    `gorm:"type:varchar(40);not null"`
	DealID    int64     `gorm:"not null"`
	QuoteID   string    `gorm:"type:varchar(64)"`
	Outcome   string    `gorm:"type:varchar(20);not null"`
	Error     string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ReconSessionResultModel) TableName() string {
	return "recon_session_results"
}

// ReconSessionModelFromDomain converts a terminal session to its audit
// rows.
func ReconSessionModelFromDomain(s *reconcile.Session) (*ReconSessionModel, []ReconSessionResultModel) {
	issues, err := json.Marshal(s.Issues)
	if err != nil {
		issues = []byte("[]")
	}

	model := &ReconSessionModel{
		ID:         s.ID,
		TenantID:   s.TenantID,
		TenantName: s.TenantName,
		Status:     string(s.Status),
		IssuesJSON: string(issues),
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
	if s.Summary != nil {
		model.Total = s.Summary.Total
		model.Fixed = s.Summary.Fixed
		model.Failed = s.Summary.Failed
		model.SkippedManual = s.Summary.SkippedManual
		model.ElapsedMS = s.Summary.Elapsed.Milliseconds()
	}

	results := make([]ReconSessionResultModel, 0, len(s.FixResults))
	for _, r := range s.FixResults {
		results = append(results, ReconSessionResultModel{
			ID:        uuid.New(),
			SessionID: s.ID,
			Code:      string(r.Code),
			DealID:    r.DealID,
			QuoteID:   r.QuoteID,
			Outcome:   string(r.Outcome),
			Error:     r.Error,
		})
	}
	return model, results
}

// ToDomain rebuilds a session from its audit rows.
func (m *ReconSessionModel) ToDomain(results []ReconSessionResultModel) *reconcile.Session {
	session := &reconcile.Session{
		ID:         m.ID,
		TenantID:   m.TenantID,
		TenantName: m.TenantName,
		Status:     reconcile.SessionStatus(m.Status),
		Issues:     make([]reconcile.IssueRecord, 0),
		FixResults: make([]reconcile.FixResult, 0, len(results)),
		StartedAt:  m.StartedAt,
		FinishedAt: m.FinishedAt,
		Summary: &reconcile.SessionSummary{
			Total:         m.Total,
			Fixed:         m.Fixed,
			Failed:        m.Failed,
			SkippedManual: m.SkippedManual,
			Elapsed:       time.Duration(m.ElapsedMS) * time.Millisecond,
		},
	}
	if m.IssuesJSON != "" {
		_ = json.Unmarshal([]byte(m.IssuesJSON), &session.Issues)
	}
	for _, r := range results {
		session.FixResults = append(session.FixResults, reconcile.FixResult{
			Code:    reconcile.IssueCode(r.Code),
			DealID:  r.DealID,
			QuoteID: r.QuoteID,
			Outcome: reconcile.FixOutcome(r.Outcome),
			Error:   r.Error,
		})
	}
	return session
}
