// Package reconcile drives the two cross-platform workflows: evaluation
// (find discrepancies between CRM deals and accounting quotes) and the
// fix workflow (remediate auto-fixable discrepancies in rate-limited
// batches).
package reconcile

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quotedeck/backend/internal/domain/integration"
	"github.com/quotedeck/backend/internal/domain/reconcile"
)

// CredentialSource is the slice of the connection service the engine
// needs: a credential that is valid now for the given user and tenant.
type CredentialSource interface {
	ValidCredential(ctx context.Context, userID, tenantID uuid.UUID) (*integration.Credential, error)
}

// EvaluationSummary aggregates one evaluation run.
type EvaluationSummary struct {
	TotalQuotes     int `json:"totalQuotes"`
	QuotesProcessed int `json:"quotesProcessed"`
	IssuesFound     int `json:"issuesFound"`
	ErrorCount      int `json:"errorCount"`
	WarningCount    int `json:"warningCount"`
}

// EvaluationReport is the full result of one evaluation run.
type EvaluationReport struct {
	TenantID   uuid.UUID               `json:"tenant_id"`
	TenantName string                  `json:"tenant_name"`
	Issues     []reconcile.IssueRecord `json:"issues"`
	Summary    EvaluationSummary       `json:"summary"`

	MatchedPairs int `json:"matched_pairs"`
	DealsOnly    int `json:"deals_only"`
	QuotesOnly   int `json:"quotes_only"`
}

// ValidationService runs the cross-platform evaluation.
type ValidationService struct {
	configs    integration.ConfigProvider
	tokens     CredentialSource
	crm        integration.CRMGateway
	accounting integration.AccountingGateway
	logger     *zap.Logger
}

// NewValidationService creates a new ValidationService
func NewValidationService(
	configs integration.ConfigProvider,
	tokens CredentialSource,
	crm integration.CRMGateway,
	accounting integration.AccountingGateway,
	logger *zap.Logger,
) *ValidationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ValidationService{
		configs:    configs,
		tokens:     tokens,
		crm:        crm,
		accounting: accounting,
		logger:     logger,
	}
}

// Evaluate pulls both record sets, joins them on canonical keys, and
// runs the discrepancy rule set. Any platform call failure aborts the
// whole evaluation: a partial cross-reference would misreport missing
// records as clean. Progress events are dropped when the optional
// events channel is full; they never block evaluation.
func (s *ValidationService) Evaluate(ctx context.Context, userID, tenantID uuid.UUID, events chan<- reconcile.ProgressEvent) (*EvaluationReport, error) {
	cfg, err := s.configs.GetTenantConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, err)
	}

	cred, err := s.tokens.ValidCredential(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	emit(events, reconcile.ProgressEvent{Type: reconcile.EventProgress, Payload: map[string]any{
		"step": "fetching_deals",
	}})
	deals, err := s.crm.ListWonDeals(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to list won deals: %w", err)
	}

	emit(events, reconcile.ProgressEvent{Type: reconcile.EventProgress, Payload: map[string]any{
		"step": "fetching_quotes", "deals": len(deals),
	}})
	quotes, err := s.accounting.ListQuotes(ctx, cred.AccessToken, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotes: %w", err)
	}

	idx := reconcile.BuildCrossIndex(deals, quotes)
	for key, ids := range idx.Collisions {
		s.logger.Warn("duplicate canonical key, keeping last record",
			zap.String("tenant_id", tenantID.String()),
			zap.String("key", key),
			zap.Strings("record_ids", ids))
	}

	report := &EvaluationReport{
		TenantID:     tenantID,
		TenantName:   cfg.TenantName,
		Issues:       make([]reconcile.IssueRecord, 0),
		MatchedPairs: len(idx.Matched),
		DealsOnly:    len(idx.DealOnly),
		QuotesOnly:   len(idx.QuoteOnly),
	}
	report.Summary.TotalQuotes = len(quotes)

	for _, pair := range idx.Matched {
		pair, err = s.resolveProductCount(ctx, cfg, pair)
		if err != nil {
			return nil, fmt.Errorf("failed to list products for deal %d: %w", pair.Deal.ID, err)
		}
		report.Issues = append(report.Issues, reconcile.EvaluatePair(pair, cfg.QuoteNumberPrefix)...)
		report.Summary.QuotesProcessed++

		emit(events, reconcile.ProgressEvent{Type: reconcile.EventProgress, Payload: map[string]any{
			"step":      "evaluating",
			"processed": report.Summary.QuotesProcessed,
			"total":     len(idx.Matched),
		}})
	}

	report.Summary.IssuesFound = len(report.Issues)
	for _, iss := range report.Issues {
		switch iss.Severity {
		case reconcile.SeverityError:
			report.Summary.ErrorCount++
		case reconcile.SeverityWarning:
			report.Summary.WarningCount++
		}
	}

	s.logger.Info("evaluation finished",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("matched", report.MatchedPairs),
		zap.Int("deals_only", report.DealsOnly),
		zap.Int("quotes_only", report.QuotesOnly),
		zap.Int("issues", report.Summary.IssuesFound))
	return report, nil
}

// resolveProductCount fills in the deal's product count when the list
// payload carried none, so "no products" and "count not loaded" are not
// conflated.
func (s *ValidationService) resolveProductCount(ctx context.Context, cfg *integration.TenantConfig, pair reconcile.MatchedPair) (reconcile.MatchedPair, error) {
	if pair.Deal.ProductCount > 0 || len(pair.Quote.LineItems) == 0 {
		return pair, nil
	}
	products, err := s.crm.ListDealProducts(ctx, cfg, pair.Deal.ID)
	if err != nil {
		return pair, err
	}
	pair.Deal.ProductCount = len(products)
	return pair, nil
}

// emit sends an event without ever blocking the workflow.
func emit(events chan<- reconcile.ProgressEvent, ev reconcile.ProgressEvent) {
	if events == nil {
		return
	}
	select {
	case events <- ev:
	default:
	}
}
