package reconcile

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quotedeck/backend/internal/domain/integration"
	"github.com/quotedeck/backend/internal/domain/reconcile"
)

// fixDealValue aligns the deal's monetary value to the quote total.
// The quote is the document of record for money.
func (s *FixService) fixDealValue(ctx context.Context, deps *WorkflowDeps, issue reconcile.IssueRecord) error {
	if issue.Expected == "" {
		return fmt.Errorf("issue %s for deal %d carries no expected value", issue.Code, issue.DealID)
	}
	value, err := decimal.NewFromString(issue.Expected)
	if err != nil {
		return fmt.Errorf("unparseable expected value %q: %w", issue.Expected, err)
	}
	return s.crm.UpdateDealValue(ctx, deps.Config, issue.DealID, value)
}

// fixQuoteStatus moves a won deal's quote into the accepted state.
func (s *FixService) fixQuoteStatus(ctx context.Context, deps *WorkflowDeps, issue reconcile.IssueRecord) error {
	if issue.QuoteID == "" {
		return fmt.Errorf("issue %s for deal %d carries no quote id", issue.Code, issue.DealID)
	}
	return s.accounting.UpdateQuoteStatus(ctx, deps.Credential.AccessToken, deps.Config.TenantID,
		issue.QuoteID, integration.QuoteStatusAccepted)
}

// fixQuoteNumber rewrites a malformed quote number from the deal
// title's document code, which carries the canonical job number.
func (s *FixService) fixQuoteNumber(ctx context.Context, deps *WorkflowDeps, issue reconcile.IssueRecord) error {
	if issue.QuoteID == "" {
		return fmt.Errorf("issue %s for deal %d carries no quote id", issue.Code, issue.DealID)
	}
	code, _, ok := reconcile.SplitTitle(issue.DealTitle)
	if !ok || !reconcile.ValidQuoteNumber(code, deps.Config.QuoteNumberPrefix) {
		return fmt.Errorf("deal title %q yields no valid quote number for prefix %s",
			issue.DealTitle, deps.Config.QuoteNumberPrefix)
	}
	return s.accounting.UpdateQuoteNumber(ctx, deps.Credential.AccessToken, deps.Config.TenantID,
		issue.QuoteID, code)
}

// fixCrossLink re-writes the deal's cross-link custom fields so the
// next sync reconciles the product set against the right quote.
func (s *FixService) fixCrossLink(ctx context.Context, deps *WorkflowDeps, issue reconcile.IssueRecord) error {
	if issue.QuoteNumber != "" {
		if err := s.crm.UpdateDealField(ctx, deps.Config, issue.DealID,
			deps.Config.QuoteNumberFieldKey, issue.QuoteNumber); err != nil {
			return err
		}
	}
	if issue.QuoteID != "" {
		return s.crm.UpdateDealField(ctx, deps.Config, issue.DealID,
			deps.Config.QuoteIDFieldKey, issue.QuoteID)
	}
	return nil
}
