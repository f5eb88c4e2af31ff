package reconcile

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/quotedeck/backend/internal/domain/integration"
)

// IssueCode identifies a specific kind of cross-system discrepancy.
type IssueCode string

// Auto-fixable issue codes.
const (
	IssueValueMismatch        IssueCode = "VALUE_MISMATCH"
	IssueProductCountMismatch IssueCode = "PRODUCT_COUNT_MISMATCH"
	IssueQuoteNotAccepted     IssueCode = "QUOTE_NOT_ACCEPTED"
	IssueBadQuoteNumber       IssueCode = "BAD_QUOTE_NUMBER"
)

// Manual-only issue codes. These are never dispatched to a fix handler;
// the dispatcher records them as skipped for manual resolution.
const (
	IssueIncompleteTitle     IssueCode = "INCOMPLETE_TITLE"
	IssueInvalidVesselName   IssueCode = "INVALID_VESSEL_NAME"
	IssueMissingOrganization IssueCode = "MISSING_ORGANIZATION"
	IssueCurrencyMismatch    IssueCode = "CURRENCY_MISMATCH"
	IssueNoLineItems         IssueCode = "NO_LINE_ITEMS"
	IssueCustomerMismatch    IssueCode = "CUSTOMER_MISMATCH"
)

// Severity of an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// manualOnly is the fixed set of codes that require human resolution.
var manualOnly = map[IssueCode]bool{
	IssueIncompleteTitle:     true,
	IssueInvalidVesselName:   true,
	IssueMissingOrganization: true,
	IssueCurrencyMismatch:    true,
	IssueNoLineItems:         true,
	IssueCustomerMismatch:    true,
}

// IsManualOnly reports whether the code is in the manual-resolution set.
func (c IssueCode) IsManualOnly() bool {
	return manualOnly[c]
}

// IssueRecord is one detected discrepancy. It carries both-side
// identifiers and the specific discrepancy so the fix dispatcher can
// act without re-querying either platform.
type IssueRecord struct {
	Code        IssueCode `json:"code"`
	Severity    Severity  `json:"severity"`
	DealID      int64     `json:"deal_id"`
	DealTitle   string    `json:"deal_title"`
	QuoteID     string    `json:"quote_id"`
	QuoteNumber string    `json:"quote_number"`
	// Details describes the discrepancy in human-readable form.
	Details string `json:"details"`
	// Expected and Actual carry the machine-usable values a fix
	// handler needs, e.g. the correct monetary total or the properly
	// formatted quote number.
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// vesselNameRe: a vessel label is expected to carry at least one
// alphabetic word of two or more characters.
var vesselNameRe = regexp.MustCompile(`[A-Za-z]{2}`)

// EvaluatePair runs the full rule set against one matched deal/quote
// pair and returns the issues found, in rule order.
func EvaluatePair(pair MatchedPair, quoteNumberPrefix string) []IssueRecord {
	var issues []IssueRecord

	base := IssueRecord{
		DealID:      pair.Deal.ID,
		DealTitle:   pair.Deal.Title,
		QuoteID:     pair.Quote.ID,
		QuoteNumber: pair.Quote.QuoteNumber,
	}

	deal, quote := pair.Deal, pair.Quote

	// Monetary totals must match exactly; no tolerance is applied.
	if !deal.Value.Equal(quote.Total) {
		iss := base
		iss.Code = IssueValueMismatch
		iss.Severity = SeverityError
		iss.Expected = quote.Total.String()
		iss.Actual = deal.Value.String()
		iss.Details = fmt.Sprintf("deal value %s does not match quote total %s", deal.Value, quote.Total)
		issues = append(issues, iss)
	}

	if len(quote.LineItems) == 0 {
		iss := base
		iss.Code = IssueNoLineItems
		iss.Severity = SeverityError
		iss.Details = "quote has no line items"
		issues = append(issues, iss)
	} else if deal.ProductCount != len(quote.LineItems) {
		iss := base
		iss.Code = IssueProductCountMismatch
		iss.Severity = SeverityWarning
		iss.Expected = strconv.Itoa(len(quote.LineItems))
		iss.Actual = strconv.Itoa(deal.ProductCount)
		iss.Details = fmt.Sprintf("deal has %d products, quote has %d line items", deal.ProductCount, len(quote.LineItems))
		issues = append(issues, iss)
	}

	if deal.IsWon() && !quote.IsAccepted() {
		iss := base
		iss.Code = IssueQuoteNotAccepted
		iss.Severity = SeverityError
		iss.Expected = integration.QuoteStatusAccepted
		iss.Actual = quote.Status
		iss.Details = fmt.Sprintf("deal is won but quote status is %s", quote.Status)
		issues = append(issues, iss)
	}

	if !ValidQuoteNumber(quote.QuoteNumber, quoteNumberPrefix) {
		iss := base
		iss.Code = IssueBadQuoteNumber
		iss.Severity = SeverityWarning
		iss.Actual = quote.QuoteNumber
		iss.Details = fmt.Sprintf("quote number %q does not follow the %s numbering convention", quote.QuoteNumber, quoteNumberPrefix)
		issues = append(issues, iss)
	}

	issues = append(issues, evaluateDataQuality(base, deal, quote)...)
	return issues
}

// evaluateDataQuality runs the manual-only checks.
func evaluateDataQuality(base IssueRecord, deal integration.Deal, quote integration.Quote) []IssueRecord {
	var issues []IssueRecord

	code, label, ok := SplitTitle(deal.Title)
	if !ok || code == "" || label == "" {
		iss := base
		iss.Code = IssueIncompleteTitle
		iss.Severity = SeverityWarning
		iss.Details = fmt.Sprintf("deal title %q is missing a document code or vessel label", deal.Title)
		issues = append(issues, iss)
	} else if !vesselNameRe.MatchString(label) {
		iss := base
		iss.Code = IssueInvalidVesselName
		iss.Severity = SeverityWarning
		iss.Actual = label
		iss.Details = fmt.Sprintf("vessel label %q does not look like a vessel name", label)
		issues = append(issues, iss)
	}

	if deal.OrgID == 0 {
		iss := base
		iss.Code = IssueMissingOrganization
		iss.Severity = SeverityWarning
		iss.Details = "deal has no linked organization"
		issues = append(issues, iss)
	}

	if deal.Currency != "" && quote.Currency != "" && deal.Currency != quote.Currency {
		iss := base
		iss.Code = IssueCurrencyMismatch
		iss.Severity = SeverityError
		iss.Expected = quote.Currency
		iss.Actual = deal.Currency
		iss.Details = fmt.Sprintf("deal currency %s does not match quote currency %s", deal.Currency, quote.Currency)
		issues = append(issues, iss)
	}

	if deal.OrgName != "" && quote.ContactName != "" && !sameName(deal.OrgName, quote.ContactName) {
		iss := base
		iss.Code = IssueCustomerMismatch
		iss.Severity = SeverityWarning
		iss.Expected = quote.ContactName
		iss.Actual = deal.OrgName
		iss.Details = fmt.Sprintf("deal organization %q does not match quote contact %q", deal.OrgName, quote.ContactName)
		issues = append(issues, iss)
	}

	return issues
}

// SplitTitle splits a record title into its document code and label
// parts. ok is false when the title does not follow the
// "<code> - <label>" convention.
func SplitTitle(title string) (code, label string, ok bool) {
	s := trailingCounterRe.ReplaceAllString(title, "")
	m := codeLabelRe.FindStringSubmatch(s)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// sameName compares two customer names under canonical normalization.
func sameName(a, b string) bool {
	return CanonicalKey(a) == CanonicalKey(b)
}

// quoteNumberBodyRe matches the year+sequence body of a quote number,
// e.g. "25202": two-digit year followed by a sequence of at least one
// digit.
var quoteNumberBodyRe = regexp.MustCompile(`^[0-9]{2}[0-9]{1,4}$`)

// ValidQuoteNumber reports whether number follows the tenant's
// numbering convention: the department prefix, a two-digit year, and a
// numeric sequence, e.g. "NY25202" for prefix "NY".
func ValidQuoteNumber(number, prefix string) bool {
	if prefix == "" || len(number) <= len(prefix) {
		return false
	}
	if number[:len(prefix)] != prefix {
		return false
	}
	return quoteNumberBodyRe.MatchString(number[len(prefix):])
}
