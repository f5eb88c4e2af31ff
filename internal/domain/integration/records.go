package integration

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deal is the platform-neutral envelope for a Pipedrive deal. Only the
// fields the reconciliation rules need are lifted out of the provider
// payload; the custom-field values are resolved by the adapter using
// the tenant's configured field keys.
type Deal struct {
	ID         int64
	Title      string
	Status     string // open, won, lost
	Value      decimal.Decimal
	Currency   string
	OrgID      int64
	OrgName    string
	PersonName string
	// QuoteNumber and QuoteID are the cross-link custom field values.
	QuoteNumber  string
	QuoteID      string
	ProductCount int
	WonAt        *time.Time
}

// IsWon reports whether the deal is in the won state.
func (d *Deal) IsWon() bool {
	return d.Status == "won"
}

// DealProduct is a line item attached to a deal.
type DealProduct struct {
	ID        int64
	DealID    int64
	Name      string
	Quantity  decimal.Decimal
	ItemPrice decimal.Decimal
	Sum       decimal.Decimal
}

// Quote statuses as reported by the accounting platform.
const (
	QuoteStatusDraft    = "DRAFT"
	QuoteStatusSent     = "SENT"
	QuoteStatusDeclined = "DECLINED"
	QuoteStatusAccepted = "ACCEPTED"
	QuoteStatusInvoiced = "INVOICED"
	QuoteStatusDeleted  = "DELETED"
)

// Quote is the platform-neutral envelope for a Xero quote.
type Quote struct {
	ID          string
	QuoteNumber string
	Title       string
	Status      string
	ContactName string
	SubTotal    decimal.Decimal
	TotalTax    decimal.Decimal
	Total       decimal.Decimal
	Currency    string
	LineItems   []QuoteLineItem
	UpdatedAt   time.Time
}

// IsAccepted reports whether the quote is in an accepted or later state.
func (q *Quote) IsAccepted() bool {
	return q.Status == QuoteStatusAccepted || q.Status == QuoteStatusInvoiced
}

// QuoteLineItem is a single line on a quote.
type QuoteLineItem struct {
	Description string
	Quantity    decimal.Decimal
	UnitAmount  decimal.Decimal
	LineAmount  decimal.Decimal
}
