package xero

import "encoding/json"

// tokenResponse is the envelope for POST /connect/token.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// tokenErrorResponse is the OAuth error envelope.
type tokenErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// connection is one entry from GET /connections.
type connection struct {
	TenantID   string `json:"tenantId"`
	TenantType string `json:"tenantType"`
	TenantName string `json:"tenantName"`
}

// quotesResponse is the envelope for GET /Quotes.
type quotesResponse struct {
	Quotes []xeroQuote `json:"Quotes"`
}

type xeroQuote struct {
	QuoteID        string         `json:"QuoteID"`
	QuoteNumber    string         `json:"QuoteNumber"`
	Title          string         `json:"Title"`
	Status         string         `json:"Status"`
	Contact        *xeroContact   `json:"Contact"`
	SubTotal       json.Number    `json:"SubTotal"`
	TotalTax       json.Number    `json:"TotalTax"`
	Total          json.Number    `json:"Total"`
	CurrencyCode   string         `json:"CurrencyCode"`
	LineItems      []xeroLineItem `json:"LineItems"`
	UpdatedDateUTC string         `json:"UpdatedDateUTC"`
}

type xeroContact struct {
	ContactID string `json:"ContactID"`
	Name      string `json:"Name"`
}

type xeroLineItem struct {
	Description string      `json:"Description"`
	Quantity    json.Number `json:"Quantity"`
	UnitAmount  json.Number `json:"UnitAmount"`
	LineAmount  json.Number `json:"LineAmount"`
}

// apiErrorResponse is Xero's validation error envelope.
type apiErrorResponse struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}
