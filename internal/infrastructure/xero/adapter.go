// Package xero implements the accounting gateway and the OAuth token
// exchange against the Xero API. Every API request passes through the
// platform's rate governor; the X-MinLimit-Remaining and
// X-DayLimit-Remaining headers feed the governor afterwards.
package xero

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quotedeck/backend/internal/domain/integration"
	"github.com/quotedeck/backend/internal/infrastructure/ratelimit"
)

// maxResponseSize is the maximum allowed response size from the Xero API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// Adapter implements integration.AccountingGateway and
// integration.TokenExchanger for Xero.
type Adapter struct {
	config     *Config
	governor   *ratelimit.Governor
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAdapter creates a Xero adapter with the given configuration.
func NewAdapter(config *Config, logger *zap.Logger) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	governor := ratelimit.NewGovernor("xero",
		[]ratelimit.WindowSpec{
			{Window: time.Minute, Limit: config.MinuteLimit},
			{Window: 24 * time.Hour, Limit: config.DailyLimit},
		},
		ratelimit.WithHeaderParser(ParseRateHeaders),
		ratelimit.WithLogger(logger),
	)

	return &Adapter{
		config:   config,
		governor: governor,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: logger,
	}, nil
}

// Governor exposes the adapter's rate governor for observability.
func (a *Adapter) Governor() *ratelimit.Governor {
	return a.governor
}

// ParseRateHeaders extracts both window budgets from Xero's rate limit
// headers. A 429 additionally carries Retry-After with the wait in
// seconds, applied to the minute window.
func ParseRateHeaders(h http.Header) []ratelimit.HeaderUpdate {
	var updates []ratelimit.HeaderUpdate
	if v := h.Get("X-MinLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			u := ratelimit.HeaderUpdate{WindowIndex: 0, Remaining: n}
			if retry := h.Get("Retry-After"); retry != "" {
				if secs, err := strconv.Atoi(retry); err == nil && secs > 0 {
					u.ResetAfter = time.Duration(secs) * time.Second
				}
			}
			updates = append(updates, u)
		}
	}
	if v := h.Get("X-DayLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			updates = append(updates, ratelimit.HeaderUpdate{WindowIndex: 1, Remaining: n})
		}
	}
	return updates
}

// ---------------------------------------------------------------------------
// Token Exchange
// ---------------------------------------------------------------------------

// RefreshCredential exchanges a refresh token at the token endpoint.
// A successful exchange consumes the presented refresh token: Xero
// rotates refresh tokens on every use, which is why callers must
// serialize refreshes per credential.
func (a *Adapter) RefreshCredential(ctx context.Context, refreshToken string) (string, string, int64, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", "", 0, fmt.Errorf("xero: failed to create token request: %w", err)
	}
	req.SetBasicAuth(a.config.ClientID, a.config.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", "", 0, fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", "", 0, fmt.Errorf("xero: failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var oauthErr tokenErrorResponse
		_ = json.Unmarshal(body, &oauthErr)
		return "", "", 0, fmt.Errorf("%w: HTTP %d %s %s",
			integration.ErrCredentialRefreshFailed, resp.StatusCode, oauthErr.Error, oauthErr.ErrorDescription)
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return "", "", 0, fmt.Errorf("%w: failed to parse token response: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if token.AccessToken == "" || token.RefreshToken == "" {
		return "", "", 0, fmt.Errorf("%w: token response missing tokens", integration.ErrPlatformInvalidResponse)
	}

	return token.AccessToken, token.RefreshToken, token.ExpiresIn, nil
}

// ---------------------------------------------------------------------------
// Connections
// ---------------------------------------------------------------------------

// Connections returns the tenant connections reachable with the token.
func (a *Adapter) Connections(ctx context.Context, accessToken string) ([]uuid.UUID, error) {
	// The connections endpoint lives outside the API root.
	base := strings.TrimSuffix(a.config.APIBaseURL, "/api.xro/2.0")
	body, err := a.doRequest(ctx, accessToken, uuid.Nil, http.MethodGet, base+"/connections", nil)
	if err != nil {
		return nil, err
	}

	var conns []connection
	if err := json.Unmarshal(body, &conns); err != nil {
		return nil, fmt.Errorf("%w: failed to parse connections: %v", integration.ErrPlatformInvalidResponse, err)
	}

	tenants := make([]uuid.UUID, 0, len(conns))
	for _, c := range conns {
		id, err := uuid.Parse(c.TenantID)
		if err != nil {
			continue
		}
		tenants = append(tenants, id)
	}
	return tenants, nil
}

// ---------------------------------------------------------------------------
// Quotes
// ---------------------------------------------------------------------------

// ListQuotes returns all non-deleted quotes for the tenant, following
// pagination to exhaustion.
func (a *Adapter) ListQuotes(ctx context.Context, accessToken string, tenantID uuid.UUID) ([]integration.Quote, error) {
	var quotes []integration.Quote

	for page := 1; ; page++ {
		u := fmt.Sprintf("%s/Quotes?page=%d", a.config.APIBaseURL, page)
		body, err := a.doRequest(ctx, accessToken, tenantID, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}

		var resp quotesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: failed to parse quotes: %v", integration.ErrPlatformInvalidResponse, err)
		}
		if len(resp.Quotes) == 0 {
			return quotes, nil
		}

		for _, q := range resp.Quotes {
			if q.Status == integration.QuoteStatusDeleted {
				continue
			}
			quotes = append(quotes, convertQuote(q))
		}
	}
}

// GetQuote returns a single quote by ID.
func (a *Adapter) GetQuote(ctx context.Context, accessToken string, tenantID uuid.UUID, quoteID string) (*integration.Quote, error) {
	u := fmt.Sprintf("%s/Quotes/%s", a.config.APIBaseURL, url.PathEscape(quoteID))
	body, err := a.doRequest(ctx, accessToken, tenantID, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var resp quotesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse quote: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if len(resp.Quotes) == 0 {
		return nil, fmt.Errorf("%w: quote %s not found", integration.ErrPlatformRequestFailed, quoteID)
	}

	quote := convertQuote(resp.Quotes[0])
	return &quote, nil
}

// UpdateQuoteNumber rewrites the quote's document number.
func (a *Adapter) UpdateQuoteNumber(ctx context.Context, accessToken string, tenantID uuid.UUID, quoteID, number string) error {
	return a.updateQuote(ctx, accessToken, tenantID, quoteID, map[string]any{"QuoteNumber": number})
}

// UpdateQuoteStatus transitions the quote to the given status.
func (a *Adapter) UpdateQuoteStatus(ctx context.Context, accessToken string, tenantID uuid.UUID, quoteID, status string) error {
	return a.updateQuote(ctx, accessToken, tenantID, quoteID, map[string]any{"Status": status})
}

// updateQuote issues a POST /Quotes/{id} with the given field payload.
func (a *Adapter) updateQuote(ctx context.Context, accessToken string, tenantID uuid.UUID, quoteID string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("xero: failed to encode update payload: %w", err)
	}

	u := fmt.Sprintf("%s/Quotes/%s", a.config.APIBaseURL, url.PathEscape(quoteID))
	_, err = a.doRequest(ctx, accessToken, tenantID, http.MethodPost, u, payload)
	return err
}

// ---------------------------------------------------------------------------
// Internal Helpers
// ---------------------------------------------------------------------------

// doRequest performs one governed HTTP request against the Xero API.
func (a *Adapter) doRequest(ctx context.Context, accessToken string, tenantID uuid.UUID, method, rawURL string, payload []byte) ([]byte, error) {
	if err := a.governor.Admit(); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformRateLimited, err)
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("xero: failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if tenantID != uuid.Nil {
		req.Header.Set("Xero-Tenant-Id", tenantID.String())
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	a.governor.UpdateFromHeaders(resp.Header)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("xero: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP 429", integration.ErrPlatformRateLimited)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: HTTP 401", integration.ErrTenantAccessDenied)
	case resp.StatusCode >= 400:
		var apiErr apiErrorResponse
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("%w: HTTP %d %s", integration.ErrPlatformRequestFailed, resp.StatusCode, apiErr.Message)
	}

	return body, nil
}

// convertQuote maps a Xero quote to the platform-neutral envelope.
func convertQuote(q xeroQuote) integration.Quote {
	quote := integration.Quote{
		ID:          q.QuoteID,
		QuoteNumber: q.QuoteNumber,
		Title:       q.Title,
		Status:      q.Status,
		SubTotal:    parseDecimal(q.SubTotal),
		TotalTax:    parseDecimal(q.TotalTax),
		Total:       parseDecimal(q.Total),
		Currency:    q.CurrencyCode,
	}
	if q.Contact != nil {
		quote.ContactName = q.Contact.Name
	}
	for _, li := range q.LineItems {
		quote.LineItems = append(quote.LineItems, integration.QuoteLineItem{
			Description: li.Description,
			Quantity:    parseDecimal(li.Quantity),
			UnitAmount:  parseDecimal(li.UnitAmount),
			LineAmount:  parseDecimal(li.LineAmount),
		})
	}
	if q.UpdatedDateUTC != "" {
		if t, err := time.Parse(time.RFC3339, q.UpdatedDateUTC); err == nil {
			quote.UpdatedAt = t
		}
	}
	return quote
}

// parseDecimal converts a JSON number to decimal, defaulting to zero
// on absence or malformed input.
func parseDecimal(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Ensure Adapter implements the gateway interfaces.
var (
	_ integration.AccountingGateway = (*Adapter)(nil)
	_ integration.TokenExchanger    = (*Adapter)(nil)
)
