// Package pipedrive implements the CRM gateway against the Pipedrive
// REST API. Every request passes through the platform's rate governor
// before dispatch; response headers feed the governor afterwards.
package pipedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/quotedeck/backend/internal/domain/integration"
	"github.com/quotedeck/backend/internal/infrastructure/ratelimit"
)

// maxResponseSize is the maximum allowed response size from the Pipedrive API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// pageSize is the page size used when following deal pagination.
const pageSize = 100

// Adapter implements integration.CRMGateway for Pipedrive.
type Adapter struct {
	config     *Config
	governor   *ratelimit.Governor
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAdapter creates a Pipedrive adapter with the given configuration.
// The governor is constructed from the configured window limits with
// the Pipedrive header parser attached.
func NewAdapter(config *Config, logger *zap.Logger) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	governor := ratelimit.NewGovernor("pipedrive",
		[]ratelimit.WindowSpec{
			{Window: config.BurstWindow, Limit: config.BurstLimit},
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

// ParseRateHeaders extracts the burst-window budget from Pipedrive's
// x-ratelimit-* response headers. The daily budget is not advertised
// per response, so window 1 relies on the local counter.
func ParseRateHeaders(h http.Header) []ratelimit.HeaderUpdate {
	remaining := h.Get("X-Ratelimit-Remaining")
	if remaining == "" {
		return nil
	}
	n, err := strconv.Atoi(remaining)
	if err != nil {
		return nil
	}
	update := ratelimit.HeaderUpdate{WindowIndex: 0, Remaining: n}
	if reset := h.Get("X-Ratelimit-Reset"); reset != "" {
		if secs, err := strconv.Atoi(reset); err == nil && secs > 0 {
			update.ResetAfter = time.Duration(secs) * time.Second
		}
	}
	return []ratelimit.HeaderUpdate{update}
}

// ListWonDeals returns all deals in the won state, following
// pagination to exhaustion.
func (a *Adapter) ListWonDeals(ctx context.Context, cfg *integration.TenantConfig) ([]integration.Deal, error) {
	var deals []integration.Deal
	start := 0

	for {
		query := url.Values{}
		query.Set("status", "won")
		query.Set("start", strconv.Itoa(start))
		query.Set("limit", strconv.Itoa(pageSize))

		body, err := a.doRequest(ctx, cfg, http.MethodGet, "/deals", query, nil)
		if err != nil {
			return nil, err
		}

		var resp dealListResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("%w: failed to parse deal list: %v", integration.ErrPlatformInvalidResponse, err)
		}
		if !resp.Success {
			return nil, fmt.Errorf("%w: %s", integration.ErrPlatformRequestFailed, resp.Error)
		}

		for _, raw := range resp.Data {
			d, err := decodeDeal(raw, cfg)
			if err != nil {
				return nil, err
			}
			deals = append(deals, d)
		}

		if resp.AdditionalData == nil || resp.AdditionalData.Pagination == nil ||
			!resp.AdditionalData.Pagination.MoreItemsInCollection {
			return deals, nil
		}
		start = resp.AdditionalData.Pagination.NextStart
	}
}

// ListDealProducts returns the products attached to a deal.
func (a *Adapter) ListDealProducts(ctx context.Context, cfg *integration.TenantConfig, dealID int64) ([]integration.DealProduct, error) {
	path := fmt.Sprintf("/deals/%d/products", dealID)
	body, err := a.doRequest(ctx, cfg, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var resp dealProductsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse deal products: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("%w: %s", integration.ErrPlatformRequestFailed, resp.Error)
	}

	products := make([]integration.DealProduct, 0, len(resp.Data))
	for _, p := range resp.Data {
		products = append(products, integration.DealProduct{
			ID:        p.ID,
			DealID:    p.DealID,
			Name:      p.Name,
			Quantity:  parseDecimal(p.Quantity),
			ItemPrice: parseDecimal(p.ItemPrice),
			Sum:       parseDecimal(p.Sum),
		})
	}
	return products, nil
}

// UpdateDealValue sets the deal's monetary value.
func (a *Adapter) UpdateDealValue(ctx context.Context, cfg *integration.TenantConfig, dealID int64, value decimal.Decimal) error {
	return a.updateDeal(ctx, cfg, dealID, map[string]any{"value": value.String()})
}

// UpdateDealField sets a single custom field on a deal.
func (a *Adapter) UpdateDealField(ctx context.Context, cfg *integration.TenantConfig, dealID int64, fieldKey, value string) error {
	return a.updateDeal(ctx, cfg, dealID, map[string]any{fieldKey: value})
}

// updateDeal issues a PUT /deals/{id} with the given field payload.
func (a *Adapter) updateDeal(ctx context.Context, cfg *integration.TenantConfig, dealID int64, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("pipedrive: failed to encode update payload: %w", err)
	}

	path := fmt.Sprintf("/deals/%d", dealID)
	body, err := a.doRequest(ctx, cfg, http.MethodPut, path, nil, payload)
	if err != nil {
		return err
	}

	var resp updateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: failed to parse update response: %v", integration.ErrPlatformInvalidResponse, err)
	}
	if !resp.Success {
		return fmt.Errorf("%w: %s", integration.ErrPlatformRequestFailed, resp.Error)
	}
	return nil
}

// doRequest performs one governed HTTP request against the Pipedrive API.
func (a *Adapter) doRequest(ctx context.Context, cfg *integration.TenantConfig, method, path string, query url.Values, payload []byte) ([]byte, error) {
	if cfg.APIToken == "" || cfg.CompanyDomain == "" {
		return nil, integration.ErrPlatformNotConfigured
	}

	if err := a.governor.Admit(); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrPlatformRateLimited, err)
	}

	if query == nil {
		query = url.Values{}
	}
	query.Set("api_token", cfg.APIToken)

	reqURL := a.config.baseURL(cfg.CompanyDomain) + path + "?" + query.Encode()

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("pipedrive: failed to create request: %w", err)
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
		return nil, fmt.Errorf("pipedrive: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: HTTP 429", integration.ErrPlatformRateLimited)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrPlatformNotConfigured, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d", integration.ErrPlatformRequestFailed, resp.StatusCode)
	}

	return body, nil
}

// decodeDeal maps a raw deal payload to the platform-neutral envelope,
// resolving the tenant's cross-link custom fields by key.
func decodeDeal(raw json.RawMessage, cfg *integration.TenantConfig) (integration.Deal, error) {
	var d pipedriveDeal
	if err := json.Unmarshal(raw, &d); err != nil {
		return integration.Deal{}, fmt.Errorf("%w: failed to parse deal: %v", integration.ErrPlatformInvalidResponse, err)
	}

	// Custom fields sit at the top level keyed by opaque hashes; pull
	// the two cross-link fields out of the untyped payload.
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return integration.Deal{}, fmt.Errorf("%w: failed to parse deal fields: %v", integration.ErrPlatformInvalidResponse, err)
	}

	deal := integration.Deal{
		ID:           d.ID,
		Title:        d.Title,
		Status:       d.Status,
		Value:        parseDecimal(d.Value),
		Currency:     d.Currency,
		ProductCount: d.ProductsCount,
		QuoteNumber:  stringField(fields, cfg.QuoteNumberFieldKey),
		QuoteID:      stringField(fields, cfg.QuoteIDFieldKey),
	}
	if d.OrgID != nil {
		deal.OrgID = d.OrgID.Value
		deal.OrgName = d.OrgID.Name
	}
	if d.PersonID != nil {
		deal.PersonName = d.PersonID.Name
	}
	if d.WonTime != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", d.WonTime); err == nil {
			deal.WonAt = &t
		}
	}
	return deal, nil
}

// stringField reads a string-valued custom field, tolerating absence.
func stringField(fields map[string]any, key string) string {
	if key == "" {
		return ""
	}
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
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

// Ensure Adapter implements the CRM gateway interface.
var _ integration.CRMGateway = (*Adapter)(nil)
