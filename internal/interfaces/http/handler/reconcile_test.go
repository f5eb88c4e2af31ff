package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appreconcile "github.com/quotedeck/backend/internal/application/reconcile"
	"github.com/quotedeck/backend/internal/domain/integration"
	"github.com/quotedeck/backend/internal/domain/reconcile"
	"github.com/quotedeck/backend/internal/infrastructure/cache"
)

type stubCRM struct {
	mu           sync.Mutex
	deals        []integration.Deal
	valueUpdates map[int64]decimal.Decimal
	fieldUpdates map[string]string
}

func newStubCRM(deals ...integration.Deal) *stubCRM {
	return &stubCRM{
		deals:        deals,
		valueUpdates: make(map[int64]decimal.Decimal),
		fieldUpdates: make(map[string]string),
	}
}

func (s *stubCRM) ListWonDeals(ctx context.Context, cfg *integration.TenantConfig) ([]integration.Deal, error) {
	return s.deals, nil
}

func (s *stubCRM) ListDealProducts(ctx context.Context, cfg *integration.TenantConfig, dealID int64) ([]integration.DealProduct, error) {
	return nil, nil
}

func (s *stubCRM) UpdateDealValue(ctx context.Context, cfg *integration.TenantConfig, dealID int64, value decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.valueUpdates[dealID] = value
	return nil
}

func (s *stubCRM) UpdateDealField(ctx context.Context, cfg *integration.TenantConfig, dealID int64, fieldKey, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fieldUpdates[fmt.Sprintf("%d:%s", dealID, fieldKey)] = value
	return nil
}

type stubAccounting struct {
	mu            sync.Mutex
	quotes        []integration.Quote
	statusUpdates map[string]string
}

func newStubAccounting(quotes ...integration.Quote) *stubAccounting {
	return &stubAccounting{quotes: quotes, statusUpdates: make(map[string]string)}
}

func (s *stubAccounting) Connections(ctx context.Context, accessToken string) ([]uuid.UUID, error) {
	return nil, nil
}

func (s *stubAccounting) ListQuotes(ctx context.Context, accessToken string, tenantID uuid.UUID) ([]integration.Quote, error) {
	return s.quotes, nil
}

func (s *stubAccounting) GetQuote(ctx context.Context, accessToken string, tenantID uuid.UUID, quoteID string) (*integration.Quote, error) {
	for i := range s.quotes {
		if s.quotes[i].ID == quoteID {
			return &s.quotes[i], nil
		}
	}
	return nil, integration.ErrPlatformRequestFailed
}

func (s *stubAccounting) UpdateQuoteNumber(ctx context.Context, accessToken string, tenantID uuid.UUID, quoteID, number string) error {
	return nil
}

func (s *stubAccounting) UpdateQuoteStatus(ctx context.Context, accessToken string, tenantID uuid.UUID, quoteID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statusUpdates[quoteID] = status
	return nil
}

type stubConfigs struct {
	configs map[uuid.UUID]*integration.TenantConfig
}

func (s *stubConfigs) GetTenantConfig(ctx context.Context, tenantID uuid.UUID) (*integration.TenantConfig, error) {
	if cfg, ok := s.configs[tenantID]; ok {
		return cfg, nil
	}
	return nil, fmt.Errorf("%w: tenant %s", integration.ErrPlatformNotConfigured, tenantID)
}

type stubTokens struct {
	credential *integration.Credential
	err        error
}

func (s *stubTokens) ValidCredential(ctx context.Context, userID, tenantID uuid.UUID) (*integration.Credential, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.credential, nil
}

type stubAudit struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*reconcile.Session
}

func newStubAudit() *stubAudit {
	return &stubAudit{sessions: make(map[uuid.UUID]*reconcile.Session)}
}

func (s *stubAudit) AppendSession(ctx context.Context, session *reconcile.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *stubAudit) FindSession(ctx context.Context, id uuid.UUID) (*reconcile.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[id]; ok {
		return session, nil
	}
	return nil, reconcile.ErrSessionNotFound
}

func (s *stubAudit) ListSessionsByTenant(ctx context.Context, tenantID uuid.UUID, limit int, sortField, orderDir string) ([]*reconcile.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*reconcile.Session
	for _, session := range s.sessions {
		if session.TenantID == tenantID {
			out = append(out, session)
		}
	}
	return out, nil
}

type reconcileFixture struct {
	tenantID   uuid.UUID
	userID     uuid.UUID
	crm        *stubCRM
	accounting *stubAccounting
	audit      *stubAudit
	guard      *cache.InMemorySessionGuard
	router     *gin.Engine
}

func newReconcileFixture(t *testing.T) *reconcileFixture {
	t.Helper()

	tenantID := uuid.New()
	cfg := &integration.TenantConfig{
		TenantID:            tenantID,
		TenantName:          "Acme Shipping",
		Enabled:             true,
		APIToken:            "pd-token",
		CompanyDomain:       "acme",
		QuoteNumberFieldKey: "a1b2c3",
		QuoteIDFieldKey:     "d4e5f6",
		QuoteNumberPrefix:   "NY",
	}
	cred := &integration.Credential{
		UserID:      uuid.New(),
		AccessToken: "xero-access",
		ExpiresAt:   time.Now().Add(time.Hour),
		TenantIDs:   []uuid.UUID{tenantID},
	}

	crm := newStubCRM()
	accounting := newStubAccounting()
	audit := newStubAudit()
	configs := &stubConfigs{configs: map[uuid.UUID]*integration.TenantConfig{tenantID: cfg}}
	tokens := &stubTokens{credential: cred}

	validator := appreconcile.NewValidationService(configs, tokens, crm, accounting, zap.NewNop())
	fixer := appreconcile.NewFixService(crm, accounting, audit, zap.NewNop(), appreconcile.FixServiceConfig{
		BatchSize:  80,
		BatchDelay: 5 * time.Millisecond,
	})

	guard := cache.NewInMemorySessionGuard()
	t.Cleanup(func() { guard.Close() })

	h := NewReconcileHandler(validator, fixer, configs, tokens, audit, guard, zap.NewNop())
	router := gin.New()
	router.GET("/reconcile/validate/stream", h.StreamValidation)
	router.POST("/reconcile/fix/stream", h.StreamFix)
	router.DELETE("/reconcile/sessions", h.RollbackSession)
	router.GET("/reconcile/sessions", h.ListSessions)
	router.GET("/reconcile/sessions/:id", h.GetSession)

	return &reconcileFixture{
		tenantID:   tenantID,
		userID:     cred.UserID,
		crm:        crm,
		accounting: accounting,
		audit:      audit,
		guard:      guard,
		router:     router,
	}
}

func (f *reconcileFixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-User-ID", f.userID.String())
	req.Header.Set("X-Tenant-ID", f.tenantID.String())
	f.router.ServeHTTP(w, req)
	return w
}

// sseEvents splits an event-stream body into event-name -> raw data
// lines, preserving order.
type sseEvent struct {
	name string
	data string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	for _, line := range strings.Split(body, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			current.name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
			events = append(events, current)
			current = sseEvent{}
		}
	}
	return events
}

func TestStreamValidationCompleteEvent(t *testing.T) {
	f := newReconcileFixture(t)

	f.crm.deals = []integration.Deal{
		{
			ID:           1,
			Title:        "NY25202 - MV Northern Star",
			Status:       "won",
			Value:        decimal.NewFromInt(1000),
			Currency:     "USD",
			OrgID:        7,
			OrgName:      "Acme",
			QuoteNumber:  "NY25202",
			QuoteID:      "q-1",
			ProductCount: 2,
		},
	}
	f.accounting.quotes = []integration.Quote{
		{
			ID:          "q-1",
			QuoteNumber: "NY25202",
			Title:       "NY25202 - MV Northern Star",
			Status:      integration.QuoteStatusSent,
			Total:       decimal.NewFromInt(1250),
			Currency:    "USD",
			ContactName: "Acme",
			LineItems: []integration.QuoteLineItem{
				{Description: "Item A"}, {Description: "Item B"},
			},
		},
	}

	w := f.do("GET", "/reconcile/validate/stream", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	events := parseSSE(t, w.Body.String())
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "complete", last.name)
	assert.Contains(t, last.data, "VALUE_MISMATCH")
	assert.Contains(t, last.data, "QUOTE_NOT_ACCEPTED")
}

func TestStreamValidationUnknownTenant(t *testing.T) {
	f := newReconcileFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/reconcile/validate/stream", nil)
	req.Header.Set("X-User-ID", f.userID.String())
	req.Header.Set("X-Tenant-ID", uuid.New().String())
	f.router.ServeHTTP(w, req)

	events := parseSSE(t, w.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "error", events[len(events)-1].name)
}

func TestStreamValidationMissingIdentity(t *testing.T) {
	f := newReconcileFixture(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/reconcile/validate/stream", nil)
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStreamFixRunsWorkflow(t *testing.T) {
	f := newReconcileFixture(t)

	payload := map[string]any{
		"tenantId": f.tenantID.String(),
		"issues": []reconcile.IssueRecord{
			{
				Code:     reconcile.IssueQuoteNotAccepted,
				Severity: reconcile.SeverityError,
				DealID:   1,
				QuoteID:  "q-1",
			},
			{
				Code:     reconcile.IssueCurrencyMismatch,
				Severity: reconcile.SeverityError,
				DealID:   2,
				QuoteID:  "q-2",
			},
		},
	}
	body, _ := json.Marshal(payload)

	w := f.do("POST", "/reconcile/fix/stream", body)

	assert.Equal(t, http.StatusOK, w.Code)
	events := parseSSE(t, w.Body.String())
	require.NotEmpty(t, events)

	assert.Equal(t, "session_started", events[0].name)
	assert.Equal(t, "done", events[len(events)-1].name)
	assert.Equal(t, "session_completed", events[len(events)-2].name)

	// Auto-fixable issue reached the platform, manual-only did not.
	assert.Equal(t, integration.QuoteStatusAccepted, f.accounting.statusUpdates["q-1"])
	assert.Contains(t, events[len(events)-2].data, `"skipped_manual":1`)

	// Session was audited and is retrievable.
	var completed struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal([]byte(events[len(events)-2].data), &completed))
	require.NotEmpty(t, completed.SessionID)

	resp := f.do("GET", "/reconcile/sessions/"+completed.SessionID, nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), completed.SessionID)
}

func TestStreamFixRejectsMissingTenant(t *testing.T) {
	f := newReconcileFixture(t)

	body, _ := json.Marshal(map[string]any{"issues": []reconcile.IssueRecord{}})
	w := f.do("POST", "/reconcile/fix/stream", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamFixRejectsMissingIssues(t *testing.T) {
	f := newReconcileFixture(t)

	body, _ := json.Marshal(map[string]any{"tenantId": f.tenantID.String()})
	w := f.do("POST", "/reconcile/fix/stream", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStreamFixUnknownTenant(t *testing.T) {
	f := newReconcileFixture(t)

	body, _ := json.Marshal(map[string]any{
		"tenantId": uuid.New().String(),
		"issues":   []reconcile.IssueRecord{},
	})
	w := f.do("POST", "/reconcile/fix/stream", body)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStreamFixEmptyIssueListCompletes(t *testing.T) {
	f := newReconcileFixture(t)

	body, _ := json.Marshal(map[string]any{
		"tenantId": f.tenantID.String(),
		"issues":   []reconcile.IssueRecord{},
	})
	w := f.do("POST", "/reconcile/fix/stream", body)

	assert.Equal(t, http.StatusOK, w.Code)
	events := parseSSE(t, w.Body.String())
	require.NotEmpty(t, events)
	assert.Equal(t, "done", events[len(events)-1].name)
}

func TestStreamFixRejectsConcurrentSessionForTenant(t *testing.T) {
	f := newReconcileFixture(t)

	// Another session already holds the tenant's claim.
	held, err := f.guard.Acquire(context.Background(), f.tenantID, uuid.New(), time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	body, _ := json.Marshal(map[string]any{
		"tenantId": f.tenantID.String(),
		"issues":   []reconcile.IssueRecord{},
	})
	w := f.do("POST", "/reconcile/fix/stream", body)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStreamFixReleasesClaimWhenDone(t *testing.T) {
	f := newReconcileFixture(t)

	body, _ := json.Marshal(map[string]any{
		"tenantId": f.tenantID.String(),
		"issues":   []reconcile.IssueRecord{},
	})
	w := f.do("POST", "/reconcile/fix/stream", body)
	require.Equal(t, http.StatusOK, w.Code)

	// The claim is released asynchronously once the workflow finishes.
	require.Eventually(t, func() bool {
		held, err := f.guard.Acquire(context.Background(), f.tenantID, uuid.New(), time.Minute)
		return err == nil && held
	}, time.Second, 10*time.Millisecond)
}

func TestRollbackSessionAlwaysNotImplemented(t *testing.T) {
	f := newReconcileFixture(t)

	w := f.do("DELETE", "/reconcile/sessions?sessionId="+uuid.New().String(), nil)

	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRollbackSessionMissingID(t *testing.T) {
	f := newReconcileFixture(t)

	w := f.do("DELETE", "/reconcile/sessions", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListSessionsScopedToTenant(t *testing.T) {
	f := newReconcileFixture(t)

	mine := reconcile.NewSession(f.tenantID, "Acme Shipping", nil)
	other := reconcile.NewSession(uuid.New(), "Other Tenant", nil)
	require.NoError(t, f.audit.AppendSession(context.Background(), mine))
	require.NoError(t, f.audit.AppendSession(context.Background(), other))

	w := f.do("GET", "/reconcile/sessions", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), mine.ID.String())
	assert.NotContains(t, w.Body.String(), other.ID.String())
}

func TestListSessionsRejectsBadLimit(t *testing.T) {
	f := newReconcileFixture(t)

	w := f.do("GET", "/reconcile/sessions?limit=bogus", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetSessionNotFound(t *testing.T) {
	f := newReconcileFixture(t)

	w := f.do("GET", "/reconcile/sessions/"+uuid.New().String(), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSessionScopedToTenant(t *testing.T) {
	f := newReconcileFixture(t)

	session := reconcile.NewSession(uuid.New(), "Other Tenant", nil)
	require.NoError(t, f.audit.AppendSession(context.Background(), session))

	// Caller's tenant does not match the session's tenant.
	w := f.do("GET", "/reconcile/sessions/"+session.ID.String(), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
