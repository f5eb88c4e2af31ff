package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quotedeck/backend/internal/domain/integration"
	"github.com/quotedeck/backend/internal/domain/reconcile"
)

// fakeCRM is an in-memory integration.CRMGateway.
type fakeCRM struct {
	mu       sync.Mutex
	deals    []integration.Deal
	products map[int64][]integration.DealProduct

	listErr error
	// updateErrs holds one-shot errors keyed by deal ID; consumed on use.
	updateErrs map[int64]error

	valueUpdates map[int64]decimal.Decimal
	fieldUpdates map[int64]map[string]string
	panicOnDeal  int64
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		products:     make(map[int64][]integration.DealProduct),
		updateErrs:   make(map[int64]error),
		valueUpdates: make(map[int64]decimal.Decimal),
		fieldUpdates: make(map[int64]map[string]string),
	}
}

func (f *fakeCRM) ListWonDeals(_ context.Context, _ *integration.TenantConfig) ([]integration.Deal, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.deals, nil
}

func (f *fakeCRM) ListDealProducts(_ context.Context, _ *integration.TenantConfig, dealID int64) ([]integration.DealProduct, error) {
	return f.products[dealID], nil
}

func (f *fakeCRM) UpdateDealValue(_ context.Context, _ *integration.TenantConfig, dealID int64, value decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panicOnDeal == dealID {
		panic("boom")
	}
	if err, ok := f.updateErrs[dealID]; ok {
		delete(f.updateErrs, dealID)
		return err
	}
	f.valueUpdates[dealID] = value
	return nil
}

func (f *fakeCRM) UpdateDealField(_ context.Context, _ *integration.TenantConfig, dealID int64, fieldKey, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.updateErrs[dealID]; ok {
		delete(f.updateErrs, dealID)
		return err
	}
	if f.fieldUpdates[dealID] == nil {
		f.fieldUpdates[dealID] = make(map[string]string)
	}
	f.fieldUpdates[dealID][fieldKey] = value
	return nil
}

// fakeAccounting is an in-memory integration.AccountingGateway.
type fakeAccounting struct {
	mu     sync.Mutex
	quotes []integration.Quote

	listErr error
	// rateLimitQuotes counts down 429s per quote ID before succeeding.
	rateLimitQuotes map[string]int

	numberUpdates map[string]string
	statusUpdates map[string]string
}

func newFakeAccounting() *fakeAccounting {
	return &fakeAccounting{
		rateLimitQuotes: make(map[string]int),
		numberUpdates:   make(map[string]string),
		statusUpdates:   make(map[string]string),
	}
}

func (f *fakeAccounting) Connections(_ context.Context, _ string) ([]uuid.UUID, error) {
	return nil, nil
}

func (f *fakeAccounting) ListQuotes(_ context.Context, _ string, _ uuid.UUID) ([]integration.Quote, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.quotes, nil
}

func (f *fakeAccounting) GetQuote(_ context.Context, _ string, _ uuid.UUID, quoteID string) (*integration.Quote, error) {
	for i := range f.quotes {
		if f.quotes[i].ID == quoteID {
			return &f.quotes[i], nil
		}
	}
	return nil, integration.ErrPlatformRequestFailed
}

func (f *fakeAccounting) rateLimited(quoteID string) bool {
	if n := f.rateLimitQuotes[quoteID]; n > 0 {
		f.rateLimitQuotes[quoteID] = n - 1
		return true
	}
	return false
}

func (f *fakeAccounting) UpdateQuoteNumber(_ context.Context, _ string, _ uuid.UUID, quoteID, number string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rateLimited(quoteID) {
		return integration.ErrPlatformRateLimited
	}
	f.numberUpdates[quoteID] = number
	return nil
}

func (f *fakeAccounting) UpdateQuoteStatus(_ context.Context, _ string, _ uuid.UUID, quoteID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rateLimited(quoteID) {
		return integration.ErrPlatformRateLimited
	}
	f.statusUpdates[quoteID] = status
	return nil
}

// fakeConfigs is an in-memory integration.ConfigProvider.
type fakeConfigs struct {
	configs map[uuid.UUID]*integration.TenantConfig
}

func newFakeConfigs(cfgs ...*integration.TenantConfig) *fakeConfigs {
	f := &fakeConfigs{configs: make(map[uuid.UUID]*integration.TenantConfig)}
	for _, c := range cfgs {
		f.configs[c.TenantID] = c
	}
	return f
}

func (f *fakeConfigs) GetTenantConfig(_ context.Context, tenantID uuid.UUID) (*integration.TenantConfig, error) {
	if cfg, ok := f.configs[tenantID]; ok {
		return cfg, nil
	}
	return nil, integration.ErrPlatformNotConfigured
}

// fakeTokens is a static CredentialSource.
type fakeTokens struct {
	cred *integration.Credential
	err  error
}

func (f *fakeTokens) ValidCredential(_ context.Context, _, _ uuid.UUID) (*integration.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cred, nil
}

// fakeAudit records appended sessions.
type fakeAudit struct {
	mu       sync.Mutex
	sessions []*reconcile.Session
	err      error
}

func (f *fakeAudit) AppendSession(_ context.Context, session *reconcile.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sessions = append(f.sessions, session)
	return nil
}

func (f *fakeAudit) FindSession(_ context.Context, id uuid.UUID) (*reconcile.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, reconcile.ErrSessionNotFound
}

func (f *fakeAudit) ListSessionsByTenant(_ context.Context, tenantID uuid.UUID, limit int, _, _ string) ([]*reconcile.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*reconcile.Session
	for _, s := range f.sessions {
		if s.TenantID == tenantID {
			out = append(out, s)
		}
	}
	return out, nil
}

// testTenantConfig returns a fully wired tenant configuration.
func testTenantConfig(tenantID uuid.UUID) *integration.TenantConfig {
	return &integration.TenantConfig{
		TenantID:            tenantID,
		TenantName:          "Alpha Marine",
		Enabled:             true,
		APIToken:            "pd-token",
		CompanyDomain:       "alphamarine",
		QuoteNumberFieldKey: "a1b2c3",
		QuoteIDFieldKey:     "d4e5f6",
		QuoteNumberPrefix:   "NY",
	}
}

// testCredential returns a credential valid for one hour.
func testCredential(tenantID uuid.UUID) *integration.Credential {
	return &integration.Credential{
		UserID:       uuid.New(),
		AccessToken:  "xero-access",
		RefreshToken: "xero-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		TenantIDs:    []uuid.UUID{tenantID},
	}
}
