package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotedeck/backend/internal/domain/reconcile"
)

// newTestFixService wires a FixService with small batches and a short
// delay so timing assertions stay fast.
func newTestFixService(crm *fakeCRM, accounting *fakeAccounting, audit *fakeAudit) *FixService {
	return NewFixService(crm, accounting, audit, nil, FixServiceConfig{
		BatchSize:  2,
		BatchDelay: 60 * time.Millisecond,
	})
}

func testDeps(tenantID uuid.UUID) *WorkflowDeps {
	return &WorkflowDeps{
		Config:     testTenantConfig(tenantID),
		Credential: testCredential(tenantID),
	}
}

func outcomes(session *reconcile.Session) map[reconcile.FixOutcome]int {
	counts := make(map[reconcile.FixOutcome]int)
	for _, r := range session.FixResults {
		counts[r.Outcome]++
	}
	return counts
}

func TestExecuteWorkflow_AllFixed(t *testing.T) {
	tenantID := uuid.New()
	crm := newFakeCRM()
	accounting := newFakeAccounting()
	audit := &fakeAudit{}
	svc := newTestFixService(crm, accounting, audit)

	issues := []reconcile.IssueRecord{
		{Code: reconcile.IssueValueMismatch, DealID: 1, QuoteID: "q-1", Expected: "1250.50"},
		{Code: reconcile.IssueQuoteNotAccepted, DealID: 2, QuoteID: "q-2"},
		{Code: reconcile.IssueBadQuoteNumber, DealID: 3, QuoteID: "q-3", DealTitle: "NY25103 - LST 102 CYGNUS"},
	}

	session := svc.InitializeSession(tenantID, "Alpha Marine", issues)
	assert.Equal(t, reconcile.SessionPending, session.Status)

	events := make(chan reconcile.ProgressEvent, 64)
	svc.ExecuteWorkflow(context.Background(), session, testDeps(tenantID), events)

	assert.Equal(t, reconcile.SessionCompleted, session.Status)
	require.Len(t, session.FixResults, len(issues))
	assert.Equal(t, 3, outcomes(session)[reconcile.OutcomeFixed])

	// Remediations reached the platforms.
	assert.Equal(t, "1250.5", crm.valueUpdates[1].String())
	assert.Equal(t, "ACCEPTED", accounting.statusUpdates["q-2"])
	assert.Equal(t, "NY25103", accounting.numberUpdates["q-3"])

	// The terminal session was audited.
	require.Len(t, audit.sessions, 1)
	assert.Equal(t, session.ID, audit.sessions[0].ID)

	// Event order: session_started first, session_completed last.
	close(events)
	var seen []reconcile.ProgressEventType
	for ev := range events {
		seen = append(seen, ev.Type)
	}
	require.NotEmpty(t, seen)
	assert.Equal(t, reconcile.EventSessionStarted, seen[0])
	assert.Equal(t, reconcile.EventSessionCompleted, seen[len(seen)-1])
}

func TestExecuteWorkflow_ManualAndUnknownCodesSkipped(t *testing.T) {
	tenantID := uuid.New()
	svc := newTestFixService(newFakeCRM(), newFakeAccounting(), &fakeAudit{})

	issues := []reconcile.IssueRecord{
		{Code: reconcile.IssueCurrencyMismatch, DealID: 1},
		{Code: reconcile.IssueCode("SOMETHING_NEW"), DealID: 2},
	}

	session := svc.InitializeSession(tenantID, "Alpha Marine", issues)
	svc.ExecuteWorkflow(context.Background(), session, testDeps(tenantID), nil)

	assert.Equal(t, reconcile.SessionCompleted, session.Status)
	require.Len(t, session.FixResults, 2)
	assert.Equal(t, 2, outcomes(session)[reconcile.OutcomeSkippedManual])
	assert.Equal(t, 2, session.Summary.SkippedManual)
}

func TestExecuteWorkflow_ItemFailureDoesNotAbortSession(t *testing.T) {
	tenantID := uuid.New()
	crm := newFakeCRM()
	crm.updateErrs[1] = fmt.Errorf("HTTP 500")
	svc := newTestFixService(crm, newFakeAccounting(), &fakeAudit{})

	issues := []reconcile.IssueRecord{
		{Code: reconcile.IssueValueMismatch, DealID: 1, QuoteID: "q-1", Expected: "10"},
		{Code: reconcile.IssueValueMismatch, DealID: 2, QuoteID: "q-2", Expected: "20"},
	}

	session := svc.InitializeSession(tenantID, "Alpha Marine", issues)
	svc.ExecuteWorkflow(context.Background(), session, testDeps(tenantID), nil)

	assert.Equal(t, reconcile.SessionCompletedWithErrors, session.Status)
	require.Len(t, session.FixResults, 2)
	counts := outcomes(session)
	assert.Equal(t, 1, counts[reconcile.OutcomeFailed])
	assert.Equal(t, 1, counts[reconcile.OutcomeFixed])
	assert.Equal(t, "20", crm.valueUpdates[2].String())
}

func TestExecuteWorkflow_PanicIsolatedToItem(t *testing.T) {
	tenantID := uuid.New()
	crm := newFakeCRM()
	crm.panicOnDeal = 1
	svc := newTestFixService(crm, newFakeAccounting(), &fakeAudit{})

	issues := []reconcile.IssueRecord{
		{Code: reconcile.IssueValueMismatch, DealID: 1, QuoteID: "q-1", Expected: "10"},
		{Code: reconcile.IssueValueMismatch, DealID: 2, QuoteID: "q-2", Expected: "20"},
	}

	session := svc.InitializeSession(tenantID, "Alpha Marine", issues)
	svc.ExecuteWorkflow(context.Background(), session, testDeps(tenantID), nil)

	require.Len(t, session.FixResults, 2)
	var failed *reconcile.FixResult
	for i := range session.FixResults {
		if session.FixResults[i].DealID == 1 {
			failed = &session.FixResults[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, reconcile.OutcomeFailed, failed.Outcome)
	assert.Contains(t, failed.Error, "panic")
}

func TestExecuteWorkflow_RateLimitRetriedOnce(t *testing.T) {
	tenantID := uuid.New()
	accounting := newFakeAccounting()
	accounting.rateLimitQuotes["q-1"] = 1 // first call 429s, retry succeeds
	accounting.rateLimitQuotes["q-2"] = 2 // retry 429s again -> failed
	svc := newTestFixService(newFakeCRM(), accounting, &fakeAudit{})

	issues := []reconcile.IssueRecord{
		{Code: reconcile.IssueQuoteNotAccepted, DealID: 1, QuoteID: "q-1"},
		{Code: reconcile.IssueQuoteNotAccepted, DealID: 2, QuoteID: "q-2"},
	}

	session := svc.InitializeSession(tenantID, "Alpha Marine", issues)
	svc.ExecuteWorkflow(context.Background(), session, testDeps(tenantID), nil)

	counts := outcomes(session)
	assert.Equal(t, 1, counts[reconcile.OutcomeFixed])
	assert.Equal(t, 1, counts[reconcile.OutcomeFailed])
	assert.Equal(t, "ACCEPTED", accounting.statusUpdates["q-1"])
}

func TestExecuteWorkflow_BatchDelayBetweenBatchesOnly(t *testing.T) {
	tenantID := uuid.New()
	svc := newTestFixService(newFakeCRM(), newFakeAccounting(), &fakeAudit{})

	// 5 issues, batch size 2 -> 3 batches -> exactly 2 forced delays.
	issues := make([]reconcile.IssueRecord, 5)
	for i := range issues {
		issues[i] = reconcile.IssueRecord{
			Code: reconcile.IssueValueMismatch, DealID: int64(i + 1),
			QuoteID: fmt.Sprintf("q-%d", i+1), Expected: "10",
		}
	}

	session := svc.InitializeSession(tenantID, "Alpha Marine", issues)

	start := time.Now()
	svc.ExecuteWorkflow(context.Background(), session, testDeps(tenantID), nil)
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 2*svc.config.BatchDelay)
	assert.Less(t, elapsed, 4*svc.config.BatchDelay)
	assert.Len(t, session.FixResults, 5)
}

func TestExecuteWorkflow_OrderPreservedAcrossBatches(t *testing.T) {
	tenantID := uuid.New()
	svc := newTestFixService(newFakeCRM(), newFakeAccounting(), &fakeAudit{})

	issues := make([]reconcile.IssueRecord, 4)
	for i := range issues {
		issues[i] = reconcile.IssueRecord{
			Code: reconcile.IssueValueMismatch, DealID: int64(i + 1), Expected: "10",
		}
	}

	session := svc.InitializeSession(tenantID, "Alpha Marine", issues)
	svc.ExecuteWorkflow(context.Background(), session, testDeps(tenantID), nil)

	require.Len(t, session.FixResults, 4)
	for i, r := range session.FixResults {
		assert.Equal(t, int64(i+1), r.DealID)
	}
}

func TestRollbackSession(t *testing.T) {
	svc := newTestFixService(newFakeCRM(), newFakeAccounting(), &fakeAudit{})
	assert.ErrorIs(t, svc.RollbackSession(uuid.New()), reconcile.ErrRollbackNotImplemented)
}

func TestFixQuoteNumber_UnparseableTitleFails(t *testing.T) {
	tenantID := uuid.New()
	svc := newTestFixService(newFakeCRM(), newFakeAccounting(), &fakeAudit{})

	issues := []reconcile.IssueRecord{
		{Code: reconcile.IssueBadQuoteNumber, DealID: 1, QuoteID: "q-1", DealTitle: "no code here"},
	}

	session := svc.InitializeSession(tenantID, "Alpha Marine", issues)
	svc.ExecuteWorkflow(context.Background(), session, testDeps(tenantID), nil)

	require.Len(t, session.FixResults, 1)
	assert.Equal(t, reconcile.OutcomeFailed, session.FixResults[0].Outcome)
}

func TestFixCrossLink_WritesBothFields(t *testing.T) {
	tenantID := uuid.New()
	crm := newFakeCRM()
	svc := newTestFixService(crm, newFakeAccounting(), &fakeAudit{})

	issues := []reconcile.IssueRecord{
		{Code: reconcile.IssueProductCountMismatch, DealID: 1, QuoteID: "q-1", QuoteNumber: "NY25101"},
	}

	session := svc.InitializeSession(tenantID, "Alpha Marine", issues)
	svc.ExecuteWorkflow(context.Background(), session, testDeps(tenantID), nil)

	require.Len(t, session.FixResults, 1)
	assert.Equal(t, reconcile.OutcomeFixed, session.FixResults[0].Outcome)
	assert.Equal(t, "NY25101", crm.fieldUpdates[1]["a1b2c3"])
	assert.Equal(t, "q-1", crm.fieldUpdates[1]["d4e5f6"])
}
