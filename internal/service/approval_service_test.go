package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvela/gl-approvals/internal/platform/errors"
	"github.com/finvela/gl-approvals/internal/platform/logger"
	"github.com/finvela/gl-approvals/internal/repository"
	"github.com/finvela/gl-approvals/internal/routing"
)

// ── In-memory fakes ───────────────────────────────────────────────────────────

type fakeTxStore struct {
	txs map[string]*repository.Transaction
}

func newFakeTxStore() *fakeTxStore {
	return &fakeTxStore{txs: make(map[string]*repository.Transaction)}
}

func (f *fakeTxStore) Create(_ context.Context, tx *repository.Transaction) error {
	tx.ID = uuid.NewString()
	tx.CreatedAt = time.Now()
	tx.UpdatedAt = tx.CreatedAt
	f.txs[tx.ID] = tx
	return nil
}

func (f *fakeTxStore) GetByID(_ context.Context, id, companyID string) (*repository.Transaction, error) {
	tx, ok := f.txs[id]
	if !ok || tx.CompanyID != companyID {
		return nil, errors.NotFound("transaction", id)
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeTxStore) List(_ context.Context, companyID string, status *string, limit, offset int) ([]*repository.Transaction, int64, error) {
	var out []*repository.Transaction
	for _, tx := range f.txs {
		if tx.CompanyID != companyID {
			continue
		}
		if status != nil && tx.Status != *status {
			continue
		}
		out = append(out, tx)
	}
	return out, int64(len(out)), nil
}

func (f *fakeTxStore) UpdateStatus(_ context.Context, id, companyID, status string, submittedBy *string) error {
	tx, ok := f.txs[id]
	if !ok || tx.CompanyID != companyID {
		return errors.NotFound("transaction", id)
	}
	tx.Status = status
	if submittedBy != nil {
		tx.SubmittedBy = submittedBy
		now := time.Now()
		tx.SubmittedAt = &now
	}
	return nil
}

func (f *fakeTxStore) Delete(_ context.Context, id, companyID string) error {
	tx, ok := f.txs[id]
	if !ok || tx.CompanyID != companyID {
		return errors.NotFound("transaction", id)
	}
	delete(f.txs, id)
	return nil
}

type fakeWfStore struct {
	wfs map[string]*repository.ApprovalWorkflow
}

func newFakeWfStore() *fakeWfStore {
	return &fakeWfStore{wfs: make(map[string]*repository.ApprovalWorkflow)}
}

func (f *fakeWfStore) Create(_ context.Context, wf *repository.ApprovalWorkflow) error {
	wf.ID = uuid.NewString()
	wf.SubmittedAt = time.Now()
	f.wfs[wf.ID] = wf
	return nil
}

func (f *fakeWfStore) GetByID(_ context.Context, id string) (*repository.ApprovalWorkflow, error) {
	wf, ok := f.wfs[id]
	if !ok {
		return nil, errors.NotFound("approval_workflow", id)
	}
	return wf, nil
}

func (f *fakeWfStore) GetActiveByTransactionID(_ context.Context, transactionID string) (*repository.ApprovalWorkflow, error) {
	var latest *repository.ApprovalWorkflow
	for _, wf := range f.wfs {
		if wf.TransactionID != transactionID {
			continue
		}
		if wf.Status != WorkflowPending && wf.Status != WorkflowEscalationRequired {
			continue
		}
		if latest == nil || wf.SubmittedAt.After(latest.SubmittedAt) {
			latest = wf
		}
	}
	return latest, nil
}

func (f *fakeWfStore) Complete(_ context.Context, id, status, actedBy string, notes *string, completedAt time.Time) error {
	wf, ok := f.wfs[id]
	if !ok {
		return errors.NotFound("approval_workflow", id)
	}
	now := time.Now()
	wf.Status = status
	wf.ActedBy = &actedBy
	wf.ActedAt = &now
	wf.ActionNotes = notes
	wf.CompletedAt = &completedAt
	return nil
}

func (f *fakeWfStore) ListByStatus(_ context.Context, status string, olderThan *time.Time) ([]*repository.ApprovalWorkflow, error) {
	var out []*repository.ApprovalWorkflow
	for _, wf := range f.wfs {
		if wf.Status != status {
			continue
		}
		if olderThan != nil && !wf.SubmittedAt.Before(*olderThan) {
			continue
		}
		out = append(out, wf)
	}
	return out, nil
}

func (f *fakeWfStore) GetPendingForUser(_ context.Context, companyID, userID string) ([]*repository.ApprovalWorkflow, error) {
	var out []*repository.ApprovalWorkflow
	for _, wf := range f.wfs {
		if wf.CompanyID != companyID || wf.Status != WorkflowPending {
			continue
		}
		for _, a := range wf.EligibleApprovers {
			if a == userID {
				out = append(out, wf)
				break
			}
		}
	}
	return out, nil
}

type fakeAuditStore struct {
	entries []*repository.AuditEntry
}

func (f *fakeAuditStore) Append(_ context.Context, entry *repository.AuditEntry) error {
	entry.ID = uuid.NewString()
	entry.PerformedAt = time.Now()
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditStore) GetByTransactionID(_ context.Context, transactionID, companyID string) ([]*repository.AuditEntry, error) {
	var out []*repository.AuditEntry
	for _, e := range f.entries {
		if e.TransactionID == transactionID && e.CompanyID == companyID {
			out = append(out, e)
		}
	}
	return out, nil
}

type publishedEvent struct {
	eventType  string
	recipients []string
}

type fakeNotifier struct {
	events []publishedEvent
}

func (f *fakeNotifier) PublishApprovalEvent(_ context.Context, eventType, _, _, _ string, recipients []string, _ map[string]interface{}) {
	f.events = append(f.events, publishedEvent{eventType: eventType, recipients: recipients})
}

// staticProvider serves a fixed policy per company.
type staticProvider struct {
	policies map[string]*routing.CompanyPolicy
}

func (p *staticProvider) CompanyPolicy(_ context.Context, companyID string) (*routing.CompanyPolicy, error) {
	policy, ok := p.policies[companyID]
	if !ok {
		return nil, errors.Configuration(fmt.Sprintf("no approval policy configured for company %s", companyID))
	}
	return policy, nil
}

// ── Fixture ───────────────────────────────────────────────────────────────────

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func testPolicy() *routing.CompanyPolicy {
	return &routing.CompanyPolicy{
		CompanyID: "C1",
		Thresholds: []routing.Threshold{
			{Tier: routing.TierSupervisor, Min: dec("0"), Max: decPtr("10000")},
			{Tier: routing.TierManager, Min: dec("10000"), Max: decPtr("100000")},
			{Tier: routing.TierDirector, Min: dec("100000")},
		},
		Roster: map[routing.Tier][]routing.Approver{
			routing.TierSupervisor: {
				{UserID: "supervisor1", Tier: routing.TierSupervisor},
				{UserID: "supervisor2", Tier: routing.TierSupervisor},
			},
			routing.TierManager: {
				{UserID: "manager1", Tier: routing.TierManager},
			},
			routing.TierDirector: {
				{UserID: "director1", Tier: routing.TierDirector},
			},
		},
	}
}

type fixture struct {
	svc      *ApprovalService
	txStore  *fakeTxStore
	wfStore  *fakeWfStore
	audit    *fakeAuditStore
	notifier *fakeNotifier
	provider *staticProvider
}

func newFixture() *fixture {
	f := &fixture{
		txStore:  newFakeTxStore(),
		wfStore:  newFakeWfStore(),
		audit:    &fakeAuditStore{},
		notifier: &fakeNotifier{},
		provider: &staticProvider{policies: map[string]*routing.CompanyPolicy{"C1": testPolicy()}},
	}
	f.svc = NewApprovalService(f.txStore, f.wfStore, f.audit, f.provider, f.notifier, logger.Nop())
	return f
}

func (f *fixture) createTransaction(t *testing.T, amount, createdBy string) *repository.Transaction {
	t.Helper()
	tx, err := f.svc.CreateTransaction(context.Background(), &CreateTransactionRequest{
		CompanyID: "C1",
		Amount:    dec(amount),
		Currency:  "usd",
		CreatedBy: createdBy,
	})
	require.NoError(t, err)
	return tx
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestCreateTransactionValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateTransaction(ctx, &CreateTransactionRequest{
		CompanyID: "C1", Amount: dec("-5"), Currency: "USD", CreatedBy: "u1",
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	_, err = f.svc.CreateTransaction(ctx, &CreateTransactionRequest{
		CompanyID: "C1", Amount: dec("5"), Currency: "DOLLARS", CreatedBy: "u1",
	})
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	tx, err := f.svc.CreateTransaction(ctx, &CreateTransactionRequest{
		CompanyID: "C1", Amount: dec("5"), Currency: "usd", CreatedBy: "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "USD", tx.Currency)
	assert.Equal(t, StatusDraft, tx.Status)
}

func TestSubmitRoutesToTier(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "25000", "clerk1")

	wf, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)

	assert.Equal(t, string(routing.TierManager), wf.RequiredTier)
	assert.Equal(t, []string{"manager1"}, wf.EligibleApprovers)
	assert.Equal(t, WorkflowPending, wf.Status)

	updated, err := f.svc.GetTransaction(context.Background(), tx.ID, "C1")
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, updated.Status)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "approval_required", f.notifier.events[0].eventType)
	assert.Equal(t, []string{"manager1"}, f.notifier.events[0].recipients)
}

func TestSubmitSelfApprovalBlockedHoldsForEscalation(t *testing.T) {
	f := newFixture()
	// manager1 is the only configured manager and also the creator.
	tx := f.createTransaction(t, "25000", "manager1")

	wf, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "manager1")
	require.NoError(t, err)

	assert.Equal(t, WorkflowEscalationRequired, wf.Status)
	assert.Empty(t, wf.EligibleApprovers)

	updated, err := f.svc.GetTransaction(context.Background(), tx.ID, "C1")
	require.NoError(t, err)
	assert.Equal(t, StatusEscalationRequired, updated.Status)

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "escalation_required", f.notifier.events[0].eventType)
}

func TestSubmitConfigurationErrorSurfaces(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "100", "clerk1")

	delete(f.provider.policies, "C1")

	_, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))

	// The transaction must be left untouched.
	updated, err := f.svc.GetTransaction(context.Background(), tx.ID, "C1")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, updated.Status)
}

func TestSubmitRejectsWrongStatus(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "100", "clerk1")

	_, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)

	_, err = f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
}

func TestApproveByEligibleApprover(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "25000", "clerk1")
	wf, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Approve(context.Background(), tx.ID, "C1", "manager1", nil))

	updated, err := f.svc.GetTransaction(context.Background(), tx.ID, "C1")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, updated.Status)

	completed, err := f.wfStore.GetByID(context.Background(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, WorkflowApproved, completed.Status)
	require.NotNil(t, completed.ActedBy)
	assert.Equal(t, "manager1", *completed.ActedBy)
}

func TestApproveByNonEligibleUserFails(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "25000", "clerk1")
	_, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)

	err = f.svc.Approve(context.Background(), tx.ID, "C1", "supervisor1", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
}

func TestApproveByCreatorFails(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "25000", "clerk1")
	_, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)

	err = f.svc.Approve(context.Background(), tx.ID, "C1", "clerk1", nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "25000", "clerk1")
	_, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)

	err = f.svc.Reject(context.Background(), tx.ID, "C1", "manager1", "")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))

	require.NoError(t, f.svc.Reject(context.Background(), tx.ID, "C1", "manager1", "missing PO reference"))

	updated, err := f.svc.GetTransaction(context.Background(), tx.ID, "C1")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, updated.Status)
}

func TestResubmissionReroutesAgainstCurrentPolicy(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "25000", "clerk1")

	wf1, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)
	assert.Equal(t, []string{"manager1"}, wf1.EligibleApprovers)

	require.NoError(t, f.svc.Reject(context.Background(), tx.ID, "C1", "manager1", "wrong account"))

	// The roster changes before resubmission: manager2 replaces manager1.
	f.provider.policies["C1"].Roster[routing.TierManager] = []routing.Approver{
		{UserID: "manager2", Tier: routing.TierManager},
	}

	wf2, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)
	assert.NotEqual(t, wf1.ID, wf2.ID)
	assert.Equal(t, []string{"manager2"}, wf2.EligibleApprovers)
}

func TestRecallOnlyBySubmitter(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "2000", "clerk1")
	_, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)

	err = f.svc.Recall(context.Background(), tx.ID, "C1", "someone-else")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthorized))

	require.NoError(t, f.svc.Recall(context.Background(), tx.ID, "C1", "clerk1"))

	updated, err := f.svc.GetTransaction(context.Background(), tx.ID, "C1")
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, updated.Status)
}

func TestPendingApprovalsForUser(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "2000", "clerk1")
	_, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)

	pending, err := f.svc.GetPendingApprovals(context.Background(), "C1", "supervisor1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, tx.ID, pending[0].TransactionID)

	pending, err = f.svc.GetPendingApprovals(context.Background(), "C1", "director1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAuditTrailRecordsLifecycle(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "2000", "clerk1")
	_, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)
	require.NoError(t, f.svc.Approve(context.Background(), tx.ID, "C1", "supervisor1", nil))

	trail, err := f.svc.GetApprovalHistory(context.Background(), tx.ID, "C1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "submitted", trail[0].Action)
	assert.Equal(t, "approved", trail[1].Action)
	assert.Equal(t, "supervisor1", trail[1].PerformedBy)
}

func TestPreviewRouteDoesNotPersist(t *testing.T) {
	f := newFixture()

	decision, err := f.svc.PreviewRoute(context.Background(), "C1", dec("150000"), "clerk1")
	require.NoError(t, err)
	assert.Equal(t, routing.TierDirector, decision.RequiredTier)
	assert.Equal(t, []string{"director1"}, decision.EligibleApprovers)

	assert.Empty(t, f.wfStore.wfs)
	assert.Empty(t, f.audit.entries)
}

func TestDeleteOnlyDraft(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "2000", "clerk1")
	_, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "clerk1")
	require.NoError(t, err)

	err = f.svc.DeleteTransaction(context.Background(), tx.ID, "C1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))
}

func TestEscalationSweepPublishesForStuckWorkflows(t *testing.T) {
	f := newFixture()
	tx := f.createTransaction(t, "25000", "manager1")
	_, err := f.svc.SubmitForApproval(context.Background(), tx.ID, "C1", "manager1")
	require.NoError(t, err)
	f.notifier.events = nil

	sweeper := NewEscalationService(f.wfStore, f.notifier, logger.Nop(), time.Hour)
	require.NoError(t, sweeper.Sweep(context.Background()))

	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, "escalation_required", f.notifier.events[0].eventType)
}
