package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finvela/gl-approvals/internal/platform/errors"
	"github.com/finvela/gl-approvals/internal/platform/logger"
	"github.com/finvela/gl-approvals/internal/policy"
	"github.com/finvela/gl-approvals/internal/repository"
	"github.com/finvela/gl-approvals/internal/routing"
)

// Transaction statuses.
const (
	StatusDraft              = "draft"
	StatusPendingApproval    = "pending_approval"
	StatusApproved           = "approved"
	StatusRejected           = "rejected"
	StatusEscalationRequired = "escalation_required"
)

// Workflow statuses.
const (
	WorkflowPending            = "pending"
	WorkflowApproved           = "approved"
	WorkflowRejected           = "rejected"
	WorkflowRecalled           = "recalled"
	WorkflowEscalationRequired = "escalation_required"
)

// TransactionStore persists pending transactions.
type TransactionStore interface {
	Create(ctx context.Context, tx *repository.Transaction) error
	GetByID(ctx context.Context, id, companyID string) (*repository.Transaction, error)
	List(ctx context.Context, companyID string, status *string, limit, offset int) ([]*repository.Transaction, int64, error)
	UpdateStatus(ctx context.Context, id, companyID, status string, submittedBy *string) error
	Delete(ctx context.Context, id, companyID string) error
}

// WorkflowStore persists approval workflow instances.
type WorkflowStore interface {
	Create(ctx context.Context, wf *repository.ApprovalWorkflow) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalWorkflow, error)
	GetActiveByTransactionID(ctx context.Context, transactionID string) (*repository.ApprovalWorkflow, error)
	Complete(ctx context.Context, id, status, actedBy string, notes *string, completedAt time.Time) error
	ListByStatus(ctx context.Context, status string, olderThan *time.Time) ([]*repository.ApprovalWorkflow, error)
	GetPendingForUser(ctx context.Context, companyID, userID string) ([]*repository.ApprovalWorkflow, error)
}

// AuditStore appends and reads immutable audit entries.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	GetByTransactionID(ctx context.Context, transactionID, companyID string) ([]*repository.AuditEntry, error)
}

// Notifier publishes approval events. Implementations must be non-fatal:
// failures are logged, never returned.
type Notifier interface {
	PublishApprovalEvent(ctx context.Context, eventType, transactionID, companyID, actorID string, recipients []string, payload map[string]interface{})
}

// ApprovalService orchestrates the routing decision and the workflow
// lifecycle around it. The routing computation itself lives in the pure
// routing package; this service feeds it policy snapshots and persists
// the outcome.
type ApprovalService struct {
	txStore  TransactionStore
	wfStore  WorkflowStore
	audit    AuditStore
	policy   policy.Provider
	notifier Notifier
	log      *logger.Logger
}

// NewApprovalService creates a new ApprovalService.
func NewApprovalService(
	txStore TransactionStore,
	wfStore WorkflowStore,
	audit AuditStore,
	policyProvider policy.Provider,
	notifier Notifier,
	log *logger.Logger,
) *ApprovalService {
	return &ApprovalService{
		txStore:  txStore,
		wfStore:  wfStore,
		audit:    audit,
		policy:   policyProvider,
		notifier: notifier,
		log:      log,
	}
}

// CreateTransactionRequest represents a create transaction request.
type CreateTransactionRequest struct {
	CompanyID   string
	Amount      decimal.Decimal
	Currency    string
	Description *string
	CreatedBy   string
}

// CreateTransaction creates a new draft transaction.
func (s *ApprovalService) CreateTransaction(ctx context.Context, req *CreateTransactionRequest) (*repository.Transaction, error) {
	if req.CompanyID == "" {
		return nil, errors.InvalidInput("company_id", "company is required")
	}
	if req.CreatedBy == "" {
		return nil, errors.InvalidInput("created_by", "creator identity is required")
	}
	if req.Amount.IsNegative() {
		return nil, errors.InvalidInput("amount", "must be non-negative")
	}
	if len(req.Currency) != 3 {
		return nil, errors.InvalidInput("currency", "currency must be 3-letter ISO code")
	}

	tx := &repository.Transaction{
		CompanyID:   req.CompanyID,
		Amount:      req.Amount,
		Currency:    strings.ToUpper(req.Currency),
		Description: req.Description,
		Status:      StatusDraft,
		CreatedBy:   req.CreatedBy,
	}

	if err := s.txStore.Create(ctx, tx); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("transaction_id", tx.ID).
		Str("company_id", tx.CompanyID).
		Str("amount", tx.Amount.String()).
		Str("created_by", tx.CreatedBy).
		Msg("Transaction created")

	return tx, nil
}

// GetTransaction retrieves a transaction by ID.
func (s *ApprovalService) GetTransaction(ctx context.Context, id, companyID string) (*repository.Transaction, error) {
	return s.txStore.GetByID(ctx, id, companyID)
}

// ListTransactions lists transactions with filtering and pagination.
func (s *ApprovalService) ListTransactions(ctx context.Context, companyID string, status *string, page, pageSize int) ([]*repository.Transaction, int64, error) {
	offset := (page - 1) * pageSize
	return s.txStore.List(ctx, companyID, status, pageSize, offset)
}

// ── Submission & routing ──────────────────────────────────────────────────────

// SubmitForApproval routes a transaction and opens a workflow for it.
//
// Draft and rejected transactions may be submitted; a rejected one is
// re-routed from scratch against the current policy. Configuration
// errors from routing propagate untouched — they must reach an operator,
// never be defaulted. An empty eligible set is a business outcome: the
// transaction is parked in escalation_required rather than dropped.
func (s *ApprovalService) SubmitForApproval(ctx context.Context, id, companyID, submittedBy string) (*repository.ApprovalWorkflow, error) {
	tx, err := s.txStore.GetByID(ctx, id, companyID)
	if err != nil {
		return nil, err
	}

	if tx.Status != StatusDraft && tx.Status != StatusRejected {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot submit transaction with status '%s' for approval", tx.Status))
	}

	companyPolicy, err := s.policy.CompanyPolicy(ctx, companyID)
	if err != nil {
		return nil, err
	}

	decision, err := routing.Route(companyPolicy, tx.Amount, tx.CreatedBy)
	if err != nil {
		return nil, err
	}

	wf := &repository.ApprovalWorkflow{
		TransactionID:     tx.ID,
		CompanyID:         companyID,
		RequiredTier:      string(decision.RequiredTier),
		EligibleApprovers: decision.EligibleApprovers,
		Status:            WorkflowPending,
		SubmittedBy:       submittedBy,
	}

	txStatus := StatusPendingApproval
	if decision.NoEligibleApprover() {
		wf.Status = WorkflowEscalationRequired
		txStatus = StatusEscalationRequired
	}

	if err := s.wfStore.Create(ctx, wf); err != nil {
		return nil, err
	}
	if err := s.txStore.UpdateStatus(ctx, id, companyID, txStatus, &submittedBy); err != nil {
		return nil, err
	}

	statusBefore := tx.Status
	s.appendAudit(ctx, &repository.AuditEntry{
		TransactionID: tx.ID,
		WorkflowID:    &wf.ID,
		CompanyID:     companyID,
		Action:        "submitted",
		PerformedBy:   submittedBy,
		StatusBefore:  &statusBefore,
		StatusAfter:   &txStatus,
		Metadata: map[string]interface{}{
			"required_tier":      wf.RequiredTier,
			"eligible_approvers": wf.EligibleApprovers,
			"amount":             tx.Amount.String(),
		},
	})

	if decision.NoEligibleApprover() {
		s.log.Warn().
			Str("transaction_id", tx.ID).
			Str("required_tier", wf.RequiredTier).
			Msg("No eligible approver after segregation-of-duties filtering; holding for escalation")

		s.notifier.PublishApprovalEvent(ctx, "escalation_required", tx.ID, companyID, submittedBy,
			[]string{submittedBy}, map[string]interface{}{
				"required_tier": wf.RequiredTier,
				"amount":        tx.Amount.String(),
			})
		return wf, nil
	}

	s.log.Info().
		Str("transaction_id", tx.ID).
		Str("workflow_id", wf.ID).
		Str("required_tier", wf.RequiredTier).
		Int("eligible_approvers", len(wf.EligibleApprovers)).
		Msg("Transaction routed for approval")

	s.notifier.PublishApprovalEvent(ctx, "approval_required", tx.ID, companyID, submittedBy,
		wf.EligibleApprovers, map[string]interface{}{
			"required_tier": wf.RequiredTier,
			"amount":        tx.Amount.String(),
			"currency":      tx.Currency,
		})

	return wf, nil
}

// PreviewRoute runs the routing decision without persisting anything.
func (s *ApprovalService) PreviewRoute(ctx context.Context, companyID string, amount decimal.Decimal, creatorID string) (*routing.Decision, error) {
	companyPolicy, err := s.policy.CompanyPolicy(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return routing.Route(companyPolicy, amount, creatorID)
}

// ── Approve ───────────────────────────────────────────────────────────────────

// Approve records approval by an eligible approver and completes the
// workflow.
func (s *ApprovalService) Approve(ctx context.Context, id, companyID, actedBy string, notes *string) error {
	tx, wf, err := s.loadActionable(ctx, id, companyID)
	if err != nil {
		return err
	}
	if err := s.assertEligible(wf, tx, actedBy); err != nil {
		return err
	}

	now := time.Now()
	if err := s.wfStore.Complete(ctx, wf.ID, WorkflowApproved, actedBy, notes, now); err != nil {
		return err
	}
	if err := s.txStore.UpdateStatus(ctx, id, companyID, StatusApproved, nil); err != nil {
		return err
	}

	statusBefore := StatusPendingApproval
	statusAfter := StatusApproved
	s.appendAudit(ctx, &repository.AuditEntry{
		TransactionID: id,
		WorkflowID:    &wf.ID,
		CompanyID:     companyID,
		Action:        "approved",
		PerformedBy:   actedBy,
		StatusBefore:  &statusBefore,
		StatusAfter:   &statusAfter,
		Metadata:      map[string]interface{}{"required_tier": wf.RequiredTier},
	})

	s.log.Info().
		Str("transaction_id", id).
		Str("workflow_id", wf.ID).
		Str("approved_by", actedBy).
		Msg("Transaction approved")

	s.notifier.PublishApprovalEvent(ctx, "transaction_approved", id, companyID, actedBy,
		[]string{wf.SubmittedBy}, nil)

	return nil
}

// ── Reject ────────────────────────────────────────────────────────────────────

// Reject records rejection by an eligible approver, returning the
// transaction to a resubmittable state.
func (s *ApprovalService) Reject(ctx context.Context, id, companyID, actedBy, reason string) error {
	if reason == "" {
		return errors.InvalidInput("reason", "rejection reason is required")
	}

	tx, wf, err := s.loadActionable(ctx, id, companyID)
	if err != nil {
		return err
	}
	if err := s.assertEligible(wf, tx, actedBy); err != nil {
		return err
	}

	now := time.Now()
	notes := &reason
	if err := s.wfStore.Complete(ctx, wf.ID, WorkflowRejected, actedBy, notes, now); err != nil {
		return err
	}
	if err := s.txStore.UpdateStatus(ctx, id, companyID, StatusRejected, nil); err != nil {
		return err
	}

	statusBefore := StatusPendingApproval
	statusAfter := StatusRejected
	s.appendAudit(ctx, &repository.AuditEntry{
		TransactionID: id,
		WorkflowID:    &wf.ID,
		CompanyID:     companyID,
		Action:        "rejected",
		PerformedBy:   actedBy,
		StatusBefore:  &statusBefore,
		StatusAfter:   &statusAfter,
		Metadata:      map[string]interface{}{"reason": reason},
	})

	s.log.Info().
		Str("transaction_id", id).
		Str("workflow_id", wf.ID).
		Str("rejected_by", actedBy).
		Msg("Transaction rejected")

	s.notifier.PublishApprovalEvent(ctx, "transaction_rejected", id, companyID, actedBy,
		[]string{wf.SubmittedBy}, map[string]interface{}{"reason": reason})

	return nil
}

// ── Recall ────────────────────────────────────────────────────────────────────

// Recall lets the original submitter cancel a pending workflow, returning
// the transaction to draft.
func (s *ApprovalService) Recall(ctx context.Context, id, companyID, recalledBy string) error {
	tx, err := s.txStore.GetByID(ctx, id, companyID)
	if err != nil {
		return err
	}
	if tx.Status != StatusPendingApproval && tx.Status != StatusEscalationRequired {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot recall transaction with status '%s'", tx.Status))
	}

	wf, err := s.wfStore.GetActiveByTransactionID(ctx, id)
	if err != nil {
		return err
	}
	if wf == nil {
		return errors.NotFound("approval_workflow", id)
	}
	if wf.SubmittedBy != recalledBy {
		return errors.New(errors.ErrCodeUnauthorized, "only the submitter can recall the workflow")
	}

	now := time.Now()
	if err := s.wfStore.Complete(ctx, wf.ID, WorkflowRecalled, recalledBy, nil, now); err != nil {
		return err
	}
	if err := s.txStore.UpdateStatus(ctx, id, companyID, StatusDraft, nil); err != nil {
		return err
	}

	statusBefore := tx.Status
	statusAfter := StatusDraft
	s.appendAudit(ctx, &repository.AuditEntry{
		TransactionID: id,
		WorkflowID:    &wf.ID,
		CompanyID:     companyID,
		Action:        "recalled",
		PerformedBy:   recalledBy,
		StatusBefore:  &statusBefore,
		StatusAfter:   &statusAfter,
	})

	s.log.Info().
		Str("transaction_id", id).
		Str("workflow_id", wf.ID).
		Str("recalled_by", recalledBy).
		Msg("Transaction recalled")

	s.notifier.PublishApprovalEvent(ctx, "transaction_recalled", id, companyID, recalledBy,
		wf.EligibleApprovers, nil)

	return nil
}

// ── Query helpers ─────────────────────────────────────────────────────────────

// GetPendingApprovals returns workflows currently awaiting action from a
// user.
func (s *ApprovalService) GetPendingApprovals(ctx context.Context, companyID, userID string) ([]*repository.ApprovalWorkflow, error) {
	return s.wfStore.GetPendingForUser(ctx, companyID, userID)
}

// GetApprovalHistory returns the full audit trail for a transaction.
func (s *ApprovalService) GetApprovalHistory(ctx context.Context, transactionID, companyID string) ([]*repository.AuditEntry, error) {
	return s.audit.GetByTransactionID(ctx, transactionID, companyID)
}

// DeleteTransaction deletes a draft transaction.
func (s *ApprovalService) DeleteTransaction(ctx context.Context, id, companyID string) error {
	tx, err := s.txStore.GetByID(ctx, id, companyID)
	if err != nil {
		return err
	}
	if tx.Status != StatusDraft {
		return errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot delete transaction with status '%s'", tx.Status))
	}
	return s.txStore.Delete(ctx, id, companyID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// loadActionable fetches a transaction and its open workflow, verifying
// the transaction is awaiting approval.
func (s *ApprovalService) loadActionable(ctx context.Context, id, companyID string) (*repository.Transaction, *repository.ApprovalWorkflow, error) {
	tx, err := s.txStore.GetByID(ctx, id, companyID)
	if err != nil {
		return nil, nil, err
	}
	if tx.Status != StatusPendingApproval {
		return nil, nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("transaction is not pending approval (status: %s)", tx.Status))
	}

	wf, err := s.wfStore.GetActiveByTransactionID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if wf == nil {
		return nil, nil, errors.NotFound("approval_workflow", id)
	}
	if wf.Status != WorkflowPending {
		return nil, nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("workflow is not pending (status: %s)", wf.Status))
	}
	return tx, wf, nil
}

// assertEligible checks the actor against the routed eligible set. The
// creator can never appear there, so segregation-of-duties holds without
// a separate check; the explicit creator comparison is kept as a guard
// against workflows routed under an older policy.
func (s *ApprovalService) assertEligible(wf *repository.ApprovalWorkflow, tx *repository.Transaction, userID string) error {
	if userID == tx.CreatedBy {
		return errors.New(errors.ErrCodeUnauthorized,
			"transaction creator cannot approve their own transaction")
	}
	for _, approver := range wf.EligibleApprovers {
		if approver == userID {
			return nil
		}
	}
	return errors.New(errors.ErrCodeUnauthorized,
		"user is not an eligible approver for this transaction")
}

// appendAudit writes an audit entry and logs a warning on failure (never
// returns error).
func (s *ApprovalService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.Warn().Err(err).
			Str("transaction_id", entry.TransactionID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}
