package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/finvela/gl-approvals/internal/platform/database"
	"github.com/finvela/gl-approvals/internal/platform/errors"
)

// WorkflowRepository manages approval workflow instances. One workflow
// exists per submission attempt; the routed eligible-approver list is
// frozen on the row.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a workflow carrying the routing decision.
func (r *WorkflowRepository) Create(ctx context.Context, wf *ApprovalWorkflow) error {
	query := `
		INSERT INTO approval_workflows
		    (transaction_id, company_id, required_tier,
		     eligible_approvers, status, submitted_by)
		VALUES ($1, $2, $3::approval_tier,
		        $4, $5::workflow_status, $6)
		RETURNING id, submitted_at, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		wf.TransactionID,
		wf.CompanyID,
		wf.RequiredTier,
		wf.EligibleApprovers,
		wf.Status,
		wf.SubmittedBy,
	).Scan(&wf.ID, &wf.SubmittedAt, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval workflow")
	}

	return nil
}

// GetByID retrieves a workflow by its primary key.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*ApprovalWorkflow, error) {
	query := `
		SELECT id, transaction_id, company_id, required_tier,
		       eligible_approvers, status,
		       submitted_by, submitted_at,
		       acted_by, acted_at, action_notes, completed_at,
		       created_at, updated_at
		FROM approval_workflows
		WHERE id = $1
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_workflow", id)
	}
	return wf, err
}

// GetActiveByTransactionID returns the open workflow for a transaction.
// Returns nil when none is open.
func (r *WorkflowRepository) GetActiveByTransactionID(ctx context.Context, transactionID string) (*ApprovalWorkflow, error) {
	query := `
		SELECT id, transaction_id, company_id, required_tier,
		       eligible_approvers, status,
		       submitted_by, submitted_at,
		       acted_by, acted_at, action_notes, completed_at,
		       created_at, updated_at
		FROM approval_workflows
		WHERE transaction_id = $1
		  AND status IN ('pending', 'escalation_required')
		ORDER BY submitted_at DESC
		LIMIT 1
	`

	wf, err := r.scanWorkflow(r.db.QueryRow(ctx, query, transactionID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return wf, err
}

// Complete records the terminal action on a workflow.
func (r *WorkflowRepository) Complete(ctx context.Context, id, status, actedBy string, notes *string, completedAt time.Time) error {
	query := `
		UPDATE approval_workflows
		SET status       = $2::workflow_status,
		    acted_by     = $3,
		    acted_at     = NOW(),
		    action_notes = $4,
		    completed_at = $5,
		    updated_at   = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, status, actedBy, notes, completedAt).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approval_workflow", id)
	}
	return err
}

// ListByStatus returns all workflows in a status for the escalation
// sweep, oldest first.
func (r *WorkflowRepository) ListByStatus(ctx context.Context, status string, olderThan *time.Time) ([]*ApprovalWorkflow, error) {
	query := `
		SELECT id, transaction_id, company_id, required_tier,
		       eligible_approvers, status,
		       submitted_by, submitted_at,
		       acted_by, acted_at, action_notes, completed_at,
		       created_at, updated_at
		FROM approval_workflows
		WHERE status = $1::workflow_status
		  AND ($2::timestamptz IS NULL OR submitted_at < $2)
		ORDER BY submitted_at ASC
	`

	rows, err := r.db.Query(ctx, query, status, olderThan)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflows by status")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetPendingForUser returns open workflows where the user is in the
// routed eligible set.
func (r *WorkflowRepository) GetPendingForUser(ctx context.Context, companyID, userID string) ([]*ApprovalWorkflow, error) {
	query := `
		SELECT id, transaction_id, company_id, required_tier,
		       eligible_approvers, status,
		       submitted_by, submitted_at,
		       acted_by, acted_at, action_notes, completed_at,
		       created_at, updated_at
		FROM approval_workflows
		WHERE company_id = $1
		  AND status = 'pending'
		  AND $2 = ANY(eligible_approvers)
		ORDER BY submitted_at ASC
	`

	rows, err := r.db.Query(ctx, query, companyID, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type workflowScanner interface {
	Scan(dest ...any) error
}

func (r *WorkflowRepository) scanWorkflow(row workflowScanner) (*ApprovalWorkflow, error) {
	wf := &ApprovalWorkflow{}
	err := row.Scan(
		&wf.ID,
		&wf.TransactionID,
		&wf.CompanyID,
		&wf.RequiredTier,
		&wf.EligibleApprovers,
		&wf.Status,
		&wf.SubmittedBy,
		&wf.SubmittedAt,
		&wf.ActedBy,
		&wf.ActedAt,
		&wf.ActionNotes,
		&wf.CompletedAt,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return wf, nil
}

func (r *WorkflowRepository) scanRows(rows pgx.Rows) ([]*ApprovalWorkflow, error) {
	var workflows []*ApprovalWorkflow
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval workflow")
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}
