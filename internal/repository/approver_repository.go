package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/finvela/gl-approvals/internal/platform/database"
	"github.com/finvela/gl-approvals/internal/platform/errors"
)

// ApproverRepository handles the per-company approver roster, including
// delegation links.
type ApproverRepository struct {
	db *database.DB
}

// NewApproverRepository creates a new ApproverRepository.
func NewApproverRepository(db *database.DB) *ApproverRepository {
	return &ApproverRepository{db: db}
}

// Create adds a roster entry at the end of the (company, tier) roster.
func (r *ApproverRepository) Create(ctx context.Context, a *Approver) error {
	query := `
		INSERT INTO approvers
		    (company_id, user_id, tier, position)
		VALUES ($1, $2, $3::approval_tier,
		        COALESCE((SELECT MAX(position) + 1 FROM approvers
		                  WHERE company_id = $1 AND tier = $3::approval_tier), 1))
		RETURNING id, position, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		a.CompanyID,
		a.UserID,
		a.Tier,
	).Scan(&a.ID, &a.Position, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approver")
	}
	return nil
}

// ListByCompany returns the full roster for a company, tier by tier in
// roster order.
func (r *ApproverRepository) ListByCompany(ctx context.Context, companyID string) ([]*Approver, error) {
	query := `
		SELECT id, company_id, user_id, tier, position,
		       delegate_to, delegated_at, delegation_reason,
		       created_at, updated_at
		FROM approvers
		WHERE company_id = $1
		ORDER BY tier ASC, position ASC
	`

	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approvers")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListByCompanyTier returns the roster for one (company, tier) pair in
// roster order.
func (r *ApproverRepository) ListByCompanyTier(ctx context.Context, companyID, tier string) ([]*Approver, error) {
	query := `
		SELECT id, company_id, user_id, tier, position,
		       delegate_to, delegated_at, delegation_reason,
		       created_at, updated_at
		FROM approvers
		WHERE company_id = $1 AND tier = $2::approval_tier
		ORDER BY position ASC
	`

	rows, err := r.db.Query(ctx, query, companyID, tier)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approvers for tier")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetByUserID returns the roster entry for a user within a company.
func (r *ApproverRepository) GetByUserID(ctx context.Context, companyID, userID string) (*Approver, error) {
	query := `
		SELECT id, company_id, user_id, tier, position,
		       delegate_to, delegated_at, delegation_reason,
		       created_at, updated_at
		FROM approvers
		WHERE company_id = $1 AND user_id = $2
	`

	a, err := r.scanApprover(r.db.QueryRow(ctx, query, companyID, userID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approver", userID)
	}
	return a, err
}

// SetDelegate records a single-hop delegation. The update refuses a
// delegate who is themselves delegating, so chains can never form.
func (r *ApproverRepository) SetDelegate(ctx context.Context, companyID, userID, delegateTo, reason string) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		// The delegate must not hold an active delegation of their own.
		var delegateHasDelegate bool
		err := tx.QueryRow(ctx, `
			SELECT delegate_to IS NOT NULL
			FROM approvers
			WHERE company_id = $1 AND user_id = $2
		`, companyID, delegateTo).Scan(&delegateHasDelegate)
		if err != nil && err != pgx.ErrNoRows {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to check delegate")
		}
		if delegateHasDelegate {
			return errors.New(errors.ErrCodeConflict,
				"delegate has an active delegation of their own; chained delegation is not supported")
		}

		query := `
			UPDATE approvers
			SET delegate_to       = $3,
			    delegated_at      = NOW(),
			    delegation_reason = $4,
			    updated_at        = NOW()
			WHERE company_id = $1 AND user_id = $2
			RETURNING id
		`

		var returnedID string
		err = tx.QueryRow(ctx, query, companyID, userID, delegateTo, reason).Scan(&returnedID)
		if err == pgx.ErrNoRows {
			return errors.NotFound("approver", userID)
		}
		return err
	})
}

// ClearDelegate removes an active delegation.
func (r *ApproverRepository) ClearDelegate(ctx context.Context, companyID, userID string) error {
	query := `
		UPDATE approvers
		SET delegate_to       = NULL,
		    delegated_at      = NULL,
		    delegation_reason = NULL,
		    updated_at        = NOW()
		WHERE company_id = $1 AND user_id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, companyID, userID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("approver", userID)
	}
	return err
}

// Delete removes a roster entry.
func (r *ApproverRepository) Delete(ctx context.Context, id, companyID string) error {
	query := `
		DELETE FROM approvers
		WHERE id = $1 AND company_id = $2
	`

	tag, err := r.db.Exec(ctx, query, id, companyID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete approver")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("approver", id)
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type approverScanner interface {
	Scan(dest ...any) error
}

func (r *ApproverRepository) scanApprover(row approverScanner) (*Approver, error) {
	a := &Approver{}
	err := row.Scan(
		&a.ID,
		&a.CompanyID,
		&a.UserID,
		&a.Tier,
		&a.Position,
		&a.DelegateTo,
		&a.DelegatedAt,
		&a.DelegationReason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *ApproverRepository) scanRows(rows pgx.Rows) ([]*Approver, error) {
	var approvers []*Approver
	for rows.Next() {
		a, err := r.scanApprover(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approver")
		}
		approvers = append(approvers, a)
	}
	return approvers, nil
}
