package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/finvela/gl-approvals/internal/platform/database"
	"github.com/finvela/gl-approvals/internal/platform/errors"
)

// TransactionRepository handles CRUD for pending transactions.
type TransactionRepository struct {
	db *database.DB
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new draft transaction.
func (r *TransactionRepository) Create(ctx context.Context, tx *Transaction) error {
	query := `
		INSERT INTO transactions
		    (company_id, amount, currency, description, status, created_by)
		VALUES ($1, $2, $3, $4, $5::transaction_status, $6)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		tx.CompanyID,
		tx.Amount,
		tx.Currency,
		tx.Description,
		tx.Status,
		tx.CreatedBy,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
}

// GetByID retrieves a transaction by primary key within a company.
func (r *TransactionRepository) GetByID(ctx context.Context, id, companyID string) (*Transaction, error) {
	query := `
		SELECT id, company_id, amount, currency, description, status,
		       created_by, submitted_by, submitted_at,
		       created_at, updated_at
		FROM transactions
		WHERE id = $1 AND company_id = $2
	`

	tx, err := r.scanTransaction(r.db.QueryRow(ctx, query, id, companyID))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("transaction", id)
	}
	return tx, err
}

// List returns transactions for a company, optionally filtered by status,
// newest first.
func (r *TransactionRepository) List(ctx context.Context, companyID string, status *string, limit, offset int) ([]*Transaction, int64, error) {
	countQuery := `
		SELECT COUNT(*)
		FROM transactions
		WHERE company_id = $1
		  AND ($2::text IS NULL OR status = $2::transaction_status)
	`

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, companyID, status).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to count transactions")
	}

	query := `
		SELECT id, company_id, amount, currency, description, status,
		       created_by, submitted_by, submitted_at,
		       created_at, updated_at
		FROM transactions
		WHERE company_id = $1
		  AND ($2::text IS NULL OR status = $2::transaction_status)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, companyID, status, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to list transactions")
	}
	defer rows.Close()

	var txs []*Transaction
	for rows.Next() {
		tx, err := r.scanTransaction(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan transaction")
		}
		txs = append(txs, tx)
	}
	return txs, total, nil
}

// UpdateStatus transitions a transaction's status, stamping the submitter
// when provided.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id, companyID, status string, submittedBy *string) error {
	query := `
		UPDATE transactions
		SET status       = $3::transaction_status,
		    submitted_by = COALESCE($4, submitted_by),
		    submitted_at = CASE WHEN $4 IS NOT NULL THEN NOW() ELSE submitted_at END,
		    updated_at   = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, companyID, status, submittedBy).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("transaction", id)
	}
	return err
}

// Delete removes a transaction. Status gating (draft only) is the
// service's responsibility.
func (r *TransactionRepository) Delete(ctx context.Context, id, companyID string) error {
	query := `
		DELETE FROM transactions
		WHERE id = $1 AND company_id = $2
	`

	tag, err := r.db.Exec(ctx, query, id, companyID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete transaction")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("transaction", id)
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type transactionScanner interface {
	Scan(dest ...any) error
}

func (r *TransactionRepository) scanTransaction(row transactionScanner) (*Transaction, error) {
	tx := &Transaction{}
	err := row.Scan(
		&tx.ID,
		&tx.CompanyID,
		&tx.Amount,
		&tx.Currency,
		&tx.Description,
		&tx.Status,
		&tx.CreatedBy,
		&tx.SubmittedBy,
		&tx.SubmittedAt,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return tx, nil
}
