package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/finvela/gl-approvals/internal/platform/database"
	"github.com/finvela/gl-approvals/internal/platform/errors"
)

// ThresholdRepository handles the per-company tier threshold table the
// router reads its amount bands from.
type ThresholdRepository struct {
	db *database.DB
}

// NewThresholdRepository creates a new ThresholdRepository.
func NewThresholdRepository(db *database.DB) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

// ListByCompany returns a company's thresholds ordered by lower bound.
func (r *ThresholdRepository) ListByCompany(ctx context.Context, companyID string) ([]*TierThreshold, error) {
	query := `
		SELECT id, company_id, tier, min_amount, max_amount,
		       created_at, updated_at
		FROM tier_thresholds
		WHERE company_id = $1
		ORDER BY min_amount ASC
	`

	rows, err := r.db.Query(ctx, query, companyID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list tier thresholds")
	}
	defer rows.Close()

	var thresholds []*TierThreshold
	for rows.Next() {
		th := &TierThreshold{}
		err := rows.Scan(
			&th.ID,
			&th.CompanyID,
			&th.Tier,
			&th.MinAmount,
			&th.MaxAmount,
			&th.CreatedAt,
			&th.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan tier threshold")
		}
		thresholds = append(thresholds, th)
	}
	return thresholds, nil
}

// ReplaceForCompany swaps a company's entire threshold table in one
// transaction, so routing snapshots see either the old set or the new
// set, never a mix.
func (r *ThresholdRepository) ReplaceForCompany(ctx context.Context, companyID string, thresholds []*TierThreshold) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM tier_thresholds WHERE company_id = $1`, companyID); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to clear tier thresholds")
		}

		query := `
			INSERT INTO tier_thresholds
			    (company_id, tier, min_amount, max_amount)
			VALUES ($1, $2::approval_tier, $3, $4)
			RETURNING id, created_at, updated_at
		`

		for _, th := range thresholds {
			th.CompanyID = companyID
			err := tx.QueryRow(ctx, query,
				th.CompanyID,
				th.Tier,
				th.MinAmount,
				th.MaxAmount,
			).Scan(&th.ID, &th.CreatedAt, &th.UpdatedAt)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to insert tier threshold")
			}
		}
		return nil
	})
}

// Delete removes a single threshold band.
func (r *ThresholdRepository) Delete(ctx context.Context, id, companyID string) error {
	query := `
		DELETE FROM tier_thresholds
		WHERE id = $1 AND company_id = $2
	`

	tag, err := r.db.Exec(ctx, query, id, companyID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete tier threshold")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("tier_threshold", id)
	}
	return nil
}
