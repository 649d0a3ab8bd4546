package policy

import (
	"context"
	"fmt"

	"github.com/finvela/gl-approvals/internal/platform/errors"
	"github.com/finvela/gl-approvals/internal/repository"
	"github.com/finvela/gl-approvals/internal/routing"
)

// DBProvider builds routing snapshots from the threshold and approver
// tables. Configuration writes are transactional on the repository side,
// so each snapshot sees a consistent state.
type DBProvider struct {
	thresholds *repository.ThresholdRepository
	approvers  *repository.ApproverRepository
}

// NewDBProvider creates a provider backed by the configuration tables.
func NewDBProvider(thresholds *repository.ThresholdRepository, approvers *repository.ApproverRepository) *DBProvider {
	return &DBProvider{thresholds: thresholds, approvers: approvers}
}

// CompanyPolicy loads the company's thresholds and roster. A company
// with no thresholds at all is a configuration error.
func (p *DBProvider) CompanyPolicy(ctx context.Context, companyID string) (*routing.CompanyPolicy, error) {
	rows, err := p.thresholds.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Configuration(fmt.Sprintf("no approval thresholds configured for company %s", companyID))
	}

	thresholds := make([]routing.Threshold, 0, len(rows))
	for _, row := range rows {
		th := routing.Threshold{
			Tier: routing.Tier(row.Tier),
			Min:  row.MinAmount,
		}
		if row.MaxAmount != nil {
			max := *row.MaxAmount
			th.Max = &max
		}
		thresholds = append(thresholds, th)
	}

	approvers, err := p.approvers.ListByCompany(ctx, companyID)
	if err != nil {
		return nil, err
	}

	roster := make(map[routing.Tier][]routing.Approver)
	for _, a := range approvers {
		tier := routing.Tier(a.Tier)
		roster[tier] = append(roster[tier], routing.Approver{
			UserID:     a.UserID,
			Tier:       tier,
			DelegateTo: a.DelegateTo,
		})
	}

	return &routing.CompanyPolicy{
		CompanyID:  companyID,
		Thresholds: thresholds,
		Roster:     roster,
	}, nil
}
