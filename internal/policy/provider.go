// Package policy supplies the read-only routing configuration snapshots
// the router consumes. Providers return a complete per-company snapshot
// per call, so routing never observes a half-applied configuration
// change.
package policy

import (
	"context"

	"github.com/finvela/gl-approvals/internal/routing"
)

// Provider returns the current routing policy for a company. A missing
// company is reported as a configuration error by the implementation.
type Provider interface {
	CompanyPolicy(ctx context.Context, companyID string) (*routing.CompanyPolicy, error)
}
