package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvela/gl-approvals/internal/platform/errors"
	"github.com/finvela/gl-approvals/internal/platform/logger"
	"github.com/finvela/gl-approvals/internal/routing"
)

const validPolicy = `
companies:
  - company_id: C1
    thresholds:
      - tier: supervisor
        min: "0"
        max: "10000"
      - tier: manager
        min: "10000"
        max: "100000"
      - tier: director
        min: "100000"
    approvers:
      - user_id: supervisor1
        tier: supervisor
      - user_id: manager1
        tier: manager
        delegate_to: supervisor1
      - user_id: director1
        tier: director
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileProviderLoadsPolicy(t *testing.T) {
	provider, err := NewFileProvider(writePolicy(t, validPolicy), logger.Nop())
	require.NoError(t, err)

	policy, err := provider.CompanyPolicy(context.Background(), "C1")
	require.NoError(t, err)

	assert.Equal(t, "C1", policy.CompanyID)
	require.Len(t, policy.Thresholds, 3)
	assert.Equal(t, routing.TierSupervisor, policy.Thresholds[0].Tier)
	assert.True(t, policy.Thresholds[0].Min.Equal(decimal.Zero))
	assert.Nil(t, policy.Thresholds[2].Max)

	manager := policy.Roster[routing.TierManager]
	require.Len(t, manager, 1)
	require.NotNil(t, manager[0].DelegateTo)
	assert.Equal(t, "supervisor1", *manager[0].DelegateTo)
}

func TestFileProviderUnknownCompany(t *testing.T) {
	provider, err := NewFileProvider(writePolicy(t, validPolicy), logger.Nop())
	require.NoError(t, err)

	_, err = provider.CompanyPolicy(context.Background(), "C9")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestFileProviderRejectsCoverageGap(t *testing.T) {
	const gapPolicy = `
companies:
  - company_id: C1
    thresholds:
      - tier: supervisor
        min: "0"
        max: "10000"
      - tier: director
        min: "50000"
`
	_, err := NewFileProvider(writePolicy(t, gapPolicy), logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
	assert.Contains(t, err.Error(), "coverage gap")
}

func TestFileProviderRejectsBoundedTop(t *testing.T) {
	const boundedPolicy = `
companies:
  - company_id: C1
    thresholds:
      - tier: supervisor
        min: "0"
        max: "10000"
`
	_, err := NewFileProvider(writePolicy(t, boundedPolicy), logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
	assert.Contains(t, err.Error(), "unbounded")
}

func TestFileProviderRejectsNonZeroStart(t *testing.T) {
	const shiftedPolicy = `
companies:
  - company_id: C1
    thresholds:
      - tier: supervisor
        min: "100"
`
	_, err := NewFileProvider(writePolicy(t, shiftedPolicy), logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestFileProviderRejectsUnknownTier(t *testing.T) {
	const badTierPolicy = `
companies:
  - company_id: C1
    thresholds:
      - tier: overlord
        min: "0"
`
	_, err := NewFileProvider(writePolicy(t, badTierPolicy), logger.Nop())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestFileProviderToleratesOverlap(t *testing.T) {
	const overlapPolicy = `
companies:
  - company_id: C1
    thresholds:
      - tier: supervisor
        min: "0"
        max: "20000"
      - tier: manager
        min: "10000"
`
	provider, err := NewFileProvider(writePolicy(t, overlapPolicy), logger.Nop())
	require.NoError(t, err)

	policy, err := provider.CompanyPolicy(context.Background(), "C1")
	require.NoError(t, err)
	assert.Len(t, policy.Thresholds, 2)
}

func TestFileProviderReloadSwapsSnapshot(t *testing.T) {
	path := writePolicy(t, validPolicy)
	provider, err := NewFileProvider(path, logger.Nop())
	require.NoError(t, err)

	const updated = `
companies:
  - company_id: C2
    thresholds:
      - tier: director
        min: "0"
    approvers:
      - user_id: director1
        tier: director
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	require.NoError(t, provider.Reload())

	_, err = provider.CompanyPolicy(context.Background(), "C1")
	require.Error(t, err)

	policy, err := provider.CompanyPolicy(context.Background(), "C2")
	require.NoError(t, err)
	assert.Equal(t, routing.TierDirector, policy.Thresholds[0].Tier)
}

func TestFileProviderBrokenReloadKeepsLastGoodSnapshot(t *testing.T) {
	path := writePolicy(t, validPolicy)
	provider, err := NewFileProvider(path, logger.Nop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0o644))
	require.Error(t, provider.Reload())

	// The previous snapshot must still serve.
	policy, err := provider.CompanyPolicy(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, "C1", policy.CompanyID)
}
