package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvela/gl-approvals/internal/platform/errors"
	"github.com/finvela/gl-approvals/internal/platform/logger"
	"github.com/finvela/gl-approvals/internal/repository"
)

type fakeThresholdStore struct {
	byCompany map[string][]*repository.TierThreshold
}

func (f *fakeThresholdStore) ListByCompany(_ context.Context, companyID string) ([]*repository.TierThreshold, error) {
	return f.byCompany[companyID], nil
}

func (f *fakeThresholdStore) ReplaceForCompany(_ context.Context, companyID string, thresholds []*repository.TierThreshold) error {
	f.byCompany[companyID] = thresholds
	return nil
}

func (f *fakeThresholdStore) Delete(_ context.Context, id, companyID string) error {
	rest := f.byCompany[companyID][:0]
	for _, th := range f.byCompany[companyID] {
		if th.ID != id {
			rest = append(rest, th)
		}
	}
	f.byCompany[companyID] = rest
	return nil
}

type fakeApproverStore struct {
	approvers []*repository.Approver
}

func (f *fakeApproverStore) Create(_ context.Context, a *repository.Approver) error {
	a.ID = uuid.NewString()
	a.Position = len(f.approvers) + 1
	f.approvers = append(f.approvers, a)
	return nil
}

func (f *fakeApproverStore) ListByCompany(_ context.Context, companyID string) ([]*repository.Approver, error) {
	var out []*repository.Approver
	for _, a := range f.approvers {
		if a.CompanyID == companyID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeApproverStore) GetByUserID(_ context.Context, companyID, userID string) (*repository.Approver, error) {
	for _, a := range f.approvers {
		if a.CompanyID == companyID && a.UserID == userID {
			return a, nil
		}
	}
	return nil, errors.NotFound("approver", userID)
}

func (f *fakeApproverStore) SetDelegate(_ context.Context, companyID, userID, delegateTo, reason string) error {
	for _, a := range f.approvers {
		if a.CompanyID == companyID && a.UserID == userID {
			now := time.Now()
			a.DelegateTo = &delegateTo
			a.DelegatedAt = &now
			a.DelegationReason = &reason
			return nil
		}
	}
	return errors.NotFound("approver", userID)
}

func (f *fakeApproverStore) ClearDelegate(_ context.Context, companyID, userID string) error {
	for _, a := range f.approvers {
		if a.CompanyID == companyID && a.UserID == userID {
			a.DelegateTo = nil
			a.DelegatedAt = nil
			a.DelegationReason = nil
			return nil
		}
	}
	return errors.NotFound("approver", userID)
}

func (f *fakeApproverStore) Delete(_ context.Context, id, companyID string) error {
	for i, a := range f.approvers {
		if a.ID == id && a.CompanyID == companyID {
			f.approvers = append(f.approvers[:i], f.approvers[i+1:]...)
			return nil
		}
	}
	return errors.NotFound("approver", id)
}

func newConfigService() (*ConfigService, *fakeThresholdStore, *fakeApproverStore) {
	thresholds := &fakeThresholdStore{byCompany: make(map[string][]*repository.TierThreshold)}
	approvers := &fakeApproverStore{}
	return NewConfigService(thresholds, approvers, logger.Nop()), thresholds, approvers
}

func TestReplaceThresholdsRejectsGap(t *testing.T) {
	svc, _, _ := newConfigService()

	err := svc.ReplaceThresholds(context.Background(), "C1", []*repository.TierThreshold{
		{Tier: "supervisor", MinAmount: dec("0"), MaxAmount: decPtr("10000")},
		{Tier: "director", MinAmount: dec("50000")},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestReplaceThresholdsRejectsBoundedTop(t *testing.T) {
	svc, _, _ := newConfigService()

	err := svc.ReplaceThresholds(context.Background(), "C1", []*repository.TierThreshold{
		{Tier: "supervisor", MinAmount: dec("0"), MaxAmount: decPtr("10000")},
	})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
}

func TestReplaceThresholdsAcceptsCoveringSet(t *testing.T) {
	svc, store, _ := newConfigService()

	err := svc.ReplaceThresholds(context.Background(), "C1", []*repository.TierThreshold{
		{Tier: "supervisor", MinAmount: dec("0"), MaxAmount: decPtr("10000")},
		{Tier: "manager", MinAmount: dec("10000"), MaxAmount: decPtr("100000")},
		{Tier: "director", MinAmount: dec("100000")},
	})
	require.NoError(t, err)
	assert.Len(t, store.byCompany["C1"], 3)
}

func TestAddApproverRejectsUnknownTier(t *testing.T) {
	svc, _, _ := newConfigService()

	_, err := svc.AddApprover(context.Background(), "C1", "u1", "overlord")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}

func TestDelegateRejectsChains(t *testing.T) {
	svc, _, approvers := newConfigService()

	_, err := svc.AddApprover(context.Background(), "C1", "m1", "manager")
	require.NoError(t, err)
	_, err = svc.AddApprover(context.Background(), "C1", "m2", "manager")
	require.NoError(t, err)
	_, err = svc.AddApprover(context.Background(), "C1", "m3", "manager")
	require.NoError(t, err)

	// m2 delegates to m3; m1 may not then delegate to m2 (chain).
	require.NoError(t, svc.Delegate(context.Background(), "C1", "m2", "m3", "vacation"))

	err = svc.Delegate(context.Background(), "C1", "m1", "m2", "vacation")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))

	// Clearing m2's delegation unblocks m1.
	require.NoError(t, svc.ClearDelegation(context.Background(), "C1", "m2"))
	require.NoError(t, svc.Delegate(context.Background(), "C1", "m1", "m2", "vacation"))

	a, err := approvers.GetByUserID(context.Background(), "C1", "m1")
	require.NoError(t, err)
	require.NotNil(t, a.DelegateTo)
	assert.Equal(t, "m2", *a.DelegateTo)
}

func TestDelegateRejectsSelf(t *testing.T) {
	svc, _, _ := newConfigService()

	_, err := svc.AddApprover(context.Background(), "C1", "m1", "manager")
	require.NoError(t, err)

	err = svc.Delegate(context.Background(), "C1", "m1", "m1", "because")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidInput))
}
