package service

import (
	"context"

	"github.com/finvela/gl-approvals/internal/platform/errors"
	"github.com/finvela/gl-approvals/internal/platform/logger"
	"github.com/finvela/gl-approvals/internal/repository"
	"github.com/finvela/gl-approvals/internal/routing"
)

// ThresholdStore persists per-company tier thresholds.
type ThresholdStore interface {
	ListByCompany(ctx context.Context, companyID string) ([]*repository.TierThreshold, error)
	ReplaceForCompany(ctx context.Context, companyID string, thresholds []*repository.TierThreshold) error
	Delete(ctx context.Context, id, companyID string) error
}

// ApproverStore persists the approver roster.
type ApproverStore interface {
	Create(ctx context.Context, a *repository.Approver) error
	ListByCompany(ctx context.Context, companyID string) ([]*repository.Approver, error)
	GetByUserID(ctx context.Context, companyID, userID string) (*repository.Approver, error)
	SetDelegate(ctx context.Context, companyID, userID, delegateTo, reason string) error
	ClearDelegate(ctx context.Context, companyID, userID string) error
	Delete(ctx context.Context, id, companyID string) error
}

// ConfigService manages the routing configuration the router consumes:
// threshold bands and the approver roster. Writes are validated so the
// router can rely on covering, chain-free configuration.
type ConfigService struct {
	thresholds ThresholdStore
	approvers  ApproverStore
	log        *logger.Logger
}

// NewConfigService creates a new ConfigService.
func NewConfigService(thresholds ThresholdStore, approvers ApproverStore, log *logger.Logger) *ConfigService {
	return &ConfigService{thresholds: thresholds, approvers: approvers, log: log}
}

// ── Thresholds ────────────────────────────────────────────────────────────────

// ListThresholds returns a company's threshold bands.
func (s *ConfigService) ListThresholds(ctx context.Context, companyID string) ([]*repository.TierThreshold, error) {
	return s.thresholds.ListByCompany(ctx, companyID)
}

// ReplaceThresholds swaps a company's full threshold table after
// verifying the new set covers [0, ∞). Replacing the whole set at once
// keeps intermediate states invisible to concurrent routing calls.
func (s *ConfigService) ReplaceThresholds(ctx context.Context, companyID string, thresholds []*repository.TierThreshold) error {
	if companyID == "" {
		return errors.InvalidInput("company_id", "company is required")
	}

	candidate := make([]routing.Threshold, 0, len(thresholds))
	for _, th := range thresholds {
		rt := routing.Threshold{Tier: routing.Tier(th.Tier), Min: th.MinAmount}
		if th.MaxAmount != nil {
			max := *th.MaxAmount
			rt.Max = &max
		}
		candidate = append(candidate, rt)
	}
	if err := routing.ValidateCoverage(candidate); err != nil {
		return err
	}

	for _, tier := range routing.Overlaps(candidate) {
		s.log.Warn().
			Str("company_id", companyID).
			Str("tier", string(tier)).
			Msg("Overlapping thresholds accepted; narrowest-tier tie-break applies")
	}

	if err := s.thresholds.ReplaceForCompany(ctx, companyID, thresholds); err != nil {
		return err
	}

	s.log.Info().
		Str("company_id", companyID).
		Int("bands", len(thresholds)).
		Msg("Tier thresholds replaced")
	return nil
}

// ── Approvers ─────────────────────────────────────────────────────────────────

// ListApprovers returns the full roster for a company.
func (s *ConfigService) ListApprovers(ctx context.Context, companyID string) ([]*repository.Approver, error) {
	return s.approvers.ListByCompany(ctx, companyID)
}

// AddApprover appends a user to the (company, tier) roster.
func (s *ConfigService) AddApprover(ctx context.Context, companyID, userID, tier string) (*repository.Approver, error) {
	if userID == "" {
		return nil, errors.InvalidInput("user_id", "user is required")
	}
	if !routing.Tier(tier).Valid() {
		return nil, errors.InvalidInput("tier", "must be one of supervisor, manager, director")
	}

	a := &repository.Approver{
		CompanyID: companyID,
		UserID:    userID,
		Tier:      tier,
	}
	if err := s.approvers.Create(ctx, a); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("company_id", companyID).
		Str("user_id", userID).
		Str("tier", tier).
		Msg("Approver added to roster")
	return a, nil
}

// Delegate records a single-hop delegation from one approver to another.
// Self-delegation and chains are rejected; the chain check also runs in
// the repository update so concurrent writes cannot slip one through.
func (s *ConfigService) Delegate(ctx context.Context, companyID, userID, delegateTo, reason string) error {
	if reason == "" {
		return errors.InvalidInput("reason", "delegation reason is required")
	}
	if userID == delegateTo {
		return errors.InvalidInput("delegate_to", "cannot delegate to yourself")
	}

	delegator, err := s.approvers.GetByUserID(ctx, companyID, userID)
	if err != nil {
		return err
	}

	delegate, err := s.approvers.GetByUserID(ctx, companyID, delegateTo)
	if err != nil {
		return err
	}
	if delegate.DelegateTo != nil {
		return errors.New(errors.ErrCodeConflict,
			"delegate has an active delegation of their own; chained delegation is not supported")
	}

	if err := s.approvers.SetDelegate(ctx, companyID, userID, delegateTo, reason); err != nil {
		return err
	}

	s.log.Info().
		Str("company_id", companyID).
		Str("delegator", delegator.UserID).
		Str("delegate", delegateTo).
		Msg("Approval authority delegated")
	return nil
}

// ClearDelegation removes an approver's active delegation.
func (s *ConfigService) ClearDelegation(ctx context.Context, companyID, userID string) error {
	if err := s.approvers.ClearDelegate(ctx, companyID, userID); err != nil {
		return err
	}

	s.log.Info().
		Str("company_id", companyID).
		Str("user_id", userID).
		Msg("Delegation cleared")
	return nil
}

// RemoveApprover deletes a roster entry.
func (s *ConfigService) RemoveApprover(ctx context.Context, id, companyID string) error {
	return s.approvers.Delete(ctx, id, companyID)
}

// DeleteThreshold removes one threshold band. The remaining set may no
// longer cover [0, ∞); the next routing call for the company will
// surface that as a configuration error rather than guessing.
func (s *ConfigService) DeleteThreshold(ctx context.Context, id, companyID string) error {
	return s.thresholds.Delete(ctx, id, companyID)
}
