// Package routing decides which approval tier must sign off on a
// transaction and which users are eligible to do so. It is pure: every
// function computes over the policy snapshot it is handed and touches no
// shared state, so concurrent routing calls need no coordination.
package routing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/finvela/gl-approvals/internal/platform/errors"
)

// Tier is an approval authority level bound to a monetary range.
type Tier string

const (
	TierSupervisor Tier = "supervisor"
	TierManager    Tier = "manager"
	TierDirector   Tier = "director"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierSupervisor, TierManager, TierDirector:
		return true
	}
	return false
}

// Threshold binds a tier to a half-open amount interval [Min, Max).
// A nil Max means the interval is unbounded above.
type Threshold struct {
	Tier Tier
	Min  decimal.Decimal
	Max  *decimal.Decimal
}

// Contains reports whether amount falls inside the interval.
func (t Threshold) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(t.Min) {
		return false
	}
	return t.Max == nil || amount.LessThan(*t.Max)
}

// span returns the interval width and whether it is bounded. Unbounded
// intervals compare wider than any bounded one.
func (t Threshold) span() (decimal.Decimal, bool) {
	if t.Max == nil {
		return decimal.Zero, false
	}
	return t.Max.Sub(t.Min), true
}

// Approver is one roster entry for a company tier. A non-nil DelegateTo
// substitutes that user for this approver (single hop, no chains).
type Approver struct {
	UserID     string
	Tier       Tier
	DelegateTo *string
}

// CompanyPolicy is the read-only configuration snapshot a routing call
// operates on: the company's thresholds and its approver roster per
// tier, both in configuration order.
type CompanyPolicy struct {
	CompanyID  string
	Thresholds []Threshold
	Roster     map[Tier][]Approver
}

// Decision is the routing outcome for one submission attempt. An empty
// EligibleApprovers list is a valid business outcome ("no available
// approver") that callers must escalate, never an error.
type Decision struct {
	CompanyID         string
	RequiredTier      Tier
	EligibleApprovers []string
}

// NoEligibleApprover reports whether segregation-of-duties filtering
// emptied the approver list.
func (d *Decision) NoEligibleApprover() bool {
	return len(d.EligibleApprovers) == 0
}

// DetermineTier returns the tier whose interval contains amount.
//
// A missing policy or an amount outside every configured range is a
// configuration error: the thresholds are required to cover [0, ∞), so a
// gap is an operator problem, not a routing outcome. When misconfigured
// ranges overlap, the narrowest matching interval wins so routing fails
// toward stricter approval.
func DetermineTier(policy *CompanyPolicy, amount decimal.Decimal) (Tier, error) {
	if amount.IsNegative() {
		return "", errors.InvalidInput("amount", "must be non-negative")
	}
	if policy == nil || len(policy.Thresholds) == 0 {
		return "", errors.Configuration("no approval thresholds configured for company")
	}

	matched := false
	var best Threshold
	for _, th := range policy.Thresholds {
		if !th.Contains(amount) {
			continue
		}
		if !matched || narrower(th, best) {
			best = th
			matched = true
		}
	}

	if !matched {
		return "", errors.Configuration(fmt.Sprintf(
			"amount %s falls outside all configured thresholds for company %s",
			amount.String(), policy.CompanyID))
	}
	return best.Tier, nil
}

// narrower reports whether a has a strictly smaller span than b.
func narrower(a, b Threshold) bool {
	aSpan, aBounded := a.span()
	bSpan, bBounded := b.span()
	if aBounded != bBounded {
		return aBounded
	}
	if !aBounded {
		return false
	}
	return aSpan.LessThan(bSpan)
}

// EligibleApprovers resolves the roster for a tier into the ordered list
// of user ids allowed to approve a transaction created by creatorID.
//
// Delegation is total substitution: a delegated approver is replaced by
// their delegate at the same roster position. The creator is removed
// after substitution, so a delegate who is also the creator is excluded
// too. Duplicates keep their first occurrence.
func EligibleApprovers(policy *CompanyPolicy, tier Tier, creatorID string) ([]string, error) {
	if policy == nil {
		return nil, errors.Configuration("no approver roster configured for company")
	}
	roster := policy.Roster[tier]
	if len(roster) == 0 {
		return nil, errors.Configuration(fmt.Sprintf(
			"no approvers configured for tier %s in company %s", tier, policy.CompanyID))
	}

	eligible := make([]string, 0, len(roster))
	seen := make(map[string]struct{}, len(roster))

	for _, a := range roster {
		userID := a.UserID
		if a.DelegateTo != nil && *a.DelegateTo != "" {
			userID = *a.DelegateTo
		}
		if userID == creatorID {
			continue
		}
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		eligible = append(eligible, userID)
	}

	return eligible, nil
}

// Route composes DetermineTier and EligibleApprovers. The returned
// Decision may carry an empty approver list; callers must hold such
// transactions for manual escalation rather than dropping them.
func Route(policy *CompanyPolicy, amount decimal.Decimal, creatorID string) (*Decision, error) {
	tier, err := DetermineTier(policy, amount)
	if err != nil {
		return nil, err
	}

	eligible, err := EligibleApprovers(policy, tier, creatorID)
	if err != nil {
		return nil, err
	}

	return &Decision{
		CompanyID:         policy.CompanyID,
		RequiredTier:      tier,
		EligibleApprovers: eligible,
	}, nil
}
