package routing

import (
	"fmt"
	"sort"

	"github.com/finvela/gl-approvals/internal/platform/errors"
)

// ValidateCoverage checks that a threshold set covers [0, ∞): the lowest
// band starts at zero, consecutive bands leave no gap, and the highest
// band is unbounded above. Overlap is not an error here — DetermineTier
// tie-breaks toward the narrower band — but gaps would strand amounts
// with no tier, so they are rejected up front.
func ValidateCoverage(thresholds []Threshold) error {
	if len(thresholds) == 0 {
		return errors.Configuration("at least one threshold is required")
	}

	sorted := make([]Threshold, len(thresholds))
	copy(sorted, thresholds)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Min.LessThan(sorted[j].Min)
	})

	if !sorted[0].Min.IsZero() {
		return errors.Configuration(fmt.Sprintf(
			"thresholds must start at 0, got %s", sorted[0].Min.String()))
	}

	for _, th := range sorted {
		if !th.Tier.Valid() {
			return errors.Configuration(fmt.Sprintf("unknown tier %q", th.Tier))
		}
		if th.Max != nil && !th.Min.LessThan(*th.Max) {
			return errors.Configuration(fmt.Sprintf(
				"empty threshold interval [%s, %s) for tier %s",
				th.Min.String(), th.Max.String(), th.Tier))
		}
	}

	// covered is the exclusive upper bound reached so far; nil = infinity.
	covered := sorted[0].Max
	for _, th := range sorted[1:] {
		if covered == nil {
			continue
		}
		if th.Min.GreaterThan(*covered) {
			return errors.Configuration(fmt.Sprintf(
				"coverage gap between %s and %s", covered.String(), th.Min.String()))
		}
		if th.Max == nil || th.Max.GreaterThan(*covered) {
			covered = th.Max
		}
	}

	if covered != nil {
		return errors.Configuration(fmt.Sprintf(
			"thresholds must be unbounded above, coverage stops at %s", covered.String()))
	}
	return nil
}

// Overlaps returns the tiers of bands that overlap another band. Used
// for operator warnings only.
func Overlaps(thresholds []Threshold) []Tier {
	var overlapping []Tier
	for i, a := range thresholds {
		for j, b := range thresholds {
			if i == j {
				continue
			}
			aMaxAbove := a.Max == nil || a.Max.GreaterThan(b.Min)
			bMaxAbove := b.Max == nil || b.Max.GreaterThan(a.Min)
			if aMaxAbove && bMaxAbove {
				overlapping = append(overlapping, a.Tier)
				break
			}
		}
	}
	return overlapping
}
