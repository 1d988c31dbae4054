package service

import (
	"fmt"

	"lifeos-currency/internal/entity"
)

const (
	DefaultStaleAfterSeconds   int64 = 24 * 60 * 60
	DefaultWarningAfterSeconds int64 = 7 * 24 * 60 * 60
)

// FreshnessPolicy classifies a rate by age:
// Fresh below staleAfter, Stale below warningAfter, Warning from there on.
type FreshnessPolicy struct {
	staleAfter   int64
	warningAfter int64
}

func NewFreshnessPolicy(staleAfterSeconds, warningAfterSeconds int64) (FreshnessPolicy, error) {
	if staleAfterSeconds <= 0 {
		return FreshnessPolicy{}, fmt.Errorf("stale threshold must be positive, got %d", staleAfterSeconds)
	}
	if warningAfterSeconds <= staleAfterSeconds {
		return FreshnessPolicy{}, fmt.Errorf("warning threshold %d must be greater than stale threshold %d",
			warningAfterSeconds, staleAfterSeconds)
	}
	return FreshnessPolicy{staleAfter: staleAfterSeconds, warningAfter: warningAfterSeconds}, nil
}

func DefaultFreshnessPolicy() FreshnessPolicy {
	return FreshnessPolicy{staleAfter: DefaultStaleAfterSeconds, warningAfter: DefaultWarningAfterSeconds}
}

func (p FreshnessPolicy) Classify(ageSeconds int64) entity.FreshnessLevel {
	switch {
	case ageSeconds < p.staleAfter:
		return entity.Fresh
	case ageSeconds < p.warningAfter:
		return entity.Stale
	default:
		return entity.Warning
	}
}

func (p FreshnessPolicy) ShouldRefresh(level entity.FreshnessLevel) bool {
	return level == entity.Stale || level == entity.Warning
}
