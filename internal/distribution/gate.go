package distribution

import (
	"context"

	"storyledger/internal/consent"
)

// EligibilityChecker answers whether a story may be distributed. The consent
// ledger is the production implementation.
type EligibilityChecker interface {
	CheckDistributionEligibility(ctx context.Context, storyID string) (consent.Eligibility, error)
}

// Gate is the single chokepoint every distribution path goes through. It
// delegates the decision and adds nothing: no mutation, no audit entry, no
// notification, so callers may check as often as they like.
type Gate struct {
	checker EligibilityChecker
}

func NewGate(checker EligibilityChecker) *Gate {
	return &Gate{checker: checker}
}

func (g *Gate) Check(ctx context.Context, storyID string) (consent.Eligibility, error) {
	return g.checker.CheckDistributionEligibility(ctx, storyID)
}
