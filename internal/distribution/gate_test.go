package distribution_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storyledger/internal/consent"
	"storyledger/internal/distribution"
)

func TestGateDelegatesUnchanged(t *testing.T) {
	checker := &stubChecker{elig: consent.Eligibility{HasConsent: true, Reason: consent.ReasonPending}}
	gate := distribution.NewGate(checker)

	for i := 0; i < 3; i++ {
		elig, err := gate.Check(context.Background(), "story-1")
		require.NoError(t, err)
		assert.Equal(t, checker.elig, elig, "the gate adds nothing to the decision")
	}
}
