package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	cases := []struct {
		name      string
		score     float64
		attempt   int
		max       int
		threshold float64
		want      Decision
	}{
		{"pass at threshold", 0.7, 1, 3, 0.7, DecisionPass},
		{"pass above threshold on last attempt", 0.95, 3, 3, 0.7, DecisionPass},
		{"pass on first attempt exits early", 0.9, 1, 3, 0.7, DecisionPass},
		{"retry below threshold with budget left", 0.5, 1, 3, 0.7, DecisionRetry},
		{"retry on penultimate attempt", 0.69, 2, 3, 0.7, DecisionRetry},
		{"fail when budget exhausted", 0.5, 3, 3, 0.7, DecisionFail},
		{"fail with single attempt budget", 0.0, 1, 1, 0.7, DecisionFail},
		{"zero threshold always passes", 0.0, 1, 3, 0.0, DecisionPass},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Decide(tc.score, tc.attempt, tc.max, tc.threshold))
		})
	}
}

func TestDecideIsPure(t *testing.T) {
	first := Decide(0.42, 2, 3, 0.7)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Decide(0.42, 2, 3, 0.7))
	}
}
