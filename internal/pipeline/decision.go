package pipeline

// Decision is the outcome of the threshold decision function.
type Decision int

const (
	DecisionPass Decision = iota
	DecisionRetry
	DecisionFail
)

func (d Decision) String() string {
	switch d {
	case DecisionPass:
		return "pass"
	case DecisionRetry:
		return "retry"
	case DecisionFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Decide is the single authority for loop termination. Pure and
// deterministic: pass at or above the threshold regardless of attempt number,
// fail when the retry budget is exhausted below it, retry otherwise.
func Decide(score float64, attempt, maxAttempts int, threshold float64) Decision {
	if score >= threshold {
		return DecisionPass
	}
	if attempt >= maxAttempts {
		return DecisionFail
	}
	return DecisionRetry
}
