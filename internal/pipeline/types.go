package pipeline

// TerminalState is the final disposition of a product run.
type TerminalState string

const (
	StatePending   TerminalState = "pending"
	StatePassed    TerminalState = "passed"
	StateFailed    TerminalState = "failed"
	StateErrored   TerminalState = "errored"
	StateCancelled TerminalState = "cancelled"
)

// EvaluationAttempt is one generate→evaluate cycle. Immutable once appended
// to a run's history.
type EvaluationAttempt struct {
	AttemptNumber   int      `json:"attempt_number"`
	Score           float64  `json:"score"`
	PassingVerdicts []string `json:"passing_verdicts"`
	FailingVerdicts []string `json:"failing_verdicts"`
	CandidateURI    string   `json:"candidate_uri"`
}

// ProductRun tracks one product through the refinement loop.
// OriginalDescription is the never-overwritten ground truth;
// CurrentDescription is what the next generation attempt will use.
type ProductRun struct {
	SKU                 string              `json:"sku"`
	ReferenceURIs       []string            `json:"reference_uris"`
	OriginalDescription string              `json:"original_description"`
	CurrentDescription  string              `json:"current_description"`
	History             []EvaluationAttempt `json:"attempt_history"`
	State               TerminalState       `json:"terminal_state"`
	Error               string              `json:"error,omitempty"`
}

// NewProductRun creates a pending run for the given SKU.
func NewProductRun(sku string, referenceURIs []string) *ProductRun {
	return &ProductRun{
		SKU:           sku,
		ReferenceURIs: referenceURIs,
		State:         StatePending,
	}
}

// FinalScore returns the score of the last attempt, or 0 when no attempt
// completed.
func (r *ProductRun) FinalScore() float64 {
	if len(r.History) == 0 {
		return 0
	}
	return r.History[len(r.History)-1].Score
}

// LastAttempt returns the most recent attempt, or nil.
func (r *ProductRun) LastAttempt() *EvaluationAttempt {
	if len(r.History) == 0 {
		return nil
	}
	return &r.History[len(r.History)-1]
}

// BatchResult aggregates all product runs of one batch, sorted ascending by
// final score so the worst-fidelity products surface first.
type BatchResult struct {
	Runs  []*ProductRun `json:"runs"`
	Total int           `json:"total"`
}

// CountByState tallies runs in the given terminal state.
func (b *BatchResult) CountByState(state TerminalState) int {
	n := 0
	for _, run := range b.Runs {
		if run.State == state {
			n++
		}
	}
	return n
}
