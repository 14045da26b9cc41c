package judge

import "context"

// Rubric is one yes/no fidelity question derived from a product description.
type Rubric struct {
	ID       string `json:"id,omitempty"`
	Question string `json:"question"`
}

// Verdict is the judge's answer to one rubric question for a candidate image.
type Verdict struct {
	Text string `json:"text"`
	Pass bool   `json:"pass"`
}

// RubricResult is the outcome of judging one candidate. Score is nil when the
// service could not produce one; callers decide how to treat that based on
// whether verdicts came back.
type RubricResult struct {
	Score    *float64  `json:"score"`
	Verdicts []Verdict `json:"verdicts"`
}

// Client is the rubric evaluation service contract. Rubric generation and
// judging are separate calls because rubrics derive from the description
// alone and can be reused across retry attempts.
type Client interface {
	GenerateRubrics(ctx context.Context, description string) ([]Rubric, error)
	Evaluate(ctx context.Context, rubrics []Rubric, candidateURI string) (*RubricResult, error)
}
