package judge

import (
	"context"
	"sync"
)

type mockEvaluation struct {
	result *RubricResult
	err    error
}

// MockClient is a scripted judge for tests. Evaluate pops the next queued
// result; when the script runs out the last entry repeats.
type MockClient struct {
	mu          sync.Mutex
	rubrics     []Rubric
	rubricsErrs []error
	rubricCalls int
	evals       []mockEvaluation
	evalCalls   []string
}

func NewMockClient() *MockClient {
	return &MockClient{
		rubrics: []Rubric{{ID: "r1", Question: "Is the product the right color?"}},
	}
}

// SetRubrics replaces the rubric set returned by GenerateRubrics.
func (m *MockClient) SetRubrics(rubrics []Rubric) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rubrics = rubrics
	return m
}

// EnqueueRubricsError makes the next GenerateRubrics call fail.
func (m *MockClient) EnqueueRubricsError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rubricsErrs = append(m.rubricsErrs, err)
	return m
}

// EnqueueResult queues an evaluation outcome.
func (m *MockClient) EnqueueResult(result *RubricResult) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evals = append(m.evals, mockEvaluation{result: result})
	return m
}

// EnqueueScore queues a simple evaluation with the given score and one
// passing verdict.
func (m *MockClient) EnqueueScore(score float64) *MockClient {
	s := score
	return m.EnqueueResult(&RubricResult{
		Score:    &s,
		Verdicts: []Verdict{{Text: "product matches reference", Pass: score >= 0.5}},
	})
}

// EnqueueEvaluateError queues a failing evaluation call.
func (m *MockClient) EnqueueEvaluateError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evals = append(m.evals, mockEvaluation{err: err})
	return m
}

func (m *MockClient) GenerateRubrics(ctx context.Context, description string) ([]Rubric, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.rubricCalls
	m.rubricCalls++
	if idx < len(m.rubricsErrs) && m.rubricsErrs[idx] != nil {
		return nil, m.rubricsErrs[idx]
	}
	return m.rubrics, nil
}

func (m *MockClient) Evaluate(ctx context.Context, rubrics []Rubric, candidateURI string) (*RubricResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.evalCalls = append(m.evalCalls, candidateURI)

	if len(m.evals) == 0 {
		score := 1.0
		return &RubricResult{Score: &score}, nil
	}

	idx := len(m.evalCalls) - 1
	if idx >= len(m.evals) {
		idx = len(m.evals) - 1
	}
	return m.evals[idx].result, m.evals[idx].err
}

// EvaluateCalls returns the candidate URIs evaluated so far.
func (m *MockClient) EvaluateCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.evalCalls))
	copy(out, m.evalCalls)
	return out
}

// RubricCalls returns how many times rubric generation was requested.
func (m *MockClient) RubricCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rubricCalls
}
