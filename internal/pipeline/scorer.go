package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	fidelityerrors "fidelity/internal/errors"
	"fidelity/internal/judge"
	"fidelity/internal/logging"
)

// ErrEvaluationInfrastructure marks a judge outage: the service returned
// neither a score nor any verdicts after all retries. Callers must not read
// this as "the candidate failed", only as "the judge was unavailable".
var ErrEvaluationInfrastructure = errors.New("evaluation service returned no usable result")

// Evaluation is a normalized judge result. Verdicts are partitioned into
// passing and failing, preserving the judge's order within each partition.
type Evaluation struct {
	Score           float64
	PassingVerdicts []string
	FailingVerdicts []string
}

// ScorerConfig bounds the scorer's rubric retry loop.
type ScorerConfig struct {
	MaxRetries int           // total calls per rubric operation (default: 3)
	RetryDelay time.Duration // fixed delay between retries (default: 10s)
}

// DefaultScorerConfig returns the production rubric service pacing.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{MaxRetries: 3, RetryDelay: 10 * time.Second}
}

// Scorer evaluates a candidate artifact against a product description via
// the rubric judge. Rate-limit responses and structurally empty results are
// both retried on a fixed delay; the judge documents fixed pacing rather
// than exponential backoff.
type Scorer struct {
	judge  judge.Client
	retry  fidelityerrors.RetryConfig
	logger logging.Logger
}

// NewScorer creates a scorer over the given judge client.
func NewScorer(client judge.Client, cfg ScorerConfig) *Scorer {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultScorerConfig().MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultScorerConfig().RetryDelay
	}
	return &Scorer{
		judge: client,
		// MaxRetries counts total calls; the retry config counts retries
		// after the first.
		retry:  fidelityerrors.FixedRetryConfig(cfg.MaxRetries-1, cfg.RetryDelay),
		logger: logging.NewComponentLogger("scorer"),
	}
}

// Evaluate scores one candidate. Pure function of its inputs aside from the
// remote calls.
func (s *Scorer) Evaluate(ctx context.Context, description, candidateURI string) (*Evaluation, error) {
	rubrics, err := fidelityerrors.RetryWithResultAndLog(ctx, s.retry, func(ctx context.Context) ([]judge.Rubric, error) {
		rubrics, err := s.judge.GenerateRubrics(ctx, description)
		if err != nil {
			return nil, err
		}
		if len(rubrics) == 0 {
			// The judge sometimes returns an empty rubric set under load.
			return nil, fidelityerrors.NewTransientError(
				errors.New("judge returned an empty rubric set"), "")
		}
		return rubrics, nil
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("rubric generation: %w", err)
	}

	result, err := fidelityerrors.RetryWithResultAndLog(ctx, s.retry, func(ctx context.Context) (*judge.RubricResult, error) {
		result, err := s.judge.Evaluate(ctx, rubrics, candidateURI)
		if err != nil {
			return nil, err
		}
		if result == nil || (result.Score == nil && len(result.Verdicts) == 0) {
			return nil, fidelityerrors.NewTransientError(ErrEvaluationInfrastructure, "")
		}
		return result, nil
	}, s.logger)
	if err != nil {
		if errors.Is(err, ErrEvaluationInfrastructure) {
			return nil, fmt.Errorf("judging %s: %w", candidateURI, ErrEvaluationInfrastructure)
		}
		return nil, fmt.Errorf("judging %s: %w", candidateURI, err)
	}

	return normalize(result), nil
}

// normalize maps a raw judge result into an Evaluation. A nil score with
// verdicts present coerces to 0.0; the fully-empty case never reaches here.
func normalize(result *judge.RubricResult) *Evaluation {
	eval := &Evaluation{}
	if result.Score != nil {
		eval.Score = clamp01(*result.Score)
	}
	for _, verdict := range result.Verdicts {
		if verdict.Pass {
			eval.PassingVerdicts = append(eval.PassingVerdicts, verdict.Text)
		} else {
			eval.FailingVerdicts = append(eval.FailingVerdicts, verdict.Text)
		}
	}
	return eval
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
