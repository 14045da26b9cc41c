package pipeline

import (
	"context"
	"errors"
	"time"

	"fidelity/internal/logging"
)

// DescriptionService produces a ground-truth description from references.
type DescriptionService interface {
	Describe(ctx context.Context, referenceURIs []string) (string, error)
}

// GenerationService produces candidate artifacts.
type GenerationService interface {
	Generate(ctx context.Context, in GenerateInput) (string, error)
}

// EvaluationService scores a candidate against a description.
type EvaluationService interface {
	Evaluate(ctx context.Context, description, candidateURI string) (*Evaluation, error)
}

// RefinementService rewrites a description around failing verdicts.
type RefinementService interface {
	Refine(ctx context.Context, originalDescription string, failingVerdicts []string) (string, error)
}

// ControllerConfig bounds the refinement loop.
type ControllerConfig struct {
	PassingThreshold float64
	MaxAttempts      int
	// ConsumeAttemptOnEmptyArtifact makes an empty generation result count
	// as a failed attempt that refines and retries, instead of aborting
	// the run as errored.
	ConsumeAttemptOnEmptyArtifact bool
}

// Controller drives one product through the refinement loop:
// Describing → Generating → Evaluating → Deciding → {Refining→Generating |
// terminal}. Every attempt is appended to the run history before any
// transition; cancellation is observed between states and preserves partial
// history.
type Controller struct {
	describer DescriptionService
	generator GenerationService
	scorer    EvaluationService
	refiner   RefinementService
	config    ControllerConfig
	metrics   *Metrics
	logger    logging.Logger
}

// NewController wires a controller from its collaborating services.
func NewController(
	describer DescriptionService,
	generator GenerationService,
	scorer EvaluationService,
	refiner RefinementService,
	config ControllerConfig,
) *Controller {
	if config.PassingThreshold <= 0 {
		config.PassingThreshold = 0.7
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	return &Controller{
		describer: describer,
		generator: generator,
		scorer:    scorer,
		refiner:   refiner,
		config:    config,
		metrics:   defaultMetrics(),
		logger:    logging.NewComponentLogger("controller"),
	}
}

// WithMetrics overrides the metrics sink, for tests.
func (c *Controller) WithMetrics(m *Metrics) *Controller {
	c.metrics = m
	return c
}

// Run evaluates one product to a terminal state. A non-empty groundTruth
// skips the Describing state. Run never returns nil; the returned run always
// carries exactly one terminal state and whatever history accumulated.
func (c *Controller) Run(ctx context.Context, sku string, referenceURIs []string, groundTruth string) *ProductRun {
	run := NewProductRun(sku, referenceURIs)
	c.metrics.IncActiveProducts()
	defer func() {
		c.metrics.DecActiveProducts()
		c.metrics.ObserveRun(run)
	}()

	if c.cancelled(ctx, run) {
		return run
	}

	description := groundTruth
	if description == "" {
		start := time.Now()
		described, err := c.describer.Describe(ctx, referenceURIs)
		c.metrics.ObserveStageDuration("describe", time.Since(start))
		if err != nil {
			return c.fail(ctx, run, "describe reference: "+err.Error())
		}
		description = described
	}
	run.OriginalDescription = description
	run.CurrentDescription = description

	var priorFailing []string
	refined := ""

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if c.cancelled(ctx, run) {
			return run
		}

		start := time.Now()
		candidateURI, err := c.generator.Generate(ctx, GenerateInput{
			SKU:                  sku,
			ReferenceURIs:        referenceURIs,
			AttemptNumber:        attempt,
			RefinedDescription:   refined,
			PriorFailingVerdicts: priorFailing,
		})
		c.metrics.ObserveStageDuration("generate", time.Since(start))
		if err != nil {
			if errors.Is(err, ErrNoArtifactProduced) && c.config.ConsumeAttemptOnEmptyArtifact {
				// The empty result consumes this attempt; it scores
				// zero and flows through the normal decision path.
				c.logger.Warn("[%s] attempt %d produced no artifact", sku, attempt)
				eval := &Evaluation{FailingVerdicts: []string{"the generation call produced no artifact"}}
				run.History = append(run.History, attemptRecord(attempt, eval, ""))
				if done := c.decideAndMaybeRefine(ctx, run, eval, attempt, &refined, &priorFailing); done {
					return run
				}
				continue
			}
			return c.fail(ctx, run, "generate candidate: "+err.Error())
		}

		if c.cancelled(ctx, run) {
			return run
		}

		start = time.Now()
		eval, err := c.scorer.Evaluate(ctx, run.OriginalDescription, candidateURI)
		c.metrics.ObserveStageDuration("evaluate", time.Since(start))
		if err != nil {
			// Scorer retries already ran; anything surfacing here is a
			// hard error, judge outages included.
			return c.fail(ctx, run, "evaluate candidate: "+err.Error())
		}

		run.History = append(run.History, attemptRecord(attempt, eval, candidateURI))
		c.logger.Info("[%s] attempt %d scored %.2f (%d failing)", sku, attempt, eval.Score, len(eval.FailingVerdicts))

		if done := c.decideAndMaybeRefine(ctx, run, eval, attempt, &refined, &priorFailing); done {
			return run
		}
	}

	// Unreachable: the decision function terminates the loop on the last
	// attempt.
	run.State = StateFailed
	return run
}

// decideAndMaybeRefine applies the decision function to the attempt just
// recorded. On retry it refines the description for the next generation;
// the refiner always receives the original description. Returns true when
// the run reached a terminal state.
func (c *Controller) decideAndMaybeRefine(ctx context.Context, run *ProductRun, eval *Evaluation, attempt int, refined *string, priorFailing *[]string) bool {
	decision := Decide(eval.Score, attempt, c.config.MaxAttempts, c.config.PassingThreshold)
	c.metrics.IncAttempt(decision.String())

	switch decision {
	case DecisionPass:
		run.State = StatePassed
		return true
	case DecisionFail:
		run.State = StateFailed
		return true
	}

	if c.cancelled(ctx, run) {
		return true
	}

	start := time.Now()
	next, err := c.refiner.Refine(ctx, run.OriginalDescription, eval.FailingVerdicts)
	c.metrics.ObserveStageDuration("refine", time.Since(start))
	if err != nil {
		c.fail(ctx, run, "refine description: "+err.Error())
		return true
	}

	*refined = next
	*priorFailing = eval.FailingVerdicts
	run.CurrentDescription = next
	return false
}

func (c *Controller) fail(ctx context.Context, run *ProductRun, message string) *ProductRun {
	if ctx.Err() != nil {
		run.State = StateCancelled
		return run
	}
	run.State = StateErrored
	run.Error = message
	c.logger.Error("[%s] run errored: %s", run.SKU, message)
	return run
}

// cancelled checks for cooperative cancellation between states.
func (c *Controller) cancelled(ctx context.Context, run *ProductRun) bool {
	if ctx.Err() != nil {
		c.logger.Info("[%s] run cancelled with %d attempt(s) recorded", run.SKU, len(run.History))
		run.State = StateCancelled
		return true
	}
	return false
}

func attemptRecord(attempt int, eval *Evaluation, candidateURI string) EvaluationAttempt {
	return EvaluationAttempt{
		AttemptNumber:   attempt,
		Score:           eval.Score,
		PassingVerdicts: eval.PassingVerdicts,
		FailingVerdicts: eval.FailingVerdicts,
		CandidateURI:    candidateURI,
	}
}
