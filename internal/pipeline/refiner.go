package pipeline

import (
	"context"
	"fmt"
	"strings"

	"fidelity/internal/genai"
	"fidelity/internal/logging"
	"fidelity/internal/prompts"
)

// Refiner rewrites a product description to emphasize attributes a prior
// attempt failed to reproduce. Input is always the original ground-truth
// description, never a previous refinement, so drift cannot compound across
// retries.
type Refiner struct {
	model   genai.Client
	prompts *prompts.Loader
	logger  logging.Logger
}

// NewRefiner creates a refiner over the given model client.
func NewRefiner(model genai.Client, loader *prompts.Loader) *Refiner {
	return &Refiner{
		model:   model,
		prompts: loader,
		logger:  logging.NewComponentLogger("refiner"),
	}
}

// Refine produces a refined description from the original plus the failing
// verdicts of the last attempt. Failures propagate to the caller; retry
// policy lives in the transport layer, not here.
func (r *Refiner) Refine(ctx context.Context, originalDescription string, failingVerdicts []string) (string, error) {
	prompt, err := r.prompts.Render("refine", map[string]string{
		"failing_verdicts":     formatVerdicts(failingVerdicts),
		"original_description": originalDescription,
	})
	if err != nil {
		return "", err
	}

	resp, err := r.model.GenerateContent(ctx, genai.Request{
		Parts:       []genai.Part{genai.TextPart(prompt)},
		Temperature: 0.4,
	})
	if err != nil {
		return "", fmt.Errorf("description refinement: %w", err)
	}

	refined := strings.TrimSpace(resp.Text())
	if refined == "" {
		return "", fmt.Errorf("refinement model returned empty text")
	}

	r.logger.Debug("Refined description emphasizing %d failing verdict(s)", len(failingVerdicts))
	return refined, nil
}

func formatVerdicts(verdicts []string) string {
	if len(verdicts) == 0 {
		return "- (none reported)"
	}
	lines := make([]string, len(verdicts))
	for i, verdict := range verdicts {
		lines[i] = "- " + verdict
	}
	return strings.Join(lines, "\n")
}
