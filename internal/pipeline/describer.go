package pipeline

import (
	"context"
	"fmt"
	"strings"

	"fidelity/internal/genai"
	"fidelity/internal/logging"
	"fidelity/internal/prompts"
	"fidelity/internal/storage/blobstore"
)

// Describer produces the ground-truth description of a product from its
// reference images.
type Describer struct {
	model   genai.Client
	prompts *prompts.Loader
	logger  logging.Logger
}

// NewDescriber creates a describer over the given model client.
func NewDescriber(model genai.Client, loader *prompts.Loader) *Describer {
	return &Describer{
		model:   model,
		prompts: loader,
		logger:  logging.NewComponentLogger("describer"),
	}
}

// Describe generates one description covering all reference images.
func (d *Describer) Describe(ctx context.Context, referenceURIs []string) (string, error) {
	if len(referenceURIs) == 0 {
		return "", fmt.Errorf("no reference images provided")
	}

	system, err := d.prompts.Get("description_system")
	if err != nil {
		return "", err
	}
	user, err := d.prompts.Get("description_user")
	if err != nil {
		return "", err
	}

	parts := make([]genai.Part, 0, len(referenceURIs)+1)
	for _, uri := range referenceURIs {
		parts = append(parts, genai.FilePart(uri, blobstore.MIMEType(uri)))
	}
	parts = append(parts, genai.TextPart(user.Content))

	resp, err := d.model.GenerateContent(ctx, genai.Request{
		SystemInstruction: system.Content,
		Parts:             parts,
		Temperature:       0.2,
	})
	if err != nil {
		return "", fmt.Errorf("description generation: %w", err)
	}

	description := strings.TrimSpace(resp.Text())
	if description == "" {
		return "", fmt.Errorf("description model returned empty text")
	}

	d.logger.Debug("Described %d reference(s): %d chars", len(referenceURIs), len(description))
	return description, nil
}
