package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fidelity/internal/genai"
	"fidelity/internal/logging"
	"fidelity/internal/prompts"
	"fidelity/internal/storage/blobstore"
)

// ErrNoArtifactProduced marks a generation call that returned no usable
// media payload.
var ErrNoArtifactProduced = errors.New("generation produced no artifact")

// GenerateInput describes one candidate generation call.
type GenerateInput struct {
	SKU           string
	ReferenceURIs []string
	AttemptNumber int
	// RefinedDescription and PriorFailingVerdicts steer retry attempts;
	// both are empty on attempt 1.
	RefinedDescription   string
	PriorFailingVerdicts []string
}

// GeneratorConfig fixes where candidates are stored and what kind of
// artifact the batch produces.
type GeneratorConfig struct {
	Scheme       string // blob URI scheme, e.g. "blob"
	Bucket       string
	ArtifactKind string // "image" or "video"
}

// Generator produces candidate artifacts from a reference plus instruction
// text and records them in the blob store with attempt provenance in the
// blob name.
type Generator struct {
	model   genai.Client
	store   blobstore.BlobStore
	prompts *prompts.Loader
	config  GeneratorConfig
	logger  logging.Logger
}

// NewGenerator creates a generator writing candidates under
// generated/<sku>/ in the configured bucket.
func NewGenerator(model genai.Client, store blobstore.BlobStore, loader *prompts.Loader, config GeneratorConfig) *Generator {
	if config.Scheme == "" {
		config.Scheme = "blob"
	}
	if config.ArtifactKind == "" {
		config.ArtifactKind = "image"
	}
	return &Generator{
		model:   model,
		store:   store,
		prompts: loader,
		config:  config,
		logger:  logging.NewComponentLogger("generator"),
	}
}

// Generate produces one candidate and returns its blob URI. Attempt 1 uses
// the base recontextualization instruction only; later attempts add the
// refined description and the prior attempt's failing verdicts.
func (g *Generator) Generate(ctx context.Context, in GenerateInput) (string, error) {
	instruction, err := g.buildInstruction(in)
	if err != nil {
		return "", err
	}

	parts := make([]genai.Part, 0, len(in.ReferenceURIs)+1)
	for _, uri := range in.ReferenceURIs {
		parts = append(parts, genai.FilePart(uri, blobstore.MIMEType(uri)))
	}
	parts = append(parts, genai.TextPart(instruction))

	resp, err := g.model.GenerateContent(ctx, genai.Request{
		Parts:              parts,
		Temperature:        0.7,
		ResponseModalities: []string{strings.ToUpper(g.config.ArtifactKind)},
	})
	if err != nil {
		return "", fmt.Errorf("candidate generation: %w", err)
	}

	data, mimeType := resp.InlineMedia()
	if len(data) == 0 {
		return "", fmt.Errorf("attempt %d for %s: %w", in.AttemptNumber, in.SKU, ErrNoArtifactProduced)
	}

	uri := g.candidateURI(in.SKU, in.AttemptNumber, mimeType)
	if _, err := g.store.Put(ctx, uri, data); err != nil {
		return "", fmt.Errorf("store candidate %s: %w", uri, err)
	}

	g.logger.Debug("Generated candidate %s (%d bytes)", uri, len(data))
	return uri, nil
}

func (g *Generator) buildInstruction(in GenerateInput) (string, error) {
	base, err := g.prompts.Get("recontextualize")
	if err != nil {
		return "", err
	}
	if in.AttemptNumber <= 1 {
		return base.Content, nil
	}

	guidance, err := g.prompts.Render("retry_guidance", map[string]string{
		"failing_verdicts":    formatVerdicts(in.PriorFailingVerdicts),
		"refined_description": in.RefinedDescription,
	})
	if err != nil {
		return "", err
	}
	return base.Content + "\n\n" + guidance, nil
}

func (g *Generator) candidateURI(sku string, attempt int, mimeType string) string {
	ext := ".png"
	switch mimeType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/webp":
		ext = ".webp"
	case "video/mp4":
		ext = ".mp4"
	}
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s://%s/generated/%s/attempt_%d_%s%s",
		g.config.Scheme, g.config.Bucket, sku, attempt, id, ext)
}
