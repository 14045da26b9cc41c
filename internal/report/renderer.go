package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"fidelity/internal/logging"
	"fidelity/internal/pipeline"
	"fidelity/internal/storage/blobstore"
)

// Renderer produces the self-contained HTML batch report. Images are inlined
// as base64 data URIs so the file needs no access to the blob store.
type Renderer struct {
	store     blobstore.BlobStore
	path      string
	threshold float64
	logger    logging.Logger
}

// NewRenderer creates a renderer writing to path. threshold controls which
// products are expanded for review and how score badges are colored.
func NewRenderer(store blobstore.BlobStore, path string, threshold float64) *Renderer {
	return &Renderer{
		store:     store,
		path:      path,
		threshold: threshold,
		logger:    logging.NewComponentLogger("report"),
	}
}

// Render writes the report for the given batch to the configured path.
func (r *Renderer) Render(ctx context.Context, result *pipeline.BatchResult) error {
	html, err := r.HTML(ctx, result)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := os.WriteFile(r.path, html, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	r.logger.Info("Report written to %s (%d products)", r.path, result.Total)
	return nil
}

// HTML renders the report to bytes without touching disk.
func (r *Renderer) HTML(ctx context.Context, result *pipeline.BatchResult) ([]byte, error) {
	page := r.buildPage(ctx, result)

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, page); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

type pageData struct {
	GeneratedAt string
	Total       int
	Passed      int
	NeedsReview int
	Errored     int
	AvgScore    string
	AvgAttempts string
	Products    []productData
}

type productData struct {
	SKU           string
	Category      string
	CategoryClass string
	Score         string
	ScoreClass    string
	Description   string
	ReferenceImg  template.URL
	Error         string
	Open          bool
	Attempts      []attemptData
}

type attemptData struct {
	Number     int
	Score      string
	ScoreClass string
	Image      template.URL
	Passing    []string
	Failing    []string
}

func (r *Renderer) buildPage(ctx context.Context, result *pipeline.BatchResult) pageData {
	page := pageData{
		GeneratedAt: time.Now().Format("2006-01-02 15:04:05"),
		Total:       result.Total,
	}

	var scoreSum float64
	var attemptSum, scored int

	for _, run := range result.Runs {
		product := productData{
			SKU:         run.SKU,
			Description: run.OriginalDescription,
			Score:       fmt.Sprintf("%.2f", run.FinalScore()),
			ScoreClass:  scoreClass(run.FinalScore(), r.threshold),
			Error:       run.Error,
			Open:        run.FinalScore() < r.threshold,
		}

		switch run.State {
		case pipeline.StatePassed:
			product.Category, product.CategoryClass = "PASSED", "passed"
			page.Passed++
		case pipeline.StateFailed:
			product.Category, product.CategoryClass = "NEEDS REVIEW", "review"
			page.NeedsReview++
		case pipeline.StateCancelled:
			product.Category, product.CategoryClass = "CANCELLED", "error"
			page.Errored++
		default:
			product.Category, product.CategoryClass = "ERROR", "error"
			page.Errored++
		}

		if len(run.ReferenceURIs) > 0 {
			product.ReferenceImg = r.inlineImage(ctx, run.ReferenceURIs[0])
		}

		for _, attempt := range run.History {
			product.Attempts = append(product.Attempts, attemptData{
				Number:     attempt.AttemptNumber,
				Score:      fmt.Sprintf("%.2f", attempt.Score),
				ScoreClass: scoreClass(attempt.Score, r.threshold),
				Image:      r.inlineImage(ctx, attempt.CandidateURI),
				Passing:    attempt.PassingVerdicts,
				Failing:    attempt.FailingVerdicts,
			})
		}

		if len(run.History) > 0 {
			scoreSum += run.FinalScore()
			attemptSum += len(run.History)
			scored++
		}

		page.Products = append(page.Products, product)
	}

	if scored > 0 {
		page.AvgScore = fmt.Sprintf("%.2f", scoreSum/float64(scored))
		page.AvgAttempts = fmt.Sprintf("%.1f", float64(attemptSum)/float64(scored))
	} else {
		page.AvgScore, page.AvgAttempts = "n/a", "n/a"
	}
	return page
}

// inlineImage fetches a blob and encodes it as a data URI. Missing blobs
// degrade to an empty image rather than failing the whole report.
func (r *Renderer) inlineImage(ctx context.Context, uri string) template.URL {
	if uri == "" {
		return ""
	}
	data, err := r.store.Get(ctx, uri)
	if err != nil {
		r.logger.Warn("Could not inline %s: %v", uri, err)
		return ""
	}
	encoded := base64.StdEncoding.EncodeToString(data)
	return template.URL("data:" + blobstore.MIMEType(uri) + ";base64," + encoded)
}

func scoreClass(score, threshold float64) string {
	switch {
	case score >= threshold:
		return "score-high"
	case score >= 0.4:
		return "score-medium"
	default:
		return "score-low"
	}
}
