package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	fidelityerrors "fidelity/internal/errors"
	"fidelity/internal/logging"
)

// Config configures the HTTP judge client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type httpClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
}

// NewHTTPClient constructs a judge client for the given endpoint.
func NewHTTPClient(config Config) (Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("judge base URL is required")
	}

	timeout := 120 * time.Second
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	return &httpClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("judge"),
	}, nil
}

type rubricsRequest struct {
	Description string `json:"description"`
}

type rubricsResponse struct {
	Rubrics []Rubric `json:"rubrics"`
}

func (c *httpClient) GenerateRubrics(ctx context.Context, description string) ([]Rubric, error) {
	var resp rubricsResponse
	if err := c.post(ctx, "/v1/rubrics", rubricsRequest{Description: description}, &resp); err != nil {
		return nil, err
	}
	return resp.Rubrics, nil
}

type evaluateRequest struct {
	Rubrics      []Rubric `json:"rubrics"`
	CandidateURI string   `json:"candidate_uri"`
}

func (c *httpClient) Evaluate(ctx context.Context, rubrics []Rubric, candidateURI string) (*RubricResult, error) {
	var result RubricResult
	if err := c.post(ctx, "/v1/evaluate", evaluateRequest{Rubrics: rubrics, CandidateURI: candidateURI}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *httpClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + path
	c.logger.Debug("POST %s", endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("judge request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read judge response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fidelityerrors.NewHTTPStatusError(resp.StatusCode, resp.Status, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode judge response: %w", err)
	}
	return nil
}
