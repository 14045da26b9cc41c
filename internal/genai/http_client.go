package genai

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

// Config configures an HTTP model client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// httpClient speaks a JSON generate-content API over HTTP.
type httpClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
}

// NewHTTPClient constructs a model client for the given endpoint.
func NewHTTPClient(config Config) (Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("model base URL is required")
	}

	timeout := 60 * time.Second
	if config.Timeout > 0 {
		timeout = config.Timeout
	}

	return &httpClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		apiKey:     config.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger("genai"),
	}, nil
}

func (c *httpClient) GenerateContent(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/v1/generate"
	c.logger.Debug("POST %s (%d parts)", endpoint, len(req.Parts))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("Model returned HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		return nil, fidelityerrors.NewHTTPStatusError(resp.StatusCode, resp.Status, string(respBody))
	}

	var parsed Response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}

	return &parsed, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
