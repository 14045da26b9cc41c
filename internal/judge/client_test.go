package judge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	fidelityerrors "fidelity/internal/errors"
)

func TestHTTPClientGenerateRubrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/rubrics", r.URL.Path)

		var req rubricsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "a brown leather bag", req.Description)

		_ = json.NewEncoder(w).Encode(rubricsResponse{Rubrics: []Rubric{
			{ID: "r1", Question: "Is the bag brown?"},
			{ID: "r2", Question: "Is the bag leather?"},
		}})
	}))
	defer server.Close()

	client, err := NewHTTPClient(Config{BaseURL: server.URL})
	require.NoError(t, err)

	rubrics, err := client.GenerateRubrics(context.Background(), "a brown leather bag")
	require.NoError(t, err)
	require.Len(t, rubrics, 2)
	require.Equal(t, "Is the bag brown?", rubrics[0].Question)
}

func TestHTTPClientEvaluate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/evaluate", r.URL.Path)

		var req evaluateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "blob://products/generated/sku-1/a.png", req.CandidateURI)
		require.Len(t, req.Rubrics, 1)

		score := 0.85
		_ = json.NewEncoder(w).Encode(RubricResult{
			Score: &score,
			Verdicts: []Verdict{
				{Text: "bag is brown", Pass: true},
				{Text: "strap buckle visible", Pass: false},
			},
		})
	}))
	defer server.Close()

	client, err := NewHTTPClient(Config{BaseURL: server.URL})
	require.NoError(t, err)

	result, err := client.Evaluate(context.Background(),
		[]Rubric{{Question: "Is the bag brown?"}},
		"blob://products/generated/sku-1/a.png")
	require.NoError(t, err)
	require.NotNil(t, result.Score)
	require.InDelta(t, 0.85, *result.Score, 1e-9)
	require.Len(t, result.Verdicts, 2)
	require.False(t, result.Verdicts[1].Pass)
}

func TestHTTPClientNullScoreDecodesToNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"score": null, "verdicts": []}`))
	}))
	defer server.Close()

	client, err := NewHTTPClient(Config{BaseURL: server.URL})
	require.NoError(t, err)

	result, err := client.Evaluate(context.Background(), nil, "blob://b/x.png")
	require.NoError(t, err)
	require.Nil(t, result.Score)
	require.Empty(t, result.Verdicts)
}

func TestHTTPClientRateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewHTTPClient(Config{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.GenerateRubrics(context.Background(), "x")
	require.Error(t, err)
	require.True(t, fidelityerrors.IsTransient(err))
}

func TestMockClientScript(t *testing.T) {
	mock := NewMockClient().EnqueueScore(0.4).EnqueueScore(0.9)

	first, err := mock.Evaluate(context.Background(), nil, "blob://b/a.png")
	require.NoError(t, err)
	require.InDelta(t, 0.4, *first.Score, 1e-9)

	second, err := mock.Evaluate(context.Background(), nil, "blob://b/b.png")
	require.NoError(t, err)
	require.InDelta(t, 0.9, *second.Score, 1e-9)

	require.Equal(t, []string{"blob://b/a.png", "blob://b/b.png"}, mock.EvaluateCalls())
}
