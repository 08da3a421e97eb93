package extraction

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"caseflow/internal/config"
	"caseflow/internal/pipeline"
	"caseflow/internal/providers"
)

func mockManager(t *testing.T) *providers.Manager {
	t.Helper()
	m, err := providers.NewManager(config.Config{LLMProviders: "mock"})
	require.NoError(t, err)
	return m
}

func TestExecutorRunWithMockProvider(t *testing.T) {
	step, ok := pipeline.StepByID("step1-pass1")
	require.True(t, ok)

	e := NewExecutor(mockManager(t), 2)
	res, err := e.Run(context.Background(), RunInput{
		Step:     step,
		CaseText: "The structural engineer discovered a flaw after construction began.",
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Candidates)
	require.Equal(t, "mock", res.ProviderName)
	require.NotEmpty(t, res.Prompt)
	for _, c := range res.Candidates {
		require.Contains(t, step.ConceptTypes, c.ConceptType)
	}
}

func TestExecutorRespectsSoftDeadline(t *testing.T) {
	step, ok := pipeline.StepByID("step1-pass1")
	require.True(t, ok)

	e := NewExecutor(mockManager(t), 2)
	_, err := e.Run(context.Background(), RunInput{
		Step:         step,
		CaseText:     "irrelevant",
		SoftDeadline: time.Now().Add(-time.Second),
	})
	require.ErrorIs(t, err, ErrBudgetExceeded)
}

// ollamaManager points the ollama provider at a local test server.
func ollamaManager(t *testing.T, srv *httptest.Server) *providers.Manager {
	t.Helper()
	t.Setenv("CASEFLOW_OLLAMA_BASE_URL", srv.URL)
	m, err := providers.NewManager(config.Config{LLMProviders: "ollama"})
	require.NoError(t, err)
	return m
}

func TestExecutorStopsRetryingPermanentFailures(t *testing.T) {
	step, ok := pipeline.StepByID("step1-pass1")
	require.True(t, ok)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	e := NewExecutor(ollamaManager(t, srv), 3)
	res, err := e.Run(context.Background(), RunInput{Step: step, CaseText: "irrelevant"})
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, string(providers.ErrorPermanent), res.ErrorType)
	require.False(t, res.Retryable)
}

func TestExecutorRetriesRateLimitedProvider(t *testing.T) {
	step, ok := pipeline.StepByID("step1-pass1")
	require.True(t, ok)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response": "{\"entities\":[{\"label\":\"Engineer\",\"definition\":\"The engineer on record.\",\"concept_type\":\"role\"}]}"}`))
	}))
	defer srv.Close()

	e := NewExecutor(ollamaManager(t, srv), 3)
	res, err := e.Run(context.Background(), RunInput{Step: step, CaseText: "irrelevant"})
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
	require.Len(t, res.Candidates, 1)
	require.Equal(t, "ollama", res.ProviderName)
}

func TestExecutorRespectsCancellation(t *testing.T) {
	step, ok := pipeline.StepByID("step5")
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := NewExecutor(mockManager(t), 1)
	_, err := e.Run(ctx, RunInput{Step: step, CaseText: "irrelevant"})
	require.ErrorIs(t, err, context.Canceled)
}
