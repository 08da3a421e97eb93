package extraction

import (
	"context"
	"fmt"
	"time"

	"caseflow/internal/pipeline"
	"caseflow/internal/providers"
)

// RunInput carries everything one extraction call needs. SoftDeadline is the
// cooperative budget: the executor stops starting new provider attempts once
// it has passed. The hard limit is the activity timeout enforced outside.
type RunInput struct {
	Step         pipeline.Step
	CaseText     string
	SoftDeadline time.Time
}

type RunResult struct {
	Candidates   []Candidate
	Prompt       string
	Response     string
	ProviderName string
	Model        string
	// Retryable and ErrorType describe the failure when Run returns an error:
	// ErrorType is the providers.ClassifyError class of the last provider
	// failure, Retryable whether another attempt could still succeed.
	Retryable bool
	ErrorType string
}

// Executor turns case text into staged entity candidates via LLM providers
// with failover. One executor is shared across activities.
type Executor struct {
	manager  *providers.Manager
	retryMax int
}

func NewExecutor(manager *providers.Manager, retryMax int) *Executor {
	if retryMax < 1 {
		retryMax = 1
	}
	return &Executor{manager: manager, retryMax: retryMax}
}

// Run executes one extraction call. On failure the returned RunResult still
// carries the prompt and whether the failure is worth retrying.
func (e *Executor) Run(ctx context.Context, in RunInput) (RunResult, error) {
	prompt := BuildStepPrompt(in.Step)
	req := providers.GenerateRequest{
		Operation: Operation(in.Step.ID),
		Prompt:    prompt,
		Context:   []string{in.CaseText},
	}
	result := RunResult{Prompt: prompt}
	if e.manager.LLMCount() == 0 {
		return result, fmt.Errorf("no providers configured")
	}

	order := e.manager.PreferredLLMOrder()
	// Providers whose failure class will not clear on a later round.
	exhausted := make(map[int]bool)
	var lastErr error
	var lastType providers.ErrorType
	attempts := 0
	for round := 0; round < e.retryMax && len(exhausted) < len(order); round++ {
		for _, idx := range order {
			if exhausted[idx] {
				continue
			}
			if err := ctx.Err(); err != nil {
				result.Retryable = false
				return result, err
			}
			if !in.SoftDeadline.IsZero() && !time.Now().Before(in.SoftDeadline) {
				result.Retryable = true
				if lastErr != nil {
					return result, fmt.Errorf("%w after %d attempts: %v", ErrBudgetExceeded, attempts, lastErr)
				}
				return result, ErrBudgetExceeded
			}

			provider, ref := e.manager.LLMProviderByIndex(idx)
			attempts++
			resp, info, err := provider.Generate(ctx, req)
			if err != nil {
				lastType = providers.ClassifyError(err)
				lastErr = fmt.Errorf("provider %s (%s): %w", ref.Name, lastType, err)
				if !providers.Retryable(lastType) {
					exhausted[idx] = true
				}
				continue
			}

			result.Response = resp.Text
			result.ProviderName = info.Name
			result.Model = info.Model

			candidates, perr := ParseEntities(resp.Text, in.Step.ConceptTypes)
			if perr != nil {
				result.Retryable = false
				return result, perr
			}
			result.Candidates = candidates
			return result, nil
		}
	}

	result.ErrorType = string(lastType)
	result.Retryable = providers.Retryable(lastType)
	return result, fmt.Errorf("all providers failed after %d attempts: %w", attempts, lastErr)
}
