package workflows

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"caseflow/internal/activities"
	"caseflow/internal/extraction"
	"caseflow/internal/models"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func registerStepRunActivities(env *testsuite.TestWorkflowEnvironment) {
	registerActivityName(env, "MarkRunRunningActivity", func(context.Context, activities.MarkRunRunningInput) (activities.MarkRunOutput, error) {
		return activities.MarkRunOutput{}, nil
	})
	registerActivityName(env, "GetCaseSectionActivity", func(context.Context, activities.GetCaseSectionInput) (activities.GetCaseSectionOutput, error) {
		return activities.GetCaseSectionOutput{}, nil
	})
	registerActivityName(env, "ExtractStepActivity", func(context.Context, activities.ExtractStepInput) (activities.ExtractStepOutput, error) {
		return activities.ExtractStepOutput{}, nil
	})
	registerActivityName(env, "StageEntitiesActivity", func(context.Context, activities.StageEntitiesInput) (activities.StageEntitiesOutput, error) {
		return activities.StageEntitiesOutput{}, nil
	})
	registerActivityName(env, "RecordPromptActivity", func(context.Context, activities.RecordPromptInput) error { return nil })
	registerActivityName(env, "LogLLMCallActivity", func(context.Context, activities.LogLLMCallInput) error { return nil })
	registerActivityName(env, "MarkRunCompletedActivity", func(context.Context, activities.MarkRunCompletedInput) (activities.MarkRunOutput, error) {
		return activities.MarkRunOutput{}, nil
	})
	registerActivityName(env, "MarkRunFailedActivity", func(context.Context, activities.MarkRunFailedInput) (activities.MarkRunOutput, error) {
		return activities.MarkRunOutput{}, nil
	})
	registerActivityName(env, "MarkRunCancelledActivity", func(context.Context, activities.MarkRunCancelledInput) (activities.MarkRunOutput, error) {
		return activities.MarkRunOutput{}, nil
	})
	registerActivityName(env, "DiscardSessionActivity", func(context.Context, activities.DiscardSessionInput) error { return nil })
	registerActivityName(env, "SettleQueueEntryActivity", func(context.Context, activities.SettleQueueEntryInput) error { return nil })
}

func stepRunInput() StepRunInput {
	return StepRunInput{
		RunID:            "run-1",
		CaseID:           "case-1",
		StepID:           "step1-pass1",
		SoftLimitSeconds: 240,
		HardLimitSeconds: 300,
	}
}

func TestStepRunWorkflowCompletes(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(StepRunWorkflow)
	registerStepRunActivities(env)

	candidates := []extraction.Candidate{
		{Label: "Structural Engineer", ConceptType: models.ConceptRole},
		{Label: "Leaking Roof", ConceptType: models.ConceptState},
		{Label: "Blueprints", ConceptType: models.ConceptResource},
		{Label: "Site Inspection", ConceptType: models.ConceptResource},
		{Label: "Building Permit", ConceptType: models.ConceptResource},
	}

	env.OnActivity("MarkRunRunningActivity", mock.Anything, activities.MarkRunRunningInput{RunID: "run-1"}).
		Return(activities.MarkRunOutput{Status: string(models.RunRunning)}, nil)
	env.OnActivity("GetCaseSectionActivity", mock.Anything, mock.Anything).
		Return(activities.GetCaseSectionOutput{CaseText: "the facts section"}, nil)
	env.OnActivity("ExtractStepActivity", mock.Anything, mock.Anything).
		Return(activities.ExtractStepOutput{Candidates: candidates, Prompt: "p", Response: "r", ProviderName: "mock", Model: "mock-llm-v1"}, nil)
	env.OnActivity("StageEntitiesActivity", mock.Anything, mock.Anything).
		Return(func(_ context.Context, in activities.StageEntitiesInput) (activities.StageEntitiesOutput, error) {
			return activities.StageEntitiesOutput{SessionID: in.SessionID, EntityCount: len(in.Candidates)}, nil
		})
	env.OnActivity("RecordPromptActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("MarkRunCompletedActivity", mock.Anything, activities.MarkRunCompletedInput{RunID: "run-1", EntityCount: 5}).
		Return(activities.MarkRunOutput{Status: string(models.RunCompleted)}, nil)
	env.OnActivity("SettleQueueEntryActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(StepRunWorkflow, stepRunInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.RunCompleted), out)
	env.AssertCalled(t, "MarkRunCompletedActivity", mock.Anything, activities.MarkRunCompletedInput{RunID: "run-1", EntityCount: 5})
	env.AssertNotCalled(t, "MarkRunFailedActivity", mock.Anything, mock.Anything)
}

func TestStepRunWorkflowMalformedOutputFailsWithoutRetry(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(StepRunWorkflow)
	registerStepRunActivities(env)

	extractCalls := 0
	env.OnActivity("MarkRunRunningActivity", mock.Anything, mock.Anything).
		Return(activities.MarkRunOutput{Status: string(models.RunRunning)}, nil)
	env.OnActivity("GetCaseSectionActivity", mock.Anything, mock.Anything).
		Return(activities.GetCaseSectionOutput{CaseText: "text"}, nil)
	env.OnActivity("ExtractStepActivity", mock.Anything, mock.Anything).
		Return(func(context.Context, activities.ExtractStepInput) (activities.ExtractStepOutput, error) {
			extractCalls++
			return activities.ExtractStepOutput{}, temporal.NewNonRetryableApplicationError("not json", activities.ErrTypeMalformedOutput, nil)
		})
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("MarkRunFailedActivity", mock.Anything, mock.Anything).
		Return(activities.MarkRunOutput{Status: string(models.RunFailed)}, nil)
	env.OnActivity("SettleQueueEntryActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(StepRunWorkflow, stepRunInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.RunFailed), out)
	require.Equal(t, 1, extractCalls, "malformed output must not be retried")
	env.AssertNotCalled(t, "StageEntitiesActivity", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "MarkRunCompletedActivity", mock.Anything, mock.Anything)
}

func TestStepRunWorkflowCancellationDiscardsSession(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(StepRunWorkflow)
	registerStepRunActivities(env)

	env.OnActivity("MarkRunRunningActivity", mock.Anything, mock.Anything).
		Return(activities.MarkRunOutput{Status: string(models.RunRunning)}, nil)
	env.OnActivity("GetCaseSectionActivity", mock.Anything, mock.Anything).
		Return(activities.GetCaseSectionOutput{CaseText: "text"}, nil)
	env.OnActivity("ExtractStepActivity", mock.Anything, mock.Anything).
		Return(func(ctx context.Context, _ activities.ExtractStepInput) (activities.ExtractStepOutput, error) {
			<-ctx.Done()
			return activities.ExtractStepOutput{}, ctx.Err()
		})
	env.OnActivity("LogLLMCallActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("DiscardSessionActivity", mock.Anything, mock.Anything).Return(nil)
	env.OnActivity("MarkRunCancelledActivity", mock.Anything, activities.MarkRunCancelledInput{RunID: "run-1"}).
		Return(activities.MarkRunOutput{Status: string(models.RunCancelled)}, nil)
	env.OnActivity("SettleQueueEntryActivity", mock.Anything, mock.Anything).Return(nil)

	env.RegisterDelayedCallback(func() {
		env.CancelWorkflow()
	}, time.Second)

	env.ExecuteWorkflow(StepRunWorkflow, stepRunInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.RunCancelled), out)
	env.AssertCalled(t, "DiscardSessionActivity", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "MarkRunCompletedActivity", mock.Anything, mock.Anything)
}

func TestStepRunWorkflowEarlyTerminalShortCircuits(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(StepRunWorkflow)
	registerStepRunActivities(env)

	// The run was cancelled before the worker picked it up. The idempotent
	// mark reports the stored outcome and the workflow keeps it.
	env.OnActivity("MarkRunRunningActivity", mock.Anything, mock.Anything).
		Return(activities.MarkRunOutput{Status: string(models.RunCancelled)}, nil)
	env.OnActivity("SettleQueueEntryActivity", mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(StepRunWorkflow, stepRunInput())
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out string
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Equal(t, string(models.RunCancelled), out)
	env.AssertNotCalled(t, "GetCaseSectionActivity", mock.Anything, mock.Anything)
}
