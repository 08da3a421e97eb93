package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"caseflow/internal/activities"
	"caseflow/internal/models"

	"github.com/google/uuid"
)

const QueryGetRunProgress = "GetRunProgress"

// StepRunWorkflow drives one extraction run through its lifecycle. Every exit
// path records exactly one terminal status on the run; the mark activities are
// idempotent so a redelivered completion cannot flip an earlier outcome.
func StepRunWorkflow(ctx workflow.Context, input StepRunInput) (string, error) {
	progress := RunProgress{
		RunID:  input.RunID,
		CaseID: input.CaseID,
		StepID: input.StepID,
		Phase:  "init",
		Status: string(models.RunRunning),
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetRunProgress, func() (RunProgress, error) {
		return progress, nil
	}); err != nil {
		return "", err
	}

	hardLimit := time.Duration(input.HardLimitSeconds) * time.Second
	if hardLimit <= 0 {
		hardLimit = 5 * time.Minute
	}
	ao := workflow.ActivityOptions{
		StartToCloseTimeout: hardLimit,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    3,
			NonRetryableErrorTypes: []string{
				activities.ErrTypeMalformedOutput,
				activities.ErrTypeBudgetExceeded,
				"UnknownStep",
			},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	// Terminal bookkeeping runs on a disconnected context so cancellation of
	// the workflow cannot cut off the status write itself.
	finish := func(status models.RunStatus, entityCount int, detail string) {
		dctx, cancel := workflow.NewDisconnectedContext(ctx)
		defer cancel()
		dctx = workflow.WithActivityOptions(dctx, workflow.ActivityOptions{
			StartToCloseTimeout: time.Minute,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 5},
		})
		var out activities.MarkRunOutput
		switch status {
		case models.RunCompleted:
			_ = workflow.ExecuteActivity(dctx, "MarkRunCompletedActivity", activities.MarkRunCompletedInput{RunID: input.RunID, EntityCount: entityCount}).Get(dctx, &out)
		case models.RunFailed:
			_ = workflow.ExecuteActivity(dctx, "MarkRunFailedActivity", activities.MarkRunFailedInput{RunID: input.RunID, ErrorDetail: detail}).Get(dctx, &out)
		case models.RunCancelled:
			_ = workflow.ExecuteActivity(dctx, "MarkRunCancelledActivity", activities.MarkRunCancelledInput{RunID: input.RunID}).Get(dctx, &out)
		}
		if out.Status != "" {
			progress.Status = out.Status
		} else {
			progress.Status = string(status)
		}
		_ = workflow.ExecuteActivity(dctx, "SettleQueueEntryActivity", activities.SettleQueueEntryInput{RunID: input.RunID, Status: progress.Status}).Get(dctx, nil)
	}

	progress.Phase = "mark_running"
	var markOut activities.MarkRunOutput
	if err := workflow.ExecuteActivity(ctx, "MarkRunRunningActivity", activities.MarkRunRunningInput{RunID: input.RunID}).Get(ctx, &markOut); err != nil {
		finish(models.RunFailed, 0, "mark running: "+err.Error())
		return progress.Status, nil
	}
	if markOut.Status != string(models.RunRunning) {
		// The run reached a terminal status before we started, e.g. an early
		// cancel. Keep the first outcome.
		progress.Status = markOut.Status
		_ = workflow.ExecuteActivity(ctx, "SettleQueueEntryActivity", activities.SettleQueueEntryInput{RunID: input.RunID, Status: markOut.Status}).Get(ctx, nil)
		return markOut.Status, nil
	}

	progress.Phase = "load_case"
	var sectionOut activities.GetCaseSectionOutput
	if err := workflow.ExecuteActivity(ctx, "GetCaseSectionActivity", activities.GetCaseSectionInput{CaseID: input.CaseID, StepID: input.StepID}).Get(ctx, &sectionOut); err != nil {
		if temporal.IsCanceledError(err) {
			finish(models.RunCancelled, 0, "")
		} else {
			finish(models.RunFailed, 0, "load case section: "+err.Error())
		}
		return progress.Status, nil
	}

	var sessionID string
	if err := workflow.SideEffect(ctx, func(workflow.Context) interface{} {
		return uuid.NewString()
	}).Get(&sessionID); err != nil {
		finish(models.RunFailed, 0, "session id: "+err.Error())
		return progress.Status, nil
	}
	progress.SessionID = sessionID

	progress.Phase = "extract"
	var extractOut activities.ExtractStepOutput
	extractErr := workflow.ExecuteActivity(ctx, "ExtractStepActivity", activities.ExtractStepInput{
		CaseID:           input.CaseID,
		RunID:            input.RunID,
		StepID:           input.StepID,
		CaseText:         sectionOut.CaseText,
		SoftLimitSeconds: input.SoftLimitSeconds,
	}).Get(ctx, &extractOut)
	if extractErr != nil {
		dctx, cancel := workflow.NewDisconnectedContext(ctx)
		dctx = workflow.WithActivityOptions(dctx, workflow.ActivityOptions{StartToCloseTimeout: time.Minute})
		_ = workflow.ExecuteActivity(dctx, "LogLLMCallActivity", activities.LogLLMCallInput{
			Operation: "extract:" + input.StepID,
			CaseID:    input.CaseID,
			RunID:     input.RunID,
			Status:    "error",
			ErrorType: errorType(extractErr),
		}).Get(dctx, nil)
		cancel()

		if temporal.IsCanceledError(extractErr) {
			// Cancelled mid-extraction: any partial staging is unusable.
			finishCancelled(ctx, finish, sessionID)
		} else {
			finish(models.RunFailed, 0, "extraction: "+extractErr.Error())
		}
		return progress.Status, nil
	}

	progress.Phase = "stage"
	var stageOut activities.StageEntitiesOutput
	if err := workflow.ExecuteActivity(ctx, "StageEntitiesActivity", activities.StageEntitiesInput{
		SessionID:  sessionID,
		CaseID:     input.CaseID,
		StepID:     input.StepID,
		RunID:      input.RunID,
		Candidates: extractOut.Candidates,
	}).Get(ctx, &stageOut); err != nil {
		if temporal.IsCanceledError(err) {
			finishCancelled(ctx, finish, sessionID)
		} else {
			finish(models.RunFailed, 0, "stage entities: "+err.Error())
		}
		return progress.Status, nil
	}
	progress.EntityCount = stageOut.EntityCount

	progress.Phase = "record"
	_ = workflow.ExecuteActivity(ctx, "RecordPromptActivity", activities.RecordPromptInput{
		SessionID:    sessionID,
		StepID:       input.StepID,
		Prompt:       extractOut.Prompt,
		Response:     extractOut.Response,
		ProviderName: extractOut.ProviderName,
		Model:        extractOut.Model,
	}).Get(ctx, nil)
	_ = workflow.ExecuteActivity(ctx, "LogLLMCallActivity", activities.LogLLMCallInput{
		Operation:    "extract:" + input.StepID,
		CaseID:       input.CaseID,
		RunID:        input.RunID,
		ProviderName: extractOut.ProviderName,
		Model:        extractOut.Model,
		Status:       "ok",
	}).Get(ctx, nil)

	finish(models.RunCompleted, stageOut.EntityCount, "")
	progress.Phase = "done"
	return progress.Status, nil
}

// finishCancelled discards the run's session before recording the cancel, so
// partial extraction output cannot reach review.
func finishCancelled(ctx workflow.Context, finish func(models.RunStatus, int, string), sessionID string) {
	dctx, cancel := workflow.NewDisconnectedContext(ctx)
	defer cancel()
	dctx = workflow.WithActivityOptions(dctx, workflow.ActivityOptions{StartToCloseTimeout: time.Minute})
	_ = workflow.ExecuteActivity(dctx, "DiscardSessionActivity", activities.DiscardSessionInput{SessionID: sessionID}).Get(dctx, nil)
	finish(models.RunCancelled, 0, "")
}

func errorType(err error) string {
	if temporal.IsCanceledError(err) {
		return "cancelled"
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type()
	}
	return "unknown"
}
