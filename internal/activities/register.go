package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.GetCaseSectionActivity)
	w.RegisterActivity(a.ExtractStepActivity)
	w.RegisterActivity(a.StageEntitiesActivity)
	w.RegisterActivity(a.RecordPromptActivity)
	w.RegisterActivity(a.LogLLMCallActivity)
	w.RegisterActivity(a.MarkRunRunningActivity)
	w.RegisterActivity(a.MarkRunCompletedActivity)
	w.RegisterActivity(a.MarkRunFailedActivity)
	w.RegisterActivity(a.MarkRunCancelledActivity)
	w.RegisterActivity(a.DiscardSessionActivity)
	w.RegisterActivity(a.SettleQueueEntryActivity)
}
