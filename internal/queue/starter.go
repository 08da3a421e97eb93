package queue

import (
	"context"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	tclient "go.temporal.io/sdk/client"

	"caseflow/internal/config"
	"caseflow/internal/models"
	"caseflow/internal/workflows"
)

// WorkflowIDForRun names the Temporal workflow driving a run, so cancel and
// query calls can address it without a lookup.
func WorkflowIDForRun(runID string) string {
	return "steprun-" + runID
}

// TemporalStarter starts StepRunWorkflow executions on the shared task queue.
type TemporalStarter struct {
	client tclient.Client
	cfg    config.Config
}

func NewTemporalStarter(client tclient.Client, cfg config.Config) *TemporalStarter {
	return &TemporalStarter{client: client, cfg: cfg}
}

func (s *TemporalStarter) StartStepRun(ctx context.Context, run models.PipelineRun) error {
	_, err := s.client.ExecuteWorkflow(ctx, tclient.StartWorkflowOptions{
		ID:                                       WorkflowIDForRun(run.RunID),
		TaskQueue:                                s.cfg.TemporalTaskQueue,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, workflows.StepRunWorkflow, workflows.StepRunInput{
		RunID:            run.RunID,
		CaseID:           run.CaseID,
		StepID:           run.StepID,
		SoftLimitSeconds: s.cfg.SoftLimitSeconds,
		HardLimitSeconds: s.cfg.HardLimitSeconds,
	})
	if err != nil {
		return fmt.Errorf("start step run workflow: %w", err)
	}
	return nil
}
