package activities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"

	"caseflow/internal/config"
	"caseflow/internal/extraction"
	"caseflow/internal/models"
	"caseflow/internal/ontology"
	"caseflow/internal/pipeline"
	"caseflow/internal/providers"
	"caseflow/internal/storage"

	"github.com/google/uuid"
)

// Error types the workflow retry policy treats as permanent.
const (
	ErrTypeMalformedOutput = "MalformedExtractionOutput"
	ErrTypeBudgetExceeded  = "ExtractionBudgetExceeded"
)

type Activities struct {
	cfg         config.Config
	caseRepo    *storage.CaseRepo
	sessionRepo *storage.SessionRepo
	entityRepo  *storage.EntityRepo
	provRepo    *storage.ProvenanceRepo
	queueRepo   *storage.QueueRepo
	machine     *pipeline.StateMachine
	resolver    ontology.Resolver
	executor    *extraction.Executor
}

func New(cfg config.Config, db *storage.DB) (*Activities, error) {
	pm, err := providers.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	var resolver ontology.Resolver
	if cfg.OntologyBaseURL != "" {
		resolver = ontology.NewHTTPResolver(cfg.OntologyBaseURL, cfg.OntologyNamespace)
	} else {
		resolver = ontology.NewPostgresResolver(storage.NewOntologyRepo(db), cfg.OntologyNamespace)
	}
	return &Activities{
		cfg:         cfg,
		caseRepo:    storage.NewCaseRepo(db),
		sessionRepo: storage.NewSessionRepo(db),
		entityRepo:  storage.NewEntityRepo(db),
		provRepo:    storage.NewProvenanceRepo(db),
		queueRepo:   storage.NewQueueRepo(db),
		machine:     pipeline.NewStateMachine(storage.NewRunRepo(db)),
		resolver:    resolver,
		executor:    extraction.NewExecutor(pm, cfg.LLMRetryMax),
	}, nil
}

func (a *Activities) GetCaseSectionActivity(ctx context.Context, in GetCaseSectionInput) (GetCaseSectionOutput, error) {
	step, ok := pipeline.StepByID(in.StepID)
	if !ok {
		return GetCaseSectionOutput{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown step %s", in.StepID), "UnknownStep", nil)
	}
	text, err := a.caseRepo.GetSection(ctx, in.CaseID, step.Section)
	if err != nil {
		return GetCaseSectionOutput{}, err
	}
	return GetCaseSectionOutput{CaseText: text}, nil
}

// ExtractStepActivity runs one LLM extraction call under the soft budget. The
// hard limit is this activity's StartToCloseTimeout.
func (a *Activities) ExtractStepActivity(ctx context.Context, in ExtractStepInput) (ExtractStepOutput, error) {
	step, ok := pipeline.StepByID(in.StepID)
	if !ok {
		return ExtractStepOutput{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown step %s", in.StepID), "UnknownStep", nil)
	}

	var softDeadline time.Time
	if in.SoftLimitSeconds > 0 {
		softDeadline = time.Now().Add(time.Duration(in.SoftLimitSeconds) * time.Second)
	}

	res, err := a.executor.Run(ctx, extraction.RunInput{
		Step:         step,
		CaseText:     in.CaseText,
		SoftDeadline: softDeadline,
	})
	out := ExtractStepOutput{
		Candidates:   res.Candidates,
		Prompt:       res.Prompt,
		Response:     res.Response,
		ProviderName: res.ProviderName,
		Model:        res.Model,
	}
	if err != nil {
		if errors.Is(err, extraction.ErrMalformedOutput) {
			return out, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeMalformedOutput, err)
		}
		if errors.Is(err, extraction.ErrBudgetExceeded) {
			return out, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeBudgetExceeded, err)
		}
		if res.ErrorType != "" {
			// Provider failures carry their classified type so the workflow's
			// audit log records it; only retryable classes go back to Temporal
			// for another attempt.
			if res.Retryable {
				return out, temporal.NewApplicationErrorWithCause(err.Error(), res.ErrorType, err)
			}
			return out, temporal.NewNonRetryableApplicationError(err.Error(), res.ErrorType, err)
		}
		return out, err
	}
	return out, nil
}

// stagedEntityID derives a stable id from the session and the candidate's
// position, so a redelivered staging batch re-inserts the same rows and the
// entity_id conflict clause dedupes them.
func stagedEntityID(sessionID string, c extraction.Candidate, idx int) string {
	name := fmt.Sprintf("%s|%d|%s|%s", sessionID, idx, strings.ToLower(c.Label), c.ConceptType)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// StageEntitiesActivity resolves candidates against the ontology and writes
// them to the staging area under a fresh session. The session id is chosen by
// the workflow and the entity ids derive from it, so a retried activity lands
// on the same session and the same rows.
func (a *Activities) StageEntitiesActivity(ctx context.Context, in StageEntitiesInput) (StageEntitiesOutput, error) {
	now := time.Now().UTC()
	if err := a.sessionRepo.CreateSession(ctx, models.ExtractionSession{
		SessionID: in.SessionID,
		CaseID:    in.CaseID,
		StepID:    in.StepID,
		RunID:     in.RunID,
		CreatedAt: now,
	}); err != nil {
		return StageEntitiesOutput{}, err
	}

	entities := make([]models.StagedEntity, 0, len(in.Candidates))
	for i, c := range in.Candidates {
		e := models.StagedEntity{
			EntityID:           stagedEntityID(in.SessionID, c, i),
			SessionID:          in.SessionID,
			Label:              c.Label,
			Definition:         c.Definition,
			ConceptType:        c.ConceptType,
			Status:             models.EntityNew,
			OriginalLabel:      c.Label,
			OriginalDefinition: c.Definition,
			CreatedAt:          now,
		}
		class, found, err := a.resolver.ResolveClass(ctx, c.Label, c.ConceptType)
		if err != nil {
			return StageEntitiesOutput{}, fmt.Errorf("resolve %q: %w", c.Label, err)
		}
		if found {
			e.Status = models.EntityExistingMatch
			e.ClassURI = class.URI
		}
		entities = append(entities, e)
	}
	if err := a.entityRepo.StageEntities(ctx, entities); err != nil {
		return StageEntitiesOutput{}, err
	}
	return StageEntitiesOutput{SessionID: in.SessionID, EntityCount: len(entities)}, nil
}

func (a *Activities) RecordPromptActivity(ctx context.Context, in RecordPromptInput) error {
	return a.provRepo.RecordPrompt(ctx, models.PromptRecord{
		SessionID:    in.SessionID,
		StepID:       in.StepID,
		Prompt:       in.Prompt,
		Response:     in.Response,
		ProviderName: in.ProviderName,
		Model:        in.Model,
		CreatedAt:    time.Now().UTC(),
	})
}

func (a *Activities) LogLLMCallActivity(ctx context.Context, in LogLLMCallInput) error {
	return a.provRepo.LogLLMCall(ctx, in.Operation, in.CaseID, in.RunID, in.ProviderName, in.Model, in.Status, in.ErrorType)
}

func (a *Activities) MarkRunRunningActivity(ctx context.Context, in MarkRunRunningInput) (MarkRunOutput, error) {
	run, err := a.machine.MarkRunning(ctx, in.RunID)
	if err != nil {
		return MarkRunOutput{}, err
	}
	return MarkRunOutput{Status: string(run.Status)}, nil
}

func (a *Activities) MarkRunCompletedActivity(ctx context.Context, in MarkRunCompletedInput) (MarkRunOutput, error) {
	run, err := a.machine.MarkCompleted(ctx, in.RunID, in.EntityCount)
	if err != nil {
		return MarkRunOutput{}, err
	}
	return MarkRunOutput{Status: string(run.Status)}, nil
}

func (a *Activities) MarkRunFailedActivity(ctx context.Context, in MarkRunFailedInput) (MarkRunOutput, error) {
	run, err := a.machine.MarkFailed(ctx, in.RunID, in.ErrorDetail)
	if err != nil {
		return MarkRunOutput{}, err
	}
	return MarkRunOutput{Status: string(run.Status)}, nil
}

func (a *Activities) MarkRunCancelledActivity(ctx context.Context, in MarkRunCancelledInput) (MarkRunOutput, error) {
	run, err := a.machine.MarkCancelled(ctx, in.RunID)
	if err != nil {
		return MarkRunOutput{}, err
	}
	return MarkRunOutput{Status: string(run.Status)}, nil
}

func (a *Activities) DiscardSessionActivity(ctx context.Context, in DiscardSessionInput) error {
	return a.sessionRepo.DiscardSession(ctx, in.SessionID)
}

func (a *Activities) SettleQueueEntryActivity(ctx context.Context, in SettleQueueEntryInput) error {
	if a.queueRepo == nil {
		return nil
	}
	return a.queueRepo.Settle(ctx, in.RunID, models.RunStatus(in.Status))
}
