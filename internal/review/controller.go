package review

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"caseflow/internal/models"
	"caseflow/internal/ontology"
)

var (
	ErrSessionNotLive = errors.New("session is discarded or already committed")
	ErrNotApprovable  = errors.New("only new entities can become new classes")
	// ErrCommitFailed wraps a storage failure during commit. The staging area
	// is untouched, so the same commit can be retried.
	ErrCommitFailed = errors.New("commit failed, staging preserved")
	ErrUnresolved   = errors.New("session has entities without a class")
)

type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (models.ExtractionSession, error)
	LatestSession(ctx context.Context, caseID, stepID string) (models.ExtractionSession, bool, error)
	DiscardSessionsForStep(ctx context.Context, caseID, stepID string) error
}

type EntityStore interface {
	GetEntity(ctx context.Context, entityID string) (models.StagedEntity, error)
	ListBySession(ctx context.Context, sessionID string) ([]models.StagedEntity, error)
	UpdateEntity(ctx context.Context, e models.StagedEntity) error
	DeleteEntities(ctx context.Context, sessionID string, entityIDs []string) (int, error)
}

type CommitStore interface {
	CommitSession(ctx context.Context, sessionID string, entities []models.CommittedEntity) error
}

// Rerunner restarts extraction for a step after its sessions are cleared.
type Rerunner interface {
	Rerun(ctx context.Context, caseID, stepID string) error
}

// Controller is the review surface over the staging area. All human edits and
// the final commit to the permanent store go through it.
type Controller struct {
	sessions SessionStore
	entities EntityStore
	commits  CommitStore
	resolver ontology.Resolver
	rerunner Rerunner
}

func NewController(sessions SessionStore, entities EntityStore, commits CommitStore, resolver ontology.Resolver, rerunner Rerunner) *Controller {
	return &Controller{
		sessions: sessions,
		entities: entities,
		commits:  commits,
		resolver: resolver,
		rerunner: rerunner,
	}
}

func (c *Controller) liveSession(ctx context.Context, sessionID string) (models.ExtractionSession, error) {
	sess, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return models.ExtractionSession{}, err
	}
	if sess.Discarded || sess.Consumed {
		return models.ExtractionSession{}, fmt.Errorf("%w: %s", ErrSessionNotLive, sessionID)
	}
	return sess, nil
}

// LatestSession returns the authoritative session for a case and step.
func (c *Controller) LatestSession(ctx context.Context, caseID, stepID string) (models.ExtractionSession, bool, error) {
	return c.sessions.LatestSession(ctx, caseID, stepID)
}

func (c *Controller) ListStaged(ctx context.Context, sessionID string) ([]models.StagedEntity, error) {
	if _, err := c.liveSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return c.entities.ListBySession(ctx, sessionID)
}

type EditRequest struct {
	EntityID   string `json:"entity_id"`
	Label      string `json:"label"`
	Definition string `json:"definition"`
}

// Edit updates a staged entity's label or definition and marks it modified.
// The original extracted values stay on the row for provenance. The edited
// label is re-resolved against the ontology so a matching class keeps the
// entity committable; without a match any stale class link is dropped.
func (c *Controller) Edit(ctx context.Context, req EditRequest) (models.StagedEntity, error) {
	e, err := c.entities.GetEntity(ctx, req.EntityID)
	if err != nil {
		return models.StagedEntity{}, err
	}
	if _, err := c.liveSession(ctx, e.SessionID); err != nil {
		return models.StagedEntity{}, err
	}

	if strings.TrimSpace(req.Label) != "" {
		e.Label = strings.TrimSpace(req.Label)
	}
	if strings.TrimSpace(req.Definition) != "" {
		e.Definition = strings.TrimSpace(req.Definition)
	}

	class, found, err := c.resolver.ResolveClass(ctx, e.Label, e.ConceptType)
	if err != nil {
		return models.StagedEntity{}, fmt.Errorf("re-resolve %q: %w", e.Label, err)
	}
	e.Status = models.EntityModified
	if found {
		e.ClassURI = class.URI
	} else {
		e.ClassURI = ""
	}
	e.UpdatedAt = time.Now().UTC()

	if err := c.entities.UpdateEntity(ctx, e); err != nil {
		return models.StagedEntity{}, err
	}
	return e, nil
}

// ApproveNewClass turns a new, unmatched entity into a new ontology class.
// The class URI is deterministic, so approving twice lands on the same class.
func (c *Controller) ApproveNewClass(ctx context.Context, entityID string) (models.StagedEntity, error) {
	e, err := c.entities.GetEntity(ctx, entityID)
	if err != nil {
		return models.StagedEntity{}, err
	}
	if _, err := c.liveSession(ctx, e.SessionID); err != nil {
		return models.StagedEntity{}, err
	}
	if e.Status != models.EntityNew {
		return models.StagedEntity{}, fmt.Errorf("%w: entity %s is %s", ErrNotApprovable, entityID, e.Status)
	}

	class, err := c.resolver.CreateClass(ctx, e.Label, e.ConceptType, e.Definition)
	if err != nil {
		return models.StagedEntity{}, fmt.Errorf("create class for %q: %w", e.Label, err)
	}
	e.Status = models.EntityApprovedClass
	e.ClassURI = class.URI
	e.UpdatedAt = time.Now().UTC()

	if err := c.entities.UpdateEntity(ctx, e); err != nil {
		return models.StagedEntity{}, err
	}
	return e, nil
}

// BulkDelete removes staged entities the reviewer rejects.
func (c *Controller) BulkDelete(ctx context.Context, sessionID string, entityIDs []string) (int, error) {
	if _, err := c.liveSession(ctx, sessionID); err != nil {
		return 0, err
	}
	return c.entities.DeleteEntities(ctx, sessionID, entityIDs)
}

// Commit moves every staged entity of a live session into the permanent store
// in one transaction and marks the session consumed. Entities still lacking a
// class block the commit.
func (c *Controller) Commit(ctx context.Context, sessionID string) ([]models.CommittedEntity, error) {
	sess, err := c.liveSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	staged, err := c.entities.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	committed := make([]models.CommittedEntity, 0, len(staged))
	for _, e := range staged {
		if e.ClassURI == "" {
			return nil, fmt.Errorf("%w: %q (%s)", ErrUnresolved, e.Label, e.Status)
		}
		if e.Status == models.EntityApprovedClass {
			// Class URIs are deterministic, so re-creating on commit is a no-op
			// when approval already created the class.
			if _, err := c.resolver.CreateClass(ctx, e.Label, e.ConceptType, e.Definition); err != nil {
				return nil, fmt.Errorf("%w: create class for %q: %v", ErrCommitFailed, e.Label, err)
			}
		}
		committed = append(committed, models.CommittedEntity{
			EntityID:    e.EntityID,
			CaseID:      sess.CaseID,
			StepID:      sess.StepID,
			SessionID:   sessionID,
			Label:       e.Label,
			Definition:  e.Definition,
			ConceptType: e.ConceptType,
			ClassURI:    e.ClassURI,
		})
	}

	if err := c.commits.CommitSession(ctx, sessionID, committed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	return committed, nil
}

// ClearAndRerun discards the step's live sessions and kicks off a fresh
// extraction run. Committed entities from earlier sessions are untouched.
func (c *Controller) ClearAndRerun(ctx context.Context, caseID, stepID string) error {
	if err := c.sessions.DiscardSessionsForStep(ctx, caseID, stepID); err != nil {
		return err
	}
	if c.rerunner == nil {
		return nil
	}
	return c.rerunner.Rerun(ctx, caseID, stepID)
}
