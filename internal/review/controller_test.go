package review

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"caseflow/internal/models"
	"caseflow/internal/ontology"
)

type fakeReviewStore struct {
	mu        sync.Mutex
	sessions  map[string]models.ExtractionSession
	entities  map[string]models.StagedEntity
	committed []models.CommittedEntity
	commitErr error
	reruns    []string
}

func newFakeReviewStore() *fakeReviewStore {
	return &fakeReviewStore{
		sessions: map[string]models.ExtractionSession{},
		entities: map[string]models.StagedEntity{},
	}
}

func (f *fakeReviewStore) GetSession(ctx context.Context, sessionID string) (models.ExtractionSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok {
		return models.ExtractionSession{}, errors.New("session not found")
	}
	return s, nil
}

func (f *fakeReviewStore) LatestSession(ctx context.Context, caseID, stepID string) (models.ExtractionSession, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best models.ExtractionSession
	found := false
	for _, s := range f.sessions {
		if s.CaseID != caseID || s.StepID != stepID || s.Discarded || s.Consumed {
			continue
		}
		if !found || s.CreatedAt.After(best.CreatedAt) {
			best = s
			found = true
		}
	}
	return best, found, nil
}

func (f *fakeReviewStore) DiscardSessionsForStep(ctx context.Context, caseID, stepID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, s := range f.sessions {
		if s.CaseID == caseID && s.StepID == stepID && !s.Discarded && !s.Consumed {
			s.Discarded = true
			f.sessions[id] = s
		}
	}
	return nil
}

func (f *fakeReviewStore) GetEntity(ctx context.Context, entityID string) (models.StagedEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entities[entityID]
	if !ok {
		return models.StagedEntity{}, errors.New("entity not found")
	}
	return e, nil
}

func (f *fakeReviewStore) ListBySession(ctx context.Context, sessionID string) ([]models.StagedEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.StagedEntity
	for _, e := range f.entities {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeReviewStore) UpdateEntity(ctx context.Context, e models.StagedEntity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.entities[e.EntityID]; !ok {
		return errors.New("entity not found")
	}
	f.entities[e.EntityID] = e
	return nil
}

func (f *fakeReviewStore) DeleteEntities(ctx context.Context, sessionID string, entityIDs []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, id := range entityIDs {
		if e, ok := f.entities[id]; ok && e.SessionID == sessionID {
			delete(f.entities, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeReviewStore) CommitSession(ctx context.Context, sessionID string, entities []models.CommittedEntity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, entities...)
	s := f.sessions[sessionID]
	s.Consumed = true
	f.sessions[sessionID] = s
	return nil
}

func (f *fakeReviewStore) Rerun(ctx context.Context, caseID, stepID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reruns = append(f.reruns, caseID+"/"+stepID)
	return nil
}

func seedSession(f *fakeReviewStore) {
	f.sessions["sess-1"] = models.ExtractionSession{
		SessionID: "sess-1",
		CaseID:    "case-1",
		StepID:    "step1-pass1",
		RunID:     "run-1",
		CreatedAt: time.Now().UTC(),
	}
	f.entities["ent-1"] = models.StagedEntity{
		EntityID: "ent-1", SessionID: "sess-1",
		Label: "Structural Engineer", Definition: "The engineer on record.",
		ConceptType: models.ConceptRole, Status: models.EntityNew,
		OriginalLabel: "Structural Engineer", OriginalDefinition: "The engineer on record.",
	}
	f.entities["ent-2"] = models.StagedEntity{
		EntityID: "ent-2", SessionID: "sess-1",
		Label: "Public Safety", Definition: "The paramount obligation.",
		ConceptType: models.ConceptPrinciple, Status: models.EntityExistingMatch,
		ClassURI:      "urn:caseflow:class/principle/public-safety",
		OriginalLabel: "Public Safety", OriginalDefinition: "The paramount obligation.",
	}
}

func newTestController(f *fakeReviewStore, seed ...ontology.Class) *Controller {
	resolver := ontology.NewMockResolver("urn:caseflow:class", seed...)
	return NewController(f, f, f, resolver, f)
}

func TestEditPreservesOriginalsAndMarksModified(t *testing.T) {
	f := newFakeReviewStore()
	seedSession(f)
	c := newTestController(f)

	got, err := c.Edit(context.Background(), EditRequest{EntityID: "ent-1", Label: "Engineer of Record"})
	require.NoError(t, err)
	require.Equal(t, "Engineer of Record", got.Label)
	require.Equal(t, "Structural Engineer", got.OriginalLabel)
	require.Equal(t, models.EntityModified, got.Status)
	require.Empty(t, got.ClassURI)
}

func TestEditKeepsResolvedClassButStaysModified(t *testing.T) {
	f := newFakeReviewStore()
	seedSession(f)
	c := newTestController(f, ontology.Class{
		URI: "urn:caseflow:class/role/engineer-of-record", Label: "Engineer of Record", ConceptType: "role",
	})

	got, err := c.Edit(context.Background(), EditRequest{EntityID: "ent-1", Label: "Engineer of Record"})
	require.NoError(t, err)
	require.Equal(t, models.EntityModified, got.Status)
	require.Equal(t, "urn:caseflow:class/role/engineer-of-record", got.ClassURI)
}

func TestApproveNewClass(t *testing.T) {
	f := newFakeReviewStore()
	seedSession(f)
	c := newTestController(f)

	got, err := c.ApproveNewClass(context.Background(), "ent-1")
	require.NoError(t, err)
	require.Equal(t, models.EntityApprovedClass, got.Status)
	require.Equal(t, "urn:caseflow:class/role/structural-engineer", got.ClassURI)

	// Matched entities are not approvable.
	_, err = c.ApproveNewClass(context.Background(), "ent-2")
	require.ErrorIs(t, err, ErrNotApprovable)
}

func TestApproveNewClassRejectsModifiedEntities(t *testing.T) {
	f := newFakeReviewStore()
	seedSession(f)
	c := newTestController(f)

	edited, err := c.Edit(context.Background(), EditRequest{EntityID: "ent-1", Label: "Engineer of Record"})
	require.NoError(t, err)
	require.Equal(t, models.EntityModified, edited.Status)

	_, err = c.ApproveNewClass(context.Background(), "ent-1")
	require.ErrorIs(t, err, ErrNotApprovable)
}

func TestCommitBlocksUnresolvedEntities(t *testing.T) {
	f := newFakeReviewStore()
	seedSession(f)
	c := newTestController(f)

	_, err := c.Commit(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrUnresolved)
	require.Empty(t, f.committed)
}

func TestCommitIsAtomicAndConsumesSession(t *testing.T) {
	f := newFakeReviewStore()
	seedSession(f)
	c := newTestController(f)

	_, err := c.ApproveNewClass(context.Background(), "ent-1")
	require.NoError(t, err)

	committed, err := c.Commit(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, committed, 2)
	require.True(t, f.sessions["sess-1"].Consumed)

	// A consumed session cannot be committed or edited again.
	_, err = c.Commit(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrSessionNotLive)
	_, err = c.Edit(context.Background(), EditRequest{EntityID: "ent-1", Label: "x"})
	require.ErrorIs(t, err, ErrSessionNotLive)
}

func TestCommitFailureLeavesStagingIntact(t *testing.T) {
	f := newFakeReviewStore()
	seedSession(f)
	c := newTestController(f)

	_, err := c.ApproveNewClass(context.Background(), "ent-1")
	require.NoError(t, err)

	f.commitErr = errors.New("connection reset")
	_, err = c.Commit(context.Background(), "sess-1")
	require.ErrorIs(t, err, ErrCommitFailed)
	require.False(t, f.sessions["sess-1"].Consumed)

	// Retry succeeds once storage recovers.
	f.commitErr = nil
	committed, err := c.Commit(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, committed, 2)
}

func TestBulkDelete(t *testing.T) {
	f := newFakeReviewStore()
	seedSession(f)
	c := newTestController(f)

	n, err := c.BulkDelete(context.Background(), "sess-1", []string{"ent-1", "ent-404"})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	left, err := c.ListStaged(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, left, 1)
}

func TestClearAndRerunDiscardsSessions(t *testing.T) {
	f := newFakeReviewStore()
	seedSession(f)
	c := newTestController(f)

	require.NoError(t, c.ClearAndRerun(context.Background(), "case-1", "step1-pass1"))
	require.True(t, f.sessions["sess-1"].Discarded)
	require.Equal(t, []string{"case-1/step1-pass1"}, f.reruns)

	_, found, err := c.LatestSession(context.Background(), "case-1", "step1-pass1")
	require.NoError(t, err)
	require.False(t, found)
}
