package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"caseflow/internal/models"
)

type SessionRepo struct {
	db *DB
}

func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

func (s *SessionRepo) CreateSession(ctx context.Context, sess models.ExtractionSession) error {
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO extraction_sessions (session_id, case_id, step_id, run_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (session_id) DO NOTHING`,
		sess.SessionID, sess.CaseID, sess.StepID, sess.RunID, sess.CreatedAt)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *SessionRepo) GetSession(ctx context.Context, sessionID string) (models.ExtractionSession, error) {
	var sess models.ExtractionSession
	err := s.db.Pool.QueryRow(ctx,
		`SELECT session_id, case_id, step_id, run_id, discarded, consumed, created_at
		 FROM extraction_sessions WHERE session_id = $1`, sessionID).
		Scan(&sess.SessionID, &sess.CaseID, &sess.StepID, &sess.RunID, &sess.Discarded, &sess.Consumed, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ExtractionSession{}, fmt.Errorf("session %s: not found", sessionID)
	}
	if err != nil {
		return models.ExtractionSession{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// LatestSession returns the most recent live session for a case and step.
func (s *SessionRepo) LatestSession(ctx context.Context, caseID, stepID string) (models.ExtractionSession, bool, error) {
	var sess models.ExtractionSession
	err := s.db.Pool.QueryRow(ctx,
		`SELECT session_id, case_id, step_id, run_id, discarded, consumed, created_at
		 FROM extraction_sessions
		 WHERE case_id = $1 AND step_id = $2 AND NOT discarded AND NOT consumed
		 ORDER BY created_at DESC LIMIT 1`, caseID, stepID).
		Scan(&sess.SessionID, &sess.CaseID, &sess.StepID, &sess.RunID, &sess.Discarded, &sess.Consumed, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ExtractionSession{}, false, nil
	}
	if err != nil {
		return models.ExtractionSession{}, false, fmt.Errorf("latest session: %w", err)
	}
	return sess, true, nil
}

// DiscardSession marks a session discarded. Safe to call more than once.
func (s *SessionRepo) DiscardSession(ctx context.Context, sessionID string) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE extraction_sessions SET discarded = TRUE WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("discard session: %w", err)
	}
	return nil
}

// DiscardSessionsForStep discards every live session for a case and step.
// Used before a reprocess so stale staged output cannot be committed.
func (s *SessionRepo) DiscardSessionsForStep(ctx context.Context, caseID, stepID string) error {
	_, err := s.db.Pool.Exec(ctx,
		`UPDATE extraction_sessions SET discarded = TRUE
		 WHERE case_id = $1 AND step_id = $2 AND NOT discarded AND NOT consumed`,
		caseID, stepID)
	if err != nil {
		return fmt.Errorf("discard sessions for step: %w", err)
	}
	return nil
}
