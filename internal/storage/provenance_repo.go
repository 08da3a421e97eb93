package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"caseflow/internal/models"
)

type ProvenanceRepo struct {
	db *DB
}

func NewProvenanceRepo(db *DB) *ProvenanceRepo {
	return &ProvenanceRepo{db: db}
}

func (p *ProvenanceRepo) RecordPrompt(ctx context.Context, rec models.PromptRecord) error {
	_, err := p.db.Pool.Exec(ctx,
		`INSERT INTO prompt_records (session_id, step_id, prompt, response, provider_name, model, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id) DO UPDATE
		 SET prompt = EXCLUDED.prompt, response = EXCLUDED.response,
		     provider_name = EXCLUDED.provider_name, model = EXCLUDED.model`,
		rec.SessionID, rec.StepID, rec.Prompt, rec.Response, rec.ProviderName, rec.Model, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("record prompt: %w", err)
	}
	return nil
}

func (p *ProvenanceRepo) GetPrompt(ctx context.Context, sessionID string) (models.PromptRecord, error) {
	var rec models.PromptRecord
	err := p.db.Pool.QueryRow(ctx,
		`SELECT session_id, step_id, prompt, response, provider_name, model, created_at
		 FROM prompt_records WHERE session_id = $1`, sessionID).
		Scan(&rec.SessionID, &rec.StepID, &rec.Prompt, &rec.Response, &rec.ProviderName, &rec.Model, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PromptRecord{}, fmt.Errorf("prompt record %s: not found", sessionID)
	}
	if err != nil {
		return models.PromptRecord{}, fmt.Errorf("get prompt record: %w", err)
	}
	return rec, nil
}

// LogLLMCall appends one row to the LLM call audit.
func (p *ProvenanceRepo) LogLLMCall(ctx context.Context, operation, caseID, runID, providerName, model, status, errorType string) error {
	_, err := p.db.Pool.Exec(ctx,
		`INSERT INTO llm_calls (operation, case_id, run_id, provider_name, model, status, error_type)
		 VALUES ($1, NULLIF($2, '')::uuid, NULLIF($3, '')::uuid, $4, $5, $6, NULLIF($7, ''))`,
		operation, caseID, runID, providerName, model, status, errorType)
	if err != nil {
		return fmt.Errorf("log llm call: %w", err)
	}
	return nil
}
