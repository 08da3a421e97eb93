package storage

import (
	"context"
	"fmt"
)

// EnsureSchema creates the tables the service needs. Kept resilient so a fresh
// database works without a separate migration step.
func (d *DB) EnsureSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS cases (
  case_id UUID PRIMARY KEY,
  title TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS case_sections (
  case_id UUID NOT NULL REFERENCES cases(case_id) ON DELETE CASCADE,
  name TEXT NOT NULL,
  content TEXT NOT NULL,
  PRIMARY KEY (case_id, name)
);

CREATE TABLE IF NOT EXISTS pipeline_runs (
  run_id UUID PRIMARY KEY,
  case_id UUID NOT NULL REFERENCES cases(case_id) ON DELETE CASCADE,
  step_id TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('queued','running','completed','failed','cancelled','superseded')),
  entity_count INT NOT NULL DEFAULT 0,
  error_detail TEXT,
  started_at TIMESTAMPTZ,
  completed_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_runs_one_active_per_case
  ON pipeline_runs(case_id) WHERE status IN ('queued','running');
CREATE INDEX IF NOT EXISTS idx_runs_case ON pipeline_runs(case_id, created_at DESC);

CREATE TABLE IF NOT EXISTS extraction_sessions (
  session_id UUID PRIMARY KEY,
  case_id UUID NOT NULL REFERENCES cases(case_id) ON DELETE CASCADE,
  step_id TEXT NOT NULL,
  run_id UUID NOT NULL,
  discarded BOOLEAN NOT NULL DEFAULT FALSE,
  consumed BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_sessions_case_step
  ON extraction_sessions(case_id, step_id, created_at DESC);

CREATE TABLE IF NOT EXISTS staged_entities (
  entity_id UUID PRIMARY KEY,
  session_id UUID NOT NULL REFERENCES extraction_sessions(session_id) ON DELETE CASCADE,
  label TEXT NOT NULL,
  definition TEXT NOT NULL DEFAULT '',
  concept_type TEXT NOT NULL,
  status TEXT NOT NULL CHECK (status IN ('new','existing-match','modified','approved-new-class')),
  class_uri TEXT,
  original_label TEXT NOT NULL,
  original_definition TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS queue_entries (
  entry_id UUID PRIMARY KEY,
  case_id UUID NOT NULL REFERENCES cases(case_id) ON DELETE CASCADE,
  step_id TEXT NOT NULL,
  run_id UUID,
  status TEXT NOT NULL CHECK (status IN ('queued','running','completed','failed','cancelled')),
  position BIGINT NOT NULL,
  enqueued_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_one_active_per_case
  ON queue_entries(case_id) WHERE status IN ('queued','running');

CREATE TABLE IF NOT EXISTS prompt_records (
  session_id UUID PRIMARY KEY REFERENCES extraction_sessions(session_id) ON DELETE CASCADE,
  step_id TEXT NOT NULL,
  prompt TEXT NOT NULL,
  response TEXT NOT NULL,
  provider_name TEXT NOT NULL DEFAULT '',
  model TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS committed_entities (
  entity_id UUID PRIMARY KEY,
  case_id UUID NOT NULL REFERENCES cases(case_id) ON DELETE CASCADE,
  step_id TEXT NOT NULL,
  session_id UUID NOT NULL,
  label TEXT NOT NULL,
  definition TEXT NOT NULL DEFAULT '',
  concept_type TEXT NOT NULL,
  class_uri TEXT NOT NULL,
  committed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_committed_case ON committed_entities(case_id, step_id);

CREATE TABLE IF NOT EXISTS ontology_classes (
  class_uri TEXT PRIMARY KEY,
  label TEXT NOT NULL,
  concept_type TEXT NOT NULL,
  definition TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS llm_calls (
  call_id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  operation TEXT NOT NULL,
  case_id UUID,
  run_id UUID,
  provider_name TEXT NOT NULL DEFAULT '',
  model TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  error_type TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	if _, err := d.Pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
