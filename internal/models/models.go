package models

import "time"

// ConceptType is one of the nine fixed categories extracted entities fall into.
type ConceptType string

const (
	ConceptRole       ConceptType = "role"
	ConceptState      ConceptType = "state"
	ConceptResource   ConceptType = "resource"
	ConceptPrinciple  ConceptType = "principle"
	ConceptObligation ConceptType = "obligation"
	ConceptConstraint ConceptType = "constraint"
	ConceptCapability ConceptType = "capability"
	ConceptAction     ConceptType = "action"
	ConceptEvent      ConceptType = "event"
)

func AllConceptTypes() []ConceptType {
	return []ConceptType{
		ConceptRole, ConceptState, ConceptResource,
		ConceptPrinciple, ConceptObligation, ConceptConstraint,
		ConceptCapability, ConceptAction, ConceptEvent,
	}
}

func ValidConceptType(t ConceptType) bool {
	for _, c := range AllConceptTypes() {
		if c == t {
			return true
		}
	}
	return false
}

type RunStatus string

const (
	RunQueued     RunStatus = "queued"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
	RunSuperseded RunStatus = "superseded"
)

// Active reports whether the run still occupies the case's single active slot.
func (s RunStatus) Active() bool {
	return s == RunQueued || s == RunRunning
}

func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled || s == RunSuperseded
}

type EntityStatus string

const (
	EntityNew           EntityStatus = "new"
	EntityExistingMatch EntityStatus = "existing-match"
	EntityModified      EntityStatus = "modified"
	EntityApprovedClass EntityStatus = "approved-new-class"
)

type Case struct {
	CaseID    string    `json:"case_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type CaseSection struct {
	CaseID  string `json:"case_id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// PipelineRun is one attempt to execute a single extraction step for a case.
type PipelineRun struct {
	RunID       string     `json:"run_id"`
	CaseID      string     `json:"case_id"`
	StepID      string     `json:"step_id"`
	Status      RunStatus  `json:"status"`
	EntityCount int        `json:"entity_count"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ExtractionSession groups the staged entities produced by one step execution.
// Only the most recent non-discarded session per (case, step) is authoritative.
type ExtractionSession struct {
	SessionID string    `json:"session_id"`
	CaseID    string    `json:"case_id"`
	StepID    string    `json:"step_id"`
	RunID     string    `json:"run_id"`
	Discarded bool      `json:"discarded"`
	Consumed  bool      `json:"consumed"`
	CreatedAt time.Time `json:"created_at"`
}

type StagedEntity struct {
	EntityID           string       `json:"entity_id"`
	SessionID          string       `json:"session_id"`
	Label              string       `json:"label"`
	Definition         string       `json:"definition"`
	ConceptType        ConceptType  `json:"concept_type"`
	Status             EntityStatus `json:"status"`
	ClassURI           string       `json:"class_uri,omitempty"`
	OriginalLabel      string       `json:"original_label"`
	OriginalDefinition string       `json:"original_definition"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

// CommittedEntity lives in the permanent store; immutable after commit.
type CommittedEntity struct {
	EntityID    string      `json:"entity_id"`
	CaseID      string      `json:"case_id"`
	StepID      string      `json:"step_id"`
	SessionID   string      `json:"session_id"`
	Label       string      `json:"label"`
	Definition  string      `json:"definition"`
	ConceptType ConceptType `json:"concept_type"`
	ClassURI    string      `json:"class_uri"`
	CommittedAt time.Time   `json:"committed_at"`
}

type QueueStatus string

const (
	QueueEntryQueued    QueueStatus = "queued"
	QueueEntryRunning   QueueStatus = "running"
	QueueEntryCompleted QueueStatus = "completed"
	QueueEntryFailed    QueueStatus = "failed"
	QueueEntryCancelled QueueStatus = "cancelled"
)

type QueueEntry struct {
	EntryID    string      `json:"entry_id"`
	CaseID     string      `json:"case_id"`
	StepID     string      `json:"step_id"`
	RunID      string      `json:"run_id,omitempty"`
	Status     QueueStatus `json:"status"`
	Position   int         `json:"position"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// PromptRecord preserves the exact prompt/response pair behind a session for audit.
type PromptRecord struct {
	SessionID    string    `json:"session_id"`
	StepID       string    `json:"step_id"`
	Prompt       string    `json:"prompt"`
	Response     string    `json:"response"`
	ProviderName string    `json:"provider_name"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at"`
}
