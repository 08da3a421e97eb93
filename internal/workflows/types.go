package workflows

type StepRunInput struct {
	RunID            string `json:"run_id"`
	CaseID           string `json:"case_id"`
	StepID           string `json:"step_id"`
	SoftLimitSeconds int    `json:"soft_limit_seconds"`
	HardLimitSeconds int    `json:"hard_limit_seconds"`
}

// RunProgress is served through the workflow query handler so the API can
// report live step state without hitting the database.
type RunProgress struct {
	RunID       string `json:"run_id"`
	CaseID      string `json:"case_id"`
	StepID      string `json:"step_id"`
	Phase       string `json:"phase"`
	SessionID   string `json:"session_id,omitempty"`
	EntityCount int    `json:"entity_count"`
	Status      string `json:"status"`
}
