package activities

import "caseflow/internal/extraction"

type GetCaseSectionInput struct {
	CaseID string `json:"case_id"`
	StepID string `json:"step_id"`
}

type GetCaseSectionOutput struct {
	CaseText string `json:"case_text"`
}

type ExtractStepInput struct {
	CaseID           string `json:"case_id"`
	RunID            string `json:"run_id"`
	StepID           string `json:"step_id"`
	CaseText         string `json:"case_text"`
	SoftLimitSeconds int    `json:"soft_limit_seconds"`
}

type ExtractStepOutput struct {
	Candidates   []extraction.Candidate `json:"candidates"`
	Prompt       string                 `json:"prompt"`
	Response     string                 `json:"response"`
	ProviderName string                 `json:"provider_name"`
	Model        string                 `json:"model"`
}

type StageEntitiesInput struct {
	SessionID  string                 `json:"session_id"`
	CaseID     string                 `json:"case_id"`
	StepID     string                 `json:"step_id"`
	RunID      string                 `json:"run_id"`
	Candidates []extraction.Candidate `json:"candidates"`
}

type StageEntitiesOutput struct {
	SessionID   string `json:"session_id"`
	EntityCount int    `json:"entity_count"`
}

type RecordPromptInput struct {
	SessionID    string `json:"session_id"`
	StepID       string `json:"step_id"`
	Prompt       string `json:"prompt"`
	Response     string `json:"response"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
}

type LogLLMCallInput struct {
	Operation    string `json:"operation"`
	CaseID       string `json:"case_id"`
	RunID        string `json:"run_id"`
	ProviderName string `json:"provider_name"`
	Model        string `json:"model"`
	Status       string `json:"status"`
	ErrorType    string `json:"error_type,omitempty"`
}

type MarkRunRunningInput struct {
	RunID string `json:"run_id"`
}

type MarkRunCompletedInput struct {
	RunID       string `json:"run_id"`
	EntityCount int    `json:"entity_count"`
}

type MarkRunFailedInput struct {
	RunID       string `json:"run_id"`
	ErrorDetail string `json:"error_detail"`
}

type MarkRunCancelledInput struct {
	RunID string `json:"run_id"`
}

type MarkRunOutput struct {
	Status string `json:"status"`
}

type DiscardSessionInput struct {
	SessionID string `json:"session_id"`
}

type SettleQueueEntryInput struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}
