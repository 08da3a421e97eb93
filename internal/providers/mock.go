package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"

	"caseflow/internal/models"
)

// MockProvider returns deterministic strict-JSON extraction payloads so
// pipelines can run end to end without a configured LLM.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}

	types := conceptTypesInPrompt(req.Prompt)
	if len(types) == 0 {
		return GenerateResponse{Text: `{"entities":[]}`}, info, nil
	}

	type entity struct {
		Label       string `json:"label"`
		Definition  string `json:"definition"`
		ConceptType string `json:"concept_type"`
	}
	var entities []entity
	for _, t := range types {
		n := 1 + int(seedFor(req.Operation, string(t))%2)
		for i := 0; i < n; i++ {
			entities = append(entities, entity{
				Label:       fmt.Sprintf("Mock %s %d", t, i+1),
				Definition:  fmt.Sprintf("Deterministic %s produced by the mock provider for %s.", t, req.Operation),
				ConceptType: string(t),
			})
		}
	}
	payload, _ := json.Marshal(map[string]any{"entities": entities})
	return GenerateResponse{Text: string(payload)}, info, nil
}

// conceptTypesInPrompt detects which concept types a prompt asks for by
// scanning for the type names the real templates spell out.
func conceptTypesInPrompt(prompt string) []models.ConceptType {
	lower := strings.ToLower(prompt)
	var out []models.ConceptType
	for _, t := range models.AllConceptTypes() {
		if strings.Contains(lower, `"`+string(t)+`"`) {
			out = append(out, t)
		}
	}
	return out
}

func seedFor(parts ...string) uint32 {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return binary.BigEndian.Uint32(h[:4])
}
