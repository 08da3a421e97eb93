package providers

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestMockProviderEmitsStrictJSON(t *testing.T) {
	m := NewMockProvider()
	prompt := `Extract entities of concept type "role" and "state" from the case.`
	resp, info, err := m.Generate(context.Background(), GenerateRequest{Operation: "extract:step1-pass1", Prompt: prompt})
	if err != nil {
		t.Fatalf("mock generate: %v", err)
	}
	if info.Name != "mock" {
		t.Fatalf("unexpected provider info: %+v", info)
	}
	var parsed struct {
		Entities []struct {
			Label       string `json:"label"`
			ConceptType string `json:"concept_type"`
		} `json:"entities"`
	}
	if err := json.Unmarshal([]byte(resp.Text), &parsed); err != nil {
		t.Fatalf("mock output is not strict JSON: %v\n%s", err, resp.Text)
	}
	if len(parsed.Entities) == 0 {
		t.Fatal("expected at least one entity")
	}
	for _, e := range parsed.Entities {
		if e.ConceptType != "role" && e.ConceptType != "state" {
			t.Fatalf("unexpected concept type %q", e.ConceptType)
		}
		if strings.TrimSpace(e.Label) == "" {
			t.Fatal("entity with empty label")
		}
	}
}

func TestMockProviderDeterministic(t *testing.T) {
	m := NewMockProvider()
	req := GenerateRequest{Operation: "extract:step2-pass1", Prompt: `Types: "principle", "obligation", "constraint".`}
	a, _, _ := m.Generate(context.Background(), req)
	b, _, _ := m.Generate(context.Background(), req)
	if a.Text != b.Text {
		t.Fatal("mock output should be deterministic for the same request")
	}
}
