package extraction

import (
	"encoding/json"
	"fmt"
	"strings"

	"caseflow/internal/models"
)

// ParseEntities decodes an LLM response into candidates. Unlike a lenient
// parser this one fails loudly: output that is not the demanded JSON shape
// wraps ErrMalformedOutput so the run is failed rather than retried.
func ParseEntities(raw string, allowed []models.ConceptType) ([]Candidate, error) {
	raw = stripCodeFence(strings.TrimSpace(raw))
	if raw == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}
	var payload struct {
		Entities []Candidate `json:"entities"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	allowedSet := make(map[models.ConceptType]bool, len(allowed))
	for _, t := range allowed {
		allowedSet[t] = true
	}

	out := make([]Candidate, 0, len(payload.Entities))
	seen := map[string]struct{}{}
	for _, e := range payload.Entities {
		e.Label = strings.TrimSpace(e.Label)
		e.Definition = strings.TrimSpace(e.Definition)
		e.ConceptType = models.ConceptType(strings.ToLower(strings.TrimSpace(string(e.ConceptType))))
		if e.Label == "" {
			return nil, fmt.Errorf("%w: entity with empty label", ErrMalformedOutput)
		}
		if !models.ValidConceptType(e.ConceptType) {
			return nil, fmt.Errorf("%w: unknown concept type %q", ErrMalformedOutput, e.ConceptType)
		}
		if !allowedSet[e.ConceptType] {
			// Types outside the step's scope are dropped, not fatal.
			continue
		}
		k := strings.ToLower(e.Label) + "|" + string(e.ConceptType)
		if _, exists := seen[k]; exists {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

func stripCodeFence(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
