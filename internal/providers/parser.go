package providers

import "strings"

// ProviderRef is one entry of the CASEFLOW_LLM_PROVIDERS list. Entries are
// pipe-separated, each a bare provider name or name:alias, where the alias
// picks the key or model env var (e.g. "openai:extraction|ollama:llama3.1").
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

// ParseProviderList splits a provider spec into refs, keeping list order.
// An empty spec falls back to the mock provider.
func ParseProviderList(raw string) []ProviderRef {
	out := make([]ProviderRef, 0, 4)
	for _, entry := range strings.Split(raw, "|") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ref := ProviderRef{Raw: entry, Name: entry}
		if name, alias, ok := strings.Cut(entry, ":"); ok {
			ref.Name = strings.TrimSpace(name)
			ref.KeyAlias = strings.TrimSpace(alias)
		}
		out = append(out, ref)
	}
	if len(out) == 0 {
		return []ProviderRef{{Raw: "mock", Name: "mock"}}
	}
	return out
}
