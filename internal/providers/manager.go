package providers

import (
	"fmt"
	"strings"

	"caseflow/internal/config"
)

type NamedLLMProvider struct {
	Ref      ProviderRef
	Provider LLMProvider
}

type Manager struct {
	llmProviders []NamedLLMProvider
}

func NewManager(cfg config.Config) (*Manager, error) {
	refs := ParseProviderList(cfg.LLMProviders)

	m := &Manager{}
	for _, ref := range refs {
		p, err := buildProvider(ref)
		if err != nil {
			return nil, err
		}
		m.llmProviders = append(m.llmProviders, NamedLLMProvider{Ref: ref, Provider: p})
	}
	if len(m.llmProviders) == 0 {
		m.llmProviders = []NamedLLMProvider{{Ref: ProviderRef{Raw: "mock", Name: "mock"}, Provider: NewMockProvider()}}
	}
	return m, nil
}

func (m *Manager) LLMProviderByIndex(i int) (LLMProvider, ProviderRef) {
	if len(m.llmProviders) == 0 {
		return NewMockProvider(), ProviderRef{Raw: "mock", Name: "mock"}
	}
	if i < 0 || i >= len(m.llmProviders) {
		i = 0
	}
	return m.llmProviders[i].Provider, m.llmProviders[i].Ref
}

func (m *Manager) LLMCount() int {
	return len(m.llmProviders)
}

// PreferredLLMOrder lists provider indexes with real providers ahead of mock,
// so failover only lands on mock when nothing else is configured.
func (m *Manager) PreferredLLMOrder() []int {
	n := len(m.llmProviders)
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if strings.ToLower(m.llmProviders[i].Ref.Name) != "mock" {
			out = append(out, i)
		}
	}
	for i := 0; i < n; i++ {
		if strings.ToLower(m.llmProviders[i].Ref.Name) == "mock" {
			out = append(out, i)
		}
	}
	return out
}

func buildProvider(ref ProviderRef) (LLMProvider, error) {
	switch strings.ToLower(ref.Name) {
	case "mock":
		return NewMockProvider(), nil
	case "openai":
		return NewOpenAIProvider(ref.KeyAlias), nil
	case "ollama":
		return NewOllamaProvider(ref.KeyAlias), nil
	case "groq":
		return NewGroqProvider(ref.KeyAlias), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", ref.Name)
	}
}
