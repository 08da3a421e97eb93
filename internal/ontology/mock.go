package ontology

import (
	"context"
	"strings"
	"sync"

	"caseflow/internal/models"
)

// MockResolver is an in-memory resolver for tests and local runs.
type MockResolver struct {
	namespace string

	mu      sync.Mutex
	classes map[string]Class
}

func NewMockResolver(namespace string, seed ...Class) *MockResolver {
	m := &MockResolver{namespace: namespace, classes: make(map[string]Class)}
	for _, c := range seed {
		m.classes[mockKey(c.Label, c.ConceptType)] = c
	}
	return m
}

func (m *MockResolver) ResolveClass(ctx context.Context, label string, conceptType models.ConceptType) (Class, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.classes[mockKey(label, string(conceptType))]
	return c, ok, nil
}

func (m *MockResolver) CreateClass(ctx context.Context, label string, conceptType models.ConceptType, definition string) (Class, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	key := mockKey(label, string(conceptType))
	if c, ok := m.classes[key]; ok {
		return c, nil
	}
	c := Class{
		URI:         ClassURI(m.namespace, label, conceptType),
		Label:       label,
		ConceptType: string(conceptType),
		Definition:  definition,
	}
	m.classes[key] = c
	return c, nil
}

func mockKey(label, conceptType string) string {
	return strings.ToLower(strings.TrimSpace(label)) + "|" + conceptType
}
