package ontology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"caseflow/internal/models"
)

func TestSlug(t *testing.T) {
	cases := map[string]string{
		"Structural Engineer":    "structural-engineer",
		"  Duty of Care!  ":      "duty-of-care",
		"SE/PE (licensed)":       "se-pe-licensed",
		"conflict---of-interest": "conflict-of-interest",
	}
	for in, want := range cases {
		require.Equal(t, want, Slug(in), "slug of %q", in)
	}
}

func TestClassURIDeterministic(t *testing.T) {
	a := ClassURI("https://ontology.example/ns", "Duty of Care", models.ConceptObligation)
	b := ClassURI("https://ontology.example/ns/", "duty of care", models.ConceptObligation)
	require.Equal(t, a, b)
	require.Equal(t, "https://ontology.example/ns/obligation/duty-of-care", a)
}

func TestMockResolverCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMockResolver("https://ontology.example/ns")

	_, found, err := m.ResolveClass(ctx, "Engineer", models.ConceptRole)
	require.NoError(t, err)
	require.False(t, found)

	c1, err := m.CreateClass(ctx, "Engineer", models.ConceptRole, "A licensed practitioner.")
	require.NoError(t, err)
	c2, err := m.CreateClass(ctx, "engineer", models.ConceptRole, "ignored on repeat")
	require.NoError(t, err)
	require.Equal(t, c1.URI, c2.URI)

	got, found, err := m.ResolveClass(ctx, "ENGINEER", models.ConceptRole)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, c1.URI, got.URI)
}
