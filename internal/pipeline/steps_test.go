package pipeline

import (
	"testing"

	"github.com/stretchr/testify/require"

	"caseflow/internal/models"
)

func TestStepRegistryOrder(t *testing.T) {
	all := Steps()
	require.Len(t, all, 9)

	// Every prerequisite must name an earlier step.
	seen := map[string]bool{}
	for _, s := range all {
		for _, pre := range s.Prerequisites {
			require.True(t, seen[pre], "step %s requires %s before it is defined", s.ID, pre)
		}
		seen[s.ID] = true
	}
}

func TestStepRegistrySections(t *testing.T) {
	for _, s := range Steps() {
		switch s.ID {
		case "step4-phase1", "step4-phase2", "step5":
			require.Equal(t, SectionWholeCase, s.Section)
		default:
			require.Contains(t, []string{"facts", "discussion"}, s.Section)
		}
		require.NotEmpty(t, s.ConceptTypes)
	}
}

func TestStepFiveCoversAllConceptTypes(t *testing.T) {
	s, ok := StepByID("step5")
	require.True(t, ok)
	require.ElementsMatch(t, models.AllConceptTypes(), s.ConceptTypes)
}

func TestStepByIDUnknown(t *testing.T) {
	_, ok := StepByID("step99")
	require.False(t, ok)
}
