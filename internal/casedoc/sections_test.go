package casedoc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleCase = `Case 24-7: The Leaning Tower

Facts
An engineer discovered a design flaw after construction began.
The client asked that it not be reported.

Discussion
The code requires engineers to hold public safety paramount.
Reporting the flaw was therefore obligatory.`

func TestSplitSections(t *testing.T) {
	sections := SplitSections("case-1", sampleCase)
	require.Len(t, sections, 2)

	require.Equal(t, "facts", sections[0].Name)
	require.Contains(t, sections[0].Content, "design flaw")
	require.Contains(t, sections[0].Content, "The Leaning Tower")

	require.Equal(t, "discussion", sections[1].Name)
	require.Contains(t, sections[1].Content, "public safety paramount")
	require.NotContains(t, sections[1].Content, "design flaw")
}

func TestSplitSectionsNoHeadingsGoesToFacts(t *testing.T) {
	sections := SplitSections("case-1", "Just one paragraph of narrative.")
	require.Len(t, sections, 1)
	require.Equal(t, "facts", sections[0].Name)
}

func TestSplitSectionsRecognizesAliases(t *testing.T) {
	sections := SplitSections("case-1", "Background\nsome facts\nAnalysis\nsome analysis")
	require.Len(t, sections, 2)
	require.Equal(t, "some facts", sections[0].Content)
	require.Equal(t, "some analysis", sections[1].Content)
}

func TestGuessTitle(t *testing.T) {
	require.Equal(t, "Case 24-7: The Leaning Tower", GuessTitle(sampleCase))
	require.Equal(t, "Untitled Case", GuessTitle("\n\n"))
}
