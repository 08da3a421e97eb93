package extraction

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"caseflow/internal/models"
)

func TestParseEntities(t *testing.T) {
	raw := "```json\n" + `{"entities":[
	{"label":"Structural Engineer","definition":"The engineer on record.","concept_type":"role"},
	{"label":"structural engineer","definition":"duplicate","concept_type":"role"},
	{"label":"Leaking Roof","definition":"An observed defect.","concept_type":"state"},
	{"label":"Duty of Care","definition":"Out of scope for this step.","concept_type":"obligation"}
	]}` + "\n```"

	got, err := ParseEntities(raw, []models.ConceptType{models.ConceptRole, models.ConceptState})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "Structural Engineer", got[0].Label)
	require.Equal(t, models.ConceptRole, got[0].ConceptType)
	require.Equal(t, models.ConceptState, got[1].ConceptType)
}

func TestParseEntitiesMalformed(t *testing.T) {
	allowed := []models.ConceptType{models.ConceptRole}
	for _, raw := range []string{
		"",
		"not json at all",
		`{"entities":[{"label":"","concept_type":"role"}]}`,
		`{"entities":[{"label":"X","concept_type":"villain"}]}`,
	} {
		_, err := ParseEntities(raw, allowed)
		require.ErrorIs(t, err, ErrMalformedOutput, "raw=%q", raw)
	}
}

func TestParseEntitiesEmptyListIsValid(t *testing.T) {
	got, err := ParseEntities(`{"entities":[]}`, []models.ConceptType{models.ConceptRole})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMalformedIsNotBudget(t *testing.T) {
	_, err := ParseEntities("{", []models.ConceptType{models.ConceptRole})
	require.False(t, errors.Is(err, ErrBudgetExceeded))
}
