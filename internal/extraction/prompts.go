package extraction

import (
	"strings"

	"caseflow/internal/pipeline"
)

const extractionPromptTemplate = `You are a professional-ethics case analyst.
Extract only entities stated or directly implied by the case text.
Do not invent entities the text does not support.

Output STRICT JSON with this schema:
{
  "entities": [
    {
      "label": "string",
      "definition": "one-sentence definition grounded in the case text",
      "concept_type": "%TYPES%"
    }
  ]
}

Rules:
- concept_type must be one of: %TYPELIST%.
- Labels are short noun phrases, not sentences.
- Definitions paraphrase the case, no outside knowledge.
- Do not repeat an entity under two labels.
- If no entities, return {"entities":[]}.

Few-shot example:
Input: "The structural engineer discovered a flaw after construction began."
Types: "role", "state"
Output: {"entities":[
{"label":"Structural Engineer","definition":"The engineer responsible for the building's structural design.","concept_type":"role"},
{"label":"Construction Underway","definition":"The state in which building work has already started.","concept_type":"state"}
]}
`

// BuildStepPrompt renders the extraction prompt for a step. The case text is
// passed separately as provider context.
func BuildStepPrompt(step pipeline.Step) string {
	quoted := make([]string, len(step.ConceptTypes))
	for i, t := range step.ConceptTypes {
		quoted[i] = `"` + string(t) + `"`
	}
	prompt := strings.ReplaceAll(extractionPromptTemplate, "%TYPES%", strings.Join(quoted, "|"))
	prompt = strings.ReplaceAll(prompt, "%TYPELIST%", strings.Join(quoted, ", "))

	prompt += "\n\nStep: " + step.Title + "\n"
	if step.Section == pipeline.SectionWholeCase {
		prompt += "Scope: the whole case.\n"
	} else {
		prompt += "Scope: the " + step.Section + " section only.\n"
	}
	prompt += "Extract entities of concept type " + strings.Join(quoted, " and ") + " from the case text below."
	return prompt
}

// Operation names one extraction call for audit rows and mock determinism.
func Operation(stepID string) string {
	return "extract:" + stepID
}
