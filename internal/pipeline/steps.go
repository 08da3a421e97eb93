package pipeline

import "caseflow/internal/models"

// SectionWholeCase marks steps that read the full narrative rather than one section.
const SectionWholeCase = ""

// Step is one unit of extraction work: a pass over one case section with one
// concept-type group. Steps form a strict total order; a step may only start
// once every prerequisite has a completed run.
type Step struct {
	ID            string
	Title         string
	Section       string
	ConceptTypes  []models.ConceptType
	Prerequisites []string
}

var steps = []Step{
	{
		ID: "step1-pass1", Title: "Roles, states and resources (facts)",
		Section:      "facts",
		ConceptTypes: []models.ConceptType{models.ConceptRole, models.ConceptState, models.ConceptResource},
	},
	{
		ID: "step1-pass2", Title: "Roles, states and resources (discussion)",
		Section:       "discussion",
		ConceptTypes:  []models.ConceptType{models.ConceptRole, models.ConceptState, models.ConceptResource},
		Prerequisites: []string{"step1-pass1"},
	},
	{
		ID: "step2-pass1", Title: "Principles, obligations and constraints (facts)",
		Section:       "facts",
		ConceptTypes:  []models.ConceptType{models.ConceptPrinciple, models.ConceptObligation, models.ConceptConstraint},
		Prerequisites: []string{"step1-pass2"},
	},
	{
		ID: "step2-pass2", Title: "Principles, obligations and constraints (discussion)",
		Section:       "discussion",
		ConceptTypes:  []models.ConceptType{models.ConceptPrinciple, models.ConceptObligation, models.ConceptConstraint},
		Prerequisites: []string{"step2-pass1"},
	},
	{
		ID: "step3-pass1", Title: "Capabilities, actions and events (facts)",
		Section:       "facts",
		ConceptTypes:  []models.ConceptType{models.ConceptCapability, models.ConceptAction, models.ConceptEvent},
		Prerequisites: []string{"step2-pass2"},
	},
	{
		ID: "step3-pass2", Title: "Capabilities, actions and events (discussion)",
		Section:       "discussion",
		ConceptTypes:  []models.ConceptType{models.ConceptCapability, models.ConceptAction, models.ConceptEvent},
		Prerequisites: []string{"step3-pass1"},
	},
	{
		ID: "step4-phase1", Title: "Event ordering",
		Section:       SectionWholeCase,
		ConceptTypes:  []models.ConceptType{models.ConceptAction, models.ConceptEvent},
		Prerequisites: []string{"step3-pass2"},
	},
	{
		ID: "step4-phase2", Title: "Causal analysis",
		Section:       SectionWholeCase,
		ConceptTypes:  []models.ConceptType{models.ConceptAction, models.ConceptEvent},
		Prerequisites: []string{"step4-phase1"},
	},
	{
		ID: "step5", Title: "Case synthesis",
		Section:       SectionWholeCase,
		ConceptTypes:  models.AllConceptTypes(),
		Prerequisites: []string{"step4-phase2"},
	},
}

var stepIndex = buildStepIndex()

func buildStepIndex() map[string]Step {
	m := make(map[string]Step, len(steps))
	for _, s := range steps {
		m[s.ID] = s
	}
	return m
}

// Steps returns the full registry in execution order.
func Steps() []Step {
	out := make([]Step, len(steps))
	copy(out, steps)
	return out
}

func StepByID(id string) (Step, bool) {
	s, ok := stepIndex[id]
	return s, ok
}
