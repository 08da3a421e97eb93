package casedoc

import (
	"strings"

	"caseflow/internal/models"
	"caseflow/internal/util"
)

// Section heading aliases seen across published ethics case collections.
var sectionAliases = map[string]string{
	"facts":           "facts",
	"facts:":          "facts",
	"statement of facts": "facts",
	"background":      "facts",
	"discussion":      "discussion",
	"discussion:":     "discussion",
	"analysis":        "discussion",
	"board discussion": "discussion",
}

// SplitSections divides a case narrative into the facts and discussion
// sections the step registry reads. Text before the first recognized heading,
// or a document with no headings at all, lands in facts.
func SplitSections(caseID, text string) []models.CaseSection {
	text = util.SanitizeText(text)
	lines := strings.Split(text, "\n")

	current := "facts"
	buffers := map[string]*strings.Builder{
		"facts":      {},
		"discussion": {},
	}
	for _, line := range lines {
		key := strings.ToLower(strings.TrimSpace(line))
		if name, ok := sectionAliases[key]; ok {
			current = name
			continue
		}
		b := buffers[current]
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}

	var out []models.CaseSection
	for _, name := range []string{"facts", "discussion"} {
		content := strings.TrimSpace(buffers[name].String())
		if content == "" {
			continue
		}
		out = append(out, models.CaseSection{CaseID: caseID, Name: name, Content: content})
	}
	return out
}

// GuessTitle takes the first non-empty line as the case title.
func GuessTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			if len(line) > 120 {
				line = line[:120]
			}
			return line
		}
	}
	return "Untitled Case"
}
