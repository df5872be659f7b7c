package compliance

import (
	"strings"
)

// GuidelineEntry maps a procedure code prefix to a prophylaxis
// indication. Entries are evaluated in order; the first prefix match
// wins.
type GuidelineEntry struct {
	CodePrefix      string   `json:"code_prefix"`
	Description     string   `json:"description,omitempty"`
	Indicated       bool     `json:"indicated"`
	FirstLineAgents []string `json:"first_line_agents,omitempty"`
}

// GuidelineTable is the ordered indication lookup supplied by the
// stewardship team. A procedure with no matching entry is treated as
// indicated: missing an indicated case is worse than an extra alert.
type GuidelineTable struct {
	entries []GuidelineEntry
}

func NewGuidelineTable(entries []GuidelineEntry) *GuidelineTable {
	return &GuidelineTable{entries: entries}
}

// DefaultGuidelineTable returns the built-in table used when no
// site-specific table is configured. Codes are CPT prefixes.
func DefaultGuidelineTable() *GuidelineTable {
	return NewGuidelineTable([]GuidelineEntry{
		{CodePrefix: "44", Description: "Colorectal", Indicated: true, FirstLineAgents: []string{"cefazolin", "metronidazole"}},
		{CodePrefix: "475", Description: "Hepatobiliary", Indicated: true, FirstLineAgents: []string{"cefazolin"}},
		{CodePrefix: "27", Description: "Orthopedic", Indicated: true, FirstLineAgents: []string{"cefazolin"}},
		{CodePrefix: "33", Description: "Cardiac", Indicated: true, FirstLineAgents: []string{"cefazolin"}},
		{CodePrefix: "61", Description: "Craniotomy", Indicated: true, FirstLineAgents: []string{"cefazolin"}},
		{CodePrefix: "19", Description: "Breast biopsy", Indicated: false},
		{CodePrefix: "45378", Description: "Diagnostic colonoscopy", Indicated: false},
	})
}

// Lookup returns the first entry whose prefix matches any of the
// procedure codes. The second return reports whether a match was found
// at all; callers default to indicated when it is false.
func (t *GuidelineTable) Lookup(procedureCodes []string) (GuidelineEntry, bool) {
	for _, entry := range t.entries {
		for _, code := range procedureCodes {
			if entry.CodePrefix != "" && strings.HasPrefix(code, entry.CodePrefix) {
				return entry, true
			}
		}
	}
	return GuidelineEntry{}, false
}
