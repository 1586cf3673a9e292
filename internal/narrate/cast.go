package narrate

import (
	"sort"
	"strings"
)

// CastEntry is one user-supplied character: a display name and a free-text
// role description.
type CastEntry struct {
	Name string `json:"name"`
	Role string `json:"role"`
}

// Canonicalize collapses whitespace and orders entries by lowercased name so
// logically identical casts produce identical prompts and hashes. Entries
// without a name are dropped. Idempotent.
func Canonicalize(cast []CastEntry) []CastEntry {
	out := make([]CastEntry, 0, len(cast))
	for _, c := range cast {
		name := collapseSpaces(c.Name)
		if name == "" {
			continue
		}
		out = append(out, CastEntry{Name: name, Role: collapseSpaces(c.Role)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// FindTarget returns the cast entry whose name matches case-insensitively.
func FindTarget(cast []CastEntry, name string) (CastEntry, bool) {
	want := strings.ToLower(collapseSpaces(name))
	for _, c := range cast {
		if strings.ToLower(c.Name) == want {
			return c, true
		}
	}
	return CastEntry{}, false
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
