// Package template substitutes {{name}} placeholders in reminder templates.
package template

import (
	"regexp"
	"sort"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Render replaces known placeholders in a single pass. Substituted values are
// never re-scanned. Unknown placeholders stay in the output verbatim and are
// returned sorted and de-duplicated.
func Render(text string, vars map[string]string) (string, []string) {
	missing := map[string]struct{}{}
	out := placeholder.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholder.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		missing[name] = struct{}{}
		return match
	})

	if len(missing) == 0 {
		return out, nil
	}
	unresolved := make([]string, 0, len(missing))
	for name := range missing {
		unresolved = append(unresolved, name)
	}
	sort.Strings(unresolved)
	return out, unresolved
}
