// Package templates renders message templates and resolves which template a
// job uses.
package templates

import (
	"regexp"
	"strings"
)

// Vars maps placeholder names to values.
type Vars map[string]string

var placeholderRE = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Render substitutes {name} placeholders. Placeholders without a value render
// as the empty string; unused vars are ignored.
func Render(tmpl string, vars Vars) string {
	if !strings.Contains(tmpl, "{") {
		return tmpl
	}
	return placeholderRE.ReplaceAllStringFunc(tmpl, func(m string) string {
		return vars[m[1:len(m)-1]]
	})
}
