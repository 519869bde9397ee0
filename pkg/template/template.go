// Package template provides {{name}} variable substitution for node
// configuration values.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*\}\}`)

// Render substitutes every {{name}} token in input with the corresponding
// variable value. Unresolved tokens are left literal, never silently
// dropped, so a misconfigured flow is visible in the delivered text.
func Render(input string, vars map[string]any) string {
	if input == "" || !strings.Contains(input, "{{") {
		return input
	}

	return tokenPattern.ReplaceAllStringFunc(input, func(token string) string {
		name := tokenPattern.FindStringSubmatch(token)[1]

		value, ok := lookup(vars, name)
		if !ok {
			return token
		}

		return Stringify(value)
	})
}

// HasUnresolved reports whether input still contains {{name}} tokens after
// substitution against vars.
func HasUnresolved(input string, vars map[string]any) bool {
	for _, match := range tokenPattern.FindAllStringSubmatch(input, -1) {
		if _, ok := lookup(vars, match[1]); !ok {
			return true
		}
	}

	return false
}

// Stringify converts a variable value to its textual form. Maps and slices
// render as JSON so substitution inside request bodies stays valid.
func Stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return ""
	case map[string]any, []any:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}

		return string(raw)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// lookup resolves dotted paths ("contact.name") through nested maps.
func lookup(vars map[string]any, name string) (any, bool) {
	if vars == nil {
		return nil, false
	}

	if value, ok := vars[name]; ok {
		return value, true
	}

	parts := strings.Split(name, ".")
	if len(parts) == 1 {
		return nil, false
	}

	var current any = vars

	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}
