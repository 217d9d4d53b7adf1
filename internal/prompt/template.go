// Package prompt renders stage prompt templates. Substitution is strict: an
// unresolved placeholder is an error, never an empty string in the output.
package prompt

import (
	"fmt"
	"strings"
)

// MissingValueError reports a placeholder with no value to substitute.
type MissingValueError struct {
	Placeholder string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("prompt template references {%s} but no value is available", e.Placeholder)
}

// Render substitutes {name} placeholders in template with values. Doubled
// braces escape literals: {{ renders as { and }} as }.
func Render(template string, values map[string]string) (string, error) {
	var out strings.Builder
	out.Grow(len(template))

	for i := 0; i < len(template); {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				out.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			name := template[i+1 : i+end]
			if name == "" || strings.ContainsAny(name, " \t\n{") {
				return "", fmt.Errorf("malformed placeholder %q at offset %d", template[i:i+end+1], i)
			}
			value, ok := values[name]
			if !ok {
				return "", &MissingValueError{Placeholder: name}
			}
			out.WriteString(value)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				out.WriteByte('}')
				i += 2
				continue
			}
			return "", fmt.Errorf("unmatched } at offset %d", i)
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String(), nil
}

// Placeholders lists the distinct placeholder names a template references,
// in first-appearance order. Used by profile validation to reject templates
// whose placeholders the pipeline cannot supply.
func Placeholders(template string) ([]string, error) {
	seen := make(map[string]bool)
	var names []string

	for i := 0; i < len(template); {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				i += 2
				continue
			}
			end := strings.IndexByte(template[i:], '}')
			if end < 0 {
				return nil, fmt.Errorf("unterminated placeholder at offset %d", i)
			}
			name := template[i+1 : i+end]
			if name == "" || strings.ContainsAny(name, " \t\n{") {
				return nil, fmt.Errorf("malformed placeholder %q at offset %d", template[i:i+end+1], i)
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				i += 2
				continue
			}
			return nil, fmt.Errorf("unmatched } at offset %d", i)
		default:
			i++
		}
	}
	return names, nil
}
