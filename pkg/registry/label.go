package registry

import (
	"fmt"
	"regexp"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\{([\w.]+)\}`)

// safeFields are the identity fields any display template may reference,
// regardless of entity kind.
var safeFields = map[string]bool{
	"id":   true,
	"code": true,
	"name": true,
	"hrid": true,
}

// templateTokens extracts the field tokens of a display template.
func templateTokens(template string) []string {
	matches := tokenPattern.FindAllStringSubmatch(template, -1)
	tokens := make([]string, 0, len(matches))
	for _, m := range matches {
		tokens = append(tokens, m[1])
	}
	return tokens
}

// safeTemplateField reports whether a template token is allowed: the shared
// identity set plus the entity's own declared columns.
func safeTemplateField(cfg *EntityConfig, token string) bool {
	return safeFields[token] || cfg.HasColumn(token)
}

// RenderLabel builds the human-readable label for a record of this kind.
// Missing or nil fields degrade per token; a template that resolves to
// nothing at all degrades to "<kind> <id>". Rendering never fails: one bad
// record must not abort a whole option rebuild.
func (c *EntityConfig) RenderLabel(record map[string]interface{}) string {
	if c.FKDisplayTemplate == "" {
		return fallbackLabel(c.Kind, record)
	}

	resolved := false
	label := tokenPattern.ReplaceAllStringFunc(c.FKDisplayTemplate, func(token string) string {
		field := token[1 : len(token)-1]
		value, ok := record[field]
		if !ok || value == nil {
			return ""
		}
		resolved = true
		return coerceString(value)
	})

	label = strings.TrimFunc(label, func(r rune) bool {
		return r == ' ' || r == '-' || r == '/' || r == ':'
	})
	if !resolved || label == "" {
		return fallbackLabel(c.Kind, record)
	}
	return label
}

func fallbackLabel(kind string, record map[string]interface{}) string {
	if id, ok := record["id"]; ok && id != nil {
		return fmt.Sprintf("%s %s", kind, coerceString(id))
	}
	return kind
}

func coerceString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		// Whole floats render without the trailing ".0" that json and some
		// drivers introduce for integer columns.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
