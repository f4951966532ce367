package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"

	"github.com/nugget/steward/internal/llm"
)

// Validate checks input against schema: required properties present,
// declared primitive types respected and enum values allowed.
// Undeclared properties are ignored.
func Validate(schema llm.Schema, input map[string]any) error {
	var missing []string
	for _, name := range schema.Required {
		if v, ok := input[name]; !ok || v == nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required %s", strings.Join(missing, ", "))
	}

	names := make([]string, 0, len(input))
	for name := range input {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := schema.Properties[name]
		if !ok {
			continue
		}
		v := input[name]
		if v == nil {
			continue
		}
		if !hasType(v, prop.Type) {
			return fmt.Errorf("%s must be %s, got %s", name, article(prop.Type), describe(v))
		}
		if len(prop.Enum) > 0 {
			s, _ := v.(string)
			if !slices.Contains(prop.Enum, s) {
				return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(prop.Enum, ", "), s)
			}
		}
	}
	return nil
}

func hasType(v any, typ string) bool {
	switch typ {
	case "", "any":
		return true
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "integer":
		f, ok := toFloat(v)
		return ok && f == math.Trunc(f)
	case "number":
		_, ok := toFloat(v)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func article(typ string) string {
	switch typ {
	case "integer", "object", "array":
		return "an " + typ
	}
	return "a " + typ
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
