package scenario

import (
	"fmt"
	"strings"
)

func requiredString(args map[string]any, key string) string {
	value, ok := args[key]
	if !ok || value == nil {
		return ""
	}
	text, ok := value.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}

func readInt(args map[string]any, key string) (int, bool) {
	value, ok := args[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func optionalInt(args map[string]any, key string, fallback int) int {
	if value, ok := readInt(args, key); ok {
		return value
	}
	return fallback
}

func readBool(args map[string]any, key string) (bool, bool) {
	value, ok := args[key]
	if !ok || value == nil {
		return false, false
	}
	b, ok := value.(bool)
	return b, ok
}

// readOptionalString distinguishes an explicit nil from a string value.
func readOptionalString(args map[string]any, key string) (*string, error) {
	value, ok := args[key]
	if !ok || value == nil {
		return nil, nil
	}
	text, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("%s must be a string or nil", key)
	}
	return &text, nil
}

func readIntSlice(args map[string]any, key string) ([]int, error) {
	value, ok := args[key]
	if !ok || value == nil {
		return nil, nil
	}
	items, ok := value.([]any)
	if !ok {
		if m, isMap := value.(map[string]any); isMap && len(m) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("%s must be a list of integers", key)
	}
	out := make([]int, 0, len(items))
	for i, item := range items {
		n, ok := item.(int)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an integer", key, i+1)
		}
		out = append(out, n)
	}
	return out, nil
}

func describeOptional(value *string) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%q", *value)
}
