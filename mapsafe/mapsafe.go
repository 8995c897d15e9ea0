package mapsafe

import "time"

// Get retrieves a typed value from a map[string]any.
// JSON-decoded numbers arrive as float64, so int and float64 convert both ways.
// If the key is missing or the value cannot be converted, defaultValue is returned.
func Get[T any](m map[string]any, key string, defaultValue T) T {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case int:
		switch x := val.(type) {
		case int:
			return any(x).(T)
		case int64:
			return any(int(x)).(T)
		case float64:
			return any(int(x)).(T)
		}
	case float64:
		switch x := val.(type) {
		case float64:
			return any(x).(T)
		case float32:
			return any(float64(x)).(T)
		case int:
			return any(float64(x)).(T)
		}
	case string:
		if s, ok := val.(string); ok {
			return any(s).(T)
		}
	case bool:
		if b, ok := val.(bool); ok {
			return any(b).(T)
		}
	case time.Duration:
		switch x := val.(type) {
		case time.Duration:
			return any(x).(T)
		case string:
			if d, err := time.ParseDuration(x); err == nil {
				return any(d).(T)
			}
		case float64:
			return any(time.Duration(x * float64(time.Second))).(T)
		case int:
			return any(time.Duration(x) * time.Second).(T)
		}
	default:
		if v, ok := val.(T); ok {
			return v
		}
	}

	return defaultValue
}
