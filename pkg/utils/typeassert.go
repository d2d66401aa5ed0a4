// Package utils provides utility functions for type assertions, identifiers, and other common operations.
package utils

import "fmt"

// SafeAssert safely performs type assertion and returns the value and success status.
func SafeAssert[T any](value any) (T, bool) {
	if v, ok := value.(T); ok {
		return v, true
	}
	var zero T
	return zero, false
}

// MustAssert performs type assertion and panics with descriptive message if it fails.
func MustAssert[T any](value any, context string) T {
	if v, ok := value.(T); ok {
		return v
	}
	panic(fmt.Sprintf("type assertion failed in %s: expected %T, got %T", context, *new(T), value))
}

// GetMapField safely gets a field from a map[string]any and asserts its type.
// Tool call parameters arrive as map[string]any from JSON, so this is the
// standard way to pull a typed argument out of them.
func GetMapField[T any](m map[string]any, key string) (T, error) {
	var zero T
	value, exists := m[key]
	if !exists {
		return zero, fmt.Errorf("field '%s' not found in map", key)
	}

	if typedValue, ok := value.(T); ok {
		return typedValue, nil
	}

	return zero, fmt.Errorf("field '%s' expected type %T, got %T", key, zero, value)
}

// GetMapFieldOr safely gets a field from a map[string]any with a default value.
func GetMapFieldOr[T any](m map[string]any, key string, defaultValue T) T {
	if value, err := GetMapField[T](m, key); err == nil {
		return value
	}
	return defaultValue
}
