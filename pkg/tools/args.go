package tools

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stringArg extracts a required string argument from the args map.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required and must be a non-empty string", key)
	}
	return v, nil
}

// intArgOrDefault extracts an integer argument from the args map, returning
// defaultVal if missing, invalid, or below 1. Handles float64 (from JSON
// unmarshal), int, and int64 value types.
func intArgOrDefault(args map[string]any, key string, defaultVal int) int {
	v, exists := args[key]
	if !exists {
		return defaultVal
	}
	var n int
	switch val := v.(type) {
	case float64:
		n = int(val)
	case int:
		n = val
	case int64:
		n = int(val)
	default:
		return defaultVal
	}
	if n < 1 {
		return defaultVal
	}
	return n
}

// boolArg extracts an optional boolean argument, defaulting to false.
func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// jsonResult marshals a response map into an ExecResult.
func jsonResult(response map[string]any) (*ExecResult, error) {
	content, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &ExecResult{Content: string(content)}, nil
}

// errorResult creates a failed JSON response. Tool-domain errors are reported
// this way so the model sees them in the transcript.
func errorResult(msg string) (*ExecResult, error) {
	res, err := jsonResult(map[string]any{
		"success": false,
		"error":   msg,
	})
	if err != nil {
		return nil, err
	}
	res.Failed = true
	res.Error = msg
	return res, nil
}

// shellQuote single-quotes s for safe interpolation into an sh -c script.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
