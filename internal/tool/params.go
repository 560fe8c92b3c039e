package tool

import (
	"time"

	"github.com/araddon/dateparse"
)

func getString(input map[string]any, key string) string {
	v, _ := input[key].(string)
	return v
}

func getBool(input map[string]any, key string) bool {
	v, _ := input[key].(bool)
	return v
}

func getMap(input map[string]any, key string) map[string]any {
	v, _ := input[key].(map[string]any)
	return v
}

// getTime parses a model-supplied date string leniently (RFC3339, bare
// dates, and most common formats). Returns nil when absent or unparseable.
func getTime(input map[string]any, key string) *time.Time {
	raw := getString(input, key)
	if raw == "" {
		return nil
	}
	t, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}
	return &t
}
