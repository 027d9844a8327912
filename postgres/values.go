package postgres

import (
	"slices"
	"time"

	"github.com/kode4food/dispatch"
)

func sortedKeys(props map[string]any) []string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func textOf(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case dispatch.ID:
		return string(v), true
	case dispatch.EventType:
		return string(v), true
	default:
		return "", false
	}
}

func timeOf(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		return t, err == nil
	default:
		return time.Time{}, false
	}
}
