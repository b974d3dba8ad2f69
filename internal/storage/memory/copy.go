package memory

import (
	"reflect"

	"github.com/AnthonyGillesRudolfo/Restaurant-Ordering-Pipeline/internal/docstore"
)

func copyFields(in docstore.Fields) docstore.Fields {
	if in == nil {
		return nil
	}
	out := make(docstore.Fields, len(in))
	for k, v := range in {
		out[k] = copyValue(v)
	}
	return out
}

// copyValue deep copies the container shapes documents are built from so
// callers can never alias stored state.
func copyValue(v any) any {
	switch t := v.(type) {
	case docstore.Fields:
		return map[string]any(copyFields(t))
	case map[string]any:
		return map[string]any(copyFields(t))
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = copyValue(t[i])
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i := range t {
			out[i] = t[i]
		}
		return out
	default:
		return v
	}
}

func equalFields(a, b docstore.Fields) bool {
	return reflect.DeepEqual(map[string]any(a), map[string]any(b))
}
