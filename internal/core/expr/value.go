package expr

// Value is a JSON-like expression value: nil, float64, string, []any or
// map[string]any.
type Value = any

// convertValue normalizes an arbitrary decoded value into the expression
// value model. Numbers, strings, sequences and keyed mappings pass through
// recursively; every other kind becomes nil.
func convertValue(v any) Value {
	switch v := v.(type) {
	case float64:
		return v
	case string:
		return v
	case []any:
		out := make([]any, 0, len(v))
		for _, m := range v {
			out = append(out, convertValue(m))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, m := range v {
			out[k] = convertValue(m)
		}
		return out
	}
	return nil
}
