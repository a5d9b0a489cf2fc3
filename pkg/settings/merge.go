package settings

import "fmt"

// MergeMode selects how a patch is folded into stored settings.
type MergeMode string

const (
	// Shallow replaces each top-level group present in the patch wholesale,
	// so fields of a partially supplied group that the patch omits are dropped.
	Shallow MergeMode = "shallow"
	// Deep merges nested objects key by key.
	Deep MergeMode = "deep"
)

// ParseMergeMode maps a configuration value to a MergeMode.
func ParseMergeMode(s string) (MergeMode, error) {
	switch MergeMode(s) {
	case Shallow, "":
		return Shallow, nil
	case Deep:
		return Deep, nil
	}
	return "", fmt.Errorf("unknown merge mode %q", s)
}

// Merge returns existing with patch applied. Neither argument is modified.
func Merge(existing, patch map[string]any, mode MergeMode) map[string]any {
	out := make(map[string]any, len(existing)+len(patch))
	for k, v := range existing {
		out[k] = clone(v)
	}

	for k, v := range patch {
		if mode == Deep {
			prev, prevIsObj := out[k].(map[string]any)
			next, nextIsObj := v.(map[string]any)
			if prevIsObj && nextIsObj {
				out[k] = Merge(prev, next, Deep)
				continue
			}
		}
		out[k] = clone(v)
	}
	return out
}

func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = clone(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = clone(vv)
		}
		return s
	default:
		return v
	}
}
