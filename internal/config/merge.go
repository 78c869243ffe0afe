package config

// DeepMerge recursively merges src into dst and returns dst.
// Values in src override values in dst. Maps are merged key by key;
// lists and scalars are replaced wholesale, never element-wise.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	if src == nil {
		return dst
	}
	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = cloneValue(srcVal)
			continue
		}
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dstVal.(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
		} else {
			dst[key] = cloneValue(srcVal)
		}
	}
	return dst
}

// scrub walks merged against the default tree and repairs shape conflicts:
// wherever the default holds a subtree but the merged value is a leaf (or
// the other way around), the default wins. A malformed option therefore
// degrades to its default instead of failing the resolve.
func scrub(defaults, merged map[string]any) map[string]any {
	if merged == nil {
		return cloneMap(defaults)
	}
	for key, defVal := range defaults {
		mergedVal, exists := merged[key]
		if !exists {
			merged[key] = cloneValue(defVal)
			continue
		}
		switch dv := defVal.(type) {
		case map[string]any:
			mv, ok := mergedVal.(map[string]any)
			if !ok {
				merged[key] = cloneMap(dv)
				continue
			}
			merged[key] = scrub(dv, mv)
		case []any:
			if _, ok := mergedVal.([]any); !ok && mergedVal != nil {
				merged[key] = cloneSlice(dv)
			}
		default:
			if !scalarCompatible(defVal, mergedVal) {
				merged[key] = defVal
			}
		}
	}
	return merged
}

// scalarCompatible reports whether a user-supplied leaf can stand in for
// the default leaf without breaking the typed decode.
func scalarCompatible(defVal, userVal any) bool {
	if userVal == nil {
		return false
	}
	switch defVal.(type) {
	case string:
		_, ok := userVal.(string)
		return ok
	case bool:
		_, ok := userVal.(bool)
		return ok
	case int, int64, float64:
		switch userVal.(type) {
		case int, int64, float64:
			return true
		}
		return false
	default:
		return true
	}
}

func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		return cloneSlice(v)
	default:
		return val
	}
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for key, val := range src {
		out[key] = cloneValue(val)
	}
	return out
}

func cloneSlice(src []any) []any {
	if src == nil {
		return nil
	}
	out := make([]any, len(src))
	for i, val := range src {
		out[i] = cloneValue(val)
	}
	return out
}
