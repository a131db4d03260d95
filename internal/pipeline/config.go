package pipeline

// CloneConfig deep-copies a sourceRequestConfig. Nested objects and arrays
// are copied; scalars (including json.Number) are shared. A nil config
// stays nil.
func CloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneConfig(t)
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// editable clones cfg for modification, starting from an empty object when
// the pipeline has no config.
func editable(cfg map[string]any) map[string]any {
	if out := CloneConfig(cfg); out != nil {
		return out
	}
	return map[string]any{}
}

func dateRangeParams(cfg map[string]any) map[string]any {
	params, ok := cfg["dateRangeParams"].(map[string]any)
	if !ok {
		params = map[string]any{}
		cfg["dateRangeParams"] = params
	}
	return params
}

// WithDateOverrides returns a copy of cfg pinned to [start, end].
func WithDateOverrides(cfg map[string]any, start, end string) map[string]any {
	out := editable(cfg)
	params := dateRangeParams(out)
	params["startTimeOverride"] = start
	params["endTimeOverride"] = end
	return out
}

// WithLookback returns a copy of cfg that pulls the last minutes minutes.
func WithLookback(cfg map[string]any, minutes int) map[string]any {
	out := editable(cfg)
	dateRangeParams(out)["lookbackMinutes"] = minutes
	return out
}
