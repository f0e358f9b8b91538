package conf

// MergeDefaults merges maps into one DefaultConfig with every key
// moved under the ns namespace. Later maps win on conflicting keys.
// An empty ns merges the keys as they are.
func MergeDefaults[M ~map[string]V, V any](ns string, maps ...M) DefaultConfig {
	prefix := ""
	if ns != "" {
		prefix = ns + "."
	}

	merged := DefaultConfig{}
	for _, m := range maps {
		for key, val := range m {
			merged[prefix+key] = val
		}
	}

	return merged
}
