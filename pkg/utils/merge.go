package utils

// DeepMerge merges patch into base and returns a new map; neither input is
// mutated. Merge rules follow JSON merge-patch for objects: a nil patch
// value deletes the entry, nested maps merge recursively, everything else
// overrides.
func DeepMerge(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		pm, pok := v.(map[string]any)
		bm, bok := out[k].(map[string]any)
		if pok && bok {
			out[k] = DeepMerge(bm, pm)
			continue
		}
		out[k] = v
	}
	return out
}
