package reportcache

import (
	"encoding/json"
	"sort"

	"reportdb/pkg/logger"
	"reportdb/pkg/models"
	"reportdb/pkg/utils"
)

// Overlay is a transient patch set mapping sequence number to a partial
// action, merged into query results for a single call. It is never
// persisted and never touches the mirror.
type Overlay map[int64]map[string]any

// mergeOverlay returns a new ordered action sequence with overlay patches
// applied: patched fields override mirrored ones, patch entries for
// unknown sequence numbers become new actions, and the result is
// re-flattened by ascending sequence number. The input slice is not
// modified.
func mergeOverlay(list []models.ReportAction, overlay Overlay) []models.ReportAction {
	if len(overlay) == 0 {
		return append([]models.ReportAction(nil), list...)
	}
	out := make([]models.ReportAction, 0, len(list)+len(overlay))
	seen := make(map[int64]bool, len(overlay))
	for _, a := range list {
		if patch, ok := overlay[a.SequenceNumber]; ok && a.SequenceNumber > 0 {
			out = append(out, patchAction(a, patch))
			seen[a.SequenceNumber] = true
			continue
		}
		out = append(out, a)
	}
	for seq, patch := range overlay {
		if seen[seq] {
			continue
		}
		a := actionFromPatch(seq, patch)
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SequenceNumber < out[j].SequenceNumber
	})
	return out
}

// patchAction deep-merges a partial action onto a copy of a. Malformed
// patches degrade to the original action rather than failing the query.
func patchAction(a models.ReportAction, patch map[string]any) models.ReportAction {
	raw, err := json.Marshal(a)
	if err != nil {
		return a
	}
	base := map[string]any{}
	if err := json.Unmarshal(raw, &base); err != nil {
		return a
	}
	merged, err := json.Marshal(utils.DeepMerge(base, patch))
	if err != nil {
		return a
	}
	var out models.ReportAction
	if err := json.Unmarshal(merged, &out); err != nil {
		logger.Warn("overlay_patch_invalid", "seq", a.SequenceNumber, "error", err)
		return a
	}
	return out
}

// actionFromPatch builds a speculative action from an overlay entry with
// no mirrored counterpart.
func actionFromPatch(seq int64, patch map[string]any) models.ReportAction {
	var a models.ReportAction
	raw, err := json.Marshal(patch)
	if err == nil {
		_ = json.Unmarshal(raw, &a)
	}
	a.SequenceNumber = seq
	return a
}
