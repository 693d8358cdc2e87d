// Package reportcache maintains an in-memory mirror of each report's
// persisted action log and answers derived-view queries over it. The
// mirror is fed exclusively by store subscription callbacks; optimistic
// mutations go the other way, as merge patches handed to a Merger, and
// close the loop asynchronously through the same subscription path.
package reportcache

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"

	"reportdb/pkg/logger"
	"reportdb/pkg/markup"
	"reportdb/pkg/models"
	"reportdb/pkg/store"
)

// Merger applies a merge patch to the persisted store. Implementations may
// apply synchronously (StoreMerger) or schedule the write and return
// immediately (ingest.AsyncMerger); completion is only ever observed
// through the subscription callback repopulating the mirror.
type Merger interface {
	Merge(key string, patch map[string]any) error
}

// StoreMerger applies patches directly against the store, synchronously.
type StoreMerger struct{}

func (StoreMerger) Merge(key string, patch map[string]any) error {
	return store.Merge(key, patch)
}

// Cache holds the per-report action log mirror and the derived sequence
// index. Entries are created lazily on the first subscription delivery for
// a report and live for the process lifetime.
type Cache struct {
	mu      sync.RWMutex
	actions map[string][]models.ReportAction
	maxSeq  map[string]int64

	merger Merger
}

// New constructs an empty cache whose mutations go through merger.
func New(merger Merger) *Cache {
	return &Cache{
		actions: make(map[string][]models.ReportAction),
		maxSeq:  make(map[string]int64),
		merger:  merger,
	}
}

// Attach registers the cache on the store's subscription feed for report
// action collections. Call once after store.Open.
func (c *Cache) Attach() {
	store.Subscribe(store.ActionsPrefix(), c.onStoreChange)
}

// onStoreChange is the sole write path into the mirror. The delivered
// value replaces the mirror entry for the report wholesale, then the
// sequence index is reconciled against the same data. Missing keys or
// payloads are no-ops; the previous mirror state is retained.
func (c *Cache) onStoreChange(value []byte, key string) {
	reportID := store.ReportIDFromKey(key)
	if reportID == "" {
		return
	}
	if len(value) == 0 {
		return
	}
	var coll map[string]models.ReportAction
	if err := json.Unmarshal(value, &coll); err != nil {
		logger.Warn("cache_invalid_collection", "key", key, "error", err)
		return
	}
	list := flattenCollection(coll)

	c.mu.Lock()
	c.actions[reportID] = list
	c.reconcileMaxSeqLocked(reportID, list)
	c.mu.Unlock()
	callbacksTotal.Inc()
	logger.Debug("cache_mirror_updated", "report", reportID, "actions", len(list))
}

// flattenCollection orders a delivered collection by ascending sequence
// key, which matches the store's insertion order for committed actions.
// Entries under non-numeric keys are dropped.
func flattenCollection(coll map[string]models.ReportAction) []models.ReportAction {
	type entry struct {
		seq int64
		a   models.ReportAction
	}
	entries := make([]entry, 0, len(coll))
	for k, a := range coll {
		seq, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			logger.Warn("cache_bad_sequence_key", "key", k)
			continue
		}
		entries = append(entries, entry{seq: seq, a: a})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]models.ReportAction, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.a)
	}
	return out
}

// reconcileMaxSeqLocked updates the sequence index for reportID from a
// freshly mirrored log. The last non-loading action in log order wins; if
// there is none, or it carries no sequence number, the previous index
// entry is left untouched rather than cleared.
func (c *Cache) reconcileMaxSeqLocked(reportID string, list []models.ReportAction) {
	for i := len(list) - 1; i >= 0; i-- {
		a := list[i]
		if a.IsLoading {
			continue
		}
		if a.SequenceNumber <= 0 {
			return
		}
		c.maxSeq[reportID] = a.SequenceNumber
		return
	}
}

// MaxSequenceNumber returns the newest committed sequence number for a
// report, with ok=false when no committed action has been mirrored yet.
func (c *Cache) MaxSequenceNumber(reportID string) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.maxSeq[reportID]
	return v, ok
}

// Actions returns a snapshot copy of the mirrored log for a report.
func (c *Cache) Actions(reportID string) []models.ReportAction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.ReportAction(nil), c.actions[reportID]...)
}

// DeletedCommentsCount counts ADDCOMMENT actions after the given sequence
// number whose comment has been tombstoned (blank html). Other kinds and
// actions at or below the threshold never contribute. An unmirrored
// report yields 0.
func (c *Cache) DeletedCommentsCount(reportID string, after int64) int {
	c.mu.RLock()
	list := c.actions[reportID]
	c.mu.RUnlock()
	n := 0
	for _, a := range list {
		if a.SequenceNumber > after && models.IsDeleted(a) {
			n++
		}
	}
	return n
}

// LastVisibleMessageText returns the formatted plain-text preview of the
// most recent non-deleted action's message, with overlay applied for the
// duration of the query only. When no visible action exists the empty
// string flows through the converters.
func (c *Cache) LastVisibleMessageText(reportID string, overlay Overlay) string {
	a, ok := c.LastVisibleAction(reportID, overlay)
	html := ""
	if ok {
		html = a.FirstHTML()
	}
	return markup.FormatLastMessage(markup.ToText(html))
}

// LastVisibleAction returns the most recent action that is not a deleted
// comment, after overlay merge; ok=false when none exists.
func (c *Cache) LastVisibleAction(reportID string, overlay Overlay) (models.ReportAction, bool) {
	c.mu.RLock()
	list := c.actions[reportID]
	c.mu.RUnlock()
	merged := mergeOverlay(list, overlay)
	for i := len(merged) - 1; i >= 0; i-- {
		if !models.IsDeleted(merged[i]) {
			return merged[i], true
		}
	}
	return models.ReportAction{}, false
}

// UpdateMessage issues a merge patch replacing the action's message with a
// single part. Fire-and-forget: the mirror catches up on the next
// subscription delivery.
//
// TODO: recompute the report's unread marker when an edit empties the
// message; the persisted-side shape for that is not settled yet.
func (c *Cache) UpdateMessage(reportID string, seq int64, part models.MessagePart) error {
	key, err := store.ActionsKey(reportID)
	if err != nil {
		return err
	}
	patch := map[string]any{
		strconv.FormatInt(seq, 10): map[string]any{
			"message": []models.MessagePart{part},
		},
	}
	return c.merger.Merge(key, patch)
}

// DeleteOptimisticAction removes or reverts a local optimistic action.
// A pending add never reached the store, so its entry is deleted outright;
// any other pending state means a previously confirmed action is being
// rolled back, so only pending_action and errors are cleared.
func (c *Cache) DeleteOptimisticAction(reportID string, seq int64, pending models.PendingAction) error {
	key, err := store.ActionsKey(reportID)
	if err != nil {
		return err
	}
	sk := strconv.FormatInt(seq, 10)
	var patch map[string]any
	if pending == models.PendingAdd {
		patch = map[string]any{sk: nil}
	} else {
		patch = map[string]any{sk: map[string]any{
			"pending_action": nil,
			"errors":         nil,
		}}
	}
	return c.merger.Merge(key, patch)
}
