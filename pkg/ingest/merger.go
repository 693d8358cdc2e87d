package ingest

import (
	"encoding/json"
	"fmt"

	"reportdb/pkg/logger"
	"reportdb/pkg/store"
)

// AsyncMerger schedules merge patches on a bounded queue and returns
// immediately; background workers apply them to the store, whose
// subscription callbacks then repopulate the cache. A full queue drops the
// patch (counted) rather than blocking the caller.
type AsyncMerger struct {
	q *Queue
}

// NewAsyncMerger wraps a queue in the fire-and-forget Merger contract.
func NewAsyncMerger(q *Queue) *AsyncMerger {
	return &AsyncMerger{q: q}
}

func (m *AsyncMerger) Merge(key string, patch map[string]any) error {
	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal merge patch: %w", err)
	}
	if err := m.q.TryEnqueue(key, raw); err != nil {
		logger.Warn("merge_enqueue_dropped", "key", key, "error", err)
	}
	return nil
}

// StartWorkers launches n goroutines applying queued patches to the
// store. They exit when stop is closed or the queue is closed.
func StartWorkers(q *Queue, n int, stop <-chan struct{}) {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		go q.RunWorker(stop, applyOp)
	}
}

func applyOp(op *Op) error {
	var patch map[string]any
	if err := json.Unmarshal(op.Patch, &patch); err != nil {
		logger.Error("merge_patch_invalid", "key", op.Key, "error", err)
		return err
	}
	if err := store.Merge(op.Key, patch); err != nil {
		logger.Error("merge_apply_failed", "key", op.Key, "error", err)
		return err
	}
	appliedTotal.Inc()
	return nil
}
