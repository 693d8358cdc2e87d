package ingest

import (
	"path/filepath"
	"testing"
	"time"

	"reportdb/pkg/store"
)

func TestTryEnqueueFull(t *testing.T) {
	q := NewQueue(2)
	if err := q.TryEnqueue("k", []byte(`{}`)); err != nil {
		t.Fatalf("enqueue 1: %v", err)
	}
	if err := q.TryEnqueue("k", []byte(`{}`)); err != nil {
		t.Fatalf("enqueue 2: %v", err)
	}
	if err := q.TryEnqueue("k", []byte(`{}`)); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 drop, got %d", q.Dropped())
	}
	if q.Len() != 2 || q.Cap() != 2 {
		t.Fatalf("len/cap mismatch: %d/%d", q.Len(), q.Cap())
	}
	q.CloseAndDrain()
}

func TestRunWorkerPreservesOrder(t *testing.T) {
	q := NewQueue(8)
	_ = q.TryEnqueue("a", []byte(`{"n":1}`))
	_ = q.TryEnqueue("b", []byte(`{"n":2}`))

	var keys []string
	done := make(chan struct{})
	go func() {
		q.RunWorker(nil, func(op *Op) error {
			keys = append(keys, op.Key)
			if len(keys) == 2 {
				close(done)
			}
			return nil
		})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not process items")
	}
	if keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("order lost: %v", keys)
	}
	q.CloseAndDrain()
}

func TestItemDoneIdempotent(t *testing.T) {
	it := makeItem("k", []byte(`{"x":1}`))
	it.Done()
	it.Done() // second call must be a no-op
	if it.Op != nil {
		t.Fatal("op not released")
	}
}

func TestAsyncMergerAppliesThroughStore(t *testing.T) {
	if err := store.Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	q := NewQueue(8)
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	StartWorkers(q, 1, stop)

	m := NewAsyncMerger(q)
	key, _ := store.ActionsKey("r1")
	patch := map[string]any{"1": map[string]any{"action_kind": "ADDCOMMENT"}}
	if err := m.Merge(key, patch); err != nil {
		t.Fatalf("Merge: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		coll, err := store.GetActions("r1")
		if err == nil {
			if _, ok := coll["1"]; ok {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("patch never applied")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAsyncMergerFullQueueDoesNotError(t *testing.T) {
	q := NewQueue(1)
	_ = q.TryEnqueue("k", []byte(`{}`))
	m := NewAsyncMerger(q)
	if err := m.Merge("k2", map[string]any{"a": 1}); err != nil {
		t.Fatalf("full queue must be fire-and-forget, got %v", err)
	}
	if q.Dropped() != 1 {
		t.Fatalf("expected 1 drop, got %d", q.Dropped())
	}
	q.CloseAndDrain()
}
