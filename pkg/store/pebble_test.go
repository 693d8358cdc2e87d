package store

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) {
	t.Helper()
	if err := Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = Close() })
}

func TestActionsKeyRoundTrip(t *testing.T) {
	key, err := ActionsKey("r1")
	if err != nil {
		t.Fatalf("ActionsKey: %v", err)
	}
	if got := ReportIDFromKey(key); got != "r1" {
		t.Fatalf("ReportIDFromKey(%q) = %q", key, got)
	}
	if _, err := ActionsKey("a:b"); err == nil {
		t.Fatal("expected error for id containing ':'")
	}
	if _, err := ActionsKey(""); err == nil {
		t.Fatal("expected error for empty id")
	}
	if got := ReportIDFromKey("other:r1:actions2"); got != "" {
		t.Fatalf("expected no id from foreign key, got %q", got)
	}
}

func TestMergeCreatesAndPatches(t *testing.T) {
	openTestDB(t)
	key, _ := ActionsKey("r1")

	if err := Merge(key, map[string]any{"1": map[string]any{"action_kind": "ADDCOMMENT"}}); err != nil {
		t.Fatalf("Merge create: %v", err)
	}
	if err := Merge(key, map[string]any{"1": map[string]any{"pending_action": "add"}}); err != nil {
		t.Fatalf("Merge patch: %v", err)
	}

	raw, err := Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var coll map[string]map[string]any
	if err := json.Unmarshal(raw, &coll); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	a := coll["1"]
	if a["action_kind"] != "ADDCOMMENT" || a["pending_action"] != "add" {
		t.Fatalf("fields not merged: %#v", a)
	}
}

func TestMergeNullDeletesEntry(t *testing.T) {
	openTestDB(t)
	key, _ := ActionsKey("r1")
	_ = Merge(key, map[string]any{"1": map[string]any{"action_kind": "ADDCOMMENT"}, "2": map[string]any{"action_kind": "ADDCOMMENT"}})

	if err := Merge(key, map[string]any{"2": nil}); err != nil {
		t.Fatalf("Merge delete: %v", err)
	}
	coll, err := GetActions("r1")
	if err != nil {
		t.Fatalf("GetActions: %v", err)
	}
	if _, ok := coll["2"]; ok {
		t.Fatalf("entry 2 not deleted: %#v", coll)
	}
	if _, ok := coll["1"]; !ok {
		t.Fatalf("entry 1 lost: %#v", coll)
	}
}

func TestSubscribeDeliversInCommitOrder(t *testing.T) {
	openTestDB(t)
	key, _ := ActionsKey("r1")

	var gotKeys []string
	var gotVals [][]byte
	Subscribe(ActionsPrefix(), func(value []byte, k string) {
		gotKeys = append(gotKeys, k)
		gotVals = append(gotVals, value)
	})

	_ = Merge(key, map[string]any{"1": map[string]any{"ts": 1}})
	_ = Merge(key, map[string]any{"2": map[string]any{"ts": 2}})

	if len(gotKeys) != 2 {
		t.Fatalf("expected 2 deliveries, got %d", len(gotKeys))
	}
	for _, k := range gotKeys {
		if k != key {
			t.Fatalf("unexpected key %q", k)
		}
	}
	// second delivery carries both entries
	var coll map[string]map[string]any
	if err := json.Unmarshal(gotVals[1], &coll); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(coll) != 2 {
		t.Fatalf("expected merged collection of 2, got %#v", coll)
	}
}

func TestSubscribeIgnoresForeignPrefix(t *testing.T) {
	openTestDB(t)
	calls := 0
	Subscribe("other:", func(value []byte, k string) { calls++ })
	key, _ := ActionsKey("r1")
	_ = Merge(key, map[string]any{"1": map[string]any{"ts": 1}})
	if calls != 0 {
		t.Fatalf("expected no deliveries, got %d", calls)
	}
}

func TestListActionKeys(t *testing.T) {
	openTestDB(t)
	k1, _ := ActionsKey("a")
	k2, _ := ActionsKey("b")
	_ = Merge(k1, map[string]any{"1": map[string]any{"ts": 1}})
	_ = Merge(k2, map[string]any{"1": map[string]any{"ts": 1}})

	keys, err := ListActionKeys()
	if err != nil {
		t.Fatalf("ListActionKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}
