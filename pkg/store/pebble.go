package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"reportdb/pkg/logger"
	"reportdb/pkg/models"
	"reportdb/pkg/utils"
)

var (
	db     *pebble.DB
	dbPath string

	// writeMu serializes read-modify-write merges and the subscriber
	// notifications that follow them, so callbacks for a key are always
	// delivered in commit order.
	writeMu sync.Mutex

	subMu sync.RWMutex
	subs  []subscriber
)

// Callback receives the committed value for a changed key. A nil value
// means the key was deleted.
type Callback func(value []byte, key string)

type subscriber struct {
	prefix string
	cb     Callback
}

// Open opens (or creates) a Pebble database at the given path and keeps a
// global handle for simple usage in this package.
func Open(path string) error {
	var err error
	logger.Info("opening_pebble_db", "path", path)
	db, err = pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("pebble_open_failed", "path", path, "error", err)
		return err
	}
	dbPath = path
	logger.Info("pebble_opened", "path", path)
	return nil
}

// Close closes the opened pebble DB if present. Subscribers registered on
// the store are dropped.
func Close() error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return err
	}
	db = nil
	subMu.Lock()
	subs = nil
	subMu.Unlock()
	logger.Info("pebble_closed")
	return nil
}

// Ready reports whether the store is opened and ready.
func Ready() bool {
	return db != nil
}

// Subscribe registers cb to be invoked after every committed change to any
// key under prefix. Callbacks for a single key are delivered in commit
// order; there is no ordering guarantee across keys with different
// subscribers.
func Subscribe(prefix string, cb Callback) {
	subMu.Lock()
	subs = append(subs, subscriber{prefix: prefix, cb: cb})
	subMu.Unlock()
}

func notify(key string, value []byte) {
	subMu.RLock()
	list := subs
	subMu.RUnlock()
	for _, s := range list {
		if strings.HasPrefix(key, s.prefix) {
			s.cb(value, key)
			notificationsTotal.Inc()
		}
	}
}

// Get returns the raw value stored under key, or nil when the key does not
// exist.
func Get(key string) ([]byte, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, nil
}

// Set writes value under key and notifies subscribers.
func Set(key string, value []byte) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	if err := db.Set([]byte(key), value, pebble.Sync); err != nil {
		logger.Error("store_set_failed", "key", key, "error", err)
		return err
	}
	notify(key, value)
	return nil
}

// Merge applies a field-level deep JSON merge of patch onto the value
// stored under key and notifies subscribers with the merged result. A nil
// patch value for a map entry deletes that entry. A missing stored value
// merges against an empty object.
func Merge(key string, patch map[string]any) error {
	if db == nil {
		return fmt.Errorf("pebble not opened; call store.Open first")
	}
	writeMu.Lock()
	defer writeMu.Unlock()

	cur := map[string]any{}
	if raw, err := Get(key); err != nil {
		mergeFailures.Inc()
		return err
	} else if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cur); err != nil {
			mergeFailures.Inc()
			return fmt.Errorf("stored value under %s is not a JSON object: %w", key, err)
		}
	}

	merged := utils.DeepMerge(cur, patch)
	data, err := json.Marshal(merged)
	if err != nil {
		mergeFailures.Inc()
		return fmt.Errorf("failed to marshal merged value: %w", err)
	}
	if err := db.Set([]byte(key), data, pebble.Sync); err != nil {
		mergeFailures.Inc()
		logger.Error("store_merge_failed", "key", key, "error", err)
		return err
	}
	mergesTotal.Inc()
	logger.Debug("store_merged", "key", key, "bytes", len(data))
	notify(key, data)
	return nil
}

// GetActions returns the decoded action collection for a report, keyed by
// sequence-number string. A missing collection yields an empty map.
func GetActions(reportID string) (map[string]models.ReportAction, error) {
	key, err := ActionsKey(reportID)
	if err != nil {
		return nil, err
	}
	raw, err := Get(key)
	if err != nil {
		return nil, err
	}
	out := map[string]models.ReportAction{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("invalid actions collection for %s: %w", reportID, err)
	}
	return out, nil
}

// ListActionKeys returns all action collection keys in the store.
func ListActionKeys() ([]string, error) {
	if db == nil {
		return nil, fmt.Errorf("pebble not opened; call store.Open first")
	}
	prefix := []byte(keyPrefix)
	iter, err := db.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		k := string(iter.Key())
		if strings.HasSuffix(k, keySuffix) {
			out = append(out, k)
		}
	}
	return out, nil
}
