package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"reportdb/pkg/models"
	"reportdb/pkg/reportcache"
	"reportdb/pkg/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *reportcache.Cache) {
	t.Helper()
	if err := store.Open(filepath.Join(t.TempDir(), "db")); err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	c := reportcache.New(reportcache.StoreMerger{})
	c.Attach()
	srv := httptest.NewServer(Handler(c))
	t.Cleanup(srv.Close)
	return srv, c
}

func seedActions(t *testing.T, reportID string, coll map[string]models.ReportAction) {
	t.Helper()
	key, err := store.ActionsKey(reportID)
	if err != nil {
		t.Fatalf("ActionsKey: %v", err)
	}
	raw, _ := json.Marshal(coll)
	if err := store.Set(key, raw); err != nil {
		t.Fatalf("store.Set: %v", err)
	}
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("unmarshal %q: %v", body, err)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestListActions(t *testing.T) {
	srv, _ := newTestServer(t)
	seedActions(t, "r1", map[string]models.ReportAction{
		"1": {SequenceNumber: 1, Kind: models.KindAddComment, Message: []models.MessagePart{{HTML: "hi"}}},
		"2": {SequenceNumber: 2, Kind: models.KindAddComment, Message: []models.MessagePart{{HTML: "bye"}}},
	})

	resp, err := http.Get(srv.URL + "/v1/reports/r1/actions")
	if err != nil {
		t.Fatalf("GET actions: %v", err)
	}
	var got struct {
		Report  string                `json:"report"`
		MaxSeq  int64                 `json:"max_sequence_number"`
		Actions []models.ReportAction `json:"actions"`
	}
	decodeBody(t, resp, &got)
	if got.Report != "r1" || got.MaxSeq != 2 || len(got.Actions) != 2 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if got.Actions[0].SequenceNumber != 1 || got.Actions[1].SequenceNumber != 2 {
		t.Fatalf("actions not ordered: %+v", got.Actions)
	}
}

func TestDeletedCount(t *testing.T) {
	srv, _ := newTestServer(t)
	seedActions(t, "r1", map[string]models.ReportAction{
		"1": {SequenceNumber: 1, Kind: models.KindAddComment, Message: []models.MessagePart{{HTML: "hi"}}},
		"2": {SequenceNumber: 2, Kind: models.KindAddComment, Message: []models.MessagePart{{HTML: ""}}},
	})

	resp, err := http.Get(srv.URL + "/v1/reports/r1/deleted-count?after=0")
	if err != nil {
		t.Fatalf("GET deleted-count: %v", err)
	}
	var got map[string]int
	decodeBody(t, resp, &got)
	if got["deleted_comments"] != 1 {
		t.Fatalf("expected 1 deleted comment, got %v", got)
	}

	resp, err = http.Get(srv.URL + "/v1/reports/r1/deleted-count?after=nope")
	if err != nil {
		t.Fatalf("GET deleted-count: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad after, got %d", resp.StatusCode)
	}
}

func TestLastMessageWithOverlay(t *testing.T) {
	srv, _ := newTestServer(t)
	seedActions(t, "r1", map[string]models.ReportAction{
		"1": {SequenceNumber: 1, Kind: models.KindAddComment, Message: []models.MessagePart{{HTML: "hi"}}},
	})

	resp, err := http.Get(srv.URL + "/v1/reports/r1/last-message")
	if err != nil {
		t.Fatalf("GET last-message: %v", err)
	}
	var got map[string]string
	decodeBody(t, resp, &got)
	if got["text"] != "hi" {
		t.Fatalf("expected hi, got %v", got)
	}

	overlay := `{"2": {"action_kind": "ADDCOMMENT", "message": [{"html": "draft"}]}}`
	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/reports/r1/last-message", strings.NewReader(overlay))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET last-message with overlay: %v", err)
	}
	decodeBody(t, resp, &got)
	if got["text"] != "draft" {
		t.Fatalf("expected draft, got %v", got)
	}
}

func TestLastActionNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/v1/reports/empty/last-action")
	if err != nil {
		t.Fatalf("GET last-action: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestUpdateMessageEndpoint(t *testing.T) {
	srv, c := newTestServer(t)
	seedActions(t, "r1", map[string]models.ReportAction{
		"1": {SequenceNumber: 1, Kind: models.KindAddComment, Message: []models.MessagePart{{HTML: "old"}}},
	})

	body := bytes.NewReader([]byte(`{"type": "COMMENT", "html": "new"}`))
	resp, err := http.Post(srv.URL+"/v1/reports/r1/actions/1/message", "application/json", body)
	if err != nil {
		t.Fatalf("POST message: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	// synchronous merger: the mirror already caught up
	if got := c.LastVisibleMessageText("r1", nil); got != "new" {
		t.Fatalf("expected new, got %q", got)
	}
}

func TestDeleteActionEndpoint(t *testing.T) {
	srv, c := newTestServer(t)
	seedActions(t, "r1", map[string]models.ReportAction{
		"1": {SequenceNumber: 1, Kind: models.KindAddComment, Message: []models.MessagePart{{HTML: "hi"}}},
		"2": {SequenceNumber: 2, Kind: models.KindAddComment, Message: []models.MessagePart{{HTML: "local"}}, Pending: models.PendingAdd},
	})

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/reports/r1/actions/2?pending=add", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE action: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if got := c.Actions("r1"); len(got) != 1 || got[0].SequenceNumber != 1 {
		t.Fatalf("pending add not removed: %+v", got)
	}
}

func TestBadSequenceNumber(t *testing.T) {
	srv, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/v1/reports/r1/actions/0", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE action: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
