package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"reportdb/pkg/models"
	"reportdb/pkg/reportcache"
	"reportdb/pkg/store"
	"reportdb/pkg/utils"
)

// Handler returns the JSON API for the report-action cache. Query
// endpoints read the mirror synchronously; mutation endpoints are thin
// fire-and-forget wrappers returning 202, with completion observable only
// through the subscription loop.
func Handler(c *reportcache.Cache) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if !store.Ready() {
			utils.JSONError(w, http.StatusServiceUnavailable, "store not ready")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/reports/{reportID}/actions", func(w http.ResponseWriter, req *http.Request) {
		reportID := mux.Vars(req)["reportID"]
		actions := c.Actions(reportID)
		maxSeq, _ := c.MaxSequenceNumber(reportID)
		_ = utils.JSONWrite(w, http.StatusOK, struct {
			Report  string                `json:"report"`
			MaxSeq  int64                 `json:"max_sequence_number"`
			Actions []models.ReportAction `json:"actions"`
		}{Report: reportID, MaxSeq: maxSeq, Actions: actions})
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/reports/{reportID}/deleted-count", func(w http.ResponseWriter, req *http.Request) {
		reportID := mux.Vars(req)["reportID"]
		after := int64(0)
		if v := req.URL.Query().Get("after"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				utils.JSONError(w, http.StatusBadRequest, "invalid after parameter")
				return
			}
			after = n
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]int{
			"deleted_comments": c.DeletedCommentsCount(reportID, after),
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/reports/{reportID}/last-message", func(w http.ResponseWriter, req *http.Request) {
		reportID := mux.Vars(req)["reportID"]
		ov, err := decodeOverlay(req)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid overlay")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, map[string]string{
			"text": c.LastVisibleMessageText(reportID, ov),
		})
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/reports/{reportID}/last-action", func(w http.ResponseWriter, req *http.Request) {
		reportID := mux.Vars(req)["reportID"]
		ov, err := decodeOverlay(req)
		if err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid overlay")
			return
		}
		a, ok := c.LastVisibleAction(reportID, ov)
		if !ok {
			utils.JSONError(w, http.StatusNotFound, "no visible action")
			return
		}
		_ = utils.JSONWrite(w, http.StatusOK, a)
	}).Methods(http.MethodGet)

	r.HandleFunc("/v1/reports/{reportID}/actions/{seq}/message", func(w http.ResponseWriter, req *http.Request) {
		reportID, seq, ok := pathTarget(w, req)
		if !ok {
			return
		}
		var part models.MessagePart
		if err := json.NewDecoder(req.Body).Decode(&part); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid message part json")
			return
		}
		if err := c.UpdateMessage(reportID, seq, part); err != nil {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodPost)

	r.HandleFunc("/v1/reports/{reportID}/actions/{seq}", func(w http.ResponseWriter, req *http.Request) {
		reportID, seq, ok := pathTarget(w, req)
		if !ok {
			return
		}
		pending := models.PendingAction(req.URL.Query().Get("pending"))
		if err := c.DeleteOptimisticAction(reportID, seq, pending); err != nil {
			utils.JSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}).Methods(http.MethodDelete)

	return r
}

// pathTarget extracts the report id and sequence number path variables,
// writing the error response itself on failure.
func pathTarget(w http.ResponseWriter, req *http.Request) (string, int64, bool) {
	vars := mux.Vars(req)
	reportID := vars["reportID"]
	seq, err := strconv.ParseInt(vars["seq"], 10, 64)
	if err != nil || seq <= 0 {
		utils.JSONError(w, http.StatusBadRequest, "invalid sequence number")
		return "", 0, false
	}
	return reportID, seq, true
}

// decodeOverlay reads an optional JSON overlay body mapping sequence
// number to a partial action. An empty body is an empty overlay.
func decodeOverlay(req *http.Request) (reportcache.Overlay, error) {
	if req.Body == nil {
		return nil, nil
	}
	var raw map[string]map[string]any
	dec := json.NewDecoder(req.Body)
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	ov := make(reportcache.Overlay, len(raw))
	for k, v := range raw {
		seq, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, err
		}
		ov[seq] = v
	}
	return ov, nil
}
