package api

import (
	"net/http"
	"time"

	"github.com/xraph/workq/job"
)

func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pagination(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	jobs, err := a.eng.DLQ().List(r.Context(), job.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		a.handleError(w, r, "list dlq", err)
		return
	}
	respondJSON(w, r, http.StatusOK, ListResponse{Jobs: NewJobResponses(jobs), Limit: limit, Offset: offset})
}

func (a *API) replayDLQ(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	j, err := a.eng.DLQ().Replay(r.Context(), jobID)
	if err != nil {
		a.handleError(w, r, "replay dlq", err)
		return
	}
	respondJSON(w, r, http.StatusCreated, NewJobResponse(j))
}

// purgeDLQ removes dead-lettered jobs finished before the RFC 3339
// "before" parameter, or all of them when it is absent.
func (a *API) purgeDLQ(w http.ResponseWriter, r *http.Request) {
	var before time.Time
	if s := r.URL.Query().Get("before"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		before = t
	}
	n, err := a.eng.DLQ().Purge(r.Context(), before)
	if err != nil {
		a.handleError(w, r, "purge dlq", err)
		return
	}
	respondJSON(w, r, http.StatusOK, PurgeResponse{Purged: n})
}
