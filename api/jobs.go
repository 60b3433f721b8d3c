package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
)

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.eng.Stats(r.Context())
	if err != nil {
		a.handleError(w, r, "stats", err)
		return
	}
	respondJSON(w, r, http.StatusOK, st)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	state := job.StatePending
	if s := r.URL.Query().Get("state"); s != "" {
		var ok bool
		if state, ok = job.ParseState(s); !ok {
			respondError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown state %q", s))
			return
		}
	}
	limit, offset, err := pagination(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	jobs, err := a.eng.Store().List(r.Context(), state, job.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		a.handleError(w, r, "list jobs", err)
		return
	}
	respondJSON(w, r, http.StatusOK, ListResponse{Jobs: NewJobResponses(jobs), Limit: limit, Offset: offset})
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := pathJobID(w, r)
	if !ok {
		return
	}
	j, err := a.eng.Store().Get(r.Context(), jobID)
	if err != nil {
		a.handleError(w, r, "get job", err)
		return
	}
	respondJSON(w, r, http.StatusOK, NewJobResponse(j))
}

func (a *API) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.validator.Struct(req); err != nil {
		respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	var opts []job.Option
	if req.MaxRetries != nil {
		opts = append(opts, job.WithMaxRetries(*req.MaxRetries))
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d < 0 {
			respondError(w, r, http.StatusBadRequest, "timeout must be a non-negative duration")
			return
		}
		opts = append(opts, job.WithTimeout(d))
	}

	jobID, err := a.eng.Enqueue(r.Context(), req.Type, req.Payload, opts...)
	if err != nil {
		a.handleError(w, r, "enqueue", err)
		return
	}
	respondJSON(w, r, http.StatusCreated, EnqueueResponse{ID: jobID.String()})
}

func pathJobID(w http.ResponseWriter, r *http.Request) (id.JobID, bool) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobId"))
	if err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid job ID")
		return id.Nil, false
	}
	return jobID, true
}

