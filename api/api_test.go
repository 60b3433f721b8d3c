package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xraph/workq/api"
	"github.com/xraph/workq/engine"
	"github.com/xraph/workq/id"
	"github.com/xraph/workq/job"
	"github.com/xraph/workq/store/memory"
)

func newServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	eng, err := engine.New(memory.New(), nil)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	srv := httptest.NewServer(api.New(eng).Handler())
	t.Cleanup(srv.Close)
	return srv, eng
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

// deadLetter enqueues a job and drives it to the dead-letter state. Pending
// must be empty beforehand so the claim picks up this job.
func deadLetter(t *testing.T, eng *engine.Engine, jobType string) id.JobID {
	t.Helper()
	ctx := context.Background()
	jobID, err := eng.Enqueue(ctx, jobType, []byte(`{}`), job.WithMaxRetries(1))
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	claimed, err := eng.Store().Claim(ctx, id.NewWorkerID(), time.Minute)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claimed == nil || claimed.ID != jobID {
		t.Fatalf("Claim returned %v, want %s", claimed, jobID)
	}
	outcome, err := eng.Store().Fail(ctx, jobID, claimed.WorkerID, "boom", 0)
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if outcome != job.OutcomeDeadLettered {
		t.Fatalf("Fail outcome = %v, want dead_lettered", outcome)
	}
	return jobID
}

func TestHealth(t *testing.T) {
	srv, _ := newServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestEnqueueAndGet(t *testing.T) {
	srv, _ := newServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/v1/jobs",
		`{"type":"send-email","payload":{"to":"bob@example.com"},"max_retries":5,"timeout":"10s"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enqueue status = %d", resp.StatusCode)
	}
	created := decode[api.EnqueueResponse](t, resp)

	resp = do(t, http.MethodGet, srv.URL+"/v1/jobs/"+created.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	j := decode[api.JobResponse](t, resp)
	if j.Type != "send-email" || j.MaxRetries != 5 || j.Timeout != 10*time.Second {
		t.Errorf("job = %+v", j.Job)
	}
	if j.State != job.StatePending {
		t.Errorf("state = %s, want pending", j.State)
	}
	if string(j.Payload) != `{"to":"bob@example.com"}` || j.PayloadEncoding != api.PayloadJSON {
		t.Errorf("payload = %s (%s), want the JSON object as sent", j.Payload, j.PayloadEncoding)
	}
}

func TestEnqueue_Validation(t *testing.T) {
	srv, _ := newServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"type":`},
		{"missing type", `{"payload":{}}`},
		{"negative retries", `{"type":"x","max_retries":-1}`},
		{"bad timeout", `{"type":"x","timeout":"soon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+"/v1/jobs", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestGetJob_Errors(t *testing.T) {
	srv, _ := newServer(t)

	if resp := do(t, http.MethodGet, srv.URL+"/v1/jobs/not-an-id", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid id status = %d, want 400", resp.StatusCode)
	}
	resp := do(t, http.MethodGet, srv.URL+"/v1/jobs/"+id.NewJobID().String(), "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", resp.StatusCode)
	}
	if e := decode[api.ErrorResponse](t, resp); e.Error != "job not found" {
		t.Errorf("error body = %+v", e)
	}
}

func TestListJobs(t *testing.T) {
	srv, eng := newServer(t)
	for range 3 {
		if _, err := eng.Enqueue(context.Background(), "noop", nil); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	resp := do(t, http.MethodGet, srv.URL+"/v1/jobs?state=pending&limit=2", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	page := decode[api.ListResponse](t, resp)
	if len(page.Jobs) != 2 || page.Limit != 2 {
		t.Errorf("page = %d jobs, limit %d", len(page.Jobs), page.Limit)
	}

	resp = do(t, http.MethodGet, srv.URL+"/v1/jobs?state=completed", "")
	if page := decode[api.ListResponse](t, resp); len(page.Jobs) != 0 {
		t.Errorf("completed = %d jobs, want 0", len(page.Jobs))
	}

	for _, q := range []string{"state=running", "limit=0", "offset=-1"} {
		if resp := do(t, http.MethodGet, srv.URL+"/v1/jobs?"+q, ""); resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestJobResponse_PayloadEncoding(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		want     string
		encoding string
	}{
		{"json object", []byte(`{"to":"a@example.com"}`), `{"to":"a@example.com"}`, api.PayloadJSON},
		{"binary", []byte{0x81, 0xa2, 't', 'o'}, `"gaJ0bw=="`, api.PayloadBase64},
		{"empty", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := api.NewJobResponse(job.New("x", tt.payload, job.Options{}))
			if string(resp.Payload) != tt.want || resp.PayloadEncoding != tt.encoding {
				t.Errorf("payload = %s (%q), want %s (%q)", resp.Payload, resp.PayloadEncoding, tt.want, tt.encoding)
			}
		})
	}
}

func TestStats(t *testing.T) {
	srv, eng := newServer(t)
	deadLetter(t, eng, "broken")
	if _, err := eng.Enqueue(context.Background(), "noop", nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	resp := do(t, http.MethodGet, srv.URL+"/v1/stats", "")
	st := decode[engine.Stats](t, resp)
	if st.Pending != 1 || st.InFlight != 0 || st.DeadLetter != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestDLQ_ListReplayPurge(t *testing.T) {
	srv, eng := newServer(t)
	deadID := deadLetter(t, eng, "broken")
	deadLetter(t, eng, "broken")

	resp := do(t, http.MethodGet, srv.URL+"/v1/dlq", "")
	if page := decode[api.ListResponse](t, resp); len(page.Jobs) != 2 {
		t.Fatalf("dlq = %d jobs, want 2", len(page.Jobs))
	}

	resp = do(t, http.MethodPost, srv.URL+"/v1/dlq/"+deadID.String()+"/replay", "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("replay status = %d", resp.StatusCode)
	}
	replayed := decode[api.JobResponse](t, resp)
	if replayed.State != job.StatePending || replayed.Type != "broken" || replayed.ID == deadID {
		t.Errorf("replayed = %+v", replayed)
	}

	pendingID, err := eng.Enqueue(context.Background(), "noop", nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if resp := do(t, http.MethodPost, srv.URL+"/v1/dlq/"+pendingID.String()+"/replay", ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("replay of pending job status = %d, want 404", resp.StatusCode)
	}

	if resp := do(t, http.MethodDelete, srv.URL+"/v1/dlq?before=yesterday", ""); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad before status = %d, want 400", resp.StatusCode)
	}
	resp = do(t, http.MethodDelete, srv.URL+"/v1/dlq", "")
	if purged := decode[api.PurgeResponse](t, resp); purged.Purged != 2 {
		t.Errorf("purged = %d, want 2", purged.Purged)
	}
}
