package api

import (
	"encoding/json"

	"github.com/xraph/workq/job"
)

// EnqueueRequest is the body of POST /v1/jobs. Payload is stored as the
// raw JSON bytes it arrives as.
type EnqueueRequest struct {
	Type       string          `json:"type"                  validate:"required,max=128"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	MaxRetries *int            `json:"max_retries,omitempty" validate:"omitempty,min=0,max=1000"`
	Timeout    string          `json:"timeout,omitempty"`
}

// EnqueueResponse is returned after a successful enqueue.
type EnqueueResponse struct {
	ID string `json:"id"`
}

// Payload encodings reported by JobResponse.
const (
	PayloadJSON   = "json"
	PayloadBase64 = "base64"
)

// JobResponse is the wire form of a job. A payload that is valid JSON is
// embedded verbatim, so it reads back the way POST /v1/jobs accepted it. Any
// other payload, such as msgpack, is a base64 string.
type JobResponse struct {
	*job.Job
	Payload         json.RawMessage `json:"payload,omitempty"`
	PayloadEncoding string          `json:"payload_encoding,omitempty"`
}

// NewJobResponse wraps j for encoding.
func NewJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{Job: j}
	switch {
	case len(j.Payload) == 0:
	case json.Valid(j.Payload):
		resp.Payload = json.RawMessage(j.Payload)
		resp.PayloadEncoding = PayloadJSON
	default:
		encoded, _ := json.Marshal(j.Payload) //nolint:errcheck // []byte always marshals
		resp.Payload = encoded
		resp.PayloadEncoding = PayloadBase64
	}
	return resp
}

// NewJobResponses wraps a page of jobs. It never returns nil.
func NewJobResponses(jobs []*job.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, NewJobResponse(j))
	}
	return out
}

// ListResponse wraps a page of jobs.
type ListResponse struct {
	Jobs   []JobResponse `json:"jobs"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// PurgeResponse reports how many dead-lettered jobs were removed.
type PurgeResponse struct {
	Purged int64 `json:"purged"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
