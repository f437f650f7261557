package models

import "sync"

// Batch job states.
const (
	BatchProcessing = "processing"
	BatchCompleted  = "completed"
	BatchPartial    = "partial"
	BatchFailed     = "failed"
)

// BatchRequest is the payload for POST /api/v1/batch/resolve.
type BatchRequest struct {
	// URLs is the list of links to resolve. Required.
	URLs []string `json:"urls" binding:"required,min=1,dive,url"`

	// Options contains shared settings applied to all URLs.
	Options BatchOptions `json:"options"`

	// WebhookURL receives a batch.completed event when the job finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body (X-Unhide-Signature).
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchOptions are the shared settings applied to every URL in a batch.
type BatchOptions struct {
	MaxSteps    int  `json:"max_steps,omitempty" binding:"omitempty,min=1"`
	Preview     bool `json:"preview,omitempty"`
	IncludeBody bool `json:"include_body,omitempty"`
	MaxAge      int  `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Request builds the single-URL request for one batch entry.
func (o BatchOptions) Request(url string) *ResolveRequest {
	return &ResolveRequest{
		URL:         url,
		MaxSteps:    o.MaxSteps,
		Preview:     o.Preview,
		IncludeBody: o.IncludeBody,
		MaxAge:      o.MaxAge,
	}
}

// BatchResponse is the immediate response for POST /api/v1/batch/resolve.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"`
	Completed int                `json:"completed"`
	Found     int                `json:"found"`
	Total     int                `json:"total"`
	Results   []*ResolveResponse `json:"results,omitempty"`
}

// BatchJob tracks a batch resolution. Its methods are safe for concurrent use.
type BatchJob struct {
	ID        string
	CreatedAt int64 // unix timestamp

	mu        sync.Mutex
	status    string
	completed int
	found     int
	results   []*ResolveResponse
}

// NewBatchJob creates a processing job with room for total results.
func NewBatchJob(id string, total int, createdAt int64) *BatchJob {
	return &BatchJob{
		ID:        id,
		CreatedAt: createdAt,
		status:    BatchProcessing,
		results:   make([]*ResolveResponse, total),
	}
}

// Record stores the result for URL index idx.
func (j *BatchJob) Record(idx int, resp *ResolveResponse) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.results[idx] = resp
	j.completed++
	if resp.Success {
		j.found++
	}
}

// Finish settles the final status from the recorded results.
func (j *BatchJob) Finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case j.found == len(j.results):
		j.status = BatchCompleted
	case j.found == 0:
		j.status = BatchFailed
	default:
		j.status = BatchPartial
	}
}

// Snapshot returns the job's current state as an API response.
func (j *BatchJob) Snapshot() BatchStatusResponse {
	j.mu.Lock()
	defer j.mu.Unlock()
	results := make([]*ResolveResponse, len(j.results))
	copy(results, j.results)
	return BatchStatusResponse{
		ID:        j.ID,
		Status:    j.status,
		Completed: j.completed,
		Found:     j.found,
		Total:     len(j.results),
		Results:   results,
	}
}
