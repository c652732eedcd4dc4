package models

// Job lifecycle values stored in generation_jobs.status.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// JobStatus summarizes a queued generation job for polling clients.
type JobStatus struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	Kind      string  `json:"kind"`
	ResultURL *string `json:"result_url,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// JobMessage is the SQS payload handed to the generation worker.
type JobMessage struct {
	JobID       string   `json:"job_id"`
	UserID      string   `json:"user_id"`
	Kind        string   `json:"kind"` // "video"
	Prompt      string   `json:"prompt"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
}
