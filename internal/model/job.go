package model

import "time"

// JobType names an ingestion job.
type JobType string

const (
	JobScrapeMerchant     JobType = "scrape-merchant"
	JobScrapeAllMerchants JobType = "scrape-all-merchants"
	JobScrapeProductURL   JobType = "scrape-product-url"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobPayload is the union of all job inputs.
type JobPayload struct {
	Merchant string `json:"merchant,omitempty"`
	URL      string `json:"url,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// BackoffPolicy controls the delay between job attempts.
type BackoffPolicy struct {
	Initial    time.Duration `json:"initial"`
	Multiplier float64       `json:"multiplier"`
}

// Job is a unit of work on the ingestion queue.
type Job struct {
	ID          string        `json:"id"`
	Type        JobType       `json:"type"`
	Payload     JobPayload    `json:"payload"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`
	Backoff     BackoffPolicy `json:"backoff"`
	Status      JobStatus     `json:"status"`
	Error       string        `json:"error,omitempty"`
	Result      *JobResult    `json:"result,omitempty"`
	ScheduleKey string        `json:"schedule_key,omitempty"`
	EnqueuedAt  time.Time     `json:"enqueued_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
}

// JobResult reports the outcome tallies of one job run.
type JobResult struct {
	Merchant   string        `json:"merchant,omitempty"`
	Scraped    int           `json:"scraped"`
	Created    int           `json:"created"`
	Updated    int           `json:"updated"`
	Skipped    int           `json:"skipped"`
	Errors     int           `json:"errors"`
	Enqueued   int           `json:"enqueued,omitempty"`
	DealID     string        `json:"deal_id,omitempty"`
	Note       string        `json:"note,omitempty"`
	ErrorLog   []string      `json:"error_log,omitempty"`
	Duration   time.Duration `json:"duration"`
	FinishedAt time.Time     `json:"finished_at"`
}
