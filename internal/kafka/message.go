package kafka

// JobMessage hands a job identifier to exactly one orchestrator run.
type JobMessage struct {
	JobID   string `json:"job_id"`
	TraceID string `json:"trace_id"`
}
