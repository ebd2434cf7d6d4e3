package dto

type CreateJobRequest struct {
	Filename   string
	Data       []byte
	WebhookURL string
}

type UploadResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
}

type JobStatusResponse struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	InputURL      string `json:"input_url"`
	OutputURL     string `json:"output_url,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}
