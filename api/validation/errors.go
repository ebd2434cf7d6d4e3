package validation

import "errors"

var (
	ErrInvalidFileType   = errors.New("invalid file type")
	ErrFileTooLarge      = errors.New("file size exceeds limit")
	ErrEmptyFile         = errors.New("file is empty")
	ErrExtensionMismatch = errors.New("file extension does not match content")
	ErrInvalidWebhookURL = errors.New("webhook_url must be an absolute http or https URL")
)
