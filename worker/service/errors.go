package service

import (
	"context"
	"errors"
	"strings"

	"imageBatch/internal/blob"
	"imageBatch/internal/table"
	"imageBatch/worker/converter"
)

const maxFailureReason = 512

// errorClass returns a short label for tagging logs and metrics.
func errorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, blob.ErrFetch):
		return "fetch"
	case errors.Is(err, converter.ErrDecode):
		return "decode"
	case errors.Is(err, blob.ErrUpload):
		return "upload"
	case errors.Is(err, table.ErrParse):
		return "parse"
	case errors.Is(err, table.ErrSchema):
		return "schema"
	default:
		return "internal"
	}
}

// failureReason is stored in a TEXT column, so it must stay valid UTF-8
// after truncation.
func failureReason(err error) string {
	reason := err.Error()
	if len(reason) > maxFailureReason {
		reason = reason[:maxFailureReason]
	}
	return strings.ToValidUTF8(reason, "")
}
