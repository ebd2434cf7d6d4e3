package validation

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"imageBatch/internal/table"
)

var allowedExtensions = map[string]table.Format{
	".csv":  table.FormatCSV,
	".xlsx": table.FormatXLSX,
}

func CheckSize(size, limit int64) error {
	if size == 0 {
		return ErrEmptyFile
	}
	if limit > 0 && size > limit {
		return fmt.Errorf("%w: %d bytes", ErrFileTooLarge, limit)
	}
	return nil
}

// DetectTableFormat checks that the extension is a supported table type and
// that the content agrees with it.
func DetectTableFormat(filename string, data []byte) (table.Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	want, ok := allowedExtensions[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidFileType, ext)
	}

	if got := table.DetectFormat(data); got != want {
		return "", ErrExtensionMismatch
	}
	return want, nil
}

func WebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidWebhookURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidWebhookURL
	}
	return nil
}
