package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"imageBatch/api/dto"
)

// BatchClient calls the image batch API.
type BatchClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewBatchClient(baseURL string) *BatchClient {
	return &BatchClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Submit sends POST /upload_csv with the table as multipart form data.
func (c *BatchClient) Submit(filename string, data []byte, webhookURL string) (*dto.UploadResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if webhookURL != "" {
		if err := writer.WriteField("webhook_url", webhookURL); err != nil {
			return nil, fmt.Errorf("failed to build form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, c.BaseURL+"/upload_csv", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	var result dto.UploadResponse
	if err := c.do(httpReq, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Status sends GET /status/{id}.
func (c *BatchClient) Status(jobID string) (*dto.JobStatusResponse, error) {
	httpReq, err := http.NewRequest(http.MethodGet, c.BaseURL+"/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result dto.JobStatusResponse
	if err := c.do(httpReq, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *BatchClient) do(req *http.Request, want int, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		msg := string(respBody)
		var apiErr dto.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
