package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"imageBatch/internal/models"
	"imageBatch/worker/metrics"
)

var ErrNotify = errors.New("webhook delivery failed")

type Payload struct {
	JobID         string           `json:"job_id"`
	Status        models.JobStatus `json:"status"`
	OutputURL     string           `json:"output_url"`
	FailureReason string           `json:"failure_reason,omitempty"`
}

// Notifier posts job outcomes to caller-supplied webhooks. Delivery is a
// single attempt; failures are only logged.
type Notifier struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewNotifier(client *http.Client, timeout time.Duration, logger *zap.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Notifier{client: client, timeout: timeout, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, webhookURL string, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %w", ErrNotify, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrNotify, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "image-batch-worker")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotify, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: webhook responded %d", ErrNotify, resp.StatusCode)
	}
	return nil
}

// Dispatch delivers in the background, detached from ctx cancellation.
func (n *Notifier) Dispatch(ctx context.Context, webhookURL string, payload Payload) {
	if webhookURL == "" {
		return
	}

	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		if err := n.Notify(ctx, webhookURL, payload); err != nil {
			metrics.WebhooksTotal.WithLabelValues("error").Inc()
			n.logger.Error("Failed to send webhook",
				zap.String("job_id", payload.JobID),
				zap.String("webhook_url", webhookURL),
				zap.Error(err),
			)
			return
		}

		metrics.WebhooksTotal.WithLabelValues("success").Inc()
		n.logger.Info("Webhook delivered",
			zap.String("job_id", payload.JobID),
			zap.String("status", string(payload.Status)),
		)
	}()
}

// Wait blocks until all dispatched deliveries have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
