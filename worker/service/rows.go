package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"imageBatch/internal/blob"
	"imageBatch/internal/models"
	"imageBatch/worker/metrics"
	"imageBatch/worker/pool"
)

type ImageConverter interface {
	Convert(data []byte) ([]byte, error)
}

// RowProcessor turns the input image URLs of one row into stored JPEG URLs.
type RowProcessor struct {
	blobs        blob.Store
	converter    ImageConverter
	concurrency  int
	imageTimeout time.Duration
	logger       *zap.Logger
}

func NewRowProcessor(blobs blob.Store, conv ImageConverter, concurrency int, imageTimeout time.Duration, logger *zap.Logger) *RowProcessor {
	if concurrency < 1 {
		concurrency = 1
	}
	if imageTimeout <= 0 {
		imageTimeout = 30 * time.Second
	}
	return &RowProcessor{
		blobs:        blobs,
		converter:    conv,
		concurrency:  concurrency,
		imageTimeout: imageTimeout,
		logger:       logger,
	}
}

type imageResult struct {
	index int
	url   string
}

// Process fills row.OutputImageURLs. Images that fail are left out; the
// remaining URLs keep the order of their inputs. ordinal is the 1-based
// position of the row in its table and keeps stored keys unique per job.
func (rp *RowProcessor) Process(ctx context.Context, jobID string, ordinal int, row *models.Row) {
	var (
		mu      sync.Mutex
		results = make([]imageResult, 0, len(row.InputImageURLs))
	)

	wp := pool.NewWorkerPool(rp.concurrency)
	for i, src := range row.InputImageURLs {
		index := i + 1
		wp.Submit(ctx, func(ctx context.Context) {
			key := imageKey(jobID, ordinal, row.SerialNumber, index)
			url, err := rp.processImage(ctx, key, src)
			if err != nil {
				rp.imageFailed(row.SerialNumber, index, src, err)
				return
			}
			metrics.ImagesTotal.WithLabelValues("success", "").Inc()

			mu.Lock()
			results = append(results, imageResult{index: index, url: url})
			mu.Unlock()
		}, func(err error) {
			rp.imageFailed(row.SerialNumber, index, src, err)
		})
	}
	wp.Wait()

	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })

	urls := make([]string, 0, len(results))
	for _, r := range results {
		urls = append(urls, r.url)
	}
	row.OutputImageURLs = urls
}

func (rp *RowProcessor) processImage(ctx context.Context, key, src string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, rp.imageTimeout)
	defer cancel()

	data, err := rp.blobs.Get(ctx, src)
	if err != nil {
		return "", err
	}

	jpeg, err := rp.converter.Convert(data)
	if err != nil {
		return "", err
	}

	return rp.blobs.Put(ctx, jpeg, "image/jpeg", key)
}

func (rp *RowProcessor) imageFailed(serial string, index int, src string, err error) {
	class := errorClass(err)
	metrics.ImagesTotal.WithLabelValues("error", class).Inc()
	rp.logger.Warn("Image skipped",
		zap.String("serial_number", serial),
		zap.Int("index", index),
		zap.String("url", src),
		zap.String("error_class", class),
		zap.Error(err),
	)
}

// imageKey is processed/<job_id>/<row>/<serial>_<index>.jpg. The serial is
// only descriptive; uniqueness comes from the job ID and row ordinal.
func imageKey(jobID string, ordinal int, serial string, index int) string {
	return fmt.Sprintf("processed/%s/%d/%s_%d.jpg",
		blob.KeySegment(jobID), ordinal, blob.KeySegment(serial), index)
}
