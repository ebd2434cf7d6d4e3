package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"imageBatch/internal/kafka"
	"imageBatch/internal/models"
	"imageBatch/internal/repository"
	"imageBatch/worker/converter"
)

const inputURL = "s3://image-batch/inputs/job-1.csv"

type harness struct {
	store    *memoryStore
	blobs    *memoryBlobs
	cache    *recordingCache
	notifier *recordingNotifier
	proc     *Processor
}

func newHarness(t *testing.T, job *models.Job) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	h := &harness{
		store:    newMemoryStore(job),
		blobs:    newMemoryBlobs(),
		cache:    &recordingCache{},
		notifier: &recordingNotifier{},
	}
	rows := NewRowProcessor(h.blobs, converter.NewConverter(logger, 50), 4, time.Second, logger)
	h.proc = NewProcessor(h.store, h.cache, h.blobs, rows, h.notifier, Options{
		RowConcurrency: 2,
		TableTimeout:   time.Second,
	}, logger)
	return h
}

func pendingJob(webhook string) *models.Job {
	return &models.Job{
		ID:         "job-1",
		TraceID:    "trace-1",
		Status:     models.StatusPending,
		WebhookURL: webhook,
		InputURL:   inputURL,
	}
}

func readResult(t *testing.T, h *harness) [][]string {
	t.Helper()
	data, ok := h.blobs.put("outputs/output_job-1.csv")
	require.True(t, ok, "result table not stored")
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return records
}

func TestProcessor_CompletesJob(t *testing.T) {
	h := newHarness(t, pendingJob(""))
	img := pngBytes(t)
	h.blobs.add("https://img.test/a.png", img)
	h.blobs.add("https://img.test/b.png", img)
	h.blobs.add("https://img.test/c.png", img)
	h.blobs.add(inputURL, csvTable(
		"Serial Number,Product Name,Input Image Urls",
		`1,Shoe,"https://img.test/a.png,https://img.test/b.png"`,
		"2,Hat,https://img.test/c.png",
	))

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	job := h.store.job("job-1")
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, blobBase+"outputs/output_job-1.csv", job.OutputURL)
	assert.Empty(t, job.FailureReason)
	assert.Equal(t, []models.JobStatus{models.StatusProcessing, models.StatusCompleted}, h.cache.statuses)

	records := readResult(t, h)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"Serial Number", "Product Name", "Input Image Urls", "Output Image Urls"}, records[0])
	assert.Equal(t, []string{
		"1", "Shoe",
		"https://img.test/a.png,https://img.test/b.png",
		blobBase + "processed/job-1/1/1_1.jpg," + blobBase + "processed/job-1/1/1_2.jpg",
	}, records[1])
	assert.Equal(t, []string{"2", "Hat", "https://img.test/c.png", blobBase + "processed/job-1/2/2_1.jpg"}, records[2])
}

func TestProcessor_FailedImageStillCompletes(t *testing.T) {
	h := newHarness(t, pendingJob(""))
	img := pngBytes(t)
	h.blobs.add("https://img.test/a.png", img)
	h.blobs.add("https://img.test/c.png", img)
	h.blobs.add(inputURL, csvTable(
		"Serial Number,Product Name,Input Image Urls",
		`1,Shoe,"https://img.test/a.png,https://img.test/gone.png,https://img.test/c.png"`,
	))

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	assert.Equal(t, models.StatusCompleted, h.store.job("job-1").Status)
	records := readResult(t, h)
	require.Len(t, records, 2)
	assert.Equal(t, blobBase+"processed/job-1/1/1_1.jpg,"+blobBase+"processed/job-1/1/1_3.jpg", records[1][3])
}

func TestProcessor_EmptyTableCompletes(t *testing.T) {
	h := newHarness(t, pendingJob(""))
	h.blobs.add(inputURL, csvTable("Serial Number,Product Name,Input Image Urls"))

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	job := h.store.job("job-1")
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.NotEmpty(t, job.OutputURL)
	assert.Len(t, readResult(t, h), 1)
}

func TestProcessor_MissingColumnFails(t *testing.T) {
	h := newHarness(t, pendingJob("https://hooks.test/done"))
	h.blobs.add(inputURL, csvTable("Serial Number,Product Name", "1,Shoe"))

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	job := h.store.job("job-1")
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Empty(t, job.OutputURL)
	assert.Contains(t, job.FailureReason, "Input Image Urls")
	assert.Zero(t, h.blobs.putCount())

	require.Len(t, h.notifier.payloads, 1)
	assert.Equal(t, models.StatusFailed, h.notifier.payloads[0].Status)
	assert.Empty(t, h.notifier.payloads[0].OutputURL)
}

func TestProcessor_UnreadableInputFails(t *testing.T) {
	h := newHarness(t, pendingJob(""))

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	job := h.store.job("job-1")
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Contains(t, job.FailureReason, "fetch input table")
	assert.Equal(t, int32(1), h.blobs.gets.Load())
	assert.Zero(t, h.blobs.putCount())
}

func TestProcessor_ResultUploadFailure(t *testing.T) {
	h := newHarness(t, pendingJob(""))
	h.blobs.add(inputURL, csvTable("Serial Number,Product Name,Input Image Urls", "1,Shoe,"))
	h.blobs.putErr = func(key string) error {
		if key == "outputs/output_job-1.csv" {
			return errors.New("bucket unavailable")
		}
		return nil
	}

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	job := h.store.job("job-1")
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Empty(t, job.OutputURL)
	assert.Contains(t, job.FailureReason, "store result table")
}

func TestProcessor_SkipsNonPendingJobs(t *testing.T) {
	for _, status := range []models.JobStatus{models.StatusProcessing, models.StatusCompleted, models.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			job := pendingJob("https://hooks.test/done")
			job.Status = status
			h := newHarness(t, job)

			require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

			assert.Equal(t, status, h.store.job("job-1").Status)
			assert.Zero(t, h.store.updateCount())
			assert.Zero(t, h.blobs.gets.Load())
			assert.Empty(t, h.notifier.payloads)
		})
	}
}

func TestProcessor_SecondRunIsNoop(t *testing.T) {
	h := newHarness(t, pendingJob("https://hooks.test/done"))
	h.blobs.add(inputURL, csvTable("Serial Number,Product Name,Input Image Urls"))

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))
	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	assert.Equal(t, 2, h.store.updateCount())
	assert.Len(t, h.notifier.payloads, 1)
}

func TestProcessor_LostClaim(t *testing.T) {
	h := newHarness(t, pendingJob("https://hooks.test/done"))
	h.store.claimErr = repository.ErrStatusConflict

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	assert.Zero(t, h.blobs.gets.Load())
	assert.Empty(t, h.notifier.payloads)
	assert.Empty(t, h.cache.statuses)
}

func TestProcessor_UnknownJob(t *testing.T) {
	h := newHarness(t, pendingJob(""))

	assert.NoError(t, h.proc.Process(context.Background(), "other", "trace-1"))
	assert.Zero(t, h.blobs.gets.Load())
}

func TestProcessor_WebhookOnCompletion(t *testing.T) {
	h := newHarness(t, pendingJob("https://hooks.test/done"))
	h.blobs.add(inputURL, csvTable("Serial Number,Product Name,Input Image Urls"))

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	require.Len(t, h.notifier.payloads, 1)
	assert.Equal(t, "https://hooks.test/done", h.notifier.urls[0])
	assert.Equal(t, "job-1", h.notifier.payloads[0].JobID)
	assert.Equal(t, models.StatusCompleted, h.notifier.payloads[0].Status)
	assert.Equal(t, blobBase+"outputs/output_job-1.csv", h.notifier.payloads[0].OutputURL)
}

func TestProcessor_NoWebhookConfigured(t *testing.T) {
	h := newHarness(t, pendingJob(""))
	h.blobs.add(inputURL, csvTable("Serial Number,Product Name,Input Image Urls"))

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	assert.Empty(t, h.notifier.payloads)
}

func TestProcessor_CacheErrorsDoNotFailJob(t *testing.T) {
	h := newHarness(t, pendingJob(""))
	h.cache.err = errors.New("redis down")
	h.blobs.add(inputURL, csvTable("Serial Number,Product Name,Input Image Urls"))

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	assert.Equal(t, models.StatusCompleted, h.store.job("job-1").Status)
}

func TestProcessor_FailedCacheWriteEvictsSnapshot(t *testing.T) {
	h := newHarness(t, pendingJob(""))
	h.cache.failOn = models.StatusCompleted
	h.cache.err = errors.New("redis timeout")
	h.blobs.add(inputURL, csvTable("Serial Number,Product Name,Input Image Urls"))

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	assert.Equal(t, models.StatusCompleted, h.store.job("job-1").Status)
	assert.Equal(t, []string{"job-1"}, h.cache.deleted)
	_, cached := h.cache.snapshot("job-1")
	assert.False(t, cached, "PROCESSING snapshot must not outlive a failed terminal write")
}

func TestProcessor_DuplicateSerialsGetDistinctImages(t *testing.T) {
	h := newHarness(t, pendingJob(""))
	h.blobs.add("https://img.test/red.png", pngBytesOf(t, color.NRGBA{R: 255, A: 255}))
	h.blobs.add("https://img.test/blue.png", pngBytesOf(t, color.NRGBA{B: 255, A: 255}))
	h.blobs.add(inputURL, csvTable(
		"Serial Number,Product Name,Input Image Urls",
		"7,Shoe,https://img.test/red.png",
		"7,Shoe,https://img.test/blue.png",
	))

	require.NoError(t, h.proc.Process(context.Background(), "job-1", "trace-1"))

	records := readResult(t, h)
	require.Len(t, records, 3)
	assert.Equal(t, blobBase+"processed/job-1/1/7_1.jpg", records[1][3])
	assert.Equal(t, blobBase+"processed/job-1/2/7_1.jpg", records[2][3])

	first, ok := h.blobs.put("processed/job-1/1/7_1.jpg")
	require.True(t, ok)
	second, ok := h.blobs.put("processed/job-1/2/7_1.jpg")
	require.True(t, ok)
	assert.NotEqual(t, first, second)
}

func TestProcessor_PersistFailureSkipsWebhook(t *testing.T) {
	h := newHarness(t, pendingJob("https://hooks.test/done"))
	h.store.persistErr = errors.New("connection reset")
	h.blobs.add(inputURL, csvTable("Serial Number,Product Name,Input Image Urls"))

	err := h.proc.Process(context.Background(), "job-1", "trace-1")

	assert.Error(t, err)
	assert.Empty(t, h.notifier.payloads)
}

func TestProcessor_Handle(t *testing.T) {
	h := newHarness(t, pendingJob(""))
	h.blobs.add(inputURL, csvTable("Serial Number,Product Name,Input Image Urls"))

	require.NoError(t, h.proc.Handle(context.Background(), &kafka.JobMessage{JobID: "job-1", TraceID: "trace-1"}))

	assert.Equal(t, models.StatusCompleted, h.store.job("job-1").Status)
}
