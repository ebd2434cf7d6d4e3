package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"imageBatch/internal/blob"
	"imageBatch/internal/models"
	"imageBatch/internal/repository"
	"imageBatch/worker/notify"
)

const blobBase = "https://blob.test/"

type memoryStore struct {
	mu         sync.Mutex
	jobs       map[string]*models.Job
	updates    []repository.JobUpdate
	claimErr   error
	persistErr error
}

func newMemoryStore(jobs ...*models.Job) *memoryStore {
	s := &memoryStore{jobs: make(map[string]*models.Job)}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *memoryStore) CreateJob(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return repository.ErrJobAlreadyExists
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memoryStore) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *memoryStore) UpdateJob(ctx context.Context, id string, upd repository.JobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := upd.Validate(); err != nil {
		return err
	}
	if upd.Status != nil && *upd.Status == models.StatusProcessing && s.claimErr != nil {
		return s.claimErr
	}
	if upd.Status != nil && upd.Status.IsTerminal() && s.persistErr != nil {
		return s.persistErr
	}

	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	if upd.From != "" && j.Status != upd.From {
		return repository.ErrStatusConflict
	}

	s.updates = append(s.updates, upd)
	if upd.Status != nil {
		j.Status = *upd.Status
	}
	if upd.OutputURL != nil {
		j.OutputURL = *upd.OutputURL
	}
	if upd.FailureReason != nil {
		j.FailureReason = *upd.FailureReason
	}
	return nil
}

func (s *memoryStore) job(id string) models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *memoryStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

type memoryBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    map[string][]byte
	putErr  func(key string) error
	delay   func(url string) time.Duration
	gets    atomic.Int32

	inFlight atomic.Int32
	peak     atomic.Int32
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{
		objects: make(map[string][]byte),
		puts:    make(map[string][]byte),
	}
}

func (b *memoryBlobs) add(url string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[url] = data
}

func (b *memoryBlobs) Get(ctx context.Context, url string) ([]byte, error) {
	b.gets.Add(1)
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		old := b.peak.Load()
		if n <= old || b.peak.CompareAndSwap(old, n) {
			break
		}
	}

	if b.delay != nil {
		select {
		case <-time.After(b.delay(url)):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", blob.ErrFetch, url, ctx.Err())
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[url]
	if !ok {
		return nil, fmt.Errorf("%w: %s: status 404", blob.ErrFetch, url)
	}
	return data, nil
}

func (b *memoryBlobs) Put(ctx context.Context, data []byte, contentType, key string) (string, error) {
	if b.putErr != nil {
		if err := b.putErr(key); err != nil {
			return "", fmt.Errorf("%w: %s: %w", blob.ErrUpload, key, err)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts[key] = data
	return blobBase + key, nil
}

func (b *memoryBlobs) put(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.puts[key]
	return data, ok
}

func (b *memoryBlobs) putCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.puts)
}

// recordingCache fails every Set with err, or only Sets of failOn when it
// is non-empty. A failed Set leaves the previous snapshot in place, as
// Redis would.
type recordingCache struct {
	mu       sync.Mutex
	statuses []models.JobStatus
	snaps    map[string]models.JobStatus
	deleted  []string
	failOn   models.JobStatus
	err      error
}

func (c *recordingCache) Set(ctx context.Context, job *models.Job) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, job.Status)
	if c.err != nil && (c.failOn == "" || c.failOn == job.Status) {
		return c.err
	}
	if c.snaps == nil {
		c.snaps = make(map[string]models.JobStatus)
	}
	c.snaps[job.ID] = job.Status
	return nil
}

func (c *recordingCache) Delete(ctx context.Context, jobID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, jobID)
	delete(c.snaps, jobID)
	return nil
}

func (c *recordingCache) snapshot(jobID string) (models.JobStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.snaps[jobID]
	return status, ok
}

type recordingNotifier struct {
	mu       sync.Mutex
	urls     []string
	payloads []notify.Payload
}

func (n *recordingNotifier) Dispatch(ctx context.Context, webhookURL string, payload notify.Payload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.urls = append(n.urls, webhookURL)
	n.payloads = append(n.payloads, payload)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	return pngBytesOf(t, color.NRGBA{R: 200, G: 40, B: 90, A: 128})
}

func pngBytesOf(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func csvTable(lines ...string) []byte {
	return []byte(strings.Join(lines, "\n") + "\n")
}
