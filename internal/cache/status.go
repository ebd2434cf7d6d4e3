package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"imageBatch/internal/models"
)

const (
	statusKeyPrefix = "job:status:"
	statusTTL       = 10 * time.Minute
)

var ErrCacheMiss = errors.New("status not cached")

// setStatusScript writes ARGV[1] unless the stored snapshot is further
// along the lifecycle than ARGV[2]. Ranks match models.JobStatus.Rank.
// Returns 1 when written, 0 when skipped.
const setStatusScript = `
local rank = {PENDING = 1, PROCESSING = 2, COMPLETED = 3, FAILED = 3}
local current = redis.call('GET', KEYS[1])
if current then
	local ok, snap = pcall(cjson.decode, current)
	if ok and type(snap) == 'table' then
		local stored = rank[snap.status] or 0
		if stored > rank[ARGV[2]] then
			return 0
		end
	end
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`

// Snapshot is what a status poller sees for a job.
type Snapshot struct {
	JobID         string           `json:"job_id"`
	Status        models.JobStatus `json:"status"`
	InputURL      string           `json:"input_url"`
	OutputURL     string           `json:"output_url,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
}

func SnapshotOf(job *models.Job) Snapshot {
	return Snapshot{
		JobID:         job.ID,
		Status:        job.Status,
		InputURL:      job.InputURL,
		OutputURL:     job.OutputURL,
		FailureReason: job.FailureReason,
	}
}

type StatusCache struct {
	client Client
	ttl    time.Duration
}

func NewStatusCache(client Client) *StatusCache {
	return &StatusCache{client: client, ttl: statusTTL}
}

func statusKey(jobID string) string {
	return fmt.Sprintf("%s%s", statusKeyPrefix, jobID)
}

func (sc *StatusCache) Get(ctx context.Context, jobID string) (*Snapshot, error) {
	data, err := sc.client.Get(ctx, statusKey(jobID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("decode cached status: %w", err)
	}

	return &snap, nil
}

// Set must only be called after the store has committed the same state.
// A snapshot never replaces one with a later status, so a slow writer
// holding an older read cannot roll a poller back.
func (sc *StatusCache) Set(ctx context.Context, job *models.Job) error {
	if !job.Status.IsValid() {
		return fmt.Errorf("cache job %s: invalid status %q", job.ID, job.Status)
	}

	data, err := json.Marshal(SnapshotOf(job))
	if err != nil {
		return err
	}

	return sc.client.Eval(ctx, setStatusScript, []string{statusKey(job.ID)},
		string(data), string(job.Status), sc.ttl.Milliseconds()).Err()
}

func (sc *StatusCache) Delete(ctx context.Context, jobID string) error {
	return sc.client.Del(ctx, statusKey(jobID)).Err()
}
