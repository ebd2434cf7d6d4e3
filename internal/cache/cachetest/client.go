// Package cachetest provides an in-memory stand-in for the Redis client
// behind cache.StatusCache.
package cachetest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"imageBatch/internal/models"
)

// Client keeps values in memory. Eval does not interpret Lua: it applies the
// status cache's conditional write (keys[0], args: snapshot, status, ttl ms)
// using models.JobStatus.Rank.
type Client struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration

	GetErr  error
	EvalErr error
	DelErr  error
}

func NewClient() *Client {
	return &Client{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (c *Client) Get(ctx context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := redis.NewStringCmd(ctx, "get", key)
	if c.GetErr != nil {
		cmd.SetErr(c.GetErr)
		return cmd
	}
	v, ok := c.data[key]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := redis.NewStatusCmd(ctx, "set", key)
	c.store(key, fmt.Sprint(value), expiration)
	cmd.SetVal("OK")
	return cmd
}

func (c *Client) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := redis.NewIntCmd(ctx, "del")
	if c.DelErr != nil {
		cmd.SetErr(c.DelErr)
		return cmd
	}
	var n int64
	for _, k := range keys {
		if _, ok := c.data[k]; ok {
			n++
		}
		delete(c.data, k)
		delete(c.ttls, k)
	}
	cmd.SetVal(n)
	return cmd
}

func (c *Client) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	c.mu.Lock()
	defer c.mu.Unlock()

	cmd := redis.NewCmd(ctx, "eval")
	if c.EvalErr != nil {
		cmd.SetErr(c.EvalErr)
		return cmd
	}
	if len(keys) != 1 || len(args) != 3 {
		cmd.SetErr(fmt.Errorf("cachetest: unexpected eval shape: %d keys, %d args", len(keys), len(args)))
		return cmd
	}

	next := models.JobStatus(fmt.Sprint(args[1]))
	if current, ok := c.data[keys[0]]; ok {
		var snap struct {
			Status models.JobStatus `json:"status"`
		}
		if json.Unmarshal([]byte(current), &snap) == nil && snap.Status.Rank() > next.Rank() {
			cmd.SetVal(int64(0))
			return cmd
		}
	}

	ms, err := strconv.ParseInt(fmt.Sprint(args[2]), 10, 64)
	if err != nil {
		cmd.SetErr(fmt.Errorf("cachetest: ttl: %w", err))
		return cmd
	}
	c.store(keys[0], fmt.Sprint(args[0]), time.Duration(ms)*time.Millisecond)
	cmd.SetVal(int64(1))
	return cmd
}

// TTL reports the expiry last written for key.
func (c *Client) TTL(key string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttls[key]
}

// Has reports whether key holds a value.
func (c *Client) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

func (c *Client) store(key, value string, ttl time.Duration) {
	c.data[key] = value
	c.ttls[key] = ttl
}
