// Package topicstats keeps Redis-backed consumption counters per source
// topic.
//
// Several pipeline instances may write concurrently. Stats can be read by
// any instance or by the CLI.
//
// Redis Key Structure:
//
//	topicstats:totals:{topic}               - Hash with stored/failed totals and last_seen_at
//	topicstats:hourly:{topic}:{YYYYMMDDHH}  - Envelopes consumed in that hour (expires 48h)
//	topicstats:instances:{topic}            - Hash of pipeline instance -> last seen timestamp
package topicstats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "topicstats:"
	totalsPrefix = keyPrefix + "totals:"
)

// Stats is the aggregated view of one topic.
type Stats struct {
	Topic            string            `json:"topic"`
	Stored           int64             `json:"stored"`
	Failed           int64             `json:"failed"`
	LastSeenAt       *time.Time        `json:"lastSeenAt,omitempty"`
	ConsumedLastHour int64             `json:"consumedLastHour"`
	ConsumedLast24h  int64             `json:"consumedLast24h"`
	Instances        map[string]string `json:"instances,omitempty"`
	RetrievedAt      time.Time         `json:"retrievedAt"`
}

// Client reads and writes topic stats.
type Client struct {
	redis      *redis.Client
	instanceID string
	now        func() time.Time
}

// NewClient wraps an existing connection. instanceID should be unique per
// pipeline process (hostname and pid, pod name).
func NewClient(client *redis.Client, instanceID string) *Client {
	return &Client{redis: client, instanceID: instanceID, now: time.Now}
}

// Batch accumulates outcomes for one topic between flushes.
type Batch struct {
	Topic  string
	Stored int64
	Failed int64
}

// Add counts one consumed envelope.
func (b *Batch) Add(stored bool) {
	if stored {
		b.Stored++
	} else {
		b.Failed++
	}
}

func (b *Batch) merge(other *Batch) {
	b.Stored += other.Stored
	b.Failed += other.Failed
}

func (b *Batch) total() int64 { return b.Stored + b.Failed }

func hourlyKey(topic string, t time.Time) string {
	return fmt.Sprintf("%shourly:%s:%s", keyPrefix, topic, t.UTC().Format("2006010215"))
}

// FlushBatch writes batch to Redis in one pipeline.
func (c *Client) FlushBatch(ctx context.Context, batch *Batch) error {
	if batch.total() == 0 {
		return nil
	}

	now := c.now()
	nowUnix := strconv.FormatInt(now.Unix(), 10)

	pipe := c.redis.Pipeline()

	totalsKey := totalsPrefix + batch.Topic
	pipe.HSet(ctx, totalsKey, "last_seen_at", nowUnix)
	pipe.HIncrBy(ctx, totalsKey, "stored", batch.Stored)
	pipe.HIncrBy(ctx, totalsKey, "failed", batch.Failed)

	hk := hourlyKey(batch.Topic, now)
	pipe.IncrBy(ctx, hk, batch.total())
	pipe.Expire(ctx, hk, 48*time.Hour)

	instancesKey := keyPrefix + "instances:" + batch.Topic
	pipe.HSet(ctx, instancesKey, c.instanceID, nowUnix)
	pipe.Expire(ctx, instancesKey, 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to flush topic stats: %w", err)
	}
	return nil
}

// GetStats returns the stats for topic. Unknown topics yield zero counts.
func (c *Client) GetStats(ctx context.Context, topic string) (*Stats, error) {
	now := c.now()

	pipe := c.redis.Pipeline()
	totalsCmd := pipe.HGetAll(ctx, totalsPrefix+topic)
	hourly := make([]*redis.StringCmd, 24)
	for i := range hourly {
		hourly[i] = pipe.Get(ctx, hourlyKey(topic, now.Add(-time.Duration(i)*time.Hour)))
	}
	instancesCmd := pipe.HGetAll(ctx, keyPrefix+"instances:"+topic)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get topic stats: %w", err)
	}

	stats := &Stats{
		Topic:       topic,
		RetrievedAt: now.UTC(),
		Instances:   make(map[string]string),
	}

	if totals, err := totalsCmd.Result(); err == nil {
		stats.Stored, _ = strconv.ParseInt(totals["stored"], 10, 64)
		stats.Failed, _ = strconv.ParseInt(totals["failed"], 10, 64)
		if unix, err := strconv.ParseInt(totals["last_seen_at"], 10, 64); err == nil {
			t := time.Unix(unix, 0).UTC()
			stats.LastSeenAt = &t
		}
	}

	for i, cmd := range hourly {
		val, err := cmd.Int64()
		if err != nil {
			continue
		}
		if i == 0 {
			stats.ConsumedLastHour = val
		}
		stats.ConsumedLast24h += val
	}

	if instances, err := instancesCmd.Result(); err == nil {
		for instance, lastSeen := range instances {
			if unix, err := strconv.ParseInt(lastSeen, 10, 64); err == nil {
				stats.Instances[instance] = time.Unix(unix, 0).UTC().Format(time.RFC3339)
			}
		}
	}

	return stats, nil
}

// ListTopics returns every topic with recorded totals.
func (c *Client) ListTopics(ctx context.Context) ([]string, error) {
	var topics []string
	iter := c.redis.Scan(ctx, 0, totalsPrefix+"*", 1000).Iterator()
	for iter.Next(ctx) {
		topics = append(topics, strings.TrimPrefix(iter.Val(), totalsPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan topics: %w", err)
	}
	return topics, nil
}
