package topicstats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/telhawk-systems/eventvault/common/logging"
)

// Collector accumulates outcomes in memory and flushes them to Redis
// periodically. Safe for concurrent use.
type Collector struct {
	client        *Client
	flushInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	batches map[string]*Batch

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewCollector starts a collector flushing every flushInterval.
func NewCollector(client *Client, flushInterval time.Duration, logger *slog.Logger) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		client:        client,
		flushInterval: flushInterval,
		logger:        logging.OrDefault(logger),
		batches:       make(map[string]*Batch),
		ctx:           ctx,
		cancel:        cancel,
	}

	c.wg.Add(1)
	go c.flushLoop()
	return c
}

// Record counts one consumed envelope for topic.
func (c *Collector) Record(topic string, stored bool) {
	if topic == "" {
		topic = "unknown"
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	batch, ok := c.batches[topic]
	if !ok {
		batch = &Batch{Topic: topic}
		c.batches[topic] = batch
	}
	batch.Add(stored)
}

func (c *Collector) flushLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			// Final flush on shutdown
			c.flush()
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	batches := c.batches
	c.batches = make(map[string]*Batch)
	c.mu.Unlock()

	if len(batches) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	flushed := 0
	for _, batch := range batches {
		if err := c.client.FlushBatch(ctx, batch); err != nil {
			c.logger.Error("failed to flush topic stats batch",
				logging.Topic(batch.Topic),
				slog.Int64("stored", batch.Stored),
				slog.Int64("failed", batch.Failed),
				logging.Error(err),
			)
			// Merge back for the next flush
			c.mu.Lock()
			if existing, ok := c.batches[batch.Topic]; ok {
				existing.merge(batch)
			} else {
				c.batches[batch.Topic] = batch
			}
			c.mu.Unlock()
			continue
		}
		flushed++
	}

	if flushed > 0 {
		c.logger.Debug("flushed topic stats", slog.Int("topics", flushed))
	}
}

// FlushNow forces an immediate flush.
func (c *Collector) FlushNow() {
	c.flush()
}

// Stop flushes what is pending and stops the background loop.
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Pending returns the unflushed envelope count per topic.
func (c *Collector) Pending() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.batches))
	for topic, batch := range c.batches {
		out[topic] = batch.total()
	}
	return out
}
