package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/banshee-data/assay.report/internal/monitoring"
	"github.com/banshee-data/assay.report/internal/queue"
	"github.com/banshee-data/assay.report/internal/timeutil"
)

// Consumer polls a queue and hands each message to a Processor.
type Consumer struct {
	Queue        queue.Queue
	Processor    *Processor
	PollInterval time.Duration
	Clock        timeutil.Clock

	processed atomic.Int64
	failed    atomic.Int64
}

// Stats is a snapshot of consumer counters.
type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// Stats returns the number of messages handled and how many failed.
func (c *Consumer) Stats() Stats {
	return Stats{Processed: c.processed.Load(), Failed: c.failed.Load()}
}

// Run polls until ctx is cancelled. An empty queue waits PollInterval before
// the next poll; a queue error waits twice that.
func (c *Consumer) Run(ctx context.Context) error {
	clock := c.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	monitoring.Logf("worker: consumer started, poll interval %s", c.PollInterval)
	defer monitoring.Logf("worker: consumer stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		raw, err := c.Queue.Pop(ctx)
		var wait time.Duration
		switch {
		case err == nil:
			c.handle(ctx, raw)
			continue
		case errors.Is(err, queue.ErrEmpty):
			wait = c.PollInterval
		default:
			if ctx.Err() != nil {
				return nil
			}
			monitoring.Logf("worker: consumer error: %v", err)
			wait = 2 * c.PollInterval
		}

		select {
		case <-ctx.Done():
			return nil
		case <-clock.After(wait):
		}
	}
}

func (c *Consumer) handle(ctx context.Context, raw []byte) {
	c.processed.Add(1)
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.failed.Add(1)
		monitoring.Logf("worker: dropping malformed job message: %v", err)
		return
	}
	monitoring.Debugf("worker: received job %s", msg.JobID)
	if err := c.Processor.Process(ctx, msg); err != nil {
		c.failed.Add(1)
	}
}
