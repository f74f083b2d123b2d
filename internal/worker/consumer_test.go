package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/assay.report/internal/db"
	"github.com/banshee-data/assay.report/internal/queue"
	"github.com/banshee-data/assay.report/internal/testutil"
	"github.com/banshee-data/assay.report/internal/timeutil"
)

// flakyQueue fails the first Pop, then behaves like the wrapped queue.
type flakyQueue struct {
	queue.Queue
	mu     sync.Mutex
	failed bool
}

func (q *flakyQueue) Pop(ctx context.Context) ([]byte, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.failed {
		q.failed = true
		return nil, errors.New("connection reset")
	}
	return q.Queue.Pop(ctx)
}

func startConsumer(t *testing.T, c *Consumer) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func TestConsumer_ProcessesQueuedJobs(t *testing.T) {
	f := newFixture(t)
	a := testutil.SeedArtifact(t, f.db, f.blobs, "S1", "v1_timeseries_csv", testutil.TimeseriesCSV)
	msg, err := f.proc.NewJob(a.ArtifactID, "")
	require.NoError(t, err)

	q := queue.NewMemoryQueue()
	raw, _ := json.Marshal(msg)
	require.NoError(t, q.Push(context.Background(), raw))
	require.NoError(t, q.Push(context.Background(), []byte("not json")))

	clock := timeutil.NewMockClock(time.Unix(0, 0))
	c := &Consumer{Queue: q, Processor: f.proc, PollInterval: time.Second, Clock: clock}
	stop := startConsumer(t, c)
	defer stop()

	// Both messages are drained before the first idle wait.
	require.Eventually(t, func() bool { return clock.Pending() == 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, Stats{Processed: 2, Failed: 1}, c.Stats())

	job, err := f.jobs.Get(msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, db.JobSucceeded, job.Status)
}

func TestConsumer_BacksOffAfterQueueError(t *testing.T) {
	f := newFixture(t)
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	q := &flakyQueue{Queue: queue.NewMemoryQueue()}
	c := &Consumer{Queue: q, Processor: f.proc, PollInterval: time.Second, Clock: clock}
	stop := startConsumer(t, c)
	defer stop()

	require.Eventually(t, func() bool { return clock.Pending() == 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, []time.Duration{2 * time.Second}, clock.Waits())

	// After the error wait, an empty queue waits one interval.
	clock.Advance(2 * time.Second)
	require.Eventually(t, func() bool { return len(clock.Waits()) == 2 && clock.Pending() == 1 }, 5*time.Second, time.Millisecond)
	assert.Equal(t, time.Second, clock.Waits()[1])
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	f := newFixture(t)
	c := &Consumer{Queue: queue.NewMemoryQueue(), Processor: f.proc, PollInterval: time.Hour}
	stop := startConsumer(t, c)
	stop()
}
