package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRequiresStart(t *testing.T) {
	q := NewQueue("warm", func(context.Context, Job) error { return nil }, QueueConfig{})

	_, err := q.Enqueue("class-1")
	assert.Error(t, err)
}

func TestQueueCoalescesWaitingKeys(t *testing.T) {
	started := make(chan string, 4)
	release := make(chan struct{})
	q := NewQueue("warm", func(_ context.Context, job Job) error {
		started <- job.Key
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4})
	q.Start(context.Background())
	defer q.Stop()

	queued, err := q.Enqueue("class-1")
	require.NoError(t, err)
	require.True(t, queued)
	assert.Equal(t, "class-1", <-started)

	queued, err = q.Enqueue("class-2")
	require.NoError(t, err)
	assert.True(t, queued)
	queued, err = q.Enqueue("class-2")
	require.NoError(t, err)
	assert.False(t, queued)
	assert.Equal(t, 1, q.Pending())

	// class-1 is running, not waiting, so it may be queued again.
	queued, err = q.Enqueue("class-1")
	require.NoError(t, err)
	assert.True(t, queued)

	close(release)
	assert.Equal(t, "class-2", <-started)
	assert.Equal(t, "class-1", <-started)
}

func TestQueueFull(t *testing.T) {
	release := make(chan struct{})
	running := make(chan struct{}, 1)
	q := NewQueue("warm", func(context.Context, Job) error {
		running <- struct{}{}
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1})
	q.Start(context.Background())
	defer func() {
		close(release)
		q.Stop()
	}()

	_, err := q.Enqueue("a")
	require.NoError(t, err)
	<-running
	_, err = q.Enqueue("b")
	require.NoError(t, err)

	_, err = q.Enqueue("c")
	assert.True(t, errors.Is(err, ErrQueueFull))
}

func TestQueueRetriesFailedJobs(t *testing.T) {
	var attempts int32
	var wg sync.WaitGroup
	wg.Add(3)
	q := NewQueue("warm", func(_ context.Context, job Job) error {
		defer wg.Done()
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errors.New("database unavailable")
		}
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	_, err := q.Enqueue("class-1")
	require.NoError(t, err)

	wg.Wait()
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestQueueStopRejectsNewJobs(t *testing.T) {
	q := NewQueue("warm", func(context.Context, Job) error { return nil }, QueueConfig{})
	q.Start(context.Background())
	q.Stop()

	_, err := q.Enqueue("class-1")
	assert.Error(t, err)
}
