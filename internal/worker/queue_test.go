package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingRunner struct {
	mu       sync.Mutex
	goals    []string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	delay    time.Duration
}

func (r *recordingRunner) Run(ctx context.Context, task Task) schemas.RunResult {
	n := r.inFlight.Add(1)
	if n > r.maxSeen.Load() {
		r.maxSeen.Store(n)
	}
	defer r.inFlight.Add(-1)

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	r.goals = append(r.goals, task.Goal)
	r.mu.Unlock()
	return schemas.RunResult{Task: task.Goal, Status: schemas.RunDone}
}

func newTestQueue(r Runner) *Queue {
	cfg := config.WorkerConfig{QueueSize: 4}
	return NewQueue(r, cfg, zap.NewNop())
}

func TestQueueRunsTasksInOrder(t *testing.T) {
	r := &recordingRunner{}
	q := newTestQueue(r)
	q.Start(context.Background())

	var results []<-chan schemas.RunResult
	for _, goal := range []string{"first", "second", "third"} {
		_, ch, err := q.Submit(goal, "")
		require.NoError(t, err)
		results = append(results, ch)
	}

	for i, ch := range results {
		select {
		case res := <-ch:
			assert.Equal(t, schemas.RunDone, res.Status, "task %d", i)
		case <-time.After(5 * time.Second):
			t.Fatalf("task %d never finished", i)
		}
	}

	assert.Equal(t, []string{"first", "second", "third"}, r.goals)
	require.NoError(t, q.Close())
}

func TestQueueSerializesExecution(t *testing.T) {
	r := &recordingRunner{delay: 20 * time.Millisecond}
	q := newTestQueue(r)
	q.Start(context.Background())

	var chans []<-chan schemas.RunResult
	for i := 0; i < 4; i++ {
		_, ch, err := q.Submit("task", "")
		require.NoError(t, err)
		chans = append(chans, ch)
	}
	for _, ch := range chans {
		<-ch
	}

	assert.Equal(t, int32(1), r.maxSeen.Load(), "one worker means one task at a time")
	require.NoError(t, q.Close())
}

func TestQueueRejectsWhenFull(t *testing.T) {
	r := &recordingRunner{delay: 50 * time.Millisecond}
	q := NewQueue(r, config.WorkerConfig{QueueSize: 1}, zap.NewNop())
	q.Start(context.Background())

	_, first, err := q.Submit("running", "")
	require.NoError(t, err)

	// The worker holds the first task; one more fits the buffer, the next
	// must bounce.
	var queued []<-chan schemas.RunResult
	sawFull := false
	for i := 0; i < 4; i++ {
		_, ch, err := q.Submit("queued", "")
		if err != nil {
			assert.ErrorIs(t, err, ErrQueueFull)
			sawFull = true
			break
		}
		queued = append(queued, ch)
	}
	assert.True(t, sawFull)

	<-first
	for _, ch := range queued {
		<-ch
	}
	require.NoError(t, q.Close())
}

func TestQueueDrainsOnCancel(t *testing.T) {
	r := &recordingRunner{delay: 30 * time.Millisecond}
	q := newTestQueue(r)
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	_, running, err := q.Submit("running", "")
	require.NoError(t, err)
	_, waiting, err := q.Submit("waiting", "")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	cancel()

	<-running
	select {
	case res := <-waiting:
		assert.Equal(t, schemas.RunStopped, res.Status)
		assert.Contains(t, res.Summary, "still queued")
	case <-time.After(5 * time.Second):
		t.Fatal("queued task was never drained")
	}
	require.NoError(t, q.Close())
}

func TestQueueSubmitAfterClose(t *testing.T) {
	q := newTestQueue(&recordingRunner{})
	q.Start(context.Background())
	require.NoError(t, q.Close())

	_, _, err := q.Submit("late", "")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestQueueConcurrentSubmitAndClose(t *testing.T) {
	// Submissions racing Close must resolve to a clean verdict, never a send
	// on a closed channel.
	for i := 0; i < 50; i++ {
		q := newTestQueue(&recordingRunner{})
		q.Start(context.Background())

		var wg sync.WaitGroup
		var chans [8]<-chan schemas.RunResult
		for j := 0; j < len(chans); j++ {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_, ch, err := q.Submit("racing", "")
				if err != nil {
					assert.True(t, err == ErrClosed || err == ErrQueueFull, "unexpected error: %v", err)
					return
				}
				chans[j] = ch
			}(j)
		}
		require.NoError(t, q.Close())
		wg.Wait()

		for _, ch := range chans {
			if ch != nil {
				<-ch
			}
		}
	}
}
