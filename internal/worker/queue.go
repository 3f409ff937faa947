// internal/worker/queue.go

// Package worker serializes task runs onto a single worker, since one
// browser session can only serve one task at a time.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lyubovchubarova/SiriusAgentBrowser/api/schemas"
	"github.com/lyubovchubarova/SiriusAgentBrowser/internal/config"
)

// ErrQueueFull is returned when the submission buffer has no room.
var ErrQueueFull = errors.New("task queue is full")

// ErrClosed is returned when submitting to a closed queue.
var ErrClosed = errors.New("task queue is closed")

// Task is one unit of work for the agent.
type Task struct {
	ID        string
	Goal      string
	StartURL  string
	Submitted time.Time

	result chan schemas.RunResult
}

// Runner executes one task to completion.
type Runner interface {
	Run(ctx context.Context, task Task) schemas.RunResult
}

// Queue accepts tasks and feeds them to a single worker in FIFO order.
type Queue struct {
	runner Runner
	tasks  chan *Task
	group  *errgroup.Group
	logger *zap.Logger

	// mu makes the closed check and the channel send atomic with respect to
	// Close, which closes the channels.
	mu     sync.Mutex
	closed bool
}

// NewQueue sizes the buffer from config.
func NewQueue(runner Runner, cfg config.WorkerConfig, logger *zap.Logger) *Queue {
	size := cfg.QueueSize
	if size < 1 {
		size = 1
	}
	return &Queue{
		runner: runner,
		tasks:  make(chan *Task, size),
		logger: logger.Named("worker"),
	}
}

// Start launches the worker. It returns immediately; the worker drains the
// queue until ctx is cancelled or Close is called.
func (q *Queue) Start(ctx context.Context) {
	q.group, ctx = errgroup.WithContext(ctx)
	q.group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				q.drain(ctx)
				return ctx.Err()
			case task, ok := <-q.tasks:
				if !ok {
					return nil
				}
				// A cancelled context wins even when a task is ready.
				select {
				case <-ctx.Done():
					task.result <- schemas.RunResult{
						Task:    task.Goal,
						Status:  schemas.RunStopped,
						Summary: "The task was still queued when the worker shut down.",
					}
					q.drain(ctx)
					return ctx.Err()
				default:
				}
				q.runOne(ctx, task)
			}
		}
	})
}

func (q *Queue) runOne(ctx context.Context, task *Task) {
	q.logger.Info("Task starting.",
		zap.String("task_id", task.ID), zap.String("goal", task.Goal),
		zap.Duration("queued_for", time.Since(task.Submitted)))

	result := q.runner.Run(ctx, *task)
	task.result <- result

	q.logger.Info("Task finished.",
		zap.String("task_id", task.ID), zap.String("status", string(result.Status)))
}

// drain fails every queued task after cancellation so no submitter hangs.
func (q *Queue) drain(ctx context.Context) {
	for {
		select {
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			task.result <- schemas.RunResult{
				Task:    task.Goal,
				Status:  schemas.RunStopped,
				Summary: "The task was still queued when the worker shut down.",
			}
		default:
			return
		}
	}
}

// Submit enqueues a task without blocking. The returned channel delivers
// exactly one result.
func (q *Queue) Submit(goal, startURL string) (*Task, <-chan schemas.RunResult, error) {
	task := &Task{
		ID:        uuid.NewString(),
		Goal:      goal,
		StartURL:  startURL,
		Submitted: time.Now(),
		result:    make(chan schemas.RunResult, 1),
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, nil, ErrClosed
	}
	select {
	case q.tasks <- task:
		q.mu.Unlock()
		q.logger.Debug("Task queued.", zap.String("task_id", task.ID), zap.Int("backlog", len(q.tasks)))
		return task, task.result, nil
	default:
		q.mu.Unlock()
		return nil, nil, ErrQueueFull
	}
}

// Close stops accepting tasks, lets the worker finish the backlog, and waits
// for it to exit. Close is idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
	q.mu.Unlock()
	if q.group == nil {
		return nil
	}
	err := q.group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
