// Package queue serializes rate-limited runtime calls: tasks run strictly in
// enqueue order with a fixed pause between consecutive calls.
package queue

import (
	"context"
	"sync"
	"time"

	"onebridge/internal/logger"
	"onebridge/internal/runtime"
	apperrors "onebridge/pkg/errors"
	"onebridge/pkg/metrics"
)

type Task struct {
	Method string
	Args   []any
}

type Queue struct {
	rt     runtime.Runtime
	delay  time.Duration
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tasks   []Task
	running bool
	wg      sync.WaitGroup
}

func New(rt runtime.Runtime, delay time.Duration, log logger.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		rt:     rt,
		delay:  delay,
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue appends task and starts the consumer if it is idle. It never
// blocks on the runtime.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.ctx.Err() != nil {
		q.logger.Warnw("Rate limited queue closed, dropping task", "method", task.Method)
		return
	}

	q.tasks = append(q.tasks, task)
	metrics.SetQueueSize(len(q.tasks))

	if q.running {
		return
	}
	q.running = true
	q.wg.Add(1)
	go q.drain()
}

// Len is the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Close stops the consumer. Tasks still waiting are dropped.
func (q *Queue) Close() {
	q.cancel()
	q.wg.Wait()

	q.mu.Lock()
	dropped := len(q.tasks)
	q.tasks = nil
	q.mu.Unlock()

	if dropped > 0 {
		q.logger.Warnw("Rate limited queue closed with pending tasks", "dropped", dropped)
	}
	metrics.SetQueueSize(0)
}

func (q *Queue) drain() {
	defer q.wg.Done()

	for {
		task, ok := q.pop()
		if !ok {
			return
		}

		go q.invoke(task)
		metrics.QueueTasksTotal.Inc()

		timer := time.NewTimer(q.delay)
		select {
		case <-timer.C:
		case <-q.ctx.Done():
			timer.Stop()
			q.mu.Lock()
			q.running = false
			q.mu.Unlock()
			return
		}
	}
}

func (q *Queue) pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 || q.ctx.Err() != nil {
		q.running = false
		return Task{}, false
	}

	task := q.tasks[0]
	q.tasks[0] = Task{}
	q.tasks = q.tasks[1:]
	metrics.SetQueueSize(len(q.tasks))
	return task, true
}

func (q *Queue) invoke(task Task) {
	err := apperrors.Guard(func() error {
		res, err := q.rt.Invoke(q.ctx, task.Method, task.Args)
		if err != nil {
			return err
		}
		if res.Error != nil {
			q.logger.Warnw("Rate limited call failed",
				"method", task.Method,
				"retcode", res.Retcode,
				"error", res.Error.Message,
			)
		}
		return nil
	})
	if err != nil {
		q.logger.Errorw("Rate limited call error",
			"method", task.Method,
			"error", err,
		)
	}
}
