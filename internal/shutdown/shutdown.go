package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Task is one cleanup step run during shutdown.
type Task func(ctx context.Context) error

const defaultTimeout = 30 * time.Second

// Coordinator tears down application components in reverse registration
// order, bounded by an overall timeout. Register components as they come up;
// the last one started is the first one stopped.
type Coordinator struct {
	mu      sync.Mutex
	tasks   []namedTask
	timeout time.Duration
	logger  *slog.Logger

	once   sync.Once
	done   chan struct{}
	errs   []error
	closed bool
}

type namedTask struct {
	name string
	task Task
}

func NewCoordinator(timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		timeout: timeout,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Register adds a cleanup task. Returns an error once shutdown has begun.
func (c *Coordinator) Register(name string, task Task) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.New("shutdown already started")
	}
	c.tasks = append(c.tasks, namedTask{name: name, task: task})
	return nil
}

// Shutdown runs all tasks newest-first under the coordinator's timeout.
// Idempotent; concurrent callers all block until the first run finishes.
func (c *Coordinator) Shutdown() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		tasks := make([]namedTask, len(c.tasks))
		copy(tasks, c.tasks)
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		for i := len(tasks) - 1; i >= 0; i-- {
			nt := tasks[i]

			if ctx.Err() != nil {
				c.logger.Warn("shutdown timeout exceeded, skipping remaining tasks",
					"skipped", nt.name)
				c.recordErr(ctx.Err())
				break
			}

			c.logger.Debug("shutdown task starting", "task", nt.name)
			if err := nt.task(ctx); err != nil {
				c.logger.Error("shutdown task failed", "task", nt.name, "error", err)
				c.recordErr(err)
			}
		}

		close(c.done)
		c.logger.Info("shutdown complete", "tasks", len(tasks), "errors", len(c.errs))
	})
	<-c.done
}

// Wait blocks until a Shutdown call has completed.
func (c *Coordinator) Wait() {
	<-c.done
}

// Errs returns the errors collected during shutdown.
func (c *Coordinator) Errs() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.errs))
	copy(out, c.errs)
	return out
}

func (c *Coordinator) recordErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}
