package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/infinite-gateway/internal/metrics"
)

// Task is one periodic job of the worker.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Worker runs each task on its own ticker. A tick that arrives while the
// previous run of the same task is still going is skipped; different tasks
// run independently.
type Worker struct {
	tasks   []Task
	running map[string]*atomic.Bool
	log     *zap.Logger
	wg      sync.WaitGroup
}

// Constructor
func NewWorker(log *zap.Logger, tasks ...Task) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Worker{
		tasks:   tasks,
		running: make(map[string]*atomic.Bool, len(tasks)),
		log:     log.With(zap.String("component", "worker")),
	}
	for _, t := range tasks {
		w.running[t.Name] = &atomic.Bool{}
	}
	return w
}

// Start launches one loop per task and returns at once. Loops stop when ctx
// is cancelled; Wait blocks until they and any in-flight runs are done.
func (w *Worker) Start(ctx context.Context) {
	for _, t := range w.tasks {
		w.wg.Add(1)
		go w.loop(ctx, t)
	}
	w.log.Info("worker started", zap.Int("tasks", len(w.tasks)))
}

func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context, t Task) {
	defer w.wg.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				_, _ = w.run(ctx, t)
			}()
		}
	}
}

// Trigger runs the named task now, under the same skip-if-running guard as
// the ticker. It reports whether the task actually ran.
func (w *Worker) Trigger(ctx context.Context, name string) (bool, error) {
	for _, t := range w.tasks {
		if t.Name == name {
			return w.run(ctx, t)
		}
	}
	return false, fmt.Errorf("unknown task %q", name)
}

func (w *Worker) run(ctx context.Context, t Task) (bool, error) {
	flag := w.running[t.Name]
	if !flag.CompareAndSwap(false, true) {
		w.log.Warn("previous run still in progress, skipping", zap.String("task", t.Name))
		metrics.RecordTaskSkip(t.Name)
		return false, nil
	}
	defer flag.Store(false)

	start := time.Now()
	err := t.Run(ctx)
	if err != nil {
		w.log.Error("task failed", zap.String("task", t.Name), zap.Duration("took", time.Since(start)), zap.Error(err))
		return true, err
	}
	w.log.Info("task done", zap.String("task", t.Name), zap.Duration("took", time.Since(start)))
	return true, nil
}
