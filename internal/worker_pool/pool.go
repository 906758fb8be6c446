package worker_pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
)

// Task represents a unit of work to execute
type Task[T any] func(ctx context.Context) (T, error)

// Result represents the result of a task execution
type Result[T any] struct {
	Value T
	Error error
}

// WorkerPool executes tasks concurrently with semaphore-based limiting.
// A pool may be shared; the limit applies across concurrent Run calls.
type WorkerPool struct {
	maxWorkers int
	semaphore  chan struct{}
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
	}
}

// Run executes all tasks concurrently and returns results in task order.
// One task failing or panicking does not affect the others.
func Run[T any](ctx context.Context, wp *WorkerPool, tasks []Task[T]) []Result[T] {
	if len(tasks) == 0 {
		return []Result[T]{}
	}

	results := make([]Result[T], len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(index int, t Task[T]) {
			defer wg.Done()

			// Acquire semaphore (blocks if max workers already running)
			select {
			case wp.semaphore <- struct{}{}:
				defer func() { <-wp.semaphore }()
			case <-ctx.Done():
				results[index] = Result[T]{Error: ctx.Err()}
				return
			}

			results[index] = runTask(ctx, t)
		}(i, task)
	}

	wg.Wait()
	return results
}

func runTask[T any](ctx context.Context, t Task[T]) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			res = Result[T]{Error: fmt.Errorf("task panicked: %v", r)}
		}
	}()
	value, err := t(ctx)
	return Result[T]{Value: value, Error: err}
}

// GetMaxWorkers returns the maximum number of workers
func (wp *WorkerPool) GetMaxWorkers() int {
	return wp.maxWorkers
}
