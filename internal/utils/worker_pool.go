package utils

import (
	"context"
	"sync"
)

// WorkerPool executes submitted tasks on a fixed number of workers. The
// pool size bounds concurrency independent of how many tasks are queued.
type WorkerPool struct {
	workers   int
	jobQueue  chan func()
	waitGroup sync.WaitGroup
}

// NewWorkerPool creates a WorkerPool with the specified number of workers.
func NewWorkerPool(workers int) *WorkerPool {
	pool := &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers),
	}

	pool.waitGroup.Add(workers)
	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	return pool
}

func (wp *WorkerPool) worker() {
	defer wp.waitGroup.Done()
	for task := range wp.jobQueue {
		task()
	}
}

// Submit queues a task, blocking while all workers are busy and the queue is
// full. It returns the context's error instead of queueing when ctx is
// cancelled first.
func (wp *WorkerPool) Submit(ctx context.Context, task func()) error {
	select {
	case wp.jobQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting tasks and waits for in-flight ones to finish.
func (wp *WorkerPool) Shutdown() {
	close(wp.jobQueue)
	wp.waitGroup.Wait()
}
