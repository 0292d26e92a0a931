package worker

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolClosed is the error of a task submitted after Wait or Shutdown
var ErrPoolClosed = errors.New("worker pool closed")

// Task is a unit of work executed by a Pool
type Task[T any] func(ctx context.Context) (T, error)

// Outcome is the result of one submitted task
type Outcome[T any] struct {
	Index   int // Submission order
	Value   T
	Err     error
	Skipped bool // Never started because the pool's context was cancelled
}

type queued[T any] struct {
	index int
	task  Task[T]
}

// Pool runs tasks on a fixed number of workers. Once the parent context is
// cancelled, queued tasks are skipped rather than started.
type Pool[T any] struct {
	workers    int
	jobQueue   chan queued[T]
	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc

	sendMu sync.RWMutex // Held for writing while closing the queue
	closed bool

	mu       sync.Mutex
	outcomes []Outcome[T]
	next     int
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool[T any](ctx context.Context, workers int) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool[T]{
		workers:    workers,
		jobQueue:   make(chan queued[T], workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start starts the worker pool
func (p *Pool[T]) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool[T]) worker() {
	defer p.wg.Done()

	for job := range p.jobQueue {
		if err := p.ctx.Err(); err != nil {
			p.record(Outcome[T]{Index: job.index, Err: err, Skipped: true})
			continue
		}
		value, err := job.task(p.ctx)
		p.record(Outcome[T]{Index: job.index, Value: value, Err: err})
	}
}

func (p *Pool[T]) record(o Outcome[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes[o.Index] = o
}

// Submit queues a task and returns its index. It blocks while the queue is
// full. Tasks submitted after Wait or Shutdown are recorded as skipped.
func (p *Pool[T]) Submit(task Task[T]) int {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	p.mu.Lock()
	index := p.next
	p.next++
	p.outcomes = append(p.outcomes, Outcome[T]{Index: index})
	p.mu.Unlock()

	if p.closed {
		p.record(Outcome[T]{Index: index, Err: ErrPoolClosed, Skipped: true})
		return index
	}

	p.jobQueue <- queued[T]{index: index, task: task}
	return index
}

// Wait closes the queue, waits for all tasks and returns outcomes in submission order
func (p *Pool[T]) Wait() []Outcome[T] {
	p.closeQueue()
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Outcome[T], len(p.outcomes))
	copy(out, p.outcomes)
	return out
}

// Shutdown cancels running tasks, skips queued ones and waits for the workers
func (p *Pool[T]) Shutdown() {
	p.cancelFunc()
	p.closeQueue()
	p.wg.Wait()
}

func (p *Pool[T]) closeQueue() {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
}

// Run executes tasks on a pool of workers and returns their outcomes in order
func Run[T any](ctx context.Context, workers int, tasks []Task[T]) []Outcome[T] {
	pool := NewPool[T](ctx, workers)
	pool.Start()
	defer pool.cancelFunc()

	for _, task := range tasks {
		pool.Submit(task)
	}
	return pool.Wait()
}
