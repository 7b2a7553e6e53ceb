// Package workqueue runs keyed background tasks on a fixed set of workers. A
// key is accepted again only once its previous task has returned.
package workqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

type Task func(ctx context.Context) error

var (
	ErrDuplicateKey = errors.New("workqueue: task with this key is already queued or running")
	ErrQueueFull    = errors.New("workqueue: queue is full")
	ErrStopped      = errors.New("workqueue: pool is stopped")
)

type job struct {
	key  string
	task Task
}

type Pool struct {
	log     zerolog.Logger
	workers int
	jobs    chan job

	mu      sync.Mutex
	keys    map[string]struct{}
	stopped bool
	started bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(workers, queue int, log zerolog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	return &Pool{
		log:     log.With().Str("component", "workqueue").Logger(),
		workers: workers,
		jobs:    make(chan job, queue),
		keys:    make(map[string]struct{}),
	}
}

// Start launches the workers. Tasks run with a context derived from ctx, which
// is also cancelled when Stop gives up waiting.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	p.ctx, p.cancel = context.WithCancel(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.log.Info().Int("workers", p.workers).Int("queue", cap(p.jobs)).Msg("worker pool started")
}

func (p *Pool) Submit(key string, task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrStopped
	}
	if _, ok := p.keys[key]; ok {
		return ErrDuplicateKey
	}

	select {
	case p.jobs <- job{key: key, task: task}:
		p.keys[key] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

// Busy reports whether a task for key is queued or running.
func (p *Pool) Busy(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.keys[key]
	return ok
}

func (p *Pool) work(n int) {
	defer p.wg.Done()
	for j := range p.jobs {
		p.run(n, j)
	}
}

func (p *Pool) run(n int, j job) {
	defer func() {
		p.mu.Lock()
		delete(p.keys, j.key)
		p.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Str("key", j.key).Int("worker", n).Interface("panic", r).Msg("task panicked")
		}
	}()

	if err := j.task(p.ctx); err != nil {
		p.log.Warn().Err(err).Str("key", j.key).Int("worker", n).Msg("task returned an error")
	}
}

// Stop rejects new tasks, lets queued ones finish and waits for the workers.
// When ctx expires first the running tasks are cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.jobs)
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		p.log.Info().Msg("worker pool stopped")
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("workqueue: stop: %w", ctx.Err())
	}
}
