package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/entrhq/resultbot/pkg/logging"
)

// Workflow is a unit of work run against an exclusively held Context.
type Workflow func(ctx context.Context, bc Context) error

// slot holds one execution context. A nil ctx is refilled on acquisition.
type slot struct {
	id  int
	ctx Context
}

// Pool schedules workflows onto a fixed number of execution contexts.
type Pool struct {
	factory Factory
	size    int
	idle    chan *slot
	closing chan struct{}
	logger  *logging.Logger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup

	busy    atomic.Int32
	waiting atomic.Int32
}

// Stats is a snapshot of pool usage.
type Stats struct {
	Size    int
	Busy    int
	Waiting int
}

// NewPool creates a pool of size slots backed by factory.
// Contexts are created lazily, the first time a slot is used.
func NewPool(factory Factory, size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}

	p := &Pool{
		factory: factory,
		size:    size,
		idle:    make(chan *slot, size),
		closing: make(chan struct{}),
		logger:  logging.NewLogger("pool"),
	}
	for i := 0; i < size; i++ {
		p.idle <- &slot{id: i}
	}
	return p
}

// Submit blocks until a context is free, runs wf on it, and returns the
// context to the pool on every exit path. Waiters are served in arrival order.
func (p *Pool) Submit(ctx context.Context, wf Workflow) error {
	if !p.admit() {
		return ErrPoolClosed
	}
	defer p.inflight.Done()

	s, err := p.acquire(ctx)
	if err != nil {
		return err
	}

	p.busy.Add(1)
	defer p.busy.Add(-1)

	err = p.run(ctx, s, wf)
	p.release(s, err)
	return err
}

// Run submits fn and returns its value.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context, bc Context) (T, error)) (T, error) {
	var result T
	err := p.Submit(ctx, func(ctx context.Context, bc Context) error {
		v, err := fn(ctx, bc)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

// admit registers an in-flight submission unless the pool is closed.
func (p *Pool) admit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false
	}
	p.inflight.Add(1)
	return true
}

func (p *Pool) acquire(ctx context.Context) (*slot, error) {
	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	var s *slot
	select {
	case s = <-p.idle:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closing:
		return nil, ErrPoolClosed
	}

	if s.ctx != nil {
		return s, nil
	}

	bc, err := p.factory.NewContext()
	if err != nil {
		p.idle <- s
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	s.ctx = bc
	p.logger.Debugf("slot %d: context created", s.id)
	return s, nil
}

// run executes wf and converts a panic into an error so the slot is still released.
func (p *Pool) run(ctx context.Context, s *slot, wf Workflow) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workflow panicked: %v", r)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return wf(ctx, s.ctx)
}

// release resets the context after success and discards it after failure.
func (p *Pool) release(s *slot, runErr error) {
	defer func() { p.idle <- s }()

	if runErr == nil {
		err := s.ctx.Reset()
		if err == nil {
			return
		}
		p.logger.Warnf("slot %d: reset failed, replacing context: %v", s.id, err)
	} else {
		p.logger.Debugf("slot %d: workflow failed, replacing context: %v", s.id, runErr)
	}

	if err := s.ctx.Close(); err != nil {
		p.logger.Warnf("slot %d: close failed: %v", s.id, err)
	}
	s.ctx = nil
}

// Stats returns current usage counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Size:    p.size,
		Busy:    int(p.busy.Load()),
		Waiting: int(p.waiting.Load()),
	}
}

// Close stops accepting work and waits for in-flight workflows until ctx is
// done. It then closes every idle context and the factory. If workflows were
// still running, the factory is closed first so their browser calls fail, and
// ErrShutdownForced is returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.closing)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	var errs []error
	factoryClosed := false
	select {
	case <-done:
	case <-ctx.Done():
		p.logger.Warnf("grace period exceeded with %d workflow(s) running, forcing shutdown", p.busy.Load())
		errs = append(errs, ErrShutdownForced)
		if err := p.factory.Close(); err != nil {
			errs = append(errs, err)
		}
		factoryClosed = true
	}

	p.drain()

	if !factoryClosed {
		if err := p.factory.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	p.logger.Infof("pool closed")
	return errors.Join(errs...)
}

// drain closes the contexts of all idle slots. Slots still held by a
// workflow come back later with a context that died with the browser.
func (p *Pool) drain() {
	var drained []*slot
	defer func() {
		for _, s := range drained {
			p.idle <- s
		}
	}()

	for {
		select {
		case s := <-p.idle:
			if s.ctx != nil {
				if err := s.ctx.Close(); err != nil {
					p.logger.Debugf("slot %d: close during shutdown: %v", s.id, err)
				}
				s.ctx = nil
			}
			drained = append(drained, s)
		default:
			return
		}
	}
}
