package services

import (
	"log"
	"sync"
)

// ForwardPool is a bounded worker pool for outbound channel forwards. It
// exists for I/O parallelism only; the reminder throttle is enforced against
// the notification store, not here. The pool is owned by the scheduler
// service and shut down with it.
type ForwardPool struct {
	jobs chan func()
	wg   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewForwardPool starts size workers draining a small buffered job queue.
func NewForwardPool(size int) *ForwardPool {
	p := &ForwardPool{jobs: make(chan func(), size*4)}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// Submit enqueues a forward job. When the queue is full, or the pool is
// already shut down, the job runs inline so a slow channel backs pressure
// into the pass instead of dropping sends.
func (p *ForwardPool) Submit(job func()) {
	p.mu.Lock()
	if !p.closed {
		select {
		case p.jobs <- job:
			p.mu.Unlock()
			return
		default:
		}
	} else {
		log.Printf("Forward pool is shut down, running forward inline")
	}
	p.mu.Unlock()
	job()
}

// Shutdown stops accepting jobs and waits for in-flight forwards to finish.
func (p *ForwardPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
