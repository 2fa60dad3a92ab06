package workerpool

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"orderflow/pkg/logging"
)

type Config struct {
	Workers     int
	QueueLength int
}

// Pool runs submitted tasks on a fixed set of workers with a bounded queue.
// When the queue is full the task runs on the submitting goroutine instead of
// being dropped or queued without bound, so saturation slows producers down
// rather than growing memory.
type Pool struct {
	tasks   chan func()
	wg      sync.WaitGroup
	mux     sync.RWMutex
	stopped bool
	logger  *logging.ZapLogger
}

func New(cfg Config, logger *logging.ZapLogger) *Pool {
	p := &Pool{
		tasks:  make(chan func(), cfg.QueueLength),
		logger: logger,
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.worker()
		}()
	}
	return p
}

func (p *Pool) worker() {
	for task := range p.tasks {
		p.run(task)
	}
}

func (p *Pool) run(task func()) {
	defer func() {
		if rcv := recover(); rcv != nil {
			p.logger.ErrorCtx(context.Background(), "panic in pool task",
				zap.Any("recover", rcv))
		}
	}()
	task()
}

// Submit enqueues task, running it inline when the queue is saturated or the
// pool is already stopped. Producers that race shutdown (a sweep finishing
// while the process drains) degrade to caller-runs instead of panicking on
// the closed queue.
func (p *Pool) Submit(task func()) {
	p.mux.RLock()
	if p.stopped {
		p.mux.RUnlock()
		p.run(task)
		return
	}
	select {
	case p.tasks <- task:
		p.mux.RUnlock()
	default:
		p.mux.RUnlock()
		p.run(task)
	}
}

// Stop closes the queue and waits for in-flight and queued tasks to finish.
func (p *Pool) Stop() {
	p.mux.Lock()
	if !p.stopped {
		p.stopped = true
		close(p.tasks)
	}
	p.mux.Unlock()
	p.wg.Wait()
}
