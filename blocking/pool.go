package blocking

import (
	"errors"
	"sync"
)

var (
	ErrPoolFull   = errors.New("blocking: task queue is full")
	ErrPoolClosed = errors.New("blocking: pool closed")
)

// Pool 为固定数量的 worker 加有界任务队列；队列满时直接拒绝，不阻塞调用方。
type Pool struct {
	tasks   chan func()
	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	onPanic func(any)
}

// NewPool 启动 workers 个 worker，队列容量为 queueSize。
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{tasks: make(chan func(), queueSize)}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit 投递任务；worker 全忙且队列已满时返回 ErrPoolFull。
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrPoolFull
	}
}

// Close 拒绝新任务，等待已入队的任务执行完。
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.safeExecute(task)
	}
}

func (p *Pool) safeExecute(task func()) {
	defer func() {
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	task()
}
