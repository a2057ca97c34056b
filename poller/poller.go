package poller

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// FD 表示文件描述符。
type FD = int

// Interest 是关注的 I/O 事件集合（位掩码）。
type Interest uint8

const (
	OpAccept Interest = 1 << iota
	OpConnect
	OpRead
	OpWrite
)

func (i Interest) String() string {
	if i == 0 {
		return "none"
	}
	var parts []string
	for _, op := range []struct {
		bit  Interest
		name string
	}{{OpAccept, "accept"}, {OpConnect, "connect"}, {OpRead, "read"}, {OpWrite, "write"}} {
		if i&op.bit != 0 {
			parts = append(parts, op.name)
		}
	}
	return strings.Join(parts, "|")
}

var (
	ErrClosed        = errors.New("poller: closed")
	ErrNotRegistered = errors.New("poller: fd not registered")
	ErrNotSupported  = errors.New("poller: platform not supported")
)

// Registration 为 (fd, 关注集合, 附件) 三元组。
// Cancel 之后 Valid 返回 false，本轮已取出的就绪项不再派发。
type Registration struct {
	FD         FD
	Interest   Interest
	Attachment any

	valid bool
}

func (r *Registration) Valid() bool { return r.valid }

// Ready 为一次 Wait 返回的就绪项。
type Ready struct {
	Reg    *Registration
	Events Interest
}

// rawEvent 为各平台后端上报的原始事件。
type rawEvent struct {
	fd       FD
	readable bool
	writable bool
	hangup   bool
}

// backend 由 epoll / kqueue 实现。
type backend interface {
	add(fd FD, in Interest) error
	mod(fd FD, old, in Interest) error
	del(fd FD, old Interest) error
	wait(events []rawEvent, timeout time.Duration) (int, error)
	wake() error
	close() error
}

// Multiplexer 在平台后端之上维护注册表：每个 fd 至多一条注册。
// 除 Wake 外的方法只允许在事件循环所在 goroutine 调用。
type Multiplexer struct {
	b      backend
	regs   map[FD]*Registration
	events []rawEvent
	index  map[FD]int

	mu     sync.Mutex // 保护 closed，使 Wake 与 Close 互斥
	closed bool
}

// New 创建多路复用器；失败属于启动期致命错误。
func New() (*Multiplexer, error) {
	b, err := newBackend()
	if err != nil {
		return nil, err
	}
	return &Multiplexer{
		b:      b,
		regs:   make(map[FD]*Registration),
		events: make([]rawEvent, 256),
		index:  make(map[FD]int),
	}, nil
}

// Register 注册 fd；已注册时替换关注集合与附件，不会产生重复条目。
func (m *Multiplexer) Register(fd FD, in Interest, attachment any) (*Registration, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	if r, ok := m.regs[fd]; ok {
		if err := m.b.mod(fd, r.Interest, in); err != nil {
			return nil, err
		}
		r.Interest = in
		r.Attachment = attachment
		return r, nil
	}
	if err := m.b.add(fd, in); err != nil {
		return nil, err
	}
	r := &Registration{FD: fd, Interest: in, Attachment: attachment, valid: true}
	m.regs[fd] = r
	return r, nil
}

// Update 只修改关注集合。
func (m *Multiplexer) Update(fd FD, in Interest) error {
	r, ok := m.regs[fd]
	if !ok {
		return ErrNotRegistered
	}
	if r.Interest == in {
		return nil
	}
	if err := m.b.mod(fd, r.Interest, in); err != nil {
		return err
	}
	r.Interest = in
	return nil
}

// Cancel 移除注册。fd 本身由调用方关闭。
func (m *Multiplexer) Cancel(fd FD) error {
	r, ok := m.regs[fd]
	if !ok {
		return ErrNotRegistered
	}
	delete(m.regs, fd)
	r.valid = false
	return m.b.del(fd, r.Interest)
}

func (m *Multiplexer) Lookup(fd FD) (*Registration, bool) {
	r, ok := m.regs[fd]
	return r, ok
}

func (m *Multiplexer) Len() int { return len(m.regs) }

// Registrations 返回当前注册表的快照。
func (m *Multiplexer) Registrations() []*Registration {
	out := make([]*Registration, 0, len(m.regs))
	for _, r := range m.regs {
		out = append(out, r)
	}
	return out
}

// Wait 阻塞至多 timeout，返回就绪的注册；超时或被信号打断时返回空集合。
func (m *Multiplexer) Wait(timeout time.Duration) ([]Ready, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}
	n, err := m.b.wait(m.events, timeout)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	clear(m.index)
	ready := make([]Ready, 0, n)
	for _, ev := range m.events[:n] {
		r, ok := m.regs[ev.fd]
		if !ok {
			continue
		}
		var got Interest
		if ev.readable || ev.hangup {
			got |= r.Interest & (OpAccept | OpRead)
		}
		if ev.writable || ev.hangup {
			got |= r.Interest & (OpConnect | OpWrite)
		}
		if got == 0 {
			continue
		}
		// kqueue 的读/写过滤器分开上报，按 fd 合并
		if i, ok := m.index[ev.fd]; ok {
			ready[i].Events |= got
			continue
		}
		m.index[ev.fd] = len(ready)
		ready = append(ready, Ready{Reg: r, Events: got})
	}
	return ready, nil
}

// Wake 唤醒阻塞中的 Wait，可在任意 goroutine 调用，关闭后调用为空操作。
func (m *Multiplexer) Wake() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	return m.b.wake()
}

// Close 释放底层设施，已有注册随之失效。
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for fd, r := range m.regs {
		r.valid = false
		delete(m.regs, fd)
	}
	return m.b.close()
}

func (m *Multiplexer) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
