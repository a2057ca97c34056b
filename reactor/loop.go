// Package reactor 实现单 goroutine 的就绪事件循环：等待就绪、逐个派发、出错的连接单独拆除。
package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/legamerdc/tio/poller"
)

var (
	ErrAlreadyRunning = errors.New("reactor: loop already started")
	ErrStopped        = errors.New("reactor: loop stopped")
)

// State 为事件循环的生命周期：Idle → Running → Draining → Stopped。
type State int32

const (
	Idle State = iota
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Channel 是可注册到循环上的 fd 持有者，Cancel 时由循环关闭。
type Channel interface {
	FD() int
	Close() error
}

// Handler 处理一次就绪通知。返回错误表示该连接故障：循环会注销并关闭它。
// 在循环 goroutine 中调用，不得阻塞。
type Handler interface {
	OnReady(l *Loop, ch Channel, ready poller.Interest) error
}

type HandlerFunc func(l *Loop, ch Channel, ready poller.Interest) error

func (f HandlerFunc) OnReady(l *Loop, ch Channel, ready poller.Interest) error { return f(l, ch, ready) }

type Config struct {
	// WaitTimeout 为每轮等待的上限，只用于及时观察 Stop，不是连接超时。
	WaitTimeout time.Duration
	Logger      *zap.Logger
}

func DefaultConfig() Config {
	return Config{WaitTimeout: time.Second}
}

type binding struct {
	ch Channel
	h  Handler
}

// Loop 拥有一个 Multiplexer 以及自己的 Channel 注册表；
// 多路复用器失效后仍能依据该注册表关闭全部 Channel。
// 除 Stop / State / Done 外的方法只能在循环 goroutine（或 Run 之前）调用。
type Loop struct {
	mux     *poller.Multiplexer
	chans   map[poller.FD]*binding
	timeout time.Duration
	log     *zap.Logger

	stopping atomic.Bool
	state    atomic.Int32
	done     chan struct{}
}

// New 创建事件循环；多路复用器创建失败属于启动期致命错误。
func New(cfg Config) (*Loop, error) {
	mux, err := poller.New()
	if err != nil {
		return nil, fmt.Errorf("reactor: open multiplexer: %w", err)
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Loop{
		mux:     mux,
		chans:   make(map[poller.FD]*binding),
		timeout: cfg.WaitTimeout,
		log:     cfg.Logger,
		done:    make(chan struct{}),
	}, nil
}

// Register 注册 ch；已注册时替换关注集合与处理器。
func (l *Loop) Register(ch Channel, in poller.Interest, h Handler) error {
	if l.State() >= Draining {
		return ErrStopped
	}
	b := &binding{ch: ch, h: h}
	if _, err := l.mux.Register(ch.FD(), in, b); err != nil {
		return err
	}
	l.chans[ch.FD()] = b
	return nil
}

// SetInterest 修改 ch 的关注集合。
func (l *Loop) SetInterest(ch Channel, in poller.Interest) error {
	return l.mux.Update(ch.FD(), in)
}

// Interest 返回 ch 当前的关注集合，未注册返回 0。
func (l *Loop) Interest(ch Channel) poller.Interest {
	if r, ok := l.mux.Lookup(ch.FD()); ok {
		return r.Interest
	}
	return 0
}

// Cancel 注销并关闭 ch，可重复调用。
func (l *Loop) Cancel(ch Channel) error {
	if b, ok := l.chans[ch.FD()]; ok && b.ch == ch {
		delete(l.chans, ch.FD())
		_ = l.mux.Cancel(ch.FD())
	}
	return ch.Close()
}

// Len 返回注册表中的条目数。
func (l *Loop) Len() int { return len(l.chans) }

func (l *Loop) State() State { return State(l.state.Load()) }

// Done 在循环完全停止后关闭。
func (l *Loop) Done() <-chan struct{} { return l.done }

// Stop 请求循环退出，可在任意 goroutine 调用；最迟在下一轮等待结束时生效。
// 这是外部向循环发信号的唯一途径。
func (l *Loop) Stop() {
	if l.stopping.Swap(true) {
		return
	}
	_ = l.mux.Wake()
}

// Run 运行事件循环直到 Stop、ctx 取消或等待本身出错。
// 退出前关闭所有仍注册的 Channel，再关闭多路复用器。
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.CompareAndSwap(int32(Idle), int32(Running)) {
		return ErrAlreadyRunning
	}
	if ctx != nil {
		stop := context.AfterFunc(ctx, l.Stop)
		defer stop()
	}

	var runErr error
	for !l.stopping.Load() {
		ready, err := l.mux.Wait(l.timeout)
		if err != nil {
			l.log.Error("reactor: wait failed", zap.Error(err))
			runErr = fmt.Errorf("reactor: wait: %w", err)
			break
		}
		for _, r := range ready {
			// 同一轮中前面的处理器可能已注销该连接
			if !r.Reg.Valid() {
				continue
			}
			l.dispatch(r.Reg, r.Events)
		}
	}
	l.drain()
	return runErr
}

func (l *Loop) dispatch(reg *poller.Registration, ready poller.Interest) {
	b, ok := reg.Attachment.(*binding)
	if !ok {
		return
	}
	err := l.safeCall(b, ready)
	if err == nil {
		return
	}
	l.log.Debug("reactor: channel fault, closing",
		zap.Int("fd", b.ch.FD()), zap.Stringer("ready", ready), zap.Error(err))
	if cerr := l.Cancel(b.ch); cerr != nil {
		l.log.Debug("reactor: close failed", zap.Int("fd", b.ch.FD()), zap.Error(cerr))
	}
}

// safeCall 把处理器的 panic 限制在单个连接范围内。
func (l *Loop) safeCall(b *binding, ready poller.Interest) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reactor: handler panic: %v", p)
		}
	}()
	return b.h.OnReady(l, b.ch, ready)
}

// Close 释放一个从未运行的循环；运行中的循环等同于 Stop。
func (l *Loop) Close() error {
	l.Stop()
	if l.state.CompareAndSwap(int32(Idle), int32(Running)) {
		l.drain()
	}
	return nil
}

func (l *Loop) drain() {
	l.state.Store(int32(Draining))
	n := len(l.chans)
	for _, b := range l.chans {
		_ = l.Cancel(b.ch)
	}
	if n > 0 {
		l.log.Debug("reactor: drained channels", zap.Int("count", n))
	}
	if err := l.mux.Close(); err != nil {
		l.log.Warn("reactor: close multiplexer", zap.Error(err))
	}
	l.state.Store(int32(Stopped))
	close(l.done)
}
