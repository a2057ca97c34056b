//go:build linux || darwin

package server

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/legamerdc/tio/poller"
	"github.com/legamerdc/tio/reactor"
	"github.com/legamerdc/tio/transport"
)

// Server 是时间服务的反应器实现：单个事件循环负责监听与全部连接。
type Server struct {
	cfg    Config
	log    *zap.Logger
	loop   *reactor.Loop
	ln     *transport.Listener
	conns  atomic.Int64
	orders atomic.Int64
}

// New 创建事件循环并绑定监听地址；任一失败都是启动期致命错误。
func New(cfg Config) (*Server, error) {
	cfg.normalize()
	loop, err := reactor.New(reactor.Config{WaitTimeout: cfg.WaitTimeout, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	ln, err := transport.Listen(transport.ListenConfig{
		Network:   cfg.ListenNetwork,
		Address:   cfg.ListenAddress,
		Backlog:   cfg.Backlog,
		ReusePort: cfg.ReusePort,
		NoDelay:   cfg.NoDelay,
		SendBuf:   cfg.SendBufferSize,
		RecvBuf:   cfg.RecvBufferSize,
	})
	if err != nil {
		loop.Close()
		return nil, fmt.Errorf("server: listen %s: %w", cfg.ListenAddress, err)
	}
	s := &Server{cfg: cfg, log: cfg.Logger, loop: loop, ln: ln}
	if err := loop.Register(ln, poller.OpAccept, reactor.HandlerFunc(s.onAcceptable)); err != nil {
		ln.Close()
		loop.Close()
		return nil, fmt.Errorf("server: register listener: %w", err)
	}
	return s, nil
}

// Addr 返回实际绑定的地址。
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// ConnCount 返回当前存活的连接数，可在任意 goroutine 调用。
func (s *Server) ConnCount() int { return int(s.conns.Load()) }

// Orders 返回已处理的请求行数。
func (s *Server) Orders() int64 { return s.orders.Load() }

// Serve 阻塞运行事件循环，直到 Stop 或 ctx 取消。
func (s *Server) Serve(ctx context.Context) error {
	s.log.Info("the time server is started", zap.String("addr", addrString(s.Addr())))
	err := s.loop.Run(ctx)
	s.log.Info("the time server is stopped", zap.String("addr", addrString(s.Addr())), zap.Error(err))
	return err
}

// Stop 请求停止，可在任意 goroutine 调用。
func (s *Server) Stop() { s.loop.Stop() }

// Done 在事件循环退出且全部连接关闭后关闭。
func (s *Server) Done() <-chan struct{} { return s.loop.Done() }

// Close 释放一个未运行的 Server；运行中时等同于 Stop。
func (s *Server) Close() error { return s.loop.Close() }

// onAcceptable 每次就绪只接受一个连接；水平触发下剩余的挂起连接会在下一轮再次上报。
func (s *Server) onAcceptable(l *reactor.Loop, _ reactor.Channel, _ poller.Interest) error {
	h, err := s.ln.Accept()
	if err != nil {
		// 监听 socket 的错误（如 EMFILE）不拆除监听，等待下一轮
		s.log.Warn("accept failed", zap.Error(err))
		return nil
	}
	if h == nil {
		return nil
	}
	c := newConnection(s, h)
	if err := l.Register(c, poller.OpRead, c); err != nil {
		h.Close()
		return nil
	}
	s.conns.Add(1)
	s.log.Debug("connection accepted", zap.Int("fd", h.FD()), zap.String("remote", addrString(h.RemoteAddr())))
	return nil
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
