// Package blocking 是时间协议的阻塞 I/O 版本：每个连接占用一个 worker，
// 用有界线程池限制并发。用作对照实现，不依赖事件循环。
package blocking

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/legamerdc/tio/protocol"
)

type Config struct {
	Network     string // tcp / tcp4 / tcp6
	Address     string // 如 ":8080"
	Workers     int    // 同时处理的连接上限
	QueueSize   int    // 等待 worker 的连接上限，超出即拒绝
	MaxLineSize int    // 单行上限
	Logger      *zap.Logger
	Now         func() time.Time
}

func DefaultConfig() Config {
	return Config{
		Network:     "tcp",
		Address:     ":8080",
		Workers:     50,
		QueueSize:   1000,
		MaxLineSize: 64 << 10,
	}
}

func (c *Config) normalize() {
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.Workers <= 0 {
		c.Workers = 50
	}
	if c.MaxLineSize <= 0 {
		c.MaxLineSize = 64 << 10
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

type Server struct {
	cfg  Config
	log  *zap.Logger
	ln   net.Listener
	pool *Pool

	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	closed bool
}

// Listen 绑定地址并创建线程池，Serve 之前连接只在内核队列中排队。
func Listen(cfg Config) (*Server, error) {
	cfg.normalize()
	ln, err := net.Listen(cfg.Network, cfg.Address)
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:   cfg,
		log:   cfg.Logger,
		ln:    ln,
		pool:  NewPool(cfg.Workers, cfg.QueueSize),
		conns: make(map[net.Conn]struct{}),
	}
	s.pool.onPanic = func(r any) { s.log.Error("handler panic", zap.Any("panic", r)) }
	return s, nil
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Serve 循环 accept 并把连接交给线程池，Close 之后返回 nil。
func (s *Server) Serve() error {
	s.log.Info("the time server is started", zap.String("addr", s.Addr().String()))
	defer s.log.Info("the time server is stopped", zap.String("addr", s.Addr().String()))
	for {
		c, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !s.track(c) {
			c.Close()
			return nil
		}
		if err := s.pool.Submit(func() { s.handle(c) }); err != nil {
			s.log.Warn("connection rejected", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
			s.untrack(c)
			c.Close()
		}
	}
}

// Close 关闭监听与所有存活连接，并等待 worker 退出。
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.ln.Close()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.pool.Close()
	return err
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// handle 逐行应答直到对端关闭。
func (s *Server) handle(c net.Conn) {
	defer func() {
		s.untrack(c)
		c.Close()
	}()
	sc := bufio.NewScanner(c)
	sc.Buffer(make([]byte, 0, 1024), s.cfg.MaxLineSize)
	for sc.Scan() {
		order := strings.TrimSuffix(sc.Text(), "\r")
		s.log.Info("the time server receive order", zap.String("order", order))
		if _, err := c.Write(protocol.Encode(protocol.Answer(order, s.cfg.Now()))); err != nil {
			s.log.Debug("write failed", zap.Error(err))
			return
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.log.Debug("read failed", zap.String("remote", c.RemoteAddr().String()), zap.Error(err))
	}
}
