//go:build linux || darwin

// Package client 是时间协议的非阻塞客户端：在单个事件循环上完成一次
// 连接、请求、应答的交换。
package client

import (
	"context"
	"errors"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/legamerdc/tio/poller"
	"github.com/legamerdc/tio/protocol"
	"github.com/legamerdc/tio/reactor"
	"github.com/legamerdc/tio/transport"
)

// State 为一次交换的进度：Connecting → AwaitingResponse → Done。
type State int32

const (
	Connecting State = iota
	AwaitingResponse
	Done
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case AwaitingResponse:
		return "awaiting-response"
	case Done:
		return "done"
	}
	return "unknown"
}

// Client 只做一次交换；Run 返回后不可复用。
type Client struct {
	cfg     Config
	log     *zap.Logger
	loop    *reactor.Loop
	h       *transport.Handle
	dec     *protocol.Decoder
	req     *protocol.Frame
	state   State
	started bool
	resp    string
	err     error
}

func New(cfg Config) (*Client, error) {
	cfg.normalize()
	if strings.ContainsAny(cfg.Order, "\r\n") {
		return nil, ErrInvalidOrder
	}
	loop, err := reactor.New(reactor.Config{WaitTimeout: cfg.WaitTimeout, Logger: cfg.Logger})
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:  cfg,
		log:  cfg.Logger,
		loop: loop,
		dec:  protocol.NewDecoder(cfg.MaxLineSize),
		req:  protocol.NewFrame(protocol.Encode(cfg.Order)),
	}, nil
}

// Query 用 cfg 完成一次交换并返回应答行。
func Query(ctx context.Context, cfg Config) (string, error) {
	c, err := New(cfg)
	if err != nil {
		return "", err
	}
	return c.Run(ctx)
}

// State 仅在 Run 返回后读取才有意义。
func (c *Client) State() State { return c.state }

// Stop 中止交换，可在任意 goroutine 调用。
func (c *Client) Stop() { c.loop.Stop() }

// Run 发起连接并阻塞运行事件循环，直到收到应答、出错或 ctx 取消。
func (c *Client) Run(ctx context.Context) (string, error) {
	if c.started {
		return "", ErrAlreadyRun
	}
	c.started = true
	h, err := transport.Dial(c.cfg.Network, c.cfg.Address)
	if err != nil {
		c.loop.Close()
		return "", &ConnectError{Addr: c.cfg.Address, Err: err}
	}
	c.h = h

	if h.State() == transport.Connected {
		err = c.loop.Register(c, poller.OpRead, c)
		if err == nil {
			err = c.connected(c.loop)
		}
	} else {
		err = c.loop.Register(c, poller.OpConnect, c)
	}
	if err != nil {
		c.h.Close()
		c.loop.Close()
		return "", err
	}

	if err := c.loop.Run(ctx); err != nil {
		return "", err
	}
	switch {
	case c.state == Done:
		return c.resp, nil
	case c.err != nil:
		return "", c.err
	case ctx != nil && ctx.Err() != nil:
		return "", ctx.Err()
	}
	return "", reactor.ErrStopped
}

func (c *Client) FD() int { return c.h.FD() }

// Close 由事件循环在注销时调用；连接结束即交换结束，顺带停止循环。
func (c *Client) Close() error {
	c.loop.Stop()
	return c.h.Close()
}

// OnReady 处理器返回的错误由事件循环负责注销并关闭连接。
func (c *Client) OnReady(l *reactor.Loop, _ reactor.Channel, ready poller.Interest) error {
	if err := c.onReady(l, ready); err != nil {
		if c.err == nil {
			c.err = err
		}
		return err
	}
	return nil
}

func (c *Client) onReady(l *reactor.Loop, ready poller.Interest) error {
	if c.state == Connecting {
		if ready&poller.OpConnect == 0 {
			return nil
		}
		ok, err := c.h.FinishConnect()
		if err != nil {
			return &ConnectError{Addr: c.cfg.Address, Err: err}
		}
		if !ok {
			return nil
		}
		return c.connected(l)
	}
	if ready&poller.OpWrite != 0 && c.req.Remaining() > 0 {
		if err := c.write(l); err != nil {
			return err
		}
	}
	if ready&poller.OpRead != 0 {
		return c.onReadable(l)
	}
	return nil
}

func (c *Client) connected(l *reactor.Loop) error {
	c.state = AwaitingResponse
	c.log.Debug("connected", zap.String("server", c.cfg.Address), zap.Int("fd", c.h.FD()))
	return c.write(l)
}

// write 写出请求的剩余部分；写不完时额外关注可写事件。
func (c *Client) write(l *reactor.Loop) error {
	n, err := c.h.Write(c.req.Bytes())
	if err != nil {
		return err
	}
	c.req.Advance(n)
	in := poller.OpRead
	if c.req.Remaining() > 0 {
		in |= poller.OpWrite
	}
	if l.Interest(c) == in {
		return nil
	}
	return l.SetInterest(c, in)
}

func (c *Client) onReadable(l *reactor.Loop) error {
	buf := make([]byte, c.cfg.ReadBufferSize)
	n, err := c.h.Read(buf)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			return err
		}
		rest, rerr := c.dec.Rest()
		if rerr != nil {
			return rerr
		}
		if rest == "" {
			return ErrClosedBeforeResponse
		}
		// 对端未发分隔符就关闭，剩余数据即为应答
		return c.done(l, rest)
	}
	if n == 0 {
		return nil
	}
	if err := c.dec.Feed(buf[:n]); err != nil {
		return err
	}
	line, ok, err := c.dec.Next()
	if err != nil || !ok {
		return err
	}
	return c.done(l, line)
}

func (c *Client) done(l *reactor.Loop, resp string) error {
	c.state = Done
	c.resp = resp
	c.log.Info("Now is", zap.String("time", resp))
	l.Stop()
	_ = l.Cancel(c)
	return nil
}
