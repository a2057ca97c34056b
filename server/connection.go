//go:build linux || darwin

package server

import (
	"errors"
	"io"

	"github.com/eapache/queue"
	"go.uber.org/zap"

	"github.com/legamerdc/tio/poller"
	"github.com/legamerdc/tio/protocol"
	"github.com/legamerdc/tio/reactor"
	"github.com/legamerdc/tio/transport"
)

// connection 为一条已接受的连接：累积读缓冲 + 待发送帧队列。
// 只在事件循环 goroutine 中访问，无需加锁。
type connection struct {
	h      *transport.Handle
	srv    *Server
	dec    *protocol.Decoder
	wq     *queue.Queue // *protocol.Frame
	closed bool
}

func newConnection(s *Server, h *transport.Handle) *connection {
	return &connection{
		h:   h,
		srv: s,
		dec: protocol.NewDecoder(s.cfg.MaxLineSize),
		wq:  queue.New(),
	}
}

func (c *connection) FD() int { return c.h.FD() }

// Close 由事件循环在注销时调用，可重复调用。
func (c *connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.srv.conns.Add(-1)
	c.srv.log.Debug("connection closed", zap.Int("fd", c.h.FD()), zap.Int("unsent", c.wq.Length()))
	return c.h.Close()
}

func (c *connection) OnReady(l *reactor.Loop, _ reactor.Channel, ready poller.Interest) error {
	if ready&poller.OpRead != 0 {
		if err := c.onReadable(l); err != nil {
			return err
		}
		if c.closed {
			return nil
		}
	}
	if ready&poller.OpWrite != 0 {
		return c.flush(l)
	}
	return nil
}

func (c *connection) onReadable(l *reactor.Loop) error {
	buf := make([]byte, c.srv.cfg.ReadBufferSize)
	n, err := c.h.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// 对端关闭：注销并关闭
			return l.Cancel(c)
		}
		return err
	}
	if n == 0 {
		// 虚假就绪，保持注册
		return nil
	}
	if err := c.dec.Feed(buf[:n]); err != nil {
		return err
	}
	for {
		order, ok, err := c.dec.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		c.srv.orders.Add(1)
		c.srv.log.Info("the time server receive order", zap.String("order", order), zap.Int("fd", c.h.FD()))
		resp := protocol.Answer(order, c.srv.cfg.Now())
		c.wq.Add(protocol.NewFrame(protocol.Encode(resp)))
	}
	if c.wq.Length() == 0 {
		return nil
	}
	return c.flush(l)
}

// flush 依次写出队列中的帧。写不完时保留队首剩余部分并关注可写事件，
// 队列清空后取消可写关注。
func (c *connection) flush(l *reactor.Loop) error {
	for c.wq.Length() > 0 {
		f := c.wq.Peek().(*protocol.Frame)
		n, err := c.h.Write(f.Bytes())
		if err != nil {
			return err
		}
		f.Advance(n)
		if f.Remaining() > 0 {
			c.srv.log.Debug("partial write", zap.Int("fd", c.h.FD()),
				zap.Int("written", n), zap.Int("remaining", f.Remaining()))
			return c.setInterest(l, poller.OpRead|poller.OpWrite)
		}
		c.wq.Remove()
	}
	return c.setInterest(l, poller.OpRead)
}

func (c *connection) setInterest(l *reactor.Loop, in poller.Interest) error {
	if l.Interest(c) == in {
		return nil
	}
	return l.SetInterest(c, in)
}
