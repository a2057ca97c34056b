//go:build linux || darwin

// Package transport 封装非阻塞 TCP socket：所有操作立即返回，不阻塞调用方 goroutine。
package transport

import (
	"errors"
	"io"
	"net"

	"golang.org/x/sys/unix"

	"github.com/legamerdc/tio/internal/netutil"
)

var ErrClosed = errors.New("transport: use of closed handle")

type State int32

const (
	Connecting State = iota
	Connected
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Handle 表示一条非阻塞连接。只由持有它的事件循环 goroutine 操作。
type Handle struct {
	fd     int
	state  State
	local  net.Addr
	remote net.Addr
}

func newHandle(fd int, state State, remote net.Addr) *Handle {
	h := &Handle{fd: fd, state: state, remote: remote}
	h.local = netutil.LocalAddr(fd)
	return h
}

// Dial 发起非阻塞连接；返回的 Handle 可能处于 Connecting 状态。
func Dial(network, address string) (*Handle, error) {
	fd, connected, err := netutil.Connect(network, address)
	if err != nil {
		return nil, err
	}
	state := Connecting
	if connected {
		state = Connected
	}
	h := newHandle(fd, state, nil)
	if connected {
		h.remote = netutil.RemoteAddr(fd)
	}
	return h, nil
}

func (h *Handle) FD() int { return h.fd }

func (h *Handle) State() State { return h.state }

func (h *Handle) LocalAddr() net.Addr { return h.local }

func (h *Handle) RemoteAddr() net.Addr { return h.remote }

// FinishConnect 在可写事件后确认 connect 结果。
// 仍在进行中返回 (false, nil)；失败返回 connect 的错误。
func (h *Handle) FinishConnect() (bool, error) {
	switch h.state {
	case Connected:
		return true, nil
	case Closed:
		return false, ErrClosed
	}
	if err := netutil.SocketError(h.fd); err != nil {
		if err == unix.EINPROGRESS || err == unix.EALREADY {
			return false, nil
		}
		return false, err
	}
	sa, err := unix.Getpeername(h.fd)
	if err != nil {
		if err == unix.ENOTCONN {
			return false, nil
		}
		return false, err
	}
	h.state = Connected
	h.remote = netutil.TCPAddr(sa)
	h.local = netutil.LocalAddr(h.fd)
	return true, nil
}

// Read 读取可用数据。没有数据时返回 (0, nil)，对端关闭返回 (0, io.EOF)。
func (h *Handle) Read(p []byte) (int, error) {
	if h.state == Closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(h.fd, p)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if netutil.IsTemporary(err) {
				return 0, nil
			}
			return 0, err
		}
		if n == 0 {
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write 写出尽可能多的数据，内核缓冲区满时返回已写字节数（可能为 0）。
func (h *Handle) Write(p []byte) (int, error) {
	if h.state == Closed {
		return 0, ErrClosed
	}
	total := 0
	for total < len(p) {
		n, err := unix.Write(h.fd, p[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if netutil.IsTemporary(err) {
				return total, nil
			}
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// CloseWrite 关闭写方向（半关闭）。
func (h *Handle) CloseWrite() error {
	if h.state == Closed {
		return ErrClosed
	}
	return unix.Shutdown(h.fd, unix.SHUT_WR)
}

// Close 关闭 socket，可重复调用。
func (h *Handle) Close() error {
	if h.state == Closed {
		return nil
	}
	h.state = Closed
	return unix.Close(h.fd)
}
