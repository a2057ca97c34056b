//go:build linux || darwin

package transport

import (
	"net"

	"golang.org/x/sys/unix"

	"github.com/legamerdc/tio/internal/netutil"
)

// ListenConfig 为监听参数。
type ListenConfig struct {
	Network   string // tcp / tcp4 / tcp6，默认 tcp
	Address   string
	Backlog   int  // <=0 时使用 SOMAXCONN
	ReusePort bool
	NoDelay   bool // 对接受的连接设置 TCP_NODELAY
	SendBuf   int  // >0 时设置已接受连接的 SO_SNDBUF
	RecvBuf   int  // >0 时设置已接受连接的 SO_RCVBUF
}

// Listener 为非阻塞监听 socket。
type Listener struct {
	fd     int
	addr   net.Addr
	cfg    ListenConfig
	closed bool
}

// Listen 绑定并监听；端口被占用等错误直接返回。
func Listen(cfg ListenConfig) (*Listener, error) {
	network := cfg.Network
	if network == "" {
		network = "tcp"
	}
	fd, err := netutil.Listen(network, cfg.Address, cfg.Backlog, cfg.ReusePort)
	if err != nil {
		return nil, err
	}
	return &Listener{fd: fd, addr: netutil.LocalAddr(fd), cfg: cfg}, nil
}

func (l *Listener) FD() int { return l.fd }

func (l *Listener) Addr() net.Addr { return l.addr }

// Accept 接受一个挂起的连接；没有挂起连接时返回 (nil, nil)。
func (l *Listener) Accept() (*Handle, error) {
	if l.closed {
		return nil, ErrClosed
	}
	for {
		fd, sa, err := netutil.Accept(l.fd)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			// 连接在 accept 前被对端重置，视为没有挂起连接
			if netutil.IsTemporary(err) || err == unix.ECONNABORTED {
				return nil, nil
			}
			return nil, err
		}
		if l.cfg.NoDelay {
			_ = netutil.SetNoDelay(fd, true)
		}
		if l.cfg.SendBuf > 0 {
			_ = netutil.SetSendBuf(fd, l.cfg.SendBuf)
		}
		if l.cfg.RecvBuf > 0 {
			_ = netutil.SetRecvBuf(fd, l.cfg.RecvBuf)
		}
		return newHandle(fd, Connected, netutil.TCPAddr(sa)), nil
	}
}

func (l *Listener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return unix.Close(l.fd)
}
