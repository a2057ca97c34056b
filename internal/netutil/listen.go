//go:build linux || darwin

package netutil

import (
	"net"

	"golang.org/x/sys/unix"
)

// Listen 打开非阻塞监听 socket。network 为 tcp/tcp4/tcp6。
func Listen(network, address string, backlog int, reusePort bool) (int, error) {
	addr, err := net.ResolveTCPAddr(network, address)
	if err != nil {
		return -1, err
	}
	sa, family := Sockaddr(network, addr)
	fd, err := newSocket(family)
	if err != nil {
		return -1, err
	}
	_ = SetReuseAddr(fd, true)
	if reusePort {
		_ = SetReusePort(fd, true)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if backlog <= 0 {
		backlog = unix.SOMAXCONN
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
