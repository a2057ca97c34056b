//go:build linux || darwin

package netutil

import (
	"net"

	"golang.org/x/sys/unix"
)

// Connect 发起非阻塞 connect。connected 为 true 表示已同步完成；
// 否则调用方需等待可写事件后用 SocketError 确认结果。
func Connect(network, address string) (fd int, connected bool, err error) {
	addr, err := net.ResolveTCPAddr(network, address)
	if err != nil {
		return -1, false, err
	}
	sa, family := Sockaddr(network, addr)
	fd, err = newSocket(family)
	if err != nil {
		return -1, false, err
	}
	for {
		err = unix.Connect(fd, sa)
		if err != unix.EINTR {
			break
		}
	}
	switch err {
	case nil:
		return fd, true, nil
	case unix.EINPROGRESS, unix.EALREADY:
		return fd, false, nil
	default:
		unix.Close(fd)
		return -1, false, err
	}
}
