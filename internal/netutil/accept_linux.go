//go:build linux

package netutil

import "golang.org/x/sys/unix"

// Accept 接受一个连接，返回的 fd 已是非阻塞。
func Accept(lfd int) (int, unix.Sockaddr, error) {
	return unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
}
