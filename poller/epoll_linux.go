//go:build linux

package poller

import (
	"encoding/binary"
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller 使用水平触发：未读完的数据在下一轮 Wait 中再次上报。
type epollPoller struct {
	efd int
	wfd int // eventfd for wakeup
	raw []unix.EpollEvent
}

func newBackend() (backend, error) {
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, err
	}
	p := &epollPoller{efd: efd, wfd: wfd, raw: make([]unix.EpollEvent, 256)}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}
	if err := unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, wfd, ev); err != nil {
		unix.Close(wfd)
		unix.Close(efd)
		return nil, err
	}
	return p, nil
}

func epollFlags(in Interest) uint32 {
	var flag uint32
	if in&(OpAccept|OpRead) != 0 {
		flag |= unix.EPOLLIN
	}
	if in&(OpConnect|OpWrite) != 0 {
		flag |= unix.EPOLLOUT
	}
	return flag
}

func (p *epollPoller) add(fd FD, in Interest) error {
	ev := &unix.EpollEvent{Events: epollFlags(in), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *epollPoller) mod(fd FD, _, in Interest) error {
	ev := &unix.EpollEvent{Events: epollFlags(in), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) del(fd FD, _ Interest) error {
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) wake() error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(p.wfd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *epollPoller) close() error {
	unix.Close(p.wfd)
	return unix.Close(p.efd)
}

func (p *epollPoller) wait(events []rawEvent, timeout time.Duration) (int, error) {
	if len(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	msec := -1
	if timeout >= 0 {
		msec = int(timeout / time.Millisecond)
	}
	n, err := unix.EpollWait(p.efd, p.raw[:len(events)], msec)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	k := 0
	for i := 0; i < n; i++ {
		ev := p.raw[i]
		fd := int(ev.Fd)
		if fd == p.wfd {
			// 清空 eventfd
			var b [8]byte
			_, _ = unix.Read(p.wfd, b[:])
			continue
		}
		events[k] = rawEvent{
			fd:       fd,
			readable: ev.Events&unix.EPOLLIN != 0,
			writable: ev.Events&unix.EPOLLOUT != 0,
			hangup:   ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
		}
		k++
	}
	return k, nil
}
