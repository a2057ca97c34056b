//go:build darwin

package poller

import (
	"time"

	"golang.org/x/sys/unix"
)

// kqueuePoller 不使用 EV_CLEAR，与 epoll 后端一样为水平触发。
type kqueuePoller struct {
	kq  int
	wfd int // 写端，用于唤醒
	rfd int // 读端，注册到 kqueue
	raw []unix.Kevent_t
}

func newBackend() (backend, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	// 使用管道作为唤醒
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		unix.Close(kq)
		return nil, err
	}
	rfd, wfd := p[0], p[1]
	for _, fd := range p {
		unix.CloseOnExec(fd)
		_ = unix.SetNonblock(fd, true)
	}
	kev := unix.Kevent_t{Ident: uint64(rfd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD}
	if _, err := unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil); err != nil {
		unix.Close(rfd)
		unix.Close(wfd)
		unix.Close(kq)
		return nil, err
	}
	return &kqueuePoller{kq: kq, wfd: wfd, rfd: rfd, raw: make([]unix.Kevent_t, 256)}, nil
}

func wantRead(in Interest) bool  { return in&(OpAccept|OpRead) != 0 }
func wantWrite(in Interest) bool { return in&(OpConnect|OpWrite) != 0 }

// changes 计算从 old 到 in 需要增删的过滤器，避免删除不存在的过滤器报 ENOENT。
func changes(fd FD, old, in Interest) []unix.Kevent_t {
	var out []unix.Kevent_t
	filter := func(had, want bool, f int16) {
		switch {
		case want && !had:
			out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: f, Flags: unix.EV_ADD})
		case had && !want:
			out = append(out, unix.Kevent_t{Ident: uint64(fd), Filter: f, Flags: unix.EV_DELETE})
		}
	}
	filter(wantRead(old), wantRead(in), unix.EVFILT_READ)
	filter(wantWrite(old), wantWrite(in), unix.EVFILT_WRITE)
	return out
}

func (p *kqueuePoller) apply(ch []unix.Kevent_t) error {
	if len(ch) == 0 {
		return nil
	}
	_, err := unix.Kevent(p.kq, ch, nil, nil)
	return err
}

func (p *kqueuePoller) add(fd FD, in Interest) error { return p.apply(changes(fd, 0, in)) }

func (p *kqueuePoller) mod(fd FD, old, in Interest) error { return p.apply(changes(fd, old, in)) }

func (p *kqueuePoller) del(fd FD, old Interest) error { return p.apply(changes(fd, old, 0)) }

func (p *kqueuePoller) wake() error {
	b := [1]byte{1}
	_, err := unix.Write(p.wfd, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *kqueuePoller) close() error {
	unix.Close(p.rfd)
	unix.Close(p.wfd)
	return unix.Close(p.kq)
}

func (p *kqueuePoller) wait(events []rawEvent, timeout time.Duration) (int, error) {
	if len(p.raw) < len(events) {
		p.raw = make([]unix.Kevent_t, len(events))
	}
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	n, err := unix.Kevent(p.kq, nil, p.raw[:len(events)], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	k := 0
	buf := make([]byte, 16)
	for i := 0; i < n; i++ {
		ev := p.raw[i]
		fd := int(ev.Ident)
		if fd == p.rfd {
			for {
				if _, rerr := unix.Read(p.rfd, buf); rerr != nil {
					break
				}
			}
			continue
		}
		events[k] = rawEvent{
			fd:       fd,
			readable: ev.Filter == unix.EVFILT_READ,
			writable: ev.Filter == unix.EVFILT_WRITE,
			hangup:   ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0,
		}
		k++
	}
	return k, nil
}
