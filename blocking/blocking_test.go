package blocking

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/legamerdc/tio/protocol"
)

func TestPoolRunsTasks(t *testing.T) {
	p := NewPool(4, 16)
	var n atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := p.Submit(func() { defer wg.Done(); n.Add(1) }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	wg.Wait()
	p.Close()
	if n.Load() != 10 {
		t.Fatalf("ran %d tasks, want 10", n.Load())
	}
	if err := p.Submit(func() {}); err != ErrPoolClosed {
		t.Fatalf("Submit after Close = %v, want ErrPoolClosed", err)
	}
}

func TestPoolFull(t *testing.T) {
	p := NewPool(1, 1)
	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(func() { close(started); <-release }); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	if err := p.Submit(func() {}); err != nil {
		t.Fatalf("queued Submit: %v", err)
	}
	if err := p.Submit(func() {}); err != ErrPoolFull {
		t.Fatalf("Submit = %v, want ErrPoolFull", err)
	}
	close(release)
	p.Close()
}

func TestPoolSurvivesPanic(t *testing.T) {
	p := NewPool(1, 4)
	var recovered atomic.Bool
	p.onPanic = func(any) { recovered.Store(true) }
	done := make(chan struct{})
	p.Submit(func() { panic("boom") })
	p.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker died after panic")
	}
	p.Close()
	if !recovered.Load() {
		t.Fatalf("panic not reported")
	}
}

func startServer(t *testing.T, mutate func(*Config)) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.Logger = zaptest.NewLogger(t)
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := Listen(cfg)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve() }()
	t.Cleanup(func() {
		s.Close()
		if err := <-errc; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return s
}

func TestQuery(t *testing.T) {
	s := startServer(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := Query(ctx, s.Addr().String())
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if _, err := protocol.ParseTime(resp); err != nil {
		t.Fatalf("response %q: %v", resp, err)
	}
}

func TestServerAnswersEveryLine(t *testing.T) {
	at := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	s := startServer(t, func(c *Config) { c.Now = func() time.Time { return at } })
	c, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(5 * time.Second))
	io.WriteString(c, "QUERY TIME ORDER\r\nPING\nquery time order\n")

	r := bufio.NewReader(c)
	want := []string{"Tue Mar  5 14:07:09 UTC 2024", protocol.BadOrder, "Tue Mar  5 14:07:09 UTC 2024"}
	for i, w := range want {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if got := strings.TrimSuffix(line, "\n"); got != w {
			t.Fatalf("line %d = %q, want %q", i, got, w)
		}
	}
}

func TestCloseDropsLiveConnections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	cfg.Logger = zaptest.NewLogger(t)
	s, err := Listen(cfg)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	errc := make(chan error, 1)
	go func() { errc <- s.Serve() }()

	c, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	c.SetDeadline(time.Now().Add(5 * time.Second))
	// 先完成一次往返，确保连接已被 worker 接管
	io.WriteString(c, "PING\n")
	r := bufio.NewReader(c)
	if _, err := r.ReadString('\n'); err != nil {
		t.Fatalf("read: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if _, err := r.ReadString('\n'); err == nil {
		t.Fatalf("connection still open after Close")
	}
}

func TestQueryClosedBeforeResponse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		bufio.NewReader(c).ReadString('\n')
		c.Close()
	}()
	_, err = Query(context.Background(), ln.Addr().String())
	if !errors.Is(err, ErrClosedBeforeResponse) {
		t.Fatalf("err = %v, want ErrClosedBeforeResponse", err)
	}
}

func TestQueryContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	hold := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			hold <- c
		}
	}()
	defer func() {
		select {
		case c := <-hold:
			c.Close()
		default:
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = Query(ctx, ln.Addr().String())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}
