package server

import (
	"time"

	"go.uber.org/zap"
)

type Config struct {
	ListenNetwork  string        // tcp / tcp4 / tcp6
	ListenAddress  string        // 如 ":8080"
	Backlog        int           // listen backlog
	ReusePort      bool          // SO_REUSEPORT
	NoDelay        bool          // 已接受连接的 TCP_NODELAY
	SendBufferSize int           // >0 时设置已接受连接的 SO_SNDBUF
	RecvBufferSize int           // >0 时设置已接受连接的 SO_RCVBUF
	ReadBufferSize int           // 每次可读事件分配的读缓冲大小
	MaxLineSize    int           // 单行上限，0 表示不限
	WaitTimeout    time.Duration // 事件循环每轮等待上限
	Logger         *zap.Logger
	Now            func() time.Time // 时间来源，测试中可替换
}

func DefaultConfig() Config {
	return Config{
		ListenNetwork:  "tcp",
		ListenAddress:  ":8080",
		Backlog:        1024,
		NoDelay:        true,
		ReadBufferSize: 1024,
		MaxLineSize:    1 << 20, // 1 MiB
		WaitTimeout:    time.Second,
	}
}

func (c *Config) normalize() {
	if c.ListenNetwork == "" {
		c.ListenNetwork = "tcp"
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 1024
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}
