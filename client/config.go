package client

import (
	"time"

	"go.uber.org/zap"

	"github.com/legamerdc/tio/protocol"
)

type Config struct {
	Network        string        // tcp / tcp4 / tcp6
	Address        string        // 服务端地址，如 "127.0.0.1:8080"
	Order          string        // 发送的请求行，不含分隔符
	ReadBufferSize int           // 每次可读事件分配的读缓冲大小
	MaxLineSize    int           // 应答行上限，0 表示不限
	WaitTimeout    time.Duration // 事件循环每轮等待上限
	Logger         *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		Network:        "tcp",
		Address:        "127.0.0.1:8080",
		Order:          protocol.QueryTimeOrder,
		ReadBufferSize: 1024,
		MaxLineSize:    64 << 10,
		WaitTimeout:    time.Second,
	}
}

func (c *Config) normalize() {
	if c.Network == "" {
		c.Network = "tcp"
	}
	if c.Order == "" {
		c.Order = protocol.QueryTimeOrder
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
}
