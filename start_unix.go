//go:build linux || darwin

package tio

import (
	"context"

	"go.uber.org/zap"

	"github.com/legamerdc/tio/client"
	"github.com/legamerdc/tio/server"
)

// Serve 在 addr 上启动时间服务，阻塞到 ctx 取消。
func Serve(ctx context.Context, addr string, log *zap.Logger) error {
	cfg := server.DefaultConfig()
	cfg.ListenAddress = addr
	cfg.Logger = log
	s, err := server.New(cfg)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Query 向 addr 发送一次时间查询并返回应答。
func Query(ctx context.Context, addr string, log *zap.Logger) (string, error) {
	cfg := client.DefaultConfig()
	cfg.Address = addr
	cfg.Logger = log
	return client.Query(ctx, cfg)
}
