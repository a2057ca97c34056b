//go:build !linux && !darwin

package tio

import (
	"context"

	"go.uber.org/zap"
)

func Serve(ctx context.Context, addr string, log *zap.Logger) error {
	return ErrPlatformNotSupported
}

func Query(ctx context.Context, addr string, log *zap.Logger) (string, error) {
	return "", ErrPlatformNotSupported
}
