package tio

import "errors"

var (
	// ErrPlatformNotSupported 非 Linux/Darwin 平台没有可用的就绪多路复用器
	ErrPlatformNotSupported = errors.New("tio: platform not supported (requires epoll or kqueue)")
)
