package client

import (
	"errors"
	"fmt"
)

var (
	// ErrClosedBeforeResponse 表示服务端在发送任何应答之前关闭了连接。
	ErrClosedBeforeResponse = errors.New("client: connection closed before a response arrived")
	ErrAlreadyRun           = errors.New("client: exchange already started")
	ErrInvalidOrder         = errors.New("client: order must be a single line")
)

// ConnectError 为建立连接失败，包括地址解析、同步 connect 和异步 connect 的结果。
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("client: connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }
