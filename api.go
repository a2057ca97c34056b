// Package tio 是时间服务的顶层入口：端口参数解析以及基于事件循环的服务端/客户端的快捷启动。
package tio

import (
	"net"
	"strconv"
)

// DefaultPort 为未指定或无法解析端口参数时使用的端口。
const DefaultPort = 8080

// ParsePort 取 args 的第一个参数作为端口；缺省、非数字或超出范围时返回 DefaultPort。
func ParsePort(args []string) int {
	if len(args) == 0 {
		return DefaultPort
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port <= 0 || port > 65535 {
		return DefaultPort
	}
	return port
}

// Address 拼接 host 与 port；host 为空时监听全部地址。
func Address(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
