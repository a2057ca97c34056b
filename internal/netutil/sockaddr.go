//go:build linux || darwin

package netutil

import (
	"net"
	"strings"

	"golang.org/x/sys/unix"
)

// Sockaddr 将 TCP 地址转换为 unix.Sockaddr，并返回对应的地址族。
// network 以 "6" 结尾时总是使用 IPv6；否则未指定 IP 时绑定 IPv4 通配地址。
func Sockaddr(network string, addr *net.TCPAddr) (unix.Sockaddr, int) {
	ip4 := addr.IP.To4()
	if !strings.HasSuffix(network, "6") && (ip4 != nil || addr.IP == nil) {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return sa, unix.AF_INET
	}
	sa := &unix.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To16())
	if addr.Zone != "" {
		if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return sa, unix.AF_INET6
}

// TCPAddr 将 unix.Sockaddr 转回 net.Addr；不认识的类型返回 nil。
func TCPAddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, v.Addr[:])
		return &net.TCPAddr{IP: ip, Port: v.Port}
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, v.Addr[:])
		var zone string
		if v.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(v.ZoneId)); err == nil {
				zone = ifi.Name
			}
		}
		return &net.TCPAddr{IP: ip, Port: v.Port, Zone: zone}
	}
	return nil
}

func LocalAddr(fd int) net.Addr {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil
	}
	return TCPAddr(sa)
}

func RemoteAddr(fd int) net.Addr {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return nil
	}
	return TCPAddr(sa)
}
