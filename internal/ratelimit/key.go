package ratelimit

import (
	"net"
	"net/netip"
)

// KeyFunc extracts a rate limit key from a peer address.
type KeyFunc func(addr net.Addr) string

// IPKey uses the peer IP in textual form as the key, so all ports of one
// host share a bucket. IPv4-mapped IPv6 addresses collapse to IPv4.
func IPKey(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	var ip net.IP
	switch a := addr.(type) {
	case *net.TCPAddr:
		ip = a.IP
	case *net.UDPAddr:
		ip = a.IP
	default:
		ap, err := netip.ParseAddrPort(addr.String())
		if err != nil {
			return addr.String()
		}
		return ap.Addr().Unmap().String()
	}

	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}

// AddrPortKey uses the full ip:port string, giving every source port its
// own bucket.
func AddrPortKey(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}
