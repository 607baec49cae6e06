package avahi

import (
	"net"
)

// Address is a resolved IPv4 or IPv6 address as the daemon stores it:
// the family plus up to 16 bytes in network order.
type Address struct {
	Proto Protocol
	Data  [16]byte
}

// AddressFromIP converts ip. It returns nil for an invalid IP.
func AddressFromIP(ip net.IP) *Address {
	if v4 := ip.To4(); v4 != nil {
		a := &Address{Proto: ProtoInet}
		copy(a.Data[:], v4)
		return a
	}
	if v6 := ip.To16(); v6 != nil {
		a := &Address{Proto: ProtoInet6}
		copy(a.Data[:], v6)
		return a
	}
	return nil
}

// IP returns a as a net.IP, or nil for an unknown family.
func (a *Address) IP() net.IP {
	switch a.Proto {
	case ProtoInet:
		return net.IPv4(a.Data[0], a.Data[1], a.Data[2], a.Data[3]).To4()
	case ProtoInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, a.Data[:])
		return ip
	default:
		return nil
	}
}

// FormatAddress writes a into buf as a NUL-terminated string,
// truncating to fit. It is the Go rendering of avahi_address_snprint
// and is used where the C library is not linked.
func FormatAddress(buf []byte, a *Address) {
	if len(buf) == 0 {
		return
	}
	var s string
	if a != nil {
		if ip := a.IP(); ip != nil {
			s = ip.String()
		}
	}
	n := copy(buf[:len(buf)-1], s)
	buf[n] = 0
}
