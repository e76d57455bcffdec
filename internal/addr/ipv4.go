package addr

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// IPv4 is a 32-bit IPv4 address, stored and compared as a value type.
type IPv4 uint32

// ParseIPv4 parses the dotted-decimal form of s.  It rejects octets outside
// 0-255 and leading zeros that would change the parsed value (e.g. "192.168.
// 001.1" is rejected, but "0.0.0.0" is accepted since "0" has no
// alternate reading).
func ParseIPv4(s string) (ip IPv4, err error) {
	defer func() { err = errors.Annotate(err, "parsing ipv4: %w") }()

	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, ErrInvalidFormat
	}

	var out uint32
	for _, p := range parts {
		if p == "" || len(p) > 3 || (len(p) > 1 && p[0] == '0') {
			return 0, ErrInvalidFormat
		}

		n, convErr := strconv.ParseUint(p, 10, 8)
		if convErr != nil {
			return 0, ErrInvalidFormat
		}

		out = out<<8 | uint32(n)
	}

	return IPv4(out), nil
}

// MustParseIPv4 is like [ParseIPv4] but panics on error.
func MustParseIPv4(s string) (ip IPv4) {
	ip, err := ParseIPv4(s)
	if err != nil {
		panic(err)
	}

	return ip
}

// FromU32 builds an IPv4 address from its big-endian 32-bit representation.
func FromU32(u uint32) IPv4 { return IPv4(u) }

// ToU32 returns the big-endian 32-bit representation of ip.
func (ip IPv4) ToU32() uint32 { return uint32(ip) }

// String returns the dotted-decimal representation of ip.
func (ip IPv4) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

// Bytes returns the 4-byte big-endian representation of ip.
func (ip IPv4) Bytes() [4]byte {
	return [4]byte{byte(ip >> 24), byte(ip >> 16), byte(ip >> 8), byte(ip)}
}

// Bytes4 returns ip as a 4-byte [net.IP] slice, the form gopacket/layers
// expects for layers.IPv4.SrcIP/DstIP.
func (ip IPv4) Bytes4() net.IP {
	b := ip.Bytes()

	return net.IP(b[:])
}

// IPv4FromBytes builds an [IPv4] from a 4-byte (or 4-byte-within-16) IP
// address slice, as returned by [net.IP.To4] or a decoded gopacket layer.
func IPv4FromBytes(b net.IP) (ip IPv4, ok bool) {
	b4 := b.To4()
	if b4 == nil {
		return 0, false
	}

	return IPv4(uint32(b4[0])<<24 | uint32(b4[1])<<16 | uint32(b4[2])<<8 | uint32(b4[3])), true
}

// IsZero reports whether ip is 0.0.0.0.
func (ip IPv4) IsZero() bool { return ip == 0 }

// IsLimitedBroadcast reports whether ip is 255.255.255.255.
func (ip IPv4) IsLimitedBroadcast() bool { return ip == 0xFFFFFFFF }

// IsLoopback reports whether ip is within 127.0.0.0/8.
func (ip IPv4) IsLoopback() bool { return byte(ip>>24) == 127 }

// IsMulticast reports whether ip is within 224.0.0.0/4.
func (ip IPv4) IsMulticast() bool { return byte(ip>>24)&0xF0 == 0xE0 }

// IsPrivate reports whether ip falls within one of the RFC 1918 private
// ranges: 10/8, 172.16/12, 192.168/16.
func (ip IPv4) IsPrivate() bool {
	b := ip.Bytes()
	switch {
	case b[0] == 10:
		return true
	case b[0] == 172 && b[1]&0xF0 == 16:
		return true
	case b[0] == 192 && b[1] == 168:
		return true
	default:
		return false
	}
}

// NetworkOf returns the network address of ip under mask.
func (ip IPv4) NetworkOf(mask SubnetMask) IPv4 {
	return ip & IPv4(mask.ToU32())
}

// BroadcastOf returns the directed broadcast address of ip's network under
// mask.  The all-ones case (mask is /0) is tolerated and yields
// 255.255.255.255.
func (ip IPv4) BroadcastOf(mask SubnetMask) IPv4 {
	wildcard := ^mask.ToU32()

	return ip.NetworkOf(mask) | IPv4(wildcard)
}

// InSubnet reports whether ip belongs to the network/mask pair, i.e. whether
// ip, masked, equals network.
func (ip IPv4) InSubnet(network IPv4, mask SubnetMask) bool {
	return ip.NetworkOf(mask) == network
}
