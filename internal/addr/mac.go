// Package addr implements the address primitives shared by every other vnet
// package: link-layer MAC addresses, IPv4 addresses, and subnet masks.
//
// All three types are immutable value objects, the way [net/netip.Addr] is:
// every operation that would "modify" one returns a new value.
package addr

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"

	"github.com/AdguardTeam/golibs/errors"
)

// ErrInvalidFormat is returned when a textual address fails to parse.
const ErrInvalidFormat errors.Error = "invalid format"

// MAC is a 48-bit Ethernet hardware address.
type MAC [6]byte

// Broadcast is the all-ones MAC address, ff:ff:ff:ff:ff:ff.
var Broadcast = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// Zero is the all-zeros MAC address.
var Zero = MAC{}

// ParseMAC parses s, accepting colon- and hyphen-separated hex octets
// ("AA:BB:CC:DD:EE:FF", "AA-BB-CC-DD-EE-FF") as well as a bare 12-hex-digit
// form ("aabbccddeeff").  It returns [ErrInvalidFormat] for anything else.
func ParseMAC(s string) (m MAC, err error) {
	defer func() { err = errors.Annotate(err, "parsing mac: %w") }()

	switch {
	case strings.Contains(s, ":"), strings.Contains(s, "-"):
		hw, pErr := net.ParseMAC(s)
		if pErr != nil || len(hw) != 6 {
			return MAC{}, ErrInvalidFormat
		}

		return MAC(hw), nil
	case len(s) == 12:
		raw, decErr := hex.DecodeString(s)
		if decErr != nil || len(raw) != 6 {
			return MAC{}, ErrInvalidFormat
		}

		return MAC(raw), nil
	default:
		return MAC{}, ErrInvalidFormat
	}
}

// MustParseMAC is like [ParseMAC] but panics on error.  It is meant for tests
// and static initialization of known-good addresses.
func MustParseMAC(s string) (m MAC) {
	m, err := ParseMAC(s)
	if err != nil {
		panic(err)
	}

	return m
}

// FromHardwareAddr converts a [net.HardwareAddr] of EUI-48 length into a
// [MAC].  It returns [ErrInvalidFormat] if hw is not 6 bytes long.
func FromHardwareAddr(hw net.HardwareAddr) (m MAC, err error) {
	if len(hw) != 6 {
		return MAC{}, fmt.Errorf("mac from hardware addr: %w", ErrInvalidFormat)
	}

	return MAC(hw), nil
}

// HardwareAddr returns m as a [net.HardwareAddr], suitable for use with
// gopacket/layers and the standard library.
func (m MAC) HardwareAddr() net.HardwareAddr {
	return net.HardwareAddr(m[:])
}

// String returns the canonical, uppercase, colon-separated form of m.
func (m MAC) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", m[0], m[1], m[2], m[3], m[4], m[5])
}

// IsBroadcast reports whether m is the all-ones broadcast address.
func (m MAC) IsBroadcast() bool {
	return m == Broadcast
}

// IsMulticast reports whether the least significant bit of the first octet
// is set, which covers both true multicast addresses and the broadcast
// address.
func (m MAC) IsMulticast() bool {
	return m[0]&0x01 != 0
}

// IsUnicast reports whether m is neither broadcast nor multicast.
func (m MAC) IsUnicast() bool {
	return !m.IsMulticast()
}

// IsZero reports whether m is the all-zeros address.
func (m MAC) IsZero() bool {
	return m == Zero
}
