package wire

import "github.com/AdguardTeam/golibs/errors"

// Decode/encode error taxonomy, per spec.md §4.2 and §7.
const (
	// ErrTruncated is returned when a buffer is too short to hold the
	// format being decoded.
	ErrTruncated errors.Error = "truncated"

	// ErrBadMagic is returned when a DHCP packet's magic cookie does not
	// match.
	ErrBadMagic errors.Error = "bad dhcp magic cookie"

	// ErrBadVersion is returned when an IPv4 header's version field is not
	// 4.
	ErrBadVersion errors.Error = "bad ip version"

	// ErrBadChecksum is returned when an ICMP message's checksum does not
	// verify.  IPv4 decoding never returns this; see spec.md §4.2.
	ErrBadChecksum errors.Error = "bad checksum"

	// ErrPayloadSize is returned when an Ethernet frame payload falls
	// outside the 46-1500 byte construction bounds.
	ErrPayloadSize errors.Error = "payload size out of range"

	// ErrTTLExpired is returned by [IPv4Packet.DecrementTTL] when the
	// packet's TTL is at or below 1.
	ErrTTLExpired errors.Error = "ttl expired"
)
