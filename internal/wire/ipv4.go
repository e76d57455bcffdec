package wire

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/netlab-sim/vnet/internal/addr"
)

// IPProtocol identifies the upper-layer protocol carried by an IPv4 packet.
type IPProtocol uint8

// IPProtocol values recognized by vnet.
const (
	IPProtocolICMP IPProtocol = 1
	IPProtocolTCP  IPProtocol = 6
	IPProtocolUDP  IPProtocol = 17
)

// DefaultTTL is the TTL new outgoing packets are given absent other
// configuration, per spec.md §3.
const DefaultTTL = 64

// WindowsTTL is the TTL Windows-flavored host stacks use by default
// (spec.md §4.12).
const WindowsTTL = 128

// IPv4Packet is an immutable IPv4 header plus payload.  No options are
// supported (IHL is always 5); fragmentation fields are carried but never
// interpreted (spec.md §1 Non-goals).
type IPv4Packet struct {
	DSCP       uint8
	ID         uint16
	Flags      uint8
	FragOffset uint16
	TTL        uint8
	Protocol   IPProtocol
	Src        addr.IPv4
	Dst        addr.IPv4
	Payload    []byte
}

const ipv4HeaderLen = 20

// MaxIPv4TotalLen and MaxIPv4PayloadLen are the largest values the 16-bit
// Total Length field can hold.
const (
	MaxIPv4TotalLen   = 65535
	MaxIPv4PayloadLen = MaxIPv4TotalLen - ipv4HeaderLen
)

// NewIPv4Packet builds a packet with [DefaultTTL].
func NewIPv4Packet(src, dst addr.IPv4, proto IPProtocol, payload []byte) (p IPv4Packet, err error) {
	if len(payload) > MaxIPv4PayloadLen {
		return IPv4Packet{}, fmt.Errorf("ipv4 payload %d bytes: %w", len(payload), ErrPayloadSize)
	}

	return IPv4Packet{
		TTL:      DefaultTTL,
		Protocol: proto,
		Src:      src,
		Dst:      dst,
		Payload:  payload,
	}, nil
}

// TotalLen returns the IPv4 total length field p would serialize to: the
// 20-byte header plus the payload.
func (p IPv4Packet) TotalLen() int {
	return ipv4HeaderLen + len(p.Payload)
}

// Encode serializes p to a 20-byte header plus payload, with a correct
// 16-bit one's-complement header checksum.
func (p IPv4Packet) Encode() (data []byte, err error) {
	ip := &layers.IPv4{
		Version:    4,
		IHL:        5,
		TOS:        p.DSCP,
		Id:         p.ID,
		Flags:      layers.IPv4Flag(p.Flags),
		FragOffset: p.FragOffset,
		TTL:        p.TTL,
		Protocol:   layers.IPProtocol(p.Protocol),
		SrcIP:      p.Src.Bytes4(),
		DstIP:      p.Dst.Bytes4(),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	err = gopacket.SerializeLayers(buf, opts, ip, gopacket.Payload(p.Payload))
	if err != nil {
		return nil, fmt.Errorf("encoding ipv4 packet: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeIPv4Packet parses data as an IPv4 header plus payload.  It fails
// with [ErrTruncated] for buffers shorter than the 20-byte header and
// [ErrBadVersion] when the version nibble is not 4.  A bad header checksum
// does not fail decoding, per spec.md §4.2.
func DecodeIPv4Packet(data []byte) (p IPv4Packet, err error) {
	defer func() { err = errors.Annotate(err, "decoding ipv4 packet: %w") }()

	if len(data) < ipv4HeaderLen {
		return IPv4Packet{}, ErrTruncated
	}

	if data[0]>>4 != 4 {
		return IPv4Packet{}, ErrBadVersion
	}

	ihl := int(data[0]&0x0F) * 4
	if ihl < ipv4HeaderLen || len(data) < ihl {
		return IPv4Packet{}, ErrTruncated
	}

	pkt := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.NoCopy)

	ipLayer, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return IPv4Packet{}, ErrTruncated
	}

	src, ok := addr.IPv4FromBytes(ipLayer.SrcIP)
	if !ok {
		return IPv4Packet{}, ErrTruncated
	}

	dst, ok := addr.IPv4FromBytes(ipLayer.DstIP)
	if !ok {
		return IPv4Packet{}, ErrTruncated
	}

	totalLen := int(ipLayer.Length)
	payload := ipLayer.Payload
	if totalLen > 0 {
		want := totalLen - ihl
		if want >= 0 && want <= len(payload) {
			payload = payload[:want]
		}
	}

	return IPv4Packet{
		DSCP:       ipLayer.TOS,
		ID:         ipLayer.Id,
		Flags:      uint8(ipLayer.Flags),
		FragOffset: ipLayer.FragOffset,
		TTL:        ipLayer.TTL,
		Protocol:   IPProtocol(ipLayer.Protocol),
		Src:        src,
		Dst:        dst,
		Payload:    payload,
	}, nil
}

// VerifyIPv4Checksum reports whether the 20-byte header encoded in data (as
// produced by [IPv4Packet.Encode]) carries a correct checksum.
func VerifyIPv4Checksum(data []byte) bool {
	if len(data) < ipv4HeaderLen {
		return false
	}

	ihl := int(data[0]&0x0F) * 4
	if ihl < ipv4HeaderLen || len(data) < ihl {
		return false
	}

	return verifyChecksum16(data[:ihl])
}

// DecrementTTL returns a copy of p with TTL decremented by one.  It fails
// with [ErrTTLExpired] when p.TTL is at or below 1, per spec.md §4.2; the
// caller must then emit ICMP Time Exceeded instead of forwarding.
func (p IPv4Packet) DecrementTTL() (next IPv4Packet, err error) {
	if p.TTL <= 1 {
		return IPv4Packet{}, ErrTTLExpired
	}

	next = p
	next.TTL--

	return next, nil
}
