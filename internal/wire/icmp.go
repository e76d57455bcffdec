package wire

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ICMPType is the ICMP message type.
type ICMPType uint8

// ICMP message types used by vnet.
const (
	ICMPTypeEchoReply   ICMPType = 0
	ICMPTypeEchoRequest ICMPType = 8
	ICMPTypeTimeExceeded ICMPType = 11
)

// ICMPCode values used by vnet.
const (
	ICMPCodeTTLExceededInTransit uint8 = 0
)

// ICMPPacket is an immutable ICMP message.  Echo request/reply carry
// (Identifier, Sequence, Data); error messages (e.g. Time Exceeded) carry
// Data holding the offending IP header plus its first 8 bytes of payload,
// per spec.md §3 and RFC 792.
type ICMPPacket struct {
	Type       ICMPType
	Code       uint8
	Identifier uint16
	Sequence   uint16
	Data       []byte
}

const icmpHeaderLen = 8

// NewEchoRequest builds an Echo Request message.
func NewEchoRequest(id, seq uint16, data []byte) ICMPPacket {
	return ICMPPacket{Type: ICMPTypeEchoRequest, Identifier: id, Sequence: seq, Data: data}
}

// NewEchoReply mirrors the identifier, sequence, and data of req into an
// Echo Reply, per spec.md §3.
func NewEchoReply(req ICMPPacket) ICMPPacket {
	return ICMPPacket{
		Type:       ICMPTypeEchoReply,
		Identifier: req.Identifier,
		Sequence:   req.Sequence,
		Data:       req.Data,
	}
}

// NewTimeExceeded builds an ICMP Time Exceeded (type 11, code 0) message
// whose payload is the first 28 bytes (20-byte header + 8 bytes) of the
// original IPv4 datagram, per spec.md §4.8.
func NewTimeExceeded(originalIPv4 []byte) ICMPPacket {
	n := len(originalIPv4)
	if n > 28 {
		n = 28
	}

	data := make([]byte, n)
	copy(data, originalIPv4[:n])

	return ICMPPacket{Type: ICMPTypeTimeExceeded, Code: ICMPCodeTTLExceededInTransit, Data: data}
}

// Encode serializes p with a correct Internet checksum over the whole
// message.
func (p ICMPPacket) Encode() (data []byte, err error) {
	icmp := &layers.ICMPv4{
		TypeCode: layers.CreateICMPv4TypeCode(uint8(p.Type), p.Code),
	}

	var payload []byte
	switch p.Type {
	case ICMPTypeEchoRequest, ICMPTypeEchoReply:
		icmp.Id = p.Identifier
		icmp.Seq = p.Sequence
		payload = p.Data
	default:
		payload = p.Data
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	err = gopacket.SerializeLayers(buf, opts, icmp, gopacket.Payload(payload))
	if err != nil {
		return nil, fmt.Errorf("encoding icmp packet: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeICMPPacket parses data as an ICMP message.  It fails with
// [ErrTruncated] for buffers shorter than the 8-byte header and
// [ErrBadChecksum] when the checksum does not verify.
func DecodeICMPPacket(data []byte) (p ICMPPacket, err error) {
	defer func() { err = errors.Annotate(err, "decoding icmp packet: %w") }()

	if len(data) < icmpHeaderLen {
		return ICMPPacket{}, ErrTruncated
	}

	if !verifyChecksum16(data) {
		return ICMPPacket{}, ErrBadChecksum
	}

	pkt := gopacket.NewPacket(data, layers.LayerTypeICMPv4, gopacket.NoCopy)

	icmpLayer, ok := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
	if !ok {
		return ICMPPacket{}, ErrTruncated
	}

	typ := ICMPType(icmpLayer.TypeCode.Type())

	p = ICMPPacket{Type: typ, Code: icmpLayer.TypeCode.Code(), Data: icmpLayer.Payload}
	if typ == ICMPTypeEchoRequest || typ == ICMPTypeEchoReply {
		p.Identifier = icmpLayer.Id
		p.Sequence = icmpLayer.Seq
	}

	return p, nil
}
