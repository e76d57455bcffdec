package wire

import (
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/netlab-sim/vnet/internal/addr"
)

// EtherType identifies the upper-layer protocol carried by an Ethernet II
// frame.
type EtherType uint16

// EtherType values recognized by vnet.
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeIPv6 EtherType = 0x86DD
	EtherTypeVLAN EtherType = 0x8100
)

// MinFrameLen and MaxFrameLen are the on-wire size bounds of an Ethernet II
// frame without FCS, per spec.md §3.
const (
	MinFrameLen = 64
	MaxFrameLen = 1514

	minPayloadLen = 46
	maxPayloadLen = 1500
)

// EthernetFrame is an immutable Ethernet II frame.
type EthernetFrame struct {
	Src       addr.MAC
	Dst       addr.MAC
	EtherType EtherType
	Payload   []byte
	// VLAN, if non-nil, is the 12-bit VLAN id carried in an 802.1Q tag.
	// The simulator never trunks VLAN tags across links (spec.md §1
	// Non-goals); this field exists so a frame can be *labelled* by the
	// switch that produced it for test introspection.
	VLAN      *uint16
	Timestamp time.Time
}

// NewEthernetFrame validates and builds a frame.  Payload must be between 46
// and 1500 bytes; shorter payloads are zero-padded by [EthernetFrame.Encode],
// not by the constructor, so construction fails loudly on an out-of-range
// payload instead of silently at serialization time.
func NewEthernetFrame(dst, src addr.MAC, et EtherType, payload []byte) (f EthernetFrame, err error) {
	if len(payload) < minPayloadLen || len(payload) > maxPayloadLen {
		return EthernetFrame{}, fmt.Errorf("payload %d bytes: %w", len(payload), ErrPayloadSize)
	}

	return EthernetFrame{Src: src, Dst: dst, EtherType: et, Payload: payload}, nil
}

// PadToMinPayload zero-pads b up to the minimum Ethernet payload size (46
// bytes) if it is shorter, leaving it unchanged otherwise.  Callers building
// frames around short payloads (ARP's 28 bytes, a bare ICMP message) must
// pad before calling [NewEthernetFrame], which rejects anything shorter.
func PadToMinPayload(b []byte) []byte {
	if len(b) >= minPayloadLen {
		return b
	}

	padded := make([]byte, minPayloadLen)
	copy(padded, b)

	return padded
}

// Encode serializes f to its on-wire form: dst(6) || src(6) || ethertype(2)
// || payload, zero-padded to [MinFrameLen].
func (f EthernetFrame) Encode() (data []byte, err error) {
	eth := &layers.Ethernet{
		SrcMAC:       f.Src.HardwareAddr(),
		DstMAC:       f.Dst.HardwareAddr(),
		EthernetType: layers.EthernetType(f.EtherType),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}

	if f.VLAN != nil {
		eth.EthernetType = layers.EthernetTypeDot1Q
		dot1q := &layers.Dot1Q{
			VLANIdentifier: *f.VLAN,
			Type:           layers.EthernetType(f.EtherType),
		}
		err = gopacket.SerializeLayers(buf, opts, eth, dot1q, gopacket.Payload(f.Payload))
	} else {
		err = gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(f.Payload))
	}
	if err != nil {
		return nil, fmt.Errorf("encoding ethernet frame: %w", err)
	}

	data = buf.Bytes()
	if len(data) < MinFrameLen {
		pad := make([]byte, MinFrameLen-len(data))
		data = append(data, pad...)
	}

	return data, nil
}

// DecodeEthernetFrame parses data as an Ethernet II frame.  It fails with
// [ErrTruncated] for frames shorter than [MinFrameLen].
func DecodeEthernetFrame(data []byte) (f EthernetFrame, err error) {
	defer func() { err = errors.Annotate(err, "decoding ethernet frame: %w") }()

	if len(data) < MinFrameLen {
		return EthernetFrame{}, ErrTruncated
	}

	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)

	ethLayer, ok := pkt.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	if !ok {
		return EthernetFrame{}, ErrTruncated
	}

	dst, err := addr.FromHardwareAddr(ethLayer.DstMAC)
	if err != nil {
		return EthernetFrame{}, err
	}

	src, err := addr.FromHardwareAddr(ethLayer.SrcMAC)
	if err != nil {
		return EthernetFrame{}, err
	}

	f = EthernetFrame{Dst: dst, Src: src}

	// The payload returned here may carry trailing zero padding added by
	// Encode to reach [MinFrameLen]; real NICs deliver it the same way and
	// leave trimming to the upper-layer codec, which knows its own length
	// (IPv4's Total Length field, ARP's fixed 28 bytes, ...).
	if dot1q, ok := pkt.Layer(layers.LayerTypeDot1Q).(*layers.Dot1Q); ok {
		vlan := dot1q.VLANIdentifier
		f.VLAN = &vlan
		f.EtherType = EtherType(dot1q.Type)
		f.Payload = dot1q.Payload

		return f, nil
	}

	f.EtherType = EtherType(ethLayer.EthernetType)
	f.Payload = ethLayer.Payload

	return f, nil
}
