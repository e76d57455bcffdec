package wire

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/netlab-sim/vnet/internal/addr"
)

// ARPOperation is the ARP opcode.
type ARPOperation uint16

// ARP operations recognized by vnet.
const (
	ARPRequest ARPOperation = 1
	ARPReply   ARPOperation = 2
)

// arpWireLen is the fixed size of an ARP packet for Ethernet/IPv4, per
// spec.md §3: hlen=6, plen=4.
const arpWireLen = 28

// ARPPacket is an immutable ARP packet restricted to the Ethernet/IPv4
// combination this simulator supports (hardware type 1, protocol type
// 0x0800).
type ARPPacket struct {
	Operation ARPOperation
	SenderMAC addr.MAC
	SenderIP  addr.IPv4
	TargetMAC addr.MAC
	TargetIP  addr.IPv4
}

// NewARPRequest builds a request with an all-zeros target MAC.
func NewARPRequest(senderMAC addr.MAC, senderIP addr.IPv4, targetIP addr.IPv4) ARPPacket {
	return ARPPacket{
		Operation: ARPRequest,
		SenderMAC: senderMAC,
		SenderIP:  senderIP,
		TargetMAC: addr.Zero,
		TargetIP:  targetIP,
	}
}

// NewARPReply builds a reply to req, addressed back to the requester.
func NewARPReply(req ARPPacket, replyMAC addr.MAC) ARPPacket {
	return ARPPacket{
		Operation: ARPReply,
		SenderMAC: replyMAC,
		SenderIP:  req.TargetIP,
		TargetMAC: req.SenderMAC,
		TargetIP:  req.SenderIP,
	}
}

// IsGratuitous reports whether p is a gratuitous ARP: a request where the
// sender IP equals the target IP.
func (p ARPPacket) IsGratuitous() bool {
	return p.Operation == ARPRequest && p.SenderIP == p.TargetIP
}

// Encode serializes p to its fixed 28-byte wire form.
func (p ARPPacket) Encode() (data []byte, err error) {
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         uint16(p.Operation),
		SourceHwAddress:   p.SenderMAC.HardwareAddr(),
		SourceProtAddress: ip4Slice(p.SenderIP),
		DstHwAddress:      p.TargetMAC.HardwareAddr(),
		DstProtAddress:    ip4Slice(p.TargetIP),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}

	err = gopacket.SerializeLayers(buf, opts, arp)
	if err != nil {
		return nil, fmt.Errorf("encoding arp packet: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeARPPacket parses data as an ARP packet.
func DecodeARPPacket(data []byte) (p ARPPacket, err error) {
	defer func() { err = errors.Annotate(err, "decoding arp packet: %w") }()

	if len(data) < arpWireLen {
		return ARPPacket{}, ErrTruncated
	}

	pkt := gopacket.NewPacket(data, layers.LayerTypeARP, gopacket.NoCopy)

	arpLayer, ok := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
	if !ok {
		return ARPPacket{}, ErrTruncated
	}

	senderMAC, err := addr.FromHardwareAddr(arpLayer.SourceHwAddress)
	if err != nil {
		return ARPPacket{}, err
	}

	targetMAC, err := addr.FromHardwareAddr(arpLayer.DstHwAddress)
	if err != nil {
		return ARPPacket{}, err
	}

	senderIP, ok := addr.IPv4FromBytes(arpLayer.SourceProtAddress)
	if !ok {
		return ARPPacket{}, ErrTruncated
	}

	targetIP, ok := addr.IPv4FromBytes(arpLayer.DstProtAddress)
	if !ok {
		return ARPPacket{}, ErrTruncated
	}

	return ARPPacket{
		Operation: ARPOperation(arpLayer.Operation),
		SenderMAC: senderMAC,
		SenderIP:  senderIP,
		TargetMAC: targetMAC,
		TargetIP:  targetIP,
	}, nil
}

func ip4Slice(ip addr.IPv4) []byte {
	b := ip.Bytes()

	return b[:]
}
