package wire

import (
	"fmt"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/netlab-sim/vnet/internal/addr"
)

// UDPDatagram is an immutable UDP header plus payload.  vnet only ever
// carries DHCP (§4.9/§4.10) over UDP, so there is no demultiplexing beyond
// source/destination port.
type UDPDatagram struct {
	SrcPort uint16
	DstPort uint16
	Payload []byte
}

const udpHeaderLen = 8

// NewUDPDatagram builds a datagram with the given ports and payload.
func NewUDPDatagram(srcPort, dstPort uint16, payload []byte) UDPDatagram {
	return UDPDatagram{SrcPort: srcPort, DstPort: dstPort, Payload: payload}
}

// Encode serializes d to an 8-byte header plus payload, with a correct
// checksum computed over the IPv4 pseudo-header identified by src and dst.
func (d UDPDatagram) Encode(src, dst addr.IPv4) (data []byte, err error) {
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(d.SrcPort),
		DstPort: layers.UDPPort(d.DstPort),
	}

	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    src.Bytes4(),
		DstIP:    dst.Bytes4(),
	}

	err = udp.SetNetworkLayerForChecksum(ip)
	if err != nil {
		return nil, fmt.Errorf("encoding udp datagram: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	err = gopacket.SerializeLayers(buf, opts, udp, gopacket.Payload(d.Payload))
	if err != nil {
		return nil, fmt.Errorf("encoding udp datagram: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeUDPDatagram parses data as a UDP header plus payload.  It fails with
// [ErrTruncated] for buffers shorter than the 8-byte header.  The checksum is
// not verified, since vnet does not always carry the IPv4 pseudo-header
// needed to recompute it at every call site; this mirrors [DecodeIPv4Packet]
// treating a bad checksum as a delivery-layer concern rather than a decode
// failure.
func DecodeUDPDatagram(data []byte) (d UDPDatagram, err error) {
	defer func() { err = errors.Annotate(err, "decoding udp datagram: %w") }()

	if len(data) < udpHeaderLen {
		return UDPDatagram{}, ErrTruncated
	}

	pkt := gopacket.NewPacket(data, layers.LayerTypeUDP, gopacket.NoCopy)

	udpLayer, ok := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
	if !ok {
		return UDPDatagram{}, ErrTruncated
	}

	return UDPDatagram{
		SrcPort: uint16(udpLayer.SrcPort),
		DstPort: uint16(udpLayer.DstPort),
		Payload: udpLayer.Payload,
	}, nil
}
