package wire

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/netlab-sim/vnet/internal/addr"
)

// DHCPOp is the BOOTP opcode: request from client, reply from server.
type DHCPOp uint8

// DHCPOp values.
const (
	DHCPOpRequest DHCPOp = 1
	DHCPOpReply   DHCPOp = 2
)

// DHCPMessageType is the value of DHCP option 53.
type DHCPMessageType uint8

// DHCP message types, per spec.md §3.
const (
	DHCPDiscover DHCPMessageType = 1
	DHCPOffer    DHCPMessageType = 2
	DHCPRequest  DHCPMessageType = 3
	DHCPDecline  DHCPMessageType = 4
	DHCPAck      DHCPMessageType = 5
	DHCPNak      DHCPMessageType = 6
	DHCPRelease  DHCPMessageType = 7
	DHCPInform   DHCPMessageType = 8
)

// String implements fmt.Stringer, used by the dhclient-style terminal
// output (spec.md §6).
func (t DHCPMessageType) String() string {
	switch t {
	case DHCPDiscover:
		return "DHCPDISCOVER"
	case DHCPOffer:
		return "DHCPOFFER"
	case DHCPRequest:
		return "DHCPREQUEST"
	case DHCPDecline:
		return "DHCPDECLINE"
	case DHCPAck:
		return "DHCPACK"
	case DHCPNak:
		return "DHCPNAK"
	case DHCPRelease:
		return "DHCPRELEASE"
	case DHCPInform:
		return "DHCPINFORM"
	default:
		return fmt.Sprintf("DHCPUNKNOWN(%d)", uint8(t))
	}
}

// DHCP option codes used by vnet, per spec.md §4.2.
const (
	DHCPOptSubnetMask    = 1
	DHCPOptRouter        = 3
	DHCPOptDNS           = 6
	DHCPOptHostname      = 12
	DHCPOptDomainName    = 15
	DHCPOptRequestedIP   = 50
	DHCPOptLeaseTime     = 51
	DHCPOptMessageType   = 53
	DHCPOptServerID      = 54
	DHCPOptParamReqList  = 55
	DHCPOptRenewalT1     = 58
	DHCPOptRebindingT2   = 59
	DHCPOptEnd           = 255
	DHCPOptPad           = 0
)

// dhcpMagicCookie is the fixed magic cookie at byte offset 236.
var dhcpMagicCookie = [4]byte{0x63, 0x82, 0x53, 0x63}

// DHCPOption is a single TLV option.
type DHCPOption struct {
	Code byte
	Data []byte
}

// DHCPPacket is an immutable BOOTP/DHCP message: the fixed 236-byte area
// plus the magic cookie and a list of TLV options.
type DHCPPacket struct {
	Op      DHCPOp
	Hops    uint8
	Xid     uint32
	Secs    uint16
	Flags   uint16
	Ciaddr  addr.IPv4
	Yiaddr  addr.IPv4
	Siaddr  addr.IPv4
	Giaddr  addr.IPv4
	ChAddr  addr.MAC
	SName   string
	File    string
	Options []DHCPOption
}

// BroadcastFlag is bit 0x8000 of the Flags field.
const BroadcastFlag uint16 = 0x8000

// IsBroadcast reports whether p carries the broadcast flag.
func (p DHCPPacket) IsBroadcast() bool {
	return p.Flags&BroadcastFlag != 0
}

// MessageType returns the value of option 53.  Per spec.md §4.2, a decoded
// packet always carries it; a hand-built one may not until the caller adds
// it via [DHCPPacket.WithOption].
func (p DHCPPacket) MessageType() (t DHCPMessageType, ok bool) {
	data, ok := p.Option(DHCPOptMessageType)
	if !ok || len(data) != 1 {
		return 0, false
	}

	return DHCPMessageType(data[0]), true
}

// Option returns the raw data of the option with the given code, if
// present.
func (p DHCPPacket) Option(code byte) (data []byte, ok bool) {
	for _, o := range p.Options {
		if o.Code == code {
			return o.Data, true
		}
	}

	return nil, false
}

// WithOption returns a copy of p with the given option set, replacing any
// existing option of the same code.
func (p DHCPPacket) WithOption(code byte, data []byte) DHCPPacket {
	next := p
	next.Options = make([]DHCPOption, 0, len(p.Options)+1)

	replaced := false
	for _, o := range p.Options {
		if o.Code == code {
			next.Options = append(next.Options, DHCPOption{Code: code, Data: data})
			replaced = true

			continue
		}

		next.Options = append(next.Options, o)
	}

	if !replaced {
		next.Options = append(next.Options, DHCPOption{Code: code, Data: data})
	}

	return next
}

// OptionIPv4 returns the option as a single IPv4 address.
func (p DHCPPacket) OptionIPv4(code byte) (ip addr.IPv4, ok bool) {
	data, ok := p.Option(code)
	if !ok || len(data) != 4 {
		return 0, false
	}

	return addr.FromU32(binary.BigEndian.Uint32(data)), true
}

// OptionIPv4List returns the option as a sequence of /4 IPv4 addresses
// (e.g. option 6, DNS servers).
func (p DHCPPacket) OptionIPv4List(code byte) (ips []addr.IPv4) {
	data, ok := p.Option(code)
	if !ok || len(data)%4 != 0 {
		return nil
	}

	for i := 0; i < len(data); i += 4 {
		ips = append(ips, addr.FromU32(binary.BigEndian.Uint32(data[i:i+4])))
	}

	return ips
}

// OptionDuration returns a 32-bit-seconds option (lease time, T1, T2) as a
// [time.Duration].
func (p DHCPPacket) OptionDuration(code byte) (d time.Duration, ok bool) {
	data, ok := p.Option(code)
	if !ok || len(data) != 4 {
		return 0, false
	}

	return time.Duration(binary.BigEndian.Uint32(data)) * time.Second, true
}

// OptionString returns a text option (hostname, domain name).
func (p DHCPPacket) OptionString(code byte) (s string, ok bool) {
	data, ok := p.Option(code)
	if !ok {
		return "", false
	}

	return string(data), true
}

// PutU32 encodes a uint32 option payload, e.g. for lease time/T1/T2.
func PutU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)

	return b
}

// PutIPv4 encodes an IPv4 address option payload.
func PutIPv4(ip addr.IPv4) []byte {
	b := ip.Bytes()

	return b[:]
}

// PutIPv4List encodes a sequence of IPv4 addresses as one option payload.
func PutIPv4List(ips []addr.IPv4) []byte {
	b := make([]byte, 0, 4*len(ips))
	for _, ip := range ips {
		bs := ip.Bytes()
		b = append(b, bs[:]...)
	}

	return b
}

// Encode serializes p to the 236-byte fixed area, magic cookie, TLV
// options, and terminating 0xFF.
func (p DHCPPacket) Encode() (data []byte, err error) {
	dhcp := &layers.DHCPv4{
		Operation:    layers.DHCPOp(p.Op),
		HardwareType: layers.LinkTypeEthernet,
		HardwareLen:  6,
		HardwareOpts: p.Hops,
		Xid:          p.Xid,
		Secs:         p.Secs,
		Flags:        p.Flags,
		ClientIP:     p.Ciaddr.Bytes4(),
		YourClientIP: p.Yiaddr.Bytes4(),
		NextServerIP: p.Siaddr.Bytes4(),
		RelayAgentIP: p.Giaddr.Bytes4(),
		ClientHWAddr: p.ChAddr.HardwareAddr(),
	}

	if p.SName != "" {
		dhcp.ServerName = []byte(p.SName)
	}

	if p.File != "" {
		dhcp.File = []byte(p.File)
	}

	for _, o := range p.Options {
		dhcp.Options = append(dhcp.Options, layers.NewDHCPOption(layers.DHCPOpt(o.Code), o.Data))
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}

	err = gopacket.SerializeLayers(buf, opts, dhcp)
	if err != nil {
		return nil, fmt.Errorf("encoding dhcp packet: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeDHCPPacket parses data as a BOOTP/DHCP message.  It fails with
// [ErrTruncated] for short buffers and [ErrBadMagic] if the magic cookie
// does not match.
func DecodeDHCPPacket(data []byte) (p DHCPPacket, err error) {
	defer func() { err = errors.Annotate(err, "decoding dhcp packet: %w") }()

	const fixedAreaLen = 236
	if len(data) < fixedAreaLen+len(dhcpMagicCookie)+1 {
		return DHCPPacket{}, ErrTruncated
	}

	if [4]byte(data[fixedAreaLen:fixedAreaLen+4]) != dhcpMagicCookie {
		return DHCPPacket{}, ErrBadMagic
	}

	pkt := gopacket.NewPacket(data, layers.LayerTypeDHCPv4, gopacket.NoCopy)

	dhcpLayer, ok := pkt.Layer(layers.LayerTypeDHCPv4).(*layers.DHCPv4)
	if !ok {
		return DHCPPacket{}, ErrTruncated
	}

	chAddr, err := addr.FromHardwareAddr(dhcpLayer.ClientHWAddr)
	if err != nil {
		// Client hardware address padding beyond 6 bytes is legal; truncate.
		if len(dhcpLayer.ClientHWAddr) < 6 {
			return DHCPPacket{}, ErrTruncated
		}

		chAddr, err = addr.FromHardwareAddr(dhcpLayer.ClientHWAddr[:6])
		if err != nil {
			return DHCPPacket{}, err
		}
	}

	ciaddr, _ := addr.IPv4FromBytes(dhcpLayer.ClientIP)
	yiaddr, _ := addr.IPv4FromBytes(dhcpLayer.YourClientIP)
	siaddr, _ := addr.IPv4FromBytes(dhcpLayer.NextServerIP)
	giaddr, _ := addr.IPv4FromBytes(dhcpLayer.RelayAgentIP)

	p = DHCPPacket{
		Op:     DHCPOp(dhcpLayer.Operation),
		Hops:   dhcpLayer.HardwareOpts,
		Xid:    dhcpLayer.Xid,
		Secs:   dhcpLayer.Secs,
		Flags:  dhcpLayer.Flags,
		Ciaddr: ciaddr,
		Yiaddr: yiaddr,
		Siaddr: siaddr,
		Giaddr: giaddr,
		ChAddr: chAddr,
		SName:  trimNulls(dhcpLayer.ServerName),
		File:   trimNulls(dhcpLayer.File),
	}

	foundMessageType := false
	for _, o := range dhcpLayer.Options {
		if o.Type == layers.DHCPOptMessageType {
			foundMessageType = true
		}

		p.Options = append(p.Options, DHCPOption{Code: byte(o.Type), Data: o.Data})
	}

	if !foundMessageType {
		return DHCPPacket{}, fmt.Errorf("option 53 (message type): %w", errors.ErrNoValue)
	}

	return p, nil
}

func trimNulls(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}

	return string(b)
}
