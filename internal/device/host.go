// Package device implements the four device kernels of C12 — Host, Hub,
// Switch, and Router — each wiring a NIC's receive path to the lower-layer
// services (ARP, ICMP, DHCP, frame forwarding, routing) built by the rest
// of this module.
package device

import (
	"log/slog"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/arpsvc"
	"github.com/netlab-sim/vnet/internal/clock"
	"github.com/netlab-sim/vnet/internal/dhcpclient"
	"github.com/netlab-sim/vnet/internal/icmpsvc"
	"github.com/netlab-sim/vnet/internal/nic"
	"github.com/netlab-sim/vnet/internal/wire"
)

// Host is a single-NIC end device: ARP and ICMP services plus an optional
// DHCP client, demultiplexing frames per spec.md §4.12.
type Host struct {
	nic    *nic.NIC
	arp    *arpsvc.Cache
	icmp   *icmpsvc.Service
	dhcp   *dhcpclient.Client
	clock  clock.Clock
	ttl    uint8
	logger *slog.Logger
}

// NewHost creates a host around n, wiring n's receive callback to the
// host's frame dispatcher.  ttl is the TTL new outgoing IPv4 traffic
// carries; zero uses [wire.DefaultTTL] ([wire.WindowsTTL] selects the
// Windows-flavored default instead). dhcp may be nil for a statically
// addressed host.
func NewHost(n *nic.NIC, arp *arpsvc.Cache, icmp *icmpsvc.Service, dhcp *dhcpclient.Client, clk clock.Clock, ttl uint8) *Host {
	if clk == nil {
		clk = clock.System
	}
	if ttl == 0 {
		ttl = wire.DefaultTTL
	}

	h := &Host{
		nic:    n,
		arp:    arp,
		icmp:   icmp,
		dhcp:   dhcp,
		clock:  clk,
		ttl:    ttl,
		logger: slogutil.NewDiscardLogger(),
	}
	n.SetOnReceive(h.receiveFrame)

	return h
}

// NIC returns the host's interface.
func (h *Host) NIC() *nic.NIC { return h.nic }

// ARP returns the host's ARP cache.
func (h *Host) ARP() *arpsvc.Cache { return h.arp }

// ICMP returns the host's echo-correlation service.
func (h *Host) ICMP() *icmpsvc.Service { return h.icmp }

// DHCPClient returns the host's DHCP client, or nil if it has none.
func (h *Host) DHCPClient() *dhcpclient.Client { return h.dhcp }

func (h *Host) receiveFrame(f wire.EthernetFrame) {
	switch f.EtherType {
	case wire.EtherTypeARP:
		h.handleARP(f)
	case wire.EtherTypeIPv4:
		h.handleIPv4(f)
	default:
		h.logger.Debug("dropping frame with unhandled ethertype", "ethertype", f.EtherType)
	}
}

func (h *Host) handleARP(f wire.EthernetFrame) {
	p, err := wire.DecodeARPPacket(f.Payload)
	if err != nil {
		return
	}

	h.arp.ProcessPacket(p)

	ip, _, hasIP := h.nic.IP()
	if !hasIP || p.Operation != wire.ARPRequest || p.TargetIP != ip {
		return
	}

	reply := arpsvc.CreateReply(p, h.nic.MAC())
	h.transmitARP(reply, p.SenderMAC)
}

func (h *Host) transmitARP(p wire.ARPPacket, dst addr.MAC) {
	data, err := p.Encode()
	if err != nil {
		return
	}

	frame, err := wire.NewEthernetFrame(dst, h.nic.MAC(), wire.EtherTypeARP, wire.PadToMinPayload(data))
	if err != nil {
		return
	}

	_ = h.nic.Transmit(frame)
}

func (h *Host) handleIPv4(f wire.EthernetFrame) {
	pkt, err := wire.DecodeIPv4Packet(f.Payload)
	if err != nil {
		return
	}

	if !h.isForUs(pkt.Dst) {
		return
	}

	switch pkt.Protocol {
	case wire.IPProtocolICMP:
		h.handleICMP(pkt)
	case wire.IPProtocolUDP:
		h.handleUDP(pkt)
	default:
	}
}

// isForUs reports whether pkt.Dst is this host's own address, the limited
// broadcast address, or its subnet's directed broadcast, per spec.md
// §4.12's "dst ≠ own IP and dst ≠ broadcast → drop" rule.
func (h *Host) isForUs(dst addr.IPv4) bool {
	if dst.IsLimitedBroadcast() {
		return true
	}

	ip, mask, hasIP := h.nic.IP()
	if !hasIP {
		return false
	}

	return dst == ip || dst == ip.BroadcastOf(mask)
}

func (h *Host) handleICMP(pkt wire.IPv4Packet) {
	icmpPkt, err := wire.DecodeICMPPacket(pkt.Payload)
	if err != nil {
		return
	}

	switch icmpPkt.Type {
	case wire.ICMPTypeEchoRequest:
		h.replyEcho(pkt, icmpPkt)
	case wire.ICMPTypeEchoReply:
		h.icmp.HandleEchoReply(pkt.Src, icmpPkt)
	default:
	}
}

// replyEcho answers an Echo Request by swapping source/destination and
// mirroring identifier, sequence, and data into a type-0 reply, per
// spec.md §4.12.
func (h *Host) replyEcho(pkt wire.IPv4Packet, req wire.ICMPPacket) {
	ip, _, hasIP := h.nic.IP()
	if !hasIP {
		return
	}

	reply := wire.NewEchoReply(req)

	icmpData, err := reply.Encode()
	if err != nil {
		return
	}

	ipPkt, err := wire.NewIPv4Packet(ip, pkt.Src, wire.IPProtocolICMP, icmpData)
	if err != nil {
		return
	}
	ipPkt.TTL = h.ttl

	h.transmitIPv4(ipPkt)
}

func (h *Host) handleUDP(pkt wire.IPv4Packet) {
	dgram, err := wire.DecodeUDPDatagram(pkt.Payload)
	if err != nil {
		return
	}

	if dgram.DstPort != 68 || h.dhcp == nil {
		return
	}

	dhcpPkt, err := wire.DecodeDHCPPacket(dgram.Payload)
	if err != nil {
		return
	}

	msgType, ok := dhcpPkt.MessageType()
	if !ok {
		return
	}

	switch msgType {
	case wire.DHCPOffer:
		if h.dhcp.HandleOffer(dhcpPkt) {
			h.sendDHCP(h.dhcp.BuildRequest())
		}
	case wire.DHCPAck:
		h.dhcp.HandleAck(dhcpPkt)
	case wire.DHCPNak:
		h.dhcp.HandleNak(dhcpPkt)
	default:
	}
}

// Ping implements spec.md §4.12's unicast ICMP send algorithm: resolve the
// next hop (own subnet vs. gateway), resolve its MAC, and transmit an Echo
// Request. When the next hop's MAC is not yet cached, it synthesizes and
// transmits an ARP request and drops this ping — the simulator does not
// queue outbound traffic; a retry is another call to Ping.
func (h *Host) Ping(dest addr.IPv4, data []byte) {
	ip, mask, hasIP := h.nic.IP()
	if !hasIP {
		return
	}

	nextHop := dest
	if !dest.InSubnet(ip.NetworkOf(mask), mask) {
		gateway, hasGateway := h.nic.Gateway()
		if !hasGateway {
			return
		}

		nextHop = gateway
	}

	dstMAC, ok := h.arp.Resolve(nextHop)
	if !ok {
		req := arpsvc.CreateRequest(h.nic.MAC(), ip, nextHop)
		h.transmitARP(req, addr.Broadcast)

		return
	}

	icmpPkt := h.icmp.CreateEchoRequest(dest, data, 0)

	icmpData, err := icmpPkt.Encode()
	if err != nil {
		return
	}

	ipPkt, err := wire.NewIPv4Packet(ip, dest, wire.IPProtocolICMP, icmpData)
	if err != nil {
		return
	}
	ipPkt.TTL = h.ttl

	h.transmitIPv4WithMAC(ipPkt, dstMAC)
}

// transmitIPv4 resolves pkt.Dst's MAC (broadcast addresses resolve
// trivially) and transmits, synthesizing an ARP request and dropping the
// packet on a cache miss, mirroring [Host.Ping]'s resolution rule.
func (h *Host) transmitIPv4(pkt wire.IPv4Packet) {
	mac, ok := h.resolveMAC(pkt.Dst)
	if !ok {
		ip, _, hasIP := h.nic.IP()
		if !hasIP {
			return
		}

		req := arpsvc.CreateRequest(h.nic.MAC(), ip, pkt.Dst)
		h.transmitARP(req, addr.Broadcast)

		return
	}

	h.transmitIPv4WithMAC(pkt, mac)
}

func (h *Host) transmitIPv4WithMAC(pkt wire.IPv4Packet, dstMAC addr.MAC) {
	data, err := pkt.Encode()
	if err != nil {
		return
	}

	frame, err := wire.NewEthernetFrame(dstMAC, h.nic.MAC(), wire.EtherTypeIPv4, wire.PadToMinPayload(data))
	if err != nil {
		return
	}

	_ = h.nic.Transmit(frame)
}

func (h *Host) resolveMAC(dst addr.IPv4) (addr.MAC, bool) {
	if dst.IsLimitedBroadcast() {
		return addr.Broadcast, true
	}

	ip, mask, hasIP := h.nic.IP()
	if hasIP && dst == ip.BroadcastOf(mask) {
		return addr.Broadcast, true
	}

	return h.arp.Resolve(dst)
}

// StartDHCP broadcasts a DISCOVER to begin DORA. It is a no-op on a host
// with no DHCP client.
func (h *Host) StartDHCP() {
	if h.dhcp == nil {
		return
	}

	h.sendDHCP(h.dhcp.StartDiscover())
}

// TickDHCP drives the client's discover-timeout retry and renew/rebind
// timers for now, re-transmitting as each transition requires. It is a
// no-op on a host with no DHCP client.
func (h *Host) TickDHCP(now time.Time) {
	if h.dhcp == nil {
		return
	}

	if h.dhcp.IsDiscoverTimeout(now) {
		h.dhcp.RetryDiscover()
		h.sendDHCP(h.dhcp.StartDiscover())

		return
	}

	before := h.dhcp.State()
	h.dhcp.Tick(now)
	after := h.dhcp.State()

	if after != before && (after == dhcpclient.StateRenewing || after == dhcpclient.StateRebinding) {
		h.sendDHCP(h.dhcp.BuildRequest())
	}
}

// sendDHCP encapsulates pkt in UDP(68→67)/IPv4/Ethernet and transmits it,
// broadcasting unless pkt is a unicast renewal naming a bound server.
func (h *Host) sendDHCP(pkt wire.DHCPPacket) {
	data, err := pkt.Encode()
	if err != nil {
		return
	}

	dst := addr.IPv4(0xFFFFFFFF)
	dstMAC := addr.Broadcast

	if !pkt.IsBroadcast() && pkt.Ciaddr != 0 {
		if lease, bound := h.dhcp.Lease(); bound {
			dst = lease.ServerIP
			if mac, ok := h.arp.Resolve(dst); ok {
				dstMAC = mac
			}
		}
	}

	src, _, hasIP := h.nic.IP()
	if !hasIP {
		src = pkt.Ciaddr
	}

	dgram := wire.NewUDPDatagram(68, 67, data)

	udpData, err := dgram.Encode(src, dst)
	if err != nil {
		return
	}

	ipPkt := wire.IPv4Packet{TTL: h.ttl, Protocol: wire.IPProtocolUDP, Src: src, Dst: dst, Payload: udpData}

	h.transmitIPv4WithMAC(ipPkt, dstMAC)
}
