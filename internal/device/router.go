package device

import (
	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/arpsvc"
	"github.com/netlab-sim/vnet/internal/dhcpserver"
	"github.com/netlab-sim/vnet/internal/nic"
	"github.com/netlab-sim/vnet/internal/routing"
	"github.com/netlab-sim/vnet/internal/wire"
)

// dhcpServerPort and dhcpClientPort are the well-known UDP ports DHCP
// messages travel between, per spec.md §3.
const (
	dhcpServerPort = 67
	dhcpClientPort = 68
)

// Router is the router kernel: a [routing.Engine] for unicast forwarding
// (§4.8), with an optional per-interface [dhcpserver.Server] (§4.9) for
// interfaces configured to serve DHCP, per spec.md §4.12.
type Router struct {
	engine *routing.Engine
	nics   map[string]*nic.NIC
	dhcp   map[string]*dhcpserver.Server
}

// NewRouter creates a router around table.
func NewRouter(table *routing.Table) *Router {
	r := &Router{
		engine: routing.NewEngine(table),
		nics:   make(map[string]*nic.NIC),
		dhcp:   make(map[string]*dhcpserver.Server),
	}
	r.engine.SetOnTransmit(r.transmitFrame)

	return r
}

// Engine returns the router's forwarding engine.
func (r *Router) Engine() *routing.Engine { return r.engine }

// AddInterface registers a router interface backed by n, addressed
// ip/mask, with its own ARP cache, and wires n's receive callback into the
// router's dispatcher.
func (r *Router) AddInterface(name string, n *nic.NIC, ip addr.IPv4, mask addr.SubnetMask, arp *arpsvc.Cache) {
	r.nics[name] = n
	r.engine.AddInterface(&routing.Iface{Name: name, MAC: n.MAC(), IP: ip, Mask: mask, ARP: arp})
	n.SetOnReceive(func(f wire.EthernetFrame) { r.receiveFrame(name, f) })
}

// EnableDHCP attaches srv to iface: inbound DHCP messages to port 67 on
// that interface are handed to it instead of being forwarded or dropped.
func (r *Router) EnableDHCP(iface string, srv *dhcpserver.Server) {
	r.dhcp[iface] = srv
}

// DHCPServer returns the server attached to iface, if any.
func (r *Router) DHCPServer(iface string) (*dhcpserver.Server, bool) {
	srv, ok := r.dhcp[iface]

	return srv, ok
}

func (r *Router) transmitFrame(iface string, frame wire.EthernetFrame) {
	n, ok := r.nics[iface]
	if !ok {
		return
	}

	_ = n.Transmit(frame)
}

func (r *Router) receiveFrame(ingress string, f wire.EthernetFrame) {
	switch f.EtherType {
	case wire.EtherTypeARP:
		p, err := wire.DecodeARPPacket(f.Payload)
		if err != nil {
			return
		}

		r.engine.HandleARP(ingress, p)
	case wire.EtherTypeIPv4:
		r.handleIPv4(ingress, f)
	default:
	}
}

func (r *Router) handleIPv4(ingress string, f wire.EthernetFrame) {
	pkt, err := wire.DecodeIPv4Packet(f.Payload)
	if err != nil {
		return
	}

	if pkt.Protocol == wire.IPProtocolUDP {
		if dgram, dErr := wire.DecodeUDPDatagram(pkt.Payload); dErr == nil && dgram.DstPort == dhcpServerPort {
			if srv, ok := r.dhcp[ingress]; ok {
				r.handleDHCP(ingress, srv, dgram)

				return
			}
		}
	}

	r.engine.HandleIPv4(ingress, f.Payload)
}

// handleDHCP implements spec.md §4.12's router DHCP path: hand the decoded
// message to the attached server and, if it produces a response, emit it
// encapsulated as UDP(67→68)/IPv4/Ethernet back out ingress.
func (r *Router) handleDHCP(ingress string, srv *dhcpserver.Server, dgram wire.UDPDatagram) {
	req, err := wire.DecodeDHCPPacket(dgram.Payload)
	if err != nil {
		return
	}

	msgType, ok := req.MessageType()
	if !ok {
		return
	}

	var resp wire.DHCPPacket
	var hasResp bool

	switch msgType {
	case wire.DHCPDiscover:
		resp, hasResp = srv.HandleDiscover(req)
	case wire.DHCPRequest:
		resp, hasResp = srv.HandleRequest(req), true
	case wire.DHCPRelease:
		srv.HandleRelease(req)
	case wire.DHCPDecline:
		srv.HandleDecline(req)
	case wire.DHCPInform:
		resp, hasResp = srv.HandleInform(req), true
	default:
	}

	if !hasResp {
		return
	}

	// HandleRequest returns a zero-value packet (no message-type option)
	// when the client named a different server; treat that as "no
	// response", per spec.md §4.9.
	if _, ok = resp.MessageType(); !ok {
		return
	}

	r.sendDHCPResponse(ingress, resp)
}

func (r *Router) sendDHCPResponse(iface string, resp wire.DHCPPacket) {
	ifaceInfo, ok := r.engine.Interface(iface)
	if !ok {
		return
	}

	data, err := resp.Encode()
	if err != nil {
		return
	}

	dstIP := resp.Yiaddr
	dstMAC := resp.ChAddr
	if resp.IsBroadcast() {
		dstIP = addr.IPv4(0xFFFFFFFF)
		dstMAC = addr.Broadcast
	}

	dgram := wire.NewUDPDatagram(dhcpServerPort, dhcpClientPort, data)

	udpData, err := dgram.Encode(ifaceInfo.IP, dstIP)
	if err != nil {
		return
	}

	ipPkt := wire.IPv4Packet{
		TTL:      wire.DefaultTTL,
		Protocol: wire.IPProtocolUDP,
		Src:      ifaceInfo.IP,
		Dst:      dstIP,
		Payload:  udpData,
	}

	ipData, err := ipPkt.Encode()
	if err != nil {
		return
	}

	frame, err := wire.NewEthernetFrame(dstMAC, ifaceInfo.MAC, wire.EtherTypeIPv4, wire.PadToMinPayload(ipData))
	if err != nil {
		return
	}

	r.transmitFrame(iface, frame)
}
