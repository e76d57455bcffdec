package routing

import (
	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/arpsvc"
	"github.com/netlab-sim/vnet/internal/wire"
)

// Statistics reports router activity counters.
type Statistics struct {
	PacketsReceived  uint64
	PacketsForwarded uint64
	PacketsDropped   uint64
	TTLExpired       uint64
	NoRoute          uint64
	ARPUnresolved    uint64
}

// Iface is a router interface: its address, MAC, and ARP cache.
type Iface struct {
	Name string
	MAC  addr.MAC
	IP   addr.IPv4
	Mask addr.SubnetMask
	ARP  *arpsvc.Cache
}

// TransmitFunc emits frame out the named interface.
type TransmitFunc func(iface string, frame wire.EthernetFrame)

// DeliverFunc is invoked for an IPv4 packet addressed to one of the
// router's own interfaces, for host-stack delivery (e.g. a DHCP relay or
// the router itself being pinged).
type DeliverFunc func(iface string, pkt wire.IPv4Packet)

// Engine is the router's forwarding engine (C8).
type Engine struct {
	table  *Table
	ifaces map[string]*Iface
	stats  Statistics

	onTransmit TransmitFunc
	onDeliver  DeliverFunc
}

// NewEngine creates a forwarding engine backed by table.
func NewEngine(table *Table) *Engine {
	return &Engine{
		table:  table,
		ifaces: make(map[string]*Iface),
	}
}

// Table returns the engine's routing table.
func (e *Engine) Table() *Table { return e.table }

// SetOnTransmit installs the frame-transmit callback.
func (e *Engine) SetOnTransmit(f TransmitFunc) { e.onTransmit = f }

// SetOnDeliver installs the host-stack delivery callback.
func (e *Engine) SetOnDeliver(f DeliverFunc) { e.onDeliver = f }

// Statistics returns a snapshot of the engine's counters.
func (e *Engine) Statistics() Statistics { return e.stats }

// AddInterface registers iface's address/MAC/ARP cache and adds its
// directly-connected route to the routing table.
func (e *Engine) AddInterface(iface *Iface) {
	e.ifaces[iface.Name] = iface
	e.table.SetConnected(iface.Name, iface.IP, iface.Mask)
}

// Interface returns the registered interface by name.
func (e *Engine) Interface(name string) (*Iface, bool) {
	iface, ok := e.ifaces[name]

	return iface, ok
}

// HandleARP processes an ARP packet observed on ingress: it is always fed
// to that interface's cache, and if it is a request for the interface's own
// IP, the engine replies in kind.
func (e *Engine) HandleARP(ingress string, p wire.ARPPacket) {
	iface, ok := e.ifaces[ingress]
	if !ok {
		return
	}

	iface.ARP.ProcessPacket(p)

	if p.Operation != wire.ARPRequest || p.TargetIP != iface.IP {
		return
	}

	reply := arpsvc.CreateReply(p, iface.MAC)
	e.transmitARP(iface, reply, p.SenderMAC)
}

func (e *Engine) transmitARP(iface *Iface, p wire.ARPPacket, dstMAC addr.MAC) {
	data, err := p.Encode()
	if err != nil {
		return
	}

	frame, err := wire.NewEthernetFrame(dstMAC, iface.MAC, wire.EtherTypeARP, wire.PadToMinPayload(data))
	if err != nil {
		return
	}

	if e.onTransmit != nil {
		e.onTransmit(iface.Name, frame)
	}
}

// HandleIPv4 runs the forwarding algorithm of spec.md §4.8 on raw (decoded
// at the NIC layer, still undecoded here) IPv4 bytes that arrived on
// ingress addressed to the router's MAC.
func (e *Engine) HandleIPv4(ingress string, data []byte) {
	e.stats.PacketsReceived++

	iface, ok := e.ifaces[ingress]
	if !ok {
		e.stats.PacketsDropped++

		return
	}

	pkt, err := wire.DecodeIPv4Packet(data)
	if err != nil {
		e.stats.PacketsDropped++

		return
	}

	if pkt.Dst == iface.IP {
		if e.onDeliver != nil {
			e.onDeliver(ingress, pkt)
		}

		return
	}

	if pkt.TTL <= 1 {
		e.stats.TTLExpired++
		e.stats.PacketsDropped++
		e.sendTimeExceeded(iface, pkt, data)

		return
	}

	route, ok := e.table.Lookup(pkt.Dst)
	if !ok {
		e.stats.NoRoute++
		e.stats.PacketsDropped++

		return
	}

	decremented, err := pkt.DecrementTTL()
	if err != nil {
		e.stats.TTLExpired++
		e.stats.PacketsDropped++
		e.sendTimeExceeded(iface, pkt, data)

		return
	}

	egress, ok := e.ifaces[route.Iface]
	if !ok {
		e.stats.PacketsDropped++

		return
	}

	nextHop := pkt.Dst
	if route.HasNextHop {
		nextHop = route.NextHop
	}

	mac, ok := egress.ARP.Resolve(nextHop)
	if !ok {
		e.stats.ARPUnresolved++
		e.stats.PacketsDropped++

		return
	}

	outData, err := decremented.Encode()
	if err != nil {
		e.stats.PacketsDropped++

		return
	}

	frame, err := wire.NewEthernetFrame(mac, egress.MAC, wire.EtherTypeIPv4, wire.PadToMinPayload(outData))
	if err != nil {
		e.stats.PacketsDropped++

		return
	}

	e.stats.PacketsForwarded++

	if e.onTransmit != nil {
		e.onTransmit(route.Iface, frame)
	}
}

// sendTimeExceeded builds and emits an ICMP Time Exceeded back to the
// original source, out the ingress interface, per spec.md §4.8 step 3.
func (e *Engine) sendTimeExceeded(iface *Iface, pkt wire.IPv4Packet, rawData []byte) {
	icmpPkt := wire.NewTimeExceeded(rawData)

	icmpData, err := icmpPkt.Encode()
	if err != nil {
		return
	}

	ipPkt, err := wire.NewIPv4Packet(iface.IP, pkt.Src, wire.IPProtocolICMP, icmpData)
	if err != nil {
		return
	}

	ipData, err := ipPkt.Encode()
	if err != nil {
		return
	}

	mac, ok := iface.ARP.Resolve(pkt.Src)
	if !ok {
		e.stats.ARPUnresolved++

		return
	}

	frame, err := wire.NewEthernetFrame(mac, iface.MAC, wire.EtherTypeIPv4, wire.PadToMinPayload(ipData))
	if err != nil {
		return
	}

	if e.onTransmit != nil {
		e.onTransmit(iface.Name, frame)
	}
}
