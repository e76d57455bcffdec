package device

import (
	"github.com/netlab-sim/vnet/internal/l2"
	"github.com/netlab-sim/vnet/internal/nic"
	"github.com/netlab-sim/vnet/internal/wire"
)

// Switch is an Ethernet switch kernel wrapping [l2.Forwarder]: per-port NIC
// wiring, VLAN assignment, and power state, per spec.md §4.12.
type Switch struct {
	forwarder *l2.Forwarder
	ports     map[int]*nic.NIC
	vlans     map[int]uint16
	online    bool
}

// NewSwitch creates a powered-on switch whose MAC table is table.
func NewSwitch(table *l2.MACTable) *Switch {
	return &Switch{
		forwarder: l2.NewForwarder(table),
		ports:     make(map[int]*nic.NIC),
		vlans:     make(map[int]uint16),
		online:    true,
	}
}

// Forwarder returns the switch's backing forwarder, for test introspection
// and terminal "show mac address-table" style commands.
func (s *Switch) Forwarder() *l2.Forwarder { return s.forwarder }

// AddPort attaches n as port id on vlan, putting it in promiscuous mode and
// wiring its receive callback into the switch's forwarding logic. A zero
// vlan uses [l2.DefaultVLAN].
func (s *Switch) AddPort(id int, n *nic.NIC, vlan uint16) {
	if vlan == 0 {
		vlan = l2.DefaultVLAN
	}

	s.ports[id] = n
	s.vlans[id] = vlan
	s.forwarder.SetPort(id, vlan, true)
	n.SetPromiscuous(true)
	n.SetOnReceive(func(f wire.EthernetFrame) { s.receiveFrame(id, f) })
}

// RemovePort detaches port id entirely.
func (s *Switch) RemovePort(id int) {
	delete(s.ports, id)
	delete(s.vlans, id)
	s.forwarder.RemovePort(id)
}

// SetPortEnabled enables or disables port id without changing its VLAN.
func (s *Switch) SetPortEnabled(id int, enabled bool) {
	if _, ok := s.ports[id]; !ok {
		return
	}

	s.forwarder.SetPort(id, s.vlans[id], enabled)
}

// PowerOn brings the switch online.
func (s *Switch) PowerOn() { s.online = true }

// PowerOff takes the switch offline; receiveFrame then drops every frame,
// per spec.md §4.12.
func (s *Switch) PowerOff() { s.online = false }

// IsOnline reports the switch's power state.
func (s *Switch) IsOnline() bool { return s.online }

// Reset clears the learned MAC table, per spec.md §4.12.
func (s *Switch) Reset() { s.forwarder.Reset() }

func (s *Switch) receiveFrame(ingress int, f wire.EthernetFrame) {
	if !s.online {
		return
	}

	decision := s.forwarder.Forward(f, ingress)

	switch decision.Action {
	case l2.ActionForward, l2.ActionFlood:
		for _, id := range decision.Ports {
			n, ok := s.ports[id]
			if !ok {
				continue
			}

			_ = n.Transmit(f)
		}
	case l2.ActionFilter:
	}
}
