package l2

import (
	"github.com/netlab-sim/vnet/internal/wire"
)

// Action classifies a [Decision] made by [Forwarder.Forward].
type Action int

// Action values.
const (
	// ActionForward delivers the frame to exactly one egress port.
	ActionForward Action = iota
	// ActionFlood delivers the frame to every enabled, same-VLAN port
	// other than the ingress.
	ActionFlood
	// ActionFilter drops the frame without transmitting it anywhere.
	ActionFilter
)

// String implements [fmt.Stringer].
func (a Action) String() string {
	switch a {
	case ActionForward:
		return "forward"
	case ActionFlood:
		return "flood"
	case ActionFilter:
		return "filter"
	default:
		return "unknown"
	}
}

// Decision is the outcome of [Forwarder.Forward]: what to do with a frame
// and on which ports.
type Decision struct {
	Action Action
	Ports  []int
	Reason string
}

type port struct {
	vlan    uint16
	enabled bool
}

// ForwarderStatistics reports a [Forwarder]'s cumulative decision counters.
type ForwarderStatistics struct {
	Forwarded uint64
	Flooded   uint64
	Filtered  uint64
	Broadcast uint64
	Multicast uint64
}

// DefaultVLAN is the VLAN id a port has unless set otherwise.
const DefaultVLAN = 1

// Forwarder implements switch forwarding logic: MAC learning, unicast
// lookup, broadcast/multicast flood, same-port filtering, and VLAN
// isolation.  It owns a [MACTable] but not the ports' physical state; the
// embedding switch kernel calls [Forwarder.SetPort] to declare topology.
type Forwarder struct {
	table *MACTable
	ports map[int]*port
	// order records the sequence ports were first declared in, so flood
	// delivery order is insertion order and stable across runs (spec.md
	// §5's ordering rule), not incidental map iteration order.
	order []int
	stats ForwarderStatistics
}

// NewForwarder creates a forwarder backed by table.
func NewForwarder(table *MACTable) *Forwarder {
	return &Forwarder{
		table: table,
		ports: make(map[int]*port),
	}
}

// MACTable returns the forwarder's backing table.
func (f *Forwarder) MACTable() *MACTable { return f.table }

// SetPort declares port p with the given VLAN id and enabled state. The
// first call for a given port fixes its position in the flood order;
// subsequent calls update its VLAN/enabled state in place. Disabling a port
// removes its learned MAC entries.
func (f *Forwarder) SetPort(p int, vlan uint16, enabled bool) {
	if vlan == 0 {
		vlan = DefaultVLAN
	}

	if _, exists := f.ports[p]; !exists {
		f.order = append(f.order, p)
	}

	f.ports[p] = &port{vlan: vlan, enabled: enabled}

	if !enabled {
		f.table.RemovePort(p)
	}
}

// RemovePort forgets port p entirely, along with its learned MAC entries.
func (f *Forwarder) RemovePort(p int) {
	delete(f.ports, p)
	f.table.RemovePort(p)

	for i, id := range f.order {
		if id == p {
			f.order = append(f.order[:i], f.order[i+1:]...)

			break
		}
	}
}

// Forward decides how frame arriving on ingress should be handled: it
// learns frame.Src on ingress, then looks up frame.Dst.
//
//   - Ingress disabled or unknown: filter without learning or looking up
//     anything.
//   - Broadcast or multicast destination: flood every enabled port sharing
//     ingress's VLAN, excluding ingress itself.
//   - Known unicast destination whose learned port equals ingress: filter
//     (the frame would return out the port it arrived on).
//   - Known unicast destination in the candidate (same-VLAN, enabled,
//     non-ingress) set: forward to that single port.
//   - Known unicast destination not in the candidate set (learned on a
//     disabled port or a different VLAN): flood the candidate set, since the
//     learned location is currently unreachable.
//   - Unknown unicast destination: flood the candidate set.
func (f *Forwarder) Forward(frame wire.EthernetFrame, ingress int) Decision {
	p, ok := f.ports[ingress]
	if !ok || !p.enabled {
		return f.record(Decision{Action: ActionFilter, Reason: "ingress disabled"}, frame)
	}

	_ = f.table.Learn(frame.Src, ingress)

	candidates := f.candidatePorts(ingress)

	if frame.Dst.IsBroadcast() || frame.Dst.IsMulticast() {
		return f.record(Decision{Action: ActionFlood, Ports: candidates, Reason: "broadcast or multicast destination"}, frame)
	}

	learnedPort, known := f.table.Lookup(frame.Dst)
	if !known {
		return f.record(Decision{Action: ActionFlood, Ports: candidates, Reason: "unknown unicast destination"}, frame)
	}

	if learnedPort == ingress {
		return f.record(Decision{Action: ActionFilter, Reason: "destination learned on ingress port"}, frame)
	}

	for _, p := range candidates {
		if p == learnedPort {
			return f.record(Decision{Action: ActionForward, Ports: []int{p}, Reason: "known unicast destination"}, frame)
		}
	}

	return f.record(Decision{Action: ActionFlood, Ports: candidates, Reason: "learned port unreachable from ingress vlan"}, frame)
}

// record updates the forwarder's cumulative statistics for decision and
// returns decision unchanged, so call sites can return record(...) directly.
func (f *Forwarder) record(decision Decision, frame wire.EthernetFrame) Decision {
	switch decision.Action {
	case ActionForward:
		f.stats.Forwarded++
	case ActionFlood:
		f.stats.Flooded++
		if frame.Dst.IsBroadcast() {
			f.stats.Broadcast++
		} else if frame.Dst.IsMulticast() {
			f.stats.Multicast++
		}
	case ActionFilter:
		f.stats.Filtered++
	}

	return decision
}

// Statistics returns a snapshot of the forwarder's cumulative decision
// counters.
func (f *Forwarder) Statistics() ForwarderStatistics {
	return f.stats
}

// candidatePorts returns every enabled port sharing ingress's VLAN, other
// than ingress itself, in port-declaration order.
func (f *Forwarder) candidatePorts(ingress int) []int {
	ingressVLAN := DefaultVLAN
	if p, ok := f.ports[ingress]; ok {
		ingressVLAN = int(p.vlan)
	}

	var ids []int
	for _, id := range f.order {
		p := f.ports[id]
		if id == ingress || !p.enabled || int(p.vlan) != ingressVLAN {
			continue
		}

		ids = append(ids, id)
	}

	return ids
}

// Reset clears all learned MAC entries, leaving port configuration intact.
func (f *Forwarder) Reset() {
	f.table.Clear()
}
