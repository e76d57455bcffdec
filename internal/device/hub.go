package device

import (
	"github.com/netlab-sim/vnet/internal/nic"
	"github.com/netlab-sim/vnet/internal/wire"
)

// Hub is an unintelligent N-port repeater, per spec.md §4.12: a frame
// received on one port, while the hub is online, is re-transmitted to
// every other port whose NIC is up. There is no MAC table and no
// filtering.
type Hub struct {
	ports  map[int]*nic.NIC
	order  []int
	online bool
}

// NewHub creates an empty, powered-on hub.
func NewHub() *Hub {
	return &Hub{ports: make(map[int]*nic.NIC), online: true}
}

// AddPort attaches n as port id, putting it in promiscuous mode and wiring
// its receive callback to the hub's repeater logic. The first call for a
// given id fixes its position in repeat order.
func (h *Hub) AddPort(id int, n *nic.NIC) {
	if _, exists := h.ports[id]; !exists {
		h.order = append(h.order, id)
	}

	h.ports[id] = n
	n.SetPromiscuous(true)
	n.SetOnReceive(func(f wire.EthernetFrame) { h.receiveFrame(id, f) })
}

// RemovePort detaches port id.
func (h *Hub) RemovePort(id int) {
	delete(h.ports, id)

	for i, p := range h.order {
		if p == id {
			h.order = append(h.order[:i], h.order[i+1:]...)

			break
		}
	}
}

// PowerOn brings the hub online.
func (h *Hub) PowerOn() { h.online = true }

// PowerOff takes the hub offline; it then repeats nothing.
func (h *Hub) PowerOff() { h.online = false }

// IsOnline reports the hub's power state.
func (h *Hub) IsOnline() bool { return h.online }

// receiveFrame repeats f, received on ingress, to every other up port, in
// port-declaration order (spec.md §5's stable flood ordering rule).
func (h *Hub) receiveFrame(ingress int, f wire.EthernetFrame) {
	if !h.online {
		return
	}

	for _, id := range h.order {
		if id == ingress {
			continue
		}

		n, ok := h.ports[id]
		if !ok || !n.IsUp() {
			continue
		}

		_ = n.Transmit(f)
	}
}
