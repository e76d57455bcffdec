// Package topology implements the external topology registry of spec.md
// §6: the only collaborator permitted to install or remove link wiring.
// It owns device placement (opaque x/y coordinates), connection lifecycle,
// and the id → device lookup terminals use to resolve a command's target.
package topology

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/netlab-sim/vnet/internal/link"
	"github.com/netlab-sim/vnet/internal/nic"
)

// Kind identifies a device's kernel type.
type Kind int

// Device kinds, per spec.md §6's device construction list.
const (
	KindHost Kind = iota
	KindHub
	KindSwitch
	KindRouter
)

// String implements [fmt.Stringer] and is used as the id prefix new devices
// are allocated under.
func (k Kind) String() string {
	switch k {
	case KindHost:
		return "host"
	case KindHub:
		return "hub"
	case KindSwitch:
		return "switch"
	case KindRouter:
		return "router"
	default:
		return "unknown"
	}
}

// poweroffable is implemented by device kernels with an explicit power
// state ([*device.Hub], [*device.Switch]); [Registry.ClearAll] powers off
// every device that implements it.
type poweroffable interface {
	PowerOff()
}

// Device is a topology-managed device: its kernel (one of *device.Host,
// *device.Hub, *device.Switch, *device.Router — opaque to this package,
// per spec.md §6's "device construction... not spec'd here"), its
// position, and the named interfaces a connection can attach to.
type Device struct {
	ID     string
	Kind   Kind
	X, Y   float64
	Kernel any

	ifaces map[string]*nic.NIC
}

// Interface returns the NIC registered under name.
func (d *Device) Interface(name string) (*nic.NIC, bool) {
	n, ok := d.ifaces[name]

	return n, ok
}

// Connection is a wired link between two device interfaces.
type Connection struct {
	ID string
	A  link.Endpoint
	B  link.Endpoint

	l *link.Link
}

// Link returns the connection's underlying [link.Link], for
// activate/deactivate ("unplug the cable") commands.
func (c *Connection) Link() *link.Link { return c.l }

// Registry is the topology registry of spec.md §6.
type Registry struct {
	mu sync.Mutex

	devices  map[string]*Device
	conns    map[string]*Connection
	occupied map[string]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices:  make(map[string]*Device),
		conns:    make(map[string]*Connection),
		occupied: make(map[string]struct{}),
	}
}

// AddDevice registers kernel (already constructed by the external device
// factory spec.md §6 describes) at position (x, y), with ifaces naming the
// NICs a connection may attach to. It returns the allocated device, whose
// ID is a kind-prefixed UUIDv7 (time-ordered, so a topology dump lists
// devices in creation order without a separate sequence field).
func (r *Registry) AddDevice(kind Kind, x, y float64, kernel any, ifaces map[string]*nic.NIC) *Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}

	d := &Device{
		ID:     fmt.Sprintf("%s-%s", kind, id),
		Kind:   kind,
		X:      x,
		Y:      y,
		Kernel: kernel,
		ifaces: ifaces,
	}
	r.devices[d.ID] = d

	return d
}

func occupiedKey(deviceID, ifName string) string {
	return deviceID + "/" + ifName
}

// AddConnection wires ifA on devA to ifB on devB with a [link.Link] and
// activates it. It returns ok=false (per spec.md §6's "none if either
// endpoint occupied") if either device/interface is unknown or either
// interface already belongs to a connection.
func (r *Registry) AddConnection(devA, ifA, devB, ifB string) (conn *Connection, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.devices[devA]
	if !ok {
		return nil, false
	}

	b, ok := r.devices[devB]
	if !ok {
		return nil, false
	}

	keyA, keyB := occupiedKey(devA, ifA), occupiedKey(devB, ifB)
	if _, taken := r.occupied[keyA]; taken {
		return nil, false
	}
	if _, taken := r.occupied[keyB]; taken {
		return nil, false
	}

	nicA, ok := a.Interface(ifA)
	if !ok {
		return nil, false
	}

	nicB, ok := b.Interface(ifB)
	if !ok {
		return nil, false
	}

	l := link.New(link.Endpoint{DeviceID: devA, IfName: ifA}, nicA, link.Endpoint{DeviceID: devB, IfName: ifB}, nicB)
	l.WireUp()

	connID, err := uuid.NewV7()
	if err != nil {
		connID = uuid.New()
	}

	conn = &Connection{ID: "conn-" + connID.String(), A: l.A(), B: l.B(), l: l}
	r.conns[conn.ID] = conn
	r.occupied[keyA] = struct{}{}
	r.occupied[keyB] = struct{}{}

	return conn, true
}

// RemoveConnection unwires and forgets connID. It is a no-op if connID is
// unknown.
func (r *Registry) RemoveConnection(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeConnectionLocked(connID)
}

func (r *Registry) removeConnectionLocked(connID string) {
	conn, ok := r.conns[connID]
	if !ok {
		return
	}

	conn.l.Unwire()
	delete(r.conns, connID)
	delete(r.occupied, occupiedKey(conn.A.DeviceID, conn.A.IfName))
	delete(r.occupied, occupiedKey(conn.B.DeviceID, conn.B.IfName))
}

// ClearAll tears down every connection, powers off every device that
// supports it, and drops all devices, per spec.md §6.
func (r *Registry) ClearAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.conns {
		r.removeConnectionLocked(id)
	}

	for id, d := range r.devices {
		if p, ok := d.Kernel.(poweroffable); ok {
			p.PowerOff()
		}

		delete(r.devices, id)
	}
}

// Instance returns the device registered under id.
func (r *Registry) Instance(id string) (*Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]

	return d, ok
}

// Connections returns a snapshot of every active connection's id.
func (r *Registry) Connections() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}

	return ids
}
