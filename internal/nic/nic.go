// Package nic implements [NetworkInterface], the per-device network
// interface card: link state, addressing, MTU, promiscuous mode, and the
// transmit/receive filtering rules of spec.md §4.3.
package nic

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/wire"
)

// Bounds on the configurable MTU, per spec.md §3.
const (
	MinMTU     = 576
	MaxMTU     = 9216
	DefaultMTU = 1500
)

// Errors returned by NIC operations, per spec.md §7.
const (
	ErrInterfaceDown errors.Error = "interface is down"
	ErrMTUOutOfRange errors.Error = "mtu out of range"
)

// Counters tracks per-interface traffic statistics.
type Counters struct {
	TxFrames      uint64
	TxBytes       uint64
	RxFrames      uint64
	RxBytes       uint64
	DroppedFrames uint64
}

// TransmitFunc is installed by the link layer (C11) to deliver an
// already-encoded frame to the peer.  It is the single-slot callback
// described in spec.md §9 "Observer callbacks as installed hooks".
type TransmitFunc func(data []byte)

// ReceiveFunc is installed by the owning device kernel (C12) to process a
// frame that passed the receive filter.
type ReceiveFunc func(f wire.EthernetFrame)

// NIC is a single network interface.  It is safe for concurrent use, though
// the simulator's cooperative, single-threaded execution model (spec.md §5)
// means concurrent access is not expected in practice.
type NIC struct {
	mu sync.Mutex

	name        string
	mac         addr.MAC
	logger      *slog.Logger
	up          bool
	ip          addr.IPv4
	mask        addr.SubnetMask
	hasIP       bool
	gateway     addr.IPv4
	hasGateway  bool
	mtu         int
	promiscuous bool
	counters    Counters

	onTransmit TransmitFunc
	onReceive  ReceiveFunc
}

// New creates a NIC with the given name and MAC address, down, with no IP
// configured, and [DefaultMTU].
func New(name string, mac addr.MAC, logger *slog.Logger) *NIC {
	if logger == nil {
		logger = slogutil.NewDiscardLogger()
	}

	return &NIC{
		name:   name,
		mac:    mac,
		logger: logger,
		mtu:    DefaultMTU,
	}
}

// Name returns the interface name.
func (n *NIC) Name() string { return n.name }

// MAC returns the interface's hardware address.
func (n *NIC) MAC() addr.MAC { return n.mac }

// Up brings the interface up.
func (n *NIC) Up() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.up = true
}

// Down brings the interface down.  Frames in flight are not affected, but
// further [NIC.Transmit] calls fail until the interface is brought back up.
func (n *NIC) Down() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.up = false
}

// IsUp reports the interface's link state.
func (n *NIC) IsUp() bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.up
}

// SetIP assigns ip/mask to the interface.
func (n *NIC) SetIP(ip addr.IPv4, mask addr.SubnetMask) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.ip, n.mask, n.hasIP = ip, mask, true
}

// ClearIP removes any assigned IP/mask/gateway.
func (n *NIC) ClearIP() {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.ip, n.mask, n.hasIP = 0, addr.SubnetMask{}, false
	n.gateway, n.hasGateway = 0, false
}

// IP returns the assigned IP address and mask, if any.
func (n *NIC) IP() (ip addr.IPv4, mask addr.SubnetMask, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.ip, n.mask, n.hasIP
}

// SetGateway sets the default gateway used by the owning host/router for
// off-subnet traffic.
func (n *NIC) SetGateway(ip addr.IPv4) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.gateway, n.hasGateway = ip, true
}

// Gateway returns the configured gateway, if any.
func (n *NIC) Gateway() (ip addr.IPv4, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.gateway, n.hasGateway
}

// SetPromiscuous toggles promiscuous mode.
func (n *NIC) SetPromiscuous(b bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.promiscuous = b
}

// SetMTU sets the maximum transmission unit.  It fails with
// [ErrMTUOutOfRange] outside [MinMTU, MaxMTU].
func (n *NIC) SetMTU(mtu int) (err error) {
	if mtu < MinMTU || mtu > MaxMTU {
		return fmt.Errorf("mtu %d: %w", mtu, ErrMTUOutOfRange)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.mtu = mtu

	return nil
}

// MTU returns the configured MTU.
func (n *NIC) MTU() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.mtu
}

// SetOnTransmit installs the link-layer transmit callback.  Passing nil
// unwires it.
func (n *NIC) SetOnTransmit(f TransmitFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.onTransmit = f
}

// SetOnReceive installs the device-level receive callback.
func (n *NIC) SetOnReceive(f ReceiveFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.onReceive = f
}

// Counters returns a snapshot of the interface's traffic counters.
func (n *NIC) Counters() Counters {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.counters
}

// Transmit encodes and sends f.  It fails with [ErrInterfaceDown] when the
// link is down.  On success it increments the tx counters and invokes the
// installed transmit callback, which synchronously drives the peer's
// [NIC.Receive] (spec.md §5).
func (n *NIC) Transmit(f wire.EthernetFrame) (err error) {
	n.mu.Lock()

	if !n.up {
		n.mu.Unlock()

		return ErrInterfaceDown
	}

	cb := n.onTransmit
	n.mu.Unlock()

	data, err := f.Encode()
	if err != nil {
		return fmt.Errorf("transmitting on %s: %w", n.name, err)
	}

	n.mu.Lock()
	n.counters.TxFrames++
	n.counters.TxBytes += uint64(len(data))
	n.mu.Unlock()

	if cb != nil {
		cb(data)
	}

	return nil
}

// Receive handles an inbound frame delivered by the link layer.  It is a
// no-op when the interface is down.  Malformed frames are silently dropped
// (spec.md §7 Transient errors).  A well-formed frame is delivered to the
// upper layer iff its destination MAC is this NIC's address, the broadcast
// address, or promiscuous mode is set; multicast is never delivered unless
// promiscuous (spec.md §4.3).
func (n *NIC) Receive(data []byte) {
	n.mu.Lock()
	if !n.up {
		n.mu.Unlock()

		return
	}

	promiscuous := n.promiscuous
	mac := n.mac
	cb := n.onReceive
	n.mu.Unlock()

	f, err := wire.DecodeEthernetFrame(data)
	if err != nil {
		n.mu.Lock()
		n.counters.DroppedFrames++
		n.mu.Unlock()

		n.logger.Debug("dropping malformed frame", slogutil.KeyError, err)

		return
	}

	deliver := f.Dst == mac || f.Dst.IsBroadcast() || promiscuous
	if !deliver {
		n.mu.Lock()
		n.counters.DroppedFrames++
		n.mu.Unlock()

		return
	}

	n.mu.Lock()
	n.counters.RxFrames++
	n.counters.RxBytes += uint64(len(data))
	n.mu.Unlock()

	if cb != nil {
		cb(f)
	}
}
