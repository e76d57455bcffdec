// Package link implements the bidirectional wire between two device
// interfaces (C11): installing transmit callbacks so that a frame sent by
// one NIC is delivered synchronously to its peer, gated by link activity.
package link

import "github.com/netlab-sim/vnet/internal/nic"

// Endpoint identifies one side of a link: a device id and an interface
// name.  The device id is opaque to this package; it exists purely for
// introspection (e.g. a terminal's `show interfaces` listing).
type Endpoint struct {
	DeviceID string
	IfName   string
}

// LinkStatistics reports how many frames a [Link] has carried in each
// direction.
type LinkStatistics struct {
	// FramesAOut is the number of frames delivered from A to B.
	FramesAOut uint64
	// FramesBOut is the number of frames delivered from B to A.
	FramesBOut uint64
}

// Link is a bidirectional wire between two NICs.  While active, a frame
// transmitted by either NIC is delivered to the other's [nic.NIC.Receive].
// While inactive ("cable cut"), neither side delivers, though transmission
// itself still succeeds at the source if its own interface is up.
type Link struct {
	a, b   Endpoint
	nicA   *nic.NIC
	nicB   *nic.NIC
	active bool
	wired  bool
	stats  LinkStatistics
}

// New creates a link between two (endpoint, NIC) pairs.  It does not wire
// the NICs; call [Link.WireUp] to install the transmit callbacks.
func New(a Endpoint, nicA *nic.NIC, b Endpoint, nicB *nic.NIC) *Link {
	return &Link{a: a, b: b, nicA: nicA, nicB: nicB}
}

// A returns the link's first endpoint.
func (l *Link) A() Endpoint { return l.a }

// B returns the link's second endpoint.
func (l *Link) B() Endpoint { return l.b }

// IsActive reports whether the link currently carries traffic.
func (l *Link) IsActive() bool { return l.active }

// IsWired reports whether [Link.WireUp] has installed callbacks.
func (l *Link) IsWired() bool { return l.wired }

// WireUp installs a transmit callback on each NIC that delivers to the
// other's [nic.NIC.Receive], gated on [Link.IsActive], and activates the
// link.
func (l *Link) WireUp() {
	l.active = true
	l.wired = true

	l.nicA.SetOnTransmit(func(data []byte) {
		if l.active {
			l.stats.FramesAOut++
			l.nicB.Receive(data)
		}
	})
	l.nicB.SetOnTransmit(func(data []byte) {
		if l.active {
			l.stats.FramesBOut++
			l.nicA.Receive(data)
		}
	})
}

// Statistics returns a snapshot of the link's per-direction frame counters.
func (l *Link) Statistics() LinkStatistics { return l.stats }

// Unwire detaches the transmit callbacks from both NICs and deactivates the
// link.
func (l *Link) Unwire() {
	l.nicA.SetOnTransmit(nil)
	l.nicB.SetOnTransmit(nil)
	l.active = false
	l.wired = false
}

// Activate reconnects an inactive link ("cable plugged back in").
func (l *Link) Activate() { l.active = true }

// Deactivate cuts an active link without detaching its callbacks, so a
// later [Link.Activate] resumes delivery without re-wiring.
func (l *Link) Deactivate() { l.active = false }
