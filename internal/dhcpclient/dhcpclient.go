// Package dhcpclient implements the per-device DHCPv4 client state machine
// (C10): INIT → SELECTING → REQUESTING → BOUND → RENEWING/REBINDING.
package dhcpclient

import (
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/clock"
	"github.com/netlab-sim/vnet/internal/wire"
)

// State is one of the client's state machine states.
type State int

// States, per spec.md §4.10.
const (
	StateInit State = iota
	StateSelecting
	StateRequesting
	StateBound
	StateRenewing
	StateRebinding
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSelecting:
		return "SELECTING"
	case StateRequesting:
		return "REQUESTING"
	case StateBound:
		return "BOUND"
	case StateRenewing:
		return "RENEWING"
	case StateRebinding:
		return "REBINDING"
	default:
		return "UNKNOWN"
	}
}

// DefaultDiscoverTimeout is the wait before [Client.IsDiscoverTimeout]
// reports true.
const DefaultDiscoverTimeout = 10 * time.Second

// ErrNotBound is returned by [Client.Release] when the client has no active
// lease.
const ErrNotBound errors.Error = "client has no active lease"

// ErrNak is recorded by [Client.LastError] after a DHCPNAK, per spec.md §6's
// "No working leases" terminal rendering.
const ErrNak errors.Error = "DHCPNAK received"

// ErrIncompleteAck is recorded by [Client.LastError] when a DHCPACK is
// missing a required lease field and is therefore ignored.
const ErrIncompleteAck errors.Error = "DHCPACK missing required lease fields"

// ParamRequestList is the option-55 payload every DISCOVER/REQUEST carries.
var ParamRequestList = []byte{
	wire.DHCPOptSubnetMask,
	wire.DHCPOptRouter,
	wire.DHCPOptDNS,
	wire.DHCPOptDomainName,
	28, // broadcast address, recognized but unused by this simulator
	wire.DHCPOptLeaseTime,
}

// LeaseInfo is the client's view of its currently bound lease.
type LeaseInfo struct {
	IP         addr.IPv4
	Mask       addr.SubnetMask
	Gateway    addr.IPv4
	HasGateway bool
	DNS        []addr.IPv4
	ServerIP   addr.IPv4
	LeaseTime  time.Duration
	T1         time.Duration
	T2         time.Duration
	ObtainedAt time.Time
	DomainName string
}

// Client is a per-device DHCPv4 client state machine.
type Client struct {
	clock    clock.Clock
	mac      addr.MAC
	hostname string

	state           State
	xid             uint32
	discoverStart   time.Time
	selectedOffer   wire.DHCPPacket
	lease           LeaseInfo
	priorLeaseIP    addr.IPv4
	hasPriorLeaseIP bool
	discoverTimeout time.Duration
	retries         int
	lastErr         error
}

// New creates a client for the given hardware address.  A nil clk uses
// [clock.System].
func New(mac addr.MAC, hostname string, clk clock.Clock) *Client {
	if clk == nil {
		clk = clock.System
	}

	return &Client{
		clock:           clk,
		mac:             mac,
		hostname:        hostname,
		discoverTimeout: DefaultDiscoverTimeout,
	}
}

// State returns the client's current state.
func (c *Client) State() State { return c.state }

// LastError returns the most recent protocol-level rejection recorded by
// [Client.HandleNak] or a malformed [Client.HandleAck], or nil if none has
// occurred since the last successful bind.
func (c *Client) LastError() error { return c.lastErr }

// Lease returns the client's current lease info and whether it is bound.
func (c *Client) Lease() (LeaseInfo, bool) {
	bound := c.state == StateBound || c.state == StateRenewing || c.state == StateRebinding

	return c.lease, bound
}

// StartDiscover transitions INIT → SELECTING, allocating a new transaction
// id and building a DISCOVER packet.
func (c *Client) StartDiscover() wire.DHCPPacket {
	c.state = StateSelecting
	c.xid = c.nextXid()
	c.discoverStart = c.clock.Now()

	pkt := wire.DHCPPacket{
		Op:     wire.DHCPOpRequest,
		Xid:    c.xid,
		Flags:  wire.BroadcastFlag,
		ChAddr: c.mac,
	}
	pkt = pkt.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPDiscover)})
	pkt = pkt.WithOption(wire.DHCPOptParamReqList, ParamRequestList)

	if c.hasPriorLeaseIP {
		pkt = pkt.WithOption(wire.DHCPOptRequestedIP, wire.PutIPv4(c.priorLeaseIP))
	}
	if c.hostname != "" {
		pkt = pkt.WithOption(wire.DHCPOptHostname, []byte(c.hostname))
	}

	return pkt
}

// IsDiscoverTimeout reports whether the client, while SELECTING, has waited
// at least the discover timeout (default [DefaultDiscoverTimeout]) without
// a matching offer.
func (c *Client) IsDiscoverTimeout(now time.Time) bool {
	return c.state == StateSelecting && now.Sub(c.discoverStart) >= c.discoverTimeout
}

// RetryDiscover transitions SELECTING → INIT after a discover timeout,
// incrementing the retry counter tracked for terminal reporting.
func (c *Client) RetryDiscover() {
	if c.state != StateSelecting {
		return
	}

	c.retries++
	c.state = StateInit
}

// Retries returns the number of discover retries since the last successful
// bind.
func (c *Client) Retries() int { return c.retries }

// HandleOffer transitions SELECTING → REQUESTING on the first OFFER whose
// xid matches the outstanding discover.  Subsequent offers for the same
// discover are ignored.
func (c *Client) HandleOffer(pkt wire.DHCPPacket) bool {
	if c.state != StateSelecting || pkt.Xid != c.xid {
		return false
	}

	msgType, ok := pkt.MessageType()
	if !ok || msgType != wire.DHCPOffer {
		return false
	}

	c.selectedOffer = pkt
	c.state = StateRequesting

	return true
}

// BuildRequest returns the REQUEST packet for the currently selected offer
// (REQUESTING) or for the bound lease (RENEWING/REBINDING), per spec.md
// §4.10's broadcast/unicast rules.
func (c *Client) BuildRequest() wire.DHCPPacket {
	pkt := wire.DHCPPacket{
		Op:     wire.DHCPOpRequest,
		Xid:    c.xid,
		ChAddr: c.mac,
	}
	pkt = pkt.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPRequest)})
	pkt = pkt.WithOption(wire.DHCPOptParamReqList, ParamRequestList)

	switch c.state {
	case StateRequesting:
		pkt.Flags = wire.BroadcastFlag
		pkt = pkt.WithOption(wire.DHCPOptRequestedIP, wire.PutIPv4(c.selectedOffer.Yiaddr))
		if serverID, ok := c.selectedOffer.OptionIPv4(wire.DHCPOptServerID); ok {
			pkt = pkt.WithOption(wire.DHCPOptServerID, wire.PutIPv4(serverID))
		}
	case StateRenewing:
		pkt.Ciaddr = c.lease.IP
		pkt = pkt.WithOption(wire.DHCPOptServerID, wire.PutIPv4(c.lease.ServerIP))
	case StateRebinding:
		pkt.Flags = wire.BroadcastFlag
		pkt.Ciaddr = c.lease.IP
	}

	return pkt
}

// HandleAck transitions REQUESTING or RENEWING/REBINDING → BOUND when ack's
// required fields (yiaddr, subnet mask, server identifier-or-siaddr) are
// present, populating [LeaseInfo].  It returns false (leaving state
// unchanged) if a required field is missing.
func (c *Client) HandleAck(ack wire.DHCPPacket) bool {
	if c.state != StateRequesting && c.state != StateRenewing && c.state != StateRebinding {
		return false
	}

	mask, ok := ack.OptionIPv4(wire.DHCPOptSubnetMask)
	if !ok {
		c.lastErr = ErrIncompleteAck

		return false
	}

	serverID, ok := ack.OptionIPv4(wire.DHCPOptServerID)
	if !ok {
		serverID, ok = ack.Siaddr, ack.Siaddr != 0
	}
	if !ok {
		c.lastErr = ErrIncompleteAck

		return false
	}

	if ack.Yiaddr == 0 {
		c.lastErr = ErrIncompleteAck

		return false
	}

	leaseSecs, _ := ack.OptionDuration(wire.DHCPOptLeaseTime)

	gateway, hasGateway := ack.OptionIPv4(wire.DHCPOptRouter)
	domainName, _ := ack.OptionString(wire.DHCPOptDomainName)

	c.lease = LeaseInfo{
		IP:         ack.Yiaddr,
		Mask:       maskFromIPv4(mask),
		Gateway:    gateway,
		HasGateway: hasGateway,
		DNS:        ack.OptionIPv4List(wire.DHCPOptDNS),
		ServerIP:   serverID,
		LeaseTime:  leaseSecs,
		T1:         leaseSecs / 2,
		T2:         leaseSecs * 7 / 8,
		ObtainedAt: c.clock.Now(),
		DomainName: domainName,
	}

	c.priorLeaseIP = ack.Yiaddr
	c.hasPriorLeaseIP = true
	c.retries = 0
	c.lastErr = nil
	c.state = StateBound

	return true
}

// HandleNak records [ErrNak] and transitions REQUESTING → INIT.
func (c *Client) HandleNak(wire.DHCPPacket) {
	c.lastErr = ErrNak

	if c.state == StateRequesting {
		c.state = StateInit
	}
}

// Tick drives the BOUND/RENEWING/REBINDING timer transitions for the
// current time.  Callers should invoke it once per simulated tick while
// bound.
func (c *Client) Tick(now time.Time) {
	switch c.state {
	case StateBound:
		if now.Sub(c.lease.ObtainedAt) >= c.lease.T1 {
			c.state = StateRenewing
		}
	case StateRenewing:
		if now.Sub(c.lease.ObtainedAt) >= c.lease.T2 {
			c.state = StateRebinding
		}
	}
}

// StartRenewal forces BOUND → RENEWING immediately, regardless of T1.
func (c *Client) StartRenewal() {
	if c.state == StateBound {
		c.state = StateRenewing
	}
}

// Release builds a RELEASE packet and transitions to INIT.  It fails with
// [ErrNotBound] if the client has no active lease.
func (c *Client) Release() (wire.DHCPPacket, error) {
	if _, bound := c.Lease(); !bound {
		return wire.DHCPPacket{}, ErrNotBound
	}

	pkt := wire.DHCPPacket{
		Op:     wire.DHCPOpRequest,
		Xid:    c.nextXid(),
		ChAddr: c.mac,
		Ciaddr: c.lease.IP,
	}
	pkt = pkt.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPRelease)})
	pkt = pkt.WithOption(wire.DHCPOptServerID, wire.PutIPv4(c.lease.ServerIP))

	c.state = StateInit
	c.lease = LeaseInfo{}

	return pkt, nil
}

func (c *Client) nextXid() uint32 {
	c.xid++

	return c.xid
}

// maskFromIPv4 reinterprets a dotted-decimal option payload as a
// [addr.SubnetMask]; malformed masks collapse to /0, matching the
// permissive decode posture the rest of this package takes toward
// server-supplied option data.
func maskFromIPv4(ip addr.IPv4) addr.SubnetMask {
	m, err := addr.NewSubnetMask(ip.ToU32())
	if err != nil {
		return addr.SubnetMask{}
	}

	return m
}
