// Package dhcpserver implements the per-interface DHCPv4 server (C9): pool
// allocation, reservations, declines, pending-offer tracking, and leases
// with expiry.
package dhcpserver

import (
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/clock"
	"github.com/netlab-sim/vnet/internal/wire"
)

// PendingOfferTTL is how long an offer remains reserved for a client before
// it is swept and the address becomes available again.
const PendingOfferTTL = 30 * time.Second

// DefaultParamOrder lists the options a fully populated OFFER/ACK carries,
// matching the param request list a well-behaved client sends.
var DefaultParamOrder = []byte{
	wire.DHCPOptSubnetMask,
	wire.DHCPOptRouter,
	wire.DHCPOptDNS,
	wire.DHCPOptLeaseTime,
	wire.DHCPOptRenewalT1,
	wire.DHCPOptRebindingT2,
	wire.DHCPOptServerID,
	wire.DHCPOptDomainName,
}

// Config is a DHCP server's immutable per-interface configuration.
type Config struct {
	ServerIP    addr.IPv4
	PoolStart   addr.IPv4
	PoolEnd     addr.IPv4
	SubnetMask  addr.SubnetMask
	Gateway     addr.IPv4
	DNSServers  []addr.IPv4
	LeaseTime   time.Duration
	DomainName  string
	Clock       clock.Clock
}

var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	return errors.Join(
		validate.Positive("leaseTime", c.LeaseTime),
		validate.Positive("pool size", int64(c.PoolEnd)-int64(c.PoolStart)+1),
	)
}

type lease struct {
	ip       addr.IPv4
	mac      addr.MAC
	expiry   time.Time
	hostname string
}

type pendingOffer struct {
	ip addr.IPv4
	at time.Time
}

// Statistics reports per-message-type counters plus lease totals.
type Statistics struct {
	Received     map[wire.DHCPMessageType]uint64
	Sent         map[wire.DHCPMessageType]uint64
	ActiveLeases int
	TotalIssued  uint64
}

// Server is a per-interface DHCPv4 server.
type Server struct {
	cfg   Config
	clock clock.Clock

	byMAC        map[addr.MAC]*lease
	byIP         map[addr.IPv4]*lease
	reservations map[addr.MAC]addr.IPv4
	pending      map[addr.MAC]pendingOffer
	declined     map[addr.IPv4]struct{}

	received map[wire.DHCPMessageType]uint64
	sent     map[wire.DHCPMessageType]uint64
	issued   uint64
}

// New creates a server from cfg.  A nil cfg.Clock uses [clock.System].
func New(cfg Config) *Server {
	if cfg.Clock == nil {
		cfg.Clock = clock.System
	}

	return &Server{
		cfg:          cfg,
		clock:        cfg.Clock,
		byMAC:        make(map[addr.MAC]*lease),
		byIP:         make(map[addr.IPv4]*lease),
		reservations: make(map[addr.MAC]addr.IPv4),
		pending:      make(map[addr.MAC]pendingOffer),
		declined:     make(map[addr.IPv4]struct{}),
		received:     make(map[wire.DHCPMessageType]uint64),
		sent:         make(map[wire.DHCPMessageType]uint64),
	}
}

// AddReservation reserves ip for mac; reserved addresses are always offered
// to their owner ahead of the general pool.
func (s *Server) AddReservation(mac addr.MAC, ip addr.IPv4) {
	s.reservations[mac] = ip
}

// Statistics returns a snapshot of the server's counters.
func (s *Server) Statistics() Statistics {
	received := make(map[wire.DHCPMessageType]uint64, len(s.received))
	for k, v := range s.received {
		received[k] = v
	}

	sent := make(map[wire.DHCPMessageType]uint64, len(s.sent))
	for k, v := range s.sent {
		sent[k] = v
	}

	return Statistics{
		Received:     received,
		Sent:         sent,
		ActiveLeases: len(s.byMAC),
		TotalIssued:  s.issued,
	}
}

// available reports whether ip may be offered: in-pool, not declined, not
// leased, and not another client's reservation or pending offer.
func (s *Server) available(ip addr.IPv4, forMAC addr.MAC) bool {
	if ip.ToU32() < s.cfg.PoolStart.ToU32() || ip.ToU32() > s.cfg.PoolEnd.ToU32() {
		return false
	}

	if _, declined := s.declined[ip]; declined {
		return false
	}

	if _, leased := s.byIP[ip]; leased {
		return false
	}

	for mac, reserved := range s.reservations {
		if mac != forMAC && reserved == ip {
			return false
		}
	}

	for mac, p := range s.pending {
		if mac != forMAC && p.ip == ip {
			return false
		}
	}

	return true
}

// lowestAvailable scans the pool in ascending order for the first address
// satisfying [Server.available].
func (s *Server) lowestAvailable(forMAC addr.MAC) (addr.IPv4, bool) {
	for u := s.cfg.PoolStart.ToU32(); u <= s.cfg.PoolEnd.ToU32(); u++ {
		ip := addr.FromU32(u)
		if s.available(ip, forMAC) {
			return ip, true
		}
	}

	return 0, false
}

// sweepPendingOffers removes offers older than [PendingOfferTTL].
func (s *Server) sweepPendingOffers() {
	now := s.clock.Now()

	for mac, p := range s.pending {
		if now.Sub(p.at) >= PendingOfferTTL {
			delete(s.pending, mac)
		}
	}
}

// SweepExpiredLeases drops leases whose expiry has passed as of now.
func (s *Server) SweepExpiredLeases(now time.Time) {
	for mac, l := range s.byMAC {
		if !l.expiry.After(now) {
			delete(s.byMAC, mac)
			delete(s.byIP, l.ip)
		}
	}
}

// HandleDiscover implements spec.md §4.9's handleDiscover.  It returns
// ok=false when the pool is exhausted and no offer can be made.
func (s *Server) HandleDiscover(pkt wire.DHCPPacket) (offer wire.DHCPPacket, ok bool) {
	s.received[wire.DHCPDiscover]++
	s.sweepPendingOffers()

	mac := pkt.ChAddr

	if p, exists := s.pending[mac]; exists {
		return s.buildOffer(pkt, p.ip), true
	}

	ip, found := s.pickOfferIP(pkt, mac)
	if !found {
		return wire.DHCPPacket{}, false
	}

	s.pending[mac] = pendingOffer{ip: ip, at: s.clock.Now()}

	return s.buildOffer(pkt, ip), true
}

func (s *Server) pickOfferIP(pkt wire.DHCPPacket, mac addr.MAC) (addr.IPv4, bool) {
	if reserved, ok := s.reservations[mac]; ok {
		return reserved, true
	}

	if existing, ok := s.byMAC[mac]; ok {
		return existing.ip, true
	}

	if requested, ok := pkt.OptionIPv4(wire.DHCPOptRequestedIP); ok && s.available(requested, mac) {
		return requested, true
	}

	return s.lowestAvailable(mac)
}

func (s *Server) buildOffer(req wire.DHCPPacket, yiaddr addr.IPv4) wire.DHCPPacket {
	resp := s.baseResponse(req, wire.DHCPOffer)
	resp.Yiaddr = yiaddr
	resp = s.withFullParams(resp)

	s.sent[wire.DHCPOffer]++

	return resp
}

// HandleRequest implements spec.md §4.9's handleRequest.
func (s *Server) HandleRequest(pkt wire.DHCPPacket) wire.DHCPPacket {
	s.received[wire.DHCPRequest]++

	if serverID, ok := pkt.OptionIPv4(wire.DHCPOptServerID); ok && serverID != s.cfg.ServerIP {
		return wire.DHCPPacket{}
	}

	mac := pkt.ChAddr
	requestedIP, _ := pkt.OptionIPv4(wire.DHCPOptRequestedIP)

	p, hasPending := s.pending[mac]
	existing, hasLease := s.byMAC[mac]

	switch {
	case hasPending && p.ip == requestedIP:
		return s.ack(pkt, mac, p.ip)
	case hasLease:
		return s.ack(pkt, mac, existing.ip)
	default:
		return s.nak(pkt)
	}
}

func (s *Server) ack(req wire.DHCPPacket, mac addr.MAC, ip addr.IPv4) wire.DHCPPacket {
	now := s.clock.Now()

	l, existed := s.byMAC[mac]
	if !existed {
		l = &lease{ip: ip, mac: mac}
		s.byMAC[mac] = l
		s.issued++
	}

	l.ip = ip
	l.expiry = now.Add(s.cfg.LeaseTime)
	s.byIP[ip] = l

	delete(s.pending, mac)

	resp := s.baseResponse(req, wire.DHCPAck)
	resp.Yiaddr = ip
	resp = s.withFullParams(resp)

	s.sent[wire.DHCPAck]++

	return resp
}

func (s *Server) nak(req wire.DHCPPacket) wire.DHCPPacket {
	resp := s.baseResponse(req, wire.DHCPNak)
	resp = resp.WithOption(wire.DHCPOptServerID, wire.PutIPv4(s.cfg.ServerIP))

	s.sent[wire.DHCPNak]++

	return resp
}

// HandleRelease implements spec.md §4.9's handleRelease: the lease is
// removed only if it matches the client's declared ciaddr.
func (s *Server) HandleRelease(pkt wire.DHCPPacket) {
	s.received[wire.DHCPRelease]++

	mac := pkt.ChAddr
	l, ok := s.byMAC[mac]
	if !ok || l.ip != pkt.Ciaddr {
		return
	}

	delete(s.byMAC, mac)
	delete(s.byIP, l.ip)
}

// HandleDecline implements spec.md §4.9's handleDecline.
func (s *Server) HandleDecline(pkt wire.DHCPPacket) {
	s.received[wire.DHCPDecline]++

	mac := pkt.ChAddr

	if requested, ok := pkt.OptionIPv4(wire.DHCPOptRequestedIP); ok {
		s.declined[requested] = struct{}{}
	}

	if l, ok := s.byMAC[mac]; ok {
		delete(s.byIP, l.ip)
		delete(s.byMAC, mac)
	}

	delete(s.pending, mac)
}

// HandleInform implements spec.md §4.9's handleInform: an ACK with current
// parameters but no address assignment.
func (s *Server) HandleInform(pkt wire.DHCPPacket) wire.DHCPPacket {
	s.received[wire.DHCPInform]++

	resp := s.baseResponse(pkt, wire.DHCPAck)
	resp = s.withFullParams(resp)

	s.sent[wire.DHCPAck]++

	return resp
}

func (s *Server) baseResponse(req wire.DHCPPacket, msgType wire.DHCPMessageType) wire.DHCPPacket {
	resp := wire.DHCPPacket{
		Op:     wire.DHCPOpReply,
		Xid:    req.Xid,
		Flags:  req.Flags,
		ChAddr: req.ChAddr,
		Siaddr: s.cfg.ServerIP,
	}

	return resp.WithOption(wire.DHCPOptMessageType, []byte{byte(msgType)})
}

func (s *Server) withFullParams(resp wire.DHCPPacket) wire.DHCPPacket {
	resp = resp.WithOption(wire.DHCPOptServerID, wire.PutIPv4(s.cfg.ServerIP))
	resp = resp.WithOption(wire.DHCPOptSubnetMask, wire.PutIPv4(addr.FromU32(s.cfg.SubnetMask.ToU32())))
	resp = resp.WithOption(wire.DHCPOptRouter, wire.PutIPv4(s.cfg.Gateway))

	if len(s.cfg.DNSServers) > 0 {
		resp = resp.WithOption(wire.DHCPOptDNS, wire.PutIPv4List(s.cfg.DNSServers))
	}

	leaseSecs := uint32(s.cfg.LeaseTime / time.Second)
	resp = resp.WithOption(wire.DHCPOptLeaseTime, wire.PutU32(leaseSecs))
	resp = resp.WithOption(wire.DHCPOptRenewalT1, wire.PutU32(leaseSecs/2))
	resp = resp.WithOption(wire.DHCPOptRebindingT2, wire.PutU32(leaseSecs*7/8))

	if s.cfg.DomainName != "" {
		resp = resp.WithOption(wire.DHCPOptDomainName, []byte(s.cfg.DomainName))
	}

	return resp
}
