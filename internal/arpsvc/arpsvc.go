// Package arpsvc implements the per-interface ARP cache and request/reply
// builders (C6): address resolution with TTL-based aging and gratuitous ARP
// detection.
package arpsvc

import (
	"time"

	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/clock"
	"github.com/netlab-sim/vnet/internal/wire"
)

// DefaultTTL is the cache entry lifetime applied by [Cache.AddEntry] when
// called through [Cache.ProcessPacket], and the default passed to
// [Cache.AddEntry] by callers that don't otherwise have a TTL opinion.
const DefaultTTL = 300 * time.Second

type entry struct {
	mac     addr.MAC
	learned time.Time
	ttl     time.Duration
}

// Neighbor is a resolved (IP, MAC) pair, as reported by [Cache.Neighbors].
type Neighbor struct {
	IP  addr.IPv4
	MAC addr.MAC
}

// Cache is a per-interface ARP cache.
type Cache struct {
	clock   clock.Clock
	entries map[addr.IPv4]entry
}

// NewCache creates an empty cache.  A nil clk uses [clock.System].
func NewCache(clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.System
	}

	return &Cache{
		clock:   clk,
		entries: make(map[addr.IPv4]entry),
	}
}

// AddEntry records or refreshes ip → mac with the given ttl.  A zero ttl
// uses [DefaultTTL].
func (c *Cache) AddEntry(ip addr.IPv4, mac addr.MAC, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c.entries[ip] = entry{mac: mac, learned: c.clock.Now(), ttl: ttl}
}

// Resolve returns the MAC cached for ip, lazily expiring the entry first if
// its TTL has elapsed.
func (c *Cache) Resolve(ip addr.IPv4) (mac addr.MAC, ok bool) {
	e, found := c.entries[ip]
	if !found {
		return addr.MAC{}, false
	}

	if c.clock.Now().Sub(e.learned) >= e.ttl {
		delete(c.entries, ip)

		return addr.MAC{}, false
	}

	return e.mac, true
}

// ProcessPacket feeds an observed ARP packet into the cache: the sender's
// (IP, MAC) is always learned with [DefaultTTL], whether p is a request or
// a reply.
func (c *Cache) ProcessPacket(p wire.ARPPacket) {
	c.AddEntry(p.SenderIP, p.SenderMAC, DefaultTTL)
}

// Neighbors returns a snapshot of every non-expired cache entry.
func (c *Cache) Neighbors() []Neighbor {
	now := c.clock.Now()

	var ns []Neighbor
	for ip, e := range c.entries {
		if now.Sub(e.learned) >= e.ttl {
			continue
		}

		ns = append(ns, Neighbor{IP: ip, MAC: e.mac})
	}

	return ns
}

// Remove deletes any cached entry for ip.
func (c *Cache) Remove(ip addr.IPv4) {
	delete(c.entries, ip)
}

// Clear removes every cached entry.
func (c *Cache) Clear() {
	clear(c.entries)
}

// CreateRequest builds an ARP request from senderIP/senderMAC asking for
// targetIP, with the target's MAC left as the all-zeros placeholder.
func CreateRequest(senderMAC addr.MAC, senderIP, targetIP addr.IPv4) wire.ARPPacket {
	return wire.NewARPRequest(senderMAC, senderIP, targetIP)
}

// CreateGratuitous builds a gratuitous ARP request announcing
// (senderMAC, senderIP) — sender and target IP are the same address.
func CreateGratuitous(senderMAC addr.MAC, senderIP addr.IPv4) wire.ARPPacket {
	return wire.NewARPRequest(senderMAC, senderIP, senderIP)
}

// CreateReply builds a reply to req, mirroring its sender fields into the
// reply's target fields and filling in replyMAC as the responder's address.
// Use this when req.TargetIP is one of the local device's own interface
// addresses.
func CreateReply(req wire.ARPPacket, replyMAC addr.MAC) wire.ARPPacket {
	return wire.NewARPReply(req, replyMAC)
}
