// Package routing implements the router's routing table and forwarding
// engine (C8): longest-prefix-match route selection, TTL decrement and
// ICMP Time Exceeded generation, and ARP-mediated next-hop resolution.
package routing

import (
	"math/bits"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/netlab-sim/vnet/internal/addr"
)

// ErrUnknownInterface is returned by [Table.AddRoute] when iface has not
// been declared via [Table.SetConnected].
const ErrUnknownInterface errors.Error = "unknown interface"

// DefaultRouteMetric is the metric [Table.SetDefaultRoute] assigns its
// route, per spec.md §4.8.
const DefaultRouteMetric = 10

// StaticRouteMetric is the default metric for a route added without an
// explicit one.
const StaticRouteMetric = 1

// Route is one entry of a [Table].
type Route struct {
	Network    addr.IPv4
	Mask       addr.SubnetMask
	NextHop    addr.IPv4
	HasNextHop bool
	Iface      string
	Metric     int
	Connected  bool

	order int
}

// Table is a router's routing table: longest-prefix match, ties broken by
// lowest metric then by insertion order.
type Table struct {
	routes    []Route
	ifaces    map[string]struct{}
	nextOrder int
}

// NewTable creates an empty routing table.
func NewTable() *Table {
	return &Table{ifaces: make(map[string]struct{})}
}

// DeclareInterface registers iface as a valid route egress, required before
// [Table.AddRoute] will accept a route naming it.
func (t *Table) DeclareInterface(iface string) {
	t.ifaces[iface] = struct{}{}
}

// SetConnected adds (or replaces) the directly-connected route for iface:
// network = ip & mask, no next-hop, metric 0.  Any prior connected route for
// the same interface is replaced in place, preserving its original
// insertion order.
func (t *Table) SetConnected(iface string, ip addr.IPv4, mask addr.SubnetMask) {
	t.DeclareInterface(iface)

	network := ip.NetworkOf(mask)

	for i := range t.routes {
		if t.routes[i].Connected && t.routes[i].Iface == iface {
			t.routes[i].Network = network
			t.routes[i].Mask = mask

			return
		}
	}

	t.routes = append(t.routes, Route{
		Network:   network,
		Mask:      mask,
		Iface:     iface,
		Metric:    0,
		Connected: true,
		order:     t.nextOrder,
	})
	t.nextOrder++
}

// AddRoute appends a route to network/mask via iface, with an optional
// nextHop (hasNextHop=false for an on-link/connected-style static route).
// A zero metric uses [StaticRouteMetric].  Fails with [ErrUnknownInterface]
// if iface was never declared via [Table.SetConnected] or
// [Table.DeclareInterface].
func (t *Table) AddRoute(network addr.IPv4, mask addr.SubnetMask, nextHop addr.IPv4, hasNextHop bool, iface string, metric int) error {
	if _, ok := t.ifaces[iface]; !ok {
		return ErrUnknownInterface
	}

	if metric <= 0 {
		metric = StaticRouteMetric
	}

	t.routes = append(t.routes, Route{
		Network:    network,
		Mask:       mask,
		NextHop:    nextHop,
		HasNextHop: hasNextHop,
		Iface:      iface,
		Metric:     metric,
		order:      t.nextOrder,
	})
	t.nextOrder++

	return nil
}

// SetDefaultRoute is AddRoute(0.0.0.0, /0, nextHop, iface, [DefaultRouteMetric]).
func (t *Table) SetDefaultRoute(nextHop addr.IPv4, iface string) error {
	return t.AddRoute(0, addr.MustCIDR(0), nextHop, true, iface, DefaultRouteMetric)
}

// Lookup selects the route matching destIP with the longest prefix,
// breaking ties by lowest metric and then by insertion order.
func (t *Table) Lookup(destIP addr.IPv4) (Route, bool) {
	var best *Route
	var bestPrefix int

	for i := range t.routes {
		r := &t.routes[i]
		if !destIP.InSubnet(r.Network, r.Mask) {
			continue
		}

		prefix := bits.OnesCount32(r.Mask.ToU32())

		if best == nil {
			best, bestPrefix = r, prefix

			continue
		}

		switch {
		case prefix > bestPrefix:
			best, bestPrefix = r, prefix
		case prefix == bestPrefix && r.Metric < best.Metric:
			best, bestPrefix = r, prefix
		case prefix == bestPrefix && r.Metric == best.Metric && r.order < best.order:
			best, bestPrefix = r, prefix
		}
	}

	if best == nil {
		return Route{}, false
	}

	return *best, true
}

// RemoveRoute removes every route to network/mask via iface, connected or
// static alike.  It reports whether any route was removed.
func (t *Table) RemoveRoute(network addr.IPv4, mask addr.SubnetMask, iface string) bool {
	kept := t.routes[:0]
	removed := false

	for _, r := range t.routes {
		if r.Network == network && r.Mask == mask && r.Iface == iface {
			removed = true

			continue
		}

		kept = append(kept, r)
	}

	t.routes = kept

	return removed
}

// Routes returns a snapshot of every route, in insertion order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)

	return out
}
