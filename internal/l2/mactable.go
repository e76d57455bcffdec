// Package l2 implements the switching layer: the per-switch MAC learning
// table (C4) and the VLAN-aware frame forwarder built on top of it (C5).
package l2

import (
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/bluele/gcache"
	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/clock"
)

// DefaultAging is the MAC table entry lifetime applied when a [MACTable] is
// constructed with a zero aging duration.
const DefaultAging = 300 * time.Second

// DefaultCapacity is the entry limit applied when a [MACTable] is
// constructed with a zero capacity, per spec.md §3.
const DefaultCapacity = 8192

// ErrReservedAddress is returned by [MACTable.Learn] for broadcast or
// multicast source addresses, which are never learned.
const ErrReservedAddress errors.Error = "address is broadcast or multicast"

// Statistics reports MAC table activity counters.
type Statistics struct {
	Size      int
	Learnings uint64
	Moves     uint64
	Lookups   uint64
	Hits      uint64
	Misses    uint64
}

type macEntry struct {
	port      int
	learnedAt time.Time
}

// MACTable is a per-switch MAC address learning table with aging and
// capacity-bounded eviction.  Capacity enforcement is delegated to a
// [gcache.Cache] LRU store; aging is checked lazily against clock, since
// gcache's own expiration tracks the real wall clock and this simulator
// must age entries against a possibly-fake injected one (see DESIGN.md).
type MACTable struct {
	clock    clock.Clock
	aging    time.Duration
	capacity int

	cache gcache.Cache

	learnings uint64
	moves     uint64
	lookups   uint64
	hits      uint64
	misses    uint64
}

// NewMACTable creates a MAC table with the given aging window and capacity.
// A zero aging uses [DefaultAging]; a zero capacity uses [DefaultCapacity].
// A nil clk uses [clock.System].
func NewMACTable(aging time.Duration, capacity int, clk clock.Clock) *MACTable {
	if aging <= 0 {
		aging = DefaultAging
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if clk == nil {
		clk = clock.System
	}

	return &MACTable{
		clock:    clk,
		aging:    aging,
		capacity: capacity,
		cache:    gcache.New(capacity).LRU().Build(),
	}
}

// Learn records that mac was seen on port.  Broadcast and multicast source
// addresses are rejected with [ErrReservedAddress].  Re-learning a known MAC
// on a different port counts as a move; re-learning it on the same port
// merely refreshes its age.  When the table is full and mac is not already
// known, the backing LRU store evicts its least-recently-touched entry to
// make room.
func (t *MACTable) Learn(mac addr.MAC, port int) error {
	if mac.IsBroadcast() || mac.IsMulticast() {
		return ErrReservedAddress
	}

	now := t.clock.Now()

	if v, err := t.cache.Get(mac); err == nil {
		if existing, ok := v.(macEntry); ok && existing.port != port {
			t.moves++
		}
	}

	_ = t.cache.Set(mac, macEntry{port: port, learnedAt: now})
	t.learnings++

	return nil
}

// Lookup returns the port mac was last learned on, iff that entry has not
// aged out.  Aging is checked lazily: an expired entry is removed and
// reported as a miss.
func (t *MACTable) Lookup(mac addr.MAC) (port int, ok bool) {
	t.lookups++

	v, err := t.cache.Get(mac)
	if err != nil {
		t.misses++

		return 0, false
	}

	e, ok := v.(macEntry)
	if !ok {
		t.misses++

		return 0, false
	}

	if t.clock.Now().Sub(e.learnedAt) >= t.aging {
		t.cache.Remove(mac)
		t.misses++

		return 0, false
	}

	t.hits++

	return e.port, true
}

// RemovePort removes every entry learned on port, e.g. when the port is
// disabled or unwired.
func (t *MACTable) RemovePort(port int) {
	for k, v := range t.cache.GetALL(false) {
		e, ok := v.(macEntry)
		if ok && e.port == port {
			t.cache.Remove(k)
		}
	}
}

// Clear removes all entries, resetting size but not the cumulative counters.
func (t *MACTable) Clear() {
	t.cache.Purge()
}

// Statistics returns a snapshot of the table's activity counters.
func (t *MACTable) Statistics() Statistics {
	return Statistics{
		Size:      t.cache.Len(false),
		Learnings: t.learnings,
		Moves:     t.moves,
		Lookups:   t.lookups,
		Hits:      t.hits,
		Misses:    t.misses,
	}
}
