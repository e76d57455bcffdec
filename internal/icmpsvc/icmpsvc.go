// Package icmpsvc implements per-device ICMP echo correlation (C7):
// matching Echo Reply packets to the Echo Request that triggered them,
// RTT statistics, and timeout sweeping.
package icmpsvc

import (
	"time"

	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/clock"
	"github.com/netlab-sim/vnet/internal/wire"
)

// DefaultTimeout is the pending-request lifetime used when
// [Service.CreateEchoRequest] is called with a zero timeout.
const DefaultTimeout = 5 * time.Second

// pendingKey correlates a reply to its request by destination and sequence
// number, per spec.md §4.7.
type pendingKey struct {
	dest addr.IPv4
	seq  uint16
}

type pending struct {
	identifier uint16
	data       []byte
	sentAt     time.Time
	timeout    time.Duration
}

// Stats reports running round-trip-time statistics for a destination.
type Stats struct {
	Sent     uint64
	Received uint64
	TimedOut uint64
	MinRTT   time.Duration
	MaxRTT   time.Duration
	AvgRTT   time.Duration
}

// ReplyFunc is invoked when an echo reply is successfully correlated.
type ReplyFunc func(dest addr.IPv4, seq uint16, rtt time.Duration)

// TimeoutFunc is invoked when a pending request ages out without a reply.
type TimeoutFunc func(dest addr.IPv4, seq uint16)

// Service tracks outstanding echo requests for one device.
type Service struct {
	clock clock.Clock

	identifiers map[addr.IPv4]uint16
	sequences   map[addr.IPv4]uint16
	pending     map[pendingKey]pending
	stats       map[addr.IPv4]*Stats

	onReply   ReplyFunc
	onTimeout TimeoutFunc
}

// NewService creates an echo-correlation service.  A nil clk uses
// [clock.System].
func NewService(clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System
	}

	return &Service{
		clock:       clk,
		identifiers: make(map[addr.IPv4]uint16),
		sequences:   make(map[addr.IPv4]uint16),
		pending:     make(map[pendingKey]pending),
		stats:       make(map[addr.IPv4]*Stats),
	}
}

// SetOnReply installs the reply callback.
func (s *Service) SetOnReply(f ReplyFunc) { s.onReply = f }

// SetOnTimeout installs the timeout callback.
func (s *Service) SetOnTimeout(f TimeoutFunc) { s.onTimeout = f }

// CreateEchoRequest allocates (or reuses) an identifier for dest, advances
// its sequence counter, records the request as pending, and returns the
// wire packet to transmit.  A zero timeout uses [DefaultTimeout].
func (s *Service) CreateEchoRequest(dest addr.IPv4, data []byte, timeout time.Duration) wire.ICMPPacket {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	id, ok := s.identifiers[dest]
	if !ok {
		id = uint16(len(s.identifiers) + 1)
		s.identifiers[dest] = id
	}

	seq := s.sequences[dest] + 1
	s.sequences[dest] = seq

	s.pending[pendingKey{dest: dest, seq: seq}] = pending{
		identifier: id,
		data:       data,
		sentAt:     s.clock.Now(),
		timeout:    timeout,
	}

	st := s.statsFor(dest)
	st.Sent++

	return wire.NewEchoRequest(id, seq, data)
}

// HandleEchoReply matches reply against a pending request sent to src by
// (src, reply.Sequence), verifying the identifier.  On a match it clears the
// pending entry, updates RTT statistics, and fires the reply callback.  A
// reply with no matching pending entry, or a mismatched identifier, is
// ignored.
func (s *Service) HandleEchoReply(src addr.IPv4, reply wire.ICMPPacket) {
	key := pendingKey{dest: src, seq: reply.Sequence}

	p, ok := s.pending[key]
	if !ok || p.identifier != reply.Identifier {
		return
	}

	delete(s.pending, key)

	now := s.clock.Now()
	rtt := now.Sub(p.sentAt)

	st := s.statsFor(src)
	st.Received++
	if st.Received == 1 || rtt < st.MinRTT {
		st.MinRTT = rtt
	}
	if rtt > st.MaxRTT {
		st.MaxRTT = rtt
	}
	st.AvgRTT = runningAverage(st.AvgRTT, st.Received, rtt)

	if s.onReply != nil {
		s.onReply(src, reply.Sequence, rtt)
	}
}

// runningAverage folds rtt into avg as the nth observed sample.
func runningAverage(avg time.Duration, n uint64, rtt time.Duration) time.Duration {
	if n <= 1 {
		return rtt
	}

	total := avg*time.Duration(n-1) + rtt

	return total / time.Duration(n)
}

// SweepTimeouts removes every pending request whose elapsed time has
// reached its timeout as of now, incrementing the timeout statistic and
// firing the timeout callback for each.
func (s *Service) SweepTimeouts(now time.Time) {
	for key, p := range s.pending {
		if now.Sub(p.sentAt) < p.timeout {
			continue
		}

		delete(s.pending, key)

		st := s.statsFor(key.dest)
		st.TimedOut++

		if s.onTimeout != nil {
			s.onTimeout(key.dest, key.seq)
		}
	}
}

// Stats returns a snapshot of dest's running statistics.
func (s *Service) Stats(dest addr.IPv4) Stats {
	if st, ok := s.stats[dest]; ok {
		return *st
	}

	return Stats{}
}

func (s *Service) statsFor(dest addr.IPv4) *Stats {
	st, ok := s.stats[dest]
	if !ok {
		st = &Stats{}
		s.stats[dest] = st
	}

	return st
}
