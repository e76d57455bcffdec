package icmpsvc_test

import (
	"testing"
	"time"

	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/icmpsvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestService_requestReplyRoundTrip(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	svc := icmpsvc.NewService(clk)

	dest := addr.MustParseIPv4("192.168.1.20")

	var gotRTT time.Duration
	var replied bool
	svc.SetOnReply(func(d addr.IPv4, seq uint16, rtt time.Duration) {
		replied = true
		gotRTT = rtt
	})

	req := svc.CreateEchoRequest(dest, []byte("ping"), 0)

	clk.now = clk.now.Add(20 * time.Millisecond)

	reply := req
	reply.Type = 0 // echo reply

	svc.HandleEchoReply(dest, reply)

	require.True(t, replied)
	assert.Equal(t, 20*time.Millisecond, gotRTT)

	st := svc.Stats(dest)
	assert.Equal(t, uint64(1), st.Sent)
	assert.Equal(t, uint64(1), st.Received)
	assert.Equal(t, 20*time.Millisecond, st.MinRTT)
	assert.Equal(t, 20*time.Millisecond, st.MaxRTT)
	assert.Equal(t, 20*time.Millisecond, st.AvgRTT)
}

func TestService_mismatchedIdentifierIgnored(t *testing.T) {
	t.Parallel()

	svc := icmpsvc.NewService(nil)
	dest := addr.MustParseIPv4("192.168.1.20")

	req := svc.CreateEchoRequest(dest, nil, 0)
	req.Identifier++ // corrupt

	var replied bool
	svc.SetOnReply(func(addr.IPv4, uint16, time.Duration) { replied = true })
	svc.HandleEchoReply(dest, req)

	assert.False(t, replied)
}

func TestService_sweepTimeouts(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	svc := icmpsvc.NewService(clk)
	dest := addr.MustParseIPv4("192.168.1.20")

	var timedOut bool
	svc.SetOnTimeout(func(d addr.IPv4, seq uint16) { timedOut = true })

	svc.CreateEchoRequest(dest, nil, time.Second)

	svc.SweepTimeouts(clk.now.Add(2 * time.Second))

	assert.True(t, timedOut)
	assert.Equal(t, uint64(1), svc.Stats(dest).TimedOut)
}

func TestService_runningAverage(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	svc := icmpsvc.NewService(clk)
	dest := addr.MustParseIPv4("192.168.1.20")

	for _, delay := range []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond} {
		req := svc.CreateEchoRequest(dest, nil, 0)
		clk.now = clk.now.Add(delay)
		reply := req
		svc.HandleEchoReply(dest, reply)
	}

	st := svc.Stats(dest)
	assert.Equal(t, uint64(3), st.Received)
	assert.Equal(t, 10*time.Millisecond, st.MinRTT)
	assert.Equal(t, 30*time.Millisecond, st.MaxRTT)
	assert.Equal(t, 20*time.Millisecond, st.AvgRTT)
}
