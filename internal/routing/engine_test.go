package routing_test

import (
	"testing"

	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/arpsvc"
	"github.com/netlab-sim/vnet/internal/routing"
	"github.com/netlab-sim/vnet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*routing.Engine, *routing.Iface, *routing.Iface) {
	t.Helper()

	tbl := routing.NewTable()
	eng := routing.NewEngine(tbl)

	lan := &routing.Iface{
		Name: "eth0",
		MAC:  addr.MustParseMAC("02:00:00:00:00:01"),
		IP:   addr.MustParseIPv4("192.168.1.1"),
		Mask: addr.MustCIDR(24),
		ARP:  arpsvc.NewCache(nil),
	}
	wan := &routing.Iface{
		Name: "eth1",
		MAC:  addr.MustParseMAC("02:00:00:00:00:02"),
		IP:   addr.MustParseIPv4("203.0.113.1"),
		Mask: addr.MustCIDR(30),
		ARP:  arpsvc.NewCache(nil),
	}

	eng.AddInterface(lan)
	eng.AddInterface(wan)

	return eng, lan, wan
}

func encodeIPv4(t *testing.T, pkt wire.IPv4Packet) []byte {
	t.Helper()

	data, err := pkt.Encode()
	require.NoError(t, err)

	return data
}

func TestEngine_forwardsKnownRoute(t *testing.T) {
	t.Parallel()

	eng, lan, wan := newTestEngine(t)

	dst := addr.MustParseIPv4("8.8.8.8")
	require.NoError(t, eng.Table().SetDefaultRoute(addr.MustParseIPv4("203.0.113.2"), "eth1"))
	wan.ARP.AddEntry(addr.MustParseIPv4("203.0.113.2"), addr.MustParseMAC("02:00:00:00:00:FE"), 0)

	var gotIface string
	var gotFrame wire.EthernetFrame
	eng.SetOnTransmit(func(iface string, f wire.EthernetFrame) {
		gotIface = iface
		gotFrame = f
	})

	src := addr.MustParseIPv4("192.168.1.50")
	pkt, err := wire.NewIPv4Packet(src, dst, wire.IPProtocolICMP, []byte("hello world pad pad pad pad"))
	require.NoError(t, err)

	eng.HandleIPv4("eth0", encodeIPv4(t, pkt))

	assert.Equal(t, "eth1", gotIface)
	assert.Equal(t, addr.MustParseMAC("02:00:00:00:00:FE"), gotFrame.Dst)
	assert.Equal(t, wan.MAC, gotFrame.Src)
	assert.Equal(t, uint64(1), eng.Statistics().PacketsForwarded)

	decoded, err := wire.DecodeIPv4Packet(gotFrame.Payload[:pkt.TotalLen()])
	require.NoError(t, err)
	assert.Equal(t, uint8(63), decoded.TTL)
}

func TestEngine_noRouteDropped(t *testing.T) {
	t.Parallel()

	eng, _, _ := newTestEngine(t)

	pkt, err := wire.NewIPv4Packet(
		addr.MustParseIPv4("192.168.1.50"),
		addr.MustParseIPv4("8.8.8.8"),
		wire.IPProtocolICMP,
		[]byte("x"))
	require.NoError(t, err)

	eng.HandleIPv4("eth0", encodeIPv4(t, pkt))

	assert.Equal(t, uint64(1), eng.Statistics().NoRoute)
	assert.Equal(t, uint64(1), eng.Statistics().PacketsDropped)
}

func TestEngine_ttlExpiredSendsTimeExceeded(t *testing.T) {
	t.Parallel()

	eng, lan, _ := newTestEngine(t)

	src := addr.MustParseIPv4("192.168.1.50")
	srcMAC := addr.MustParseMAC("02:00:00:00:00:AA")
	lan.ARP.AddEntry(src, srcMAC, 0)

	pkt, err := wire.NewIPv4Packet(src, addr.MustParseIPv4("8.8.8.8"), wire.IPProtocolICMP, []byte("x"))
	require.NoError(t, err)
	pkt.TTL = 1

	var gotFrame wire.EthernetFrame
	var gotIface string
	eng.SetOnTransmit(func(iface string, f wire.EthernetFrame) {
		gotIface = iface
		gotFrame = f
	})

	eng.HandleIPv4("eth0", encodeIPv4(t, pkt))

	assert.Equal(t, uint64(1), eng.Statistics().TTLExpired)
	assert.Equal(t, "eth0", gotIface)
	assert.Equal(t, srcMAC, gotFrame.Dst)

	decoded, err := wire.DecodeIPv4Packet(gotFrame.Payload)
	require.NoError(t, err)
	assert.Equal(t, wire.IPProtocolICMP, decoded.Protocol)
	assert.Equal(t, lan.IP, decoded.Src)
	assert.Equal(t, src, decoded.Dst)
}

func TestEngine_deliversToSelf(t *testing.T) {
	t.Parallel()

	eng, lan, _ := newTestEngine(t)

	var delivered bool
	eng.SetOnDeliver(func(iface string, pkt wire.IPv4Packet) { delivered = true })

	pkt, err := wire.NewIPv4Packet(addr.MustParseIPv4("192.168.1.50"), lan.IP, wire.IPProtocolICMP, []byte("x"))
	require.NoError(t, err)

	eng.HandleIPv4("eth0", encodeIPv4(t, pkt))
	assert.True(t, delivered)
}

func TestEngine_handleARPReplies(t *testing.T) {
	t.Parallel()

	eng, lan, _ := newTestEngine(t)

	requesterMAC := addr.MustParseMAC("02:00:00:00:00:AB")
	requesterIP := addr.MustParseIPv4("192.168.1.77")

	req := wire.NewARPRequest(requesterMAC, requesterIP, lan.IP)

	var gotFrame wire.EthernetFrame
	eng.SetOnTransmit(func(iface string, f wire.EthernetFrame) { gotFrame = f })

	eng.HandleARP("eth0", req)

	replyPkt, err := wire.DecodeARPPacket(gotFrame.Payload[:28])
	require.NoError(t, err)
	assert.Equal(t, wire.ARPReply, replyPkt.Operation)
	assert.Equal(t, lan.MAC, replyPkt.SenderMAC)
	assert.Equal(t, requesterMAC, replyPkt.TargetMAC)

	mac, ok := lan.ARP.Resolve(requesterIP)
	require.True(t, ok)
	assert.Equal(t, requesterMAC, mac)
}
