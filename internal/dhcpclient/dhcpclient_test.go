package dhcpclient_test

import (
	"testing"
	"time"

	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/dhcpclient"
	"github.com/netlab-sim/vnet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func serverAck(xid uint32, mac addr.MAC, ip addr.IPv4, leaseSecs uint32) wire.DHCPPacket {
	p := wire.DHCPPacket{Op: wire.DHCPOpReply, Xid: xid, ChAddr: mac, Yiaddr: ip}
	p = p.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPAck)})
	p = p.WithOption(wire.DHCPOptSubnetMask, wire.PutIPv4(addr.MustParseIPv4("255.255.255.0")))
	p = p.WithOption(wire.DHCPOptServerID, wire.PutIPv4(addr.MustParseIPv4("192.168.1.1")))
	p = p.WithOption(wire.DHCPOptRouter, wire.PutIPv4(addr.MustParseIPv4("192.168.1.1")))
	p = p.WithOption(wire.DHCPOptLeaseTime, wire.PutU32(leaseSecs))

	return p
}

func TestClient_fullHandshake(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	mac := addr.MustParseMAC("02:00:00:00:00:01")
	c := dhcpclient.New(mac, "host1", clk)

	assert.Equal(t, dhcpclient.StateInit, c.State())

	discover := c.StartDiscover()
	assert.Equal(t, dhcpclient.StateSelecting, c.State())
	assert.True(t, discover.IsBroadcast())

	offer := wire.DHCPPacket{Op: wire.DHCPOpReply, Xid: discover.Xid, ChAddr: mac, Yiaddr: addr.MustParseIPv4("192.168.1.100")}
	offer = offer.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPOffer)})
	offer = offer.WithOption(wire.DHCPOptServerID, wire.PutIPv4(addr.MustParseIPv4("192.168.1.1")))

	require.True(t, c.HandleOffer(offer))
	assert.Equal(t, dhcpclient.StateRequesting, c.State())

	req := c.BuildRequest()
	assert.True(t, req.IsBroadcast())

	ack := serverAck(discover.Xid, mac, addr.MustParseIPv4("192.168.1.100"), 3600)
	require.True(t, c.HandleAck(ack))
	assert.Equal(t, dhcpclient.StateBound, c.State())

	lease, bound := c.Lease()
	require.True(t, bound)
	assert.Equal(t, addr.MustParseIPv4("192.168.1.100"), lease.IP)
	assert.Equal(t, time.Hour, lease.LeaseTime)
	assert.Equal(t, 30*time.Minute, lease.T1)
}

func TestClient_discoverTimeoutRetriesToInit(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	c := dhcpclient.New(addr.MustParseMAC("02:00:00:00:00:01"), "", clk)

	c.StartDiscover()
	clk.now = clk.now.Add(20 * time.Second)

	assert.True(t, c.IsDiscoverTimeout(clk.now))
	c.RetryDiscover()
	assert.Equal(t, dhcpclient.StateInit, c.State())
	assert.Equal(t, 1, c.Retries())
}

func TestClient_nakReturnsToInit(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	mac := addr.MustParseMAC("02:00:00:00:00:01")
	c := dhcpclient.New(mac, "", clk)

	discover := c.StartDiscover()
	offer := wire.DHCPPacket{Op: wire.DHCPOpReply, Xid: discover.Xid, ChAddr: mac, Yiaddr: addr.MustParseIPv4("192.168.1.100")}
	offer = offer.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPOffer)})
	require.True(t, c.HandleOffer(offer))

	nak := wire.DHCPPacket{Op: wire.DHCPOpReply, Xid: discover.Xid, ChAddr: mac}
	nak = nak.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPNak)})

	c.HandleNak(nak)
	assert.Equal(t, dhcpclient.StateInit, c.State())
	assert.ErrorIs(t, c.LastError(), dhcpclient.ErrNak)
}

func TestClient_incompleteAckRecordsLastError(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	mac := addr.MustParseMAC("02:00:00:00:00:01")
	c := dhcpclient.New(mac, "", clk)

	discover := c.StartDiscover()
	offer := wire.DHCPPacket{Op: wire.DHCPOpReply, Xid: discover.Xid, ChAddr: mac, Yiaddr: addr.MustParseIPv4("192.168.1.100")}
	offer = offer.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPOffer)})
	require.True(t, c.HandleOffer(offer))

	ack := wire.DHCPPacket{Op: wire.DHCPOpReply, Xid: discover.Xid, ChAddr: mac, Yiaddr: addr.MustParseIPv4("192.168.1.100")}
	ack = ack.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPAck)})

	assert.False(t, c.HandleAck(ack), "ack is missing the subnet mask option")
	assert.ErrorIs(t, c.LastError(), dhcpclient.ErrIncompleteAck)
	assert.Equal(t, dhcpclient.StateRequesting, c.State())

	goodAck := serverAck(discover.Xid, mac, addr.MustParseIPv4("192.168.1.100"), 3600)
	require.True(t, c.HandleAck(goodAck))
	assert.NoError(t, c.LastError())
}

func TestClient_tickDrivesRenewAndRebind(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	mac := addr.MustParseMAC("02:00:00:00:00:01")
	c := dhcpclient.New(mac, "", clk)

	discover := c.StartDiscover()
	offer := wire.DHCPPacket{Op: wire.DHCPOpReply, Xid: discover.Xid, ChAddr: mac, Yiaddr: addr.MustParseIPv4("192.168.1.100")}
	offer = offer.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPOffer)})
	require.True(t, c.HandleOffer(offer))

	ack := serverAck(discover.Xid, mac, addr.MustParseIPv4("192.168.1.100"), 3600)
	require.True(t, c.HandleAck(ack))

	c.Tick(clk.now.Add(31 * time.Minute))
	assert.Equal(t, dhcpclient.StateRenewing, c.State())

	c.Tick(clk.now.Add(53 * time.Minute))
	assert.Equal(t, dhcpclient.StateRebinding, c.State())
}

func TestClient_release(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}
	mac := addr.MustParseMAC("02:00:00:00:00:01")
	c := dhcpclient.New(mac, "", clk)

	_, err := c.Release()
	assert.ErrorIs(t, err, dhcpclient.ErrNotBound)

	discover := c.StartDiscover()
	offer := wire.DHCPPacket{Op: wire.DHCPOpReply, Xid: discover.Xid, ChAddr: mac, Yiaddr: addr.MustParseIPv4("192.168.1.100")}
	offer = offer.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPOffer)})
	require.True(t, c.HandleOffer(offer))

	ack := serverAck(discover.Xid, mac, addr.MustParseIPv4("192.168.1.100"), 3600)
	require.True(t, c.HandleAck(ack))

	release, err := c.Release()
	require.NoError(t, err)

	msgType, ok := release.MessageType()
	require.True(t, ok)
	assert.Equal(t, wire.DHCPRelease, msgType)
	assert.Equal(t, dhcpclient.StateInit, c.State())
}
